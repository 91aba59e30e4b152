package stegpack

import (
	"errors"
	"fmt"
	"math"
	"math/bits"
)

var ErrInvalidShape = errors.New("pixel buffer shape does not match its samples")

// NewPixelBuffer allocates a zeroed buffer of the given shape
func NewPixelBuffer(width, height, channels int) (*PixelBuffer, error) {
	if width < 0 || height < 0 || channels < 0 {
		return nil, fmt.Errorf("%w: negative dimension %dx%dx%d", ErrInvalidShape, width, height, channels)
	}

	// Ensure the sample count is addressable, even on 32-bit systems
	n, ok := sampleCount(width, height, channels)
	if !ok || n > math.MaxInt32 {
		return nil, fmt.Errorf("%w: %dx%dx%d samples", ErrOverflow, width, height, channels)
	}

	return &PixelBuffer{
		Width:    width,
		Height:   height,
		Channels: channels,
		Samples:  make([]byte, n),
	}, nil
}

// Capacity returns the number of bits the buffer can hold, one per sample
func (pb *PixelBuffer) Capacity() int {
	return len(pb.Samples)
}

// Validate checks that the declared shape accounts for every sample
func (pb *PixelBuffer) Validate() error {
	if pb == nil {
		return fmt.Errorf("%w: nil buffer", ErrInvalidShape)
	}
	if pb.Width < 0 || pb.Height < 0 || pb.Channels < 0 {
		return fmt.Errorf("%w: negative dimension %dx%dx%d", ErrInvalidShape, pb.Width, pb.Height, pb.Channels)
	}

	n, ok := sampleCount(pb.Width, pb.Height, pb.Channels)
	if !ok || n != uint64(len(pb.Samples)) {
		return fmt.Errorf("%w: %dx%dx%d needs %d samples, have %d",
			ErrInvalidShape, pb.Width, pb.Height, pb.Channels, n, len(pb.Samples))
	}

	return nil
}

// sampleCount multiplies out a shape, reporting false on overflow.
// Dimensions must be non-negative.
func sampleCount(width, height, channels int) (uint64, bool) {
	hi, n := bits.Mul64(uint64(width), uint64(height))
	if hi != 0 {
		return 0, false
	}
	hi, n = bits.Mul64(n, uint64(channels))
	return n, hi == 0
}

// Clone returns a deep copy of the buffer
func (pb *PixelBuffer) Clone() *PixelBuffer {
	samples := make([]byte, len(pb.Samples))
	copy(samples, pb.Samples)

	return &PixelBuffer{
		Width:    pb.Width,
		Height:   pb.Height,
		Channels: pb.Channels,
		Samples:  samples,
	}
}

// MaxDataLen returns how many bytes Embed can store in pb
func MaxDataLen(pb *PixelBuffer) int {
	free := pb.Capacity() - LengthHeaderBits
	if free < 0 {
		return 0
	}

	// The header can only describe 2^32-1 bits
	n := free / 8
	if uint64(n)*8 > math.MaxUint32 {
		n = math.MaxUint32 / 8
	}
	return n
}

// MaxContentLen returns the largest content that Hide can store in pb
// under the given filename
func MaxContentLen(pb *PixelBuffer, filename string) int {
	available := MaxDataLen(pb) - metadataLengthSize
	if available <= 0 {
		return 0
	}

	// Size the metadata for the largest candidate. A smaller size never
	// needs more digits, so the result is a lower bound that always fits.
	meta, err := encodeMetadata(filename, uint64(available))
	if err != nil {
		return 0
	}

	n := available - len(meta)
	if n < 0 {
		return 0
	}
	return n
}

// setLSB stores bit in the least significant bit of sample
func setLSB(sample byte, bit byte) byte {
	return (sample &^ 1) | (bit & 1)
}

// writeBits stores the low n bits of v, most significant first, in the
// LSBs of samples starting at offset. Returns the offset after the last bit.
// The caller guarantees offset+n <= len(samples).
func writeBits(samples []byte, offset int, v uint64, n int) int {
	for i := n - 1; i >= 0; i-- {
		samples[offset] = setLSB(samples[offset], byte(v>>uint(i)))
		offset++
	}
	return offset
}

// readBits reads n LSBs starting at offset, most significant first.
// The caller guarantees offset+n <= len(samples) and n <= 64.
func readBits(samples []byte, offset int, n int) uint64 {
	var v uint64
	for i := 0; i < n; i++ {
		v = v<<1 | uint64(samples[offset+i]&1)
	}
	return v
}
