package stegpack

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

var ErrOverflow = errors.New("integer overflow during encoding")
var ErrCapacityExceeded = errors.New("data too large for image")

// Hide frames content under filename and embeds it in a copy of img
func Hide(img *PixelBuffer, filename string, content []byte) (out *PixelBuffer, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = fmt.Errorf("recovered panic in Hide: %s", r)
		}
	}()

	blob, err := BuildPayload(filename, content)
	if err != nil {
		return nil, err
	}

	return Embed(img, blob)
}

// BuildPayload serializes filename and content into a single framed blob:
// a 4 byte big endian metadata length, the JSON metadata, then the content.
// The metadata is compact with HTML characters escaped, so its bytes can
// differ from other writers' output for the same record (spaces after
// separators, \uXXXX for all non-ASCII). ParsePayload accepts either.
func BuildPayload(filename string, content []byte) ([]byte, error) {
	// The declared size is a u32 on the wire
	if uint64(len(content)) > math.MaxUint32 {
		return nil, fmt.Errorf("%w: content of %d bytes", ErrOverflow, len(content))
	}

	meta, err := encodeMetadata(filename, uint64(len(content)))
	if err != nil {
		return nil, err
	}

	// Ensure we don't overflow when allocating space, even on 32-bit systems
	n := metadataLengthSize + len(meta) + len(content)
	if (n < metadataLengthSize) || (len(meta) > math.MaxInt32) || (uint64(n) > math.MaxInt32) {
		return nil, ErrOverflow
	}

	buf := make([]byte, n)

	// First four bytes: big endian metadata length
	binary.BigEndian.PutUint32(buf[:metadataLengthSize], uint32(len(meta)))

	// Then the metadata, then the content verbatim
	copy(buf[metadataLengthSize:], meta)
	copy(buf[metadataLengthSize+len(meta):], content)

	return buf, nil
}

// encodeMetadata renders the metadata record for a payload
func encodeMetadata(filename string, size uint64) ([]byte, error) {
	meta, err := json.Marshal(payloadMetadata{
		Filename: filename,
		Size:     size,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding payload metadata: %w", err)
	}
	if uint64(len(meta)) > math.MaxUint32 {
		return nil, fmt.Errorf("%w: metadata of %d bytes", ErrOverflow, len(meta))
	}
	return meta, nil
}

// Embed returns a copy of img whose sample LSBs carry a 32 bit big endian
// bit count followed by data, most significant bit first. Nothing is
// written unless the whole bitstream fits; img itself is never modified.
func Embed(img *PixelBuffer, data []byte) (*PixelBuffer, error) {
	if err := img.Validate(); err != nil {
		return nil, err
	}

	// Validate capacity before touching any sample
	bitLen := uint64(len(data)) * 8
	if bitLen > math.MaxUint32 {
		return nil, fmt.Errorf("%w: %d bits do not fit the length header", ErrCapacityExceeded, bitLen)
	}
	needed := bitLen + LengthHeaderBits
	if needed > uint64(img.Capacity()) {
		return nil, fmt.Errorf("%w: need %d bits, image holds %d", ErrCapacityExceeded, needed, img.Capacity())
	}

	out := img.Clone()

	// Length header, then each data byte expanded MSB first
	offset := writeBits(out.Samples, 0, bitLen, LengthHeaderBits)
	for _, b := range data {
		offset = writeBits(out.Samples, offset, uint64(b), 8)
	}

	return out, nil
}
