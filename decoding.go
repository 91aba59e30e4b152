package stegpack

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"unicode/utf8"
)

var ErrImageTooSmall = errors.New("image too small to hold embedded data")
var ErrMalformedBitstream = errors.New("embedded bit count is not a whole number of bytes")
var ErrMalformedPayload = errors.New("malformed payload")
var ErrSizeMismatch = errors.New("declared size does not match content length")

// Reveal extracts the framed payload hidden in img and parses it
func Reveal(img *PixelBuffer) (p *Payload, err error) {
	defer func() {
		if r := recover(); r != nil {
			p = nil
			err = fmt.Errorf("recovered panic in Reveal: %s", r)
		}
	}()

	blob, err := Extract(img)
	if err != nil {
		return nil, err
	}

	return ParsePayload(blob)
}

// Extract reads back the bytes written by Embed. There is no checksum, so
// an image without a payload yields either an error or arbitrary bytes.
func Extract(img *PixelBuffer) ([]byte, error) {
	if err := img.Validate(); err != nil {
		return nil, err
	}

	capacity := uint64(img.Capacity())
	if capacity < LengthHeaderBits {
		return nil, fmt.Errorf("%w: %d samples, header needs %d", ErrImageTooSmall, capacity, LengthHeaderBits)
	}

	// Decode the length header
	bitLen := readBits(img.Samples, 0, LengthHeaderBits)

	// Ensure the declared length fits in the image
	if LengthHeaderBits+bitLen > capacity {
		return nil, fmt.Errorf("%w: header declares %d bits, image holds %d", ErrImageTooSmall, bitLen, capacity-LengthHeaderBits)
	}
	if bitLen%8 != 0 {
		return nil, fmt.Errorf("%w: %d bits", ErrMalformedBitstream, bitLen)
	}

	out := make([]byte, bitLen/8)
	offset := LengthHeaderBits
	for i := range out {
		out[i] = byte(readBits(img.Samples, offset, 8))
		offset += 8
	}

	return out, nil
}

// ParsePayload splits a blob produced by BuildPayload back into its
// filename and content. The declared size is reported but not enforced;
// see CheckSize.
func ParsePayload(blob []byte) (*Payload, error) {
	// Read the metadata length
	if len(blob) < metadataLengthSize {
		return nil, fmt.Errorf("%w: %d bytes, need at least %d", ErrMalformedPayload, len(blob), metadataLengthSize)
	}
	metaLen := uint64(binary.BigEndian.Uint32(blob[:metadataLengthSize]))

	// Ensure the metadata lies within the blob
	rest := uint64(len(blob) - metadataLengthSize)
	if metaLen > rest {
		return nil, fmt.Errorf("%w: metadata length %d exceeds remaining %d bytes", ErrMalformedPayload, metaLen, rest)
	}
	end := metadataLengthSize + int(metaLen)
	metaBytes := blob[metadataLengthSize:end]

	// json.Unmarshal would quietly replace invalid sequences
	if !utf8.Valid(metaBytes) {
		return nil, fmt.Errorf("%w: metadata is not valid UTF-8", ErrMalformedPayload)
	}

	p, err := decodeMetadata(metaBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformedPayload, err)
	}

	// Copy the content so the payload does not alias blob
	p.Content = make([]byte, len(blob)-end)
	copy(p.Content, blob[end:])

	return p, nil
}

// decodeMetadata reads the filename and size from a JSON object into a
// Payload without content. Keys
// match exactly, unlike encoding/json struct fields; when a key repeats
// the last value wins. A missing or null size yields NoDeclaredSize.
func decodeMetadata(data []byte) (*Payload, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("decoding metadata: %w", err)
	}

	rawName, ok := fields[filenameKey]
	if !ok || isNull(rawName) {
		return nil, errors.New("metadata has no filename")
	}

	p := &Payload{DeclaredSize: NoDeclaredSize}
	if err := json.Unmarshal(rawName, &p.Filename); err != nil {
		return nil, fmt.Errorf("decoding filename: %w", err)
	}

	rawSize, ok := fields[sizeKey]
	if !ok || isNull(rawSize) {
		return p, nil
	}
	var size uint64
	if err := json.Unmarshal(rawSize, &size); err != nil {
		return nil, fmt.Errorf("decoding size: %w", err)
	}
	if size > math.MaxInt64 {
		return nil, fmt.Errorf("declared size %d out of range", size)
	}
	p.DeclaredSize = int64(size)

	return p, nil
}

func isNull(raw json.RawMessage) bool {
	return string(raw) == "null"
}

// CheckSize reports ErrSizeMismatch when the payload declared a size
// different from its content length
func (p *Payload) CheckSize() error {
	if p.DeclaredSize == NoDeclaredSize {
		return nil
	}
	if p.DeclaredSize != int64(len(p.Content)) {
		return fmt.Errorf("%w: declared %d, got %d", ErrSizeMismatch, p.DeclaredSize, len(p.Content))
	}
	return nil
}
