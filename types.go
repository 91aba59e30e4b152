// Package stegpack hides a named binary payload in the least significant
// bits of an image's pixel samples and recovers it again.
package stegpack

const (
	// LengthHeaderBits is the width of the bit length prefix written
	// in front of the embedded data
	LengthHeaderBits = 32

	// metadataLengthSize is the number of bytes used for the big endian
	// metadata length at the start of a framed payload
	metadataLengthSize = 4

	// NoDeclaredSize is the DeclaredSize of a payload whose metadata
	// carried no "size" field
	NoDeclaredSize = -1
)

// PixelBuffer is a raster image flattened into interleaved 8-bit samples,
// row by row. One bit can be hidden per sample.
type PixelBuffer struct {
	Width    int
	Height   int
	Channels int
	Samples  []byte
}

// Payload is a file recovered from (or destined for) an image
type Payload struct {
	Filename     string
	DeclaredSize int64
	Content      []byte
}

// Keys of the JSON metadata record. They are matched exactly when parsing.
const (
	filenameKey = "filename"
	sizeKey     = "size"
)

// payloadMetadata is the JSON record stored between the metadata length
// and the content
type payloadMetadata struct {
	Filename string `json:"filename"`
	Size     uint64 `json:"size"`
}
