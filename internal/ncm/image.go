package ncm

import "bytes"

var (
	jpegMagic = []byte{0xFF, 0xD8, 0xFF}
	pngMagic  = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}
)

// Image is an embedded cover-art blob with its sniffed MIME type.
type Image struct {
	Bytes []byte
	MIME  string
}

// SniffImageMIME detects JPEG or PNG by magic bytes. Unrecognized data is not
// an error; it is reported as a generic octet stream and stored opaque.
func SniffImageMIME(data []byte) string {
	switch {
	case bytes.HasPrefix(data, jpegMagic):
		return "image/jpeg"
	case bytes.HasPrefix(data, pngMagic):
		return "image/png"
	default:
		return "application/octet-stream"
	}
}
