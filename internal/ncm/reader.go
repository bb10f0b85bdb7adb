package ncm

import (
	"bytes"
	"fmt"
	"io"
)

// magic is the 8-byte header every container starts with ("CTENFDAM" as two
// little-endian uint32 words).
var magic = []byte{0x43, 0x54, 0x45, 0x4E, 0x46, 0x44, 0x41, 0x4D}

const (
	// versionGapLen is the unused version field between the magic and the key box.
	versionGapLen = 2
	// crcGapLen covers the CRC field and the single gap byte before the image frame.
	crcGapLen = 4 + 1
	// audioBlockSize is the read granularity for the payload. Any block size
	// is conformant since the cipher is positional; 32 KiB balances
	// throughput against buffer size.
	audioBlockSize = 0x8000
)

// Result is everything a decode recovers besides the audio bytes themselves,
// which stream into the caller's sink.
type Result struct {
	// Metadata is nil when the container declares a zero-length metadata box
	// or when the box failed to decode (see MetadataErr).
	Metadata *Metadata
	// MetadataErr records a non-fatal metadata decode failure. Audio bytes
	// are still valid when it is set.
	MetadataErr error
	// Image is the embedded cover art, nil when the image length is zero.
	Image *Image
	// Format is the audio payload format: the metadata's format field when
	// present, otherwise sniffed from the first payload bytes (fLaC marker
	// means flac, anything else mp3).
	Format string
	// AudioBytes is the number of decrypted payload bytes written to the sink.
	AudioBytes int64
}

// Decode parses the container from r and streams the decrypted audio payload
// into sink. Failures before the payload (bad magic, truncated sections, a
// key box that does not unwrap) are fatal and nothing is written; a metadata
// box that does not decode is recorded on the result and decoding continues.
// A write or read failure during payload streaming aborts with the sink
// partially written; the caller owns cleanup of partial output.
func Decode(r io.Reader, sink io.Writer) (*Result, error) {
	cur := newCursor(r)

	header, err := cur.readExact(len(magic))
	if err != nil {
		return nil, ErrNotAContainer
	}
	if !bytes.Equal(header, magic) {
		return nil, ErrNotAContainer
	}
	if err := cur.skip(versionGapLen); err != nil {
		return nil, err
	}

	cipher, err := readKeyBox(cur)
	if err != nil {
		return nil, err
	}

	res := &Result{}
	res.Metadata, res.MetadataErr, err = readMetaBox(cur)
	if err != nil {
		return nil, err
	}

	res.Image, err = readImageFrame(cur)
	if err != nil {
		return nil, err
	}

	res.AudioBytes, res.Format, err = streamAudio(cur, cipher, sink)
	if err != nil {
		return nil, err
	}
	if res.Metadata != nil && res.Metadata.Format != "" {
		res.Format = res.Metadata.Format
	}
	return res, nil
}

func readKeyBox(cur *cursor) (*Cipher, error) {
	length, err := cur.readUint32()
	if err != nil {
		return nil, err
	}
	box, err := cur.readExact(int(length))
	if err != nil {
		return nil, err
	}
	key, err := unwrapAudioKey(box)
	if err != nil {
		return nil, fmt.Errorf("unwrap audio key: %w", err)
	}
	return NewCipher(key), nil
}

func readMetaBox(cur *cursor) (*Metadata, error, error) {
	length, err := cur.readUint32()
	if err != nil {
		return nil, nil, err
	}
	if length == 0 {
		// Absent metadata is valid; the payload still decodes.
		return nil, nil, nil
	}
	box, err := cur.readExact(int(length))
	if err != nil {
		return nil, nil, err
	}
	for i := range box {
		box[i] ^= metaBoxWhiten
	}
	meta, decodeErr := decodeMetadata(box)
	if decodeErr != nil {
		return nil, decodeErr, nil
	}
	return meta, nil, nil
}

// readImageFrame consumes the CRC/gap fields and the image frame. The frame
// declares both the space it occupies and the actual image length; the slack
// between the two is skipped.
func readImageFrame(cur *cursor) (*Image, error) {
	if err := cur.skip(crcGapLen); err != nil {
		return nil, err
	}
	frameSpace, err := cur.readUint32()
	if err != nil {
		return nil, err
	}
	imageLen, err := cur.readUint32()
	if err != nil {
		return nil, err
	}
	if imageLen > frameSpace {
		return nil, fmt.Errorf("%w: image length %d exceeds frame space %d", ErrTruncatedInput, imageLen, frameSpace)
	}

	var img *Image
	if imageLen > 0 {
		data, err := cur.readExact(int(imageLen))
		if err != nil {
			return nil, err
		}
		img = &Image{Bytes: data, MIME: SniffImageMIME(data)}
	}
	if err := cur.skip(int64(frameSpace) - int64(imageLen)); err != nil {
		return nil, err
	}
	return img, nil
}

func streamAudio(cur *cursor, cipher *Cipher, sink io.Writer) (int64, string, error) {
	buf := make([]byte, audioBlockSize)
	var written int64
	format := ""
	for {
		n, err := io.ReadFull(cur.r, buf)
		if n > 0 {
			cipher.XORKeyStream(buf[:n], written)
			if format == "" {
				format = sniffAudioFormat(buf[:n])
			}
			if _, werr := sink.Write(buf[:n]); werr != nil {
				return written, format, fmt.Errorf("write audio block at offset %d: %w", written, werr)
			}
			written += int64(n)
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return written, format, nil
		}
		if err != nil {
			return written, format, fmt.Errorf("read audio block at offset %d: %w", written, err)
		}
	}
}

// sniffAudioFormat falls back to mp3 when the payload is not FLAC, matching
// the format's own convention for containers without metadata.
func sniffAudioFormat(first []byte) string {
	if bytes.HasPrefix(first, []byte("fLaC")) {
		return "flac"
	}
	return "mp3"
}

// MagicHeader returns a copy of the 8-byte container magic, exposed for
// format probes that want to reject non-containers without a full decode.
func MagicHeader() []byte {
	cp := make([]byte, len(magic))
	copy(cp, magic)
	return cp
}

// IsContainer reports whether the first bytes of a file match the magic.
func IsContainer(header []byte) bool {
	return len(header) >= len(magic) && bytes.Equal(header[:len(magic)], magic)
}
