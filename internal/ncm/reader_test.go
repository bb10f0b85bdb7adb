package ncm

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"testing"
)

type containerSpec struct {
	key     []byte
	metaDoc string // empty means zero-length metadata box
	rawMeta []byte // overrides metaDoc when set (already whitened content)
	image   []byte
	slack   int // extra reserved space after the image bytes
	audio   []byte
	trailer []byte
}

// buildContainer assembles a bit-faithful synthetic container.
func buildContainer(t *testing.T, spec containerSpec) []byte {
	t.Helper()
	var out bytes.Buffer
	out.Write(magic)
	out.Write([]byte{0x01, 0x00}) // version gap

	keyBox := encryptECB(t, append([]byte("neteasecloudmusic"), spec.key...), CoreKey)
	for i := range keyBox {
		keyBox[i] ^= keyBoxWhiten
	}
	writeUint32(&out, uint32(len(keyBox)))
	out.Write(keyBox)

	var metaBox []byte
	switch {
	case len(spec.rawMeta) > 0:
		metaBox = append([]byte(nil), spec.rawMeta...)
	case spec.metaDoc != "":
		ciphertext := encryptECB(t, append([]byte("music:"), spec.metaDoc...), MetaKey)
		metaBox = append(append([]byte(nil), metaMarker...), base64.StdEncoding.EncodeToString(ciphertext)...)
	}
	for i := range metaBox {
		metaBox[i] ^= metaBoxWhiten
	}
	writeUint32(&out, uint32(len(metaBox)))
	out.Write(metaBox)

	out.Write([]byte{0xDE, 0xAD, 0xBE, 0xEF}) // CRC, unvalidated
	out.WriteByte(0x00)                       // gap byte
	writeUint32(&out, uint32(len(spec.image)+spec.slack))
	writeUint32(&out, uint32(len(spec.image)))
	out.Write(spec.image)
	out.Write(make([]byte, spec.slack))

	cipher := NewCipher(spec.key)
	payload := append([]byte(nil), spec.audio...)
	cipher.XORKeyStream(payload, 0)
	out.Write(payload)
	out.Write(spec.trailer)
	return out.Bytes()
}

func writeUint32(out *bytes.Buffer, v uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	out.Write(buf[:])
}

func patternedAudio(n int) []byte {
	audio := make([]byte, n)
	for i := range audio {
		audio[i] = byte(0xA5 ^ (i % 13))
	}
	return audio
}

func TestDecodeEndToEnd(t *testing.T) {
	// Known 32-byte key, zero-length metadata, no image, two full cipher
	// blocks of a repeating pattern.
	audio := patternedAudio(2 * 0x8000)
	file := buildContainer(t, containerSpec{
		key:   []byte("0123456789abcdef0123456789abcdef"),
		audio: audio,
	})

	var sink bytes.Buffer
	res, err := Decode(bytes.NewReader(file), &sink)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !bytes.Equal(sink.Bytes(), audio) {
		t.Fatal("decoded audio differs from original payload")
	}
	if res.AudioBytes != int64(len(audio)) {
		t.Fatalf("AudioBytes = %d, want %d", res.AudioBytes, len(audio))
	}
	if res.Metadata != nil || res.MetadataErr != nil {
		t.Fatalf("expected absent metadata, got %+v / %v", res.Metadata, res.MetadataErr)
	}
	if res.Image != nil {
		t.Fatalf("expected absent image, got %d bytes", len(res.Image.Bytes))
	}
	if res.Format != "mp3" {
		t.Fatalf("sniffed format = %q, want mp3 fallback", res.Format)
	}
}

func TestDecodeWithMetadataAndImage(t *testing.T) {
	audio := append([]byte("fLaC"), patternedAudio(500)...)
	image := append([]byte{0xFF, 0xD8, 0xFF, 0xE0}, []byte("jpegbody")...)
	file := buildContainer(t, containerSpec{
		key:     []byte("another-audio-key-material"),
		metaDoc: `{"format":"flac","musicName":"Tide","artist":[["Sea",7]],"album":"Waves"}`,
		image:   image,
		slack:   11,
		audio:   audio,
		trailer: []byte("trailing padding is tolerated"),
	})

	var sink bytes.Buffer
	res, err := Decode(bytes.NewReader(file), &sink)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !bytes.Equal(sink.Bytes(), audio) {
		t.Fatal("decoded audio differs from original payload")
	}
	if res.Metadata == nil || res.Metadata.MusicName != "Tide" {
		t.Fatalf("metadata = %+v", res.Metadata)
	}
	if res.Format != "flac" {
		t.Fatalf("format = %q, want flac", res.Format)
	}
	if res.Image == nil || res.Image.MIME != "image/jpeg" || !bytes.Equal(res.Image.Bytes, image) {
		t.Fatalf("image = %+v", res.Image)
	}
}

func TestDecodeRejectsMutatedMagic(t *testing.T) {
	file := buildContainer(t, containerSpec{
		key:   []byte("some-key-material-here"),
		audio: []byte("payload"),
	})
	for i := 0; i < len(magic); i++ {
		mutated := append([]byte(nil), file...)
		mutated[i] ^= 0x01
		if _, err := Decode(bytes.NewReader(mutated), &bytes.Buffer{}); !errors.Is(err, ErrNotAContainer) {
			t.Fatalf("mutated byte %d: got %v, want ErrNotAContainer", i, err)
		}
	}
}

func TestDecodeMetadataFailureIsNonFatal(t *testing.T) {
	audio := patternedAudio(777)
	file := buildContainer(t, containerSpec{
		key:     []byte("still-produces-audio"),
		rawMeta: append(append([]byte(nil), metaMarker...), "%%%definitely not base64%%%"...),
		audio:   audio,
	})

	var sink bytes.Buffer
	res, err := Decode(bytes.NewReader(file), &sink)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !errors.Is(res.MetadataErr, ErrMetadataDecode) {
		t.Fatalf("MetadataErr = %v, want ErrMetadataDecode", res.MetadataErr)
	}
	if res.Metadata != nil {
		t.Fatal("expected nil metadata after decode failure")
	}
	if !bytes.Equal(sink.Bytes(), audio) {
		t.Fatal("audio must survive a metadata decode failure")
	}
}

func TestDecodeTruncatedKeyBox(t *testing.T) {
	file := buildContainer(t, containerSpec{
		key:   []byte("key-material-to-truncate"),
		audio: []byte("payload"),
	})
	// Inflate the declared key-box length past the end of the file.
	binary.LittleEndian.PutUint32(file[10:14], uint32(len(file)))

	var sink bytes.Buffer
	if _, err := Decode(bytes.NewReader(file), &sink); !errors.Is(err, ErrTruncatedInput) {
		t.Fatalf("got %v, want ErrTruncatedInput", err)
	}
	if sink.Len() != 0 {
		t.Fatal("no output may be produced for a truncated container")
	}
}

func TestDecodeCorruptKeyBoxIsFatal(t *testing.T) {
	file := buildContainer(t, containerSpec{
		key:   []byte("corrupt-me"),
		audio: []byte("payload"),
	})
	// Shave one byte off the key box so its ciphertext is no longer a
	// multiple of the AES block size.
	keyLen := binary.LittleEndian.Uint32(file[10:14])
	binary.LittleEndian.PutUint32(file[10:14], keyLen-1)
	file = append(file[:14+keyLen-1], file[14+keyLen:]...)

	var sink bytes.Buffer
	if _, err := Decode(bytes.NewReader(file), &sink); !errors.Is(err, ErrMalformedCiphertext) {
		t.Fatalf("got %v, want ErrMalformedCiphertext", err)
	}
}

func TestSniffImageMIME(t *testing.T) {
	cases := []struct {
		name string
		data []byte
		want string
	}{
		{"jpeg", []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00}, "image/jpeg"},
		{"png", append([]byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}, 0x00), "image/png"},
		{"opaque", []byte("GIF89a"), "application/octet-stream"},
	}
	for _, tc := range cases {
		if got := SniffImageMIME(tc.data); got != tc.want {
			t.Errorf("%s: SniffImageMIME = %q, want %q", tc.name, got, tc.want)
		}
	}
}
