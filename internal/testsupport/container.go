package testsupport

import (
	"bytes"
	"crypto/aes"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"melt/internal/ncm"
)

// ContainerSpec describes a synthetic container assembled for tests.
type ContainerSpec struct {
	// AudioKey seeds the audio keystream. A zero-value spec gets a default key.
	AudioKey []byte
	// Audio is the plaintext audio payload to wrap.
	Audio []byte
	// Metadata, when non-nil, is embedded as the encrypted metadata box.
	Metadata *ncm.Metadata
	// Image, when non-empty, is stored in the cover frame.
	Image []byte
}

// BuildContainer assembles container bytes the decoder accepts.
func BuildContainer(t testing.TB, spec ContainerSpec) []byte {
	t.Helper()

	key := spec.AudioKey
	if len(key) == 0 {
		key = []byte("testsupport-audio-key")
	}

	var buf bytes.Buffer
	buf.Write(ncm.MagicHeader())
	buf.Write([]byte{0, 0})

	keyPlain := append([]byte("neteasecloudmusic"), key...)
	keyBox := encryptECB(t, keyPlain, ncm.CoreKey)
	for i := range keyBox {
		keyBox[i] ^= 0x64
	}
	writeUint32(&buf, uint32(len(keyBox)))
	buf.Write(keyBox)

	if spec.Metadata == nil {
		writeUint32(&buf, 0)
	} else {
		payload, err := json.Marshal(spec.Metadata)
		if err != nil {
			t.Fatalf("marshal metadata: %v", err)
		}
		sealed := encryptECB(t, append([]byte("music:"), payload...), ncm.MetaKey)
		encoded := base64.StdEncoding.EncodeToString(sealed)
		box := append([]byte("163 key(Don't modify):"), encoded...)
		for i := range box {
			box[i] ^= 0x63
		}
		writeUint32(&buf, uint32(len(box)))
		buf.Write(box)
	}

	buf.Write([]byte{0, 0, 0, 0})
	buf.WriteByte(0)
	writeUint32(&buf, uint32(len(spec.Image)))
	writeUint32(&buf, uint32(len(spec.Image)))
	buf.Write(spec.Image)

	cipher := ncm.NewCipher(key)
	audio := append([]byte(nil), spec.Audio...)
	cipher.XORKeyStream(audio, 0)
	buf.Write(audio)

	return buf.Bytes()
}

// WriteContainer builds a container and writes it to path.
func WriteContainer(t testing.TB, path string, spec ContainerSpec) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, BuildContainer(t, spec), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func encryptECB(t testing.TB, plain, key []byte) []byte {
	t.Helper()

	block, err := aes.NewCipher(key)
	if err != nil {
		t.Fatalf("aes cipher: %v", err)
	}
	pad := block.BlockSize() - len(plain)%block.BlockSize()
	padded := append(append([]byte(nil), plain...), bytes.Repeat([]byte{byte(pad)}, pad)...)
	out := make([]byte, len(padded))
	for offset := 0; offset < len(padded); offset += block.BlockSize() {
		block.Encrypt(out[offset:offset+block.BlockSize()], padded[offset:offset+block.BlockSize()])
	}
	return out
}

func writeUint32(buf *bytes.Buffer, value uint32) {
	var scratch [4]byte
	binary.LittleEndian.PutUint32(scratch[:], value)
	buf.Write(scratch[:])
}
