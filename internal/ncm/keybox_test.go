package ncm

import (
	"bytes"
	"crypto/aes"
	"errors"
	"testing"
)

// encryptECB is the inverse of decryptECB, used to build fixtures.
func encryptECB(t *testing.T, plain, key []byte) []byte {
	t.Helper()
	block, err := aes.NewCipher(key)
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}
	bs := block.BlockSize()
	padLen := bs - len(plain)%bs
	padded := append(append([]byte(nil), plain...), bytes.Repeat([]byte{byte(padLen)}, padLen)...)
	out := make([]byte, len(padded))
	for i := 0; i < len(padded); i += bs {
		block.Encrypt(out[i:i+bs], padded[i:i+bs])
	}
	return out
}

func TestDecryptECBRoundTrip(t *testing.T) {
	for length := 1; length <= 256; length++ {
		plain := make([]byte, length)
		for i := range plain {
			plain[i] = byte(i ^ length)
		}
		ciphertext := encryptECB(t, plain, CoreKey)
		got, err := decryptECB(ciphertext, CoreKey)
		if err != nil {
			t.Fatalf("length %d: decryptECB: %v", length, err)
		}
		if !bytes.Equal(got, plain) {
			t.Fatalf("length %d: round trip mismatch", length)
		}
	}
}

func TestDecryptECBRejectsBadLengths(t *testing.T) {
	for _, length := range []int{0, 1, 15, 17, 33} {
		_, err := decryptECB(make([]byte, length), MetaKey)
		if !errors.Is(err, ErrMalformedCiphertext) {
			t.Fatalf("length %d: got %v, want ErrMalformedCiphertext", length, err)
		}
	}
}

func TestDecryptECBRejectsBadPadding(t *testing.T) {
	block, err := aes.NewCipher(CoreKey)
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}

	cases := map[string][]byte{
		"zero pad byte":     append(bytes.Repeat([]byte{0x17}, 15), 0x00),
		"pad exceeds block": append(bytes.Repeat([]byte{0x17}, 15), 0x11),
		"inconsistent tail": append(bytes.Repeat([]byte{0x17}, 14), 0x02, 0x03),
	}
	for name, plain := range cases {
		ciphertext := make([]byte, 16)
		block.Encrypt(ciphertext, plain)
		if _, err := decryptECB(ciphertext, CoreKey); !errors.Is(err, ErrInvalidPadding) {
			t.Errorf("%s: got %v, want ErrInvalidPadding", name, err)
		}
	}
}

func TestUnwrapAudioKey(t *testing.T) {
	keyMaterial := []byte("0123456789abcdef0123456789abcdef")
	plain := append([]byte("neteasecloudmusic"), keyMaterial...)
	box := encryptECB(t, plain, CoreKey)
	for i := range box {
		box[i] ^= keyBoxWhiten
	}

	got, err := unwrapAudioKey(box)
	if err != nil {
		t.Fatalf("unwrapAudioKey: %v", err)
	}
	if !bytes.Equal(got, keyMaterial) {
		t.Fatalf("unwrapped key = %q, want %q", got, keyMaterial)
	}
}

func TestUnwrapAudioKeyRejectsShortPlaintext(t *testing.T) {
	box := encryptECB(t, []byte("tooshort"), CoreKey)
	for i := range box {
		box[i] ^= keyBoxWhiten
	}
	if _, err := unwrapAudioKey(box); !errors.Is(err, ErrMalformedCiphertext) {
		t.Fatalf("got %v, want ErrMalformedCiphertext", err)
	}
}
