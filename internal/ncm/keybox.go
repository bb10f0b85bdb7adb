package ncm

import (
	"crypto/aes"
	"fmt"
)

// The static unwrap keys and whitening constants are structural parts of the
// NCM format, published in every independent implementation of it. They are
// not secrets; interoperability requires matching them bit for bit.
var (
	// CoreKey unwraps the audio-key box.
	CoreKey = []byte{0x68, 0x7A, 0x48, 0x52, 0x41, 0x6D, 0x73, 0x6F, 0x35, 0x6B, 0x49, 0x6E, 0x62, 0x61, 0x78, 0x57}
	// MetaKey unwraps the metadata box.
	MetaKey = []byte{0x23, 0x31, 0x34, 0x6C, 0x6A, 0x6B, 0x5F, 0x21, 0x5C, 0x5D, 0x26, 0x30, 0x55, 0x3C, 0x27, 0x28}
)

const (
	// keyBoxWhiten is XORed over the audio-key box ciphertext before AES decryption.
	keyBoxWhiten = 0x64
	// metaBoxWhiten is XORed over the metadata box before its marker is stripped.
	metaBoxWhiten = 0x63
	// keyPlainPrefixLen is the length of the fixed "neteasecloudmusic" prefix
	// discarded from the unwrapped audio-key plaintext.
	keyPlainPrefixLen = 17
)

// decryptECB decrypts ciphertext with AES in ECB mode under the given static
// key and strips PKCS7 padding. One routine serves both the audio-key box and
// the metadata box; only the key and surrounding framing differ.
func decryptECB(ciphertext, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	bs := block.BlockSize()
	if len(ciphertext) == 0 || len(ciphertext)%bs != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a positive multiple of %d", ErrMalformedCiphertext, len(ciphertext), bs)
	}

	plain := make([]byte, len(ciphertext))
	for i := 0; i < len(ciphertext); i += bs {
		block.Decrypt(plain[i:i+bs], ciphertext[i:i+bs])
	}
	return unpadPKCS7(plain, bs)
}

func unpadPKCS7(plain []byte, blockSize int) ([]byte, error) {
	padLen := int(plain[len(plain)-1])
	if padLen < 1 || padLen > blockSize {
		return nil, fmt.Errorf("%w: pad length %d", ErrInvalidPadding, padLen)
	}
	for _, b := range plain[len(plain)-padLen:] {
		if int(b) != padLen {
			return nil, fmt.Errorf("%w: inconsistent trailing bytes", ErrInvalidPadding)
		}
	}
	return plain[:len(plain)-padLen], nil
}

// unwrapAudioKey recovers the RC4 key material from the raw key-box bytes:
// undo the single-byte whitening, AES-ECB decrypt under CoreKey, then discard
// the fixed plaintext prefix.
func unwrapAudioKey(box []byte) ([]byte, error) {
	whitened := make([]byte, len(box))
	for i, b := range box {
		whitened[i] = b ^ keyBoxWhiten
	}
	plain, err := decryptECB(whitened, CoreKey)
	if err != nil {
		return nil, err
	}
	if len(plain) <= keyPlainPrefixLen {
		return nil, fmt.Errorf("%w: key plaintext shorter than its %d-byte prefix", ErrMalformedCiphertext, keyPlainPrefixLen)
	}
	return plain[keyPlainPrefixLen:], nil
}
