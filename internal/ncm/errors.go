package ncm

import "errors"

var (
	// ErrNotAContainer indicates the input does not start with the NCM magic header.
	ErrNotAContainer = errors.New("not an ncm container")
	// ErrTruncatedInput indicates the input ended before a declared section length.
	ErrTruncatedInput = errors.New("truncated input")
	// ErrMalformedCiphertext indicates an encrypted box whose length is not a
	// positive multiple of the AES block size.
	ErrMalformedCiphertext = errors.New("malformed ciphertext")
	// ErrInvalidPadding indicates PKCS7 padding that cannot be removed.
	ErrInvalidPadding = errors.New("invalid padding")
	// ErrMetadataDecode indicates the metadata box could not be decoded. It is
	// non-fatal: audio extraction proceeds and the error is reported on the
	// decode result.
	ErrMetadataDecode = errors.New("metadata decode failed")
)
