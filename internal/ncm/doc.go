// Package ncm decodes NetEase Cloud Music (.ncm) containers.
//
// A container holds an AES-ECB-wrapped audio key, an encrypted metadata
// document, an optional embedded cover image, and the audio payload itself
// encrypted with a positional RC4-derived keystream. Decoding a container is
// a pure, single-threaded pipeline with no shared state, so callers are free
// to decode many containers concurrently, one per worker.
package ncm
