package ncm

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// cursor reads sequentially from an underlying stream with bounds checking.
// Every short read on a declared length surfaces ErrTruncatedInput rather
// than silently producing short output.
type cursor struct {
	r   io.Reader
	pos int64
}

func newCursor(r io.Reader) *cursor {
	return &cursor{r: r}
}

// readExact returns exactly n bytes or fails with ErrTruncatedInput.
func (c *cursor) readExact(n int) ([]byte, error) {
	buf := make([]byte, n)
	read, err := io.ReadFull(c.r, buf)
	c.pos += int64(read)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: wanted %d bytes at offset %d, got %d", ErrTruncatedInput, n, c.pos-int64(read), read)
		}
		return nil, fmt.Errorf("read %d bytes at offset %d: %w", n, c.pos-int64(read), err)
	}
	return buf, nil
}

// readUint32 reads a little-endian unsigned 32-bit length field.
func (c *cursor) readUint32() (uint32, error) {
	buf, err := c.readExact(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf), nil
}

// skip advances the cursor without materializing the skipped bytes.
func (c *cursor) skip(n int64) error {
	if n == 0 {
		return nil
	}
	discarded, err := io.CopyN(io.Discard, c.r, n)
	c.pos += discarded
	if err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: wanted to skip %d bytes at offset %d, got %d", ErrTruncatedInput, n, c.pos-discarded, discarded)
		}
		return fmt.Errorf("skip %d bytes at offset %d: %w", n, c.pos-discarded, err)
	}
	return nil
}
