package ncm

// Cipher decrypts the audio payload with a positional keystream derived from
// the unwrapped audio key. The 256-byte permutation table comes from the
// standard RC4 key schedule, but the keystream byte for stream offset i is a
// pure function of the table and i rather than of advancing RC4 state:
//
//	j = (i + 1) & 0xff
//	k = (box[j] + box[(j+box[j])&0xff]) & 0xff
//	keystream = box[k]
//
// Because no call mutates the table, any byte range can be decrypted at any
// offset without replaying the stream, and one Cipher is safe to share across
// goroutines.
type Cipher struct {
	box [256]byte
}

// NewCipher builds the permutation table from the audio key. The key must be
// non-empty; the container reader guarantees that.
func NewCipher(key []byte) *Cipher {
	c := &Cipher{}
	for i := range c.box {
		c.box[i] = byte(i)
	}
	var j byte
	for i := 0; i < 256; i++ {
		j = c.box[i] + j + key[i%len(key)]
		c.box[i], c.box[j] = c.box[j], c.box[i]
	}
	return c
}

// XORKeyStream decrypts buf in place, where buf begins at the given absolute
// offset from the start of the audio stream.
func (c *Cipher) XORKeyStream(buf []byte, offset int64) {
	for i := range buf {
		j := byte(offset+int64(i)) + 1
		buf[i] ^= c.box[c.box[j]+c.box[j+c.box[j]]]
	}
}
