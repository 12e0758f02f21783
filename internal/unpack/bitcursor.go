package unpack

import (
	"encoding/binary"

	"github.com/elliotnunn/UnSFX/internal/cursor"
)

// BitCursor interleaves a bitstream with raw bytes, the way the 8086 stub
// does: 16-bit little-endian words are loaded into a register and shifted
// out from the top, and each word is fetched from the byte stream the moment
// the previous one runs dry. Literal bytes are read from the same stream in
// between, so the order of Bit and Byte calls decides the file layout.
type BitCursor struct {
	r     *cursor.Cursor
	cache uint16
	left  uint8 // valid bits in cache, 0-16
}

// NewBitCursor loads the first word immediately.
func NewBitCursor(r *cursor.Cursor) (*BitCursor, error) {
	b := &BitCursor{r: r}
	if err := b.fill(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *BitCursor) fill() error {
	w, err := b.r.U16(binary.LittleEndian)
	if err != nil {
		return err
	}
	b.cache, b.left = w, 16
	return nil
}

func (b *BitCursor) Bit() (uint, error) {
	if b.left == 0 {
		if err := b.fill(); err != nil {
			return 0, err
		}
	}
	bit := uint(b.cache >> 15)
	b.cache <<= 1
	b.left--
	if b.left == 0 && b.r.Remaining() >= 2 {
		b.fill()
	}
	return bit, nil
}

// Bits reads n bits, first bit most significant.
func (b *BitCursor) Bits(n int) (uint, error) {
	var ret uint
	for range n {
		bit, err := b.Bit()
		if err != nil {
			return 0, err
		}
		ret = ret<<1 | bit
	}
	return ret, nil
}

// Byte reads a raw byte, ignoring the bit position.
func (b *BitCursor) Byte() (byte, error) { return b.r.U8() }

// Word reads a raw little-endian word, ignoring the bit position.
func (b *BitCursor) Word() (uint16, error) { return b.r.U16(binary.LittleEndian) }

func (b *BitCursor) Empty() bool { return b.left == 0 && b.r.Remaining() == 0 }
