// Package article finds and decrypts the articles stored in an unpacked image.
//
// The viewer loads each article with a short instruction sequence:
//
//	mov ax, seg    B8 lo hi
//	mov es, ax     8E C0
//	mov cx, size   B9 lo hi
//	xor di, di     33 FF
//
// so the segment and size of every article can be read straight out of the code.
package article

import (
	"encoding/binary"
	"fmt"
	"slices"

	"github.com/elliotnunn/UnSFX/internal/cursor"
	"github.com/elliotnunn/UnSFX/internal/decodeerr"
)

var ErrPatternNotFound = fmt.Errorf("%w: no article loader in image", decodeerr.ErrFormat)

var (
	pattern = []byte{0xb8, 0x00, 0x00, 0x8e, 0xc0, 0xb9, 0x00, 0x00, 0x33, 0xff}
	mask    = []byte{0x00, 0x00, 0xff, 0xff, 0xff, 0x00, 0x00, 0xff, 0xff} // pattern[1:]
)

const (
	segOperand  = 1
	sizeOperand = segOperand + 2 + 3
)

// Range is where an article's ciphertext lives in the unpacked image.
type Range struct {
	Offset, Length uint64
}

func (r Range) String() string { return fmt.Sprintf("%#x+%#x", r.Offset, r.Length) }

// Locate returns one Range per distinct loader sequence, in order of first appearance.
func Locate(body []byte) ([]Range, error) {
	var ret []Range
	seen := make(map[string]bool)
	for i := 0; i+len(pattern) <= len(body); {
		if !matchAt(body, i) {
			i++
			continue
		}
		m := body[i : i+len(pattern)]
		i += len(pattern)
		if seen[string(m)] {
			continue
		}
		seen[string(m)] = true
		ret = append(ret, Range{
			Offset: uint64(binary.LittleEndian.Uint16(m[segOperand:])) * 16,
			Length: uint64(binary.LittleEndian.Uint16(m[sizeOperand:])),
		})
	}
	if len(ret) == 0 {
		return nil, ErrPatternNotFound
	}
	return ret, nil
}

func matchAt(body []byte, i int) bool {
	if body[i] != pattern[0] {
		return false
	}
	for j, m := range mask {
		if (body[i+1+j]^pattern[1+j])&m != 0 {
			return false
		}
	}
	return true
}

// Extract copies out the stored bytes of r, last byte first,
// which is the order Decrypt expects.
func Extract(body []byte, r Range) ([]byte, error) {
	if r.Offset > uint64(len(body)) || r.Length > uint64(len(body)) {
		return nil, fmt.Errorf("%w: article %v outside %d-byte image", cursor.ErrShortData, r, len(body))
	}
	c, err := cursor.New(body).Region(int(r.Offset), int(r.Length))
	if err != nil {
		return nil, err
	}
	p, _ := c.Bytes(c.Len())
	p = slices.Clone(p)
	slices.Reverse(p)
	return p, nil
}
