package unpack

import (
	"encoding/binary"
	"fmt"

	"github.com/elliotnunn/UnSFX/internal/cursor"
	"github.com/elliotnunn/UnSFX/internal/decodeerr"
)

var (
	ErrCorrupt     = fmt.Errorf("%w: back-reference outside the output", decodeerr.ErrCorrupt)
	ErrUnsupported = fmt.Errorf("%w: two-byte length extension", decodeerr.ErrUnsupported)
)

const (
	distTableSize = 8  // T1: extra-bit classes for the high part of a distance
	lenTableSize  = 16 // T2: match lengths minus two, 0 for the short form
	maxLenOnes    = 7

	lenExtended = 0x0f
)

// UncompressedSize reads the output length of a code block without decoding it.
// The field sits after the size field and both tables, and is the same word
// that Decompress reads as its first 16 bits.
func UncompressedSize(region *cursor.Cursor) (int, error) {
	r, err := region.Region(2+distTableSize+lenTableSize, 2)
	if err != nil {
		return 0, err
	}
	n, err := r.U16(binary.LittleEndian)
	return int(n), err
}

// Decompress decodes one code block payload, appending to out.
// Back-references may reach into output from earlier blocks,
// so out must hold everything decoded so far and nothing else.
func Decompress(payload *cursor.Cursor, out []byte) ([]byte, int, error) {
	start := len(out)

	distTable, err := payload.Bytes(distTableSize)
	if err != nil {
		return out, 0, err
	}
	lenTable, err := payload.Bytes(lenTableSize)
	if err != nil {
		return out, 0, err
	}
	br, err := NewBitCursor(payload)
	if err != nil {
		return out, 0, err
	}
	stop, err := br.Bits(16)
	if err != nil {
		return out, 0, err
	}

	for len(out)-start < int(stop) {
		out, err = lzToken(br, distTable, lenTable, out)
		if err != nil {
			return out, len(out) - start, err
		}
	}

	n := len(out) - start
	if n != int(stop) {
		return out, n, fmt.Errorf("%w: block produced %d bytes, expected %d", decodeerr.ErrCorrupt, n, stop)
	}
	return out, n, nil
}

func lzToken(br *BitCursor, distTable, lenTable []byte, out []byte) ([]byte, error) {
	bit, err := br.Bit()
	if err != nil {
		return out, err
	}
	if bit == 0 {
		lit, err := br.Byte()
		return append(out, lit), err
	}

	// Length class: a run of up to 7 ones, then one more bit
	var ones uint
	for ones < maxLenOnes {
		bit, err := br.Bit()
		if err != nil {
			return out, err
		}
		if bit == 0 {
			break
		}
		ones++
	}
	d, err := br.Bit()
	if err != nil {
		return out, err
	}
	length := int(lenTable[lengthSlot(ones, d)])

	if length == 0 {
		e, err := br.Byte()
		if err != nil {
			return out, err
		}
		return copyBack(out, int(e), 2)
	}

	if length == lenExtended {
		wide, err := br.Bit()
		if err != nil {
			return out, err
		}
		var ext uint
		if wide == 1 {
			b, err := br.Byte()
			if err != nil {
				return out, err
			}
			if b == 0xff {
				return out, fmt.Errorf("%w at output offset %#x", ErrUnsupported, len(out))
			}
			ext = uint(b)
		} else if ext, err = br.Bits(4); err != nil {
			return out, err
		}
		length += int(ext)
	}

	slot, err := readDistanceSlot(br)
	if err != nil {
		return out, err
	}
	high, err := distanceHigh(br, distTable[slot])
	if err != nil {
		return out, err
	}
	e2, err := br.Byte()
	if err != nil {
		return out, err
	}
	return copyBack(out, int(high)<<8|int(e2), length+2)
}

// lengthSlot indexes T2 from the run of ones and the bit after it.
func lengthSlot(ones, d uint) int { return int(2*ones + d) }

// distanceSlot decodes the T1 index prefix code from the first n bits read
// (2, 3 or 4 of them). ok is false while more bits are needed.
//
//	00    -> 0
//	01x   -> 1, 2
//	10x   -> 3, 4
//	110   -> 5
//	111x  -> 6, 7
func distanceSlot(code uint, n int) (slot int, ok bool) {
	switch n {
	case 2:
		return 0, code == 0
	case 3:
		if v := int(code) - 1; v <= 5 {
			return v, true
		}
		return 0, false
	default:
		return int(code) - 0b1110 + 6, true
	}
}

func readDistanceSlot(br *BitCursor) (int, error) {
	code, err := br.Bits(2)
	for n := 2; err == nil; n++ {
		if slot, ok := distanceSlot(code, n); ok {
			return slot, nil
		}
		var bit uint
		bit, err = br.Bit()
		code = code<<1 | bit
	}
	return 0, err
}

// distanceHigh reads the high byte of a distance, which has class v from T1:
// 0 is zero, 1 is one, and otherwise the value has v-1 explicit bits below
// an implicit leading one.
func distanceHigh(br *BitCursor, v uint8) (uint, error) {
	switch v {
	case 0:
		return 0, nil
	case 1:
		return 1, nil
	}
	extra := int(v) - 1
	bits, err := br.Bits(extra)
	return 1<<extra | bits, err
}

// copyBack appends n bytes starting dist bytes behind the write position.
// Source and destination may overlap, so the copy goes byte by byte.
func copyBack(out []byte, dist, n int) ([]byte, error) {
	if dist <= 0 || dist > len(out) {
		return out, fmt.Errorf("%w: distance %d at output offset %#x", ErrCorrupt, dist, len(out))
	}
	src := len(out) - dist
	for i := range n {
		out = append(out, out[src+i])
	}
	return out, nil
}
