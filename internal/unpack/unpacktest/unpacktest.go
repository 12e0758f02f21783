// Package unpacktest builds packed bodies for tests.
//
// The encoders here are the mirror image of the decoders in package unpack,
// down to where each bit word lands between the raw bytes around it.
package unpacktest

import (
	"encoding/binary"
	"fmt"
	"math/bits"
	"slices"

	"github.com/elliotnunn/UnSFX/internal/mz"
)

// Writer produces a stream that unpack.BitCursor reads back in the same call order.
// A word for the next 16 bits is reserved at the end of the stream as soon as
// the previous word fills, which is when the reader loads it.
type Writer struct {
	buf  []byte
	slot int
	word uint16
	n    int
}

// NewWriter starts a bitstream after the given raw bytes.
func NewWriter(prefix []byte) *Writer {
	w := &Writer{buf: slices.Clone(prefix)}
	w.reserve()
	return w
}

func (w *Writer) reserve() {
	w.slot = len(w.buf)
	w.buf = append(w.buf, 0, 0)
	w.word, w.n = 0, 0
}

func (w *Writer) Bit(b uint) {
	w.word |= uint16(b&1) << (15 - w.n)
	w.n++
	if w.n == 16 {
		binary.LittleEndian.PutUint16(w.buf[w.slot:], w.word)
		w.reserve()
	}
}

// Bits writes the low n bits of v, most significant first.
func (w *Writer) Bits(v uint, n int) {
	for i := n - 1; i >= 0; i-- {
		w.Bit(v >> i)
	}
}

func (w *Writer) Ones(n int) {
	for range n {
		w.Bit(1)
	}
}

func (w *Writer) Byte(b byte) { w.buf = append(w.buf, b) }

func (w *Writer) Word(v uint16) { w.buf = binary.LittleEndian.AppendUint16(w.buf, v) }

// Finish flushes a partial word. An untouched reserved word at the very end
// is dropped, because the reader does not load a word that is not there.
func (w *Writer) Finish() []byte {
	if w.n > 0 {
		binary.LittleEndian.PutUint16(w.buf[w.slot:], w.word)
	} else if w.slot == len(w.buf)-2 {
		w.buf = w.buf[:w.slot]
	}
	return w.buf
}

var (
	// DistClasses is a T1 table covering high distance bytes up to 127.
	DistClasses = [8]byte{0, 1, 2, 3, 4, 5, 6, 7}
	// Lengths is a T2 table with a short form, lengths 3-16 and the extended form.
	Lengths = [16]byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 0x0f}
)

// Code builds the payload of a code block.
type Code struct {
	T1 [8]byte
	T2 [16]byte
	w  *Writer
}

// NewCode starts a code block that must decode to exactly stop bytes.
func NewCode(t1 [8]byte, t2 [16]byte, stop uint16) *Code {
	c := &Code{T1: t1, T2: t2}
	c.w = NewWriter(slices.Concat(t1[:], t2[:]))
	c.w.Bits(uint(stop), 16)
	return c
}

func (c *Code) Literal(p ...byte) {
	for _, b := range p {
		c.w.Bit(0)
		c.w.Byte(b)
	}
}

// Raw exposes the underlying writer, for deliberately malformed tokens.
func (c *Code) Raw() *Writer { return c.w }

// LengthSlot writes the token bit and the class code that selects T2[idx].
func (c *Code) LengthSlot(idx int) {
	c.w.Bit(1)
	k := idx / 2
	c.w.Ones(k)
	if k < 7 {
		c.w.Bit(0)
	}
	c.w.Bit(uint(idx % 2))
}

// DistSlot writes the prefix code for T1[idx].
func (c *Code) DistSlot(idx int) {
	switch {
	case idx == 0:
		c.w.Bits(0, 2)
	case idx <= 5:
		c.w.Bits(uint(idx+1), 3)
	default:
		c.w.Bits(0b1110|uint(idx-6), 4)
	}
}

// Match copies n bytes from dist bytes back, using the short form when it fits.
func (c *Code) Match(dist, n int) {
	if n == 2 && dist < 0x100 {
		if i := slices.Index(c.T2[:], 0); i >= 0 {
			c.LengthSlot(i)
			c.w.Byte(byte(dist))
			return
		}
	}

	b := n - 2
	if i := slices.Index(c.T2[:], byte(b)); b > 0 && b < 0x0f && i >= 0 {
		c.LengthSlot(i)
	} else {
		c.LengthSlot(mustIndex(c.T2[:], 0x0f))
		ext := b - 0x0f
		switch {
		case ext < 0:
			panic(fmt.Sprintf("no length slot for %d bytes", n))
		case ext < 16:
			c.w.Bit(0)
			c.w.Bits(uint(ext), 4)
		case ext < 0xff:
			c.w.Bit(1)
			c.w.Byte(byte(ext))
		default:
			panic(fmt.Sprintf("match of %d bytes is too long", n))
		}
	}

	high := uint(dist >> 8)
	class := bits.Len(high)
	c.DistSlot(mustIndex(c.T1[:], byte(class)))
	if class > 1 {
		c.w.Bits(high, class-1)
	}
	c.w.Byte(byte(dist))
}

func (c *Code) Finish() []byte { return c.w.Finish() }

func mustIndex(s []byte, v byte) int {
	i := slices.Index(s, v)
	if i < 0 {
		panic(fmt.Sprintf("no table entry %d in %v", v, s))
	}
	return i
}

// Compress encodes p greedily with the default tables, looking back at most
// window bytes for matches.
func Compress(p []byte, window int) []byte {
	c := NewCode(DistClasses, Lengths, uint16(len(p)))
	for i := 0; i < len(p); {
		bestLen, bestDist := 0, 0
		for d := 1; d <= min(i, window, 0x7fff); d++ {
			n := 0
			for i+n < len(p) && n < 0x0f+2+0xfe && p[i+n] == p[i+n-d] {
				n++
			}
			if n > bestLen && (n > 2 || d < 0x100) {
				bestLen, bestDist = n, d
			}
		}
		if bestLen >= 2 {
			c.Match(bestDist, bestLen)
			i += bestLen
		} else {
			c.Literal(p[i])
			i++
		}
	}
	return c.Finish()
}

// DeltaClasses is an R table: one-step deltas, then growing powers of two.
var DeltaClasses = [16]byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15}

// Fixups builds the payload of a relocation block. Each run lists offsets
// within one segment in increasing order.
type Fixups struct {
	R [16]byte
	w *Writer
}

func NewFixups(r [16]byte) *Fixups {
	return &Fixups{R: r, w: NewWriter(r[:])}
}

func (f *Fixups) Run(seg uint16, offsets ...uint16) {
	if len(offsets) == 0 {
		return
	}
	f.w.Word(uint16(len(offsets) + 1))
	f.w.Word(seg)
	f.w.Word(offsets[0])
	for i := range offsets {
		delta := uint(1)
		if i+1 < len(offsets) {
			delta = uint(offsets[i+1] - offsets[i])
		}
		f.delta(delta)
	}
}

func (f *Fixups) delta(d uint) {
	var idx int
	if d == 1 {
		idx = mustIndex(f.R[:], 0)
	} else {
		idx = mustIndex(f.R[:], byte(bits.Len(d)-1))
	}
	if idx < 3 {
		f.w.Bits(uint(idx), 2)
	} else {
		f.w.Bits(3, 2)
		f.w.Ones(idx - 3)
		f.w.Bit(0)
	}
	if t := int(f.R[idx]); t > 0 {
		f.w.Bits(d, t)
	}
}

// Finish writes the terminating zero counter.
func (f *Fixups) Finish() []byte {
	f.w.Word(0)
	return f.w.Finish()
}

// Block frames a payload with its type, checksum and size.
func Block(typ byte, payload []byte) []byte {
	region := binary.LittleEndian.AppendUint16(nil, uint16(len(payload)+2))
	region = append(region, payload...)
	b := []byte{typ}
	b = binary.LittleEndian.AppendUint16(b, Sum(region))
	return append(b, region...)
}

// Body joins blocks after the stub prefix and adds the terminator.
func Body(blocks ...[]byte) []byte {
	b := []byte("\x0e\x1f\xfc\x06\x1e\x0e")
	for _, blk := range blocks {
		b = append(b, blk...)
	}
	return append(b, 0)
}

// Sum is the block checksum, computed independently of package unpack.
func Sum(p []byte) uint16 {
	var lo, hi uint
	for _, b := range p {
		lo += uint(b)
		lo = (lo + lo>>8) & 0xff
		hi += lo
		hi = (hi + hi>>8) & 0xff
	}
	return uint16(hi<<8 | lo)
}

// Image is an unpacked load module beginning with a far jump to entry.
func Image(entryIP, entryCS uint16, rest []byte) []byte {
	b := []byte{0xea}
	b = binary.LittleEndian.AppendUint16(b, entryIP)
	b = binary.LittleEndian.AppendUint16(b, entryCS)
	return append(b, rest...)
}

// Executable wraps a packed body in a container with no fixups and a zero entry point,
// the way the self-extractor ships it.
func Executable(body []byte, stack mz.Addr, minAlloc, maxAlloc uint16) *mz.Container {
	c, err := mz.Build(body, nil, mz.Addr{}, stack, minAlloc, maxAlloc)
	if err != nil {
		panic(err)
	}
	return c
}
