package unpack

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/elliotnunn/UnSFX/internal/cursor"
	"github.com/elliotnunn/UnSFX/internal/decodeerr"
	"github.com/elliotnunn/UnSFX/internal/unpack/unpacktest"
)

func decompress(t *testing.T, payload []byte, out []byte) ([]byte, int, error) {
	t.Helper()
	return Decompress(cursor.New(payload), out)
}

func TestLiterals(t *testing.T) {
	// Tables left zero: no back-reference is used
	c := unpacktest.NewCode([8]byte{}, [16]byte{}, 3)
	c.Literal(0x41, 0x42, 0x43)
	payload := c.Finish()

	out, n, err := decompress(t, payload, nil)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 || !bytes.Equal(out, []byte{0x41, 0x42, 0x43}) {
		t.Errorf("expected 3 bytes ABC, got %d %q", n, out)
	}
}

func TestUncompressedSize(t *testing.T) {
	c := unpacktest.NewCode(unpacktest.DistClasses, unpacktest.Lengths, 0x1234)
	block := unpacktest.Block(BlockCode, c.Finish())
	n, err := UncompressedSize(cursor.New(block[3:]))
	if err != nil || n != 0x1234 {
		t.Errorf("expected 0x1234, got %#x, %v", n, err)
	}

	_, err = UncompressedSize(cursor.New(block[3:20]))
	if !errors.Is(err, cursor.ErrShortData) {
		t.Errorf("expected ErrShortData for a short block, got %v", err)
	}
}

func TestMatches(t *testing.T) {
	c := unpacktest.NewCode(unpacktest.DistClasses, unpacktest.Lengths, 2+2+6+40)
	c.Literal('a', 'b')
	c.Match(2, 2)  // short form
	c.Match(1, 6)  // overlapping run of the last byte
	c.Match(10, 40) // extended length, overlapping
	payload := c.Finish()

	want := "abab" + "bbbbbb"
	for len(want) < 50 {
		want += want[len(want)-10 : len(want)-9]
	}
	out, n, err := decompress(t, payload, nil)
	if err != nil {
		t.Fatal(err)
	}
	if n != 50 || string(out) != want {
		t.Errorf("expected %q, got %q", want, out)
	}
}

func TestRoundTrip(t *testing.T) {
	inputs := map[string][]byte{
		"text":     []byte(strings.Repeat("The quick brown fox jumps over the lazy dog. ", 20)),
		"zeros":    make([]byte, 3000),
		"far":      append(append([]byte("0123456789abcdef"), make([]byte, 1000)...), "0123456789abcdef"...),
		"empty":    nil,
		"onebyte":  []byte{7},
		"longruns": bytes.Repeat([]byte("xy"), 700),
	}
	for name, in := range inputs {
		t.Run(name, func(t *testing.T) {
			payload := unpacktest.Compress(in, 2000)
			out, n, err := decompress(t, payload, nil)
			if err != nil {
				t.Fatal(err)
			}
			if n != len(in) || !bytes.Equal(out, in) {
				t.Errorf("round trip changed %d bytes into %d", len(in), n)
			}
		})
	}
}

func TestDeterministic(t *testing.T) {
	payload := unpacktest.Compress([]byte(strings.Repeat("abcabcabd", 50)), 100)
	a, _, err := decompress(t, payload, nil)
	if err != nil {
		t.Fatal(err)
	}
	b, _, err := decompress(t, payload, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a, b) {
		t.Error("two decodes of one block differ")
	}
}

func TestSharedOutput(t *testing.T) {
	// A later block refers back into an earlier block's output
	c := unpacktest.NewCode(unpacktest.DistClasses, unpacktest.Lengths, 4)
	c.Match(6, 4)
	out, n, err := decompress(t, c.Finish(), []byte("hello!"))
	if err != nil {
		t.Fatal(err)
	}
	if n != 4 || string(out) != "hello!hell" {
		t.Errorf("expected hello!hell, got %q (%d)", out, n)
	}
}

func TestCorruptDistance(t *testing.T) {
	zero := unpacktest.NewCode(unpacktest.DistClasses, unpacktest.Lengths, 3)
	zero.Literal('a')
	zero.LengthSlot(0)
	zero.Raw().Byte(0)

	beyond := unpacktest.NewCode(unpacktest.DistClasses, unpacktest.Lengths, 3)
	beyond.Literal('a')
	beyond.Match(2, 2)

	farBeyond := unpacktest.NewCode(unpacktest.DistClasses, unpacktest.Lengths, 10)
	farBeyond.Literal('a', 'b')
	farBeyond.Match(0x300, 8)

	overshoot := unpacktest.NewCode(unpacktest.DistClasses, unpacktest.Lengths, 3)
	overshoot.Literal('a')
	overshoot.Match(1, 3)

	cases := map[string]*unpacktest.Code{
		"zero distance":  zero,
		"before start":   beyond,
		"long form":      farBeyond,
		"past stop size": overshoot,
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, err := decompress(t, c.Finish(), nil)
			if !errors.Is(err, decodeerr.ErrCorrupt) {
				t.Errorf("expected a corrupt input error, got %v", err)
			}
		})
	}
}

func TestUnsupportedExtension(t *testing.T) {
	c := unpacktest.NewCode(unpacktest.DistClasses, unpacktest.Lengths, 100)
	c.Literal('a')
	c.LengthSlot(15)
	c.Raw().Bit(1)
	c.Raw().Byte(0xff)
	_, _, err := decompress(t, c.Finish(), nil)
	if !errors.Is(err, ErrUnsupported) || !errors.Is(err, decodeerr.ErrUnsupported) {
		t.Errorf("expected ErrUnsupported, got %v", err)
	}
	if errors.Is(err, decodeerr.ErrCorrupt) {
		t.Error("unsupported encoding reported as corruption")
	}
}

func TestTruncatedStream(t *testing.T) {
	c := unpacktest.NewCode(unpacktest.DistClasses, unpacktest.Lengths, 5)
	c.Literal('a', 'b')
	_, _, err := decompress(t, c.Finish(), nil)
	if !errors.Is(err, cursor.ErrShortData) {
		t.Errorf("expected ErrShortData, got %v", err)
	}
}

func TestDistanceSlot(t *testing.T) {
	cases := []struct {
		code uint
		n    int
		slot int
		ok   bool
	}{
		{0b00, 2, 0, true},
		{0b01, 2, 0, false},
		{0b11, 2, 0, false},
		{0b010, 3, 1, true},
		{0b011, 3, 2, true},
		{0b100, 3, 3, true},
		{0b101, 3, 4, true},
		{0b110, 3, 5, true},
		{0b111, 3, 0, false},
		{0b1110, 4, 6, true},
		{0b1111, 4, 7, true},
	}
	for _, tc := range cases {
		slot, ok := distanceSlot(tc.code, tc.n)
		if ok != tc.ok || (ok && slot != tc.slot) {
			t.Errorf("distanceSlot(%0*b) = %d, %v; expected %d, %v", tc.n, tc.code, slot, ok, tc.slot, tc.ok)
		}
	}

	for idx := range 16 {
		if got := lengthSlot(uint(idx/2), uint(idx%2)); got != idx {
			t.Errorf("lengthSlot for %d gave %d", idx, got)
		}
	}
}
