package unpack

import (
	"errors"
	"testing"

	"github.com/elliotnunn/UnSFX/internal/cursor"
	"github.com/elliotnunn/UnSFX/internal/unpack/unpacktest"
)

func TestBitOrder(t *testing.T) {
	// 0x8001 little-endian: first bit out is the top one
	b, err := NewBitCursor(cursor.New([]byte{0x01, 0x80}))
	if err != nil {
		t.Fatal(err)
	}
	v, err := b.Bits(16)
	if err != nil || v != 0x8001 {
		t.Errorf("expected 0x8001, got %#x, %v", v, err)
	}
	if !b.Empty() {
		t.Error("expected the cursor to be empty")
	}
	if _, err := b.Bit(); !errors.Is(err, cursor.ErrShortData) {
		t.Errorf("expected ErrShortData past the end, got %v", err)
	}
}

func TestBitsMSBFirst(t *testing.T) {
	b, _ := NewBitCursor(cursor.New([]byte{0x00, 0b1011_0000}))
	v, err := b.Bits(4)
	if err != nil || v != 0b1011 {
		t.Errorf("expected 0b1011, got %#b, %v", v, err)
	}
	if b.Empty() {
		t.Error("cursor with 12 cached bits reported empty")
	}
}

func TestInterleave(t *testing.T) {
	// Raw bytes sit wherever the reader happens to be when it asks for them
	w := unpacktest.NewWriter(nil)
	w.Bits(0b101, 3)
	w.Byte('x')
	w.Bits(0x1fff, 13) // completes the first word, so the next is reserved here
	w.Word(0xbeef)
	w.Bits(1, 1)
	stream := w.Finish()

	want := []byte{0xff, 0xbf, 'x', 0x00, 0x80, 0xef, 0xbe}
	if string(stream) != string(want) {
		t.Fatalf("unexpected layout % x", stream)
	}

	b, err := NewBitCursor(cursor.New(stream))
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := b.Bits(3); v != 0b101 {
		t.Errorf("first bits: %#b", v)
	}
	if v, _ := b.Byte(); v != 'x' {
		t.Errorf("raw byte: %q", v)
	}
	if v, _ := b.Bits(13); v != 0x1fff {
		t.Errorf("rest of word: %#x", v)
	}
	if v, _ := b.Word(); v != 0xbeef {
		t.Errorf("raw word: %#x", v)
	}
	if v, err := b.Bit(); v != 1 || err != nil {
		t.Errorf("bit from second word: %d, %v", v, err)
	}
}

func TestNoRefillAtEnd(t *testing.T) {
	// One trailing byte is not enough for a word, so it stays readable raw
	b, _ := NewBitCursor(cursor.New([]byte{0xff, 0xff, 'z'}))
	if v, _ := b.Bits(16); v != 0xffff {
		t.Errorf("expected all ones, got %#x", v)
	}
	if v, err := b.Byte(); v != 'z' || err != nil {
		t.Errorf("expected trailing byte, got %q, %v", v, err)
	}
	if !b.Empty() {
		t.Error("expected empty")
	}
}

func TestShortFirstWord(t *testing.T) {
	_, err := NewBitCursor(cursor.New([]byte{1}))
	if !errors.Is(err, cursor.ErrShortData) {
		t.Errorf("expected ErrShortData, got %v", err)
	}
}
