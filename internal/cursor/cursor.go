// Copyright (c) Elliot Nunn
// Licensed under the MIT license

// Package cursor reads fixed-size fields out of an in-memory image.
// A Cursor is a window onto a byte slice with a read position.
// Windows can be narrowed with Region but never widened,
// and every read either succeeds completely or returns ErrShortData.
package cursor

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

var ErrShortData = errors.New("insufficient data")

type Cursor struct {
	buf    []byte // the root image, shared by all regions
	off, n int    // window into buf
	pos    int    // relative to off
}

func New(b []byte) *Cursor {
	return &Cursor{buf: b, n: len(b)}
}

func (c *Cursor) Len() int       { return c.n }
func (c *Cursor) Pos() int       { return c.pos }
func (c *Cursor) Remaining() int { return c.n - c.pos }

// Abs is the read position as an offset into the root image.
func (c *Cursor) Abs() int { return c.off + c.pos }

func (c *Cursor) short(want int) error {
	return fmt.Errorf("%w: want %d bytes at offset %#x, have %d", ErrShortData, want, c.Abs(), c.Remaining())
}

func (c *Cursor) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = int64(c.pos) + offset
	case io.SeekEnd:
		abs = int64(c.n) + offset
	default:
		return int64(c.pos), errors.New("cursor: invalid whence")
	}
	if abs < 0 || abs > int64(c.n) {
		return int64(c.pos), fmt.Errorf("%w: seek to %d outside %d-byte region", ErrShortData, abs, c.n)
	}
	c.pos = int(abs)
	return abs, nil
}

func (c *Cursor) Skip(n int) error {
	if n < 0 || n > c.Remaining() {
		return c.short(n)
	}
	c.pos += n
	return nil
}

// Bytes returns the next n bytes without copying.
// The caller must not modify them.
func (c *Cursor) Bytes(n int) ([]byte, error) {
	if n < 0 || n > c.Remaining() {
		return nil, c.short(n)
	}
	start := c.off + c.pos
	c.pos += n
	return c.buf[start : start+n : start+n], nil
}

func (c *Cursor) U8() (uint8, error) {
	b, err := c.Bytes(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (c *Cursor) U16(order binary.ByteOrder) (uint16, error) {
	b, err := c.Bytes(2)
	if err != nil {
		return 0, err
	}
	return order.Uint16(b), nil
}

// Region returns a new Cursor over n bytes starting at off,
// relative to the start of this window (not the read position).
// The read position of c is unchanged.
func (c *Cursor) Region(off, n int) (*Cursor, error) {
	if off < 0 || n < 0 || off > c.n || n > c.n-off { // careful of overflow
		return nil, fmt.Errorf("%w: region %d+%d outside %d-byte window at %#x", ErrShortData, off, n, c.n, c.off)
	}
	return &Cursor{buf: c.buf, off: c.off + off, n: n}, nil
}
