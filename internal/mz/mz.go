// Copyright (c) Elliot Nunn
// Licensed under the MIT license

// Package mz reads and writes DOS "MZ" executables:
// a paragraph-aligned header, a table of segment fixups, and a load module.
package mz

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"slices"

	"github.com/elliotnunn/UnSFX/internal/cursor"
	"github.com/elliotnunn/UnSFX/internal/decodeerr"
)

var (
	ErrBadMagic           = fmt.Errorf("%w: not an MZ executable", decodeerr.ErrFormat)
	ErrUnsupportedOverlay = fmt.Errorf("%w: overlay executables are not supported", decodeerr.ErrFormat)
	ErrInvalidHeaderSize  = fmt.Errorf("%w: header smaller than its fixed fields", decodeerr.ErrFormat)
	ErrTooLarge           = fmt.Errorf("%w: image does not fit the MZ header fields", decodeerr.ErrUnsupported)
)

const (
	Magic      = 0x5a4d // "MZ"
	fixedSize  = 0x1c
	pageSize   = 512
	paragraph  = 16
	relocEntry = 4
	maxCount   = 0xffff
)

// Header is the fixed part of the on-disk header, in file order.
type Header struct {
	Magic         uint16
	LastPageBytes uint16 // 0 means the last page is full
	Pages         uint16
	NumRelocs     uint16
	HeaderParas   uint16
	MinAlloc      uint16
	MaxAlloc      uint16
	SS, SP        uint16
	Checksum      uint16 // never checked by DOS, ignored here too
	IP, CS        uint16
	RelocOffset   uint16
	Overlay       uint16
}

func (h *Header) Entry() Addr { return Addr{Offset: h.IP, Segment: h.CS} }
func (h *Header) Stack() Addr { return Addr{Offset: h.SP, Segment: h.SS} }

// ImageSize is the file size implied by the page fields, header included.
func (h *Header) ImageSize() int {
	n := int(h.Pages) * pageSize
	if h.LastPageBytes != 0 && h.Pages != 0 {
		n -= pageSize - int(h.LastPageBytes)
	}
	return n
}

// A Container is either parsed from a file (and then only read)
// or assembled by Build (and then only serialized).
type Container struct {
	Header
	Relocs []Addr
	Body   []byte
	Head   []byte // the whole header including the fixup table and padding
}

func Parse(b []byte) (*Container, error) {
	c := cursor.New(b)
	fixed, err := c.Bytes(fixedSize)
	if err != nil {
		if len(b) >= 2 && binary.LittleEndian.Uint16(b) != Magic {
			return nil, ErrBadMagic
		}
		return nil, err
	}

	var h Header
	binary.Read(bytes.NewReader(fixed), binary.LittleEndian, &h)
	if h.Magic != Magic {
		return nil, ErrBadMagic
	}
	if h.Overlay != 0 {
		return nil, fmt.Errorf("%w: overlay %d", ErrUnsupportedOverlay, h.Overlay)
	}
	headerSize := int(h.HeaderParas) * paragraph
	if headerSize < fixedSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidHeaderSize, headerSize)
	}

	head, err := c.Region(0, headerSize)
	if err != nil {
		return nil, err
	}

	table, err := c.Region(int(h.RelocOffset), int(h.NumRelocs)*relocEntry)
	if err != nil {
		return nil, fmt.Errorf("relocation table: %w", err)
	}
	relocs := make([]Addr, 0, h.NumRelocs)
	for range h.NumRelocs {
		off, _ := table.U16(binary.LittleEndian)
		seg, _ := table.U16(binary.LittleEndian)
		relocs = append(relocs, Addr{Offset: off, Segment: seg})
	}

	// Known packed files are padded by one byte past what their page fields
	// describe, so the last byte of the file is deliberately not read.
	bodyLen := min(len(b)-headerSize-1, h.ImageSize()-headerSize)
	bodyLen = max(bodyLen, 0)
	body, err := c.Region(headerSize, bodyLen)
	if err != nil {
		return nil, err
	}
	headBytes, _ := head.Bytes(headerSize)
	bodyBytes, _ := body.Bytes(body.Len())

	return &Container{
		Header: h,
		Relocs: relocs,
		Body:   bodyBytes,
		Head:   headBytes,
	}, nil
}

// Build assembles a new executable around a load module.
// The body and fixup list are copied.
// More than 65535 fixups or pages is ErrTooLarge.
func Build(body []byte, relocs []Addr, entry, stack Addr, minAlloc, maxAlloc uint16) (*Container, error) {
	if len(relocs) > maxCount {
		return nil, fmt.Errorf("%w: %d relocations", ErrTooLarge, len(relocs))
	}
	headerSize := fixedSize + len(relocs)*relocEntry
	headerSize = (headerSize + paragraph - 1) &^ (paragraph - 1)

	total := headerSize + len(body)
	if total > maxCount*pageSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, total)
	}
	h := Header{
		Magic:         Magic,
		LastPageBytes: uint16(total % pageSize),
		Pages:         uint16((total + pageSize - 1) / pageSize),
		NumRelocs:     uint16(len(relocs)),
		HeaderParas:   uint16(headerSize / paragraph),
		MinAlloc:      minAlloc,
		MaxAlloc:      maxAlloc,
		SS:            stack.Segment,
		SP:            stack.Offset,
		IP:            entry.Offset,
		CS:            entry.Segment,
		RelocOffset:   fixedSize,
	}

	head := make([]byte, headerSize) // zero padded
	binary.Encode(head, binary.LittleEndian, &h)
	for i, r := range relocs {
		binary.LittleEndian.PutUint16(head[fixedSize+relocEntry*i:], r.Offset)
		binary.LittleEndian.PutUint16(head[fixedSize+relocEntry*i+2:], r.Segment)
	}

	return &Container{
		Header: h,
		Relocs: slices.Clone(relocs),
		Body:   slices.Clone(body),
		Head:   head,
	}, nil
}

// Bytes serializes the container. One byte of slack follows the image
// so that Parse, which never reads the final byte, recovers the whole body.
func (c *Container) Bytes() []byte {
	ret := make([]byte, 0, len(c.Head)+len(c.Body)+1)
	ret = append(ret, c.Head...)
	ret = append(ret, c.Body...)
	return append(ret, 0)
}
