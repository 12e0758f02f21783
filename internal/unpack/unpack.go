// Copyright (c) Elliot Nunn
// Licensed under the MIT license

// Package unpack rebuilds the load module hidden inside a packed executable.
//
// The packed body is a short stub prefix followed by checksummed blocks:
// LZ compressed code and delta coded relocations. Code blocks share one
// output buffer, so a back-reference may reach into an earlier block.
package unpack

import (
	"encoding/binary"
	"fmt"
	"log/slog"

	"github.com/elliotnunn/UnSFX/internal/decodeerr"
	"github.com/elliotnunn/UnSFX/internal/mz"
)

// DefaultEntryOffset is where the unpacked image keeps its CS:IP,
// as the operand of the far jump at its first byte.
const DefaultEntryOffset = 1

type Options struct {
	EntryOffset int // zero means DefaultEntryOffset
}

// Unpack decodes every block of src and assembles a new container.
// Nothing is returned on error, so a partial image is never mistaken for a good one.
func Unpack(src *mz.Container, opts Options) (*mz.Container, error) {
	if opts.EntryOffset == 0 {
		opts.EntryOffset = DefaultEntryOffset
	}

	bs := NewBlocks(src.Body)

	// First pass: size the output and check every block
	total := 0
	for blk, err := range bs.All() {
		if err != nil {
			return nil, err
		}
		if blk.Type == BlockCode {
			n, err := UncompressedSize(blk.Region)
			if err != nil {
				return nil, fmt.Errorf("code block at %#x: %w", blk.Offset, err)
			}
			total += n
		}
	}
	slog.Debug("blocksValidated", "bodySize", len(src.Body), "unpackedSize", total)

	out := make([]byte, 0, total)
	var relocs []mz.Addr
	for blk, err := range bs.All() {
		if err != nil {
			return nil, err
		}
		switch blk.Type {
		case BlockCode:
			var n int
			out, n, err = Decompress(blk.Payload(), out)
			if err != nil {
				return nil, fmt.Errorf("code block at %#x: %w", blk.Offset, err)
			}
			slog.Debug("codeBlock", "offset", blk.Offset, "produced", n)
		case BlockReloc:
			before := len(relocs)
			relocs, err = Relocations(blk.Payload(), relocs)
			if err != nil {
				return nil, fmt.Errorf("relocation block at %#x: %w", blk.Offset, err)
			}
			slog.Debug("relocBlock", "offset", blk.Offset, "fixups", len(relocs)-before)
		default:
			slog.Warn("blockSkipped", "type", blk.Type, "offset", blk.Offset)
		}
	}

	entry, err := entryPoint(out, opts.EntryOffset)
	if err != nil {
		return nil, err
	}
	return mz.Build(out, relocs, entry, src.Stack(), src.MinAlloc, src.MaxAlloc)
}

func entryPoint(code []byte, at int) (mz.Addr, error) {
	if at < 0 || at+4 > len(code) {
		return mz.Addr{}, fmt.Errorf("%w: no entry point at %#x in %d bytes of code", decodeerr.ErrFormat, at, len(code))
	}
	return mz.Addr{
		Offset:  binary.LittleEndian.Uint16(code[at:]),
		Segment: binary.LittleEndian.Uint16(code[at+2:]),
	}, nil
}
