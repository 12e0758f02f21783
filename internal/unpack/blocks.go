package unpack

import (
	"encoding/binary"
	"fmt"
	"io"
	"iter"

	"github.com/elliotnunn/UnSFX/internal/cursor"
	"github.com/elliotnunn/UnSFX/internal/decodeerr"
)

const (
	BlockEnd   = 0
	BlockCode  = 1 // LZ compressed load module
	BlockReloc = 2 // delta coded fixup list

	bodyPrefix = 6 // stub data ahead of the first block
)

var ErrBlockChecksum = fmt.Errorf("%w: block checksum mismatch", decodeerr.ErrFormat)

type ChecksumError struct {
	Offset           int // of the block type byte, within the body
	Expected, Actual uint16
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("block at %#x: checksum %#04x, expected %#04x", e.Offset, e.Actual, e.Expected)
}

func (e *ChecksumError) Unwrap() error { return ErrBlockChecksum }

// A Block is a view of one typed, checksummed unit of the packed body.
type Block struct {
	Type     uint8
	Checksum uint16
	Offset   int            // of the type byte
	Region   *cursor.Cursor // starts at the size field, which it includes
}

// Payload is the block after its size field.
func (b Block) Payload() *cursor.Cursor {
	p, _ := b.Region.Region(2, b.Region.Len()-2)
	return p
}

// Blocks walks the block list of a packed body.
// Checksums are verified until one pass has reached the terminator cleanly.
type Blocks struct {
	body      []byte
	validated bool
}

func NewBlocks(body []byte) *Blocks {
	return &Blocks{body: body}
}

func (bs *Blocks) Validated() bool { return bs.validated }

// All returns a one-shot sequence of blocks, stopping at the terminator.
// After an error is yielded the sequence ends.
func (bs *Blocks) All() iter.Seq2[Block, error] {
	c := cursor.New(bs.body)
	done := false
	return func(yield func(Block, error) bool) {
		if done {
			return
		}
		done = true

		if err := c.Skip(bodyPrefix); err != nil {
			yield(Block{}, err)
			return
		}
		for {
			blk, err := bs.next(c)
			if err != nil {
				yield(Block{}, err)
				return
			}
			if blk.Type == BlockEnd {
				bs.validated = true
				return
			}
			if !yield(blk, nil) {
				return
			}
		}
	}
}

func (bs *Blocks) next(c *cursor.Cursor) (Block, error) {
	blk := Block{Offset: c.Abs()}
	var err error
	if blk.Type, err = c.U8(); err != nil || blk.Type == BlockEnd {
		return blk, err
	}
	if blk.Checksum, err = c.U16(binary.LittleEndian); err != nil {
		return blk, err
	}

	at := c.Pos()
	size, err := c.U16(binary.LittleEndian)
	if err != nil {
		return blk, err
	}
	if size < 2 {
		return blk, fmt.Errorf("%w: block at %#x has size %d", decodeerr.ErrFormat, blk.Offset, size)
	}
	if blk.Region, err = c.Region(at, int(size)); err != nil {
		return blk, err
	}
	c.Seek(int64(at)+int64(size), io.SeekStart)

	if !bs.validated {
		p, _ := blk.Region.Bytes(int(size))
		blk.Region.Seek(0, io.SeekStart)
		if got := blockSum(p); got != blk.Checksum {
			return blk, &ChecksumError{Offset: blk.Offset, Expected: blk.Checksum, Actual: got}
		}
	}
	return blk, nil
}
