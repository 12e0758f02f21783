package unpack

import (
	"fmt"

	"github.com/elliotnunn/UnSFX/internal/cursor"
	"github.com/elliotnunn/UnSFX/internal/decodeerr"
	"github.com/elliotnunn/UnSFX/internal/mz"
)

const (
	relocTableSize = 16
	maxDeltaOnes   = 15
)

// Relocations decodes a fixup block, appending to relocs.
//
// The block is a list of runs. Each run has three raw words (a counter, a
// segment and a starting offset) and then counter-1 fixups in that segment,
// each followed by a delta to the next offset. A zero counter ends the list.
func Relocations(payload *cursor.Cursor, relocs []mz.Addr) ([]mz.Addr, error) {
	table, err := payload.Bytes(relocTableSize)
	if err != nil {
		return relocs, err
	}
	br, err := NewBitCursor(payload)
	if err != nil {
		return relocs, err
	}

	for {
		counter, err := br.Word()
		if err != nil {
			return relocs, err
		}
		if counter == 0 {
			return relocs, nil
		}
		seg, err := br.Word()
		if err != nil {
			return relocs, err
		}
		addr, err := br.Word()
		if err != nil {
			return relocs, err
		}

		for ; counter > 1; counter-- {
			relocs = append(relocs, mz.Addr{Offset: addr, Segment: seg})

			idx, err := readDeltaSlot(br)
			if err != nil {
				return relocs, err
			}
			if idx >= len(table) || table[idx] >= 16 {
				return relocs, fmt.Errorf("%w: bad fixup delta class %d", decodeerr.ErrCorrupt, idx)
			}
			delta, err := relocDelta(br, table[idx])
			if err != nil {
				return relocs, err
			}
			// The delta after the last fixup of a run is never applied
			next := uint32(addr) + uint32(delta)
			if next > 0xffff && counter > 2 {
				return relocs, fmt.Errorf("%w: fixup offset overflows segment %04X", decodeerr.ErrCorrupt, seg)
			}
			addr = uint16(next)
		}
	}
}

// deltaSlot maps the two-bit class and any following run of ones to an R index.
func deltaSlot(two uint, ones int) int {
	if two < 3 {
		return int(two)
	}
	return 3 + ones
}

func readDeltaSlot(br *BitCursor) (int, error) {
	two, err := br.Bits(2)
	if err != nil || two < 3 {
		return deltaSlot(two, 0), err
	}
	ones := 0
	for ones < maxDeltaOnes {
		bit, err := br.Bit()
		if err != nil {
			return 0, err
		}
		if bit == 0 {
			break
		}
		ones++
	}
	return deltaSlot(two, ones), nil
}

func relocDelta(br *BitCursor, t uint8) (uint, error) {
	if t == 0 {
		return 1, nil
	}
	bits, err := br.Bits(int(t))
	return 1<<t | bits, err
}
