package mz

import "fmt"

// Addr is a real-mode segment:offset pair.
type Addr struct {
	Offset  uint16
	Segment uint16
}

// Linear is the 20-bit address the pair resolves to.
func (a Addr) Linear() uint32 { return uint32(a.Segment)*16 + uint32(a.Offset) }

// Base is the start of the segment.
func (a Addr) Base() Addr { return Addr{Segment: a.Segment} }

func (a Addr) String() string { return fmt.Sprintf("%04X:%04X", a.Segment, a.Offset) }
