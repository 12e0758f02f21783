package unpack

// blockSum is the stub's two-byte running sum: each byte is added into bl
// and bl into bh, both with end-around carry (add then adc 0).
func blockSum(p []byte) uint16 {
	var bl, bh uint8
	for _, ch := range p {
		bl = addc(bl, ch)
		bh = addc(bh, bl)
	}
	return uint16(bh)<<8 | uint16(bl)
}

func addc(a, b uint8) uint8 {
	s := uint16(a) + uint16(b)
	if s > 0xff {
		s++
	}
	return uint8(s)
}
