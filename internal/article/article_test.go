package article

import (
	"bytes"
	"errors"
	"slices"
	"testing"

	"github.com/elliotnunn/UnSFX/internal/cursor"
	"github.com/elliotnunn/UnSFX/internal/decodeerr"
)

// loader is the instruction sequence that loads an article at seg:0
func loader(seg, size uint16) []byte {
	return []byte{
		0xb8, byte(seg), byte(seg >> 8),
		0x8e, 0xc0,
		0xb9, byte(size), byte(size >> 8),
		0x33, 0xff,
	}
}

func TestLocate(t *testing.T) {
	body := slices.Concat(
		[]byte{0xb8, 0xb8, 0x00},
		loader(0x0010, 0x0020),
		[]byte{0x90, 0xb8, 0x01, 0x02, 0x8e, 0xc1},
		loader(0x0020, 0x0005),
		loader(0x0010, 0x0020),
		loader(0x0123, 0xffff),
	)
	got, err := Locate(body)
	if err != nil {
		t.Fatal(err)
	}
	want := []Range{
		{Offset: 0x100, Length: 0x20},
		{Offset: 0x200, Length: 0x5},
		{Offset: 0x1230, Length: 0xffff},
	}
	if !slices.Equal(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestLocateMasked(t *testing.T) {
	// Any operand bytes match, fixed opcode bytes must be exact
	for _, pos := range []int{3, 4, 5, 8, 9} {
		b := loader(1, 1)
		b[pos] ^= 0x01
		if _, err := Locate(b); !errors.Is(err, ErrPatternNotFound) {
			t.Errorf("changed opcode byte %d still matched", pos)
		}
	}
	b := loader(0xffff, 0xffff)
	if got, err := Locate(b); err != nil || got[0].Offset != 0xffff0 {
		t.Errorf("operands were not masked: %v, %v", got, err)
	}
}

func TestLocateNotFound(t *testing.T) {
	for _, body := range [][]byte{nil, []byte("plain text"), loader(1, 1)[:9]} {
		_, err := Locate(body)
		if !errors.Is(err, ErrPatternNotFound) || !errors.Is(err, decodeerr.ErrFormat) {
			t.Errorf("expected ErrPatternNotFound for % x, got %v", body, err)
		}
	}
}

func TestExtract(t *testing.T) {
	body := []byte("0123456789")
	got, err := Extract(body, Range{Offset: 2, Length: 4})
	if err != nil || string(got) != "5432" {
		t.Errorf("expected reversed 5432, got %q, %v", got, err)
	}
	if body[2] != '2' {
		t.Error("Extract reversed the image in place")
	}

	for _, r := range []Range{{8, 3}, {11, 0}, {1 << 40, 1}, {0, 1 << 63}} {
		if _, err := Extract(body, r); !errors.Is(err, cursor.ErrShortData) {
			t.Errorf("%v: expected ErrShortData, got %v", r, err)
		}
	}
}

func TestDeriveKey(t *testing.T) {
	for _, pw := range []string{"A", "ABC", "ABCD", "LONGERPASSWORD"} {
		for issue, want := range map[int]int{1: 2 * len(pw), 2: 100, 3: 100, 4: 100} {
			key, err := DeriveKey(pw, issue)
			if err != nil {
				t.Fatal(err)
			}
			if len(key) != want {
				t.Errorf("issue %d key for %q is %d bytes, expected %d", issue, pw, len(key), want)
			}
		}
	}

	// 'B'-0x43 wraps
	key, _ := DeriveKey("AB", 1)
	if !bytes.Equal(key, []byte{'A', 'B', 0xff, 0xff}) {
		t.Errorf("issue 1: unexpected key % x", key)
	}

	key, _ = DeriveKey("ABCD", 3)
	want := []byte{'A' ^ 'D', 'B' ^ 'C', 'B', 'A'}
	if !bytes.Equal(key[:4], want) || key[4] != 2 || key[99] != 2 {
		t.Errorf("issue 3: unexpected key % x", key)
	}

	key, _ = DeriveKey("ABC", 4)
	want = []byte{'A' ^ 'C', 0, 'A'}
	if !bytes.Equal(key[:3], want) || key[3] != 2 {
		t.Errorf("issue 4: unexpected key % x", key)
	}

	// Padding byte is |last-0x43|, not wrapped
	key, _ = DeriveKey("\x01\x00", 3)
	if key[2] != 0x43-0x01 {
		t.Errorf("issue 3: expected padding %#x, got %#x", 0x43-0x01, key[2])
	}
}

func TestDeriveKeyErrors(t *testing.T) {
	for _, issue := range []int{-1, 0, 5, 100} {
		if _, err := DeriveKey("pw", issue); !errors.Is(err, ErrIssue) {
			t.Errorf("issue %d: expected ErrIssue, got %v", issue, err)
		}
	}
	if _, err := DeriveKey("", 1); !errors.Is(err, ErrPassword) {
		t.Errorf("expected ErrPassword, got %v", err)
	}
}

func TestSumByte(t *testing.T) {
	// 3*1 + 1*2, then 3*2 + 2*2
	if got := sumByte([]byte{1, 2}); got != 15 {
		t.Errorf("expected 15, got %d", got)
	}
	// index term wraps at 256
	key := make([]byte, 256)
	if got := sumByte(key); got != 0 {
		t.Errorf("expected the index terms to cancel, got %d", got)
	}
}

func TestDecrypt(t *testing.T) {
	plain := []byte("Dear reader, this is the editorial of the first issue.")
	for issue := 1; issue <= 4; issue++ {
		stored, err := Decrypt(plain, "SECRET", issue, 0)
		if err != nil {
			t.Fatal(err)
		}
		if bytes.Equal(stored, plain) {
			t.Fatalf("issue %d: cipher did nothing", issue)
		}
		again, _ := Decrypt(plain, "SECRET", issue, 0)
		if !bytes.Equal(stored, again) {
			t.Errorf("issue %d: not deterministic", issue)
		}
		got, _ := Decrypt(stored, "SECRET", issue, 0)
		if !bytes.Equal(got, plain) {
			t.Errorf("issue %d: expected %q, got %q", issue, plain, got)
		}
		wrong, _ := Decrypt(stored, "SECRXT", issue, 0)
		if bytes.Equal(wrong, plain) {
			t.Errorf("issue %d: wrong password decrypted", issue)
		}
	}
}

func TestDecryptMaxSize(t *testing.T) {
	blob := bytes.Repeat([]byte{0x55}, 40)
	all, _ := Decrypt(blob, "PW", 2, 0)
	part, err := Decrypt(blob, "PW", 2, 10)
	if err != nil || !bytes.Equal(part, all[:10]) {
		t.Errorf("truncated output is not a prefix: % x", part)
	}
	over, _ := Decrypt(blob, "PW", 2, 1000)
	if !bytes.Equal(over, all) {
		t.Error("large limit changed the output")
	}
}

func TestPasswords(t *testing.T) {
	p := DefaultPasswords
	if err := p.Merge(map[int]string{2: "OTHER", 3: ""}); err != nil {
		t.Fatal(err)
	}
	if pw, _ := p.Password(2); pw != "OTHER" {
		t.Errorf("override not applied: %q", pw)
	}
	if pw, _ := p.Password(3); pw != DefaultPasswords[3] {
		t.Errorf("empty override replaced the default: %q", pw)
	}
	if DefaultPasswords[2] == "OTHER" {
		t.Error("Merge changed the defaults")
	}
	if _, err := p.Password(0); !errors.Is(err, ErrIssue) {
		t.Errorf("issue 0: expected ErrIssue, got %v", err)
	}
	if err := p.Merge(map[int]string{7: "X"}); !errors.Is(err, ErrIssue) {
		t.Errorf("expected ErrIssue from Merge, got %v", err)
	}
}
