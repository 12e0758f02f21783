package article

import (
	"errors"
	"fmt"
)

var ErrPassword = errors.New("empty password")

const (
	keyLength = 100
	keyBias   = 0x43
)

// DeriveKey expands a password the way the viewer for that issue does.
// Issue 1 doubles the password, issue 2 pads it to 100 bytes,
// and issues 3 and 4 fold it on itself before padding.
func DeriveKey(password string, issue int) ([]byte, error) {
	if err := CheckIssue(issue); err != nil {
		return nil, err
	}
	if password == "" {
		return nil, ErrPassword
	}
	pw := []byte(password)
	n := len(pw)

	switch issue {
	case 1:
		return padKey(pw, pw[n-1]-keyBias, 2*n), nil
	case 2:
		return padKey(pw, pw[n-1]-keyBias, keyLength), nil
	default:
		key := make([]byte, 0, keyLength)
		for i := range (n + 1) / 2 {
			key = append(key, pw[i]^pw[n-1-i])
		}
		for i := range n / 2 {
			key = append(key, pw[n/2-i-1])
		}
		last := int(key[len(key)-1]) - keyBias
		if last < 0 {
			last = -last
		}
		return padKey(key, byte(last), keyLength), nil
	}
}

// padKey appends fill until key is size bytes long. A key already that long is left alone.
func padKey(key []byte, fill byte, size int) []byte {
	for len(key) < size {
		key = append(key, fill)
	}
	return key
}

func sumByte(key []byte) byte {
	var sum byte
	for i, k := range key {
		sum += 3*k + byte(i+1)*2
	}
	return sum
}

// Decrypt deciphers an article that has already been reversed by Extract.
// Only the first maxSize bytes are produced if maxSize is positive.
// The cipher is a plain XOR keystream, so Decrypt also encrypts.
func Decrypt(blob []byte, password string, issue int, maxSize int) ([]byte, error) {
	key, err := DeriveKey(password, issue)
	if err != nil {
		return nil, err
	}
	passFactor := sumByte(key) ^ byte(0xed-len(key))

	n := len(blob)
	if maxSize > 0 {
		n = min(n, maxSize)
	}
	out := make([]byte, n)
	for i := range out {
		rem := len(blob) - i
		firstMod := rem % (len(key) + 0x6f)
		byteFactor := key[rem%len(key)] ^ byte(firstMod)
		out[i] = blob[i] ^ passFactor ^ byteFactor
	}
	return out, nil
}

// CheckIssue rejects issue numbers with no entry in the password table.
func CheckIssue(issue int) error {
	if issue < 1 || issue >= len(Passwords{}) {
		return fmt.Errorf("%w: %d", ErrIssue, issue)
	}
	return nil
}
