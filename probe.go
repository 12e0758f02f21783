package main

import (
	"bytes"
	"compress/bzip2"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/therootcompany/xz"
)

const maxWrapping = 4 // an .EXE.gz inside a .tar.zst is as deep as anyone goes

var ErrTooLarge = errors.New("unwrapped input exceeds memory limit")

// unwrap strips compression wrappers from an input, returning the innermost
// bytes and the chain of wrappers it removed, outermost first.
// Anything without a recognised signature is returned as is.
func unwrap(raw []byte, limit int) ([]byte, []string, error) {
	var chain []string
	for range maxWrapping {
		kind, open := probe(raw)
		if open == nil {
			break
		}
		r, err := open(bytes.NewReader(raw))
		if err != nil {
			return nil, chain, fmt.Errorf("%s: %w", kind, err)
		}
		inner, err := io.ReadAll(io.LimitReader(r, int64(limit)+1))
		if c, ok := r.(io.Closer); ok {
			c.Close()
		}
		if err != nil {
			return nil, chain, fmt.Errorf("%s: %w", kind, err)
		}
		if len(inner) > limit {
			return nil, chain, fmt.Errorf("%w: %s stream over %d bytes", ErrTooLarge, kind, limit)
		}
		chain = append(chain, kind)
		raw = inner
	}
	return raw, chain, nil
}

type opener func(io.Reader) (io.Reader, error)

func probe(header []byte) (string, opener) {
	matchAt := func(s string, offset int) bool {
		return len(header) >= offset+len(s) && string(header[offset:][:len(s)]) == s
	}

	switch {
	case matchAt("\x1f\x8b", 0):
		return "gzip", func(r io.Reader) (io.Reader, error) { return gzip.NewReader(r) }
	case matchAt("BZh", 0):
		return "bzip2", func(r io.Reader) (io.Reader, error) { return bzip2.NewReader(r), nil }
	case matchAt("\xfd7zXZ\x00", 0):
		return "xz", func(r io.Reader) (io.Reader, error) { return xz.NewReader(r, xz.DefaultDictMax) }
	case matchAt("\x28\xb5\x2f\xfd", 0):
		return "zstd", func(r io.Reader) (io.Reader, error) {
			d, err := zstd.NewReader(r)
			if err != nil {
				return nil, err
			}
			return d.IOReadCloser(), nil
		}
	case matchAt("\x04\x22\x4d\x18", 0):
		return "lz4", func(r io.Reader) (io.Reader, error) { return lz4.NewReader(r), nil }
	}
	return "", nil
}

// stem names the output directory for an input file
func stem(name string) string {
	base := name[strings.LastIndexAny(name, `/\`)+1:]
	base = changeSuffix(base, ".gz .gzip .bz2 .bz .xz .zst .lz4")
	base = changeSuffix(base, ".exe .EXE .com .COM")
	if base == "" {
		return "input"
	}
	return base
}

func changeSuffix(s string, suffixes string) string {
	for _, rule := range strings.Split(suffixes, " ") {
		from, to, _ := strings.Cut(rule, "=")
		if strings.HasSuffix(s, from) && len(s) > len(from) {
			return s[:len(s)-len(from)] + to
		}
	}
	return s
}
