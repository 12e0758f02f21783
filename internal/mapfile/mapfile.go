// Package mapfile loads whole input files into memory,
// by mapping them where the platform allows.
package mapfile

import "os"

// A File is the read-only contents of a file on disk.
// Data must not be used after Close.
type File struct {
	Data  []byte
	unmap func([]byte) error
}

func (f *File) Close() error {
	data := f.Data
	f.Data = nil
	if f.unmap == nil || data == nil {
		return nil
	}
	return f.unmap(data)
}

func readWhole(name string) (*File, error) {
	b, err := os.ReadFile(name)
	if err != nil {
		return nil, err
	}
	return &File{Data: b}, nil
}
