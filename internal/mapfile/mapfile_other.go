//go:build !unix

package mapfile

func Open(name string) (*File, error) { return readWhole(name) }
