// Package walk lists the regular files in a tree, in the order they likely sit on disk.
package walk

import (
	"fmt"
	"io/fs"
	"path"
	"sort"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
)

var ErrBadPattern = doublestar.ErrBadPattern

// FilesInDiskOrder walks fsys and sends every regular file matching glob.
// An empty glob matches everything. The first return value names the sort key used.
func FilesInDiskOrder(fsys fs.FS, glob string) (string, <-chan string, error) {
	if glob != "" && !doublestar.ValidatePattern(glob) {
		return "", nil, fmt.Errorf("%w: %q", ErrBadPattern, glob)
	}
	waysort, ch := sortPaths(fsys, walkAsync(fsys, glob))
	return waysort, ch, nil
}

func walkAsync(fsys fs.FS, glob string) <-chan string {
	ch, wg := make(chan string), new(sync.WaitGroup)
	wg.Add(1)
	go recurse(fsys, ".", glob, ch, wg)
	go func() { wg.Wait(); close(ch) }()
	return ch
}

func recurse(fsys fs.FS, name, glob string, ch chan<- string, wg *sync.WaitGroup) {
	defer wg.Done()
	f, err := fsys.Open(name)
	if err != nil {
		return
	}
	defer f.Close()
	dir, ok := f.(fs.ReadDirFile)
	if !ok {
		panic(fmt.Sprintf("%q is a %T, does not satisfy ReadDirFile", name, f))
	}
	for {
		l, err := dir.ReadDir(10)
		for _, de := range l {
			p := path.Join(name, de.Name())
			switch de.Type() {
			case fs.ModeDir:
				wg.Add(1)
				go recurse(fsys, p, glob, ch, wg)
			case 0: // regular file
				if glob == "" || doublestar.MatchUnvalidated(glob, p) {
					ch <- p
				}
			}
		}
		if err != nil {
			return
		}
	}
}

// If there is no obvious sort key for the files,
// then the return will be synchronous
func sortPaths(fsys fs.FS, ch <-chan string) (string, <-chan string) {
	out := make(chan string)
	f1, ok := <-ch
	if !ok {
		close(out)
		return "no-files", out
	}

	var (
		k1      uint64
		waysort string
		cansort bool
	)
	stat1, err := fs.Stat(fsys, f1)
	if err != nil {
		waysort = err.Error()
	} else {
		k1, waysort, cansort = getkey(stat1)
		if !cansort {
			waysort = "walk-order"
		}
	}

	if !cansort {
		go func() {
			defer close(out)
			out <- f1
			for f := range ch {
				out <- f
			}
		}()
		return waysort, out
	}

	go func() {
		defer close(out)
		sortlist := fileSlice{file{path: f1, key: k1}}
		for f := range ch {
			el := file{path: f}
			if info, err := fs.Stat(fsys, f); err == nil {
				el.key, _, _ = getkey(info)
			}
			sortlist = append(sortlist, el)
		}
		sort.Stable(sortlist)
		for _, f := range sortlist {
			out <- f.path
		}
	}()
	return waysort, out
}

type fileSlice []file
type file struct {
	path string
	key  uint64
}

func (x fileSlice) Len() int { return len(x) }
func (x fileSlice) Less(i, j int) bool {
	if x[i].key != x[j].key {
		return x[i].key < x[j].key
	}
	return x[i].path < x[j].path
}
func (x fileSlice) Swap(i, j int) { x[i], x[j] = x[j], x[i] }

func getkey(i fs.FileInfo) (uint64, string, bool) {
	if ino, ok := tryInode(i); ok { // intended as a vague proxy for "order on disk"
		return ino, "inode-number", true
	}

	switch t := i.Sys().(type) {
	case interface{ ByteOffset() int64 }:
		return uint64(t.ByteOffset()), "byte-offset", true
	case interface{ Inode() uint64 }:
		return t.Inode(), "inode-number", true
	}
	return 0, "", false
}

var tryInode = func(i fs.FileInfo) (uint64, bool) { return 0, false }
