// Package resultcache remembers decoded issues by content.
//
// A small in-memory front sits ahead of an optional on-disk store,
// so a tree full of copies of the same file is only decoded once,
// and a second run over the same tree need not decode anything.
package resultcache

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/maphash"
	"log/slog"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/pebble/v2"
	"github.com/dgryski/go-tinylfu"
	"github.com/fxamacker/cbor/v2"
)

// schema changes whenever Key or Entry changes shape, to orphan old records
const schema = 2

// Key identifies an input file, the issue it was decoded as,
// and every other setting that shapes the decoded result.
type Key struct {
	Sum      uint64
	Issue    uint8
	Settings uint64
}

// KeyOf hashes the input and the settings it is decoded under.
// Settings is any canonical text naming the password and decoder options.
func KeyOf(raw []byte, issue int, settings string) Key {
	return Key{Sum: xxhash.Sum64(raw), Issue: uint8(issue), Settings: xxhash.Sum64String(settings)}
}

func (k Key) String() string { return fmt.Sprintf("%016x/%d/%016x", k.Sum, k.Issue, k.Settings) }

func (k Key) dbKey() []byte {
	b := []byte{schema}
	b = binary.BigEndian.AppendUint64(b, k.Sum)
	b = append(b, k.Issue)
	return binary.BigEndian.AppendUint64(b, k.Settings)
}

type Range struct {
	Offset uint64 `cbor:"1,keyasint"`
	Length uint64 `cbor:"2,keyasint"`
}

// Entry is everything needed to write out a decoded issue again.
type Entry struct {
	Executable []byte   `cbor:"1,keyasint"`
	Ranges     []Range  `cbor:"2,keyasint"`
	Articles   [][]byte `cbor:"3,keyasint"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("resultcache: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("resultcache: CBOR decoder initialization failed: " + err.Error())
	}
}

// A Cache is safe for concurrent use by multiple goroutines.
type Cache struct {
	mu  sync.Mutex
	mem *tinylfu.T[Key, *Entry]
	db  *pebble.DB // nil if there is no directory
}

var seed = maphash.MakeSeed()

func hasher(k Key) uint64 { return maphash.Comparable(seed, k) }

// Open creates a cache holding about n entries in memory,
// backed by a store in dir unless dir is empty.
func Open(dir string, n int) (*Cache, error) {
	n = max(n, 1)
	c := &Cache{mem: tinylfu.New[Key, *Entry](n, n*10, hasher)}
	if dir != "" {
		db, err := pebble.Open(dir, &pebble.Options{})
		if err != nil {
			return nil, fmt.Errorf("open result cache: %w", err)
		}
		c.db = db
	}
	return c, nil
}

func (c *Cache) Get(k Key) (*Entry, bool) {
	c.mu.Lock()
	e, ok := c.mem.Get(k)
	c.mu.Unlock()
	if ok || c.db == nil {
		return e, ok
	}

	val, closer, err := c.db.Get(k.dbKey())
	if err != nil {
		if !errors.Is(err, pebble.ErrNotFound) {
			slog.Warn("cacheReadFailed", "key", k.String(), "err", err)
		}
		return nil, false
	}
	defer closer.Close()

	e = new(Entry)
	if err := decMode.Unmarshal(val, e); err != nil {
		slog.Warn("cacheRecordBad", "key", k.String(), "err", err)
		return nil, false
	}
	c.mu.Lock()
	c.mem.Add(k, e)
	c.mu.Unlock()
	return e, true
}

func (c *Cache) Put(k Key, e *Entry) error {
	c.mu.Lock()
	c.mem.Add(k, e)
	c.mu.Unlock()
	if c.db == nil {
		return nil
	}

	val, err := encMode.Marshal(e)
	if err != nil {
		return err
	}
	return c.db.Set(k.dbKey(), val, pebble.NoSync)
}

func (c *Cache) Close() error {
	if c.db == nil {
		return nil
	}
	if err := c.db.Flush(); err != nil {
		c.db.Close()
		return err
	}
	return c.db.Close()
}
