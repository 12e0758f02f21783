package main

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sync"

	"github.com/zeebo/blake3"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"gopkg.in/yaml.v3"

	"github.com/elliotnunn/UnSFX/internal/resultcache"
)

var encodings = map[string]encoding.Encoding{
	"cp866":  charmap.CodePage866,
	"cp437":  charmap.CodePage437,
	"cp1251": charmap.Windows1251,
	"koi8r":  charmap.KOI8R,
	"raw":    nil,
}

func lookupEncoding(name string) (encoding.Encoding, error) {
	e, ok := encodings[name]
	if !ok {
		return nil, fmt.Errorf("unknown encoding %q", name)
	}
	return e, nil
}

// transcode converts article text from a legacy code page to UTF-8.
// A nil encoding leaves the bytes alone.
func transcode(p []byte, enc encoding.Encoding) ([]byte, error) {
	if enc == nil {
		return p, nil
	}
	return enc.NewDecoder().Bytes(p)
}

type manifest struct {
	Source     string          `yaml:"source"`
	Key        string          `yaml:"key"`
	Wrappers   []string        `yaml:"wrappers,omitempty"`
	Encoding   string          `yaml:"encoding"`
	Executable outputFile      `yaml:"executable"`
	Articles   []articleRecord `yaml:"articles"`
}

type outputFile struct {
	Name   string `yaml:"name"`
	Size   int    `yaml:"size"`
	Blake3 string `yaml:"blake3"`
}

type articleRecord struct {
	outputFile `yaml:",inline"`
	Offset     uint64 `yaml:"offset"`
	Length     uint64 `yaml:"length"`
}

// An output is one decoded input, ready to be written out.
type output struct {
	source   string // slash-separated, relative to the batch root
	origin   string // the file actually opened
	key      resultcache.Key
	wrappers []string
	entry    *resultcache.Entry
}

// claims hands out one output directory per input file.
// A.EXE, A.COM and A.EXE.gz share a stem, so all but the first
// to claim A get A~2, A~3 and so on.
type claims struct {
	mu sync.Mutex
	by map[string]string // directory -> origin
}

func (c *claims) claim(dir, origin string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.by == nil {
		c.by = make(map[string]string)
	}
	try := dir
	for n := 2; ; n++ {
		if owner, taken := c.by[try]; !taken || owner == origin {
			c.by[try] = origin
			if try != dir {
				slog.Warn("outputRenamed", "file", origin, "dir", try, "clashesWith", c.by[dir])
			}
			return try
		}
		try = fmt.Sprintf("%s~%d", dir, n)
	}
}

func digest(p []byte) string {
	sum := blake3.Sum256(p)
	return hex.EncodeToString(sum[:])
}

// write creates <dir>/<source dir>/<stem>/ holding the executable,
// the articles and a manifest. The directory is claimed from dirs first.
func (o *output) write(dir, encName string, dirs *claims) (string, error) {
	enc, err := lookupEncoding(encName)
	if err != nil {
		return "", err
	}
	s := stem(o.source)
	sub := dirs.claim(filepath.Join(dir, filepath.FromSlash(path.Dir(o.source)), s), o.origin)
	if err := os.MkdirAll(sub, 0o755); err != nil {
		return "", err
	}

	put := func(name string, data []byte) (outputFile, error) {
		err := os.WriteFile(filepath.Join(sub, name), data, 0o644)
		return outputFile{Name: name, Size: len(data), Blake3: digest(data)}, err
	}

	m := manifest{
		Source:   o.source,
		Key:      o.key.String(),
		Wrappers: o.wrappers,
		Encoding: encName,
	}
	if m.Executable, err = put(s+".EXE", o.entry.Executable); err != nil {
		return "", err
	}
	for i, a := range o.entry.Articles {
		text, err := transcode(a, enc)
		if err != nil {
			return "", fmt.Errorf("article %d: %w", i, err)
		}
		f, err := put(fmt.Sprintf("article-%02d.txt", i+1), text)
		if err != nil {
			return "", err
		}
		rec := articleRecord{outputFile: f}
		if i < len(o.entry.Ranges) {
			rec.Offset, rec.Length = o.entry.Ranges[i].Offset, o.entry.Ranges[i].Length
		}
		m.Articles = append(m.Articles, rec)
	}

	y, err := yaml.Marshal(&m)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(sub, "manifest.yaml"), y, 0o644); err != nil {
		return "", err
	}
	return sub, nil
}
