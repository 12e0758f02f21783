// Package zine turns a packed issue executable into a runnable program and its articles.
package zine

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/elliotnunn/UnSFX/internal/article"
	"github.com/elliotnunn/UnSFX/internal/cursor"
	"github.com/elliotnunn/UnSFX/internal/decodeerr"
	"github.com/elliotnunn/UnSFX/internal/mz"
	"github.com/elliotnunn/UnSFX/internal/unpack"
)

type Options struct {
	Issue       int
	Passwords   *article.Passwords // nil means article.DefaultPasswords
	EntryOffset int                // see unpack.Options
	MaxArticle  int                // if positive, articles are cut to this many bytes
}

type Result struct {
	Container *mz.Container
	Ranges    []article.Range
	Articles  [][]byte // plaintext in the issue's code page, one per range
}

// Decode unpacks raw and decrypts every article in it.
// The issue is checked before any other work is done.
func Decode(raw []byte, opts Options) (*Result, error) {
	pws := opts.Passwords
	if pws == nil {
		pws = &article.DefaultPasswords
	}
	password, err := pws.Password(opts.Issue)
	if err != nil {
		return nil, err
	}

	src, err := mz.Parse(raw)
	if err != nil {
		return nil, err
	}
	img, err := unpack.Unpack(src, unpack.Options{EntryOffset: opts.EntryOffset})
	if err != nil {
		return nil, err
	}
	ranges, err := article.Locate(img.Body)
	if err != nil {
		return nil, err
	}

	res := &Result{Container: img, Ranges: ranges}
	for i, r := range ranges {
		blob, err := article.Extract(img.Body, r)
		if err != nil {
			return nil, fmt.Errorf("article %d: %w", i, err)
		}
		text, err := article.Decrypt(blob, password, opts.Issue, opts.MaxArticle)
		if err != nil {
			return nil, err
		}
		slog.Debug("articleDecrypted", "index", i, "range", r.String(), "size", len(text))
		res.Articles = append(res.Articles, text)
	}
	return res, nil
}

// Kind names the category of a decoding error, for logs and exit codes.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, article.ErrIssue), errors.Is(err, article.ErrPassword):
		return "issue"
	case errors.Is(err, decodeerr.ErrUnsupported):
		return "unsupported"
	case errors.Is(err, decodeerr.ErrCorrupt):
		return "corrupt"
	case errors.Is(err, decodeerr.ErrFormat):
		return "format"
	case errors.Is(err, cursor.ErrShortData):
		return "resource"
	default:
		return "other"
	}
}
