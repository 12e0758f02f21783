package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/elliotnunn/UnSFX/internal/article"
	"github.com/elliotnunn/UnSFX/internal/mapfile"
	"github.com/elliotnunn/UnSFX/internal/resultcache"
	"github.com/elliotnunn/UnSFX/internal/walk"
	"github.com/elliotnunn/UnSFX/internal/zine"
)

type decoder struct {
	cfg    *Config
	pws    article.Passwords
	cache  *resultcache.Cache
	dryRun bool
	dirs   claims

	ok, failed atomic.Int64
}

func entryOf(res *zine.Result) *resultcache.Entry {
	e := &resultcache.Entry{
		Executable: res.Container.Bytes(),
		Articles:   res.Articles,
	}
	for _, r := range res.Ranges {
		e.Ranges = append(e.Ranges, resultcache.Range{Offset: r.Offset, Length: r.Length})
	}
	return e
}

// decodeFile handles one input. The display name is slash-separated,
// and is what issue rules match and what the output tree mirrors.
func (d *decoder) decodeFile(name, display string) error {
	f, err := mapfile.Open(name)
	if err != nil {
		return err
	}
	defer f.Close()

	raw, wrappers, err := unwrap(f.Data, memLimit)
	if err != nil {
		return err
	}
	issue := d.cfg.IssueFor(display)
	key := resultcache.KeyOf(raw, issue, d.settings(issue))

	e, hit := d.cache.Get(key)
	if !hit {
		res, err := zine.Decode(raw, zine.Options{
			Issue:       issue,
			Passwords:   &d.pws,
			EntryOffset: d.cfg.EntryOffset,
			MaxArticle:  d.cfg.MaxArticle,
		})
		if err != nil {
			return err
		}
		e = entryOf(res)
		if err := d.cache.Put(key, e); err != nil {
			slog.Warn("cacheWriteFailed", "file", display, "err", err)
		}
	}
	slog.Info("decoded", "file", display, "issue", issue, "articles", len(e.Articles), "cached", hit, "wrappers", wrappers)
	if d.dryRun {
		return nil
	}

	o := output{source: display, origin: name, key: key, wrappers: wrappers, entry: e}
	dir, err := o.write(d.cfg.Output, d.cfg.Encoding, &d.dirs)
	if err != nil {
		return err
	}
	slog.Debug("written", "file", display, "dir", dir)
	return nil
}

// settings names everything besides the input and issue that changes what Decode returns.
func (d *decoder) settings(issue int) string {
	pw, _ := d.pws.Password(issue) // a bad issue fails in Decode, uncached
	return fmt.Sprintf("password=%q entry=%d max=%d", pw, d.cfg.EntryOffset, d.cfg.MaxArticle)
}

func (d *decoder) report(display string, err error) {
	if err != nil {
		d.failed.Add(1)
		slog.Error("decodeFailed", "file", display, "kind", zine.Kind(err), "err", err)
		return
	}
	d.ok.Add(1)
}

// batch decodes every matching file under root, reading them in disk order.
// Failures are logged and counted, and do not stop the batch.
func (d *decoder) batch(root, glob string) error {
	slog.Info("batchStart", "dir", root)
	t := time.Now()
	waysort, files, err := walk.FilesInDiskOrder(os.DirFS(root), glob)
	if err != nil {
		return err
	}
	slog.Info("batchDir", "dir", root, "sortorder", waysort)

	concurrency := d.cfg.Workers
	wg := new(sync.WaitGroup)
	wg.Add(concurrency)
	for range concurrency {
		go func() {
			for name := range files {
				d.report(name, d.decodeFile(filepath.Join(root, filepath.FromSlash(name)), name))
			}
			wg.Done()
		}()
	}
	wg.Wait()
	slog.Info("batchStop", "dir", root, "duration", time.Since(t).Truncate(time.Millisecond).String())
	return nil
}
