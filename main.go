// Command unsfx unpacks the self-extracting executables of an electronic
// magazine, recovering the runnable viewer and the articles encrypted inside it.
//
// Usage:
//
//	unsfx [flags] FILE|DIR...
//
// Each FILE is decoded into OUT/<name>/. Each DIR is walked for inputs,
// optionally filtered by --glob, and decoded by a pool of workers.
// Inputs may be wrapped in gzip, bzip2, xz, zstd or lz4.
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/elliotnunn/UnSFX/internal/resultcache"
)

type usageError struct{ error }

func (usageError) ExitCode() int { return 2 }

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "unsfx: %v\n", err)
		if coder, ok := err.(interface{ ExitCode() int }); ok {
			os.Exit(coder.ExitCode())
		}
		os.Exit(1)
	}
}

func run(args []string) error {
	var (
		configPath  string
		issue       int
		out         string
		cacheDir    string
		enc         string
		workers     int
		entryOffset int
		maxArticle  int
		glob        string
		dryRun      bool
		verbose     bool
	)

	flagSet := pflag.NewFlagSet("unsfx", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "YAML configuration file (default $"+ConfigEnv+")")
	flagSet.IntVarP(&issue, "issue", "i", 0, "issue number 1-4, selecting the password and key rule")
	flagSet.StringVarP(&out, "out", "o", "", "output directory")
	flagSet.StringVar(&cacheDir, "cache", "", "directory to keep decoded results in across runs")
	flagSet.StringVar(&enc, "encoding", "", "code page of the articles: cp866, cp437, cp1251, koi8r or raw")
	flagSet.IntVarP(&workers, "workers", "j", 0, "files to decode at once in a directory")
	flagSet.IntVar(&entryOffset, "entry-offset", 0, "offset of the CS:IP operand in the unpacked code")
	flagSet.IntVar(&maxArticle, "max-article", 0, "cut articles to this many bytes")
	flagSet.StringVar(&glob, "glob", "", "only decode files in a directory matching this pattern, e.g. '**/*.EXE'")
	flagSet.BoolVarP(&dryRun, "dry-run", "n", false, "decode and report without writing anything")
	flagSet.BoolVarP(&verbose, "verbose", "v", false, "log every block and article")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return usageError{err}
	}
	if flagSet.NArg() == 0 {
		fmt.Fprintf(os.Stderr, "usage: unsfx [flags] FILE|DIR...\n%s", flagSet.FlagUsages())
		return usageError{errors.New("no inputs")}
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	cfg, err := LoadConfig(configPath)
	if err != nil {
		return err
	}
	if flagSet.Changed("issue") {
		cfg.Issue = issue
	}
	if flagSet.Changed("out") {
		cfg.Output = out
	}
	if flagSet.Changed("cache") {
		cfg.Cache = cacheDir
	}
	if flagSet.Changed("encoding") {
		cfg.Encoding = enc
	}
	if flagSet.Changed("workers") {
		cfg.Workers = workers
	}
	if flagSet.Changed("entry-offset") {
		cfg.EntryOffset = entryOffset
	}
	if flagSet.Changed("max-article") {
		cfg.MaxArticle = maxArticle
	}
	if err := cfg.Validate(); err != nil {
		return usageError{err}
	}

	cache, err := resultcache.Open(cfg.Cache, cacheEntries())
	if err != nil {
		return err
	}
	defer cache.Close()

	d := &decoder{cfg: cfg, pws: cfg.PasswordTable(), cache: cache, dryRun: dryRun}
	for _, arg := range flagSet.Args() {
		st, err := os.Stat(arg)
		if err != nil {
			d.report(arg, err)
			continue
		}
		if st.IsDir() {
			if err := d.batch(arg, glob); err != nil {
				return usageError{err}
			}
			continue
		}
		display := filepath.ToSlash(filepath.Base(arg))
		d.report(display, d.decodeFile(arg, display))
	}

	if n := d.failed.Load(); n > 0 {
		return fmt.Errorf("%d of %d inputs failed", n, n+d.ok.Load())
	}
	return nil
}
