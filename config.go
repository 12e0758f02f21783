package main

import (
	"errors"
	"fmt"
	"os"
	"path"
	"runtime"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/elliotnunn/UnSFX/internal/article"
)

// ConfigEnv names a configuration file when --config is not given.
// There is no search path: without either, the defaults apply.
const ConfigEnv = "UNSFX_CONFIG"

var ErrConfig = errors.New("bad configuration")

type Config struct {
	// Issue applies to every input that no rule in Issues matches.
	Issue int `yaml:"issue"`

	// Issues picks the issue by file name, first match wins.
	Issues []IssueRule `yaml:"issues"`

	// Output is the directory that receives one subdirectory per input.
	Output string `yaml:"output"`

	// Cache is a directory for decoded results. Empty means memory only.
	Cache string `yaml:"cache"`

	// Encoding is the code page of the articles: cp866, cp437, cp1251, koi8r or raw.
	Encoding string `yaml:"encoding"`

	Workers     int `yaml:"workers"`
	EntryOffset int `yaml:"entry_offset"`
	MaxArticle  int `yaml:"max_article"`

	// Passwords replaces entries of the built-in password table.
	Passwords map[int]string `yaml:"passwords"`
}

type IssueRule struct {
	Glob  string `yaml:"glob"`
	Issue int    `yaml:"issue"`
}

func DefaultConfig() *Config {
	return &Config{
		Output:   "unpacked",
		Encoding: "cp866",
		Workers:  runtime.NumCPU(),
	}
}

// LoadConfig reads the file at name, or at $UNSFX_CONFIG if name is empty,
// over the defaults.
func LoadConfig(name string) (*Config, error) {
	cfg := DefaultConfig()
	if name == "" {
		name = os.Getenv(ConfigEnv)
	}
	if name != "" {
		data, err := os.ReadFile(name)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrConfig, name, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Issue != 0 {
		if err := article.CheckIssue(c.Issue); err != nil {
			errs = append(errs, fmt.Errorf("%w: %w", ErrConfig, err))
		}
	}
	for i, r := range c.Issues {
		if !doublestar.ValidatePattern(r.Glob) {
			errs = append(errs, fmt.Errorf("%w: issues[%d]: bad glob %q", ErrConfig, i, r.Glob))
		}
		if err := article.CheckIssue(r.Issue); err != nil {
			errs = append(errs, fmt.Errorf("%w: issues[%d]: %w", ErrConfig, i, err))
		}
	}
	if _, err := lookupEncoding(c.Encoding); err != nil {
		errs = append(errs, fmt.Errorf("%w: %w", ErrConfig, err))
	}
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("%w: workers must be at least 1", ErrConfig))
	}
	if c.EntryOffset < 0 || c.MaxArticle < 0 {
		errs = append(errs, fmt.Errorf("%w: negative entry_offset or max_article", ErrConfig))
	}
	pws := article.DefaultPasswords
	if err := pws.Merge(c.Passwords); err != nil {
		errs = append(errs, fmt.Errorf("%w: passwords: %w", ErrConfig, err))
	}
	return errors.Join(errs...)
}

// IssueFor matches the slash-separated name, then its base name, against each rule.
func (c *Config) IssueFor(name string) int {
	for _, r := range c.Issues {
		if doublestar.MatchUnvalidated(r.Glob, name) || doublestar.MatchUnvalidated(r.Glob, path.Base(name)) {
			return r.Issue
		}
	}
	return c.Issue
}

func (c *Config) PasswordTable() article.Passwords {
	pws := article.DefaultPasswords
	pws.Merge(c.Passwords) // checked by Validate
	return pws
}
