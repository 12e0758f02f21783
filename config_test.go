package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/elliotnunn/UnSFX/internal/article"
)

func writeConfig(t *testing.T, text string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "unsfx.yaml")
	if err := os.WriteFile(p, []byte(text), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestDefaultConfig(t *testing.T) {
	t.Setenv(ConfigEnv, "")
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Output != "unpacked" || cfg.Encoding != "cp866" || cfg.Workers < 1 {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	if cfg.PasswordTable() != article.DefaultPasswords {
		t.Error("default password table changed")
	}
}

func TestLoadConfig(t *testing.T) {
	p := writeConfig(t, `
issue: 2
output: /tmp/out
encoding: koi8r
workers: 3
passwords:
  3: OVERRIDE
issues:
  - glob: "1997/**"
    issue: 1
  - glob: "ZINE4*.EXE"
    issue: 4
`)
	t.Setenv(ConfigEnv, p)
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Issue != 2 || cfg.Output != "/tmp/out" || cfg.Encoding != "koi8r" || cfg.Workers != 3 {
		t.Errorf("fields not loaded: %+v", cfg)
	}
	if pws := cfg.PasswordTable(); pws[3] != "OVERRIDE" || pws[1] != article.DefaultPasswords[1] {
		t.Errorf("unexpected password table %v", pws)
	}

	cases := map[string]int{
		"1997/jan/ZINE.EXE": 1,
		"old/ZINE4A.EXE":    4,
		"ZINE4.EXE":         4,
		"other.exe":         2,
	}
	for name, want := range cases {
		if got := cfg.IssueFor(name); got != want {
			t.Errorf("IssueFor(%q) = %d, expected %d", name, got, want)
		}
	}
}

func TestConfigFlagBeatsEnv(t *testing.T) {
	t.Setenv(ConfigEnv, writeConfig(t, "issue: 1\n"))
	cfg, err := LoadConfig(writeConfig(t, "issue: 3\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Issue != 3 {
		t.Errorf("expected the named file to win, got issue %d", cfg.Issue)
	}
}

func TestBadConfig(t *testing.T) {
	cases := map[string]string{
		"issue":      "issue: 9\n",
		"rule":       "issues: [{glob: '*.EXE', issue: 0}]\n",
		"glob":       "issues: [{glob: '[', issue: 1}]\n",
		"encoding":   "encoding: ebcdic\n",
		"workers":    "workers: 0\n",
		"password":   "passwords: {7: X}\n",
		"negative":   "max_article: -1\n",
		"not yaml":   "issue: [\n",
		"wrong type": "issue: two\n",
	}
	for name, text := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, text))
			if !errors.Is(err, ErrConfig) {
				t.Errorf("expected ErrConfig, got %v", err)
			}
		})
	}

	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected a missing file error, got %v", err)
	}
}
