package main

import "testing"

func TestClaims(t *testing.T) {
	var c claims
	for _, tc := range []struct{ dir, origin, want string }{
		{"out/A", "in/A.EXE", "out/A"},
		{"out/A", "in/A.COM", "out/A~2"},
		{"out/A", "in/A.EXE", "out/A"},
		{"out/A", "in/A.EXE.gz", "out/A~3"},
		{"out/A", "in/A.COM", "out/A~2"},
		{"out/B", "in/B.EXE", "out/B"},
	} {
		if got := c.claim(tc.dir, tc.origin); got != tc.want {
			t.Errorf("claim(%q, %q): expected %q, got %q", tc.dir, tc.origin, tc.want, got)
		}
	}
}
