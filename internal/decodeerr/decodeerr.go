// Package decodeerr holds the error categories shared by every decoder in
// this module. Specific failures wrap one of these, so a caller can tell
// "structurally not our format" from "bad data" from "format we do not fully
// model" with errors.Is.
package decodeerr

import "errors"

var (
	ErrFormat      = errors.New("format error")
	ErrCorrupt     = errors.New("corrupt input")
	ErrUnsupported = errors.New("unsupported encoding")
)
