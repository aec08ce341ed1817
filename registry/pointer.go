// Copyright (C) 2024 The REPE Authors.

// Package registry implements a hierarchical name tree addressed by JSON
// Pointer (RFC 6901), exposing read/write/call semantics over a repe.Server
// the way a Registry component does: an empty request body means read, a
// non-empty body on a callable entry means call, and a non-empty body on a
// non-callable entry means write.
package registry

import (
	"strconv"
	"strings"

	"github.com/repehq/repe"
)

// ParsePointer parses s as an RFC 6901 JSON Pointer, returning its
// unescaped segments. An empty string or "/" both parse to zero segments;
// any other value must start with "/".
func ParsePointer(s string) ([]string, error) {
	if s == "" || s == "/" {
		return nil, nil
	}
	if !strings.HasPrefix(s, "/") {
		return nil, repe.Errorf(repe.InvalidQuery, "pointer %q must start with /", s)
	}
	parts := strings.Split(s[1:], "/")
	segs := make([]string, len(parts))
	for i, p := range parts {
		segs[i] = unescape(p)
	}
	return segs, nil
}

// unescape reverses RFC 6901 §3 escaping: ~1 decodes to /, then ~0 decodes
// to ~ (order matters, since a literal ~1 in the input must not become a
// second escape opportunity for ~0).
func unescape(s string) string {
	s = strings.ReplaceAll(s, "~1", "/")
	s = strings.ReplaceAll(s, "~0", "~")
	return s
}

// escape applies RFC 6901 §3 escaping to one raw segment.
func escape(s string) string {
	s = strings.ReplaceAll(s, "~", "~0")
	s = strings.ReplaceAll(s, "/", "~1")
	return s
}

// indexSegment parses seg as a base-10, non-negative array index.
func indexSegment(seg string) (int, error) {
	n, err := strconv.Atoi(seg)
	if err != nil || n < 0 {
		return 0, repe.Errorf(repe.InvalidQuery, "invalid sequence index %q", seg)
	}
	return n, nil
}
