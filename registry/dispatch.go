// Copyright (C) 2024 The REPE Authors.

package registry

import (
	"context"
	"encoding/binary"
	"fmt"
	"sort"
	"strings"

	"github.com/repehq/repe"
)

// handleRequest implements the read/write/call dispatch rule: an empty
// request body means read (a callable entry reads back as a descriptor, it
// is never invoked implicitly); a non-empty body against a callable entry
// means call, passing the decoded body as the argument; a non-empty body
// against anything else means write.
func (r *Registry) handleRequest(ctx context.Context, path string, raw repe.Message, codecs repe.CodecSet) (any, error) {
	if len(raw.Body) == 0 {
		return r.Get(path)
	}

	segs, err := ParsePointer(path)
	if err != nil {
		return nil, err
	}
	r.mu.RLock()
	node, rest, rerr := r.resolveEntry(segs)
	r.mu.RUnlock()
	if rerr == nil && node.kind == kindCallable && len(rest) == 0 {
		args, err := raw.ParseBody(codecs)
		if err != nil {
			return nil, err
		}
		return node.call(args)
	}

	body, err := raw.ParseBody(codecs)
	if err != nil {
		return nil, err
	}
	if err := r.Set(path, body); err != nil {
		return nil, err
	}
	return map[string]any{"ok": true}, nil
}

// Serve installs a middleware on s that routes any query beginning with
// prefix through the registry's read/write/call dispatch. prefix is
// stripped from the query before it is interpreted as a pointer, so
// reg.Serve(s, "/registry") maps a request for
// "/registry/limits/max" onto the registry path "/limits/max".
func (r *Registry) Serve(s *repe.Server, prefix string) {
	codecs := repe.DefaultCodecs()
	s.Use(func(msg repe.Message) repe.MiddlewareVerdict {
		q := msg.ParseQuery()
		if !strings.HasPrefix(q, prefix) {
			return repe.Continue()
		}
		sub := strings.TrimPrefix(q, prefix)
		result, err := r.handleRequest(context.Background(), sub, msg, codecs)
		if err != nil {
			if we, ok := err.(*repe.WireError); ok {
				return repe.ShortMessage(repe.NewMessage(msg.Header.ID, q, msg.Header.QueryFormat,
					[]byte(we.Message), repe.BodyUTF8, repe.WithErrorCode(we.Code)))
			}
			return repe.ShortMessage(repe.NewMessage(msg.Header.ID, q, msg.Header.QueryFormat,
				[]byte(err.Error()), repe.BodyUTF8, repe.WithErrorCode(repe.ParseError)))
		}
		body, encErr := codecs.Encode(result, repe.BodyJSON)
		if encErr != nil {
			return repe.ShortError(repe.ParseError)
		}
		return repe.ShortMessage(repe.NewMessage(msg.Header.ID, q, msg.Header.QueryFormat, body, repe.BodyJSON))
	})
}

// entryKind tags an entry's shape for Snapshot's wire encoding.
type entryKind uint32

const (
	tagValue    entryKind = 0
	tagCallable entryKind = 1
	tagMapping  entryKind = 2
)

// Snapshot lists the immediate children of the mapping at path in the same
// wire shape as chirp's method catalog: the names of every child in
// lexicographic order, each a big-endian uint16 length followed by that
// many bytes, followed by the children's kind tags in the reverse order of
// the names, each a big-endian uint32.
func (r *Registry) Snapshot(path string) ([]byte, error) {
	segs, err := ParsePointer(path)
	if err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	node, rest, err := r.resolveEntry(segs)
	if err != nil {
		return nil, err
	}
	if len(rest) > 0 || node.kind != kindMapping {
		return nil, repe.Errorf(repe.InvalidQuery, "%q is not a mapping", path)
	}
	if len(node.children) == 0 {
		return nil, nil
	}

	names := make([]string, 0, len(node.children))
	nlen := 0
	for name := range node.children {
		names = append(names, name)
		nlen += 2 + len(name)
	}
	sort.Strings(names)

	buf := make([]byte, nlen+4*len(node.children))
	npos, tpos := 0, len(buf)
	for _, name := range names {
		binary.BigEndian.PutUint16(buf[npos:], uint16(len(name)))
		npos += 2
		npos += copy(buf[npos:], name)

		tpos -= 4
		binary.BigEndian.PutUint32(buf[tpos:], uint32(kindTag(node.children[name])))
	}
	return buf, nil
}

func kindTag(e *entry) entryKind {
	switch e.kind {
	case kindCallable:
		return tagCallable
	case kindMapping:
		return tagMapping
	default:
		return tagValue
	}
}

// DecodeSnapshot reverses Snapshot's wire encoding, returning each child
// name paired with its kind tag.
func DecodeSnapshot(data []byte) (map[string]string, error) {
	out := make(map[string]string)
	npos, tpos := 0, len(data)
	for npos < tpos {
		if npos+2 > len(data) {
			return nil, fmt.Errorf("registry: truncated snapshot at offset %d", npos)
		}
		nlen := int(binary.BigEndian.Uint16(data[npos:]))
		npos += 2
		if npos+nlen > len(data) {
			return nil, fmt.Errorf("registry: truncated name at offset %d", npos)
		}
		name := string(data[npos : npos+nlen])
		npos += nlen

		tpos -= 4
		if tpos < npos {
			return nil, fmt.Errorf("registry: truncated tag at offset %d", tpos)
		}
		switch entryKind(binary.BigEndian.Uint32(data[tpos:])) {
		case tagCallable:
			out[name] = "function"
		case tagMapping:
			out[name] = "mapping"
		default:
			out[name] = "value"
		}
	}
	return out, nil
}
