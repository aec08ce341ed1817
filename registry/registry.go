// Copyright (C) 2024 The REPE Authors.

package registry

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/repehq/repe"
)

type kind int

const (
	kindValue kind = iota
	kindCallable
	kindMapping
)

// Callable is a registry entry that can be invoked. args is either a
// map[string]any (keyword-style call), a []any (positional call), or nil
// (no arguments).
type Callable func(args any) (any, error)

type entry struct {
	kind     kind
	value    any
	call     Callable
	children map[string]*entry
}

// Registry is a tree of named entries, each a leaf value, a Callable, or a
// nested mapping, addressed by JSON Pointer.
//
// The zero value is not usable; construct one with New.
type Registry struct {
	mu   sync.RWMutex
	root *entry
}

// New constructs an empty Registry.
func New() *Registry {
	return &Registry{root: &entry{kind: kindMapping, children: map[string]*entry{}}}
}

// Register creates the value (or Callable) at path, creating intermediate
// mappings for any non-terminal segment that does not yet exist. Register
// refuses the empty path: there is no way to overwrite the root as a leaf.
func (r *Registry) Register(path string, value any) error {
	segs, err := ParsePointer(path)
	if err != nil {
		return err
	}
	if len(segs) == 0 {
		return repe.Errorf(repe.InvalidQuery, "cannot register the empty path")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	node := r.root
	for _, seg := range segs[:len(segs)-1] {
		node = node.childOrCreate(seg)
	}
	last := segs[len(segs)-1]
	if fn, ok := value.(Callable); ok {
		node.children[last] = &entry{kind: kindCallable, call: fn}
	} else if fn, ok := value.(func(any) (any, error)); ok {
		node.children[last] = &entry{kind: kindCallable, call: fn}
	} else {
		node.children[last] = &entry{kind: kindValue, value: value}
	}
	return nil
}

func (e *entry) childOrCreate(seg string) *entry {
	if e.children == nil {
		e.children = map[string]*entry{}
	}
	c, ok := e.children[seg]
	if !ok || c.kind != kindMapping {
		c = &entry{kind: kindMapping, children: map[string]*entry{}}
		e.children[seg] = c
	}
	return c
}

// Merge overlays the keys of overlay onto the mapping found at path
// (the root mapping if path is empty), creating the mapping if it does not
// exist. Each key in overlay replaces any existing entry of the same name.
func (r *Registry) Merge(path string, overlay map[string]any) error {
	segs, err := ParsePointer(path)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	node := r.root
	for _, seg := range segs {
		node = node.childOrCreate(seg)
	}
	if node.children == nil {
		node.children = map[string]*entry{}
	}
	for k, v := range overlay {
		if fn, ok := v.(Callable); ok {
			node.children[k] = &entry{kind: kindCallable, call: fn}
		} else {
			node.children[k] = &entry{kind: kindValue, value: v}
		}
	}
	return nil
}

// resolveEntry walks the entry tree as far as it has matching children,
// returning the deepest entry reached and the remaining unresolved
// segments (non-empty only when the entry reached is a kindValue leaf whose
// underlying Go value must be navigated generically).
func (r *Registry) resolveEntry(segs []string) (*entry, []string, error) {
	node := r.root
	for i, seg := range segs {
		if node.kind != kindMapping {
			return node, segs[i:], nil
		}
		child, ok := node.children[seg]
		if !ok {
			return nil, nil, repe.Errorf(repe.InvalidQuery, "no entry at %q", strings.Join(segs[:i+1], "/"))
		}
		node = child
	}
	return node, nil, nil
}

// Get reads the value or Callable descriptor addressed by path.
func (r *Registry) Get(path string) (any, error) {
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
	switch node.kind {
	case kindCallable:
		if len(rest) > 0 {
			return nil, repe.Errorf(repe.InvalidQuery, "cannot navigate into a callable entry")
		}
		return callableDescriptor{Path: pointerString(segs)}, nil
	case kindMapping:
		return node.snapshotMapping(), nil
	default:
		if len(rest) == 0 {
			return node.value, nil
		}
		return navigateValue(node.value, rest)
	}
}

// pointerString re-encodes segs as an RFC 6901 JSON Pointer.
func pointerString(segs []string) string {
	if len(segs) == 0 {
		return ""
	}
	escaped := make([]string, len(segs))
	for i, s := range segs {
		escaped[i] = escape(s)
	}
	return "/" + strings.Join(escaped, "/")
}

// callableDescriptor is what a read of a callable entry returns, per the
// registry request semantics: a read never invokes the function.
type callableDescriptor struct {
	Type string `json:"type"`
	Path string `json:"path"`
}

func (d callableDescriptor) MarshalJSON() ([]byte, error) {
	d.Type = "function"
	return []byte(fmt.Sprintf(`{"type":"function","path":%q}`, d.Path)), nil
}

func (e *entry) snapshotMapping() map[string]any {
	out := make(map[string]any, len(e.children))
	for k, c := range e.children {
		switch c.kind {
		case kindCallable:
			out[k] = callableDescriptor{Type: "function", Path: k}
		case kindMapping:
			out[k] = c.snapshotMapping()
		default:
			out[k] = c.value
		}
	}
	return out
}

// Set writes value at path. Writing the empty path requires value to be a
// map[string]any, applied as a merge onto the root mapping (matching
// handle_registry_request's root-write behavior).
func (r *Registry) Set(path string, value any) error {
	segs, err := ParsePointer(path)
	if err != nil {
		return err
	}
	if len(segs) == 0 {
		m, ok := value.(map[string]any)
		if !ok {
			return repe.Errorf(repe.InvalidBody, "root write requires a mapping, got %T", value)
		}
		return r.Merge("", m)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	node := r.root
	for _, seg := range segs[:len(segs)-1] {
		child, ok := node.children[seg]
		if !ok {
			return repe.Errorf(repe.InvalidQuery, "no entry at %q", seg)
		}
		node = child
	}
	last := segs[len(segs)-1]
	if node.kind != kindMapping {
		return repe.Errorf(repe.InvalidQuery, "cannot write through a non-mapping entry")
	}
	if fn, ok := value.(Callable); ok {
		node.children[last] = &entry{kind: kindCallable, call: fn}
	} else {
		node.children[last] = &entry{kind: kindValue, value: value}
	}
	return nil
}

// navigateValue resolves segs against an arbitrary decoded Go value: a
// mapping performs a key lookup, a sequence parses the segment as a
// zero-based index, and a struct looks up an exported field by name.
func navigateValue(v any, segs []string) (any, error) {
	cur := v
	for _, seg := range segs {
		rv := reflect.ValueOf(cur)
		for rv.Kind() == reflect.Ptr {
			if rv.IsNil() {
				return nil, repe.Errorf(repe.InvalidQuery, "nil pointer at %q", seg)
			}
			rv = rv.Elem()
		}
		switch rv.Kind() {
		case reflect.Map:
			mv := rv.MapIndex(reflect.ValueOf(seg).Convert(rv.Type().Key()))
			if !mv.IsValid() {
				return nil, repe.Errorf(repe.InvalidQuery, "no key %q", seg)
			}
			cur = mv.Interface()
		case reflect.Slice, reflect.Array:
			idx, err := indexSegment(seg)
			if err != nil {
				return nil, err
			}
			if idx < 0 || idx >= rv.Len() {
				return nil, repe.Errorf(repe.InvalidQuery, "index %d out of range", idx)
			}
			cur = rv.Index(idx).Interface()
		case reflect.Struct:
			fv := rv.FieldByName(seg)
			if !fv.IsValid() {
				return nil, repe.Errorf(repe.InvalidQuery, "no field %q", seg)
			}
			cur = fv.Interface()
		default:
			return nil, repe.Errorf(repe.InvalidQuery, "cannot navigate into %T with segment %q", cur, seg)
		}
	}
	return cur, nil
}
