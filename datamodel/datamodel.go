// Package datamodel implements path-addressed mutation and traversal of
// nested key-value trees (the structured state bound into surface
// component templates).
//
// Trees are plain map[string]any holding JSON-compatible values. Set
// writes one value at one slash-delimited address, creating intermediate
// maps along the way. Flatten inverts that: it walks the tree and yields
// every leaf as a (path, value) pair, which is how full-state replay is
// expressed in the same vocabulary as incremental updates.
package datamodel

import (
	"errors"
	"fmt"
	"sort"

	"github.com/lumava/surfcast/pointer"
)

// ErrInvalidPath is returned when a mutation targets the root or an
// otherwise unaddressable path. Replacing the whole tree through a path
// write is rejected, not ignored.
var ErrInvalidPath = errors.New("datamodel: invalid path")

// Set writes value at path, creating intermediate maps as needed.
// The mutation is in place on the caller-owned tree.
//
// If an intermediate segment holds a non-map value (say a string where a
// container is needed), the value is overwritten with a fresh map. That
// loses the old leaf, but a writer addressing below it has declared the
// subtree a container; erroring out would wedge every client on a stale
// shape.
func Set(tree map[string]any, path string, value any) error {
	segs, err := pointer.Split(path)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidPath, path, err)
	}

	cur := tree
	for _, seg := range segs[:len(segs)-1] {
		child, ok := cur[seg].(map[string]any)
		if !ok {
			child = make(map[string]any)
			cur[seg] = child
		}
		cur = child
	}
	cur[segs[len(segs)-1]] = value
	return nil
}

// Get returns the value at path, or false when any segment is missing.
func Get(tree map[string]any, path string) (any, bool) {
	segs, err := pointer.Split(path)
	if err != nil {
		return nil, false
	}
	var cur any = tree
	for _, seg := range segs {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// Leaf is one non-map value found during a Flatten walk.
type Leaf struct {
	Path  string
	Value any
}

// Flatten walks tree depth-first and returns every leaf with its
// reconstructed slash path. Sibling keys are visited in sorted order so
// the result is stable across runs and processes — replay sequences can
// be compared exactly in tests.
func Flatten(tree map[string]any) []Leaf {
	var leaves []Leaf
	flattenInto(tree, "", &leaves)
	return leaves
}

func flattenInto(tree map[string]any, prefix string, out *[]Leaf) {
	keys := make([]string, 0, len(tree))
	for k := range tree {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		path := prefix + "/" + k
		if sub, ok := tree[k].(map[string]any); ok {
			flattenInto(sub, path, out)
			continue
		}
		*out = append(*out, Leaf{Path: path, Value: tree[k]})
	}
}
