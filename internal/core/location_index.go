package core

import (
	"sort"

	"assetcore/pkg/domain"
)

// LocationIndex answers descendant queries over the office hierarchy. It is
// built from a point-in-time listing of locations and is safe for concurrent
// reads once constructed.
type LocationIndex struct {
	children map[string][]string
	known    map[string]bool
}

// NewLocationIndex builds an index from the given locations. Parent links
// pointing at the root sentinel or at unknown offices make the office a top
// level entry; the sentinel itself is never a queryable office.
func NewLocationIndex(locations []domain.Location) *LocationIndex {
	idx := &LocationIndex{
		children: make(map[string][]string, len(locations)),
		known:    make(map[string]bool, len(locations)),
	}
	for _, l := range locations {
		if l.Name == "" || l.Name == domain.RootLocation {
			continue
		}
		idx.known[l.Name] = true
	}
	for _, l := range locations {
		if l.Name == "" || l.Name == domain.RootLocation {
			continue
		}
		parent := l.Parent
		if parent == "" || parent == l.Name || !idx.known[parent] {
			parent = domain.RootLocation
		}
		idx.children[parent] = append(idx.children[parent], l.Name)
	}
	for parent := range idx.children {
		sort.Strings(idx.children[parent])
	}
	return idx
}

// Known reports whether the office name exists in the index.
func (idx *LocationIndex) Known(name string) bool {
	return idx.known[name]
}

// Descendants returns the office plus every office transitively below it,
// sorted. A name absent from the index degrades to a singleton scope so a
// stale reference still only sees itself. A visited set guards against
// parent cycles in corrupted data.
func (idx *LocationIndex) Descendants(name string) []string {
	if !idx.known[name] {
		return []string{name}
	}
	visited := map[string]bool{name: true}
	queue := []string{name}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, child := range idx.children[current] {
			if visited[child] {
				continue
			}
			visited[child] = true
			queue = append(queue, child)
		}
	}
	out := make([]string, 0, len(visited))
	for n := range visited {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// TopLevel returns the offices parented directly under the root sentinel.
func (idx *LocationIndex) TopLevel() []string {
	out := append([]string(nil), idx.children[domain.RootLocation]...)
	return out
}
