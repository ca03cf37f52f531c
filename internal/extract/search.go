package extract

import (
	"reflect"
	"slices"
	"strings"
)

const (
	// MaxReparseDepth bounds how many times JSON nested inside a string is
	// parsed along one path.
	MaxReparseDepth = 8
	// MaxVisitedNodes bounds the number of values examined by one search.
	MaxVisitedNodes = 2000
)

type frame struct {
	value any
	depth int
}

// searcher walks a decoded JSON value with an explicit LIFO stack.
type searcher struct {
	stack   []frame
	visited map[uintptr]struct{}
	nodes   int
}

// search looks for an item list in value. Objects are checked for a list
// under one of listKeys, then for an item shape. Arrays whose objects all
// look like items are taken whole. Other objects and arrays push their
// children; strings that look like JSON are parsed and pushed.
// The first match ends the search.
func search(value any) ([]Item, bool) {
	s := &searcher{visited: make(map[uintptr]struct{})}
	s.push(value, 0)

	for len(s.stack) > 0 {
		f := s.stack[len(s.stack)-1]
		s.stack = s.stack[:len(s.stack)-1]

		s.nodes++
		if s.nodes > MaxVisitedNodes {
			return nil, false
		}

		switch v := f.value.(type) {
		case map[string]any:
			if s.seen(v) {
				continue
			}
			if items, ok := itemList(v); ok {
				return items, true
			}
			if looksLikeItem(v) {
				return []Item{NormalizeItem(v)}, true
			}
			s.pushObject(v, f.depth)

		case []any:
			if s.seen(v) {
				continue
			}
			if isItemArray(v) {
				return normalizeList(v), true
			}
			for i := len(v) - 1; i >= 0; i-- {
				s.push(v[i], f.depth)
			}

		case string:
			if f.depth >= MaxReparseDepth || !strings.ContainsAny(v, "{[") {
				continue
			}
			if nested, ok := parseJSONText(v); ok {
				s.push(nested, f.depth+1)
			}
		}
	}
	return nil, false
}

// isItemArray reports whether list is itself an item list: it holds at
// least one object and every object entry looks like an item. Taking the
// whole array keeps a bare top-level list from being cut to its first entry.
func isItemArray(list []any) bool {
	objects := 0
	for _, entry := range list {
		obj, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		if !looksLikeItem(obj) {
			return false
		}
		objects++
	}
	return objects > 0
}

func itemList(obj map[string]any) ([]Item, bool) {
	for _, key := range listKeys {
		if list, ok := obj[key].([]any); ok {
			return normalizeList(list), true
		}
	}
	return nil, false
}

// pushObject pushes the children of obj so that they pop in key order.
func (s *searcher) pushObject(obj map[string]any, depth int) {
	keys := make([]string, 0, len(obj))
	for key := range obj {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	for i := len(keys) - 1; i >= 0; i-- {
		s.push(obj[keys[i]], depth)
	}
}

func (s *searcher) push(value any, depth int) {
	switch value.(type) {
	case map[string]any, []any, string:
		s.stack = append(s.stack, frame{value: value, depth: depth})
	}
}

// seen records container identity and reports whether it was visited before.
func (s *searcher) seen(container any) bool {
	rv := reflect.ValueOf(container)
	if rv.Kind() == reflect.Slice && rv.Len() == 0 {
		return false
	}
	ptr := rv.Pointer()
	if _, ok := s.visited[ptr]; ok {
		return true
	}
	s.visited[ptr] = struct{}{}
	return false
}
