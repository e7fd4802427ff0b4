package utils

import (
	"strconv"
	"strings"
)

// RootPrefix optionally leads a payload path and names the payload root.
const RootPrefix = "data"

func NewPath(s ...string) Path {
	p := Path{}
	p = append(p, s...)
	return p
}

// ParsePath splits a dotted path, dropping a leading RootPrefix segment.
func ParsePath(dotted string) Path {
	dotted = strings.TrimSpace(dotted)
	if dotted == "" {
		return Path{}
	}
	p := NewPath(strings.Split(dotted, ".")...)
	if first, _ := p.First(); first == RootPrefix {
		p = p.Next()
	}
	return p
}

type Path []string

func (p *Path) AddString(s ...string) Path {
	return append(*p, s...)
}

func (p Path) String() string {
	return strings.Join(p, ".")
}

func (p Path) First() (string, bool) {
	if len(p) == 0 {
		return "", false
	}
	return p[0], true
}

func (p Path) Next() Path {
	if len(p) == 0 {
		return Path{}
	}
	return p[1:]
}

// ResolvePath walks root along a dotted path. It reports false for an empty
// path, a missing segment or a nil terminal value.
func ResolvePath(root any, dotted string) (any, bool) {
	p := ParsePath(dotted)
	if len(p) == 0 {
		return nil, false
	}
	current := root
	for seg, exists := p.First(); exists; seg, exists = p.First() {
		next, found := child(current, seg)
		if !found {
			return nil, false
		}
		current = next
		p = p.Next()
	}
	if current == nil {
		return nil, false
	}
	return current, true
}

func child(v any, key string) (any, bool) {
	switch m := v.(type) {
	case map[string]any:
		c, exists := m[key]
		return c, exists
	case map[string]string:
		c, exists := m[key]
		return c, exists
	case []any:
		i, err := strconv.Atoi(key)
		if err != nil || i < 0 || i >= len(m) {
			return nil, false
		}
		return m[i], true
	case []string:
		i, err := strconv.Atoi(key)
		if err != nil || i < 0 || i >= len(m) {
			return nil, false
		}
		return m[i], true
	}
	return childOfNamedMap(v, key)
}
