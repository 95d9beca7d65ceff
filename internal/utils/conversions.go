// Package utils holds small string set helpers.
package utils

import "sort"

// StringSet is an unordered set of strings.
type StringSet map[string]struct{}

func NewStringSet(values ...string) StringSet {
	set := make(StringSet, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

func (s StringSet) Contains(v string) bool {
	_, ok := s[v]
	return ok
}

// ContainsAll reports whether every value is in s.
func (s StringSet) ContainsAll(values []string) bool {
	for _, v := range values {
		if !s.Contains(v) {
			return false
		}
	}
	return true
}

// Sorted returns the members in ascending order.
func (s StringSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// Union returns the sorted union of a and b.
func Union(a, b []string) []string {
	set := NewStringSet(a...)
	for _, v := range b {
		set[v] = struct{}{}
	}
	return set.Sorted()
}
