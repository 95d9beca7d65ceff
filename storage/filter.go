package storage

import "time"

// Filter is a boolean expression over an entry's indexed Fields and Times.
// A nil Filter matches everything.
type Filter interface {
	Match(e *Entry) bool
}

type eqFilter struct{ field, value string }

func (f eqFilter) Match(e *Entry) bool {
	v, ok := e.Fields[f.field]
	return ok && v == f.value
}

// Eq matches entries whose field equals value.
func Eq(field, value string) Filter {
	return eqFilter{field: field, value: value}
}

type presentFilter struct{ field string }

func (f presentFilter) Match(e *Entry) bool {
	if v, ok := e.Fields[f.field]; ok && v != "" {
		return true
	}
	t, ok := e.Times[f.field]
	return ok && !t.IsZero()
}

// Present matches entries carrying a non-empty field or a non-zero time.
func Present(field string) Filter {
	return presentFilter{field: field}
}

type timeFilter struct {
	field  string
	at     time.Time
	before bool
}

func (f timeFilter) Match(e *Entry) bool {
	t, ok := e.Times[f.field]
	if !ok || t.IsZero() {
		return false
	}
	if f.before {
		return t.Before(f.at)
	}
	return t.After(f.at)
}

// Before matches entries whose time field is strictly before at.
func Before(field string, at time.Time) Filter {
	return timeFilter{field: field, at: at, before: true}
}

// After matches entries whose time field is strictly after at.
func After(field string, at time.Time) Filter {
	return timeFilter{field: field, at: at}
}

type andFilter []Filter

func (f andFilter) Match(e *Entry) bool {
	for _, sub := range f {
		if sub != nil && !sub.Match(e) {
			return false
		}
	}
	return true
}

func And(filters ...Filter) Filter {
	return andFilter(filters)
}

type orFilter []Filter

func (f orFilter) Match(e *Entry) bool {
	for _, sub := range f {
		if sub == nil || sub.Match(e) {
			return true
		}
	}
	return false
}

func Or(filters ...Filter) Filter {
	return orFilter(filters)
}

type notFilter struct{ f Filter }

func (f notFilter) Match(e *Entry) bool {
	return !Matches(f.f, e)
}

func Not(f Filter) Filter {
	return notFilter{f: f}
}

// Matches evaluates f against e, treating nil as match-all.
func Matches(f Filter, e *Entry) bool {
	if f == nil {
		return true
	}
	return f.Match(e)
}
