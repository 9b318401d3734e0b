// Copyright (c) Openident.
// Licensed under the MIT license.

// Package scopes implements the ordered, de-duplicated scope set used in
// authorization requests and cache lookups. Scopes are compared
// case-insensitively; two sets are equivalent iff their canonical string
// forms match.
package scopes

import (
	"sort"
	"strings"
)

// Separator joins scopes in their canonical wire form.
const Separator = " "

// Set is an ordered set of lower-cased scope strings. The zero value is an
// empty set ready for use.
type Set struct {
	order []string
	seen  map[string]bool
}

// New creates a Set from the given scopes, lower-casing, trimming and
// de-duplicating while preserving first-seen order.
func New(scopeList ...string) Set {
	s := Set{}
	s.Append(scopeList...)
	return s
}

// FromString parses a canonical space-separated scope string, the inverse of
// String().
func FromString(scopeString string) Set {
	return New(strings.Split(scopeString, Separator)...)
}

// NewLoginSet creates a Set for an identity (login) request: the client id is
// implicitly a member so the token covers the application itself.
func NewLoginSet(clientID string, scopeList ...string) Set {
	s := New(scopeList...)
	s.Append(clientID)
	return s
}

// Append adds scopes to the set, ignoring duplicates and empty entries.
func (s *Set) Append(scopeList ...string) {
	if s.seen == nil {
		s.seen = map[string]bool{}
	}
	for _, scope := range scopeList {
		scope = strings.ToLower(strings.TrimSpace(scope))
		if scope == "" || s.seen[scope] {
			continue
		}
		s.seen[scope] = true
		s.order = append(s.order, scope)
	}
}

// Union adds every scope of other to the set.
func (s *Set) Union(other Set) {
	s.Append(other.order...)
}

// Clone returns an independent copy of the set. Sets share internal state
// when copied by value, so mutate only sets you own or cloned.
func (s Set) Clone() Set {
	return New(s.order...)
}

// Contains reports whether every scope of other is a member of s, i.e. s is a
// superset of other.
func (s Set) Contains(other Set) bool {
	for _, scope := range other.order {
		if !s.seen[scope] {
			return false
		}
	}
	return true
}

// Has reports whether a single scope is a member of the set.
func (s Set) Has(scope string) bool {
	return s.seen[strings.ToLower(strings.TrimSpace(scope))]
}

// Len returns the number of scopes in the set.
func (s Set) Len() int {
	return len(s.order)
}

// IsEmpty reports whether the set has no scopes.
func (s Set) IsEmpty() bool {
	return len(s.order) == 0
}

// Slice returns the scopes in insertion order. The slice is a copy, callers
// may mutate it.
func (s Set) Slice() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// String returns the canonical space-separated form. Round-trips through
// FromString.
func (s Set) String() string {
	return strings.Join(s.order, Separator)
}

// Equal reports scope-equivalence: same members regardless of order.
func (s Set) Equal(other Set) bool {
	if len(s.order) != len(other.order) {
		return false
	}
	return s.Contains(other)
}

// Sorted returns the scopes sorted lexically. Used where a stable order is
// needed for keys.
func (s Set) Sorted() []string {
	out := s.Slice()
	sort.Strings(out)
	return out
}
