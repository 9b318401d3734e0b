// Copyright (c) Openident.
// Licensed under the MIT license.

package scopes

import (
	"testing"

	"github.com/kylelemons/godebug/pretty"
)

func TestNew(t *testing.T) {
	tests := []struct {
		desc  string
		input []string
		want  []string
	}{
		{desc: "simple", input: []string{"user.read", "openid"}, want: []string{"user.read", "openid"}},
		{desc: "duplicates dropped", input: []string{"a", "b", "a"}, want: []string{"a", "b"}},
		{desc: "case folded", input: []string{"User.Read", "USER.READ"}, want: []string{"user.read"}},
		{desc: "whitespace trimmed", input: []string{"  a ", "b"}, want: []string{"a", "b"}},
		{desc: "empty entries skipped", input: []string{"", "a", "  "}, want: []string{"a"}},
		{desc: "order preserved", input: []string{"z", "a", "m"}, want: []string{"z", "a", "m"}},
	}

	for _, test := range tests {
		got := New(test.input...).Slice()
		if diff := pretty.Compare(test.want, got); diff != "" {
			t.Errorf("TestNew(%s): -want/+got:\n%s", test.desc, diff)
		}
	}
}

func TestStringRoundTrip(t *testing.T) {
	s := New("user.read", "openid", "offline_access")
	got := FromString(s.String())
	if !s.Equal(got) {
		t.Errorf("TestStringRoundTrip: got %q, want %q", got.String(), s.String())
	}
}

func TestContains(t *testing.T) {
	tests := []struct {
		desc  string
		set   []string
		other []string
		want  bool
	}{
		{desc: "superset", set: []string{"a", "b", "c"}, other: []string{"b"}, want: true},
		{desc: "equal sets", set: []string{"a", "b"}, other: []string{"b", "a"}, want: true},
		{desc: "missing member", set: []string{"a", "b"}, other: []string{"c"}, want: false},
		{desc: "empty other", set: []string{"a"}, other: nil, want: true},
		{desc: "empty set", set: nil, other: []string{"a"}, want: false},
		{desc: "case insensitive", set: []string{"User.Read"}, other: []string{"user.read"}, want: true},
	}

	for _, test := range tests {
		got := New(test.set...).Contains(New(test.other...))
		if got != test.want {
			t.Errorf("TestContains(%s): got %v, want %v", test.desc, got, test.want)
		}
	}
}

func TestNewLoginSet(t *testing.T) {
	s := NewLoginSet("client-id", "openid", "profile")
	if !s.Has("client-id") {
		t.Error("TestNewLoginSet: client id should be an implicit member")
	}
	if got, want := s.Len(), 3; got != want {
		t.Errorf("TestNewLoginSet: got %d members, want %d", got, want)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	orig := New("a", "b")
	clone := orig.Clone()
	clone.Append("c")

	if orig.Has("c") {
		t.Error("TestCloneIsIndependent: mutation of the clone leaked into the original")
	}
	if !clone.Has("c") {
		t.Error("TestCloneIsIndependent: clone lost the appended member")
	}
}

func TestEqual(t *testing.T) {
	if !New("a", "b").Equal(New("B", "A")) {
		t.Error("TestEqual: sets with the same members should be equal regardless of order and case")
	}
	if New("a").Equal(New("a", "b")) {
		t.Error("TestEqual: sets of different size should not be equal")
	}
}

func TestSorted(t *testing.T) {
	got := New("z", "a", "m").Sorted()
	want := []string{"a", "m", "z"}
	if diff := pretty.Compare(want, got); diff != "" {
		t.Errorf("TestSorted: -want/+got:\n%s", diff)
	}
}
