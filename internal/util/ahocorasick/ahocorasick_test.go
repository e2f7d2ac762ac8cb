package ahocorasick

import (
	"reflect"
	"sort"
	"testing"
)

func TestContainsAny(t *testing.T) {
	m := New([]string{"../", "union select", "/wp-admin"})
	if !m.ContainsAny("/wp-admin/setup.php") {
		t.Fatal("expected /wp-admin match")
	}
	if m.ContainsAny("/static/app.js") {
		t.Fatal("expected no match for benign path")
	}
}

func TestMatchedPatternsDedup(t *testing.T) {
	m := New([]string{"sel", "select"})
	got := m.MatchedPatterns("union select 1")
	sort.Strings(got)
	want := []string{"sel", "select"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestEmptyPatternsNeverMatch(t *testing.T) {
	m := New(nil)
	if m.ContainsAny("anything") {
		t.Fatal("empty matcher must never match")
	}
}
