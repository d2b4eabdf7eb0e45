package store

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/electwix/querycache/internal/eviction"
	"github.com/electwix/querycache/internal/logging"
	"github.com/electwix/querycache/internal/stats"
)

func TestInstrumented_Accuracy(t *testing.T) {
	counters := stats.New()
	s := NewInstrumented(NewMemory(), counters)

	s.Insert(entry(1, "person"))
	if _, ok := s.Lookup(key(1)); !ok {
		t.Fatal("expected key to exist")
	}
	if _, ok := s.Lookup(key(2)); ok {
		t.Fatal("expected key to not exist")
	}
	s.Delete(key(1))

	want := stats.Snapshot{Hits: 1, Misses: 1, Lookups: 2, Invalidations: 1}
	if diff := cmp.Diff(want, counters.Snapshot()); diff != "" {
		t.Fatalf("statistics mismatch (-want +got):\n%s", diff)
	}
	if s.Statistics() != counters {
		t.Error("Statistics() should return the caller's counters")
	}
}

func TestInstrumented_CountsInvalidationsAndEvictions(t *testing.T) {
	s := NewInstrumented(NewMemory(WithPolicy(eviction.MaxSize(2))), nil)
	s.Insert(entry(1, "a"))
	s.Insert(entry(2, "a"))
	s.Insert(entry(3, "b"))
	if !s.Contains(key(3)) || s.Contains(key(1)) {
		t.Fatal("unexpected residents after eviction")
	}
	removed := s.Invalidate("a", "b")
	if len(removed) != 2 {
		t.Fatalf("Invalidate() removed %d, want 2", len(removed))
	}
	s.Clear()

	want := stats.Snapshot{Hits: 1, Misses: 1, Lookups: 2, Invalidations: 2, Evictions: 1}
	if diff := cmp.Diff(want, s.Statistics().Snapshot()); diff != "" {
		t.Fatalf("statistics mismatch (-want +got):\n%s", diff)
	}
	if s.Len() != 0 {
		t.Errorf("Len() = %d, want 0", s.Len())
	}
}

func TestInstrumented_PassesResultsThrough(t *testing.T) {
	plain := NewMemory(WithPolicy(eviction.MaxSize(1)))
	wrapped := NewInstrumented(NewMemory(WithPolicy(eviction.MaxSize(1))), nil)
	for _, s := range []Store{plain, wrapped} {
		s.Insert(entry(1, "a"))
	}
	a, b := plain.Insert(entry(2, "b")), wrapped.Insert(entry(2, "b"))
	if diff := cmp.Diff(keysOf(a), keysOf(b)); diff != "" {
		t.Fatalf("evictions differ (-plain +wrapped):\n%s", diff)
	}
	ea, oka := plain.Delete(key(2))
	eb, okb := wrapped.Delete(key(2))
	if oka != okb || ea.Key != eb.Key {
		t.Fatalf("Delete() differs: %v,%v vs %v,%v", ea.Key, oka, eb.Key, okb)
	}
}

func TestLogged(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.FromOptions(logging.Options{Verbose: true, Writer: &buf})
	s := NewLogged(NewInstrumented(NewMemory(WithPolicy(eviction.MaxSize(1))), nil), logger)

	s.Insert(entry(1, "person"))
	s.Insert(entry(2, "person"))
	s.Lookup(key(2))
	s.Invalidate("person")
	s.Delete(key(9))
	s.Clear()

	out := buf.String()
	for _, want := range []string{
		"msg=insert",
		"component=store",
		"msg=evicted component=store count=1",
		"msg=lookup component=store key=00000000000000000000000000000002 hit=true",
		"msg=invalidate",
		"removed=1",
		"msg=delete",
		"found=false",
		"msg=cleared component=store entries=0",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
}

func TestLogged_NilLogger(t *testing.T) {
	s := NewLogged(NewMemory(), nil)
	s.Insert(entry(1, "a"))
	if s.Len() != 1 || !s.Contains(key(1)) {
		t.Fatal("expected entry to be stored")
	}
}
