package eviction

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/electwix/querycache/internal/cachekey"
)

func key(n uint64) cachekey.Key { return cachekey.Key{Lo: n} }

// simulate drives p the way a store does and returns the resulting residents
// in admission order.
func simulate(p Policy, ops []uint64) []cachekey.Key {
	var resident []cachekey.Key
	for _, n := range ops {
		k := key(n)
		for _, v := range p.Victims(len(resident)) {
			for i, r := range resident {
				if r == v {
					resident = append(resident[:i], resident[i+1:]...)
					break
				}
			}
		}
		p.Admitted(k)
		resident = append(resident, k)
	}
	return resident
}

func TestMaxSizeEvictsOldest(t *testing.T) {
	p := MaxSize(2)
	got := simulate(p, []uint64{1, 2, 3})
	want := []cachekey.Key{key(2), key(3)}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("residents mismatch (-want +got):\n%s", diff)
	}
	if p.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", p.Len())
	}
}

func TestMaxSizeIgnoresAccess(t *testing.T) {
	p := MaxSize(2)
	p.Admitted(key(1))
	p.Admitted(key(2))
	p.Accessed(key(1))
	got := p.Victims(2)
	if diff := cmp.Diff([]cachekey.Key{key(1)}, got); diff != "" {
		t.Fatalf("victims mismatch (-want +got):\n%s", diff)
	}
}

func TestLRURefreshesOnAccess(t *testing.T) {
	p := LRU(2)
	p.Admitted(key(1))
	p.Admitted(key(2))
	p.Accessed(key(1))
	got := p.Victims(2)
	if diff := cmp.Diff([]cachekey.Key{key(2)}, got); diff != "" {
		t.Fatalf("victims mismatch (-want +got):\n%s", diff)
	}
}

func TestVictimsShrinkOversizedStore(t *testing.T) {
	p := MaxSize(2)
	for i := uint64(1); i <= 2; i++ {
		p.Admitted(key(i))
	}
	// A store that somehow holds more than the tracked keys only loses what
	// the policy knows about.
	if got := p.Victims(5); len(got) != 2 {
		t.Fatalf("Victims(5) returned %d keys, want 2", len(got))
	}
	if got := p.Victims(5); len(got) != 0 {
		t.Fatalf("Victims on empty policy returned %v", got)
	}
}

func TestRemovedForgetsKey(t *testing.T) {
	p := MaxSize(2)
	p.Admitted(key(1))
	p.Admitted(key(2))
	p.Removed(key(1))
	if got := p.Victims(1); len(got) != 0 {
		t.Fatalf("Victims(1) = %v, want none", got)
	}
	if got := p.Victims(2); !cmp.Equal(got, []cachekey.Key{key(2)}) {
		t.Fatalf("Victims(2) = %v, want [%s]", got, key(2))
	}
}

func TestUnboundedNeverEvicts(t *testing.T) {
	p := Unbounded()
	got := simulate(p, []uint64{1, 2, 3, 4, 5})
	if len(got) != 5 {
		t.Fatalf("residents = %d, want 5", len(got))
	}
}

func TestResidentsNeverExceedCapacity(t *testing.T) {
	ops := make([]uint64, 0, 100)
	for i := uint64(0); i < 100; i++ {
		ops = append(ops, i)
	}
	for _, p := range []*Bounded{MaxSize(3), LRU(3)} {
		got := simulate(p, ops)
		if len(got) != 3 {
			t.Fatalf("%s: %d residents, want 3", p, len(got))
		}
		if diff := cmp.Diff([]cachekey.Key{key(97), key(98), key(99)}, got); diff != "" {
			t.Fatalf("%s: residents mismatch (-want +got):\n%s", p, diff)
		}
		if p.Len() != p.Capacity() {
			t.Fatalf("%s: tracked %d keys, capacity %d", p, p.Len(), p.Capacity())
		}
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		kind     string
		capacity int
		want     string
		wantErr  bool
	}{
		{kind: "", want: "none"},
		{kind: "none", want: "none"},
		{kind: "Unbounded", want: "none"},
		{kind: "maxsize", capacity: 2, want: "maxsize(2)"},
		{kind: "FIFO", capacity: 3, want: "maxsize(3)"},
		{kind: "lru", capacity: 4, want: "lru(4)"},
		{kind: "maxsize", capacity: 0, wantErr: true},
		{kind: "lru", capacity: -1, wantErr: true},
		{kind: "random", capacity: 1, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			p, err := New(tt.kind, tt.capacity)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v", p)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			s, ok := p.(interface{ String() string })
			if !ok {
				t.Fatalf("policy %T has no String method", p)
			}
			if s.String() != tt.want {
				t.Fatalf("policy = %s, want %s", s.String(), tt.want)
			}
		})
	}
}

func TestBoundedPanicsOnZeroCapacity(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	MaxSize(0)
}
