package sessions

import (
	"errors"
	"strconv"
	"sync"
	"testing"
)

type fakeSession struct{ id string }

func (f *fakeSession) SessionID() string { return f.id }

func TestRegistryRegisterLookup(t *testing.T) {
	r := NewRegistry()
	s := &fakeSession{id: "a"}
	if err := r.Register(s); err != nil {
		t.Fatalf("Register: %v", err)
	}
	got, ok := r.Lookup("a")
	if !ok || got != s {
		t.Fatalf("unexpected lookup result: %v %v", got, ok)
	}
	if err := r.Register(&fakeSession{id: "a"}); !errors.Is(err, ErrSessionExists) {
		t.Fatalf("expected ErrSessionExists, got %v", err)
	}
	if err := r.Register(&fakeSession{}); !errors.Is(err, ErrEmptySessionID) {
		t.Fatalf("expected ErrEmptySessionID, got %v", err)
	}
	if want, got := 1, r.Len(); want != got {
		t.Fatalf("unexpected size: want %d got %d", want, got)
	}
}

func TestRegistryRemoveIfSame(t *testing.T) {
	r := NewRegistry()
	old := &fakeSession{id: "a"}
	_ = r.Register(old)
	r.Remove("a")

	replacement := &fakeSession{id: "a"}
	_ = r.Register(replacement)

	if r.RemoveIfSame("a", old) {
		t.Fatalf("stale session must not remove its replacement")
	}
	if got, _ := r.Lookup("a"); got != replacement {
		t.Fatalf("replacement was evicted")
	}
	if !r.RemoveIfSame("a", replacement) {
		t.Fatalf("expected removal of the registered session")
	}
	if _, ok := r.Lookup("a"); ok {
		t.Fatalf("expected lookup miss after removal")
	}
}

func TestRegistryCloseThenLookup(t *testing.T) {
	r := NewRegistry()
	for i := 0; i < 100; i++ {
		s := &fakeSession{id: strconv.Itoa(i)}
		_ = r.Register(s)

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.RemoveIfSame(s.id, s)
		}()
		wg.Wait()

		if _, ok := r.Lookup(s.id); ok {
			t.Fatalf("lookup after close returned stale session %s", s.id)
		}
	}
}

func TestRegistryDrain(t *testing.T) {
	r := NewRegistry()
	for i := 0; i < 5; i++ {
		_ = r.Register(&fakeSession{id: strconv.Itoa(i)})
	}
	if want, got := 5, len(r.Snapshot()); want != got {
		t.Fatalf("unexpected snapshot size: want %d got %d", want, got)
	}
	drained := r.Drain()
	if want, got := 5, len(drained); want != got {
		t.Fatalf("unexpected drained count: want %d got %d", want, got)
	}
	if want, got := 0, r.Len(); want != got {
		t.Fatalf("unexpected size after drain: want %d got %d", want, got)
	}
	if again := r.Drain(); len(again) != 0 {
		t.Fatalf("second drain returned %d sessions", len(again))
	}
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s := &fakeSession{id: strconv.Itoa(i)}
			if err := r.Register(s); err != nil {
				t.Errorf("Register: %v", err)
				return
			}
			if got, ok := r.Lookup(s.id); !ok || got != s {
				t.Errorf("lookup mismatch for %s", s.id)
			}
		}(i)
	}
	wg.Wait()
	if want, got := 50, r.Len(); want != got {
		t.Fatalf("unexpected size: want %d got %d", want, got)
	}
}
