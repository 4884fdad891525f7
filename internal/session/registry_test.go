package session

import (
	"testing"

	"github.com/prepcall/prepcall/internal/analysis"
)

func newTestClient(t *testing.T) *analysis.Client {
	t.Helper()
	c, err := analysis.NewClient(analysis.DefaultConfig("ws://localhost:1/ws", "test-client"))
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestRegistry_RegisterAndRelease(t *testing.T) {
	r := NewRegistry()
	c := newTestClient(t)

	if err := r.Register("s1", c); err != nil {
		t.Fatalf("Register() = %v", err)
	}
	if got := r.Get("s1"); got != c {
		t.Error("Get returned a different client")
	}
	if got := r.Len(); got != 1 {
		t.Errorf("Len() = %d, want 1", got)
	}

	r.Release("s1")
	if got := r.Get("s1"); got != nil {
		t.Error("Get after Release returned a client")
	}
	r.Release("s1") // unknown id is a no-op
}

// A session id holds at most one stream client until released.
func TestRegistry_RefusesDuplicate(t *testing.T) {
	r := NewRegistry()

	if err := r.Register("s1", newTestClient(t)); err != nil {
		t.Fatal(err)
	}
	if err := r.Register("s1", newTestClient(t)); err == nil {
		t.Error("second Register for the same session succeeded")
	}

	r.Release("s1")
	if err := r.Register("s1", newTestClient(t)); err != nil {
		t.Errorf("Register after Release = %v", err)
	}
}
