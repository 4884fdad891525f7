package session

import (
	"fmt"
	"sync"

	"github.com/prepcall/prepcall/internal/analysis"
)

// Registry tracks the active analysis stream client per session id. It is
// session-scoped — constructed by the caller and passed into each controller
// — so lifecycle is testable without global teardown.
//
// The registry enforces the shared-resource policy: the camera and the
// analysis connection belong to exactly one client per session, and a new
// registration for a session id is refused until the previous client has
// been released (which happens only after its Stop has returned, i.e. after
// the camera tracks are free).
type Registry struct {
	mu      sync.Mutex
	clients map[string]*analysis.Client
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]*analysis.Client)}
}

// Register records client as the active stream for sessionID. Returns an
// error if the session already has an active client.
func (r *Registry) Register(sessionID string, client *analysis.Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.clients[sessionID]; exists {
		return fmt.Errorf("session %q already has an active analysis stream", sessionID)
	}
	r.clients[sessionID] = client
	return nil
}

// Release removes the registration for sessionID. Callers must only release
// after the client's Stop has returned. Releasing an unknown id is a no-op.
func (r *Registry) Release(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clients, sessionID)
}

// Get returns the active client for sessionID, or nil.
func (r *Registry) Get(sessionID string) *analysis.Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.clients[sessionID]
}

// Len returns the number of active registrations.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}
