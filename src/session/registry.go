package session

import (
	"errors"
	"sync"

	"github.com/voxgate-labs/voxgate-ai/src/logger"
)

// ErrExists is returned by Create when the call already has a session.
var ErrExists = errors.New("session already exists")

// Registry tracks the live sessions of the process, keyed by call SID. It
// also remembers lead data for outbound calls that have been placed but
// whose media stream has not started yet.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	outbound map[string]map[string]string

	log *logger.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		outbound: make(map[string]map[string]string),
		log:      logger.WithPrefix("Registry"),
	}
}

// Create registers a session for id. If one already exists it is returned
// unchanged along with ErrExists; a duplicate start event must never reset
// live call state.
func (r *Registry) Create(id, direction string, cfg Config) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.sessions[id]; ok {
		r.log.Warn("Duplicate session create for %s, keeping original", id)
		return existing, ErrExists
	}

	sess := New(id, direction, cfg)
	if lead, ok := r.outbound[id]; ok {
		sess.SetLead(lead)
		delete(r.outbound, id)
	}
	r.sessions[id] = sess
	r.log.Info("Session %s created (%s), %d active", id, direction, len(r.sessions))
	return sess, nil
}

// Get returns the session for id, if any.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.sessions[id]
	return sess, ok
}

// Remove drops the session for id. Removing an unknown id is a no-op, so
// stop events and status callbacks can race without harm.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return
	}
	delete(r.sessions, id)
	r.log.Info("Session %s removed, %d active", id, len(r.sessions))
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Active returns the ids of all live sessions.
func (r *Registry) Active() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	return ids
}

// TrackOutbound stashes lead data for a placed call so the session picks it
// up when the media stream starts.
func (r *Registry) TrackOutbound(callSID string, lead map[string]string) {
	r.mu.Lock()
	r.outbound[callSID] = lead
	r.mu.Unlock()
}

// ForgetOutbound drops stashed lead data for calls that never connected.
func (r *Registry) ForgetOutbound(callSID string) {
	r.mu.Lock()
	delete(r.outbound, callSID)
	r.mu.Unlock()
}
