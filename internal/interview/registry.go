package interview

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"medisyn/internal/llm"
)

// ErrSessionNotFound is returned by Get for unknown or expired sessions.
var ErrSessionNotFound = errors.New("interview: session not found")

// Registry owns the active sessions. Lookups are keyed by session id and
// safe for concurrent use. Sessions idle longer than the TTL are swept by
// a background goroutine so memory stays bounded; report generation and
// explicit deletion evict eagerly.
type Registry struct {
	llm llm.Client
	ttl time.Duration
	log zerolog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session

	done chan struct{}
	once sync.Once
}

// SessionInfo is a snapshot row for the debug listing.
type SessionInfo struct {
	ID          string    `json:"session_id"`
	PatientName string    `json:"patient_name,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	Completed   bool      `json:"completed"`
	TurnCount   int       `json:"turn_count"`
}

// NewRegistry constructs a registry and starts the eviction sweeper.
func NewRegistry(client llm.Client, ttl time.Duration, log zerolog.Logger) *Registry {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	r := &Registry{
		llm:      client,
		ttl:      ttl,
		log:      log.With().Str("component", "session_registry").Logger(),
		sessions: make(map[string]*Session),
		done:     make(chan struct{}),
	}
	go r.sweep()
	return r
}

// Create registers a new session and returns it.
func (r *Registry) Create(opts ...SessionOption) *Session {
	s := NewSession(uuid.NewString(), r.llm, r.log, opts...)
	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()
	r.log.Info().Str("session_id", s.ID).Msg("session created")
	return s
}

// Get looks up an active session.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Delete removes a session. Deleting an unknown id is a no-op.
func (r *Registry) Delete(id string) {
	r.mu.Lock()
	_, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if ok {
		r.log.Info().Str("session_id", id).Msg("session removed")
	}
}

// Len returns the number of active sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// List returns a snapshot of the active sessions. Session state is read
// after the registry lock is released so a session busy with a model call
// cannot stall Create or Delete.
func (r *Registry) List() []SessionInfo {
	snapshot := r.snapshot()
	out := make([]SessionInfo, 0, len(snapshot))
	for _, s := range snapshot {
		out = append(out, SessionInfo{
			ID:          s.ID,
			PatientName: s.PatientName,
			CreatedAt:   s.CreatedAt,
			Completed:   s.Completed(),
			TurnCount:   len(s.Turns()),
		})
	}
	return out
}

// Close stops the eviction sweeper.
func (r *Registry) Close() {
	r.once.Do(func() { close(r.done) })
}

func (r *Registry) sweep() {
	interval := r.ttl / 2
	if interval > time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-r.done:
			return
		case now := <-ticker.C:
			r.evictIdle(now)
		}
	}
}

func (r *Registry) evictIdle(now time.Time) {
	var expired []string
	for id, s := range r.snapshot() {
		if now.Sub(s.idleSince()) > r.ttl {
			expired = append(expired, id)
		}
	}
	if len(expired) == 0 {
		return
	}
	r.mu.Lock()
	for _, id := range expired {
		if _, ok := r.sessions[id]; ok {
			delete(r.sessions, id)
			r.log.Info().Str("session_id", id).Msg("session expired")
		}
	}
	r.mu.Unlock()
}

func (r *Registry) snapshot() map[string]*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]*Session, len(r.sessions))
	for id, s := range r.sessions {
		out[id] = s
	}
	return out
}
