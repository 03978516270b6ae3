package server

import (
	"sync"

	"github.com/cliplens/cliplens/internal/pipeline"
)

// Sessions owns one pipeline orchestrator per user. Each user gets exactly
// one active run; starting a new analysis abandons their previous one
// without touching anyone else's.
type Sessions struct {
	factory func(userID string) *pipeline.Orchestrator

	mu       sync.Mutex
	sessions map[string]*pipeline.Orchestrator
}

// NewSessions creates a session registry. factory builds a fully wired
// orchestrator for a user on first use.
func NewSessions(factory func(userID string) *pipeline.Orchestrator) *Sessions {
	return &Sessions{
		factory:  factory,
		sessions: make(map[string]*pipeline.Orchestrator),
	}
}

// Get returns the user's orchestrator, creating it on first access.
func (s *Sessions) Get(userID string) *pipeline.Orchestrator {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.sessions[userID]
	if !ok {
		o = s.factory(userID)
		s.sessions[userID] = o
	}
	return o
}
