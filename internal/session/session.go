// Package session holds the traveler query conversation state. It keeps
// an ordered transcript of user and agent turns, submits questions to the
// backend and appends the agent's answer, including the canned replies
// used when the backend is unreachable or returns nothing usable.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"airwatch/internal/backend"
	"airwatch/internal/model"
)

const (
	// backendDownReply is appended without any network call when the
	// backend probe has not succeeded.
	backendDownReply = "Cannot connect to the airspace backend. Please ensure it is running."

	// emptyReply stands in for a successful response whose
	// traveler_response field came back blank.
	emptyReply = "No response received from traveler agent."
)

// Session is safe for concurrent use. At most one query is processed at
// a time; Submit returns false while a prior query is still running.
type Session struct {
	logger    *slog.Logger
	client    *backend.Client
	connected func() bool
	now       func() time.Time

	mu         sync.Mutex
	turns      []model.Turn
	callsign   string
	question   string
	submitting bool
}

func New(logger *slog.Logger, client *backend.Client, connected func() bool) *Session {
	if connected == nil {
		connected = func() bool { return true }
	}
	return &Session{
		logger:    logger,
		client:    client,
		connected: connected,
		now:       time.Now,
	}
}

// SetInput records the draft callsign and question.
func (s *Session) SetInput(callsign, question string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callsign = callsign
	s.question = question
}

// Input returns the current draft callsign and question.
func (s *Session) Input() (callsign, question string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callsign, s.question
}

// Turns returns a copy of the transcript in append order.
func (s *Session) Turns() []model.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// Submitting reports whether a query is currently being processed.
func (s *Session) Submitting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.submitting
}

// Clear empties the transcript and both input fields in one step.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = nil
	s.callsign = ""
	s.question = ""
}

// Submit sends the draft question about the draft callsign, scoped to
// region. The user turn is appended before the backend call so the
// transcript shows the question immediately. It returns false if either
// input is blank after trimming or a prior query is still in flight.
func (s *Session) Submit(ctx context.Context, region string) bool {
	s.mu.Lock()
	callsign := strings.TrimSpace(s.callsign)
	question := strings.TrimSpace(s.question)
	if callsign == "" || question == "" || s.submitting {
		s.mu.Unlock()
		return false
	}
	s.submitting = true
	s.turns = append(s.turns, model.Turn{
		Role:      model.RoleUser,
		Callsign:  callsign,
		Content:   question,
		Timestamp: s.stamp(),
	})
	s.question = ""
	s.mu.Unlock()

	if !s.connected() {
		s.finish(model.Turn{Role: model.RoleAgent, Content: backendDownReply})
		return true
	}

	res, err := s.client.TravelerQuery(ctx, callsign, question, region)
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("traveler query failed", "callsign", callsign, "err", err)
		}
		s.finish(model.Turn{
			Role:    model.RoleAgent,
			Content: fmt.Sprintf("Error processing query: %s", backend.Detail(err)),
		})
		return true
	}

	content := strings.TrimSpace(res.TravelerResponse)
	if content == "" {
		content = emptyReply
	}
	s.finish(model.Turn{
		Role:       model.RoleAgent,
		Content:    content,
		NeedOps:    res.NeedOps,
		OpsSummary: res.OpsSummary,
	})
	return true
}

// finish appends the agent turn and releases the submitting guard.
func (s *Session) finish(turn model.Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	turn.Timestamp = s.stamp()
	s.turns = append(s.turns, turn)
	s.submitting = false
}

// stamp is called with s.mu held.
func (s *Session) stamp() string {
	return s.now().Format("15:04:05")
}
