// Package session holds the authoritative mutable state of one chat
// conversation and publishes snapshots to observers.
package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/procurechat/pochat/domain"
)

// subscriberBuffer is the per-subscriber snapshot channel capacity. A
// subscriber that falls further behind loses intermediate snapshots; the
// latest state is always reachable via Snapshot.
const subscriberBuffer = 16

// State is an immutable snapshot of the session. Messages and draft contents
// are deep-copied on publication, so holders may read them freely.
type State struct {
	SessionID        string
	Messages         []domain.Message
	Streaming        bool
	StreamingContent string
	Err              string
	PODraft          domain.PODraft
	POReady          bool
	POSubmitted      bool
}

// Store applies state transitions atomically and republishes a snapshot to
// every subscriber after each one. It is the only shared mutable resource of
// the pipeline; all mutators serialize on the store lock.
type Store struct {
	mu     sync.Mutex
	state  State
	subs   map[int]chan State
	nextID int
	logger *slog.Logger
}

// NewStore creates an empty session store.
func NewStore(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		subs:   make(map[int]chan State),
		logger: logger,
	}
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyState()
}

// Subscribe registers an observer. The returned channel receives a snapshot
// after every state transition; the returned func unsubscribes and closes it.
func (s *Store) Subscribe() (<-chan State, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	ch := make(chan State, subscriberBuffer)
	s.subs[id] = ch

	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if sub, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(sub)
		}
	}
}

// SetSessionID records the backend-assigned session identifier.
func (s *Store) SetSessionID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.SessionID = id
	s.broadcast()
}

// AddUserMessage appends a user message to the log and returns its id.
func (s *Store) AddUserMessage(content string, mentions []domain.Mention) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg := domain.Message{
		ID:        domain.NewMessageID(),
		Role:      domain.RoleUser,
		Content:   content,
		Mentions:  mentions,
		Timestamp: time.Now(),
	}
	s.state.Messages = append(s.state.Messages, msg)
	s.broadcast()
	return msg.ID
}

// AddClarification flushes any pending streaming text, then appends an
// assistant message carrying the clarification.
func (s *Store) AddClarification(c domain.Clarification) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushStreamingLocked()
	return s.appendAssistantLocked("", &c)
}

// AddSubmitResult flushes any pending streaming text, then appends an
// assistant message carrying the submission outcome. A successful result
// marks the session as submitted.
func (s *Store) AddSubmitResult(r domain.SubmitResult) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushStreamingLocked()
	if r.Success {
		s.state.POSubmitted = true
	}
	return s.appendAssistantLocked("", &r)
}

// AppendStreaming appends token text to the in-progress assistant reply.
func (s *Store) AppendStreaming(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.StreamingContent += token
	s.broadcast()
}

// FinalizeStreaming flushes the streaming buffer into a finalized assistant
// message. A no-op when the buffer is empty.
func (s *Store) FinalizeStreaming() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.flushStreamingLocked() {
		s.broadcast()
	}
}

// SetStreaming marks whether a request/stream is currently open.
func (s *Store) SetStreaming(streaming bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Streaming = streaming
	s.broadcast()
}

// SetError records a human-readable error message. It deliberately leaves the
// in-flight flag alone: the intent dispatcher owns that flag and clears it
// when the pipeline returns, so an error event cannot wedge the session.
func (s *Store) SetError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Err = msg
	s.broadcast()
}

// MarkClarificationAnswered marks the clarification on the given message as
// answered with the selected value. Idempotent: an already-answered
// clarification is left untouched.
func (s *Store) MarkClarificationAnswered(messageID, selectedValue string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.state.Messages {
		m := &s.state.Messages[i]
		if m.ID != messageID {
			continue
		}
		c, ok := m.Payload.(*domain.Clarification)
		if !ok || c.Answered {
			return
		}
		// Copy-on-write so snapshots already published stay unchanged.
		answered := *c
		answered.Answered = true
		answered.SelectedValue = selectedValue
		m.Payload = &answered
		s.broadcast()
		return
	}
	s.logger.Warn("clarification mark for unknown message", "message_id", messageID)
}

// MergeDraft merges a partial draft update into the held PO draft.
func (s *Store) MergeDraft(d *domain.PODraft) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.PODraft.Merge(d)
	s.broadcast()
}

// SetPOReady marks the draft complete. The flag never reverts within a
// session; only Reset clears it.
func (s *Store) SetPOReady() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.POReady = true
	s.broadcast()
}

// Reset returns every field to its initial empty value. Callers must not
// reset while a stream is in flight.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = State{}
	s.broadcast()
}

// flushStreamingLocked moves a non-empty streaming buffer into a finalized
// assistant message. Caller holds the lock.
func (s *Store) flushStreamingLocked() bool {
	if s.state.StreamingContent == "" {
		return false
	}
	s.state.Messages = append(s.state.Messages, domain.Message{
		ID:        domain.NewMessageID(),
		Role:      domain.RoleAssistant,
		Content:   s.state.StreamingContent,
		Timestamp: time.Now(),
	})
	s.state.StreamingContent = ""
	return true
}

// appendAssistantLocked appends an assistant message and broadcasts. Caller
// holds the lock.
func (s *Store) appendAssistantLocked(content string, payload domain.MessagePayload) string {
	msg := domain.Message{
		ID:        domain.NewMessageID(),
		Role:      domain.RoleAssistant,
		Content:   content,
		Timestamp: time.Now(),
		Payload:   payload,
	}
	s.state.Messages = append(s.state.Messages, msg)
	s.broadcast()
	return msg.ID
}

// copyState deep-copies the slices so observers never alias store memory.
// Message payloads are treated as immutable (copy-on-write on mutation).
func (s *Store) copyState() State {
	snap := s.state
	snap.Messages = append([]domain.Message(nil), s.state.Messages...)
	if s.state.PODraft.Items != nil {
		snap.PODraft.Items = append([]domain.LineItem(nil), s.state.PODraft.Items...)
	}
	return snap
}

// broadcast publishes the current state to all subscribers. Slow subscribers
// drop intermediate snapshots rather than block the writer. Caller holds the
// lock.
func (s *Store) broadcast() {
	if len(s.subs) == 0 {
		return
	}
	snap := s.copyState()
	for id, ch := range s.subs {
		select {
		case ch <- snap:
		default:
			s.logger.Debug("subscriber behind, dropping snapshot", "subscriber", id)
		}
	}
}
