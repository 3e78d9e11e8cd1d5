package subchat

import (
	"sync"
	"sync/atomic"
	"time"

	"twind/internal/types"
)

// Status is the lifecycle state of a subchat.
// Terminal states (Completed, Failed) are reached exactly once.
type Status int32

const (
	StatusPending Status = iota
	StatusRunning
	StatusCompleted
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusRunning:
		return "running"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Subchat is one isolated sub-conversation tied to a parent tool call.
type Subchat struct {
	id           string
	parentCallID string
	role         Role
	opening      string
	title        string
	index        int

	state int32 // atomic Status

	mu         sync.Mutex
	transcript []types.Message
	result     string
	startTime  time.Time
	endTime    time.Time
}

// ID returns the subchat identifier.
func (s *Subchat) ID() string { return s.id }

// ParentCallID returns the tool call this subchat belongs to.
func (s *Subchat) ParentCallID() string { return s.parentCallID }

// Role returns the assigned role.
func (s *Subchat) Role() Role { return s.role }

// Title returns the human-readable title.
func (s *Subchat) Title() string { return s.title }

// Status returns the current lifecycle state.
func (s *Subchat) Status() Status {
	return Status(atomic.LoadInt32(&s.state))
}

// Result returns the extracted output. Meaningful only once the subchat
// reached a terminal state.
func (s *Subchat) Result() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// Transcript returns a copy of the conversation so far.
func (s *Subchat) Transcript() []types.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.Message, len(s.transcript))
	copy(out, s.transcript)
	return out
}

func (s *Subchat) setStatus(st Status) {
	atomic.StoreInt32(&s.state, int32(st))
}

func (s *Subchat) appendMessage(msg types.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcript = append(s.transcript, msg)
}

func (s *Subchat) setResult(result string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.result = result
}
