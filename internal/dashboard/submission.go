package dashboard

import (
	"sync"
	"time"

	"dca-console/internal/gateway"
)

type SubmissionState string

const (
	SubmissionPending   SubmissionState = "pending"
	SubmissionSucceeded SubmissionState = "succeeded"
	SubmissionFailed    SubmissionState = "failed"
)

type submissionEvent int

const (
	eventExecuted submissionEvent = iota
	eventFailed
)

// nextSubmissionState only leaves pending; finished submissions never move.
func nextSubmissionState(current SubmissionState, event submissionEvent) SubmissionState {
	if current != SubmissionPending {
		return current
	}
	switch event {
	case eventExecuted:
		return SubmissionSucceeded
	case eventFailed:
		return SubmissionFailed
	}
	return current
}

// Outcome is the observable state of a Submission.
type Outcome struct {
	ID          string          `json:"id"`
	Kind        gateway.TxKind  `json:"kind"`
	OrderID     string          `json:"order_id,omitempty"`
	State       SubmissionState `json:"state"`
	Digest      string          `json:"digest,omitempty"`
	ExplorerURL string          `json:"explorer_url,omitempty"`
	Error       string          `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	FinishedAt  *time.Time      `json:"finished_at,omitempty"`
}

// Submission tracks one transaction from build to execution. Done is closed
// once the outcome is final.
type Submission struct {
	mu      sync.Mutex
	outcome Outcome
	done    chan struct{}
}

func newSubmission(id string, kind gateway.TxKind, orderID string, now time.Time) *Submission {
	return &Submission{
		outcome: Outcome{
			ID:        id,
			Kind:      kind,
			OrderID:   orderID,
			State:     SubmissionPending,
			CreatedAt: now,
		},
		done: make(chan struct{}),
	}
}

func (s *Submission) ID() string {
	return s.outcome.ID
}

func (s *Submission) Done() <-chan struct{} {
	return s.done
}

func (s *Submission) Outcome() Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outcome
}

func (s *Submission) succeed(digest, explorerURL string, now time.Time) bool {
	return s.finish(eventExecuted, func(o *Outcome) {
		o.Digest = digest
		o.ExplorerURL = explorerURL
	}, now)
}

func (s *Submission) fail(err error, now time.Time) bool {
	return s.finish(eventFailed, func(o *Outcome) {
		o.Error = FormatError(err)
	}, now)
}

func (s *Submission) finish(event submissionEvent, apply func(*Outcome), now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := nextSubmissionState(s.outcome.State, event)
	if next == s.outcome.State {
		return false
	}
	s.outcome.State = next
	apply(&s.outcome)
	finished := now
	s.outcome.FinishedAt = &finished
	close(s.done)
	return true
}
