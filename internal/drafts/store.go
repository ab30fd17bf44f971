package drafts

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"dca-console/internal/state"
	"dca-console/internal/strategy"
)

var ErrNotFound = errors.New("draft not found")

// Store holds the live form fields and the saved drafts, most recent first.
// It is safe for concurrent use.
type Store struct {
	mu     sync.RWMutex
	fields strategy.Fields
	drafts []strategy.Draft
	newID  func() string
}

func New(defaults strategy.Fields) *Store {
	return &Store{
		fields: defaults,
		newID:  func() string { return uuid.NewString() },
	}
}

func (s *Store) Fields() strategy.Fields {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fields
}

func (s *Store) SetFields(f strategy.Fields) {
	s.mu.Lock()
	s.fields = f
	s.mu.Unlock()
}

// Update applies fn to the live fields under the lock and returns the result.
func (s *Store) Update(fn func(*strategy.Fields)) strategy.Fields {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.fields)
	return s.fields
}

// Save snapshots the live fields as a new draft and prepends it.
func (s *Store) Save() strategy.Draft {
	s.mu.Lock()
	defer s.mu.Unlock()
	draft := strategy.NewDraft(s.newID(), s.fields)
	s.drafts = append([]strategy.Draft{draft}, s.drafts...)
	return draft
}

// Load overwrites every draft-backed live field from draft.
func (s *Store) Load(draft strategy.Draft) strategy.Fields {
	return s.Update(draft.ApplyTo)
}

func (s *Store) LoadByID(id string) (strategy.Fields, error) {
	draft, ok := s.Get(id)
	if !ok {
		return strategy.Fields{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s.Load(draft), nil
}

// Delete removes the draft with id and reports whether one was removed.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, d := range s.drafts {
		if d.ID == id {
			s.drafts = append(s.drafts[:i:i], s.drafts[i+1:]...)
			return true
		}
	}
	return false
}

func (s *Store) ApplyTemplate(t strategy.Template) strategy.Fields {
	return s.Update(t.Apply)
}

func (s *Store) List() []strategy.Draft {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]strategy.Draft(nil), s.drafts...)
}

func (s *Store) Get(id string) (strategy.Draft, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, d := range s.drafts {
		if d.ID == id {
			return d, true
		}
	}
	return strategy.Draft{}, false
}

// Persist writes the saved drafts for account to store.
func (s *Store) Persist(ctx context.Context, store state.Store, account string) error {
	return state.SaveDrafts(ctx, store, account, s.List())
}

// Restore replaces the saved drafts with those persisted for account. It
// reports false and leaves the list untouched when nothing was stored.
func (s *Store) Restore(ctx context.Context, store state.Store, account string) (bool, error) {
	snap, ok, err := state.LoadDrafts(ctx, store, account)
	if err != nil || !ok {
		return false, err
	}
	s.mu.Lock()
	s.drafts = snap.Drafts
	s.mu.Unlock()
	return true, nil
}

// Reset drops every saved draft, used when the session account changes.
func (s *Store) Reset() {
	s.mu.Lock()
	s.drafts = nil
	s.mu.Unlock()
}
