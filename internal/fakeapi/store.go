// Package fakeapi is an in-memory stand-in for the activity backend, used for
// local development and integration tests.
package fakeapi

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dgnsrekt/outingsync/internal/activity"
	"github.com/dgnsrekt/outingsync/internal/api"
)

var (
	ErrActivityNotFound = errors.New("activity not found")
	ErrEmptyContent     = errors.New("content is empty")
)

// Store holds activities and their comment threads.
type Store struct {
	mu         sync.RWMutex
	activities map[int64]*api.Activity
	comments   map[int64][]api.Comment
	nextID     int64
	last       time.Time
	now        func() time.Time
}

// NewStore creates an empty store using clock now.
func NewStore(now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{
		activities: make(map[int64]*api.Activity),
		comments:   make(map[int64][]api.Comment),
		nextID:     1,
		now:        now,
	}
}

// stamp returns a strictly increasing UTC timestamp so that "since" queries
// never skip an item. Caller holds mu.
func (s *Store) stamp() time.Time {
	t := s.now().UTC()
	if !t.After(s.last) {
		t = s.last.Add(time.Millisecond)
	}
	s.last = t
	return t
}

// CreateActivity adds an activity in the collecting phase.
func (s *Store) CreateActivity(id int64, title string, owner api.User) api.Activity {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.stamp()
	a := &api.Activity{
		ID:         id,
		Title:      title,
		User:       owner,
		Collecting: true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.activities[id] = a
	return *a
}

// Activity returns a copy of activity id.
func (s *Store) Activity(id int64) (api.Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.activities[id]
	if !ok {
		return api.Activity{}, ErrActivityNotFound
	}
	return *a, nil
}

// UpdateActivity applies patch and bumps updated_at. Patches that leave the
// phase flags in an impossible or backward state are refused.
func (s *Store) UpdateActivity(id int64, patch api.ActivityPatch) (api.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.activities[id]
	if !ok {
		return api.Activity{}, ErrActivityNotFound
	}

	from, err := activity.PhaseFromFlags(a.Collecting, a.Voting, a.Finalized, a.Completed)
	if err != nil {
		return api.Activity{}, err
	}
	next := patch.Apply(*a)
	to, err := activity.PhaseFromFlags(next.Collecting, next.Voting, next.Finalized, next.Completed)
	if err != nil {
		return api.Activity{}, err
	}
	if !activity.CanTransition(from, to) {
		return api.Activity{}, fmt.Errorf("%w: %s to %s", activity.ErrIllegalTransition, from, to)
	}

	next.UpdatedAt = s.stamp()
	*a = next
	return next, nil
}

// Comments returns the thread of activity id created strictly after since.
// A zero since returns the whole thread.
func (s *Store) Comments(id int64, since time.Time) ([]api.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.activities[id]; !ok {
		return nil, ErrActivityNotFound
	}

	out := []api.Comment{}
	for _, c := range s.comments[id] {
		if since.IsZero() || c.CreatedAt.After(since) {
			out = append(out, c)
		}
	}
	return out, nil
}

// AddComment appends a comment by author and assigns its id and timestamp.
func (s *Store) AddComment(id int64, author api.User, content string) (api.Comment, error) {
	if strings.TrimSpace(content) == "" {
		return api.Comment{}, ErrEmptyContent
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.activities[id]; !ok {
		return api.Comment{}, ErrActivityNotFound
	}

	c := api.Comment{
		ID:        s.nextID,
		Content:   content,
		CreatedAt: s.stamp(),
		User:      author,
	}
	s.nextID++
	s.comments[id] = append(s.comments[id], c)
	return c, nil
}
