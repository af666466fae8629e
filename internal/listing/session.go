package listing

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrInFlight is returned when load-more is triggered while a previous
	// trigger is still waiting for its page.
	ErrInFlight = errors.New("listing: load already in progress")
	// ErrClosed is returned when the session was closed before or during a load.
	ErrClosed = errors.New("listing: session closed")
	// ErrCursorRepeated is returned when the backend hands out a cursor the
	// session has already followed.
	ErrCursorRepeated = errors.New("listing: cursor already followed")
)

// Session owns a listing for the lifetime of one page view. Only one
// load-more runs at a time, and results arriving after Close are dropped.
type Session struct {
	loader *Loader

	mu       sync.Mutex
	state    State
	inFlight bool
	closed   bool
	followed map[string]struct{}
}

// NewSession seeds a session with its initial state.
func NewSession(loader *Loader, initial State) *Session {
	return &Session{loader: loader, state: initial, followed: make(map[string]struct{})}
}

// State returns the current snapshot.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LoadMore fetches the next page and appends it.
func (s *Session) LoadMore(ctx context.Context) (State, error) {
	s.mu.Lock()
	switch {
	case s.closed:
		s.mu.Unlock()
		return State{}, ErrClosed
	case s.inFlight:
		st := s.state
		s.mu.Unlock()
		return st, ErrInFlight
	case !s.state.CanLoadMore():
		st := s.state
		s.mu.Unlock()
		return st, ErrExhausted
	}
	current := s.state
	url := current.NextPage()
	if _, ok := s.followed[url]; ok {
		s.mu.Unlock()
		return current, fmt.Errorf("%w: %s", ErrCursorRepeated, url)
	}
	s.inFlight = true
	s.mu.Unlock()

	next, err := s.loader.LoadMore(ctx, current)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight = false
	if s.closed {
		return State{}, ErrClosed
	}
	s.state = next
	if err == nil {
		s.followed[url] = struct{}{}
	}
	return next, err
}

// Drain loads pages until the listing is exhausted. A cursor that points
// back at an already loaded page stops it with ErrCursorRepeated.
func (s *Session) Drain(ctx context.Context) (State, error) {
	for {
		st, err := s.LoadMore(ctx)
		if errors.Is(err, ErrExhausted) {
			return st, nil
		}
		if err != nil {
			return st, err
		}
	}
}

// Close marks the session as torn down.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}
