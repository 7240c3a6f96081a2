package roster

import (
	"sync"

	"github.com/kirinyoku/roster-go/internal/domain"
)

// Scope memoises the orders already built during one request or job so a
// single call chain never builds the same order twice. A nil *Scope
// disables memoisation.
type Scope struct {
	mu    sync.Mutex
	built map[int64][]domain.RosterEntry
}

func NewScope() *Scope {
	return &Scope{built: make(map[int64][]domain.RosterEntry)}
}

func (s *Scope) lookup(orderID int64) ([]domain.RosterEntry, bool) {
	if s == nil {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.built[orderID]
	return e, ok
}

func (s *Scope) remember(orderID int64, entries []domain.RosterEntry) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.built[orderID] = entries
}

// Built returns how many distinct orders were built in this scope.
func (s *Scope) Built() int {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.built)
}
