// Package mocks provides an in-memory, scriptable stand-in for the remote
// tabular backend, used across package tests. It counts calls per primitive
// and can be told to fail upcoming calls with chosen HTTP statuses, which is
// how retry, rollback and convergence paths are exercised without a network.
package mocks

import (
	"context"
	"net/http"
	"sync"

	"github.com/listora/listora"
	"github.com/listora/listora/sheets"
)

// Call names for counting and scripted failures.
const (
	Read  = "read"
	Appnd = "append"
	Clear = "clearAndWrite"
)

// Store implements sheets.Store in memory.
type Store struct {
	mu      sync.Mutex
	tables  map[string][]listora.Row
	calls   map[string]int
	failing map[string][]error

	// BeforeRead, when set, runs before each ReadRows outside the store
	// lock. Tests use it to interleave a competing write between a caller's
	// snapshot and its conditional re-read.
	BeforeRead func(table string, readCall int)
	// BeforeAppend likewise runs before each AppendRows.
	BeforeAppend func(table string, appendCall int)
}

// NewStore creates an empty mock backend.
func NewStore() *Store {
	return &Store{
		tables:  make(map[string][]listora.Row),
		calls:   make(map[string]int),
		failing: make(map[string][]error),
	}
}

// Seed replaces table's content.
func (s *Store) Seed(table string, rows []listora.Row) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[table] = listora.CloneRows(rows)
}

// Rows returns a copy of table's current content.
func (s *Store) Rows(table string) []listora.Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	return listora.CloneRows(s.tables[table])
}

// Calls reports how many times the named primitive was invoked.
func (s *Store) Calls(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[name]
}

// FailNext scripts the next times invocations of the named primitive to fail
// with the given HTTP status.
func (s *Store) FailNext(name string, status int, times int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < times; i++ {
		s.failing[name] = append(s.failing[name], sheets.StatusError{Code: status, Status: http.StatusText(status)})
	}
}

// FailNextWith scripts the next invocation of the named primitive to fail
// with an arbitrary error (e.g. a transport error carrying no status).
func (s *Store) FailNextWith(name string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing[name] = append(s.failing[name], err)
}

// enter counts the call and pops a scripted failure if one is queued.
func (s *Store) enter(name string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[name]++
	if q := s.failing[name]; len(q) > 0 {
		err := q[0]
		s.failing[name] = q[1:]
		return s.calls[name], err
	}
	return s.calls[name], nil
}

func (s *Store) ReadRows(ctx context.Context, table string) ([]listora.Row, error) {
	if s.BeforeRead != nil {
		s.mu.Lock()
		n := s.calls[Read] + 1
		s.mu.Unlock()
		s.BeforeRead(table, n)
	}
	if _, err := s.enter(Read); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return listora.CloneRows(s.tables[table]), nil
}

func (s *Store) AppendRows(ctx context.Context, table string, rows []listora.Row) error {
	if s.BeforeAppend != nil {
		s.mu.Lock()
		n := s.calls[Appnd] + 1
		s.mu.Unlock()
		s.BeforeAppend(table, n)
	}
	if _, err := s.enter(Appnd); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[table] = append(s.tables[table], listora.CloneRows(rows)...)
	return nil
}

func (s *Store) ClearAndWrite(ctx context.Context, table string, rows []listora.Row) error {
	if _, err := s.enter(Clear); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[table] = listora.CloneRows(rows)
	return nil
}

var _ sheets.Store = (*Store)(nil)
