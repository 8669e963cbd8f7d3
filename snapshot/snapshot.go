// Package snapshot captures a table's full content before a mutation attempt
// and can restore it when the mutation fails partway. A snapshot lives only
// for the duration of one orchestration and is discarded after success or
// rollback.
package snapshot

import (
	"context"
	log "log/slog"
	"time"

	"github.com/listora/listora"
	"github.com/listora/listora/sheets"
)

// Snapshot is the captured pre-mutation state of one table. Immutable once
// taken; Rows is a deep copy of what the backend returned.
type Snapshot struct {
	Key        string
	Rows       []listora.Row
	CapturedAt time.Time
}

// IsEmpty reports whether the snapshot holds no rows, either because the
// table was empty or because a best-effort read failed.
func (s Snapshot) IsEmpty() bool {
	return len(s.Rows) == 0
}

// Manager takes and restores snapshots against the backend.
type Manager struct {
	store sheets.Store
	// bestEffort names the backup trade-off: proceed without a safety net
	// rather than refuse to operate when the pre-write read fails.
	bestEffort bool
}

// NewManager creates a snapshot Manager. With bestEffort set, a read failure
// during Take yields an empty snapshot and a warning log instead of an error,
// so an inability to back up never blocks the caller's mutation.
func NewManager(store sheets.Store, bestEffort bool) *Manager {
	return &Manager{store: store, bestEffort: bestEffort}
}

// Take captures the current content of key. Under best-effort policy the
// returned error is always nil; an unreadable table produces an empty
// snapshot, which Rollback later refuses to restore from.
func (m *Manager) Take(ctx context.Context, key string) (Snapshot, error) {
	rows, err := m.store.ReadRows(ctx, key)
	if err != nil {
		if !m.bestEffort {
			return Snapshot{}, err
		}
		log.Warn("backup read failed, proceeding without a snapshot", "key", key, "error", err.Error())
		return Snapshot{Key: key, CapturedAt: time.Now()}, nil
	}
	return Snapshot{
		Key:        key,
		Rows:       listora.CloneRows(rows),
		CapturedAt: time.Now(),
	}, nil
}

// Rollback restores key to exactly the snapshot's content by clearing the
// table and rewriting it. It returns false for an empty snapshot: there is
// nothing trustworthy to roll back to, and rewriting with an erroneous empty
// backup would destroy the live table.
func (m *Manager) Rollback(ctx context.Context, s Snapshot) (bool, error) {
	if s.IsEmpty() {
		return false, nil
	}
	if err := m.store.ClearAndWrite(ctx, s.Key, s.Rows); err != nil {
		return false, listora.Error{Code: listora.RollbackFailure, Err: err, UserData: s.Key}
	}
	return true, nil
}
