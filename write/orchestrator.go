package write

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"time"

	"github.com/listora/listora"
	"github.com/listora/listora/lock"
	"github.com/listora/listora/sheets"
	"github.com/listora/listora/snapshot"
)

// Orchestrator runs one end-to-end mutation: acquire the resource lock, take
// a pre-write snapshot, conditionally append (with transient-failure retry),
// and roll back from the snapshot when the write fails after validation.
//
// Phases: locking -> snapshotting -> writing -> success, with a bounded loop
// from writing back to snapshotting on row-count mismatch, and a rollback
// branch on any write failure that is neither a mismatch nor a duplicate.
// The lock is released on every exit path.
//
// Callers must not wrap their own retries around Orchestrator methods; retry
// is fully owned here.
type Orchestrator struct {
	store  sheets.Store
	locks  *lock.Manager
	snaps  *snapshot.Manager
	writer *Writer
	opts   listora.Options
}

// NewOrchestrator wires an Orchestrator from its collaborators. locks may be
// shared with other orchestrators addressing the same backend; per-key
// serialization only holds among orchestrators sharing one lock manager.
func NewOrchestrator(store sheets.Store, locks *lock.Manager, opts listora.Options) *Orchestrator {
	return &Orchestrator{
		store:  store,
		locks:  locks,
		snaps:  snapshot.NewManager(store, opts.BestEffortBackup),
		writer: NewWriter(store),
		opts:   opts,
	}
}

// AppendWithDuplicateCheck appends rows to key if the table still looks the
// way it did when snapshotted and no key-column collision exists. It is the
// single append path used by every write use case.
//
// keyColumnIndex < 0 disables the duplicate check.
func (o *Orchestrator) AppendWithDuplicateCheck(ctx context.Context, key string, rows []listora.Row, keyColumnIndex int) listora.OperationResult {
	if len(rows) == 0 {
		return listora.Ok("nothing to append")
	}
	start := time.Now()
	// The orchestration enforces its own wall-clock cap (lock wait + retries
	// + backoff), independent of the lock manager's force-release timeout.
	ctx, cancel := context.WithTimeout(ctx, o.opts.MaxTime)
	defer cancel()

	lease, err := o.locks.Acquire(ctx, key)
	if err != nil {
		return listora.Failed(fmt.Sprintf("%s is busy, try again shortly", key), err)
	}
	defer lease.Release()

	for attempt := 1; attempt <= o.opts.MaxWriteAttempts; attempt++ {
		if err := listora.TimedOut(ctx, "append orchestration", start, o.opts.MaxTime); err != nil {
			return listora.Failed("the operation ran out of time", err)
		}

		snap, err := o.snaps.Take(ctx, key)
		if err != nil {
			return listora.Failed("could not back up current content", err)
		}
		if snap.IsEmpty() {
			log.Info("proceeding with empty snapshot", "key", key, "attempt", attempt)
		}

		err = listora.Retry(ctx, o.opts, func(ctx context.Context) error {
			return o.writer.ConditionalAppend(ctx, key, rows, keyColumnIndex, len(snap.Rows))
		}, nil)
		if err == nil {
			return listora.Ok(fmt.Sprintf("added %d row(s)", len(rows)))
		}

		switch listora.CodeOf(err) {
		case listora.RowCountMismatch:
			// Someone slipped a write in between snapshot and append. The
			// next iteration re-validates everything, duplicate check
			// included, against a fresh read.
			log.Debug("row count moved, re-snapshotting", "key", key, "attempt", attempt)
			listora.RandomSleep(ctx)
			continue
		case listora.DuplicateKey:
			// Nothing was written; no rollback needed.
			var dup any
			var le listora.Error
			if errors.As(err, &le) {
				dup = le.UserData
			}
			return listora.Failed(fmt.Sprintf("%v already exists", dup), err)
		default:
			return o.failWithRollback(ctx, snap, err)
		}
	}
	return listora.Failed(
		fmt.Sprintf("%s kept changing, could not converge after %d attempts", key, o.opts.MaxWriteAttempts),
		listora.Error{Code: listora.RowCountMismatch, Err: fmt.Errorf("write attempts exhausted"), UserData: key},
	)
}

// OverwriteAll replaces the entire content of key under the same lock and
// retry discipline as appends. Edit/remove/complete flows rewrite the whole
// table with it after computing the new content from a locked read; callers
// that need the read to happen under the lock should use Rewrite.
func (o *Orchestrator) OverwriteAll(ctx context.Context, key string, rows []listora.Row) listora.OperationResult {
	return o.Rewrite(ctx, key, func([]listora.Row) ([]listora.Row, string, error) {
		return rows, fmt.Sprintf("wrote %d row(s)", len(rows)), nil
	})
}

// Rewrite reads key's live content under the lock, applies transform to it
// and clears-and-rewrites the table with the result. transform returns the
// new rows and a success message; returning an error aborts with no write.
// A failed rewrite is rolled back from the pre-write snapshot.
func (o *Orchestrator) Rewrite(ctx context.Context, key string, transform func(live []listora.Row) ([]listora.Row, string, error)) listora.OperationResult {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, o.opts.MaxTime)
	defer cancel()

	lease, err := o.locks.Acquire(ctx, key)
	if err != nil {
		return listora.Failed(fmt.Sprintf("%s is busy, try again shortly", key), err)
	}
	defer lease.Release()

	if err := listora.TimedOut(ctx, "rewrite orchestration", start, o.opts.MaxTime); err != nil {
		return listora.Failed("the operation ran out of time", err)
	}

	snap, err := o.snaps.Take(ctx, key)
	if err != nil {
		return listora.Failed("could not back up current content", err)
	}

	next, message, err := transform(listora.CloneRows(snap.Rows))
	if err != nil {
		return listora.Failed(err.Error(), err)
	}

	err = listora.Retry(ctx, o.opts, func(ctx context.Context) error {
		return o.store.ClearAndWrite(ctx, key, next)
	}, nil)
	if err != nil {
		return o.failWithRollback(ctx, snap, err)
	}
	return listora.Ok(message)
}

// failWithRollback attempts to restore the pre-write snapshot and returns a
// failure carrying the original error. A rollback failure is logged but never
// masks the original failure reason.
func (o *Orchestrator) failWithRollback(ctx context.Context, snap snapshot.Snapshot, writeErr error) listora.OperationResult {
	restored, rbErr := o.snaps.Rollback(ctx, snap)
	switch {
	case rbErr != nil:
		log.Error("rollback failed", "key", snap.Key, "error", rbErr.Error())
		return listora.Failed("the write failed and restoring the previous content also failed", writeErr)
	case restored:
		log.Warn("write failed, previous content restored", "key", snap.Key, "error", writeErr.Error())
		return listora.Failed("the write failed; previous content was restored", writeErr)
	default:
		// Empty snapshot: nothing trustworthy to restore from.
		log.Warn("write failed, no snapshot to restore", "key", snap.Key, "error", writeErr.Error())
		return listora.Failed("the write failed and no backup was available", writeErr)
	}
}
