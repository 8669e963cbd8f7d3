// Package write composes lock, snapshot, conditional validation and retry
// into the one mutation entry point every write path goes through. The
// backend has no transactions or conditional writes, so correctness comes
// from full per-key serialization plus optimistic validation of the assumed
// pre-state.
package write

import (
	"context"
	"fmt"

	"github.com/listora/listora"
	"github.com/listora/listora/sheets"
)

// Writer validates an assumed pre-state before performing the actual append;
// it fails closed on any violation.
type Writer struct {
	store sheets.Store
}

// NewWriter creates a conditional Writer over store.
func NewWriter(store sheets.Store) *Writer {
	return &Writer{store: store}
}

// ConditionalAppend re-reads the live table and appends newRows only when
// the live row count equals expectedRowCount and, if keyColumnIndex >= 0,
// none of the new rows' key-column values collide with an existing row's.
//
// A count divergence yields a RowCountMismatch coded error (an optimistic
// conflict the orchestrator may retry against a fresh snapshot). A collision
// yields a DuplicateKey coded error, which is terminal: a duplicate is a
// logical conflict, not a transient race. Transport errors from the re-read
// or the append propagate unwrapped for higher-layer classification.
func (w *Writer) ConditionalAppend(ctx context.Context, key string, newRows []listora.Row, keyColumnIndex, expectedRowCount int) error {
	live, err := w.store.ReadRows(ctx, key)
	if err != nil {
		return err
	}
	if len(live) != expectedRowCount {
		return listora.Error{
			Code:     listora.RowCountMismatch,
			Err:      fmt.Errorf("live row count %d != expected %d", len(live), expectedRowCount),
			UserData: key,
		}
	}
	if keyColumnIndex >= 0 {
		existing := listora.KeySet(live, keyColumnIndex)
		for _, r := range newRows {
			k := listora.NormalizeKey(r.Cell(keyColumnIndex))
			if _, dup := existing[k]; dup {
				return listora.Error{
					Code:     listora.DuplicateKey,
					Err:      fmt.Errorf("key %q already present in %s", r.Cell(keyColumnIndex), key),
					UserData: r.Cell(keyColumnIndex),
				}
			}
			// Also rejects duplicates within the new batch itself.
			existing[k] = struct{}{}
		}
	}
	return w.store.AppendRows(ctx, key, newRows)
}
