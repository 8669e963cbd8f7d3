package listora

import "strings"

// Row is one table row: an ordered sequence of cell values.
type Row []string

// Cell returns the value at column i, or "" when the row is too short.
// Backend reads drop trailing empty cells, so short rows are normal.
func (r Row) Cell(i int) string {
	if i < 0 || i >= len(r) {
		return ""
	}
	return r[i]
}

// CloneRows returns a deep copy of rows. Snapshots hold clones so a later
// in-place edit by the caller cannot corrupt the rollback image.
func CloneRows(rows []Row) []Row {
	if rows == nil {
		return nil
	}
	out := make([]Row, len(rows))
	for i := range rows {
		out[i] = append(Row(nil), rows[i]...)
	}
	return out
}

// KeySet collects the values of column keyCol across rows, normalized for
// case-insensitive comparison. Rows too short to have the column are skipped.
func KeySet(rows []Row, keyCol int) map[string]struct{} {
	set := make(map[string]struct{}, len(rows))
	for _, r := range rows {
		if keyCol < len(r) {
			set[NormalizeKey(r[keyCol])] = struct{}{}
		}
	}
	return set
}

// NormalizeKey canonicalizes a key-column value for duplicate comparison.
func NormalizeKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// OperationResult is the structured outcome returned at the orchestration
// boundary. Nothing below that boundary escapes as a panic; remote-facing
// failures are converted into one of these.
type OperationResult struct {
	Succeeded bool
	// Message is human-readable and safe to relay to the end user.
	Message string
	// Err carries the underlying cause for logging; nil on success.
	Err error
}

// Ok builds a successful result.
func Ok(message string) OperationResult {
	return OperationResult{Succeeded: true, Message: message}
}

// Failed builds a failed result.
func Failed(message string, err error) OperationResult {
	return OperationResult{Message: message, Err: err}
}
