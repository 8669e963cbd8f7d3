package registry

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Schema defines the channels table: one row per chat channel, mapping the
// channel to its backend table and per-channel settings.
//
// The key_column is which cell carries the duplicate-checked item name.
// The timezone drives recurring-task date arithmetic for the channel.
const Schema = `
CREATE TABLE IF NOT EXISTS channels (
    channel_id TEXT PRIMARY KEY,
    table_name TEXT NOT NULL UNIQUE,
    key_column INTEGER NOT NULL DEFAULT 0,
    timezone   TEXT NOT NULL DEFAULT 'UTC',
    updated_at INTEGER NOT NULL DEFAULT (strftime('%s','now'))
);

CREATE TRIGGER IF NOT EXISTS trg_channels_updated_at
AFTER UPDATE ON channels
FOR EACH ROW
BEGIN
    UPDATE channels SET updated_at = strftime('%s','now') WHERE channel_id = NEW.channel_id;
END;
`

// OpenDB opens the SQLite metadata database at path with WAL mode and a busy
// timeout, so registry reads tolerate a concurrent writer.
func OpenDB(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("registry: open %s: %w", path, err)
	}
	return db, nil
}

// Init creates the channels table if it doesn't exist.
func Init(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}
