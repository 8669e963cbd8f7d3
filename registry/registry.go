// Package registry stores per-channel metadata in SQLite: which backend
// table a chat channel writes to, which column is the duplicate-check key,
// and the channel's timezone for recurring-task scheduling.
package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrChannelNotFound is returned when no channel row exists for an ID.
var ErrChannelNotFound = errors.New("channel not found")

// Channel is one row from the channels table.
type Channel struct {
	ChannelID string `json:"channel_id"`
	TableName string `json:"table_name"`
	KeyColumn int    `json:"key_column"`
	Timezone  string `json:"timezone"`
	UpdatedAt int64  `json:"updated_at"`
}

// Location resolves the channel's timezone, falling back to UTC when the
// stored name does not load.
func (c Channel) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Registry provides CRUD operations on the channels table.
type Registry struct {
	db *sql.DB
}

// New creates a Registry backed by the given database. The database must
// have the channels schema applied (via Init).
func New(db *sql.DB) *Registry {
	return &Registry{db: db}
}

// Open opens (or creates) the metadata database at path and applies the schema.
func Open(path string) (*Registry, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}
	if err := Init(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("registry: init schema: %w", err)
	}
	return New(db), nil
}

// Close closes the underlying database.
func (r *Registry) Close() error {
	return r.db.Close()
}

// Upsert inserts or updates a channel row.
func (r *Registry) Upsert(ctx context.Context, c Channel) error {
	if c.ChannelID == "" || c.TableName == "" {
		return fmt.Errorf("registry: channel_id and table_name are required")
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO channels (channel_id, table_name, key_column, timezone)
VALUES (?, ?, ?, COALESCE(NULLIF(?, ''), 'UTC'))
ON CONFLICT(channel_id) DO UPDATE SET
    table_name = excluded.table_name,
    key_column = excluded.key_column,
    timezone   = excluded.timezone`,
		c.ChannelID, c.TableName, c.KeyColumn, c.Timezone)
	if err != nil {
		return fmt.Errorf("registry: upsert channel %s: %w", c.ChannelID, err)
	}
	return nil
}

// Get returns the channel row for channelID, or ErrChannelNotFound.
func (r *Registry) Get(ctx context.Context, channelID string) (Channel, error) {
	var c Channel
	err := r.db.QueryRowContext(ctx, `
SELECT channel_id, table_name, key_column, timezone, updated_at
FROM channels WHERE channel_id = ?`, channelID).
		Scan(&c.ChannelID, &c.TableName, &c.KeyColumn, &c.Timezone, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Channel{}, ErrChannelNotFound
	}
	if err != nil {
		return Channel{}, fmt.Errorf("registry: get channel %s: %w", channelID, err)
	}
	return c, nil
}

// List returns all channels ordered by ID.
func (r *Registry) List(ctx context.Context) ([]Channel, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT channel_id, table_name, key_column, timezone, updated_at
FROM channels ORDER BY channel_id`)
	if err != nil {
		return nil, fmt.Errorf("registry: list channels: %w", err)
	}
	defer rows.Close()

	var result []Channel
	for rows.Next() {
		var c Channel
		if err := rows.Scan(&c.ChannelID, &c.TableName, &c.KeyColumn, &c.Timezone, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("registry: scan channel: %w", err)
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

// Delete removes a channel row; deleting a missing channel is not an error.
func (r *Registry) Delete(ctx context.Context, channelID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM channels WHERE channel_id = ?`, channelID)
	if err != nil {
		return fmt.Errorf("registry: delete channel %s: %w", channelID, err)
	}
	return nil
}
