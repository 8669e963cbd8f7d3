package registry

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func openTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := Open(filepath.Join(t.TempDir(), "meta.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func TestUpsertAndGet(t *testing.T) {
	ctx := context.Background()
	r := openTestRegistry(t)

	ch := Channel{ChannelID: "c1", TableName: "groceries", KeyColumn: 0, Timezone: "Europe/Paris"}
	if err := r.Upsert(ctx, ch); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	got, err := r.Get(ctx, "c1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.TableName != "groceries" || got.Timezone != "Europe/Paris" {
		t.Errorf("unexpected channel: %+v", got)
	}
	if got.UpdatedAt == 0 {
		t.Error("UpdatedAt not populated")
	}

	// Upsert over an existing row updates it.
	ch.TableName = "errands"
	if err := r.Upsert(ctx, ch); err != nil {
		t.Fatalf("second Upsert failed: %v", err)
	}
	got, _ = r.Get(ctx, "c1")
	if got.TableName != "errands" {
		t.Errorf("update not applied: %+v", got)
	}
}

func TestGetMissing(t *testing.T) {
	r := openTestRegistry(t)
	if _, err := r.Get(context.Background(), "nope"); !errors.Is(err, ErrChannelNotFound) {
		t.Errorf("got %v, want ErrChannelNotFound", err)
	}
}

func TestUpsertValidation(t *testing.T) {
	r := openTestRegistry(t)
	if err := r.Upsert(context.Background(), Channel{ChannelID: "c1"}); err == nil {
		t.Error("expected error for missing table_name")
	}
}

func TestListAndDelete(t *testing.T) {
	ctx := context.Background()
	r := openTestRegistry(t)

	r.Upsert(ctx, Channel{ChannelID: "c2", TableName: "t2"})
	r.Upsert(ctx, Channel{ChannelID: "c1", TableName: "t1"})

	chans, err := r.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(chans) != 2 || chans[0].ChannelID != "c1" {
		t.Errorf("unexpected list: %+v", chans)
	}

	if err := r.Delete(ctx, "c1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := r.Delete(ctx, "c1"); err != nil {
		t.Errorf("deleting a missing channel should be a no-op: %v", err)
	}
	chans, _ = r.List(ctx)
	if len(chans) != 1 {
		t.Errorf("got %d channels after delete, want 1", len(chans))
	}
}

func TestEmptyTimezoneDefaultsToUTC(t *testing.T) {
	ctx := context.Background()
	r := openTestRegistry(t)

	r.Upsert(ctx, Channel{ChannelID: "c1", TableName: "t1"})
	got, _ := r.Get(ctx, "c1")
	if got.Timezone != "UTC" {
		t.Errorf("got timezone %q, want UTC", got.Timezone)
	}
}

func TestLocationFallback(t *testing.T) {
	c := Channel{Timezone: "Not/AZone"}
	if c.Location().String() != "UTC" {
		t.Errorf("invalid timezone should fall back to UTC, got %s", c.Location())
	}
	c = Channel{Timezone: "America/New_York"}
	if c.Location().String() != "America/New_York" {
		t.Errorf("got %s", c.Location())
	}
}
