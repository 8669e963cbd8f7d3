// Package commands implements the chat-facing use cases (add, edit, remove,
// complete-recurring) on top of the write orchestrator. It is chat-platform
// agnostic: handlers receive a channel ID and text, and return an
// OperationResult whose Message is safe to relay to the user.
//
// Handlers never wrap their own retries around orchestrator calls; retry is
// fully owned by the write layer.
package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/listora/listora"
	"github.com/listora/listora/registry"
	"github.com/listora/listora/sheets"
	"github.com/listora/listora/write"
)

// Service wires the use cases to their collaborators.
type Service struct {
	store sheets.Store
	orch  *write.Orchestrator
	reg   *registry.Registry
}

// NewService creates the command service.
func NewService(store sheets.Store, orch *write.Orchestrator, reg *registry.Registry) *Service {
	return &Service{store: store, orch: orch, reg: reg}
}

func (s *Service) channel(ctx context.Context, channelID string) (registry.Channel, error) {
	ch, err := s.reg.Get(ctx, channelID)
	if err != nil {
		return registry.Channel{}, fmt.Errorf("channel %s is not set up: %w", channelID, err)
	}
	return ch, nil
}

// AddItem parses one input line and appends it to the channel's table with
// the duplicate check on the channel's key column.
func (s *Service) AddItem(ctx context.Context, channelID, line string) listora.OperationResult {
	ch, err := s.channel(ctx, channelID)
	if err != nil {
		return listora.Failed(err.Error(), err)
	}
	it, err := ParseLine(line)
	if err != nil {
		return listora.Failed(err.Error(), err)
	}
	res := s.orch.AppendWithDuplicateCheck(ctx, ch.TableName, []listora.Row{it.Row()}, ch.KeyColumn)
	if res.Succeeded {
		res.Message = fmt.Sprintf("added %s", it.Name)
	}
	return res
}

// AddItems parses a multi-line input and appends all items in one
// orchestration, so the batch is admitted or rejected as a unit.
func (s *Service) AddItems(ctx context.Context, channelID, input string) listora.OperationResult {
	ch, err := s.channel(ctx, channelID)
	if err != nil {
		return listora.Failed(err.Error(), err)
	}
	items, err := ParseLines(input)
	if err != nil {
		return listora.Failed(err.Error(), err)
	}
	rows := make([]listora.Row, len(items))
	for i := range items {
		rows[i] = items[i].Row()
	}
	return s.orch.AppendWithDuplicateCheck(ctx, ch.TableName, rows, ch.KeyColumn)
}

// AddItemToChannels appends the same parsed line to several channels at
// once, one orchestration per channel. Distinct channels map to distinct
// tables, so the fan-out runs concurrently without lock contention; results
// are keyed by channel ID and one channel's failure never blocks another's.
func (s *Service) AddItemToChannels(ctx context.Context, channelIDs []string, line string) map[string]listora.OperationResult {
	results := make([]listora.OperationResult, len(channelIDs))
	tr := listora.NewTaskRunner(ctx, 4)
	for i, id := range channelIDs {
		tr.Go(func() error {
			results[i] = s.AddItem(tr.GetContext(), id, line)
			return nil
		})
	}
	tr.Wait()

	out := make(map[string]listora.OperationResult, len(channelIDs))
	for i, id := range channelIDs {
		out[id] = results[i]
	}
	return out
}

// ListItems reads the channel's current rows. Plain reads take no lock and
// may observe state concurrent with an in-flight mutation.
func (s *Service) ListItems(ctx context.Context, channelID string) ([]listora.Row, error) {
	ch, err := s.channel(ctx, channelID)
	if err != nil {
		return nil, err
	}
	return s.store.ReadRows(ctx, ch.TableName)
}

// EditItem replaces the row whose key column matches name with the parsed
// replacement line, rewriting the table under the write lock.
func (s *Service) EditItem(ctx context.Context, channelID, name, newLine string) listora.OperationResult {
	ch, err := s.channel(ctx, channelID)
	if err != nil {
		return listora.Failed(err.Error(), err)
	}
	it, err := ParseLine(newLine)
	if err != nil {
		return listora.Failed(err.Error(), err)
	}
	return s.orch.Rewrite(ctx, ch.TableName, func(live []listora.Row) ([]listora.Row, string, error) {
		i := findByKey(live, ch.KeyColumn, name)
		if i < 0 {
			return nil, "", fmt.Errorf("%s not found", name)
		}
		// Renaming onto another existing item would create a duplicate.
		if listora.NormalizeKey(it.Name) != listora.NormalizeKey(name) {
			if j := findByKey(live, ch.KeyColumn, it.Name); j >= 0 {
				return nil, "", fmt.Errorf("%s already exists", it.Name)
			}
		}
		live[i] = it.Row()
		return live, fmt.Sprintf("updated %s", name), nil
	})
}

// RemoveItem deletes the row whose key column matches name.
func (s *Service) RemoveItem(ctx context.Context, channelID, name string) listora.OperationResult {
	ch, err := s.channel(ctx, channelID)
	if err != nil {
		return listora.Failed(err.Error(), err)
	}
	return s.orch.Rewrite(ctx, ch.TableName, func(live []listora.Row) ([]listora.Row, string, error) {
		i := findByKey(live, ch.KeyColumn, name)
		if i < 0 {
			return nil, "", fmt.Errorf("%s not found", name)
		}
		return append(live[:i], live[i+1:]...), fmt.Sprintf("removed %s", name), nil
	})
}

// CompleteRecurring marks a recurring item done by advancing its due date to
// the next occurrence in the channel's timezone. Completing a non-recurring
// item removes it instead.
func (s *Service) CompleteRecurring(ctx context.Context, channelID, name string, now time.Time) listora.OperationResult {
	ch, err := s.channel(ctx, channelID)
	if err != nil {
		return listora.Failed(err.Error(), err)
	}
	loc := ch.Location()
	return s.orch.Rewrite(ctx, ch.TableName, func(live []listora.Row) ([]listora.Row, string, error) {
		i := findByKey(live, ch.KeyColumn, name)
		if i < 0 {
			return nil, "", fmt.Errorf("%s not found", name)
		}
		rec := live[i].Cell(ColRecurrence)
		if rec == "" {
			return append(live[:i], live[i+1:]...), fmt.Sprintf("completed %s", name), nil
		}
		next, err := NextDue(rec, now, loc)
		if err != nil {
			return nil, "", err
		}
		row := append(listora.Row(nil), live[i]...)
		for len(row) <= ColDueDate {
			row = append(row, "")
		}
		row[ColDueDate] = next.Format(DateLayout)
		live[i] = row
		return live, fmt.Sprintf("completed %s, next due %s", name, next.Format(DateLayout)), nil
	})
}

func findByKey(rows []listora.Row, keyCol int, name string) int {
	want := listora.NormalizeKey(name)
	for i, r := range rows {
		if listora.NormalizeKey(r.Cell(keyCol)) == want {
			return i
		}
	}
	return -1
}
