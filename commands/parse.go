package commands

import (
	"fmt"
	"strings"

	"github.com/listora/listora"
)

// Table column layout for list items. The registry's key_column normally
// points at ColName.
const (
	ColName = iota
	ColQty
	ColNote
	ColRecurrence
	ColDueDate
)

// Item is one parsed list entry.
type Item struct {
	Name       string
	Qty        string
	Note       string
	Recurrence string
	DueDate    string
}

// Row converts the item to its table representation.
func (it Item) Row() listora.Row {
	return listora.Row{it.Name, it.Qty, it.Note, it.Recurrence, it.DueDate}
}

// ParseLine parses one pipe-separated input line:
//
//	name | qty | note | recurrence | due date
//
// Only the name is required. Recurrence, when present, must be one of the
// supported schedules (see NextDue).
func ParseLine(line string) (Item, error) {
	parts := strings.Split(line, "|")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	if parts[0] == "" {
		return Item{}, fmt.Errorf("item name is required")
	}
	it := Item{Name: parts[0]}
	if len(parts) > 1 {
		it.Qty = parts[1]
	}
	if len(parts) > 2 {
		it.Note = parts[2]
	}
	if len(parts) > 3 {
		it.Recurrence = strings.ToLower(parts[3])
		if !ValidRecurrence(it.Recurrence) {
			return Item{}, fmt.Errorf("unknown recurrence %q (use daily, weekly or monthly)", parts[3])
		}
	}
	if len(parts) > 4 {
		it.DueDate = parts[4]
	}
	return it, nil
}

// ParseLines parses a multi-line input, skipping blank lines. The first bad
// line fails the whole batch so a partially-parsed list is never written.
func ParseLines(input string) ([]Item, error) {
	var items []Item
	for _, line := range strings.Split(input, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		it, err := ParseLine(line)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("no items in input")
	}
	return items, nil
}
