package commands

import (
	"fmt"
	"time"
)

// DateLayout is the wire format of due dates in the table.
const DateLayout = "2006-01-02"

// ValidRecurrence reports whether s names a supported schedule.
func ValidRecurrence(s string) bool {
	switch s {
	case "", "daily", "weekly", "monthly":
		return true
	}
	return false
}

// NextDue computes the next due date strictly after now for the given
// schedule, evaluated in the channel's timezone so "daily" means the next
// calendar day there, not 24 hours in UTC. Monthly scheduling clamps per
// time.AddDate rules (Jan 31 + 1 month normalizes into March).
func NextDue(recurrence string, now time.Time, loc *time.Location) (time.Time, error) {
	local := now.In(loc)
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	switch recurrence {
	case "daily":
		return day.AddDate(0, 0, 1), nil
	case "weekly":
		return day.AddDate(0, 0, 7), nil
	case "monthly":
		return day.AddDate(0, 1, 0), nil
	}
	return time.Time{}, fmt.Errorf("item is not recurring")
}
