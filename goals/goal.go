// Package goals tracks the commitments users state in their replies along with their deadlines
// and follow-up status
package goals

import (
	"time"
)

// Status of a goal
type Status string

const (
	Active    Status = "active"
	Completed Status = "completed"
	Abandoned Status = "abandoned"
)

// calendarDateLayout is the only deadline layout, along with RFC 3339 timestamps, considered by
// the deadline sweep
const calendarDateLayout = "2006-01-02"

// Update is a progress note appended to a goal
type Update struct {
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Goal is a user-stated commitment with an optional deadline. Deadline is an opaque display
// string: either a calendar date (2006-01-02 or RFC 3339) or free text like "Friday"
type Goal struct {
	ID           int64     `json:"id"`
	Owner        string    `json:"owner"`
	Description  string    `json:"description"`
	Deadline     string    `json:"deadline,omitempty"`
	Status       Status    `json:"status"`
	FollowUpSent bool      `json:"followUpSent"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
	Updates      []Update  `json:"updates,omitempty"`
}

// Due is a goal returned by the deadline sweep
type Due struct {
	Goal  Goal
	Owner string
}

// IsValidStatus returns true for the known goal statuses
func IsValidStatus(s Status) bool {
	return s == Active || s == Completed || s == Abandoned
}

// CalendarDeadline parses deadline when it's calendar-date shaped. A plain date covers the whole
// day in loc so the returned range is [start of day, start of next day). A timestamp is a single
// instant and both bounds are equal
func CalendarDeadline(deadline string, loc *time.Location) (start time.Time, end time.Time, ok bool) {
	if d, err := time.ParseInLocation(calendarDateLayout, deadline, loc); err == nil {
		return d, d.AddDate(0, 0, 1), true
	}

	if ts, err := time.Parse(time.RFC3339, deadline); err == nil {
		return ts, ts, true
	}

	return time.Time{}, time.Time{}, false
}

// isDueWithin returns true if the goal's calendar deadline falls in [from, to]
func (g *Goal) isDueWithin(from time.Time, to time.Time, loc *time.Location) bool {
	start, end, ok := CalendarDeadline(g.Deadline, loc)
	if !ok {
		return false
	}

	if start.Equal(end) {
		return !start.Before(from) && !start.After(to)
	}

	return end.After(from) && !start.After(to)
}

func (g *Goal) copy() Goal {
	c := *g
	if g.Updates != nil {
		c.Updates = append([]Update(nil), g.Updates...)
	}

	return c
}
