// Package schedule defines how elonbot jobs are scheduled. A Definition is either a gocron
// interval ("every monday at 10:00") or a cron expression evaluated with gronx
package schedule

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/adhocore/gronx"
	"github.com/marcsantiago/gocron"
	"github.com/pkg/errors"
)

// Definition represents when a job runs
type Definition struct {
	// Internal value (every 1 minute would be expressed with an interval of 1). Must be set explicitly or implicitly (a weekday value implicitly sets the interval to 1)
	Interval uint64

	// Must be set explicitly or implicitly ("weeks" is implicitly set when "Weekday" is set). Valid time units are: "weeks", "hours", "days", "minutes", "seconds"
	Unit string

	// Optional day of the week. If set, unit and interval are ignored and implicitly considered to be "every 1 week"
	Weekday string

	// Optional "at time" value (i.e. "10:30")
	AtTime string

	// Optional five field cron expression (i.e. "30 16 * * 1-5"). When set, every other field is ignored
	Cron string
}

// Unit values
const (
	Weeks   = "weeks"
	Hours   = "hours"
	Days    = "days"
	Minutes = "minutes"
	Seconds = "seconds"
)

// cronPollInterval is how often, in seconds, a cron gate checks whether its expression is due. It
// is kept under a minute so that no minute is skipped when job runs drift
const cronPollInterval = 20

var weekdayToNumeral = map[string]time.Weekday{
	time.Monday.String():    time.Monday,
	time.Tuesday.String():   time.Tuesday,
	time.Wednesday.String(): time.Wednesday,
	time.Thursday.String():  time.Thursday,
	time.Friday.String():    time.Friday,
	time.Saturday.String():  time.Saturday,
	time.Sunday.String():    time.Sunday,
}

// String returns a human-friendly string for the Definition
func (s Definition) String() string {
	var b strings.Builder

	if s.Cron != "" {
		fmt.Fprintf(&b, "Cron [%s]", s.Cron)
		return b.String()
	}

	fmt.Fprintf(&b, "Every ")

	if s.Weekday != "" {
		fmt.Fprintf(&b, "%s", s.Weekday)
	} else if s.Interval == 1 {
		fmt.Fprintf(&b, "%s", strings.TrimSuffix(s.Unit, "s"))
	} else {
		fmt.Fprintf(&b, "%d %s", s.Interval, s.Unit)
	}

	if s.AtTime != "" {
		fmt.Fprintf(&b, " at %s", s.AtTime)
	}

	return b.String()
}

// NewJob sets up the gocron.Job with the schedule and leaves the task undefined for the caller to set up.
// Cron definitions are turned into a frequent polling job: use Schedule for those so that the task
// is gated by the expression
func NewJob(s *gocron.Scheduler, sd Definition) (j *gocron.Job, err error) {
	if sd.Cron != "" {
		if !gronx.IsValid(sd.Cron) {
			return nil, fmt.Errorf("Invalid cron expression [%s]", sd.Cron)
		}

		return s.Every(cronPollInterval, false).Seconds(), nil
	}

	j = s.Every(sd.Interval, false)

	if _, ok := weekdayToNumeral[sd.Weekday]; ok {
		switch sd.Weekday {
		case time.Monday.String():
			j = j.Monday()
		case time.Tuesday.String():
			j = j.Tuesday()
		case time.Wednesday.String():
			j = j.Wednesday()
		case time.Thursday.String():
			j = j.Thursday()
		case time.Friday.String():
			j = j.Friday()
		case time.Saturday.String():
			j = j.Saturday()
		case time.Sunday.String():
			j = j.Sunday()
		}
	} else {
		switch sd.Unit {
		case Weeks:
			j = j.Weeks()
		case Hours:
			j = j.Hours()
		case Days:
			j = j.Days()
		case Minutes:
			j = j.Minutes()
		case Seconds:
			j = j.Seconds()
		}
	}

	if sd.AtTime != "" {
		j = j.At(sd.AtTime)
	}

	if j.Err() != nil {
		return nil, j.Err()
	}

	return j, nil
}

// Schedule registers task with the scheduler according to the definition. Cron definitions run the
// task at most once per matching minute, evaluated in loc
func Schedule(s *gocron.Scheduler, sd Definition, loc *time.Location, task func()) (err error) {
	j, err := NewJob(s, sd)
	if err != nil {
		return err
	}

	if sd.Cron == "" {
		j.Do(task)
		return nil
	}

	g, err := NewCronGate(sd.Cron, loc, task)
	if err != nil {
		return err
	}

	j.Do(g.Poll)
	return nil
}

// CronGate runs a task when its cron expression is due, once per matching minute
type CronGate struct {
	expr string
	loc  *time.Location
	task func()
	now  func() time.Time

	sync.Mutex
	lastRun time.Time
}

// NewCronGate returns a CronGate for a valid five field cron expression
func NewCronGate(expr string, loc *time.Location, task func()) (g *CronGate, err error) {
	if !gronx.IsValid(expr) {
		return nil, fmt.Errorf("Invalid cron expression [%s]", expr)
	}

	if loc == nil {
		loc = time.Local
	}

	return &CronGate{expr: expr, loc: loc, task: task, now: time.Now}, nil
}

// Poll runs the task if the expression is due at the current time
func (g *CronGate) Poll() {
	g.Tick(g.now())
}

// Tick runs the task if the expression is due at t and the task hasn't already run during that
// minute. It returns true when the task ran
func (g *CronGate) Tick(t time.Time) (ran bool) {
	t = t.In(g.loc)
	minute := t.Truncate(time.Minute)

	g.Lock()
	if minute.Equal(g.lastRun) {
		g.Unlock()
		return false
	}

	gron := gronx.New()
	due, err := gron.IsDue(g.expr, t)
	if err != nil || !due {
		g.Unlock()
		return false
	}

	g.lastRun = minute
	g.Unlock()

	g.task()
	return true
}

// Next returns the next time after t at which the expression is due
func (g *CronGate) Next(t time.Time) (next time.Time, err error) {
	next, err = gronx.NextTickAfter(g.expr, t.In(g.loc), false)
	if err != nil {
		return next, errors.Wrapf(err, "failed to compute next tick of [%s]", g.expr)
	}

	return next, nil
}
