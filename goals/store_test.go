package goals_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/rocketcrew/elonbot/goals"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

var utc = time.UTC

// memoryPersister keeps the last saved goals and fails saves while failSaves is set
type memoryPersister struct {
	sync.Mutex
	saved     []goals.Goal
	saves     int
	failSaves bool
	loadErr   error
}

func (mp *memoryPersister) Load() ([]goals.Goal, error) {
	mp.Lock()
	defer mp.Unlock()

	return mp.saved, mp.loadErr
}

func (mp *memoryPersister) Save(g []goals.Goal) error {
	mp.Lock()
	defer mp.Unlock()

	mp.saves++
	if mp.failSaves {
		return errors.New("disk full")
	}

	mp.saved = g
	return nil
}

type clock struct {
	now time.Time
}

func (c *clock) Now() time.Time {
	return c.now
}

func newStore(t *testing.T, p goals.Persister, c *clock) *goals.Store {
	s, err := goals.New(p, goals.OptionClock(c.Now), goals.OptionLocation(utc))
	require.NoError(t, err)

	return s
}

func TestSetGoalThenActiveGoals(t *testing.T) {
	c := &clock{now: time.Date(2024, 6, 3, 10, 0, 0, 0, utc)}
	s := newStore(t, &memoryPersister{}, c)

	first, err := s.SetGoal("U1", "Ship the beta by Friday", "Friday")
	require.NoError(t, err)

	before := s.ActiveGoals("U1")
	second, err := s.SetGoal("U1", "Close Acme by 2024-06-04", "2024-06-04")
	require.NoError(t, err)
	after := s.ActiveGoals("U1")

	assert.Greater(t, second, first)
	if assert.Len(t, after, len(before)+1) {
		g := after[len(after)-1]
		assert.Equal(t, second, g.ID)
		assert.Equal(t, "U1", g.Owner)
		assert.Equal(t, "Close Acme by 2024-06-04", g.Description)
		assert.Equal(t, "2024-06-04", g.Deadline)
		assert.Equal(t, goals.Active, g.Status)
		assert.False(t, g.FollowUpSent)
		assert.Equal(t, c.now, g.CreatedAt)
	}

	assert.Empty(t, s.ActiveGoals("U2"))
}

func TestActiveGoalsAreCopies(t *testing.T) {
	s := newStore(t, nil, &clock{})
	id, _ := s.SetGoal("U1", "Hire two engineers", "")
	s.AppendUpdate("U1", id, "one offer out")

	active := s.ActiveGoals("U1")
	active[0].Description = "changed"
	active[0].Updates[0].Text = "changed"

	fresh := s.ActiveGoals("U1")
	assert.Equal(t, "Hire two engineers", fresh[0].Description)
	assert.Equal(t, "one offer out", fresh[0].Updates[0].Text)
}

func TestIdsAreUniqueAcrossOwners(t *testing.T) {
	s := newStore(t, nil, &clock{})

	ids := make(map[int64]bool)
	for i := 0; i < 10; i++ {
		id, err := s.SetGoal(fmt.Sprintf("U%d", i%3), "goal", "")
		require.NoError(t, err)
		assert.False(t, ids[id])
		ids[id] = true
	}
}

func TestAppendUpdate(t *testing.T) {
	c := &clock{now: time.Date(2024, 6, 3, 10, 0, 0, 0, utc)}
	s := newStore(t, nil, c)
	id, _ := s.SetGoal("U1", "Ship the beta", "Friday")

	c.now = c.now.Add(time.Hour)
	found, err := s.AppendUpdate("U1", id, "QA started")
	assert.NoError(t, err)
	assert.True(t, found)

	found, err = s.AppendUpdate("U2", id, "not my goal")
	assert.NoError(t, err)
	assert.False(t, found)

	found, err = s.AppendUpdate("U1", 999, "unknown")
	assert.NoError(t, err)
	assert.False(t, found)

	g := s.ActiveGoals("U1")[0]
	assert.Equal(t, []goals.Update{{Text: "QA started", Timestamp: c.now}}, g.Updates)
}

func TestMarkFollowUpSentIsIdempotent(t *testing.T) {
	p := &memoryPersister{}
	s := newStore(t, p, &clock{})
	id, _ := s.SetGoal("U1", "Ship the beta", "2024-06-04")

	assert.NoError(t, s.MarkFollowUpSent(id))
	saves := p.saves
	assert.NoError(t, s.MarkFollowUpSent(id))
	assert.NoError(t, s.MarkFollowUpSent(12345))

	assert.True(t, s.ActiveGoals("U1")[0].FollowUpSent)
	assert.Equal(t, saves, p.saves)
}

func TestUpcomingDeadlines(t *testing.T) {
	now := time.Date(2024, 6, 3, 20, 0, 0, 0, utc)
	s := newStore(t, nil, &clock{now: now})

	inTwelveHours, _ := s.SetGoal("U1", "Close Acme", now.Add(12*time.Hour).Format("2006-01-02"))
	today, _ := s.SetGoal("U2", "Send the deck", "2024-06-03")
	timestamp, _ := s.SetGoal("U2", "Board call prep", now.Add(2*time.Hour).Format(time.RFC3339))
	s.SetGoal("U1", "Hire", "Friday")
	s.SetGoal("U1", "Later", "2024-06-10")
	s.SetGoal("U1", "Past", "2024-06-01")
	s.SetGoal("U3", "Far timestamp", now.Add(30*time.Hour).Format(time.RFC3339))
	s.SetGoal("U1", "No deadline", "")
	done, _ := s.SetGoal("U1", "Already done", "2024-06-04")
	s.SetStatus("U1", done, goals.Completed)

	due := s.UpcomingDeadlines(now)

	var ids []int64
	for _, d := range due {
		ids = append(ids, d.Goal.ID)
		assert.Equal(t, d.Goal.Owner, d.Owner)
	}
	assert.Equal(t, []int64{inTwelveHours, today, timestamp}, ids)
}

func TestUpcomingDeadlinesNeverReturnsRelativeDeadlines(t *testing.T) {
	now := time.Date(2024, 6, 3, 9, 0, 0, 0, utc)
	s := newStore(t, nil, &clock{now: now})

	for _, d := range []string{"Friday", "end of month", "tomorrow", "June 4", "6/4", "deadline"} {
		s.SetGoal("U1", "goal", d)
	}

	assert.Empty(t, s.UpcomingDeadlines(now))
}

func TestSweepDoesNotReturnFollowedUpGoalAgain(t *testing.T) {
	now := time.Date(2024, 6, 3, 9, 0, 0, 0, utc)
	s := newStore(t, nil, &clock{now: now})
	id, _ := s.SetGoal("U1", "Close Acme", now.Add(12*time.Hour).Format("2006-01-02"))

	due := s.UpcomingDeadlines(now)
	if assert.Len(t, due, 1) {
		assert.Equal(t, id, due[0].Goal.ID)
	}

	require.NoError(t, s.MarkFollowUpSent(id))

	assert.Empty(t, s.UpcomingDeadlines(now.Add(time.Minute)))
	assert.True(t, s.ActiveGoals("U1")[0].FollowUpSent)
}

func TestRescheduleResetsFollowUp(t *testing.T) {
	now := time.Date(2024, 6, 3, 9, 0, 0, 0, utc)
	s := newStore(t, nil, &clock{now: now})
	id, _ := s.SetGoal("U1", "Close Acme", "2024-06-03")
	s.MarkFollowUpSent(id)

	found, err := s.Reschedule("U1", id, "2024-06-04")
	require.NoError(t, err)
	assert.True(t, found)

	found, _ = s.Reschedule("U2", id, "2024-06-05")
	assert.False(t, found)

	due := s.UpcomingDeadlines(now.Add(20 * time.Hour))
	if assert.Len(t, due, 1) {
		assert.Equal(t, "2024-06-04", due[0].Goal.Deadline)
		assert.False(t, due[0].Goal.FollowUpSent)
	}
}

func TestSetStatus(t *testing.T) {
	s := newStore(t, nil, &clock{})
	id, _ := s.SetGoal("U1", "Close Acme", "")

	found, err := s.SetStatus("U1", id, goals.Abandoned)
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Empty(t, s.ActiveGoals("U1"))
	assert.Len(t, s.Goals("U1"), 1)

	found, err = s.SetStatus("U2", id, goals.Completed)
	assert.NoError(t, err)
	assert.False(t, found)

	_, err = s.SetStatus("U1", id, goals.Status("paused"))
	assert.EqualError(t, err, "invalid goal status [paused]")
}

func TestOwnersAndGoals(t *testing.T) {
	s := newStore(t, nil, &clock{})
	s.SetGoal("U2", "b", "")
	s.SetGoal("U1", "a", "")
	s.SetGoal("U2", "c", "")

	assert.Equal(t, []string{"U1", "U2"}, s.Owners())
	assert.Len(t, s.Goals(""), 3)
	assert.Len(t, s.Goals("U2"), 2)
}

func TestPersistenceFailureKeepsInMemoryState(t *testing.T) {
	p := &memoryPersister{failSaves: true}
	s := newStore(t, p, &clock{})

	id, err := s.SetGoal("U1", "Ship the beta", "Friday")
	if assert.Error(t, err) {
		assert.Contains(t, err.Error(), "failed to save goals: disk full")
	}
	assert.NotZero(t, id)

	found, err := s.AppendUpdate("U1", id, "QA started")
	assert.True(t, found)
	assert.Error(t, err)

	active := s.ActiveGoals("U1")
	if assert.Len(t, active, 1) {
		assert.Equal(t, id, active[0].ID)
		assert.Len(t, active[0].Updates, 1)
	}

	p.failSaves = false
	assert.NoError(t, s.Flush())
	assert.Len(t, p.saved, 1)
}

func TestReloadContinuesIds(t *testing.T) {
	p := &memoryPersister{}
	s := newStore(t, p, &clock{})
	s.SetGoal("U1", "a", "")
	last, _ := s.SetGoal("U2", "b", "")

	reloaded := newStore(t, p, &clock{})
	next, err := reloaded.SetGoal("U1", "c", "")
	require.NoError(t, err)

	assert.Equal(t, last+1, next)
	assert.Len(t, reloaded.Goals(""), 3)
}

func TestNewWithLoadFailure(t *testing.T) {
	_, err := goals.New(&memoryPersister{loadErr: errors.New("corrupted")})

	assert.EqualError(t, err, "failed to load goals: corrupted")
}

func TestNewWithDuplicateIds(t *testing.T) {
	_, err := goals.New(&memoryPersister{saved: []goals.Goal{{ID: 1}, {ID: 1}}})

	assert.EqualError(t, err, "duplicate goal id [1] in persisted goals")
}

func TestPruneInactive(t *testing.T) {
	c := &clock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, utc)}
	s := newStore(t, &memoryPersister{}, c)

	old, _ := s.SetGoal("U1", "old and done", "")
	s.SetStatus("U1", old, goals.Completed)
	active, _ := s.SetGoal("U1", "old but active", "")

	c.now = time.Date(2024, 3, 1, 0, 0, 0, 0, utc)
	recent, _ := s.SetGoal("U1", "recently abandoned", "")
	s.SetStatus("U1", recent, goals.Abandoned)

	pruned, err := s.PruneInactive(time.Date(2024, 2, 1, 0, 0, 0, 0, utc))
	require.NoError(t, err)
	assert.Equal(t, 1, pruned)

	var ids []int64
	for _, g := range s.Goals("U1") {
		ids = append(ids, g.ID)
	}
	assert.Equal(t, []int64{active, recent}, ids)

	found, _ := s.AppendUpdate("U1", old, "too late")
	assert.False(t, found)
}

func TestConcurrentSetGoal(t *testing.T) {
	defer goleak.VerifyNone(t)

	p := &memoryPersister{}
	s := newStore(t, p, &clock{})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			owner := fmt.Sprintf("U%d", i%4)
			s.SetGoal(owner, "goal", "2024-06-04")
			s.ActiveGoals(owner)
		}(i)
	}
	wg.Wait()

	all := s.Goals("")
	assert.Len(t, all, 20)
	assert.Len(t, p.saved, 20)

	ids := make(map[int64]bool)
	for _, g := range all {
		ids[g.ID] = true
	}
	assert.Len(t, ids, 20)
}
