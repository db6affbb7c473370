package goals

import (
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rocketcrew/elonbot/slog"
)

// followUpWindow is how far ahead of the sweep time a deadline has to be to get a follow-up
const followUpWindow = 24 * time.Hour

// Persister loads and saves the full set of goals. Save always receives every goal (full rewrite)
type Persister interface {
	Load() (goals []Goal, err error)
	Save(goals []Goal) (err error)
}

// Store owns every goal. A single lock serializes read-modify-write sequences and persistence.
// Persistence failures are reported to the caller but the in-memory state always reflects the
// attempted change
type Store struct {
	mu        sync.RWMutex
	goals     []*Goal
	byID      map[int64]*Goal
	lastID    int64
	persister Persister
	loc       *time.Location
	now       func() time.Time
	logger    slog.SLogger
}

// Option defines an option for the Store
type Option func(*Store)

// OptionClock sets the function used to timestamp goals and updates
func OptionClock(now func() time.Time) func(*Store) {
	return func(s *Store) {
		s.now = now
	}
}

// OptionLocation sets the location used to interpret calendar date deadlines. Defaults to time.Local
func OptionLocation(loc *time.Location) func(*Store) {
	return func(s *Store) {
		s.loc = loc
	}
}

// OptionLogger sets the logger for the store
func OptionLogger(logger slog.SLogger) func(*Store) {
	return func(s *Store) {
		s.logger = logger
	}
}

// New creates a Store loaded with the goals returned by persister. A nil persister keeps goals
// in memory only
func New(persister Persister, options ...Option) (s *Store, err error) {
	s = &Store{byID: make(map[int64]*Goal), persister: persister, loc: time.Local, now: time.Now, logger: slog.Discard()}
	for _, option := range options {
		option(s)
	}

	if persister == nil {
		return s, nil
	}

	loaded, err := persister.Load()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load goals")
	}

	sort.SliceStable(loaded, func(i, j int) bool { return loaded[i].ID < loaded[j].ID })
	for i := range loaded {
		g := loaded[i]
		if _, exists := s.byID[g.ID]; exists {
			return nil, errors.Errorf("duplicate goal id [%d] in persisted goals", g.ID)
		}

		s.goals = append(s.goals, &g)
		s.byID[g.ID] = &g
		if g.ID > s.lastID {
			s.lastID = g.ID
		}
	}

	s.logger.Debugf("Loaded [%d] goals", len(s.goals))

	return s, nil
}

// SetGoal appends a new active goal for owner and returns its id. The id is always valid; a
// non-nil error only reports a persistence failure
func (s *Store) SetGoal(owner string, description string, deadline string) (id int64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.lastID++
	g := &Goal{ID: s.lastID, Owner: owner, Description: description, Deadline: deadline, Status: Active, CreatedAt: now, UpdatedAt: now}
	s.goals = append(s.goals, g)
	s.byID[g.ID] = g

	return g.ID, s.persist()
}

// ActiveGoals returns copies of the active goals of owner in creation order
func (s *Store) ActiveGoals(owner string) (goals []Goal) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	goals = make([]Goal, 0)
	for _, g := range s.goals {
		if g.Owner == owner && g.Status == Active {
			goals = append(goals, g.copy())
		}
	}

	return goals
}

// Goals returns copies of every goal of owner, whatever the status, in creation order. An empty
// owner returns the goals of all owners
func (s *Store) Goals(owner string) (goals []Goal) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	goals = make([]Goal, 0)
	for _, g := range s.goals {
		if owner == "" || g.Owner == owner {
			goals = append(goals, g.copy())
		}
	}

	return goals
}

// Owners returns the sorted list of users with at least one goal
func (s *Store) Owners() (owners []string) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool)
	for _, g := range s.goals {
		if !seen[g.Owner] {
			seen[g.Owner] = true
			owners = append(owners, g.Owner)
		}
	}

	sort.Strings(owners)

	return owners
}

// AppendUpdate adds a progress note to the goal id of owner. It returns false when owner has
// no such goal
func (s *Store) AppendUpdate(owner string, id int64, text string) (found bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.byID[id]
	if !ok || g.Owner != owner {
		return false, nil
	}

	now := s.now()
	g.Updates = append(g.Updates, Update{Text: text, Timestamp: now})
	g.UpdatedAt = now

	return true, s.persist()
}

// SetStatus changes the status of the goal id of owner. It returns false when owner has no such goal
func (s *Store) SetStatus(owner string, id int64, status Status) (found bool, err error) {
	if !IsValidStatus(status) {
		return false, errors.Errorf("invalid goal status [%s]", status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.byID[id]
	if !ok || g.Owner != owner {
		return false, nil
	}

	if g.Status == status {
		return true, nil
	}

	g.Status = status
	g.UpdatedAt = s.now()

	return true, s.persist()
}

// Reschedule replaces the deadline of the goal id of owner and resets its follow-up status so the
// new deadline gets its own follow-up. It returns false when owner has no such goal
func (s *Store) Reschedule(owner string, id int64, deadline string) (found bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.byID[id]
	if !ok || g.Owner != owner {
		return false, nil
	}

	g.Deadline = deadline
	g.FollowUpSent = false
	g.UpdatedAt = s.now()

	return true, s.persist()
}

// UpcomingDeadlines returns every active goal, across owners, whose calendar deadline falls
// within [asOf, asOf+24h] and that hasn't had its follow-up yet. Free text deadlines never
// qualify
func (s *Store) UpcomingDeadlines(asOf time.Time) (due []Due) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	to := asOf.Add(followUpWindow)
	for _, g := range s.goals {
		if g.Status == Active && !g.FollowUpSent && g.isDueWithin(asOf, to, s.loc) {
			due = append(due, Due{Goal: g.copy(), Owner: g.Owner})
		}
	}

	return due
}

// MarkFollowUpSent flags the goal id as followed up. Unknown ids and goals already flagged are
// a no-op
func (s *Store) MarkFollowUpSent(id int64) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.byID[id]
	if !ok || g.FollowUpSent {
		return nil
	}

	g.FollowUpSent = true
	g.UpdatedAt = s.now()

	return s.persist()
}

// PruneInactive removes completed and abandoned goals last updated before the given time and
// returns how many were removed
func (s *Store) PruneInactive(before time.Time) (pruned int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.goals[:0]
	for _, g := range s.goals {
		if g.Status != Active && g.UpdatedAt.Before(before) {
			delete(s.byID, g.ID)
			pruned++
			continue
		}

		kept = append(kept, g)
	}

	for i := len(kept); i < len(s.goals); i++ {
		s.goals[i] = nil
	}
	s.goals = kept

	if pruned == 0 {
		return 0, nil
	}

	return pruned, s.persist()
}

// Flush saves every goal with the persister
func (s *Store) Flush() (err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.persist()
}

// persist must be called with the lock held
func (s *Store) persist() (err error) {
	if s.persister == nil {
		return nil
	}

	snapshot := make([]Goal, 0, len(s.goals))
	for _, g := range s.goals {
		snapshot = append(snapshot, g.copy())
	}

	if err = s.persister.Save(snapshot); err != nil {
		return errors.Wrap(err, "failed to save goals")
	}

	return nil
}
