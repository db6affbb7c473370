package elonbot

import (
	"time"

	"github.com/rocketcrew/elonbot/slog"
)

// RetentionReport holds the number of records pruned by each policy
type RetentionReport map[string]int

// ApplyRetention runs every policy with a positive MaxAge relative to now. A failing policy is
// logged and doesn't stop the others
func ApplyRetention(now time.Time, policies []RetentionPolicy, logger slog.SLogger) (report RetentionReport) {
	report = make(RetentionReport)

	for _, p := range policies {
		if p.MaxAge <= 0 {
			continue
		}

		before := now.Add(-p.MaxAge)
		pruned, err := p.Prune(before)
		if err != nil {
			logger.Printf("Error applying retention of [%s] before [%s]: %v", p.Name, before.Format(time.RFC3339), err)
			continue
		}

		report[p.Name] = pruned
		logger.Printf("Pruned %d [%s] last changed before [%s]", pruned, p.Name, before.Format(time.RFC3339))
	}

	return report
}
