// Package reply generates the outbound messages sent back to users. Template composes canned
// clauses picked from the analysis and Oracle asks a text-completion backend, falling back to a
// fixed message
package reply

import (
	"context"
	"math/rand/v2"

	"github.com/rocketcrew/elonbot/analyzer"
	"github.com/rocketcrew/elonbot/goals"
)

// Request holds everything a Generator needs to reply to a user. FollowUp is set when the
// message is a synthetic check-in on a goal nearing its deadline rather than a user reply
type Request struct {
	UserName    string
	Message     string
	Analysis    analyzer.AnalysisResult
	ActiveGoals []goals.Goal
	FollowUp    bool
}

// Generator produces the text of a reply. It never fails and never returns an empty text
type Generator interface {
	Generate(ctx context.Context, req Request) (text string)
}

// Chooser picks an index in [0, n). *rand.Rand from math/rand/v2 satisfies it
type Chooser interface {
	IntN(n int) int
}

type globalChooser struct{}

// IntN uses the concurrency safe top level source of math/rand/v2
func (globalChooser) IntN(n int) int {
	return rand.IntN(n)
}

// DefaultChooser returns a Chooser safe for concurrent use
func DefaultChooser() Chooser {
	return globalChooser{}
}
