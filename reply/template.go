package reply

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/rocketcrew/elonbot/analyzer"
)

// Openings holds the opening lines by sentiment
var Openings = map[analyzer.Sentiment][]string{
	analyzer.Positive: {
		"Good. Momentum is building, but don't get comfortable.",
		"Progress noted. Now let's talk about acceleration.",
		"Solid work. Time to raise the bar.",
	},
	analyzer.Negative: {
		"First, let's cut the fluff. You have challenges, but challenges create opportunities.",
		"Problems are just unoptimized systems. Let's fix this.",
		"Every setback is data. Use it.",
	},
	analyzer.Neutral: {
		"Let's focus on execution. No more excuses.",
		"Time for first-principles thinking. Strip away the noise.",
		"Progress requires precision. Let's get specific.",
	},
}

// Closings holds the call-to-action lines ending every template reply
var Closings = []string{
	"Execute with precision. Report back with results, not excuses.",
	"Make it happen. The future is built by those who refuse to accept limitations.",
	"Think bigger, move faster, deliver results. Mars doesn't wait for perfect.",
	"Relentless execution beats perfect planning. Go build something.",
}

const (
	DealAdvice              = "Deal identified. Now negotiate like your future depends on it. Push for 30% better terms minimum. Present data that shows value, frame urgency, and don't accept the first offer."
	GrowthAdvice            = "Numbers matter, but growth rate matters more. If you're not growing 10x year-over-year, you're thinking too small. Scale the operation."
	OptimizationAdvice      = "Good work. Now optimize every variable in that process and find where you can 2x the output with the same input."
	CompletionFeedback      = "Completion is the start, not the finish. What's the next level? Push beyond what's comfortable."
	IterationFeedback       = "Progress without iteration is just motion. What did you learn? How do you improve the process?"
	ChallengeAdvice         = "Every problem has a solution if you think from first principles. Break it down to fundamentals, question every assumption, and rebuild the approach. What's the physics of this problem?"
	GoalSetting             = "Set specific targets with deadlines. Vague goals create vague results. I need numbers, dates, and measurable outcomes."
	DeadlineNotedFormat     = "Deadline noted: %s. I'll check back. No extensions unless physics prevents it."
	DeadlineRequest         = "Set a deadline for this work. Without time pressure, tasks expand to fill infinity. When will this be complete?"
	clauseSeparator         = "\n\n"
	followUpOpeningFormat   = "%s, your deadline is coming up. Time for a status report."
	followUpOpeningFallback = "Your deadline is coming up. Time for a status report."
)

var dealRegex = regexp.MustCompile(`(?i)\bdeal`)

// Template composes replies from canned clauses: opening by sentiment, business advice, progress
// feedback, challenge advice, goal setting, deadline enforcement (always present) and a closing
type Template struct {
	chooser Chooser
}

// NewTemplate returns a Template picking openings and closings with chooser. A nil chooser uses
// DefaultChooser
func NewTemplate(chooser Chooser) *Template {
	if chooser == nil {
		chooser = DefaultChooser()
	}

	return &Template{chooser: chooser}
}

// Generate implements Generator
func (t *Template) Generate(ctx context.Context, req Request) (text string) {
	a := req.Analysis
	clauses := make([]string, 0, 7)

	if req.FollowUp {
		clauses = append(clauses, followUpOpening(req.UserName))
	} else {
		clauses = append(clauses, t.pick(opening(a.Sentiment)))
	}

	if a.HasCurrency || len(a.BusinessTerms) > 0 {
		clauses = append(clauses, businessAdvice(req.Message, a))
	}

	if len(a.ProgressIndicators) > 0 {
		if a.Sentiment == analyzer.Positive {
			clauses = append(clauses, CompletionFeedback)
		} else {
			clauses = append(clauses, IterationFeedback)
		}
	}

	if len(a.Challenges) > 0 {
		clauses = append(clauses, ChallengeAdvice)
	}

	if a.GoalsMentioned || len(req.ActiveGoals) == 0 {
		clauses = append(clauses, GoalSetting)
	}

	clauses = append(clauses, DeadlineClause(req.Message))
	clauses = append(clauses, t.pick(Closings))

	return strings.Join(clauses, clauseSeparator)
}

// DeadlineClause echoes the deadline found in message or asks for one
func DeadlineClause(message string) string {
	if deadline, ok := analyzer.ExtractDeadline(message); ok {
		return fmt.Sprintf(DeadlineNotedFormat, deadline)
	}

	return DeadlineRequest
}

func (t *Template) pick(pool []string) string {
	return pool[t.chooser.IntN(len(pool))]
}

func opening(s analyzer.Sentiment) []string {
	if pool, ok := Openings[s]; ok {
		return pool
	}

	return Openings[analyzer.Neutral]
}

func followUpOpening(userName string) string {
	if userName == "" {
		return followUpOpeningFallback
	}

	return fmt.Sprintf(followUpOpeningFormat, userName)
}

func businessAdvice(message string, a analyzer.AnalysisResult) string {
	switch {
	case dealRegex.MatchString(message):
		return DealAdvice
	case a.HasCurrency:
		return GrowthAdvice
	default:
		return OptimizationAdvice
	}
}
