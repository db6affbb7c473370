package reply_test

import (
	"context"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/rocketcrew/elonbot/analyzer"
	"github.com/rocketcrew/elonbot/goals"
	"github.com/rocketcrew/elonbot/reply"
	"github.com/stretchr/testify/assert"
)

// sequenceChooser returns its picks in order, wrapping around
type sequenceChooser struct {
	picks []int
	next  int
}

func (sc *sequenceChooser) IntN(n int) int {
	p := sc.picks[sc.next%len(sc.picks)]
	sc.next++

	return p % n
}

func analyze(message string) analyzer.AnalysisResult {
	return analyzer.NewHeuristic().Analyze(context.Background(), message)
}

func TestTemplateClosedDealWithDeadline(t *testing.T) {
	message := "I closed the deal for $50k, need to finish the report by Friday"
	tmpl := reply.NewTemplate(&sequenceChooser{picks: []int{1, 3}})

	text := tmpl.Generate(context.Background(), reply.Request{
		UserName:    "Ada",
		Message:     message,
		Analysis:    analyze(message),
		ActiveGoals: []goals.Goal{{ID: 1, Description: "Finish the report", Deadline: "Friday", Status: goals.Active}},
	})

	assert.Equal(t, strings.Join([]string{
		reply.Openings[analyzer.Positive][1],
		reply.DealAdvice,
		"Deadline noted: Friday. I'll check back. No extensions unless physics prevents it.",
		reply.Closings[3],
	}, "\n\n"), text)
}

func TestTemplateStuckWithoutGoals(t *testing.T) {
	message := "stuck on the integration, might miss the deadline"
	tmpl := reply.NewTemplate(&sequenceChooser{picks: []int{0, 0}})

	text := tmpl.Generate(context.Background(), reply.Request{UserName: "Ada", Message: message, Analysis: analyze(message)})

	assert.Equal(t, strings.Join([]string{
		reply.Openings[analyzer.Negative][0],
		reply.ChallengeAdvice,
		reply.GoalSetting,
		reply.DeadlineRequest,
		reply.Closings[0],
	}, "\n\n"), text)
}

func TestTemplateGoalMentionedWithoutActiveGoals(t *testing.T) {
	message := "My goal this quarter is to double signups"
	text := reply.NewTemplate(nil).Generate(context.Background(), reply.Request{UserName: "Ada", Message: message, Analysis: analyze(message)})

	assert.Contains(t, text, reply.GoalSetting)
}

func TestTemplateGoalSettingOmittedWithActiveGoals(t *testing.T) {
	message := "Met with the design team"
	text := reply.NewTemplate(nil).Generate(context.Background(), reply.Request{
		UserName:    "Ada",
		Message:     message,
		Analysis:    analyze(message),
		ActiveGoals: []goals.Goal{{ID: 1, Description: "Redesign onboarding"}},
	})

	assert.NotContains(t, text, reply.GoalSetting)
	assert.NotContains(t, text, reply.ChallengeAdvice)
	assert.NotContains(t, text, reply.CompletionFeedback)
	assert.Contains(t, text, reply.DeadlineRequest)
}

func TestTemplateProgressFeedbackBySentiment(t *testing.T) {
	positive := "Great news, we finished the migration"
	text := reply.NewTemplate(nil).Generate(context.Background(), reply.Request{Message: positive, Analysis: analyze(positive)})
	assert.Contains(t, text, reply.CompletionFeedback)

	negative := "Progress is slow, we're behind"
	text = reply.NewTemplate(nil).Generate(context.Background(), reply.Request{Message: negative, Analysis: analyze(negative)})
	assert.Contains(t, text, reply.IterationFeedback)
}

func TestTemplateBusinessAdvice(t *testing.T) {
	tests := []struct {
		message string
		advice  string
	}{
		{"Revenue is up $20k this month", reply.GrowthAdvice},
		{"Signed the contract with the client", reply.OptimizationAdvice},
		{"The deal is almost there", reply.DealAdvice},
	}

	for _, tc := range tests {
		t.Run(tc.message, func(t *testing.T) {
			text := reply.NewTemplate(nil).Generate(context.Background(), reply.Request{Message: tc.message, Analysis: analyze(tc.message)})

			assert.Contains(t, text, tc.advice)
		})
	}
}

func TestTemplateAlwaysHasDeadlineClauseAndKnownSlots(t *testing.T) {
	messages := []string{
		"",
		"Great week, shipped it",
		"We're blocked, urgent help needed",
		"Our goal is 10k users by 2024-12-31",
		"Closed the $1m deal, contract signed before March",
	}

	r := rand.New(rand.NewPCG(1, 2))
	for _, m := range messages {
		t.Run(m, func(t *testing.T) {
			a := analyze(m)
			text := reply.NewTemplate(r).Generate(context.Background(), reply.Request{Message: m, Analysis: a})
			clauses := strings.Split(text, "\n\n")

			assert.Contains(t, openingsFor(a.Sentiment), clauses[0])
			assert.Contains(t, reply.Closings, clauses[len(clauses)-1])
			assert.Equal(t, reply.DeadlineClause(m), clauses[len(clauses)-2])
		})
	}
}

func openingsFor(s analyzer.Sentiment) []string {
	return reply.Openings[s]
}

func TestTemplateFollowUp(t *testing.T) {
	message := "Deadline by 2024-06-04. Check in on this goal: Close the Acme deal"
	text := reply.NewTemplate(&sequenceChooser{picks: []int{2}}).Generate(context.Background(), reply.Request{
		UserName:    "Ada",
		Message:     message,
		Analysis:    analyze(message),
		ActiveGoals: []goals.Goal{{ID: 1, Description: "Close the Acme deal", Deadline: "2024-06-04"}},
		FollowUp:    true,
	})

	clauses := strings.Split(text, "\n\n")
	assert.Equal(t, "Ada, your deadline is coming up. Time for a status report.", clauses[0])
	assert.Contains(t, clauses, "Deadline noted: 2024-06-04. I'll check back. No extensions unless physics prevents it.")
	assert.Equal(t, reply.Closings[2], clauses[len(clauses)-1])
}
