package reply

import (
	"context"
	"fmt"
	"strings"

	"github.com/rocketcrew/elonbot/goals"
	"github.com/rocketcrew/elonbot/oracle"
	"github.com/rocketcrew/elonbot/slog"
)

const (
	// DefaultReplyMaxTokens caps the length of generated replies
	DefaultReplyMaxTokens = 400

	followUpMaxTokens = 200

	replySystemPrompt    = "You are Elon Musk - direct, assertive, focused on execution and results. Push people to achieve more while being specific and actionable."
	followUpSystemPrompt = "You are Elon Musk checking on team progress - direct and focused on results."
	replyTemperature     = 0.7
	followUpTemperature  = 0.6

	// ReplyFallbackFormat is the reply sent when the oracle fails
	ReplyFallbackFormat = "Thanks for the update, %s! Your progress is noted. Let's push harder and execute with precision. Set clear deadlines and report back with measurable results. 🚀"

	// FollowUpFallbackFormat is the follow-up sent when the oracle fails
	FollowUpFallbackFormat = "%s, progress check! How are we executing on our goals? Need specific updates and next steps. 🚀"

	replyPromptFormat = `You are Elon Musk responding to %s's update: %q

ANALYSIS:
- Sentiment: %s
- Urgency: %s
- Business Value: %s
- Progress: %s
- Challenges: %s
- Achievements: %s

ACTIVE GOALS: %s

Generate an Elon Musk response that:
1. ACKNOWLEDGES specific progress/achievements mentioned
2. ADDRESSES challenges with first-principles solutions
3. PUSHES for better execution and results
4. SETS OR REINFORCES deadlines
5. ASKS specific follow-up questions about metrics/progress
6. Uses direct, assertive communication style
7. Maximum 250 words

ELON'S STYLE EXAMPLES:
- "First, let's cut the fluff. You have momentum, but don't mistake activity for achievement."
- "Good progress. Now optimize every variable and find where you can 2x the output."
- "Set a hard deadline. Without time pressure, tasks expand to fill infinity."
- "Execute with precision. Report back with results, not excuses."

Be specific to their situation and provide actionable next steps with accountability.`

	followUpPromptFormat = `Generate an Elon Musk-style progress check message for %s.

Context: %s

Their active goals: %s

Create a brief, direct message that:
1. Checks on specific progress
2. Maintains urgency
3. Is encouraging but challenging
4. Asks for specific updates
5. Maximum 150 words

Style: Direct, assertive, focused on execution like Elon Musk.`
)

// Oracle generates replies with a text-completion backend
type Oracle struct {
	completer oracle.Completer
	maxTokens int
	logger    slog.SLogger
}

// NewOracle returns an Oracle generator. maxTokens caps reply length and defaults to
// DefaultReplyMaxTokens when not positive
func NewOracle(completer oracle.Completer, maxTokens int, logger slog.SLogger) *Oracle {
	if maxTokens <= 0 {
		maxTokens = DefaultReplyMaxTokens
	}

	return &Oracle{completer: completer, maxTokens: maxTokens, logger: logger}
}

// Generate implements Generator
func (o *Oracle) Generate(ctx context.Context, req Request) (text string) {
	if req.FollowUp {
		return o.complete(ctx, oracle.Request{
			SystemPrompt:    followUpSystemPrompt,
			UserPrompt:      fmt.Sprintf(followUpPromptFormat, req.UserName, req.Message, goalList(req.ActiveGoals, "No specific goals set yet")),
			Temperature:     followUpTemperature,
			MaxOutputTokens: followUpMaxTokens,
		}, fmt.Sprintf(FollowUpFallbackFormat, req.UserName))
	}

	a := req.Analysis
	prompt := fmt.Sprintf(replyPromptFormat, req.UserName, req.Message,
		a.Sentiment,
		a.Urgency,
		orDefault(a.BusinessValue, "Not specified"),
		joinOrDefault(a.ProgressIndicators, "General update"),
		joinOrDefault(a.Challenges, "None mentioned"),
		joinOrDefault(a.Achievements, "None specified"),
		goalList(req.ActiveGoals, "None set"))

	return o.complete(ctx, oracle.Request{
		SystemPrompt:    replySystemPrompt,
		UserPrompt:      prompt,
		Temperature:     replyTemperature,
		MaxOutputTokens: o.maxTokens,
	}, fmt.Sprintf(ReplyFallbackFormat, req.UserName))
}

func (o *Oracle) complete(ctx context.Context, req oracle.Request, fallback string) string {
	text, err := o.completer.Complete(ctx, req)
	if err != nil {
		o.logger.Printf("Reply generation by oracle failed, using fallback: %v", err)
		return fallback
	}

	if text = strings.TrimSpace(text); text == "" {
		return fallback
	}

	return text
}

func goalList(active []goals.Goal, none string) string {
	if len(active) == 0 {
		return none
	}

	descriptions := make([]string, 0, len(active))
	for _, g := range active {
		descriptions = append(descriptions, fmt.Sprintf("%s (Deadline: %s)", g.Description, orDefault(g.Deadline, "none")))
	}

	return strings.Join(descriptions, ", ")
}

func joinOrDefault(items []string, def string) string {
	if len(items) == 0 {
		return def
	}

	return strings.Join(items, ", ")
}

func orDefault(s string, def string) string {
	if s == "" {
		return def
	}

	return s
}
