// Package checkin composes and broadcasts the scheduled end-of-day check-ins sent to every active
// employee of the roster
package checkin

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rocketcrew/elonbot/goals"
	"github.com/rocketcrew/elonbot/oracle"
	"github.com/rocketcrew/elonbot/pipeline"
	"github.com/rocketcrew/elonbot/reply"
	"github.com/rocketcrew/elonbot/roster"
	"github.com/rocketcrew/elonbot/slog"
)

const (
	checkinSystemPrompt = "You are Elon Musk - direct, results-focused, challenging team members to achieve more. Focus on execution and measurable outcomes."
	checkinTemperature  = 0.6
	checkinMaxTokens    = 200

	checkinPromptFormat = `You are Elon Musk sending a personalized end-of-day progress check to %s.

USER'S ACTIVE GOALS: %s

Generate a DIRECT, ASSERTIVE Elon Musk-style EOD message that:
1. References their specific goals/deadlines if any
2. Asks for measurable progress updates
3. Pushes for accountability and results
4. Sets expectation for specific metrics
5. Includes urgency and deadline focus
6. Maximum 200 words
7. Uses first-principles thinking approach

STYLE: Direct, challenging, results-focused, no fluff, specific questions about execution and numbers.`

	namePlaceholder = "{name}"
)

// Template is a named canned check-in. {name} is replaced with the employee name
type Template struct {
	Name string
	Text string
}

// Templates holds the canned check-ins used without an oracle or when it fails
var Templates = []Template{
	{Name: "mars", Text: `🚀 *MARS MISSION UPDATE REQUIRED* 🚀

Hey {name}! Time for your daily mission briefing!

What epic accomplishments did you achieve today that brought us closer to making life multiplanetary?

🎯 *Today's Mission Objectives:*
• What breakthrough did you achieve?
• What obstacles did you overcome with first-principles thinking?
• What's your next moonshot project?

_"The future is going to be wild!"_ - Elon

Reply with your daily wins! 🌟`},
	{Name: "tesla", Text: `⚡ *TESLA-POWERED PRODUCTIVITY CHECK* ⚡

{name}, it's time to charge up your daily report!

What did you build today that's 10x better than yesterday?

🔋 *Energy Report:*
• What did you accelerate today?
• What inefficiencies did you eliminate?
• What's your next sustainable innovation?

_"Think 10x bigger!"_ - Elon

Send me your daily achievements! 🚗💨`},
	{Name: "starship", Text: `🌌 *STARSHIP DAILY LOG* 🌌

Mission Commander {name},

Time for your end-of-day transmission from Earth! What progress did you make toward our interplanetary goals?

🚀 *Flight Report:*
• What did you launch today?
• What did you iterate and improve?
• What's your trajectory for tomorrow?

_"Mars, here we come!"_ - Elon

Transmit your daily accomplishments! 🛸`},
	{Name: "neuralink", Text: `🧠 *NEURALINK THOUGHT SYNC* 🧠

{name}, let's sync your daily neural pathways!

What brilliant ideas did you execute today with first-principles thinking?

💭 *Brain Dump Required:*
• What problem did you solve from scratch?
• What conventional wisdom did you challenge?
• What's your next cognitive breakthrough?

_"Question everything!"_ - Elon

Download your daily wins! 🤖`},
}

// Composer writes check-in messages. Without a completer, or when it fails, a canned template is
// picked with the chooser
type Composer struct {
	completer oracle.Completer
	chooser   reply.Chooser
	logger    slog.SLogger
}

// NewComposer returns a Composer. completer may be nil and a nil chooser uses reply.DefaultChooser
func NewComposer(completer oracle.Completer, chooser reply.Chooser, logger slog.SLogger) *Composer {
	if chooser == nil {
		chooser = reply.DefaultChooser()
	}

	return &Composer{completer: completer, chooser: chooser, logger: logger}
}

// Compose returns the check-in for the employee given their active goals
func (c *Composer) Compose(ctx context.Context, e roster.Employee, active []goals.Goal) (text string) {
	if c.completer != nil {
		text, err := c.completer.Complete(ctx, oracle.Request{
			SystemPrompt:    checkinSystemPrompt,
			UserPrompt:      fmt.Sprintf(checkinPromptFormat, e.Name, goalList(active)),
			Temperature:     checkinTemperature,
			MaxOutputTokens: checkinMaxTokens,
		})
		if err == nil && strings.TrimSpace(text) != "" {
			return strings.TrimSpace(text)
		}

		c.logger.Printf("Check-in generation by oracle failed for [%s], using template: %v", e.SlackID, err)
	}

	t := Templates[c.chooser.IntN(len(Templates))]

	return strings.ReplaceAll(t.Text, namePlaceholder, e.Name)
}

func goalList(active []goals.Goal) string {
	if len(active) == 0 {
		return "No specific goals set yet"
	}

	descriptions := make([]string, 0, len(active))
	for _, g := range active {
		deadline := g.Deadline
		if deadline == "" {
			deadline = "none"
		}
		descriptions = append(descriptions, fmt.Sprintf("%s (Deadline: %s)", g.Description, deadline))
	}

	return strings.Join(descriptions, ", ")
}

// GoalReader returns the active goals of a user. *goals.Store implements it
type GoalReader interface {
	ActiveGoals(owner string) (goals []goals.Goal)
}

// Report summarizes one broadcast
type Report struct {
	Sent   int
	Failed int
}

// Broadcaster sends a check-in to every active employee of the roster
type Broadcaster struct {
	composer   *Composer
	roster     roster.Roster
	goals      GoalReader
	dispatcher pipeline.Dispatcher
	pause      time.Duration
	logger     slog.SLogger
}

// NewBroadcaster returns a Broadcaster waiting pause between each employee
func NewBroadcaster(composer *Composer, r roster.Roster, goals GoalReader, dispatcher pipeline.Dispatcher, pause time.Duration, logger slog.SLogger) *Broadcaster {
	return &Broadcaster{composer: composer, roster: r, goals: goals, dispatcher: dispatcher, pause: pause, logger: logger}
}

// Broadcast sends the check-ins. A failure for one employee doesn't stop the others. Broadcast
// stops early when ctx is done
func (b *Broadcaster) Broadcast(ctx context.Context) (report Report) {
	for i, e := range b.roster.Active() {
		if i > 0 && b.pause > 0 {
			select {
			case <-ctx.Done():
				b.logger.Printf("Check-in broadcast interrupted: %v", ctx.Err())
				return report
			case <-time.After(b.pause):
			}
		}

		text := b.composer.Compose(ctx, e, b.goals.ActiveGoals(e.SlackID))
		if err := b.dispatcher.Dispatch(ctx, e.SlackID, text); err != nil {
			report.Failed++
			b.logger.Printf("Error sending check-in to [%s] (%s): %v", e.Name, e.SlackID, err)
			continue
		}

		report.Sent++
		b.logger.Debugf("Check-in sent to [%s] (%s)", e.Name, e.SlackID)
	}

	return report
}
