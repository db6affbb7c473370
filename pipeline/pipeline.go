// Package pipeline sequences the processing of inbound replies (analysis, goal update, reply
// generation and interaction logging) and the proactive deadline sweep
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/rocketcrew/elonbot/analyzer"
	"github.com/rocketcrew/elonbot/goals"
	"github.com/rocketcrew/elonbot/reply"
	"github.com/rocketcrew/elonbot/slog"
)

const (
	// FallbackReplyFormat is the reply sent when processing fails
	FallbackReplyFormat = "Thanks for the update, %s! Processing your response and will provide detailed feedback shortly. Keep pushing boundaries! 🚀"

	// DeadlineAlertBanner prefixes every deadline follow-up
	DeadlineAlertBanner = "🚨 *DEADLINE ALERT* 🚨\n\n"

	followUpMessageFormat = "Deadline by %s. Check in on this goal: %s"
)

// Interaction is the immutable record of one processed inbound message
type Interaction struct {
	UserID            string                  `json:"userId"`
	UserName          string                  `json:"userName"`
	Timestamp         time.Time               `json:"timestamp"`
	InboundMessage    string                  `json:"inboundMessage"`
	OutboundReply     string                  `json:"outboundReply"`
	Analysis          analyzer.AnalysisResult `json:"analysis"`
	GoalsActiveAtTime int                     `json:"goalsActiveAtTime"`
	Deadline          string                  `json:"deadline,omitempty"`
	GoalID            int64                   `json:"goalId,omitempty"`
}

// InteractionLog is the append-only log of interactions
type InteractionLog interface {
	Append(i Interaction) (err error)
}

// Dispatcher delivers a message to a user
type Dispatcher interface {
	Dispatch(ctx context.Context, userID string, text string) (err error)
}

// GoalStore is the part of the goal store used by the pipeline. *goals.Store implements it
type GoalStore interface {
	SetGoal(owner string, description string, deadline string) (id int64, err error)
	ActiveGoals(owner string) (goals []goals.Goal)
	AppendUpdate(owner string, id int64, text string) (found bool, err error)
	UpcomingDeadlines(asOf time.Time) (due []goals.Due)
	MarkFollowUpSent(id int64) (err error)
}

// UserNamer resolves a display name for a user id
type UserNamer func(ctx context.Context, userID string) (name string)

// SweepReport summarizes one deadline sweep
type SweepReport struct {
	Due    int
	Sent   int
	Failed int
}

// Orchestrator runs the reply pipeline. It holds no per-user state: goals live in the GoalStore
type Orchestrator struct {
	analyzer     analyzer.Analyzer
	goals        GoalStore
	generator    reply.Generator
	interactions InteractionLog
	dispatcher   Dispatcher
	names        UserNamer
	now          func() time.Time
	logger       slog.SLogger
}

// Option defines an option for the Orchestrator
type Option func(*Orchestrator)

// OptionLogger sets the logger of the orchestrator
func OptionLogger(logger slog.SLogger) func(*Orchestrator) {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// OptionClock sets the function used to timestamp interactions
func OptionClock(now func() time.Time) func(*Orchestrator) {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// OptionUserNamer sets how deadline follow-ups resolve the name of goal owners. By default the
// owner id is used
func OptionUserNamer(names UserNamer) func(*Orchestrator) {
	return func(o *Orchestrator) {
		o.names = names
	}
}

// OptionDispatcher sets the dispatcher used by the deadline sweep
func OptionDispatcher(d Dispatcher) func(*Orchestrator) {
	return func(o *Orchestrator) {
		o.dispatcher = d
	}
}

// New creates an Orchestrator. A nil interaction log disables interaction logging
func New(a analyzer.Analyzer, store GoalStore, generator reply.Generator, interactions InteractionLog, options ...Option) (o *Orchestrator) {
	o = &Orchestrator{
		analyzer:     a,
		goals:        store,
		generator:    generator,
		interactions: interactions,
		names:        func(ctx context.Context, userID string) string { return userID },
		now:          time.Now,
		logger:       slog.Discard(),
	}

	for _, option := range options {
		option(o)
	}

	return o
}

// HandleInboundMessage processes a reply and returns the text to send back. It never fails: any
// error or panic yields the fallback reply
func (o *Orchestrator) HandleInboundMessage(ctx context.Context, userID string, userName string, message string) (text string) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Printf("Recovered from failure processing message from [%s]: %v", userID, r)
			text = fallbackReply(userID, userName)
		}
	}()

	analysis := o.analyzer.Analyze(ctx, message)

	deadline, ok := o.analyzer.ExtractDeadline(message)
	if !ok && analysis.Source == analyzer.OracleSource && !analyzer.IsIndicatorOnly(analysis.ExtractedDeadline) {
		deadline = analysis.ExtractedDeadline
	}

	var goalID int64
	if deadline != "" && (analysis.GoalsMentioned || analysis.HasDeadline) {
		id, err := o.goals.SetGoal(userID, message, deadline)
		if err != nil {
			o.logger.Printf("Error persisting new goal [%d] for [%s]: %v", id, userID, err)
		}

		goalID = id
		o.logger.Debugf("New goal [%d] set for [%s] with deadline [%s]", id, userID, deadline)
	}

	active := o.goals.ActiveGoals(userID)
	if goalID == 0 && len(active) > 0 && (len(analysis.ProgressIndicators) > 0 || len(analysis.Achievements) > 0) {
		latest := active[len(active)-1]
		if _, err := o.goals.AppendUpdate(userID, latest.ID, message); err != nil {
			o.logger.Printf("Error persisting update of goal [%d] for [%s]: %v", latest.ID, userID, err)
		}
	}

	text = o.generator.Generate(ctx, reply.Request{UserName: userName, Message: message, Analysis: analysis, ActiveGoals: active})
	if text == "" {
		o.logger.Printf("Empty reply generated for [%s], using fallback", userID)
		text = fallbackReply(userID, userName)
	}

	o.appendInteraction(Interaction{
		UserID:            userID,
		UserName:          userName,
		Timestamp:         o.now(),
		InboundMessage:    message,
		OutboundReply:     text,
		Analysis:          analysis,
		GoalsActiveAtTime: len(active),
		Deadline:          deadline,
		GoalID:            goalID,
	})

	return text
}

// appendInteraction is best-effort: failures are logged and swallowed
func (o *Orchestrator) appendInteraction(i Interaction) {
	if o.interactions == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			o.logger.Printf("Recovered from failure logging interaction of [%s]: %v", i.UserID, r)
		}
	}()

	if err := o.interactions.Append(i); err != nil {
		o.logger.Printf("Error logging interaction of [%s]: %v", i.UserID, err)
	}
}

// RunDeadlineSweep sends a follow-up for every goal due within 24 hours of now. Each goal is
// processed independently: a failed follow-up is logged, left unmarked for the next sweep and
// doesn't stop the others
func (o *Orchestrator) RunDeadlineSweep(ctx context.Context, now time.Time) (report SweepReport) {
	due := o.goals.UpcomingDeadlines(now)
	report.Due = len(due)

	for _, d := range due {
		if err := o.followUp(ctx, d); err != nil {
			report.Failed++
			o.logger.Printf("Error sending deadline follow-up for goal [%d] of [%s]: %v", d.Goal.ID, d.Owner, err)
			continue
		}

		report.Sent++
		o.logger.Debugf("Deadline follow-up sent for goal [%d] of [%s]", d.Goal.ID, d.Owner)
	}

	return report
}

func (o *Orchestrator) followUp(ctx context.Context, d goals.Due) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("recovered from %v", r)
		}
	}()

	if o.dispatcher == nil {
		return errors.New("no dispatcher configured")
	}

	message := fmt.Sprintf(followUpMessageFormat, d.Goal.Deadline, d.Goal.Description)
	text := o.generator.Generate(ctx, reply.Request{
		UserName:    o.names(ctx, d.Owner),
		Message:     message,
		Analysis:    analyzer.NewHeuristic().Analyze(ctx, message),
		ActiveGoals: []goals.Goal{d.Goal},
		FollowUp:    true,
	})

	if err = o.dispatcher.Dispatch(ctx, d.Owner, DeadlineAlertBanner+text); err != nil {
		return errors.Wrap(err, "dispatch failed")
	}

	if err := o.goals.MarkFollowUpSent(d.Goal.ID); err != nil {
		o.logger.Printf("Error persisting follow-up status of goal [%d]: %v", d.Goal.ID, err)
	}

	return nil
}

func fallbackReply(userID string, userName string) string {
	if userName == "" {
		userName = userID
	}

	return fmt.Sprintf(FallbackReplyFormat, userName)
}
