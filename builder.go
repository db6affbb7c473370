package elonbot

import (
	"context"
	"io"
	"time"

	"github.com/pkg/errors"
	"github.com/rocketcrew/elonbot/checkin"
	"github.com/rocketcrew/elonbot/config"
	"github.com/rocketcrew/elonbot/pipeline"
	"github.com/rocketcrew/elonbot/schedule"
	"github.com/spf13/viper"
)

// Job names
const (
	CheckinJobName   = "checkin"
	SweepJobName     = "deadlineSweep"
	RetentionJobName = "retention"
)

// Broadcaster sends the scheduled check-ins. *checkin.Broadcaster implements it
type Broadcaster interface {
	Broadcast(ctx context.Context) (report checkin.Report)
}

// Sweeper sends the deadline follow-ups. *pipeline.Orchestrator implements it
type Sweeper interface {
	RunDeadlineSweep(ctx context.Context, now time.Time) (report pipeline.SweepReport)
}

// RetentionPolicy prunes the records last changed before MaxAge ago. A zero MaxAge keeps them forever
type RetentionPolicy struct {
	Name   string
	MaxAge time.Duration
	Prune  func(before time.Time) (pruned int, err error)
}

// CloserFunc adapts a function to io.Closer
type CloserFunc func() error

// Close calls f
func (f CloserFunc) Close() error {
	return f()
}

// Builder holds a bot instance to build
type Builder struct {
	bot *Bot
	err error
}

// NewBot returns a new Builder used to set up a new bot
func NewBot(name string, v *viper.Viper, options ...Option) (sb *Builder) {
	sb = new(Builder)
	sb.bot, sb.err = New(name, v, options...)

	return sb
}

// Dispatcher returns the bot being built as a pipeline.Dispatcher so that components built
// before the bot can send messages through it. It returns nil when the setup already failed
func (sb *Builder) Dispatcher() pipeline.Dispatcher {
	if sb.err != nil {
		return nil
	}

	return sb.bot
}

// Names returns the pipeline.UserNamer of the bot being built. It returns nil when the setup already failed
func (sb *Builder) Names() pipeline.UserNamer {
	if sb.err != nil {
		return nil
	}

	return sb.bot.names
}

// WithMessageHandler sets the handler replying to direct messages
func (sb *Builder) WithMessageHandler(h MessageHandler) *Builder {
	if sb.err != nil {
		return sb
	}

	sb.bot.handler = h

	return sb
}

// WithScheduledJob adds a job to the bot scheduler
func (sb *Builder) WithScheduledJob(j ScheduledJob) *Builder {
	if sb.err != nil {
		return sb
	}

	if err := validateDefinition(j.Definition); err != nil {
		sb.err = errors.Wrapf(err, "invalid schedule for job [%s]", j.Name)
		return sb
	}

	sb.bot.jobs = append(sb.bot.jobs, j)

	return sb
}

// WithCheckins schedules the check-in broadcast according to config.CheckinCronKey
func (sb *Builder) WithCheckins(broadcaster Broadcaster) *Builder {
	if sb.err != nil {
		return sb
	}

	b := sb.bot

	return sb.WithScheduledJob(ScheduledJob{
		Name:        CheckinJobName,
		Definition:  schedule.Definition{Cron: b.config.GetString(config.CheckinCronKey)},
		Description: "Send the end-of-day check-in to every active employee",
		Run: func(ctx context.Context) {
			report := broadcaster.Broadcast(ctx)
			b.instrumenter.countOutcomes(b.instrumenter.coreMetrics.checkins, report.Sent, report.Failed)
			b.log.Printf("Check-ins sent: %d, failed: %d", report.Sent, report.Failed)
		},
	})
}

// WithDeadlineSweep schedules the deadline sweep according to config.SweepCronKey
func (sb *Builder) WithDeadlineSweep(sweeper Sweeper) *Builder {
	if sb.err != nil {
		return sb
	}

	b := sb.bot

	return sb.WithScheduledJob(ScheduledJob{
		Name:        SweepJobName,
		Definition:  schedule.Definition{Cron: b.config.GetString(config.SweepCronKey)},
		Description: "Follow up on goals with a deadline within the next 24 hours",
		Run: func(ctx context.Context) {
			report := sweeper.RunDeadlineSweep(ctx, b.now())
			b.instrumenter.countOutcomes(b.instrumenter.coreMetrics.followUps, report.Sent, report.Failed)
			b.log.Printf("Deadline sweep found %d goals due: %d followed up, %d failed", report.Due, report.Sent, report.Failed)
		},
	})
}

// WithRetention schedules the retention policies according to config.RetentionCronKey. Policies
// with a zero MaxAge are left out and no job is scheduled when none remain
func (sb *Builder) WithRetention(policies ...RetentionPolicy) *Builder {
	if sb.err != nil {
		return sb
	}

	enabled := make([]RetentionPolicy, 0, len(policies))
	for _, p := range policies {
		if p.MaxAge > 0 {
			enabled = append(enabled, p)
		}
	}

	if len(enabled) == 0 {
		return sb
	}

	b := sb.bot

	return sb.WithScheduledJob(ScheduledJob{
		Name:        RetentionJobName,
		Definition:  schedule.Definition{Cron: b.config.GetString(config.RetentionCronKey)},
		Description: "Prune expired interactions and inactive goals",
		Run: func(ctx context.Context) {
			ApplyRetention(b.now(), enabled, b.log)
		},
	})
}

// WithCloser adds a closer to be closed when the bot is closed
func (sb *Builder) WithCloser(closer io.Closer) *Builder {
	return sb.WithCloserErr(closer, nil)
}

// WithCloserErr adds a closer coming from a creation function returning (io.Closer, error). The
// first error is kept and returned by Build
func (sb *Builder) WithCloserErr(closer io.Closer, err error) *Builder {
	if sb.err == nil && err != nil {
		sb.err = err
	}

	if sb.err != nil {
		return sb
	}

	if closer != nil {
		sb.bot.closers = append(sb.bot.closers, closer)
	}

	return sb
}

// Build returns the built bot instance. If there was an error during
// setup, the error is returned along with a nil bot
func (sb *Builder) Build() (b *Bot, err error) {
	if sb.err != nil {
		return nil, sb.err
	}

	if sb.bot.handler == nil {
		return nil, errors.New("a message handler is required")
	}

	return sb.bot, nil
}

func validateDefinition(sd schedule.Definition) (err error) {
	if sd.Cron != "" {
		_, err = schedule.NewCronGate(sd.Cron, nil, func() {})
		return err
	}

	if sd.Weekday == "" && (sd.Interval == 0 || sd.Unit == "") {
		return errors.New("an interval with a unit or a weekday is required")
	}

	return nil
}
