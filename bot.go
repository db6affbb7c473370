package elonbot

import (
	"context"
	"fmt"
	"hash/fnv"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/marcsantiago/gocron"
	"github.com/pkg/errors"
	"github.com/rocketcrew/elonbot/config"
	"github.com/rocketcrew/elonbot/pipeline"
	"github.com/rocketcrew/elonbot/roster"
	"github.com/rocketcrew/elonbot/schedule"
	"github.com/rocketcrew/elonbot/slog"
	"github.com/slack-go/slack"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// VERSION represents the current elonbot version
const VERSION = "1.0.0"

// MessageHandler turns a direct message into the reply sent back to its author.
// *pipeline.Orchestrator implements it
type MessageHandler interface {
	HandleInboundMessage(ctx context.Context, userID string, userName string, message string) (text string)
}

// ScheduledJob represents a job run by the bot scheduler along with when it runs
type ScheduledJob struct {
	Name string

	schedule.Definition

	// Help description for the job
	Description string

	// Run is invoked when the schedule activates. The context is cancelled when the bot shuts down
	Run func(ctx context.Context)
}

// String returns a friendly description of a ScheduledJob
func (j ScheduledJob) String() string {
	return fmt.Sprintf("`%s` - %s", j.Definition, j.Description)
}

// Bot holds a running elonbot: the slack connection, the message handler that replies to direct
// messages and the scheduled jobs
type Bot struct {
	name    string
	config  *viper.Viper
	handler MessageHandler
	jobs    []ScheduledJob
	closers []io.Closer

	api            *slack.Client
	slackOptions   []slack.Option
	chatDriver     chatDriver
	userInfoFinder UserInfoFinder
	roster         roster.Roster
	names          pipeline.UserNamer

	selfID   string
	selfName string

	stdLogger    *log.Logger
	log          slog.SLogger
	meter        metric.Meter
	instrumenter *instrumenter
	now          func() time.Time
}

// Option defines an option for a Bot
type Option func(*Bot)

// OptionLog sets a logger for the bot. Debug output follows the debug configuration
func OptionLog(logger *log.Logger) func(*Bot) {
	return func(b *Bot) {
		b.stdLogger = logger
	}
}

// OptionLogger sets the SLogger of the bot. It takes precedence over OptionLog
func OptionLogger(logger slog.SLogger) func(*Bot) {
	return func(b *Bot) {
		b.log = logger
	}
}

// OptionMeter sets the meter used to instrument the bot. The global meter provider is used otherwise
func OptionMeter(meter metric.Meter) func(*Bot) {
	return func(b *Bot) {
		b.meter = meter
	}
}

// OptionSlackOption adds an option to the slack client
func OptionSlackOption(option slack.Option) func(*Bot) {
	return func(b *Bot) {
		b.slackOptions = append(b.slackOptions, option)
	}
}

// OptionRoster sets the roster used to resolve the names of users
func OptionRoster(r roster.Roster) func(*Bot) {
	return func(b *Bot) {
		b.roster = r
	}
}

// New creates a new Bot. The slack client is created right away so the bot can dispatch
// messages (as a pipeline.Dispatcher) without running the real time loop
func New(name string, v *viper.Viper, options ...Option) (b *Bot, err error) {
	b = &Bot{name: name, config: v, now: time.Now}

	for _, option := range options {
		option(b)
	}

	if b.stdLogger == nil {
		b.stdLogger = log.New(os.Stdout, fmt.Sprintf("%s: ", name), log.Lshortfile|log.LstdFlags)
	}

	if b.log == nil {
		b.log = slog.New(b.stdLogger, v.GetBool(config.DebugKey))
	}

	if b.meter == nil {
		b.meter = otel.Meter(name)
	}

	b.instrumenter = newInstrumenter(name, b.meter)

	slackOptions := append([]slack.Option{slack.OptionDebug(v.GetBool(config.DebugKey)), slack.OptionLog(b.stdLogger)}, b.slackOptions...)
	b.api = slack.New(v.GetString(config.TokenKey), slackOptions...)
	b.chatDriver = newChatDriverWithTelemetry(b.api, name, b.meter)

	b.userInfoFinder, err = NewCachingUserInfoFinder(v, NewUserInfoFinderWithTelemetry(b.api, name, b.meter), b.log)
	if err != nil {
		return nil, err
	}

	b.names = NewUserNamer(b.roster, b.userInfoFinder, b.log)

	return b, nil
}

// Names returns the UserNamer used by the bot
func (b *Bot) Names() pipeline.UserNamer {
	return b.names
}

// Jobs returns the scheduled jobs of the bot
func (b *Bot) Jobs() []ScheduledJob {
	return append([]ScheduledJob(nil), b.jobs...)
}

// Close closes all closers of the bot in reverse order of registration. Every closer is closed
// and the first error is returned
func (b *Bot) Close() (err error) {
	for i := len(b.closers) - 1; i >= 0; i-- {
		if cerr := b.closers[i].Close(); cerr != nil {
			b.log.Printf("Error closing: %v", cerr)
			if err == nil {
				err = cerr
			}
		}
	}

	b.closers = nil

	return err
}

// Run starts the bot and loops until the process is interrupted or the credentials are rejected
func (b *Bot) Run() (err error) {
	if b.handler == nil {
		return errors.New("no message handler configured")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	timeLoc, err := config.GetTimeLocation(b.config)
	if err != nil {
		return err
	}

	sc, err := b.newScheduler(ctx, timeLoc)
	if err != nil {
		return err
	}

	stopScheduler := sc.Start()
	defer func() {
		stopScheduler <- true
	}()

	rtm := b.api.NewRTM()
	go rtm.ManageConnection()
	defer rtm.Disconnect()

	return b.handleIncomingEvents(ctx, rtm.IncomingEvents, rtm)
}

// newScheduler creates a scheduler with every scheduled job registered. Jobs run with ctx
func (b *Bot) newScheduler(ctx context.Context, timeLoc *time.Location) (sc *gocron.Scheduler, err error) {
	gocron.ChangeLoc(timeLoc)
	sc = gocron.NewScheduler()

	for _, j := range b.jobs {
		job := j
		b.log.Debugf("Adding job [%s] %s to scheduler", job.Name, job)

		if err := schedule.Schedule(sc, job.Definition, timeLoc, func() { b.runJob(ctx, job) }); err != nil {
			return nil, errors.Wrapf(err, "failed to schedule job [%s]", job.Name)
		}
	}

	return sc, nil
}

// runJob runs a scheduled job, recovering from any panic so the scheduler keeps going
func (b *Bot) runJob(ctx context.Context, j ScheduledJob) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Printf("Recovered from failure running job [%s]: %v", j.Name, r)
		}
	}()

	if ctx.Err() != nil {
		return
	}

	b.log.Debugf("Running job [%s]", j.Name)
	d := measure(func() { j.Run(ctx) })
	b.log.Debugf("Job [%s] completed in %s", j.Name, d)
}

// handleIncomingEvents processes events until ctx is done, the events channel is closed or the
// credentials are rejected. Direct messages are spread over partitions by user so that messages
// of a given user are handled in order while different users are handled concurrently
func (b *Bot) handleIncomingEvents(ctx context.Context, events <-chan slack.RTMEvent, sif selfInfoFinder) (err error) {
	partitions, wg := b.startPartitions(ctx)
	defer func() {
		for _, p := range partitions {
			close(p)
		}
		wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			b.log.Printf("Shutting down: %v", ctx.Err())
			return nil

		case msg, ok := <-events:
			if !ok {
				return nil
			}

			switch e := msg.Data.(type) {
			case *slack.ConnectedEvent:
				b.log.Printf("Connected, connection counter: %d", e.ConnectionCount)
				b.cacheSelfIdentity(sif)

			case *slack.MessageEvent:
				if b.isDirectMessageToHandle(e) {
					b.instrumenter.countMsgSeen()
					partitions[partitionFor(e.User, len(partitions))] <- e
				}

			case *slack.LatencyReport:
				b.instrumenter.recordSlackLatency(e.Value)
				b.log.Debugf("Current latency: %v", e.Value)

			case *slack.RTMError:
				b.log.Printf("Error: %s", e.Error())

			case *slack.InvalidAuthEvent:
				b.log.Printf("Invalid credentials")
				return errors.New("invalid slack credentials")

			default:
				// Ignoring other events
			}
		}
	}
}

// startPartitions starts one worker per configured partition
func (b *Bot) startPartitions(ctx context.Context) (partitions []chan *slack.MessageEvent, wg *sync.WaitGroup) {
	count := b.config.GetInt(config.MessageProcessingPartitionCount)
	if count < 1 {
		count = 1
	}

	buffered := b.config.GetInt(config.MessageProcessingBufferedMessageCount)
	if buffered < 0 {
		buffered = 0
	}

	wg = new(sync.WaitGroup)
	partitions = make([]chan *slack.MessageEvent, count)
	for i := range partitions {
		partitions[i] = make(chan *slack.MessageEvent, buffered)

		wg.Add(1)
		go func(in <-chan *slack.MessageEvent) {
			defer wg.Done()

			for e := range in {
				b.processDirectMessage(ctx, e)
			}
		}(partitions[i])
	}

	return partitions, wg
}

// partitionFor returns the partition of a user
func partitionFor(userID string, count int) int {
	h := fnv.New32a()
	h.Write([]byte(userID))

	return int(h.Sum32() % uint32(count))
}

// isDirectMessageToHandle returns true for new messages sent by a person to the bot in a direct
// message channel. Acknowledgements, edits, deletions, bot messages and our own messages are ignored
func (b *Bot) isDirectMessageToHandle(e *slack.MessageEvent) bool {
	switch {
	case e.ReplyTo > 0, e.Type != "message", e.SubType != "":
		return false
	case e.BotID != "" || e.User == "" || e.User == b.selfID:
		b.log.Debugf("Ignoring message from [%s] (bot [%s])", e.User, e.BotID)
		return false
	case !strings.HasPrefix(e.Channel, "D"):
		return false
	case strings.TrimSpace(e.Text) == "":
		return false
	}

	return true
}

// processDirectMessage runs the message handler and posts its reply in the same conversation
func (b *Bot) processDirectMessage(ctx context.Context, e *slack.MessageEvent) {
	var text string
	processing := measure(func() {
		text = b.handler.HandleInboundMessage(ctx, e.User, b.names(ctx, e.User), e.Text)
	})

	dispatch := measure(func() {
		if err := b.post(ctx, e.Channel, text); err != nil {
			b.log.Printf("Unable to reply to [%s] on [%s]: %v", e.User, e.Channel, err)
		}
	})

	b.instrumenter.recordMsgProcessed(processing, dispatch)
}

// cacheSelfIdentity gets "our" identity and keeps the selfID and selfName to avoid having to look it up every time
func (b *Bot) cacheSelfIdentity(sif selfInfoFinder) {
	info := sif.GetInfo()
	if info == nil || info.User == nil {
		return
	}

	b.selfID = info.User.ID
	b.selfName = info.User.Name

	b.log.Debugf("Caching self id [%s] and self name [%s]", b.selfID, b.selfName)
}

// Dispatch sends text to the user in their direct message conversation with the bot. It implements
// pipeline.Dispatcher
func (b *Bot) Dispatch(ctx context.Context, userID string, text string) (err error) {
	channel, _, _, err := b.chatDriver.OpenConversationContext(ctx, &slack.OpenConversationParameters{Users: []string{userID}})
	if err != nil {
		return errors.Wrapf(err, "failed to open conversation with [%s]", userID)
	}

	return b.post(ctx, channel.ID, text)
}

// post sends a message as the configured bot name and icon
func (b *Bot) post(ctx context.Context, channelID string, text string) (err error) {
	_, _, err = b.chatDriver.PostMessageContext(ctx, channelID,
		slack.MsgOptionText(text, false),
		slack.MsgOptionUsername(b.config.GetString(config.BotNameKey)),
		slack.MsgOptionIconEmoji(b.config.GetString(config.BotIconEmojiKey)))
	if err != nil {
		return errors.Wrapf(err, "failed to post message on [%s]", channelID)
	}

	return nil
}
