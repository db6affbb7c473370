package pipeline_test

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/rocketcrew/elonbot/analyzer"
	"github.com/rocketcrew/elonbot/goals"
	"github.com/rocketcrew/elonbot/oracle"
	"github.com/rocketcrew/elonbot/pipeline"
	"github.com/rocketcrew/elonbot/reply"
	"github.com/rocketcrew/elonbot/slog"
	"github.com/rocketcrew/elonbot/test/capture"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

var now = time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)

type interactionRecorder struct {
	sync.Mutex
	interactions []pipeline.Interaction
	err          error
	panics       bool
}

func (ir *interactionRecorder) Append(i pipeline.Interaction) error {
	if ir.panics {
		panic("log unavailable")
	}

	ir.Lock()
	defer ir.Unlock()

	if ir.err != nil {
		return ir.err
	}

	ir.interactions = append(ir.interactions, i)
	return nil
}

type failingPersister struct{}

func (failingPersister) Load() ([]goals.Goal, error) { return nil, nil }

func (failingPersister) Save([]goals.Goal) error { return errors.New("disk full") }

type failingCompleter struct{}

func (failingCompleter) Complete(ctx context.Context, req oracle.Request) (string, error) {
	return "", &oracle.TransportError{Backend: "openai", Err: errors.New("connection refused")}
}

type panickingAnalyzer struct{}

func (panickingAnalyzer) Analyze(ctx context.Context, message string) analyzer.AnalysisResult {
	panic("analyzer exploded")
}

func (panickingAnalyzer) ExtractDeadline(message string) (string, bool) {
	return "", false
}

type emptyGenerator struct{}

func (emptyGenerator) Generate(ctx context.Context, req reply.Request) string { return "" }

// fixedChooser always picks the first entry
type fixedChooser struct{}

func (fixedChooser) IntN(n int) int { return 0 }

func newGoalStore(t *testing.T, p goals.Persister) *goals.Store {
	s, err := goals.New(p, goals.OptionClock(func() time.Time { return now }), goals.OptionLocation(time.UTC))
	require.NoError(t, err)

	return s
}

func newLogger() (slog.SLogger, *bytes.Buffer) {
	var b bytes.Buffer
	return slog.New(log.New(&b, "", 0), true), &b
}

func TestHandleInboundMessageCreatesGoal(t *testing.T) {
	store := newGoalStore(t, nil)
	recorder := &interactionRecorder{}
	o := pipeline.New(analyzer.NewHeuristic(), store, reply.NewTemplate(fixedChooser{}), recorder, pipeline.OptionClock(func() time.Time { return now }))

	message := "I closed the deal for $50k, need to finish the report by Friday"
	text := o.HandleInboundMessage(context.Background(), "U1", "Ada", message)

	active := store.ActiveGoals("U1")
	if assert.Len(t, active, 1) {
		assert.Equal(t, "Friday", active[0].Deadline)
		assert.Equal(t, message, active[0].Description)
		assert.Equal(t, goals.Active, active[0].Status)
	}

	assert.Contains(t, text, "Deadline noted: Friday.")
	assert.Contains(t, text, reply.DealAdvice)
	assert.NotContains(t, text, reply.GoalSetting)

	if assert.Len(t, recorder.interactions, 1) {
		i := recorder.interactions[0]
		assert.Equal(t, "U1", i.UserID)
		assert.Equal(t, "Ada", i.UserName)
		assert.Equal(t, now, i.Timestamp)
		assert.Equal(t, message, i.InboundMessage)
		assert.Equal(t, text, i.OutboundReply)
		assert.Equal(t, analyzer.Positive, i.Analysis.Sentiment)
		assert.Equal(t, 1, i.GoalsActiveAtTime)
		assert.Equal(t, "Friday", i.Deadline)
		assert.Equal(t, active[0].ID, i.GoalID)
	}
}

func TestHandleInboundMessageWithoutUsableDeadlineCreatesNoGoal(t *testing.T) {
	store := newGoalStore(t, nil)
	o := pipeline.New(analyzer.NewHeuristic(), store, reply.NewTemplate(fixedChooser{}), nil)

	text := o.HandleInboundMessage(context.Background(), "U1", "Ada", "stuck on the integration, might miss the deadline")

	assert.Empty(t, store.Goals("U1"))
	assert.Contains(t, text, reply.ChallengeAdvice)
	assert.Contains(t, text, reply.DeadlineRequest)
}

func TestHandleInboundMessageGoalMentionWithoutGoalsGetsGoalSetting(t *testing.T) {
	o := pipeline.New(analyzer.NewHeuristic(), newGoalStore(t, nil), reply.NewTemplate(fixedChooser{}), nil)

	text := o.HandleInboundMessage(context.Background(), "U1", "Ada", "We need a new goal for the team")

	assert.Contains(t, text, reply.GoalSetting)
}

func TestHandleInboundMessageAppendsProgressToLatestGoal(t *testing.T) {
	store := newGoalStore(t, nil)
	first, _ := store.SetGoal("U1", "Hire", "")
	latest, _ := store.SetGoal("U1", "Ship the beta", "2024-06-10")

	o := pipeline.New(analyzer.NewHeuristic(), store, reply.NewTemplate(fixedChooser{}), nil)
	o.HandleInboundMessage(context.Background(), "U1", "Ada", "Beta QA is done")

	for _, g := range store.ActiveGoals("U1") {
		switch g.ID {
		case first:
			assert.Empty(t, g.Updates)
		case latest:
			if assert.Len(t, g.Updates, 1) {
				assert.Equal(t, "Beta QA is done", g.Updates[0].Text)
			}
		}
	}
}

func TestHandleInboundMessageOracleDeadlineIsUsedWhenExtractorFindsNothing(t *testing.T) {
	answer := `{"sentiment":"positive","urgency":"medium","hasDeadline":true,"extractedDeadline":"2024-06-30"}`
	completer := oracleAnswer(answer)
	store := newGoalStore(t, nil)
	o := pipeline.New(analyzer.NewOracle(completer, slog.Discard()), store, reply.NewTemplate(fixedChooser{}), nil)

	o.HandleInboundMessage(context.Background(), "U1", "Ada", "Our goal is to wrap the pilot at the end of the quarter")

	active := store.ActiveGoals("U1")
	if assert.Len(t, active, 1) {
		assert.Equal(t, "2024-06-30", active[0].Deadline)
	}
}

type oracleAnswer string

func (oa oracleAnswer) Complete(ctx context.Context, req oracle.Request) (string, error) {
	return string(oa), nil
}

func TestHandleInboundMessageNeverFails(t *testing.T) {
	tests := []struct {
		name      string
		analyzer  analyzer.Analyzer
		persister goals.Persister
		generator reply.Generator
		log       *interactionRecorder
		fallback  bool
	}{
		{"oracle transport failure", analyzer.NewOracle(failingCompleter{}, slog.Discard()), nil, reply.NewOracle(failingCompleter{}, 0, slog.Discard()), &interactionRecorder{}, false},
		{"goal persistence failure", analyzer.NewHeuristic(), failingPersister{}, reply.NewTemplate(nil), &interactionRecorder{}, false},
		{"interaction log failure", analyzer.NewHeuristic(), nil, reply.NewTemplate(nil), &interactionRecorder{err: errors.New("log full")}, false},
		{"interaction log panic", analyzer.NewHeuristic(), nil, reply.NewTemplate(nil), &interactionRecorder{panics: true}, false},
		{"analyzer panic", panickingAnalyzer{}, nil, reply.NewTemplate(nil), &interactionRecorder{}, true},
		{"empty reply", analyzer.NewHeuristic(), nil, emptyGenerator{}, &interactionRecorder{}, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			logger, logs := newLogger()
			o := pipeline.New(tc.analyzer, newGoalStore(t, tc.persister), tc.generator, tc.log, pipeline.OptionLogger(logger))

			var text string
			assert.NotPanics(t, func() {
				text = o.HandleInboundMessage(context.Background(), "U1", "Ada", "Our goal: close Acme by 2024-06-04")
			})

			assert.NotEmpty(t, text)
			if tc.fallback {
				assert.Equal(t, fmt.Sprintf(pipeline.FallbackReplyFormat, "Ada"), text)
				assert.NotEmpty(t, logs.String())
			} else {
				assert.NotEqual(t, fmt.Sprintf(pipeline.FallbackReplyFormat, "Ada"), text)
			}
		})
	}
}

func TestHandleInboundMessageKeepsGoalWhenPersistenceFails(t *testing.T) {
	store := newGoalStore(t, failingPersister{})
	logger, logs := newLogger()
	o := pipeline.New(analyzer.NewHeuristic(), store, reply.NewTemplate(nil), nil, pipeline.OptionLogger(logger))

	o.HandleInboundMessage(context.Background(), "U1", "Ada", "Our goal: close Acme by 2024-06-04")

	assert.Len(t, store.ActiveGoals("U1"), 1)
	assert.Contains(t, logs.String(), "Error persisting new goal")
}

func TestFallbackUsesUserIDWithoutName(t *testing.T) {
	o := pipeline.New(panickingAnalyzer{}, newGoalStore(t, nil), reply.NewTemplate(nil), nil)

	assert.Equal(t, fmt.Sprintf(pipeline.FallbackReplyFormat, "U1"), o.HandleInboundMessage(context.Background(), "U1", "", "hi"))
}

func TestRunDeadlineSweep(t *testing.T) {
	store := newGoalStore(t, nil)
	id, _ := store.SetGoal("U1", "Close the Acme deal", now.Add(12*time.Hour).Format("2006-01-02"))
	store.SetGoal("U1", "Hire", "Friday")

	dispatcher := capture.NewDispatchCaptor()
	o := pipeline.New(analyzer.NewHeuristic(), store, reply.NewTemplate(fixedChooser{}), nil,
		pipeline.OptionDispatcher(dispatcher),
		pipeline.OptionUserNamer(func(ctx context.Context, userID string) string { return "Ada" }))

	report := o.RunDeadlineSweep(context.Background(), now)
	assert.Equal(t, pipeline.SweepReport{Due: 1, Sent: 1}, report)

	sent := dispatcher.Messages("U1")
	if assert.Len(t, sent, 1) {
		assert.True(t, strings.HasPrefix(sent[0], pipeline.DeadlineAlertBanner))
		assert.Contains(t, sent[0], "Ada, your deadline is coming up.")
		assert.Contains(t, sent[0], "Deadline noted: 2024-06-03.")
	}

	for _, g := range store.ActiveGoals("U1") {
		assert.Equal(t, g.ID == id, g.FollowUpSent)
	}

	report = o.RunDeadlineSweep(context.Background(), now.Add(time.Minute))
	assert.Equal(t, pipeline.SweepReport{}, report)
	assert.Len(t, dispatcher.Messages("U1"), 1)
}

func TestRunDeadlineSweepIsolatesFailures(t *testing.T) {
	store := newGoalStore(t, nil)
	deadline := now.Add(6 * time.Hour).Format("2006-01-02")
	failed, _ := store.SetGoal("U1", "Close Acme", deadline)
	store.SetGoal("U2", "Send deck", deadline)
	store.SetGoal("U3", "Board prep", deadline)

	dispatcher := capture.NewDispatchCaptor()
	dispatcher.FailFor["U1"] = errors.New("channel_not_found")

	logger, logs := newLogger()
	o := pipeline.New(analyzer.NewHeuristic(), store, reply.NewOracle(failingCompleter{}, 0, slog.Discard()), nil,
		pipeline.OptionDispatcher(dispatcher), pipeline.OptionLogger(logger))

	report := o.RunDeadlineSweep(context.Background(), now)

	assert.Equal(t, pipeline.SweepReport{Due: 3, Sent: 2, Failed: 1}, report)
	assert.Len(t, dispatcher.Messages("U2"), 1)
	assert.Len(t, dispatcher.Messages("U3"), 1)
	assert.Contains(t, dispatcher.Messages("U2")[0], "U2, progress check!")
	assert.Contains(t, logs.String(), "channel_not_found")

	retry := store.UpcomingDeadlines(now)
	if assert.Len(t, retry, 1) {
		assert.Equal(t, failed, retry[0].Goal.ID)
	}
}

func TestRunDeadlineSweepWithoutDispatcher(t *testing.T) {
	store := newGoalStore(t, nil)
	store.SetGoal("U1", "Close Acme", now.Format("2006-01-02"))

	o := pipeline.New(analyzer.NewHeuristic(), store, reply.NewTemplate(nil), nil)

	assert.Equal(t, pipeline.SweepReport{Due: 1, Failed: 1}, o.RunDeadlineSweep(context.Background(), now))
}

func TestConcurrentHandling(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := newGoalStore(t, nil)
	recorder := &interactionRecorder{}
	o := pipeline.New(analyzer.NewHeuristic(), store, reply.NewTemplate(nil), recorder)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			o.HandleInboundMessage(context.Background(), fmt.Sprintf("U%d", i), "", "Goal: ship it by 2024-06-04")
		}(i)
	}
	wg.Wait()

	assert.Len(t, store.Goals(""), 8)
	assert.Len(t, recorder.interactions, 8)
}
