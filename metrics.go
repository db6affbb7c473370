package elonbot

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	sentOutcome   = "sent"
	failedOutcome = "failed"
)

// instrumenter holds data for core instrumentation
type instrumenter struct {
	appName     string
	attrs       attribute.Set
	coreMetrics coreMetrics
}

// coreMetrics holds core elonbot metrics
type coreMetrics struct {
	msgsSeen                   metric.Int64Counter
	msgsProcessed              metric.Int64Counter
	msgProcessingLatencyMillis metric.Int64Histogram
	msgDispatchLatencyMillis   metric.Int64Histogram
	slackLatencyMillis         metric.Int64Histogram
	followUps                  metric.Int64Counter
	checkins                   metric.Int64Counter
}

// newInstrumenter creates a new core instrumenter
func newInstrumenter(appName string, meter metric.Meter) (ins *instrumenter) {
	ins = new(instrumenter)
	ins.appName = appName
	ins.attrs = attribute.NewSet(attribute.String("name", appName))

	ins.coreMetrics.msgsSeen, _ = meter.Int64Counter("msgSeen")
	ins.coreMetrics.msgsProcessed, _ = meter.Int64Counter("msgProcessed")
	ins.coreMetrics.msgProcessingLatencyMillis, _ = meter.Int64Histogram("msgProcessingLatencyMillis", metric.WithUnit("ms"))
	ins.coreMetrics.msgDispatchLatencyMillis, _ = meter.Int64Histogram("msgDispatchLatencyMillis", metric.WithUnit("ms"))
	ins.coreMetrics.slackLatencyMillis, _ = meter.Int64Histogram("slackLatencyMillis", metric.WithUnit("ms"))
	ins.coreMetrics.followUps, _ = meter.Int64Counter("deadlineFollowUps")
	ins.coreMetrics.checkins, _ = meter.Int64Counter("checkins")

	return ins
}

func (ins *instrumenter) countMsgSeen() {
	ins.coreMetrics.msgsSeen.Add(context.Background(), 1, metric.WithAttributeSet(ins.attrs))
}

func (ins *instrumenter) recordMsgProcessed(processing time.Duration, dispatch time.Duration) {
	ctx := context.Background()
	opt := metric.WithAttributeSet(ins.attrs)

	ins.coreMetrics.msgsProcessed.Add(ctx, 1, opt)
	ins.coreMetrics.msgProcessingLatencyMillis.Record(ctx, processing.Milliseconds(), opt)
	ins.coreMetrics.msgDispatchLatencyMillis.Record(ctx, dispatch.Milliseconds(), opt)
}

func (ins *instrumenter) recordSlackLatency(latency time.Duration) {
	ins.coreMetrics.slackLatencyMillis.Record(context.Background(), latency.Milliseconds(), metric.WithAttributeSet(ins.attrs))
}

// countOutcomes adds sent and failed to the counter, split by an outcome attribute
func (ins *instrumenter) countOutcomes(c metric.Int64Counter, sent int, failed int) {
	ctx := context.Background()

	c.Add(ctx, int64(sent), metric.WithAttributes(attribute.String("name", ins.appName), attribute.String("outcome", sentOutcome)))
	c.Add(ctx, int64(failed), metric.WithAttributes(attribute.String("name", ins.appName), attribute.String("outcome", failedOutcome)))
}

type timed func()

// measure returns the execution duration of a timed function
func measure(operation timed) (d time.Duration) {
	before := time.Now()

	operation()

	return time.Since(before)
}
