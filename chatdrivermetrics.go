package elonbot

// This code follows the layout of decorators generated with http://github.com/hexdigest/gowrap
// using an opentelemetry template

import (
	"context"
	"time"
	"unicode"

	"github.com/slack-go/slack"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var chatDriverMethods = []string{"OpenConversationContext", "PostMessageContext"}

// chatDriverWithTelemetry implements chatDriver interface with all methods wrapped
// with open telemetry metrics
type chatDriverWithTelemetry struct {
	base               chatDriver
	attrs              metric.MeasurementOption
	methodCounters     map[string]metric.Int64Counter
	errCounters        map[string]metric.Int64Counter
	methodTimeMeasures map[string]metric.Int64Histogram
}

// newChatDriverWithTelemetry returns an instance of the chatDriver decorated with open telemetry timing and count metrics
func newChatDriverWithTelemetry(base chatDriver, name string, meter metric.Meter) *chatDriverWithTelemetry {
	return &chatDriverWithTelemetry{
		base:               base,
		attrs:              metric.WithAttributes(attribute.String("name", name)),
		methodCounters:     newMethodCounters("chatDriver", chatDriverMethods, "Calls", meter),
		errCounters:        newMethodCounters("chatDriver", chatDriverMethods, "Errors", meter),
		methodTimeMeasures: newMethodTimeMeasures("chatDriver", chatDriverMethods, meter),
	}
}

// instrumentName returns the name of a decorator instrument with a lowercased first letter
func instrumentName(iface string, method string, suffix string) string {
	n := []rune(iface + "_" + method + "_" + suffix)
	n[0] = unicode.ToLower(n[0])

	return string(n)
}

func newMethodTimeMeasures(iface string, methods []string, meter metric.Meter) (timeMeasures map[string]metric.Int64Histogram) {
	timeMeasures = make(map[string]metric.Int64Histogram)

	for _, m := range methods {
		h, _ := meter.Int64Histogram(instrumentName(iface, m, "ProcessingTimeMillis"), metric.WithUnit("ms"))
		timeMeasures[m] = h
	}

	return timeMeasures
}

func newMethodCounters(iface string, methods []string, suffix string, meter metric.Meter) (counters map[string]metric.Int64Counter) {
	counters = make(map[string]metric.Int64Counter)

	for _, m := range methods {
		c, _ := meter.Int64Counter(instrumentName(iface, m, suffix))
		counters[m] = c
	}

	return counters
}

// recordCall counts the call (and its error, if any) and records its duration
func recordCall(method string, since time.Time, err error, attrs metric.MeasurementOption, calls map[string]metric.Int64Counter, errs map[string]metric.Int64Counter, times map[string]metric.Int64Histogram) {
	ctx := context.Background()

	if err != nil {
		errs[method].Add(ctx, 1, attrs)
	}

	calls[method].Add(ctx, 1, attrs)
	times[method].Record(ctx, time.Since(since).Milliseconds(), attrs)
}

// OpenConversationContext implements chatDriver
func (_d *chatDriverWithTelemetry) OpenConversationContext(ctx context.Context, params *slack.OpenConversationParameters) (channel *slack.Channel, noOp bool, alreadyOpen bool, err error) {
	_since := time.Now()
	defer func() {
		recordCall("OpenConversationContext", _since, err, _d.attrs, _d.methodCounters, _d.errCounters, _d.methodTimeMeasures)
	}()
	return _d.base.OpenConversationContext(ctx, params)
}

// PostMessageContext implements chatDriver
func (_d *chatDriverWithTelemetry) PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (respChannel string, respTimestamp string, err error) {
	_since := time.Now()
	defer func() {
		recordCall("PostMessageContext", _since, err, _d.attrs, _d.methodCounters, _d.errCounters, _d.methodTimeMeasures)
	}()
	return _d.base.PostMessageContext(ctx, channelID, options...)
}
