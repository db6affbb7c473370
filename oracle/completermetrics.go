package oracle

// This code follows the layout of decorators generated with http://github.com/hexdigest/gowrap
// using an opentelemetry template

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// CompleterWithTelemetry implements Completer with Complete wrapped with open telemetry metrics
type CompleterWithTelemetry struct {
	base             Completer
	attrs            metric.MeasurementOption
	callCounter      metric.Int64Counter
	transportErrors  metric.Int64Counter
	malformedErrors  metric.Int64Counter
	timeMeasureMilli metric.Int64Histogram
}

// NewCompleterWithTelemetry returns an instance of the Completer decorated with open telemetry timing and count metrics
func NewCompleterWithTelemetry(base Completer, name string, meter metric.Meter) *CompleterWithTelemetry {
	calls, _ := meter.Int64Counter("completer_Complete_Calls")
	transportErrors, _ := meter.Int64Counter("completer_Complete_TransportErrors")
	malformedErrors, _ := meter.Int64Counter("completer_Complete_MalformedErrors")
	timeMeasure, _ := meter.Int64Histogram("completer_Complete_ProcessingTimeMillis", metric.WithUnit("ms"))

	return &CompleterWithTelemetry{
		base:             base,
		attrs:            metric.WithAttributes(attribute.String("name", name)),
		callCounter:      calls,
		transportErrors:  transportErrors,
		malformedErrors:  malformedErrors,
		timeMeasureMilli: timeMeasure,
	}
}

// Complete implements Completer
func (_d *CompleterWithTelemetry) Complete(ctx context.Context, req Request) (text string, err error) {
	_since := time.Now()
	defer func() {
		mctx := context.Background()

		switch {
		case err == nil:
		case IsMalformedOutputError(err):
			_d.malformedErrors.Add(mctx, 1, _d.attrs)
		default:
			_d.transportErrors.Add(mctx, 1, _d.attrs)
		}

		_d.callCounter.Add(mctx, 1, _d.attrs)
		_d.timeMeasureMilli.Record(mctx, time.Since(_since).Milliseconds(), _d.attrs)
	}()
	return _d.base.Complete(ctx, req)
}
