package datastoredb

// This code follows the layout of decorators generated with http://github.com/hexdigest/gowrap
// using an opentelemetry template

import (
	"context"
	"time"
	"unicode"

	"cloud.google.com/go/datastore"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var datastorerMethods = []string{"Close", "Delete", "Get", "GetAll", "Put", "connect"}

// datastorerWithTelemetry implements datastorer interface with all methods wrapped
// with open telemetry metrics
type datastorerWithTelemetry struct {
	base               datastorer
	attrs              metric.MeasurementOption
	methodCounters     map[string]metric.Int64Counter
	errCounters        map[string]metric.Int64Counter
	methodTimeMeasures map[string]metric.Int64Histogram
}

// newDatastorerWithTelemetry returns an instance of the datastorer decorated with open telemetry timing and count metrics
func newDatastorerWithTelemetry(base datastorer, name string, meter metric.Meter) *datastorerWithTelemetry {
	return &datastorerWithTelemetry{
		base:               base,
		attrs:              metric.WithAttributes(attribute.String("name", name)),
		methodCounters:     newDatastorerMethodCounters("Calls", meter),
		errCounters:        newDatastorerMethodCounters("Errors", meter),
		methodTimeMeasures: newDatastorerMethodTimeMeasures(meter),
	}
}

func instrumentName(method string, suffix string) string {
	n := []rune("datastorer_" + method + "_" + suffix)
	n[0] = unicode.ToLower(n[0])

	return string(n)
}

func newDatastorerMethodTimeMeasures(meter metric.Meter) (timeMeasures map[string]metric.Int64Histogram) {
	timeMeasures = make(map[string]metric.Int64Histogram)

	for _, m := range datastorerMethods {
		h, _ := meter.Int64Histogram(instrumentName(m, "ProcessingTimeMillis"), metric.WithUnit("ms"))
		timeMeasures[m] = h
	}

	return timeMeasures
}

func newDatastorerMethodCounters(suffix string, meter metric.Meter) (counters map[string]metric.Int64Counter) {
	counters = make(map[string]metric.Int64Counter)

	for _, m := range datastorerMethods {
		c, _ := meter.Int64Counter(instrumentName(m, suffix))
		counters[m] = c
	}

	return counters
}

// record counts the call (and its error, if any) and records its duration
func (_d *datastorerWithTelemetry) record(method string, since time.Time, err error) {
	ctx := context.Background()

	if err != nil {
		if c := _d.errCounters[method]; c != nil {
			c.Add(ctx, 1, _d.attrs)
		}
	}

	if c := _d.methodCounters[method]; c != nil {
		c.Add(ctx, 1, _d.attrs)
	}

	if h := _d.methodTimeMeasures[method]; h != nil {
		h.Record(ctx, time.Since(since).Milliseconds(), _d.attrs)
	}
}

// Close implements datastorer
func (_d *datastorerWithTelemetry) Close() (err error) {
	_since := time.Now()
	defer func() {
		_d.record("Close", _since, err)
	}()
	return _d.base.Close()
}

// Delete implements datastorer
func (_d *datastorerWithTelemetry) Delete(ctx context.Context, k *datastore.Key) (err error) {
	_since := time.Now()
	defer func() {
		_d.record("Delete", _since, err)
	}()
	return _d.base.Delete(ctx, k)
}

// Get implements datastorer. A missing entity is not counted as an error
func (_d *datastorerWithTelemetry) Get(ctx context.Context, k *datastore.Key, dest interface{}) (err error) {
	_since := time.Now()
	defer func() {
		if err == datastore.ErrNoSuchEntity {
			_d.record("Get", _since, nil)
			return
		}
		_d.record("Get", _since, err)
	}()
	return _d.base.Get(ctx, k, dest)
}

// GetAll implements datastorer
func (_d *datastorerWithTelemetry) GetAll(ctx context.Context, query *datastore.Query, dest interface{}) (keys []*datastore.Key, err error) {
	_since := time.Now()
	defer func() {
		_d.record("GetAll", _since, err)
	}()
	return _d.base.GetAll(ctx, query, dest)
}

// Put implements datastorer
func (_d *datastorerWithTelemetry) Put(ctx context.Context, k *datastore.Key, v interface{}) (key *datastore.Key, err error) {
	_since := time.Now()
	defer func() {
		_d.record("Put", _since, err)
	}()
	return _d.base.Put(ctx, k, v)
}

// connect implements datastorer
func (_d *datastorerWithTelemetry) connect() (err error) {
	_since := time.Now()
	defer func() {
		_d.record("connect", _since, err)
	}()
	return _d.base.connect()
}
