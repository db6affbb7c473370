package oracle_test

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/rocketcrew/elonbot/oracle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestStripCodeFences(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`{"a":1}`, `{"a":1}`},
		{"  {\"a\":1}\n", `{"a":1}`},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n{\"a\":1}\n```", `{"a":1}`},
		{"```json {\"a\":1}```", `{"a":1}`},
	}

	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			assert.Equal(t, tc.want, oracle.StripCodeFences(tc.in))
		})
	}
}

func TestErrorClassification(t *testing.T) {
	te := &oracle.TransportError{Backend: "openai", Err: errors.New("connection refused")}
	me := &oracle.MalformedOutputError{Reason: "empty completion"}

	assert.True(t, oracle.IsTransportError(te))
	assert.True(t, oracle.IsTransportError(errors.Wrap(te, "analysis")))
	assert.False(t, oracle.IsTransportError(me))
	assert.True(t, oracle.IsMalformedOutputError(errors.Wrap(me, "analysis")))
	assert.False(t, oracle.IsMalformedOutputError(errors.New("other")))

	assert.Equal(t, "openai transport error: connection refused", te.Error())
	assert.Equal(t, "malformed oracle output: empty completion", me.Error())
}

type scriptedCompleter struct {
	errs []error
}

func (s *scriptedCompleter) Complete(ctx context.Context, req oracle.Request) (string, error) {
	err := s.errs[0]
	s.errs = s.errs[1:]

	if err != nil {
		return "", err
	}

	return "ok", nil
}

func TestCompleterWithTelemetry(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	base := &scriptedCompleter{errs: []error{nil, &oracle.TransportError{Backend: "openai", Err: errors.New("timeout")}, &oracle.MalformedOutputError{Reason: "not json"}}}
	c := oracle.NewCompleterWithTelemetry(base, "elonbot", mp.Meter("elonbot"))

	text, err := c.Complete(context.Background(), oracle.Request{})
	assert.NoError(t, err)
	assert.Equal(t, "ok", text)

	_, err = c.Complete(context.Background(), oracle.Request{})
	assert.True(t, oracle.IsTransportError(err))

	_, err = c.Complete(context.Background(), oracle.Request{})
	assert.True(t, oracle.IsMalformedOutputError(err))

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	sums := make(map[string]int64)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if s, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range s.DataPoints {
					sums[m.Name] += dp.Value
				}
			}
		}
	}

	assert.Equal(t, int64(3), sums["completer_Complete_Calls"])
	assert.Equal(t, int64(1), sums["completer_Complete_TransportErrors"])
	assert.Equal(t, int64(1), sums["completer_Complete_MalformedErrors"])
}
