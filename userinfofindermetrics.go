package elonbot

// This code follows the layout of decorators generated with http://github.com/hexdigest/gowrap
// using an opentelemetry template

import (
	"time"

	"github.com/slack-go/slack"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var userInfoFinderMethods = []string{"GetUserInfo"}

// UserInfoFinderWithTelemetry implements UserInfoFinder interface with all methods wrapped
// with open telemetry metrics
type UserInfoFinderWithTelemetry struct {
	base               UserInfoFinder
	attrs              metric.MeasurementOption
	methodCounters     map[string]metric.Int64Counter
	errCounters        map[string]metric.Int64Counter
	methodTimeMeasures map[string]metric.Int64Histogram
}

// NewUserInfoFinderWithTelemetry returns an instance of the UserInfoFinder decorated with open telemetry timing and count metrics
func NewUserInfoFinderWithTelemetry(base UserInfoFinder, name string, meter metric.Meter) *UserInfoFinderWithTelemetry {
	return &UserInfoFinderWithTelemetry{
		base:               base,
		attrs:              metric.WithAttributes(attribute.String("name", name)),
		methodCounters:     newMethodCounters("UserInfoFinder", userInfoFinderMethods, "Calls", meter),
		errCounters:        newMethodCounters("UserInfoFinder", userInfoFinderMethods, "Errors", meter),
		methodTimeMeasures: newMethodTimeMeasures("UserInfoFinder", userInfoFinderMethods, meter),
	}
}

// GetUserInfo implements UserInfoFinder
func (_d *UserInfoFinderWithTelemetry) GetUserInfo(userID string) (user *slack.User, err error) {
	_since := time.Now()
	defer func() {
		recordCall("GetUserInfo", _since, err, _d.attrs, _d.methodCounters, _d.errCounters, _d.methodTimeMeasures)
	}()
	return _d.base.GetUserInfo(userID)
}
