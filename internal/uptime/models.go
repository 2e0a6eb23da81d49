// Package uptime stores raw check results, rolls them into hourly buckets and
// derives daily and rolling uptime from those buckets.
package uptime

import (
	"errors"
	"time"

	"github.com/chainstatus/statuspage/internal/status"
)

// ErrStaleHour is returned when a bucket would be created for an hour older
// than the newest bucket of the same service.
var ErrStaleHour = errors.New("hour bucket is older than the newest bucket")

// CheckResult is one immutable probe outcome.
type CheckResult struct {
	ID             string
	ServiceID      string
	Status         status.Level
	ResponseTimeMs *int
	StatusCode     *int
	Error          *string
	Source         string
	CheckedAt      time.Time
}

// Success reports whether the check counts as up. Only OPERATIONAL does.
func (c *CheckResult) Success() bool {
	return c.Status == status.Operational
}

// HourBucket aggregates all checks of one service within one UTC hour.
// ChecksSuccess + ChecksFailed always equals ChecksTotal.
type HourBucket struct {
	ServiceID       string
	Hour            time.Time
	ChecksTotal     int
	ChecksSuccess   int
	ChecksFailed    int
	AvgResponseMs   *float64
	ResponseSamples int
	UptimePercent   float64
}

// Sample is the contribution of one check to its hour bucket.
type Sample struct {
	ServiceID      string
	At             time.Time
	Success        bool
	ResponseTimeMs *int
}

// Hour returns the UTC hour the sample falls in.
func (s Sample) Hour() time.Time {
	return s.At.UTC().Truncate(time.Hour)
}

// DayUptime is the uptime of one UTC calendar day.
type DayUptime struct {
	Date          time.Time
	Checks        int
	UptimePercent float64
	AvgResponseMs *float64
}

// Report is the uptime of a service over a range of days.
type Report struct {
	ServiceID            string
	Days                 []DayUptime
	SummaryUptimePercent float64
	DownDayCount         int
}

// DownDayThreshold is the daily uptime below which a day counts as down.
const DownDayThreshold = 99.0

// MaxRangeDays bounds GetUptime ranges.
const MaxRangeDays = 365

func copyBucket(b *HourBucket) *HourBucket {
	if b == nil {
		return nil
	}
	c := *b
	if b.AvgResponseMs != nil {
		v := *b.AvgResponseMs
		c.AvgResponseMs = &v
	}
	return &c
}

func copyCheck(c *CheckResult) *CheckResult {
	if c == nil {
		return nil
	}
	cp := *c
	if c.ResponseTimeMs != nil {
		v := *c.ResponseTimeMs
		cp.ResponseTimeMs = &v
	}
	if c.StatusCode != nil {
		v := *c.StatusCode
		cp.StatusCode = &v
	}
	if c.Error != nil {
		v := *c.Error
		cp.Error = &v
	}
	return &cp
}
