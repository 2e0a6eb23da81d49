package uptime

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/chainstatus/statuspage/internal/ledger"
	"github.com/chainstatus/statuspage/internal/status"
)

// AggregatorConfig holds configuration for the Aggregator.
type AggregatorConfig struct {
	Repository Repository
	Logger     zerolog.Logger
	Now        func() time.Time
}

// Aggregator records checks and derives uptime from hourly buckets.
type Aggregator struct {
	repo   Repository
	logger zerolog.Logger
	now    func() time.Time
}

// NewAggregator creates a new Aggregator.
func NewAggregator(cfg AggregatorConfig) *Aggregator {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Aggregator{
		repo:   cfg.Repository,
		logger: cfg.Logger,
		now:    now,
	}
}

// Record appends the check and folds it into its hour bucket. A check that
// arrives for an hour older than the newest bucket is kept but not bucketed.
func (a *Aggregator) Record(ctx context.Context, check *CheckResult) (*HourBucket, error) {
	if check.ID == "" {
		check.ID = "chk_" + uuid.New().String()[:22]
	}
	if err := a.repo.AppendCheck(ctx, check); err != nil {
		return nil, err
	}

	bucket, err := a.repo.IncrementBucket(ctx, Sample{
		ServiceID:      check.ServiceID,
		At:             check.CheckedAt,
		Success:        check.Success(),
		ResponseTimeMs: check.ResponseTimeMs,
	})
	if errors.Is(err, ErrStaleHour) {
		a.logger.Warn().
			Str("service_id", check.ServiceID).
			Time("checked_at", check.CheckedAt).
			Msg("check arrived for a closed hour, not bucketed")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return bucket, nil
}

// RecentChecks returns the newest raw checks of a service.
func (a *Aggregator) RecentChecks(ctx context.Context, serviceID string, limit int) ([]*CheckResult, error) {
	return a.repo.ListChecks(ctx, serviceID, limit)
}

// GetUptime returns one entry per UTC calendar day for the last rangeDays
// days including today, oldest first. Days without checks count as 100%.
// The summary is the plain mean of the daily percentages.
func (a *Aggregator) GetUptime(ctx context.Context, serviceID string, rangeDays int) (*Report, error) {
	if rangeDays < 1 || rangeDays > MaxRangeDays {
		return nil, status.NewValidationError("days", "OUT_OF_RANGE", "days must be between 1 and 365")
	}

	today := startOfDay(a.now())
	from := today.AddDate(0, 0, -(rangeDays - 1))
	to := today.AddDate(0, 0, 1)

	buckets, err := a.repo.ListBuckets(ctx, serviceID, from, to)
	if err != nil {
		return nil, err
	}

	type dayAcc struct {
		total, success int
		rtSum          float64
		rtHours        int
	}
	acc := make([]dayAcc, rangeDays)
	for _, b := range buckets {
		idx := int(startOfDay(b.Hour).Sub(from) / (24 * time.Hour))
		if idx < 0 || idx >= rangeDays {
			continue
		}
		acc[idx].total += b.ChecksTotal
		acc[idx].success += b.ChecksSuccess
		if b.AvgResponseMs != nil {
			acc[idx].rtSum += *b.AvgResponseMs
			acc[idx].rtHours++
		}
	}

	report := &Report{
		ServiceID: serviceID,
		Days:      make([]DayUptime, rangeDays),
	}
	var sum float64
	for i, d := range acc {
		day := DayUptime{
			Date:          from.AddDate(0, 0, i),
			Checks:        d.total,
			UptimePercent: 100,
		}
		if d.total > 0 {
			day.UptimePercent = 100 * float64(d.success) / float64(d.total)
		}
		if d.rtHours > 0 {
			avg := d.rtSum / float64(d.rtHours)
			day.AvgResponseMs = &avg
		}
		if day.UptimePercent < DownDayThreshold {
			report.DownDayCount++
		}
		sum += day.UptimePercent
		report.Days[i] = day
	}
	report.SummaryUptimePercent = sum / float64(rangeDays)

	return report, nil
}

// Rolling computes the day, week, month and all-time uptime of a service.
// All-time is the ratio of successful to total checks over every bucket.
func (a *Aggregator) Rolling(ctx context.Context, serviceID string) (ledger.Uptime, error) {
	var u ledger.Uptime

	for _, w := range []struct {
		days int
		dst  *float64
	}{
		{1, &u.Day},
		{7, &u.Week},
		{30, &u.Month},
	} {
		report, err := a.GetUptime(ctx, serviceID, w.days)
		if err != nil {
			return ledger.Uptime{}, err
		}
		*w.dst = report.SummaryUptimePercent
	}

	total, success, err := a.repo.Totals(ctx, serviceID)
	if err != nil {
		return ledger.Uptime{}, err
	}
	u.AllTime = 100
	if total > 0 {
		u.AllTime = 100 * float64(success) / float64(total)
	}
	return u, nil
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
