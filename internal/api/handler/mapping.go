package handler

import (
	"github.com/chainstatus/statuspage/internal/api/models"
	"github.com/chainstatus/statuspage/internal/incident"
	"github.com/chainstatus/statuspage/internal/ledger"
	"github.com/chainstatus/statuspage/internal/overview"
	"github.com/chainstatus/statuspage/internal/processor"
	"github.com/chainstatus/statuspage/internal/subscriber"
	"github.com/chainstatus/statuspage/internal/uptime"
)

func toServiceStatus(svc *ledger.Service) models.ServiceStatus {
	return models.ServiceStatus{
		ID:          svc.ID,
		Slug:        svc.Slug,
		Name:        svc.Name,
		Category:    svc.Category,
		Description: svc.Description,
		Status:      string(svc.Status),
		Public:      svc.Public,
		Uptime: models.UptimeSummary{
			Day:     svc.Uptime.Day,
			Week:    svc.Uptime.Week,
			Month:   svc.Uptime.Month,
			AllTime: svc.Uptime.AllTime,
		},
		LastCheckedAt:      models.TimestampPtr(svc.LastCheckedAt),
		LastResponseTimeMs: svc.LastResponseTimeMs,
		LastStatusChangeAt: models.NewTimestamp(svc.LastStatusChangeAt),
	}
}

func toServiceStatuses(services []*ledger.Service) []models.ServiceStatus {
	out := make([]models.ServiceStatus, 0, len(services))
	for _, svc := range services {
		out = append(out, toServiceStatus(svc))
	}
	return out
}

func toIncident(inc *incident.Incident) models.Incident {
	return models.Incident{
		ID:            inc.ID,
		ServiceID:     inc.ServiceID,
		Title:         inc.Title,
		Description:   inc.Description,
		Severity:      string(inc.Severity),
		Status:        string(inc.Status),
		ImpactStartAt: models.NewTimestamp(inc.ImpactStartAt),
		ImpactEndAt:   models.TimestampPtr(inc.ImpactEndAt),
		ResolvedAt:    models.TimestampPtr(inc.ResolvedAt),
		Postmortem:    inc.Postmortem,
		CreatedAt:     models.NewTimestamp(inc.CreatedAt),
		UpdatedAt:     models.NewTimestamp(inc.UpdatedAt),
	}
}

func toIncidents(incidents []*incident.Incident) []models.Incident {
	out := make([]models.Incident, 0, len(incidents))
	for _, inc := range incidents {
		out = append(out, toIncident(inc))
	}
	return out
}

func toIncidentDetail(inc *incident.Incident, updates []*incident.Update) models.IncidentDetail {
	detail := models.IncidentDetail{
		Incident: toIncident(inc),
		Updates:  make([]models.IncidentUpdate, 0, len(updates)),
	}
	for _, u := range updates {
		detail.Updates = append(detail.Updates, models.IncidentUpdate{
			ID:        u.ID,
			Status:    string(u.Status),
			Message:   u.Message,
			Author:    u.Author,
			CreatedAt: models.NewTimestamp(u.CreatedAt),
		})
	}
	return detail
}

func toOverall(o overview.Overall) models.OverallStatus {
	return models.OverallStatus{
		Status:        string(o.Status),
		UptimePercent: o.UptimePercent,
	}
}

func toStatusPage(page *overview.Page) models.StatusPage {
	return models.StatusPage{
		Overall:                 toOverall(page.Overall),
		Services:                toServiceStatuses(page.Services),
		ActiveIncidents:         toIncidents(page.ActiveIncidents),
		RecentResolvedIncidents: toIncidents(page.RecentResolvedIncidents),
		Banner:                  page.Banner,
		GeneratedAt:             models.NewTimestamp(page.GeneratedAt),
	}
}

func toUptimeReport(svc *ledger.Service, rangeDays int, report *uptime.Report) models.UptimeReport {
	out := models.UptimeReport{
		ServiceID:            svc.ID,
		Slug:                 svc.Slug,
		RangeDays:            rangeDays,
		SummaryUptimePercent: report.SummaryUptimePercent,
		DownDayCount:         report.DownDayCount,
		Days:                 make([]models.DayUptime, 0, len(report.Days)),
	}
	for _, d := range report.Days {
		out.Days = append(out.Days, models.DayUptime{
			Date:          d.Date.UTC().Format("2006-01-02"),
			Checks:        d.Checks,
			UptimePercent: d.UptimePercent,
			AvgResponseMs: d.AvgResponseMs,
		})
	}
	return out
}

func toEventResponse(res *processor.Result) models.HealthEventResponse {
	return models.HealthEventResponse{
		ServiceID:        res.ServiceID,
		PreviousStatus:   string(res.PreviousStatus),
		NewStatus:        string(res.NewStatus),
		IncidentCreated:  res.IncidentCreated,
		IncidentResolved: res.IncidentResolved,
		IncidentID:       res.IncidentID,
	}
}

// toSubscription renders service filters as slugs.
func toSubscription(sub *subscriber.Subscriber, slugs map[string]string) models.Subscription {
	services := make([]string, 0, len(sub.NotifyServices))
	for _, id := range sub.NotifyServices {
		if slug, ok := slugs[id]; ok {
			services = append(services, slug)
		}
	}
	return models.Subscription{
		Email:          sub.Email,
		Verified:       sub.Verified,
		Unsubscribed:   sub.Unsubscribed,
		NotifyAll:      sub.NotifyAll,
		NotifyMajor:    sub.NotifyMajor,
		NotifyServices: services,
	}
}
