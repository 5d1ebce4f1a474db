package api

import (
	"time"

	"github.com/akmatori/responder/internal/database"
	"github.com/akmatori/responder/internal/services"
)

// IncidentToListItem converts a database Incident to a compact list representation.
func IncidentToListItem(i database.Incident) IncidentListItem {
	return IncidentListItem{
		ID:             i.UUID,
		Title:          i.Title,
		Service:        i.Service,
		Status:         i.Status,
		Severity:       i.Severity,
		AlertCount:     i.AlertCount,
		StartedAt:      i.StartedAt,
		LastAlertAt:    i.LastAlertAt,
		AcknowledgedAt: i.AcknowledgedAt,
		AcknowledgedBy: i.AcknowledgedBy,
		ResolvedAt:     i.ResolvedAt,
		ResolvedBy:     i.ResolvedBy,
	}
}

// IncidentsToListItems converts a slice of database Incidents to list items.
func IncidentsToListItems(incidents []database.Incident) []IncidentListItem {
	items := make([]IncidentListItem, len(incidents))
	for i, inc := range incidents {
		items[i] = IncidentToListItem(inc)
	}
	return items
}

// AlertToItem converts a database Alert to its API shape
func AlertToItem(a database.Alert) AlertItem {
	labels := map[string]string(a.Labels)
	if labels == nil {
		labels = map[string]string{}
	}
	return AlertItem{
		ID:             a.UUID,
		Fingerprint:    a.Fingerprint,
		Name:           a.Name,
		Source:         a.Source,
		Service:        a.Service,
		Host:           a.Host,
		Status:         a.Status,
		Severity:       a.Severity,
		Labels:         labels,
		DuplicateCount: a.DuplicateCount,
		StartsAt:       a.StartsAt,
		LastReceivedAt: a.LastReceivedAt,
		ResolvedAt:     a.ResolvedAt,
	}
}

// IncidentToDetail converts an incident with preloaded alerts and events
func IncidentToDetail(i database.Incident) IncidentDetail {
	detail := IncidentDetail{
		IncidentListItem: IncidentToListItem(i),
		Alerts:           make([]AlertItem, len(i.Alerts)),
		Timeline:         make([]TimelineEntry, len(i.Events)),
	}
	for n, a := range i.Alerts {
		detail.Alerts[n] = AlertToItem(a)
	}
	for n, e := range i.Events {
		detail.Timeline[n] = TimelineEntry{
			Type:        e.EventType,
			Description: e.Description,
			Actor:       e.Actor,
			Data:        e.Data,
			At:          e.CreatedAt,
		}
	}
	return detail
}

// IngestResultToResponse converts one ingest outcome
func IngestResultToResponse(r *services.IngestResult) IngestResult {
	out := IngestResult{
		AlertID:    r.Alert.UUID,
		IsNew:      r.IsNew,
		Suppressed: r.Suppressed,
	}
	if r.Incident != nil {
		id := r.Incident.UUID
		out.IncidentID = &id
	}
	return out
}

// OnCallToResponse converts an on-call lookup
func OnCallToResponse(r *services.OnCallResult, at time.Time) OnCallResponse {
	resp := OnCallResponse{
		ScheduleID:  r.Schedule.ID,
		Schedule:    r.Schedule.Name,
		At:          at,
		Override:    r.Override,
		NextHandoff: r.NextHandoff,
	}
	if r.User != nil {
		resp.User = &OnCallUser{ID: r.User.ID, Name: r.User.Name, Email: r.User.Email}
	}
	return resp
}
