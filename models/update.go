package models

import (
	"encoding/json"
	"time"
)

/*
	DashboardUpdate is the wire and storage projection of an Event. It carries
	the same id as its originating event so replays can be deduplicated on the
	receiving side. The payload travels as an opaque JSON object; typed payloads
	only exist on the publishing side of the boundary.
*/

type DashboardUpdate struct {
	ID         string         `json:"id"`
	Source     Role           `json:"source"`
	Type       EventType      `json:"type"`
	BuildingID string         `json:"buildingId,omitempty"`
	WorkerID   string         `json:"workerId,omitempty"`
	Payload    map[string]any `json:"payload"`
	Timestamp  time.Time      `json:"timestamp"`
	Version    int64          `json:"version,omitempty"`
}

// UpdateFromEvent derives the single DashboardUpdate for an event. The update
// id always matches the event id.
func UpdateFromEvent(ev Event) DashboardUpdate {
	u := DashboardUpdate{
		ID:        ev.ID,
		Source:    ev.SourceRole,
		Type:      ev.Type,
		Timestamp: ev.Timestamp,
	}
	if ev.Payload != nil {
		u.BuildingID = ev.Payload.BuildingRef()
		u.WorkerID = ev.Payload.WorkerRef()
		u.Payload = payloadMap(ev.Payload)
	}
	return u
}

func payloadMap(p Payload) map[string]any {
	raw, err := json.Marshal(p)
	if err != nil {
		return map[string]any{}
	}
	m := make(map[string]any)
	if err := json.Unmarshal(raw, &m); err != nil {
		return map[string]any{}
	}
	return m
}

// Summary extracts a short human-readable line for feed display, falling back
// to the update type when the payload carries no descriptive field.
func (u DashboardUpdate) Summary() string {
	for _, field := range []string{"summary", "title", "description", "subject", "taskName", "advisory"} {
		if v, ok := u.Payload[field].(string); ok && v != "" {
			return v
		}
	}
	return string(u.Type)
}

/*
	Live-feed entries. One bounded feed per dashboard audience; each entry is a
	small projection of a DashboardUpdate.
*/

type WorkerFeedEntry struct {
	ID         string    `json:"id"`
	WorkerID   string    `json:"workerId"`
	BuildingID string    `json:"buildingId"`
	Type       EventType `json:"type"`
	Summary    string    `json:"summary"`
	Timestamp  time.Time `json:"timestamp"`
}

type AdminAlertEntry struct {
	ID         string    `json:"id"`
	BuildingID string    `json:"buildingId"`
	Type       EventType `json:"type"`
	Severity   string    `json:"severity,omitempty"`
	Summary    string    `json:"summary"`
	Timestamp  time.Time `json:"timestamp"`
}

type ClientMetricEntry struct {
	ID         string    `json:"id"`
	BuildingID string    `json:"buildingId"`
	Type       EventType `json:"type"`
	Summary    string    `json:"summary"`
	Timestamp  time.Time `json:"timestamp"`
}
