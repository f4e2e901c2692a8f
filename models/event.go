package models

import (
	"slices"
	"time"
)

/*
	The event envelope shared by every dashboard surface. Events are immutable
	once stamped: the engine assigns ID and Timestamp at publish time and no
	component mutates an event afterwards.
*/

type Role string

const (
	RoleWorker Role = "worker"
	RoleAdmin  Role = "admin"
	RoleClient Role = "client"
)

func (r Role) Valid() bool {
	return r == RoleWorker || r == RoleAdmin || r == RoleClient
}

type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// DrainRank orders offline-queue drains. Lower ranks drain first, so the
// ordering is priority DESC when ranks are compared ascending.
func (p Priority) DrainRank() int {
	switch p {
	case PriorityCritical:
		return 0
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 2
	default:
		return 3
	}
}

type EventType string

const (
	EventWorkerClockIn    EventType = "worker:clockIn"
	EventWorkerClockOut   EventType = "worker:clockOut"
	EventTaskCompleted    EventType = "task:completed"
	EventPhotoCaptured    EventType = "photo:captured"
	EventEmergency        EventType = "emergency:reported"
	EventTaskAssigned     EventType = "task:assigned"
	EventComplianceIssue  EventType = "compliance:issueCreated"
	EventAlertCreated     EventType = "alert:created"
	EventClientRequest    EventType = "client:requestCreated"
	EventBudgetAlert      EventType = "budget:alert"
	EventWeatherAlert     EventType = "weather:alert"
	EventInsightGenerated EventType = "insight:generated"
)

type Event struct {
	ID          string    `json:"id"`
	Type        EventType `json:"type"`
	SourceRole  Role      `json:"sourceRole"`
	TargetRoles []Role    `json:"targetRoles"`
	Payload     Payload   `json:"payload"`
	Timestamp   time.Time `json:"timestamp"`
	Priority    Priority  `json:"priority"`
}

func (e Event) Targets(r Role) bool {
	return slices.Contains(e.TargetRoles, r)
}
