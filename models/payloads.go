package models

import "time"

/*
	Typed payloads for each event family. The engine never inspects payloads
	through maps or type assertions at projection time; every payload knows its
	own event type and the entity references the dashboards key on.
*/

type Payload interface {
	Kind() EventType
	BuildingRef() string
	WorkerRef() string
}

type ClockInPayload struct {
	WorkerID     string    `json:"workerId"`
	WorkerName   string    `json:"workerName"`
	BuildingID   string    `json:"buildingId"`
	BuildingName string    `json:"buildingName"`
	At           time.Time `json:"at"`
}

func (p ClockInPayload) Kind() EventType     { return EventWorkerClockIn }
func (p ClockInPayload) BuildingRef() string { return p.BuildingID }
func (p ClockInPayload) WorkerRef() string   { return p.WorkerID }

type ClockOutPayload struct {
	WorkerID   string    `json:"workerId"`
	WorkerName string    `json:"workerName"`
	BuildingID string    `json:"buildingId"`
	At         time.Time `json:"at"`
}

func (p ClockOutPayload) Kind() EventType     { return EventWorkerClockOut }
func (p ClockOutPayload) BuildingRef() string { return p.BuildingID }
func (p ClockOutPayload) WorkerRef() string   { return p.WorkerID }

type TaskCompletedPayload struct {
	TaskID      string    `json:"taskId"`
	TaskName    string    `json:"taskName"`
	WorkerID    string    `json:"workerId"`
	BuildingID  string    `json:"buildingId"`
	CompletedAt time.Time `json:"completedAt"`
	PhotoID     string    `json:"photoId,omitempty"`
}

func (p TaskCompletedPayload) Kind() EventType     { return EventTaskCompleted }
func (p TaskCompletedPayload) BuildingRef() string { return p.BuildingID }
func (p TaskCompletedPayload) WorkerRef() string   { return p.WorkerID }

type PhotoCapturedPayload struct {
	PhotoID    string `json:"photoId"`
	TaskID     string `json:"taskId"`
	WorkerID   string `json:"workerId"`
	BuildingID string `json:"buildingId"`
}

func (p PhotoCapturedPayload) Kind() EventType     { return EventPhotoCaptured }
func (p PhotoCapturedPayload) BuildingRef() string { return p.BuildingID }
func (p PhotoCapturedPayload) WorkerRef() string   { return p.WorkerID }

type EmergencyPayload struct {
	WorkerID    string `json:"workerId"`
	BuildingID  string `json:"buildingId"`
	Description string `json:"description"`
}

func (p EmergencyPayload) Kind() EventType     { return EventEmergency }
func (p EmergencyPayload) BuildingRef() string { return p.BuildingID }
func (p EmergencyPayload) WorkerRef() string   { return p.WorkerID }

type TaskAssignedPayload struct {
	TaskID     string    `json:"taskId"`
	TaskName   string    `json:"taskName"`
	WorkerID   string    `json:"workerId"`
	BuildingID string    `json:"buildingId"`
	DueAt      time.Time `json:"dueAt,omitempty"`
}

func (p TaskAssignedPayload) Kind() EventType     { return EventTaskAssigned }
func (p TaskAssignedPayload) BuildingRef() string { return p.BuildingID }
func (p TaskAssignedPayload) WorkerRef() string   { return p.WorkerID }

type ComplianceIssuePayload struct {
	IssueID     string `json:"issueId"`
	BuildingID  string `json:"buildingId"`
	Severity    string `json:"severity"`
	Description string `json:"description"`
}

func (p ComplianceIssuePayload) Kind() EventType     { return EventComplianceIssue }
func (p ComplianceIssuePayload) BuildingRef() string { return p.BuildingID }
func (p ComplianceIssuePayload) WorkerRef() string   { return "" }

type AlertPayload struct {
	AlertID    string `json:"alertId"`
	Title      string `json:"title"`
	Severity   string `json:"severity"`
	BuildingID string `json:"buildingId,omitempty"`
}

func (p AlertPayload) Kind() EventType     { return EventAlertCreated }
func (p AlertPayload) BuildingRef() string { return p.BuildingID }
func (p AlertPayload) WorkerRef() string   { return "" }

type ClientRequestPayload struct {
	RequestID  string `json:"requestId"`
	ClientID   string `json:"clientId"`
	BuildingID string `json:"buildingId"`
	Subject    string `json:"subject"`
}

func (p ClientRequestPayload) Kind() EventType     { return EventClientRequest }
func (p ClientRequestPayload) BuildingRef() string { return p.BuildingID }
func (p ClientRequestPayload) WorkerRef() string   { return "" }

type BudgetAlertPayload struct {
	BuildingID string  `json:"buildingId"`
	Category   string  `json:"category"`
	SpentRatio float64 `json:"spentRatio"`
}

func (p BudgetAlertPayload) Kind() EventType     { return EventBudgetAlert }
func (p BudgetAlertPayload) BuildingRef() string { return p.BuildingID }
func (p BudgetAlertPayload) WorkerRef() string   { return "" }

type WeatherAlertPayload struct {
	BuildingID string `json:"buildingId,omitempty"`
	Condition  string `json:"condition"`
	Advisory   string `json:"advisory"`
}

func (p WeatherAlertPayload) Kind() EventType     { return EventWeatherAlert }
func (p WeatherAlertPayload) BuildingRef() string { return p.BuildingID }
func (p WeatherAlertPayload) WorkerRef() string   { return "" }

type InsightPayload struct {
	InsightID  string  `json:"insightId"`
	BuildingID string  `json:"buildingId,omitempty"`
	Audience   Role    `json:"audience"`
	Summary    string  `json:"summary"`
	Metric     float64 `json:"metric,omitempty"`
}

func (p InsightPayload) Kind() EventType     { return EventInsightGenerated }
func (p InsightPayload) BuildingRef() string { return p.BuildingID }
func (p InsightPayload) WorkerRef() string   { return "" }
