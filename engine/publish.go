package engine

import (
	"time"

	"github.com/CyntientOps/opsync/models"
)

/*
	Typed publish surface. Each domain event family gets one method that builds
	the payload, picks the family's default priority and audience, and hands it
	to Publish. Collaborators never construct raw events.
*/

var (
	allRoles    = []models.Role{models.RoleWorker, models.RoleAdmin, models.RoleClient}
	staffRoles  = []models.Role{models.RoleWorker, models.RoleAdmin}
	adminOnly   = []models.Role{models.RoleAdmin}
	adminClient = []models.Role{models.RoleAdmin, models.RoleClient}
)

func (e *Engine) WorkerClockIn(workerID, workerName, buildingID, buildingName string) error {
	return e.Publish(models.Event{
		Type:        models.EventWorkerClockIn,
		SourceRole:  models.RoleWorker,
		TargetRoles: adminClient,
		Priority:    models.PriorityMedium,
		Payload: models.ClockInPayload{
			WorkerID:     workerID,
			WorkerName:   workerName,
			BuildingID:   buildingID,
			BuildingName: buildingName,
			At:           time.Now(),
		},
	})
}

func (e *Engine) WorkerClockOut(workerID, workerName, buildingID string) error {
	return e.Publish(models.Event{
		Type:        models.EventWorkerClockOut,
		SourceRole:  models.RoleWorker,
		TargetRoles: adminOnly,
		Priority:    models.PriorityLow,
		Payload: models.ClockOutPayload{
			WorkerID:   workerID,
			WorkerName: workerName,
			BuildingID: buildingID,
			At:         time.Now(),
		},
	})
}

func (e *Engine) TaskCompleted(taskID, taskName, workerID, buildingID, photoID string) error {
	return e.Publish(models.Event{
		Type:        models.EventTaskCompleted,
		SourceRole:  models.RoleWorker,
		TargetRoles: adminClient,
		Priority:    models.PriorityMedium,
		Payload: models.TaskCompletedPayload{
			TaskID:      taskID,
			TaskName:    taskName,
			WorkerID:    workerID,
			BuildingID:  buildingID,
			CompletedAt: time.Now(),
			PhotoID:     photoID,
		},
	})
}

func (e *Engine) PhotoCaptured(photoID, taskID, workerID, buildingID string) error {
	return e.Publish(models.Event{
		Type:        models.EventPhotoCaptured,
		SourceRole:  models.RoleWorker,
		TargetRoles: adminOnly,
		Priority:    models.PriorityLow,
		Payload: models.PhotoCapturedPayload{
			PhotoID:    photoID,
			TaskID:     taskID,
			WorkerID:   workerID,
			BuildingID: buildingID,
		},
	})
}

// EmergencyReported is the one publish path that bypasses the FIFO: critical
// priority means subscribers are notified before this call returns.
func (e *Engine) EmergencyReported(workerID, buildingID, description string) error {
	return e.Publish(models.Event{
		Type:        models.EventEmergency,
		SourceRole:  models.RoleWorker,
		TargetRoles: allRoles,
		Priority:    models.PriorityCritical,
		Payload: models.EmergencyPayload{
			WorkerID:    workerID,
			BuildingID:  buildingID,
			Description: description,
		},
	})
}

func (e *Engine) TaskAssigned(taskID, taskName, workerID, buildingID string, dueAt time.Time) error {
	return e.Publish(models.Event{
		Type:        models.EventTaskAssigned,
		SourceRole:  models.RoleAdmin,
		TargetRoles: staffRoles,
		Priority:    models.PriorityMedium,
		Payload: models.TaskAssignedPayload{
			TaskID:     taskID,
			TaskName:   taskName,
			WorkerID:   workerID,
			BuildingID: buildingID,
			DueAt:      dueAt,
		},
	})
}

func (e *Engine) ComplianceIssueCreated(issueID, buildingID, severity, description string) error {
	return e.Publish(models.Event{
		Type:        models.EventComplianceIssue,
		SourceRole:  models.RoleAdmin,
		TargetRoles: adminClient,
		Priority:    models.PriorityHigh,
		Payload: models.ComplianceIssuePayload{
			IssueID:     issueID,
			BuildingID:  buildingID,
			Severity:    severity,
			Description: description,
		},
	})
}

func (e *Engine) AlertCreated(alertID, title, severity, buildingID string) error {
	return e.Publish(models.Event{
		Type:        models.EventAlertCreated,
		SourceRole:  models.RoleAdmin,
		TargetRoles: allRoles,
		Priority:    models.PriorityHigh,
		Payload: models.AlertPayload{
			AlertID:    alertID,
			Title:      title,
			Severity:   severity,
			BuildingID: buildingID,
		},
	})
}

func (e *Engine) ClientRequestCreated(requestID, clientID, buildingID, subject string) error {
	return e.Publish(models.Event{
		Type:        models.EventClientRequest,
		SourceRole:  models.RoleClient,
		TargetRoles: adminOnly,
		Priority:    models.PriorityMedium,
		Payload: models.ClientRequestPayload{
			RequestID:  requestID,
			ClientID:   clientID,
			BuildingID: buildingID,
			Subject:    subject,
		},
	})
}

func (e *Engine) BudgetAlert(buildingID, category string, spentRatio float64) error {
	return e.Publish(models.Event{
		Type:        models.EventBudgetAlert,
		SourceRole:  models.RoleAdmin,
		TargetRoles: adminClient,
		Priority:    models.PriorityMedium,
		Payload: models.BudgetAlertPayload{
			BuildingID: buildingID,
			Category:   category,
			SpentRatio: spentRatio,
		},
	})
}

func (e *Engine) WeatherAlert(buildingID, condition, advisory string) error {
	return e.Publish(models.Event{
		Type:        models.EventWeatherAlert,
		SourceRole:  models.RoleAdmin,
		TargetRoles: staffRoles,
		Priority:    models.PriorityHigh,
		Payload: models.WeatherAlertPayload{
			BuildingID: buildingID,
			Condition:  condition,
			Advisory:   advisory,
		},
	})
}

func (e *Engine) InsightGenerated(insightID, buildingID string, audience models.Role, summary string, metric float64) error {
	return e.Publish(models.Event{
		Type:        models.EventInsightGenerated,
		SourceRole:  models.RoleAdmin,
		TargetRoles: []models.Role{audience},
		Priority:    models.PriorityLow,
		Payload: models.InsightPayload{
			InsightID:  insightID,
			BuildingID: buildingID,
			Audience:   audience,
			Summary:    summary,
			Metric:     metric,
		},
	})
}
