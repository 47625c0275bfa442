// Package audit provides audit logging of workflow events that require an
// operator trail: admin bypasses of owner-only operations, administrative
// status overrides, and ledger integrity failures. Events are logged in
// structured JSON format for easy parsing and SIEM integration.
package audit

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// WorkflowEventType categorizes auditable workflow events.
type WorkflowEventType string

const (
	// EventAdminBypass is logged when a platform admin performs an
	// owner-restricted action. The bypass is explicit and never silent.
	EventAdminBypass WorkflowEventType = "admin_bypass"
	// EventStatusOverride is logged when an admin forces a project status
	// change outside the automatic path.
	EventStatusOverride WorkflowEventType = "status_override"
	// EventLedgerIntegrityFailure is logged when the reconciliation check
	// finds the stored paid amount diverging from the sum of approved
	// milestone amounts. Payment releases halt until operator intervention.
	EventLedgerIntegrityFailure WorkflowEventType = "ledger_integrity_failure"
	// EventAccessDenied is logged when the authorization gate rejects an
	// operation, distinguishing unknown callers from known callers lacking
	// role.
	EventAccessDenied WorkflowEventType = "access_denied"
)

// WorkflowEvent represents an auditable workflow event with the context an
// operator needs to reconstruct what happened.
type WorkflowEvent struct {
	Timestamp   time.Time         `json:"timestamp"`
	EventType   WorkflowEventType `json:"event_type"`
	ProjectID   uuid.UUID         `json:"project_id"`
	MilestoneID uuid.UUID         `json:"milestone_id,omitempty"`
	ActorID     string            `json:"actor_id,omitempty"`
	Operation   string            `json:"operation,omitempty"`
	Details     any               `json:"details,omitempty"`
	Severity    string            `json:"severity"` // info, warning, critical
}

// WorkflowAuditor logs workflow events under a dedicated logger namespace.
type WorkflowAuditor struct {
	logger *zap.Logger
}

// NewWorkflowAuditor creates a new auditor with a "workflow_audit" namespace
// so the events are easy to filter downstream.
func NewWorkflowAuditor(logger *zap.Logger) *WorkflowAuditor {
	return &WorkflowAuditor{logger: logger.Named("workflow_audit")}
}

// LogAdminBypass records a platform admin performing an owner-restricted
// operation on a project or milestone.
func (a *WorkflowAuditor) LogAdminBypass(actorID uuid.UUID, operation string, projectID, milestoneID uuid.UUID) {
	event := WorkflowEvent{
		Timestamp:   time.Now().UTC(),
		EventType:   EventAdminBypass,
		ProjectID:   projectID,
		MilestoneID: milestoneID,
		ActorID:     actorID.String(),
		Operation:   operation,
		Severity:    "warning",
	}
	eventJSON, _ := json.Marshal(event)

	a.logger.Warn("Admin bypass of owner-restricted operation",
		zap.String("event_json", string(eventJSON)),
		zap.String("actor_id", actorID.String()),
		zap.String("operation", operation),
		zap.String("project_id", projectID.String()),
		zap.String("milestone_id", milestoneID.String()),
	)
}

// LogStatusOverride records an administrative project status change outside
// the automatic lifecycle path.
func (a *WorkflowAuditor) LogStatusOverride(actorID uuid.UUID, projectID uuid.UUID, from, to string) {
	event := WorkflowEvent{
		Timestamp: time.Now().UTC(),
		EventType: EventStatusOverride,
		ProjectID: projectID,
		ActorID:   actorID.String(),
		Operation: "ChangeProjectStatus",
		Details:   map[string]string{"from": from, "to": to},
		Severity:  "warning",
	}
	eventJSON, _ := json.Marshal(event)

	a.logger.Warn("Administrative project status override",
		zap.String("event_json", string(eventJSON)),
		zap.String("actor_id", actorID.String()),
		zap.String("project_id", projectID.String()),
		zap.String("from", from),
		zap.String("to", to),
	)
}

// LogLedgerIntegrityFailure records a reconciliation mismatch. Logged at
// ERROR with critical severity for immediate alerting; the affected project
// is frozen for payments until an operator intervenes.
func (a *WorkflowAuditor) LogLedgerIntegrityFailure(projectID uuid.UUID, storedPaid, recomputedPaid int64) {
	event := WorkflowEvent{
		Timestamp: time.Now().UTC(),
		EventType: EventLedgerIntegrityFailure,
		ProjectID: projectID,
		Details: map[string]int64{
			"stored_paid_cents":     storedPaid,
			"recomputed_paid_cents": recomputedPaid,
		},
		Severity: "critical",
	}
	eventJSON, _ := json.Marshal(event)

	a.logger.Error("Ledger integrity failure, payment releases halted",
		zap.String("event_json", string(eventJSON)),
		zap.String("project_id", projectID.String()),
		zap.Int64("stored_paid_cents", storedPaid),
		zap.Int64("recomputed_paid_cents", recomputedPaid),
	)
}

// LogAccessDenied records an authorization denial. Unknown callers
// (authenticated == false) and known callers lacking role are logged
// distinctly for observability even though both surface the same denial.
func (a *WorkflowAuditor) LogAccessDenied(actorID uuid.UUID, authenticated bool, operation string, projectID uuid.UUID) {
	reason := "unauthorized"
	if !authenticated {
		reason = "unauthenticated"
	}
	event := WorkflowEvent{
		Timestamp: time.Now().UTC(),
		EventType: EventAccessDenied,
		ProjectID: projectID,
		ActorID:   actorID.String(),
		Operation: operation,
		Details:   map[string]string{"reason": reason},
		Severity:  "info",
	}
	eventJSON, _ := json.Marshal(event)

	a.logger.Info("Operation denied",
		zap.String("event_json", string(eventJSON)),
		zap.String("actor_id", actorID.String()),
		zap.String("operation", operation),
		zap.String("project_id", projectID.String()),
		zap.String("reason", reason),
	)
}
