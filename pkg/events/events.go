package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event types published to the workflow exchange. The routing key is the
// event type, so consumers can bind with patterns like "milestone.*".
const (
	MilestoneSubmitted   = "milestone.submitted"
	MilestoneApproved    = "milestone.approved"
	MilestoneRejected    = "milestone.rejected"
	ProjectActivated     = "project.activated"
	ProjectCompleted     = "project.completed"
	ProjectStatusChanged = "project.status_changed"
	ContractExecuted     = "contract.executed"
)

// Event is the envelope for every workflow notification.
type Event struct {
	Type        string            `json:"type"`
	ProjectID   uuid.UUID         `json:"project_id"`
	MilestoneID *uuid.UUID        `json:"milestone_id,omitempty"`
	ActorID     uuid.UUID         `json:"actor_id"`
	OccurredAt  time.Time         `json:"occurred_at"`
	Data        map[string]string `json:"data,omitempty"`
}

// Publisher delivers workflow events to interested consumers. Publishing is
// best-effort: the workflow state machine never depends on delivery.
type Publisher interface {
	Publish(ctx context.Context, event Event)
	Close()
}
