package models

import "time"

// Operation selects how the orchestrator runs a task.
type Operation string

const (
	OpCreate          Operation = "create"           // sync ignoring freshness
	OpRefresh         Operation = "refresh"          // standard sync
	OpExpandRelations Operation = "expand_relations" // cascade even when fresh
	OpCascadeSync     Operation = "cascade_sync"     // sync discovered children in-process
)

// Valid reports whether o is a known operation.
func (o Operation) Valid() bool {
	switch o {
	case OpCreate, OpRefresh, OpExpandRelations, OpCascadeSync:
		return true
	}
	return false
}

// OperationStatus is the state of one orchestrated task.
type OperationStatus string

const (
	OpStarted             OperationStatus = "started"
	OpCompleted           OperationStatus = "completed"
	OpCompletedWithErrors OperationStatus = "completed_with_errors"
	OpFailed              OperationStatus = "failed"
)

// OperationRecord tracks one orchestrated task for observability.
type OperationRecord struct {
	ID         string          `json:"id"`
	BatchID    string          `json:"batchId"`
	EntityType EntityType      `json:"entityType"`
	EntityID   string          `json:"entityId"`
	Operation  Operation       `json:"operation"`
	Status     OperationStatus `json:"status"`
	Message    string          `json:"message,omitempty"`
	StartedAt  time.Time       `json:"startedAt"`
	FinishedAt *time.Time      `json:"finishedAt,omitempty"`
}
