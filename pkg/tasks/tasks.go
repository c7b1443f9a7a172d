// Package tasks defines the structure for tasks that are sent to Kafka.
package tasks

import "time"

// VectorizeTask asks a worker to run one vectorization batch.
// An empty OrganizationID means all organizations.
type VectorizeTask struct {
	TriggerID      string    `json:"trigger_id"`
	OrganizationID string    `json:"organization_id,omitempty"`
	Reason         string    `json:"reason,omitempty"`
	BatchSize      int       `json:"batch_size,omitempty"`
	RequestedAt    time.Time `json:"requested_at"`
}
