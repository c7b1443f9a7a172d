package model

import (
	"fmt"
	"time"
)

// StatusSummary 是按组织汇总的向量化进度。
type StatusSummary struct {
	OrganizationID string                        `json:"organizationId,omitempty"`
	Counts         map[VectorizationStatus]int64 `json:"counts"`
	Total          int64                         `json:"total"`
	Completed      int64                         `json:"completed"`
	Missing        int64                         `json:"missing"`
	Percentage     string                        `json:"percentage"`
	Complete       bool                          `json:"complete"`
}

// NewStatusSummary 根据各状态计数计算进度。
func NewStatusSummary(orgID string, counts map[VectorizationStatus]int64) *StatusSummary {
	full := make(map[VectorizationStatus]int64, len(AllStatuses))
	var total int64
	for _, s := range AllStatuses {
		full[s] = counts[s]
		total += counts[s]
	}
	completed := full[StatusCompleted]
	missing := total - completed

	percentage := "0.00%"
	if total > 0 {
		percentage = fmt.Sprintf("%.2f%%", float64(completed)/float64(total)*100)
	}
	return &StatusSummary{
		OrganizationID: orgID,
		Counts:         full,
		Total:          total,
		Completed:      completed,
		Missing:        missing,
		Percentage:     percentage,
		Complete:       missing == 0,
	}
}

// DocumentStatus 是单个文档向量化状态的只读视图。
type DocumentStatus struct {
	ID                  string              `json:"id"`
	OrganizationID      string              `json:"organizationId"`
	Status              VectorizationStatus `json:"status"`
	Error               string              `json:"error,omitempty"`
	VectorizedAt        *time.Time          `json:"vectorizedAt,omitempty"`
	ChunkCount          *int                `json:"chunkCount,omitempty"`
	ProcessingStartedAt *time.Time          `json:"processingStartedAt,omitempty"`
	HasText             bool                `json:"hasText"`
}

// NewDocumentStatus 构建文档状态视图，chunkCount 只在 COMPLETED 时有意义。
func NewDocumentStatus(d *Document) *DocumentStatus {
	ds := &DocumentStatus{
		ID:             d.ID,
		OrganizationID: d.OrganizationID,
		Status:         d.VectorizationStatus,
		VectorizedAt:   d.VectorizedAt,
		HasText:        d.Text() != "",
	}
	if d.VectorizationError != nil {
		ds.Error = *d.VectorizationError
	}
	switch d.VectorizationStatus {
	case StatusCompleted:
		n := d.ChunkCount
		ds.ChunkCount = &n
	case StatusProcessing:
		ds.ProcessingStartedAt = d.ProcessingStartedAt
	}
	return ds
}
