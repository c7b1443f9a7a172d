// Package model 定义了与数据库表对应的 Go 结构体。
package model

import "time"

// VectorizationStatus 是文档向量化生命周期的状态。
type VectorizationStatus string

const (
	StatusPending    VectorizationStatus = "PENDING"
	StatusProcessing VectorizationStatus = "PROCESSING"
	StatusCompleted  VectorizationStatus = "COMPLETED"
	StatusFailed     VectorizationStatus = "FAILED"
)

// AllStatuses 按生命周期顺序列出所有状态。
var AllStatuses = []VectorizationStatus{StatusPending, StatusProcessing, StatusCompleted, StatusFailed}

// transitions 描述允许的状态迁移。
// COMPLETED -> PENDING 由外部（文本变更）触发，批处理本身从不执行。
var transitions = map[VectorizationStatus][]VectorizationStatus{
	StatusPending:    {StatusProcessing},
	StatusFailed:     {StatusProcessing, StatusPending},
	StatusProcessing: {StatusCompleted, StatusFailed, StatusPending},
	StatusCompleted:  {StatusPending},
}

// Valid 判断状态值是否合法。
func (s VectorizationStatus) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// CanTransitionTo 判断从 s 迁移到 next 是否合法。
func (s VectorizationStatus) CanTransitionTo(next VectorizationStatus) bool {
	for _, to := range transitions[s] {
		if to == next {
			return true
		}
	}
	return false
}

// ClaimableStatuses 返回可以被批处理认领（迁移到 PROCESSING）的状态。
func ClaimableStatuses() []VectorizationStatus {
	var out []VectorizationStatus
	for _, s := range AllStatuses {
		if s.CanTransitionTo(StatusProcessing) {
			out = append(out, s)
		}
	}
	return out
}

// Document 对应 documents 表。
// 本服务只读取文本字段并写入向量化状态字段，其余字段由上传/编辑流程维护。
type Document struct {
	ID             string `gorm:"primaryKey;type:varchar(36)" json:"id"`
	OrganizationID string `gorm:"type:varchar(36);not null;index" json:"organizationId"`
	Title          string `gorm:"type:varchar(255);not null" json:"title"`
	FileType       string `gorm:"type:varchar(100)" json:"fileType"`
	// ObjectKey 是上传文件在对象存储中的路径，编辑器文档为空。
	ObjectKey     string  `gorm:"type:varchar(512)" json:"objectKey"`
	ExtractedText *string `gorm:"type:longtext" json:"-"`
	// EditorContent 是富文本编辑器的 Tiptap JSON。
	EditorContent *string `gorm:"type:longtext" json:"-"`

	VectorizationStatus VectorizationStatus `gorm:"type:varchar(16);not null;default:'PENDING';index" json:"vectorizationStatus"`
	VectorizationError  *string             `gorm:"type:text" json:"vectorizationError"`
	VectorizedAt        *time.Time          `json:"vectorizedAt"`
	ChunkCount          int                 `gorm:"not null;default:0" json:"chunkCount"`
	ProcessingStartedAt *time.Time          `json:"processingStartedAt"`
	// ClaimToken 标识当前持有 PROCESSING 状态的运行，只有持有者可以写入向量与终态。
	ClaimToken *string `gorm:"type:varchar(36)" json:"-"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Document) TableName() string {
	return "documents"
}

// Text 返回文档已解析的纯文本，未提取时为空字符串。
func (d *Document) Text() string {
	if d.ExtractedText == nil {
		return ""
	}
	return *d.ExtractedText
}
