package model

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// DocumentVector 对应于数据库中的 document_vectors 表。
// 同一文档的所有行来自同一次成功运行：TotalChunks 相同，ChunkIndex 为 0..TotalChunks-1。
type DocumentVector struct {
	ID             uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	DocumentID     string    `gorm:"type:varchar(36);not null;uniqueIndex:idx_document_vectors_doc_chunk,priority:1" json:"documentId"`
	Document       *Document `gorm:"foreignKey:DocumentID;references:ID;constraint:OnDelete:CASCADE" json:"-"`
	OrganizationID string    `gorm:"type:varchar(36);not null;index" json:"organizationId"`
	ChunkIndex     int       `gorm:"not null;uniqueIndex:idx_document_vectors_doc_chunk,priority:2" json:"chunkIndex"`
	TotalChunks    int       `gorm:"not null" json:"totalChunks"`
	Content        string    `gorm:"type:longtext;not null" json:"content"`
	Embedding      []float32 `gorm:"type:json;serializer:json" json:"embedding"`
	ContentHash    string    `gorm:"type:varchar(64);not null;index" json:"contentHash"`
	FileName       string    `gorm:"type:varchar(255)" json:"fileName"`
	FileType       string    `gorm:"type:varchar(100)" json:"fileType"`
	VectorizedAt   time.Time `gorm:"not null" json:"vectorizedAt"`
	Model          string    `gorm:"type:varchar(100);not null" json:"model"`
}

func (DocumentVector) TableName() string {
	return "document_vectors"
}

// ContentHash 返回分块文本的 SHA-256 十六进制指纹。
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
