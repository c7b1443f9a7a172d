package model

import (
	"fmt"
	"time"
)

// EsDocument 定义了存储在 Elasticsearch 相似度索引中的文档结构。
type EsDocument struct {
	VectorID       string    `json:"vector_id"` // 唯一标识：documentId + chunkIndex
	DocumentID     string    `json:"document_id"`
	OrganizationID string    `json:"organization_id"`
	ChunkIndex     int       `json:"chunk_index"`
	TotalChunks    int       `json:"total_chunks"`
	TextContent    string    `json:"text_content"`
	Vector         []float32 `json:"vector"`
	ContentHash    string    `json:"content_hash"`
	FileName       string    `json:"file_name"`
	FileType       string    `json:"file_type"`
	ModelVersion   string    `json:"model_version"`
	VectorizedAt   time.Time `json:"vectorized_at"`
}

// VectorID 生成分块在索引中的稳定 ID，重跑时覆盖同一位置。
func VectorID(documentID string, chunkIndex int) string {
	return fmt.Sprintf("%s_%d", documentID, chunkIndex)
}

// NewEsDocument 将数据库中的向量行转换为索引文档。
func NewEsDocument(v *DocumentVector) EsDocument {
	return EsDocument{
		VectorID:       VectorID(v.DocumentID, v.ChunkIndex),
		DocumentID:     v.DocumentID,
		OrganizationID: v.OrganizationID,
		ChunkIndex:     v.ChunkIndex,
		TotalChunks:    v.TotalChunks,
		TextContent:    v.Content,
		Vector:         v.Embedding,
		ContentHash:    v.ContentHash,
		FileName:       v.FileName,
		FileType:       v.FileType,
		ModelVersion:   v.Model,
		VectorizedAt:   v.VectorizedAt,
	}
}
