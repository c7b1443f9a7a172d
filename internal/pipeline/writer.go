package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"kb-vectorizer/internal/model"
	"kb-vectorizer/internal/repository"
)

const defaultFileType = "text/plain"

// ErrInvalidChunkSet 表示一次运行的分块集合不完整或顺序错误。
var ErrInvalidChunkSet = errors.New("分块集合不完整")

// EmbeddedChunk 是一个分块及其向量。
type EmbeddedChunk struct {
	Chunk     Chunk
	Embedding []float32
}

// VectorIndex 是向量的二级相似度索引（如 Elasticsearch）。
type VectorIndex interface {
	ReplaceDocumentVectors(ctx context.Context, documentID string, vectors []*model.DocumentVector) error
}

// VectorWriter 用一次运行产生的完整向量集合替换文档的旧向量。
type VectorWriter struct {
	repo    repository.DocumentVectorRepository
	index   VectorIndex
	modelID string
	now     func() time.Time
}

// NewVectorWriter 创建 VectorWriter。index 为 nil 时只写入数据库。
func NewVectorWriter(repo repository.DocumentVectorRepository, index VectorIndex, modelID string) *VectorWriter {
	return &VectorWriter{repo: repo, index: index, modelID: modelID, now: time.Now}
}

// Replace 校验分块集合后整体替换文档的向量行，并同步到二级索引。
// 成功后文档的 chunk_index 恰为 0..n-1，且所有行的 total_chunks 为 n。
// claimToken 不再持有文档时返回 repository.ErrStatusConflict，数据库与索引均不修改。
func (w *VectorWriter) Replace(ctx context.Context, doc *model.Document, claimToken string, chunks []EmbeddedChunk) ([]*model.DocumentVector, error) {
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: 没有分块", ErrInvalidChunkSet)
	}
	fileType := doc.FileType
	if fileType == "" {
		fileType = defaultFileType
	}
	now := w.now()

	vectors := make([]*model.DocumentVector, 0, len(chunks))
	for i, ec := range chunks {
		if ec.Chunk.Index != i {
			return nil, fmt.Errorf("%w: 第 %d 个分块的序号为 %d", ErrInvalidChunkSet, i, ec.Chunk.Index)
		}
		if len(ec.Embedding) == 0 {
			return nil, fmt.Errorf("%w: 分块 %d 缺少向量", ErrInvalidChunkSet, i)
		}
		vectors = append(vectors, &model.DocumentVector{
			DocumentID:     doc.ID,
			OrganizationID: doc.OrganizationID,
			ChunkIndex:     i,
			TotalChunks:    len(chunks),
			Content:        ec.Chunk.Content,
			Embedding:      ec.Embedding,
			ContentHash:    model.ContentHash(ec.Chunk.Content),
			FileName:       doc.Title,
			FileType:       fileType,
			VectorizedAt:   now,
			Model:          w.modelID,
		})
	}

	if err := w.repo.ReplaceForDocument(ctx, doc.ID, claimToken, vectors); err != nil {
		return nil, fmt.Errorf("保存向量到数据库失败: %w", err)
	}
	if w.index != nil {
		if err := w.index.ReplaceDocumentVectors(ctx, doc.ID, vectors); err != nil {
			return nil, fmt.Errorf("同步向量到索引失败: %w", err)
		}
	}
	return vectors, nil
}
