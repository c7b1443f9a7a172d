package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"kb-vectorizer/internal/model"
)

// DocumentVectorRepository 定义了对 document_vectors 表的数据操作接口。
type DocumentVectorRepository interface {
	// ReplaceForDocument 在同一事务内确认 claimToken 仍持有文档，然后删除旧向量并写入新的一组。
	ReplaceForDocument(ctx context.Context, documentID string, claimToken string, vectors []*model.DocumentVector) error
	FindByDocumentID(ctx context.Context, documentID string) ([]*model.DocumentVector, error)
	DeleteByDocumentID(ctx context.Context, documentID string) error
}

type documentVectorRepository struct {
	db *gorm.DB
}

// NewDocumentVectorRepository 创建一个新的 DocumentVectorRepository 实例。
func NewDocumentVectorRepository(db *gorm.DB) DocumentVectorRepository {
	return &documentVectorRepository{db: db}
}

// ReplaceForDocument 先删后插，整个过程在一个事务中完成，失败时保留旧的向量集合。
// 文档已不归 claimToken 所有时返回 ErrStatusConflict，不做任何修改。
func (r *documentVectorRepository) ReplaceForDocument(ctx context.Context, documentID string, claimToken string, vectors []*model.DocumentVector) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 锁住文档行，使认领被回收与向量写入互斥
		var owned int64
		err := ownedBy(tx.Model(&model.Document{}), documentID, claimToken).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Count(&owned).Error
		if err != nil {
			return err
		}
		if owned == 0 {
			return ErrStatusConflict
		}
		if err := tx.Where("document_id = ?", documentID).Delete(&model.DocumentVector{}).Error; err != nil {
			return err
		}
		if len(vectors) == 0 {
			return nil
		}
		return tx.CreateInBatches(vectors, 100).Error // 每100条记录一批
	})
}

// FindByDocumentID 按 chunk_index 顺序返回文档的所有向量记录。
func (r *documentVectorRepository) FindByDocumentID(ctx context.Context, documentID string) ([]*model.DocumentVector, error) {
	var vectors []*model.DocumentVector
	err := r.db.WithContext(ctx).Where("document_id = ?", documentID).Order("chunk_index asc").Find(&vectors).Error
	return vectors, err
}

// DeleteByDocumentID 删除文档的所有向量记录。
func (r *documentVectorRepository) DeleteByDocumentID(ctx context.Context, documentID string) error {
	return r.db.WithContext(ctx).Where("document_id = ?", documentID).Delete(&model.DocumentVector{}).Error
}
