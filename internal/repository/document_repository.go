// Package repository 定义了与数据库进行数据交换的接口和实现。
package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"kb-vectorizer/internal/model"
)

var (
	// ErrDocumentNotFound 表示文档不存在。
	ErrDocumentNotFound = errors.New("文档不存在")
	// ErrStatusConflict 表示条件更新未命中：文档状态已被其他流程修改。
	ErrStatusConflict = errors.New("文档状态已被其他流程修改")
)

// DocumentRepository 定义了对 documents 表中向量化相关字段的操作。
type DocumentRepository interface {
	FindEligible(ctx context.Context, organizationID string, limit int) ([]model.Document, error)
	FindByID(ctx context.Context, id string) (*model.Document, error)
	// Claim 以 compare-and-set 的方式将文档置为 PROCESSING 并记录认领令牌，返回是否认领成功。
	Claim(ctx context.Context, id string, claimToken string, startedAt time.Time) (bool, error)
	MarkCompleted(ctx context.Context, id string, claimToken string, chunkCount int, vectorizedAt time.Time) error
	MarkFailed(ctx context.Context, id string, claimToken string, message string) error
	RecoverStale(ctx context.Context, startedBefore time.Time, message string) (int64, error)
	CountByStatus(ctx context.Context, organizationID string) (map[model.VectorizationStatus]int64, error)
	// ResetText 写入新的文本并将文档重置为 PENDING，供上传/编辑流程使用。
	ResetText(ctx context.Context, id string, text string) error
	MarkNoText(ctx context.Context, id string, message string) error
}

type documentRepository struct {
	db *gorm.DB
}

// NewDocumentRepository 创建一个新的 DocumentRepository 实例。
func NewDocumentRepository(db *gorm.DB) DocumentRepository {
	return &documentRepository{db: db}
}

// FindEligible 查询待向量化的文档：状态为 PENDING/FAILED 且提取文本非空。
// organizationID 为空时不限定组织。
func (r *documentRepository) FindEligible(ctx context.Context, organizationID string, limit int) ([]model.Document, error) {
	q := r.db.WithContext(ctx).
		Where("vectorization_status IN ?", model.ClaimableStatuses()).
		Where("extracted_text IS NOT NULL AND extracted_text <> ?", "")
	if organizationID != "" {
		q = q.Where("organization_id = ?", organizationID)
	}
	var docs []model.Document
	err := q.Order("updated_at asc").Order("id asc").Limit(limit).Find(&docs).Error
	return docs, err
}

// FindByID 根据 ID 查询文档。
func (r *documentRepository) FindByID(ctx context.Context, id string) (*model.Document, error) {
	var doc model.Document
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&doc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDocumentNotFound
		}
		return nil, err
	}
	return &doc, nil
}

// Claim 只有在文档仍处于可认领状态时才更新，多个进程并发认领同一文档时只有一个成功。
func (r *documentRepository) Claim(ctx context.Context, id string, claimToken string, startedAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.Document{}).
		Where("id = ? AND vectorization_status IN ?", id, model.ClaimableStatuses()).
		Updates(map[string]interface{}{
			"vectorization_status":  model.StatusProcessing,
			"vectorization_error":   nil,
			"processing_started_at": startedAt,
			"claim_token":           claimToken,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// MarkCompleted 将 claimToken 持有的 PROCESSING 文档置为 COMPLETED，并记录分块数与完成时间。
func (r *documentRepository) MarkCompleted(ctx context.Context, id string, claimToken string, chunkCount int, vectorizedAt time.Time) error {
	res := ownedBy(r.db.WithContext(ctx).Model(&model.Document{}), id, claimToken).
		Updates(map[string]interface{}{
			"vectorization_status":  model.StatusCompleted,
			"vectorized_at":         vectorizedAt,
			"chunk_count":           chunkCount,
			"vectorization_error":   nil,
			"processing_started_at": nil,
			"claim_token":           nil,
		})
	return checkGuarded(res)
}

// MarkFailed 将 claimToken 持有的 PROCESSING 文档置为 FAILED，不修改 chunk_count 与 vectorized_at。
func (r *documentRepository) MarkFailed(ctx context.Context, id string, claimToken string, message string) error {
	res := ownedBy(r.db.WithContext(ctx).Model(&model.Document{}), id, claimToken).
		Updates(map[string]interface{}{
			"vectorization_status":  model.StatusFailed,
			"vectorization_error":   message,
			"processing_started_at": nil,
			"claim_token":           nil,
		})
	return checkGuarded(res)
}

// RecoverStale 将开始时间早于 startedBefore 的 PROCESSING 文档置为 FAILED，返回影响行数。
func (r *documentRepository) RecoverStale(ctx context.Context, startedBefore time.Time, message string) (int64, error) {
	res := r.db.WithContext(ctx).Model(&model.Document{}).
		Where("vectorization_status = ? AND (processing_started_at IS NULL OR processing_started_at < ?)", model.StatusProcessing, startedBefore).
		Updates(map[string]interface{}{
			"vectorization_status":  model.StatusFailed,
			"vectorization_error":   message,
			"processing_started_at": nil,
			"claim_token":           nil,
		})
	return res.RowsAffected, res.Error
}

type statusCount struct {
	Status model.VectorizationStatus `gorm:"column:vectorization_status"`
	Count  int64                     `gorm:"column:cnt"`
}

// CountByStatus 按状态统计文档数量。
func (r *documentRepository) CountByStatus(ctx context.Context, organizationID string) (map[model.VectorizationStatus]int64, error) {
	q := r.db.WithContext(ctx).Model(&model.Document{}).
		Select("vectorization_status, COUNT(*) AS cnt").
		Group("vectorization_status")
	if organizationID != "" {
		q = q.Where("organization_id = ?", organizationID)
	}
	var rows []statusCount
	if err := q.Scan(&rows).Error; err != nil {
		return nil, err
	}
	counts := make(map[model.VectorizationStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

// ResetText 写入新的提取文本，清除上次错误并重置为 PENDING。
func (r *documentRepository) ResetText(ctx context.Context, id string, text string) error {
	res := r.db.WithContext(ctx).Model(&model.Document{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"extracted_text":        text,
			"vectorization_status":  model.StatusPending,
			"vectorization_error":   nil,
			"processing_started_at": nil,
			"claim_token":           nil,
		})
	if res.Error != nil {
		return res.Error
	}
	return r.ensureExists(ctx, id, res.RowsAffected)
}

// MarkNoText 记录文档没有可提取的文本，此类文档不会被批处理选中。
func (r *documentRepository) MarkNoText(ctx context.Context, id string, message string) error {
	res := r.db.WithContext(ctx).Model(&model.Document{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"extracted_text":        "",
			"vectorization_status":  model.StatusFailed,
			"vectorization_error":   message,
			"processing_started_at": nil,
			"claim_token":           nil,
		})
	if res.Error != nil {
		return res.Error
	}
	return r.ensureExists(ctx, id, res.RowsAffected)
}

// ensureExists 区分“文档不存在”与“值未变化”：MySQL 在值未变化时同样返回 0 行。
func (r *documentRepository) ensureExists(ctx context.Context, id string, affected int64) error {
	if affected > 0 {
		return nil
	}
	var n int64
	if err := r.db.WithContext(ctx).Model(&model.Document{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return ErrDocumentNotFound
	}
	return nil
}

// ownedBy 限定为仍处于 PROCESSING 且由 claimToken 认领的文档。
// 文档被回收并由其他运行重新认领后，旧运行的写入不再命中。
func ownedBy(q *gorm.DB, id, claimToken string) *gorm.DB {
	return q.Where("id = ? AND vectorization_status = ? AND claim_token = ?", id, model.StatusProcessing, claimToken)
}

func checkGuarded(res *gorm.DB) error {
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStatusConflict
	}
	return nil
}
