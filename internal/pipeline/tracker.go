package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"kb-vectorizer/internal/model"
	"kb-vectorizer/internal/repository"
)

// StaleMessage 是处理超时被回收的文档记录的错误信息。
const StaleMessage = "processing timed out; the worker may have crashed"

// Tracker 管理文档的向量化状态机，并提供进度查询。
type Tracker struct {
	repo repository.DocumentRepository
	now  func() time.Time
}

// NewTracker 创建 Tracker。
func NewTracker(repo repository.DocumentRepository) *Tracker {
	return &Tracker{repo: repo, now: time.Now}
}

// Begin 认领文档（PENDING/FAILED -> PROCESSING），返回本次认领的令牌。
// ok 为 false 表示已被其他运行认领。
func (t *Tracker) Begin(ctx context.Context, documentID string) (claimToken string, ok bool, err error) {
	claimToken = uuid.NewString()
	ok, err = t.repo.Claim(ctx, documentID, claimToken, t.now())
	if err != nil || !ok {
		return "", false, err
	}
	return claimToken, true, nil
}

// Complete 将文档置为 COMPLETED。
// 文档已被外部重置，或被回收后由其他运行认领时返回 repository.ErrStatusConflict。
func (t *Tracker) Complete(ctx context.Context, documentID, claimToken string, chunkCount int) error {
	return t.repo.MarkCompleted(ctx, documentID, claimToken, chunkCount, t.now())
}

// Fail 将文档置为 FAILED 并记录原因，同样只对认领的持有者生效。
func (t *Tracker) Fail(ctx context.Context, documentID, claimToken string, message string) error {
	return t.repo.MarkFailed(ctx, documentID, claimToken, message)
}

// RecoverStale 将处理时间超过 staleAfter 的 PROCESSING 文档置为 FAILED，使其可被重新选中。
func (t *Tracker) RecoverStale(ctx context.Context, staleAfter time.Duration) (int64, error) {
	return t.repo.RecoverStale(ctx, t.now().Add(-staleAfter), StaleMessage)
}

// Summary 返回组织（为空时为全部文档）的向量化进度。
func (t *Tracker) Summary(ctx context.Context, organizationID string) (*model.StatusSummary, error) {
	counts, err := t.repo.CountByStatus(ctx, organizationID)
	if err != nil {
		return nil, err
	}
	return model.NewStatusSummary(organizationID, counts), nil
}

// Detail 返回单个文档的状态详情。
func (t *Tracker) Detail(ctx context.Context, documentID string) (*model.DocumentStatus, error) {
	doc, err := t.repo.FindByID(ctx, documentID)
	if err != nil {
		return nil, err
	}
	return model.NewDocumentStatus(doc), nil
}
