// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"kb-vectorizer/internal/model"
	"kb-vectorizer/internal/pipeline"
	"kb-vectorizer/pkg/log"
	"kb-vectorizer/pkg/metrics"
	"kb-vectorizer/pkg/tasks"
)

const submitTimeout = 10 * time.Second

// BatchRunner 执行一次向量化批处理。
type BatchRunner interface {
	RunBatch(ctx context.Context, opts pipeline.BatchOptions) (*pipeline.BatchResult, error)
}

// StatusReader 提供向量化状态的只读查询。
type StatusReader interface {
	Summary(ctx context.Context, organizationID string) (*model.StatusSummary, error)
	Detail(ctx context.Context, documentID string) (*model.DocumentStatus, error)
}

// TriggerRequest 描述一次异步触发。
type TriggerRequest struct {
	OrganizationID string `json:"organizationId"`
	Reason         string `json:"reason"`
	BatchSize      int    `json:"batchSize"`
}

// VectorizeService 接口定义了向量化相关的业务操作。
type VectorizeService interface {
	RunBatch(ctx context.Context, opts pipeline.BatchOptions) (*pipeline.BatchResult, error)
	// Trigger 异步提交一次批处理并立即返回触发 ID，提交失败只记录日志。
	Trigger(ctx context.Context, req TriggerRequest) string
	RunTask(ctx context.Context, task tasks.VectorizeTask) error
	Progress(ctx context.Context, organizationID string) (*model.StatusSummary, error)
	DocumentStatus(ctx context.Context, documentID string) (*model.DocumentStatus, error)
}

type vectorizeService struct {
	runner       BatchRunner
	status       StatusReader
	submitter    TriggerSubmitter
	batchTimeout time.Duration
}

// NewVectorizeService 创建一个新的 VectorizeService 实例。
func NewVectorizeService(runner BatchRunner, status StatusReader, submitter TriggerSubmitter, batchTimeout time.Duration) VectorizeService {
	return &vectorizeService{
		runner:       runner,
		status:       status,
		submitter:    submitter,
		batchTimeout: batchTimeout,
	}
}

// RunBatch 同步执行一次批处理。批处理不随调用方断开而取消，只受 batchTimeout 限制。
func (s *vectorizeService) RunBatch(ctx context.Context, opts pipeline.BatchOptions) (*pipeline.BatchResult, error) {
	ctx = context.WithoutCancel(ctx)
	if s.batchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.batchTimeout)
		defer cancel()
	}
	return s.runner.RunBatch(ctx, opts)
}

func (s *vectorizeService) Trigger(ctx context.Context, req TriggerRequest) string {
	task := tasks.VectorizeTask{
		TriggerID:      uuid.NewString(),
		OrganizationID: req.OrganizationID,
		Reason:         req.Reason,
		BatchSize:      req.BatchSize,
		RequestedAt:    time.Now(),
	}
	if s.submitter == nil {
		log.Warnf("[VectorizeService] 未配置异步提交方式, 忽略触发, triggerID: %s", task.TriggerID)
		return task.TriggerID
	}

	submitter := s.submitter
	go func() {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), submitTimeout)
		defer cancel()
		if err := submitter.Submit(sctx, task); err != nil {
			metrics.TriggersSubmitted.WithLabelValues(submitter.Name(), "error").Inc()
			log.Errorf("[VectorizeService] 提交向量化任务失败, triggerID: %s, submitter: %s, error: %v", task.TriggerID, submitter.Name(), err)
			return
		}
		metrics.TriggersSubmitted.WithLabelValues(submitter.Name(), "success").Inc()
		log.Infof("[VectorizeService] 已提交向量化任务, triggerID: %s, organization: %q, reason: %s", task.TriggerID, task.OrganizationID, task.Reason)
	}()
	return task.TriggerID
}

// RunTask 执行异步提交的任务，只有批处理本身无法运行时才返回错误。
func (s *vectorizeService) RunTask(ctx context.Context, task tasks.VectorizeTask) error {
	result, err := s.RunBatch(ctx, pipeline.BatchOptions{
		BatchSize:      task.BatchSize,
		OrganizationID: task.OrganizationID,
	})
	if err != nil {
		return fmt.Errorf("执行向量化任务 %s 失败: %w", task.TriggerID, err)
	}
	log.Infof("[VectorizeService] 向量化任务完成, triggerID: %s, total: %d, vectorized: %d, failed: %d",
		task.TriggerID, result.Total, result.Vectorized, len(result.Errors))
	return nil
}

func (s *vectorizeService) Progress(ctx context.Context, organizationID string) (*model.StatusSummary, error) {
	return s.status.Summary(ctx, organizationID)
}

func (s *vectorizeService) DocumentStatus(ctx context.Context, documentID string) (*model.DocumentStatus, error) {
	return s.status.Detail(ctx, documentID)
}
