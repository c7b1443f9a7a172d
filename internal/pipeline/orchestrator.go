package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"kb-vectorizer/internal/model"
	"kb-vectorizer/internal/repository"
	"kb-vectorizer/pkg/embedding"
	"kb-vectorizer/pkg/log"
	"kb-vectorizer/pkg/metrics"
)

const (
	DefaultBatchSize    = 50
	DefaultMaxBatchSize = 200

	// statusWriteTimeout 限制失败状态写入的时间，该写入不受批处理取消的影响。
	statusWriteTimeout = 10 * time.Second
)

// ErrNoExtractableText 表示文档经清洗后没有产生任何分块。
var ErrNoExtractableText = errors.New("document has no extractable text after normalization")

// BatchOptions 是单次批处理的参数。
type BatchOptions struct {
	BatchSize      int    `json:"batchSize"`
	OrganizationID string `json:"organizationId"`
}

// DocumentError 记录一篇处理失败的文档。
type DocumentError struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

// BatchResult 是批处理的汇总结果。
// Total 为本次选中的文档数，Skipped 为被其他运行抢先认领的文档数。
type BatchResult struct {
	Total      int             `json:"total"`
	Vectorized int             `json:"vectorized"`
	Skipped    int             `json:"skipped"`
	Errors     []DocumentError `json:"errors"`
}

// OrchestratorConfig 控制批处理的规模与并发。
type OrchestratorConfig struct {
	DefaultBatchSize int
	MaxBatchSize     int
	// Concurrency 为同时处理的文档数，1 表示顺序处理。同一文档的分块始终顺序处理。
	Concurrency int
	// StaleAfter 大于 0 时，每次批处理前回收超时的 PROCESSING 文档。
	StaleAfter time.Duration
}

// Orchestrator 选取一批待处理文档，逐篇执行 清洗 -> 分块 -> 向量化 -> 写入 -> 更新状态。
type Orchestrator struct {
	docs     repository.DocumentRepository
	tracker  *Tracker
	chunker  *Chunker
	embedder embedding.Client
	writer   *VectorWriter
	cfg      OrchestratorConfig
}

// NewOrchestrator 创建一个新的 Orchestrator 实例。
func NewOrchestrator(
	docs repository.DocumentRepository,
	tracker *Tracker,
	chunker *Chunker,
	embedder embedding.Client,
	writer *VectorWriter,
	cfg OrchestratorConfig,
) *Orchestrator {
	if cfg.DefaultBatchSize <= 0 {
		cfg.DefaultBatchSize = DefaultBatchSize
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = DefaultMaxBatchSize
	}
	if cfg.DefaultBatchSize > cfg.MaxBatchSize {
		cfg.DefaultBatchSize = cfg.MaxBatchSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &Orchestrator{
		docs:     docs,
		tracker:  tracker,
		chunker:  chunker,
		embedder: embedder,
		writer:   writer,
		cfg:      cfg,
	}
}

// BatchSize 返回实际使用的批大小：0 或负数取默认值，超过上限时截断。
func (o *Orchestrator) BatchSize(requested int) int {
	switch {
	case requested <= 0:
		return o.cfg.DefaultBatchSize
	case requested > o.cfg.MaxBatchSize:
		return o.cfg.MaxBatchSize
	}
	return requested
}

type docResult int

const (
	resultVectorized docResult = iota
	resultSkipped
	resultFailed
)

func (r docResult) String() string {
	switch r {
	case resultVectorized:
		return "vectorized"
	case resultSkipped:
		return "skipped"
	}
	return "failed"
}

type outcome struct {
	result docResult
	err    error
}

// RunBatch 处理一批文档。单篇文档的失败只记录在结果中，不会中断批处理；
// 只有选取文档等基础设施错误才会作为 error 返回。
func (o *Orchestrator) RunBatch(ctx context.Context, opts BatchOptions) (*BatchResult, error) {
	start := time.Now()
	defer func() { metrics.BatchDuration.Observe(time.Since(start).Seconds()) }()

	if o.cfg.StaleAfter > 0 {
		n, err := o.tracker.RecoverStale(ctx, o.cfg.StaleAfter)
		if err != nil {
			log.Warnf("[Orchestrator] 回收超时文档失败: %v", err)
		} else if n > 0 {
			metrics.StaleRecovered.Add(float64(n))
			log.Warnf("[Orchestrator] %d 篇文档处理超时, 已置为 FAILED", n)
		}
	}

	size := o.BatchSize(opts.BatchSize)
	docs, err := o.docs.FindEligible(ctx, opts.OrganizationID, size)
	if err != nil {
		return nil, fmt.Errorf("查询待向量化文档失败: %w", err)
	}
	log.Infof("[Orchestrator] 开始批处理, 选中文档: %d, batchSize: %d, organization: %q", len(docs), size, opts.OrganizationID)

	outcomes := make([]outcome, len(docs))
	if o.cfg.Concurrency > 1 && len(docs) > 1 {
		if err := o.runPooled(ctx, docs, outcomes); err != nil {
			return nil, err
		}
	} else {
		for i := range docs {
			outcomes[i] = o.processDocument(ctx, &docs[i])
		}
	}

	result := &BatchResult{Total: len(docs), Errors: []DocumentError{}}
	for i, oc := range outcomes {
		metrics.DocumentsProcessed.WithLabelValues(oc.result.String()).Inc()
		switch oc.result {
		case resultVectorized:
			result.Vectorized++
		case resultSkipped:
			result.Skipped++
		default:
			result.Errors = append(result.Errors, DocumentError{ID: docs[i].ID, Error: oc.err.Error()})
		}
	}
	log.Infof("[Orchestrator] 批处理完成, total: %d, vectorized: %d, skipped: %d, failed: %d, 耗时: %s",
		result.Total, result.Vectorized, result.Skipped, len(result.Errors), time.Since(start))
	return result, nil
}

// runPooled 使用 ants 协程池跨文档并发处理，结果按选取顺序写入 outcomes。
func (o *Orchestrator) runPooled(ctx context.Context, docs []model.Document, outcomes []outcome) error {
	pool, err := ants.NewPool(o.cfg.Concurrency)
	if err != nil {
		return fmt.Errorf("创建协程池失败: %w", err)
	}
	defer pool.Release()

	var wg sync.WaitGroup
	for i := range docs {
		i := i
		wg.Add(1)
		if err := pool.Submit(func() {
			defer wg.Done()
			outcomes[i] = o.processDocument(ctx, &docs[i])
		}); err != nil {
			wg.Done()
			outcomes[i] = outcome{result: resultFailed, err: fmt.Errorf("提交任务失败: %w", err)}
		}
	}
	wg.Wait()
	return nil
}

// processDocument 处理单篇文档，任何错误（包括 panic）都只影响这一篇。
func (o *Orchestrator) processDocument(ctx context.Context, doc *model.Document) (out outcome) {
	claimToken := ""
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic while vectorizing: %v", r)
			log.Errorf("[Orchestrator] 处理文档时发生 panic, documentID: %s, error: %v", doc.ID, r)
			if claimToken != "" {
				o.fail(ctx, doc.ID, claimToken, err)
			}
			out = outcome{result: resultFailed, err: err}
		}
	}()

	token, ok, err := o.tracker.Begin(ctx, doc.ID)
	if err != nil {
		log.Errorf("[Orchestrator] 认领文档失败, documentID: %s, error: %v", doc.ID, err)
		return outcome{result: resultFailed, err: fmt.Errorf("claim failed: %w", err)}
	}
	if !ok {
		log.Infof("[Orchestrator] 文档已被其他运行认领, 跳过, documentID: %s", doc.ID)
		return outcome{result: resultSkipped}
	}
	claimToken = token

	chunkCount, err := o.vectorize(ctx, doc, claimToken)
	if err == nil {
		err = o.tracker.Complete(ctx, doc.ID, claimToken, chunkCount)
		if err == nil {
			log.Infof("[Orchestrator] 文档向量化成功, documentID: %s, chunks: %d", doc.ID, chunkCount)
			return outcome{result: resultVectorized}
		}
	}

	if errors.Is(err, repository.ErrStatusConflict) {
		// 处理期间文档被外部重置或被回收后重新认领，保留当前状态，不再写入
		log.Warnf("[Orchestrator] 文档已不归本次运行持有, 放弃写入, documentID: %s", doc.ID)
		return outcome{result: resultFailed, err: err}
	}
	log.Errorf("[Orchestrator] 文档向量化失败, documentID: %s, error: %v", doc.ID, err)
	o.fail(ctx, doc.ID, claimToken, err)
	return outcome{result: resultFailed, err: err}
}

// vectorize 执行分块、逐块向量化与写入，返回分块数。
func (o *Orchestrator) vectorize(ctx context.Context, doc *model.Document, claimToken string) (int, error) {
	chunks := o.chunker.Split(NormalizeText(doc.Text()))
	if len(chunks) == 0 {
		return 0, ErrNoExtractableText
	}

	embedded := make([]EmbeddedChunk, 0, len(chunks))
	for _, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return 0, fmt.Errorf("vectorization interrupted: %w", err)
		}
		vector, err := o.embedder.CreateEmbedding(ctx, chunk.Content)
		if err != nil {
			metrics.EmbeddingErrors.Inc()
			return 0, fmt.Errorf("chunk %d/%d: %w", chunk.Index+1, len(chunks), err)
		}
		embedded = append(embedded, EmbeddedChunk{Chunk: chunk, Embedding: vector})
	}
	metrics.ChunksEmbedded.Add(float64(len(embedded)))

	if _, err := o.writer.Replace(ctx, doc, claimToken, embedded); err != nil {
		return 0, err
	}
	return len(embedded), nil
}

// fail 记录失败状态。使用脱离批处理取消的 context，保证超时后文档不会停留在 PROCESSING。
func (o *Orchestrator) fail(ctx context.Context, documentID, claimToken string, cause error) {
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), statusWriteTimeout)
	defer cancel()
	if err := o.tracker.Fail(fctx, documentID, claimToken, cause.Error()); err != nil {
		log.Errorf("[Orchestrator] 记录文档失败状态失败, documentID: %s, error: %v", documentID, err)
	}
}
