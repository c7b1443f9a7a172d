// Package metrics 定义了向量化流程的 Prometheus 指标。
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "kb_vectorizer"

var (
	// DocumentsProcessed 统计每篇文档的处理结果。
	// Labels: result (vectorized, failed, skipped)
	DocumentsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "documents_processed_total",
			Help:      "Total number of documents processed by result",
		},
		[]string{"result"},
	)

	// ChunksEmbedded 统计成功向量化的分块数。
	ChunksEmbedded = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "chunks_embedded_total",
			Help:      "Total number of chunks embedded",
		},
	)

	// EmbeddingErrors 统计 Embedding API 调用失败次数。
	EmbeddingErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "embedding",
			Name:      "errors_total",
			Help:      "Total number of failed embedding calls",
		},
	)

	// BatchDuration 记录单次批处理的耗时。
	BatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "batch_duration_seconds",
			Help:      "Duration of vectorization batches in seconds",
			Buckets:   []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600, 900},
		},
	)

	// StaleRecovered 统计因处理超时被置为 FAILED 的文档数。
	StaleRecovered = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "stale_documents_recovered_total",
			Help:      "Total number of PROCESSING documents reset to FAILED after timing out",
		},
	)

	// TriggersSubmitted 统计异步触发的提交结果。
	// Labels: submitter (kafka, local), result (success, error)
	TriggersSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trigger",
			Name:      "submitted_total",
			Help:      "Total number of asynchronous vectorization triggers",
		},
		[]string{"submitter", "result"},
	)
)
