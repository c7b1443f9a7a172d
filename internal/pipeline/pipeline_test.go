package pipeline

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"kb-vectorizer/internal/model"
	"kb-vectorizer/internal/repository"
	"kb-vectorizer/internal/repository/repotest"
)

// fakeEmbedder 返回由文本推导出的确定性向量，可按文本注入失败或 panic。
type fakeEmbedder struct {
	mu    sync.Mutex
	calls map[string]int
	hook  func(ctx context.Context, text string) error
}

func newFakeEmbedder() *fakeEmbedder {
	return &fakeEmbedder{calls: map[string]int{}}
}

func (f *fakeEmbedder) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	f.calls[text]++
	hook := f.hook
	f.mu.Unlock()
	if hook != nil {
		if err := hook(ctx, text); err != nil {
			return nil, err
		}
	}
	return []float32{float32(len(text)), float32(strings.Count(text, " ")), 1}, nil
}

func (f *fakeEmbedder) Model() string { return "fake-embedding-model" }

func (f *fakeEmbedder) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

type fakeIndex struct {
	mu      sync.Mutex
	err     error
	written map[string][]*model.DocumentVector
}

func (f *fakeIndex) ReplaceDocumentVectors(ctx context.Context, documentID string, vectors []*model.DocumentVector) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if f.written == nil {
		f.written = map[string][]*model.DocumentVector{}
	}
	f.written[documentID] = vectors
	return nil
}

type harness struct {
	db       *gorm.DB
	docs     repository.DocumentRepository
	vectors  repository.DocumentVectorRepository
	embedder *fakeEmbedder
	orch     *Orchestrator
}

func newHarness(t *testing.T, index VectorIndex, cfg OrchestratorConfig) *harness {
	t.Helper()
	db := repotest.NewDB(t)
	h := &harness{
		db:       db,
		docs:     repository.NewDocumentRepository(db),
		vectors:  repository.NewDocumentVectorRepository(db),
		embedder: newFakeEmbedder(),
	}
	writer := NewVectorWriter(h.vectors, index, h.embedder.Model())
	// 20 字符一块、4 字符重叠，便于构造多分块文档
	chunker := NewChunker(5, 1, 4)
	h.orch = NewOrchestrator(h.docs, NewTracker(h.docs), chunker, h.embedder, writer, cfg)
	return h
}

// requireConsistentVectors 校验文档向量满足：chunk_index 为 0..n-1，total_chunks 与 chunk_count 一致。
func requireConsistentVectors(t *testing.T, h *harness, docID string) []*model.DocumentVector {
	t.Helper()
	doc := repotest.Reload(t, h.db, docID)
	require.Equal(t, model.StatusCompleted, doc.VectorizationStatus)
	rows, err := h.vectors.FindByDocumentID(context.Background(), docID)
	require.NoError(t, err)
	require.Len(t, rows, doc.ChunkCount)
	for i, row := range rows {
		require.Equal(t, i, row.ChunkIndex)
		require.Equal(t, doc.ChunkCount, row.TotalChunks)
		require.Equal(t, model.ContentHash(row.Content), row.ContentHash)
	}
	return rows
}
