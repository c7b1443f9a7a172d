package es

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"kb-vectorizer/internal/model"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
}

type fakeES struct {
	mu        sync.Mutex
	requests  []recordedRequest
	indexed   bool
	bulkError bool
}

func (f *fakeES) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.requests = append(f.requests, recordedRequest{Method: r.Method, Path: r.URL.Path, Body: string(body)})
	f.mu.Unlock()

	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == http.MethodHead:
		if !f.indexed {
			w.WriteHeader(http.StatusNotFound)
		}
	case r.Method == http.MethodPut:
		f.indexed = true
		_, _ = w.Write([]byte(`{"acknowledged":true}`))
	case strings.HasSuffix(r.URL.Path, "/_delete_by_query"):
		_, _ = w.Write([]byte(`{"deleted":3}`))
	case strings.HasSuffix(r.URL.Path, "/_bulk"):
		if f.bulkError {
			_, _ = w.Write([]byte(`{"errors":true,"items":[{"index":{"_id":"doc-1_0","status":201}},{"index":{"_id":"doc-1_1","status":400,"error":{"type":"mapper_parsing_exception","reason":"dims mismatch"}}}]}`))
			return
		}
		_, _ = w.Write([]byte(`{"errors":false,"items":[]}`))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newTestIndexer(t *testing.T, fake *fakeES) *Indexer {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{srv.URL}})
	require.NoError(t, err)
	return NewIndexer(client, "knowledge_vectors", 3)
}

func TestEnsureIndexCreatesMappingWithDims(t *testing.T) {
	fake := &fakeES{}
	idx := newTestIndexer(t, fake)

	require.NoError(t, idx.EnsureIndex(context.Background()))
	require.Len(t, fake.requests, 2)
	assert.Equal(t, http.MethodPut, fake.requests[1].Method)

	var body map[string]map[string]map[string]map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(fake.requests[1].Body), &body))
	vector := body["mappings"]["properties"]["vector"]
	assert.Equal(t, "dense_vector", vector["type"])
	assert.EqualValues(t, 3, vector["dims"])

	// 已存在时不再创建
	require.NoError(t, idx.EnsureIndex(context.Background()))
	assert.Len(t, fake.requests, 3)
}

func TestReplaceDocumentVectorsDeletesThenBulkIndexes(t *testing.T) {
	fake := &fakeES{indexed: true}
	idx := newTestIndexer(t, fake)
	vectors := []*model.DocumentVector{
		{DocumentID: "doc-1", ChunkIndex: 0, TotalChunks: 2, Content: "a", Embedding: []float32{1, 0, 0}},
		{DocumentID: "doc-1", ChunkIndex: 1, TotalChunks: 2, Content: "b", Embedding: []float32{0, 1, 0}},
	}

	require.NoError(t, idx.ReplaceDocumentVectors(context.Background(), "doc-1", vectors))
	require.Len(t, fake.requests, 2)

	del := fake.requests[0]
	assert.Equal(t, "/knowledge_vectors/_delete_by_query", del.Path)
	assert.Contains(t, del.Body, `"document_id":"doc-1"`)

	bulk := fake.requests[1]
	assert.Equal(t, "/knowledge_vectors/_bulk", bulk.Path)
	var lines []string
	sc := bufio.NewScanner(strings.NewReader(bulk.Body))
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	require.Len(t, lines, 4)
	assert.Contains(t, lines[0], `"_id":"doc-1_0"`)
	assert.Contains(t, lines[2], `"_id":"doc-1_1"`)
	assert.Contains(t, lines[3], `"text_content":"b"`)
}

func TestReplaceDocumentVectorsReportsItemErrors(t *testing.T) {
	fake := &fakeES{indexed: true, bulkError: true}
	idx := newTestIndexer(t, fake)
	vectors := []*model.DocumentVector{
		{DocumentID: "doc-1", ChunkIndex: 0, TotalChunks: 2},
		{DocumentID: "doc-1", ChunkIndex: 1, TotalChunks: 2},
	}

	err := idx.ReplaceDocumentVectors(context.Background(), "doc-1", vectors)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dims mismatch")
}
