package storage

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"kb-vectorizer/internal/config"
)

// fakeS3 只实现路径风格的 GET 对象请求。
func fakeS3(t *testing.T, objects map[string]string) *MinIOStore {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := objects[r.URL.Path]
		if r.Method != http.MethodGet || !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message></Error>`))
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
		w.Header().Set("Last-Modified", time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC).Format(http.TimeFormat))
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	store, err := NewMinIOStore(config.MinIOConfig{
		Endpoint:        strings.TrimPrefix(srv.URL, "http://"),
		AccessKeyID:     "minioadmin",
		SecretAccessKey: "minioadmin",
		BucketName:      "documents",
		Region:          "us-east-1",
	})
	require.NoError(t, err)
	return store
}

func TestReadObject(t *testing.T) {
	store := fakeS3(t, map[string]string{"/documents/org-1/handbook.pdf": "%PDF-1.7 content"})

	data, err := store.ReadObject(context.Background(), "org-1/handbook.pdf")
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.7 content", string(data))
}

func TestReadObjectNotFound(t *testing.T) {
	store := fakeS3(t, nil)

	_, err := store.ReadObject(context.Background(), "missing.pdf")
	assert.ErrorIs(t, err, ErrObjectNotFound)
}
