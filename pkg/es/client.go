// Package es 提供了与 Elasticsearch 交互的客户端功能，用作向量的相似度检索索引。
package es

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"kb-vectorizer/internal/config"
	"kb-vectorizer/internal/model"
	"kb-vectorizer/pkg/log"
)

// Indexer 将文档的向量集合镜像到 Elasticsearch 索引中。
type Indexer struct {
	client *elasticsearch.Client
	index  string
	dims   int
}

// NewClient 根据配置创建 Elasticsearch 客户端。
func NewClient(esCfg config.ElasticsearchConfig) (*elasticsearch.Client, error) {
	cfg := elasticsearch.Config{
		Addresses: strings.Split(esCfg.Addresses, ","),
		Username:  esCfg.Username,
		Password:  esCfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}
	return elasticsearch.NewClient(cfg)
}

// NewIndexer 创建 Indexer。dims 为向量维度，0 表示由 Elasticsearch 根据首个文档推断。
func NewIndexer(client *elasticsearch.Client, index string, dims int) *Indexer {
	return &Indexer{client: client, index: index, dims: dims}
}

// EnsureIndex 检查索引是否存在，如果不存在则创建它。
func (i *Indexer) EnsureIndex(ctx context.Context) error {
	res, err := i.client.Indices.Exists([]string{i.index}, i.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		log.Errorf("[ES] 检查索引是否存在时出错: %v", err)
		return err
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		log.Infof("[ES] 索引 '%s' 已存在", i.index)
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("检查索引是否存在时收到意外的状态码: %d", res.StatusCode)
	}

	body, err := json.Marshal(i.mapping())
	if err != nil {
		return err
	}
	res, err = i.client.Indices.Create(
		i.index,
		i.client.Indices.Create.WithBody(bytes.NewReader(body)),
		i.client.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		log.Errorf("[ES] 创建索引 '%s' 失败: %v", i.index, err)
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		log.Errorf("[ES] 创建索引 '%s' 时 Elasticsearch 返回错误: %s", i.index, res.String())
		return fmt.Errorf("创建索引时 Elasticsearch 返回错误: %s", res.Status())
	}

	log.Infof("[ES] 索引 '%s' 创建成功", i.index)
	return nil
}

func (i *Indexer) mapping() map[string]interface{} {
	vector := map[string]interface{}{
		"type":       "dense_vector",
		"index":      true,
		"similarity": "cosine",
	}
	if i.dims > 0 {
		vector["dims"] = i.dims
	}
	return map[string]interface{}{
		"mappings": map[string]interface{}{
			"properties": map[string]interface{}{
				"vector_id":       map[string]string{"type": "keyword"},
				"document_id":     map[string]string{"type": "keyword"},
				"organization_id": map[string]string{"type": "keyword"},
				"chunk_index":     map[string]string{"type": "integer"},
				"total_chunks":    map[string]string{"type": "integer"},
				"text_content":    map[string]string{"type": "text"},
				"vector":          vector,
				"content_hash":    map[string]string{"type": "keyword"},
				"file_name":       map[string]string{"type": "keyword"},
				"file_type":       map[string]string{"type": "keyword"},
				"model_version":   map[string]string{"type": "keyword"},
				"vectorized_at":   map[string]string{"type": "date"},
			},
		},
	}
}

// ReplaceDocumentVectors 删除文档在索引中的旧向量，再批量写入新的一组。
func (i *Indexer) ReplaceDocumentVectors(ctx context.Context, documentID string, vectors []*model.DocumentVector) error {
	if err := i.DeleteDocumentVectors(ctx, documentID); err != nil {
		return err
	}
	if len(vectors) == 0 {
		return nil
	}

	var buf bytes.Buffer
	for _, v := range vectors {
		doc := model.NewEsDocument(v)
		meta := map[string]map[string]string{"index": {"_index": i.index, "_id": doc.VectorID}}
		if err := json.NewEncoder(&buf).Encode(meta); err != nil {
			return err
		}
		if err := json.NewEncoder(&buf).Encode(doc); err != nil {
			return err
		}
	}

	req := esapi.BulkRequest{
		Index:   i.index,
		Body:    &buf,
		Refresh: "true",
	}
	res, err := req.Do(ctx, i.client)
	if err != nil {
		return fmt.Errorf("批量索引向量失败: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		log.Errorf("[ES] 批量索引向量时 Elasticsearch 返回错误: %s", res.String())
		return fmt.Errorf("批量索引向量失败: %s", res.Status())
	}
	return checkBulkResponse(res.Body)
}

// DeleteDocumentVectors 按 document_id 删除索引中的所有向量。
func (i *Indexer) DeleteDocumentVectors(ctx context.Context, documentID string) error {
	query, err := json.Marshal(map[string]interface{}{
		"query": map[string]interface{}{
			"term": map[string]string{"document_id": documentID},
		},
	})
	if err != nil {
		return err
	}
	refresh := true
	req := esapi.DeleteByQueryRequest{
		Index:     []string{i.index},
		Body:      bytes.NewReader(query),
		Refresh:   &refresh,
		Conflicts: "proceed",
	}
	res, err := req.Do(ctx, i.client)
	if err != nil {
		return fmt.Errorf("删除文档旧向量失败: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() && res.StatusCode != http.StatusNotFound {
		log.Errorf("[ES] 删除文档旧向量时 Elasticsearch 返回错误: %s", res.String())
		return fmt.Errorf("删除文档旧向量失败: %s", res.Status())
	}
	return nil
}

type bulkResponse struct {
	Errors bool `json:"errors"`
	Items  []map[string]struct {
		ID     string `json:"_id"`
		Status int    `json:"status"`
		Error  *struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error"`
	} `json:"items"`
}

// checkBulkResponse 检查 bulk 响应中的逐条错误，HTTP 200 并不代表全部成功。
func checkBulkResponse(body io.Reader) error {
	var br bulkResponse
	if err := json.NewDecoder(body).Decode(&br); err != nil {
		return fmt.Errorf("解析 bulk 响应失败: %w", err)
	}
	if !br.Errors {
		return nil
	}
	failed := 0
	var first string
	for _, item := range br.Items {
		for _, result := range item {
			if result.Error == nil {
				continue
			}
			failed++
			if first == "" {
				first = fmt.Sprintf("%s: %s: %s", result.ID, result.Error.Type, result.Error.Reason)
			}
		}
	}
	return fmt.Errorf("bulk 写入有 %d 条失败, 首个错误: %s", failed, first)
}
