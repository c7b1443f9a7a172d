package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"kb-vectorizer/internal/model"
	"kb-vectorizer/internal/pipeline"
	"kb-vectorizer/internal/repository"
	"kb-vectorizer/pkg/log"
)

var (
	// ErrNoContentSource 表示文档既没有上传文件也没有编辑器内容。
	ErrNoContentSource = errors.New("文档没有可提取文本的内容来源")
	// ErrIngestUnavailable 表示对象存储或文本提取服务未启用。
	ErrIngestUnavailable = errors.New("文件解析服务未启用")
)

// 无文本时记录在文档上的错误信息。
const noTextMessage = "no text could be extracted from the document"

// ObjectReader 读取上传流程存放的原始文件。
type ObjectReader interface {
	ReadObject(ctx context.Context, objectKey string) ([]byte, error)
}

// TextExtractor 从文件中提取纯文本。
type TextExtractor interface {
	ExtractText(ctx context.Context, r io.Reader, fileName string) (string, error)
}

// IngestService 在文档内容变化后提取文本、重置向量化状态并触发批处理。
type IngestService interface {
	IngestUploadedFile(ctx context.Context, documentID string) (*model.DocumentStatus, error)
	IngestEditorContent(ctx context.Context, documentID string) (*model.DocumentStatus, error)
}

type ingestService struct {
	docs      repository.DocumentRepository
	objects   ObjectReader
	extractor TextExtractor
	vectorize VectorizeService
}

// NewIngestService 创建 IngestService。objects 或 extractor 为 nil 时上传文件的解析不可用。
func NewIngestService(docs repository.DocumentRepository, objects ObjectReader, extractor TextExtractor, vectorize VectorizeService) IngestService {
	return &ingestService{docs: docs, objects: objects, extractor: extractor, vectorize: vectorize}
}

// IngestUploadedFile 从对象存储下载文件，通过 Tika 提取文本后写入文档。
func (s *ingestService) IngestUploadedFile(ctx context.Context, documentID string) (*model.DocumentStatus, error) {
	if s.objects == nil || s.extractor == nil {
		return nil, ErrIngestUnavailable
	}
	doc, err := s.docs.FindByID(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc.ObjectKey == "" {
		return nil, ErrNoContentSource
	}

	log.Infof("[IngestService] 开始解析上传文件, documentID: %s, object: %s", doc.ID, doc.ObjectKey)
	data, err := s.objects.ReadObject(ctx, doc.ObjectKey)
	if err != nil {
		return nil, err
	}
	text := ""
	if len(data) > 0 {
		text, err = s.extractor.ExtractText(ctx, bytes.NewReader(data), doc.Title)
		if err != nil {
			return nil, fmt.Errorf("提取文本失败: %w", err)
		}
	}
	return s.store(ctx, doc, text, "upload")
}

// IngestEditorContent 将编辑器保存的 JSON 内容转换为纯文本后写入文档。
func (s *ingestService) IngestEditorContent(ctx context.Context, documentID string) (*model.DocumentStatus, error) {
	doc, err := s.docs.FindByID(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc.EditorContent == nil {
		return nil, ErrNoContentSource
	}
	text, err := pipeline.ExtractTiptapText(*doc.EditorContent)
	if err != nil {
		return nil, err
	}
	return s.store(ctx, doc, text, "editor")
}

// store 写入清洗后的文本并触发批处理；没有文本时直接标记为 FAILED，不会被批处理选中。
func (s *ingestService) store(ctx context.Context, doc *model.Document, text string, reason string) (*model.DocumentStatus, error) {
	text = pipeline.NormalizeText(text)
	if text == "" {
		log.Warnf("[IngestService] 文档没有可提取的文本, documentID: %s", doc.ID)
		if err := s.docs.MarkNoText(ctx, doc.ID, noTextMessage); err != nil {
			return nil, err
		}
		return s.vectorize.DocumentStatus(ctx, doc.ID)
	}

	if err := s.docs.ResetText(ctx, doc.ID, text); err != nil {
		return nil, err
	}
	triggerID := s.vectorize.Trigger(ctx, TriggerRequest{OrganizationID: doc.OrganizationID, Reason: reason})
	log.Infof("[IngestService] 文档文本已更新, documentID: %s, 字符数: %d, triggerID: %s", doc.ID, len([]rune(text)), triggerID)
	return s.vectorize.DocumentStatus(ctx, doc.ID)
}
