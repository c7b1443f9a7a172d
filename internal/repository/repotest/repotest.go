// Package repotest 为测试提供基于 SQLite 的 gorm 数据库。
package repotest

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"kb-vectorizer/internal/model"
	"kb-vectorizer/internal/repository"
)

// NewDB 在临时目录中创建一个已迁移的 SQLite 数据库。
// 连接数限制为 1，使并发写入在测试中串行化，与 MySQL 的行锁语义一致。
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "test.db") + "?_pragma=busy_timeout(5000)"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, repository.AutoMigrate(db))
	return db
}

// DocOption 修改待插入的测试文档。
type DocOption func(*model.Document)

// WithOrg 设置文档所属组织。
func WithOrg(orgID string) DocOption {
	return func(d *model.Document) { d.OrganizationID = orgID }
}

// WithStatus 设置文档的向量化状态。
func WithStatus(s model.VectorizationStatus) DocOption {
	return func(d *model.Document) { d.VectorizationStatus = s }
}

// WithoutText 清除文档的提取文本。
func WithoutText() DocOption {
	return func(d *model.Document) { d.ExtractedText = nil }
}

// WithUpdatedAt 固定文档的更新时间，用于控制选取顺序。
func WithUpdatedAt(at time.Time) DocOption {
	return func(d *model.Document) { d.UpdatedAt = at }
}

// CreateDocument 插入一篇测试文档并返回它。
func CreateDocument(t testing.TB, db *gorm.DB, text string, opts ...DocOption) *model.Document {
	t.Helper()
	doc := &model.Document{
		ID:                  uuid.NewString(),
		OrganizationID:      "org-1",
		Title:               "handbook.pdf",
		FileType:            "application/pdf",
		ExtractedText:       &text,
		VectorizationStatus: model.StatusPending,
	}
	for _, opt := range opts {
		opt(doc)
	}
	require.NoError(t, db.Create(doc).Error)
	return doc
}

// Reload 重新读取文档的最新状态。
func Reload(t testing.TB, db *gorm.DB, id string) *model.Document {
	t.Helper()
	var doc model.Document
	require.NoError(t, db.Where("id = ?", id).First(&doc).Error)
	return &doc
}

// Claim 以新的令牌认领文档并返回令牌。
func Claim(t testing.TB, db *gorm.DB, id string) string {
	t.Helper()
	token := uuid.NewString()
	ok, err := repository.NewDocumentRepository(db).Claim(context.Background(), id, token, time.Now())
	require.NoError(t, err)
	require.True(t, ok, "document %s is not claimable", id)
	return token
}
