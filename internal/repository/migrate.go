package repository

import (
	"gorm.io/gorm"
	"kb-vectorizer/internal/model"
)

// AutoMigrate 创建或更新本服务负责的表结构。
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&model.Document{}, &model.DocumentVector{})
}
