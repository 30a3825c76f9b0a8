package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Base 提供所有資料表共用的 UUIDv7 主鍵與時間戳記
type Base struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// BeforeCreate 在寫入前產生主鍵，讓 ID 在交易內就能被引用
func (b *Base) BeforeCreate(tx *gorm.DB) error {
	if b.ID != uuid.Nil {
		return nil
	}
	id, err := uuid.NewV7()
	if err != nil {
		return err
	}
	b.ID = id
	return nil
}
