package models

import (
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type GenerationStatus string

const (
	GenerationPending   GenerationStatus = "pending"
	GenerationCompleted GenerationStatus = "completed"
	GenerationFailed    GenerationStatus = "failed"
)

// IsTerminal 判斷狀態是否已經不能再轉換
func (s GenerationStatus) IsTerminal() bool {
	return s == GenerationCompleted || s == GenerationFailed
}

// GenerationRequest 記錄一次送往外部生成服務的非同步請求
// ExternalRequestID 是 webhook 回呼時用來找回這筆紀錄的關聯鍵
type GenerationRequest struct {
	Base

	ExternalRequestID string            `gorm:"type:text;not null;uniqueIndex;<-:create"`
	UserID            uuid.UUID         `gorm:"type:uuid;not null;index;<-:create"`
	Prompt            string            `gorm:"type:text;not null;<-:create"`
	Status            GenerationStatus  `gorm:"type:varchar(16);not null;default:'pending'"`
	ResultImageID     *uuid.UUID        `gorm:"type:uuid"`
	Arguments         datatypes.JSONMap `gorm:"<-:create"`

	User        *User  `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	ResultImage *Image `gorm:"foreignKey:ResultImageID;constraint:OnDelete:CASCADE"`
}
