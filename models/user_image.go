package models

import "github.com/google/uuid"

// UserImage 將圖片歸屬給使用者，並記錄使用者對圖片的喜愛與收藏狀態
type UserImage struct {
	Base

	UserID  uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uix_user_image;<-:create"`
	ImageID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uix_user_image;<-:create"`
	IsLoved bool      `gorm:"not null;default:false"`
	IsSaved bool      `gorm:"not null;default:false"`

	User  *User  `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	Image *Image `gorm:"foreignKey:ImageID;constraint:OnDelete:CASCADE"`
}
