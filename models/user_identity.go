package models

import (
	"github.com/google/uuid"
)

// UserIdentity 代表使用者的身份
// 包含基本的身份資訊，如 SSO 提供者 ID、使用者 ID 以及識別字串，用來識別使用者在 SSO 提供者的身份
type UserIdentity struct {
	Base

	SsoProviderID uuid.UUID `gorm:"type:uuid;uniqueIndex:idx_user_identity_sso_provider_id_user_id;uniqueIndex:idx_user_identity_sso_provider_id_identity;not null;<-:create"`
	UserID        uuid.UUID `gorm:"type:uuid;uniqueIndex:idx_user_identity_sso_provider_id_user_id;not null;<-:create"`
	Identity      string    `gorm:"type:text;uniqueIndex:idx_user_identity_sso_provider_id_identity;not null;<-:create"`

	SsoProvider *SsoProvider `gorm:"foreignKey:SsoProviderID"`
	User        *User        `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
}
