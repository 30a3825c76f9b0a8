package models

type SSOProviderName string

const (
	SSOInternal SSOProviderName = "internal"
	SSOGoogle   SSOProviderName = "google"
)

// SsoProvider 代表支援的 SSO 提供者
// 包含基本的 SSO 提供者資訊，如名稱
type SsoProvider struct {
	Base

	Name SSOProviderName `gorm:"type:text;not null;unique;<-:create"`
}
