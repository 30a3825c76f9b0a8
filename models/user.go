package models

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

const DefaultAvatarURL = "/placeholder.svg"

// User 代表系統中的使用者
// 包含登入用的電子郵件、密碼雜湊以及個人資料
type User struct {
	Base

	Name         string `gorm:"type:varchar(100);not null"`
	Email        string `gorm:"type:varchar(100);not null;uniqueIndex:idx_user_email"`
	PasswordHash string `gorm:"type:varchar(100);not null"`
	AvatarURL    string `gorm:"type:text;not null;default:'/placeholder.svg'"`
	Role         Role   `gorm:"type:varchar(20);not null;default:'user'"`

	Identities []UserIdentity `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
}

// SetPassword 以 bcrypt 雜湊後儲存密碼
func (u *User) SetPassword(password string) error {
	const op = "User.SetPassword"
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("[%s] Fail to hash password, err=%w", op, err)
	}
	u.PasswordHash = string(hash)
	return nil
}

// CheckPassword 比對密碼是否與雜湊相符
func (u *User) CheckPassword(password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) == nil
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
