package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"imagine/models"
)

// Bootstrap 建立系統需要的基本資料
//   - 支援的 SSO 提供者
//   - 設定中的管理員帳號
func (s *Server) Bootstrap(ctx context.Context) error {
	const op = "Server.Bootstrap"
	for _, name := range []models.SSOProviderName{models.SSOInternal, models.SSOGoogle} {
		provider := models.SsoProvider{Name: name}
		if result := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&provider); result.Error != nil {
			return fmt.Errorf("[%s] Fail to create sso provider %s, err=%w", op, name, result.Error)
		}
	}
	if err := s.seedAdmin(ctx); err != nil {
		return fmt.Errorf("[%s] %w", op, err)
	}
	return nil
}

func (s *Server) seedAdmin(ctx context.Context) error {
	admin := s.config.Admin
	if admin.Email == "" || admin.Password == "" {
		s.logger.Warn("Admin account is not configured")
		return nil
	}
	var existing models.User
	result := s.db.WithContext(ctx).Where(&models.User{Email: admin.Email}).First(&existing)
	if result.Error == nil {
		return nil
	}
	if !errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return fmt.Errorf("fail to find admin, err=%w", result.Error)
	}
	user := models.User{
		Name:      "Admin",
		Email:     admin.Email,
		Role:      models.RoleAdmin,
		AvatarURL: models.DefaultAvatarURL,
	}
	if err := user.SetPassword(admin.Password); err != nil {
		return err
	}
	if err := s.createUserWithIdentity(ctx, &user, models.SSOInternal, user.Email); err != nil {
		return fmt.Errorf("fail to create admin, err=%w", err)
	}
	s.logger.Info("Admin user created", slog.String("email", admin.Email))
	return nil
}

// createUserWithIdentity 在同一個交易中建立使用者與其登入身份
func (s *Server) createUserWithIdentity(ctx context.Context, user *models.User, providerName models.SSOProviderName, identity string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var provider models.SsoProvider
		if result := tx.Where(&models.SsoProvider{Name: providerName}).First(&provider); result.Error != nil {
			return fmt.Errorf("fail to find sso provider %s, err=%w", providerName, result.Error)
		}
		if result := tx.Create(user); result.Error != nil {
			return result.Error
		}
		userIdentity := models.UserIdentity{
			SsoProviderID: provider.ID,
			UserID:        user.ID,
			Identity:      identity,
		}
		if result := tx.Create(&userIdentity); result.Error != nil {
			return fmt.Errorf("fail to create user identity, err=%w", result.Error)
		}
		return nil
	})
}
