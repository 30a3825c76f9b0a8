package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	internalS3 "imagine/adapters/s3"
	"imagine/models"
)

type updateProfileRequest struct {
	Name      *string `json:"name" binding:"omitempty,max=100"`
	AvatarURL *string `json:"avatarUrl"`
}

type updatePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" binding:"required"`
	NewPassword     string `json:"newPassword" binding:"required,min=6,max=72"`
}

// Get user information
// (GET /api/user/profile)
func (s *Server) GetProfile(c *gin.Context) {
	respondOK(c, http.StatusOK, "", gin.H{
		"user": newUserResponse(currentUser(c)),
	})
}

// Update user information
// (PUT /api/user/profile)
func (s *Server) PutProfile(c *gin.Context) {
	const op = "PutProfile"
	user := currentUser(c)
	var body updateProfileRequest
	if !bindJSON(c, &body) {
		return
	}

	updates := map[string]any{}
	// 檢查新的使用者名稱是否合法
	if body.Name != nil {
		name := strings.TrimSpace(s.nameChecker.Sanitize(*body.Name))
		if name == "" {
			respondError(c, http.StatusBadRequest, "Name cannot be empty")
			return
		}
		updates["name"] = name
	}
	// 頭像可以是 https 網址或 data URL
	if body.AvatarURL != nil && *body.AvatarURL != "" {
		avatarURL := *body.AvatarURL
		switch {
		case strings.HasPrefix(avatarURL, "https://"):
			updates["avatar_url"] = avatarURL
		case internalS3.IsDataURL(avatarURL):
			if s.avatars == nil {
				respondError(c, http.StatusServiceUnavailable, "Avatar upload is not available")
				return
			}
			url, err := s.avatars.Upload(c, user.ID, avatarURL)
			var reachLimit *internalS3.ReachLimitError
			if errors.As(err, &reachLimit) {
				respondError(c, http.StatusBadRequest, fmt.Sprintf("Avatar must be smaller than %s", internalS3.FormatBytes(reachLimit.MaxBytes)))
				return
			}
			if errors.Is(err, internalS3.ErrInvalidDataURL) || errors.Is(err, internalS3.ErrInsecureImage) {
				respondError(c, http.StatusBadRequest, "Invalid avatar image")
				return
			}
			if err != nil {
				s.logger.Error("Fail to upload avatar", slog.String("op", op), slog.Any("error", err))
				respondError(c, http.StatusInternalServerError, "Failed to save avatar")
				return
			}
			updates["avatar_url"] = url
		default:
			respondError(c, http.StatusBadRequest, "Invalid avatar url")
			return
		}
	}

	if len(updates) > 0 {
		if result := s.db.WithContext(c).Model(user).Updates(updates); result.Error != nil {
			s.logger.Error("Fail to update user info", slog.String("op", op), slog.Any("error", result.Error))
			respondError(c, http.StatusInternalServerError, "Failed to update profile")
			return
		}
		if name, ok := updates["name"].(string); ok {
			user.Name = name
		}
		if avatarURL, ok := updates["avatar_url"].(string); ok {
			user.AvatarURL = avatarURL
		}
	}
	respondOK(c, http.StatusOK, "Profile updated successfully", gin.H{
		"user": newUserResponse(user),
	})
}

// Change the password
// (PUT /api/user/password)
func (s *Server) PutPassword(c *gin.Context) {
	const op = "PutPassword"
	user := currentUser(c)
	var body updatePasswordRequest
	if !bindJSON(c, &body) {
		return
	}
	if !user.CheckPassword(body.CurrentPassword) {
		respondError(c, http.StatusUnauthorized, "Current password is incorrect")
		return
	}
	if err := user.SetPassword(body.NewPassword); err != nil {
		s.logger.Error("Fail to hash password", slog.String("op", op), slog.Any("error", err))
		respondError(c, http.StatusInternalServerError, "Failed to update password")
		return
	}
	if result := s.db.WithContext(c).Model(user).Update("password_hash", user.PasswordHash); result.Error != nil {
		s.logger.Error("Fail to update password", slog.String("op", op), slog.Any("error", result.Error))
		respondError(c, http.StatusInternalServerError, "Failed to update password")
		return
	}
	respondOK(c, http.StatusOK, "Password updated successfully", nil)
}

// Delete the account
// (DELETE /api/user/account)
func (s *Server) DeleteAccount(c *gin.Context) {
	const op = "DeleteAccount"
	user := currentUser(c)
	if user.IsAdmin() {
		respondError(c, http.StatusForbidden, "Admin accounts cannot be deleted through this endpoint")
		return
	}
	// 歸屬紀錄與使用者在同一個交易中刪除，其餘關聯由外鍵串聯刪除
	err := s.db.WithContext(c).Transaction(func(tx *gorm.DB) error {
		if result := tx.Where("user_id = ?", user.ID).Delete(&models.UserImage{}); result.Error != nil {
			return fmt.Errorf("fail to delete user images, err=%w", result.Error)
		}
		if result := tx.Delete(user); result.Error != nil {
			return fmt.Errorf("fail to delete user, err=%w", result.Error)
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Fail to delete account", slog.String("op", op), slog.Any("error", err))
		respondError(c, http.StatusInternalServerError, "Failed to delete account")
		return
	}
	s.logger.Info("Account deleted", slog.String("op", op), slog.String("user", user.ID.String()))
	respondOK(c, http.StatusOK, "Account deleted successfully", nil)
}
