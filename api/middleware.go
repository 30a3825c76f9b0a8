package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"imagine/models"
)

const contextKeyCurrentUser = "currentUser"

// AuthMiddleware 驗證 Bearer token 並載入目前的使用者
func (s *Server) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		const op = "AuthMiddleware"
		//  - 檢查是否有提供access token
		tokenString, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || tokenString == "" {
			respondError(c, http.StatusUnauthorized, "Unauthorized")
			return
		}
		//  - 解析並驗證access token
		token, err := s.tokens.ParseAndValidate(tokenString)
		if err != nil {
			s.logger.Debug("Fail to parse and validate JWT", slog.String("op", op), slog.Any("error", err))
			respondError(c, http.StatusUnauthorized, "Unauthorized")
			return
		}
		userID, err := token.UserID()
		if err != nil {
			respondError(c, http.StatusUnauthorized, "Unauthorized")
			return
		}
		// 使用者可能已經刪除帳號
		var user models.User
		result := s.db.WithContext(c).Where("id = ?", userID).First(&user)
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			respondError(c, http.StatusUnauthorized, "Unauthorized")
			return
		}
		if result.Error != nil {
			s.logger.Error("Fail to load current user", slog.String("op", op), slog.Any("error", result.Error))
			respondError(c, http.StatusInternalServerError, "Internal server error")
			return
		}
		c.Set(contextKeyCurrentUser, &user)
		c.Next()
	}
}

func currentUser(c *gin.Context) *models.User {
	return c.MustGet(contextKeyCurrentUser).(*models.User)
}
