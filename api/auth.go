package api

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"imagine/adapters/oidc"
	redisAdapter "imagine/adapters/redis"
	"imagine/adapters/session"
	"imagine/models"
)

const (
	SESSION_KEY_REQUEST_STATE = "request_state"
	SESSION_KEY_REQUEST_NONCE = "request_nonce"
	SESSION_KEY_REDIRECT_URL  = "redirect_url"
)

type signupRequest struct {
	Name     string `json:"name" binding:"required,max=100"`
	Email    string `json:"email" binding:"required,email,max=100"`
	Password string `json:"password" binding:"required,min=6,max=72"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type googleRequest struct {
	Token string `json:"token" binding:"required"`
}

type resetPasswordRequest struct {
	Email string `json:"email" binding:"required"`
}

type resetPasswordConfirmRequest struct {
	Token       string `json:"token" binding:"required"`
	NewPassword string `json:"newPassword" binding:"required,min=6,max=72"`
}

// Create an account
// (POST /api/auth/signup)
func (s *Server) PostSignup(c *gin.Context) {
	const op = "PostSignup"
	var body signupRequest
	if !bindJSON(c, &body) {
		return
	}
	name := strings.TrimSpace(s.nameChecker.Sanitize(body.Name))
	if name == "" {
		respondError(c, http.StatusBadRequest, "Name, email, and password are required")
		return
	}
	email := strings.ToLower(strings.TrimSpace(body.Email))

	// 檢查信箱是否已被使用
	var count int64
	if result := s.db.WithContext(c).Model(&models.User{}).Where(&models.User{Email: email}).Count(&count); result.Error != nil {
		s.logger.Error("Fail to check email", slog.String("op", op), slog.Any("error", result.Error))
		respondError(c, http.StatusInternalServerError, "Failed to create user")
		return
	}
	if count > 0 {
		respondError(c, http.StatusConflict, "Email already in use")
		return
	}

	user := models.User{
		Name:      name,
		Email:     email,
		Role:      models.RoleUser,
		AvatarURL: models.DefaultAvatarURL,
	}
	if err := user.SetPassword(body.Password); err != nil {
		s.logger.Error("Fail to hash password", slog.String("op", op), slog.Any("error", err))
		respondError(c, http.StatusInternalServerError, "Failed to create user")
		return
	}
	err := s.createUserWithIdentity(c, &user, models.SSOInternal, email)
	// 同時註冊時由唯一索引擋下
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		respondError(c, http.StatusConflict, "Email already in use")
		return
	}
	if err != nil {
		s.logger.Error("Fail to create user", slog.String("op", op), slog.Any("error", err))
		respondError(c, http.StatusInternalServerError, "Failed to create user")
		return
	}
	s.respondWithToken(c, op, &user, "User created successfully")
}

// Login with email and password
// (POST /api/auth/login)
func (s *Server) PostLogin(c *gin.Context) {
	const op = "PostLogin"
	var body loginRequest
	if !bindJSON(c, &body) {
		return
	}
	var user models.User
	result := s.db.WithContext(c).Where(&models.User{Email: strings.ToLower(strings.TrimSpace(body.Email))}).First(&user)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		respondError(c, http.StatusUnauthorized, "Invalid email or password")
		return
	}
	if result.Error != nil {
		s.logger.Error("Fail to find user", slog.String("op", op), slog.Any("error", result.Error))
		respondError(c, http.StatusInternalServerError, "Failed to login")
		return
	}
	if !user.CheckPassword(body.Password) {
		respondError(c, http.StatusUnauthorized, "Invalid email or password")
		return
	}
	s.respondWithToken(c, op, &user, "Login successful")
}

// Login with a Google ID token obtained by the frontend
// (POST /api/auth/google)
func (s *Server) PostGoogle(c *gin.Context) {
	const op = "PostGoogle"
	if s.oidcProvider == nil {
		respondError(c, http.StatusNotFound, "Google login is not available")
		return
	}
	var body googleRequest
	if !bindJSON(c, &body) {
		return
	}
	idToken, err := s.oidcProvider.VerifyIDToken(c, body.Token)
	if err != nil {
		s.logger.Warn("Fail to verify Google token", slog.String("op", op), slog.Any("error", err))
		respondError(c, http.StatusUnauthorized, "Invalid Google token")
		return
	}
	user, err := s.findOrCreateGoogleUser(c, idToken)
	if errors.Is(err, errMissingEmail) {
		respondError(c, http.StatusUnauthorized, "Invalid Google token")
		return
	}
	if err != nil {
		s.logger.Error("Fail to link Google user", slog.String("op", op), slog.Any("error", err))
		respondError(c, http.StatusInternalServerError, "Failed to authenticate with Google")
		return
	}
	s.respondWithToken(c, op, user, "Google authentication successful")
}

// Obtain authentication url
// (GET /api/auth/sso/{provider}/login)
func (s *Server) GetSSOLogin(c *gin.Context) {
	const op = "GetSSOLogin"
	if c.Param("provider") != string(models.SSOGoogle) || s.oidcProvider == nil {
		respondError(c, http.StatusNotFound, "Resource not found")
		return
	}
	sess, err := session.GetSession(c)
	if err != nil {
		s.logger.Error("Fail to get session", slog.String("op", op), slog.Any("error", err))
		respondError(c, http.StatusInternalServerError, "Internal server error")
		return
	}
	state, err := generateID("st")
	if err != nil {
		s.logger.Error("Unable to generate state", slog.String("op", op), slog.Any("error", err))
		respondError(c, http.StatusInternalServerError, "Internal server error")
		return
	}
	nonce, err := generateID("n")
	if err != nil {
		s.logger.Error("Unable to generate nonce", slog.String("op", op), slog.Any("error", err))
		respondError(c, http.StatusInternalServerError, "Internal server error")
		return
	}
	sess.Set(SESSION_KEY_REQUEST_STATE, state)
	sess.Set(SESSION_KEY_REQUEST_NONCE, nonce)
	sess.Set(SESSION_KEY_REDIRECT_URL, s.safeRedirectURL(c.Query("redirect_url")))
	if err := sess.Save(); err != nil {
		s.logger.Error("Fail to save session", slog.String("op", op), slog.Any("error", err))
		respondError(c, http.StatusInternalServerError, "Internal server error")
		return
	}
	// 導向 sso server 的登入頁面
	c.Redirect(http.StatusFound, s.oidcProvider.AuthURL(state, nonce))
}

// Exchange authorization code
// (GET /api/auth/sso/{provider}/callback)
func (s *Server) GetSSOCallback(c *gin.Context) {
	const op = "GetSSOCallback"
	if c.Param("provider") != string(models.SSOGoogle) || s.oidcProvider == nil {
		respondError(c, http.StatusNotFound, "Resource not found")
		return
	}
	sess, err := session.GetSession(c)
	if err != nil {
		s.logger.Error("Fail to get session", slog.String("op", op), slog.Any("error", err))
		respondError(c, http.StatusInternalServerError, "Internal server error")
		return
	}
	// state 與 nonce 只能使用一次
	requestState := sess.Pop(SESSION_KEY_REQUEST_STATE)
	requestNonce := sess.Pop(SESSION_KEY_REQUEST_NONCE)
	redirectURL := sess.Pop(SESSION_KEY_REDIRECT_URL)
	if err := sess.Save(); err != nil {
		s.logger.Error("Fail to save session", slog.String("op", op), slog.Any("error", err))
		respondError(c, http.StatusInternalServerError, "Internal server error")
		return
	}

	// 驗證 callback 的參數和 login 時儲存在 session 的參數是否相同
	verifier := s.oidcProvider.NewExchangeVerifier(requestState, requestNonce)
	idToken, err := s.oidcProvider.Exchange(c, verifier, c.Query("code"), c.Query("state"))
	if errors.Is(err, oidc.ErrStateMismatch) || errors.Is(err, oidc.ErrNonceMismatch) {
		respondError(c, http.StatusBadRequest, "Invalid login request")
		return
	}
	if err != nil {
		s.logger.Error("Fail to exchange token", slog.String("op", op), slog.Any("error", err))
		respondError(c, http.StatusBadGateway, "Failed to authenticate with Google")
		return
	}

	// 關聯使用者資料，如果 identity 不存在會建立新的使用者
	user, err := s.findOrCreateGoogleUser(c, idToken)
	if errors.Is(err, errMissingEmail) {
		respondError(c, http.StatusBadRequest, "Google account has no email")
		return
	}
	if err != nil {
		s.logger.Error("Fail to link Google user", slog.String("op", op), slog.Any("error", err))
		respondError(c, http.StatusInternalServerError, "Failed to authenticate with Google")
		return
	}
	token, err := s.tokens.Issue(user)
	if err != nil {
		s.logger.Error("Fail to issue token", slog.String("op", op), slog.Any("error", err))
		respondError(c, http.StatusInternalServerError, "Internal server error")
		return
	}
	if redirectURL == "" {
		redirectURL = s.safeRedirectURL("")
	}
	c.Redirect(http.StatusFound, redirectURL+"#token="+token)
}

// Request a password reset mail
// (POST /api/auth/reset-password)
func (s *Server) PostResetPassword(c *gin.Context) {
	const op = "PostResetPassword"
	var body resetPasswordRequest
	if !bindJSON(c, &body) {
		return
	}
	var user models.User
	result := s.db.WithContext(c).Where(&models.User{Email: strings.ToLower(strings.TrimSpace(body.Email))}).First(&user)
	// 不透露信箱是否存在
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		respondOK(c, http.StatusOK, "If your email is registered, you will receive reset instructions", nil)
		return
	}
	if result.Error != nil {
		s.logger.Error("Fail to find user", slog.String("op", op), slog.Any("error", result.Error))
		respondError(c, http.StatusInternalServerError, "Failed to send reset email")
		return
	}

	token, err := s.resetTokens.Issue(c, user.ID)
	if err != nil {
		s.logger.Error("Fail to issue reset token", slog.String("op", op), slog.Any("error", err))
		respondError(c, http.StatusInternalServerError, "Failed to send reset email")
		return
	}
	link := strings.TrimRight(s.config.FrontendURL, "/") + "/reset-password-confirm?token=" + token
	if err := s.mailer.SendPasswordReset(c, user.Email, link); err != nil {
		s.logger.Error("Fail to send reset email", slog.String("op", op), slog.Any("error", err))
		respondError(c, http.StatusInternalServerError, "Failed to send reset email")
		return
	}
	respondOK(c, http.StatusOK, "If your email is registered, you will receive reset instructions", nil)
}

// Reset the password with a token from the reset mail
// (POST /api/auth/reset-password-confirm)
func (s *Server) PostResetPasswordConfirm(c *gin.Context) {
	const op = "PostResetPasswordConfirm"
	var body resetPasswordConfirmRequest
	if !bindJSON(c, &body) {
		return
	}
	userID, err := s.resetTokens.Consume(c, body.Token)
	if errors.Is(err, redisAdapter.ErrTokenNotFound) {
		respondError(c, http.StatusBadRequest, "Invalid or expired token")
		return
	}
	if err != nil {
		s.logger.Error("Fail to consume reset token", slog.String("op", op), slog.Any("error", err))
		respondError(c, http.StatusInternalServerError, "Failed to reset password")
		return
	}

	var user models.User
	result := s.db.WithContext(c).Where("id = ?", userID).First(&user)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		respondError(c, http.StatusNotFound, "User not found")
		return
	}
	if result.Error != nil {
		s.logger.Error("Fail to find user", slog.String("op", op), slog.Any("error", result.Error))
		respondError(c, http.StatusInternalServerError, "Failed to reset password")
		return
	}
	if err := user.SetPassword(body.NewPassword); err != nil {
		s.logger.Error("Fail to hash password", slog.String("op", op), slog.Any("error", err))
		respondError(c, http.StatusInternalServerError, "Failed to reset password")
		return
	}
	if result := s.db.WithContext(c).Model(&user).Update("password_hash", user.PasswordHash); result.Error != nil {
		s.logger.Error("Fail to update password", slog.String("op", op), slog.Any("error", result.Error))
		respondError(c, http.StatusInternalServerError, "Failed to reset password")
		return
	}
	s.logger.Info("Password reset", slog.String("op", op), slog.String("user", user.ID.String()))
	respondOK(c, http.StatusOK, "Password has been reset successfully", nil)
}

func (s *Server) respondWithToken(c *gin.Context, op string, user *models.User, message string) {
	token, err := s.tokens.Issue(user)
	if err != nil {
		s.logger.Error("Fail to issue token", slog.String("op", op), slog.Any("error", err))
		respondError(c, http.StatusInternalServerError, "Internal server error")
		return
	}
	respondOK(c, http.StatusOK, message, gin.H{
		"user":  newUserResponse(user),
		"token": token,
	})
}

var errMissingEmail = errors.New("id token has no email")

// findOrCreateGoogleUser 依序以 Google 身份、信箱找回使用者，都找不到時建立新使用者
func (s *Server) findOrCreateGoogleUser(ctx context.Context, idToken *oidc.IDToken) (*models.User, error) {
	if idToken.Email.Email == "" {
		return nil, errMissingEmail
	}
	var provider models.SsoProvider
	if result := s.db.WithContext(ctx).Where(&models.SsoProvider{Name: models.SSOGoogle}).First(&provider); result.Error != nil {
		return nil, fmt.Errorf("fail to find sso provider %s, err=%w", models.SSOGoogle, result.Error)
	}

	// 已連結的身份
	identity := models.UserIdentity{SsoProviderID: provider.ID, Identity: idToken.Sub}
	result := s.db.WithContext(ctx).Preload("User").Where(&identity).First(&identity)
	if result.Error == nil && identity.User != nil {
		return identity.User, nil
	}
	if result.Error != nil && !errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("fail to get user identity, err=%w", result.Error)
	}

	// 以信箱連結既有帳號
	email := strings.ToLower(idToken.Email.Email)
	var user models.User
	result = s.db.WithContext(ctx).Where(&models.User{Email: email}).First(&user)
	if result.Error == nil {
		link := models.UserIdentity{SsoProviderID: provider.ID, UserID: user.ID, Identity: idToken.Sub}
		if result := s.db.WithContext(ctx).Create(&link); result.Error != nil {
			return nil, fmt.Errorf("fail to link user identity, err=%w", result.Error)
		}
		return &user, nil
	}
	if !errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("fail to find user, err=%w", result.Error)
	}

	// 建立新的使用者，密碼隨機產生
	user = models.User{
		Name:      strings.TrimSpace(s.nameChecker.Sanitize(idToken.DisplayName())),
		Email:     email,
		Role:      models.RoleUser,
		AvatarURL: models.DefaultAvatarURL,
	}
	if user.Name == "" {
		user.Name = "Google User"
	}
	if strings.HasPrefix(idToken.Picture, "https://") {
		user.AvatarURL = idToken.Picture
	}
	if err := user.SetPassword(uuid.NewString()); err != nil {
		return nil, err
	}
	if err := s.createUserWithIdentity(ctx, &user, models.SSOGoogle, idToken.Sub); err != nil {
		return nil, fmt.Errorf("fail to create user, err=%w", err)
	}
	return &user, nil
}

// safeRedirectURL 只允許導回前端網址，避免開放式重新導向
func (s *Server) safeRedirectURL(redirectURL string) string {
	frontend := strings.TrimRight(s.config.FrontendURL, "/")
	if frontend == "" {
		if strings.HasPrefix(redirectURL, "/") && !strings.HasPrefix(redirectURL, "//") {
			return redirectURL
		}
		return "/"
	}
	if redirectURL == frontend || strings.HasPrefix(redirectURL, frontend+"/") {
		return redirectURL
	}
	return frontend + "/"
}

func generateID(prefix string) (string, error) {
	const op = "generateID"
	bytes := make([]byte, 20)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("[%s] Fail to generate unique id, err=%w", op, err)
	}
	return prefix + "_" + base64.URLEncoding.EncodeToString(bytes), nil
}
