package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const DefaultSessionKeyForContext = "imagine-session-context"

var ErrSessionNotFound = errors.New("session not found")

// MiddlewareOptions 包含所有 session middleware 的設定選項
type MiddlewareOptions struct {
	sessionKeyForCookie  string
	sessionKeyForContext string
	cookieMaxAge         time.Duration
	cookiePath           string
	cookieDomain         string
	cookieSecure         bool
	cookieSameSite       http.SameSite
}

type MiddlewareOption func(*MiddlewareOptions)

// WithSessionKeyForCookie 設定 session 在 cookie 中的 key
func WithSessionKeyForCookie(key string) MiddlewareOption {
	return func(options *MiddlewareOptions) {
		options.sessionKeyForCookie = key
	}
}

// WithSessionKeyForContext 設定 session 在 context 中的 key
func WithSessionKeyForContext(key string) MiddlewareOption {
	return func(options *MiddlewareOptions) {
		options.sessionKeyForContext = key
	}
}

// WithCookieMaxAge 設定 cookie 的過期時間
func WithCookieMaxAge(maxAge time.Duration) MiddlewareOption {
	return func(options *MiddlewareOptions) {
		options.cookieMaxAge = maxAge
	}
}

// WithCookiePath 設定 cookie 的路徑
func WithCookiePath(path string) MiddlewareOption {
	return func(options *MiddlewareOptions) {
		options.cookiePath = path
	}
}

// WithCookieDomain 設定 cookie 的域名
func WithCookieDomain(domain string) MiddlewareOption {
	return func(options *MiddlewareOptions) {
		options.cookieDomain = domain
	}
}

// WithCookieSecure 設定是否只在 HTTPS 連線中傳送 cookie
func WithCookieSecure(secure bool) MiddlewareOption {
	return func(options *MiddlewareOptions) {
		options.cookieSecure = secure
	}
}

// WithCookieSameSite 設定 cookie 的 SameSite 屬性
func WithCookieSameSite(sameSite http.SameSite) MiddlewareOption {
	return func(options *MiddlewareOptions) {
		options.cookieSameSite = sameSite
	}
}

// GinMiddleware 為每個請求準備 session
// cookie 必須在 handler 寫出回應之前設定
func GinMiddleware(store IStore, opts ...MiddlewareOption) gin.HandlerFunc {
	// 默認選項
	options := MiddlewareOptions{
		sessionKeyForCookie:  "imagine_session",
		sessionKeyForContext: DefaultSessionKeyForContext,
		cookieMaxAge:         time.Hour,
		cookiePath:           "/",
		cookieSecure:         true,
		// SSO 回呼是跨站導向，Strict 會讓 cookie 遺失
		cookieSameSite: http.SameSiteLaxMode,
	}

	// 應用自定義選項
	for _, opt := range opts {
		opt(&options)
	}

	return func(c *gin.Context) {
		sessionID, err := c.Cookie(options.sessionKeyForCookie)
		if err != nil || uuid.Validate(sessionID) != nil {
			sessionID = uuid.NewString()
		}

		c.SetSameSite(options.cookieSameSite)
		c.SetCookie(
			options.sessionKeyForCookie,
			sessionID,
			int(options.cookieMaxAge/time.Second),
			options.cookiePath,
			options.cookieDomain,
			options.cookieSecure,
			true,
		)
		c.Set(options.sessionKeyForContext, NewSession(c.Request.Context(), sessionID, store))
		c.Next()
	}
}

// GetSession 從 context 中取得已載入的 session
func GetSession(ctx context.Context, opts ...MiddlewareOption) (ISession, error) {
	const op = "session.GetSession"
	options := MiddlewareOptions{
		sessionKeyForContext: DefaultSessionKeyForContext,
	}
	for _, opt := range opts {
		opt(&options)
	}

	v := ctx.Value(options.sessionKeyForContext)
	if v == nil {
		return nil, ErrSessionNotFound
	}
	session, ok := v.(ISession)
	if !ok {
		return nil, fmt.Errorf("[%s] Invalid session type %T in context", op, v)
	}
	if err := session.Load(); err != nil {
		return nil, fmt.Errorf("[%s] %w", op, err)
	}
	return session, nil
}
