package api

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"imagine/adapters/mail"
	"imagine/adapters/oidc"
	"imagine/generation"
	"imagine/models"
)

const (
	testFrontendURL   = "http://localhost:3000"
	testPublicURL     = "https://api.example"
	testWebhookSecret = "webhook-secret"
	testAdminEmail    = "admin@example.com"
	testAdminPassword = "admin123"
)

type testEnv struct {
	server    *Server
	router    *gin.Engine
	db        *gorm.DB
	redis     *miniredis.Miniredis
	generator *generation.MockGenerator
	enqueuer  *generation.MockEnqueuer
	provider  *oidc.MockIProvider
	mailer    *mail.MockIMailer
}

type testOptions struct {
	withoutEnqueuer bool
	withoutOIDC     bool
}

func setupServer(t *testing.T, opts ...func(*testOptions)) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	var options testOptions
	for _, opt := range opts {
		opt(&options)
	}

	// 設置 miniredis
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	// 建立每個測試獨立的記憶體資料庫
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=on", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Discard,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(models.All()...))

	_, key, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	ctrl := gomock.NewController(t)
	env := &testEnv{
		db:        db,
		redis:     mr,
		generator: generation.NewMockGenerator(ctrl),
		enqueuer:  generation.NewMockEnqueuer(ctrl),
		provider:  oidc.NewMockIProvider(ctrl),
		mailer:    mail.NewMockIMailer(ctrl),
	}
	deps := Dependencies{
		DB:        db,
		Redis:     client,
		Generator: env.generator,
		Enqueuer:  env.enqueuer,
		OIDC:      env.provider,
		Mailer:    env.mailer,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	if options.withoutEnqueuer {
		deps.Enqueuer = nil
	}
	if options.withoutOIDC {
		deps.OIDC = nil
	}

	server, err := NewServerWithDependencies(ServerConfig{
		FrontendURL: testFrontendURL,
		PublicURL:   testPublicURL,
		Auth: AuthConfig{
			PrivateKey: key,
			Issuer:     "imagine",
			Audience:   "imagine-web",
		},
		Redis: RedisConfig{KeyPrefix: "test:"},
		Generation: GenerationConfig{
			WebhookSecret: testWebhookSecret,
			Workers:       2,
			SyncTimeout:   2 * time.Second,
		},
		Admin: AdminConfig{Email: testAdminEmail, Password: testAdminPassword},
	}, deps)
	require.NoError(t, err)
	require.NoError(t, server.Bootstrap(context.Background()))
	server.Start()
	t.Cleanup(server.Close)

	env.server = server
	env.router = server.Handler()
	return env
}

func withoutEnqueuer(o *testOptions) { o.withoutEnqueuer = true }

func withoutOIDC(o *testOptions) { o.withoutOIDC = true }

// do 送出 JSON 請求，body 為 nil 時不帶內容
func (env *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	return w
}

// signup 註冊新使用者並回傳 token 與使用者 ID
func (env *testEnv) signup(t *testing.T, email string) (string, uuid.UUID) {
	t.Helper()
	w := env.do(t, http.MethodPost, "/api/auth/signup", "", gin.H{
		"name":     "Tester",
		"email":    email,
		"password": "secret123",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		Token string       `json:"token"`
		User  userResponse `json:"user"`
	}
	decode(t, w, &resp)
	return resp.Token, resp.User.ID
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func decodeMap(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	decode(t, w, &m)
	return m
}

func falResult(url string) map[string]any {
	return map[string]any{
		"images": []any{map[string]any{"url": url}},
	}
}
