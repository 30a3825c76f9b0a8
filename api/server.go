package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"

	"imagine/adapters/ark"
	"imagine/adapters/fal"
	"imagine/adapters/mail"
	"imagine/adapters/oidc"
	redisAdapter "imagine/adapters/redis"
	internalS3 "imagine/adapters/s3"
	"imagine/adapters/session"
	"imagine/adapters/sse"
	"imagine/generation"
)

// Dependencies 是 Server 需要的外部資源
// NewServer 會依設定建立，測試時可以直接提供
type Dependencies struct {
	DB        *gorm.DB
	Redis     *redis.Client
	Generator generation.Generator
	// Enqueuer 為 nil 時不提供非同步生成
	Enqueuer generation.Enqueuer
	// OIDC 為 nil 時不提供 Google 登入
	OIDC oidc.IProvider
	// Avatars 為 nil 時不接受 data URL 頭像
	Avatars *internalS3.AvatarUploader
	Mailer  mail.IMailer
	Logger  *slog.Logger
}

type Server struct {
	db           *gorm.DB
	redisClient  *redis.Client
	tokens       *TokenIssuer
	pool         *generation.Pool
	bridge       *generation.Bridge
	completer    *generation.Completer
	submitter    *generation.AsyncSubmitter
	requests     *generation.Store
	publisher    *redisAdapter.EventPublisher
	subscriber   *redisAdapter.EventSubscriber
	hub          *sse.Hub
	resetTokens  redisAdapter.ITokenStore
	sessionStore session.IStore
	mailer       mail.IMailer
	oidcProvider oidc.IProvider
	avatars      *internalS3.AvatarUploader
	nameChecker  *bluemonday.Policy
	logger       *slog.Logger

	closeOnce sync.Once
	config    ServerConfig
}

func NewServer(ctx context.Context, config ServerConfig, logger *slog.Logger) (*Server, error) {
	const op = "NewServer"
	if logger == nil {
		logger = slog.Default()
	}

	// 初始化資料庫連線
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable", config.DB.User, config.DB.Password, config.DB.Host, config.DB.Port, config.DB.Database)
	gormConfig := &gorm.Config{TranslateError: true}
	if config.DB.Schema != "" {
		dsn += "&search_path=" + config.DB.Schema
		gormConfig.NamingStrategy = schema.NamingStrategy{
			TablePrefix: config.DB.Schema + ".",
		}
	}
	db, err := gorm.Open(postgres.Open(dsn), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to connect to database, err=%w", op, err)
	}

	// 初始化Redis連線
	redisClient := redis.NewClient(&redis.Options{
		Addr:     config.Redis.Addr,
		Password: config.Redis.Password,
		DB:       config.Redis.DB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("[%s] Fail to connect to redis, err=%w", op, err)
	}

	// 初始化生成服務
	deps := Dependencies{
		DB:     db,
		Redis:  redisClient,
		Logger: logger,
	}
	switch config.Generation.Provider {
	case ProviderFal, "":
		opts := []fal.Option{fal.WithLogger(logger)}
		if config.Generation.FalModel != "" {
			opts = append(opts, fal.WithModel(config.Generation.FalModel))
		}
		if config.Generation.FalBaseURL != "" {
			opts = append(opts, fal.WithBaseURL(config.Generation.FalBaseURL))
		}
		client, err := fal.NewClient(config.Generation.FalKey, opts...)
		if err != nil {
			return nil, fmt.Errorf("[%s] Fail to create fal client, err=%w", op, err)
		}
		deps.Generator = client
		deps.Enqueuer = client
	case ProviderArk:
		opts := []ark.Option{ark.WithLogger(logger)}
		if config.Generation.ArkModel != "" {
			opts = append(opts, ark.WithModel(config.Generation.ArkModel))
		}
		generator, err := ark.NewGenerator(config.Generation.ArkKey, opts...)
		if err != nil {
			return nil, fmt.Errorf("[%s] Fail to create ark generator, err=%w", op, err)
		}
		deps.Generator = generator
	default:
		return nil, fmt.Errorf("[%s] Unknown generation provider %s", op, config.Generation.Provider)
	}

	// 初始化OIDC提供者
	if config.OIDC.Enabled() {
		provider, err := oidc.NewProvider(ctx, config.OIDC.IssuerURL, config.OIDC.ClientID, config.OIDC.ClientSecret, config.PublicURL+"/api/auth/sso/google/callback")
		if err != nil {
			return nil, fmt.Errorf("[%s] Fail to initial OIDC provider, err=%w", op, err)
		}
		deps.OIDC = provider
	}

	// 初始化S3客戶端
	if config.S3.Enabled() {
		s3Client, err := internalS3.NewClient(ctx, config.S3.Endpoint, config.S3.Region, config.S3.AccessKeyID, config.S3.SecretAccessKey)
		if err != nil {
			return nil, fmt.Errorf("[%s] Fail to create S3 client, err=%w", op, err)
		}
		s3Operator, err := internalS3.NewS3Operator(s3Client, config.S3.Bucket, config.S3.PublicBaseURL)
		if err != nil {
			return nil, fmt.Errorf("[%s] Fail to create S3 operator, err=%w", op, err)
		}
		deps.Avatars = internalS3.NewAvatarUploader(s3Operator, withDefaults(config).S3.AvatarMaxBytes)
	}

	// 初始化寄信服務
	if config.Mail.Enabled() {
		mailer, err := mail.NewSMTPMailer(mail.SMTPConfig{
			Host:     config.Mail.Host,
			Port:     config.Mail.Port,
			Username: config.Mail.Username,
			Password: config.Mail.Password,
			From:     config.Mail.From,
		}, withDefaults(config).Auth.ResetTokenTTL.String(), logger)
		if err != nil {
			return nil, fmt.Errorf("[%s] Fail to create mailer, err=%w", op, err)
		}
		deps.Mailer = mailer
	}

	return NewServerWithDependencies(config, deps)
}

func NewServerWithDependencies(config ServerConfig, deps Dependencies) (*Server, error) {
	const op = "NewServerWithDependencies"
	if deps.DB == nil || deps.Redis == nil || deps.Generator == nil {
		return nil, fmt.Errorf("[%s] db, redis and generator are required", op)
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Mailer == nil {
		deps.Mailer = mail.NewLogMailer(logger)
	}
	config = withDefaults(config)
	if err := InitTrans(); err != nil {
		return nil, fmt.Errorf("[%s] Fail to initial validator translations, err=%w", op, err)
	}

	tokens, err := NewTokenIssuer(config.Auth)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create token issuer, err=%w", op, err)
	}

	// 初始化同步生成的工作池
	poolOpts := []generation.PoolOption{generation.WithPoolLogger(logger)}
	if config.Generation.Workers > 0 {
		poolOpts = append(poolOpts, generation.WithPoolWorkers(config.Generation.Workers))
	}
	if config.Generation.JobTimeout > 0 {
		poolOpts = append(poolOpts, generation.WithPoolJobTimeout(config.Generation.JobTimeout))
	}
	pool, err := generation.NewPool(deps.Generator, poolOpts...)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create generation pool, err=%w", op, err)
	}
	bridgeOpts := []generation.BridgeOption{generation.WithBridgeLogger(logger)}
	if config.Generation.SyncTimeout > 0 {
		bridgeOpts = append(bridgeOpts, generation.WithBridgeTimeout(config.Generation.SyncTimeout))
	}

	// 初始化生成事件的 stream
	streamKey := config.Redis.StreamKeys.Generation
	if streamKey == "" {
		streamKey = config.Redis.KeyPrefix + "generation-events"
	}
	publisher, err := redisAdapter.NewEventPublisher(deps.Redis, streamKey, redisAdapter.WithPublisherLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create event publisher, err=%w", op, err)
	}
	subscriber, err := redisAdapter.NewEventSubscriber(deps.Redis, streamKey, redisAdapter.WithSubscriberLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create event subscriber, err=%w", op, err)
	}
	hub := sse.NewHub(subscriber.Subscribe(), sse.WithHubLogger(logger))

	requests := generation.NewStore(deps.DB)
	var submitter *generation.AsyncSubmitter
	if deps.Enqueuer != nil {
		submitter = generation.NewAsyncSubmitter(deps.Enqueuer, requests, strings.TrimRight(config.PublicURL, "/")+"/api/webhooks/fal-ai", logger)
	}
	if config.Generation.WebhookSecret == "" {
		logger.Warn("Webhook secret is not configured, callback signatures will not be verified")
	}

	return &Server{
		db:           deps.DB,
		redisClient:  deps.Redis,
		tokens:       tokens,
		pool:         pool,
		bridge:       generation.NewBridge(pool, deps.DB, bridgeOpts...),
		completer:    generation.NewCompleter(deps.DB, publisher, logger),
		submitter:    submitter,
		requests:     requests,
		publisher:    publisher,
		subscriber:   subscriber,
		hub:          hub,
		resetTokens:  redisAdapter.NewTokenStore(deps.Redis, config.Redis.KeyPrefix+"reset-token:", config.Auth.ResetTokenTTL),
		sessionStore: redisAdapter.NewSessionStore(deps.Redis, redisAdapter.WithSessionPrefix(config.Redis.KeyPrefix+"session:"), redisAdapter.WithSessionTTL(config.Session.CookieMaxAge)),
		mailer:       deps.Mailer,
		oidcProvider: deps.OIDC,
		avatars:      deps.Avatars,
		nameChecker:  bluemonday.StrictPolicy(),
		logger:       logger.With(slog.String("caller", "Server")),
		config:       config,
	}, nil
}

func (s *Server) Start() {
	// 啟動工作池
	s.pool.Start()
	// 啟動事件發布
	s.publisher.Start()
	// 啟動事件訂閱與分派
	s.subscriber.Start()
	s.hub.Start()
}

// CloseStreams 結束所有 SSE 連線，讓 http server 可以在關閉時等到請求完成
func (s *Server) CloseStreams() {
	s.subscriber.Close()
	s.hub.Close()
}

func (s *Server) Close() {
	s.closeOnce.Do(func() {
		// 停止接受新的同步生成
		s.pool.Close()
		// 送出尚未發布的事件
		s.publisher.Close()
		// 先關閉訂閱者讓 hub 的來源通道關閉，再關閉 hub
		s.subscriber.Close()
		s.hub.Close()
		if err := s.redisClient.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
			s.logger.Warn("Fail to close redis client", slog.Any("error", err))
		}
		if sqlDB, err := s.db.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				s.logger.Warn("Fail to close database", slog.Any("error", err))
			}
		}
	})
}

// withDefaults 補上未設定的時間與大小限制
func withDefaults(config ServerConfig) ServerConfig {
	if config.Auth.ExpireDuration <= 0 {
		config.Auth.ExpireDuration = 7 * 24 * time.Hour
	}
	if config.Auth.ResetTokenTTL <= 0 {
		config.Auth.ResetTokenTTL = 24 * time.Hour
	}
	if config.Session.KeyForCookie == "" {
		config.Session.KeyForCookie = "imagine_session"
	}
	if config.Session.CookieMaxAge <= 0 {
		config.Session.CookieMaxAge = 10 * time.Minute
	}
	if config.S3.AvatarMaxBytes <= 0 {
		config.S3.AvatarMaxBytes = 5 << 20
	}
	return config
}
