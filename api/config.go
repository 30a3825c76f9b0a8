package api

import (
	"crypto/ed25519"
	"time"
)

type ServerConfig struct {
	// FrontendURL 同時用於 CORS 與信件、SSO 的導回網址
	FrontendURL string
	// PublicURL 是外部服務可以連到本服務的位址，用來組出 webhook 網址
	PublicURL string

	Auth       AuthConfig
	OIDC       OIDCConfig
	Session    SessionConfig
	S3         S3Config
	DB         DBConfig
	Redis      RedisConfig
	Generation GenerationConfig
	Admin      AdminConfig
	Mail       MailConfig
}

type AuthConfig struct {
	PrivateKey     ed25519.PrivateKey
	Issuer         string
	Audience       string
	ExpireDuration time.Duration
	// ResetTokenTTL 是重設密碼 token 的有效時間
	ResetTokenTTL time.Duration
}

type OIDCConfig struct {
	IssuerURL    string
	ClientID     string
	ClientSecret string
}

// Enabled 判斷是否設定了 Google 登入
func (c OIDCConfig) Enabled() bool {
	return c.ClientID != ""
}

type SessionConfig struct {
	KeyForCookie string
	CookieMaxAge time.Duration
	CookieSecure bool
}

type S3Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string
	Region          string
	Bucket          string
	PublicBaseURL   string
	// AvatarMaxBytes 是頭像解碼後的大小上限
	AvatarMaxBytes int64
}

func (c S3Config) Enabled() bool {
	return c.Bucket != ""
}

type DBConfig struct {
	User     string
	Password string
	Host     string
	Port     int
	Database string
	Schema   string
}

type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string

	StreamKeys RedisStreamKeys
}

type RedisStreamKeys struct {
	// Generation 是生成完成事件的 stream
	Generation string
}

type GenerationProvider string

const (
	ProviderFal GenerationProvider = "fal"
	ProviderArk GenerationProvider = "ark"
)

type GenerationConfig struct {
	Provider GenerationProvider

	FalKey     string
	FalModel   string
	FalBaseURL string

	ArkKey   string
	ArkModel string

	// WebhookSecret 為空時不驗證回呼簽章
	WebhookSecret string

	Workers     int
	SyncTimeout time.Duration
	JobTimeout  time.Duration
}

type AdminConfig struct {
	Email    string
	Password string
}

type MailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

func (c MailConfig) Enabled() bool {
	return c.Host != ""
}
