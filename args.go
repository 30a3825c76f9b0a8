package main

import (
	"crypto/ed25519"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"imagine/adapters/logger"
	"imagine/api"
)

func ParseArgs() (Args, error) {
	// 開發環境從 .env 讀取，檔案不存在時忽略
	_ = godotenv.Load()

	// server config
	pflag.String("server-url", "0.0.0.0:8080", "")
	pflag.String("frontend-url", "", "frontend origin used for CORS and redirects")
	pflag.String("public-url", "", "externally reachable url of this service")
	pflag.Duration("shutdown-timeout", 10*time.Second, "")

	// log config
	pflag.String("log-encoding", "console", "json or console")
	pflag.String("log-level", "info", "")
	pflag.Bool("log-add-source", false, "")

	// auth config
	pflag.String("auth-private-key", "", "base64 encoded ed25519 seed")
	pflag.String("auth-private-key-file", "", "PEM encoded ed25519 private key")
	pflag.String("auth-issuer", "imagine", "")
	pflag.String("auth-audience", "imagine-web", "")
	pflag.Duration("auth-expire-duration", 7*24*time.Hour, "")
	pflag.Duration("auth-reset-token-ttl", 24*time.Hour, "")

	// oidc config
	pflag.String("oidc-issuer-url", "https://accounts.google.com", "")
	pflag.String("oidc-client-id", "", "")
	pflag.String("oidc-client-secret", "", "")

	// session config
	pflag.String("session-cookie-key", "imagine_session", "")
	pflag.Duration("session-cookie-max-age", 10*time.Minute, "")
	pflag.Bool("session-cookie-secure", true, "")

	// s3 config
	pflag.String("s3-endpoint", "", "")
	pflag.String("s3-region", "us-east-1", "")
	pflag.String("s3-bucket", "", "")
	pflag.String("s3-public-base-url", "", "")
	pflag.String("s3-access-key-id", "", "")
	pflag.String("s3-secret-access-key", "", "")
	pflag.Int64("s3-avatar-max-bytes", 5<<20, "")

	// db config
	pflag.String("db-user", "", "")
	pflag.String("db-password", "", "")
	pflag.String("db-host", "", "")
	pflag.Int("db-port", 5432, "")
	pflag.String("db-database", "", "")
	pflag.String("db-schema", "", "")

	// redis config
	pflag.String("redis-addr", "", "")
	pflag.String("redis-password", "", "")
	pflag.Int("redis-db", 15, "")
	pflag.String("redis-key-prefix", "imagine:", "")

	// redis stream keys
	pflag.String("redis-stream-key-for-generation", "imagine-generation-events", "")

	// generation config
	pflag.String("generation-provider", string(api.ProviderFal), "fal or ark")
	pflag.String("fal-key", "", "")
	pflag.String("fal-model", "", "")
	pflag.String("fal-base-url", "", "")
	pflag.String("ark-key", "", "")
	pflag.String("ark-model", "", "")
	pflag.String("webhook-secret", "", "shared secret of the generation callback signature")
	pflag.Int("generation-workers", 10, "")
	pflag.Duration("generation-sync-timeout", 15*time.Second, "")
	pflag.Duration("generation-job-timeout", 5*time.Minute, "")

	// admin config
	pflag.String("admin-email", "", "")
	pflag.String("admin-password", "", "")

	// mail config
	pflag.String("smtp-host", "", "")
	pflag.Int("smtp-port", 587, "")
	pflag.String("smtp-username", "", "")
	pflag.String("smtp-password", "", "")
	pflag.String("smtp-from", "", "")

	// bind pflag to viper
	pflag.Parse()
	if err := viper.BindPFlags(pflag.CommandLine); err != nil {
		return Args{}, err
	}
	viper.AutomaticEnv()
	viper.SetEnvPrefix("IMAGINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	privateKey, err := loadPrivateKey(viper.GetString("auth-private-key"), viper.GetString("auth-private-key-file"))
	if err != nil {
		return Args{}, err
	}

	// initial arguments
	return Args{
		ServerURL:       viper.GetString("server-url"),
		ShutdownTimeout: viper.GetDuration("shutdown-timeout"),
		Log: logger.Config{
			Encoding:  viper.GetString("log-encoding"),
			Level:     viper.GetString("log-level"),
			AddSource: viper.GetBool("log-add-source"),
		},
		ServerConfig: api.ServerConfig{
			FrontendURL: viper.GetString("frontend-url"),
			PublicURL:   viper.GetString("public-url"),
			Auth: api.AuthConfig{
				PrivateKey:     privateKey,
				Issuer:         viper.GetString("auth-issuer"),
				Audience:       viper.GetString("auth-audience"),
				ExpireDuration: viper.GetDuration("auth-expire-duration"),
				ResetTokenTTL:  viper.GetDuration("auth-reset-token-ttl"),
			},
			OIDC: api.OIDCConfig{
				IssuerURL:    viper.GetString("oidc-issuer-url"),
				ClientID:     viper.GetString("oidc-client-id"),
				ClientSecret: viper.GetString("oidc-client-secret"),
			},
			Session: api.SessionConfig{
				KeyForCookie: viper.GetString("session-cookie-key"),
				CookieMaxAge: viper.GetDuration("session-cookie-max-age"),
				CookieSecure: viper.GetBool("session-cookie-secure"),
			},
			S3: api.S3Config{
				Endpoint:        viper.GetString("s3-endpoint"),
				Region:          viper.GetString("s3-region"),
				Bucket:          viper.GetString("s3-bucket"),
				PublicBaseURL:   viper.GetString("s3-public-base-url"),
				AccessKeyID:     viper.GetString("s3-access-key-id"),
				SecretAccessKey: viper.GetString("s3-secret-access-key"),
				AvatarMaxBytes:  viper.GetInt64("s3-avatar-max-bytes"),
			},
			DB: api.DBConfig{
				User:     viper.GetString("db-user"),
				Password: viper.GetString("db-password"),
				Host:     viper.GetString("db-host"),
				Port:     viper.GetInt("db-port"),
				Database: viper.GetString("db-database"),
				Schema:   viper.GetString("db-schema"),
			},
			Redis: api.RedisConfig{
				Addr:      viper.GetString("redis-addr"),
				Password:  viper.GetString("redis-password"),
				DB:        viper.GetInt("redis-db"),
				KeyPrefix: viper.GetString("redis-key-prefix"),
				StreamKeys: api.RedisStreamKeys{
					Generation: viper.GetString("redis-stream-key-for-generation"),
				},
			},
			Generation: api.GenerationConfig{
				Provider:      api.GenerationProvider(viper.GetString("generation-provider")),
				FalKey:        viper.GetString("fal-key"),
				FalModel:      viper.GetString("fal-model"),
				FalBaseURL:    viper.GetString("fal-base-url"),
				ArkKey:        viper.GetString("ark-key"),
				ArkModel:      viper.GetString("ark-model"),
				WebhookSecret: viper.GetString("webhook-secret"),
				Workers:       viper.GetInt("generation-workers"),
				SyncTimeout:   viper.GetDuration("generation-sync-timeout"),
				JobTimeout:    viper.GetDuration("generation-job-timeout"),
			},
			Admin: api.AdminConfig{
				Email:    viper.GetString("admin-email"),
				Password: viper.GetString("admin-password"),
			},
			Mail: api.MailConfig{
				Host:     viper.GetString("smtp-host"),
				Port:     viper.GetInt("smtp-port"),
				Username: viper.GetString("smtp-username"),
				Password: viper.GetString("smtp-password"),
				From:     viper.GetString("smtp-from"),
			},
		},
	}, nil
}

type Args struct {
	ServerURL       string
	ShutdownTimeout time.Duration
	Log             logger.Config
	ServerConfig    api.ServerConfig
}

// Validate 回傳所有缺少或不合法的設定
func (args Args) Validate() error {
	var errs []error
	config := args.ServerConfig
	if args.ServerURL == "" {
		errs = append(errs, errors.New("server-url is required"))
	}
	if len(config.Auth.PrivateKey) != ed25519.PrivateKeySize {
		errs = append(errs, errors.New("auth-private-key or auth-private-key-file is required"))
	}
	if config.DB.Host == "" || config.DB.Database == "" {
		errs = append(errs, errors.New("db-host and db-database are required"))
	}
	if config.Redis.Addr == "" {
		errs = append(errs, errors.New("redis-addr is required"))
	}
	switch config.Generation.Provider {
	case api.ProviderFal:
		if config.Generation.FalKey == "" {
			errs = append(errs, errors.New("fal-key is required"))
		}
		// 外部服務需要可以連到 webhook
		if config.PublicURL == "" {
			errs = append(errs, errors.New("public-url is required"))
		}
	case api.ProviderArk:
		if config.Generation.ArkKey == "" {
			errs = append(errs, errors.New("ark-key is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("generation-provider %q is not supported", config.Generation.Provider))
	}
	if config.OIDC.Enabled() && config.OIDC.ClientSecret == "" {
		errs = append(errs, errors.New("oidc-client-secret is required when oidc-client-id is set"))
	}
	if (config.Admin.Email == "") != (config.Admin.Password == "") {
		errs = append(errs, errors.New("admin-email and admin-password must be set together"))
	}
	if config.Mail.Enabled() && config.Mail.From == "" {
		errs = append(errs, errors.New("smtp-from is required when smtp-host is set"))
	}
	return errors.Join(errs...)
}

// loadPrivateKey 讀取 base64 編碼的種子或 PEM 檔案中的 ed25519 私鑰
func loadPrivateKey(seed, file string) (ed25519.PrivateKey, error) {
	const op = "loadPrivateKey"
	switch {
	case seed != "":
		raw, err := base64.StdEncoding.DecodeString(seed)
		if err != nil {
			return nil, fmt.Errorf("[%s] Fail to decode seed, err=%w", op, err)
		}
		if len(raw) != ed25519.SeedSize {
			return nil, fmt.Errorf("[%s] Seed must be %d bytes", op, ed25519.SeedSize)
		}
		return ed25519.NewKeyFromSeed(raw), nil
	case file != "":
		raw, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("[%s] Fail to read key file, err=%w", op, err)
		}
		block, _ := pem.Decode(raw)
		if block == nil {
			return nil, fmt.Errorf("[%s] No PEM block in %s", op, file)
		}
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("[%s] Fail to parse private key, err=%w", op, err)
		}
		privateKey, ok := key.(ed25519.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("[%s] Key type %T is not ed25519", op, key)
		}
		return privateKey, nil
	default:
		return nil, nil
	}
}
