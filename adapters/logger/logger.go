package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

type Config struct {
	// Encoding 為 json 或 console
	Encoding string
	Level    string
	// AddSource 在日誌中附上程式位置
	AddSource bool
}

// New 依設定建立 logger，並附上服務名稱
func New(app string, cfg Config) (*slog.Logger, error) {
	return NewWithWriter(os.Stderr, app, cfg)
}

func NewWithWriter(w io.Writer, app string, cfg Config) (*slog.Logger, error) {
	const op = "logger.New"
	if cfg.Level == "" {
		cfg.Level = "info"
	}
	if cfg.Encoding == "" {
		cfg.Encoding = "console"
	}

	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("[%s] %w", op, err)
	}
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: cfg.AddSource,
	}

	var handler slog.Handler
	switch cfg.Encoding {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	case "console":
		handler = slog.NewTextHandler(w, opts)
	default:
		return nil, fmt.Errorf("[%s] Encoding %s is not supported", op, cfg.Encoding)
	}
	return slog.New(handler).With(slog.String("app", app)), nil
}

// ParseLevel 將字串轉為 slog.Level
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("level %s is not supported", level)
	}
}
