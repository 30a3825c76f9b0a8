package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"imagine/models"
)

type bridgeOptions struct {
	logger  *slog.Logger
	timeout time.Duration
}

type BridgeOption func(*bridgeOptions)

// WithBridgeLogger 設置日誌記錄器
func WithBridgeLogger(logger *slog.Logger) BridgeOption {
	return func(o *bridgeOptions) {
		o.logger = logger
	}
}

// WithBridgeTimeout 設置呼叫者最多等待外部結果的時間
func WithBridgeTimeout(d time.Duration) BridgeOption {
	return func(o *bridgeOptions) {
		o.timeout = d
	}
}

// Bridge 讓阻塞式的 HTTP handler 等待外部生成服務的結果
// 逾時只會停止等待，已送出的外部工作不會被取消
type Bridge struct {
	pool    *Pool
	db      *gorm.DB
	logger  *slog.Logger
	options bridgeOptions
}

func NewBridge(pool *Pool, db *gorm.DB, opts ...BridgeOption) *Bridge {
	// 默認選項
	options := bridgeOptions{
		logger:  slog.Default(),
		timeout: 15 * time.Second,
	}

	// 應用自定義選項
	for _, opt := range opts {
		opt(&options)
	}

	return &Bridge{
		pool:    pool,
		db:      db,
		logger:  options.logger.With(slog.String("caller", "Bridge")),
		options: options,
	}
}

// Generate 送出提示詞、等待結果，並將圖片歸屬給使用者
// 此流程不會建立 GenerationRequest，所有失敗都回傳已分類的錯誤
func (b *Bridge) Generate(ctx context.Context, userID uuid.UUID, prompt string) (*models.Image, error) {
	const op = "Bridge.Generate"
	image, outcome, err := b.generate(ctx, userID, prompt)
	logger := b.logger.With(slog.String("op", op), slog.String("user", userID.String()), slog.String("outcome", string(outcome)))
	if err != nil {
		logger.Error("Synchronous generation failed", slog.Any("error", err))
		return nil, fmt.Errorf("[%s] %w", op, err)
	}
	logger.Info("Synchronous generation succeeded", slog.String("image", image.ID.String()))
	return image, nil
}

func (b *Bridge) generate(ctx context.Context, userID uuid.UUID, prompt string) (*models.Image, Outcome, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, OutcomeRejected, fmt.Errorf("prompt is required, err=%w", ErrValidation)
	}
	job, err := b.pool.Submit(prompt)
	if err != nil {
		return nil, OutcomeExternalError, fmt.Errorf("fail to submit job, err=%w", errors.Join(ErrExternalService, err))
	}

	timer := time.NewTimer(b.options.timeout)
	defer timer.Stop()
	var result JobResult
	select {
	case result = <-job.Done():
	case <-timer.C:
		job.Abandon()
		return nil, OutcomeTimedOut, fmt.Errorf("no result after %s, err=%w", b.options.timeout, errors.Join(ErrExternalService, context.DeadlineExceeded))
	case <-ctx.Done():
		job.Abandon()
		return nil, OutcomeTimedOut, fmt.Errorf("caller gave up waiting, err=%w", errors.Join(ErrExternalService, ctx.Err()))
	}
	if result.Err != nil {
		return nil, OutcomeExternalError, fmt.Errorf("external call failed, err=%w", errors.Join(ErrExternalService, result.Err))
	}

	imageURL, ok := NormalizeImageURL(result.Result)
	if !ok {
		return nil, OutcomeExtractionFailed, fmt.Errorf("no image url in result, err=%w", ErrExternalService)
	}

	var image *models.Image
	if err := b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		image, err = CreateAttributedImage(tx, userID, imageURL, prompt)
		return err
	}); err != nil {
		return nil, OutcomePersistenceFailed, fmt.Errorf("fail to save generated image %s, err=%w", imageURL, errors.Join(ErrPersistence, err))
	}
	return image, OutcomeSucceeded, nil
}
