package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"imagine/models"
)

// WebhookPayload 是外部生成服務回呼的內容
// 有些版本的回呼以 payload 取代 result
type WebhookPayload struct {
	RequestID string `json:"request_id"`
	Result    any    `json:"result"`
	Payload   any    `json:"payload"`
	Error     any    `json:"error"`
}

// HasError 判斷回呼是否帶有非空的錯誤
func (p WebhookPayload) HasError() bool {
	switch v := p.Error.(type) {
	case nil:
		return false
	case string:
		return v != ""
	case map[string]any:
		return len(v) > 0
	case []any:
		return len(v) > 0
	case bool:
		return v
	case float64:
		return v != 0
	default:
		return true
	}
}

func (p WebhookPayload) result() any {
	if p.Result != nil {
		return p.Result
	}
	return p.Payload
}

// Completer 依 webhook 回呼完成先前送出的生成請求
type Completer struct {
	db       *gorm.DB
	store    *Store
	notifier Notifier
	logger   *slog.Logger
}

func NewCompleter(db *gorm.DB, notifier Notifier, logger *slog.Logger) *Completer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Completer{
		db:       db,
		store:    NewStore(db),
		notifier: notifier,
		logger:   logger.With(slog.String("caller", "Completer")),
	}
}

// Complete 處理一次回呼
// 找不到請求時不會寫入任何資料；請求已結束時視為重複回呼，不做任何變更
func (c *Completer) Complete(ctx context.Context, payload WebhookPayload) (Outcome, error) {
	const op = "Completer.Complete"
	logger := c.logger.With(slog.String("op", op), slog.String("requestID", payload.RequestID))

	if payload.RequestID == "" {
		return OutcomeRejected, fmt.Errorf("[%s] Missing request_id, err=%w", op, ErrValidation)
	}
	request, err := c.store.FindByExternalID(ctx, payload.RequestID)
	if errors.Is(err, ErrRequestNotFound) {
		logger.Warn("Drop callback for unknown request")
		return OutcomeNotFound, err
	}
	if err != nil {
		return OutcomeError, fmt.Errorf("[%s] %w", op, err)
	}
	if request.Status.IsTerminal() {
		logger.Info("Ignore callback for finalized request", slog.String("status", string(request.Status)))
		return OutcomeAlreadyFinalized, nil
	}

	// 外部服務回報失敗
	if payload.HasError() {
		logger.Warn("External service reported an error", slog.Any("detail", payload.Error))
		return c.fail(ctx, logger, request, OutcomeFailureRecorded, nil)
	}

	imageURL, ok := NormalizeImageURL(payload.result())
	if !ok {
		logger.Error("Could not extract image url from result")
		return c.fail(ctx, logger, request, OutcomeExtractionFailed, fmt.Errorf("[%s] No image url in result, err=%w", op, ErrExternalService))
	}

	// 圖片、歸屬與狀態轉換必須在同一個交易內完成
	err = c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		image, err := CreateAttributedImage(tx, request.UserID, imageURL, request.Prompt)
		if err != nil {
			return errors.Join(ErrPersistence, err)
		}
		return c.store.WithTx(tx).MarkCompleted(ctx, request, image.ID)
	})
	if errors.Is(err, ErrInvalidTransition) {
		logger.Info("Request was finalized concurrently")
		return OutcomeAlreadyFinalized, nil
	}
	if err != nil {
		// 交易已回滾，還原記憶體中的狀態後盡力標記為失敗
		request.Status = models.GenerationPending
		request.ResultImageID = nil
		logger.Error("Fail to complete request", slog.Any("error", err))
		if markErr := c.store.MarkFailed(context.WithoutCancel(ctx), request); markErr != nil {
			logger.Error("Fail to mark request failed", slog.Any("error", markErr))
		}
		return OutcomeError, fmt.Errorf("[%s] %w", op, err)
	}

	logger.Info("Generation request completed", slog.String("image", request.ResultImageID.String()))
	c.notify(ctx, logger, newEvent(request, imageURL))
	return OutcomeCompleted, nil
}

func (c *Completer) fail(ctx context.Context, logger *slog.Logger, request *models.GenerationRequest, outcome Outcome, cause error) (Outcome, error) {
	if err := c.store.MarkFailed(ctx, request); err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			return OutcomeAlreadyFinalized, nil
		}
		return OutcomeError, err
	}
	c.notify(ctx, logger, newEvent(request, ""))
	return outcome, cause
}

func (c *Completer) notify(ctx context.Context, logger *slog.Logger, event Event) {
	if c.notifier == nil {
		return
	}
	if err := c.notifier.NotifyGeneration(ctx, event); err != nil {
		logger.Warn("Fail to publish generation event", slog.Any("error", err))
	}
}
