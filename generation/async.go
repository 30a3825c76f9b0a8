package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"imagine/models"
)

// Submission 是外部佇列接受工作後回傳的資訊
type Submission struct {
	RequestID string
	Arguments map[string]any
}

// AsyncSubmitter 將提示詞送進外部佇列並建立 pending 的生成請求，
// 結果由 Completer 在 webhook 回呼時寫入
type AsyncSubmitter struct {
	enqueuer   Enqueuer
	store      *Store
	webhookURL string
	logger     *slog.Logger
}

func NewAsyncSubmitter(enqueuer Enqueuer, store *Store, webhookURL string, logger *slog.Logger) *AsyncSubmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &AsyncSubmitter{
		enqueuer:   enqueuer,
		store:      store,
		webhookURL: webhookURL,
		logger:     logger.With(slog.String("caller", "AsyncSubmitter")),
	}
}

func (s *AsyncSubmitter) Submit(ctx context.Context, userID uuid.UUID, prompt string) (*models.GenerationRequest, error) {
	const op = "AsyncSubmitter.Submit"
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, fmt.Errorf("[%s] Prompt is required, err=%w", op, ErrValidation)
	}
	submission, err := s.enqueuer.Enqueue(ctx, prompt, s.webhookURL)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to enqueue prompt, err=%w", op, errors.Join(ErrExternalService, err))
	}
	// NOTE: 回呼可能比這筆紀錄更早抵達，此時會回應 404 並由外部服務重送
	request, err := s.store.Create(ctx, userID, prompt, submission.RequestID, submission.Arguments)
	if err != nil {
		s.logger.Error("Enqueued job has no request record", slog.String("requestID", submission.RequestID), slog.Any("error", err))
		return nil, fmt.Errorf("[%s] %w", op, err)
	}
	s.logger.Info("Generation request submitted", slog.String("requestID", submission.RequestID), slog.String("user", userID.String()))
	return request, nil
}
