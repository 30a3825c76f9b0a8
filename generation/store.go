package generation

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"imagine/models"
)

// Store 負責生成請求的持久化與狀態轉換
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// WithTx 回傳在指定交易內操作的 Store
func (s *Store) WithTx(tx *gorm.DB) *Store {
	return &Store{db: tx}
}

// Create 建立一筆 pending 狀態的生成請求
func (s *Store) Create(ctx context.Context, userID uuid.UUID, prompt, externalRequestID string, arguments map[string]any) (*models.GenerationRequest, error) {
	const op = "Store.Create"
	if externalRequestID == "" {
		return nil, fmt.Errorf("[%s] Missing external request id, err=%w", op, ErrValidation)
	}
	request := &models.GenerationRequest{
		ExternalRequestID: externalRequestID,
		UserID:            userID,
		Prompt:            prompt,
		Status:            models.GenerationPending,
		Arguments:         datatypes.JSONMap(arguments),
	}
	if result := s.db.WithContext(ctx).Create(request); result.Error != nil {
		return nil, fmt.Errorf("[%s] Fail to create generation request, err=%w", op, errors.Join(ErrPersistence, result.Error))
	}
	return request, nil
}

// FindByExternalID 以外部服務的請求 ID 找回生成請求
func (s *Store) FindByExternalID(ctx context.Context, externalRequestID string) (*models.GenerationRequest, error) {
	const op = "Store.FindByExternalID"
	var request models.GenerationRequest
	result := s.db.WithContext(ctx).Where(&models.GenerationRequest{ExternalRequestID: externalRequestID}).First(&request)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, ErrRequestNotFound
	}
	if result.Error != nil {
		return nil, fmt.Errorf("[%s] Fail to find generation request, err=%w", op, errors.Join(ErrPersistence, result.Error))
	}
	return &request, nil
}

// FindForUser 取得屬於指定使用者的生成請求
func (s *Store) FindForUser(ctx context.Context, userID, id uuid.UUID) (*models.GenerationRequest, error) {
	const op = "Store.FindForUser"
	var request models.GenerationRequest
	result := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&request)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, ErrRequestNotFound
	}
	if result.Error != nil {
		return nil, fmt.Errorf("[%s] Fail to find generation request, err=%w", op, errors.Join(ErrPersistence, result.Error))
	}
	return &request, nil
}

// MarkCompleted 將 pending 的請求轉為 completed 並記錄結果圖片
func (s *Store) MarkCompleted(ctx context.Context, request *models.GenerationRequest, imageID uuid.UUID) error {
	const op = "Store.MarkCompleted"
	if err := s.transition(ctx, request, map[string]any{
		"status":          models.GenerationCompleted,
		"result_image_id": imageID,
	}); err != nil {
		return fmt.Errorf("[%s] %w", op, err)
	}
	request.Status = models.GenerationCompleted
	request.ResultImageID = &imageID
	return nil
}

// MarkFailed 將 pending 的請求轉為 failed
func (s *Store) MarkFailed(ctx context.Context, request *models.GenerationRequest) error {
	const op = "Store.MarkFailed"
	if err := s.transition(ctx, request, map[string]any{
		"status": models.GenerationFailed,
	}); err != nil {
		return fmt.Errorf("[%s] %w", op, err)
	}
	request.Status = models.GenerationFailed
	return nil
}

// transition 只在資料庫中的狀態仍為 pending 時才更新，
// 已結束的紀錄不會被覆寫
func (s *Store) transition(ctx context.Context, request *models.GenerationRequest, values map[string]any) error {
	if request.Status.IsTerminal() {
		return fmt.Errorf("request %s is already %s, err=%w", request.ID, request.Status, ErrInvalidTransition)
	}
	result := s.db.WithContext(ctx).
		Model(&models.GenerationRequest{}).
		Where("id = ? AND status = ?", request.ID, models.GenerationPending).
		Updates(values)
	if result.Error != nil {
		return fmt.Errorf("fail to update generation request, err=%w", errors.Join(ErrPersistence, result.Error))
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("request %s is no longer pending, err=%w", request.ID, ErrInvalidTransition)
	}
	return nil
}
