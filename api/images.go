package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"gorm.io/gorm"

	"imagine/adapters/sse"
	"imagine/generation"
	"imagine/models"
)

const (
	filterAll   = "all"
	filterLoved = "loved"
	filterSaved = "saved"
)

type listImagesQuery struct {
	Filter string `form:"filter" binding:"omitempty,oneof=all loved saved"`
}

type loveRequest struct {
	IsLoved bool `json:"isLoved"`
}

type saveRequest struct {
	IsSaved bool `json:"isSaved"`
}

type generateRequest struct {
	Prompt string `json:"prompt" binding:"required,max=2000"`
}

// List images of the current user
// (GET /api/images?filter=all|loved|saved)
func (s *Server) GetImages(c *gin.Context) {
	const op = "GetImages"
	user := currentUser(c)
	var query listImagesQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		respondError(c, http.StatusBadRequest, bindingMessage(err))
		return
	}

	// 建立查詢
	tx := s.db.WithContext(c).
		Select("user_images.*").
		Preload("Image").
		Joins("JOIN images ON images.id = user_images.image_id").
		Where("user_images.user_id = ?", user.ID).
		Order("images.created_at DESC")
	switch query.Filter {
	case filterLoved:
		tx = tx.Where("user_images.is_loved = ?", true)
	case filterSaved:
		tx = tx.Where("user_images.is_saved = ?", true)
	}
	var userImages []models.UserImage
	if result := tx.Find(&userImages); result.Error != nil {
		s.logger.Error("Fail to list images", slog.String("op", op), slog.Any("error", result.Error))
		respondError(c, http.StatusInternalServerError, "Failed to list images")
		return
	}

	images := lo.FilterMap(userImages, func(userImage models.UserImage, _ int) (imageResponse, bool) {
		if userImage.Image == nil {
			return imageResponse{}, false
		}
		return newImageResponse(&userImage), true
	})
	respondOK(c, http.StatusOK, "", gin.H{"images": images})
}

// Get an image of the current user
// (GET /api/images/{imageID})
func (s *Server) GetImage(c *gin.Context) {
	userImage, ok := s.findUserImage(c, "GetImage")
	if !ok {
		return
	}
	respondOK(c, http.StatusOK, "", gin.H{"image": newImageResponse(userImage)})
}

// Delete an image
// (DELETE /api/images/{imageID})
func (s *Server) DeleteImage(c *gin.Context) {
	const op = "DeleteImage"
	userImage, ok := s.findUserImage(c, op)
	if !ok {
		return
	}
	// 歸屬紀錄與圖片在同一個交易中刪除，生成請求由外鍵串聯刪除
	err := s.db.WithContext(c).Transaction(func(tx *gorm.DB) error {
		if result := tx.Where("image_id = ?", userImage.ImageID).Delete(&models.UserImage{}); result.Error != nil {
			return fmt.Errorf("fail to delete user images, err=%w", result.Error)
		}
		if result := tx.Delete(userImage.Image); result.Error != nil {
			return fmt.Errorf("fail to delete image, err=%w", result.Error)
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Fail to delete image", slog.String("op", op), slog.Any("error", err))
		respondError(c, http.StatusInternalServerError, "Failed to delete image")
		return
	}
	respondOK(c, http.StatusOK, "Image deleted successfully", nil)
}

// Love or unlove an image
// (PUT /api/images/{imageID}/love)
func (s *Server) PutImageLove(c *gin.Context) {
	const op = "PutImageLove"
	var body loveRequest
	if !bindJSON(c, &body) {
		return
	}
	userImage, ok := s.findUserImage(c, op)
	if !ok {
		return
	}
	if result := s.db.WithContext(c).Model(userImage).Update("is_loved", body.IsLoved); result.Error != nil {
		s.logger.Error("Fail to update image", slog.String("op", op), slog.Any("error", result.Error))
		respondError(c, http.StatusInternalServerError, "Failed to update image")
		return
	}
	message := "Image loved successfully"
	if !body.IsLoved {
		message = "Image unloved successfully"
	}
	respondOK(c, http.StatusOK, message, nil)
}

// Save or unsave an image
// (PUT /api/images/{imageID}/save)
func (s *Server) PutImageSave(c *gin.Context) {
	const op = "PutImageSave"
	var body saveRequest
	if !bindJSON(c, &body) {
		return
	}
	userImage, ok := s.findUserImage(c, op)
	if !ok {
		return
	}
	if result := s.db.WithContext(c).Model(userImage).Update("is_saved", body.IsSaved); result.Error != nil {
		s.logger.Error("Fail to update image", slog.String("op", op), slog.Any("error", result.Error))
		respondError(c, http.StatusInternalServerError, "Failed to update image")
		return
	}
	message := "Image saved successfully"
	if !body.IsSaved {
		message = "Image unsaved successfully"
	}
	respondOK(c, http.StatusOK, message, nil)
}

// Generate an image and wait for the result
// (POST /api/images/generate)
func (s *Server) PostGenerate(c *gin.Context) {
	var body generateRequest
	if !bindJSON(c, &body) {
		return
	}
	image, err := s.bridge.Generate(c, currentUser(c).ID, body.Prompt)
	if errors.Is(err, generation.ErrValidation) {
		respondError(c, http.StatusBadRequest, "Prompt is required")
		return
	}
	// 失敗原因只記錄在日誌中
	if err != nil {
		respondError(c, http.StatusInternalServerError, "Failed to generate image")
		return
	}
	respondOK(c, http.StatusOK, "Image generated successfully", gin.H{
		"imageUrl": image.ImageURL,
		"imageId":  image.ID,
	})
}

// Submit a prompt and receive the result through the webhook
// (POST /api/images/generate/async)
func (s *Server) PostGenerateAsync(c *gin.Context) {
	const op = "PostGenerateAsync"
	if s.submitter == nil {
		respondError(c, http.StatusServiceUnavailable, "Asynchronous generation is not available")
		return
	}
	var body generateRequest
	if !bindJSON(c, &body) {
		return
	}
	request, err := s.submitter.Submit(c, currentUser(c).ID, body.Prompt)
	if errors.Is(err, generation.ErrValidation) {
		respondError(c, http.StatusBadRequest, "Prompt is required")
		return
	}
	if err != nil {
		s.logger.Error("Fail to submit generation request", slog.String("op", op), slog.Any("error", err))
		respondError(c, http.StatusInternalServerError, "Failed to generate image")
		return
	}
	respondOK(c, http.StatusAccepted, "Image generation started", gin.H{
		"requestId": request.ID,
		"status":    request.Status,
	})
}

// Get the status of an asynchronous generation request
// (GET /api/images/requests/{requestID})
func (s *Server) GetGenerationRequest(c *gin.Context) {
	const op = "GetGenerationRequest"
	requestID, err := uuid.Parse(c.Param("requestID"))
	if err != nil {
		respondError(c, http.StatusNotFound, "Generation request not found")
		return
	}
	request, err := s.requests.FindForUser(c, currentUser(c).ID, requestID)
	if errors.Is(err, generation.ErrRequestNotFound) {
		respondError(c, http.StatusNotFound, "Generation request not found")
		return
	}
	if err != nil {
		s.logger.Error("Fail to find generation request", slog.String("op", op), slog.Any("error", err))
		respondError(c, http.StatusInternalServerError, "Failed to get generation request")
		return
	}
	if request.ResultImageID != nil {
		var image models.Image
		if result := s.db.WithContext(c).Where("id = ?", *request.ResultImageID).First(&image); result.Error == nil {
			request.ResultImage = &image
		}
	}
	respondOK(c, http.StatusOK, "", gin.H{"request": newGenerationRequestResponse(request)})
}

// Stream generation results of the current user
// (GET /api/images/events)
func (s *Server) GetImageEvents(c *gin.Context) {
	const op = "GetImageEvents"
	// 30秒沒有事件就發送一個註解行，確保瀏覽器和代理不會斷開連線
	err := sse.Serve(c, s.hub, currentUser(c).ID, "generation", 30*time.Second)
	if errors.Is(err, sse.ErrHubClosed) {
		respondError(c, http.StatusServiceUnavailable, "Server is shutting down")
		return
	}
	if err != nil {
		s.logger.Error("Fail to serve events", slog.String("op", op), slog.Any("error", err))
	}
}

// findUserImage 取得目前使用者擁有的圖片，找不到時直接回應 404
func (s *Server) findUserImage(c *gin.Context, op string) (*models.UserImage, bool) {
	imageID, err := uuid.Parse(c.Param("imageID"))
	if err != nil {
		respondError(c, http.StatusNotFound, "Image not found or you do not have access")
		return nil, false
	}
	var userImage models.UserImage
	result := s.db.WithContext(c).
		Preload("Image").
		Where("user_id = ? AND image_id = ?", currentUser(c).ID, imageID).
		First(&userImage)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) || (result.Error == nil && userImage.Image == nil) {
		respondError(c, http.StatusNotFound, "Image not found or you do not have access")
		return nil, false
	}
	if result.Error != nil {
		s.logger.Error("Fail to find image", slog.String("op", op), slog.Any("error", result.Error))
		respondError(c, http.StatusInternalServerError, "Internal server error")
		return nil, false
	}
	return &userImage, true
}
