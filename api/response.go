package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"imagine/models"
)

type userResponse struct {
	ID        uuid.UUID   `json:"id"`
	Name      string      `json:"name"`
	Email     string      `json:"email"`
	AvatarURL string      `json:"avatar_url"`
	Role      models.Role `json:"role"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

func newUserResponse(user *models.User) userResponse {
	return userResponse{
		ID:        user.ID,
		Name:      user.Name,
		Email:     user.Email,
		AvatarURL: user.AvatarURL,
		Role:      user.Role,
		CreatedAt: user.CreatedAt,
		UpdatedAt: user.UpdatedAt,
	}
}

type imageResponse struct {
	ID        uuid.UUID `json:"id"`
	ImageURL  string    `json:"image_url"`
	Prompt    string    `json:"prompt"`
	IsLoved   bool      `json:"is_loved"`
	IsSaved   bool      `json:"is_saved"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func newImageResponse(userImage *models.UserImage) imageResponse {
	return imageResponse{
		ID:        userImage.Image.ID,
		ImageURL:  userImage.Image.ImageURL,
		Prompt:    userImage.Image.Prompt,
		IsLoved:   userImage.IsLoved,
		IsSaved:   userImage.IsSaved,
		CreatedAt: userImage.Image.CreatedAt,
		UpdatedAt: userImage.Image.UpdatedAt,
	}
}

type generationRequestResponse struct {
	ID        uuid.UUID               `json:"id"`
	Prompt    string                  `json:"prompt"`
	Status    models.GenerationStatus `json:"status"`
	ImageID   *uuid.UUID              `json:"imageId,omitempty"`
	ImageURL  string                  `json:"imageUrl,omitempty"`
	CreatedAt time.Time               `json:"created_at"`
	UpdatedAt time.Time               `json:"updated_at"`
}

func newGenerationRequestResponse(request *models.GenerationRequest) generationRequestResponse {
	response := generationRequestResponse{
		ID:        request.ID,
		Prompt:    request.Prompt,
		Status:    request.Status,
		ImageID:   request.ResultImageID,
		CreatedAt: request.CreatedAt,
		UpdatedAt: request.UpdatedAt,
	}
	if request.ResultImage != nil {
		response.ImageURL = request.ResultImage.ImageURL
	}
	return response
}

// respondError 回傳統一格式的錯誤，訊息只使用固定的文字
func respondError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"success": false,
		"message": message,
	})
}

func respondOK(c *gin.Context, status int, message string, fields gin.H) {
	body := gin.H{"success": true}
	if message != "" {
		body["message"] = message
	}
	for k, v := range fields {
		body[k] = v
	}
	c.JSON(status, body)
}
