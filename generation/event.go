package generation

import (
	"time"

	"github.com/google/uuid"

	"imagine/models"
)

// Event 描述一筆生成請求的最終結果，會透過 Redis Stream 推送給前端
type Event struct {
	RequestID         uuid.UUID               `msgpack:"request_id" json:"requestId"`
	ExternalRequestID string                  `msgpack:"external_request_id" json:"-"`
	UserID            uuid.UUID               `msgpack:"user_id" json:"-"`
	Status            models.GenerationStatus `msgpack:"status" json:"status"`
	ImageID           *uuid.UUID              `msgpack:"image_id" json:"imageId,omitempty"`
	ImageURL          string                  `msgpack:"image_url" json:"imageUrl,omitempty"`
	OccurredAt        time.Time               `msgpack:"occurred_at" json:"occurredAt"`
}

func newEvent(request *models.GenerationRequest, imageURL string) Event {
	return Event{
		RequestID:         request.ID,
		ExternalRequestID: request.ExternalRequestID,
		UserID:            request.UserID,
		Status:            request.Status,
		ImageID:           request.ResultImageID,
		ImageURL:          imageURL,
		OccurredAt:        time.Now(),
	}
}
