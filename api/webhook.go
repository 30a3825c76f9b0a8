package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"imagine/generation"
)

const (
	HEADER_FAL_SIGNATURE = "X-Fal-Signature"

	maxWebhookBodyBytes = 1 << 20
)

// Receive the completion callback of an asynchronous generation request
// (POST /api/webhooks/fal-ai)
func (s *Server) PostFalWebhook(c *gin.Context) {
	const op = "PostFalWebhook"
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBodyBytes+1))
	if err != nil {
		respondError(c, http.StatusBadRequest, "Invalid webhook body")
		return
	}
	if len(body) > maxWebhookBodyBytes {
		respondError(c, http.StatusRequestEntityTooLarge, "Webhook body is too large")
		return
	}

	// 設定了密鑰時一定要驗證簽章
	if secret := s.config.Generation.WebhookSecret; secret != "" {
		if !generation.VerifySignature(secret, body, c.GetHeader(HEADER_FAL_SIGNATURE)) {
			s.logger.Warn("Reject webhook with invalid signature", slog.String("op", op))
			respondError(c, http.StatusUnauthorized, "Invalid webhook signature")
			return
		}
	}

	var payload generation.WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid webhook body")
		return
	}

	outcome, err := s.completer.Complete(c, payload)
	if err != nil && !errors.Is(err, generation.ErrRequestNotFound) && !errors.Is(err, generation.ErrValidation) {
		s.logger.Error("Fail to process webhook", slog.String("op", op), slog.String("outcome", string(outcome)), slog.Any("error", err))
	}
	status, message := webhookResponse(outcome)
	if status >= http.StatusBadRequest {
		respondError(c, status, message)
		return
	}
	respondOK(c, status, message, nil)
}

// webhookResponse 將處理結果轉為回應，非 2xx 的回應會讓外部服務重送
func webhookResponse(outcome generation.Outcome) (int, string) {
	switch outcome {
	case generation.OutcomeCompleted:
		return http.StatusOK, "Image created successfully"
	case generation.OutcomeFailureRecorded:
		return http.StatusOK, "Error status recorded"
	case generation.OutcomeAlreadyFinalized:
		return http.StatusOK, "Request already finalized"
	case generation.OutcomeRejected:
		return http.StatusBadRequest, "Missing request_id"
	case generation.OutcomeNotFound:
		return http.StatusNotFound, "Image request not found"
	case generation.OutcomeExtractionFailed:
		return http.StatusInternalServerError, "No image URL found in the result"
	default:
		return http.StatusInternalServerError, "Error processing webhook"
	}
}
