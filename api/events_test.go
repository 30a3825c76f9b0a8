package api

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imagine/generation"
	"imagine/models"
)

func TestGetImageEvents(t *testing.T) {
	env := setupServer(t)
	token, userID := env.signup(t, "rita@example.com")
	_, otherID := env.signup(t, "sam@example.com")

	ts := httptest.NewServer(env.router)
	t.Cleanup(ts.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/images/events", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	requestID := uuid.New()
	imageID := uuid.New()
	// 訂閱者開始讀取 stream 前發布的事件會遺失，持續發布直到收到為止
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(50 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				_ = env.server.publisher.NotifyGeneration(context.Background(), generation.Event{
					RequestID: uuid.New(),
					UserID:    otherID,
					Status:    models.GenerationFailed,
				})
				_ = env.server.publisher.NotifyGeneration(context.Background(), generation.Event{
					RequestID: requestID,
					UserID:    userID,
					Status:    models.GenerationCompleted,
					ImageID:   &imageID,
					ImageURL:  "https://fal.media/event.png",
				})
			}
		}
	}()

	reader := bufio.NewReader(resp.Body)
	var eventLine, dataLine string
	for dataLine == "" {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "event:"):
			eventLine = line
		case strings.HasPrefix(line, "data:"):
			dataLine = line
		}
	}
	assert.Equal(t, "event:generation", eventLine)
	// 只會收到自己的事件
	assert.Contains(t, dataLine, requestID.String())
	assert.Contains(t, dataLine, "https://fal.media/event.png")
	assert.Contains(t, dataLine, `"status":"completed"`)
	assert.NotContains(t, dataLine, otherID.String())
}

func TestGetImageEventsRequiresAuth(t *testing.T) {
	env := setupServer(t)
	w := env.do(t, http.MethodGet, "/api/images/events", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
