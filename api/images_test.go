package api

import (
	"errors"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"imagine/generation"
	"imagine/models"
)

type listImagesResponse struct {
	Images []imageResponse `json:"images"`
}

func (env *testEnv) generate(t *testing.T, token, prompt, url string) uuid.UUID {
	t.Helper()
	env.generator.EXPECT().Generate(gomock.Any(), prompt).Return(falResult(url), nil)
	w := env.do(t, http.MethodPost, "/api/images/generate", token, gin.H{"prompt": prompt})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		Message  string    `json:"message"`
		ImageURL string    `json:"imageUrl"`
		ImageID  uuid.UUID `json:"imageId"`
	}
	decode(t, w, &resp)
	require.Equal(t, "Image generated successfully", resp.Message)
	require.Equal(t, url, resp.ImageURL)
	return resp.ImageID
}

func (env *testEnv) listImages(t *testing.T, token, filter string) []imageResponse {
	t.Helper()
	path := "/api/images"
	if filter != "" {
		path += "?filter=" + filter
	}
	w := env.do(t, http.MethodGet, path, token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp listImagesResponse
	decode(t, w, &resp)
	return resp.Images
}

func TestPostGenerate(t *testing.T) {
	env := setupServer(t)
	token, userID := env.signup(t, "judy@example.com")

	t.Run("生成成功並歸屬於使用者", func(t *testing.T) {
		imageID := env.generate(t, token, "a red fox", "https://fal.media/fox.png")

		var image models.Image
		require.NoError(t, env.db.First(&image, "id = ?", imageID).Error)
		assert.Equal(t, "a red fox", image.Prompt)
		var userImage models.UserImage
		require.NoError(t, env.db.First(&userImage, "image_id = ?", imageID).Error)
		assert.Equal(t, userID, userImage.UserID)
		assert.False(t, userImage.IsLoved)
		assert.False(t, userImage.IsSaved)
	})

	t.Run("生成服務失敗時不透露原因", func(t *testing.T) {
		env.generator.EXPECT().Generate(gomock.Any(), "broken").Return(nil, errors.New("quota exceeded for key sk-123"))
		w := env.do(t, http.MethodPost, "/api/images/generate", token, gin.H{"prompt": "broken"})
		require.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, "Failed to generate image", decodeMap(t, w)["message"])
	})

	t.Run("結果沒有圖片網址", func(t *testing.T) {
		env.generator.EXPECT().Generate(gomock.Any(), "empty").Return(map[string]any{"images": []any{}}, nil)
		w := env.do(t, http.MethodPost, "/api/images/generate", token, gin.H{"prompt": "empty"})
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})

	testCases := []struct {
		name string
		body gin.H
	}{
		{name: "缺少提示詞", body: gin.H{}},
		{name: "提示詞只有空白", body: gin.H{"prompt": "   "}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/api/images/generate", token, tc.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}

	// 失敗的生成不會留下圖片
	assert.Len(t, env.listImages(t, token, ""), 1)
}

func TestImageCollection(t *testing.T) {
	env := setupServer(t)
	token, _ := env.signup(t, "ken@example.com")
	otherToken, _ := env.signup(t, "leo@example.com")

	first := env.generate(t, token, "first", "https://fal.media/1.png")
	second := env.generate(t, token, "second", "https://fal.media/2.png")

	images := env.listImages(t, token, "")
	require.Len(t, images, 2)
	ids := []uuid.UUID{images[0].ID, images[1].ID}
	assert.ElementsMatch(t, []uuid.UUID{first, second}, ids)
	assert.Empty(t, env.listImages(t, otherToken, ""))

	t.Run("收藏與喜愛", func(t *testing.T) {
		w := env.do(t, http.MethodPut, "/api/images/"+first.String()+"/love", token, gin.H{"isLoved": true})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, "Image loved successfully", decodeMap(t, w)["message"])
		w = env.do(t, http.MethodPut, "/api/images/"+second.String()+"/save", token, gin.H{"isSaved": true})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, "Image saved successfully", decodeMap(t, w)["message"])

		loved := env.listImages(t, token, filterLoved)
		require.Len(t, loved, 1)
		assert.Equal(t, first, loved[0].ID)
		assert.True(t, loved[0].IsLoved)
		saved := env.listImages(t, token, filterSaved)
		require.Len(t, saved, 1)
		assert.Equal(t, second, saved[0].ID)
		assert.Len(t, env.listImages(t, token, filterAll), 2)

		w = env.do(t, http.MethodPut, "/api/images/"+first.String()+"/love", token, gin.H{"isLoved": false})
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "Image unloved successfully", decodeMap(t, w)["message"])
		assert.Empty(t, env.listImages(t, token, filterLoved))
	})

	t.Run("不合法的篩選條件", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/images?filter=deleted", token, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("取得單張圖片", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/images/"+second.String(), token, nil)
		require.Equal(t, http.StatusOK, w.Code)
		var resp struct {
			Image imageResponse `json:"image"`
		}
		decode(t, w, &resp)
		assert.Equal(t, "https://fal.media/2.png", resp.Image.ImageURL)
		assert.Equal(t, "second", resp.Image.Prompt)
		assert.True(t, resp.Image.IsSaved)
	})

	t.Run("其他使用者無法存取", func(t *testing.T) {
		for _, req := range []struct {
			method string
			path   string
			body   any
		}{
			{http.MethodGet, "/api/images/" + first.String(), nil},
			{http.MethodPut, "/api/images/" + first.String() + "/love", gin.H{"isLoved": true}},
			{http.MethodPut, "/api/images/" + first.String() + "/save", gin.H{"isSaved": true}},
			{http.MethodDelete, "/api/images/" + first.String(), nil},
			{http.MethodGet, "/api/images/not-a-uuid", nil},
		} {
			w := env.do(t, req.method, req.path, otherToken, req.body)
			assert.Equal(t, http.StatusNotFound, w.Code, req.path)
			assert.Equal(t, "Image not found or you do not have access", decodeMap(t, w)["message"])
		}
	})

	t.Run("刪除圖片", func(t *testing.T) {
		w := env.do(t, http.MethodDelete, "/api/images/"+first.String(), token, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, "Image deleted successfully", decodeMap(t, w)["message"])

		images := env.listImages(t, token, "")
		require.Len(t, images, 1)
		assert.Equal(t, second, images[0].ID)

		var count int64
		require.NoError(t, env.db.Model(&models.Image{}).Where("id = ?", first).Count(&count).Error)
		assert.Zero(t, count)
		w = env.do(t, http.MethodGet, "/api/images/"+first.String(), token, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestPostGenerateAsync(t *testing.T) {
	t.Run("未設定外部佇列", func(t *testing.T) {
		env := setupServer(t, withoutEnqueuer)
		token, _ := env.signup(t, "mia@example.com")
		w := env.do(t, http.MethodPost, "/api/images/generate/async", token, gin.H{"prompt": "a cat"})
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})

	t.Run("外部佇列失敗", func(t *testing.T) {
		env := setupServer(t)
		token, _ := env.signup(t, "nina@example.com")
		env.enqueuer.EXPECT().Enqueue(gomock.Any(), "a cat", gomock.Any()).Return(generation.Submission{}, errors.New("503"))
		w := env.do(t, http.MethodPost, "/api/images/generate/async", token, gin.H{"prompt": "a cat"})
		assert.Equal(t, http.StatusInternalServerError, w.Code)

		var count int64
		require.NoError(t, env.db.Model(&models.GenerationRequest{}).Count(&count).Error)
		assert.Zero(t, count)
	})
}

// submitAsync 送出非同步請求並回傳請求 ID
func (env *testEnv) submitAsync(t *testing.T, token, prompt, externalID string) uuid.UUID {
	t.Helper()
	env.enqueuer.EXPECT().
		Enqueue(gomock.Any(), prompt, testPublicURL+"/api/webhooks/fal-ai").
		Return(generation.Submission{RequestID: externalID, Arguments: map[string]any{"prompt": prompt}}, nil)
	w := env.do(t, http.MethodPost, "/api/images/generate/async", token, gin.H{"prompt": prompt})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	var resp struct {
		RequestID uuid.UUID               `json:"requestId"`
		Status    models.GenerationStatus `json:"status"`
	}
	decode(t, w, &resp)
	require.Equal(t, models.GenerationPending, resp.Status)
	return resp.RequestID
}

func (env *testEnv) getRequest(t *testing.T, token string, requestID uuid.UUID) generationRequestResponse {
	t.Helper()
	w := env.do(t, http.MethodGet, "/api/images/requests/"+requestID.String(), token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		Request generationRequestResponse `json:"request"`
	}
	decode(t, w, &resp)
	return resp.Request
}

func TestAsyncGenerationLifecycle(t *testing.T) {
	env := setupServer(t)
	token, _ := env.signup(t, "olga@example.com")
	otherToken, _ := env.signup(t, "paul@example.com")

	requestID := env.submitAsync(t, token, "a blue whale", "fal-req-1")
	request := env.getRequest(t, token, requestID)
	assert.Equal(t, models.GenerationPending, request.Status)
	assert.Nil(t, request.ImageID)

	// 其他使用者看不到這筆請求
	w := env.do(t, http.MethodGet, "/api/images/requests/"+requestID.String(), otherToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.postWebhook(t, `{"request_id":"fal-req-1","payload":{"images":[{"url":"https://fal.media/whale.png"}]}}`, true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Image created successfully", decodeMap(t, w)["message"])

	request = env.getRequest(t, token, requestID)
	assert.Equal(t, models.GenerationCompleted, request.Status)
	require.NotNil(t, request.ImageID)
	assert.Equal(t, "https://fal.media/whale.png", request.ImageURL)

	images := env.listImages(t, token, "")
	require.Len(t, images, 1)
	assert.Equal(t, *request.ImageID, images[0].ID)
	assert.Equal(t, "a blue whale", images[0].Prompt)

	// 重複的回呼不會建立第二張圖片
	w = env.postWebhook(t, `{"request_id":"fal-req-1","payload":{"images":[{"url":"https://fal.media/other.png"}]}}`, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Request already finalized", decodeMap(t, w)["message"])
	assert.Len(t, env.listImages(t, token, ""), 1)

	t.Run("失敗的回呼", func(t *testing.T) {
		requestID := env.submitAsync(t, token, "a storm", "fal-req-2")
		w := env.postWebhook(t, `{"request_id":"fal-req-2","error":"NSFW content detected"}`, true)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, "Error status recorded", decodeMap(t, w)["message"])

		request := env.getRequest(t, token, requestID)
		assert.Equal(t, models.GenerationFailed, request.Status)
		assert.Nil(t, request.ImageID)
		assert.Len(t, env.listImages(t, token, ""), 1)
	})

	t.Run("刪除圖片時一併刪除請求", func(t *testing.T) {
		w := env.do(t, http.MethodDelete, "/api/images/"+request.ImageID.String(), token, nil)
		require.Equal(t, http.StatusOK, w.Code)
		w = env.do(t, http.MethodGet, "/api/images/requests/"+requestID.String(), token, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}
