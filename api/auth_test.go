package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"imagine/adapters/oidc"
	"imagine/models"
)

func TestSignupAndLogin(t *testing.T) {
	env := setupServer(t)

	// 註冊
	w := env.do(t, http.MethodPost, "/api/auth/signup", "", gin.H{
		"name":     "<b>Alice</b>",
		"email":    "Alice@Example.com",
		"password": "secret123",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var signup struct {
		Success bool         `json:"success"`
		Message string       `json:"message"`
		Token   string       `json:"token"`
		User    userResponse `json:"user"`
	}
	decode(t, w, &signup)
	assert.True(t, signup.Success)
	assert.Equal(t, "User created successfully", signup.Message)
	assert.NotEmpty(t, signup.Token)
	assert.Equal(t, "Alice", signup.User.Name)
	assert.Equal(t, "alice@example.com", signup.User.Email)
	assert.Equal(t, models.RoleUser, signup.User.Role)
	assert.Equal(t, models.DefaultAvatarURL, signup.User.AvatarURL)

	// 註冊後同時建立內部身份
	var identities int64
	require.NoError(t, env.db.Model(&models.UserIdentity{}).Where("user_id = ?", signup.User.ID).Count(&identities).Error)
	assert.EqualValues(t, 1, identities)

	testCases := []struct {
		name    string
		path    string
		body    gin.H
		status  int
		message string
	}{
		{
			name:    "重複的信箱",
			path:    "/api/auth/signup",
			body:    gin.H{"name": "Other", "email": "alice@example.com", "password": "secret123"},
			status:  http.StatusConflict,
			message: "Email already in use",
		},
		{
			name:    "不合法的信箱",
			path:    "/api/auth/signup",
			body:    gin.H{"name": "Other", "email": "not-an-email", "password": "secret123"},
			status:  http.StatusBadRequest,
			message: "email must be a valid email address",
		},
		{
			name:    "缺少密碼",
			path:    "/api/auth/signup",
			body:    gin.H{"name": "Other", "email": "other@example.com"},
			status:  http.StatusBadRequest,
			message: "password is a required field",
		},
		{
			name:    "名稱只有HTML標籤",
			path:    "/api/auth/signup",
			body:    gin.H{"name": "<script></script>", "email": "other@example.com", "password": "secret123"},
			status:  http.StatusBadRequest,
			message: "Name, email, and password are required",
		},
		{
			name:    "密碼錯誤",
			path:    "/api/auth/login",
			body:    gin.H{"email": "alice@example.com", "password": "wrong-password"},
			status:  http.StatusUnauthorized,
			message: "Invalid email or password",
		},
		{
			name:    "信箱不存在時不透露細節",
			path:    "/api/auth/login",
			body:    gin.H{"email": "nobody@example.com", "password": "secret123"},
			status:  http.StatusUnauthorized,
			message: "Invalid email or password",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, tc.path, "", tc.body)
			require.Equal(t, tc.status, w.Code, w.Body.String())
			body := decodeMap(t, w)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, tc.message, body["message"])
		})
	}

	t.Run("登入成功", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/auth/login", "", gin.H{
			"email":    "ALICE@example.com",
			"password": "secret123",
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var login struct {
			Token string       `json:"token"`
			User  userResponse `json:"user"`
		}
		decode(t, w, &login)
		assert.Equal(t, signup.User.ID, login.User.ID)

		// 取得的 token 可以存取受保護的資源
		w = env.do(t, http.MethodGet, "/api/user/profile", login.Token, nil)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestAuthMiddleware(t *testing.T) {
	env := setupServer(t)
	token, userID := env.signup(t, "bob@example.com")

	testCases := []struct {
		name   string
		header string
	}{
		{name: "沒有Authorization", header: ""},
		{name: "不是Bearer", header: "Basic " + token},
		{name: "無效的token", header: "Bearer not-a-token"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/user/profile", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			env.router.ServeHTTP(w, req)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Equal(t, false, decodeMap(t, w)["success"])
		})
	}

	t.Run("使用者已不存在", func(t *testing.T) {
		require.NoError(t, env.db.Where("user_id = ?", userID).Delete(&models.UserIdentity{}).Error)
		require.NoError(t, env.db.Delete(&models.User{}, "id = ?", userID).Error)
		w := env.do(t, http.MethodGet, "/api/user/profile", token, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestPostGoogle(t *testing.T) {
	t.Run("未設定Google登入", func(t *testing.T) {
		env := setupServer(t, withoutOIDC)
		w := env.do(t, http.MethodPost, "/api/auth/google", "", gin.H{"token": "raw"})
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("無效的token", func(t *testing.T) {
		env := setupServer(t)
		env.provider.EXPECT().VerifyIDToken(gomock.Any(), "bad").Return(nil, errors.New("expired"))
		w := env.do(t, http.MethodPost, "/api/auth/google", "", gin.H{"token": "bad"})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "Invalid Google token", decodeMap(t, w)["message"])
	})

	t.Run("建立新使用者後以身份找回", func(t *testing.T) {
		env := setupServer(t)
		idToken := &oidc.IDToken{
			OpenID:  oidc.OpenID{Sub: "google-1"},
			Email:   oidc.Email{Email: "Carol@Gmail.com", EmailVerified: true},
			Profile: oidc.Profile{Name: "Carol", Picture: "https://lh3.example/carol.png"},
		}
		env.provider.EXPECT().VerifyIDToken(gomock.Any(), "raw").Return(idToken, nil).Times(2)

		var first, second struct {
			User userResponse `json:"user"`
		}
		w := env.do(t, http.MethodPost, "/api/auth/google", "", gin.H{"token": "raw"})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		decode(t, w, &first)
		assert.Equal(t, "carol@gmail.com", first.User.Email)
		assert.Equal(t, "Carol", first.User.Name)
		assert.Equal(t, "https://lh3.example/carol.png", first.User.AvatarURL)

		w = env.do(t, http.MethodPost, "/api/auth/google", "", gin.H{"token": "raw"})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		decode(t, w, &second)
		assert.Equal(t, first.User.ID, second.User.ID)

		var users int64
		require.NoError(t, env.db.Model(&models.User{}).Where("email = ?", "carol@gmail.com").Count(&users).Error)
		assert.EqualValues(t, 1, users)
	})

	t.Run("以信箱連結既有帳號", func(t *testing.T) {
		env := setupServer(t)
		_, userID := env.signup(t, "dave@example.com")
		env.provider.EXPECT().VerifyIDToken(gomock.Any(), "raw").Return(&oidc.IDToken{
			OpenID: oidc.OpenID{Sub: "google-2"},
			Email:  oidc.Email{Email: "dave@example.com"},
		}, nil)

		w := env.do(t, http.MethodPost, "/api/auth/google", "", gin.H{"token": "raw"})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var resp struct {
			User userResponse `json:"user"`
		}
		decode(t, w, &resp)
		assert.Equal(t, userID, resp.User.ID)

		var identities int64
		require.NoError(t, env.db.Model(&models.UserIdentity{}).Where("user_id = ?", userID).Count(&identities).Error)
		assert.EqualValues(t, 2, identities)
	})
}

func TestSSOLoginAndCallback(t *testing.T) {
	env := setupServer(t)

	var state, nonce string
	env.provider.EXPECT().AuthURL(gomock.Any(), gomock.Any()).DoAndReturn(func(s, n string) string {
		state, nonce = s, n
		return "https://accounts.example/auth?state=" + url.QueryEscape(s)
	})

	// 登入會導向 provider 並設定 session cookie
	req := httptest.NewRequest(http.MethodGet, "/api/auth/sso/google/login?redirect_url="+url.QueryEscape(testFrontendURL+"/gallery"), nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusFound, w.Code, w.Body.String())
	assert.True(t, strings.HasPrefix(w.Header().Get("Location"), "https://accounts.example/auth"))
	cookies := w.Result().Cookies()
	require.NotEmpty(t, cookies)
	require.NotEmpty(t, state)
	require.NotEmpty(t, nonce)

	verifier := &oidc.ExchangeVerifier{}
	env.provider.EXPECT().NewExchangeVerifier(state, nonce).Return(verifier)
	env.provider.EXPECT().Exchange(gomock.Any(), verifier, "auth-code", state).Return(&oidc.IDToken{
		OpenID: oidc.OpenID{Sub: "google-3"},
		Email:  oidc.Email{Email: "erin@example.com"},
	}, nil)

	req = httptest.NewRequest(http.MethodGet, "/api/auth/sso/google/callback?code=auth-code&state="+url.QueryEscape(state), nil)
	for _, cookie := range cookies {
		req.AddCookie(cookie)
	}
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusFound, w.Code, w.Body.String())
	location := w.Header().Get("Location")
	require.True(t, strings.HasPrefix(location, testFrontendURL+"/gallery#token="), location)

	// 導回時帶的 token 可以使用
	token := strings.TrimPrefix(location, testFrontendURL+"/gallery#token=")
	w = env.do(t, http.MethodGet, "/api/user/profile", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	t.Run("state只能使用一次", func(t *testing.T) {
		env.provider.EXPECT().NewExchangeVerifier("", "").Return(verifier)
		env.provider.EXPECT().Exchange(gomock.Any(), verifier, "auth-code", state).Return(nil, oidc.ErrStateMismatch)

		req := httptest.NewRequest(http.MethodGet, "/api/auth/sso/google/callback?code=auth-code&state="+url.QueryEscape(state), nil)
		for _, cookie := range cookies {
			req.AddCookie(cookie)
		}
		w := httptest.NewRecorder()
		env.router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("不支援的provider", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/auth/sso/github/login", "", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestSafeRedirectURL(t *testing.T) {
	testCases := []struct {
		name     string
		frontend string
		input    string
		expected string
	}{
		{name: "前端網址底下的路徑", frontend: testFrontendURL, input: testFrontendURL + "/gallery", expected: testFrontendURL + "/gallery"},
		{name: "其他網域", frontend: testFrontendURL, input: "https://evil.example/", expected: testFrontendURL + "/"},
		{name: "相似前綴的網域", frontend: testFrontendURL, input: testFrontendURL + ".evil.example", expected: testFrontendURL + "/"},
		{name: "未設定前端時允許相對路徑", frontend: "", input: "/gallery", expected: "/gallery"},
		{name: "未設定前端時拒絕協定相對網址", frontend: "", input: "//evil.example", expected: "/"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s := &Server{config: ServerConfig{FrontendURL: tc.frontend}}
			assert.Equal(t, tc.expected, s.safeRedirectURL(tc.input))
		})
	}
}

func TestResetPassword(t *testing.T) {
	env := setupServer(t)
	_, userID := env.signup(t, "frank@example.com")

	t.Run("信箱不存在時同樣回應成功", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/auth/reset-password", "", gin.H{"email": "nobody@example.com"})
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "If your email is registered, you will receive reset instructions", decodeMap(t, w)["message"])
	})

	t.Run("寄信失敗", func(t *testing.T) {
		env.mailer.EXPECT().SendPasswordReset(gomock.Any(), "frank@example.com", gomock.Any()).Return(errors.New("smtp down"))
		w := env.do(t, http.MethodPost, "/api/auth/reset-password", "", gin.H{"email": "frank@example.com"})
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})

	var link string
	env.mailer.EXPECT().SendPasswordReset(gomock.Any(), "frank@example.com", gomock.Any()).
		DoAndReturn(func(_ context.Context, _, l string) error {
			link = l
			return nil
		})
	w := env.do(t, http.MethodPost, "/api/auth/reset-password", "", gin.H{"email": "Frank@example.com"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.True(t, strings.HasPrefix(link, testFrontendURL+"/reset-password-confirm?token="), link)
	parsed, err := url.Parse(link)
	require.NoError(t, err)
	token := parsed.Query().Get("token")
	require.NotEmpty(t, token)

	t.Run("新密碼太短", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/auth/reset-password-confirm", "", gin.H{"token": token, "newPassword": "123"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	w = env.do(t, http.MethodPost, "/api/auth/reset-password-confirm", "", gin.H{"token": token, "newPassword": "brand-new"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Password has been reset successfully", decodeMap(t, w)["message"])

	// 新密碼可以登入，舊密碼不行
	w = env.do(t, http.MethodPost, "/api/auth/login", "", gin.H{"email": "frank@example.com", "password": "brand-new"})
	require.Equal(t, http.StatusOK, w.Code)
	var login struct {
		User userResponse `json:"user"`
	}
	decode(t, w, &login)
	assert.Equal(t, userID, login.User.ID)
	w = env.do(t, http.MethodPost, "/api/auth/login", "", gin.H{"email": "frank@example.com", "password": "secret123"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	t.Run("token只能使用一次", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/auth/reset-password-confirm", "", gin.H{"token": token, "newPassword": "another-one"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "Invalid or expired token", decodeMap(t, w)["message"])
	})
}
