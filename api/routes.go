package api

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"imagine/adapters/logger"
	"imagine/adapters/session"
	"imagine/adapters/sse"
)

// Handler 建立包含所有路由的 gin engine
func (s *Server) Handler() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), logger.GinMiddleware(s.logger))

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{s.config.FrontendURL}
	corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, "Authorization")
	corsConfig.AllowCredentials = true
	corsConfig.MaxAge = 12 * time.Hour
	if s.config.FrontendURL == "" {
		corsConfig.AllowOrigins = nil
		corsConfig.AllowAllOrigins = true
		corsConfig.AllowCredentials = false
	}
	router.Use(cors.New(corsConfig))

	router.NoRoute(func(c *gin.Context) {
		respondError(c, http.StatusNotFound, "Resource not found")
	})
	router.GET("/", s.GetIndex)

	api := router.Group("/api")

	auth := api.Group("/auth")
	auth.POST("/signup", s.PostSignup)
	auth.POST("/login", s.PostLogin)
	auth.POST("/google", s.PostGoogle)
	auth.POST("/reset-password", s.PostResetPassword)
	auth.POST("/reset-password-confirm", s.PostResetPasswordConfirm)

	sso := auth.Group("/sso", session.GinMiddleware(
		s.sessionStore,
		session.WithSessionKeyForCookie(s.config.Session.KeyForCookie),
		session.WithCookieMaxAge(s.config.Session.CookieMaxAge),
		session.WithCookieSecure(s.config.Session.CookieSecure),
	))
	sso.GET("/:provider/login", s.GetSSOLogin)
	sso.GET("/:provider/callback", s.GetSSOCallback)

	user := api.Group("/user", s.AuthMiddleware())
	user.GET("/profile", s.GetProfile)
	user.PUT("/profile", s.PutProfile)
	user.PUT("/password", s.PutPassword)
	user.DELETE("/account", s.DeleteAccount)

	images := api.Group("/images", s.AuthMiddleware())
	images.GET("", s.GetImages)
	images.GET("/events", sse.HeadersMiddleware(), s.GetImageEvents)
	images.GET("/requests/:requestID", s.GetGenerationRequest)
	images.GET("/:imageID", s.GetImage)
	images.DELETE("/:imageID", s.DeleteImage)
	images.PUT("/:imageID/love", s.PutImageLove)
	images.PUT("/:imageID/save", s.PutImageSave)
	images.POST("/generate", s.PostGenerate)
	images.POST("/generate/async", s.PostGenerateAsync)

	api.POST("/webhooks/fal-ai", s.PostFalWebhook)

	return router
}

func (s *Server) GetIndex(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "AI Image Generator API",
		"status":  "running",
	})
}
