package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/llmstream/openrouter-bot/internal/chat"
	"github.com/llmstream/openrouter-bot/internal/common"
	"github.com/llmstream/openrouter-bot/internal/config"
	"github.com/llmstream/openrouter-bot/internal/httpapi/handlers"
	"github.com/llmstream/openrouter-bot/internal/httpapi/middleware"
	"github.com/llmstream/openrouter-bot/internal/store/rabbitmq"
	"github.com/llmstream/openrouter-bot/internal/store/redisstore"
)

func NewRouter(cfg config.Config, svc *chat.Service, repo *chat.Repo, rds *redisstore.Store, pub *rabbitmq.Publisher) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Logger())
	r.Use(middleware.Recovery())
	r.Use(middleware.RequestID())

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	h := handlers.NewHandler(cfg, svc, repo, rds, pub)

	r.GET("/ping", h.Ping)

	authGroup := r.Group("/")
	authGroup.Use(middleware.AuthRequired(cfg.JWTSecret))
	authGroup.POST("/chat/generate", h.Generate)
	authGroup.POST("/chat/regenerate", h.Regenerate)
	authGroup.POST("/chat/cancel", h.CancelGeneration)
	authGroup.GET("/chat/streams/:chat_id", h.StreamStatus)
	authGroup.POST("/chat/dialogs", h.NewDialog)
	authGroup.GET("/models", h.ListModels)
	authGroup.POST("/admin/models/sync", h.SyncModels)

	return r
}
