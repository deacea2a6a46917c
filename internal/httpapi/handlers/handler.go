package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/llmstream/openrouter-bot/internal/chat"
	"github.com/llmstream/openrouter-bot/internal/common"
	"github.com/llmstream/openrouter-bot/internal/config"
	"github.com/llmstream/openrouter-bot/internal/httpapi/middleware"
	"github.com/llmstream/openrouter-bot/internal/store/rabbitmq"
	"github.com/llmstream/openrouter-bot/internal/store/redisstore"
)

type Handler struct {
	Cfg     config.Config
	ChatSvc *chat.Service
	Repo    *chat.Repo
	Redis   *redisstore.Store
	Rabbit  *rabbitmq.Publisher // nil when the broker is unavailable
}

func NewHandler(cfg config.Config, svc *chat.Service, repo *chat.Repo, rds *redisstore.Store, pub *rabbitmq.Publisher) *Handler {
	return &Handler{Cfg: cfg, ChatSvc: svc, Repo: repo, Redis: rds, Rabbit: pub}
}

func (h *Handler) Ping(c *gin.Context) {
	common.OK(c, gin.H{"pong": true})
}

func userIDFromContext(c *gin.Context) (int64, bool) {
	v, ok := c.Get(middleware.UserIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok
}
