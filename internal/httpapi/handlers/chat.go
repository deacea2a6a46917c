package handlers

import (
	"errors"
	"log"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/llmstream/openrouter-bot/internal/chat"
	"github.com/llmstream/openrouter-bot/internal/common"
)

type generateReq struct {
	ChatID    int64  `json:"chat_id" binding:"required"`
	ModelID   string `json:"model_id" binding:"required"`
	Message   string `json:"message" binding:"required"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Username  string `json:"username"`
}

func (h *Handler) Generate(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req generateReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	// user registration is best effort
	if err := h.ChatSvc.RegisterUser(c.Request.Context(), &chat.User{
		ChatID:    req.ChatID,
		UserID:    uid,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Username:  req.Username,
	}); err != nil {
		log.Printf("[Generate] RegisterUser failed uid=%d chat_id=%d err=%v", uid, req.ChatID, err)
	}

	// paid models are reserved for admins
	if m, err := h.Repo.GetModel(c.Request.Context(), req.ModelID); err == nil {
		if !m.IsFree && !h.Cfg.IsAdmin(strconv.FormatInt(uid, 10)) {
			common.Fail(c, http.StatusForbidden, 40301, "model requires admin access")
			return
		}
	}

	res, err := h.ChatSvc.Generate(c.Request.Context(), uid, req.ChatID, req.ModelID, req.Message, false)
	if err != nil {
		common.Fail(c, http.StatusBadGateway, 50201, "failed to start generation")
		return
	}

	common.OK(c, gin.H{
		"message_id":    res.MessageID,
		"turn_id":       res.TurnID,
		"context_usage": math.Round(res.ContextUsage),
		"context_warn":  res.ContextUsage > 70,
	})
}

type regenerateReq struct {
	ChatID int64 `json:"chat_id" binding:"required"`
}

func (h *Handler) Regenerate(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req regenerateReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	res, err := h.ChatSvc.Regenerate(c.Request.Context(), uid, req.ChatID)
	if err != nil {
		if errors.Is(err, chat.ErrNoLastQuestion) {
			common.Fail(c, http.StatusNotFound, 40404, "no previous question to regenerate")
			return
		}
		common.Fail(c, http.StatusBadGateway, 50201, "failed to start generation")
		return
	}

	common.OK(c, gin.H{
		"message_id":    res.MessageID,
		"context_usage": math.Round(res.ContextUsage),
	})
}

type cancelReq struct {
	ChatID    int64 `json:"chat_id" binding:"required"`
	MessageID int   `json:"message_id" binding:"required"`
}

func (h *Handler) CancelGeneration(c *gin.Context) {
	var req cancelReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	if !h.ChatSvc.Cancel(c.Request.Context(), req.ChatID, req.MessageID) {
		common.Fail(c, http.StatusNotFound, 40405, "no active stream for chat")
		return
	}
	common.OK(c, gin.H{"cancelling": true})
}

func (h *Handler) StreamStatus(c *gin.Context) {
	chatID, err := strconv.ParseInt(c.Param("chat_id"), 10, 64)
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 10002, "invalid chat_id")
		return
	}
	common.OK(c, gin.H{"active": h.ChatSvc.IsStreaming(chatID)})
}

func (h *Handler) NewDialog(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	n, err := h.ChatSvc.NewDialog(c.Request.Context(), uid)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	common.OK(c, gin.H{"dialog_number": n})
}

func (h *Handler) ListModels(c *gin.Context) {
	onlyFree := c.Query("free") == "1"
	onlyTop := c.Query("top") == "1"

	// the unfiltered catalog is cache-friendly
	if h.Redis != nil && !onlyFree && !onlyTop {
		if models, err := h.Redis.GetModelCatalog(c.Request.Context()); err == nil {
			common.OK(c, gin.H{"models": models, "cached": true})
			return
		}
	}

	models, err := h.Repo.ListModels(c.Request.Context(), onlyFree, onlyTop)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.OK(c, gin.H{"models": []chat.Model{}})
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50002, "failed to list models")
		return
	}

	if h.Redis != nil && !onlyFree && !onlyTop {
		_ = h.Redis.SetModelCatalog(c.Request.Context(), models)
	}

	common.OK(c, gin.H{"models": models})
}

func (h *Handler) SyncModels(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	if !h.Cfg.IsAdmin(strconv.FormatInt(uid, 10)) {
		common.Fail(c, http.StatusForbidden, 40302, "admin only")
		return
	}
	if h.Rabbit == nil {
		common.Fail(c, http.StatusServiceUnavailable, 50301, "model sync queue unavailable")
		return
	}

	jobID, err := common.NewULID()
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	if err := h.Rabbit.PublishSync(c.Request.Context(), jobID, ""); err != nil {
		common.Fail(c, http.StatusInternalServerError, 50002, "enqueue failed")
		return
	}
	common.OK(c, gin.H{"job_id": jobID})
}
