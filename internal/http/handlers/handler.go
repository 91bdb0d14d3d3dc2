package handlers

import (
	"net/http"

	"voltfarm/internal/domain"
	"voltfarm/internal/http/middleware"
	"voltfarm/internal/logger"
	"voltfarm/internal/service"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	Miner         *service.MiningService
	Tokens        *service.TokenIssuer
	BotToken      string
	DevMode       bool
	WebhookSecret string
}

func NewHandler(miner *service.MiningService, tokens *service.TokenIssuer, botToken string) *Handler {
	return &Handler{Miner: miner, Tokens: tokens, BotToken: botToken}
}

// getUserID извлекает user_id из контекста Gin
func getUserID(c *gin.Context) (int64, bool) {
	return middleware.UserID(c)
}

// fail maps a service error onto an HTTP status.
func fail(c *gin.Context, err error) {
	status := http.StatusBadGateway
	switch domain.KindOf(err) {
	case domain.KindValidation:
		status = http.StatusBadRequest
	case domain.KindNotFound:
		status = http.StatusNotFound
	case domain.KindConflict:
		status = http.StatusConflict
	}

	if status == http.StatusBadGateway {
		logger.Error("request failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(status, gin.H{"error": domain.ReasonOf(err)})
}
