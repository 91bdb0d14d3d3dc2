package handlers

import (
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"voltfarm/internal/telegram"

	"github.com/gin-gonic/gin"
)

type AuthRequest struct {
	InitData string `json:"init_data"`
	// used by /start links opened outside the mini app
	StartParam string `json:"start_param"`
}

func (h *Handler) Auth(c *gin.Context) {
	var req AuthRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad request"})
		return
	}

	if len(req.InitData) > 4096 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "init_data too long"})
		return
	}

	var data *telegram.InitData
	if h.DevMode {
		// DEV MODE: пропускаем валидацию
		data = devInitData(req.InitData)
	} else {
		var err error
		data, err = telegram.Validate(req.InitData, h.BotToken, time.Now())
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or stale telegram data"})
			return
		}
	}

	ref := data.StartParam
	if ref == "" {
		ref = req.StartParam
	}

	view, err := h.Miner.Register(c.Request.Context(), data.User.ID, ref)
	if err != nil {
		fail(c, err)
		return
	}

	token, err := h.Tokens.Generate(data.User.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token generation failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token": token,
		"user": gin.H{
			"id":         data.User.ID,
			"username":   data.User.Username,
			"first_name": data.User.FirstName,
		},
		"miner": view,
	})
}

// devInitData reads the user without checking the signature. Defaults to 12345.
func devInitData(initData string) *telegram.InitData {
	data := &telegram.InitData{User: telegram.WebAppUser{ID: 12345, FirstName: "Test"}}
	values, err := url.ParseQuery(initData)
	if err != nil {
		return data
	}
	var u telegram.WebAppUser
	if raw := values.Get("user"); raw != "" && json.Unmarshal([]byte(raw), &u) == nil && u.ID > 0 {
		data.User = u
	}
	data.StartParam = values.Get("start_param")
	return data
}
