package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetLeaderboard returns the top miners by balance
func (h *Handler) GetLeaderboard(c *gin.Context) {
	top, err := h.Miner.Leaderboard(c.Request.Context(), queryInt(c, "limit", 20))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"leaderboard": top})
}

// GetReferralLink returns the share link carrying the caller's id
func (h *Handler) GetReferralLink(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	view, err := h.Miner.GetState(c.Request.Context(), userID)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"link":      h.Miner.ReferralLink(userID),
		"referrals": view.State.ReferralCount,
		"bonus":     h.Miner.Options().ReferralBonus,
	})
}
