package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Withdraw files a payout request once the gate passes.
func (h *Handler) Withdraw(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	w, view, err := h.Miner.Withdraw(c.Request.Context(), userID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"withdrawal": w, "miner": view})
}

func (h *Handler) Withdrawals(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	list, err := h.Miner.Withdrawals(c.Request.Context(), userID, queryInt(c, "limit", 50))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"withdrawals": list})
}
