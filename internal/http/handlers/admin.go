package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

func (h *Handler) AdminStats(c *gin.Context) {
	stats, err := h.Miner.Stats(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *Handler) AdminPendingWithdrawals(c *gin.Context) {
	list, err := h.Miner.PendingWithdrawals(c.Request.Context(), queryInt(c, "limit", 50))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"withdrawals": list})
}

func (h *Handler) AdminApproveWithdrawal(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	w, err := h.Miner.ApproveWithdrawal(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, w)
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

// AdminRejectWithdrawal declines a request and refunds the balance.
func (h *Handler) AdminRejectWithdrawal(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	var req rejectRequest
	_ = c.ShouldBindJSON(&req)

	w, err := h.Miner.RejectWithdrawal(c.Request.Context(), id, req.Reason)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, w)
}
