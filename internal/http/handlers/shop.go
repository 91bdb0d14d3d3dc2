package handlers

import (
	"crypto/hmac"
	"net/http"

	"voltfarm/internal/domain"

	"github.com/gin-gonic/gin"
)

// PaymentSecretHeader carries the shared secret on provider callbacks.
const PaymentSecretHeader = "X-Payment-Secret"

func (h *Handler) Offers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"offers": h.Miner.Options().Offers})
}

type invoiceRequest struct {
	OfferID string `json:"offer_id" binding:"required"`
}

// CreateInvoice returns a Stars payment link for an offer.
func (h *Handler) CreateInvoice(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req invoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "offer_id is required"})
		return
	}

	inv, err := h.Miner.CreateInvoice(c.Request.Context(), userID, req.OfferID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"invoice": inv, "link": inv.Link})
}

// PaymentCallback applies a confirmed payment pushed by an external provider.
// Replays of the same payment id return applied=false.
func (h *Handler) PaymentCallback(c *gin.Context) {
	if h.WebhookSecret == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	if !hmac.Equal([]byte(c.GetHeader(PaymentSecretHeader)), []byte(h.WebhookSecret)) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid secret"})
		return
	}

	var ev domain.PaymentEvent
	if err := c.ShouldBindJSON(&ev); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad request"})
		return
	}

	applied, view, err := h.Miner.ConfirmPayment(c.Request.Context(), ev)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"applied": applied, "miner": view})
}
