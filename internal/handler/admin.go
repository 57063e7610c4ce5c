package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// AdminHandler serves the privileged adjustment and referral entry points
// used by the excluded admin collaborators. Authorization happens
// upstream at the gateway.
type AdminHandler struct {
	accounts AccountManager
}

// NewAdminHandler creates a new AdminHandler instance.
func NewAdminHandler(accounts AccountManager) *AdminHandler {
	return &AdminHandler{accounts: accounts}
}

type adjustmentRequest struct {
	AccountID      int64  `json:"account_id" binding:"required"`
	Amount         int64  `json:"amount" binding:"required"`
	Description    string `json:"description"`
	IdempotencyKey string `json:"idempotency_key" binding:"required"`
	Override       bool   `json:"override"`
}

// Adjust handles POST /api/admin/adjustments.
func (h *AdminHandler) Adjust(c *gin.Context) {
	var req adjustmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	tx, err := h.accounts.AdminAdjust(c.Request.Context(), req.AccountID, req.Amount, req.Description, req.IdempotencyKey, req.Override)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"transaction_id": tx.ID,
		"balance":        tx.BalanceAfter,
	})
}

type referralRequest struct {
	ReferrerID int64 `json:"referrer_id" binding:"required"`
	RefereeID  int64 `json:"referee_id" binding:"required"`
}

// ApplyReferral handles POST /api/admin/referrals.
func (h *AdminHandler) ApplyReferral(c *gin.Context) {
	var req referralRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	tx, err := h.accounts.ApplyReferralBonus(c.Request.Context(), req.ReferrerID, req.RefereeID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"transaction_id": tx.ID,
		"balance":        tx.BalanceAfter,
	})
}
