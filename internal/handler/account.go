package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// AccountHandler serves registration, wallet, quota, history, and
// snapshot reads.
type AccountHandler struct {
	accounts  AccountManager
	pokes     PokeProcessor
	ledger    TransactionLister
	snapshots SnapshotPuller
}

// NewAccountHandler creates a new AccountHandler instance.
func NewAccountHandler(accounts AccountManager, pokes PokeProcessor, ledger TransactionLister, snapshots SnapshotPuller) *AccountHandler {
	return &AccountHandler{
		accounts:  accounts,
		pokes:     pokes,
		ledger:    ledger,
		snapshots: snapshots,
	}
}

func accountID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid account id"})
		return 0, false
	}
	return id, true
}

type registerRequest struct {
	ID          int64  `json:"id" binding:"required"`
	DisplayName string `json:"display_name"`
}

// Register handles POST /api/accounts.
func (h *AccountHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	account, created, err := h.accounts.Register(c.Request.Context(), req.ID, req.DisplayName)
	if err != nil {
		respondError(c, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{
		"id":           account.ID,
		"display_name": account.DisplayName,
		"balance":      account.Balance,
		"created":      created,
	})
}

// GetQuota handles GET /api/accounts/:id/quota.
func (h *AccountHandler) GetQuota(c *gin.Context) {
	id, ok := accountID(c)
	if !ok {
		return
	}

	quota, err := h.pokes.GetQuota(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, quota)
}

// GetBalance handles GET /api/accounts/:id/balance.
func (h *AccountHandler) GetBalance(c *gin.Context) {
	id, ok := accountID(c)
	if !ok {
		return
	}

	balance, err := h.accounts.GetBalance(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, balance)
}

// ListTransactions handles GET /api/accounts/:id/transactions.
func (h *AccountHandler) ListTransactions(c *gin.Context) {
	id, ok := accountID(c)
	if !ok {
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	transactions, err := h.ledger.ListTransactions(c.Request.Context(), id, page, pageSize)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"transactions": transactions,
		"page":         page,
		"page_size":    pageSize,
	})
}

// GetSnapshot handles GET /api/accounts/:id/snapshot, the reconciliation
// pull endpoint.
func (h *AccountHandler) GetSnapshot(c *gin.Context) {
	id, ok := accountID(c)
	if !ok {
		return
	}

	snapshot, err := h.snapshots.Pull(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

type withdrawalRequest struct {
	Amount int64 `json:"amount" binding:"required"`
}

// RequestWithdrawal handles POST /api/accounts/:id/withdrawals. The debit
// is recorded pending; approval stays with the external workflow.
func (h *AccountHandler) RequestWithdrawal(c *gin.Context) {
	id, ok := accountID(c)
	if !ok {
		return
	}

	var req withdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Amount <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	tx, err := h.accounts.RequestWithdrawal(c.Request.Context(), id, req.Amount)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"transaction_id": tx.ID,
		"reference":      tx.Reference,
		"status":         tx.Status,
		"balance":        tx.BalanceAfter,
	})
}
