package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// PokeHandler serves poke attempts and attestation issuance.
type PokeHandler struct {
	pokes        PokeProcessor
	attestations AttestationIssuer
}

// NewPokeHandler creates a new PokeHandler instance.
func NewPokeHandler(pokes PokeProcessor, attestations AttestationIssuer) *PokeHandler {
	return &PokeHandler{pokes: pokes, attestations: attestations}
}

type pokeRequest struct {
	ActorID          int64  `json:"actor_id" binding:"required"`
	TargetID         int64  `json:"target_id" binding:"required"`
	AttestationToken string `json:"attestation_token" binding:"required"`
}

// RequestPoke handles POST /api/pokes.
func (h *PokeHandler) RequestPoke(c *gin.Context) {
	var req pokeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	result, err := h.pokes.Poke(c.Request.Context(), req.ActorID, req.TargetID, req.AttestationToken)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"accepted":       true,
		"action_id":      result.Action.ID,
		"actor_balance":  result.ActorBalance,
		"target_balance": result.TargetBalance,
		"quota":          result.ActorQuota,
	})
}

type attestationRequest struct {
	ActorID  int64 `json:"actor_id" binding:"required"`
	TargetID int64 `json:"target_id" binding:"required"`
}

// IssueAttestation handles POST /api/attestations. It is called by the ad
// flow when the side task completes; a dismissed ad never reaches here.
func (h *PokeHandler) IssueAttestation(c *gin.Context) {
	var req attestationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	attestation, err := h.attestations.Issue(c.Request.Context(), req.ActorID, req.TargetID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"token":      attestation.Token,
		"expires_at": attestation.ExpiresAt,
	})
}
