package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Madhoneybees/discord-nft-verifier/core"
	"github.com/Madhoneybees/discord-nft-verifier/service"
)

// BatchTrigger starts an on-demand batch run. *service.Scheduler
// implements it.
type BatchTrigger interface {
	Trigger(ctx context.Context) (*core.ReconciliationResult, error)
}

// Handlers contains the HTTP handlers of the verifier
type Handlers struct {
	verifier   *service.VerificationService
	onboarding *service.Onboarding
	stats      *service.StatsReporter
	batch      BatchTrigger
}

// NewHandlers creates new handlers
func NewHandlers(
	verifier *service.VerificationService,
	onboarding *service.Onboarding,
	stats *service.StatsReporter,
	batch BatchTrigger,
) *Handlers {
	return &Handlers{
		verifier:   verifier,
		onboarding: onboarding,
		stats:      stats,
		batch:      batch,
	}
}

// Challenge issues the message a member signs with their wallet
func (h *Handlers) Challenge(c *gin.Context) {
	var req struct {
		SubjectID   string `json:"subject_id" binding:"required"`
		DisplayName string `json:"display_name"`
		Community   string `json:"community"`
		Wallet      string `json:"wallet_address" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	subject := core.Subject{ID: req.SubjectID, DisplayName: req.DisplayName}
	challenge, err := h.verifier.IssueChallenge(c.Request.Context(), subject, req.Community, req.Wallet)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":             challenge.ID,
		"wallet_address": challenge.ClaimedWallet,
		"message":        challenge.Message,
		"expires":        challenge.ExpiresAt,
	})
}

// Signature checks the signed message and assigns roles
func (h *Handlers) Signature(c *gin.Context) {
	var req struct {
		SubjectID string `json:"subject_id" binding:"required"`
		Signature string `json:"signature" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	completion, err := h.onboarding.VerifyAndReconcile(c.Request.Context(), req.SubjectID, req.Signature)
	if err != nil {
		abortWithError(c, err)
		return
	}

	resp := gin.H{
		"wallet_address": completion.Wallet,
		"nft_count":      completion.AssetCount,
		"pending":        completion.Pending,
		"access_token":   completion.AccessToken,
		"token_type":     "Bearer",
		"expires_at":     completion.ExpiresAt,
	}
	if t := completion.Tier; t != nil {
		resp["tier"] = gin.H{
			"name":        t.Name,
			"role_id":     t.RoleID,
			"description": t.Description,
		}
	}
	c.JSON(http.StatusOK, resp)
}

// Me returns the account of the authenticated member
func (h *Handlers) Me(c *gin.Context) {
	subjectID := c.GetString(contextSubject)

	account, err := h.verifier.Account(c.Request.Context(), subjectID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Account not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load account"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"subject_id": subjectID,
		"account":    account,
	})
}

// Stats reports verification counters
func (h *Handlers) Stats(c *gin.Context) {
	stats, err := h.stats.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Failed to collect stats"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// VerifyAll runs a batch synchronously and returns its counters
func (h *Handlers) VerifyAll(c *gin.Context) {
	result, err := h.batch.Trigger(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": "Batch run failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"run_id":      result.RunID,
		"total":       result.Total,
		"processed":   result.Processed,
		"updated":     result.Successful,
		"unchanged":   result.Unchanged,
		"failed":      result.Failed,
		"duration_ms": result.Duration().Milliseconds(),
		"subjects":    result.Subjects,
	})
}

// ResetUser forgets a member's wallet and pending challenge
func (h *Handlers) ResetUser(c *gin.Context) {
	if err := h.verifier.ResetSubject(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to reset user"})
		return
	}
	c.Status(http.StatusNoContent)
}

// abortWithError maps verification errors to a status code and the short
// message shown to members.
func abortWithError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, core.ErrInvalidAddress), errors.Is(err, core.ErrMalformedSignature):
		status = http.StatusBadRequest
	case errors.Is(err, core.ErrRateLimited):
		status = http.StatusTooManyRequests
	case errors.Is(err, core.ErrNoChallenge):
		status = http.StatusNotFound
	case errors.Is(err, core.ErrChallengeExpired):
		status = http.StatusGone
	case errors.Is(err, core.ErrAddressMismatch):
		status = http.StatusUnauthorized
	}
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": core.UserMessage(err)})
}
