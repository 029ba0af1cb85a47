package handler

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/AdamAbramowitz0/Codex-TCLinks/internal/market"
	"github.com/AdamAbramowitz0/Codex-TCLinks/internal/models"
	"github.com/AdamAbramowitz0/Codex-TCLinks/internal/repository"
)

// MarketHandler exposes the market core over HTTP. Identity is out of
// scope: callers pass user ids directly.
type MarketHandler struct {
	Repo   repository.Repository
	Market *market.Service
	Logger *zap.Logger
}

func (h *MarketHandler) Register(r *gin.Engine) {
	api := r.Group("/api")
	api.POST("/users", h.createUser)
	api.GET("/leaderboard", h.leaderboard)
	api.GET("/leaderboard/curation", h.curationLeaderboard)

	cycles := api.Group("/cycles")
	cycles.POST("", h.createCycle)
	cycles.GET("", h.listCycles)
	cycles.GET("/open", h.openCycle)
	cycles.GET("/:id/candidates", h.listCandidates)
	cycles.POST("/:id/candidates", h.submitCandidate)
	cycles.PUT("/:id/picks", h.setPicks)
	cycles.GET("/:id/probabilities", h.probabilities)
	cycles.POST("/:id/settle", h.settle)
	cycles.GET("/:id/predictions", h.predictions)

	api.POST("/candidates/:id/click", h.recordClick)
}

func (h *MarketHandler) createUser(c *gin.Context) {
	var req struct {
		DisplayName string `json:"display_name" binding:"required"`
		Email       string `json:"email" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	user, err := h.Repo.CreateUser(c.Request.Context(), req.DisplayName, req.Email, models.AccountTypeHuman)
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, user, nil)
}

func (h *MarketHandler) createCycle(c *gin.Context) {
	var req struct {
		CycleDate string `json:"cycle_date"`
	}
	if err := c.ShouldBindJSON(&req); err != nil && !strings.Contains(err.Error(), "EOF") {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	cycle, err := h.Repo.CreateCycle(c.Request.Context(), req.CycleDate)
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, cycle, nil)
}

func (h *MarketHandler) listCycles(c *gin.Context) {
	limit := intQuery(c, "limit", 100)
	cycles, err := h.Repo.ListCycles(c.Request.Context(), limit)
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, cycles, map[string]any{"count": len(cycles)})
}

func (h *MarketHandler) openCycle(c *gin.Context) {
	cycle, err := h.Repo.GetOpenCycle(c.Request.Context())
	if err != nil {
		Fail(c, err)
		return
	}
	if cycle == nil {
		Error(c, http.StatusNotFound, "no open cycle", nil)
		return
	}
	Ok(c, cycle, nil)
}

func (h *MarketHandler) listCandidates(c *gin.Context) {
	candidates, err := h.Repo.ListCandidates(c.Request.Context(), c.Param("id"))
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, candidates, map[string]any{"count": len(candidates)})
}

func (h *MarketHandler) submitCandidate(c *gin.Context) {
	var req struct {
		UserID string `json:"user_id" binding:"required"`
		URL    string `json:"url" binding:"required"`
		Title  string `json:"title"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	candidate, err := h.Market.SubmitCandidate(c.Request.Context(), c.Param("id"), req.UserID, req.URL, req.Title)
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, candidate, nil)
}

func (h *MarketHandler) setPicks(c *gin.Context) {
	var req struct {
		UserID       string   `json:"user_id" binding:"required"`
		CandidateIDs []string `json:"candidate_ids"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	picks, err := h.Market.SetRankedPicks(c.Request.Context(), c.Param("id"), req.UserID, req.CandidateIDs)
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, picks, map[string]any{"count": len(picks)})
}

func (h *MarketHandler) probabilities(c *gin.Context) {
	probs, err := h.Market.Probabilities(c.Request.Context(), c.Param("id"))
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, probs, map[string]any{"count": len(probs)})
}

func (h *MarketHandler) settle(c *gin.Context) {
	var req struct {
		WinnerURLs []string `json:"winner_urls" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	result, err := h.Market.Settle(c.Request.Context(), c.Param("id"), req.WinnerURLs)
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, result, nil)
}

func (h *MarketHandler) predictions(c *gin.Context) {
	predictions, err := h.Repo.ListModelPredictions(c.Request.Context(), c.Param("id"), c.Query("model_user_id"))
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, predictions, map[string]any{"count": len(predictions)})
}

func (h *MarketHandler) leaderboard(c *gin.Context) {
	limit := intQuery(c, "limit", 100)
	accountType := strings.ToUpper(strings.TrimSpace(c.Query("account_type")))
	rows, err := h.Repo.ListChipLeaderboard(c.Request.Context(), limit, accountType)
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, rows, map[string]any{"count": len(rows)})
}

func (h *MarketHandler) curationLeaderboard(c *gin.Context) {
	limit := intQuery(c, "limit", 100)
	rows, err := h.Repo.ListCurationLeaderboard(c.Request.Context(), limit)
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, rows, map[string]any{"count": len(rows)})
}

// recordClick fingerprints the viewer from whatever the client offers plus
// transport hints. Duplicate clicks are a structured no-op.
func (h *MarketHandler) recordClick(c *gin.Context) {
	var req struct {
		Fingerprint string `json:"fingerprint"`
	}
	_ = c.ShouldBindJSON(&req)
	if req.Fingerprint == "" {
		req.Fingerprint = c.ClientIP() + "|" + c.Request.UserAgent()
	}
	digest := sha256.Sum256([]byte(req.Fingerprint))
	outcome, err := h.Repo.RecordClick(c.Request.Context(), c.Param("id"), hex.EncodeToString(digest[:]))
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, outcome, nil)
}

func intQuery(c *gin.Context, key string, fallback int) int {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
