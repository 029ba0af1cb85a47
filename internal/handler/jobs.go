package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/AdamAbramowitz0/Codex-TCLinks/internal/jobs"
)

// JobHandler exposes manual job triggers. The force flag bypasses the
// exactly-once claim without clearing it.
type JobHandler struct {
	Jobs   *jobs.Service
	Logger *zap.Logger
}

func (h *JobHandler) Register(r *gin.Engine) {
	group := r.Group("/api/jobs")
	group.POST("/faucet", h.runFaucet)
	group.POST("/models", h.runModels)
	group.POST("/sync", h.syncLinks)
	group.POST("/curation", h.runCuration)
	group.POST("/agents/reload", h.reloadAgents)
}

type jobRequest struct {
	CycleID  string `json:"cycle_id"`
	AsOfDate string `json:"as_of_date"`
	Force    bool   `json:"force"`
}

func bindJobRequest(c *gin.Context) (jobRequest, bool) {
	var req jobRequest
	if c.Request.ContentLength == 0 {
		return req, true
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return req, false
	}
	return req, true
}

func (h *JobHandler) runFaucet(c *gin.Context) {
	req, ok := bindJobRequest(c)
	if !ok {
		return
	}
	outcome, err := h.Jobs.RunDailyFaucet(c.Request.Context(), req.AsOfDate, req.Force)
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, outcome, nil)
}

func (h *JobHandler) runModels(c *gin.Context) {
	req, ok := bindJobRequest(c)
	if !ok {
		return
	}
	outcome, err := h.Jobs.RunModels(c.Request.Context(), req.CycleID, req.Force)
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, outcome, nil)
}

func (h *JobHandler) syncLinks(c *gin.Context) {
	req, ok := bindJobRequest(c)
	if !ok {
		return
	}
	outcome, err := h.Jobs.SyncLinks(c.Request.Context(), req.Force)
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, outcome, nil)
}

func (h *JobHandler) runCuration(c *gin.Context) {
	req, ok := bindJobRequest(c)
	if !ok {
		return
	}
	outcome, err := h.Jobs.RunCurationRewards(c.Request.Context(), req.CycleID, req.Force)
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, outcome, nil)
}

func (h *JobHandler) reloadAgents(c *gin.Context) {
	configs, err := h.Jobs.Runner.ReloadConfigs()
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, configs, map[string]any{"count": len(configs)})
}
