package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/blockstat/forensics/internal/analysis"
	"github.com/blockstat/forensics/internal/export"
	"github.com/blockstat/forensics/internal/graph"
	"github.com/blockstat/forensics/internal/mixer"
	"github.com/blockstat/forensics/internal/observability"
	"github.com/blockstat/forensics/internal/query"
	"github.com/blockstat/forensics/internal/risk"
	"github.com/blockstat/forensics/internal/visual"
)

func abortError(c *gin.Context, status int, code string, err error) {
	c.AbortWithStatusJSON(status, gin.H{"error": code, "message": err.Error()})
}

// result runs (or fetches) the analysis named by the :token parameter.
func (s *Server) result(c *gin.Context) (*analysis.Result, bool) {
	res, err := s.deps.Analysis.Analyze(c.Request.Context(), c.Param("token"))
	if err != nil {
		s.analysisError(c, err)
		return nil, false
	}
	return res, true
}

func (s *Server) analysisError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, analysis.ErrInvalidAddress):
		abortError(c, http.StatusBadRequest, "invalid_address", err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		abortError(c, http.StatusServiceUnavailable, "cancelled", err)
	default:
		abortError(c, http.StatusInternalServerError, "analysis_failed", err)
	}
}

func (s *Server) healthHandler(c *gin.Context) {
	body := gin.H{"status": "healthy", "service": serviceName, "version": Version}
	status := http.StatusOK
	if s.deps.Health != nil {
		h := s.deps.Health.Check(c.Request.Context())
		body["status"] = h.Status
		body["components"] = h.Components
		body["uptime_seconds"] = int64(h.Uptime.Seconds())
		if h.Status == observability.StatusUnhealthy {
			status = http.StatusServiceUnavailable
		}
	}
	c.JSON(status, body)
}

type analyzeRequest struct {
	TokenAddress string `json:"tokenAddress" binding:"required"`
	Refresh      bool   `json:"refresh"`
}

// analyzeResponse summarises a run; the dataset itself is fetched from
// /api/v1/analysis/:token.
type analyzeResponse struct {
	AnalysisID string        `json:"analysisId"`
	Token      string        `json:"token"`
	Origin     string        `json:"origin"`
	Source     string        `json:"source"`
	RiskScore  float64       `json:"riskScore"`
	Verdict    string        `json:"verdict"`
	Metrics    graph.Metrics `json:"metrics"`
	Cards      []risk.Card   `json:"cards"`
	Warnings   []string      `json:"warnings,omitempty"`
}

func (s *Server) analyzeHandler(c *gin.Context) {
	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	ctx := c.Request.Context()
	if req.Refresh {
		if err := s.deps.Analysis.Invalidate(ctx, req.TokenAddress); err != nil {
			s.analysisError(c, err)
			return
		}
	}
	res, err := s.deps.Analysis.Analyze(ctx, req.TokenAddress)
	if err != nil {
		s.analysisError(c, err)
		return
	}
	c.JSON(http.StatusOK, analyzeResponse{
		AnalysisID: res.ID,
		Token:      res.Token,
		Origin:     res.Origin,
		Source:     res.Source,
		RiskScore:  res.Dataset.RiskScore,
		Verdict:    res.Verdict().String(),
		Metrics:    res.Dataset.Metrics,
		Cards:      res.Cards(),
		Warnings:   res.Warnings,
	})
}

func (s *Server) datasetHandler(c *gin.Context) {
	res, ok := s.result(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) sceneHandler(c *gin.Context) {
	res, ok := s.result(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, visual.Encode(res.Dataset, visual.Options{Highlighted: c.Query("highlight")}))
}

func (s *Server) mixerGraphHandler(c *gin.Context) {
	res, ok := s.result(c)
	if !ok {
		return
	}
	g := mixer.BuildGraph(res.Index(), s.deps.Mixer)
	c.JSON(http.StatusOK, gin.H{
		"graph": g,
		"scene": visual.EncodeMixerGraph(g, c.Query("highlight")),
	})
}

// nodeHandler serves the detail panel of one wallet, its mixer exposure
// and, with ?depth=N, its neighbourhood.
func (s *Server) nodeHandler(c *gin.Context) {
	res, ok := s.result(c)
	if !ok {
		return
	}
	idx := res.Index()
	id := c.Param("id")

	detail, err := idx.Detail(id)
	if err != nil {
		abortError(c, http.StatusNotFound, "node_not_found", err)
		return
	}
	exposure, err := mixer.ExposureOf(idx, id, s.deps.Mixer)
	if err != nil {
		abortError(c, http.StatusInternalServerError, "exposure_failed", err)
		return
	}
	body := gin.H{"detail": detail, "exposure": exposure}

	if raw := c.Query("depth"); raw != "" {
		depth, err := strconv.Atoi(raw)
		if err != nil || depth < 0 {
			abortError(c, http.StatusBadRequest, "invalid_depth", errors.New("depth must be a non-negative integer"))
			return
		}
		hops, err := idx.Neighborhood(id, depth, query.DefaultNeighborhoodCap)
		if err != nil {
			abortError(c, http.StatusInternalServerError, "neighborhood_failed", err)
			return
		}
		body["neighborhood"] = hops
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) exportHandler(c *gin.Context) {
	format, err := export.ParseFormat(c.DefaultQuery("format", string(export.JSON)))
	if err != nil {
		abortError(c, http.StatusBadRequest, "invalid_format", err)
		return
	}
	res, ok := s.result(c)
	if !ok {
		return
	}
	c.Header("Content-Type", format.ContentType())
	c.Header("Content-Disposition", `attachment; filename="`+format.Filename(res.Token)+`"`)
	c.Status(http.StatusOK)
	if err := export.Write(c.Writer, res.Dataset, format); err != nil {
		_ = c.Error(err)
	}
}
