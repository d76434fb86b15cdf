package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"

	"basegraph.app/synapse/internal/http/dto"
	"basegraph.app/synapse/internal/service"
)

type ExtractHandler struct {
	service     service.ExtractService
	traceHeader string
}

func NewExtractHandler(service service.ExtractService, traceHeader string) *ExtractHandler {
	return &ExtractHandler{
		service:     service,
		traceHeader: traceHeader,
	}
}

// Start queues a channel ingestion and returns immediately with the run id.
func (h *ExtractHandler) Start(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.ExtractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.WarnContext(ctx, "invalid extract request", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	params := service.ExtractParams{ChannelID: req.ChannelID}
	if req.MonthsHistory != nil {
		params.MonthsHistory = *req.MonthsHistory
	}

	traceID := c.GetHeader(h.traceHeader)
	if traceID == "" {
		if spanCtx := trace.SpanContextFromContext(ctx); spanCtx.IsValid() {
			traceID = spanCtx.TraceID().String()
		}
	}
	if traceID != "" {
		params.TraceID = &traceID
	}

	run, err := h.service.Start(ctx, params)
	if err != nil {
		if errors.Is(err, service.ErrMissingChannel) || errors.Is(err, service.ErrInvalidMonths) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		slog.ErrorContext(ctx, "failed to start ingest run", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start extraction"})
		return
	}

	c.JSON(http.StatusAccepted, dto.ExtractResponse{
		RunID:  run.ID,
		Status: run.Status,
	})
}

func (h *ExtractHandler) Get(c *gin.Context) {
	ctx := c.Request.Context()

	runID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run id"})
		return
	}

	run, err := h.service.Get(ctx, runID)
	if err != nil {
		if errors.Is(err, service.ErrRunNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
			return
		}
		slog.ErrorContext(ctx, "failed to get ingest run", "error", err, "run_id", runID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get run"})
		return
	}

	c.JSON(http.StatusOK, dto.ToIngestRunResponse(run))
}
