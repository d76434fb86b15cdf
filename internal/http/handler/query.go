package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"basegraph.app/synapse/internal/http/dto"
	"basegraph.app/synapse/internal/pipeline"
	"basegraph.app/synapse/internal/service"
)

type QueryHandler struct {
	service service.QueryService
}

func NewQueryHandler(service service.QueryService) *QueryHandler {
	return &QueryHandler{service: service}
}

func (h *QueryHandler) Narrative(c *gin.Context) {
	h.answer(c, h.service.Narrative)
}

func (h *QueryHandler) Structured(c *gin.Context) {
	h.answer(c, h.service.Structured)
}

func (h *QueryHandler) answer(c *gin.Context, run func(context.Context, service.QueryParams) (*pipeline.Answer, error)) {
	ctx := c.Request.Context()

	var req dto.QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.WarnContext(ctx, "invalid query request", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	answer, err := run(ctx, service.QueryParams{
		Query:    req.Query,
		TopK:     req.TopK,
		UserName: req.UserName,
	})
	if err != nil {
		if errors.Is(err, service.ErrEmptyQuery) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		slog.ErrorContext(ctx, "query failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to answer query"})
		return
	}

	c.JSON(http.StatusOK, dto.ToQueryResponse(answer))
}
