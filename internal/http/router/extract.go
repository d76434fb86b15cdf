package router

import (
	"github.com/gin-gonic/gin"

	"basegraph.app/synapse/internal/http/handler"
)

func ExtractRouter(rg *gin.RouterGroup, h *handler.ExtractHandler) {
	rg.POST("", h.Start)
	rg.GET("/:id", h.Get)
}
