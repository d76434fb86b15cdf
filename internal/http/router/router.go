package router

import (
	"github.com/gin-gonic/gin"

	"basegraph.app/synapse/internal/http/handler"
	"basegraph.app/synapse/internal/service"
)

type RouterConfig struct {
	TraceHeaderName string
}

func SetupRoutes(router *gin.Engine, services *service.Services, cfg RouterConfig) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	extractHandler := handler.NewExtractHandler(services.Extract(), cfg.TraceHeaderName)
	queryHandler := handler.NewQueryHandler(services.Query())

	v1 := router.Group("/api/v1")
	{
		ExtractRouter(v1.Group("/extract"), extractHandler)
		v1.POST("/query", queryHandler.Narrative)
	}

	v2 := router.Group("/api/v2")
	{
		v2.POST("/query", queryHandler.Structured)
	}
}
