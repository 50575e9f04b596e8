package router

import (
	"time"

	"basegraph.app/harmony/internal/http/handler"
	"basegraph.app/harmony/internal/queue"
	"basegraph.app/harmony/internal/store"
	"github.com/gin-gonic/gin"
)

type RouterConfig struct {
	Runs              store.RunStore
	RunEvents         store.RunEventStore
	Producer          queue.Producer
	Streams           handler.StreamReader // nil disables live streaming
	EventStreamPrefix string
	StreamBlock       time.Duration
	TraceHeaderName   string
}

func SetupRoutes(router *gin.Engine, cfg RouterConfig) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")
	{
		runHandler := handler.NewRunHandler(cfg.Runs, cfg.RunEvents, cfg.Producer, cfg.TraceHeaderName)
		streamHandler := handler.NewRunStreamHandler(cfg.Streams, cfg.EventStreamPrefix, cfg.StreamBlock)
		RunRouter(v1.Group("/runs"), runHandler, streamHandler)
	}
}
