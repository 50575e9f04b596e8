package router

import (
	"basegraph.app/harmony/internal/http/handler"
	"github.com/gin-gonic/gin"
)

func RunRouter(rg *gin.RouterGroup, h *handler.RunHandler, stream *handler.RunStreamHandler) {
	rg.POST("", h.Create)
	rg.GET("/:run_id", h.Get)
	rg.GET("/:run_id/events", h.ListEvents)
	rg.GET("/:run_id/stream", stream.Stream)
}
