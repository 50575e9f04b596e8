package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"basegraph.app/harmony/internal/events"
)

// StreamReader is the part of *redis.Client the stream handler needs.
type StreamReader interface {
	XRead(ctx context.Context, a *redis.XReadArgs) *redis.XStreamSliceCmd
}

type RunStreamHandler struct {
	reader StreamReader
	prefix string
	block  time.Duration
}

func NewRunStreamHandler(reader StreamReader, prefix string, block time.Duration) *RunStreamHandler {
	if block <= 0 {
		block = 25 * time.Second
	}
	return &RunStreamHandler{reader: reader, prefix: prefix, block: block}
}

// Stream relays the live event stream of a run as server-sent events. It
// replays from the start of the stream unless last_id or Last-Event-ID is
// given, and ends after the run_finished event.
func (h *RunStreamHandler) Stream(c *gin.Context) {
	ctx := c.Request.Context()
	if h.reader == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "redis not configured"})
		return
	}

	runID, ok := runIDParam(c)
	if !ok {
		return
	}

	stream := events.StreamName(h.prefix, runID)
	lastID := c.Query("last_id")
	if lastID == "" {
		lastID = c.GetHeader("Last-Event-ID")
	}
	if lastID == "" {
		lastID = "0"
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming not supported"})
		return
	}
	setSSEHeaders(c.Writer)
	c.Status(http.StatusOK)

	sseWrite(c.Writer, "", "ping", "ready")
	flusher.Flush()

	for {
		if ctx.Err() != nil {
			return
		}

		res, err := h.reader.XRead(ctx, &redis.XReadArgs{
			Streams: []string{stream, lastID},
			Block:   h.block,
			Count:   100,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				sseWrite(c.Writer, "", "ping", time.Now().UTC().Format(time.RFC3339Nano))
				flusher.Flush()
				continue
			}
			if ctx.Err() != nil {
				return
			}
			slog.WarnContext(ctx, "run stream read failed", "error", err, "stream", stream)
			sseWrite(c.Writer, "", "error", map[string]string{"error": err.Error()})
			flusher.Flush()
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		for _, streamRes := range res {
			for _, msg := range streamRes.Messages {
				lastID = msg.ID
				e, err := events.ParseStreamValues(msg.Values)
				if err != nil {
					slog.WarnContext(ctx, "skipping malformed stream entry", "error", err, "entry_id", msg.ID)
					continue
				}
				sseWrite(c.Writer, msg.ID, string(e.Type), e)
				if e.Type == events.RunFinished {
					flusher.Flush()
					return
				}
			}
		}
		flusher.Flush()
	}
}
