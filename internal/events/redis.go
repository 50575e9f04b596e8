package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisSink appends each event to the stream of its run.
type RedisSink struct {
	client *redis.Client
	prefix string
	maxLen int64
}

func NewRedisSink(client *redis.Client, prefix string, maxLen int64) *RedisSink {
	return &RedisSink{client: client, prefix: prefix, maxLen: maxLen}
}

// StreamName is the Redis stream holding the events of one run.
func StreamName(prefix string, runID int64) string {
	return fmt.Sprintf("%s:run-%d", prefix, runID)
}

func (s *RedisSink) Emit(ctx context.Context, e Event) error {
	values, err := StreamValues(e)
	if err != nil {
		return err
	}
	args := &redis.XAddArgs{
		Stream: StreamName(s.prefix, e.RunID),
		Values: values,
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}
	if err := s.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("xadd event: %w", err)
	}
	return nil
}

// StreamValues flattens an event into stream entry fields.
func StreamValues(e Event) (map[string]any, error) {
	values := map[string]any{
		"type":   string(e.Type),
		"time":   e.Time.Format(time.RFC3339Nano),
		"run_id": e.RunID,
	}
	if len(e.Fields) > 0 {
		data, err := json.Marshal(e.Fields)
		if err != nil {
			return nil, fmt.Errorf("marshal event fields: %w", err)
		}
		values["fields"] = string(data)
	}
	return values, nil
}

// ParseStreamValues is the inverse of StreamValues.
func ParseStreamValues(values map[string]any) (Event, error) {
	var e Event
	typ, ok := values["type"]
	if !ok {
		return Event{}, fmt.Errorf("missing type")
	}
	e.Type = Type(fmt.Sprint(typ))

	if raw, ok := values["time"]; ok {
		t, err := time.Parse(time.RFC3339Nano, fmt.Sprint(raw))
		if err != nil {
			return Event{}, fmt.Errorf("parsing time: %w", err)
		}
		e.Time = t
	}
	if raw, ok := values["run_id"]; ok {
		id, err := strconv.ParseInt(fmt.Sprint(raw), 10, 64)
		if err != nil {
			return Event{}, fmt.Errorf("parsing run_id: %w", err)
		}
		e.RunID = id
	}
	if raw, ok := values["fields"]; ok {
		if err := json.Unmarshal([]byte(fmt.Sprint(raw)), &e.Fields); err != nil {
			return Event{}, fmt.Errorf("parsing fields: %w", err)
		}
	}
	return e, nil
}
