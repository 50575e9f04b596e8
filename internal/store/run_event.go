package store

import (
	"context"
	"encoding/json"
	"fmt"

	"basegraph.app/harmony/core/db"
	"basegraph.app/harmony/internal/events"
	"basegraph.app/harmony/internal/model"
	"github.com/jackc/pgx/v5"
)

const defaultEventPage = 500

type runEventStore struct {
	conn db.DBTX
}

func newRunEventStore(conn db.DBTX) RunEventStore {
	return &runEventStore{conn: conn}
}

// AppendEvent stores e under its run. Events without a run id are dropped.
func (s *runEventStore) AppendEvent(ctx context.Context, e events.Event) error {
	if e.RunID == 0 {
		return nil
	}
	rec, err := ToRunEvent(e)
	if err != nil {
		return err
	}
	_, err = s.conn.Exec(ctx, `
		INSERT INTO run_events (run_id, type, fields, created_at)
		VALUES ($1, $2, $3, $4)`,
		rec.RunID, rec.Type, []byte(rec.Fields), rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting run event: %w", err)
	}
	return nil
}

// ListByRun pages through a run's events in insertion order, starting after afterID.
func (s *runEventStore) ListByRun(ctx context.Context, runID int64, afterID int64, limit int32) ([]model.RunEvent, error) {
	if limit <= 0 {
		limit = defaultEventPage
	}
	rows, err := s.conn.Query(ctx, `
		SELECT id, run_id, type, fields, created_at
		FROM run_events
		WHERE run_id = $1 AND id > $2
		ORDER BY id
		LIMIT $3`,
		runID, afterID, limit)
	if err != nil {
		return nil, err
	}

	result, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.RunEvent, error) {
		var (
			ev     model.RunEvent
			fields []byte
		)
		if err := row.Scan(&ev.ID, &ev.RunID, &ev.Type, &fields, &ev.CreatedAt); err != nil {
			return model.RunEvent{}, err
		}
		ev.Fields = fields
		return ev, nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading run events: %w", err)
	}
	return result, nil
}

// ToRunEvent converts an emitted event to its stored form.
func ToRunEvent(e events.Event) (model.RunEvent, error) {
	fields := e.Fields
	if fields == nil {
		fields = events.Fields{}
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return model.RunEvent{}, fmt.Errorf("encoding event fields: %w", err)
	}
	return model.RunEvent{
		RunID:     e.RunID,
		Type:      string(e.Type),
		Fields:    raw,
		CreatedAt: e.Time,
	}, nil
}

// FromRunEvent converts a stored event back to an events.Event.
func FromRunEvent(rec model.RunEvent) (events.Event, error) {
	var fields events.Fields
	if len(rec.Fields) > 0 {
		if err := json.Unmarshal(rec.Fields, &fields); err != nil {
			return events.Event{}, fmt.Errorf("decoding event fields: %w", err)
		}
	}
	return events.Event{
		Type:   events.Type(rec.Type),
		Time:   rec.CreatedAt,
		RunID:  rec.RunID,
		Fields: fields,
	}, nil
}
