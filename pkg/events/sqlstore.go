package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"review-insights/pkg/database"
	errs "review-insights/pkg/errors"
)

// SQLEventStore stores events in analysis_events with ordered sequence ids:
//
//	CREATE TABLE analysis_events (
//	  seq      BIGSERIAL PRIMARY KEY,   -- BIGINT AUTO_INCREMENT on MySQL
//	  id       TEXT NOT NULL UNIQUE,
//	  run_id   TEXT NOT NULL,
//	  type     TEXT NOT NULL,
//	  place_id TEXT NOT NULL,
//	  at       TIMESTAMPTZ NOT NULL,
//	  data     JSONB NOT NULL          -- JSON on MySQL
//	);
type SQLEventStore struct {
	db      *database.DB
	timeout time.Duration
}

func NewSQLEventStore(db *database.DB, timeout time.Duration) *SQLEventStore {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &SQLEventStore{db: db, timeout: timeout}
}

// Publish appends events in one transaction.
func (s *SQLEventStore) Publish(ctx context.Context, ev ...Event) error {
	if len(ev) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	tx, err := s.db.Conn().BeginTx(ctx, nil)
	if err != nil {
		return errs.NewDB("events.publish", "begin tx", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, s.db.Rebind(`INSERT INTO analysis_events (id, run_id, type, place_id, at, data) VALUES (?,?,?,?,?,?)`))
	if err != nil {
		return errs.NewDB("events.publish", "prepare insert", err)
	}
	defer stmt.Close()

	for _, e := range ev {
		b, err := e.MarshalData()
		if err != nil {
			return fmt.Errorf("marshal %s: %w", e.Type(), err)
		}
		at := e.Timestamp()
		if at.IsZero() {
			at = time.Now().UTC()
		}
		if _, err := stmt.ExecContext(ctx, e.ID(), e.RunID(), e.Type(), e.PlaceID(), at, string(b)); err != nil {
			return errs.NewDB("events.publish", "insert event", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errs.NewDB("events.publish", "commit", err)
	}
	return nil
}

// ListByPlace returns the place's events oldest first. A positive limit keeps
// only the newest limit events.
func (s *SQLEventStore) ListByPlace(ctx context.Context, placeID string, limit int) ([]StoredEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	q := `SELECT seq, id, run_id, place_id, type, at, data FROM analysis_events WHERE place_id = ? ORDER BY seq DESC`
	args := []any{placeID}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.Conn().QueryContext(ctx, s.db.Rebind(q), args...)
	if err != nil {
		return nil, errs.NewDB("events.list", "query events", err)
	}
	defer rows.Close()

	var out []StoredEvent
	for rows.Next() {
		var se StoredEvent
		var data []byte
		if err := rows.Scan(&se.Seq, &se.ID, &se.RunID, &se.PlaceID, &se.Type, &se.Ts, &data); err != nil {
			return nil, errs.NewDB("events.list", "scan event", err)
		}
		se.Data = json.RawMessage(data)
		out = append(out, se)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.NewDB("events.list", "iterate events", err)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *SQLEventStore) Replay(ctx context.Context, placeID string) (*RunState, error) {
	events, err := s.ListByPlace(ctx, placeID, 0)
	if err != nil {
		return nil, err
	}
	return Replay(placeID, events), nil
}
