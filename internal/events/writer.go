package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

const (
	UserOnboarded  = "user.onboarded"
	RecordCreated  = "record.created"
	RecordAnalyzed = "record.analyzed"
	BoardGenerated = "board.generated"
	BoardSaved     = "board.saved"
	APIKeyCreated  = "api_key.created"
)

type Writer struct {
	Now func() time.Time
}

type EventPayload map[string]any

// Event is one row to append to the log.
type Event struct {
	Type       string
	RecordID   string
	EntityKind string
	EntityID   string
	Actor      string
	Payload    EventPayload
}

// Append writes evt inside tx so it commits together with the change it
// describes.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, evt Event) error {
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	ts := now().UTC().Format(time.RFC3339Nano)
	payload := evt.Payload
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,type,record_id,entity_kind,entity_id,actor,payload_json) VALUES (?,?,?,?,?,?,?)`,
		ts, evt.Type, nullable(evt.RecordID), evt.EntityKind, nullable(evt.EntityID), evt.Actor, string(data))
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
