package server

import (
	"encoding/json"

	"medboard/internal/domain"
	"medboard/internal/engine"
	"medboard/internal/kanban"
)

// Request payloads

type DevLoginRequest struct {
	Email string `json:"email" format:"email"`
}

type OnboardRequest struct {
	Username string `json:"username" minLength:"1"`
	Age      int    `json:"age" minimum:"1" maximum:"150"`
	Location string `json:"location" minLength:"1"`
}

type CreateRecordRequest struct {
	RecordName string `json:"record_name" minLength:"1"`
}

type AnalysisRequest struct {
	MIMEType string `json:"mime_type,omitempty" example:"application/pdf"`
	Document string `json:"document" doc:"Base64 document body or data URL"`
}

type BoardOpsRequest struct {
	Ops  []engine.BoardOp `json:"ops"`
	Save bool             `json:"save,omitempty"`
}

type DragReplayRequest struct {
	Events []kanban.PointerEvent `json:"events"`
	Save   bool                  `json:"save,omitempty"`
}

type CreateAPIKeyRequest struct {
	Name string `json:"name,omitempty"`
}

// Response payloads

type DevLoginResponse struct {
	Token string `json:"token"`
}

type MeResponse struct {
	Email     string       `json:"email"`
	Source    string       `json:"source"`
	Onboarded bool         `json:"onboarded"`
	User      *domain.User `json:"user,omitempty"`
}

type RecordListResponse struct {
	Items []domain.RecordSummary `json:"items"`
}

type BoardResponse struct {
	RecordID string          `json:"record_id"`
	Columns  []kanban.Column `json:"columns"`
	Tasks    []kanban.Task   `json:"tasks"`
	Notice   string          `json:"notice,omitempty"`
	Dropped  []kanban.Task   `json:"dropped,omitempty"`
}

type PlanResponse struct {
	BoardResponse
	Generated bool `json:"generated"`
}

type BoardOpsResponse struct {
	Board   BoardResponse     `json:"board"`
	Results []engine.OpResult `json:"results"`
	Saved   bool              `json:"saved"`
}

type DragReplayResponse struct {
	Board   BoardResponse       `json:"board"`
	Changed bool                `json:"changed"`
	Drops   []kanban.DropResult `json:"drops"`
	Saved   bool                `json:"saved"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	RecordID   string         `json:"record_id,omitempty"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	Actor      string         `json:"actor"`
	Payload    map[string]any `json:"payload"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

type APIKeyResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
	// Key is only set when the key is created.
	Key string `json:"key,omitempty"`
}

// Conversion helpers

func boardResponse(v engine.BoardView) BoardResponse {
	return BoardResponse{
		RecordID: v.RecordID,
		Columns:  v.Board.Columns(),
		Tasks:    v.Board.Tasks(),
		Notice:   v.Report.Notice(),
		Dropped:  v.Report.Dropped,
	}
}

func recordSummaries(recs []domain.Record) []domain.RecordSummary {
	out := make([]domain.RecordSummary, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.Summary())
	}
	return out
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		RecordID:   e.RecordID,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		Actor:      e.Actor,
		Payload:    decodeJSONMap(e.Payload),
	}
}

func apiKeyResponse(k domain.APIKey) APIKeyResponse {
	return APIKeyResponse{ID: k.ID, Name: k.Name, CreatedAt: k.CreatedAt}
}

func decodeJSONMap(raw string) map[string]any {
	out := map[string]any{}
	if raw == "" {
		return out
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return map[string]any{"raw": raw}
	}
	return out
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
