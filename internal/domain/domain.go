package domain

type User struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Age       int    `json:"age"`
	Location  string `json:"location"`
	CreatedBy string `json:"created_by" format:"email"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// Record is a named folder holding one analysis and one board.
type Record struct {
	ID             string `json:"id"`
	UserID         string `json:"user_id"`
	RecordName     string `json:"record_name"`
	AnalysisResult string `json:"analysis_result,omitempty"`
	KanbanRecord   string `json:"kanban_record,omitempty"`
	CreatedBy      string `json:"created_by"`
	CreatedAt      string `json:"created_at" format:"date-time"`
	UpdatedAt      string `json:"updated_at" format:"date-time"`
}

func (r Record) HasAnalysis() bool { return r.AnalysisResult != "" }

func (r Record) HasBoard() bool { return r.KanbanRecord != "" }

// RecordSummary is the list view used by the record switcher.
type RecordSummary struct {
	ID          string `json:"id"`
	RecordName  string `json:"record_name"`
	HasAnalysis bool   `json:"has_analysis"`
	HasBoard    bool   `json:"has_board"`
	UpdatedAt   string `json:"updated_at" format:"date-time"`
}

func (r Record) Summary() RecordSummary {
	return RecordSummary{
		ID:          r.ID,
		RecordName:  r.RecordName,
		HasAnalysis: r.HasAnalysis(),
		HasBoard:    r.HasBoard(),
		UpdatedAt:   r.UpdatedAt,
	}
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	RecordID   string `json:"record_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	Actor      string `json:"actor"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"-"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
