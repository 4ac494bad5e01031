package medboardsdk

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal medboard HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v1",
		Timeout:  30 * time.Second,
	}
}

type User struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Age       int    `json:"age"`
	Location  string `json:"location"`
	CreatedBy string `json:"created_by"`
	CreatedAt string `json:"created_at"`
}

type Record struct {
	ID             string `json:"id"`
	UserID         string `json:"user_id"`
	RecordName     string `json:"record_name"`
	AnalysisResult string `json:"analysis_result,omitempty"`
	KanbanRecord   string `json:"kanban_record,omitempty"`
	CreatedAt      string `json:"created_at"`
	UpdatedAt      string `json:"updated_at"`
}

type RecordSummary struct {
	ID          string `json:"id"`
	RecordName  string `json:"record_name"`
	HasAnalysis bool   `json:"has_analysis"`
	HasBoard    bool   `json:"has_board"`
	UpdatedAt   string `json:"updated_at"`
}

type Column struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type Task struct {
	ID       string `json:"id"`
	ColumnID string `json:"columnId"`
	Content  string `json:"content"`
}

// Board is a record's treatment board. Notice is set when the stored board
// could not be read and was replaced or repaired.
type Board struct {
	RecordID string   `json:"record_id"`
	Columns  []Column `json:"columns"`
	Tasks    []Task   `json:"tasks"`
	Notice   string   `json:"notice,omitempty"`
	Dropped  []Task   `json:"dropped,omitempty"`
}

type Plan struct {
	Board
	Generated bool `json:"generated"`
}

// BoardOp is one edit for ApplyOps. Op is one of add_column, rename_column,
// delete_column, move_column, add_task, edit_task, delete_task, move_task or
// seed_columns.
type BoardOp struct {
	Op       string `json:"op"`
	ColumnID string `json:"column_id,omitempty"`
	TaskID   string `json:"task_id,omitempty"`
	ActiveID string `json:"active_id,omitempty"`
	OverID   string `json:"over_id,omitempty"`
	Title    string `json:"title,omitempty"`
	Content  string `json:"content,omitempty"`
}

type OpResult struct {
	Op      string `json:"op"`
	Changed bool   `json:"changed"`
	ID      string `json:"id,omitempty"`
}

type OpsResult struct {
	Board   Board      `json:"board"`
	Results []OpResult `json:"results"`
	Saved   bool       `json:"saved"`
}

type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	RecordID   string         `json:"record_id"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id"`
	Actor      string         `json:"actor"`
	Payload    map[string]any `json:"payload"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d code=%s body=%s", e.StatusCode, e.Code, e.Body)
}

// Onboard creates the profile of the authenticated identity.
func (c *Client) Onboard(ctx context.Context, username string, age int, location string) (User, error) {
	body := map[string]any{"username": username, "age": age, "location": location}
	var resp User
	err := c.do(ctx, http.MethodPost, "users", body, &resp)
	return resp, err
}

// CreateRecord creates a named record folder.
func (c *Client) CreateRecord(ctx context.Context, name string) (Record, error) {
	var resp Record
	err := c.do(ctx, http.MethodPost, "records", map[string]any{"record_name": name}, &resp)
	return resp, err
}

// Records lists the identity's record folders.
func (c *Client) Records(ctx context.Context) ([]RecordSummary, error) {
	var resp struct {
		Items []RecordSummary `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, "records", nil, &resp)
	return resp.Items, err
}

// Analyze uploads a document for analysis.
func (c *Client) Analyze(ctx context.Context, recordID, mimeType string, document []byte) (Record, error) {
	body := map[string]any{
		"mime_type": mimeType,
		"document":  base64.StdEncoding.EncodeToString(document),
	}
	var resp Record
	err := c.do(ctx, http.MethodPost, c.recordPath(recordID, "analysis"), body, &resp)
	return resp, err
}

// Plan returns the record's board, generating it from the analysis when the
// record has none.
func (c *Client) Plan(ctx context.Context, recordID string) (Plan, error) {
	var resp Plan
	err := c.do(ctx, http.MethodPost, c.recordPath(recordID, "plan"), nil, &resp)
	return resp, err
}

func (c *Client) Board(ctx context.Context, recordID string) (Board, error) {
	var resp Board
	err := c.do(ctx, http.MethodGet, c.recordPath(recordID, "board"), nil, &resp)
	return resp, err
}

// SaveBoard replaces the stored board.
func (c *Client) SaveBoard(ctx context.Context, recordID string, columns []Column, tasks []Task) (Board, error) {
	if columns == nil {
		columns = []Column{}
	}
	if tasks == nil {
		tasks = []Task{}
	}
	var resp Board
	err := c.do(ctx, http.MethodPut, c.recordPath(recordID, "board"), map[string]any{"columns": columns, "tasks": tasks}, &resp)
	return resp, err
}

// ApplyOps runs board edits in order, saving when save is set.
func (c *Client) ApplyOps(ctx context.Context, recordID string, ops []BoardOp, save bool) (OpsResult, error) {
	var resp OpsResult
	err := c.do(ctx, http.MethodPost, c.recordPath(recordID, "board/ops"), map[string]any{"ops": ops, "save": save}, &resp)
	return resp, err
}

// EventsPage returns a page of a record's events, newest first.
func (c *Client) EventsPage(ctx context.Context, recordID string, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := c.recordPath(recordID, "events")
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code string `json:"code"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) recordPath(recordID, p string) string {
	return fmt.Sprintf("records/%s/%s", url.PathEscape(recordID), strings.TrimLeft(p, "/"))
}

func (c *Client) base() string {
	base := strings.TrimRight(c.BaseURL, "/")
	if bp := strings.Trim(c.BasePath, "/"); bp != "" {
		base += "/" + bp
	}
	return base
}
