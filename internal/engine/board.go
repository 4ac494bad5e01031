package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"medboard/internal/events"
	"medboard/internal/kanban"
	"medboard/internal/repo"
)

type actorKey struct{}

func withActor(ctx context.Context, email string) context.Context {
	return context.WithValue(ctx, actorKey{}, email)
}

func actorFrom(ctx context.Context) string {
	email, _ := ctx.Value(actorKey{}).(string)
	return email
}

// boardStore writes board blobs and their board.saved event in one transaction.
type boardStore struct {
	repo   repo.Repo
	events events.Writer
	db     *sql.DB
}

func (s boardStore) KanbanRecord(ctx context.Context, recordID string) (string, error) {
	return s.repo.KanbanRecord(ctx, recordID)
}

func (s boardStore) UpdateKanbanRecord(ctx context.Context, recordID, blob string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := s.repo.UpdateKanbanRecordTx(ctx, tx, recordID, blob); err != nil {
		return err
	}
	payload := events.EventPayload{"bytes": len(blob)}
	if snap, err := kanban.Decode([]byte(blob)); err == nil {
		payload["columns"] = len(snap.Columns)
		payload["tasks"] = len(snap.Tasks)
	}
	if err := s.events.Append(ctx, tx, events.Event{
		Type: events.BoardSaved, RecordID: recordID, EntityKind: "board", EntityID: recordID,
		Actor: actorFrom(ctx), Payload: payload,
	}); err != nil {
		return err
	}
	return tx.Commit()
}

// BoardView is a board loaded for one record.
type BoardView struct {
	RecordID string
	Board    *kanban.Board
	Report   kanban.LoadReport
}

func (e Engine) boardOptions() []kanban.Option {
	if e.NewID == nil {
		return nil
	}
	return []kanban.Option{kanban.WithIDGenerator(e.NewID)}
}

// LoadBoard returns the board of a record. A missing or unreadable blob
// gives an empty board and the report says why.
func (e Engine) LoadBoard(ctx context.Context, email, recordID string) (BoardView, error) {
	if _, err := e.GetRecord(ctx, email, recordID); err != nil {
		return BoardView{}, err
	}
	board, report, err := e.Boards.Load(ctx, recordID, e.boardOptions()...)
	if err != nil {
		return BoardView{}, err
	}
	if report.Malformed != nil || len(report.Dropped) > 0 {
		e.logger().WithFields(log.Fields{"record_id": recordID, "dropped": len(report.Dropped)}).
			WithError(report.Malformed).Warn("stored board repaired on load")
	}
	return BoardView{RecordID: recordID, Board: board, Report: report}, nil
}

// SaveBoard replaces the board of a record with snap.
func (e Engine) SaveBoard(ctx context.Context, email, recordID string, snap kanban.Snapshot) (BoardView, error) {
	if _, err := e.GetRecord(ctx, email, recordID); err != nil {
		return BoardView{}, err
	}
	board, dropped, err := kanban.FromSnapshot(snap, e.boardOptions()...)
	if err != nil {
		return BoardView{}, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if len(dropped) > 0 {
		return BoardView{}, fmt.Errorf("%w: %w: task %s -> column %s", ErrInvalid, kanban.ErrDanglingReference, dropped[0].ID, dropped[0].ColumnID)
	}
	if err := e.saveBoard(ctx, email, recordID, board); err != nil {
		return BoardView{}, err
	}
	return BoardView{RecordID: recordID, Board: board}, nil
}

func (e Engine) saveBoard(ctx context.Context, email, recordID string, board *kanban.Board) error {
	err := e.Boards.Save(withActor(ctx, email), recordID, board)
	if errors.Is(err, kanban.ErrSaveInFlight) {
		return fmt.Errorf("%w: %w", ErrBusy, err)
	}
	if err != nil {
		e.logger().WithFields(log.Fields{"record_id": recordID}).WithError(err).Error("board save failed")
		return err
	}
	e.evict(ctx, email)
	e.logger().WithFields(log.Fields{
		"record_id": recordID,
		"columns":   len(board.Columns()),
		"tasks":     len(board.Tasks()),
	}).Info("board saved")
	return nil
}

// Board operation names accepted by ApplyOps.
const (
	OpAddColumn    = "add_column"
	OpRenameColumn = "rename_column"
	OpDeleteColumn = "delete_column"
	OpMoveColumn   = "move_column"
	OpAddTask      = "add_task"
	OpEditTask     = "edit_task"
	OpDeleteTask   = "delete_task"
	OpMoveTask     = "move_task"
	OpSeedColumns  = "seed_columns"
)

// BoardOp is one edit in a batch. Fields are read per operation: columns use
// ColumnID and Title, tasks TaskID and Content, moves ActiveID and OverID.
type BoardOp struct {
	Op       string `json:"op" enum:"add_column,rename_column,delete_column,move_column,add_task,edit_task,delete_task,move_task,seed_columns"`
	ColumnID string `json:"column_id,omitempty"`
	TaskID   string `json:"task_id,omitempty"`
	ActiveID string `json:"active_id,omitempty"`
	OverID   string `json:"over_id,omitempty"`
	Title    string `json:"title,omitempty"`
	Content  string `json:"content,omitempty"`
}

// OpResult reports the outcome of one BoardOp. ID is the created item for
// add operations.
type OpResult struct {
	Op      string `json:"op"`
	Changed bool   `json:"changed"`
	ID      string `json:"id,omitempty"`
}

// ApplyBoardOps runs ops on b in order. Unknown operations fail the batch.
func ApplyBoardOps(b *kanban.Board, ops []BoardOp, defaultColumns []string) ([]OpResult, error) {
	results := make([]OpResult, 0, len(ops))
	for i, op := range ops {
		res := OpResult{Op: op.Op}
		switch op.Op {
		case OpAddColumn:
			col := b.CreateColumn()
			if op.Title != "" {
				b.RenameColumn(col.ID, op.Title)
			}
			res.Changed, res.ID = true, col.ID
		case OpRenameColumn:
			res.Changed = b.RenameColumn(op.ColumnID, op.Title)
		case OpDeleteColumn:
			res.Changed = b.DeleteColumn(op.ColumnID)
		case OpMoveColumn:
			res.Changed = b.ReorderColumns(op.ActiveID, op.OverID)
		case OpAddTask:
			t, ok := b.CreateTask(op.ColumnID)
			if ok && op.Content != "" {
				b.UpdateTaskContent(t.ID, op.Content)
			}
			res.Changed, res.ID = ok, t.ID
		case OpEditTask:
			res.Changed = b.UpdateTaskContent(op.TaskID, op.Content)
		case OpDeleteTask:
			res.Changed = b.DeleteTask(op.TaskID)
		case OpMoveTask:
			res.Changed = b.ReorderOrReassignTask(op.ActiveID, op.OverID)
		case OpSeedColumns:
			for _, title := range defaultColumns {
				col := b.CreateColumn()
				b.RenameColumn(col.ID, title)
				res.Changed = true
			}
		default:
			return results, invalid("ops[%d]: unknown operation %q", i, op.Op)
		}
		results = append(results, res)
	}
	return results, nil
}

// OpsOutcome is the board after a batch and what each op did.
type OpsOutcome struct {
	BoardView
	Results []OpResult
	Saved   bool
}

// ApplyOps loads the board and applies ops. The board is saved only when
// save is set and some op changed it.
func (e Engine) ApplyOps(ctx context.Context, email, recordID string, ops []BoardOp, save bool) (OpsOutcome, error) {
	view, err := e.LoadBoard(ctx, email, recordID)
	if err != nil {
		return OpsOutcome{}, err
	}
	results, err := ApplyBoardOps(view.Board, ops, e.Config.Board.DefaultColumns)
	if err != nil {
		return OpsOutcome{}, err
	}
	out := OpsOutcome{BoardView: view, Results: results}
	changed := false
	for _, r := range results {
		changed = changed || r.Changed
	}
	if save && changed {
		if err := e.saveBoard(ctx, email, recordID, view.Board); err != nil {
			return OpsOutcome{}, err
		}
		out.Saved = true
	}
	return out, nil
}

// DragOutcome is the board after a replayed pointer gesture.
type DragOutcome struct {
	BoardView
	Replay kanban.ReplayResult
	Saved  bool
}

// ReplayDrag feeds recorded pointer events through a drag session on the
// record's board. The board is saved only when save is set and it changed.
func (e Engine) ReplayDrag(ctx context.Context, email, recordID string, evts []kanban.PointerEvent, save bool) (DragOutcome, error) {
	view, err := e.LoadBoard(ctx, email, recordID)
	if err != nil {
		return DragOutcome{}, err
	}
	session := kanban.NewDragSession(view.Board, e.Config.Board.DragActivationDistance)
	replay, err := session.Replay(evts)
	if err != nil {
		return DragOutcome{}, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	out := DragOutcome{BoardView: view, Replay: replay}
	if save && replay.Changed {
		if err := e.saveBoard(ctx, email, recordID, view.Board); err != nil {
			return DragOutcome{}, err
		}
		out.Saved = true
	}
	return out, nil
}
