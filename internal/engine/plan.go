package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"medboard/internal/analysis"
	"medboard/internal/domain"
	"medboard/internal/events"
	"medboard/internal/kanban"
)

// AnalyzeRecord sends doc to the analyzer and stores the findings. A new
// analysis clears the record's board since the old plan no longer applies.
func (e Engine) AnalyzeRecord(ctx context.Context, email, recordID string, doc analysis.Document) (domain.Record, error) {
	rec, err := e.GetRecord(ctx, email, recordID)
	if err != nil {
		return domain.Record{}, err
	}
	if e.Analyzer == nil {
		return domain.Record{}, ErrNoAnalyzer
	}
	release, err := e.acquire("analyze", recordID)
	if err != nil {
		return domain.Record{}, err
	}
	defer release()

	start := e.now()
	text, err := e.Analyzer.AnalyzeDocument(ctx, doc)
	if err != nil {
		return domain.Record{}, fmt.Errorf("analyze document: %w", err)
	}
	text = strings.TrimSpace(text)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Record{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateAnalysis(ctx, tx, recordID, text); err != nil {
		return domain.Record{}, err
	}
	if err := e.Events.Append(ctx, tx, events.Event{
		Type: events.RecordAnalyzed, RecordID: recordID, EntityKind: "record", EntityID: recordID,
		Actor:   rec.CreatedBy,
		Payload: events.EventPayload{"mime_type": doc.MIMEType, "bytes": len(doc.Data), "board_cleared": rec.HasBoard()},
	}); err != nil {
		return domain.Record{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Record{}, err
	}
	e.evict(ctx, rec.CreatedBy)
	e.logger().WithFields(log.Fields{
		"record_id": recordID,
		"mime_type": doc.MIMEType,
		"elapsed":   e.now().Sub(start).Round(time.Millisecond),
	}).Info("record analyzed")
	return e.Repo.GetRecord(ctx, recordID)
}

// PlanOutcome is the board of a record after GeneratePlan.
type PlanOutcome struct {
	BoardView
	// Generated is false when the record already had a board.
	Generated bool
}

// GeneratePlan returns the record's board, asking the analyzer for one when
// the record has none yet. The model output is validated as a board snapshot
// before it is stored.
func (e Engine) GeneratePlan(ctx context.Context, email, recordID string) (PlanOutcome, error) {
	rec, err := e.GetRecord(ctx, email, recordID)
	if err != nil {
		return PlanOutcome{}, err
	}
	if rec.HasBoard() {
		view, err := e.LoadBoard(ctx, email, recordID)
		if err != nil {
			return PlanOutcome{}, err
		}
		return PlanOutcome{BoardView: view}, nil
	}
	if !rec.HasAnalysis() {
		return PlanOutcome{}, ErrNoAnalysis
	}
	if e.Analyzer == nil {
		return PlanOutcome{}, ErrNoAnalyzer
	}
	release, err := e.acquire("plan", recordID)
	if err != nil {
		return PlanOutcome{}, err
	}
	defer release()

	text, err := e.Analyzer.GeneratePlan(ctx, rec.AnalysisResult)
	if err != nil {
		return PlanOutcome{}, fmt.Errorf("generate plan: %w", err)
	}
	snap, err := kanban.Decode([]byte(analysis.ExtractJSON(text)))
	if err != nil {
		e.logger().WithField("record_id", recordID).WithError(err).Warn("plan rejected")
		return PlanOutcome{}, fmt.Errorf("%w: %w", ErrInvalidPlan, err)
	}
	board, dropped, err := kanban.FromSnapshot(snap, e.boardOptions()...)
	if err != nil {
		return PlanOutcome{}, fmt.Errorf("%w: %w", ErrInvalidPlan, err)
	}
	if len(board.Columns()) == 0 {
		return PlanOutcome{}, fmt.Errorf("%w: no columns", ErrInvalidPlan)
	}
	blob, err := kanban.EncodeBoard(board)
	if err != nil {
		return PlanOutcome{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return PlanOutcome{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateKanbanRecordTx(ctx, tx, recordID, blob); err != nil {
		return PlanOutcome{}, err
	}
	if err := e.Events.Append(ctx, tx, events.Event{
		Type: events.BoardGenerated, RecordID: recordID, EntityKind: "board", EntityID: recordID,
		Actor: rec.CreatedBy,
		Payload: events.EventPayload{
			"columns": len(board.Columns()),
			"tasks":   len(board.Tasks()),
			"dropped": len(dropped),
		},
	}); err != nil {
		return PlanOutcome{}, err
	}
	if err := tx.Commit(); err != nil {
		return PlanOutcome{}, err
	}
	e.evict(ctx, rec.CreatedBy)
	e.logger().WithFields(log.Fields{"record_id": recordID, "tasks": len(board.Tasks())}).Info("plan generated")
	return PlanOutcome{
		BoardView: BoardView{RecordID: recordID, Board: board, Report: kanban.LoadReport{Dropped: dropped}},
		Generated: true,
	}, nil
}
