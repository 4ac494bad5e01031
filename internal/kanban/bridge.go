package kanban

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"medboard/internal/inflight"
)

// ErrSaveInFlight is returned when a save for the same record is already running.
var ErrSaveInFlight = errors.New("board save already in flight")

// BoardStore reads and writes the board blob of a record.
type BoardStore interface {
	KanbanRecord(ctx context.Context, recordID string) (string, error)
	UpdateKanbanRecord(ctx context.Context, recordID, blob string) error
}

// PersistenceError wraps a store failure. The in-memory board is left as it was.
type PersistenceError struct {
	Op       string
	RecordID string
	Err      error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s board for record %s: %v", e.Op, e.RecordID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Bridge moves boards between memory and a BoardStore.
type Bridge struct {
	Store BoardStore
	Opts  []Option

	saving inflight.Guard
}

func NewBridge(store BoardStore, opts ...Option) *Bridge {
	return &Bridge{Store: store, Opts: opts}
}

// Load reads the stored blob. A missing or malformed blob yields an empty
// board; the report says which. opts are applied after the bridge's own.
func (b *Bridge) Load(ctx context.Context, recordID string, opts ...Option) (*Board, LoadReport, error) {
	blob, err := b.Store.KanbanRecord(ctx, recordID)
	if err != nil {
		return nil, LoadReport{}, &PersistenceError{Op: "load", RecordID: recordID, Err: err}
	}
	board, report := Restore(blob, append(slices.Clone(b.Opts), opts...)...)
	return board, report, nil
}

// Save writes the board snapshot. Only one save per record runs at a time.
func (b *Bridge) Save(ctx context.Context, recordID string, board *Board) error {
	release, ok := b.saving.TryAcquire(recordID)
	if !ok {
		return ErrSaveInFlight
	}
	defer release()
	if err := board.Validate(); err != nil {
		return &PersistenceError{Op: "save", RecordID: recordID, Err: err}
	}
	blob, err := EncodeBoard(board)
	if err != nil {
		return &PersistenceError{Op: "save", RecordID: recordID, Err: err}
	}
	if err := b.Store.UpdateKanbanRecord(ctx, recordID, blob); err != nil {
		return &PersistenceError{Op: "save", RecordID: recordID, Err: err}
	}
	return nil
}

// Saving reports whether a save for recordID is running.
func (b *Bridge) Saving(recordID string) bool { return b.saving.Busy(recordID) }
