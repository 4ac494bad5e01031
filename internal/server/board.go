package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"medboard/internal/engine"
	"medboard/internal/kanban"
)

func registerBoard(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-board",
		Method:      http.MethodGet,
		Path:        "/records/{record_id}/board",
		Summary:     "Get the treatment board of a record",
		Description: "A stored board that cannot be read is returned empty with a notice.",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *recordPath) (*struct {
		Body BoardResponse `json:"body"`
	}, error) {
		email, authErr := emailFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		view, err := e.LoadBoard(ctx, email, input.RecordID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body BoardResponse `json:"body"`
		}{Body: boardResponse(view)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "put-board",
		Method:      http.MethodPut,
		Path:        "/records/{record_id}/board",
		Summary:     "Replace the treatment board of a record",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		RecordID string          `path:"record_id"`
		Body     kanban.Snapshot `json:"body"`
	}) (*struct {
		Body BoardResponse `json:"body"`
	}, error) {
		email, authErr := emailFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		view, err := e.SaveBoard(ctx, email, input.RecordID, input.Body)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body BoardResponse `json:"body"`
		}{Body: boardResponse(view)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "apply-board-ops",
		Method:      http.MethodPost,
		Path:        "/records/{record_id}/board/ops",
		Summary:     "Apply board edits in order",
		Description: "Each op reports whether it changed the board. The board is stored only when save is set.",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		RecordID string          `path:"record_id"`
		Body     BoardOpsRequest `json:"body"`
	}) (*struct {
		Body BoardOpsResponse `json:"body"`
	}, error) {
		email, authErr := emailFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		out, err := e.ApplyOps(ctx, email, input.RecordID, input.Body.Ops, input.Body.Save)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body BoardOpsResponse `json:"body"`
		}{Body: BoardOpsResponse{
			Board:   boardResponse(out.BoardView),
			Results: nonNilSlice(out.Results),
			Saved:   out.Saved,
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "replay-board-drag",
		Method:      http.MethodPost,
		Path:        "/records/{record_id}/board/drag",
		Summary:     "Replay a pointer gesture on the board",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		RecordID string            `path:"record_id"`
		Body     DragReplayRequest `json:"body"`
	}) (*struct {
		Body DragReplayResponse `json:"body"`
	}, error) {
		email, authErr := emailFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		out, err := e.ReplayDrag(ctx, email, input.RecordID, input.Body.Events, input.Body.Save)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body DragReplayResponse `json:"body"`
		}{Body: DragReplayResponse{
			Board:   boardResponse(out.BoardView),
			Changed: out.Replay.Changed,
			Drops:   nonNilSlice(out.Replay.Drops),
			Saved:   out.Saved,
		}}, nil
	})
}
