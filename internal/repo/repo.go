package repo

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"medboard/internal/domain"
)

type Repo struct {
	DB  *sql.DB
	Now func() time.Time
}

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a unique constraint rejects a write.
	ErrConflict = errors.New("conflict")
)

func (r Repo) now() string {
	if r.Now == nil {
		return time.Now().UTC().Format(time.RFC3339Nano)
	}
	return r.Now().UTC().Format(time.RFC3339Nano)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (r Repo) execer(tx *sql.Tx) execer {
	if tx != nil {
		return tx
	}
	return r.DB
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func mapWriteErr(err error) error {
	if isUniqueViolation(err) {
		return ErrConflict
	}
	return err
}

const userColumns = `id,username,age,location,created_by,created_at`

func scanUser(row interface{ Scan(...any) error }) (domain.User, error) {
	var u domain.User
	err := row.Scan(&u.ID, &u.Username, &u.Age, &u.Location, &u.CreatedBy, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return u, ErrNotFound
	}
	return u, err
}

func (r Repo) InsertUser(ctx context.Context, tx *sql.Tx, u domain.User) error {
	if u.CreatedAt == "" {
		u.CreatedAt = r.now()
	}
	_, err := r.execer(tx).ExecContext(ctx, `INSERT INTO users(`+userColumns+`) VALUES (?,?,?,?,?,?)`,
		u.ID, u.Username, u.Age, u.Location, u.CreatedBy, u.CreatedAt)
	return mapWriteErr(err)
}

// UserByEmail returns the profile created by the given identity.
func (r Repo) UserByEmail(ctx context.Context, email string) (domain.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE created_by=?`, email))
}

func (r Repo) GetUser(ctx context.Context, id string) (domain.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=?`, id))
}

const recordColumns = `id,user_id,record_name,analysis_result,kanban_record,created_by,created_at,updated_at`

func scanRecord(row interface{ Scan(...any) error }) (domain.Record, error) {
	var rec domain.Record
	err := row.Scan(&rec.ID, &rec.UserID, &rec.RecordName, &rec.AnalysisResult, &rec.KanbanRecord,
		&rec.CreatedBy, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return rec, ErrNotFound
	}
	return rec, err
}

// InsertRecord stores a new record. A second record with the same name for
// the same user fails with ErrConflict.
func (r Repo) InsertRecord(ctx context.Context, tx *sql.Tx, rec domain.Record) error {
	if rec.CreatedAt == "" {
		rec.CreatedAt = r.now()
	}
	if rec.UpdatedAt == "" {
		rec.UpdatedAt = rec.CreatedAt
	}
	_, err := r.execer(tx).ExecContext(ctx, `INSERT INTO records(`+recordColumns+`) VALUES (?,?,?,?,?,?,?,?)`,
		rec.ID, rec.UserID, rec.RecordName, rec.AnalysisResult, rec.KanbanRecord, rec.CreatedBy, rec.CreatedAt, rec.UpdatedAt)
	return mapWriteErr(err)
}

func (r Repo) GetRecord(ctx context.Context, id string) (domain.Record, error) {
	return scanRecord(r.DB.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM records WHERE id=?`, id))
}

// RecordByName looks up a record of one user by its folder name.
func (r Repo) RecordByName(ctx context.Context, userID, name string) (domain.Record, error) {
	return scanRecord(r.DB.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM records WHERE user_id=? AND record_name=?`, userID, name))
}

// ListRecordsByOwner returns the records created by an identity, oldest first.
func (r Repo) ListRecordsByOwner(ctx context.Context, email string) ([]domain.Record, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+recordColumns+` FROM records WHERE created_by=? ORDER BY created_at ASC, id ASC`, email)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

// UpdateAnalysis stores a new analysis and clears the board it invalidates.
func (r Repo) UpdateAnalysis(ctx context.Context, tx *sql.Tx, id, analysis string) error {
	res, err := r.execer(tx).ExecContext(ctx, `UPDATE records SET analysis_result=?, kanban_record='', updated_at=? WHERE id=?`,
		analysis, r.now(), id)
	return affectedOne(res, err)
}

func (r Repo) UpdateKanbanRecordTx(ctx context.Context, tx *sql.Tx, id, blob string) error {
	res, err := r.execer(tx).ExecContext(ctx, `UPDATE records SET kanban_record=?, updated_at=? WHERE id=?`, blob, r.now(), id)
	return affectedOne(res, err)
}

// KanbanRecord returns the stored board blob of a record.
func (r Repo) KanbanRecord(ctx context.Context, id string) (string, error) {
	var blob string
	err := r.DB.QueryRowContext(ctx, `SELECT kanban_record FROM records WHERE id=?`, id).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return blob, err
}

// UpdateKanbanRecord replaces the stored board blob of a record.
func (r Repo) UpdateKanbanRecord(ctx context.Context, id, blob string) error {
	return r.UpdateKanbanRecordTx(ctx, nil, id, blob)
}

func affectedOne(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
