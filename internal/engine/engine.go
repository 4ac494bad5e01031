package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"medboard/internal/analysis"
	"medboard/internal/config"
	"medboard/internal/domain"
	"medboard/internal/engine/auth"
	"medboard/internal/events"
	"medboard/internal/inflight"
	"medboard/internal/kanban"
	"medboard/internal/repo"
)

var (
	ErrNotOnboarded        = errors.New("user has not completed onboarding")
	ErrAlreadyOnboarded    = errors.New("user is already onboarded")
	ErrDuplicateRecordName = errors.New("a record with this name already exists")
	ErrNoAnalysis          = errors.New("record has no analysis yet")
	ErrNoAnalyzer          = errors.New("document analysis is not configured")
	ErrInvalidPlan         = errors.New("generated plan is not a valid board")
	// ErrBusy is returned while the same operation runs for the same record.
	ErrBusy = errors.New("operation already in progress")
	// ErrInvalid wraps input validation failures.
	ErrInvalid = errors.New("invalid input")
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// RecordCache serves record lists and is told when they change.
type RecordCache interface {
	ListRecordsByOwner(ctx context.Context, email string) ([]domain.Record, error)
	Evict(ctx context.Context, email string)
}

type Engine struct {
	DB       *sql.DB
	Repo     repo.Repo
	Events   events.Writer
	Config   *config.Config
	Cache    RecordCache
	Analyzer analysis.Analyzer
	Boards   *kanban.Bridge
	Log      log.FieldLogger
	Now      func() time.Time
	NewID    func() string

	busy *inflight.Guard
}

func New(db *sql.DB, cfg *config.Config) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	e := Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Config: cfg,
		Log:    log.StandardLogger(),
		Now:    time.Now,
		NewID:  uuid.NewString,
		busy:   &inflight.Guard{},
	}
	e.Boards = kanban.NewBridge(boardStore{repo: e.Repo, events: e.Events, db: db})
	return e
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) newID() string {
	if e.NewID != nil {
		return e.NewID()
	}
	return uuid.NewString()
}

func (e Engine) logger() log.FieldLogger {
	if e.Log == nil {
		return log.StandardLogger()
	}
	return e.Log
}

func (e Engine) acquire(op, recordID string) (func(), error) {
	if e.busy == nil {
		return func() {}, nil
	}
	release, ok := e.busy.TryAcquire(op + ":" + recordID)
	if !ok {
		return nil, fmt.Errorf("%w: %s for record %s", ErrBusy, op, recordID)
	}
	return release, nil
}

// Busy reports whether op (analyze or plan) is running for a record.
func (e Engine) Busy(op, recordID string) bool {
	return e.busy != nil && e.busy.Busy(op+":"+recordID)
}

func (e Engine) evict(ctx context.Context, email string) {
	if e.Cache != nil {
		e.Cache.Evict(ctx, email)
	}
}

// OnboardOptions is the profile collected on first login.
type OnboardOptions struct {
	Username string
	Age      int
	Location string
}

// Onboard creates the profile of the identity email. Each identity gets one.
func (e Engine) Onboard(ctx context.Context, email string, opts OnboardOptions) (domain.User, error) {
	email = auth.NormalizeEmail(email)
	if email == "" {
		return domain.User{}, invalid("email is required")
	}
	opts.Username = strings.TrimSpace(opts.Username)
	opts.Location = strings.TrimSpace(opts.Location)
	if opts.Username == "" {
		return domain.User{}, invalid("username is required")
	}
	if opts.Age <= 0 || opts.Age > 150 {
		return domain.User{}, invalid("age must be between 1 and 150")
	}
	if opts.Location == "" {
		return domain.User{}, invalid("location is required")
	}
	if _, err := e.Repo.UserByEmail(ctx, email); err == nil {
		return domain.User{}, ErrAlreadyOnboarded
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.User{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.User{}, err
	}
	defer tx.Rollback()
	u := domain.User{
		ID:        e.newID(),
		Username:  opts.Username,
		Age:       opts.Age,
		Location:  opts.Location,
		CreatedBy: email,
		CreatedAt: e.now().UTC().Format(time.RFC3339),
	}
	if err := e.Repo.InsertUser(ctx, tx, u); err != nil {
		if errors.Is(err, repo.ErrConflict) {
			return domain.User{}, ErrAlreadyOnboarded
		}
		return domain.User{}, fmt.Errorf("insert user: %w", err)
	}
	if err := e.Events.Append(ctx, tx, events.Event{
		Type: events.UserOnboarded, EntityKind: "user", EntityID: u.ID, Actor: email,
		Payload: events.EventPayload{"username": u.Username},
	}); err != nil {
		return domain.User{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.User{}, err
	}
	e.logger().WithFields(log.Fields{"email": email, "user_id": u.ID}).Info("user onboarded")
	return u, nil
}

// CurrentUser returns the profile of email or ErrNotOnboarded.
func (e Engine) CurrentUser(ctx context.Context, email string) (domain.User, error) {
	u, err := e.Repo.UserByEmail(ctx, auth.NormalizeEmail(email))
	if errors.Is(err, repo.ErrNotFound) {
		return domain.User{}, ErrNotOnboarded
	}
	return u, err
}

// CreateRecord adds a named record folder. Names are unique per user.
func (e Engine) CreateRecord(ctx context.Context, email, name string) (domain.Record, error) {
	email = auth.NormalizeEmail(email)
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Record{}, invalid("record name is required")
	}
	u, err := e.CurrentUser(ctx, email)
	if err != nil {
		return domain.Record{}, err
	}
	if _, err := e.Repo.RecordByName(ctx, u.ID, name); err == nil {
		return domain.Record{}, ErrDuplicateRecordName
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.Record{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Record{}, err
	}
	defer tx.Rollback()
	now := e.now().UTC().Format(time.RFC3339Nano)
	rec := domain.Record{
		ID:         e.newID(),
		UserID:     u.ID,
		RecordName: name,
		CreatedBy:  email,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := e.Repo.InsertRecord(ctx, tx, rec); err != nil {
		if errors.Is(err, repo.ErrConflict) {
			return domain.Record{}, ErrDuplicateRecordName
		}
		return domain.Record{}, fmt.Errorf("insert record: %w", err)
	}
	if err := e.Events.Append(ctx, tx, events.Event{
		Type: events.RecordCreated, RecordID: rec.ID, EntityKind: "record", EntityID: rec.ID, Actor: email,
		Payload: events.EventPayload{"record_name": name},
	}); err != nil {
		return domain.Record{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Record{}, err
	}
	e.evict(ctx, email)
	e.logger().WithFields(log.Fields{"email": email, "record_id": rec.ID}).Info("record created")
	return rec, nil
}

// ListRecords returns the records of email, oldest first.
func (e Engine) ListRecords(ctx context.Context, email string) ([]domain.Record, error) {
	email = auth.NormalizeEmail(email)
	if _, err := e.CurrentUser(ctx, email); err != nil {
		return nil, err
	}
	if e.Cache != nil {
		return e.Cache.ListRecordsByOwner(ctx, email)
	}
	return e.Repo.ListRecordsByOwner(ctx, email)
}

// GetRecord returns a record owned by email.
func (e Engine) GetRecord(ctx context.Context, email, id string) (domain.Record, error) {
	rec, err := e.Repo.GetRecord(ctx, id)
	if err != nil {
		return domain.Record{}, err
	}
	if err := auth.EnsureOwner("record", id, rec.CreatedBy, email); err != nil {
		return domain.Record{}, err
	}
	return rec, nil
}

// RecordEvents returns the newest events of a record.
func (e Engine) RecordEvents(ctx context.Context, email, id string, limit int, before int64) ([]domain.Event, error) {
	if _, err := e.GetRecord(ctx, email, id); err != nil {
		return nil, err
	}
	return e.Repo.LatestEvents(ctx, repo.EventFilter{RecordID: id, Limit: limit, Before: before})
}

// TailEvents returns the newest events across all records of email.
func (e Engine) TailEvents(ctx context.Context, email string, limit int) ([]domain.Event, error) {
	return e.Repo.LatestEvents(ctx, repo.EventFilter{Actor: auth.NormalizeEmail(email), Limit: limit})
}
