package app

import (
	"context"
	"errors"

	"medboard/internal/domain"
	"medboard/internal/engine"
)

// ErrLoggedOut is returned by Session methods after Logout or before Login.
var ErrLoggedOut = errors.New("no active session")

// ErrNoActiveRecord is returned when no record has been selected.
var ErrNoActiveRecord = errors.New("no record selected")

// Session is the identity a client acts as, from login to logout. It is
// passed explicitly to whatever needs the current user.
type Session struct {
	engine engine.Engine
	email  string
	user   *domain.User
	record string
}

func NewSession(e engine.Engine) *Session {
	return &Session{engine: e}
}

// Login starts a session for email. An identity without a profile still
// logs in; Onboarded reports false until Onboard succeeds.
func (s *Session) Login(ctx context.Context, email string) error {
	email, err := Identity(email)
	if err != nil {
		return err
	}
	u, err := s.engine.CurrentUser(ctx, email)
	switch {
	case err == nil:
		s.user = &u
	case errors.Is(err, engine.ErrNotOnboarded):
		s.user = nil
	default:
		return err
	}
	s.email = email
	s.record = ""
	return nil
}

// Logout clears all session state.
func (s *Session) Logout() {
	s.email, s.user, s.record = "", nil, ""
}

func (s *Session) Email() string { return s.email }

func (s *Session) LoggedIn() bool { return s.email != "" }

func (s *Session) Onboarded() bool { return s.user != nil }

// User returns the profile, or engine.ErrNotOnboarded.
func (s *Session) User() (domain.User, error) {
	if !s.LoggedIn() {
		return domain.User{}, ErrLoggedOut
	}
	if s.user == nil {
		return domain.User{}, engine.ErrNotOnboarded
	}
	return *s.user, nil
}

func (s *Session) Onboard(ctx context.Context, opts engine.OnboardOptions) (domain.User, error) {
	if !s.LoggedIn() {
		return domain.User{}, ErrLoggedOut
	}
	u, err := s.engine.Onboard(ctx, s.email, opts)
	if err != nil {
		return domain.User{}, err
	}
	s.user = &u
	return u, nil
}

// SelectRecord makes recordID the active record after checking ownership.
func (s *Session) SelectRecord(ctx context.Context, recordID string) (domain.Record, error) {
	if !s.LoggedIn() {
		return domain.Record{}, ErrLoggedOut
	}
	rec, err := s.engine.GetRecord(ctx, s.email, recordID)
	if err != nil {
		return domain.Record{}, err
	}
	s.record = rec.ID
	return rec, nil
}

// ActiveRecord is the selected record id, empty when none.
func (s *Session) ActiveRecord() string { return s.record }

// ActiveBoard loads the board of the selected record.
func (s *Session) ActiveBoard(ctx context.Context) (engine.BoardView, error) {
	if !s.LoggedIn() {
		return engine.BoardView{}, ErrLoggedOut
	}
	if s.record == "" {
		return engine.BoardView{}, ErrNoActiveRecord
	}
	return s.engine.LoadBoard(ctx, s.email, s.record)
}
