package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/sentinel/internal/activity"
	"github.com/odyssey-erp/sentinel/internal/shared"
)

// Recorder appends activity entries.
type Recorder interface {
	Record(ctx context.Context, entry activity.Entry) error
}

// Attempt is a single login request.
type Attempt struct {
	Email     string
	Password  string
	IP        string
	UserAgent string
}

// Service wraps authentication business rules.
type Service struct {
	repo     Repository
	throttle *Throttle
	recorder Recorder
	logger   *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithThrottle locks out repeated failures.
func WithThrottle(t *Throttle) Option {
	return func(s *Service) { s.throttle = t }
}

// WithRecorder writes logins and logouts to the activity log.
func WithRecorder(r Recorder, logger *slog.Logger) Option {
	return func(s *Service) {
		s.recorder = r
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService constructs a new Service.
func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{repo: repo, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Authenticate validates email/password credentials. Unknown, inactive and
// mismatched accounts all yield ErrInvalidCredentials.
func (s *Service) Authenticate(ctx context.Context, attempt Attempt) (*User, error) {
	if s.throttle != nil {
		if err := s.throttle.Check(ctx, attempt.Email, attempt.IP); err != nil {
			return nil, err
		}
	}
	user, err := s.verify(ctx, attempt.Email, attempt.Password)
	if errors.Is(err, shared.ErrInvalidCredentials) && s.throttle != nil {
		if hitErr := s.throttle.Hit(ctx, attempt.Email, attempt.IP); hitErr != nil {
			s.logger.Warn("login throttle", slog.Any("error", hitErr))
		}
	}
	if err != nil {
		return nil, err
	}
	if s.throttle != nil {
		if err := s.throttle.Clear(ctx, attempt.Email, attempt.IP); err != nil {
			s.logger.Warn("login throttle clear", slog.Any("error", err))
		}
	}
	s.record(ctx, user.ID, "auth.login", "Signed in", map[string]any{"ip": attempt.IP})
	return user, nil
}

func (s *Service) verify(ctx context.Context, email, password string) (*User, error) {
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("auth: find user: %w", err)
	}
	if !user.IsActive {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	return user, nil
}

// RegisterSession records the session for auditing.
func (s *Service) RegisterSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	return s.repo.CreateSession(ctx, id, userID, expiresAt, ip, ua)
}

// RemoveSession deletes the audit record of a session. userID is zero for
// anonymous sessions.
func (s *Service) RemoveSession(ctx context.Context, id string, userID int64) error {
	if err := s.repo.DeleteSession(ctx, id); err != nil {
		return err
	}
	if userID > 0 {
		s.record(ctx, userID, "auth.logout", "Signed out", nil)
	}
	return nil
}

func (s *Service) record(ctx context.Context, userID int64, event, description string, props map[string]any) {
	if s.recorder == nil {
		return
	}
	err := s.recorder.Record(ctx, activity.Entry{
		LogName:     activity.LogAccess,
		Event:       event,
		Description: description,
		SubjectType: "User",
		SubjectID:   strconv.FormatInt(userID, 10),
		CauserID:    userID,
		Properties:  props,
	})
	if err != nil {
		s.logger.Error("auth record activity", slog.String("event", event), slog.Any("error", err))
	}
}
