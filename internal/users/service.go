package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/sentinel/internal/activity"
	"github.com/odyssey-erp/sentinel/internal/authz"
	"github.com/odyssey-erp/sentinel/internal/shared"
)

// ErrSelfDeactivation prevents an administrator from locking themselves out.
var ErrSelfDeactivation = errors.New("users: cannot deactivate own account")

// Recorder appends activity entries.
type Recorder interface {
	Record(ctx context.Context, entry activity.Entry) error
}

// PrincipalCache drops cached authorization snapshots.
type PrincipalCache interface {
	Invalidate(ctx context.Context) error
}

// Service handles user business logic.
type Service struct {
	repo       RepositoryPort
	recorder   Recorder
	principals PrincipalCache
	logger     *slog.Logger
	cost       int
}

// Option configures a Service.
type Option func(*Service)

// WithPrincipalCache invalidates cached principals whenever an account is
// activated or deactivated.
func WithPrincipalCache(c PrincipalCache) Option {
	return func(s *Service) { s.principals = c }
}

// NewService builds Service instance. recorder may be nil.
func NewService(repo RepositoryPort, recorder Recorder, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{repo: repo, recorder: recorder, logger: logger, cost: bcrypt.DefaultCost}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListUsers returns one page of users.
func (s *Service) ListUsers(ctx context.Context, page, perPage int) ([]User, shared.Pagination, error) {
	p := shared.NewPagination(page, perPage, 0)
	users, total, err := s.repo.ListUsers(ctx, p.PerPage, p.Offset())
	if err != nil {
		return nil, p, fmt.Errorf("users: list: %w", err)
	}
	return users, shared.NewPagination(p.Page, p.PerPage, total), nil
}

// GetUser returns one user.
func (s *Service) GetUser(ctx context.Context, id int64) (User, error) {
	return s.repo.GetUser(ctx, id)
}

// CreateUser hashes the password and stores a new active account.
func (s *Service) CreateUser(ctx context.Context, actor authz.Principal, in CreateInput) (User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return User{}, fmt.Errorf("users: hash password: %w", err)
	}
	user, err := s.repo.CreateUser(ctx, strings.TrimSpace(in.Name), in.Email, string(hash))
	if err != nil {
		return User{}, err
	}
	s.record(ctx, actor, "user.created", fmt.Sprintf("Created user %s", user.Email), user.ID, nil)
	return user, nil
}

// SetActive enables or disables an account. Cached principals are dropped,
// so open sessions of a deactivated user lose their authority on the next
// request.
func (s *Service) SetActive(ctx context.Context, actor authz.Principal, id int64, active bool) (User, error) {
	if !active && actor.ID == id {
		return User{}, ErrSelfDeactivation
	}
	user, err := s.repo.SetActive(ctx, id, active)
	if err != nil {
		return User{}, err
	}
	if s.principals != nil {
		if err := s.principals.Invalidate(ctx); err != nil {
			return User{}, fmt.Errorf("users: invalidate principals: %w", err)
		}
	}
	event := "user.deactivated"
	if active {
		event = "user.activated"
	}
	s.record(ctx, actor, event, fmt.Sprintf("Set %s active=%t", user.Email, active), user.ID, map[string]any{"active": active})
	return user, nil
}

func (s *Service) record(ctx context.Context, actor authz.Principal, event, description string, userID int64, props map[string]any) {
	if s.recorder == nil {
		return
	}
	err := s.recorder.Record(ctx, activity.Entry{
		LogName:     activity.LogAccess,
		Event:       event,
		Description: description,
		SubjectType: "User",
		SubjectID:   strconv.FormatInt(userID, 10),
		CauserID:    actor.ID,
		Properties:  props,
	})
	if err != nil {
		s.logger.Error("users record activity", slog.String("event", event), slog.Any("error", err))
	}
}
