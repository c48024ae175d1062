package activity

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// Service records and reads activity entries.
type Service struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs the service.
func NewService(store Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, logger: logger, now: time.Now}
}

// Record appends an entry stamped with the current time.
func (s *Service) Record(ctx context.Context, entry Entry) error {
	entry.Event = strings.TrimSpace(entry.Event)
	entry.Description = strings.TrimSpace(entry.Description)
	if entry.Event == "" || entry.Description == "" {
		return ErrInvalidEntry
	}
	if entry.LogName == "" {
		entry.LogName = LogDefault
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now().UTC()
	}
	if _, err := s.store.Insert(ctx, entry); err != nil {
		return err
	}
	return nil
}

// List returns one page of entries and the total count.
func (s *Service) List(ctx context.Context, filter Filter) ([]Entry, int, error) {
	return s.store.List(ctx, filter)
}

// Get fetches one entry.
func (s *Service) Get(ctx context.Context, id int64) (Entry, error) {
	return s.store.Get(ctx, id)
}

// Delete removes one entry.
func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.store.Delete(ctx, id)
}

// Prune removes entries older than retention.
func (s *Service) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := s.now().Add(-retention)
	removed, err := s.store.DeleteBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	s.logger.Info("activity pruned", slog.Int64("removed", removed), slog.Time("cutoff", cutoff))
	return removed, nil
}
