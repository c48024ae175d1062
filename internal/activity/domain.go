// Package activity keeps the append-only log of administrative changes.
package activity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/odyssey-erp/sentinel/internal/platform/httpx"
)

// ErrNotFound indicates the entry does not exist.
var ErrNotFound = fmt.Errorf("activity: %w", httpx.ErrNotFound)

// ErrInvalidEntry is returned when an entry misses its event or description.
var ErrInvalidEntry = errors.New("activity: event and description required")

// Log names.
const (
	LogDefault = "default"
	LogAccess  = "access"
	LogQueue   = "queue"
)

// Entry is a single recorded change. The Subject names what changed and the
// Causer who changed it.
type Entry struct {
	ID          int64          `json:"id"`
	LogName     string         `json:"logName"`
	Event       string         `json:"event"`
	Description string         `json:"description"`
	SubjectType string         `json:"subjectType,omitempty"`
	SubjectID   string         `json:"subjectId,omitempty"`
	CauserID    int64          `json:"causerId,omitempty"`
	Properties  map[string]any `json:"properties,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
}

// Filter narrows listings.
type Filter struct {
	LogName  string
	CauserID int64
	Limit    int
	Offset   int
}

// Store persists entries.
type Store interface {
	Insert(ctx context.Context, entry Entry) (Entry, error)
	List(ctx context.Context, filter Filter) ([]Entry, int, error)
	Get(ctx context.Context, id int64) (Entry, error)
	Delete(ctx context.Context, id int64) error
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
