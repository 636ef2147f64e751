package store

import (
	"context"
	"errors"
	"time"
)

type Kind string

const (
	KindPost        Kind = "post"
	KindHelpRequest Kind = "help_request"
)

// ErrNotFound is returned when a content item does not exist.
var ErrNotFound = errors.New("content item not found")

// ContentItem is a mutable community record: a post or a help request.
// Version increments on every text-affecting edit; Summary is only
// valid while SummaryVersion == Version.
type ContentItem struct {
	ID             string    `json:"id"`
	Kind           Kind      `json:"kind"`
	AuthorID       string    `json:"author_id"`
	Title          string    `json:"title"`
	Text           string    `json:"text"`
	Category       string    `json:"category,omitempty"`   // posts
	Location       string    `json:"location,omitempty"`   // help requests
	Resolved       bool      `json:"resolved,omitempty"`   // help requests
	Volunteers     []string  `json:"volunteers,omitempty"` // help requests
	Summary        string    `json:"summary,omitempty"`
	SummaryVersion int64     `json:"summary_version"`
	Version        int64     `json:"version"`
	Deleted        bool      `json:"deleted"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type Store interface {
	// Create persists a new item at version 1.
	Create(ctx context.Context, item *ContentItem) error
	// Get returns an item, including tombstoned ones.
	Get(ctx context.Context, id string) (*ContentItem, error)
	// Update persists the mutable fields of an item and increments its
	// version. The item's Version field is set to the new version.
	Update(ctx context.Context, item *ContentItem) error
	// Delete tombstones an item. The row survives until the next purge.
	Delete(ctx context.Context, id string) error
	// SetSummary records a summary computed against the given version.
	// It is a no-op when the item has since moved past that version.
	SetSummary(ctx context.Context, id, summary string, version int64) error
	// ListActive returns all non-tombstoned items.
	ListActive(ctx context.Context) ([]*ContentItem, error)
	// PurgeDeleted physically removes tombstoned rows.
	PurgeDeleted(ctx context.Context) (int64, error)
	Close() error
}
