// Package store provides the client's local storage interface and SQLite
// implementation: the persisted credential, the organisation profile and
// chat transcript history.
package store

import (
	"context"

	"github.com/rcliao/automarket/internal/model"
)

// Fixed keys of the key/value table.
const (
	TokenKey   = "user_token"
	ProfileKey = "org_profile"
)

// HistoryParams holds parameters for listing transcript history.
type HistoryParams struct {
	ProductID string
	Limit     int
}

// Store defines the local storage interface.
type Store interface {
	// LoadSession returns the persisted token and profile JSON. Missing
	// values are returned as empty strings.
	LoadSession(ctx context.Context) (token, profile string, err error)

	// LoadToken returns the persisted token, or "" when none is stored.
	LoadToken(ctx context.Context) (string, error)

	// SaveSession persists the token and profile JSON atomically.
	SaveSession(ctx context.Context, token, profile string) error

	// SaveProfile persists the profile JSON without touching the token.
	SaveProfile(ctx context.Context, profile string) error

	// ClearSession removes the token and profile.
	ClearSession(ctx context.Context) error

	// AppendMessage records a finished transcript message. An empty ID is
	// replaced by a new ULID.
	AppendMessage(ctx context.Context, msg model.TranscriptMessage) (model.TranscriptMessage, error)

	// History lists transcript messages oldest first.
	History(ctx context.Context, p HistoryParams) ([]model.TranscriptMessage, error)

	// Close closes the store.
	Close() error
}
