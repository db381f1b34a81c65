package session

import (
	"context"
	"time"

	"ingres/internal/domain"
)

// Turn is one answered query within a conversation.
type Turn struct {
	Query      string        `json:"query"`
	UserID     string        `json:"user_id,omitempty"`
	Answer     string        `json:"answer"`
	Intent     domain.Intent `json:"intent"`
	Confidence float64       `json:"confidence"`
	Sources    int           `json:"sources"`
	At         time.Time     `json:"at"`
}

// Store keeps conversation history and user feedback.
type Store interface {
	Append(ctx context.Context, sessionID string, t Turn) error
	// History returns up to limit most recent turns, oldest first.
	History(ctx context.Context, sessionID string, limit int) ([]Turn, error)
	SaveFeedback(ctx context.Context, f domain.Feedback) error
	Close() error
}

// MaxTurns bounds the history kept per session.
const MaxTurns = 100
