package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ingres/internal/domain"
	"ingres/internal/session"
)

var (
	// ErrInvalidFeedback is returned for ratings outside 1..5 or a missing session.
	ErrInvalidFeedback = errors.New("invalid feedback")
	// ErrSessionsUnavailable means no session store is configured.
	ErrSessionsUnavailable = errors.New("session store unavailable")
)

// SearchStructured queries the Structured Store directly, capped at the
// raw search limit.
func (s *QueryService) SearchStructured(ctx context.Context, f domain.Filter) ([]domain.Record, error) {
	return s.deps.Structured.Query(ctx, f)
}

// SearchDocuments queries the vector index directly.
func (s *QueryService) SearchDocuments(ctx context.Context, query string, k int) ([]domain.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, domain.ErrInvalidQuery
	}
	if s.deps.Documents == nil {
		return nil, domain.ErrIndexUnavailable
	}
	return s.deps.Documents.Search(ctx, query, k)
}

// RecordFeedback stores a user's rating of an answer.
func (s *QueryService) RecordFeedback(ctx context.Context, f domain.Feedback) error {
	if f.Rating < 1 || f.Rating > 5 {
		return fmt.Errorf("%w: rating %d not in 1..5", ErrInvalidFeedback, f.Rating)
	}
	if strings.TrimSpace(f.SessionID) == "" {
		return fmt.Errorf("%w: session id is required", ErrInvalidFeedback)
	}
	if s.deps.Sessions == nil {
		return ErrSessionsUnavailable
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}
	if err := s.deps.Sessions.SaveFeedback(ctx, f); err != nil {
		return fmt.Errorf("record feedback: %w", err)
	}
	s.logger.Printf("feedback for session %s: rating %d", f.SessionID, f.Rating)
	return nil
}

// History returns the most recent turns of a session.
func (s *QueryService) History(ctx context.Context, sessionID string, limit int) ([]session.Turn, error) {
	if s.deps.Sessions == nil {
		return nil, ErrSessionsUnavailable
	}
	return s.deps.Sessions.History(ctx, sessionID, limit)
}
