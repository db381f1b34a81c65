package memory

import (
	"context"
	"sync"

	"ingres/internal/domain"
	"ingres/internal/session"
)

// Store keeps sessions in process memory.
type Store struct {
	mu       sync.Mutex
	turns    map[string][]session.Turn
	feedback []domain.Feedback
}

var _ session.Store = (*Store)(nil)

func New() *Store {
	return &Store{turns: make(map[string][]session.Turn)}
}

func (s *Store) Append(ctx context.Context, sessionID string, t session.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	turns := append(s.turns[sessionID], t)
	if len(turns) > session.MaxTurns {
		turns = turns[len(turns)-session.MaxTurns:]
	}
	s.turns[sessionID] = turns
	return nil
}

func (s *Store) History(ctx context.Context, sessionID string, limit int) ([]session.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	turns := s.turns[sessionID]
	if limit > 0 && len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	return append([]session.Turn(nil), turns...), nil
}

func (s *Store) SaveFeedback(ctx context.Context, f domain.Feedback) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.feedback = append(s.feedback, f)
	return nil
}

// Feedback returns every stored rating.
func (s *Store) Feedback() []domain.Feedback {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Feedback(nil), s.feedback...)
}

func (s *Store) Close() error { return nil }
