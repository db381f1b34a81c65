package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"ingres/internal/domain"
	"ingres/internal/session"
)

const (
	keyPrefix   = "ingres:session:"
	feedbackKey = "ingres:feedback"
)

// Store keeps each session as a capped JSON list with a sliding TTL.
type Store struct {
	client *goredis.Client
	ttl    time.Duration
}

var _ session.Store = (*Store)(nil)

type Config struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

func New(cfg Config) *Store {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return NewWithClient(rdb, cfg.TTL)
}

func NewWithClient(client *goredis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Store{client: client, ttl: ttl}
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) Append(ctx context.Context, sessionID string, t session.Turn) error {
	data, err := json.Marshal(t)
	if err != nil {
		return err
	}
	key := keyPrefix + sessionID
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, data)
	pipe.LTrim(ctx, key, -session.MaxTurns, -1)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append turn: %w", err)
	}
	return nil
}

func (s *Store) History(ctx context.Context, sessionID string, limit int) ([]session.Turn, error) {
	start := int64(0)
	if limit > 0 {
		start = int64(-limit)
	}
	vals, err := s.client.LRange(ctx, keyPrefix+sessionID, start, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	out := make([]session.Turn, 0, len(vals))
	for _, v := range vals {
		var t session.Turn
		if err := json.Unmarshal([]byte(v), &t); err != nil {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (s *Store) SaveFeedback(ctx context.Context, f domain.Feedback) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	if err := s.client.RPush(ctx, feedbackKey, data).Err(); err != nil {
		return fmt.Errorf("save feedback: %w", err)
	}
	return nil
}

// Feedback returns every stored rating.
func (s *Store) Feedback(ctx context.Context) ([]domain.Feedback, error) {
	vals, err := s.client.LRange(ctx, feedbackKey, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]domain.Feedback, 0, len(vals))
	for _, v := range vals {
		var f domain.Feedback
		if err := json.Unmarshal([]byte(v), &f); err == nil {
			out = append(out, f)
		}
	}
	return out, nil
}

func (s *Store) Close() error { return s.client.Close() }
