package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime/debug"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"ingres/internal/confidence"
	"ingres/internal/domain"
	"ingres/internal/metrics"
	"ingres/internal/session"
)

// EntityExtractor finds vocabulary terms in query text.
type EntityExtractor interface {
	Extract(text string) domain.Entities
}

// IntentClassifier maps query text to one intent.
type IntentClassifier interface {
	Classify(text string) domain.Intent
}

// StructuredRetriever queries the Structured Store.
type StructuredRetriever interface {
	ForEntities(ctx context.Context, text string, ents domain.Entities) ([]domain.Record, error)
	Query(ctx context.Context, f domain.Filter) ([]domain.Record, error)
}

// DocumentSearcher is the read side of the vector index.
type DocumentSearcher interface {
	Search(ctx context.Context, query string, k int) ([]domain.SearchResult, error)
}

// ContextBuilder assembles evidence for generation.
type ContextBuilder interface {
	Build(records []domain.Record, hits []domain.SearchResult, ents domain.Entities) domain.Context
}

// Deps are the collaborators of a QueryService. Documents, Generator,
// Sessions and Metrics may be nil.
type Deps struct {
	Extractor  EntityExtractor
	Classifier IntentClassifier
	Structured StructuredRetriever
	Documents  DocumentSearcher
	Builder    ContextBuilder
	Generator  domain.Generator
	Sessions   session.Store
	Metrics    *metrics.Recorder
	Logger     *log.Logger
}

// Options tunes retrieval depth and prompt history.
type Options struct {
	// DefaultTopK is passed to the index; zero uses the index default.
	DefaultTopK int
	// ComparisonTopK is used for comparison queries, which need evidence
	// for several regions.
	ComparisonTopK int
	// HistoryTurns of the session are included in generation prompts.
	HistoryTurns int
}

// QueryService is the query orchestrator. Process never returns an error:
// expected failures degrade per step and faults become a fixed apology.
type QueryService struct {
	deps   Deps
	opts   Options
	logger *log.Logger
}

func NewQueryService(deps Deps, opts Options) *QueryService {
	if opts.ComparisonTopK <= 0 {
		opts.ComparisonTopK = 8
	}
	logger := deps.Logger
	if logger == nil {
		logger = log.New(log.Writer(), "[ORCHESTRATOR] ", log.LstdFlags)
	}
	return &QueryService{deps: deps, opts: opts, logger: logger}
}

const (
	failureAnswer      = "I apologize, but I encountered an error while processing your query. Please try again or rephrase your question."
	invalidQueryAnswer = "Please enter a question about groundwater resources, for example \"what is rainfall in bihar?\"."
)

// faultError marks a recovered panic inside a retrieval goroutine.
type faultError struct {
	step  string
	value any
	stack []byte
}

func (e *faultError) Error() string { return fmt.Sprintf("%s panicked: %v", e.step, e.value) }

// Process answers q. Latency is always populated.
func (s *QueryService) Process(ctx context.Context, q domain.Query) (resp domain.Response) {
	start := time.Now()
	sessionID := q.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	intent := domain.IntentGeneral

	defer func() {
		if r := recover(); r != nil {
			s.logger.Printf("query %q failed: %v\n%s", q.Text, r, debug.Stack())
			resp = s.failure(start, sessionID, intent)
		}
	}()

	text := strings.TrimSpace(q.Text)
	if text == "" || !utf8.ValidString(text) {
		s.logger.Printf("rejecting query: %v", domain.ErrInvalidQuery)
		resp = domain.Response{Answer: invalidQueryAnswer, Sources: []domain.Source{}, Confidence: confidence.Failure, SessionID: sessionID, Intent: intent}
		resp.Latency = time.Since(start)
		s.deps.Metrics.ObserveQuery(string(intent), "invalid", resp.Latency, resp.Confidence)
		return resp
	}

	ents := s.deps.Extractor.Extract(text)
	intent = s.deps.Classifier.Classify(text)
	s.logger.Printf("query intent=%s regions=%v metrics=%v years=%v", intent, ents.Regions, ents.Metrics, ents.Years)

	history := s.history(ctx, sessionID)

	if intent.IsConversational() {
		answer := s.converse(ctx, text, intent, history)
		resp = domain.Response{Answer: answer, Sources: []domain.Source{}, Confidence: confidence.Conversational, SessionID: sessionID, Intent: intent}
		resp.Latency = time.Since(start)
		s.finish(ctx, text, q.UserID, resp, "conversational")
		return resp
	}

	records, hits, err := s.retrieve(ctx, text, ents, intent)
	if err != nil {
		var fault *faultError
		if errors.As(err, &fault) {
			s.logger.Printf("query %q failed: %v\n%s", text, err, fault.stack)
		} else {
			s.logger.Printf("query %q failed: %v", text, err)
		}
		return s.failure(start, sessionID, intent)
	}

	evidence := s.deps.Builder.Build(records, hits, ents)
	answer, reason := s.answer(ctx, text, intent, evidence, history)

	outcome := "answered"
	score := confidence.Score(evidence.Text, answer)
	if reason != "" {
		outcome = "fallback"
		score = confidence.Fallback
		s.deps.Metrics.IncFallback(reason)
	}
	sources := evidence.Sources
	if sources == nil {
		sources = []domain.Source{}
	}
	resp = domain.Response{Answer: answer, Sources: sources, Confidence: score, SessionID: sessionID, Intent: intent}
	resp.Latency = time.Since(start)
	s.finish(ctx, text, q.UserID, resp, outcome)
	return resp
}

// retrieve runs both channels concurrently. Errors degrade the channel to
// empty; panics are returned as a faultError.
func (s *QueryService) retrieve(ctx context.Context, text string, ents domain.Entities, intent domain.Intent) ([]domain.Record, []domain.SearchResult, error) {
	var (
		wg      sync.WaitGroup
		records []domain.Record
		hits    []domain.SearchResult
		faults  [2]error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		defer recoverInto(&faults[0], "structured retrieval")
		recs, err := s.deps.Structured.ForEntities(ctx, text, ents)
		if err != nil {
			s.logger.Printf("structured retrieval degraded: %v", err)
			return
		}
		records = recs
	}()
	go func() {
		defer wg.Done()
		defer recoverInto(&faults[1], "vector search")
		if s.deps.Documents == nil {
			s.logger.Printf("vector search skipped: %v", domain.ErrIndexUnavailable)
			return
		}
		k := s.opts.DefaultTopK
		if intent == domain.IntentComparison {
			k = s.opts.ComparisonTopK
		}
		res, err := s.deps.Documents.Search(ctx, text, k)
		if err != nil {
			s.logger.Printf("vector search degraded: %v", err)
			return
		}
		hits = res
	}()
	wg.Wait()

	if err := errors.Join(faults[0], faults[1]); err != nil {
		return nil, nil, err
	}
	s.deps.Metrics.ObserveRetrieval("structured", len(records))
	s.deps.Metrics.ObserveRetrieval("vector", len(hits))
	s.logger.Printf("retrieved %d records and %d documents", len(records), len(hits))
	if len(records) == 0 && len(hits) == 0 {
		s.logger.Printf("%v", domain.ErrRetrievalEmpty)
	}
	return records, hits, nil
}

func recoverInto(dst *error, step string) {
	if r := recover(); r != nil {
		*dst = &faultError{step: step, value: r, stack: debug.Stack()}
	}
}

// answer returns the generated answer, or a templated one and the reason.
func (s *QueryService) answer(ctx context.Context, text string, intent domain.Intent, evidence domain.Context, history []session.Turn) (string, string) {
	if s.deps.Generator == nil {
		s.logger.Printf("using fallback: %v (not configured)", domain.ErrGenerationUnavailable)
		return fallbackAnswer(intent, evidence), "generation_unconfigured"
	}
	if evidence.Empty() {
		s.logger.Printf("using fallback: no context for %s query", intent)
		return fallbackAnswer(intent, evidence), "empty_context"
	}
	prompt := retrievalPrompt(text, intent, evidence.Text, history)
	s.logger.Printf("sending prompt (%d chars, context %d chars)", len(prompt), len(evidence.Text))
	answer, err := s.deps.Generator.Generate(ctx, prompt)
	if err != nil {
		reason := "generation_failed"
		if errors.Is(err, domain.ErrTimeout) {
			reason = "generation_timeout"
		}
		s.logger.Printf("using fallback: %v", err)
		return fallbackAnswer(intent, evidence), reason
	}
	return answer, ""
}

func (s *QueryService) converse(ctx context.Context, text string, intent domain.Intent, history []session.Turn) string {
	if s.deps.Generator == nil {
		return conversationalAnswer(intent)
	}
	answer, err := s.deps.Generator.Generate(ctx, conversationalPrompt(text, intent, history))
	if err != nil {
		s.logger.Printf("conversational reply uses template: %v", err)
		s.deps.Metrics.IncFallback("conversational")
		return conversationalAnswer(intent)
	}
	return answer
}

func (s *QueryService) history(ctx context.Context, sessionID string) []session.Turn {
	if s.deps.Sessions == nil || s.opts.HistoryTurns <= 0 {
		return nil
	}
	turns, err := s.deps.Sessions.History(ctx, sessionID, s.opts.HistoryTurns)
	if err != nil {
		s.logger.Printf("session history unavailable: %v", err)
		return nil
	}
	return turns
}

func (s *QueryService) finish(ctx context.Context, text, userID string, resp domain.Response, outcome string) {
	s.deps.Metrics.ObserveQuery(string(resp.Intent), outcome, resp.Latency, resp.Confidence)
	s.logger.Printf("query answered in %s (intent=%s outcome=%s confidence=%.2f sources=%d)",
		resp.Latency, resp.Intent, outcome, resp.Confidence, len(resp.Sources))
	if s.deps.Sessions == nil {
		return
	}
	turn := session.Turn{
		Query:      text,
		UserID:     userID,
		Answer:     resp.Answer,
		Intent:     resp.Intent,
		Confidence: resp.Confidence,
		Sources:    len(resp.Sources),
		At:         time.Now().UTC(),
	}
	if err := s.deps.Sessions.Append(ctx, resp.SessionID, turn); err != nil {
		s.logger.Printf("session %s not recorded: %v", resp.SessionID, err)
	}
}

func (s *QueryService) failure(start time.Time, sessionID string, intent domain.Intent) domain.Response {
	resp := domain.Response{
		Answer:     failureAnswer,
		Sources:    []domain.Source{},
		Confidence: confidence.Failure,
		Latency:    time.Since(start),
		SessionID:  sessionID,
		Intent:     intent,
	}
	s.deps.Metrics.ObserveQuery(string(intent), "failed", resp.Latency, resp.Confidence)
	return resp
}
