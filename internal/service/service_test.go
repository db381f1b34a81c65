package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ingres/internal/confidence"
	"ingres/internal/contextbuilder"
	"ingres/internal/domain"
	"ingres/internal/embedding/hashing"
	"ingres/internal/intent"
	"ingres/internal/session"
	sessionmemory "ingres/internal/session/memory"
	"ingres/internal/structured"
	"ingres/internal/structured/memory"
	"ingres/internal/vectorindex"
)

var quiet = log.New(io.Discard, "", 0)

type fakeGenerator struct {
	mu      sync.Mutex
	answer  string
	err     error
	panics  bool
	prompts []string
}

func (g *fakeGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.panics {
		panic("generator exploded")
	}
	g.prompts = append(g.prompts, prompt)
	if g.err != nil {
		return "", g.err
	}
	return g.answer, nil
}

func (g *fakeGenerator) lastPrompt() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.prompts) == 0 {
		return ""
	}
	return g.prompts[len(g.prompts)-1]
}

type spyStructured struct {
	StructuredRetriever
	calls  int32
	err    error
	panics bool
}

func (s *spyStructured) ForEntities(ctx context.Context, text string, ents domain.Entities) ([]domain.Record, error) {
	atomic.AddInt32(&s.calls, 1)
	if s.panics {
		panic("store exploded")
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.StructuredRetriever.ForEntities(ctx, text, ents)
}

type spyDocuments struct {
	DocumentSearcher
	calls  int32
	lastK  int32
	err    error
	panics bool
}

func (s *spyDocuments) Search(ctx context.Context, query string, k int) ([]domain.SearchResult, error) {
	atomic.AddInt32(&s.calls, 1)
	atomic.StoreInt32(&s.lastK, int32(k))
	if s.panics {
		panic("index exploded")
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.DocumentSearcher.Search(ctx, query, k)
}

type panickyExtractor struct{}

func (panickyExtractor) Extract(string) domain.Entities { panic("extractor exploded") }

type fixture struct {
	svc       *QueryService
	gen       *fakeGenerator
	store     *spyStructured
	docs      *spyDocuments
	sessions  *sessionmemory.Store
	extractor EntityExtractor
}

func newFixture(t *testing.T, gen *fakeGenerator) *fixture {
	t.Helper()
	ctx := context.Background()

	recs, err := memory.New(memory.DefaultRecords(), structured.DefaultAliases, quiet)
	require.NoError(t, err)
	t.Cleanup(func() { _ = recs.Close() })

	idx := vectorindex.New(hashing.NewEmbedder(128), vectorindex.Options{DefaultTopK: 3, Logger: quiet})
	require.NoError(t, idx.Add(ctx, []domain.IndexedDocument{
		{Content: "Bihar groundwater assessment: annual rainfall 1202.46 mm, recharge from monsoon.", Origin: "bihar_report.pdf", Kind: domain.OriginDocument},
		{Content: "Maharashtra groundwater assessment: annual rainfall 1039.98 mm.", Origin: "mh_report.pdf", Kind: domain.OriginDocument},
		{Content: "An aquifer is an underground layer of water-bearing rock.", Origin: "glossary.txt", Kind: domain.OriginDocument},
	}))

	ex := intent.NewExtractor(intent.DefaultVocabulary)
	f := &fixture{
		gen:       gen,
		store:     &spyStructured{StructuredRetriever: structured.NewRetriever(recs, 0, 0, quiet)},
		docs:      &spyDocuments{DocumentSearcher: idx},
		sessions:  sessionmemory.New(),
		extractor: ex,
	}
	deps := Deps{
		Extractor:  ex,
		Classifier: intent.NewClassifier(ex, nil),
		Structured: f.store,
		Documents:  f.docs,
		Builder:    contextbuilder.New(contextbuilder.Options{Logger: quiet}),
		Sessions:   f.sessions,
		Logger:     quiet,
	}
	if gen != nil {
		deps.Generator = gen
	}
	f.svc = NewQueryService(deps, Options{HistoryTurns: 3})
	return f
}

func TestProcess_StatisticsScenario(t *testing.T) {
	gen := &fakeGenerator{answer: "Bihar received 1202.46 mm of annual rainfall according to the state records."}
	f := newFixture(t, gen)

	resp := f.svc.Process(context.Background(), domain.Query{Text: "what is rainfall in bihar?"})

	assert.Equal(t, domain.IntentStatistics, resp.Intent)
	assert.Equal(t, gen.answer, resp.Answer)
	assert.Contains(t, gen.lastPrompt(), "1202.46")
	assert.Contains(t, gen.lastPrompt(), "State/UT: Bihar")

	require.NotEmpty(t, resp.Sources)
	assert.Equal(t, domain.SourceStructured, resp.Sources[0].Type)
	assert.Equal(t, "Groundwater data for Bihar", resp.Sources[0].Content)
	assert.GreaterOrEqual(t, resp.Confidence, confidence.Floor)
	assert.LessOrEqual(t, resp.Confidence, 1.0)
	assert.NotEmpty(t, resp.SessionID)
	assert.Positive(t, resp.Latency)
}

func TestProcess_GreetingShortCircuits(t *testing.T) {
	gen := &fakeGenerator{answer: "Namaste! Ask me about groundwater."}
	f := newFixture(t, gen)

	resp := f.svc.Process(context.Background(), domain.Query{Text: "hello"})

	assert.Equal(t, domain.IntentGreeting, resp.Intent)
	assert.GreaterOrEqual(t, resp.Confidence, 0.9)
	assert.Empty(t, resp.Sources)
	assert.Equal(t, int32(0), atomic.LoadInt32(&f.store.calls))
	assert.Equal(t, int32(0), atomic.LoadInt32(&f.docs.calls))
	assert.NotContains(t, gen.lastPrompt(), "CONTEXT DATA")
}

func TestProcess_ConversationalWithoutGenerator(t *testing.T) {
	f := newFixture(t, nil)
	for _, q := range []string{"hello", "bye", "hi, how do I use this?"} {
		resp := f.svc.Process(context.Background(), domain.Query{Text: q})
		assert.NotEmpty(t, resp.Answer, q)
		assert.Equal(t, confidence.Conversational, resp.Confidence, q)
	}
}

func TestProcess_ComparisonScenario(t *testing.T) {
	gen := &fakeGenerator{answer: "Bihar has 1202.46 mm while Maharashtra has 1039.98 mm of rainfall."}
	f := newFixture(t, gen)

	resp := f.svc.Process(context.Background(), domain.Query{Text: "compare bihar vs maharashtra rainfall"})

	assert.Equal(t, domain.IntentComparison, resp.Intent)
	var regions []string
	for _, s := range resp.Sources {
		if s.Type == domain.SourceStructured {
			regions = append(regions, s.Content)
		}
	}
	assert.ElementsMatch(t, []string{"Groundwater data for Bihar", "Groundwater data for Maharashtra"}, regions)
	assert.Equal(t, int32(8), atomic.LoadInt32(&f.docs.lastK))
	assert.Contains(t, gen.lastPrompt(), "side by side")
}

func TestProcess_FallbackBelowGenerated(t *testing.T) {
	q := domain.Query{Text: "what is rainfall in bihar?"}

	withGen := newFixture(t, &fakeGenerator{answer: "ok"}).svc.Process(context.Background(), q)
	noGen := newFixture(t, nil).svc.Process(context.Background(), q)

	assert.NotEmpty(t, noGen.Answer)
	assert.Contains(t, noGen.Answer, "1202.46")
	assert.Equal(t, confidence.Fallback, noGen.Confidence)
	assert.Less(t, noGen.Confidence, withGen.Confidence)
	assert.Equal(t, withGen.Sources, noGen.Sources)
}

func TestProcess_GenerationFailureFallsBack(t *testing.T) {
	cases := map[string]error{
		"error":   fmt.Errorf("%w: boom", domain.ErrGenerationUnavailable),
		"timeout": fmt.Errorf("%w: %w", domain.ErrGenerationUnavailable, domain.ErrTimeout),
	}
	for name, genErr := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, &fakeGenerator{err: genErr})
			resp := f.svc.Process(context.Background(), domain.Query{Text: "rainfall in punjab"})
			assert.Equal(t, confidence.Fallback, resp.Confidence)
			assert.Contains(t, resp.Answer, "617.85")
			assert.NotEmpty(t, resp.Sources)
		})
	}
}

func TestProcess_EmptyContextUsesFallbackWithoutGenerating(t *testing.T) {
	gen := &fakeGenerator{answer: "made up"}
	f := newFixture(t, gen)
	f.svc.deps.Documents = nil

	resp := f.svc.Process(context.Background(), domain.Query{Text: "tell me a joke"})
	assert.Equal(t, domain.IntentGeneral, resp.Intent)
	assert.Equal(t, noContextAnswer, resp.Answer)
	assert.Equal(t, confidence.Fallback, resp.Confidence)
	assert.Empty(t, gen.prompts)
}

func TestProcess_ChannelErrorsDegrade(t *testing.T) {
	t.Run("structured store down", func(t *testing.T) {
		gen := &fakeGenerator{answer: "Bihar rainfall is 1202.46 mm."}
		f := newFixture(t, gen)
		f.store.err = errors.New("connection refused")

		resp := f.svc.Process(context.Background(), domain.Query{Text: "what is rainfall in bihar?"})
		assert.Equal(t, gen.answer, resp.Answer)
		require.NotEmpty(t, resp.Sources)
		for _, s := range resp.Sources {
			assert.Equal(t, domain.SourceUnstructured, s.Type)
		}
		assert.Greater(t, resp.Confidence, confidence.Failure)
	})

	t.Run("index down", func(t *testing.T) {
		gen := &fakeGenerator{answer: "Bihar rainfall is 1202.46 mm."}
		f := newFixture(t, gen)
		f.docs.err = fmt.Errorf("search: %w", domain.ErrTimeout)

		resp := f.svc.Process(context.Background(), domain.Query{Text: "what is rainfall in bihar?"})
		require.Len(t, resp.Sources, 1)
		assert.Equal(t, domain.SourceStructured, resp.Sources[0].Type)
	})
}

func TestProcess_FaultContainment(t *testing.T) {
	inject := map[string]func(f *fixture){
		"extractor": func(f *fixture) { f.svc.deps.Extractor = panickyExtractor{} },
		"retriever": func(f *fixture) { f.store.panics = true },
		"index":     func(f *fixture) { f.docs.panics = true },
		"generator": func(f *fixture) { f.gen.panics = true },
	}
	for name, fault := range inject {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, &fakeGenerator{answer: "unused"})
			fault(f)

			var resp domain.Response
			require.NotPanics(t, func() {
				resp = f.svc.Process(context.Background(), domain.Query{Text: "what is rainfall in bihar?", SessionID: "s-1"})
			})
			assert.Equal(t, failureAnswer, resp.Answer)
			assert.Equal(t, confidence.Failure, resp.Confidence)
			assert.NotNil(t, resp.Sources)
			assert.Empty(t, resp.Sources)
			assert.Positive(t, resp.Latency)
			assert.Equal(t, "s-1", resp.SessionID)
		})
	}
}

func TestProcess_InvalidQuery(t *testing.T) {
	f := newFixture(t, &fakeGenerator{answer: "x"})
	for _, q := range []string{"", "   ", string([]byte{0xff, 0xfe})} {
		resp := f.svc.Process(context.Background(), domain.Query{Text: q})
		assert.Equal(t, invalidQueryAnswer, resp.Answer)
		assert.Equal(t, confidence.Failure, resp.Confidence)
	}
	assert.Equal(t, int32(0), atomic.LoadInt32(&f.store.calls))
}

func TestProcess_SessionsAndHistory(t *testing.T) {
	gen := &fakeGenerator{answer: "Bihar rainfall is 1202.46 mm."}
	f := newFixture(t, gen)
	ctx := context.Background()

	first := f.svc.Process(ctx, domain.Query{Text: "what is rainfall in bihar?", UserID: "analyst-7"})
	second := f.svc.Process(ctx, domain.Query{Text: "and in punjab? show me rainfall data", SessionID: first.SessionID})
	assert.Equal(t, first.SessionID, second.SessionID)
	assert.Contains(t, gen.lastPrompt(), "RECENT CONVERSATION")
	assert.Contains(t, gen.lastPrompt(), "what is rainfall in bihar?")

	turns, err := f.svc.History(ctx, first.SessionID, 10)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, domain.IntentStatistics, turns[0].Intent)
	assert.Equal(t, "analyst-7", turns[0].UserID)
	assert.Empty(t, turns[1].UserID)

	other := f.svc.Process(ctx, domain.Query{Text: "hello"})
	assert.NotEqual(t, first.SessionID, other.SessionID)
}

func TestRecordFeedback(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	assert.ErrorIs(t, f.svc.RecordFeedback(ctx, domain.Feedback{SessionID: "s", Rating: 0}), ErrInvalidFeedback)
	assert.ErrorIs(t, f.svc.RecordFeedback(ctx, domain.Feedback{SessionID: "s", Rating: 6}), ErrInvalidFeedback)
	assert.ErrorIs(t, f.svc.RecordFeedback(ctx, domain.Feedback{Rating: 3}), ErrInvalidFeedback)

	require.NoError(t, f.svc.RecordFeedback(ctx, domain.Feedback{SessionID: "s", Rating: 5, Comments: "spot on"}))
	fb := f.sessions.Feedback()
	require.Len(t, fb, 1)
	assert.False(t, fb[0].CreatedAt.IsZero())

	f.svc.deps.Sessions = nil
	assert.ErrorIs(t, f.svc.RecordFeedback(ctx, domain.Feedback{SessionID: "s", Rating: 5}), ErrSessionsUnavailable)
}

func TestRawSearch(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	recs, err := f.svc.SearchStructured(ctx, domain.Filter{Region: "rajasthan"})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, 431.23, recs[0]["rainfall"])

	hits, err := f.svc.SearchDocuments(ctx, "aquifer underground rock", 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "glossary.txt", hits[0].Document.Origin)

	_, err = f.svc.SearchDocuments(ctx, " ", 1)
	assert.ErrorIs(t, err, domain.ErrInvalidQuery)

	f.svc.deps.Documents = nil
	_, err = f.svc.SearchDocuments(ctx, "aquifer", 1)
	assert.ErrorIs(t, err, domain.ErrIndexUnavailable)
}

func TestPrompts(t *testing.T) {
	p := retrievalPrompt("q", domain.IntentStatistics, "CTX", []session.Turn{{Query: "prev", Answer: "ans"}})
	assert.True(t, strings.Contains(p, "CONTEXT DATA:\nCTX"))
	assert.Contains(t, p, "User: prev")
	assert.NotContains(t, p, "side by side")

	c := conversationalPrompt("bye", domain.IntentFarewell, nil)
	assert.Contains(t, c, `"bye"`)
	assert.NotContains(t, c, "RECENT CONVERSATION")
}
