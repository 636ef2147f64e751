package qa

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"unicode/utf8"

	"neighborly/internal/ai"
	"neighborly/internal/index"
	"neighborly/internal/session"
	"neighborly/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEmbedder struct {
	calls atomic.Int64
	fail  atomic.Bool
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls.Add(1)
	if f.fail.Load() {
		return nil, fmt.Errorf("embedder unavailable")
	}
	vec := make([]float32, 16)
	for i, b := range []byte(text) {
		vec[(int(b)+i)%16]++
	}
	return vec, nil
}

type fakeGenerator struct {
	calls     atomic.Int64
	fail      atomic.Bool
	onCall    func() // runs before returning, when set
	gotChunks []string
	gotTurns  int
}

func (f *fakeGenerator) Generate(ctx context.Context, question string, contextChunks []string, history []ai.Exchange) (string, error) {
	f.calls.Add(1)
	f.gotChunks = contextChunks
	f.gotTurns = len(history)
	if f.onCall != nil {
		f.onCall()
	}
	if f.fail.Load() {
		return "", fmt.Errorf("generator unavailable")
	}
	return fmt.Sprintf("answer using %d chunks", len(contextChunks)), nil
}

type fixture struct {
	store    *store.MemoryStore
	idx      *index.MemoryIndex
	emb      *fakeEmbedder
	gen      *fakeGenerator
	sessions *session.Store
	engine   *Engine
}

func newFixture(opts Options) *fixture {
	f := &fixture{
		store:    store.NewMemoryStore(),
		idx:      index.NewMemoryIndex(),
		emb:      &fakeEmbedder{},
		gen:      &fakeGenerator{},
		sessions: session.NewStore(),
	}
	f.engine = NewEngine(f.emb, f.gen, f.idx, f.store, f.sessions, opts)
	return f
}

// addIndexed creates a store record and indexes it at its current
// version using the fake embedder's deterministic vectors.
func (f *fixture) addIndexed(t *testing.T, id, text string) *store.ContentItem {
	t.Helper()
	ctx := context.Background()
	item := &store.ContentItem{ID: id, Kind: store.KindPost, Text: text}
	require.NoError(t, f.store.Create(ctx, item))
	vec, err := f.emb.Embed(ctx, text)
	require.NoError(t, err)
	require.NoError(t, f.idx.Upsert(ctx, id, item.Version, vec))
	return item
}

func TestEngine_EmptyIndexAnswersWithEmptyContext(t *testing.T) {
	ctx := context.Background()
	f := newFixture(Options{})

	result, err := f.engine.Answer(ctx, "What events are happening?", "s1")
	require.NoError(t, err)
	assert.NotEmpty(t, result.Answer)
	assert.Empty(t, result.Sources)
	assert.Empty(t, f.gen.gotChunks)

	// The question still counts: exactly one turn recorded.
	history := f.sessions.History("s1")
	require.Len(t, history, 1)
	assert.Equal(t, "What events are happening?", history[0].Question)
}

func TestEngine_RetrievesAndCites(t *testing.T) {
	ctx := context.Background()
	f := newFixture(Options{RetrievalK: 2})

	f.addIndexed(t, "a", "community garden opens next saturday behind the library")
	f.addIndexed(t, "b", "lost tabby cat near maple avenue please call")
	f.addIndexed(t, "c", "volunteers wanted for the river cleanup next month")

	result, err := f.engine.Answer(ctx, "community garden opens next saturday behind the library", "s1")
	require.NoError(t, err)

	require.NotEmpty(t, result.Sources)
	assert.Equal(t, "a", result.Sources[0], "the item's own text must be the top match")
	assert.Len(t, result.Sources, 2)
	assert.Len(t, f.gen.gotChunks, 2)

	history := f.sessions.History("s1")
	require.Len(t, history, 1)
	assert.Equal(t, result.Sources, history[0].RetrievedIDs)
}

func TestEngine_UsesValidSummaryAsChunk(t *testing.T) {
	ctx := context.Background()
	f := newFixture(Options{})

	item := f.addIndexed(t, "a", strings.Repeat("long post text ", 50))
	require.NoError(t, f.store.SetSummary(ctx, "a", "short summary", item.Version))

	_, err := f.engine.Answer(ctx, strings.Repeat("long post text ", 50), "s1")
	require.NoError(t, err)

	require.Len(t, f.gen.gotChunks, 1)
	assert.Contains(t, f.gen.gotChunks[0], "short summary")
	assert.NotContains(t, f.gen.gotChunks[0], "long post text")
}

func TestEngine_StaleSummaryFallsBackToText(t *testing.T) {
	ctx := context.Background()
	f := newFixture(Options{})

	item := f.addIndexed(t, "a", "original post text about the bake sale")
	require.NoError(t, f.store.SetSummary(ctx, "a", "stale summary", item.Version))

	// Edit after summarizing: the summary no longer matches the version.
	item.Text = "rescheduled bake sale now on sunday afternoon"
	require.NoError(t, f.store.Update(ctx, item))

	_, err := f.engine.Answer(ctx, "bake sale", "s1")
	require.NoError(t, err)

	require.Len(t, f.gen.gotChunks, 1)
	assert.Contains(t, f.gen.gotChunks[0], "rescheduled bake sale")
}

func TestEngine_ChunkTruncation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(Options{MaxChunkChars: 40})

	f.addIndexed(t, "a", strings.Repeat("verbose neighborhood newsletter content ", 20))

	_, err := f.engine.Answer(ctx, "newsletter", "s1")
	require.NoError(t, err)

	require.Len(t, f.gen.gotChunks, 1)
	assert.LessOrEqual(t, len(f.gen.gotChunks[0]), 40)
}

func TestTruncateChunkKeepsRunesIntact(t *testing.T) {
	// The cut point lands mid-rune for every limit below; the result
	// must stay valid UTF-8 and within the byte budget.
	text := strings.Repeat("créperie on rüdesheimer straße ", 10)
	for max := 20; max < 60; max++ {
		got := truncateChunk(text, max)
		assert.LessOrEqual(t, len(got), max)
		assert.True(t, utf8.ValidString(got), "truncation at %d bytes split a rune", max)
	}

	assert.Equal(t, "short", truncateChunk("short", 40))
}

func TestEngine_DeletedMatchDropped(t *testing.T) {
	ctx := context.Background()
	f := newFixture(Options{})

	f.addIndexed(t, "a", "item that gets deleted between search and fetch")
	require.NoError(t, f.store.Delete(ctx, "a"))

	// Still in the index: simulates the window before the coordinator
	// removes it.
	result, err := f.engine.Answer(ctx, "item that gets deleted", "s1")
	require.NoError(t, err)
	assert.Empty(t, result.Sources)
	assert.Empty(t, f.gen.gotChunks)
}

func TestEngine_GenerationFailureLeavesSessionUntouched(t *testing.T) {
	ctx := context.Background()
	f := newFixture(Options{})
	f.gen.fail.Store(true)

	_, err := f.engine.Answer(ctx, "anything", "s1")
	require.Error(t, err)

	var genErr *GenerationError
	require.ErrorAs(t, err, &genErr)

	// The question was not answered, so it is not recorded.
	assert.Empty(t, f.sessions.History("s1"))
}

func TestEngine_CancellationDiscardsCompletedAnswer(t *testing.T) {
	f := newFixture(Options{})

	ctx, cancel := context.WithCancel(context.Background())
	// The caller abandons the request while generation is running.
	f.gen.onCall = cancel

	_, err := f.engine.Answer(ctx, "anything", "s1")
	require.ErrorIs(t, err, context.Canceled)

	assert.Empty(t, f.sessions.History("s1"), "an abandoned request must not append a turn")
	assert.Equal(t, int64(1), f.gen.calls.Load())
}

func TestEngine_HistoryTruncatedToLastTurns(t *testing.T) {
	ctx := context.Background()
	f := newFixture(Options{HistoryTurns: 3})

	for i := 0; i < 5; i++ {
		_, err := f.engine.Answer(ctx, fmt.Sprintf("question %d", i), "s1")
		require.NoError(t, err)
	}

	// The last call saw only the 3 most recent prior turns.
	assert.Equal(t, 3, f.gen.gotTurns)
	assert.Len(t, f.sessions.History("s1"), 5)
}

func TestEngine_EmbedFailureWithEmptyIndexDegrades(t *testing.T) {
	ctx := context.Background()
	f := newFixture(Options{})
	f.emb.fail.Store(true)

	result, err := f.engine.Answer(ctx, "anything", "s1")
	require.NoError(t, err)
	assert.Empty(t, result.Sources)
	require.Len(t, f.sessions.History("s1"), 1)
}

func TestEngine_EmbedFailureWithPopulatedIndexFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(Options{})

	f.addIndexed(t, "a", "indexed content")
	f.emb.fail.Store(true)

	_, err := f.engine.Answer(ctx, "anything", "s1")
	require.Error(t, err)
	assert.Empty(t, f.sessions.History("s1"))
	assert.Equal(t, int64(0), f.gen.calls.Load())
}

func TestEngine_SequentialQuestionsKeepOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(Options{})

	const n = 7
	for i := 0; i < n; i++ {
		_, err := f.engine.Answer(ctx, fmt.Sprintf("question %d", i), "s1")
		require.NoError(t, err)
	}

	history := f.sessions.History("s1")
	require.Len(t, history, n)
	for i, turn := range history {
		assert.Equal(t, fmt.Sprintf("question %d", i), turn.Question)
	}
}
