package qa

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"neighborly/internal/ai"
	"neighborly/internal/index"
	"neighborly/internal/metrics"
	"neighborly/internal/session"
	"neighborly/internal/store"
)

// GenerationError marks a question that reached the generator and
// failed there. The session is left untouched so the question is not
// counted as answered.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("answer generation failed: %v", e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// Result is an answered question plus the content ids whose chunks
// backed it, for citation.
type Result struct {
	Answer  string   `json:"answer"`
	Sources []string `json:"sources"`
}

type Options struct {
	RetrievalK    int
	HistoryTurns  int
	MaxChunkChars int
}

// Engine answers free-form questions: embed the question, retrieve the
// nearest content, build context from summaries or raw text, generate
// a session-aware answer, and record the turn.
type Engine struct {
	embedder  ai.Embedder
	generator ai.Generator
	idx       index.Index
	store     store.Store
	sessions  *session.Store

	retrievalK    int
	historyTurns  int
	maxChunkChars int
}

func NewEngine(embedder ai.Embedder, generator ai.Generator, idx index.Index, contentStore store.Store, sessions *session.Store, opts Options) *Engine {
	if opts.RetrievalK <= 0 {
		opts.RetrievalK = 5
	}
	if opts.HistoryTurns <= 0 {
		opts.HistoryTurns = 8
	}
	if opts.MaxChunkChars <= 0 {
		opts.MaxChunkChars = 1000
	}
	return &Engine{
		embedder:      embedder,
		generator:     generator,
		idx:           idx,
		store:         contentStore,
		sessions:      sessions,
		retrievalK:    opts.RetrievalK,
		historyTurns:  opts.HistoryTurns,
		maxChunkChars: opts.MaxChunkChars,
	}
}

// Answer handles one question for one session. An empty index is not
// an error: the generator just runs with no context. The turn is only
// appended once generation succeeded and the caller has not gone away,
// so an abandoned request never corrupts session ordering. The engine
// never retries; retrying is the caller's call.
func (e *Engine) Answer(ctx context.Context, question, sessionID string) (*Result, error) {
	start := time.Now()

	chunks, sources, err := e.retrieve(ctx, question)
	if err != nil {
		metrics.QuestionsProcessed.WithLabelValues("retrieval_error").Inc()
		return nil, err
	}

	history := e.sessions.History(sessionID)
	if len(history) > e.historyTurns {
		history = history[len(history)-e.historyTurns:]
	}
	exchanges := make([]ai.Exchange, len(history))
	for i, turn := range history {
		exchanges[i] = ai.Exchange{Question: turn.Question, Answer: turn.Answer}
	}

	answer, err := e.generator.Generate(ctx, question, chunks, exchanges)
	if err != nil {
		metrics.QuestionsProcessed.WithLabelValues("generation_error").Inc()
		return nil, &GenerationError{Err: err}
	}

	// The caller may have abandoned the request while the generator was
	// running; discard the answer rather than recording a turn nobody
	// received.
	if ctx.Err() != nil {
		metrics.QuestionsProcessed.WithLabelValues("canceled").Inc()
		return nil, ctx.Err()
	}

	e.sessions.Append(sessionID, session.Turn{
		Question:     question,
		Answer:       answer,
		RetrievedIDs: sources,
		At:           time.Now(),
	})

	metrics.QuestionsProcessed.WithLabelValues("success").Inc()
	metrics.QuestionDuration.Observe(time.Since(start).Seconds())

	slog.Info("Question answered",
		"session_id", sessionID,
		"sources", len(sources),
		"duration", time.Since(start))

	return &Result{Answer: answer, Sources: sources}, nil
}

// retrieve embeds the question and resolves the top-k matches to
// context chunks. Matches deleted between search and fetch are
// dropped. When the index is empty the question proceeds with no
// context; when embedding the question itself fails, the same
// degradation applies only if there is nothing to search anyway.
func (e *Engine) retrieve(ctx context.Context, question string) ([]string, []string, error) {
	vector, err := e.embedder.Embed(ctx, question)
	if err != nil {
		if n, lenErr := e.idx.Len(ctx); lenErr == nil && n == 0 {
			slog.Warn("Question embedding failed with empty index, degrading to empty context", "error", err)
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("failed to embed question: %w", err)
	}

	matches, err := e.idx.Search(ctx, vector, e.retrievalK)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to search index: %w", err)
	}

	var chunks []string
	var sources []string
	for _, match := range matches {
		item, err := e.store.Get(ctx, match.ID)
		if err == store.ErrNotFound {
			continue
		}
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load matched content: %w", err)
		}
		if item.Deleted {
			continue
		}

		chunks = append(chunks, e.chunk(item))
		sources = append(sources, item.ID)
	}

	return chunks, sources, nil
}

// chunk prefers a valid cached summary over raw text. Summary cache
// misses are not recomputed on the question path; a summarizer call
// here would put an extra AI round-trip in front of every answer.
func (e *Engine) chunk(item *store.ContentItem) string {
	text := item.Text
	if item.Summary != "" && item.SummaryVersion == item.Version {
		text = item.Summary
	}

	if item.Title != "" {
		text = item.Title + ": " + text
	}
	return truncateChunk(text, e.maxChunkChars)
}

// truncateChunk cuts text to at most max bytes, never splitting a
// multi-byte rune and preferring a nearby word boundary.
func truncateChunk(text string, max int) string {
	if len(text) <= max {
		return text
	}

	cut := max
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	truncated := text[:cut]
	if lastSpace := strings.LastIndex(truncated, " "); lastSpace > cut-100 && lastSpace > 0 {
		truncated = truncated[:lastSpace]
	}
	return truncated
}
