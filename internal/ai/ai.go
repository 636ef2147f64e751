package ai

import (
	"context"
	"errors"
)

// ErrUpstreamTimeout marks an AI call that ran out of time. Callers
// decide whether to retry; nothing in this package retries on its own.
var ErrUpstreamTimeout = errors.New("upstream AI call timed out")

// Exchange is one prior question/answer pair handed to the generator
// as conversational context.
type Exchange struct {
	Question string
	Answer   string
}

// Embedder converts text into a fixed-length vector. Embedding is a
// pure function of the text: identical input yields an identical
// vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Summarizer produces a short summary of a longer text.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}

// Generator answers a question given retrieved context chunks and the
// session history so far.
type Generator interface {
	Generate(ctx context.Context, question string, contextChunks []string, history []Exchange) (string, error)
}

func wrapTimeout(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ErrUpstreamTimeout
	}
	return err
}
