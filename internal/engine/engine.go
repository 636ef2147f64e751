package engine

import (
	"context"
	"fmt"

	"neighborly/internal/metrics"
	"neighborly/internal/notify"
	"neighborly/internal/qa"
	"neighborly/internal/refresh"
	"neighborly/internal/store"
	"neighborly/internal/summary"
)

// Engine is the call surface the CRUD layer sees: mutation hooks that
// keep the embedding index converged, plus the summary and question
// queries. Mutation hooks must only be invoked after the content write
// has been durably committed.
type Engine struct {
	store     store.Store
	coord     *refresh.Coordinator
	qa        *qa.Engine
	summaries *summary.Cache
	notifier  *notify.SlackNotifier
}

func New(contentStore store.Store, coord *refresh.Coordinator, qaEngine *qa.Engine, summaries *summary.Cache, notifier *notify.SlackNotifier) *Engine {
	return &Engine{
		store:     contentStore,
		coord:     coord,
		qa:        qaEngine,
		summaries: summaries,
		notifier:  notifier,
	}
}

func (e *Engine) OnContentCreated(item *store.ContentItem) {
	metrics.ContentMutations.WithLabelValues(string(item.Kind), "create").Inc()
	e.coord.MarkDirty(item.ID)

	if item.Kind == store.KindHelpRequest {
		e.notifier.HelpRequestCreated(item)
	}
}

func (e *Engine) OnContentEdited(item *store.ContentItem) {
	metrics.ContentMutations.WithLabelValues(string(item.Kind), "edit").Inc()
	e.coord.MarkDirty(item.ID)
}

func (e *Engine) OnContentDeleted(ctx context.Context, id string) error {
	metrics.ContentMutations.WithLabelValues("any", "delete").Inc()
	return e.coord.Delete(ctx, id)
}

// OnRelationChanged covers mutations that alter an item's indexed text
// without editing it directly, such as a volunteer joining a help
// request.
func (e *Engine) OnRelationChanged(id string) {
	metrics.ContentMutations.WithLabelValues("any", "relation").Inc()
	e.coord.MarkDirty(id)
}

func (e *Engine) QuerySummary(ctx context.Context, id string) (string, error) {
	item, err := e.store.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if item.Deleted {
		return "", store.ErrNotFound
	}
	return e.summaries.Get(ctx, item)
}

func (e *Engine) AskQuestion(ctx context.Context, question, sessionID string) (*qa.Result, error) {
	if question == "" {
		return nil, fmt.Errorf("question cannot be empty")
	}
	if sessionID == "" {
		return nil, fmt.Errorf("session id cannot be empty")
	}
	return e.qa.Answer(ctx, question, sessionID)
}

// Rebuild repopulates the index from the content store. Called once at
// startup, and exposed for manual refreshes.
func (e *Engine) Rebuild(ctx context.Context) error {
	return e.coord.Rebuild(ctx)
}

// Drain waits for in-flight refreshes, for graceful shutdown.
func (e *Engine) Drain() {
	e.coord.Wait()
}
