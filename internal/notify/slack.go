package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"neighborly/internal/store"

	"github.com/slack-go/slack"
)

// SlackNotifier posts community alerts to a Slack incoming webhook.
// A nil notifier is valid and drops everything, so callers don't need
// to guard on configuration.
type SlackNotifier struct {
	webhookURL string
}

func NewSlackNotifier(webhookURL string) *SlackNotifier {
	if webhookURL == "" {
		return nil
	}
	return &SlackNotifier{webhookURL: webhookURL}
}

// HelpRequestCreated announces a new help request. Posting happens in
// the background; a failed webhook is logged and dropped, never
// surfaced to the mutation path.
func (n *SlackNotifier) HelpRequestCreated(item *store.ContentItem) {
	if n == nil {
		return
	}

	text := fmt.Sprintf("New help request: *%s*", item.Title)
	if item.Location != "" {
		text += fmt.Sprintf(" (%s)", item.Location)
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		msg := &slack.WebhookMessage{Text: text}
		if err := slack.PostWebhookContext(ctx, n.webhookURL, msg); err != nil {
			slog.Warn("Failed to post help request alert to Slack",
				"content_id", item.ID, "error", err)
		}
	}()
}
