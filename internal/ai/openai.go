package ai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"neighborly/internal/metrics"

	"github.com/sashabaranov/go-openai"
)

const (
	embeddingTimeout  = 10 * time.Second
	completionTimeout = 30 * time.Second

	// Rough guard against the embedding model's token limit.
	maxEmbedTokens      = 8000
	avgCharsPerToken    = 4
	maxEmbedChars       = maxEmbedTokens * avgCharsPerToken
	maxSummaryTokens    = 200
	maxCompletionTokens = 1000
)

// OpenAIClient implements Embedder, Summarizer and Generator against
// the OpenAI API.
type OpenAIClient struct {
	client *openai.Client
}

func NewOpenAIClient(apiKey string) *OpenAIClient {
	return &OpenAIClient{client: openai.NewClient(apiKey)}
}

func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("input text cannot be empty")
	}
	text = truncateAtWord(text, maxEmbedChars)

	ctx, cancel := context.WithTimeout(ctx, embeddingTimeout)
	defer cancel()

	start := time.Now()
	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.AdaEmbeddingV2,
	})
	metrics.OpenAIAPICallDuration.WithLabelValues("embedding").Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.OpenAIAPICalls.WithLabelValues("embedding", "error").Inc()
		return nil, fmt.Errorf("failed to generate embedding: %w", wrapTimeout(ctx, err))
	}

	if len(resp.Data) == 0 {
		metrics.OpenAIAPICalls.WithLabelValues("embedding", "error").Inc()
		return nil, fmt.Errorf("no embedding data returned")
	}

	metrics.OpenAIAPICalls.WithLabelValues("embedding", "success").Inc()
	return resp.Data[0].Embedding, nil
}

func (c *OpenAIClient) Summarize(ctx context.Context, text string) (string, error) {
	systemPrompt := "You summarize community posts and help requests for a neighborhood platform. Produce a two-sentence summary that preserves concrete details (places, dates, what is needed)."

	summary, err := c.chat(ctx, "summarize", systemPrompt, text, maxSummaryTokens)
	if err != nil {
		return "", fmt.Errorf("failed to summarize content: %w", err)
	}
	return summary, nil
}

func (c *OpenAIClient) Generate(ctx context.Context, question string, contextChunks []string, history []Exchange) (string, error) {
	var b strings.Builder
	if len(contextChunks) > 0 {
		b.WriteString("Context from the community platform:\n")
		for i, chunk := range contextChunks {
			fmt.Fprintf(&b, "[%d] %s\n", i+1, chunk)
		}
	} else {
		b.WriteString("No matching community content was found for this question.\n")
	}

	if len(history) > 0 {
		b.WriteString("\nConversation so far:\n")
		for _, ex := range history {
			fmt.Fprintf(&b, "User: %s\nAssistant: %s\n", ex.Question, ex.Answer)
		}
	}

	fmt.Fprintf(&b, "\nQuestion: %s", question)

	systemPrompt := "You are a helpful assistant for a neighborhood community platform. Answer questions using the provided community posts and help requests, citing chunk numbers when relevant. If the context does not cover the question, say so instead of inventing details."

	answer, err := c.chat(ctx, "generate", systemPrompt, b.String(), maxCompletionTokens)
	if err != nil {
		return "", fmt.Errorf("failed to generate answer: %w", err)
	}
	return answer, nil
}

func (c *OpenAIClient) chat(ctx context.Context, operation, systemPrompt, userPrompt string, maxTokens int) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, completionTimeout)
	defer cancel()

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     "gpt-4o-mini",
		MaxTokens: maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		Temperature: 0.7,
	})
	metrics.OpenAIAPICallDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.OpenAIAPICalls.WithLabelValues(operation, "error").Inc()
		slog.Error("OpenAI chat completion failed", "operation", operation, "error", err)
		return "", wrapTimeout(ctx, err)
	}

	if len(resp.Choices) == 0 {
		metrics.OpenAIAPICalls.WithLabelValues(operation, "error").Inc()
		return "", fmt.Errorf("no completion choices returned")
	}

	metrics.OpenAIAPICalls.WithLabelValues(operation, "success").Inc()
	return resp.Choices[0].Message.Content, nil
}

func truncateAtWord(text string, maxChars int) string {
	if len(text) <= maxChars {
		return text
	}

	truncated := text[:maxChars]
	if lastSpace := strings.LastIndex(truncated, " "); lastSpace > maxChars-100 {
		truncated = truncated[:lastSpace]
	}
	return truncated
}
