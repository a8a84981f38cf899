// Package llm adapts the OpenAI Responses API to the CoachModel port and
// provides a deterministic mock for offline runs and tests.
package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"

	"github.com/openefficiency/empathaicoach/domain"
	"github.com/openefficiency/empathaicoach/logging"
)

// defaultReplyTokens bounds coach replies; a spoken coaching turn is short
const defaultReplyTokens = 400

// Client calls the OpenAI Responses API for coach replies and goal
// refinement. It implements ports.CoachModel and ports.GoalRefiner.
type Client struct {
	client openai.Client
	model  string
}

// NewClient builds a client for the given model name
func NewClient(apiKey, model string) *Client {
	return &Client{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

// Generate produces one coach reply for the current turn. The transcript
// is rendered speaker-tagged; the phase-specific system prompt goes in the
// instructions slot.
func (c *Client) Generate(ctx context.Context, systemPrompt string, transcript []domain.Utterance) (string, error) {
	params := responses.ResponseNewParams{
		Model:           c.model,
		MaxOutputTokens: openai.Int(defaultReplyTokens),
		Instructions:    openai.String(systemPrompt),
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: []responses.ResponseInputItemUnionParam{
				responses.ResponseInputItemParamOfMessage(renderTranscript(transcript), responses.EasyInputMessageRoleUser),
			},
		},
	}

	resp, err := callWithRetry(ctx, &c.client, params)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrModelUnavailable, err)
	}

	reply := strings.TrimSpace(resp.OutputText())
	if reply == "" {
		return "", fmt.Errorf("%w: empty model output", domain.ErrModelUnavailable)
	}
	return reply, nil
}

// renderTranscript flattens the session transcript into speaker-tagged
// lines. The most recent turns matter most, so the full transcript goes in
// chronological order.
func renderTranscript(transcript []domain.Utterance) string {
	if len(transcript) == 0 {
		return "(the session is just beginning; greet the user)"
	}
	var b strings.Builder
	for _, u := range transcript {
		b.WriteString(string(u.Speaker))
		b.WriteString(": ")
		b.WriteString(u.Text)
		b.WriteString("\n")
	}
	return b.String()
}

// callWithRetry retries transient API failures. Rate limits wait longer
// than server errors.
func callWithRetry(ctx context.Context, client *openai.Client, params responses.ResponseNewParams) (*responses.Response, error) {
	const maxRetries = 3
	rateLimitWaitTimes := []time.Duration{5 * time.Second, 15 * time.Second, 30 * time.Second}
	serverErrorWaitTimes := []time.Duration{1 * time.Second, 5 * time.Second, 15 * time.Second}

	for attempt := 0; attempt < maxRetries; attempt++ {
		resp, err := client.Responses.New(ctx, params)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if isRateLimitError(err) && attempt < maxRetries-1 {
				logging.Logger.Warn("model rate limited, retrying", "attempt", attempt+1)
				select {
				case <-time.After(rateLimitWaitTimes[attempt]):
				case <-ctx.Done():
					return nil, ctx.Err()
				}
				continue
			}
			if isServerError(err) && attempt < maxRetries-1 {
				logging.Logger.Warn("model server error, retrying", "attempt", attempt+1, "error", err)
				select {
				case <-time.After(serverErrorWaitTimes[attempt]):
				case <-ctx.Done():
					return nil, ctx.Err()
				}
				continue
			}
			return nil, err
		}
		return resp, nil
	}
	return nil, fmt.Errorf("failed after %d attempts due to OpenAI API issues", maxRetries)
}

func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "too many requests")
}

func isServerError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "internal server error") ||
		strings.Contains(errStr, "server_error")
}
