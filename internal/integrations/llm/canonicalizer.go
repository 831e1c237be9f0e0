package llm

import (
	"context"
	"errors"
	"strings"

	"reviewtrends/internal/domain"
)

const canonicalizeMaxTokens = 300

type canonicalResponse struct {
	Label       string `json:"label"`
	Description string `json:"description"`
}

// Canonicalizer rewrites an approved proposal into the label and
// description stored in the registry.
type Canonicalizer struct {
	completer   Completer
	temperature float64
	recorder    UsageRecorder
}

func NewCanonicalizer(c Completer, temperature float64, rec UsageRecorder) *Canonicalizer {
	return &Canonicalizer{completer: c, temperature: temperature, recorder: rec}
}

func (c *Canonicalizer) Canonicalize(ctx context.Context, proposed, review string) (domain.Topic, error) {
	resp, err := c.completer.Complete(ctx, Prompt{
		System:      canonicalizeSystemPrompt,
		User:        buildCanonicalizePrompt(proposed, review),
		Temperature: c.temperature,
		MaxTokens:   canonicalizeMaxTokens,
	})
	if err != nil {
		recordCall(ctx, c.recorder, c.completer, "canonicalize", resp.Usage, false)
		return domain.Topic{}, withProvider(err, c.completer.Name())
	}

	var out canonicalResponse
	if err := DecodeJSON(resp.Text, &out); err != nil {
		recordCall(ctx, c.recorder, c.completer, "canonicalize", resp.Usage, false)
		return domain.Topic{}, withProvider(err, c.completer.Name())
	}
	label := strings.Join(strings.Fields(out.Label), " ")
	if label == "" {
		recordCall(ctx, c.recorder, c.completer, "canonicalize", resp.Usage, false)
		return domain.Topic{}, &domain.ParseError{
			Provider: c.completer.Name(),
			Snippet:  domain.Truncate(resp.Text, snippetLen),
			Err:      errors.New("canonical label is empty"),
		}
	}
	recordCall(ctx, c.recorder, c.completer, "canonicalize", resp.Usage, true)
	return domain.Topic{Label: label, Description: strings.TrimSpace(out.Description)}, nil
}
