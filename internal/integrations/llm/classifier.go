package llm

import (
	"context"
	"fmt"
	"log"
	"strings"

	"reviewtrends/internal/domain"
)

const classifyMaxTokens = 4096

type classifierItem struct {
	Review string `json:"review"`
	Topic  string `json:"topic"`
	IsNew  bool   `json:"is_new"`
}

// Classifier proposes a topic for every review of a batch.
type Classifier struct {
	completer   Completer
	temperature float64
	recorder    UsageRecorder
}

func NewClassifier(c Completer, temperature float64, rec UsageRecorder) *Classifier {
	return &Classifier{completer: c, temperature: temperature, recorder: rec}
}

func (c *Classifier) Name() string {
	return c.completer.Name()
}

// Classify returns exactly one proposal per input review, in input order.
// The review text is taken from the batch, not from the model's echo.
func (c *Classifier) Classify(ctx context.Context, batch []string, existing []domain.Topic) ([]domain.Proposal, error) {
	if len(batch) == 0 {
		return nil, nil
	}
	name := c.completer.Name()
	log.Printf("llm classify provider=%s reviews=%d existing_topics=%d", name, len(batch), len(existing))

	resp, err := c.completer.Complete(ctx, Prompt{
		System:      classifySystemPrompt,
		User:        buildClassifyPrompt(batch, existing),
		Temperature: c.temperature,
		MaxTokens:   classifyMaxTokens,
	})
	if err != nil {
		recordCall(ctx, c.recorder, c.completer, "classify", resp.Usage, false)
		return nil, withProvider(err, name)
	}

	var items []classifierItem
	if err := DecodeJSON(resp.Text, &items); err != nil {
		recordCall(ctx, c.recorder, c.completer, "classify", resp.Usage, false)
		return nil, withProvider(err, name)
	}
	if len(items) != len(batch) {
		recordCall(ctx, c.recorder, c.completer, "classify", resp.Usage, false)
		return nil, &domain.ParseError{
			Provider: name,
			Snippet:  domain.Truncate(resp.Text, snippetLen),
			Err:      fmt.Errorf("got %d results for %d reviews", len(items), len(batch)),
		}
	}

	proposals := make([]domain.Proposal, len(items))
	for i, item := range items {
		label := strings.TrimSpace(item.Topic)
		if label == "" {
			recordCall(ctx, c.recorder, c.completer, "classify", resp.Usage, false)
			return nil, &domain.ParseError{
				Provider: name,
				Snippet:  domain.Truncate(resp.Text, snippetLen),
				Err:      fmt.Errorf("result %d has no topic", i),
			}
		}
		proposals[i] = domain.Proposal{Review: batch[i], Label: label, IsNew: item.IsNew}
	}
	recordCall(ctx, c.recorder, c.completer, "classify", resp.Usage, true)
	return proposals, nil
}
