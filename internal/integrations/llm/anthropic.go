package llm

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"reviewtrends/internal/domain"
)

const defaultAnthropicMaxTokens = 1024

type AnthropicClient struct {
	model  string
	client anthropic.Client
}

func NewAnthropicClient(apiKey, model, baseURL string, httpClient *http.Client, opts ...option.RequestOption) *AnthropicClient {
	base := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		base = append(base, option.WithBaseURL(baseURL))
	}
	if httpClient != nil {
		base = append(base, option.WithHTTPClient(httpClient))
	}
	return &AnthropicClient{
		model:  model,
		client: anthropic.NewClient(append(base, opts...)...),
	}
}

func (c *AnthropicClient) Name() string  { return "anthropic" }
func (c *AnthropicClient) Model() string { return c.model }

func (c *AnthropicClient) Complete(ctx context.Context, p Prompt) (Completion, error) {
	maxTokens := p.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		MaxTokens:   maxTokens,
		Temperature: anthropic.Float(p.Temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(p.User)),
		},
	}
	if p.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: p.System}}
	}

	message, err := c.client.Messages.New(ctx, params)
	if err != nil {
		log.Printf("llm anthropic error: %v", err)
		return Completion{}, &domain.ProviderError{Provider: c.Name(), Err: err}
	}
	usage := Usage{
		InputTokens:  message.Usage.InputTokens,
		OutputTokens: message.Usage.OutputTokens,
	}

	for _, block := range message.Content {
		if block.Type == "text" {
			log.Printf("llm anthropic response size=%d tokens_in=%d tokens_out=%d", len(block.Text), usage.InputTokens, usage.OutputTokens)
			return Completion{Text: block.Text, Usage: usage}, nil
		}
	}
	return Completion{Usage: usage}, &domain.ParseError{Provider: c.Name(), Err: errors.New("no text content in response")}
}
