package llm

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"reviewtrends/internal/domain"
)

// OpenAICompatClient talks to any OpenAI-compatible chat completions
// endpoint. Groq and Mistral both serve one.
type OpenAICompatClient struct {
	name   string
	model  string
	client openai.Client
}

func NewOpenAICompatClient(name, apiKey, model, baseURL string, httpClient *http.Client, opts ...option.RequestOption) *OpenAICompatClient {
	base := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		base = append(base, option.WithBaseURL(baseURL))
	}
	if httpClient != nil {
		base = append(base, option.WithHTTPClient(httpClient))
	}
	return &OpenAICompatClient{
		name:   name,
		model:  model,
		client: openai.NewClient(append(base, opts...)...),
	}
}

func (c *OpenAICompatClient) Name() string  { return c.name }
func (c *OpenAICompatClient) Model() string { return c.model }

func (c *OpenAICompatClient) Complete(ctx context.Context, p Prompt) (Completion, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if p.System != "" {
		messages = append(messages, openai.SystemMessage(p.System))
	}
	messages = append(messages, openai.UserMessage(p.User))

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(c.model),
		Messages:    messages,
		Temperature: openai.Float(p.Temperature),
	}
	if p.MaxTokens > 0 {
		params.MaxTokens = openai.Int(p.MaxTokens)
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		log.Printf("llm %s error: %v", c.name, err)
		return Completion{}, &domain.ProviderError{Provider: c.name, Err: err}
	}

	usage := Usage{
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}
	if len(resp.Choices) == 0 {
		return Completion{Usage: usage}, &domain.ParseError{Provider: c.name, Err: errors.New("no choices in response")}
	}
	text := resp.Choices[0].Message.Content
	log.Printf("llm %s response size=%d tokens_in=%d tokens_out=%d", c.name, len(text), usage.InputTokens, usage.OutputTokens)
	return Completion{Text: text, Usage: usage}, nil
}
