package llm

import "context"

// Prompt is one single-turn request to a chat model.
type Prompt struct {
	System      string
	User        string
	Temperature float64
	MaxTokens   int64
}

type Completion struct {
	Text  string
	Usage Usage
}

// Completer sends a prompt to one configured model. Transport and API
// failures come back as *domain.ProviderError.
type Completer interface {
	Name() string
	Model() string
	Complete(ctx context.Context, p Prompt) (Completion, error)
}
