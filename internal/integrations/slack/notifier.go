package slackbot

import (
	"context"
	"fmt"
	"log"

	"github.com/slack-go/slack"
)

// Notifier posts pipeline summaries to a single channel.
type Notifier struct {
	api       *slack.Client
	channelID string
}

func NewNotifier(api *slack.Client, channelID string) *Notifier {
	return &Notifier{api: api, channelID: channelID}
}

// NewNotifierFromToken builds the Slack client itself. It returns nil when
// token or channel is empty, which callers treat as "notifications off".
func NewNotifierFromToken(token, channelID string, opts ...slack.Option) *Notifier {
	if token == "" || channelID == "" {
		return nil
	}
	return NewNotifier(slack.New(token, opts...), channelID)
}

func (n *Notifier) Notify(ctx context.Context, text string) error {
	if n == nil {
		return nil
	}
	_, _, err := n.api.PostMessageContext(ctx, n.channelID, slack.MsgOptionText(text, false))
	if err != nil {
		log.Printf("slack post error channel=%s: %v", n.channelID, err)
		return fmt.Errorf("posting to slack: %w", err)
	}
	return nil
}
