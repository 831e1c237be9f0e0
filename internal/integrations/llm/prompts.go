package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"reviewtrends/internal/domain"
)

const classifySystemPrompt = `You categorize app store reviews into topics.
Reuse an existing topic whenever one fits semantically. Propose a new topic only when none fits.
Topics are short English phrases of medium granularity. Duplicates are not tolerated.
Return STRICT JSON only: an array with exactly one object per review, in input order:
[{"review": "<review text>", "topic": "<topic name>", "is_new": true|false}]`

const validateSystemPrompt = `You are a strict topic approval agent.
Reject the proposed topic if it is even slightly similar to any existing topic.
Reject it if it is not explicitly grounded in the review text.
Approve only a topic that is clearly new and distinct.
Return STRICT JSON only: {"approved": true|false, "reason": "<short explanation>"}`

const canonicalizeSystemPrompt = `You rewrite a proposed review topic into its canonical name.
The label is a short English phrase of medium granularity, grounded strictly in the review.
Return STRICT JSON only: {"label": "<final topic label>", "description": "<short description>"}`

func buildClassifyPrompt(batch []string, existing []domain.Topic) string {
	var sb strings.Builder
	sb.WriteString("Existing topics:\n")
	sb.WriteString(indentJSON(topicLabels(existing)))
	sb.WriteString("\n\nReviews:\n")
	sb.WriteString(indentJSON(batch))
	sb.WriteString("\n")
	return sb.String()
}

func buildValidatePrompt(proposed, review string, existing []domain.Topic) string {
	return fmt.Sprintf("Existing topics:\n%s\n\nProposed topic:\n%q\n\nReview:\n%q\n",
		indentJSON(topicLabels(existing)), proposed, review)
}

func buildCanonicalizePrompt(proposed, review string) string {
	return fmt.Sprintf("Proposed topic:\n%q\n\nReview:\n%q\n", proposed, review)
}

func topicLabels(topics []domain.Topic) []string {
	labels := make([]string, 0, len(topics))
	for _, t := range topics {
		labels = append(labels, t.Label)
	}
	return labels
}

func indentJSON(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "[]"
	}
	return string(data)
}
