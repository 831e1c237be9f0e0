package llm

import (
	"context"
	"log"

	"reviewtrends/internal/domain"
)

const validateMaxTokens = 300

type validatorResponse struct {
	Approved *bool  `json:"approved"`
	Reason   string `json:"reason"`
}

// Validator asks a second model whether a proposed topic is genuinely new.
type Validator struct {
	completer   Completer
	temperature float64
	recorder    UsageRecorder
}

func NewValidator(c Completer, temperature float64, rec UsageRecorder) *Validator {
	return &Validator{completer: c, temperature: temperature, recorder: rec}
}

// Validate returns the model's verdict. A response without an "approved"
// field counts as a rejection.
func (v *Validator) Validate(ctx context.Context, proposed, review string, existing []domain.Topic) (domain.Verdict, error) {
	resp, err := v.completer.Complete(ctx, Prompt{
		System:      validateSystemPrompt,
		User:        buildValidatePrompt(proposed, review, existing),
		Temperature: v.temperature,
		MaxTokens:   validateMaxTokens,
	})
	if err != nil {
		recordCall(ctx, v.recorder, v.completer, "validate", resp.Usage, false)
		return domain.Verdict{}, withProvider(err, v.completer.Name())
	}

	var out validatorResponse
	if err := DecodeJSON(resp.Text, &out); err != nil {
		recordCall(ctx, v.recorder, v.completer, "validate", resp.Usage, false)
		return domain.Verdict{}, withProvider(err, v.completer.Name())
	}
	recordCall(ctx, v.recorder, v.completer, "validate", resp.Usage, true)

	verdict := domain.Verdict{Reason: out.Reason}
	if out.Approved == nil {
		verdict.Reason = "response carried no approval decision"
		if out.Reason != "" {
			verdict.Reason += ": " + out.Reason
		}
	} else {
		verdict.Approved = *out.Approved
	}
	log.Printf("llm validate provider=%s topic=%q approved=%v", v.completer.Name(), proposed, verdict.Approved)
	return verdict, nil
}
