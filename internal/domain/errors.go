package domain

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

var (
	// ErrProvider marks a transport or availability failure of an external call.
	ErrProvider = errors.New("provider error")
	// ErrParse marks a response that arrived but could not be read as the expected structure.
	ErrParse = errors.New("parse error")
	// ErrBudgetExhausted is returned once the day's fallback call quota is used up.
	ErrBudgetExhausted = errors.New("fallback budget exhausted")
	// ErrMissingInput marks an absent review, registry or counts file.
	ErrMissingInput = errors.New("missing input")
)

// ProviderError wraps a failed call to a named provider.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrProvider, e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() []error {
	return []error{ErrProvider, e.Err}
}

// ParseError wraps an unreadable provider response. Snippet holds the start of
// the raw text for diagnostics.
type ParseError struct {
	Provider string
	Snippet  string
	Err      error
}

func (e *ParseError) Error() string {
	msg := ErrParse.Error()
	if e.Provider != "" {
		msg += ": " + e.Provider
	}
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	if e.Snippet != "" {
		msg += fmt.Sprintf(" (response: %s)", e.Snippet)
	}
	return msg
}

func (e *ParseError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrParse}
	}
	return []error{ErrParse, e.Err}
}

// Truncate shortens s to at most n bytes, marking the cut. The cut never
// splits a rune.
func Truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
