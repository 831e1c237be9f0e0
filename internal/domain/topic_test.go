package domain

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestRegistryPutIsIdempotentPerLabel(t *testing.T) {
	r := NewRegistry()
	if !r.Put(Topic{Label: "App crashes", Description: "first"}) {
		t.Fatal("expected first put to create a row")
	}
	r.Put(Topic{Label: "Slow delivery", Description: "late orders"})
	if r.Put(Topic{Label: "App crashes", Description: "second"}) {
		t.Fatal("expected second put under the same label to reuse the row")
	}

	if r.Len() != 2 {
		t.Fatalf("expected 2 topics, got %d", r.Len())
	}
	got, _ := r.Get("App crashes")
	if got.Description != "second" {
		t.Fatalf("expected description overwrite, got %q", got.Description)
	}
	labels := r.Labels()
	if labels[0] != "App crashes" || labels[1] != "Slow delivery" {
		t.Fatalf("expected insertion order to survive overwrite, got %v", labels)
	}
}

func TestRegistryPutIgnoresEmptyLabel(t *testing.T) {
	r := NewRegistry()
	if r.Put(Topic{Description: "no label"}) {
		t.Fatal("empty label must not create a row")
	}
	if r.Put(Topic{Label: "  \t", Description: "blank label"}) {
		t.Fatal("whitespace-only label must not create a row")
	}
	if r.Len() != 0 {
		t.Fatalf("expected empty registry, got %d", r.Len())
	}
}

func TestRegistryResolve(t *testing.T) {
	r := NewRegistry()
	r.Put(Topic{Label: "Payment failed"})

	tests := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{in: "Payment failed", want: "Payment failed", wantOK: true},
		{in: "payment  FAILED ", want: "Payment failed", wantOK: true},
		{in: "Payment declined", wantOK: false},
		{in: "   ", wantOK: false},
	}
	for _, tt := range tests {
		got, ok := r.Resolve(tt.in)
		if ok != tt.wantOK || got != tt.want {
			t.Fatalf("Resolve(%q) = %q,%v want %q,%v", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestRegistryJSONKeepsInsertionOrder(t *testing.T) {
	r := NewRegistry()
	r.Put(Topic{Label: "Zebra", Description: "z"})
	r.Put(Topic{Label: "Apple", Description: "a"})
	r.Put(Topic{Label: "Mango", Description: "m"})

	data, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.HasPrefix(string(data), `{"Zebra":`) {
		t.Fatalf("expected insertion order in output, got %s", data)
	}

	var back Registry
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	labels := back.Labels()
	want := []string{"Zebra", "Apple", "Mango"}
	for i := range want {
		if labels[i] != want[i] {
			t.Fatalf("label order = %v, want %v", labels, want)
		}
	}
}

func TestRegistryUnmarshalFillsMissingLabelFromKey(t *testing.T) {
	var r Registry
	if err := json.Unmarshal([]byte(`{"Login issues": {"description": "cannot sign in"}}`), &r); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	got, ok := r.Get("Login issues")
	if !ok || got.Description != "cannot sign in" {
		t.Fatalf("unexpected topic: %+v ok=%v", got, ok)
	}
}

func TestRegistryUnmarshalRejectsArray(t *testing.T) {
	var r Registry
	if err := json.Unmarshal([]byte(`[1,2]`), &r); err == nil {
		t.Fatal("expected error for array input")
	}
}

func TestNewDailyCountsSeedsRegistryLabels(t *testing.T) {
	r := NewRegistry()
	r.Put(Topic{Label: "A"})
	r.Put(Topic{Label: "B"})

	counts := NewDailyCounts("2026-01-05", r)
	counts.Increment("B")
	counts.Increment("C")

	if counts.Topics["A"] != 0 || counts.Topics["B"] != 1 || counts.Topics["C"] != 1 {
		t.Fatalf("unexpected counts: %v", counts.Topics)
	}
	if counts.Total() != 2 {
		t.Fatalf("expected total 2, got %d", counts.Total())
	}
}

func TestErrorTaxonomyMatchesSentinels(t *testing.T) {
	cause := errors.New("connection refused")
	var err error = &ProviderError{Provider: "groq", Err: cause}
	if !errors.Is(err, ErrProvider) || !errors.Is(err, cause) {
		t.Fatalf("provider error should match sentinel and cause: %v", err)
	}
	if errors.Is(err, ErrParse) {
		t.Fatal("provider error must not match ErrParse")
	}

	err = &ParseError{Provider: "mistral", Snippet: "not json"}
	if !errors.Is(err, ErrParse) {
		t.Fatalf("parse error should match sentinel: %v", err)
	}
	if !strings.Contains(err.Error(), "not json") {
		t.Fatalf("expected snippet in message, got %q", err.Error())
	}
}
