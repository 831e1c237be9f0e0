package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Topic is a canonical review theme. Label is its only identity.
type Topic struct {
	Label       string `json:"label"`
	Description string `json:"description"`
}

// Registry maps label to Topic and remembers insertion order, which is the
// order topics are shown to providers.
type Registry struct {
	order  []string
	topics map[string]Topic
}

func NewRegistry() *Registry {
	return &Registry{topics: make(map[string]Topic)}
}

func (r *Registry) Len() int {
	return len(r.order)
}

func (r *Registry) Has(label string) bool {
	_, ok := r.topics[label]
	return ok
}

func (r *Registry) Get(label string) (Topic, bool) {
	t, ok := r.topics[label]
	return t, ok
}

// All returns the topics in insertion order.
func (r *Registry) All() []Topic {
	out := make([]Topic, 0, len(r.order))
	for _, label := range r.order {
		out = append(out, r.topics[label])
	}
	return out
}

func (r *Registry) Labels() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Resolve finds the registry label matching label exactly, or failing that,
// ignoring case and repeated whitespace.
func (r *Registry) Resolve(label string) (string, bool) {
	if _, ok := r.topics[label]; ok {
		return label, true
	}
	key := NormalizeLabel(label)
	if key == "" {
		return "", false
	}
	for _, existing := range r.order {
		if NormalizeLabel(existing) == key {
			return existing, true
		}
	}
	return "", false
}

// Put writes t under its label. An existing label keeps its position and only
// has its description replaced. It reports whether a new row was created.
func (r *Registry) Put(t Topic) bool {
	if r.topics == nil {
		r.topics = make(map[string]Topic)
	}
	if strings.TrimSpace(t.Label) == "" {
		return false
	}
	_, exists := r.topics[t.Label]
	if !exists {
		r.order = append(r.order, t.Label)
	}
	r.topics[t.Label] = t
	return !exists
}

func NormalizeLabel(label string) string {
	return strings.ToLower(strings.Join(strings.Fields(label), " "))
}

// MarshalJSON writes the registry as an object keyed by label, in insertion order.
func (r *Registry) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, label := range r.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(label)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(r.topics[label])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a label-keyed object and keeps the file's key order.
// A topic stored without a label takes its key as the label.
func (r *Registry) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*r = Registry{topics: make(map[string]Topic)}
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("registry: expected object, got %v", tok)
	}

	fresh := Registry{topics: make(map[string]Topic)}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("registry: expected string key, got %v", keyTok)
		}
		var t Topic
		if err := dec.Decode(&t); err != nil {
			return fmt.Errorf("registry: topic %q: %w", key, err)
		}
		if t.Label == "" {
			t.Label = key
		}
		fresh.Put(t)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*r = fresh
	return nil
}
