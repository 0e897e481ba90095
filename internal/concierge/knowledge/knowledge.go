// Package knowledge loads and serves the static answer base: the curated
// per-category, per-language replies the assistant prefers over an LLM call,
// plus the staff numbers that are exempt from rate limiting.
//
// The base is a YAML document validated against an embedded JSON schema at
// load time, so a malformed edit fails fast at startup (or reload) instead of
// surfacing as missing answers at 3 a.m.
package knowledge

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/capsulepod/concierge/internal/concierge/intent"
)

//go:embed schema.json
var schemaJSON string

// compiled once at init; the schema is embedded so a bad schema is a
// programming error, not a runtime condition.
var schema = jsonschema.MustCompileString("knowledge/schema.json", schemaJSON)

// Base is an immutable snapshot of the knowledge document. Create a new Base
// via Load or Parse; swap snapshots through a Handle.
type Base struct {
	// answers maps category → language subtag ("en", "ms", "zh") → reply.
	answers map[string]map[string]string
	exempt  []string
}

// document is the YAML decode target.
type document struct {
	Answers       map[string]map[string]string `yaml:"answers"`
	ExemptNumbers []string                     `yaml:"exempt_numbers"`
}

// Load reads, validates and parses the knowledge document at path.
func Load(path string) (*Base, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("knowledge: read %s: %w", path, err)
	}
	b, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("knowledge: %s: %w", path, err)
	}
	return b, nil
}

// Parse validates data against the embedded schema and decodes it.
//
// Validation happens on the YAML converted to generic JSON values, which is
// what the jsonschema library expects; decode into the typed struct only
// happens after the document is known to be well-formed.
func Parse(data []byte) (*Base, error) {
	var generic any
	if err := yaml.Unmarshal(data, &generic); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}

	// Round-trip through JSON so nested maps carry the value types the
	// schema validator understands.
	jsonBytes, err := json.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("convert to json: %w", err)
	}
	var jsonVal any
	if err := json.Unmarshal(jsonBytes, &jsonVal); err != nil {
		return nil, fmt.Errorf("reparse json: %w", err)
	}
	if err := schema.Validate(jsonVal); err != nil {
		return nil, fmt.Errorf("validate document: %w", err)
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}

	// Categories outside the closed intent set are rejected here rather than
	// in the schema so the error names the offending key.
	for cat := range doc.Answers {
		if intent.ParseCategory(cat) == intent.CategoryUnknown && cat != string(intent.CategoryUnknown) {
			return nil, fmt.Errorf("answers: unknown category %q", cat)
		}
	}

	return &Base{answers: doc.Answers, exempt: doc.ExemptNumbers}, nil
}

// Answer returns the curated reply for category in the requested language.
// When the language column is missing it falls back to English; the boolean
// is false when the category has no entry at all.
func (b *Base) Answer(category intent.Category, tag language.Tag) (string, bool) {
	byLang, ok := b.answers[string(category)]
	if !ok {
		return "", false
	}
	base, _ := tag.Base()
	if s, ok := byLang[base.String()]; ok && strings.TrimSpace(s) != "" {
		return s, true
	}
	if s, ok := byLang["en"]; ok && strings.TrimSpace(s) != "" {
		return s, true
	}
	return "", false
}

// ExemptNumbers returns the staff numbers that bypass rate limiting.
func (b *Base) ExemptNumbers() []string {
	out := make([]string, len(b.exempt))
	copy(out, b.exempt)
	return out
}

// Handle holds the current Base and supports lock-free reads with atomic
// replacement on reload. The zero Handle answers nothing; call Swap first.
type Handle struct {
	current atomic.Pointer[Base]
}

// NewHandle returns a Handle serving b.
func NewHandle(b *Base) *Handle {
	h := &Handle{}
	h.current.Store(b)
	return h
}

// Swap replaces the served snapshot.
func (h *Handle) Swap(b *Base) {
	h.current.Store(b)
}

// Answer proxies to the current snapshot.
func (h *Handle) Answer(category intent.Category, tag language.Tag) (string, bool) {
	b := h.current.Load()
	if b == nil {
		return "", false
	}
	return b.Answer(category, tag)
}

// ExemptNumbers proxies to the current snapshot.
func (h *Handle) ExemptNumbers() []string {
	b := h.current.Load()
	if b == nil {
		return nil
	}
	return b.ExemptNumbers()
}
