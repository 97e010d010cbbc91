// Package schema holds the static registry of NWB metadata fields: names,
// requirement tiers, expected types, allowed values, and normalization hints.
// Pure data, loaded once at process start, never mutated.
package schema

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed fields.yaml
var fieldsYAML []byte

// Tier is the requirement tier of a metadata field.
type Tier string

const (
	TierCritical    Tier = "critical"
	TierRecommended Tier = "recommended"
	TierOptional    Tier = "optional"
)

// ValueType describes the expected shape of a field's value.
type ValueType string

const (
	TypeText   ValueType = "text"
	TypeList   ValueType = "list"
	TypeDate   ValueType = "date"
	TypeNested ValueType = "nested"
)

// SchemaField is the static definition of one metadata field.
type SchemaField struct {
	Name          string            `yaml:"name"`
	Tier          Tier              `yaml:"tier"`
	Type          ValueType         `yaml:"type"`
	FormatHint    string            `yaml:"format,omitempty"`
	AllowedValues []string          `yaml:"allowed,omitempty"`
	Synonyms      map[string]string `yaml:"synonyms,omitempty"` // raw value -> canonical value
	Example       string            `yaml:"example,omitempty"`
	Aliases       []string          `yaml:"aliases,omitempty"` // alternate names for the field itself
}

// Registry is the ordered collection of field definitions. Declaration order
// in fields.yaml is the canonical order used by the planner.
type Registry struct {
	fields []SchemaField
	index  map[string]int // canonical name and aliases -> position
}

type fieldsFile struct {
	Fields []SchemaField `yaml:"fields"`
}

// Load parses the embedded field definitions into a registry.
func Load() (*Registry, error) {
	var file fieldsFile
	if err := yaml.Unmarshal(fieldsYAML, &file); err != nil {
		return nil, fmt.Errorf("parse embedded field definitions: %w", err)
	}
	if len(file.Fields) == 0 {
		return nil, fmt.Errorf("embedded field definitions are empty")
	}

	r := &Registry{
		fields: file.Fields,
		index:  make(map[string]int),
	}
	for i, f := range file.Fields {
		r.index[normalizeKey(f.Name)] = i
		for _, alias := range f.Aliases {
			r.index[normalizeKey(alias)] = i
		}
	}
	return r, nil
}

// MustLoad is Load for process startup, where a broken embedded schema is a
// build defect, not a runtime condition.
func MustLoad() *Registry {
	r, err := Load()
	if err != nil {
		panic(err)
	}
	return r
}

// Get returns the field definition for a canonical name or alias. Unknown
// names are not an error; callers treat them as optional untyped fields.
func (r *Registry) Get(name string) (SchemaField, bool) {
	i, ok := r.index[normalizeKey(name)]
	if !ok {
		return SchemaField{}, false
	}
	return r.fields[i], true
}

// FieldOrOptional returns the known definition for a name, or a synthesized
// OPTIONAL text field so unknown fields degrade instead of erroring.
func (r *Registry) FieldOrOptional(name string) SchemaField {
	if f, ok := r.Get(name); ok {
		return f
	}
	return SchemaField{Name: name, Tier: TierOptional, Type: TypeText}
}

// Resolve maps a raw key (canonical name, alias, underscored or spaced) to
// the canonical field name. Returns false for unknown keys.
func (r *Registry) Resolve(key string) (string, bool) {
	i, ok := r.index[normalizeKey(key)]
	if !ok {
		return "", false
	}
	return r.fields[i].Name, true
}

// All returns every field in declaration order.
func (r *Registry) All() []SchemaField {
	out := make([]SchemaField, len(r.fields))
	copy(out, r.fields)
	return out
}

// Fields returns the fields of one tier in declaration order.
func (r *Registry) Fields(tier Tier) []SchemaField {
	var out []SchemaField
	for _, f := range r.fields {
		if f.Tier == tier {
			out = append(out, f)
		}
	}
	return out
}

// Normalize applies the field's synonym map to a raw value, reporting whether
// a synonym matched. Unknown fields and unmapped values pass through.
func (r *Registry) Normalize(field, raw string) (string, bool) {
	f, ok := r.Get(field)
	if !ok || len(f.Synonyms) == 0 {
		return raw, false
	}
	key := strings.ToLower(strings.TrimSpace(raw))
	if canonical, ok := f.Synonyms[key]; ok {
		return canonical, true
	}
	return raw, false
}

// PromptContext renders the registry as prompt text for the LLM parser:
// names, tiers, formats, examples, and normalization rules.
func (r *Registry) PromptContext() string {
	var b strings.Builder
	for _, f := range r.fields {
		b.WriteString(fmt.Sprintf("- %s (%s, %s)", f.Name, f.Tier, f.Type))
		if f.FormatHint != "" {
			b.WriteString(", format: " + f.FormatHint)
		}
		if len(f.AllowedValues) > 0 {
			b.WriteString(", allowed: " + strings.Join(f.AllowedValues, "/"))
		}
		if f.Example != "" {
			b.WriteString(`, e.g. "` + f.Example + `"`)
		}
		if len(f.Synonyms) > 0 {
			b.WriteString(", normalize common synonyms to canonical form")
		}
		b.WriteString("\n")
	}
	return b.String()
}

// normalizeKey canonicalizes a lookup key: lowercase, underscores and
// hyphens become spaces, surrounding whitespace stripped.
func normalizeKey(key string) string {
	key = strings.ToLower(strings.TrimSpace(key))
	key = strings.ReplaceAll(key, "_", " ")
	key = strings.ReplaceAll(key, "-", " ")
	return strings.Join(strings.Fields(key), " ")
}
