// Package parse turns free-text user replies into typed, normalized,
// confidence-scored candidate values per schema field. The LLM does the
// heavy lifting when available; a deterministic key/value extractor covers
// every failure mode, so parsing degrades gracefully instead of aborting a
// turn.
package parse

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/Python-AI-Solutions/agentic-neurodata-conversion-sub005/internal/llm"
	"github.com/Python-AI-Solutions/agentic-neurodata-conversion-sub005/internal/metadata"
	"github.com/Python-AI-Solutions/agentic-neurodata-conversion-sub005/internal/schema"
)

// Parser extracts candidate metadata values from user text.
type Parser struct {
	registry *schema.Registry
	llm      *llm.Client
	log      *zap.SugaredLogger
}

// NewParser creates a parser over the given registry and LLM client.
func NewParser(registry *schema.Registry, client *llm.Client, log *zap.Logger) *Parser {
	return &Parser{
		registry: registry,
		llm:      client,
		log:      log.Sugar().With("component", "parser"),
	}
}

// batchSchema is the output contract for the LLM extraction call.
var batchSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"fields": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"field_name": {"type": "string"},
					"raw_input": {"type": "string"},
					"normalized_value": {"type": "string"},
					"confidence": {"type": "integer", "minimum": 0, "maximum": 100},
					"reasoning": {"type": "string"},
					"was_explicit": {"type": "boolean"},
					"alternatives": {"type": "array", "items": {"type": "string"}}
				},
				"required": ["field_name", "normalized_value", "confidence", "was_explicit"]
			}
		}
	},
	"required": ["fields"]
}`)

const parserSystemPrompt = `You extract NWB metadata fields from a researcher's message.
Rules:
- Only extract fields from the schema below. Normalize values to the schema's formats.
- was_explicit is true when the user directly stated the value, false when you deduced it from context.
- confidence is 0-100: how sure you are the extraction and normalization are right.
- raw_input is the verbatim fragment of the user's message the value came from.

Worked examples:
- "the experimenter was Jane Doe" -> experimenter = "Jane Doe", was_explicit = true, confidence 95
- "we recorded from a C57BL/6J" -> strain = "C57BL/6J", was_explicit = true; species = "Mus musculus", was_explicit = false (deduced from the strain), confidence 85
- "female mouse, about 3 months" -> sex = "F", species = "Mus musculus", age = "P3M", all was_explicit = true

Schema fields:
`

type llmField struct {
	FieldName       string   `json:"field_name"`
	RawInput        string   `json:"raw_input"`
	NormalizedValue string   `json:"normalized_value"`
	Confidence      int      `json:"confidence"`
	Reasoning       string   `json:"reasoning"`
	WasExplicit     bool     `json:"was_explicit"`
	Alternatives    []string `json:"alternatives"`
}

// ParseBatch extracts every field it can find in free text. Never returns an
// error for LLM trouble; the fallback extractor runs instead.
func (p *Parser) ParseBatch(ctx context.Context, text string) ([]metadata.CandidateValue, error) {
	if text == "" {
		return nil, nil
	}

	if p.llm != nil && p.llm.Enabled() {
		outcome := p.llm.GenerateStructured(ctx, llm.StructuredRequest{
			Prompt:       text,
			SystemPrompt: parserSystemPrompt + p.registry.PromptContext(),
			OutputSchema: batchSchema,
		})
		if outcome.OK() {
			candidates, err := p.decodeLLMFields(outcome, text)
			if err == nil {
				return candidates, nil
			}
			p.log.Warnw("LLM parse decode failed, using pattern extractor", "error", err)
		} else {
			p.log.Warnw("LLM parse unavailable, using pattern extractor", "reason", outcome.Reason)
		}
	}

	return extractPairs(p.registry, text), nil
}

// ParseSingle extracts a value for one named field. An empty field name is a
// caller bug and returns an error immediately.
func (p *Parser) ParseSingle(ctx context.Context, fieldName, text string) (metadata.CandidateValue, error) {
	if fieldName == "" {
		return metadata.CandidateValue{}, fmt.Errorf("ParseSingle: field name is required")
	}

	if p.llm != nil && p.llm.Enabled() {
		prompt := fmt.Sprintf("The user was asked for the %q field and replied: %s", fieldName, text)
		outcome := p.llm.GenerateStructured(ctx, llm.StructuredRequest{
			Prompt:       prompt,
			SystemPrompt: parserSystemPrompt + p.registry.PromptContext(),
			OutputSchema: batchSchema,
		})
		if outcome.OK() {
			candidates, err := p.decodeLLMFields(outcome, text)
			if err == nil {
				for _, c := range candidates {
					if c.FieldName == fieldName {
						return c, nil
					}
				}
			} else {
				p.log.Warnw("LLM parse decode failed, using pattern fallback", "error", err)
			}
		} else {
			p.log.Warnw("LLM parse unavailable, using pattern fallback", "reason", outcome.Reason)
		}
	}

	// Deterministic path: the whole reply is the value for the field.
	return buildFallbackCandidate(p.registry, fieldName, text, text), nil
}

// decodeLLMFields converts a structured response into post-processed
// candidates. Post-processing is mandatory and deterministic: the LLM's
// date strings and confidence values are never trusted as-is.
func (p *Parser) decodeLLMFields(outcome llm.Outcome, userText string) ([]metadata.CandidateValue, error) {
	var decoded struct {
		Fields []llmField `json:"fields"`
	}
	if err := outcome.Decode(&decoded); err != nil {
		return nil, err
	}

	candidates := make([]metadata.CandidateValue, 0, len(decoded.Fields))
	for _, f := range decoded.Fields {
		if f.FieldName == "" || f.NormalizedValue == "" {
			continue
		}

		field := f.FieldName
		if resolved, ok := p.registry.Resolve(field); ok {
			field = resolved
		}

		rawInput := f.RawInput
		if rawInput == "" {
			rawInput = userText
		}

		c := metadata.CandidateValue{
			FieldName:       field,
			RawInput:        rawInput,
			NormalizedValue: f.NormalizedValue,
			Confidence:      metadata.ClampConfidence(f.Confidence),
			Reasoning:       f.Reasoning,
			WasExplicit:     f.WasExplicit,
			Alternatives:    f.Alternatives,
		}

		def := p.registry.FieldOrOptional(field)
		if def.Type == schema.TypeDate {
			// Forced date-normalization pass; skipped only when the LLM
			// already produced the strict form.
			if iso, err := NormalizeDate(c.NormalizedValue); err == nil {
				c.NormalizedValue = iso
			} else {
				c.NeedsReview = true
			}
		}

		candidates = append(candidates, c)
	}

	return candidates, nil
}
