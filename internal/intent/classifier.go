// Package intent classifies raw user utterances into negotiation intents
// using a deterministic keyword fast path with an optional LLM fallback for
// paraphrases the keyword lists cannot cover.
package intent

import (
	"context"
	"encoding/json"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/Python-AI-Solutions/agentic-neurodata-conversion-sub005/internal/llm"
)

// Intent is the classified purpose of a user utterance.
type Intent string

const (
	IntentConfirm    Intent = "confirm"
	IntentEdit       Intent = "edit"
	IntentSkipField  Intent = "skip_field"
	IntentSkipAll    Intent = "skip_all"
	IntentSequential Intent = "sequential"
	IntentNewData    Intent = "new_data"
)

// Source records which path produced the classification.
type Source string

const (
	SourceKeyword Source = "keyword"
	SourceLLM     Source = "llm"
)

// llmOverrideConfidence is the trade-off point between the fast keyword path
// and the slower LLM path: below this the LLM's answer is discarded.
const llmOverrideConfidence = 60

// Classification is the result of classifying one utterance.
type Classification struct {
	Intent     Intent
	Source     Source
	Confidence int // only meaningful for SourceLLM
}

// Keyword phrase sets, one per intent, checked in precedence order:
// sequential, skip-all, confirm, edit, skip-field, otherwise new-data.
// Phrases are matched on token boundaries, never substrings, so "y" cannot
// match inside "by" or "laboratory". The lists are hand-tuned and
// deliberately overlap ("skip" vs "skip all"); precedence resolves the
// overlaps.
var (
	sequentialPhrases = []string{
		"one at a time", "one by one", "sequential", "sequentially",
		"step by step", "one question at a time", "ask me one",
	}
	skipAllPhrases = []string{
		"skip all", "skip everything", "skip them all", "skip the rest",
		"none of them", "for now", "maybe later", "not right now",
		"not now", "later", "proceed without", "just proceed",
		"use defaults",
	}
	confirmPhrases = []string{
		"yes", "y", "yeah", "yep", "yup", "correct", "confirm",
		"confirmed", "right", "sure", "ok", "okay", "looks good",
		"sounds good", "go ahead", "accept", "that s right", "fine",
	}
	editPhrases = []string{
		"no", "change", "edit", "wrong", "incorrect", "fix", "modify",
		"update", "actually", "not quite",
	}
	skipFieldPhrases = []string{
		"skip", "pass", "next", "n a", "na", "none", "unknown",
		"dont know", "don t know", "no idea", "nothing", "idk",
	}
)

// Classifier classifies user utterances. Pure: it has no side effects beyond
// logging the decision and its source.
type Classifier struct {
	llm *llm.Client
	log *zap.SugaredLogger
}

// NewClassifier creates a classifier. The LLM client may be disabled; the
// keyword path always runs.
func NewClassifier(client *llm.Client, log *zap.Logger) *Classifier {
	return &Classifier{
		llm: client,
		log: log.Sugar().With("component", "intent"),
	}
}

// Classify determines the intent of a user utterance. The keyword fast path
// always runs; when an LLM is available its answer overrides the keyword
// result only at or above the confidence threshold.
func (c *Classifier) Classify(ctx context.Context, userText string) Classification {
	keyword := classifyKeywords(userText)

	if c.llm == nil || !c.llm.Enabled() {
		c.log.Debugw("classified intent", "intent", keyword.Intent, "source", keyword.Source)
		return keyword
	}

	llmResult, ok := c.classifyLLM(ctx, userText)
	if ok && llmResult.Confidence >= llmOverrideConfidence {
		c.log.Debugw("classified intent",
			"intent", llmResult.Intent, "source", llmResult.Source,
			"confidence", llmResult.Confidence, "keyword_intent", keyword.Intent)
		return llmResult
	}

	c.log.Debugw("classified intent", "intent", keyword.Intent, "source", keyword.Source)
	return keyword
}

// classifyKeywords is the deterministic fast path.
func classifyKeywords(userText string) Classification {
	tokens := tokenize(userText)

	checks := []struct {
		intent  Intent
		phrases []string
	}{
		{IntentSequential, sequentialPhrases},
		{IntentSkipAll, skipAllPhrases},
		{IntentConfirm, confirmPhrases},
		{IntentEdit, editPhrases},
		{IntentSkipField, skipFieldPhrases},
	}

	for _, check := range checks {
		for _, phrase := range check.phrases {
			if matchPhrase(tokens, phrase) {
				return Classification{Intent: check.intent, Source: SourceKeyword}
			}
		}
	}

	return Classification{Intent: IntentNewData, Source: SourceKeyword}
}

// intentSchema is the output contract for the LLM fallback.
var intentSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"intent": {
			"type": "string",
			"enum": ["confirm", "edit", "skip_field", "skip_all", "sequential", "new_data"]
		},
		"confidence": {"type": "integer", "minimum": 0, "maximum": 100}
	},
	"required": ["intent", "confidence"]
}`)

const intentSystemPrompt = `You classify a user's reply in a metadata-gathering conversation.
Intents:
- confirm: accepting values that were just shown
- edit: rejecting or wanting to change shown values
- skip_field: declining to answer the current question
- skip_all: declining all remaining questions, or deferring everything for later
- sequential: asking to be asked one question at a time
- new_data: the reply contains actual metadata values`

func (c *Classifier) classifyLLM(ctx context.Context, userText string) (Classification, bool) {
	outcome := c.llm.GenerateStructured(ctx, llm.StructuredRequest{
		Prompt:       "User reply: " + userText,
		SystemPrompt: intentSystemPrompt,
		OutputSchema: intentSchema,
	})
	if !outcome.OK() {
		return Classification{}, false
	}

	var decoded struct {
		Intent     string `json:"intent"`
		Confidence int    `json:"confidence"`
	}
	if err := outcome.Decode(&decoded); err != nil {
		c.log.Warnw("intent decode failed", "error", err)
		return Classification{}, false
	}

	return Classification{
		Intent:     Intent(decoded.Intent),
		Source:     SourceLLM,
		Confidence: decoded.Confidence,
	}, true
}

// tokenize lowercases and splits on any non-letter, non-digit rune.
func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// matchPhrase reports whether the phrase's tokens appear as a contiguous
// subsequence of the utterance's tokens.
func matchPhrase(tokens []string, phrase string) bool {
	want := strings.Fields(phrase)
	if len(want) == 0 || len(want) > len(tokens) {
		return false
	}
	for i := 0; i+len(want) <= len(tokens); i++ {
		matched := true
		for j := range want {
			if tokens[i+j] != want[j] {
				matched = false
				break
			}
		}
		if matched {
			return true
		}
	}
	return false
}
