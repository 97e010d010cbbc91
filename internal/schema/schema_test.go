package schema

import (
	"strings"
	"testing"
)

func TestLoad_EmbeddedFields(t *testing.T) {
	r, err := Load()
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if len(r.All()) < 20 {
		t.Errorf("Expected at least 20 field definitions, got %d", len(r.All()))
	}

	critical := r.Fields(TierCritical)
	if len(critical) != 3 {
		t.Fatalf("Expected 3 critical fields, got %d", len(critical))
	}
	if critical[0].Name != "session_description" {
		t.Errorf("Expected session_description first, got %s", critical[0].Name)
	}
	if critical[2].Name != "session_start_time" {
		t.Errorf("Expected session_start_time third, got %s", critical[2].Name)
	}
	if critical[2].Type != TypeDate {
		t.Errorf("Expected session_start_time to be a date field, got %s", critical[2].Type)
	}
}

func TestRegistry_Get_UnknownFieldIsNotAnError(t *testing.T) {
	r := MustLoad()

	if _, ok := r.Get("no_such_field"); ok {
		t.Error("Expected unknown field lookup to report not found")
	}

	f := r.FieldOrOptional("custom_rig_setting")
	if f.Tier != TierOptional {
		t.Errorf("Expected unknown field to degrade to optional, got %s", f.Tier)
	}
	if f.Type != TypeText {
		t.Errorf("Expected unknown field to degrade to text, got %s", f.Type)
	}
	if f.Name != "custom_rig_setting" {
		t.Errorf("Expected name passthrough, got %s", f.Name)
	}
}

func TestRegistry_Resolve_Aliases(t *testing.T) {
	r := MustLoad()

	tests := []struct {
		key  string
		want string
	}{
		{"experimenter", "experimenter"},
		{"researcher", "experimenter"},
		{"Principal Investigator", "experimenter"},
		{"start time", "session_start_time"},
		{"recording date", "session_start_time"},
		{"Laboratory", "lab"},
		{"subject-id", "subject_id"},
		{"DOB", "date_of_birth"},
	}

	for _, tt := range tests {
		got, ok := r.Resolve(tt.key)
		if !ok {
			t.Errorf("Resolve(%q): expected a match", tt.key)
			continue
		}
		if got != tt.want {
			t.Errorf("Resolve(%q) = %s, want %s", tt.key, got, tt.want)
		}
	}

	if _, ok := r.Resolve("favorite color"); ok {
		t.Error("Expected no match for unrelated key")
	}
}

func TestRegistry_Normalize_Synonyms(t *testing.T) {
	r := MustLoad()

	tests := []struct {
		field   string
		raw     string
		want    string
		matched bool
	}{
		{"species", "mouse", "Mus musculus", true},
		{"species", "Mouse", "Mus musculus", true},
		{"species", "rat", "Rattus norvegicus", true},
		{"species", "Mus musculus", "Mus musculus", false},
		{"sex", "female", "F", true},
		{"sex", "Male", "M", true},
		{"lab", "Visual Cortex Lab", "Visual Cortex Lab", false},
		{"unknown_field", "anything", "anything", false},
	}

	for _, tt := range tests {
		got, matched := r.Normalize(tt.field, tt.raw)
		if got != tt.want || matched != tt.matched {
			t.Errorf("Normalize(%s, %q) = (%q, %v), want (%q, %v)",
				tt.field, tt.raw, got, matched, tt.want, tt.matched)
		}
	}
}

func TestRegistry_PromptContext_MentionsAllFields(t *testing.T) {
	r := MustLoad()
	ctx := r.PromptContext()

	for _, f := range r.All() {
		if !strings.Contains(ctx, f.Name) {
			t.Errorf("Prompt context missing field %s", f.Name)
		}
	}
}
