package id

import (
	"encoding/json"
	"testing"
)

func TestNewAndString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		prefix Prefix
	}{
		{"job", PrefixJob},
		{"run", PrefixRun},
		{"agent", PrefixAgent},
		{"subscriber", PrefixSubscriber},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			generated := New(tt.prefix)
			if generated.IsNil() {
				t.Fatal("New returned nil ID")
			}
			if generated.Prefix() != tt.prefix {
				t.Fatalf("prefix = %q, want %q", generated.Prefix(), tt.prefix)
			}

			parsed, err := Parse(generated.String())
			if err != nil {
				t.Fatalf("Parse(%q): %v", generated.String(), err)
			}
			if parsed.String() != generated.String() {
				t.Fatalf("round trip mismatch: %q != %q", parsed.String(), generated.String())
			}
		})
	}
}

func TestParseErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"garbage", "not a typeid"},
		{"bad suffix", "job_!!!"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse(tt.input); err == nil {
				t.Fatalf("Parse(%q) succeeded, want error", tt.input)
			}
		})
	}
}

func TestParseWithPrefix(t *testing.T) {
	t.Parallel()

	jobID := NewJobID()

	if _, err := ParseJobID(jobID.String()); err != nil {
		t.Fatalf("ParseJobID: %v", err)
	}
	if _, err := ParseRunID(jobID.String()); err == nil {
		t.Fatal("ParseRunID accepted a job-prefixed ID")
	}
}

func TestNilID(t *testing.T) {
	t.Parallel()

	if !Nil.IsNil() {
		t.Fatal("Nil.IsNil() = false")
	}
	if Nil.String() != "" {
		t.Fatalf("Nil.String() = %q, want empty", Nil.String())
	}
	if Nil.Prefix() != "" {
		t.Fatalf("Nil.Prefix() = %q, want empty", Nil.Prefix())
	}
}

func TestJSONRoundTrip(t *testing.T) {
	t.Parallel()

	type wrapper struct {
		ID ID `json:"id"`
	}

	original := wrapper{ID: NewJobID()}
	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded wrapper
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.ID.String() != original.ID.String() {
		t.Fatalf("round trip mismatch: %q != %q", decoded.ID.String(), original.ID.String())
	}
}

func TestUniqueness(t *testing.T) {
	t.Parallel()

	seen := make(map[string]struct{}, 1000)
	for range 1000 {
		generated := NewJobID().String()
		if _, dup := seen[generated]; dup {
			t.Fatalf("duplicate ID generated: %q", generated)
		}
		seen[generated] = struct{}{}
	}
}
