package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupeAndTrim(t *testing.T) {
	tests := []struct {
		name  string
		input []string
		want  []string
	}{
		{name: "nil stays nil", input: nil, want: nil},
		{name: "empty stays empty", input: []string{}, want: []string{}},
		{
			name:  "env-style broker list with stray whitespace",
			input: []string{" redpanda-0:9092", "redpanda-1:9092  ", ""},
			want:  []string{"redpanda-0:9092", "redpanda-1:9092"},
		},
		{
			name:  "repeated entries keep their first position",
			input: []string{"a:9092", "b:9092", "a:9092", "b:9092"},
			want:  []string{"a:9092", "b:9092"},
		},
		{
			name:  "whitespace-only entries vanish",
			input: []string{"  ", "a:9092", "\t"},
			want:  []string{"a:9092"},
		},
		{
			name:  "case is preserved",
			input: []string{"Broker", "broker"},
			want:  []string{"Broker", "broker"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DedupeAndTrim(tt.input))
		})
	}
}

func TestDedupeAndTrimLower(t *testing.T) {
	tests := []struct {
		name  string
		input []string
		want  []string
	}{
		{name: "nil stays nil", input: nil, want: nil},
		{
			name:  "mixed-case reason codes collapse",
			input: []string{"Face_Below_Threshold", " face_below_threshold "},
			want:  []string{"face_below_threshold"},
		},
		{
			name:  "distinct reasons survive in order",
			input: []string{"NRIC_INVALID", "liveness_below_threshold", "nric_invalid"},
			want:  []string{"nric_invalid", "liveness_below_threshold"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DedupeAndTrimLower(tt.input))
		})
	}
}
