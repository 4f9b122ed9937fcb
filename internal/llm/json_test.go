package llm

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestExtractJSON(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"bare object", `{"score": 85}`, `{"score": 85}`},
		{"leading prose", "Here is my assessment:\n{\"score\": 85}", `{"score": 85}`},
		{"fenced json", "```json\n{\"score\": 85}\n```", `{"score": 85}`},
		{"fence without tag", "```\n{\"score\": 85}\n```", `{"score": 85}`},
		{"unclosed fence", "```json\n{\"score\": 85}", `{"score": 85}`},
		{"nested braces", `{"a": {"b": 1}}`, `{"a": {"b": 1}}`},
		{"trailing prose", `{"score": 85} Let me know if you need more.`, `{"score": 85}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ExtractJSON(tc.in)
			if err != nil {
				t.Fatalf("ExtractJSON() error: %v", err)
			}
			if string(got) != tc.want {
				t.Errorf("ExtractJSON() = %q, want %q", got, tc.want)
			}
			if !json.Valid(got) {
				t.Errorf("extracted text is not valid JSON: %q", got)
			}
		})
	}
}

func TestExtractJSONNoObject(t *testing.T) {
	for _, in := range []string{"", "no json here", "```\nplain text\n```", "[1, 2, 3]"} {
		if _, err := ExtractJSON(in); !errors.Is(err, ErrNoJSON) {
			t.Errorf("ExtractJSON(%q) = %v, want ErrNoJSON", in, err)
		}
	}
}
