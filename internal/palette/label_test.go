package palette

import (
	"strings"
	"testing"
)

func TestParseClassification(t *testing.T) {
	tests := []struct {
		raw         string
		label       Label
		description string
		count       int
	}{
		{"(a),two cats playing,3", LabelImageRequest, "two cats playing", 3},
		{"(a),a single rose", LabelImageRequest, "a single rose", 1},
		{"(a),a city skyline,many", LabelImageRequest, "a city skyline", 1},
		{"  (A),Images featuring Optimus Prime, 2 ", LabelImageRequest, "Images featuring Optimus Prime", 2},
		{"(a),a dog,0", LabelImageRequest, "a dog", 1},
		{"(a),a dog,-3", LabelImageRequest, "a dog", 1},
		{"(a)", LabelImageRequest, "", 1},
		{"(B)", LabelArithmeticPuzzle, "", 0},
		{"(b) the numbers are 1 2 3 4", LabelArithmeticPuzzle, "", 0},
		{"(D)", LabelDefault, "", 0},
		{"(C)", LabelDefault, "", 0},
		{"", LabelDefault, "", 0},
		{"   ", LabelDefault, "", 0},
		{"I think this is (A)", LabelDefault, "", 0},
		{"a) images", LabelDefault, "", 0},
	}

	for _, tt := range tests {
		got := ParseClassification(tt.raw)
		if got.Label != tt.label {
			t.Errorf("ParseClassification(%q).Label = %v, want %v", tt.raw, got.Label, tt.label)
			continue
		}
		if got.Raw != tt.raw {
			t.Errorf("ParseClassification(%q).Raw = %q", tt.raw, got.Raw)
		}
		if tt.label != LabelImageRequest {
			continue
		}
		if got.Image.Description != tt.description {
			t.Errorf("ParseClassification(%q) description = %q, want %q", tt.raw, got.Image.Description, tt.description)
		}
		if got.Image.Count != tt.count {
			t.Errorf("ParseClassification(%q) count = %d, want %d", tt.raw, got.Image.Count, tt.count)
		}
	}
}

func TestParseClassification_Aux(t *testing.T) {
	got := ParseClassification("(B) make 24 from 4 7 8 8")
	if got.Aux != "make 24 from 4 7 8 8" {
		t.Fatalf("unexpected aux %q", got.Aux)
	}
	if d := ParseClassification("(D) Others"); d.Aux != "" {
		t.Fatalf("default label should carry no aux, got %q", d.Aux)
	}
}

func TestLabelString(t *testing.T) {
	tests := map[Label]string{
		LabelDefault:          "default",
		LabelImageRequest:     "image_request",
		LabelArithmeticPuzzle: "arithmetic_puzzle",
		Label(42):             "default",
	}
	for l, want := range tests {
		if got := l.String(); got != want {
			t.Errorf("Label(%d).String() = %q, want %q", l, got, want)
		}
	}
}

func TestClassifierPromptMentionsEveryMarker(t *testing.T) {
	for _, m := range []string{"(A)", "(B)", "(D)"} {
		if !strings.Contains(classifierSystemPrompt, m) {
			t.Errorf("classifier prompt is missing category %s", m)
		}
	}
	if !strings.Contains(classifierUserPrompt("hello"), "<question>\nhello\n</question>") {
		t.Error("user prompt does not wrap the question")
	}
}
