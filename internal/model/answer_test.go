package model

import (
	"encoding/json"
	"strings"
	"testing"
)

func decodeAnswer(t *testing.T, data string) Answer {
	t.Helper()
	var a Answer
	if err := json.Unmarshal([]byte(data), &a); err != nil {
		t.Fatalf("unmarshal %s: %v", data, err)
	}
	return a
}

func TestAnswerDecodeShapes(t *testing.T) {
	t.Run("choice", func(t *testing.T) {
		a := decodeAnswer(t, `{"selectedOption": 3}`)
		if a.Kind != AnswerChoice {
			t.Fatalf("expected choice, got %q", a.Kind)
		}
		if a.SelectedOption == nil || *a.SelectedOption != 3 {
			t.Errorf("expected option 3, got %v", a.SelectedOption)
		}
	})

	t.Run("choice null option stays unanswered", func(t *testing.T) {
		a := decodeAnswer(t, `{"selectedOption": null}`)
		if a.Kind != AnswerChoice {
			t.Fatalf("expected choice, got %q", a.Kind)
		}
		if a.SelectedOption != nil {
			t.Errorf("expected nil option, got %d", *a.SelectedOption)
		}
		if !a.Empty() {
			t.Error("null selection must count as empty")
		}
	})

	t.Run("text with usage counter", func(t *testing.T) {
		a := decodeAnswer(t, `{"answerText": "my essay", "usageCount": 4}`)
		if a.Kind != AnswerText {
			t.Fatalf("expected text, got %q", a.Kind)
		}
		if a.AnswerText != "my essay" || a.UsageCount != 4 {
			t.Errorf("got %q / %d", a.AnswerText, a.UsageCount)
		}
	})

	t.Run("two sections mirror combined text when missing", func(t *testing.T) {
		a := decodeAnswer(t, `{"section1": "원인", "section2": "대안"}`)
		if a.Kind != AnswerSections {
			t.Fatalf("expected sections, got %q", a.Kind)
		}
		if !strings.Contains(a.AnswerText, "1. 문제점 분석") || !strings.Contains(a.AnswerText, "2. 개선 방안") {
			t.Errorf("expected mirrored headings, got %q", a.AnswerText)
		}
	})

	t.Run("ethics wins over sections when section3 present", func(t *testing.T) {
		a := decodeAnswer(t, `{"section1": "a", "section2": "b", "section3": "c"}`)
		if a.Kind != AnswerEthics {
			t.Fatalf("expected ethics, got %q", a.Kind)
		}
		if a.Section3 != "c" {
			t.Errorf("expected section3 c, got %q", a.Section3)
		}
	})

	t.Run("prompt run", func(t *testing.T) {
		a := decodeAnswer(t, `{"prompt": "질문", "aiResponse": "응답"}`)
		if a.Kind != AnswerPromptRun {
			t.Fatalf("expected prompt_run, got %q", a.Kind)
		}
		if a.Prompt != "질문" || a.AIResponse != "응답" {
			t.Errorf("got %q / %q", a.Prompt, a.AIResponse)
		}
	})

	t.Run("verification wins over other keys", func(t *testing.T) {
		a := decodeAnswer(t, `{"verifications": [{"claim": "c", "result": "fact", "source": "s", "note": ""}], "analysis": "분석", "answerText": "ignored"}`)
		if a.Kind != AnswerVerification {
			t.Fatalf("expected verification, got %q", a.Kind)
		}
		if len(a.Verifications) != 1 || a.Verifications[0].Claim != "c" {
			t.Errorf("unexpected rows %+v", a.Verifications)
		}
		if a.Analysis != "분석" {
			t.Errorf("expected analysis kept, got %q", a.Analysis)
		}
	})

	t.Run("unknown shape preserved as opaque", func(t *testing.T) {
		a := decodeAnswer(t, `{"custom": "value", "n": 7}`)
		if a.Kind != AnswerOpaque {
			t.Fatalf("expected opaque, got %q", a.Kind)
		}
		out, err := json.Marshal(a)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		var round map[string]any
		if err := json.Unmarshal(out, &round); err != nil {
			t.Fatalf("round-trip: %v", err)
		}
		if round["custom"] != "value" {
			t.Errorf("opaque re-save dropped fields: %v", round)
		}
	})
}

func TestAnswerMarshalShapes(t *testing.T) {
	tests := []struct {
		name     string
		answer   Answer
		wantKeys []string
	}{
		{"choice", NewChoiceAnswer(1), []string{"selectedOption"}},
		{"text", NewTextAnswer("t", 2), []string{"answerText", "usageCount"}},
		{"sections", NewSectionsAnswer("a", "b"), []string{"answerText", "section1", "section2"}},
		{"ethics", NewEthicsAnswer("a", "b", "c"), []string{"section1", "section2", "section3"}},
		{"prompt run", NewPromptRunAnswer("p", "r"), []string{"prompt", "aiResponse"}},
		{"verification", NewVerificationAnswer(nil, "x"), []string{"verifications", "analysis"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := json.Marshal(tt.answer)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			var m map[string]json.RawMessage
			if err := json.Unmarshal(out, &m); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if len(m) != len(tt.wantKeys) {
				t.Fatalf("expected keys %v, got %s", tt.wantKeys, out)
			}
			for _, k := range tt.wantKeys {
				if _, ok := m[k]; !ok {
					t.Errorf("missing key %q in %s", k, out)
				}
			}
		})
	}
}

func TestAnswerEmpty(t *testing.T) {
	tests := []struct {
		name   string
		answer Answer
		want   bool
	}{
		{"choice selected", NewChoiceAnswer(1), false},
		{"choice nil", Answer{Kind: AnswerChoice}, true},
		{"text filled", NewTextAnswer("x", 0), false},
		{"text empty no usage", NewTextAnswer("", 0), true},
		{"text empty with usage", NewTextAnswer("", 3), false},
		{"sections one filled", NewSectionsAnswer("원인", ""), false},
		{"sections both blank", NewSectionsAnswer("  ", "\n\t"), true},
		{"ethics one filled", NewEthicsAnswer("", "b", ""), false},
		{"ethics all blank", NewEthicsAnswer(" ", "", ""), true},
		{"prompt run filled", NewPromptRunAnswer("p", ""), false},
		{"prompt run blank", NewPromptRunAnswer(" ", ""), true},
		{"verification row filled", NewVerificationAnswer([]Verification{{Claim: "c"}}, ""), false},
		{"verification analysis only", NewVerificationAnswer(nil, "분석"), false},
		{"verification all blank", NewVerificationAnswer([]Verification{{}, {}}, " "), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.answer.Empty(); got != tt.want {
				t.Errorf("Empty() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseLegacySections(t *testing.T) {
	combined := CombinedSectionsText("첫 번째 분석 내용", "두 번째 개선 내용")
	s1, s2 := ParseLegacySections(combined)
	if s1 != "첫 번째 분석 내용" {
		t.Errorf("section1 = %q", s1)
	}
	if s2 != "두 번째 개선 내용" {
		t.Errorf("section2 = %q", s2)
	}

	// Heading variants with extra spacing still parse.
	s1, s2 = ParseLegacySections("1.  문제점  분석\nonly first part")
	if s1 != "only first part" || s2 != "" {
		t.Errorf("got %q / %q", s1, s2)
	}

	s1, s2 = ParseLegacySections("free text without headings")
	if s1 != "" || s2 != "" {
		t.Errorf("expected empty sections, got %q / %q", s1, s2)
	}
}

func TestCombinedSectionsTextBlank(t *testing.T) {
	if got := CombinedSectionsText("  ", "\n"); got != "" {
		t.Errorf("expected empty combined text, got %q", got)
	}
}
