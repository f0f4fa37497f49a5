package model

import (
	"encoding/json"
	"regexp"
	"strings"
)

// AnswerKind discriminates the answer union. The wire format is untagged
// (shape-sniffed by the backend and older clients), so the kind is derived
// on decode and drives exhaustive validation on save.
type AnswerKind string

const (
	// AnswerChoice is a multiple-choice selection, 1-based option index.
	AnswerChoice AnswerKind = "choice"
	// AnswerText is a free-text answer (essay, prompt-design answer box).
	AnswerText AnswerKind = "text"
	// AnswerSections is a two-part structured answer, mirrored into a
	// combined answerText for older consumers.
	AnswerSections AnswerKind = "sections"
	// AnswerEthics is the three-part ethical-review answer.
	AnswerEthics AnswerKind = "ethics"
	// AnswerPromptRun is a single-shot AI-assisted answer (prompt + response).
	AnswerPromptRun AnswerKind = "prompt_run"
	// AnswerVerification is the fact-checking table plus narrative analysis.
	AnswerVerification AnswerKind = "verification"
	// AnswerOpaque is an unrecognized shape kept as-is.
	AnswerOpaque AnswerKind = "opaque"
)

// Verification is one row of the fact-checking table.
type Verification struct {
	Claim  string `json:"claim"`
	Result string `json:"result"`
	Source string `json:"source"`
	Note   string `json:"note"`
}

func (v Verification) blank() bool {
	return strings.TrimSpace(v.Claim) == "" &&
		strings.TrimSpace(v.Result) == "" &&
		strings.TrimSpace(v.Source) == "" &&
		strings.TrimSpace(v.Note) == ""
}

// Answer is the discriminated answer value cached per question and sent as
// answer_data on save.
type Answer struct {
	Kind AnswerKind

	SelectedOption *int
	AnswerText     string
	UsageCount     int
	Section1       string
	Section2       string
	Section3       string
	Prompt         string
	AIResponse     string
	Verifications  []Verification
	Analysis       string

	// raw holds unrecognized shapes so nothing is dropped on re-save.
	raw map[string]json.RawMessage
}

// NewChoiceAnswer builds a multiple-choice answer. option is 1-based.
func NewChoiceAnswer(option int) Answer {
	return Answer{Kind: AnswerChoice, SelectedOption: &option}
}

// NewTextAnswer builds a free-text answer carrying the AI usage counter.
func NewTextAnswer(text string, usageCount int) Answer {
	return Answer{Kind: AnswerText, AnswerText: text, UsageCount: usageCount}
}

// NewSectionsAnswer builds the two-part answer and mirrors the combined
// answerText the way the practical renderer always has.
func NewSectionsAnswer(section1, section2 string) Answer {
	return Answer{
		Kind:       AnswerSections,
		Section1:   section1,
		Section2:   section2,
		AnswerText: CombinedSectionsText(section1, section2),
	}
}

// NewEthicsAnswer builds the three-part ethical-review answer.
func NewEthicsAnswer(section1, section2, section3 string) Answer {
	return Answer{Kind: AnswerEthics, Section1: section1, Section2: section2, Section3: section3}
}

// NewPromptRunAnswer builds a single-shot prompt/response answer.
func NewPromptRunAnswer(prompt, aiResponse string) Answer {
	return Answer{Kind: AnswerPromptRun, Prompt: prompt, AIResponse: aiResponse}
}

// NewVerificationAnswer builds the fact-checking answer.
func NewVerificationAnswer(rows []Verification, analysis string) Answer {
	return Answer{Kind: AnswerVerification, Verifications: rows, Analysis: analysis}
}

// Empty reports whether the answer fails the type-specific non-emptiness
// rules and must be rejected by save before any network call.
func (a Answer) Empty() bool {
	switch a.Kind {
	case AnswerChoice:
		return a.SelectedOption == nil
	case AnswerText:
		return a.AnswerText == "" && a.UsageCount == 0
	case AnswerSections:
		return strings.TrimSpace(a.Section1) == "" && strings.TrimSpace(a.Section2) == ""
	case AnswerEthics:
		return strings.TrimSpace(a.Section1) == "" &&
			strings.TrimSpace(a.Section2) == "" &&
			strings.TrimSpace(a.Section3) == ""
	case AnswerPromptRun:
		return strings.TrimSpace(a.Prompt) == "" && strings.TrimSpace(a.AIResponse) == ""
	case AnswerVerification:
		if strings.TrimSpace(a.Analysis) != "" {
			return false
		}
		for _, v := range a.Verifications {
			if !v.blank() {
				return false
			}
		}
		return true
	case AnswerOpaque:
		for _, r := range a.raw {
			var s string
			if err := json.Unmarshal(r, &s); err == nil {
				if strings.TrimSpace(s) != "" {
					return false
				}
				continue
			}
			var arr []json.RawMessage
			if err := json.Unmarshal(r, &arr); err == nil {
				if len(arr) > 0 {
					return false
				}
				continue
			}
			if string(r) != "null" {
				return false
			}
		}
		return true
	default:
		return true
	}
}

// MarshalJSON emits the original wire shapes so the backend and legacy
// clients keep seeing the fields they sniff for.
func (a Answer) MarshalJSON() ([]byte, error) {
	switch a.Kind {
	case AnswerChoice:
		return json.Marshal(struct {
			SelectedOption *int `json:"selectedOption"`
		}{a.SelectedOption})
	case AnswerText:
		return json.Marshal(struct {
			AnswerText string `json:"answerText"`
			UsageCount int    `json:"usageCount"`
		}{a.AnswerText, a.UsageCount})
	case AnswerSections:
		return json.Marshal(struct {
			AnswerText string `json:"answerText"`
			Section1   string `json:"section1"`
			Section2   string `json:"section2"`
		}{a.AnswerText, a.Section1, a.Section2})
	case AnswerEthics:
		return json.Marshal(struct {
			Section1 string `json:"section1"`
			Section2 string `json:"section2"`
			Section3 string `json:"section3"`
		}{a.Section1, a.Section2, a.Section3})
	case AnswerPromptRun:
		return json.Marshal(struct {
			Prompt     string `json:"prompt"`
			AIResponse string `json:"aiResponse"`
		}{a.Prompt, a.AIResponse})
	case AnswerVerification:
		rows := a.Verifications
		if rows == nil {
			rows = []Verification{}
		}
		return json.Marshal(struct {
			Verifications []Verification `json:"verifications"`
			Analysis      string         `json:"analysis"`
		}{rows, a.Analysis})
	default:
		if a.raw != nil {
			return json.Marshal(a.raw)
		}
		return []byte("{}"), nil
	}
}

// UnmarshalJSON is the back-compat decoder: it sniffs the stored shape the
// way the old clients did and assigns the matching kind. Unknown shapes are
// preserved as opaque rather than dropped.
func (a *Answer) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*a = Answer{}

	str := func(key string) string {
		r, ok := raw[key]
		if !ok {
			return ""
		}
		var s string
		_ = json.Unmarshal(r, &s)
		return s
	}

	switch {
	case raw["verifications"] != nil:
		a.Kind = AnswerVerification
		_ = json.Unmarshal(raw["verifications"], &a.Verifications)
		a.Analysis = str("analysis")
	case hasKey(raw, "selectedOption"):
		a.Kind = AnswerChoice
		// A JSON null is "no selection"; unmarshalling null into an int is a
		// no-op and must not produce a pointer to zero.
		if opt := raw["selectedOption"]; opt != nil && string(opt) != "null" {
			var n int
			if err := json.Unmarshal(opt, &n); err == nil {
				a.SelectedOption = &n
			}
		}
	case hasKey(raw, "section3"):
		a.Kind = AnswerEthics
		a.Section1, a.Section2, a.Section3 = str("section1"), str("section2"), str("section3")
	case hasKey(raw, "section1") || hasKey(raw, "section2"):
		a.Kind = AnswerSections
		a.Section1, a.Section2 = str("section1"), str("section2")
		a.AnswerText = str("answerText")
		if a.AnswerText == "" {
			a.AnswerText = CombinedSectionsText(a.Section1, a.Section2)
		}
	case hasKey(raw, "answerText"):
		a.Kind = AnswerText
		a.AnswerText = str("answerText")
		if raw["usageCount"] != nil {
			_ = json.Unmarshal(raw["usageCount"], &a.UsageCount)
		}
	case hasKey(raw, "prompt") || hasKey(raw, "aiResponse"):
		a.Kind = AnswerPromptRun
		a.Prompt, a.AIResponse = str("prompt"), str("aiResponse")
	default:
		a.Kind = AnswerOpaque
		a.raw = raw
	}
	return nil
}

func hasKey(m map[string]json.RawMessage, key string) bool {
	_, ok := m[key]
	return ok
}

const (
	sectionOneHeading = "1. 문제점 분석"
	sectionTwoHeading = "2. 개선 방안"
)

// CombinedSectionsText mirrors the two sections into the combined free-text
// form, or empty when both sections are blank.
func CombinedSectionsText(section1, section2 string) string {
	if strings.TrimSpace(section1) == "" && strings.TrimSpace(section2) == "" {
		return ""
	}
	return sectionOneHeading + "\n" + section1 + "\n\n" + sectionTwoHeading + "\n" + section2
}

var (
	legacySectionOneRE = regexp.MustCompile(`(?s)1\.\s*문제점\s*분석\s*\n(.*)`)
	legacySectionTwoRE = regexp.MustCompile(`(?s)2\.\s*개선\s*방안\s*\n(.*)`)
	legacySplitRE      = regexp.MustCompile(`\n\n2\.\s*개선\s*방안`)
)

// ParseLegacySections recovers section1/section2 from a combined answerText
// saved before the individual section fields existed.
func ParseLegacySections(text string) (section1, section2 string) {
	if m := legacySectionTwoRE.FindStringSubmatch(text); m != nil {
		section2 = strings.TrimSpace(m[1])
	}
	head := text
	if loc := legacySplitRE.FindStringIndex(text); loc != nil {
		head = text[:loc[0]]
	}
	if m := legacySectionOneRE.FindStringSubmatch(head); m != nil {
		section1 = strings.TrimSpace(m[1])
	}
	return section1, section2
}
