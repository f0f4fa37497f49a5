// Package views holds the templ templates for the web front-end. Run
// `templ generate` to produce the corresponding Go code.
package views

import (
	"context"
	"fmt"
	"strings"

	"github.com/a-h/templ"

	"github.com/kpcai/examfront/internal/model"
)

// ExamData is everything the exam shell needs to render one question page.
type ExamData struct {
	Question      model.Question
	Number        int
	Total         int
	Questions     []model.Question
	Answer        model.Answer
	TimeRemaining int
	Completed     int
	AIUsed        int
	AILimit       int
}

// href builds a base-path-aware link target.
func href(ctx context.Context, p string) templ.SafeURL {
	return templ.SafeURL(model.BasePathFromContext(ctx) + p)
}

// action builds a base-path-aware form action. Form actions are plain string
// attributes in templ; only anchor hrefs need the SafeURL type.
func action(ctx context.Context, p string) string {
	return model.BasePathFromContext(ctx) + p
}

// formatTime renders a second count as H:MM:SS, or MM:SS under an hour.
func formatTime(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

// timerClass colors the countdown: red inside the last ten minutes, yellow
// inside the last thirty.
func timerClass(seconds int) string {
	switch {
	case seconds < 600:
		return "timer timer-danger"
	case seconds < 1800:
		return "timer timer-warning"
	default:
		return "timer"
	}
}

func statusLabel(status model.ExamStatus) string {
	switch status {
	case model.ExamInProgress:
		return "진행 중"
	case model.ExamSubmitted:
		return "제출됨"
	case model.ExamGraded:
		return "채점 완료"
	default:
		return "시작 전"
	}
}

func itoa(n int) string {
	return fmt.Sprintf("%d", n)
}

func itoa64(n int64) string {
	return fmt.Sprintf("%d", n)
}

// sectionsOf returns the two practical sections, decoding the combined
// legacy text when the answer predates the section fields.
func sectionsOf(a model.Answer) (string, string) {
	switch a.Kind {
	case model.AnswerSections:
		return a.Section1, a.Section2
	case model.AnswerText:
		return model.ParseLegacySections(a.AnswerText)
	default:
		return "", ""
	}
}

// verificationRows pads the fact-checking table to at least three rows.
func verificationRows(a model.Answer) []model.Verification {
	rows := a.Verifications
	for len(rows) < 3 {
		rows = append(rows, model.Verification{})
	}
	return rows
}

func choiceChecked(a model.Answer, option int) bool {
	return a.Kind == model.AnswerChoice && a.SelectedOption != nil && *a.SelectedOption == option
}

func scoreLabel(score *int) string {
	if score == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *score)
}

func floatLabel(f *float64) string {
	if f == nil {
		return "-"
	}
	return fmt.Sprintf("%.1f", *f)
}

func questionTypes() []model.QuestionType {
	return []model.QuestionType{
		model.QuestionMultipleChoice,
		model.QuestionPromptDesign,
		model.QuestionEssay,
		model.QuestionPractical,
		model.QuestionFactChecking,
		model.QuestionEthicalReview,
	}
}

func questionFormAction(ctx context.Context, q *model.Question) string {
	if q == nil || q.ID == 0 {
		return action(ctx, "/admin/questions")
	}
	return action(ctx, fmt.Sprintf("/admin/questions/%d", q.ID))
}

func formTitle(q *model.Question) string {
	if q == nil {
		return ""
	}
	return q.Title
}

func formContent(q *model.Question) string {
	if q == nil {
		return ""
	}
	return q.Content
}

func formScenario(q *model.Question) string {
	if q == nil {
		return ""
	}
	return q.Scenario()
}

func formRequirements(q *model.Question) string {
	if q == nil {
		return ""
	}
	return strings.Join(q.Requirements(), "\n")
}

func formReference(q *model.Question) string {
	if q == nil || q.QContent == nil {
		return ""
	}
	return q.QContent.ReferenceHTML()
}

func formPoints(q *model.Question) string {
	if q == nil {
		return "10"
	}
	return fmt.Sprintf("%d", q.Points)
}

func formTimeLimit(q *model.Question) string {
	if q == nil || q.TimeLimit == nil {
		return ""
	}
	return fmt.Sprintf("%d", *q.TimeLimit)
}

func formCompetency(q *model.Question) string {
	if q == nil {
		return ""
	}
	return q.Competency
}

// formOptions always offers at least four editable option slots.
func formOptions(q *model.Question) []string {
	var opts []string
	if q != nil {
		for _, o := range q.Options() {
			opts = append(opts, o.Text)
		}
	}
	for len(opts) < 4 {
		opts = append(opts, "")
	}
	return opts
}
