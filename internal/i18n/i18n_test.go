package i18n

import (
	"context"
	"testing"
)

func initLang(t *testing.T, lang string) context.Context {
	t.Helper()
	if err := Init(lang); err != nil {
		t.Fatalf("Init(%q): %v", lang, err)
	}
	loc := NewLocalizer(lang)
	return WithLocalizer(context.Background(), loc)
}

func TestTranslateKorean(t *testing.T) {
	ctx := initLang(t, "ko")

	got := T(ctx, "AppTitle")
	if got != "생성형 AI 역량 평가" {
		t.Errorf("T(AppTitle) = %q, want '생성형 AI 역량 평가'", got)
	}

	got = T(ctx, "StartExam")
	if got != "시험 시작" {
		t.Errorf("T(StartExam) = %q, want '시험 시작'", got)
	}
}

func TestTranslateEnglish(t *testing.T) {
	ctx := initLang(t, "en")

	got := T(ctx, "AppTitle")
	if got != "Generative AI Competency Assessment" {
		t.Errorf("T(AppTitle) = %q, want 'Generative AI Competency Assessment'", got)
	}

	got = T(ctx, "StartExam")
	if got != "Start Exam" {
		t.Errorf("T(StartExam) = %q, want 'Start Exam'", got)
	}
}

func TestPluralTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	got1 := Tp(ctx, "QuestionsCompleted", 1)
	if got1 != "1 question completed" {
		t.Errorf("Tp(QuestionsCompleted, 1) = %q, want '1 question completed'", got1)
	}

	got5 := Tp(ctx, "QuestionsCompleted", 5)
	if got5 != "5 questions completed" {
		t.Errorf("Tp(QuestionsCompleted, 5) = %q, want '5 questions completed'", got5)
	}
}

func TestTemplateDataTranslation(t *testing.T) {
	ctx := initLang(t, "ko")

	got := Td(ctx, "AIUsage", map[string]any{"Used": 3, "Max": 10})
	if got != "AI 사용 3/10" {
		t.Errorf("Td(AIUsage) = %q, want 'AI 사용 3/10'", got)
	}
}

// A context that never passed through the middleware still translates, using
// the bundle's default language.
func TestBareContextUsesDefaultLanguage(t *testing.T) {
	if err := Init("ko"); err != nil {
		t.Fatalf("Init: %v", err)
	}

	got := T(context.Background(), "AppTitle")
	if got != "생성형 AI 역량 평가" {
		t.Errorf("T(AppTitle) = %q, want the Korean default", got)
	}
}

func TestMissingKey(t *testing.T) {
	ctx := initLang(t, "en")

	got := T(ctx, "NonExistentKey")
	if got != "NonExistentKey" {
		t.Errorf("T(NonExistentKey) = %q, want 'NonExistentKey'", got)
	}
}
