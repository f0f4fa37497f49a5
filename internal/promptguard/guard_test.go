package promptguard

import (
	"strings"
	"testing"
)

const sampleQuestion = `<p>생성형 AI를 활용하여 고객 응대 매뉴얼을 작성하려고 합니다.
다음 요구사항을 충족하는 프롬프트를 설계하세요.</p>
<ul><li>응대 톤은 정중하게 유지</li><li>불만 고객 시나리오 포함</li></ul>`

func TestValidateEmptyPrompt(t *testing.T) {
	for _, prompt := range []string{"", "   ", "\n\t"} {
		res := Validate(prompt, sampleQuestion, "")
		if res.Valid {
			t.Errorf("prompt %q accepted", prompt)
		}
		if res.Reason != "프롬프트를 입력해주세요." {
			t.Errorf("unexpected reason %q", res.Reason)
		}
	}
}

func TestValidateRejectsIdenticalPrompt(t *testing.T) {
	res := Validate(StripHTML(sampleQuestion), sampleQuestion, "")
	if res.Valid {
		t.Fatal("copied question text accepted")
	}
	if !strings.Contains(res.Reason, "직접 복사") {
		t.Errorf("expected verbatim-copy reason, got %q", res.Reason)
	}
	if res.Similarity != 1.0 {
		t.Errorf("expected similarity 1.0 for verbatim copy, got %v", res.Similarity)
	}
}

func TestValidateRejectsLongVerbatimRun(t *testing.T) {
	// Paste one long contiguous chunk of the question into an otherwise
	// original prompt.
	prompt := "내 질문은 이것입니다: 생성형 ai를 활용하여 고객 응대 매뉴얼을 작성하려고"
	res := Validate(prompt, sampleQuestion, "")
	if res.Valid {
		t.Fatal("prompt embedding a verbatim run accepted")
	}
	if !strings.Contains(res.Reason, "직접 복사") {
		t.Errorf("expected verbatim-copy reason, got %q", res.Reason)
	}
}

func TestValidateAcceptsOriginalPrompt(t *testing.T) {
	res := Validate("완전히 새로운 독창적 질문입니다", sampleQuestion, "")
	if !res.Valid {
		t.Fatalf("original prompt rejected: %q", res.Reason)
	}
	if res.Similarity >= jaccardThreshold {
		t.Errorf("expected low similarity, got %v", res.Similarity)
	}
}

func TestValidateScenarioCountsAsQuestionText(t *testing.T) {
	scenario := "<p>대형 유통사의 콜센터에서 반복 문의가 급증하는 상황입니다.</p>"
	prompt := "대형 유통사의 콜센터에서 반복 문의가 급증하는 상황입니다"
	res := Validate(prompt, sampleQuestion, scenario)
	if res.Valid {
		t.Error("prompt copied from the scenario accepted")
	}
}

func TestJaccardSimilarity(t *testing.T) {
	if got := JaccardSimilarity("같은 문장입니다", "같은 문장입니다"); got != 1.0 {
		t.Errorf("identical texts: got %v, want 1.0", got)
	}
	if got := JaccardSimilarity("가나다라마바사", "아자차카타파하"); got != 0 {
		t.Errorf("disjoint texts: got %v, want 0", got)
	}
	if got := JaccardSimilarity("짧", "도"); got != 0 {
		t.Errorf("texts below n-gram size: got %v, want 0", got)
	}
}

func TestStripHTML(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"<p>hello <b>world</b></p>", "hello world"},
		{"a&nbsp;b &amp; c", "a b & c"},
		{"", ""},
		{"no markup", "no markup"},
	}
	for _, tt := range tests {
		if got := StripHTML(tt.in); got != tt.want {
			t.Errorf("StripHTML(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalize(t *testing.T) {
	got := Normalize("  AI를, 활용한!  프롬프트?  ")
	want := "ai를 활용한 프롬프트"
	if got != want {
		t.Errorf("Normalize = %q, want %q", got, want)
	}
}

func TestExtractKeywords(t *testing.T) {
	text := "프롬프트 설계 프롬프트 작성 설계 작성 프롬프트"
	got := ExtractKeywords(text)
	if len(got) != 3 {
		t.Fatalf("expected 3 keywords, got %v", got)
	}
	if got[0] != "프롬프트" {
		t.Errorf("expected most frequent first, got %v", got)
	}
	// Equal counts keep first-occurrence order.
	if got[1] != "설계" || got[2] != "작성" {
		t.Errorf("expected tie-break by first occurrence, got %v", got)
	}
}

func TestExtractKeywordsSkipsShortWords(t *testing.T) {
	for _, kw := range ExtractKeywords("a b c 긴단어 또다른단어") {
		if len([]rune(kw)) < 2 {
			t.Errorf("keyword %q shorter than 2 runes", kw)
		}
	}
}

func TestValidateKeywordOverlap(t *testing.T) {
	// A question with few distinct keywords, and a prompt that reuses nearly
	// all of them without any contiguous copying and with enough filler to
	// stay under the n-gram threshold.
	question := "데이터 분석 보고서"
	prompt := "오늘 우리가 함께 살펴볼 주제와 관련해서 말씀드리자면 데이터 쪽과 분석 쪽과 보고서 쪽을 각각 하나씩 천천히 다뤄 보겠습니다"
	res := Validate(prompt, question, "")
	if res.Valid {
		t.Fatal("keyword-saturated prompt accepted")
	}
	if !strings.Contains(res.Reason, "핵심 키워드") {
		t.Errorf("expected keyword reason, got %q", res.Reason)
	}
}
