// Package promptguard decides whether an AI-assist prompt may be sent for a
// question. It rejects prompts that echo too much of the question text, using
// three independent gates evaluated in order of cost: a verbatim-run check, a
// character n-gram Jaccard similarity, and a keyword-overlap check. Any one
// gate rejecting is sufficient.
package promptguard

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
)

const (
	// minVerbatimRun is the length (in normalized runes) of a contiguous
	// question substring that counts as direct copying.
	minVerbatimRun = 20
	// jaccardThreshold rejects prompts whose 4-gram Jaccard similarity with
	// the question text reaches this value.
	jaccardThreshold = 0.4
	// keywordThreshold rejects prompts containing this share of the
	// question's top keywords.
	keywordThreshold = 0.6
	// topKeywords is how many of the most frequent question words are
	// considered.
	topKeywords = 20
	// ngramSize is the character n-gram width for the Jaccard check.
	ngramSize = 4
)

// Result is the outcome of a prompt validation.
type Result struct {
	Valid      bool
	Reason     string
	Similarity float64
}

var (
	tagRE        = regexp.MustCompile(`<[^>]*>`)
	spaceRE      = regexp.MustCompile(`\s+`)
	nonLetterRE  = regexp.MustCompile(`[^\w\s가-힣]`)
	htmlEntities = strings.NewReplacer(
		"&nbsp;", " ",
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&#39;", "'",
	)
)

// StripHTML removes tags and common entities from authored question HTML.
func StripHTML(html string) string {
	if html == "" {
		return ""
	}
	s := tagRE.ReplaceAllString(html, " ")
	s = htmlEntities.Replace(s)
	return strings.TrimSpace(spaceRE.ReplaceAllString(s, " "))
}

// Normalize lowercases and keeps only word characters, whitespace, and
// Hangul, collapsing runs of whitespace.
func Normalize(text string) string {
	if text == "" {
		return ""
	}
	s := strings.ToLower(text)
	s = nonLetterRE.ReplaceAllString(s, "")
	return strings.TrimSpace(spaceRE.ReplaceAllString(s, " "))
}

func ngrams(text string, n int) map[string]struct{} {
	runes := []rune(Normalize(text))
	set := make(map[string]struct{})
	for i := 0; i+n <= len(runes); i++ {
		set[string(runes[i:i+n])] = struct{}{}
	}
	return set
}

// JaccardSimilarity computes the character 4-gram Jaccard similarity of two
// texts after normalization.
func JaccardSimilarity(text1, text2 string) float64 {
	a := ngrams(text1, ngramSize)
	b := ngrams(text2, ngramSize)
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for g := range a {
		if _, ok := b[g]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	return float64(intersection) / float64(union)
}

// containsVerbatimRun reports whether any minVerbatimRun-rune contiguous
// substring of the normalized question text occurs verbatim in the
// normalized prompt. Texts shorter than the run length never match.
func containsVerbatimRun(prompt, questionText string) bool {
	normPrompt := Normalize(prompt)
	questionRunes := []rune(Normalize(questionText))
	if len([]rune(normPrompt)) < minVerbatimRun || len(questionRunes) < minVerbatimRun {
		return false
	}
	for i := 0; i+minVerbatimRun <= len(questionRunes); i++ {
		if strings.Contains(normPrompt, string(questionRunes[i:i+minVerbatimRun])) {
			return true
		}
	}
	return false
}

// ExtractKeywords returns the question's most frequent words (at least two
// runes long), most frequent first. Ties keep first-occurrence order so the
// extraction is deterministic.
func ExtractKeywords(text string) []string {
	words := strings.Fields(Normalize(StripHTML(text)))
	counts := make(map[string]int)
	order := make(map[string]int)
	var unique []string
	for i, w := range words {
		if len([]rune(w)) < 2 {
			continue
		}
		if counts[w] == 0 {
			order[w] = i
			unique = append(unique, w)
		}
		counts[w]++
	}
	sort.SliceStable(unique, func(i, j int) bool {
		if counts[unique[i]] != counts[unique[j]] {
			return counts[unique[i]] > counts[unique[j]]
		}
		return order[unique[i]] < order[unique[j]]
	})
	if len(unique) > topKeywords {
		unique = unique[:topKeywords]
	}
	return unique
}

func keywordOverlap(prompt, questionText string) float64 {
	keywords := ExtractKeywords(questionText)
	if len(keywords) == 0 {
		return 0
	}
	normPrompt := Normalize(prompt)
	matched := 0
	for _, kw := range keywords {
		if strings.Contains(normPrompt, kw) {
			matched++
		}
	}
	return float64(matched) / float64(len(keywords))
}

// Validate checks a candidate prompt against the question's content and
// optional scenario. The gate order is part of the contract: the cheap
// verbatim-run check runs before the n-gram and keyword computations.
func Validate(prompt, questionContent, questionScenario string) Result {
	if strings.TrimSpace(prompt) == "" {
		return Result{Valid: false, Reason: "프롬프트를 입력해주세요."}
	}

	questionText := StripHTML(questionContent) + " " + StripHTML(questionScenario)

	if containsVerbatimRun(prompt, questionText) {
		return Result{
			Valid:      false,
			Reason:     "문제 내용을 직접 복사하여 사용할 수 없습니다. 자신만의 프롬프트를 작성해주세요.",
			Similarity: 1.0,
		}
	}

	similarity := JaccardSimilarity(prompt, questionText)
	if similarity >= jaccardThreshold {
		return Result{
			Valid:      false,
			Reason:     fmt.Sprintf("프롬프트가 문제 내용과 너무 유사합니다 (유사도: %d%%). 자신만의 표현으로 질문해주세요.", int(math.Round(similarity*100))),
			Similarity: similarity,
		}
	}

	if keywordOverlap(prompt, questionText) >= keywordThreshold {
		return Result{
			Valid:      false,
			Reason:     "문제의 핵심 키워드를 그대로 사용하지 마세요. 다른 표현으로 질문해주세요.",
			Similarity: keywordThreshold,
		}
	}

	return Result{Valid: true, Similarity: similarity}
}
