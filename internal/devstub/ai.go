package devstub

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kpcai/examfront/internal/model"

	openai "github.com/sashabaranov/go-openai"
)

// Assistant wraps an OpenAI-compatible API client used for the in-exam AI
// helper and for drafting questions. When no client is configured it falls
// back to canned responses so the dev server works offline.
type Assistant struct {
	api   *openai.Client
	model string
}

// NewAssistant creates an assistant. An empty apiKey with an empty baseURL
// yields the offline fallback.
func NewAssistant(baseURL, apiKey, modelName string) *Assistant {
	if baseURL == "" && apiKey == "" {
		return &Assistant{}
	}
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &Assistant{
		api:   openai.NewClientWithConfig(config),
		model: modelName,
	}
}

// Respond answers a candidate's in-exam prompt.
func (a *Assistant) Respond(ctx context.Context, prompt string) (string, error) {
	if a.api == nil {
		return "(개발용 응답) 프롬프트를 받았습니다: " + prompt, nil
	}
	resp, err := a.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: a.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: "당신은 시험 응시자를 돕는 범용 AI 어시스턴트입니다. 질문에 한국어로 답변하세요."},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: 0.7,
	})
	if err != nil {
		return "", fmt.Errorf("AI API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("AI returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// DraftQuestion asks the model for a question draft matching the requested
// type, competency, and topic.
func (a *Assistant) DraftQuestion(ctx context.Context, qtype model.QuestionType, competency, topic string, points int) (model.QuestionCreate, error) {
	draft := model.QuestionCreate{
		Type:       qtype,
		Competency: competency,
		Points:     points,
	}
	if a.api == nil {
		draft.Title = topic
		draft.Content = "<p>" + topic + "에 대해 설명하시오.</p>"
		return draft, nil
	}

	resp, err := a.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: a.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: buildDraftSystemPrompt(qtype)},
			{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf("주제: %s, 역량: %s, 배점: %d", topic, competency, points)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.7,
	})
	if err != nil {
		return draft, fmt.Errorf("AI API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return draft, fmt.Errorf("AI returned no choices")
	}

	raw := resp.Choices[0].Message.Content
	var parsed struct {
		Title        string   `json:"title"`
		Content      string   `json:"content"`
		Scenario     string   `json:"scenario"`
		Requirements []string `json:"requirements"`
		Options      []string `json:"options"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return draft, fmt.Errorf("parse AI draft: %w (raw: %s)", err, raw)
	}

	draft.Title = parsed.Title
	draft.Content = parsed.Content
	draft.Scenario = parsed.Scenario
	draft.Requirements = parsed.Requirements
	for _, o := range parsed.Options {
		draft.Options = append(draft.Options, model.ChoiceOption{Text: o})
	}
	return draft, nil
}

func buildDraftSystemPrompt(qtype model.QuestionType) string {
	var sb strings.Builder
	sb.WriteString("당신은 생성형 AI 역량 평가 문항을 출제하는 전문가입니다. ")
	sb.WriteString("요청된 주제와 역량에 맞는 시험 문항 한 개를 한국어로 작성하세요.\n")
	sb.WriteString("문항 유형: " + string(qtype) + "\n")
	if qtype == model.QuestionMultipleChoice {
		sb.WriteString("객관식 문항이므로 options 배열에 4개의 보기를 넣으세요.\n")
	}
	sb.WriteString("다음 필드를 가진 JSON 객체로만 응답하세요:\n")
	sb.WriteString(`{"title": "<제목>", "content": "<본문 HTML>", "scenario": "<시나리오 HTML 또는 빈 문자열>", "requirements": ["<요구사항>"], "options": ["<보기>"]}`)
	sb.WriteString("\n")
	return sb.String()
}
