package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/kpcai/examfront/internal/model"
)

// saveTimeout bounds answer saves so a hung request surfaces as a retryable
// timeout instead of blocking the candidate indefinitely.
const saveTimeout = 10 * time.Second

// TokenPair is the backend's login response.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Login exchanges credentials for access and refresh tokens.
func (c *Client) Login(ctx context.Context, email, password string) (*TokenPair, error) {
	body := map[string]string{"email": email, "password": password}
	var pair TokenPair
	if err := c.do(ctx, http.MethodPost, "/auth/login", body, &pair, 0); err != nil {
		return nil, err
	}
	return &pair, nil
}

// Register creates a candidate account.
func (c *Client) Register(ctx context.Context, email, password, examNumber string) error {
	body := map[string]string{"email": email, "password": password, "exam_number": examNumber}
	return c.do(ctx, http.MethodPost, "/auth/register", body, nil, 0)
}

// Me returns the authenticated user.
func (c *Client) Me(ctx context.Context) (*model.User, error) {
	var u model.User
	if err := c.do(ctx, http.MethodGet, "/auth/me", nil, &u, 0); err != nil {
		return nil, err
	}
	return &u, nil
}

// Questions returns the question catalog. With includeInactive the backend
// also returns deactivated questions (admin authoring view).
func (c *Client) Questions(ctx context.Context, includeInactive bool) ([]model.Question, error) {
	path := "/questions"
	if includeInactive {
		path += "?include_inactive=true"
	}
	var questions []model.Question
	if err := c.do(ctx, http.MethodGet, path, nil, &questions, 0); err != nil {
		return nil, err
	}
	return questions, nil
}

// Question returns one question by id.
func (c *Client) Question(ctx context.Context, id int64) (*model.Question, error) {
	var q model.Question
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/questions/%d", id), nil, &q, 0); err != nil {
		return nil, err
	}
	return &q, nil
}

// CreateQuestion authors a new question.
func (c *Client) CreateQuestion(ctx context.Context, in model.QuestionCreate) (*model.Question, error) {
	var q model.Question
	if err := c.do(ctx, http.MethodPost, "/questions", in, &q, 0); err != nil {
		return nil, err
	}
	return &q, nil
}

// UpdateQuestion replaces a question's fields.
func (c *Client) UpdateQuestion(ctx context.Context, id int64, in model.QuestionCreate) (*model.Question, error) {
	var q model.Question
	if err := c.do(ctx, http.MethodPut, fmt.Sprintf("/questions/%d", id), in, &q, 0); err != nil {
		return nil, err
	}
	return &q, nil
}

// DeleteQuestion removes a question.
func (c *Client) DeleteQuestion(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/questions/%d", id), nil, nil, 0)
}

// StartExam creates a new exam for the authenticated user and returns its id
// and the authoritative starting timer.
func (c *Client) StartExam(ctx context.Context) (*model.Exam, error) {
	var exam model.Exam
	if err := c.do(ctx, http.MethodPost, "/exams/start", map[string]any{}, &exam, 0); err != nil {
		return nil, err
	}
	return &exam, nil
}

// Exam returns one exam by id.
func (c *Client) Exam(ctx context.Context, id int64) (*model.Exam, error) {
	var exam model.Exam
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/exams/%d", id), nil, &exam, 0); err != nil {
		return nil, err
	}
	return &exam, nil
}

// UpdateTimer reconciles the server's copy of the remaining time.
func (c *Client) UpdateTimer(ctx context.Context, examID int64, remaining int) error {
	body := map[string]int{"timer_remaining": remaining}
	return c.do(ctx, http.MethodPatch, fmt.Sprintf("/exams/%d/timer", examID), body, nil, 0)
}

// SubmitExam finalizes the exam server-side.
func (c *Client) SubmitExam(ctx context.Context, examID int64) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/exams/%d/submit", examID), map[string]any{}, nil, 0)
}

// ExamResult returns the graded outcome of an exam.
func (c *Client) ExamResult(ctx context.Context, examID int64) (*model.ExamResult, error) {
	var result model.ExamResult
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/exams/%d/result", examID), nil, &result, 0); err != nil {
		return nil, err
	}
	return &result, nil
}

// ExamAnswers returns the answers already saved for the given exam.
func (c *Client) ExamAnswers(ctx context.Context, examID int64) ([]model.AnswerRecord, error) {
	var answers []model.AnswerRecord
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/answers/exam/%d", examID), nil, &answers, 0); err != nil {
		return nil, err
	}
	return answers, nil
}

// Answer returns the saved answer for one question of an exam.
func (c *Client) Answer(ctx context.Context, examID, questionID int64) (*model.AnswerRecord, error) {
	var rec model.AnswerRecord
	path := fmt.Sprintf("/answers/exam/%d/question/%d", examID, questionID)
	if err := c.do(ctx, http.MethodGet, path, nil, &rec, 0); err != nil {
		return nil, err
	}
	return &rec, nil
}

// SaveAnswer persists an answer. The server upserts by (exam_id,
// question_id), so repeated saves are last-write-wins and safe to retry.
func (c *Client) SaveAnswer(ctx context.Context, examID, questionID int64, answer model.Answer) (*model.AnswerRecord, error) {
	body := struct {
		ExamID     int64        `json:"exam_id"`
		QuestionID int64        `json:"question_id"`
		AnswerData model.Answer `json:"answer_data"`
	}{examID, questionID, answer}
	var rec model.AnswerRecord
	if err := c.do(ctx, http.MethodPost, "/answers", body, &rec, saveTimeout); err != nil {
		return nil, err
	}
	return &rec, nil
}

// AIGemini proxies one AI-assist call through the backend.
func (c *Client) AIGemini(ctx context.Context, examID, questionID int64, prompt string, contextData map[string]any) (string, error) {
	if contextData == nil {
		contextData = map[string]any{}
	}
	body := struct {
		ExamID     int64          `json:"exam_id"`
		QuestionID int64          `json:"question_id"`
		Prompt     string         `json:"prompt"`
		Context    map[string]any `json:"context"`
	}{examID, questionID, prompt, contextData}
	var out struct {
		Response string `json:"response"`
	}
	if err := c.do(ctx, http.MethodPost, "/ai/gemini", body, &out, 0); err != nil {
		return "", err
	}
	return out.Response, nil
}

// AIUsage returns the AI-assist calls recorded for an exam.
func (c *Client) AIUsage(ctx context.Context, examID int64) ([]model.AIUsage, error) {
	var usage []model.AIUsage
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/ai/usage/%d", examID), nil, &usage, 0); err != nil {
		return nil, err
	}
	return usage, nil
}
