package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/kpcai/examfront/internal/model"
)

// Dashboard returns the admin dashboard statistics.
func (c *Client) Dashboard(ctx context.Context) (*model.DashboardStats, error) {
	var stats model.DashboardStats
	if err := c.do(ctx, http.MethodGet, "/admin/dashboard", nil, &stats, 0); err != nil {
		return nil, err
	}
	return &stats, nil
}

// AdminUsers lists all users for the admin view.
func (c *Client) AdminUsers(ctx context.Context) ([]model.AdminUserRow, error) {
	var users []model.AdminUserRow
	if err := c.do(ctx, http.MethodGet, "/admin/users", nil, &users, 0); err != nil {
		return nil, err
	}
	return users, nil
}

// AdminExams lists all exams for the admin view.
func (c *Client) AdminExams(ctx context.Context) ([]model.Exam, error) {
	var exams []model.Exam
	if err := c.do(ctx, http.MethodGet, "/admin/exams", nil, &exams, 0); err != nil {
		return nil, err
	}
	return exams, nil
}

// AdminExamDetails returns one exam with its answers for manual grading.
func (c *Client) AdminExamDetails(ctx context.Context, examID int64) (*model.ExamDetails, error) {
	var details model.ExamDetails
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/admin/exam/%d/details", examID), nil, &details, 0); err != nil {
		return nil, err
	}
	return &details, nil
}

// GradeAnswer records a manual score and feedback for a single answer.
func (c *Client) GradeAnswer(ctx context.Context, answerID int64, score int, feedback string) error {
	body := struct {
		Score    int    `json:"score"`
		Feedback string `json:"feedback"`
	}{score, feedback}
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/admin/grade/answer/%d", answerID), body, nil, 0)
}

// GradeExam records the overall score for an exam.
func (c *Client) GradeExam(ctx context.Context, examID int64, score int) error {
	body := struct {
		Score int `json:"score"`
	}{score}
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/admin/grade/%d", examID), body, nil, 0)
}

// AutoGenerateParams controls server-side question generation.
type AutoGenerateParams struct {
	Type       model.QuestionType `json:"type"`
	Competency string             `json:"competency"`
	Topic      string             `json:"topic,omitempty"`
	Points     int                `json:"points,omitempty"`
}

// AutoGenerateQuestion asks the backend to draft a question with the
// platform's AI proxy.
func (c *Client) AutoGenerateQuestion(ctx context.Context, params AutoGenerateParams) (*model.Question, error) {
	var q model.Question
	if err := c.do(ctx, http.MethodPost, "/admin/questions/auto-generate", params, &q, 0); err != nil {
		return nil, err
	}
	return &q, nil
}
