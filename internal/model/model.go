package model

import (
	"context"
	"encoding/json"
	"time"
)

// UserRole represents a user's access level.
type UserRole string

const (
	// UserRoleUser is a regular exam candidate.
	UserRoleUser UserRole = "user"
	// UserRoleAdmin is an administrator.
	UserRoleAdmin UserRole = "admin"
)

// User represents a platform user as returned by GET /auth/me.
type User struct {
	ID         int64    `json:"id"`
	Email      string   `json:"email"`
	Name       string   `json:"name,omitempty"`
	ExamNumber string   `json:"exam_number"`
	Role       UserRole `json:"role"`
}

// IsAdmin reports whether the user may access admin screens.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == UserRoleAdmin
}

type userCtxKey struct{}

// ContextWithUser stores a user in the request context.
func ContextWithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userCtxKey{}, u)
}

// UserFromContext retrieves the authenticated user from context, or nil.
func UserFromContext(ctx context.Context) *User {
	u, _ := ctx.Value(userCtxKey{}).(*User)
	return u
}

type basePathCtxKey struct{}

// ContextWithBasePath stores the base path prefix in context.
func ContextWithBasePath(ctx context.Context, basePath string) context.Context {
	return context.WithValue(ctx, basePathCtxKey{}, basePath)
}

// BasePathFromContext retrieves the base path from context (empty string if not set).
func BasePathFromContext(ctx context.Context) string {
	bp, _ := ctx.Value(basePathCtxKey{}).(string)
	return bp
}

type csrfCtxKey struct{}

// ContextWithCSRFToken stores the CSRF token in context.
func ContextWithCSRFToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, csrfCtxKey{}, token)
}

// CSRFTokenFromContext retrieves the CSRF token from context.
func CSRFTokenFromContext(ctx context.Context) string {
	t, _ := ctx.Value(csrfCtxKey{}).(string)
	return t
}

// QuestionType discriminates the question renderers.
type QuestionType string

const (
	QuestionMultipleChoice QuestionType = "multiple_choice"
	QuestionPromptDesign   QuestionType = "prompt_design"
	QuestionEssay          QuestionType = "essay"
	QuestionPractical      QuestionType = "practical"
	QuestionFactChecking   QuestionType = "fact_checking"
	QuestionEthicalReview  QuestionType = "ethical_review"

	// Legacy type aliases still present in older question rows.
	QuestionComprehension    QuestionType = "comprehension"
	QuestionApplication      QuestionType = "application"
	QuestionCriticalAnalysis QuestionType = "critical_analysis"
	QuestionCaseStudy        QuestionType = "case_study"
)

// ChoiceOption is a single multiple-choice option. Options are referenced by
// their 1-based position in the list.
type ChoiceOption struct {
	Text string `json:"text"`
}

// QuestionContent is the nested content blob of a question.
// ReferenceMaterials is either an HTML string or a structured JSON object,
// so it stays raw until the renderer decides.
type QuestionContent struct {
	Scenario           string          `json:"scenario,omitempty"`
	Requirements       []string        `json:"requirements,omitempty"`
	ReferenceMaterials json.RawMessage `json:"reference_materials,omitempty"`
	AIOptions          map[string]any  `json:"ai_options,omitempty"`
	Options            []ChoiceOption  `json:"options,omitempty"`
}

// ReferenceHTML returns reference materials as HTML when they were authored
// as a plain string, or empty when structured/absent.
func (qc *QuestionContent) ReferenceHTML() string {
	if qc == nil || len(qc.ReferenceMaterials) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(qc.ReferenceMaterials, &s); err == nil {
		return s
	}
	return ""
}

// Question represents an exam question as served by GET /questions.
// QuestionNumber is the authoring order; the display number shown to the
// candidate is derived from the sorted active list, not stored.
type Question struct {
	ID             int64            `json:"id"`
	QuestionNumber int              `json:"question_number"`
	Type           QuestionType     `json:"type"`
	Title          string           `json:"title"`
	Content        string           `json:"content"`
	Points         int              `json:"points"`
	TimeLimit      *int             `json:"time_limit"`
	Competency     string           `json:"competency,omitempty"`
	IsActive       int              `json:"is_active"`
	QContent       *QuestionContent `json:"question_content"`
	IsAnswered     bool             `json:"is_answered"`
}

// Scenario returns the nested scenario HTML, if any.
func (q *Question) Scenario() string {
	if q.QContent == nil {
		return ""
	}
	return q.QContent.Scenario
}

// RenderType maps legacy question types onto the renderer that handles them.
// Unknown types fall back to the essay renderer so old rows stay answerable.
func (q *Question) RenderType() QuestionType {
	switch q.Type {
	case QuestionMultipleChoice, QuestionPromptDesign, QuestionEssay,
		QuestionPractical, QuestionFactChecking, QuestionEthicalReview:
		return q.Type
	case QuestionApplication, QuestionCaseStudy:
		return QuestionPractical
	default:
		return QuestionEssay
	}
}

// Options returns the multiple-choice options, if any.
func (q *Question) Options() []ChoiceOption {
	if q.QContent == nil {
		return nil
	}
	return q.QContent.Options
}

// Requirements returns the authored requirement list, if any.
func (q *Question) Requirements() []string {
	if q.QContent == nil {
		return nil
	}
	return q.QContent.Requirements
}

// QuestionCreate is the payload for authoring a question.
type QuestionCreate struct {
	QuestionNumber     int             `json:"question_number"`
	Type               QuestionType    `json:"type"`
	Title              string          `json:"title"`
	Content            string          `json:"content"`
	Points             int             `json:"points"`
	TimeLimit          *int            `json:"time_limit"`
	Competency         string          `json:"competency"`
	Scenario           string          `json:"scenario,omitempty"`
	Requirements       []string        `json:"requirements,omitempty"`
	ReferenceMaterials json.RawMessage `json:"reference_materials,omitempty"`
	Options            []ChoiceOption  `json:"options,omitempty"`
}

// ExamStatus represents the lifecycle of a server-side exam.
type ExamStatus string

const (
	ExamNotStarted ExamStatus = "not_started"
	ExamInProgress ExamStatus = "in_progress"
	ExamSubmitted  ExamStatus = "submitted"
	ExamGraded     ExamStatus = "graded"
)

// Exam is the server's exam resource (POST /exams/start, GET /exams/{id}).
type Exam struct {
	ID             int64      `json:"id"`
	UserID         int64      `json:"user_id"`
	Status         ExamStatus `json:"status"`
	StartTime      *time.Time `json:"start_time"`
	EndTime        *time.Time `json:"end_time"`
	TimerRemaining int        `json:"timer_remaining"`
	Score          *int       `json:"score"`
	CreatedAt      time.Time  `json:"created_at"`
}

// CompetencyScores aggregates scores per competency bucket.
type CompetencyScores struct {
	CompetencyA *float64 `json:"competency_a,omitempty"`
	CompetencyB *float64 `json:"competency_b,omitempty"`
	CompetencyC *float64 `json:"competency_c,omitempty"`
	CompetencyD *float64 `json:"competency_d,omitempty"`
}

// ExamResult is the graded outcome of an exam.
type ExamResult struct {
	TotalScore       float64           `json:"total_score"`
	CompetencyScores *CompetencyScores `json:"competency_scores,omitempty"`
}

// AnswerRecord is a saved answer as stored server-side.
type AnswerRecord struct {
	ID          int64      `json:"id"`
	ExamID      int64      `json:"exam_id"`
	QuestionID  int64      `json:"question_id"`
	AnswerData  Answer     `json:"answer_data"`
	Score       *int       `json:"score"`
	Feedback    string     `json:"feedback,omitempty"`
	SubmittedAt *time.Time `json:"submitted_at"`
	UpdatedAt   *time.Time `json:"updated_at"`
}

// AIUsage is one recorded AI-assist call.
type AIUsage struct {
	ID         int64     `json:"id"`
	ExamID     int64     `json:"exam_id"`
	QuestionID int64     `json:"question_id"`
	ToolType   string    `json:"tool_type"`
	Prompt     string    `json:"prompt"`
	Response   string    `json:"response"`
	TokensUsed int       `json:"tokens_used"`
	Timestamp  time.Time `json:"timestamp"`
}

// DashboardStats is the admin dashboard summary.
type DashboardStats struct {
	TotalUsers     int `json:"total_users"`
	TotalExams     int `json:"total_exams"`
	SubmittedExams int `json:"submitted_exams"`
	GradedExams    int `json:"graded_exams"`
	ActiveExams    int `json:"active_exams"`
}

// AdminUserRow is one row of the admin user listing.
type AdminUserRow struct {
	ID         int64  `json:"id"`
	Email      string `json:"email"`
	ExamNumber string `json:"exam_number"`
	Role       string `json:"role"`
	IsActive   bool   `json:"is_active"`
	ExamCount  int    `json:"exam_count"`
}

// ExamDetails is the admin grading view of one exam.
type ExamDetails struct {
	Exam      Exam           `json:"exam"`
	UserEmail string         `json:"user_email"`
	Answers   []GradedAnswer `json:"answers"`
}

// GradedAnswer pairs a saved answer with its question for grading.
type GradedAnswer struct {
	Answer   AnswerRecord `json:"answer"`
	Question Question     `json:"question"`
}
