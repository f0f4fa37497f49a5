package devstub

import (
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/kpcai/examfront/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(":memory:")
	if err != nil {
		t.Fatalf("newTestStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func insertTestQuestion(t *testing.T, s *Store, number int, title string, active bool) int64 {
	t.Helper()
	id, err := s.InsertQuestion(model.QuestionCreate{
		QuestionNumber: number,
		Type:           model.QuestionEssay,
		Title:          title,
		Content:        "<p>" + title + "</p>",
		Points:         10,
		Competency:     "A",
	})
	if err != nil {
		t.Fatalf("insertTestQuestion: %v", err)
	}
	if !active {
		if err := s.DeactivateQuestion(id); err != nil {
			t.Fatalf("DeactivateQuestion: %v", err)
		}
	}
	return id
}

func insertTestUser(t *testing.T, s *Store, email string, role model.UserRole) int64 {
	t.Helper()
	id, err := s.CreateUser(email, "hash", "2024-001", role)
	if err != nil {
		t.Fatalf("insertTestUser: %v", err)
	}
	return id
}

func TestUserCRUD(t *testing.T) {
	s := newTestStore(t)

	u, err := s.GetUserByEmail("missing@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail: %v", err)
	}
	if u != nil {
		t.Fatalf("expected nil for unknown email, got %+v", u)
	}

	id := insertTestUser(t, s, "kim@example.com", model.UserRoleUser)
	u, err = s.GetUserByID(id)
	if err != nil {
		t.Fatalf("GetUserByID: %v", err)
	}
	if u == nil || u.Email != "kim@example.com" || u.Role != model.UserRoleUser {
		t.Errorf("unexpected user: %+v", u)
	}
	if !u.IsActive {
		t.Error("new user should be active")
	}

	count, err := s.UserCount()
	if err != nil {
		t.Fatalf("UserCount: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 user, got %d", count)
	}

	// Duplicate email violates the unique constraint.
	if _, err := s.CreateUser("kim@example.com", "hash2", "", model.UserRoleUser); err == nil {
		t.Error("expected error for duplicate email")
	}
}

func TestTokenLifecycle(t *testing.T) {
	s := newTestStore(t)
	id := insertTestUser(t, s, "kim@example.com", model.UserRoleUser)

	token, err := s.CreateToken(id)
	if err != nil {
		t.Fatalf("CreateToken: %v", err)
	}
	if len(token) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(token))
	}

	u, err := s.UserForToken(token)
	if err != nil {
		t.Fatalf("UserForToken: %v", err)
	}
	if u == nil || u.ID != id {
		t.Errorf("token resolved to wrong user: %+v", u)
	}

	u, err = s.UserForToken("bogus")
	if err != nil {
		t.Fatalf("UserForToken bogus: %v", err)
	}
	if u != nil {
		t.Errorf("expected nil for unknown token, got %+v", u)
	}
}

func TestQuestionCRUD(t *testing.T) {
	s := newTestStore(t)

	list, err := s.ListQuestions(false)
	if err != nil {
		t.Fatalf("ListQuestions: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected empty list, got %d", len(list))
	}

	id := insertTestQuestion(t, s, 1, "생성형 AI 개념", true)
	insertTestQuestion(t, s, 2, "비활성 문항", false)

	q, err := s.GetQuestion(id)
	if err != nil {
		t.Fatalf("GetQuestion: %v", err)
	}
	if q.Title != "생성형 AI 개념" || q.Points != 10 {
		t.Errorf("unexpected question: %+v", q)
	}

	_, err = s.GetQuestion(9999)
	if err != sql.ErrNoRows {
		t.Errorf("expected ErrNoRows, got %v", err)
	}

	active, err := s.ListQuestions(false)
	if err != nil {
		t.Fatalf("ListQuestions: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("expected 1 active question, got %d", len(active))
	}

	all, err := s.ListQuestions(true)
	if err != nil {
		t.Fatalf("ListQuestions inactive: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 questions, got %d", len(all))
	}

	// Update replaces content fields.
	err = s.UpdateQuestion(id, model.QuestionCreate{
		QuestionNumber: 1,
		Type:           model.QuestionMultipleChoice,
		Title:          "수정된 제목",
		Points:         5,
		Options:        []model.ChoiceOption{{Text: "가"}, {Text: "나"}},
	})
	if err != nil {
		t.Fatalf("UpdateQuestion: %v", err)
	}
	q, err = s.GetQuestion(id)
	if err != nil {
		t.Fatalf("GetQuestion after update: %v", err)
	}
	if q.Title != "수정된 제목" || q.Type != model.QuestionMultipleChoice {
		t.Errorf("update not applied: %+v", q)
	}
	if len(q.Options()) != 2 {
		t.Errorf("expected 2 options, got %d", len(q.Options()))
	}
}

func TestExamLifecycle(t *testing.T) {
	s := newTestStore(t)
	userID := insertTestUser(t, s, "kim@example.com", model.UserRoleUser)

	exam, err := s.CreateExam(userID)
	if err != nil {
		t.Fatalf("CreateExam: %v", err)
	}
	if exam.Status != model.ExamInProgress {
		t.Errorf("expected in_progress, got %q", exam.Status)
	}
	if exam.TimerRemaining != defaultExamTimer {
		t.Errorf("expected timer %d, got %d", defaultExamTimer, exam.TimerRemaining)
	}

	if err := s.UpdateExamTimer(exam.ID, 8500); err != nil {
		t.Fatalf("UpdateExamTimer: %v", err)
	}
	got, err := s.GetExam(exam.ID)
	if err != nil {
		t.Fatalf("GetExam: %v", err)
	}
	if got.TimerRemaining != 8500 {
		t.Errorf("expected timer 8500, got %d", got.TimerRemaining)
	}

	if err := s.SubmitExam(exam.ID); err != nil {
		t.Fatalf("SubmitExam: %v", err)
	}
	if err := s.SubmitExam(exam.ID); err == nil {
		t.Error("expected error submitting twice")
	}

	if err := s.GradeExam(exam.ID, 85); err != nil {
		t.Fatalf("GradeExam: %v", err)
	}
	got, err = s.GetExam(exam.ID)
	if err != nil {
		t.Fatalf("GetExam after grade: %v", err)
	}
	if got.Status != model.ExamGraded || got.Score == nil || *got.Score != 85 {
		t.Errorf("grade not applied: %+v", got)
	}
}

func TestAnswerUpsert(t *testing.T) {
	s := newTestStore(t)
	userID := insertTestUser(t, s, "kim@example.com", model.UserRoleUser)
	qID := insertTestQuestion(t, s, 1, "서술형", true)
	exam, err := s.CreateExam(userID)
	if err != nil {
		t.Fatalf("CreateExam: %v", err)
	}

	first, _ := json.Marshal(model.NewTextAnswer("초안", 0))
	rec, err := s.UpsertAnswer(exam.ID, qID, first)
	if err != nil {
		t.Fatalf("UpsertAnswer: %v", err)
	}
	if rec.AnswerData.AnswerText != "초안" {
		t.Errorf("expected 초안, got %q", rec.AnswerData.AnswerText)
	}

	second, _ := json.Marshal(model.NewTextAnswer("최종 답안", 2))
	rec2, err := s.UpsertAnswer(exam.ID, qID, second)
	if err != nil {
		t.Fatalf("UpsertAnswer update: %v", err)
	}
	if rec2.ID != rec.ID {
		t.Errorf("upsert created a new row: %d != %d", rec2.ID, rec.ID)
	}
	if rec2.AnswerData.AnswerText != "최종 답안" {
		t.Errorf("expected 최종 답안, got %q", rec2.AnswerData.AnswerText)
	}

	answers, err := s.ListAnswers(exam.ID)
	if err != nil {
		t.Fatalf("ListAnswers: %v", err)
	}
	if len(answers) != 1 {
		t.Fatalf("expected 1 answer, got %d", len(answers))
	}

	if err := s.GradeAnswer(rec.ID, 8, "잘 작성했습니다."); err != nil {
		t.Fatalf("GradeAnswer: %v", err)
	}
	graded, err := s.GetAnswer(exam.ID, qID)
	if err != nil {
		t.Fatalf("GetAnswer: %v", err)
	}
	if graded.Score == nil || *graded.Score != 8 || graded.Feedback != "잘 작성했습니다." {
		t.Errorf("grade not applied: %+v", graded)
	}
}

func TestAIUsageLog(t *testing.T) {
	s := newTestStore(t)
	userID := insertTestUser(t, s, "kim@example.com", model.UserRoleUser)
	exam, err := s.CreateExam(userID)
	if err != nil {
		t.Fatalf("CreateExam: %v", err)
	}

	if err := s.RecordAIUsage(exam.ID, 1, "프롬프트", "응답"); err != nil {
		t.Fatalf("RecordAIUsage: %v", err)
	}
	if err := s.RecordAIUsage(exam.ID, 1, "두 번째", "응답 2"); err != nil {
		t.Fatalf("RecordAIUsage: %v", err)
	}

	usage, err := s.ListAIUsage(exam.ID)
	if err != nil {
		t.Fatalf("ListAIUsage: %v", err)
	}
	if len(usage) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(usage))
	}
	if usage[0].Prompt != "프롬프트" || usage[0].ToolType != "gemini" {
		t.Errorf("unexpected first entry: %+v", usage[0])
	}
}

func TestDashboard(t *testing.T) {
	s := newTestStore(t)
	userID := insertTestUser(t, s, "kim@example.com", model.UserRoleUser)

	e1, err := s.CreateExam(userID)
	if err != nil {
		t.Fatalf("CreateExam: %v", err)
	}
	if _, err := s.CreateExam(userID); err != nil {
		t.Fatalf("CreateExam: %v", err)
	}
	if err := s.SubmitExam(e1.ID); err != nil {
		t.Fatalf("SubmitExam: %v", err)
	}

	stats, err := s.Dashboard()
	if err != nil {
		t.Fatalf("Dashboard: %v", err)
	}
	if stats.TotalUsers != 1 || stats.TotalExams != 2 {
		t.Errorf("unexpected totals: %+v", stats)
	}
	if stats.SubmittedExams != 1 || stats.ActiveExams != 1 {
		t.Errorf("unexpected statuses: %+v", stats)
	}
}

func TestSeedAdminIdempotent(t *testing.T) {
	s := newTestStore(t)

	if err := SeedAdmin(s, "admin@example.com", "secret"); err != nil {
		t.Fatalf("SeedAdmin: %v", err)
	}
	if err := SeedAdmin(s, "admin@example.com", "other"); err != nil {
		t.Fatalf("SeedAdmin second run: %v", err)
	}

	count, err := s.UserCount()
	if err != nil {
		t.Fatalf("UserCount: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 user, got %d", count)
	}

	admin, err := s.GetUserByEmail("admin@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail: %v", err)
	}
	if admin == nil || admin.Role != model.UserRoleAdmin {
		t.Errorf("expected admin role, got %+v", admin)
	}
}

func TestImportQuestionsOnce(t *testing.T) {
	s := newTestStore(t)

	payload := []model.QuestionCreate{
		{QuestionNumber: 1, Type: model.QuestionEssay, Title: "문항 1", Points: 10},
		{QuestionNumber: 2, Type: model.QuestionMultipleChoice, Title: "문항 2", Points: 5,
			Options: []model.ChoiceOption{{Text: "가"}, {Text: "나"}}},
	}
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	path := filepath.Join(t.TempDir(), "questions.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	if err := ImportQuestions(s, path); err != nil {
		t.Fatalf("ImportQuestions: %v", err)
	}
	// Same file again is a no-op.
	if err := ImportQuestions(s, path); err != nil {
		t.Fatalf("ImportQuestions second run: %v", err)
	}

	count, err := s.QuestionCount()
	if err != nil {
		t.Fatalf("QuestionCount: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2 questions, got %d", count)
	}
}
