package devstub

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/kpcai/examfront/internal/model"
)

// Handler serves the backend REST API from the local store.
type Handler struct {
	store *Store
	ai    *Assistant
}

func NewHandler(store *Store, ai *Assistant) *Handler {
	return &Handler{store: store, ai: ai}
}

// Routes registers the API under the given router.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", h.handleRegister)
		r.Post("/auth/login", h.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(h.authenticate)

			r.Get("/auth/me", h.handleMe)

			r.Get("/questions", h.handleListQuestions)
			r.Get("/questions/{id}", h.handleGetQuestion)

			r.Post("/exams/start", h.handleStartExam)
			r.Get("/exams/{id}", h.handleGetExam)
			r.Patch("/exams/{id}/timer", h.handleUpdateTimer)
			r.Post("/exams/{id}/submit", h.handleSubmitExam)
			r.Get("/exams/{id}/result", h.handleExamResult)

			r.Post("/answers", h.handleSaveAnswer)
			r.Get("/answers/exam/{id}", h.handleExamAnswers)
			r.Get("/answers/exam/{id}/question/{qid}", h.handleExamAnswer)

			r.Post("/ai/gemini", h.handleAIGemini)
			r.Get("/ai/usage/{id}", h.handleAIUsage)

			r.Group(func(r chi.Router) {
				r.Use(h.requireAdmin)

				r.Post("/questions", h.handleCreateQuestion)
				r.Put("/questions/{id}", h.handleUpdateQuestion)
				r.Delete("/questions/{id}", h.handleDeleteQuestion)

				r.Get("/admin/dashboard", h.handleDashboard)
				r.Get("/admin/users", h.handleAdminUsers)
				r.Get("/admin/exams", h.handleAdminExams)
				r.Get("/admin/exam/{id}/details", h.handleAdminExamDetails)
				r.Post("/admin/grade/answer/{id}", h.handleGradeAnswer)
				r.Post("/admin/grade/{id}", h.handleGradeExam)
				r.Post("/admin/questions/auto-generate", h.handleAutoGenerate)
			})
		})
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		if err := json.NewEncoder(w).Encode(v); err != nil {
			slog.Error("encode response", "error", err)
		}
	}
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func writeServerError(w http.ResponseWriter, err error) {
	slog.Error("request failed", "error", err)
	writeDetail(w, http.StatusInternalServerError, "서버 오류가 발생했습니다.")
}

func idParam(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	return id, err == nil && id > 0
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeDetail(w, http.StatusBadRequest, "잘못된 요청입니다.")
		return false
	}
	return true
}

// authenticate resolves the bearer token and stores the user in context.
func (h *Handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok || token == "" {
			writeDetail(w, http.StatusUnauthorized, "인증이 필요합니다.")
			return
		}
		user, err := h.store.UserForToken(token)
		if err != nil {
			writeServerError(w, err)
			return
		}
		if user == nil || !user.IsActive {
			writeDetail(w, http.StatusUnauthorized, "인증이 만료되었습니다.")
			return
		}
		ctx := model.ContextWithUser(r.Context(), &user.User)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !model.UserFromContext(r.Context()).IsAdmin() {
			writeDetail(w, http.StatusForbidden, "관리자 권한이 필요합니다.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email      string `json:"email"`
		Password   string `json:"password"`
		ExamNumber string `json:"exam_number"`
	}
	if !decodeBody(w, r, &in) {
		return
	}
	if in.Email == "" || in.Password == "" {
		writeDetail(w, http.StatusBadRequest, "이메일과 비밀번호를 입력해주세요.")
		return
	}
	existing, err := h.store.GetUserByEmail(in.Email)
	if err != nil {
		writeServerError(w, err)
		return
	}
	if existing != nil {
		writeDetail(w, http.StatusBadRequest, "이미 존재하는 이메일입니다.")
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		writeServerError(w, err)
		return
	}
	if _, err := h.store.CreateUser(in.Email, string(hash), in.ExamNumber, model.UserRoleUser); err != nil {
		writeServerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "created"})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decodeBody(w, r, &in) {
		return
	}
	user, err := h.store.GetUserByEmail(in.Email)
	if err != nil {
		writeServerError(w, err)
		return
	}
	if user == nil || !user.IsActive ||
		bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(in.Password)) != nil {
		writeDetail(w, http.StatusUnauthorized, "이메일 또는 비밀번호가 올바르지 않습니다.")
		return
	}
	token, err := h.store.CreateToken(user.ID)
	if err != nil {
		writeServerError(w, err)
		return
	}
	refresh, err := h.store.CreateToken(user.ID)
	if err != nil {
		writeServerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"access_token":  token,
		"refresh_token": refresh,
	})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, model.UserFromContext(r.Context()))
}

func (h *Handler) handleListQuestions(w http.ResponseWriter, r *http.Request) {
	includeInactive := r.URL.Query().Get("include_inactive") == "true"
	if includeInactive && !model.UserFromContext(r.Context()).IsAdmin() {
		includeInactive = false
	}
	questions, err := h.store.ListQuestions(includeInactive)
	if err != nil {
		writeServerError(w, err)
		return
	}
	if questions == nil {
		questions = []model.Question{}
	}
	writeJSON(w, http.StatusOK, questions)
}

func (h *Handler) handleGetQuestion(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		writeDetail(w, http.StatusBadRequest, "잘못된 요청입니다.")
		return
	}
	q, err := h.store.GetQuestion(id)
	if errors.Is(err, sql.ErrNoRows) {
		writeDetail(w, http.StatusNotFound, "문항을 찾을 수 없습니다.")
		return
	}
	if err != nil {
		writeServerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (h *Handler) handleCreateQuestion(w http.ResponseWriter, r *http.Request) {
	var in model.QuestionCreate
	if !decodeBody(w, r, &in) {
		return
	}
	if in.Title == "" {
		writeDetail(w, http.StatusBadRequest, "문항 제목을 입력해주세요.")
		return
	}
	id, err := h.store.InsertQuestion(in)
	if err != nil {
		writeServerError(w, err)
		return
	}
	q, err := h.store.GetQuestion(id)
	if err != nil {
		writeServerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, q)
}

func (h *Handler) handleUpdateQuestion(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		writeDetail(w, http.StatusBadRequest, "잘못된 요청입니다.")
		return
	}
	var in model.QuestionCreate
	if !decodeBody(w, r, &in) {
		return
	}
	if err := h.store.UpdateQuestion(id, in); err != nil {
		writeServerError(w, err)
		return
	}
	q, err := h.store.GetQuestion(id)
	if errors.Is(err, sql.ErrNoRows) {
		writeDetail(w, http.StatusNotFound, "문항을 찾을 수 없습니다.")
		return
	}
	if err != nil {
		writeServerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (h *Handler) handleDeleteQuestion(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		writeDetail(w, http.StatusBadRequest, "잘못된 요청입니다.")
		return
	}
	if err := h.store.DeactivateQuestion(id); err != nil {
		writeServerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handler) handleStartExam(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	exam, err := h.store.CreateExam(user.ID)
	if err != nil {
		writeServerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, exam)
}

// examForRequest loads an exam and enforces ownership. Admins may read any
// exam.
func (h *Handler) examForRequest(w http.ResponseWriter, r *http.Request) (model.Exam, bool) {
	id, ok := idParam(r, "id")
	if !ok {
		writeDetail(w, http.StatusBadRequest, "잘못된 요청입니다.")
		return model.Exam{}, false
	}
	exam, err := h.store.GetExam(id)
	if errors.Is(err, sql.ErrNoRows) {
		writeDetail(w, http.StatusNotFound, "시험을 찾을 수 없습니다.")
		return model.Exam{}, false
	}
	if err != nil {
		writeServerError(w, err)
		return model.Exam{}, false
	}
	user := model.UserFromContext(r.Context())
	if exam.UserID != user.ID && !user.IsAdmin() {
		writeDetail(w, http.StatusForbidden, "접근 권한이 없습니다.")
		return model.Exam{}, false
	}
	return exam, true
}

func (h *Handler) handleGetExam(w http.ResponseWriter, r *http.Request) {
	exam, ok := h.examForRequest(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, exam)
}

func (h *Handler) handleUpdateTimer(w http.ResponseWriter, r *http.Request) {
	exam, ok := h.examForRequest(w, r)
	if !ok {
		return
	}
	var in struct {
		TimerRemaining int `json:"timer_remaining"`
	}
	if !decodeBody(w, r, &in) {
		return
	}
	if in.TimerRemaining < 0 {
		in.TimerRemaining = 0
	}
	if err := h.store.UpdateExamTimer(exam.ID, in.TimerRemaining); err != nil {
		writeServerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleSubmitExam(w http.ResponseWriter, r *http.Request) {
	exam, ok := h.examForRequest(w, r)
	if !ok {
		return
	}
	if err := h.store.SubmitExam(exam.ID); err != nil {
		writeDetail(w, http.StatusConflict, "이미 제출된 시험입니다.")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "submitted"})
}

func (h *Handler) handleExamResult(w http.ResponseWriter, r *http.Request) {
	exam, ok := h.examForRequest(w, r)
	if !ok {
		return
	}
	if exam.Status != model.ExamGraded || exam.Score == nil {
		writeDetail(w, http.StatusNotFound, "아직 채점되지 않았습니다.")
		return
	}
	result := model.ExamResult{TotalScore: float64(*exam.Score)}
	scores, err := h.competencyScores(exam.ID)
	if err != nil {
		writeServerError(w, err)
		return
	}
	result.CompetencyScores = scores
	writeJSON(w, http.StatusOK, result)
}

// competencyScores averages the percentage score per competency bucket over
// the exam's manually graded answers.
func (h *Handler) competencyScores(examID int64) (*model.CompetencyScores, error) {
	answers, err := h.store.ListAnswers(examID)
	if err != nil {
		return nil, err
	}
	sums := map[string]float64{}
	counts := map[string]int{}
	for _, a := range answers {
		if a.Score == nil {
			continue
		}
		q, err := h.store.GetQuestion(a.QuestionID)
		if err != nil || q.Points == 0 || q.Competency == "" {
			continue
		}
		bucket := strings.ToUpper(q.Competency[:1])
		sums[bucket] += float64(*a.Score) / float64(q.Points) * 100
		counts[bucket]++
	}
	if len(counts) == 0 {
		return nil, nil
	}
	avg := func(b string) *float64 {
		if counts[b] == 0 {
			return nil
		}
		v := sums[b] / float64(counts[b])
		return &v
	}
	return &model.CompetencyScores{
		CompetencyA: avg("A"),
		CompetencyB: avg("B"),
		CompetencyC: avg("C"),
		CompetencyD: avg("D"),
	}, nil
}

func (h *Handler) handleSaveAnswer(w http.ResponseWriter, r *http.Request) {
	var in struct {
		ExamID     int64           `json:"exam_id"`
		QuestionID int64           `json:"question_id"`
		AnswerData json.RawMessage `json:"answer_data"`
	}
	if !decodeBody(w, r, &in) {
		return
	}
	exam, err := h.store.GetExam(in.ExamID)
	if errors.Is(err, sql.ErrNoRows) {
		writeDetail(w, http.StatusNotFound, "시험을 찾을 수 없습니다.")
		return
	}
	if err != nil {
		writeServerError(w, err)
		return
	}
	user := model.UserFromContext(r.Context())
	if exam.UserID != user.ID {
		writeDetail(w, http.StatusForbidden, "접근 권한이 없습니다.")
		return
	}
	if exam.Status != model.ExamInProgress {
		writeDetail(w, http.StatusConflict, "이미 제출된 시험입니다.")
		return
	}
	rec, err := h.store.UpsertAnswer(in.ExamID, in.QuestionID, in.AnswerData)
	if err != nil {
		writeServerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) handleExamAnswers(w http.ResponseWriter, r *http.Request) {
	exam, ok := h.examForRequest(w, r)
	if !ok {
		return
	}
	answers, err := h.store.ListAnswers(exam.ID)
	if err != nil {
		writeServerError(w, err)
		return
	}
	if answers == nil {
		answers = []model.AnswerRecord{}
	}
	writeJSON(w, http.StatusOK, answers)
}

func (h *Handler) handleExamAnswer(w http.ResponseWriter, r *http.Request) {
	exam, ok := h.examForRequest(w, r)
	if !ok {
		return
	}
	qid, ok := idParam(r, "qid")
	if !ok {
		writeDetail(w, http.StatusBadRequest, "잘못된 요청입니다.")
		return
	}
	rec, err := h.store.GetAnswer(exam.ID, qid)
	if errors.Is(err, sql.ErrNoRows) {
		writeDetail(w, http.StatusNotFound, "저장된 답안이 없습니다.")
		return
	}
	if err != nil {
		writeServerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) handleAIGemini(w http.ResponseWriter, r *http.Request) {
	var in struct {
		ExamID     int64  `json:"exam_id"`
		QuestionID int64  `json:"question_id"`
		Prompt     string `json:"prompt"`
	}
	if !decodeBody(w, r, &in) {
		return
	}
	if strings.TrimSpace(in.Prompt) == "" {
		writeDetail(w, http.StatusBadRequest, "프롬프트를 입력해주세요.")
		return
	}
	response, err := h.ai.Respond(r.Context(), in.Prompt)
	if err != nil {
		slog.Error("AI call failed", "error", err)
		writeDetail(w, http.StatusBadGateway, "AI 응답을 받지 못했습니다.")
		return
	}
	if err := h.store.RecordAIUsage(in.ExamID, in.QuestionID, in.Prompt, response); err != nil {
		writeServerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"response": response})
}

func (h *Handler) handleAIUsage(w http.ResponseWriter, r *http.Request) {
	exam, ok := h.examForRequest(w, r)
	if !ok {
		return
	}
	usage, err := h.store.ListAIUsage(exam.ID)
	if err != nil {
		writeServerError(w, err)
		return
	}
	if usage == nil {
		usage = []model.AIUsage{}
	}
	writeJSON(w, http.StatusOK, usage)
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.Dashboard()
	if err != nil {
		writeServerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) handleAdminUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.ListUsers()
	if err != nil {
		writeServerError(w, err)
		return
	}
	if users == nil {
		users = []model.AdminUserRow{}
	}
	writeJSON(w, http.StatusOK, users)
}

func (h *Handler) handleAdminExams(w http.ResponseWriter, r *http.Request) {
	exams, err := h.store.ListExams()
	if err != nil {
		writeServerError(w, err)
		return
	}
	if exams == nil {
		exams = []model.Exam{}
	}
	writeJSON(w, http.StatusOK, exams)
}

func (h *Handler) handleAdminExamDetails(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		writeDetail(w, http.StatusBadRequest, "잘못된 요청입니다.")
		return
	}
	exam, err := h.store.GetExam(id)
	if errors.Is(err, sql.ErrNoRows) {
		writeDetail(w, http.StatusNotFound, "시험을 찾을 수 없습니다.")
		return
	}
	if err != nil {
		writeServerError(w, err)
		return
	}
	owner, err := h.store.GetUserByID(exam.UserID)
	if err != nil {
		writeServerError(w, err)
		return
	}
	answers, err := h.store.ListAnswers(exam.ID)
	if err != nil {
		writeServerError(w, err)
		return
	}
	details := model.ExamDetails{Exam: exam}
	if owner != nil {
		details.UserEmail = owner.Email
	}
	for _, a := range answers {
		q, err := h.store.GetQuestion(a.QuestionID)
		if err != nil {
			continue
		}
		details.Answers = append(details.Answers, model.GradedAnswer{Answer: a, Question: q})
	}
	writeJSON(w, http.StatusOK, details)
}

func (h *Handler) handleGradeAnswer(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		writeDetail(w, http.StatusBadRequest, "잘못된 요청입니다.")
		return
	}
	var in struct {
		Score    int    `json:"score"`
		Feedback string `json:"feedback"`
	}
	if !decodeBody(w, r, &in) {
		return
	}
	if err := h.store.GradeAnswer(id, in.Score, in.Feedback); err != nil {
		writeServerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "graded"})
}

func (h *Handler) handleGradeExam(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		writeDetail(w, http.StatusBadRequest, "잘못된 요청입니다.")
		return
	}
	var in struct {
		Score int `json:"score"`
	}
	if !decodeBody(w, r, &in) {
		return
	}
	if err := h.store.GradeExam(id, in.Score); err != nil {
		writeServerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "graded"})
}

func (h *Handler) handleAutoGenerate(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Type       model.QuestionType `json:"type"`
		Competency string             `json:"competency"`
		Topic      string             `json:"topic"`
		Points     int                `json:"points"`
	}
	if !decodeBody(w, r, &in) {
		return
	}
	if in.Points <= 0 {
		in.Points = 10
	}
	draft, err := h.ai.DraftQuestion(r.Context(), in.Type, in.Competency, in.Topic, in.Points)
	if err != nil {
		slog.Error("question draft failed", "error", err)
		writeDetail(w, http.StatusBadGateway, "문항 생성에 실패했습니다.")
		return
	}
	q := model.Question{
		Type:       draft.Type,
		Title:      draft.Title,
		Content:    draft.Content,
		Points:     draft.Points,
		Competency: draft.Competency,
		IsActive:   1,
		QContent: &model.QuestionContent{
			Scenario:     draft.Scenario,
			Requirements: draft.Requirements,
			Options:      draft.Options,
		},
	}
	writeJSON(w, http.StatusOK, q)
}
