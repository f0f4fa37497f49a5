package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kpcai/examfront/internal/api"
	"github.com/kpcai/examfront/internal/handler/views"
	"github.com/kpcai/examfront/internal/model"
)

func (h *Handler) handleAdminDashboard(w http.ResponseWriter, r *http.Request) {
	stats, err := h.client.Dashboard(r.Context())
	if err != nil {
		if h.unauthorized(w, r, err) {
			return
		}
		slog.Error("failed to load dashboard", "error", err)
		http.Error(w, api.Detail(err, "dashboard unavailable"), http.StatusBadGateway)
		return
	}
	h.render(w, r, views.AdminDashboardPage(stats))
}

func (h *Handler) handleAdminUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.client.AdminUsers(r.Context())
	if err != nil {
		if h.unauthorized(w, r, err) {
			return
		}
		slog.Error("failed to list users", "error", err)
		http.Error(w, api.Detail(err, "users unavailable"), http.StatusBadGateway)
		return
	}
	h.render(w, r, views.AdminUsersPage(users))
}

func (h *Handler) handleAdminQuestions(w http.ResponseWriter, r *http.Request) {
	includeInactive := r.URL.Query().Get("include_inactive") == "1"
	questions, err := h.client.Questions(r.Context(), includeInactive)
	if err != nil {
		if h.unauthorized(w, r, err) {
			return
		}
		slog.Error("failed to list questions", "error", err)
		http.Error(w, api.Detail(err, "questions unavailable"), http.StatusBadGateway)
		return
	}
	h.render(w, r, views.AdminQuestionsPage(questions, includeInactive))
}

func (h *Handler) handleQuestionNew(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, views.QuestionFormPage(nil, ""))
}

func (h *Handler) handleQuestionEdit(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid question ID", http.StatusBadRequest)
		return
	}
	q, err := h.client.Question(r.Context(), id)
	if err != nil {
		if h.unauthorized(w, r, err) {
			return
		}
		slog.Error("failed to load question", "id", id, "error", err)
		http.Error(w, api.Detail(err, "question unavailable"), http.StatusBadGateway)
		return
	}
	h.render(w, r, views.QuestionFormPage(q, ""))
}

func (h *Handler) handleQuestionCreate(w http.ResponseWriter, r *http.Request) {
	in := questionCreateFromForm(r)
	if _, err := h.client.CreateQuestion(r.Context(), in); err != nil {
		if h.unauthorized(w, r, err) {
			return
		}
		slog.Error("failed to create question", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		h.render(w, r, views.QuestionFormPage(nil, api.Detail(err, "문항 저장에 실패했습니다.")))
		return
	}
	http.Redirect(w, r, h.path("/admin/questions"), http.StatusSeeOther)
}

func (h *Handler) handleQuestionUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid question ID", http.StatusBadRequest)
		return
	}
	in := questionCreateFromForm(r)
	if _, err := h.client.UpdateQuestion(r.Context(), id, in); err != nil {
		if h.unauthorized(w, r, err) {
			return
		}
		slog.Error("failed to update question", "id", id, "error", err)
		q, _ := h.client.Question(r.Context(), id)
		w.WriteHeader(http.StatusBadRequest)
		h.render(w, r, views.QuestionFormPage(q, api.Detail(err, "문항 저장에 실패했습니다.")))
		return
	}
	http.Redirect(w, r, h.path("/admin/questions"), http.StatusSeeOther)
}

func (h *Handler) handleQuestionDelete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid question ID", http.StatusBadRequest)
		return
	}
	if err := h.client.DeleteQuestion(r.Context(), id); err != nil {
		if h.unauthorized(w, r, err) {
			return
		}
		slog.Error("failed to delete question", "id", id, "error", err)
		http.Error(w, api.Detail(err, "delete failed"), http.StatusBadGateway)
		return
	}
	http.Redirect(w, r, h.path("/admin/questions"), http.StatusSeeOther)
}

func (h *Handler) handleQuestionAutoGenerate(w http.ResponseWriter, r *http.Request) {
	points, _ := strconv.Atoi(r.FormValue("points"))
	params := api.AutoGenerateParams{
		Type:       model.QuestionType(r.FormValue("type")),
		Competency: r.FormValue("competency"),
		Topic:      r.FormValue("topic"),
		Points:     points,
	}
	q, err := h.client.AutoGenerateQuestion(r.Context(), params)
	if err != nil {
		if h.unauthorized(w, r, err) {
			return
		}
		slog.Error("auto-generate failed", "error", err)
		w.WriteHeader(http.StatusBadGateway)
		h.render(w, r, views.QuestionFormPage(nil, api.Detail(err, "문항 생성에 실패했습니다.")))
		return
	}
	// Present the draft in the editor for review; nothing is published until
	// the admin saves it.
	h.render(w, r, views.QuestionFormPage(q, ""))
}

func (h *Handler) handleAdminExams(w http.ResponseWriter, r *http.Request) {
	exams, err := h.client.AdminExams(r.Context())
	if err != nil {
		if h.unauthorized(w, r, err) {
			return
		}
		slog.Error("failed to list exams", "error", err)
		http.Error(w, api.Detail(err, "exams unavailable"), http.StatusBadGateway)
		return
	}
	h.render(w, r, views.AdminExamsPage(exams))
}

func (h *Handler) handleAdminExamDetails(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid exam ID", http.StatusBadRequest)
		return
	}
	details, err := h.client.AdminExamDetails(r.Context(), id)
	if err != nil {
		if h.unauthorized(w, r, err) {
			return
		}
		slog.Error("failed to load exam details", "id", id, "error", err)
		http.Error(w, api.Detail(err, "exam unavailable"), http.StatusBadGateway)
		return
	}
	h.render(w, r, views.AdminExamDetailsPage(details))
}

func (h *Handler) handleGradeAnswer(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid answer ID", http.StatusBadRequest)
		return
	}
	score, err := strconv.Atoi(r.FormValue("score"))
	if err != nil {
		http.Error(w, "invalid score", http.StatusBadRequest)
		return
	}
	if err := h.client.GradeAnswer(r.Context(), id, score, r.FormValue("feedback")); err != nil {
		if h.unauthorized(w, r, err) {
			return
		}
		slog.Error("failed to grade answer", "id", id, "error", err)
		http.Error(w, api.Detail(err, "grading failed"), http.StatusBadGateway)
		return
	}
	http.Redirect(w, r, h.path("/admin/exams/"+r.FormValue("exam_id")), http.StatusSeeOther)
}

func (h *Handler) handleGradeExam(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid exam ID", http.StatusBadRequest)
		return
	}
	score, err := strconv.Atoi(r.FormValue("score"))
	if err != nil {
		http.Error(w, "invalid score", http.StatusBadRequest)
		return
	}
	if err := h.client.GradeExam(r.Context(), id, score); err != nil {
		if h.unauthorized(w, r, err) {
			return
		}
		slog.Error("failed to grade exam", "id", id, "error", err)
		http.Error(w, api.Detail(err, "grading failed"), http.StatusBadGateway)
		return
	}
	http.Redirect(w, r, h.path("/admin/exams/"+chi.URLParam(r, "id")), http.StatusSeeOther)
}

func questionCreateFromForm(r *http.Request) model.QuestionCreate {
	number, _ := strconv.Atoi(r.FormValue("question_number"))
	points, _ := strconv.Atoi(r.FormValue("points"))

	in := model.QuestionCreate{
		QuestionNumber: number,
		Type:           model.QuestionType(r.FormValue("type")),
		Title:          r.FormValue("title"),
		Content:        r.FormValue("content"),
		Points:         points,
		Competency:     r.FormValue("competency"),
		Scenario:       r.FormValue("scenario"),
	}

	if tl, err := strconv.Atoi(r.FormValue("time_limit")); err == nil && tl > 0 {
		in.TimeLimit = &tl
	}

	// One requirement per line.
	for _, line := range strings.Split(r.FormValue("requirements"), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			in.Requirements = append(in.Requirements, line)
		}
	}

	if ref := strings.TrimSpace(r.FormValue("reference_materials")); ref != "" {
		if data, err := json.Marshal(ref); err == nil {
			in.ReferenceMaterials = data
		}
	}

	for _, text := range r.Form["option_text"] {
		if strings.TrimSpace(text) != "" {
			in.Options = append(in.Options, model.ChoiceOption{Text: text})
		}
	}

	return in
}
