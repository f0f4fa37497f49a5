package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kpcai/examfront/internal/api"
	"github.com/kpcai/examfront/internal/handler/views"
	"github.com/kpcai/examfront/internal/i18n"
	"github.com/kpcai/examfront/internal/model"
	"github.com/kpcai/examfront/internal/promptguard"
	"github.com/kpcai/examfront/internal/session"
)

func (h *Handler) handleHome(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	sess := h.sessions.Get(h.token(r))
	inProgress := sess != nil && sess.ExamID() != 0 && !sess.Finished()

	// Redirects that bounced the user here carry a notice code in the query.
	var notice string
	if r.URL.Query().Get("notice") == "forbidden" {
		notice = i18n.T(r.Context(), "AdminOnly")
	}
	h.render(w, r, views.HomePage(user, inProgress, notice))
}

func (h *Handler) handleStartExam(w http.ResponseWriter, r *http.Request) {
	token := h.token(r)
	sess := h.sessions.Begin(token)

	if err := sess.Start(r.Context()); err != nil {
		if h.unauthorized(w, r, err) {
			return
		}
		slog.Error("exam start failed", "error", err)
		h.renderExamError(w, r, err, "시험 시작에 실패했습니다.")
		return
	}
	if len(sess.Questions()) == 0 {
		h.renderExamError(w, r, nil, "출제된 문항이 없습니다.")
		return
	}

	h.sessions.StartClock(token)
	slog.Info("exam started", "exam_id", sess.ExamID(), "questions", len(sess.Questions()))
	h.redirect(w, r, "/exam/questions/1")
}

func (h *Handler) handleExamRedirect(w http.ResponseWriter, r *http.Request) {
	sess := h.sessions.Get(h.token(r))
	if sess == nil || sess.ExamID() == 0 {
		h.redirect(w, r, "/")
		return
	}
	h.redirect(w, r, "/exam/questions/"+strconv.Itoa(sess.CurrentIndex()+1))
}

// examSession returns the live session, or redirects home when there is none.
func (h *Handler) examSession(w http.ResponseWriter, r *http.Request) *session.Session {
	sess := h.sessions.Get(h.token(r))
	if sess == nil || sess.ExamID() == 0 {
		h.redirect(w, r, "/")
		return nil
	}
	return sess
}

func (h *Handler) handleQuestionPage(w http.ResponseWriter, r *http.Request) {
	sess := h.examSession(w, r)
	if sess == nil {
		return
	}
	if sess.Finished() {
		h.redirect(w, r, "/exam/result")
		return
	}

	num, err := strconv.Atoi(chi.URLParam(r, "num"))
	questions := sess.Questions()
	if err != nil || num < 1 || num > len(questions) {
		http.NotFound(w, r)
		return
	}
	index := num - 1
	force := r.URL.Query().Get("force") == "1"

	// Moving away from a question with unsaved edits needs explicit
	// confirmation; the dialog links back here with force=1.
	if sess.HasUnsavedChanges() && index != sess.CurrentIndex() && !force {
		h.render(w, r, views.UnsavedChangesDialog(num))
		return
	}

	sess.GoToQuestion(index, force)
	q := questions[index]
	answer, _ := sess.AnswerFor(q.ID)
	data := views.ExamData{
		Question:      q,
		Number:        num,
		Total:         len(questions),
		Questions:     questions,
		Answer:        answer,
		TimeRemaining: sess.TimeRemaining(),
		Completed:     sess.CompletedCount(),
		AIUsed:        sess.AIUsageCount(q.ID),
		AILimit:       h.config.AIUsageLimit,
	}
	h.render(w, r, views.ExamPage(data))
}

func (h *Handler) handleSetAnswer(w http.ResponseWriter, r *http.Request) {
	sess, q := h.questionFromForm(w, r)
	if sess == nil {
		return
	}
	sess.SetAnswer(q.ID, h.answerFromForm(r, q, sess.AIUsageCount(q.ID)))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleSaveAnswer(w http.ResponseWriter, r *http.Request) {
	sess, q := h.questionFromForm(w, r)
	if sess == nil {
		return
	}
	sess.SetAnswer(q.ID, h.answerFromForm(r, q, sess.AIUsageCount(q.ID)))

	if err := sess.SaveAnswer(r.Context(), q.ID); err != nil {
		if h.unauthorized(w, r, err) {
			return
		}
		var sessErr *session.Error
		msg := "답안 저장에 실패했습니다."
		if errors.As(err, &sessErr) {
			msg = sessErr.Message
		}
		h.render(w, r, views.SaveResult(false, msg))
		return
	}

	// Piggyback a timer sync on every successful save.
	sess.SyncTimer(r.Context())
	h.render(w, r, views.SaveResult(true, ""))
}

func (h *Handler) handleAIAssist(w http.ResponseWriter, r *http.Request) {
	sess, q := h.questionFromForm(w, r)
	if sess == nil {
		return
	}

	used := sess.AIUsageCount(q.ID)
	if used >= h.config.AIUsageLimit {
		h.render(w, r, views.AIResult("", "", used, h.config.AIUsageLimit,
			"AI 사용 횟수를 모두 사용했습니다."))
		return
	}

	prompt := r.FormValue("prompt")
	if res := promptguard.Validate(prompt, q.Content, q.Scenario()); !res.Valid {
		h.render(w, r, views.AIResult(prompt, "", used, h.config.AIUsageLimit, res.Reason))
		return
	}

	response, err := h.client.AIGemini(r.Context(), sess.ExamID(), q.ID, prompt, nil)
	if err != nil {
		if h.unauthorized(w, r, err) {
			return
		}
		slog.Error("AI assist failed", "question_id", q.ID, "error", err)
		h.render(w, r, views.AIResult(prompt, "", used, h.config.AIUsageLimit,
			api.Detail(err, "AI 요청에 실패했습니다.")))
		return
	}

	used = sess.RecordAIUse(q.ID)
	h.render(w, r, views.AIResult(prompt, response, used, h.config.AIUsageLimit, ""))
}

func (h *Handler) handleTimer(w http.ResponseWriter, r *http.Request) {
	sess := h.sessions.Get(h.token(r))
	if sess == nil || sess.ExamID() == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if sess.Finished() {
		w.Header().Set("HX-Redirect", h.path("/exam/result"))
		w.WriteHeader(http.StatusOK)
		return
	}
	h.render(w, r, views.TimerBadge(sess.TimeRemaining()))
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	sess := h.examSession(w, r)
	if sess == nil {
		return
	}
	if err := sess.Submit(r.Context()); err != nil {
		if h.unauthorized(w, r, err) {
			return
		}
		var sessErr *session.Error
		msg := "시험 제출에 실패했습니다."
		if errors.As(err, &sessErr) {
			msg = sessErr.Message
		}
		h.render(w, r, views.SaveResult(false, msg))
		return
	}
	slog.Info("exam submitted", "exam_id", sess.ExamID())
	h.redirect(w, r, "/exam/result")
}

func (h *Handler) handleResult(w http.ResponseWriter, r *http.Request) {
	sess := h.examSession(w, r)
	if sess == nil {
		return
	}
	result, err := sess.FetchResult(r.Context(), sess.ExamID())
	if err != nil {
		if h.unauthorized(w, r, err) {
			return
		}
		if api.IsNotFound(err) {
			// Not graded yet.
			h.render(w, r, views.ResultPage(nil))
			return
		}
		slog.Error("result fetch failed", "exam_id", sess.ExamID(), "error", err)
		h.render(w, r, views.ResultPage(nil))
		return
	}
	h.render(w, r, views.ResultPage(result))
}

// questionFromForm resolves the routed display number to a question of the
// live session.
func (h *Handler) questionFromForm(w http.ResponseWriter, r *http.Request) (*session.Session, *model.Question) {
	sess := h.examSession(w, r)
	if sess == nil {
		return nil, nil
	}
	num, err := strconv.Atoi(chi.URLParam(r, "num"))
	questions := sess.Questions()
	if err != nil || num < 1 || num > len(questions) {
		http.NotFound(w, r)
		return nil, nil
	}
	return sess, &questions[num-1]
}

// answerFromForm decodes the posted form into the answer shape the question
// type saves.
func (h *Handler) answerFromForm(r *http.Request, q *model.Question, aiUsed int) model.Answer {
	if err := r.ParseForm(); err != nil {
		slog.Warn("bad answer form", "question_id", q.ID, "error", err)
	}

	switch q.RenderType() {
	case model.QuestionMultipleChoice:
		option, err := strconv.Atoi(r.FormValue("option"))
		if err != nil || option < 1 {
			return model.Answer{Kind: model.AnswerChoice}
		}
		return model.NewChoiceAnswer(option)
	case model.QuestionPractical:
		return model.NewSectionsAnswer(r.FormValue("section1"), r.FormValue("section2"))
	case model.QuestionEthicalReview:
		return model.NewEthicsAnswer(r.FormValue("section1"), r.FormValue("section2"), r.FormValue("section3"))
	case model.QuestionFactChecking:
		claims := r.Form["claim"]
		results := r.Form["result"]
		sources := r.Form["source"]
		notes := r.Form["note"]
		rows := make([]model.Verification, len(claims))
		for i := range claims {
			rows[i].Claim = claims[i]
			if i < len(results) {
				rows[i].Result = results[i]
			}
			if i < len(sources) {
				rows[i].Source = sources[i]
			}
			if i < len(notes) {
				rows[i].Note = notes[i]
			}
		}
		return model.NewVerificationAnswer(rows, r.FormValue("analysis"))
	default:
		return model.NewTextAnswer(r.FormValue("answer_text"), aiUsed)
	}
}

func (h *Handler) renderExamError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	msg := fallback
	var sessErr *session.Error
	if errors.As(err, &sessErr) {
		msg = sessErr.Message
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusBadGateway)
	if renderErr := views.HomeError(msg).Render(r.Context(), w); renderErr != nil {
		slog.Error("render error", "error", renderErr)
	}
}
