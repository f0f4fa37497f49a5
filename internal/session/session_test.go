package session

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/kpcai/examfront/internal/api"
	"github.com/kpcai/examfront/internal/model"
)

// fakeBackend is a minimal in-memory stand-in for the REST backend. Each
// field guarded by mu; handlers count calls so tests can assert which
// endpoints were reached.
type fakeBackend struct {
	mu            sync.Mutex
	questions     []model.Question
	savedAnswers  []model.AnswerRecord
	answersStatus int // non-zero forces that status on the answers listing
	startTimer    int
	saveDelay     time.Duration
	saveStatus    int
	saveDetail    string
	timerStatus   int

	saveCalls   int
	timerCalls  int
	submitCalls int
	startCalls  int
}

func (b *fakeBackend) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/exams/start", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.startCalls++
		timer := b.startTimer
		b.mu.Unlock()
		if timer == 0 {
			timer = 9000
		}
		writeJSON(w, map[string]any{"id": 7, "status": "in_progress", "timer_remaining": timer})
	})
	mux.HandleFunc("GET /api/questions", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		writeJSON(w, b.questions)
	})
	mux.HandleFunc("GET /api/answers/exam/{id}", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.answersStatus != 0 {
			w.WriteHeader(b.answersStatus)
			writeJSON(w, map[string]string{"detail": "no answers"})
			return
		}
		writeJSON(w, b.savedAnswers)
	})
	mux.HandleFunc("POST /api/answers", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		delay := b.saveDelay
		status := b.saveStatus
		detail := b.saveDetail
		b.saveCalls++
		b.mu.Unlock()
		if delay > 0 {
			time.Sleep(delay)
		}
		if status != 0 {
			w.WriteHeader(status)
			writeJSON(w, map[string]string{"detail": detail})
			return
		}
		var in struct {
			ExamID     int64           `json:"exam_id"`
			QuestionID int64           `json:"question_id"`
			AnswerData json.RawMessage `json:"answer_data"`
		}
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		writeJSON(w, map[string]any{"id": 1, "exam_id": in.ExamID, "question_id": in.QuestionID})
	})
	mux.HandleFunc("PATCH /api/exams/{id}/timer", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.timerCalls++
		status := b.timerStatus
		b.mu.Unlock()
		if status != 0 {
			w.WriteHeader(status)
			return
		}
		writeJSON(w, map[string]any{"ok": true})
	})
	mux.HandleFunc("POST /api/exams/{id}/submit", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.submitCalls++
		b.mu.Unlock()
		writeJSON(w, map[string]any{"ok": true})
	})
	return mux
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func (b *fakeBackend) counts() (save, timer, submit int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.saveCalls, b.timerCalls, b.submitCalls
}

func question(id int64, number int, active int) model.Question {
	return model.Question{
		ID:             id,
		QuestionNumber: number,
		Type:           model.QuestionEssay,
		Title:          "Q" + strconv.FormatInt(id, 10),
		Content:        "content",
		Points:         10,
		IsActive:       active,
	}
}

func newTestSession(t *testing.T, b *fakeBackend) *Session {
	t.Helper()
	srv := httptest.NewServer(b.handler())
	t.Cleanup(srv.Close)
	return New(api.New(srv.URL))
}

func newTimeoutSession(t *testing.T, b *fakeBackend) *Session {
	t.Helper()
	srv := httptest.NewServer(b.handler())
	t.Cleanup(srv.Close)
	hc := &http.Client{Timeout: 50 * time.Millisecond}
	return New(api.New(srv.URL, api.WithHTTPClient(hc)))
}

func startExam(t *testing.T, s *Session) {
	t.Helper()
	if err := s.Start(t.Context()); err != nil {
		t.Fatalf("Start: %v", err)
	}
}

func sessionErr(t *testing.T, err error) *Error {
	t.Helper()
	var se *Error
	if !errors.As(err, &se) {
		t.Fatalf("expected session error, got %T: %v", err, err)
	}
	return se
}

func TestStartResetsState(t *testing.T) {
	b := &fakeBackend{
		questions:  []model.Question{question(1, 1, 1), question(2, 2, 1)},
		startTimer: 5400,
	}
	s := newTestSession(t, b)

	// Simulate leftovers from a previous attempt.
	s.SetAnswer(1, model.NewTextAnswer("stale draft", 0))
	s.RecordAIUse(1)
	s.RecordAIUse(1)

	startExam(t, s)

	if s.ExamID() != 7 {
		t.Errorf("expected exam id 7, got %d", s.ExamID())
	}
	if s.TimeRemaining() != 5400 {
		t.Errorf("expected server timer 5400, got %d", s.TimeRemaining())
	}
	if _, ok := s.AnswerFor(1); ok {
		t.Error("expected stale answer cleared on start")
	}
	if s.AIUsageCount(1) != 0 {
		t.Errorf("expected AI usage reset, got %d", s.AIUsageCount(1))
	}
	if s.HasUnsavedChanges() {
		t.Error("expected clean dirty flag after start")
	}
	if s.Finished() {
		t.Error("expected session not finished after start")
	}
}

func TestStartTwiceClearsFirstAttempt(t *testing.T) {
	b := &fakeBackend{questions: []model.Question{question(1, 1, 1)}}
	s := newTestSession(t, b)

	startExam(t, s)
	s.SetAnswer(1, model.NewTextAnswer("first attempt", 0))
	if err := s.SaveAnswer(t.Context(), 1); err != nil {
		t.Fatalf("SaveAnswer: %v", err)
	}
	if s.CompletedCount() != 1 {
		t.Fatalf("expected 1 completed, got %d", s.CompletedCount())
	}

	startExam(t, s)
	if s.CompletedCount() != 0 {
		t.Errorf("expected completion reset on restart, got %d", s.CompletedCount())
	}
	if _, ok := s.AnswerFor(1); ok {
		t.Error("expected cached answer cleared on restart")
	}
}

func TestLoadQuestionsFiltersAndSorts(t *testing.T) {
	q3 := question(3, 3, 1)
	q1 := question(1, 1, 1)
	inactive := question(2, 2, 0)
	// The catalog claims one question is already answered; a fresh exam must
	// not believe it.
	q3.IsAnswered = true

	b := &fakeBackend{
		questions:     []model.Question{q3, inactive, q1},
		answersStatus: http.StatusNotFound,
	}
	s := newTestSession(t, b)
	startExam(t, s)

	got := s.Questions()
	if len(got) != 2 {
		t.Fatalf("expected 2 active questions, got %d", len(got))
	}
	if got[0].ID != 1 || got[1].ID != 3 {
		t.Errorf("expected order [1 3], got [%d %d]", got[0].ID, got[1].ID)
	}
	for _, q := range got {
		if q.IsAnswered {
			t.Errorf("question %d marked answered without a saved answer", q.ID)
		}
	}
}

func TestLoadQuestionsReconcilesSavedAnswers(t *testing.T) {
	b := &fakeBackend{
		questions: []model.Question{question(1, 1, 1), question(2, 2, 1), question(3, 3, 1)},
		savedAnswers: []model.AnswerRecord{
			{ID: 10, ExamID: 7, QuestionID: 2},
		},
	}
	s := newTestSession(t, b)
	startExam(t, s)

	got := s.Questions()
	for _, q := range got {
		want := q.ID == 2
		if q.IsAnswered != want {
			t.Errorf("question %d: answered=%v, want %v", q.ID, q.IsAnswered, want)
		}
	}
	if s.CompletedCount() != 1 {
		t.Errorf("expected 1 completed, got %d", s.CompletedCount())
	}
}

func TestSaveAnswerBeforeStart(t *testing.T) {
	b := &fakeBackend{}
	s := newTestSession(t, b)
	s.SetAnswer(1, model.NewTextAnswer("draft", 0))

	err := s.SaveAnswer(t.Context(), 1)
	se := sessionErr(t, err)
	if se.Kind != KindValidation {
		t.Errorf("expected validation kind, got %d", se.Kind)
	}
	if se.Message != "시험이 시작되지 않았습니다." {
		t.Errorf("unexpected message %q", se.Message)
	}
	if save, _, _ := b.counts(); save != 0 {
		t.Errorf("expected no save request, got %d", save)
	}
}

func TestSaveAnswerRejectsEmpty(t *testing.T) {
	b := &fakeBackend{questions: []model.Question{question(1, 1, 1)}}
	s := newTestSession(t, b)
	startExam(t, s)

	tests := []struct {
		name   string
		answer model.Answer
		cached bool
	}{
		{"never set", model.Answer{}, false},
		{"empty text", model.NewTextAnswer("", 0), true},
		{"blank sections", model.NewSectionsAnswer("  ", "\n"), true},
		{"nil choice", model.Answer{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.cached {
				s.SetAnswer(1, tt.answer)
			}
			err := s.SaveAnswer(t.Context(), 1)
			se := sessionErr(t, err)
			if se.Kind != KindValidation {
				t.Errorf("expected validation kind, got %d", se.Kind)
			}
			if se.Message != "답안이 비어있습니다." {
				t.Errorf("unexpected message %q", se.Message)
			}
		})
	}

	if save, _, _ := b.counts(); save != 0 {
		t.Errorf("rejected answers must not reach the network, got %d saves", save)
	}
}

// Only the exact empty string counts as an empty text answer; whitespace-only
// text is persisted as typed.
func TestSaveAnswerKeepsWhitespaceText(t *testing.T) {
	b := &fakeBackend{questions: []model.Question{question(1, 1, 1)}}
	s := newTestSession(t, b)
	startExam(t, s)

	s.SetAnswer(1, model.NewTextAnswer("   ", 0))
	if err := s.SaveAnswer(t.Context(), 1); err != nil {
		t.Fatalf("SaveAnswer: %v", err)
	}
	if save, _, _ := b.counts(); save != 1 {
		t.Errorf("expected 1 save request, got %d", save)
	}
}

func TestSaveAnswerMarksAnswered(t *testing.T) {
	b := &fakeBackend{questions: []model.Question{question(1, 1, 1), question(2, 2, 1)}}
	s := newTestSession(t, b)
	startExam(t, s)

	s.SetAnswer(1, model.NewChoiceAnswer(2))
	if !s.HasUnsavedChanges() {
		t.Fatal("expected dirty flag after SetAnswer")
	}
	if err := s.SaveAnswer(t.Context(), 1); err != nil {
		t.Fatalf("SaveAnswer: %v", err)
	}
	if s.HasUnsavedChanges() {
		t.Error("expected dirty flag cleared after acknowledged save")
	}

	for _, q := range s.Questions() {
		want := q.ID == 1
		if q.IsAnswered != want {
			t.Errorf("question %d: answered=%v, want %v", q.ID, q.IsAnswered, want)
		}
	}

	// Saving again is idempotent: the server upserts and local state is
	// unchanged.
	if err := s.SaveAnswer(t.Context(), 1); err != nil {
		t.Fatalf("second SaveAnswer: %v", err)
	}
	if s.CompletedCount() != 1 {
		t.Errorf("expected 1 completed after repeat save, got %d", s.CompletedCount())
	}
	if save, _, _ := b.counts(); save != 2 {
		t.Errorf("expected 2 save requests, got %d", save)
	}
}

func TestSaveAnswerTimeout(t *testing.T) {
	b := &fakeBackend{
		questions: []model.Question{question(1, 1, 1)},
		saveDelay: 300 * time.Millisecond,
	}
	s := newTimeoutSession(t, b)
	startExam(t, s)

	s.SetAnswer(1, model.NewTextAnswer("slow network", 0))
	err := s.SaveAnswer(t.Context(), 1)
	se := sessionErr(t, err)
	if se.Kind != KindTimeout {
		t.Fatalf("expected timeout kind, got %d (%v)", se.Kind, err)
	}
	if se.Message != "서버 응답 시간이 초과되었습니다. 네트워크 연결을 확인하고 다시 시도해주세요." {
		t.Errorf("unexpected message %q", se.Message)
	}

	// Failure leaves local state untouched so the retry is identical.
	if !s.HasUnsavedChanges() {
		t.Error("expected dirty flag kept after failed save")
	}
	for _, q := range s.Questions() {
		if q.IsAnswered {
			t.Errorf("question %d marked answered without acknowledgement", q.ID)
		}
	}
}

func TestSaveAnswerServerDetail(t *testing.T) {
	b := &fakeBackend{
		questions:  []model.Question{question(1, 1, 1)},
		saveStatus: http.StatusConflict,
		saveDetail: "이미 제출된 시험입니다.",
	}
	s := newTestSession(t, b)
	startExam(t, s)

	s.SetAnswer(1, model.NewTextAnswer("draft", 0))
	err := s.SaveAnswer(t.Context(), 1)
	se := sessionErr(t, err)
	if se.Kind != KindServer {
		t.Errorf("expected server kind, got %d", se.Kind)
	}
	if se.Message != "이미 제출된 시험입니다." {
		t.Errorf("expected server detail surfaced verbatim, got %q", se.Message)
	}
}

// A 401 on save must stay detectable through the session error wrap so the
// web layer can tear down the stale credentials.
func TestSaveAnswerSurfacesUnauthorized(t *testing.T) {
	b := &fakeBackend{
		questions:  []model.Question{question(1, 1, 1)},
		saveStatus: http.StatusUnauthorized,
		saveDetail: "인증이 만료되었습니다.",
	}
	s := newTestSession(t, b)
	startExam(t, s)

	s.SetAnswer(1, model.NewTextAnswer("draft", 0))
	err := s.SaveAnswer(t.Context(), 1)
	se := sessionErr(t, err)
	if se.Kind != KindServer {
		t.Errorf("expected server kind, got %d", se.Kind)
	}
	if !api.IsUnauthorized(err) {
		t.Error("expected IsUnauthorized to see through the session error")
	}
}

func TestDecrementTimerFloorsAtZero(t *testing.T) {
	s := New(api.New("http://backend.invalid"))
	s.timeRemaining = 2
	if got := s.DecrementTimer(); got != 1 {
		t.Errorf("expected 1, got %d", got)
	}
	if got := s.DecrementTimer(); got != 0 {
		t.Errorf("expected 0, got %d", got)
	}
	if got := s.DecrementTimer(); got != 0 {
		t.Errorf("expected floor at 0, got %d", got)
	}
}

func TestSyncTimerFailureIsSwallowed(t *testing.T) {
	b := &fakeBackend{
		questions:   []model.Question{question(1, 1, 1)},
		timerStatus: http.StatusInternalServerError,
	}
	s := newTestSession(t, b)
	startExam(t, s)

	remaining := s.TimeRemaining()
	s.SyncTimer(t.Context())
	if s.TimeRemaining() != remaining {
		t.Errorf("sync failure must not change the local countdown")
	}
	if _, timer, _ := b.counts(); timer != 1 {
		t.Errorf("expected 1 timer request, got %d", timer)
	}
}

func TestSubmit(t *testing.T) {
	b := &fakeBackend{questions: []model.Question{question(1, 1, 1)}}
	s := newTestSession(t, b)

	err := s.Submit(t.Context())
	se := sessionErr(t, err)
	if se.Message != "시험이 시작되지 않았습니다." {
		t.Errorf("unexpected message %q", se.Message)
	}

	startExam(t, s)
	if err := s.Submit(t.Context()); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !s.Finished() {
		t.Error("expected session finished after submit")
	}
	if _, _, submit := b.counts(); submit != 1 {
		t.Errorf("expected 1 submit request, got %d", submit)
	}
}

func TestGoToQuestion(t *testing.T) {
	b := &fakeBackend{questions: []model.Question{question(1, 1, 1), question(2, 2, 1)}}
	s := newTestSession(t, b)
	startExam(t, s)

	s.SetAnswer(1, model.NewTextAnswer("draft", 0))
	s.GoToQuestion(1, false)
	if s.CurrentIndex() != 1 {
		t.Errorf("expected index 1, got %d", s.CurrentIndex())
	}
	if s.HasUnsavedChanges() {
		t.Error("expected dirty flag cleared by navigation")
	}

	// force has the same state effect.
	s.SetAnswer(2, model.NewTextAnswer("draft", 0))
	s.GoToQuestion(0, true)
	if s.CurrentIndex() != 0 {
		t.Errorf("expected index 0, got %d", s.CurrentIndex())
	}
	if s.HasUnsavedChanges() {
		t.Error("expected dirty flag cleared by forced navigation")
	}

	// Out-of-range targets leave the index alone.
	s.GoToQuestion(5, false)
	if s.CurrentIndex() != 0 {
		t.Errorf("expected index unchanged for out-of-range, got %d", s.CurrentIndex())
	}
}

func TestRunClockAutoSubmitsOnTimeout(t *testing.T) {
	b := &fakeBackend{
		questions:  []model.Question{question(1, 1, 1)},
		startTimer: 1,
	}
	s := newTestSession(t, b)
	startExam(t, s)

	go s.RunClock(t.Context())

	deadline := time.After(5 * time.Second)
	for !s.Finished() {
		select {
		case <-deadline:
			t.Fatal("clock did not finish the session after timeout")
		case <-time.After(50 * time.Millisecond):
		}
	}

	if s.TimeRemaining() != 0 {
		t.Errorf("expected timer at 0, got %d", s.TimeRemaining())
	}
	_, timer, submit := b.counts()
	if submit != 1 {
		t.Errorf("expected 1 auto-submit, got %d", submit)
	}
	if timer == 0 {
		t.Error("expected a final timer sync before auto-submit")
	}
}
