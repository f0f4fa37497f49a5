// Package session holds the client-side state of one exam attempt: the
// question snapshot, the per-question answer cache, the countdown, and the
// dirty flag. A Session is constructed per exam with an injected API client;
// no two exams ever share an instance. All durable state stays behind the
// REST backend — the cache here is never authoritative for completion.
package session

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/kpcai/examfront/internal/api"
	"github.com/kpcai/examfront/internal/model"
)

// defaultTimeRemaining is the countdown shown before the server's
// authoritative timer arrives with the started exam.
const defaultTimeRemaining = 9000

// ErrorKind classifies session failures for the shell's error handling.
type ErrorKind int

const (
	// KindValidation is a user-correctable problem caught before any
	// network call.
	KindValidation ErrorKind = iota
	// KindTimeout is a network request that aborted on deadline; the UI
	// shows a distinct retry message.
	KindTimeout
	// KindServer is any other rejected or failed backend call.
	KindServer
)

// Error carries a user-facing message for every session failure. Write paths
// never swallow errors; retrying is always the caller's decision.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Err }

func validationError(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg}
}

func serverError(err error, fallback string) *Error {
	return &Error{Kind: KindServer, Message: api.Detail(err, fallback), Err: err}
}

const timeoutMessage = "서버 응답 시간이 초과되었습니다. 네트워크 연결을 확인하고 다시 시도해주세요."

// Session is the client-held exam state. All mutation goes through its
// methods; the mutex makes it a single-writer store.
type Session struct {
	client *api.Client

	mu            sync.Mutex
	examID        int64 // 0 until the server assigns one
	questions     []model.Question
	current       int
	answers       map[int64]model.Answer
	timeRemaining int
	aiUsage       map[int64]int
	hasUnsaved    bool
	loading       bool
	finished      bool
	result        *model.ExamResult
}

// New creates an empty session bound to the given backend client.
func New(client *api.Client) *Session {
	return &Session{
		client:        client,
		answers:       make(map[int64]model.Answer),
		aiUsage:       make(map[int64]int),
		timeRemaining: defaultTimeRemaining,
	}
}

// Start requests a new exam from the server. It first clears every piece of
// local state so nothing leaks from a previous attempt, then stores the
// assigned exam id and authoritative timer and loads the question snapshot.
// A rejected start is surfaced to the caller; it is never retried here.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	s.loading = true
	s.examID = 0
	s.questions = nil
	s.answers = make(map[int64]model.Answer)
	s.aiUsage = make(map[int64]int)
	s.current = 0
	s.hasUnsaved = false
	s.finished = false
	s.result = nil
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.loading = false
		s.mu.Unlock()
	}()

	exam, err := s.client.StartExam(ctx)
	if err != nil {
		return serverError(err, "시험 시작에 실패했습니다.")
	}

	s.mu.Lock()
	s.examID = exam.ID
	s.timeRemaining = exam.TimerRemaining
	s.mu.Unlock()

	return s.LoadQuestions(ctx)
}

// LoadQuestions fetches the catalog, keeps only active questions sorted by
// authoring number, and resets every answered flag before reconciling with
// the answers saved for the current exam id. The double reset keeps a stale
// or shared endpoint from carrying completion state over from an earlier
// attempt. Loading "no answers yet" is an expected empty state, not an error.
func (s *Session) LoadQuestions(ctx context.Context) error {
	s.mu.Lock()
	examID := s.examID
	s.mu.Unlock()

	all, err := s.client.Questions(ctx, false)
	if err != nil {
		return serverError(err, "문항을 불러오는데 실패했습니다.")
	}

	active := make([]model.Question, 0, len(all))
	for _, q := range all {
		if q.IsActive == 1 {
			q.IsAnswered = false
			active = append(active, q)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		return active[i].QuestionNumber < active[j].QuestionNumber
	})

	if examID != 0 {
		saved, err := s.client.ExamAnswers(ctx, examID)
		if err != nil {
			slog.Info("no saved answers for exam", "exam_id", examID)
		} else {
			answered := make(map[int64]bool, len(saved))
			for _, a := range saved {
				answered[a.QuestionID] = true
			}
			for i := range active {
				active[i].IsAnswered = answered[active[i].ID]
			}
		}
	}

	s.mu.Lock()
	s.questions = active
	s.mu.Unlock()
	return nil
}

// SetAnswer replaces the cached answer for a question and marks the session
// dirty. Purely local; this is the only path used while the candidate is
// typing or selecting.
func (s *Session) SetAnswer(questionID int64, answer model.Answer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.answers[questionID] = answer
	s.hasUnsaved = true
}

// SaveAnswer commits the cached answer for a question. Validation failures
// never reach the network. On acknowledgement the question is marked
// answered and the dirty flag clears; on any failure local state is left
// untouched so an identical retry is safe.
func (s *Session) SaveAnswer(ctx context.Context, questionID int64) error {
	s.mu.Lock()
	examID := s.examID
	answer, ok := s.answers[questionID]
	s.mu.Unlock()

	if examID == 0 {
		return validationError("시험이 시작되지 않았습니다.")
	}
	if !ok || answer.Empty() {
		return validationError("답안이 비어있습니다.")
	}

	if _, err := s.client.SaveAnswer(ctx, examID, questionID, answer); err != nil {
		if api.IsTimeout(err) {
			return &Error{Kind: KindTimeout, Message: timeoutMessage, Err: err}
		}
		return serverError(err, "답안 저장에 실패했습니다.")
	}

	s.mu.Lock()
	for i := range s.questions {
		if s.questions[i].ID == questionID {
			s.questions[i].IsAnswered = true
		}
	}
	s.hasUnsaved = false
	s.mu.Unlock()
	return nil
}

// DecrementTimer ticks the countdown down one second, floor-clamped at zero.
// It returns the remaining time.
func (s *Session) DecrementTimer() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timeRemaining > 0 {
		s.timeRemaining--
	}
	return s.timeRemaining
}

// SyncTimer reconciles the server's copy of the remaining time. Failure is
// logged and otherwise ignored: the countdown keeps running locally and the
// next tick retries.
func (s *Session) SyncTimer(ctx context.Context) {
	s.mu.Lock()
	examID := s.examID
	remaining := s.timeRemaining
	s.mu.Unlock()

	if examID == 0 {
		return
	}
	if err := s.client.UpdateTimer(ctx, examID, remaining); err != nil {
		slog.Warn("failed to sync timer", "exam_id", examID, "error", err)
	}
}

// Submit finalizes the exam server-side. On success the session is terminal;
// no further local mutation is meaningful.
func (s *Session) Submit(ctx context.Context) error {
	s.mu.Lock()
	examID := s.examID
	s.mu.Unlock()

	if examID == 0 {
		return validationError("시험이 시작되지 않았습니다.")
	}
	if err := s.client.SubmitExam(ctx, examID); err != nil {
		return serverError(err, "시험 제출에 실패했습니다.")
	}

	s.mu.Lock()
	s.finished = true
	s.mu.Unlock()
	return nil
}

// GoToQuestion moves the navigation index and always clears the dirty flag.
// force records that the caller explicitly discarded unsaved edits; the
// state effect is identical either way — the flag only sequences the
// caller's confirmation UX.
func (s *Session) GoToQuestion(index int, force bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index >= 0 && index < len(s.questions) {
		s.current = index
	}
	s.hasUnsaved = false
}

// AIUsageCount returns how many AI-assist calls were made for a question.
func (s *Session) AIUsageCount(questionID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.aiUsage[questionID]
}

// RecordAIUse increments the per-question AI-assist counter and returns the
// new count. The cap is enforced by the renderers.
func (s *Session) RecordAIUse(questionID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aiUsage[questionID]++
	return s.aiUsage[questionID]
}

// FetchResult loads the graded outcome of an exam.
func (s *Session) FetchResult(ctx context.Context, examID int64) (*model.ExamResult, error) {
	result, err := s.client.ExamResult(ctx, examID)
	if err != nil {
		return nil, serverError(err, "시험 결과를 불러오는데 실패했습니다.")
	}
	s.mu.Lock()
	s.result = result
	s.mu.Unlock()
	return result, nil
}

// ExamID returns the server-assigned exam id, or 0 before Start.
func (s *Session) ExamID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.examID
}

// Questions returns a copy of the active question snapshot in display order.
func (s *Session) Questions() []model.Question {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Question, len(s.questions))
	copy(out, s.questions)
	return out
}

// CurrentIndex returns the 0-based navigation index.
func (s *Session) CurrentIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// CurrentQuestion returns the question at the navigation index.
func (s *Session) CurrentQuestion() (model.Question, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current < 0 || s.current >= len(s.questions) {
		return model.Question{}, false
	}
	return s.questions[s.current], true
}

// AnswerFor returns the cached (possibly unsaved) answer for a question.
func (s *Session) AnswerFor(questionID int64) (model.Answer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.answers[questionID]
	return a, ok
}

// TimeRemaining returns the countdown in seconds.
func (s *Session) TimeRemaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeRemaining
}

// HasUnsavedChanges reports whether local edits are not yet acknowledged by
// a server save.
func (s *Session) HasUnsavedChanges() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasUnsaved
}

// Loading reports whether Start is in flight.
func (s *Session) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Finished reports whether the exam was submitted (or force-finished on
// timeout).
func (s *Session) Finished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finished
}

// CompletedCount returns how many questions the server has acknowledged an
// answer for.
func (s *Session) CompletedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, q := range s.questions {
		if q.IsAnswered {
			n++
		}
	}
	return n
}
