// Package devstub is a self-contained stand-in for the assessment backend,
// used for local development and demos. It persists to SQLite and speaks the
// same REST surface the production backend does. Nothing in the serve path
// depends on it; it is only reachable through the devserver command.
package devstub

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kpcai/examfront/internal/model"

	_ "modernc.org/sqlite"
)

const (
	tokenTTL         = 24 * time.Hour
	defaultExamTimer = 9000
)

type Store struct {
	db *sql.DB
}

func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		email TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		exam_number TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL DEFAULT 'user',
		is_active INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS auth_tokens (
		id TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL,
		created_at DATETIME NOT NULL,
		expires_at DATETIME NOT NULL,
		FOREIGN KEY (user_id) REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS questions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		question_number INTEGER NOT NULL,
		type TEXT NOT NULL,
		title TEXT NOT NULL,
		content TEXT NOT NULL DEFAULT '',
		points INTEGER NOT NULL DEFAULT 10,
		time_limit INTEGER,
		competency TEXT NOT NULL DEFAULT '',
		is_active INTEGER NOT NULL DEFAULT 1,
		question_content TEXT NOT NULL DEFAULT '{}'
	);

	CREATE TABLE IF NOT EXISTS exams (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'in_progress',
		start_time DATETIME,
		end_time DATETIME,
		timer_remaining INTEGER NOT NULL DEFAULT 9000,
		score INTEGER,
		created_at DATETIME NOT NULL,
		FOREIGN KEY (user_id) REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS answers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		exam_id INTEGER NOT NULL,
		question_id INTEGER NOT NULL,
		answer_data TEXT NOT NULL DEFAULT '{}',
		score INTEGER,
		feedback TEXT NOT NULL DEFAULT '',
		submitted_at DATETIME,
		updated_at DATETIME,
		UNIQUE (exam_id, question_id),
		FOREIGN KEY (exam_id) REFERENCES exams(id),
		FOREIGN KEY (question_id) REFERENCES questions(id)
	);

	CREATE TABLE IF NOT EXISTS ai_usage (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		exam_id INTEGER NOT NULL,
		question_id INTEGER NOT NULL,
		tool_type TEXT NOT NULL DEFAULT 'gemini',
		prompt TEXT NOT NULL,
		response TEXT NOT NULL,
		tokens_used INTEGER NOT NULL DEFAULT 0,
		timestamp DATETIME NOT NULL,
		FOREIGN KEY (exam_id) REFERENCES exams(id)
	);

	CREATE TABLE IF NOT EXISTS imported_files (
		filename TEXT PRIMARY KEY,
		hash TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// CreateUser stores a user and returns its id.
func (s *Store) CreateUser(email, passwordHash, examNumber string, role model.UserRole) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO users (email, password_hash, exam_number, role, created_at) VALUES (?, ?, ?, ?, ?)`,
		email, passwordHash, examNumber, string(role), time.Now(),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// Account is a stored user with its credential hash.
type Account struct {
	model.User
	PasswordHash string
	IsActive     bool
}

func (s *Store) getUser(where string, arg any) (*Account, error) {
	var u Account
	var role string
	err := s.db.QueryRow(
		`SELECT id, email, password_hash, exam_number, role, is_active FROM users WHERE `+where, arg,
	).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.ExamNumber, &role, &u.IsActive)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	u.Role = model.UserRole(role)
	return &u, nil
}

func (s *Store) GetUserByEmail(email string) (*Account, error) {
	return s.getUser("email = ?", email)
}

func (s *Store) GetUserByID(id int64) (*Account, error) {
	return s.getUser("id = ?", id)
}

func (s *Store) UserCount() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&n)
	return n, err
}

// ListUsers returns the admin user listing with per-user exam counts.
func (s *Store) ListUsers() ([]model.AdminUserRow, error) {
	rows, err := s.db.Query(
		`SELECT u.id, u.email, u.exam_number, u.role, u.is_active,
		        (SELECT COUNT(*) FROM exams e WHERE e.user_id = u.id)
		 FROM users u ORDER BY u.id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []model.AdminUserRow
	for rows.Next() {
		var u model.AdminUserRow
		if err := rows.Scan(&u.ID, &u.Email, &u.ExamNumber, &u.Role, &u.IsActive, &u.ExamCount); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// CreateToken issues a bearer token for a user.
func (s *Store) CreateToken(userID int64) (string, error) {
	token, err := generateToken()
	if err != nil {
		return "", err
	}
	now := time.Now()
	_, err = s.db.Exec(
		`INSERT INTO auth_tokens (id, user_id, created_at, expires_at) VALUES (?, ?, ?, ?)`,
		token, userID, now, now.Add(tokenTTL),
	)
	if err != nil {
		return "", err
	}
	return token, nil
}

// UserForToken resolves a bearer token, or returns nil for unknown/expired.
func (s *Store) UserForToken(token string) (*Account, error) {
	var userID int64
	var expires time.Time
	err := s.db.QueryRow(
		`SELECT user_id, expires_at FROM auth_tokens WHERE id = ?`, token,
	).Scan(&userID, &expires)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if time.Now().After(expires) {
		_, _ = s.db.Exec(`DELETE FROM auth_tokens WHERE id = ?`, token)
		return nil, nil
	}
	return s.GetUserByID(userID)
}

// InsertQuestion stores an authored question.
func (s *Store) InsertQuestion(in model.QuestionCreate) (int64, error) {
	content, err := marshalContent(in)
	if err != nil {
		return 0, err
	}
	res, err := s.db.Exec(
		`INSERT INTO questions (question_number, type, title, content, points, time_limit, competency, question_content)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		in.QuestionNumber, string(in.Type), in.Title, in.Content, in.Points, in.TimeLimit, in.Competency, content,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// UpdateQuestion replaces an authored question's fields.
func (s *Store) UpdateQuestion(id int64, in model.QuestionCreate) error {
	content, err := marshalContent(in)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`UPDATE questions SET question_number = ?, type = ?, title = ?, content = ?, points = ?,
		        time_limit = ?, competency = ?, question_content = ? WHERE id = ?`,
		in.QuestionNumber, string(in.Type), in.Title, in.Content, in.Points, in.TimeLimit, in.Competency, content, id,
	)
	return err
}

// DeactivateQuestion soft-deletes a question so existing exams keep their
// saved answers.
func (s *Store) DeactivateQuestion(id int64) error {
	_, err := s.db.Exec(`UPDATE questions SET is_active = 0 WHERE id = ?`, id)
	return err
}

func marshalContent(in model.QuestionCreate) (string, error) {
	qc := model.QuestionContent{
		Scenario:           in.Scenario,
		Requirements:       in.Requirements,
		ReferenceMaterials: in.ReferenceMaterials,
		Options:            in.Options,
	}
	data, err := json.Marshal(qc)
	if err != nil {
		return "", fmt.Errorf("marshal question content: %w", err)
	}
	return string(data), nil
}

const questionColumns = `id, question_number, type, title, content, points, time_limit, competency, is_active, question_content`

func scanQuestion(scan func(...any) error) (model.Question, error) {
	var q model.Question
	var qtype, content string
	if err := scan(&q.ID, &q.QuestionNumber, &qtype, &q.Title, &q.Content, &q.Points,
		&q.TimeLimit, &q.Competency, &q.IsActive, &content); err != nil {
		return q, err
	}
	q.Type = model.QuestionType(qtype)
	var qc model.QuestionContent
	if err := json.Unmarshal([]byte(content), &qc); err == nil {
		q.QContent = &qc
	}
	return q, nil
}

// ListQuestions returns the catalog, active-only unless includeInactive.
func (s *Store) ListQuestions(includeInactive bool) ([]model.Question, error) {
	query := `SELECT ` + questionColumns + ` FROM questions`
	if !includeInactive {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY question_number`
	rows, err := s.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var questions []model.Question
	for rows.Next() {
		q, err := scanQuestion(rows.Scan)
		if err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

func (s *Store) GetQuestion(id int64) (model.Question, error) {
	row := s.db.QueryRow(`SELECT `+questionColumns+` FROM questions WHERE id = ?`, id)
	return scanQuestion(row.Scan)
}

func (s *Store) QuestionCount() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM questions`).Scan(&n)
	return n, err
}

// CreateExam starts an exam for a user with the default timer.
func (s *Store) CreateExam(userID int64) (model.Exam, error) {
	now := time.Now()
	res, err := s.db.Exec(
		`INSERT INTO exams (user_id, status, start_time, timer_remaining, created_at) VALUES (?, ?, ?, ?, ?)`,
		userID, string(model.ExamInProgress), now, defaultExamTimer, now,
	)
	if err != nil {
		return model.Exam{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Exam{}, err
	}
	return s.GetExam(id)
}

func (s *Store) GetExam(id int64) (model.Exam, error) {
	var e model.Exam
	var status string
	err := s.db.QueryRow(
		`SELECT id, user_id, status, start_time, end_time, timer_remaining, score, created_at FROM exams WHERE id = ?`, id,
	).Scan(&e.ID, &e.UserID, &status, &e.StartTime, &e.EndTime, &e.TimerRemaining, &e.Score, &e.CreatedAt)
	e.Status = model.ExamStatus(status)
	return e, err
}

func (s *Store) UpdateExamTimer(id int64, remaining int) error {
	_, err := s.db.Exec(`UPDATE exams SET timer_remaining = ? WHERE id = ?`, remaining, id)
	return err
}

// SubmitExam marks the exam submitted. Submitting twice is an error the
// caller maps to a conflict.
func (s *Store) SubmitExam(id int64) error {
	res, err := s.db.Exec(
		`UPDATE exams SET status = ?, end_time = ? WHERE id = ? AND status = ?`,
		string(model.ExamSubmitted), time.Now(), id, string(model.ExamInProgress),
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("exam %d is not in progress", id)
	}
	return nil
}

// GradeExam records the overall score and marks the exam graded.
func (s *Store) GradeExam(id int64, score int) error {
	_, err := s.db.Exec(
		`UPDATE exams SET score = ?, status = ? WHERE id = ?`,
		score, string(model.ExamGraded), id,
	)
	return err
}

func (s *Store) ListExams() ([]model.Exam, error) {
	rows, err := s.db.Query(
		`SELECT id, user_id, status, start_time, end_time, timer_remaining, score, created_at FROM exams ORDER BY id DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var exams []model.Exam
	for rows.Next() {
		var e model.Exam
		var status string
		if err := rows.Scan(&e.ID, &e.UserID, &status, &e.StartTime, &e.EndTime, &e.TimerRemaining, &e.Score, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Status = model.ExamStatus(status)
		exams = append(exams, e)
	}
	return exams, rows.Err()
}

// UpsertAnswer saves an answer, replacing any earlier save for the same
// question of the same exam.
func (s *Store) UpsertAnswer(examID, questionID int64, answerData []byte) (model.AnswerRecord, error) {
	now := time.Now()
	_, err := s.db.Exec(
		`INSERT INTO answers (exam_id, question_id, answer_data, submitted_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (exam_id, question_id) DO UPDATE SET answer_data = excluded.answer_data, updated_at = excluded.updated_at`,
		examID, questionID, string(answerData), now, now,
	)
	if err != nil {
		return model.AnswerRecord{}, err
	}
	return s.GetAnswer(examID, questionID)
}

func scanAnswer(scan func(...any) error) (model.AnswerRecord, error) {
	var rec model.AnswerRecord
	var data string
	if err := scan(&rec.ID, &rec.ExamID, &rec.QuestionID, &data, &rec.Score, &rec.Feedback,
		&rec.SubmittedAt, &rec.UpdatedAt); err != nil {
		return rec, err
	}
	if err := json.Unmarshal([]byte(data), &rec.AnswerData); err != nil {
		return rec, fmt.Errorf("decode answer data: %w", err)
	}
	return rec, nil
}

const answerColumns = `id, exam_id, question_id, answer_data, score, feedback, submitted_at, updated_at`

func (s *Store) GetAnswer(examID, questionID int64) (model.AnswerRecord, error) {
	row := s.db.QueryRow(
		`SELECT `+answerColumns+` FROM answers WHERE exam_id = ? AND question_id = ?`, examID, questionID,
	)
	return scanAnswer(row.Scan)
}

func (s *Store) ListAnswers(examID int64) ([]model.AnswerRecord, error) {
	rows, err := s.db.Query(
		`SELECT `+answerColumns+` FROM answers WHERE exam_id = ? ORDER BY question_id`, examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var answers []model.AnswerRecord
	for rows.Next() {
		rec, err := scanAnswer(rows.Scan)
		if err != nil {
			return nil, err
		}
		answers = append(answers, rec)
	}
	return answers, rows.Err()
}

// GradeAnswer records a manual score and feedback for one answer.
func (s *Store) GradeAnswer(answerID int64, score int, feedback string) error {
	_, err := s.db.Exec(
		`UPDATE answers SET score = ?, feedback = ?, updated_at = ? WHERE id = ?`,
		score, feedback, time.Now(), answerID,
	)
	return err
}

// RecordAIUsage logs one AI-assist call.
func (s *Store) RecordAIUsage(examID, questionID int64, prompt, response string) error {
	_, err := s.db.Exec(
		`INSERT INTO ai_usage (exam_id, question_id, prompt, response, timestamp) VALUES (?, ?, ?, ?, ?)`,
		examID, questionID, prompt, response, time.Now(),
	)
	return err
}

func (s *Store) ListAIUsage(examID int64) ([]model.AIUsage, error) {
	rows, err := s.db.Query(
		`SELECT id, exam_id, question_id, tool_type, prompt, response, tokens_used, timestamp
		 FROM ai_usage WHERE exam_id = ? ORDER BY id`, examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var usage []model.AIUsage
	for rows.Next() {
		var u model.AIUsage
		if err := rows.Scan(&u.ID, &u.ExamID, &u.QuestionID, &u.ToolType, &u.Prompt, &u.Response, &u.TokensUsed, &u.Timestamp); err != nil {
			return nil, err
		}
		usage = append(usage, u)
	}
	return usage, rows.Err()
}

// Dashboard aggregates the admin summary counts.
func (s *Store) Dashboard() (model.DashboardStats, error) {
	var stats model.DashboardStats
	row := s.db.QueryRow(`
		SELECT
			(SELECT COUNT(*) FROM users),
			(SELECT COUNT(*) FROM exams),
			(SELECT COUNT(*) FROM exams WHERE status = 'submitted'),
			(SELECT COUNT(*) FROM exams WHERE status = 'graded'),
			(SELECT COUNT(*) FROM exams WHERE status = 'in_progress')`,
	)
	err := row.Scan(&stats.TotalUsers, &stats.TotalExams, &stats.SubmittedExams, &stats.GradedExams, &stats.ActiveExams)
	return stats, err
}

// GetImportedFileHash returns the recorded hash for a seed file, or "".
func (s *Store) GetImportedFileHash(filename string) (string, error) {
	var hash string
	err := s.db.QueryRow(`SELECT hash FROM imported_files WHERE filename = ?`, filename).Scan(&hash)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return hash, err
}

// SetImportedFileHash records that a seed file was imported.
func (s *Store) SetImportedFileHash(filename, hash string) error {
	_, err := s.db.Exec(
		`INSERT INTO imported_files (filename, hash) VALUES (?, ?)
		 ON CONFLICT (filename) DO UPDATE SET hash = excluded.hash`,
		filename, hash,
	)
	return err
}

func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
