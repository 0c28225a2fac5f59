package exam

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrTestNotFound         = errors.New("test not found")
	ErrTestNotAvailable     = errors.New("test is not available right now")
	ErrTestClosed           = errors.New("test window has closed")
	ErrAlreadyAttempted     = errors.New("test already attempted")
	ErrInvalidQuestion      = errors.New("answer references a question not in this test")
	ErrIncompleteSubmission = errors.New("all questions must be answered")
	ErrNoSubmission         = errors.New("no submission for this test")
	ErrResultHidden         = errors.New("results are not published for this test")
	ErrInvalidInput         = errors.New("invalid input")
)

type Service struct {
	db              *sql.DB
	requireComplete bool
}

type Test struct {
	ID           int64     `json:"id"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	StartTime    time.Time `json:"start_time"`
	EndTime      time.Time `json:"end_time"`
	IsRandom     bool      `json:"is_random"`
	ShowResult   bool      `json:"show_result"`
	TimeLimit    *int      `json:"time_limit,omitempty"`
	PassingScore *int      `json:"passing_score,omitempty"`
	CreatedBy    int64     `json:"created_by"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type TestInput struct {
	Title        string
	Description  string
	StartTime    time.Time
	EndTime      time.Time
	IsRandom     bool
	ShowResult   bool
	TimeLimit    *int
	PassingScore *int
}

// AdminTestRow adds the authoring-side counters shown on the test list.
type AdminTestRow struct {
	Test
	QuestionCount    int `json:"question_count"`
	ParticipantCount int `json:"participant_count"`
}

// TakeQuestion is a question as delivered to a student: options carry no
// correctness flag.
type TakeQuestion struct {
	ID           int64        `json:"id"`
	QuestionText string       `json:"question_text"`
	QuestionType string       `json:"question_type"`
	Points       int          `json:"points"`
	Options      []TakeOption `json:"options,omitempty"`
}

type TakeOption struct {
	ID         int64  `json:"id"`
	OptionText string `json:"option_text"`
}

type TakeTest struct {
	Test      Test           `json:"test"`
	Questions []TakeQuestion `json:"questions"`
}

type Answer struct {
	QuestionID int64  `json:"question_id"`
	Answer     string `json:"answer"`
}

type SubmitInput struct {
	TestID    int64
	StudentID int64
	Answers   []Answer
}

type SubmitReceipt struct {
	TestID      int64     `json:"test_id"`
	Answered    int       `json:"answered"`
	SubmittedAt time.Time `json:"submitted_at"`
}

type ResultItem struct {
	QuestionID   int64    `json:"question_id"`
	QuestionText string   `json:"question_text"`
	QuestionType string   `json:"question_type"`
	Points       int      `json:"points"`
	Answer       string   `json:"answer"`
	Score        *float64 `json:"score"`
	Feedback     *string  `json:"feedback,omitempty"`
}

type Result struct {
	Test       Test         `json:"test"`
	TotalScore float64      `json:"total_score"`
	MaxScore   float64      `json:"max_score"`
	Graded     bool         `json:"graded"`
	Passed     *bool        `json:"passed,omitempty"`
	Items      []ResultItem `json:"items"`
}

type HistoryRow struct {
	TestID      int64     `json:"test_id"`
	Title       string    `json:"title"`
	SubmittedAt time.Time `json:"submitted_at"`
	TotalScore  float64   `json:"total_score"`
	Graded      bool      `json:"graded"`
	ShowResult  bool      `json:"show_result"`
}

type queryable interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

func NewService(db *sql.DB, requireComplete bool) *Service {
	return &Service{db: db, requireComplete: requireComplete}
}

func (s *Service) CreateTest(ctx context.Context, createdBy int64, in TestInput) (*Test, error) {
	if err := validateTestInput(in); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO tests (
			title, description, start_time, end_time,
			is_random, show_result, time_limit, passing_score,
			created_by, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
		RETURNING id, title, description, start_time, end_time,
			is_random, show_result, time_limit, passing_score,
			created_by, created_at, updated_at
	`, strings.TrimSpace(in.Title), strings.TrimSpace(in.Description), in.StartTime, in.EndTime,
		in.IsRandom, in.ShowResult, in.TimeLimit, in.PassingScore, createdBy)

	t, err := scanTest(row)
	if err != nil {
		return nil, fmt.Errorf("insert test: %w", err)
	}
	return t, nil
}

func (s *Service) UpdateTest(ctx context.Context, testID int64, in TestInput) (*Test, error) {
	if err := validateTestInput(in); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		UPDATE tests
		SET title = $2, description = $3, start_time = $4, end_time = $5,
			is_random = $6, show_result = $7, time_limit = $8, passing_score = $9,
			updated_at = now()
		WHERE id = $1
		RETURNING id, title, description, start_time, end_time,
			is_random, show_result, time_limit, passing_score,
			created_by, created_at, updated_at
	`, testID, strings.TrimSpace(in.Title), strings.TrimSpace(in.Description), in.StartTime, in.EndTime,
		in.IsRandom, in.ShowResult, in.TimeLimit, in.PassingScore)

	t, err := scanTest(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTestNotFound
		}
		return nil, fmt.Errorf("update test: %w", err)
	}
	return t, nil
}

// DeleteTest removes the test and everything hanging off it. Questions,
// options and responses cascade at the schema level.
func (s *Service) DeleteTest(ctx context.Context, testID int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tests WHERE id = $1`, testID)
	if err != nil {
		return fmt.Errorf("delete test: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrTestNotFound
	}
	return nil
}

// DuplicateTest copies a test with its questions and options into a fresh
// draft titled "<title> (Copy)", scheduled for tomorrow.
func (s *Service) DuplicateTest(ctx context.Context, testID, createdBy int64) (*Test, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin duplicate tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	src, err := s.getTest(ctx, tx, testID)
	if err != nil {
		return nil, err
	}

	row := tx.QueryRowContext(ctx, `
		INSERT INTO tests (
			title, description, start_time, end_time,
			is_random, show_result, time_limit, passing_score,
			created_by, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
		RETURNING id, title, description, start_time, end_time,
			is_random, show_result, time_limit, passing_score,
			created_by, created_at, updated_at
	`, src.Title+" (Copy)", src.Description,
		time.Now().Add(24*time.Hour), time.Now().Add(48*time.Hour),
		src.IsRandom, src.ShowResult, src.TimeLimit, src.PassingScore, createdBy)

	dup, err := scanTest(row)
	if err != nil {
		return nil, fmt.Errorf("insert duplicated test: %w", err)
	}

	qRows, err := tx.QueryContext(ctx, `
		SELECT id, question_text, question_type, points
		FROM questions
		WHERE test_id = $1
		ORDER BY id ASC
	`, testID)
	if err != nil {
		return nil, fmt.Errorf("query source questions: %w", err)
	}
	defer qRows.Close()

	type srcQuestion struct {
		ID           int64
		QuestionText string
		QuestionType string
		Points       int
	}
	questions := make([]srcQuestion, 0)
	for qRows.Next() {
		var q srcQuestion
		if err := qRows.Scan(&q.ID, &q.QuestionText, &q.QuestionType, &q.Points); err != nil {
			return nil, fmt.Errorf("scan source question: %w", err)
		}
		questions = append(questions, q)
	}
	if err := qRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate source questions: %w", err)
	}

	for _, q := range questions {
		var newQuestionID int64
		if err := tx.QueryRowContext(ctx, `
			INSERT INTO questions (test_id, question_text, question_type, points, created_at, updated_at)
			VALUES ($1, $2, $3, $4, now(), now())
			RETURNING id
		`, dup.ID, q.QuestionText, q.QuestionType, q.Points).Scan(&newQuestionID); err != nil {
			return nil, fmt.Errorf("insert duplicated question: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO options (question_id, option_text, is_correct, display_order)
			SELECT $2, option_text, is_correct, display_order
			FROM options
			WHERE question_id = $1
		`, q.ID, newQuestionID); err != nil {
			return nil, fmt.Errorf("insert duplicated options: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit duplicate tx: %w", err)
	}
	return dup, nil
}

func (s *Service) ToggleRandomization(ctx context.Context, testID int64) (*Test, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE tests
		SET is_random = NOT is_random, updated_at = now()
		WHERE id = $1
		RETURNING id, title, description, start_time, end_time,
			is_random, show_result, time_limit, passing_score,
			created_by, created_at, updated_at
	`, testID)

	t, err := scanTest(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTestNotFound
		}
		return nil, fmt.Errorf("toggle randomization: %w", err)
	}
	return t, nil
}

func (s *Service) ListAdminTests(ctx context.Context) ([]AdminTestRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT
			t.id, t.title, t.description, t.start_time, t.end_time,
			t.is_random, t.show_result, t.time_limit, t.passing_score,
			t.created_by, t.created_at, t.updated_at,
			(SELECT COUNT(*) FROM questions q WHERE q.test_id = t.id),
			(SELECT COUNT(DISTINCT r.student_id) FROM responses r WHERE r.test_id = t.id)
		FROM tests t
		ORDER BY t.start_time DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query admin tests: %w", err)
	}
	defer rows.Close()

	out := make([]AdminTestRow, 0)
	for rows.Next() {
		var row AdminTestRow
		var timeLimit, passingScore sql.NullInt64
		if err := rows.Scan(
			&row.ID, &row.Title, &row.Description, &row.StartTime, &row.EndTime,
			&row.IsRandom, &row.ShowResult, &timeLimit, &passingScore,
			&row.CreatedBy, &row.CreatedAt, &row.UpdatedAt,
			&row.QuestionCount, &row.ParticipantCount,
		); err != nil {
			return nil, fmt.Errorf("scan admin test: %w", err)
		}
		row.TimeLimit = nullableInt(timeLimit)
		row.PassingScore = nullableInt(passingScore)
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate admin tests: %w", err)
	}
	return out, nil
}

func (s *Service) GetTest(ctx context.Context, testID int64) (*Test, error) {
	return s.getTest(ctx, s.db, testID)
}

func (s *Service) GetTestOwner(ctx context.Context, testID int64) (int64, error) {
	var ownerID int64
	if err := s.db.QueryRowContext(ctx, `
		SELECT created_by FROM tests WHERE id = $1
	`, testID).Scan(&ownerID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrTestNotFound
		}
		return 0, fmt.Errorf("load test owner: %w", err)
	}
	return ownerID, nil
}

// ListAvailableTests returns the tests currently inside their window that
// the student has not submitted yet.
func (s *Service) ListAvailableTests(ctx context.Context, studentID int64) ([]Test, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, description, start_time, end_time,
			is_random, show_result, time_limit, passing_score,
			created_by, created_at, updated_at
		FROM tests t
		WHERE t.start_time <= now()
		  AND t.end_time >= now()
		  AND NOT EXISTS (
			SELECT 1 FROM responses r
			WHERE r.test_id = t.id AND r.student_id = $1
		  )
		ORDER BY t.end_time ASC
	`, studentID)
	if err != nil {
		return nil, fmt.Errorf("query available tests: %w", err)
	}
	defer rows.Close()

	out := make([]Test, 0)
	for rows.Next() {
		t, err := scanTestRows(rows)
		if err != nil {
			return nil, fmt.Errorf("scan available test: %w", err)
		}
		out = append(out, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate available tests: %w", err)
	}
	return out, nil
}

// StartTest checks eligibility and hands the student the paper. Question
// order is shuffled per delivery when the test has randomization on;
// options always come in display order and never expose is_correct.
func (s *Service) StartTest(ctx context.Context, testID, studentID int64) (*TakeTest, error) {
	t, err := s.getTest(ctx, s.db, testID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if now.Before(t.StartTime) || now.After(t.EndTime) {
		return nil, ErrTestNotAvailable
	}

	attempted, err := s.hasAttempted(ctx, testID, studentID)
	if err != nil {
		return nil, err
	}
	if attempted {
		return nil, ErrAlreadyAttempted
	}

	questions, err := s.loadTakeQuestions(ctx, testID)
	if err != nil {
		return nil, err
	}
	if t.IsRandom {
		rand.Shuffle(len(questions), func(i, j int) {
			questions[i], questions[j] = questions[j], questions[i]
		})
	}

	return &TakeTest{Test: *t, Questions: questions}, nil
}

// SubmitTest stores and auto-scores a student's answers in one
// transaction. The UNIQUE (student_id, question_id) constraint is the
// authoritative guard against double submission: a unique violation rolls
// the whole batch back and reports the test as already attempted.
func (s *Service) SubmitTest(ctx context.Context, in SubmitInput) (*SubmitReceipt, error) {
	t, err := s.getTest(ctx, s.db, in.TestID)
	if err != nil {
		return nil, err
	}
	if time.Now().After(t.EndTime) {
		return nil, ErrTestClosed
	}
	if len(in.Answers) == 0 {
		return nil, fmt.Errorf("%w: no answers given", ErrInvalidInput)
	}

	questions, err := s.loadScoringQuestions(ctx, in.TestID)
	if err != nil {
		return nil, err
	}
	for _, a := range in.Answers {
		if _, ok := questions[a.QuestionID]; !ok {
			return nil, ErrInvalidQuestion
		}
	}
	if s.requireComplete && len(in.Answers) < len(questions) {
		return nil, ErrIncompleteSubmission
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin submit tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	submittedAt := time.Now()
	for _, a := range in.Answers {
		q := questions[a.QuestionID]
		verdict := ScoreResponse(ScoreInput{
			QuestionType:    q.QuestionType,
			Points:          q.Points,
			Answer:          a.Answer,
			CorrectOptionID: q.CorrectOptionID,
		})

		_, err := tx.ExecContext(ctx, `
			INSERT INTO responses (student_id, test_id, question_id, answer, score, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, now(), now())
		`, in.StudentID, in.TestID, a.QuestionID, a.Answer, verdict.Score)
		if err != nil {
			if isUniqueViolation(err) {
				return nil, ErrAlreadyAttempted
			}
			return nil, fmt.Errorf("insert response: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit submit tx: %w", err)
	}
	return &SubmitReceipt{
		TestID:      in.TestID,
		Answered:    len(in.Answers),
		SubmittedAt: submittedAt,
	}, nil
}

// GetStudentResult assembles the student's scored paper. Tests with
// show_result off hide the breakdown entirely; pending essay grades leave
// the total partial and Graded false.
func (s *Service) GetStudentResult(ctx context.Context, testID, studentID int64) (*Result, error) {
	t, err := s.getTest(ctx, s.db, testID)
	if err != nil {
		return nil, err
	}
	if !t.ShowResult {
		return nil, ErrResultHidden
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT q.id, q.question_text, q.question_type, q.points,
			r.answer, r.score, r.feedback
		FROM responses r
		JOIN questions q ON q.id = r.question_id
		WHERE r.test_id = $1 AND r.student_id = $2
		ORDER BY q.id ASC
	`, testID, studentID)
	if err != nil {
		return nil, fmt.Errorf("query result items: %w", err)
	}
	defer rows.Close()

	result := &Result{Test: *t, Graded: true, Items: make([]ResultItem, 0)}
	for rows.Next() {
		var item ResultItem
		var score sql.NullFloat64
		var feedback sql.NullString
		if err := rows.Scan(&item.QuestionID, &item.QuestionText, &item.QuestionType, &item.Points,
			&item.Answer, &score, &feedback); err != nil {
			return nil, fmt.Errorf("scan result item: %w", err)
		}
		if score.Valid {
			v := score.Float64
			item.Score = &v
			result.TotalScore += v
		} else {
			result.Graded = false
		}
		if feedback.Valid {
			f := feedback.String
			item.Feedback = &f
		}
		result.MaxScore += float64(item.Points)
		result.Items = append(result.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate result items: %w", err)
	}
	if len(result.Items) == 0 {
		return nil, ErrNoSubmission
	}

	if result.Graded && t.PassingScore != nil {
		passed := result.TotalScore >= float64(*t.PassingScore)
		result.Passed = &passed
	}
	return result, nil
}

func (s *Service) ListHistory(ctx context.Context, studentID int64) ([]HistoryRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.title, t.show_result,
			MAX(r.created_at),
			COALESCE(SUM(r.score), 0),
			COUNT(*) FILTER (WHERE r.score IS NULL) = 0
		FROM responses r
		JOIN tests t ON t.id = r.test_id
		WHERE r.student_id = $1
		GROUP BY t.id, t.title, t.show_result
		ORDER BY MAX(r.created_at) DESC
	`, studentID)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	out := make([]HistoryRow, 0)
	for rows.Next() {
		var h HistoryRow
		if err := rows.Scan(&h.TestID, &h.Title, &h.ShowResult, &h.SubmittedAt, &h.TotalScore, &h.Graded); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		if !h.ShowResult {
			h.TotalScore = 0
		}
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return out, nil
}

type scoringQuestion struct {
	QuestionType    string
	Points          int
	CorrectOptionID *int64
}

func (s *Service) loadScoringQuestions(ctx context.Context, testID int64) (map[int64]scoringQuestion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT q.id, q.question_type, q.points,
			(SELECT o.id FROM options o
			 WHERE o.question_id = q.id AND o.is_correct
			 ORDER BY o.id ASC LIMIT 1)
		FROM questions q
		WHERE q.test_id = $1
	`, testID)
	if err != nil {
		return nil, fmt.Errorf("query scoring questions: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]scoringQuestion)
	for rows.Next() {
		var id int64
		var q scoringQuestion
		var correctID sql.NullInt64
		if err := rows.Scan(&id, &q.QuestionType, &q.Points, &correctID); err != nil {
			return nil, fmt.Errorf("scan scoring question: %w", err)
		}
		if correctID.Valid {
			v := correctID.Int64
			q.CorrectOptionID = &v
		}
		out[id] = q
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scoring questions: %w", err)
	}
	return out, nil
}

func (s *Service) loadTakeQuestions(ctx context.Context, testID int64) ([]TakeQuestion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, question_text, question_type, points
		FROM questions
		WHERE test_id = $1
		ORDER BY id ASC
	`, testID)
	if err != nil {
		return nil, fmt.Errorf("query take questions: %w", err)
	}
	defer rows.Close()

	questions := make([]TakeQuestion, 0)
	index := make(map[int64]int)
	for rows.Next() {
		var q TakeQuestion
		if err := rows.Scan(&q.ID, &q.QuestionText, &q.QuestionType, &q.Points); err != nil {
			return nil, fmt.Errorf("scan take question: %w", err)
		}
		index[q.ID] = len(questions)
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate take questions: %w", err)
	}

	oRows, err := s.db.QueryContext(ctx, `
		SELECT o.question_id, o.id, o.option_text
		FROM options o
		JOIN questions q ON q.id = o.question_id
		WHERE q.test_id = $1
		ORDER BY o.question_id, o.display_order, o.id
	`, testID)
	if err != nil {
		return nil, fmt.Errorf("query take options: %w", err)
	}
	defer oRows.Close()

	for oRows.Next() {
		var questionID int64
		var opt TakeOption
		if err := oRows.Scan(&questionID, &opt.ID, &opt.OptionText); err != nil {
			return nil, fmt.Errorf("scan take option: %w", err)
		}
		if i, ok := index[questionID]; ok {
			questions[i].Options = append(questions[i].Options, opt)
		}
	}
	if err := oRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate take options: %w", err)
	}
	return questions, nil
}

func (s *Service) hasAttempted(ctx context.Context, testID, studentID int64) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM responses WHERE test_id = $1 AND student_id = $2
		)
	`, testID, studentID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check attempted: %w", err)
	}
	return exists, nil
}

func (s *Service) getTest(ctx context.Context, q queryable, testID int64) (*Test, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, title, description, start_time, end_time,
			is_random, show_result, time_limit, passing_score,
			created_by, created_at, updated_at
		FROM tests
		WHERE id = $1
	`, testID)

	t, err := scanTest(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTestNotFound
		}
		return nil, fmt.Errorf("load test: %w", err)
	}
	return t, nil
}

func validateTestInput(in TestInput) error {
	if strings.TrimSpace(in.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if in.StartTime.IsZero() || in.EndTime.IsZero() {
		return fmt.Errorf("%w: start_time and end_time are required", ErrInvalidInput)
	}
	if !in.EndTime.After(in.StartTime) {
		return fmt.Errorf("%w: end_time must be after start_time", ErrInvalidInput)
	}
	if in.TimeLimit != nil && *in.TimeLimit <= 0 {
		return fmt.Errorf("%w: time_limit must be positive", ErrInvalidInput)
	}
	if in.PassingScore != nil && *in.PassingScore < 0 {
		return fmt.Errorf("%w: passing_score must not be negative", ErrInvalidInput)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTest(row rowScanner) (*Test, error) {
	var t Test
	var timeLimit, passingScore sql.NullInt64
	if err := row.Scan(
		&t.ID, &t.Title, &t.Description, &t.StartTime, &t.EndTime,
		&t.IsRandom, &t.ShowResult, &timeLimit, &passingScore,
		&t.CreatedBy, &t.CreatedAt, &t.UpdatedAt,
	); err != nil {
		return nil, err
	}
	t.TimeLimit = nullableInt(timeLimit)
	t.PassingScore = nullableInt(passingScore)
	return &t, nil
}

func scanTestRows(rows *sql.Rows) (*Test, error) {
	return scanTest(rows)
}

func nullableInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
