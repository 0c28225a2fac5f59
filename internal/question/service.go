package question

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"
)

var (
	ErrQuestionNotFound  = errors.New("question not found")
	ErrTestNotFound      = errors.New("test not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrOptionRule        = errors.New("a multiple choice question needs at least two options with exactly one marked correct")
	ErrNotMultipleChoice = errors.New("question is not multiple choice")
)

type Service struct {
	db *sql.DB
}

type Question struct {
	ID           int64     `json:"id"`
	TestID       int64     `json:"test_id"`
	QuestionText string    `json:"question_text"`
	QuestionType string    `json:"question_type"`
	Points       int       `json:"points"`
	Options      []Option  `json:"options,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type Option struct {
	ID           int64  `json:"id"`
	OptionText   string `json:"option_text"`
	IsCorrect    bool   `json:"is_correct"`
	DisplayOrder int    `json:"display_order"`
}

type OptionInput struct {
	OptionText string
	IsCorrect  bool
}

type QuestionInput struct {
	TestID       int64
	QuestionText string
	QuestionType string
	Points       int
	Options      []OptionInput
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// CreateQuestion inserts a question with its options in one transaction.
// Multiple-choice questions must carry at least two options with exactly
// one marked correct; essay questions carry none.
func (s *Service) CreateQuestion(ctx context.Context, in QuestionInput) (*Question, error) {
	if err := validateQuestionInput(in); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin create question tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists bool
	if err := tx.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM tests WHERE id = $1)
	`, in.TestID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check test exists: %w", err)
	}
	if !exists {
		return nil, ErrTestNotFound
	}

	row := tx.QueryRowContext(ctx, `
		INSERT INTO questions (test_id, question_text, question_type, points, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())
		RETURNING id, test_id, question_text, question_type, points, created_at, updated_at
	`, in.TestID, strings.TrimSpace(in.QuestionText), in.QuestionType, in.Points)

	var q Question
	if err := row.Scan(&q.ID, &q.TestID, &q.QuestionText, &q.QuestionType, &q.Points, &q.CreatedAt, &q.UpdatedAt); err != nil {
		return nil, fmt.Errorf("insert question: %w", err)
	}

	q.Options, err = insertOptions(ctx, tx, q.ID, in.Options)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit create question tx: %w", err)
	}
	return &q, nil
}

// UpdateQuestion rewrites the question and replaces its option set. Turning
// a question into an essay drops its options.
func (s *Service) UpdateQuestion(ctx context.Context, questionID int64, in QuestionInput) (*Question, error) {
	if err := validateQuestionInput(in); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin update question tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
		UPDATE questions
		SET question_text = $2, question_type = $3, points = $4, updated_at = now()
		WHERE id = $1
		RETURNING id, test_id, question_text, question_type, points, created_at, updated_at
	`, questionID, strings.TrimSpace(in.QuestionText), in.QuestionType, in.Points)

	var q Question
	if err := row.Scan(&q.ID, &q.TestID, &q.QuestionText, &q.QuestionType, &q.Points, &q.CreatedAt, &q.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrQuestionNotFound
		}
		return nil, fmt.Errorf("update question: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM options WHERE question_id = $1`, questionID); err != nil {
		return nil, fmt.Errorf("clear options: %w", err)
	}
	q.Options, err = insertOptions(ctx, tx, q.ID, in.Options)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit update question tx: %w", err)
	}
	return &q, nil
}

func (s *Service) DeleteQuestion(ctx context.Context, questionID int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM questions WHERE id = $1`, questionID)
	if err != nil {
		return fmt.Errorf("delete question: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrQuestionNotFound
	}
	return nil
}

// BulkDelete removes a set of questions from one test in a single
// transaction; ids outside the test are ignored.
func (s *Service) BulkDelete(ctx context.Context, testID int64, questionIDs []int64) (int, error) {
	if testID <= 0 || len(questionIDs) == 0 {
		return 0, ErrInvalidInput
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin bulk delete tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	deleted := 0
	for _, id := range questionIDs {
		res, err := tx.ExecContext(ctx, `
			DELETE FROM questions WHERE id = $1 AND test_id = $2
		`, id, testID)
		if err != nil {
			return 0, fmt.Errorf("bulk delete question: %w", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			deleted++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit bulk delete tx: %w", err)
	}
	return deleted, nil
}

func (s *Service) ListQuestions(ctx context.Context, testID int64) ([]Question, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, test_id, question_text, question_type, points, created_at, updated_at
		FROM questions
		WHERE test_id = $1
		ORDER BY id ASC
	`, testID)
	if err != nil {
		return nil, fmt.Errorf("query questions: %w", err)
	}
	defer rows.Close()

	questions := make([]Question, 0)
	index := make(map[int64]int)
	for rows.Next() {
		var q Question
		if err := rows.Scan(&q.ID, &q.TestID, &q.QuestionText, &q.QuestionType, &q.Points, &q.CreatedAt, &q.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		index[q.ID] = len(questions)
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate questions: %w", err)
	}

	oRows, err := s.db.QueryContext(ctx, `
		SELECT o.question_id, o.id, o.option_text, o.is_correct, o.display_order
		FROM options o
		JOIN questions q ON q.id = o.question_id
		WHERE q.test_id = $1
		ORDER BY o.question_id, o.display_order, o.id
	`, testID)
	if err != nil {
		return nil, fmt.Errorf("query options: %w", err)
	}
	defer oRows.Close()

	for oRows.Next() {
		var questionID int64
		var opt Option
		if err := oRows.Scan(&questionID, &opt.ID, &opt.OptionText, &opt.IsCorrect, &opt.DisplayOrder); err != nil {
			return nil, fmt.Errorf("scan option: %w", err)
		}
		if i, ok := index[questionID]; ok {
			questions[i].Options = append(questions[i].Options, opt)
		}
	}
	if err := oRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate options: %w", err)
	}
	return questions, nil
}

func (s *Service) GetQuestion(ctx context.Context, questionID int64) (*Question, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, test_id, question_text, question_type, points, created_at, updated_at
		FROM questions
		WHERE id = $1
	`, questionID)

	var q Question
	if err := row.Scan(&q.ID, &q.TestID, &q.QuestionText, &q.QuestionType, &q.Points, &q.CreatedAt, &q.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrQuestionNotFound
		}
		return nil, fmt.Errorf("load question: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, option_text, is_correct, display_order
		FROM options
		WHERE question_id = $1
		ORDER BY display_order, id
	`, questionID)
	if err != nil {
		return nil, fmt.Errorf("query question options: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var opt Option
		if err := rows.Scan(&opt.ID, &opt.OptionText, &opt.IsCorrect, &opt.DisplayOrder); err != nil {
			return nil, fmt.Errorf("scan question option: %w", err)
		}
		q.Options = append(q.Options, opt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate question options: %w", err)
	}
	return &q, nil
}

// RandomizeOptions persists a new shuffled display order for the options
// of one multiple-choice question.
func (s *Service) RandomizeOptions(ctx context.Context, questionID int64) (*Question, error) {
	q, err := s.GetQuestion(ctx, questionID)
	if err != nil {
		return nil, err
	}
	if q.QuestionType != "multiple_choice" {
		return nil, ErrNotMultipleChoice
	}

	order := rand.Perm(len(q.Options))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin randomize tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for i, opt := range q.Options {
		if _, err := tx.ExecContext(ctx, `
			UPDATE options SET display_order = $2 WHERE id = $1
		`, opt.ID, order[i]); err != nil {
			return nil, fmt.Errorf("update option order: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit randomize tx: %w", err)
	}
	return s.GetQuestion(ctx, questionID)
}

// GetQuestionTestOwner resolves the owner of the test a question belongs
// to, for the ownership policy at the handler boundary.
func (s *Service) GetQuestionTestOwner(ctx context.Context, questionID int64) (int64, error) {
	var ownerID int64
	err := s.db.QueryRowContext(ctx, `
		SELECT t.created_by
		FROM questions q
		JOIN tests t ON t.id = q.test_id
		WHERE q.id = $1
	`, questionID).Scan(&ownerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrQuestionNotFound
		}
		return 0, fmt.Errorf("load question test owner: %w", err)
	}
	return ownerID, nil
}

func insertOptions(ctx context.Context, tx *sql.Tx, questionID int64, options []OptionInput) ([]Option, error) {
	out := make([]Option, 0, len(options))
	for i, opt := range options {
		row := tx.QueryRowContext(ctx, `
			INSERT INTO options (question_id, option_text, is_correct, display_order)
			VALUES ($1, $2, $3, $4)
			RETURNING id, option_text, is_correct, display_order
		`, questionID, strings.TrimSpace(opt.OptionText), opt.IsCorrect, i)

		var o Option
		if err := row.Scan(&o.ID, &o.OptionText, &o.IsCorrect, &o.DisplayOrder); err != nil {
			return nil, fmt.Errorf("insert option: %w", err)
		}
		out = append(out, o)
	}
	return out, nil
}

func validateQuestionInput(in QuestionInput) error {
	if in.TestID <= 0 || strings.TrimSpace(in.QuestionText) == "" {
		return fmt.Errorf("%w: test_id and question_text are required", ErrInvalidInput)
	}
	if in.Points <= 0 {
		return fmt.Errorf("%w: points must be positive", ErrInvalidInput)
	}

	switch in.QuestionType {
	case "multiple_choice":
		return validateOptionRule(in.Options)
	case "essay":
		if len(in.Options) > 0 {
			return fmt.Errorf("%w: essay questions take no options", ErrInvalidInput)
		}
		return nil
	default:
		return fmt.Errorf("%w: question_type must be multiple_choice or essay", ErrInvalidInput)
	}
}

func validateOptionRule(options []OptionInput) error {
	if len(options) < 2 {
		return ErrOptionRule
	}
	correct := 0
	for _, opt := range options {
		if strings.TrimSpace(opt.OptionText) == "" {
			return fmt.Errorf("%w: option text must not be empty", ErrInvalidInput)
		}
		if opt.IsCorrect {
			correct++
		}
	}
	if correct != 1 {
		return ErrOptionRule
	}
	return nil
}
