package report

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/xuri/excelize/v2"
)

var (
	ErrTestNotFound     = errors.New("test not found")
	ErrStudentNotFound  = errors.New("student not found")
	ErrResponseNotFound = errors.New("response not found")
	ErrNoResponses      = errors.New("student has no responses for this test")
	ErrScoreOutOfRange  = errors.New("score must be between zero and the question's points")
	ErrInvalidInput     = errors.New("invalid input")
)

type Service struct {
	db *sql.DB
}

// StudentResult is one row of the admin results table: a student's
// aggregate over a test.
type StudentResult struct {
	StudentID   int64     `json:"student_id"`
	Nosis       string    `json:"nosis"`
	Name        string    `json:"name"`
	Pokjar      string    `json:"pokjar"`
	TotalScore  float64   `json:"total_score"`
	MaxScore    float64   `json:"max_score"`
	Graded      bool      `json:"graded"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// QuestionStat reports per-question analytics. Correct counts responses
// whose score equals the question's points; partial and still-ungraded
// answers are not correct. Difficulty is 1 minus the correct share, nil
// only when the question has no responses at all.
type QuestionStat struct {
	QuestionID   int64    `json:"question_id"`
	QuestionText string   `json:"question_text"`
	QuestionType string   `json:"question_type"`
	Points       int      `json:"points"`
	Responses    int      `json:"responses"`
	Correct      int      `json:"correct"`
	Difficulty   *float64 `json:"difficulty"`
}

type ScoreBucket struct {
	Low   int `json:"low"`
	Count int `json:"count"`
}

type Analytics struct {
	TestID        int64          `json:"test_id"`
	QuestionStats []QuestionStat `json:"question_stats"`
	Distribution  []ScoreBucket  `json:"distribution"`
}

type Summary struct {
	TestID       int64   `json:"test_id"`
	Participants int     `json:"participants"`
	AverageScore float64 `json:"average_score"`
	HighestScore float64 `json:"highest_score"`
	LowestScore  float64 `json:"lowest_score"`
	PassingScore *int    `json:"passing_score,omitempty"`
	PassedCount  *int    `json:"passed_count,omitempty"`
}

// GradeInput scores one essay response by hand.
type GradeInput struct {
	ResponseID int64
	Score      float64
	Feedback   string
}

type GradedResponse struct {
	ResponseID int64   `json:"response_id"`
	QuestionID int64   `json:"question_id"`
	StudentID  int64   `json:"student_id"`
	Score      float64 `json:"score"`
	Feedback   *string `json:"feedback,omitempty"`
}

// ResponseItem is one answer of a student's per-question breakdown.
type ResponseItem struct {
	ResponseID   int64    `json:"response_id"`
	QuestionID   int64    `json:"question_id"`
	QuestionText string   `json:"question_text"`
	QuestionType string   `json:"question_type"`
	Points       int      `json:"points"`
	Answer       string   `json:"answer"`
	Score        *float64 `json:"score"`
	Feedback     *string  `json:"feedback,omitempty"`
}

// StudentBreakdown is one student's full paper on a test, the view a
// grader reads answers from.
type StudentBreakdown struct {
	StudentID  int64          `json:"student_id"`
	Nosis      string         `json:"nosis"`
	Name       string         `json:"name"`
	TotalScore float64        `json:"total_score"`
	MaxScore   float64        `json:"max_score"`
	Graded     bool           `json:"graded"`
	Items      []ResponseItem `json:"items"`
}

// PendingResponse is an ungraded essay answer queued for the grader.
type PendingResponse struct {
	ResponseID   int64  `json:"response_id"`
	QuestionID   int64  `json:"question_id"`
	QuestionText string `json:"question_text"`
	Points       int    `json:"points"`
	StudentID    int64  `json:"student_id"`
	StudentName  string `json:"student_name"`
	Nosis        string `json:"nosis"`
	Answer       string `json:"answer"`
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// Results aggregates each participating student's total over a test,
// ordered by total descending.
func (s *Service) Results(ctx context.Context, testID int64) ([]StudentResult, error) {
	if err := s.checkTestExists(ctx, testID); err != nil {
		return nil, err
	}

	maxScore, err := s.testMaxScore(ctx, testID)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT st.id, st.nosis, st.name, st.pokjar,
			COALESCE(SUM(r.score), 0),
			COUNT(*) FILTER (WHERE r.score IS NULL) = 0,
			MAX(r.created_at)
		FROM responses r
		JOIN students st ON st.id = r.student_id
		WHERE r.test_id = $1
		GROUP BY st.id, st.nosis, st.name, st.pokjar
		ORDER BY COALESCE(SUM(r.score), 0) DESC, st.nosis ASC
	`, testID)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	out := make([]StudentResult, 0)
	for rows.Next() {
		var row StudentResult
		if err := rows.Scan(&row.StudentID, &row.Nosis, &row.Name, &row.Pokjar,
			&row.TotalScore, &row.Graded, &row.SubmittedAt); err != nil {
			return nil, fmt.Errorf("scan result row: %w", err)
		}
		row.MaxScore = maxScore
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate results: %w", err)
	}
	return out, nil
}

// Analytics builds the per-question difficulty table and the score
// distribution over per-student totals in 10-point buckets.
func (s *Service) Analytics(ctx context.Context, testID int64) (*Analytics, error) {
	if err := s.checkTestExists(ctx, testID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT q.id, q.question_text, q.question_type, q.points,
			COUNT(r.id),
			COUNT(r.id) FILTER (WHERE r.score = q.points)
		FROM questions q
		LEFT JOIN responses r ON r.question_id = q.id
		WHERE q.test_id = $1
		GROUP BY q.id, q.question_text, q.question_type, q.points
		ORDER BY q.id ASC
	`, testID)
	if err != nil {
		return nil, fmt.Errorf("query question stats: %w", err)
	}
	defer rows.Close()

	stats := make([]QuestionStat, 0)
	for rows.Next() {
		var st QuestionStat
		if err := rows.Scan(&st.QuestionID, &st.QuestionText, &st.QuestionType, &st.Points,
			&st.Responses, &st.Correct); err != nil {
			return nil, fmt.Errorf("scan question stat: %w", err)
		}
		if st.Responses > 0 {
			d := 1 - float64(st.Correct)/float64(st.Responses)
			st.Difficulty = &d
		}
		stats = append(stats, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate question stats: %w", err)
	}

	totals, err := s.studentTotals(ctx, testID)
	if err != nil {
		return nil, err
	}

	return &Analytics{
		TestID:        testID,
		QuestionStats: stats,
		Distribution:  BucketScores(totals),
	}, nil
}

func (s *Service) Summary(ctx context.Context, testID int64) (*Summary, error) {
	var passingScore sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `
		SELECT passing_score FROM tests WHERE id = $1
	`, testID).Scan(&passingScore); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTestNotFound
		}
		return nil, fmt.Errorf("load test: %w", err)
	}

	totals, err := s.studentTotals(ctx, testID)
	if err != nil {
		return nil, err
	}

	summary := &Summary{TestID: testID, Participants: len(totals)}
	if passingScore.Valid {
		v := int(passingScore.Int64)
		summary.PassingScore = &v
	}
	if len(totals) == 0 {
		return summary, nil
	}

	sum := 0.0
	summary.HighestScore = totals[0]
	summary.LowestScore = totals[0]
	passed := 0
	for _, t := range totals {
		sum += t
		if t > summary.HighestScore {
			summary.HighestScore = t
		}
		if t < summary.LowestScore {
			summary.LowestScore = t
		}
		if passingScore.Valid && t >= float64(passingScore.Int64) {
			passed++
		}
	}
	summary.AverageScore = sum / float64(len(totals))
	if passingScore.Valid {
		summary.PassedCount = &passed
	}
	return summary, nil
}

// ListPending returns the ungraded essay responses of a test.
func (s *Service) ListPending(ctx context.Context, testID int64) ([]PendingResponse, error) {
	if err := s.checkTestExists(ctx, testID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, q.id, q.question_text, q.points,
			st.id, st.name, st.nosis, r.answer
		FROM responses r
		JOIN questions q ON q.id = r.question_id
		JOIN students st ON st.id = r.student_id
		WHERE r.test_id = $1 AND r.score IS NULL
		ORDER BY st.nosis ASC, q.id ASC
	`, testID)
	if err != nil {
		return nil, fmt.Errorf("query pending responses: %w", err)
	}
	defer rows.Close()

	out := make([]PendingResponse, 0)
	for rows.Next() {
		var p PendingResponse
		if err := rows.Scan(&p.ResponseID, &p.QuestionID, &p.QuestionText, &p.Points,
			&p.StudentID, &p.StudentName, &p.Nosis, &p.Answer); err != nil {
			return nil, fmt.Errorf("scan pending response: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending responses: %w", err)
	}
	return out, nil
}

// StudentResponses assembles one student's per-question answers, scores
// and feedback on a test.
func (s *Service) StudentResponses(ctx context.Context, testID, studentID int64) (*StudentBreakdown, error) {
	if err := s.checkTestExists(ctx, testID); err != nil {
		return nil, err
	}

	breakdown := &StudentBreakdown{StudentID: studentID, Graded: true, Items: make([]ResponseItem, 0)}
	err := s.db.QueryRowContext(ctx, `
		SELECT nosis, name FROM students WHERE id = $1
	`, studentID).Scan(&breakdown.Nosis, &breakdown.Name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrStudentNotFound
		}
		return nil, fmt.Errorf("load student: %w", err)
	}

	maxScore, err := s.testMaxScore(ctx, testID)
	if err != nil {
		return nil, err
	}
	breakdown.MaxScore = maxScore

	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, q.id, q.question_text, q.question_type, q.points,
			r.answer, r.score, r.feedback
		FROM responses r
		JOIN questions q ON q.id = r.question_id
		WHERE r.test_id = $1 AND r.student_id = $2
		ORDER BY q.id ASC
	`, testID, studentID)
	if err != nil {
		return nil, fmt.Errorf("query student responses: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item ResponseItem
		var score sql.NullFloat64
		var feedback sql.NullString
		if err := rows.Scan(&item.ResponseID, &item.QuestionID, &item.QuestionText, &item.QuestionType,
			&item.Points, &item.Answer, &score, &feedback); err != nil {
			return nil, fmt.Errorf("scan student response: %w", err)
		}
		if score.Valid {
			v := score.Float64
			item.Score = &v
			breakdown.TotalScore += v
		} else {
			breakdown.Graded = false
		}
		if feedback.Valid {
			fb := feedback.String
			item.Feedback = &fb
		}
		breakdown.Items = append(breakdown.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate student responses: %w", err)
	}
	if len(breakdown.Items) == 0 {
		return nil, ErrNoResponses
	}
	return breakdown, nil
}

// GradeResponse sets the score of one response, capped to the owning
// question's points.
func (s *Service) GradeResponse(ctx context.Context, in GradeInput) (*GradedResponse, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin grade tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	graded, err := gradeOne(ctx, tx, in)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit grade tx: %w", err)
	}
	return graded, nil
}

// BulkGrade applies a batch of grades all-or-nothing: one bad row rolls
// every grade in the batch back.
func (s *Service) BulkGrade(ctx context.Context, grades []GradeInput) ([]GradedResponse, error) {
	if len(grades) == 0 {
		return nil, ErrInvalidInput
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin bulk grade tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	out := make([]GradedResponse, 0, len(grades))
	for _, in := range grades {
		graded, err := gradeOne(ctx, tx, in)
		if err != nil {
			return nil, err
		}
		out = append(out, *graded)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit bulk grade tx: %w", err)
	}
	return out, nil
}

// GetResponseTestOwner resolves the owner of the test a response belongs
// to, for the grading ownership policy.
func (s *Service) GetResponseTestOwner(ctx context.Context, responseID int64) (int64, error) {
	var ownerID int64
	err := s.db.QueryRowContext(ctx, `
		SELECT t.created_by
		FROM responses r
		JOIN tests t ON t.id = r.test_id
		WHERE r.id = $1
	`, responseID).Scan(&ownerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrResponseNotFound
		}
		return 0, fmt.Errorf("load response test owner: %w", err)
	}
	return ownerID, nil
}

// ExportResults renders the results table of a test as an xlsx workbook.
func (s *Service) ExportResults(ctx context.Context, testID int64) ([]byte, error) {
	var title string
	if err := s.db.QueryRowContext(ctx, `
		SELECT title FROM tests WHERE id = $1
	`, testID).Scan(&title); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTestNotFound
		}
		return nil, fmt.Errorf("load test title: %w", err)
	}

	results, err := s.Results(ctx, testID)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	headers := []string{"nosis", "name", "pokjar", "total_score", "max_score", "graded", "submitted_at"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}
	for i, row := range results {
		values := []any{
			row.Nosis,
			row.Name,
			row.Pokjar,
			row.TotalScore,
			row.MaxScore,
			row.Graded,
			row.SubmittedAt.Format("2006-01-02 15:04:05"),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, i+2)
			_ = f.SetCellValue(sheet, cell, v)
		}
	}
	_ = f.SetColWidth(sheet, "A", "G", 20)
	_ = f.SetSheetName(sheet, "Results")

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write excel: %w", err)
	}
	return buf.Bytes(), nil
}

func gradeOne(ctx context.Context, tx *sql.Tx, in GradeInput) (*GradedResponse, error) {
	if in.ResponseID <= 0 {
		return nil, ErrInvalidInput
	}

	var questionID, studentID int64
	var points int
	err := tx.QueryRowContext(ctx, `
		SELECT r.question_id, r.student_id, q.points
		FROM responses r
		JOIN questions q ON q.id = r.question_id
		WHERE r.id = $1
		FOR UPDATE OF r
	`, in.ResponseID).Scan(&questionID, &studentID, &points)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrResponseNotFound
		}
		return nil, fmt.Errorf("load response for grading: %w", err)
	}

	if in.Score < 0 || in.Score > float64(points) {
		return nil, fmt.Errorf("%w: response %d", ErrScoreOutOfRange, in.ResponseID)
	}

	var feedback interface{}
	if in.Feedback != "" {
		feedback = in.Feedback
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE responses
		SET score = $2, feedback = $3, updated_at = now()
		WHERE id = $1
	`, in.ResponseID, in.Score, feedback); err != nil {
		return nil, fmt.Errorf("update response grade: %w", err)
	}

	graded := &GradedResponse{
		ResponseID: in.ResponseID,
		QuestionID: questionID,
		StudentID:  studentID,
		Score:      in.Score,
	}
	if in.Feedback != "" {
		fb := in.Feedback
		graded.Feedback = &fb
	}
	return graded, nil
}

// BucketScores groups totals into ascending 10-point buckets keyed by
// their lower bound.
func BucketScores(totals []float64) []ScoreBucket {
	counts := make(map[int]int)
	for _, t := range totals {
		low := int(t/10) * 10
		counts[low]++
	}

	lows := make([]int, 0, len(counts))
	for low := range counts {
		lows = append(lows, low)
	}
	sort.Ints(lows)

	out := make([]ScoreBucket, 0, len(lows))
	for _, low := range lows {
		out = append(out, ScoreBucket{Low: low, Count: counts[low]})
	}
	return out
}

func (s *Service) studentTotals(ctx context.Context, testID int64) ([]float64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT COALESCE(SUM(score), 0)
		FROM responses
		WHERE test_id = $1
		GROUP BY student_id
	`, testID)
	if err != nil {
		return nil, fmt.Errorf("query student totals: %w", err)
	}
	defer rows.Close()

	out := make([]float64, 0)
	for rows.Next() {
		var t float64
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scan student total: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate student totals: %w", err)
	}
	return out, nil
}

func (s *Service) testMaxScore(ctx context.Context, testID int64) (float64, error) {
	var max float64
	if err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(points), 0) FROM questions WHERE test_id = $1
	`, testID).Scan(&max); err != nil {
		return 0, fmt.Errorf("query test max score: %w", err)
	}
	return max, nil
}

func (s *Service) checkTestExists(ctx context.Context, testID int64) error {
	var exists bool
	if err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM tests WHERE id = $1)
	`, testID).Scan(&exists); err != nil {
		return fmt.Errorf("check test exists: %w", err)
	}
	if !exists {
		return ErrTestNotFound
	}
	return nil
}
