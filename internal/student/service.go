package student

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrStudentNotFound = errors.New("student not found")
	ErrNosisExists     = errors.New("nosis already registered")
	ErrEmailExists     = errors.New("email already registered")
	ErrUnauthorized    = errors.New("student session required")
	ErrInvalidInput    = errors.New("invalid input")
)

type Service struct {
	db         *sql.DB
	sessionTTL time.Duration
}

type Student struct {
	ID        int64     `json:"id"`
	Nosis     string    `json:"nosis"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Pokjar    string    `json:"pokjar"`
	Batch     int       `json:"batch"`
	CreatedAt time.Time `json:"created_at"`
}

type RegisterInput struct {
	Nosis  string
	Name   string
	Email  string
	Pokjar string
	Batch  int
}

// ImportRowError reports one rejected CSV row; Line is 1-based and counts
// the header.
type ImportRowError struct {
	Line   int    `json:"line"`
	Reason string `json:"reason"`
}

type ImportResult struct {
	Imported int              `json:"imported"`
	Errors   []ImportRowError `json:"errors"`
}

func NewService(db *sql.DB, sessionTTL time.Duration) *Service {
	if sessionTTL <= 0 {
		sessionTTL = 12 * time.Hour
	}
	return &Service{db: db, sessionTTL: sessionTTL}
}

// Register creates the student record and a session in one transaction, so
// a student is never left registered but unable to continue to the exam.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Student, string, time.Time, error) {
	in = normalizeRegisterInput(in)
	if err := validateRegisterInput(in, time.Now()); err != nil {
		return nil, "", time.Time{}, err
	}

	token, err := generateToken()
	if err != nil {
		return nil, "", time.Time{}, fmt.Errorf("generate session token: %w", err)
	}
	expiresAt := time.Now().Add(s.sessionTTL)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, "", time.Time{}, fmt.Errorf("begin register tx: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `
		INSERT INTO students (nosis, name, email, pokjar, batch, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
		RETURNING id, nosis, name, email, pokjar, batch, created_at
	`, in.Nosis, in.Name, in.Email, in.Pokjar, in.Batch)

	var st Student
	if err := row.Scan(&st.ID, &st.Nosis, &st.Name, &st.Email, &st.Pokjar, &st.Batch, &st.CreatedAt); err != nil {
		if mapped := mapUniqueViolation(err); mapped != nil {
			return nil, "", time.Time{}, mapped
		}
		return nil, "", time.Time{}, fmt.Errorf("insert student: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO student_sessions (student_id, session_token_hash, expires_at, created_at)
		VALUES ($1, $2, $3, now())
	`, st.ID, hashToken(token), expiresAt)
	if err != nil {
		return nil, "", time.Time{}, fmt.Errorf("insert student session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, "", time.Time{}, fmt.Errorf("commit register tx: %w", err)
	}
	return &st, token, expiresAt, nil
}

func (s *Service) GetSessionStudent(ctx context.Context, token string) (*Student, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrUnauthorized
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT st.id, st.nosis, st.name, st.email, st.pokjar, st.batch, st.created_at
		FROM student_sessions ss
		JOIN students st ON st.id = ss.student_id
		WHERE ss.session_token_hash = $1
		  AND ss.expires_at > now()
	`, hashToken(token))

	var st Student
	if err := row.Scan(&st.ID, &st.Nosis, &st.Name, &st.Email, &st.Pokjar, &st.Batch, &st.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("query session student: %w", err)
	}
	return &st, nil
}

func (s *Service) RevokeSession(ctx context.Context, token string) error {
	if strings.TrimSpace(token) == "" {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM student_sessions WHERE session_token_hash = $1
	`, hashToken(token))
	if err != nil {
		return fmt.Errorf("revoke student session: %w", err)
	}
	return nil
}

func (s *Service) ListStudents(ctx context.Context) ([]Student, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, nosis, name, email, pokjar, batch, created_at
		FROM students
		ORDER BY nosis ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query students: %w", err)
	}
	defer rows.Close()

	out := make([]Student, 0)
	for rows.Next() {
		var st Student
		if err := rows.Scan(&st.ID, &st.Nosis, &st.Name, &st.Email, &st.Pokjar, &st.Batch, &st.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan student: %w", err)
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate students: %w", err)
	}
	return out, nil
}

func (s *Service) GetStudent(ctx context.Context, studentID int64) (*Student, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, nosis, name, email, pokjar, batch, created_at
		FROM students
		WHERE id = $1
	`, studentID)

	var st Student
	if err := row.Scan(&st.ID, &st.Nosis, &st.Name, &st.Email, &st.Pokjar, &st.Batch, &st.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrStudentNotFound
		}
		return nil, fmt.Errorf("query student: %w", err)
	}
	return &st, nil
}

// ImportCSV loads students from a CSV stream with the header
// nosis,name,email,pokjar,batch. Rows are inserted one by one; a bad row is
// reported and skipped so one typo does not sink the whole roster file.
func (s *Service) ImportCSV(ctx context.Context, rd io.Reader) (*ImportResult, error) {
	reader := csv.NewReader(rd)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	if err := checkImportHeader(header); err != nil {
		return nil, err
	}

	result := &ImportResult{Errors: []ImportRowError{}}
	line := 1
	now := time.Now()
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			result.Errors = append(result.Errors, ImportRowError{Line: line, Reason: "malformed csv row"})
			continue
		}
		if len(record) != 5 {
			result.Errors = append(result.Errors, ImportRowError{Line: line, Reason: "expected 5 columns"})
			continue
		}

		batch, err := strconv.Atoi(strings.TrimSpace(record[4]))
		if err != nil {
			result.Errors = append(result.Errors, ImportRowError{Line: line, Reason: "batch is not a number"})
			continue
		}
		in := normalizeRegisterInput(RegisterInput{
			Nosis:  record[0],
			Name:   record[1],
			Email:  record[2],
			Pokjar: record[3],
			Batch:  batch,
		})
		if err := validateRegisterInput(in, now); err != nil {
			result.Errors = append(result.Errors, ImportRowError{Line: line, Reason: err.Error()})
			continue
		}

		_, err = s.db.ExecContext(ctx, `
			INSERT INTO students (nosis, name, email, pokjar, batch, created_at)
			VALUES ($1, $2, $3, $4, $5, now())
		`, in.Nosis, in.Name, in.Email, in.Pokjar, in.Batch)
		if err != nil {
			if mapped := mapUniqueViolation(err); mapped != nil {
				result.Errors = append(result.Errors, ImportRowError{Line: line, Reason: mapped.Error()})
				continue
			}
			return nil, fmt.Errorf("insert imported student: %w", err)
		}
		result.Imported++
	}
	return result, nil
}

func checkImportHeader(header []string) error {
	want := []string{"nosis", "name", "email", "pokjar", "batch"}
	if len(header) != len(want) {
		return fmt.Errorf("%w: csv header must be nosis,name,email,pokjar,batch", ErrInvalidInput)
	}
	for i, col := range header {
		if strings.ToLower(strings.TrimSpace(col)) != want[i] {
			return fmt.Errorf("%w: csv header must be nosis,name,email,pokjar,batch", ErrInvalidInput)
		}
	}
	return nil
}

func normalizeRegisterInput(in RegisterInput) RegisterInput {
	in.Nosis = strings.TrimSpace(in.Nosis)
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Pokjar = strings.TrimSpace(in.Pokjar)
	return in
}

func validateRegisterInput(in RegisterInput, now time.Time) error {
	if in.Nosis == "" || in.Name == "" || in.Pokjar == "" {
		return fmt.Errorf("%w: nosis, name and pokjar are required", ErrInvalidInput)
	}
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return fmt.Errorf("%w: email is not valid", ErrInvalidInput)
	}
	if in.Batch < 1900 || in.Batch > now.Year()+1 {
		return fmt.Errorf("%w: batch must be between 1900 and %d", ErrInvalidInput, now.Year()+1)
	}
	return nil
}

func mapUniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return nil
	}
	if strings.Contains(pgErr.ConstraintName, "email") {
		return ErrEmailExists
	}
	return ErrNosisExists
}

func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
