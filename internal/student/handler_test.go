package student

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type mockStudentService struct {
	registerFn          func(ctx context.Context, in RegisterInput) (*Student, string, time.Time, error)
	getSessionStudentFn func(ctx context.Context, token string) (*Student, error)
	revokeSessionFn     func(ctx context.Context, token string) error
	listStudentsFn      func(ctx context.Context) ([]Student, error)
	getStudentFn        func(ctx context.Context, studentID int64) (*Student, error)
	importCSVFn         func(ctx context.Context, rd io.Reader) (*ImportResult, error)
}

func (m *mockStudentService) Register(ctx context.Context, in RegisterInput) (*Student, string, time.Time, error) {
	if m.registerFn == nil {
		return nil, "", time.Time{}, errors.New("not implemented")
	}
	return m.registerFn(ctx, in)
}

func (m *mockStudentService) GetSessionStudent(ctx context.Context, token string) (*Student, error) {
	if m.getSessionStudentFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.getSessionStudentFn(ctx, token)
}

func (m *mockStudentService) RevokeSession(ctx context.Context, token string) error {
	if m.revokeSessionFn == nil {
		return errors.New("not implemented")
	}
	return m.revokeSessionFn(ctx, token)
}

func (m *mockStudentService) ListStudents(ctx context.Context) ([]Student, error) {
	if m.listStudentsFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.listStudentsFn(ctx)
}

func (m *mockStudentService) GetStudent(ctx context.Context, studentID int64) (*Student, error) {
	if m.getStudentFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.getStudentFn(ctx, studentID)
}

func (m *mockStudentService) ImportCSV(ctx context.Context, rd io.Reader) (*ImportResult, error) {
	if m.importCSVFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.importCSVFn(ctx, rd)
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return body.Error.Code
}

func TestRequireStudent_MissingSession(t *testing.T) {
	svc := &mockStudentService{
		getSessionStudentFn: func(ctx context.Context, token string) (*Student, error) {
			if token != "" {
				t.Fatalf("token = %q, want empty", token)
			}
			return nil, ErrUnauthorized
		},
	}
	mw := NewHandler(svc).RequireStudent(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("next handler must not run")
	}))

	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tests/available", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
	if code := errorCode(t, rec); code != "biodata_required" {
		t.Fatalf("error code = %q, want biodata_required", code)
	}
}

func TestRequireStudent_LookupFailureIsNotBiodata(t *testing.T) {
	svc := &mockStudentService{
		getSessionStudentFn: func(ctx context.Context, token string) (*Student, error) {
			return nil, fmt.Errorf("query session student: %w", errors.New("connection refused"))
		},
	}
	mw := NewHandler(svc).RequireStudent(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("next handler must not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/tests/available", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: "some-token"})
	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
	if code := errorCode(t, rec); code == "biodata_required" {
		t.Fatal("database failure must not masquerade as a missing biodata session")
	}
}

func TestRequireStudent_ValidSession(t *testing.T) {
	svc := &mockStudentService{
		getSessionStudentFn: func(ctx context.Context, token string) (*Student, error) {
			if token != "good-token" {
				return nil, ErrUnauthorized
			}
			return &Student{ID: 3, Nosis: "2026-001"}, nil
		},
	}

	var seen *Student
	mw := NewHandler(svc).RequireStudent(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = CurrentStudent(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/tests/available", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: "good-token"})
	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if seen == nil || seen.ID != 3 {
		t.Fatalf("student in context = %+v, want id 3", seen)
	}
}
