package exam

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"examportal/internal/auth"
	"examportal/internal/student"

	"github.com/go-chi/chi/v5"
)

type mockExamService struct {
	createTestFn          func(ctx context.Context, createdBy int64, in TestInput) (*Test, error)
	updateTestFn          func(ctx context.Context, testID int64, in TestInput) (*Test, error)
	deleteTestFn          func(ctx context.Context, testID int64) error
	duplicateTestFn       func(ctx context.Context, testID, createdBy int64) (*Test, error)
	toggleRandomizationFn func(ctx context.Context, testID int64) (*Test, error)
	listAdminTestsFn      func(ctx context.Context) ([]AdminTestRow, error)
	getTestFn             func(ctx context.Context, testID int64) (*Test, error)
	getTestOwnerFn        func(ctx context.Context, testID int64) (int64, error)
	listAvailableTestsFn  func(ctx context.Context, studentID int64) ([]Test, error)
	startTestFn           func(ctx context.Context, testID, studentID int64) (*TakeTest, error)
	submitTestFn          func(ctx context.Context, in SubmitInput) (*SubmitReceipt, error)
	getStudentResultFn    func(ctx context.Context, testID, studentID int64) (*Result, error)
	listHistoryFn         func(ctx context.Context, studentID int64) ([]HistoryRow, error)
}

func (m *mockExamService) CreateTest(ctx context.Context, createdBy int64, in TestInput) (*Test, error) {
	if m.createTestFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.createTestFn(ctx, createdBy, in)
}

func (m *mockExamService) UpdateTest(ctx context.Context, testID int64, in TestInput) (*Test, error) {
	if m.updateTestFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.updateTestFn(ctx, testID, in)
}

func (m *mockExamService) DeleteTest(ctx context.Context, testID int64) error {
	if m.deleteTestFn == nil {
		return errors.New("not implemented")
	}
	return m.deleteTestFn(ctx, testID)
}

func (m *mockExamService) DuplicateTest(ctx context.Context, testID, createdBy int64) (*Test, error) {
	if m.duplicateTestFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.duplicateTestFn(ctx, testID, createdBy)
}

func (m *mockExamService) ToggleRandomization(ctx context.Context, testID int64) (*Test, error) {
	if m.toggleRandomizationFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.toggleRandomizationFn(ctx, testID)
}

func (m *mockExamService) ListAdminTests(ctx context.Context) ([]AdminTestRow, error) {
	if m.listAdminTestsFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.listAdminTestsFn(ctx)
}

func (m *mockExamService) GetTest(ctx context.Context, testID int64) (*Test, error) {
	if m.getTestFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.getTestFn(ctx, testID)
}

func (m *mockExamService) GetTestOwner(ctx context.Context, testID int64) (int64, error) {
	if m.getTestOwnerFn == nil {
		return 0, errors.New("not implemented")
	}
	return m.getTestOwnerFn(ctx, testID)
}

func (m *mockExamService) ListAvailableTests(ctx context.Context, studentID int64) ([]Test, error) {
	if m.listAvailableTestsFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.listAvailableTestsFn(ctx, studentID)
}

func (m *mockExamService) StartTest(ctx context.Context, testID, studentID int64) (*TakeTest, error) {
	if m.startTestFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.startTestFn(ctx, testID, studentID)
}

func (m *mockExamService) SubmitTest(ctx context.Context, in SubmitInput) (*SubmitReceipt, error) {
	if m.submitTestFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.submitTestFn(ctx, in)
}

func (m *mockExamService) GetStudentResult(ctx context.Context, testID, studentID int64) (*Result, error) {
	if m.getStudentResultFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.getStudentResultFn(ctx, testID, studentID)
}

func (m *mockExamService) ListHistory(ctx context.Context, studentID int64) ([]HistoryRow, error) {
	if m.listHistoryFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.listHistoryFn(ctx, studentID)
}

func newTestRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()
	r.Get("/tests/available", h.ListAvailable)
	r.Get("/tests/{id}/take", h.Start)
	r.Post("/tests/{id}/submit", h.Submit)
	r.Get("/tests/{id}/result", h.Result)
	r.Get("/admin/tests", h.ListAdminTests)
	r.Post("/admin/tests", h.CreateTest)
	r.Put("/admin/tests/{id}", h.UpdateTest)
	r.Delete("/admin/tests/{id}", h.DeleteTest)
	r.Post("/admin/tests/{id}/toggle-randomization", h.ToggleRandomization)
	return r
}

func withStudent(r *http.Request, id int64) *http.Request {
	ctx := student.ContextWithStudent(r.Context(), &student.Student{ID: id, Nosis: "2026-001", Name: "Tester"})
	return r.WithContext(ctx)
}

func withUser(r *http.Request, id int64, role string) *http.Request {
	ctx := auth.ContextWithUser(r.Context(), &auth.User{ID: id, Role: role})
	return r.WithContext(ctx)
}

func mustTime(t *testing.T, raw string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		t.Fatalf("parse time %q: %v", raw, err)
	}
	return ts
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return body
}

func TestStartHandler_EligibilityErrors(t *testing.T) {
	tests := []struct {
		name       string
		serviceErr error
		wantStatus int
		wantCode   string
	}{
		{name: "outside window", serviceErr: ErrTestNotAvailable, wantStatus: http.StatusUnprocessableEntity, wantCode: "test_not_available"},
		{name: "already attempted", serviceErr: ErrAlreadyAttempted, wantStatus: http.StatusConflict, wantCode: "already_attempted"},
		{name: "missing test", serviceErr: ErrTestNotFound, wantStatus: http.StatusNotFound, wantCode: "not_found"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc := &mockExamService{
				startTestFn: func(ctx context.Context, testID, studentID int64) (*TakeTest, error) {
					return nil, tc.serviceErr
				},
			}
			router := newTestRouter(NewHandler(svc))

			req := httptest.NewRequest(http.MethodGet, "/tests/7/take", nil)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, withStudent(req, 3))

			if rec.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
			body := decodeEnvelope(t, rec)
			errObj, _ := body["error"].(map[string]any)
			if errObj == nil || errObj["code"] != tc.wantCode {
				t.Fatalf("error code = %v, want %q", errObj, tc.wantCode)
			}
		})
	}
}

func TestStartHandler_RequiresStudentSession(t *testing.T) {
	router := newTestRouter(NewHandler(&mockExamService{}))

	req := httptest.NewRequest(http.MethodGet, "/tests/7/take", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestStartHandler_DeliversPaperWithoutAnswerKey(t *testing.T) {
	svc := &mockExamService{
		startTestFn: func(ctx context.Context, testID, studentID int64) (*TakeTest, error) {
			if testID != 7 || studentID != 3 {
				t.Fatalf("unexpected args: test=%d student=%d", testID, studentID)
			}
			return &TakeTest{
				Test: Test{ID: 7, Title: "Midterm"},
				Questions: []TakeQuestion{
					{ID: 1, QuestionText: "2+2?", QuestionType: QuestionTypeMultipleChoice, Points: 5,
						Options: []TakeOption{{ID: 10, OptionText: "3"}, {ID: 11, OptionText: "4"}}},
				},
			}, nil
		},
	}
	router := newTestRouter(NewHandler(svc))

	req := httptest.NewRequest(http.MethodGet, "/tests/7/take", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, withStudent(req, 3))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if bytes.Contains(rec.Body.Bytes(), []byte("is_correct")) {
		t.Fatal("take payload leaks is_correct")
	}
}

func TestSubmitHandler_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		serviceErr error
		wantStatus int
	}{
		{name: "window closed", serviceErr: ErrTestClosed, wantStatus: http.StatusUnprocessableEntity},
		{name: "double submit", serviceErr: ErrAlreadyAttempted, wantStatus: http.StatusConflict},
		{name: "foreign question", serviceErr: ErrInvalidQuestion, wantStatus: http.StatusBadRequest},
		{name: "incomplete", serviceErr: ErrIncompleteSubmission, wantStatus: http.StatusBadRequest},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc := &mockExamService{
				submitTestFn: func(ctx context.Context, in SubmitInput) (*SubmitReceipt, error) {
					return nil, tc.serviceErr
				},
			}
			router := newTestRouter(NewHandler(svc))

			payload := bytes.NewBufferString(`{"answers":[{"question_id":1,"answer":"10"}]}`)
			req := httptest.NewRequest(http.MethodPost, "/tests/7/submit", payload)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, withStudent(req, 3))

			if rec.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
		})
	}
}

func TestSubmitHandler_PassesStudentFromSession(t *testing.T) {
	var got SubmitInput
	svc := &mockExamService{
		submitTestFn: func(ctx context.Context, in SubmitInput) (*SubmitReceipt, error) {
			got = in
			return &SubmitReceipt{TestID: in.TestID, Answered: len(in.Answers), SubmittedAt: time.Now()}, nil
		},
	}
	router := newTestRouter(NewHandler(svc))

	payload := bytes.NewBufferString(`{"answers":[{"question_id":1,"answer":"10"},{"question_id":2,"answer":"essay text"}]}`)
	req := httptest.NewRequest(http.MethodPost, "/tests/7/submit", payload)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, withStudent(req, 3))

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusCreated)
	}
	if got.TestID != 7 || got.StudentID != 3 || len(got.Answers) != 2 {
		t.Fatalf("unexpected submit input: %+v", got)
	}
}

func TestResultHandler_HiddenResults(t *testing.T) {
	svc := &mockExamService{
		getStudentResultFn: func(ctx context.Context, testID, studentID int64) (*Result, error) {
			return nil, ErrResultHidden
		},
	}
	router := newTestRouter(NewHandler(svc))

	req := httptest.NewRequest(http.MethodGet, "/tests/7/result", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, withStudent(req, 3))

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusForbidden)
	}
	body := decodeEnvelope(t, rec)
	errObj, _ := body["error"].(map[string]any)
	if errObj == nil || errObj["code"] != "result_hidden" {
		t.Fatalf("error code = %v, want result_hidden", errObj)
	}
}

func TestUpdateTest_OwnershipPolicy(t *testing.T) {
	svc := &mockExamService{
		getTestOwnerFn: func(ctx context.Context, testID int64) (int64, error) {
			return 99, nil
		},
		updateTestFn: func(ctx context.Context, testID int64, in TestInput) (*Test, error) {
			return &Test{ID: testID, Title: in.Title}, nil
		},
	}
	router := newTestRouter(NewHandler(svc))

	body := `{"title":"Updated","start_time":"2026-09-01T08:00:00Z","end_time":"2026-09-01T10:00:00Z"}`

	t.Run("foreign teacher forbidden", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPut, "/admin/tests/7", bytes.NewBufferString(body))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, withUser(req, 5, "teacher"))

		if rec.Code != http.StatusForbidden {
			t.Fatalf("status = %d, want %d", rec.Code, http.StatusForbidden)
		}
	})

	t.Run("owning teacher allowed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPut, "/admin/tests/7", bytes.NewBufferString(body))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, withUser(req, 99, "teacher"))

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
		}
	})

	t.Run("admin allowed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPut, "/admin/tests/7", bytes.NewBufferString(body))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, withUser(req, 1, "admin"))

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
		}
	})
}

func TestDeleteTest_NotFound(t *testing.T) {
	svc := &mockExamService{
		getTestOwnerFn: func(ctx context.Context, testID int64) (int64, error) {
			return 0, ErrTestNotFound
		},
	}
	router := newTestRouter(NewHandler(svc))

	req := httptest.NewRequest(http.MethodDelete, "/admin/tests/404", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, withUser(req, 1, "admin"))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestCreateTest_RejectsInvalidSchedule(t *testing.T) {
	router := newTestRouter(NewHandler(&mockExamService{
		createTestFn: func(ctx context.Context, createdBy int64, in TestInput) (*Test, error) {
			return nil, validateTestInput(in)
		},
	}))

	body := `{"title":"Backwards","start_time":"2026-09-01T10:00:00Z","end_time":"2026-09-01T08:00:00Z"}`
	req := httptest.NewRequest(http.MethodPost, "/admin/tests", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, withUser(req, 1, "admin"))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}
