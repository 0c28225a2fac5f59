package report

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"examportal/internal/auth"

	"github.com/go-chi/chi/v5"
)

type mockReportService struct {
	resultsFn              func(ctx context.Context, testID int64) ([]StudentResult, error)
	analyticsFn            func(ctx context.Context, testID int64) (*Analytics, error)
	summaryFn              func(ctx context.Context, testID int64) (*Summary, error)
	listPendingFn          func(ctx context.Context, testID int64) ([]PendingResponse, error)
	studentResponsesFn     func(ctx context.Context, testID, studentID int64) (*StudentBreakdown, error)
	gradeResponseFn        func(ctx context.Context, in GradeInput) (*GradedResponse, error)
	bulkGradeFn            func(ctx context.Context, grades []GradeInput) ([]GradedResponse, error)
	getResponseTestOwnerFn func(ctx context.Context, responseID int64) (int64, error)
	exportResultsFn        func(ctx context.Context, testID int64) ([]byte, error)
}

func (m *mockReportService) Results(ctx context.Context, testID int64) ([]StudentResult, error) {
	if m.resultsFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.resultsFn(ctx, testID)
}

func (m *mockReportService) Analytics(ctx context.Context, testID int64) (*Analytics, error) {
	if m.analyticsFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.analyticsFn(ctx, testID)
}

func (m *mockReportService) Summary(ctx context.Context, testID int64) (*Summary, error) {
	if m.summaryFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.summaryFn(ctx, testID)
}

func (m *mockReportService) ListPending(ctx context.Context, testID int64) ([]PendingResponse, error) {
	if m.listPendingFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.listPendingFn(ctx, testID)
}

func (m *mockReportService) StudentResponses(ctx context.Context, testID, studentID int64) (*StudentBreakdown, error) {
	if m.studentResponsesFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.studentResponsesFn(ctx, testID, studentID)
}

func (m *mockReportService) GradeResponse(ctx context.Context, in GradeInput) (*GradedResponse, error) {
	if m.gradeResponseFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.gradeResponseFn(ctx, in)
}

func (m *mockReportService) BulkGrade(ctx context.Context, grades []GradeInput) ([]GradedResponse, error) {
	if m.bulkGradeFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.bulkGradeFn(ctx, grades)
}

func (m *mockReportService) GetResponseTestOwner(ctx context.Context, responseID int64) (int64, error) {
	if m.getResponseTestOwnerFn == nil {
		return 0, errors.New("not implemented")
	}
	return m.getResponseTestOwnerFn(ctx, responseID)
}

func (m *mockReportService) ExportResults(ctx context.Context, testID int64) ([]byte, error) {
	if m.exportResultsFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.exportResultsFn(ctx, testID)
}

func newTestRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()
	r.Get("/admin/tests/{id}/students/{studentID}/responses", h.StudentResponses)
	return r
}

func asAdmin(r *http.Request) *http.Request {
	return r.WithContext(auth.ContextWithUser(r.Context(), &auth.User{ID: 1, Role: "admin"}))
}

func TestStudentResponsesHandler(t *testing.T) {
	score := 5.0
	svc := &mockReportService{
		studentResponsesFn: func(ctx context.Context, testID, studentID int64) (*StudentBreakdown, error) {
			if testID != 7 || studentID != 3 {
				t.Fatalf("unexpected args: test=%d student=%d", testID, studentID)
			}
			return &StudentBreakdown{
				StudentID:  3,
				Nosis:      "2026-001",
				Name:       "Tester",
				TotalScore: 5,
				MaxScore:   25,
				Items: []ResponseItem{
					{ResponseID: 11, QuestionID: 1, QuestionType: "multiple_choice", Points: 5, Answer: "10", Score: &score},
					{ResponseID: 12, QuestionID: 2, QuestionType: "essay", Points: 20, Answer: "pending"},
				},
			}, nil
		},
	}
	router := newTestRouter(NewHandler(svc))

	req := httptest.NewRequest(http.MethodGet, "/admin/tests/7/students/3/responses", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, asAdmin(req))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var body struct {
		Data struct {
			Nosis string         `json:"nosis"`
			Items []ResponseItem `json:"items"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Data.Nosis != "2026-001" || len(body.Data.Items) != 2 {
		t.Fatalf("unexpected payload: %+v", body.Data)
	}
	if body.Data.Items[1].Score != nil {
		t.Fatalf("ungraded item carries a score: %+v", body.Data.Items[1])
	}
}

func TestStudentResponsesHandler_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		serviceErr error
		wantStatus int
	}{
		{name: "missing test", serviceErr: ErrTestNotFound, wantStatus: http.StatusNotFound},
		{name: "missing student", serviceErr: ErrStudentNotFound, wantStatus: http.StatusNotFound},
		{name: "no submission", serviceErr: ErrNoResponses, wantStatus: http.StatusNotFound},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc := &mockReportService{
				studentResponsesFn: func(ctx context.Context, testID, studentID int64) (*StudentBreakdown, error) {
					return nil, tc.serviceErr
				},
			}
			router := newTestRouter(NewHandler(svc))

			req := httptest.NewRequest(http.MethodGet, "/admin/tests/7/students/3/responses", nil)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, asAdmin(req))

			if rec.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
		})
	}
}
