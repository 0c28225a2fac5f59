package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"examportal/internal/app/apiresp"
	"examportal/internal/auth"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	svc reportService
}

type reportService interface {
	Results(ctx context.Context, testID int64) ([]StudentResult, error)
	Analytics(ctx context.Context, testID int64) (*Analytics, error)
	Summary(ctx context.Context, testID int64) (*Summary, error)
	ListPending(ctx context.Context, testID int64) ([]PendingResponse, error)
	StudentResponses(ctx context.Context, testID, studentID int64) (*StudentBreakdown, error)
	GradeResponse(ctx context.Context, in GradeInput) (*GradedResponse, error)
	BulkGrade(ctx context.Context, grades []GradeInput) ([]GradedResponse, error)
	GetResponseTestOwner(ctx context.Context, responseID int64) (int64, error)
	ExportResults(ctx context.Context, testID int64) ([]byte, error)
}

type gradeRequest struct {
	Score    float64 `json:"score"`
	Feedback string  `json:"feedback"`
}

type bulkGradeRequest struct {
	Grades []struct {
		ResponseID int64   `json:"response_id"`
		Score      float64 `json:"score"`
		Feedback   string  `json:"feedback"`
	} `json:"grades"`
}

func NewHandler(svc reportService) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Results(w http.ResponseWriter, r *http.Request) {
	testID, ok := parseTestID(w, r)
	if !ok {
		return
	}
	items, err := h.svc.Results(r.Context(), testID)
	if err != nil {
		writeReportError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, items)
}

func (h *Handler) Analytics(w http.ResponseWriter, r *http.Request) {
	testID, ok := parseTestID(w, r)
	if !ok {
		return
	}
	analytics, err := h.svc.Analytics(r.Context(), testID)
	if err != nil {
		writeReportError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, analytics)
}

func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	testID, ok := parseTestID(w, r)
	if !ok {
		return
	}
	summary, err := h.svc.Summary(r.Context(), testID)
	if err != nil {
		writeReportError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, summary)
}

func (h *Handler) ListPending(w http.ResponseWriter, r *http.Request) {
	testID, ok := parseTestID(w, r)
	if !ok {
		return
	}
	items, err := h.svc.ListPending(r.Context(), testID)
	if err != nil {
		writeReportError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, items)
}

func (h *Handler) StudentResponses(w http.ResponseWriter, r *http.Request) {
	testID, ok := parseTestID(w, r)
	if !ok {
		return
	}
	studentID, err := strconv.ParseInt(chi.URLParam(r, "studentID"), 10, 64)
	if err != nil || studentID <= 0 {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid student id")
		return
	}

	breakdown, err := h.svc.StudentResponses(r.Context(), testID, studentID)
	if err != nil {
		switch {
		case errors.Is(err, ErrTestNotFound):
			apiresp.WriteError(w, r, http.StatusNotFound, "test not found")
		case errors.Is(err, ErrStudentNotFound):
			apiresp.WriteError(w, r, http.StatusNotFound, "student not found")
		case errors.Is(err, ErrNoResponses):
			apiresp.WriteError(w, r, http.StatusNotFound, err.Error())
		default:
			apiresp.WriteError(w, r, http.StatusInternalServerError, "internal error")
		}
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, breakdown)
}

func (h *Handler) Grade(w http.ResponseWriter, r *http.Request) {
	responseID, err := strconv.ParseInt(chi.URLParam(r, "responseID"), 10, 64)
	if err != nil || responseID <= 0 {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid response id")
		return
	}
	if !h.authorizeGrading(w, r, responseID) {
		return
	}

	var req gradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	graded, err := h.svc.GradeResponse(r.Context(), GradeInput{
		ResponseID: responseID,
		Score:      req.Score,
		Feedback:   req.Feedback,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrResponseNotFound):
			apiresp.WriteError(w, r, http.StatusNotFound, "response not found")
		case errors.Is(err, ErrScoreOutOfRange):
			apiresp.WriteErrorCode(w, r, http.StatusUnprocessableEntity, "score_out_of_range", err.Error())
		case errors.Is(err, ErrInvalidInput):
			apiresp.WriteError(w, r, http.StatusBadRequest, err.Error())
		default:
			apiresp.WriteError(w, r, http.StatusInternalServerError, "internal error")
		}
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, graded)
}

// BulkGrade grades a batch of responses in one transaction. The whole
// batch is checked against the ownership policy before anything is
// written.
func (h *Handler) BulkGrade(w http.ResponseWriter, r *http.Request) {
	var req bulkGradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Grades) == 0 {
		apiresp.WriteError(w, r, http.StatusBadRequest, "grades is required")
		return
	}

	grades := make([]GradeInput, 0, len(req.Grades))
	for _, g := range req.Grades {
		if !h.authorizeGrading(w, r, g.ResponseID) {
			return
		}
		grades = append(grades, GradeInput{
			ResponseID: g.ResponseID,
			Score:      g.Score,
			Feedback:   g.Feedback,
		})
	}

	graded, err := h.svc.BulkGrade(r.Context(), grades)
	if err != nil {
		switch {
		case errors.Is(err, ErrResponseNotFound):
			apiresp.WriteError(w, r, http.StatusNotFound, err.Error())
		case errors.Is(err, ErrScoreOutOfRange):
			apiresp.WriteErrorCode(w, r, http.StatusUnprocessableEntity, "score_out_of_range", err.Error())
		case errors.Is(err, ErrInvalidInput):
			apiresp.WriteError(w, r, http.StatusBadRequest, err.Error())
		default:
			apiresp.WriteError(w, r, http.StatusInternalServerError, "internal error")
		}
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, graded)
}

func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	testID, ok := parseTestID(w, r)
	if !ok {
		return
	}
	data, err := h.svc.ExportResults(r.Context(), testID)
	if err != nil {
		writeReportError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="test_%d_results.xlsx"`, testID))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *Handler) authorizeGrading(w http.ResponseWriter, r *http.Request, responseID int64) bool {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		apiresp.WriteError(w, r, http.StatusUnauthorized, "unauthorized")
		return false
	}
	ownerID, err := h.svc.GetResponseTestOwner(r.Context(), responseID)
	if err != nil {
		if errors.Is(err, ErrResponseNotFound) {
			apiresp.WriteError(w, r, http.StatusNotFound, "response not found")
			return false
		}
		apiresp.WriteError(w, r, http.StatusInternalServerError, "internal error")
		return false
	}
	if !auth.CanPerform(user, auth.ActionGradeResponse, auth.Resource{OwnerID: ownerID}) {
		apiresp.WriteError(w, r, http.StatusForbidden, "forbidden")
		return false
	}
	return true
}

func parseTestID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	testID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || testID <= 0 {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid test id")
		return 0, false
	}
	return testID, true
}

func writeReportError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, ErrTestNotFound) {
		apiresp.WriteError(w, r, http.StatusNotFound, "test not found")
		return
	}
	apiresp.WriteError(w, r, http.StatusInternalServerError, "internal error")
}
