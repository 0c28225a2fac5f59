package exam

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"examportal/internal/app/apiresp"
	"examportal/internal/auth"
	"examportal/internal/student"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	svc examService
}

type examService interface {
	CreateTest(ctx context.Context, createdBy int64, in TestInput) (*Test, error)
	UpdateTest(ctx context.Context, testID int64, in TestInput) (*Test, error)
	DeleteTest(ctx context.Context, testID int64) error
	DuplicateTest(ctx context.Context, testID, createdBy int64) (*Test, error)
	ToggleRandomization(ctx context.Context, testID int64) (*Test, error)
	ListAdminTests(ctx context.Context) ([]AdminTestRow, error)
	GetTest(ctx context.Context, testID int64) (*Test, error)
	GetTestOwner(ctx context.Context, testID int64) (int64, error)
	ListAvailableTests(ctx context.Context, studentID int64) ([]Test, error)
	StartTest(ctx context.Context, testID, studentID int64) (*TakeTest, error)
	SubmitTest(ctx context.Context, in SubmitInput) (*SubmitReceipt, error)
	GetStudentResult(ctx context.Context, testID, studentID int64) (*Result, error)
	ListHistory(ctx context.Context, studentID int64) ([]HistoryRow, error)
}

type response struct {
	OK    bool        `json:"ok"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

type testManageRequest struct {
	Title        string `json:"title"`
	Description  string `json:"description"`
	StartTime    string `json:"start_time"`
	EndTime      string `json:"end_time"`
	IsRandom     bool   `json:"is_random"`
	ShowResult   *bool  `json:"show_result"`
	TimeLimit    *int   `json:"time_limit"`
	PassingScore *int   `json:"passing_score"`
}

type submitRequest struct {
	Answers []Answer `json:"answers"`
}

func NewHandler(svc examService) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) ListAdminTests(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.ListAdminTests(r.Context())
	if err != nil {
		writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: items})
}

func (h *Handler) GetTest(w http.ResponseWriter, r *http.Request) {
	testID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || testID <= 0 {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid test id"})
		return
	}
	item, err := h.svc.GetTest(r.Context(), testID)
	if err != nil {
		if errors.Is(err, ErrTestNotFound) {
			writeJSON(w, r, http.StatusNotFound, response{OK: false, Error: "test not found"})
			return
		}
		writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: item})
}

func (h *Handler) CreateTest(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, response{OK: false, Error: "unauthorized"})
		return
	}
	if !auth.CanPerform(user, auth.ActionCreateTest, auth.Resource{}) {
		writeJSON(w, r, http.StatusForbidden, response{OK: false, Error: "forbidden"})
		return
	}

	var req testManageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid request body"})
		return
	}
	in, err := parseTestInput(req)
	if err != nil {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: err.Error()})
		return
	}

	item, err := h.svc.CreateTest(r.Context(), user.ID, in)
	if err != nil {
		if errors.Is(err, ErrInvalidInput) {
			writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: err.Error()})
			return
		}
		writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
		return
	}
	writeJSON(w, r, http.StatusCreated, response{OK: true, Data: item})
}

func (h *Handler) UpdateTest(w http.ResponseWriter, r *http.Request) {
	_, testID, ok := h.authorizeTestMutation(w, r, auth.ActionUpdateTest)
	if !ok {
		return
	}

	var req testManageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid request body"})
		return
	}
	in, err := parseTestInput(req)
	if err != nil {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: err.Error()})
		return
	}

	item, err := h.svc.UpdateTest(r.Context(), testID, in)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidInput):
			writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: err.Error()})
		case errors.Is(err, ErrTestNotFound):
			writeJSON(w, r, http.StatusNotFound, response{OK: false, Error: "test not found"})
		default:
			writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
		}
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: item})
}

func (h *Handler) DeleteTest(w http.ResponseWriter, r *http.Request) {
	_, testID, ok := h.authorizeTestMutation(w, r, auth.ActionDeleteTest)
	if !ok {
		return
	}

	if err := h.svc.DeleteTest(r.Context(), testID); err != nil {
		if errors.Is(err, ErrTestNotFound) {
			writeJSON(w, r, http.StatusNotFound, response{OK: false, Error: "test not found"})
			return
		}
		writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: map[string]string{"status": "deleted"}})
}

func (h *Handler) DuplicateTest(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, response{OK: false, Error: "unauthorized"})
		return
	}
	if !auth.CanPerform(user, auth.ActionCreateTest, auth.Resource{}) {
		writeJSON(w, r, http.StatusForbidden, response{OK: false, Error: "forbidden"})
		return
	}
	testID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || testID <= 0 {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid test id"})
		return
	}

	item, err := h.svc.DuplicateTest(r.Context(), testID, user.ID)
	if err != nil {
		if errors.Is(err, ErrTestNotFound) {
			writeJSON(w, r, http.StatusNotFound, response{OK: false, Error: "test not found"})
			return
		}
		writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
		return
	}
	writeJSON(w, r, http.StatusCreated, response{OK: true, Data: item})
}

func (h *Handler) ToggleRandomization(w http.ResponseWriter, r *http.Request) {
	_, testID, ok := h.authorizeTestMutation(w, r, auth.ActionUpdateTest)
	if !ok {
		return
	}

	item, err := h.svc.ToggleRandomization(r.Context(), testID)
	if err != nil {
		if errors.Is(err, ErrTestNotFound) {
			writeJSON(w, r, http.StatusNotFound, response{OK: false, Error: "test not found"})
			return
		}
		writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: item})
}

func (h *Handler) ListAvailable(w http.ResponseWriter, r *http.Request) {
	st, ok := student.CurrentStudent(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, response{OK: false, Error: "unauthorized"})
		return
	}
	items, err := h.svc.ListAvailableTests(r.Context(), st.ID)
	if err != nil {
		writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: items})
}

func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	st, ok := student.CurrentStudent(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, response{OK: false, Error: "unauthorized"})
		return
	}
	testID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || testID <= 0 {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid test id"})
		return
	}

	paper, err := h.svc.StartTest(r.Context(), testID, st.ID)
	if err != nil {
		switch {
		case errors.Is(err, ErrTestNotFound):
			writeJSON(w, r, http.StatusNotFound, response{OK: false, Error: "test not found"})
		case errors.Is(err, ErrTestNotAvailable):
			apiresp.WriteErrorCode(w, r, http.StatusUnprocessableEntity, "test_not_available", err.Error())
		case errors.Is(err, ErrAlreadyAttempted):
			apiresp.WriteErrorCode(w, r, http.StatusConflict, "already_attempted", err.Error())
		default:
			writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
		}
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: paper})
}

func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	st, ok := student.CurrentStudent(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, response{OK: false, Error: "unauthorized"})
		return
	}
	testID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || testID <= 0 {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid test id"})
		return
	}

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid request body"})
		return
	}

	receipt, err := h.svc.SubmitTest(r.Context(), SubmitInput{
		TestID:    testID,
		StudentID: st.ID,
		Answers:   req.Answers,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrTestNotFound):
			writeJSON(w, r, http.StatusNotFound, response{OK: false, Error: "test not found"})
		case errors.Is(err, ErrTestClosed):
			apiresp.WriteErrorCode(w, r, http.StatusUnprocessableEntity, "test_closed", err.Error())
		case errors.Is(err, ErrAlreadyAttempted):
			apiresp.WriteErrorCode(w, r, http.StatusConflict, "already_attempted", err.Error())
		case errors.Is(err, ErrInvalidQuestion), errors.Is(err, ErrIncompleteSubmission), errors.Is(err, ErrInvalidInput):
			writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: err.Error()})
		default:
			writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
		}
		return
	}
	writeJSON(w, r, http.StatusCreated, response{OK: true, Data: receipt})
}

func (h *Handler) Result(w http.ResponseWriter, r *http.Request) {
	st, ok := student.CurrentStudent(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, response{OK: false, Error: "unauthorized"})
		return
	}
	testID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || testID <= 0 {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid test id"})
		return
	}

	result, err := h.svc.GetStudentResult(r.Context(), testID, st.ID)
	if err != nil {
		switch {
		case errors.Is(err, ErrTestNotFound), errors.Is(err, ErrNoSubmission):
			writeJSON(w, r, http.StatusNotFound, response{OK: false, Error: err.Error()})
		case errors.Is(err, ErrResultHidden):
			apiresp.WriteErrorCode(w, r, http.StatusForbidden, "result_hidden", err.Error())
		default:
			writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
		}
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: result})
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	st, ok := student.CurrentStudent(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, response{OK: false, Error: "unauthorized"})
		return
	}
	items, err := h.svc.ListHistory(r.Context(), st.ID)
	if err != nil {
		writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: items})
}

// authorizeTestMutation resolves the actor and target test, then applies
// the ownership policy. It writes the error response itself; callers bail
// out when ok is false.
func (h *Handler) authorizeTestMutation(w http.ResponseWriter, r *http.Request, action auth.Action) (*auth.User, int64, bool) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, response{OK: false, Error: "unauthorized"})
		return nil, 0, false
	}
	testID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || testID <= 0 {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid test id"})
		return nil, 0, false
	}

	ownerID, err := h.svc.GetTestOwner(r.Context(), testID)
	if err != nil {
		if errors.Is(err, ErrTestNotFound) {
			writeJSON(w, r, http.StatusNotFound, response{OK: false, Error: "test not found"})
			return nil, 0, false
		}
		writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
		return nil, 0, false
	}
	if !auth.CanPerform(user, action, auth.Resource{OwnerID: ownerID}) {
		writeJSON(w, r, http.StatusForbidden, response{OK: false, Error: "forbidden"})
		return nil, 0, false
	}
	return user, testID, true
}

func parseTestInput(req testManageRequest) (TestInput, error) {
	parseOne := func(raw string) (time.Time, error) {
		v := strings.TrimSpace(raw)
		if v == "" {
			return time.Time{}, nil
		}
		return time.Parse(time.RFC3339, v)
	}
	startTime, err := parseOne(req.StartTime)
	if err != nil {
		return TestInput{}, errors.New("start_time must be RFC3339")
	}
	endTime, err := parseOne(req.EndTime)
	if err != nil {
		return TestInput{}, errors.New("end_time must be RFC3339")
	}

	showResult := true
	if req.ShowResult != nil {
		showResult = *req.ShowResult
	}
	return TestInput{
		Title:        req.Title,
		Description:  req.Description,
		StartTime:    startTime,
		EndTime:      endTime,
		IsRandom:     req.IsRandom,
		ShowResult:   showResult,
		TimeLimit:    req.TimeLimit,
		PassingScore: req.PassingScore,
	}, nil
}

func writeJSON(w http.ResponseWriter, r *http.Request, code int, payload response) {
	if payload.OK {
		apiresp.WriteOK(w, r, code, payload.Data)
		return
	}
	apiresp.WriteError(w, r, code, payload.Error)
}
