package question

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"examportal/internal/app/apiresp"
	"examportal/internal/auth"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	svc questionService
	// testOwner resolves a test's created_by for the ownership policy on
	// create, where no question exists yet.
	testOwner func(ctx context.Context, testID int64) (int64, error)
}

type questionService interface {
	CreateQuestion(ctx context.Context, in QuestionInput) (*Question, error)
	UpdateQuestion(ctx context.Context, questionID int64, in QuestionInput) (*Question, error)
	DeleteQuestion(ctx context.Context, questionID int64) error
	BulkDelete(ctx context.Context, testID int64, questionIDs []int64) (int, error)
	ListQuestions(ctx context.Context, testID int64) ([]Question, error)
	GetQuestion(ctx context.Context, questionID int64) (*Question, error)
	RandomizeOptions(ctx context.Context, questionID int64) (*Question, error)
	GetQuestionTestOwner(ctx context.Context, questionID int64) (int64, error)
}

type optionRequest struct {
	OptionText string `json:"option_text"`
	IsCorrect  bool   `json:"is_correct"`
}

type questionRequest struct {
	QuestionText string          `json:"question_text"`
	QuestionType string          `json:"question_type"`
	Points       int             `json:"points"`
	Options      []optionRequest `json:"options"`
}

type bulkDeleteRequest struct {
	QuestionIDs []int64 `json:"question_ids"`
}

func NewHandler(svc questionService, testOwner func(ctx context.Context, testID int64) (int64, error)) *Handler {
	return &Handler{svc: svc, testOwner: testOwner}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	testID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || testID <= 0 {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid test id")
		return
	}
	items, err := h.svc.ListQuestions(r.Context(), testID)
	if err != nil {
		apiresp.WriteError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, items)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	questionID, err := strconv.ParseInt(chi.URLParam(r, "questionID"), 10, 64)
	if err != nil || questionID <= 0 {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid question id")
		return
	}
	item, err := h.svc.GetQuestion(r.Context(), questionID)
	if err != nil {
		if errors.Is(err, ErrQuestionNotFound) {
			apiresp.WriteError(w, r, http.StatusNotFound, "question not found")
			return
		}
		apiresp.WriteError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, item)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	testID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || testID <= 0 {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid test id")
		return
	}
	if !h.authorizeByTest(w, r, testID) {
		return
	}

	var req questionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	item, err := h.svc.CreateQuestion(r.Context(), QuestionInput{
		TestID:       testID,
		QuestionText: req.QuestionText,
		QuestionType: req.QuestionType,
		Points:       req.Points,
		Options:      toOptionInputs(req.Options),
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrOptionRule):
			apiresp.WriteErrorCode(w, r, http.StatusUnprocessableEntity, "option_rule", err.Error())
		case errors.Is(err, ErrInvalidInput):
			apiresp.WriteError(w, r, http.StatusBadRequest, err.Error())
		case errors.Is(err, ErrTestNotFound):
			apiresp.WriteError(w, r, http.StatusNotFound, "test not found")
		default:
			apiresp.WriteError(w, r, http.StatusInternalServerError, "internal error")
		}
		return
	}
	apiresp.WriteOK(w, r, http.StatusCreated, item)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	questionID, ok := h.authorizeByQuestion(w, r)
	if !ok {
		return
	}

	existing, err := h.svc.GetQuestion(r.Context(), questionID)
	if err != nil {
		if errors.Is(err, ErrQuestionNotFound) {
			apiresp.WriteError(w, r, http.StatusNotFound, "question not found")
			return
		}
		apiresp.WriteError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	var req questionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	item, err := h.svc.UpdateQuestion(r.Context(), questionID, QuestionInput{
		TestID:       existing.TestID,
		QuestionText: req.QuestionText,
		QuestionType: req.QuestionType,
		Points:       req.Points,
		Options:      toOptionInputs(req.Options),
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrOptionRule):
			apiresp.WriteErrorCode(w, r, http.StatusUnprocessableEntity, "option_rule", err.Error())
		case errors.Is(err, ErrInvalidInput):
			apiresp.WriteError(w, r, http.StatusBadRequest, err.Error())
		case errors.Is(err, ErrQuestionNotFound):
			apiresp.WriteError(w, r, http.StatusNotFound, "question not found")
		default:
			apiresp.WriteError(w, r, http.StatusInternalServerError, "internal error")
		}
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, item)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	questionID, ok := h.authorizeByQuestion(w, r)
	if !ok {
		return
	}
	if err := h.svc.DeleteQuestion(r.Context(), questionID); err != nil {
		if errors.Is(err, ErrQuestionNotFound) {
			apiresp.WriteError(w, r, http.StatusNotFound, "question not found")
			return
		}
		apiresp.WriteError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handler) BulkDelete(w http.ResponseWriter, r *http.Request) {
	testID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || testID <= 0 {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid test id")
		return
	}
	if !h.authorizeByTest(w, r, testID) {
		return
	}

	var req bulkDeleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	deleted, err := h.svc.BulkDelete(r.Context(), testID, req.QuestionIDs)
	if err != nil {
		if errors.Is(err, ErrInvalidInput) {
			apiresp.WriteError(w, r, http.StatusBadRequest, "question_ids is required")
			return
		}
		apiresp.WriteError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, map[string]int{"deleted": deleted})
}

func (h *Handler) RandomizeOptions(w http.ResponseWriter, r *http.Request) {
	questionID, ok := h.authorizeByQuestion(w, r)
	if !ok {
		return
	}
	item, err := h.svc.RandomizeOptions(r.Context(), questionID)
	if err != nil {
		switch {
		case errors.Is(err, ErrQuestionNotFound):
			apiresp.WriteError(w, r, http.StatusNotFound, "question not found")
		case errors.Is(err, ErrNotMultipleChoice):
			apiresp.WriteError(w, r, http.StatusBadRequest, err.Error())
		default:
			apiresp.WriteError(w, r, http.StatusInternalServerError, "internal error")
		}
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, item)
}

func (h *Handler) authorizeByTest(w http.ResponseWriter, r *http.Request, testID int64) bool {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		apiresp.WriteError(w, r, http.StatusUnauthorized, "unauthorized")
		return false
	}
	ownerID, err := h.testOwner(r.Context(), testID)
	if err != nil {
		apiresp.WriteError(w, r, http.StatusNotFound, "test not found")
		return false
	}
	if !auth.CanPerform(user, auth.ActionManageQuestion, auth.Resource{OwnerID: ownerID}) {
		apiresp.WriteError(w, r, http.StatusForbidden, "forbidden")
		return false
	}
	return true
}

func (h *Handler) authorizeByQuestion(w http.ResponseWriter, r *http.Request) (int64, bool) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		apiresp.WriteError(w, r, http.StatusUnauthorized, "unauthorized")
		return 0, false
	}
	questionID, err := strconv.ParseInt(chi.URLParam(r, "questionID"), 10, 64)
	if err != nil || questionID <= 0 {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid question id")
		return 0, false
	}
	ownerID, err := h.svc.GetQuestionTestOwner(r.Context(), questionID)
	if err != nil {
		if errors.Is(err, ErrQuestionNotFound) {
			apiresp.WriteError(w, r, http.StatusNotFound, "question not found")
			return 0, false
		}
		apiresp.WriteError(w, r, http.StatusInternalServerError, "internal error")
		return 0, false
	}
	if !auth.CanPerform(user, auth.ActionManageQuestion, auth.Resource{OwnerID: ownerID}) {
		apiresp.WriteError(w, r, http.StatusForbidden, "forbidden")
		return 0, false
	}
	return questionID, true
}

func toOptionInputs(in []optionRequest) []OptionInput {
	out := make([]OptionInput, 0, len(in))
	for _, o := range in {
		out = append(out, OptionInput{OptionText: o.OptionText, IsCorrect: o.IsCorrect})
	}
	return out
}
