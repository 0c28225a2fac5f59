package student

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"examportal/internal/app/apiresp"
)

type contextKey string

const studentContextKey contextKey = "exam_student"

const sessionCookieName = "examportal_student"

type Handler struct {
	svc studentService
}

type studentService interface {
	Register(ctx context.Context, in RegisterInput) (*Student, string, time.Time, error)
	GetSessionStudent(ctx context.Context, token string) (*Student, error)
	RevokeSession(ctx context.Context, token string) error
	ListStudents(ctx context.Context) ([]Student, error)
	GetStudent(ctx context.Context, studentID int64) (*Student, error)
	ImportCSV(ctx context.Context, rd io.Reader) (*ImportResult, error)
}

type registerRequest struct {
	Nosis  string `json:"nosis"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Pokjar string `json:"pokjar"`
	Batch  int    `json:"batch"`
}

func NewHandler(svc studentService) *Handler {
	return &Handler{svc: svc}
}

// Register collects a student's biodata and binds a session cookie to the
// created record. Every exam route requires that cookie.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	st, token, expiresAt, err := h.svc.Register(r.Context(), RegisterInput{
		Nosis:  req.Nosis,
		Name:   req.Name,
		Email:  req.Email,
		Pokjar: req.Pokjar,
		Batch:  req.Batch,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidInput):
			apiresp.WriteError(w, r, http.StatusBadRequest, err.Error())
		case errors.Is(err, ErrNosisExists):
			apiresp.WriteErrorCode(w, r, http.StatusConflict, "nosis_taken", err.Error())
		case errors.Is(err, ErrEmailExists):
			apiresp.WriteErrorCode(w, r, http.StatusConflict, "email_taken", err.Error())
		default:
			apiresp.WriteError(w, r, http.StatusInternalServerError, "internal error")
		}
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	apiresp.WriteOK(w, r, http.StatusCreated, st)
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	st, ok := CurrentStudent(r.Context())
	if !ok {
		apiresp.WriteErrorCode(w, r, http.StatusUnauthorized, "biodata_required", "please fill in your biodata first")
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, st)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	_ = h.svc.RevokeSession(r.Context(), readSessionToken(r))
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	apiresp.WriteOK(w, r, http.StatusOK, map[string]string{"status": "logged_out"})
}

func (h *Handler) ListStudents(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.ListStudents(r.Context())
	if err != nil {
		apiresp.WriteError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, items)
}

func (h *Handler) GetStudent(w http.ResponseWriter, r *http.Request) {
	studentID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || studentID <= 0 {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid student id")
		return
	}
	st, err := h.svc.GetStudent(r.Context(), studentID)
	if err != nil {
		if errors.Is(err, ErrStudentNotFound) {
			apiresp.WriteError(w, r, http.StatusNotFound, "student not found")
			return
		}
		apiresp.WriteError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, st)
}

// ImportCSV accepts a text/csv body (or the "file" part of a multipart
// form) with the header nosis,name,email,pokjar,batch.
func (h *Handler) ImportCSV(w http.ResponseWriter, r *http.Request) {
	body := r.Body
	if ct := r.Header.Get("Content-Type"); ct != "" && len(ct) >= 19 && ct[:19] == "multipart/form-data" {
		f, _, err := r.FormFile("file")
		if err != nil {
			apiresp.WriteError(w, r, http.StatusBadRequest, "missing csv file")
			return
		}
		defer f.Close()
		body = f
	}

	result, err := h.svc.ImportCSV(r.Context(), body)
	if err != nil {
		if errors.Is(err, ErrInvalidInput) {
			apiresp.WriteError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		apiresp.WriteError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, result)
}

// RequireStudent resolves the student session cookie. A missing or stale
// session answers 401 biodata_required, which the exam frontend uses to
// send the student back to the biodata form. Lookup failures that are not
// a session problem stay a 500.
func (h *Handler) RequireStudent(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		st, err := h.svc.GetSessionStudent(r.Context(), readSessionToken(r))
		if err != nil {
			if errors.Is(err, ErrUnauthorized) {
				apiresp.WriteErrorCode(w, r, http.StatusUnauthorized, "biodata_required", "please fill in your biodata first")
				return
			}
			apiresp.WriteError(w, r, http.StatusInternalServerError, "internal error")
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithStudent(r.Context(), st)))
	})
}

func CurrentStudent(ctx context.Context) (*Student, bool) {
	v := ctx.Value(studentContextKey)
	if v == nil {
		return nil, false
	}
	st, ok := v.(*Student)
	return st, ok
}

func ContextWithStudent(ctx context.Context, st *Student) context.Context {
	return context.WithValue(ctx, studentContextKey, st)
}

func readSessionToken(r *http.Request) string {
	c, err := r.Cookie(sessionCookieName)
	if err != nil {
		return ""
	}
	return c.Value
}
