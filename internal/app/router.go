package app

import (
	"database/sql"
	"net/http"
	"time"

	"examportal/internal/app/observability"
	"examportal/internal/auth"
	"examportal/internal/exam"
	"examportal/internal/question"
	"examportal/internal/report"
	"examportal/internal/student"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(cfg Config, db *sql.DB) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)

	collector := observability.NewCollector(db)
	r.Use(collector.Middleware)
	r.Use(CSRFMiddleware(cfg.CSRFEnforced))

	authLimiter := NewIPRateLimiter(cfg.AuthRateLimitPerMin, time.Minute)

	authSvc := auth.NewService(db, auth.ServiceConfig{
		SessionTTL: time.Duration(cfg.AdminSessionHours) * time.Hour,
	})
	authHandler := auth.NewHandler(authSvc)

	studentSvc := student.NewService(db, time.Duration(cfg.StudentSessionHours)*time.Hour)
	studentHandler := student.NewHandler(studentSvc)

	examSvc := exam.NewService(db, cfg.SubmitRequireComplete)
	examHandler := exam.NewHandler(examSvc)

	questionSvc := question.NewService(db)
	questionHandler := question.NewHandler(questionSvc, examSvc.GetTestOwner)

	reportSvc := report.NewService(db)
	reportHandler := report.NewHandler(reportSvc)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	r.Get("/metrics", collector.MetricsHandler)

	r.Route("/api/v1", func(api chi.Router) {
		api.With(RateLimitMiddleware(authLimiter)).Post("/auth/login", authHandler.Login)
		api.With(RateLimitMiddleware(authLimiter)).Post("/students/register", studentHandler.Register)

		// Student-facing exam routes. The session cookie set at biodata
		// registration is the only credential students carry.
		api.Group(func(s chi.Router) {
			s.Use(studentHandler.RequireStudent)
			s.Get("/students/me", studentHandler.Me)
			s.Post("/students/logout", studentHandler.Logout)

			s.Get("/tests/available", examHandler.ListAvailable)
			s.Get("/tests/{id}/take", examHandler.Start)
			s.Post("/tests/{id}/submit", examHandler.Submit)
			s.Get("/tests/{id}/result", examHandler.Result)
			s.Get("/history", examHandler.History)
		})

		// Staff routes.
		api.Group(func(secure chi.Router) {
			secure.Use(authHandler.RequireAuth)
			secure.Get("/auth/me", authHandler.Me)
			secure.Post("/auth/logout", authHandler.Logout)

			secure.Get("/admin/tests", examHandler.ListAdminTests)
			secure.Post("/admin/tests", examHandler.CreateTest)
			secure.Get("/admin/tests/{id}", examHandler.GetTest)
			secure.Put("/admin/tests/{id}", examHandler.UpdateTest)
			secure.Delete("/admin/tests/{id}", examHandler.DeleteTest)
			secure.Post("/admin/tests/{id}/duplicate", examHandler.DuplicateTest)
			secure.Post("/admin/tests/{id}/toggle-randomization", examHandler.ToggleRandomization)

			secure.Get("/admin/tests/{id}/questions", questionHandler.List)
			secure.Post("/admin/tests/{id}/questions", questionHandler.Create)
			secure.Post("/admin/tests/{id}/questions/bulk-delete", questionHandler.BulkDelete)
			secure.Get("/admin/questions/{questionID}", questionHandler.Get)
			secure.Put("/admin/questions/{questionID}", questionHandler.Update)
			secure.Delete("/admin/questions/{questionID}", questionHandler.Delete)
			secure.Post("/admin/questions/{questionID}/randomize-options", questionHandler.RandomizeOptions)

			secure.Get("/admin/tests/{id}/results", reportHandler.Results)
			secure.Get("/admin/tests/{id}/analytics", reportHandler.Analytics)
			secure.Get("/admin/tests/{id}/summary", reportHandler.Summary)
			secure.Get("/admin/tests/{id}/results/export", reportHandler.Export)
			secure.Get("/admin/tests/{id}/pending", reportHandler.ListPending)
			secure.Get("/admin/tests/{id}/students/{studentID}/responses", reportHandler.StudentResponses)
			secure.Post("/admin/responses/{responseID}/grade", reportHandler.Grade)
			secure.Post("/admin/responses/bulk-grade", reportHandler.BulkGrade)

			secure.Get("/admin/students", studentHandler.ListStudents)
			secure.Get("/admin/students/{id}", studentHandler.GetStudent)
			secure.Post("/admin/students/import", studentHandler.ImportCSV)

			secure.Group(func(admin chi.Router) {
				admin.Use(authHandler.RequireRoles("admin"))
				admin.Get("/admin/users", authHandler.ListUsers)
				admin.Post("/admin/users", authHandler.CreateUser)
				admin.Get("/admin/users/{id}", authHandler.GetUser)
				admin.Put("/admin/users/{id}", authHandler.UpdateUser)
				admin.Delete("/admin/users/{id}", authHandler.DeleteUser)
				admin.Post("/admin/users/{id}/password", authHandler.ChangePassword)
			})
		})
	})

	return r
}
