package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	api "github.com/campusgrid/campus-lms/internal/api/http"
	"github.com/campusgrid/campus-lms/internal/auth"
	"github.com/campusgrid/campus-lms/internal/config"
	"github.com/campusgrid/campus-lms/internal/db"
	"github.com/campusgrid/campus-lms/internal/events"
	"github.com/campusgrid/campus-lms/internal/grading"
	"github.com/campusgrid/campus-lms/internal/notify"
	"github.com/campusgrid/campus-lms/internal/quiz"
	"github.com/campusgrid/campus-lms/internal/rbac"
	"github.com/campusgrid/campus-lms/internal/roster"
	"github.com/campusgrid/campus-lms/pkg/logger"
	"github.com/campusgrid/campus-lms/pkg/monitoring"
	"github.com/campusgrid/campus-lms/pkg/security"
)

func main() {
	_ = godotenv.Load()
	cfg := config.FromEnv()

	log := logger.New(cfg.LogLevel, cfg.LogPath)
	defer log.Sync()

	// --- DB ---
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dbh, err := db.Open(ctx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	if err != nil {
		log.Fatal("db open failed", zap.Error(err))
	}
	store := quiz.NewSQLStore(dbh, cfg.DBDriver)
	access := roster.NewSQLRoster(dbh)

	// --- Events ---
	dispatcher := events.NewDispatcher(events.NewEventRepo(dbh), log, notify.NewLogNotifier(log))
	go dispatcher.Run()
	defer dispatcher.Stop()

	svc := quiz.NewService(store, grading.NewDefaultGrader(), access, dispatcher, log)

	// --- Auth ---
	authSvc := auth.NewAuthService(cfg.AuthSecret)

	// --- Metrics ---
	if cfg.MetricsEnabled {
		monitoring.Init()
	}

	// --- Router ---
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(security.RateLimiter(cfg.RateLimitPerMin, time.Minute))
	if cfg.MetricsEnabled {
		r.Use(monitoring.Middleware)
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Post("/auth/login", auth.LoginHandler(authSvc, dbh))

	// Protected API (JWT → role in context → RBAC)
	r.Group(func(pr chi.Router) {
		pr.Use(auth.JWTMiddleware(authSvc))

		// Faculty: quiz definition and publication
		pr.With(rbac.Require("quiz:create")).
			Post("/quizzes", api.UploadQuizHandler(svc))
		pr.With(rbac.Require("quiz:view")).
			Get("/quizzes/{quizID}", api.GetQuizHandler(svc))
		pr.With(rbac.Require("quiz:publish")).
			Post("/quizzes/{quizID}/publish", api.PublishQuizHandler(svc))

		// Student flow
		pr.With(rbac.Require("attempt:start")).
			Post("/attempts", api.StartAttemptHandler(svc))
		pr.With(rbac.Require("attempt:answer")).
			Post("/attempts/{attemptID}/answers", api.RecordAnswerHandler(svc))
		pr.With(rbac.Require("attempt:complete")).
			Post("/attempts/{attemptID}/complete", api.CompleteAttemptHandler(svc))
		pr.With(rbac.RequireAny("attempt:view-own", "attempt:view-all")).
			Get("/attempts/{attemptID}", api.GetAttemptHandler(svc))
		pr.With(rbac.RequireAny("attempt:view-own", "attempt:view-all")).
			Get("/attempts", api.ListAttemptsHandler(svc))

		// Grading
		pr.With(rbac.Require("attempt:grade")).
			Get("/attempts/{attemptID}/grading", api.GetAttemptGradingHandler(svc))
		pr.With(rbac.Require("attempt:grade")).
			Post("/attempts/{attemptID}/grading", api.ApplyAttemptGradingHandler(svc))
		pr.With(rbac.Require("attempt:grade")).
			Post("/attempts/{attemptID}/regrade", api.RegradeAttemptHandler(svc))
		pr.With(rbac.Require("attempt:reopen")).
			Post("/attempts/{attemptID}/reopen", api.ReopenAttemptHandler(svc))
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := dbh.PingContext(r.Context()); err != nil {
			http.Error(w, "db unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(200)
	})
	if cfg.MetricsEnabled {
		r.Method(http.MethodGet, "/metrics", monitoring.Handler())
	}

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r}
	go func() {
		log.Info("listening", zap.String("addr", cfg.HTTPAddr), zap.String("db", cfg.DBDriver))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("listen failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutCancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		log.Error("forced shutdown", zap.Error(err))
	}
}
