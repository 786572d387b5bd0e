package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"healthspan/internal/app"
	"healthspan/internal/config"
	"healthspan/internal/db"
	"healthspan/internal/handlers"
	"healthspan/internal/metrics"
	mw "healthspan/internal/middleware"
	"healthspan/internal/scheduler"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// The logger depends on config, so this one goes to stderr.
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}
	logger, err := config.NewLogger(cfg)
	if err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	startCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	a, err := app.New(startCtx, cfg, logger)
	if err == nil {
		err = db.RunMigrations(startCtx, a.DB)
	}
	cancel()
	if err != nil {
		logger.Fatal("startup failed", zap.Error(err))
	}
	defer a.Close()

	sched, err := scheduler.New(cfg.DailyPassSchedule, a.Engine, logger.Named("scheduler"))
	if err != nil {
		logger.Fatal("invalid daily pass schedule", zap.Error(err))
	}
	sched.Start()
	logger.Info("daily pass scheduled", zap.Time("next_run", sched.Next()))

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           routes(a),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown", zap.Error(err))
	}
	if err := sched.Stop(shutdownCtx); err != nil {
		logger.Warn("scheduler shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func routes(a *app.Application) http.Handler {
	cfg, logger := a.Config, a.Logger

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(mw.ZapRequestLogger(logger.Named("http")))
	r.Use(middleware.Recoverer)
	r.Use(metrics.InstrumentHandler)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := a.DB.PingContext(ctx); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", metrics.Handler())

	authMW := mw.NewAuthMiddleware([]byte(cfg.JWTSecret))
	authHandler := handlers.NewAuthHandler(a.Users, authMW, handlers.GoogleConfig{
		ClientID:     cfg.Google.ClientID,
		ClientSecret: cfg.Google.ClientSecret,
		RedirectURL:  cfg.Google.RedirectURL,
	}, logger.Named("auth"))
	userHandler := handlers.NewUserHandler(a.Users)
	habitHandler := handlers.NewHabitHandler(a.Habits, a.Engine, logger.Named("habits"))
	analyticsHandler := handlers.NewAnalyticsHandler(a.Engine)
	dashboardHandler := handlers.NewDashboardHandler(a.DB, a.Engine)
	alertHandler := handlers.NewAlertHandler(a.Alerts)
	adminHandler := handlers.NewAdminHandler(a.DB, a.Engine, logger.Named("admin"))

	publicLimit := mw.NewRateLimiter(1, 10, logger.Named("ratelimit"))
	userLimit := mw.NewRateLimiter(10, 40, logger.Named("ratelimit"))

	r.Route("/api", func(api chi.Router) {
		api.Group(func(pub chi.Router) {
			pub.Use(publicLimit.Handler)
			pub.Get("/auth/google/url", authHandler.GoogleURL)
			pub.Post("/auth/google/callback", authHandler.GoogleCallback)
			pub.Post("/auth/refresh", authHandler.Refresh)
		})

		api.Group(func(pr chi.Router) {
			pr.Use(authMW.RequireAuth)
			pr.Use(userLimit.Handler)

			pr.Get("/me", userHandler.GetMe)
			pr.Patch("/me", userHandler.UpdateMe)
			pr.Delete("/me", userHandler.DeleteMe)

			pr.Post("/habits", habitHandler.Upsert)
			pr.Get("/habits", habitHandler.List)
			pr.Delete("/habits", habitHandler.Delete)
			pr.Post("/habits/import", habitHandler.Import)
			pr.Get("/habits/summary", analyticsHandler.Summary)
			pr.Get("/habits/{kind}/analytics", analyticsHandler.KindAnalytics)
			pr.Get("/recommendations", analyticsHandler.Recommendations)
			pr.Get("/dashboard", dashboardHandler.Get)

			pr.Get("/alerts", alertHandler.List)
			pr.Post("/alerts/{id}/acknowledge", alertHandler.Acknowledge)
			pr.Post("/alerts/{id}/resolve", alertHandler.Resolve)

			if a.Syncer != nil {
				wearableHandler := handlers.NewWearableHandler(a.Syncer, logger.Named("wearable"))
				pr.Post("/wearable/connect", wearableHandler.Connect)
				pr.Post("/wearable/sync", wearableHandler.Sync)
				pr.Get("/wearable/activities", wearableHandler.Activities)
			}

			pr.Get("/admin/overview", adminHandler.Overview)
			pr.Post("/admin/analysis/run", adminHandler.RunAnalysis)
		})
	})
	return r
}
