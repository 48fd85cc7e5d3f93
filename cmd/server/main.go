package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"spendbook/internal/auth"
	"spendbook/internal/config"
	"spendbook/internal/handlers"
	applog "spendbook/internal/log"
	"spendbook/internal/session"
	"spendbook/internal/storage"
	"spendbook/web"

	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, config.Load()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	level, _ := cfg.SlogLevel()
	logger := applog.New(applog.Config{Level: level, Format: cfg.LogFormat})
	slog.SetDefault(logger)

	db, err := storage.NewDB(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()
	logger.Info("database ready", applog.FieldComponent, "storage")

	cookies, err := auth.NewCookieCodec(cfg.SessionSecret, cfg.SecureCookie)
	if err != nil {
		return fmt.Errorf("failed to create cookie codec: %w", err)
	}
	sessions := session.NewManager(db, cfg.SessionDuration)

	h, err := handlers.NewHandlers(db, sessions, cookies, web.TemplatesFS)
	if err != nil {
		return fmt.Errorf("failed to load templates: %w", err)
	}

	staticFS, err := fs.Sub(web.StaticFS, "static")
	if err != nil {
		return fmt.Errorf("failed to mount static assets: %w", err)
	}

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           applog.Middleware(logger)(setupRouter(h, staticFS)),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 16,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		janitor := applog.Component(logger, "session-janitor")
		return sessions.RunJanitor(gctx, cfg.SessionCleanupInterval, func(removed int64, err error) {
			if err != nil {
				janitor.Error("clean expired sessions", applog.Err(err))
				return
			}
			if removed > 0 {
				janitor.Debug("expired sessions removed", "count", removed)
			}
		})
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server stopped gracefully")
	return nil
}

func setupRouter(h *handlers.Handlers, staticFS fs.FS) http.Handler {
	mux := http.NewServeMux()

	authed := func(f http.HandlerFunc) http.Handler { return h.RequireAuth(f) }
	anon := func(f http.HandlerFunc) http.Handler { return h.RequireAnonymous(f) }

	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.FS(staticFS))))
	mux.HandleFunc("GET /healthz", h.Health)

	mux.Handle("GET /{$}", authed(h.Dashboard))

	mux.Handle("GET /login", anon(h.LoginForm))
	mux.Handle("POST /login", anon(h.Login))
	mux.Handle("GET /register", anon(h.RegisterForm))
	mux.Handle("POST /register", anon(h.Register))
	mux.HandleFunc("POST /logout", h.Logout)

	mux.Handle("GET /expenses/new", authed(h.NewExpenseForm))
	mux.Handle("GET /expenses/all", authed(h.AllExpenses))
	mux.Handle("POST /expenses", authed(h.CreateExpense))
	mux.Handle("DELETE /expense/delete/{id}", authed(h.DeleteExpense))

	return handlers.SecurityHeaders(mux)
}
