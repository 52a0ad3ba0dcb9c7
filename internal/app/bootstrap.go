package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"showcase-api/internal/access"
	"showcase-api/internal/auth"
	"showcase-api/internal/db"
	"showcase-api/internal/maintenance"
	"showcase-api/internal/observability"
	"showcase-api/internal/project"
	"showcase-api/internal/ratelimit"
	"showcase-api/internal/token"
)

type Options struct {
	LoadDotEnv    bool
	RunMigrations bool
}

type Runtime struct {
	Handler http.Handler
	Close   func() error
}

func Build(options Options) (*Runtime, error) {
	if options.LoadDotEnv {
		_ = godotenv.Load()
	}

	logger := observability.NewLogger()

	databaseURL, err := mustEnv("DATABASE_URL")
	if err != nil {
		return nil, err
	}
	jwtSecret, err := mustEnv("JWT_SECRET")
	if err != nil {
		return nil, err
	}

	if err := observability.InitSentry(os.Getenv("SENTRY_DSN"), envOrDefault("APP_ENV", "development")); err != nil {
		logger.Error("init_sentry_failed", map[string]any{"error": err.Error()})
	}

	database, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	database.SetMaxOpenConns(envIntOrDefault("DB_MAX_OPEN_CONNS", 10))
	database.SetMaxIdleConns(envIntOrDefault("DB_MAX_IDLE_CONNS", 5))
	database.SetConnMaxLifetime(envMinutesOrDefault("DB_CONN_MAX_LIFETIME_MINUTES", 30))
	database.SetConnMaxIdleTime(envMinutesOrDefault("DB_CONN_MAX_IDLE_TIME_MINUTES", 10))

	if err := database.Ping(); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if options.RunMigrations {
		if err := db.RunMigrations(database); err != nil {
			_ = database.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	sweepInterval := envSecondsOrDefault("LIMITER_SWEEP_INTERVAL_SECONDS", 60)
	entryTTL := envMinutesOrDefault("LIMITER_ENTRY_TTL_MINUTES", 60)

	requestLimiter := ratelimit.NewLimiter(sweepInterval, entryTTL)
	lockouts := auth.NewLockoutLimiter(
		envIntOrDefault("LOGIN_MAX_ATTEMPTS", 5),
		envMinutesOrDefault("LOGIN_LOCK_MINUTES", 15),
		sweepInterval,
		entryTTL,
	)

	authRepo := auth.NewRepository(database)
	authService := auth.NewService(authRepo, lockouts, jwtSecret).
		WithSessionTTL(envMinutesOrDefault("SESSION_TTL_MINUTES", 30))
	authHandler := auth.NewHandler(authService)

	if err := authService.BootstrapFromEnv(context.Background(), os.Getenv("ADMIN_USERNAME"), os.Getenv("ADMIN_PASSWORD")); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("bootstrap admin: %w", err)
	}

	tokenRepo := token.NewRepository(database)
	tokenService := token.NewService(tokenRepo, logger).WithLimits(
		envIntOrDefault("TOKEN_MAX_ACTIVE_PER_OWNER", 10),
		envIntOrDefault("TOKEN_CANDIDATE_CAP", 16),
	)
	tokenHandler := token.NewHandler(tokenService)

	facade := access.NewFacade(
		tokenService,
		requestLimiter,
		envIntOrDefault("API_RATE_LIMIT_MAX", 60),
		envSecondsOrDefault("API_RATE_LIMIT_WINDOW_SECONDS", 60),
	)

	projectRepo := project.NewRepository(database)
	projectHandler := project.NewHandler(projectRepo)

	loginLimiter := auth.NewLoginRateLimiter(
		requestLimiter,
		envIntOrDefault("LOGIN_RATE_LIMIT_MAX", 10),
		envSecondsOrDefault("LOGIN_RATE_LIMIT_WINDOW_SECONDS", 60),
	)

	limiterHandler := maintenance.NewLimiterHandler(requestLimiter, lockouts, logger, os.Getenv("CRON_SECRET"))

	mux := http.NewServeMux()
	mux.Handle("POST /auth/login", loginLimiter.Middleware(http.HandlerFunc(authHandler.Login)))
	mux.Handle("POST /tokens", auth.SessionMiddleware(jwtSecret, http.HandlerFunc(tokenHandler.Issue)))
	mux.Handle("GET /tokens", auth.SessionMiddleware(jwtSecret, http.HandlerFunc(tokenHandler.List)))
	mux.Handle("DELETE /tokens/{id}", auth.SessionMiddleware(jwtSecret, http.HandlerFunc(tokenHandler.Revoke)))
	mux.Handle("GET /projects", facade.Require(http.HandlerFunc(projectHandler.ListProjects), token.PermissionRead))
	mux.Handle("POST /projects", facade.Require(http.HandlerFunc(projectHandler.CreateProject), token.PermissionCreate))
	mux.Handle("PUT /projects/{id}", facade.Require(http.HandlerFunc(projectHandler.UpdateProject), token.PermissionUpdate))
	mux.Handle("DELETE /projects/{id}", facade.Require(http.HandlerFunc(projectHandler.DeleteProject), token.PermissionDelete))
	mux.HandleFunc("GET /internal/maintenance/limits", limiterHandler.Handle)
	mux.HandleFunc("POST /internal/maintenance/limits", limiterHandler.Handle)
	mux.HandleFunc("GET /health", healthHandler(database))

	handler := observability.RecoverMiddleware(logger, observability.RequestLoggingMiddleware(logger, mux))

	return &Runtime{
		Handler: handler,
		Close: func() error {
			observability.FlushSentry()
			return database.Close()
		},
	}, nil
}

func healthHandler(database *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		body := map[string]any{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)}
		if err := database.PingContext(ctx); err != nil {
			status = http.StatusServiceUnavailable
			body = map[string]any{"status": "degraded", "time": time.Now().UTC().Format(time.RFC3339)}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}

func mustEnv(name string) (string, error) {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return "", fmt.Errorf("missing required env: %s", name)
	}
	return value, nil
}

func envOrDefault(name, fallback string) string {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	return value
}

func envIntOrDefault(name string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func envMinutesOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Minute
}

func envSecondsOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Second
}

func EnvBoolOrDefault(name string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	if value == "" {
		return fallback
	}

	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
