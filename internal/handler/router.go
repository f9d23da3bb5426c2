package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/telconova/authgate/internal/metrics"
	"github.com/telconova/authgate/internal/middleware"
	"github.com/telconova/authgate/internal/model"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	TokenValidator    middleware.TokenValidator
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	StatusRecorder    middleware.StatusRecorder

	// 認証
	AuthService AuthServiceInterface

	// 運用
	HealthChecker   HealthChecker
	MetricsGatherer prometheus.Gatherer
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → StatusMetrics → SecurityHeaders → CORS → (Login: RateLimit | 保護ルート: Bearer)
//
// /api/auth/login、/health、/metrics以外は全てベアラートークンが必要。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	statusRecorder := deps.StatusRecorder
	if statusRecorder == nil {
		statusRecorder = metrics.Nop{}
	}

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewStatusMetricsMiddleware(statusRecorder))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.AuthService)
	healthHandler := NewHealthHandler(deps.HealthChecker)

	// --- 認証不要のルート ---
	r.Get("/health", healthHandler.Health)
	if deps.MetricsGatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.SetupMetricsRoute(deps.MetricsGatherer))
	}

	if deps.RateLimiter != nil {
		r.With(deps.RateLimiter.LoginMiddleware()).Post("/api/auth/login", authHandler.Login)
	} else {
		r.Post("/api/auth/login", authHandler.Login)
	}

	// --- 認証が必要なルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewBearerMiddleware(deps.TokenValidator))

		r.Get("/api/auth/me", authHandler.Me)
		r.Post("/api/auth/validate", authHandler.Validate)

		// 未定義パスもトークンを要求した上で404とする
		r.NotFound(func(w http.ResponseWriter, r *http.Request) {
			middleware.WriteErrorResponse(w, http.StatusNotFound, &model.APIError{
				Code:     "NOT_FOUND",
				Message:  "Recurso no encontrado",
				Category: "system",
				Action:   "Verifique la URL.",
			})
		})
	})

	return r
}
