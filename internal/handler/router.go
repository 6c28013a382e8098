package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/launchpage/internal/landing"
	"github.com/hitoshi/launchpage/internal/metrics"
	"github.com/hitoshi/launchpage/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// フォーム
	Forms      FormProvider
	Renderer   PageRenderer
	SuccessTTL time.Duration

	// 運用
	HealthChecker   HealthChecker
	MetricsGatherer prometheus.Gatherer
	StatusRecorder  middleware.StatusRecorder
	Logger          *slog.Logger

	// ミドルウェア設定
	CORSAllowedOrigin string
	CookieSecure      bool
	CookieDomain      string
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → RealIP → StatusMetrics → SecurityHeaders → Recovery
//	  └ ページ/API: Visitor → Logging → RequestSize → CSRF（/api はさらに CORS）
//
// /health、/metrics、/static/* は訪問者Cookieとリクエストログの対象外とする。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	if deps.StatusRecorder != nil {
		r.Use(middleware.NewStatusMetricsMiddleware(deps.StatusRecorder))
	}
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.CookieSecure))
	r.Use(middleware.NewRecoveryMiddleware())

	csrfConfig := middleware.CSRFConfig{
		CookieSecure: deps.CookieSecure,
		CookieDomain: deps.CookieDomain,
	}
	signupHandler := NewSignupHandler(deps.Forms, deps.Renderer, deps.SuccessTTL, logger)

	// --- 運用エンドポイント ---
	r.Method(http.MethodGet, "/health", NewHealthHandler(deps.HealthChecker))
	if deps.MetricsGatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.MetricsGatherer))
	}
	r.Method(http.MethodGet, "/static/*", landing.StaticHandler())

	// --- ページとAPI ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewVisitorMiddleware(middleware.VisitorConfig{
			CookieSecure: deps.CookieSecure,
			CookieDomain: deps.CookieDomain,
		}))
		r.Use(middleware.NewLoggingMiddleware(logger))
		r.Use(chimw.RequestSize(maxSignupBodySize))
		r.Use(middleware.NewCSRFMiddleware(csrfConfig))

		r.Get("/", signupHandler.ShowPage)
		r.Post("/signup", signupHandler.SubmitForm)

		r.Route("/api", func(r chi.Router) {
			r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

			r.Method(http.MethodGet, "/csrf-token", middleware.NewCSRFTokenHandler(csrfConfig))
			r.Post("/signups", signupHandler.SubmitAPI)
			r.Get("/signups/state", signupHandler.GetState)
		})
	})

	return r
}
