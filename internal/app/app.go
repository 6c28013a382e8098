package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/launchpage/internal/config"
	"github.com/hitoshi/launchpage/internal/database"
	"github.com/hitoshi/launchpage/internal/events"
	"github.com/hitoshi/launchpage/internal/handler"
	"github.com/hitoshi/launchpage/internal/landing"
	"github.com/hitoshi/launchpage/internal/logger"
	"github.com/hitoshi/launchpage/internal/metrics"
	"github.com/hitoshi/launchpage/internal/repository"
	"github.com/hitoshi/launchpage/internal/security"
	"github.com/hitoshi/launchpage/internal/signup"
	"github.com/hitoshi/launchpage/internal/supabase"
)

// Init はアプリケーションの初期化を行う。
// .envファイルがあれば読み込み、JSON構造化ログをセットアップしてからConfigを読み込む。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. .envの読み込み（既存の環境変数は上書きしない）
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	// 3. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := logger.SetLevel(cfg.LogLevel); err != nil {
		slog.Warn("invalid LOG_LEVEL, using info", slog.String("error", err.Error()))
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("store", cfg.SignupStore),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// service はserveモードで組み立てた依存関係。
type service struct {
	router  http.Handler
	closers []func()
}

// Close は組み立て時に確保した資源を逆順に解放する。
func (s *service) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// buildService は設定に従ってストア、メトリクス、イベント発行、フォーム管理、
// ページ描画をワイヤリングし、ルーターを構築する。
// 途中で失敗した場合はそれまでに確保した資源を解放してエラーを返す。
func buildService(cfg *config.Config) (svc *service, err error) {
	svc = &service{}
	defer func() {
		if err != nil {
			svc.Close()
			svc = nil
		}
	}()

	// 1. 登録先ストア
	store, health, err := openStore(cfg, svc)
	if err != nil {
		return nil, err
	}

	// 2. メトリクス
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(reg)

	// 3. 登録イベント（AMQP_URL設定時のみ）
	deps := signup.Deps{
		Store:      store,
		SuccessTTL: cfg.SuccessBannerTTL,
		Recorder:   collector,
		Logger:     slog.Default(),
	}
	if cfg.AMQPURL != "" {
		publisher, err := events.NewPublisher(cfg.AMQPURL, cfg.SignupEventsExchange, slog.Default())
		if err != nil {
			return nil, fmt.Errorf("failed to connect to message broker: %w", err)
		}
		svc.closers = append(svc.closers, publisher.Close)
		deps.Notifier = publisher
		slog.Info("signup events enabled", slog.String("exchange", cfg.SignupEventsExchange))
	}

	// 4. 訪問者ごとのフォーム管理
	registry := signup.NewRegistry(deps, signup.RegistryConfig{
		IdleTTL:         cfg.VisitorTTL,
		CleanupInterval: cfg.VisitorCleanupInterval,
		Gauge:           collector,
	})
	svc.closers = append(svc.closers, registry.Stop)

	// 5. ページ描画
	content, err := landing.LoadContent(cfg.LandingContentFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load landing content: %w", err)
	}
	renderer, err := landing.NewRenderer(content, security.NewCopySanitizer())
	if err != nil {
		return nil, fmt.Errorf("failed to build page renderer: %w", err)
	}

	// 6. ルーターの構築
	svc.router = handler.NewRouter(&handler.RouterDeps{
		Forms:             handler.NewRegistryAdapter(registry),
		Renderer:          renderer,
		SuccessTTL:        cfg.SuccessBannerTTL,
		HealthChecker:     health,
		MetricsGatherer:   reg,
		StatusRecorder:    collector,
		Logger:            slog.Default(),
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		CookieSecure:      cfg.CookieSecure,
		CookieDomain:      cfg.CookieDomain,
	})

	return svc, nil
}

// openStore は設定されたストアへの接続を開き、挿入先とヘルスチェック対象を返す。
func openStore(cfg *config.Config, svc *service) (signup.Store, handler.HealthChecker, error) {
	switch cfg.SignupStore {
	case config.StoreSupabase:
		client, err := supabase.NewClient(&http.Client{}, slog.Default(), supabase.Config{
			URL:    cfg.SupabaseURL,
			APIKey: cfg.SupabaseAnonKey,
			Table:  cfg.SignupTable,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create supabase client: %w", err)
		}
		slog.Info("using supabase signup store", slog.String("table", cfg.SignupTable))
		return client, client, nil

	default:
		db, err := database.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open database: %w", err)
		}
		svc.closers = append(svc.closers, func() { db.Close() })

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		slog.Info("database connection established")
		return repository.NewPostgresSignupRepo(db), db, nil
	}
}

// runServe はWebサーバーモードで起動する。
// 全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	svc, err := buildService(cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      svc.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("web server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("server listen error: %w", err)
	case <-stop:
	}
	slog.Info("shutting down web server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("web server stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
// Supabaseのテーブルはプロジェクト側で管理するため対象外。
func runMigrate(cfg *config.Config) error {
	if cfg.SignupStore != config.StorePostgres {
		return fmt.Errorf("migrate requires SIGNUP_STORE=%s, got %q", config.StorePostgres, cfg.SignupStore)
	}

	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
