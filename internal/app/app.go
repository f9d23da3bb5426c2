package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/telconova/authgate/internal/account"
	"github.com/telconova/authgate/internal/auth"
	"github.com/telconova/authgate/internal/config"
	"github.com/telconova/authgate/internal/database"
	"github.com/telconova/authgate/internal/handler"
	"github.com/telconova/authgate/internal/logger"
	"github.com/telconova/authgate/internal/metrics"
	"github.com/telconova/authgate/internal/middleware"
	"github.com/telconova/authgate/internal/repository"
	"github.com/telconova/authgate/internal/worker/cleanup"
)

// auditCloseTimeout は非同期監査キューの排出を待つ上限時間。
const auditCloseTimeout = 10 * time.Second

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, os.Getenv("LOG_LEVEL"))

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// 軽量サブコマンドはフル初期化をスキップする
	switch cmd {
	case CommandHealthcheck:
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	case CommandHashPassword:
		logger.SetupDefault(w, os.Getenv("LOG_LEVEL"))
		return executeOperatorCmd(context.Background(), NewHashPasswordCmd(config.PasswordCost()), args[1:], os.Stdin, os.Stdout)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("audit_mode", cfg.AuditMode),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	case CommandCreateAccount:
		return runCreateAccount(cfg, args[1:])
	default:
		return runServe(cfg)
	}
}

// authComponents は認証サービスとその後始末をまとめたもの。
type authComponents struct {
	Service  *auth.Service
	Verifier *auth.BcryptVerifier
	Tokens   *auth.TokenIssuer

	closeAuditor func(ctx context.Context) error
}

// Close は非同期監査キューを排出して停止する。同期モードでは何もしない。
func (c *authComponents) Close(ctx context.Context) error {
	if c.closeAuditor == nil {
		return nil
	}
	return c.closeAuditor(ctx)
}

// newAuthComponents は設定から認証サービスを組み立てる。
// 署名鍵が不正な場合はエラーを返し、起動を中止させる。
func newAuthComponents(
	cfg *config.Config,
	accounts repository.AccountRepository,
	attempts repository.AttemptRepository,
	mc metrics.MetricsCollector,
	log *slog.Logger,
) (*authComponents, error) {
	tokens, err := auth.NewTokenIssuer(cfg.JWTSecretBase64, cfg.JWTExpiration)
	if err != nil {
		return nil, fmt.Errorf("invalid token configuration: %w", err)
	}

	verifier, err := auth.NewBcryptVerifier(cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize password verifier: %w", err)
	}

	rule := auth.NewLockRule(cfg.LockoutMaxFailures, cfg.LockoutFailureWindow, attempts)
	lockout := auth.NewLockoutPolicy(cfg.LockoutCooldown, rule, accounts, mc)

	components := &authComponents{
		Verifier: verifier,
		Tokens:   tokens,
	}

	var auditor auth.AttemptAuditor
	switch cfg.AuditMode {
	case config.AuditModeAsync:
		var opts []auth.AsyncAuditorOption
		if cfg.LockoutMaxFailures > 0 {
			// ロックルールは監査ログを数えるため、失敗は遅延・破棄させない
			opts = append(opts, auth.WithSynchronousFailures())
		}
		async := auth.NewAsyncAuditor(attempts, cfg.AuditQueueSize, log, mc, opts...)
		components.closeAuditor = async.Close
		auditor = async
	default:
		auditor = auth.NewDirectAuditor(attempts, log, mc)
	}

	components.Service = auth.NewService(accounts, verifier, lockout, auditor, tokens, auth.ServiceConfig{
		AuditBlockedAttempts: cfg.AuditBlockedAttempts,
		Metrics:              mc,
	})

	return components, nil
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. DB接続
	db, err := database.Connect(ctx, cfg.DatabaseURL, cfg.DBConnectRetries)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	slog.Info("database connection established")

	// 2. メトリクス
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	// 3. リポジトリと認証サービスの初期化
	accountRepo := repository.NewPostgresAccountRepo(db)
	attemptRepo := repository.NewPostgresAttemptRepo(db)

	components, err := newAuthComponents(cfg, accountRepo, attemptRepo, collector, slog.Default())
	if err != nil {
		return err
	}

	// 4. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(middleware.LoginRateLimiterConfig(cfg.RateLimitLogin))
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            slog.Default(),
		TokenValidator:    components.Service,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		StatusRecorder:    collector,
		AuthService:       components.Service,
		HealthChecker:     db,
		MetricsGatherer:   registry,
	})

	// 5. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
			slog.Duration("token_ttl", components.Tokens.TTL()),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			closeAuditor(components)
			return fmt.Errorf("server listen error: %w", err)
		}
	case <-ctx.Done():
	}

	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		closeAuditor(components)
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	// リクエスト処理が全て終わってから監査キューを排出する
	closeAuditor(components)

	slog.Info("API server stopped gracefully")
	return nil
}

func closeAuditor(components *authComponents) {
	ctx, cancel := context.WithTimeout(context.Background(), auditCloseTimeout)
	defer cancel()
	if err := components.Close(ctx); err != nil {
		slog.Error("failed to drain audit queue", slog.String("error", err.Error()))
	}
}

// runWorker はワーカーモードで起動する。
// DB接続を開き、監査ログの保持期間管理ジョブを実行する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(ctx, cfg.DatabaseURL, cfg.DBConnectRetries)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	slog.Info("database connection established (worker)")

	cleanupJob := cleanup.NewCleanupJob(db, slog.Default(), cfg.AttemptRetentionDays)
	cleanupJob.Start(ctx, cfg.CleanupInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runCreateAccount は運用者向けにアカウントを1件発行する。
func runCreateAccount(cfg *config.Config, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(ctx, cfg.DatabaseURL, cfg.DBConnectRetries)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	hasher, err := auth.NewBcryptVerifier(cfg.BcryptCost)
	if err != nil {
		return fmt.Errorf("failed to initialize password hasher: %w", err)
	}

	svc := account.NewService(repository.NewPostgresAccountRepo(db), hasher)
	return executeOperatorCmd(ctx, NewCreateAccountCmd(svc), args, os.Stdin, os.Stdout)
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
