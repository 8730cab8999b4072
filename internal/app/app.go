package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/time/rate"

	"github.com/hitoshi/storefront/internal/admin"
	"github.com/hitoshi/storefront/internal/auth"
	"github.com/hitoshi/storefront/internal/cart"
	"github.com/hitoshi/storefront/internal/catalog"
	"github.com/hitoshi/storefront/internal/clock"
	"github.com/hitoshi/storefront/internal/config"
	"github.com/hitoshi/storefront/internal/database"
	"github.com/hitoshi/storefront/internal/handler"
	"github.com/hitoshi/storefront/internal/logger"
	"github.com/hitoshi/storefront/internal/mail"
	"github.com/hitoshi/storefront/internal/media"
	"github.com/hitoshi/storefront/internal/metrics"
	"github.com/hitoshi/storefront/internal/middleware"
	"github.com/hitoshi/storefront/internal/order"
	"github.com/hitoshi/storefront/internal/registration"
	"github.com/hitoshi/storefront/internal/repository"
	"github.com/hitoshi/storefront/internal/security"
	"github.com/hitoshi/storefront/internal/session"
	"github.com/hitoshi/storefront/internal/user"
	"github.com/hitoshi/storefront/internal/worker/cleanup"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. LOG_LEVELを反映してロガーを作り直す
	logger.SetupDefault(w, cfg.LogLevel)

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。wはログとreapの結果の出力先で、nilならos.Stdout。
// reapのログだけは結果と混ざらないよう標準エラー出力に書く。
func Run(w io.Writer, args []string) error {
	cmd, err := ParseCommand(args)
	if err != nil {
		return err
	}

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(logOutput(cmd, w))
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	case CommandReap:
		out := w
		if out == nil {
			out = os.Stdout
		}
		return runReap(cfg, out)
	default:
		return fmt.Errorf("unhandled command %q", cmd)
	}
}

// logOutput はサブコマンドのログ出力先を返す。
func logOutput(cmd Command, w io.Writer) io.Writer {
	if cmd == CommandReap {
		return os.Stderr
	}
	return w
}

// openDatabase はDB接続を開き、疎通を確認する。
func openDatabase(cfg *config.Config) (*sql.DB, error) {
	return database.Connect(context.Background(), cfg.DatabaseURL, database.DefaultPoolConfig(), 10*time.Second)
}

// newMetricsRegistry はGo/プロセスのコレクターを登録したレジストリと、
// アプリケーションメトリクスのコレクターを生成する。
func newMetricsRegistry() (*prometheus.Registry, *metrics.Collector) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, metrics.NewCollector(reg)
}

// newMailSender はMAIL_TRANSPORTに応じたSenderを生成する。
// 返すclose関数は終了時に必ず呼び出す。
func newMailSender(cfg *config.Config, collector metrics.MetricsCollector) (mail.Sender, func() error, error) {
	noop := func() error { return nil }

	var sender mail.Sender
	closeFn := noop
	switch cfg.MailTransport {
	case config.MailTransportLog:
		sender = mail.NewLogSender(slog.Default())
	case config.MailTransportSMTP:
		sender = mail.NewSMTPSender(mail.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			Timeout:  cfg.SMTPTimeout,
		})
	case config.MailTransportKafka:
		ks := mail.NewKafkaSender(mail.KafkaConfig{
			Brokers:  cfg.KafkaBrokers,
			Topic:    cfg.KafkaTopic,
			Username: cfg.KafkaUsername,
			Password: cfg.KafkaPassword,
			TLS:      cfg.KafkaTLS,
		})
		sender = ks
		closeFn = ks.Close
	default:
		return nil, noop, fmt.Errorf("unsupported mail transport: %q", cfg.MailTransport)
	}

	return mail.WithMetrics(sender, cfg.MailTransport, collector), closeFn, nil
}

// newUploader はMEDIA_BACKENDに応じたUploaderを生成する。
func newUploader(ctx context.Context, cfg *config.Config) (media.Uploader, error) {
	switch cfg.MediaBackend {
	case config.MediaBackendLocal:
		return media.NewLocalUploader(cfg.MediaDir, cfg.MediaBaseURL), nil
	case config.MediaBackendS3:
		u, err := media.NewS3Uploader(ctx, media.S3Config{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			PublicURL: cfg.S3PublicURL,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create s3 uploader: %w", err)
		}
		return u, nil
	default:
		return nil, fmt.Errorf("unsupported media backend: %q", cfg.MediaBackend)
	}
}

// rateLimiterConfig は設定値（req/min）をRateLimiterConfig（req/sec）に変換する。
// バーストサイズは1分あたりの上限と同じにする。
func rateLimiterConfig(cfg *config.Config) middleware.RateLimiterConfig {
	rl := middleware.DefaultRateLimiterConfig()
	rl.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
	rl.GeneralBurst = cfg.RateLimitGeneral
	rl.RegisterRate = rate.Limit(float64(cfg.RateLimitRegister) / 60.0)
	rl.RegisterBurst = cfg.RateLimitRegister
	rl.VerifyRate = rate.Limit(float64(cfg.RateLimitVerify) / 60.0)
	rl.VerifyBurst = cfg.RateLimitVerify
	return rl
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	// 2. リポジトリの初期化
	accountRepo := repository.NewPostgresAccountRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	categoryRepo := repository.NewPostgresCategoryRepo(db)
	productRepo := repository.NewPostgresProductRepo(db)
	cartRepo := repository.NewPostgresCartRepo(db)
	orderRepo := repository.NewPostgresOrderRepo(db)

	clk := clock.Real{}
	sessions := session.NewStore(sessionRepo, clk, cfg.SessionMaxAge)

	// 3. メトリクス
	registry, collector := newMetricsRegistry()

	// 4. メール送信とメディア保存
	sender, closeSender, err := newMailSender(cfg, collector)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeSender(); err != nil {
			slog.Warn("failed to close mail sender", slog.String("error", err.Error()))
		}
	}()

	uploader, err := newUploader(context.Background(), cfg)
	if err != nil {
		return err
	}
	importer := media.NewImporter(security.NewImageURLGuard(), uploader, cfg.ImageImportTimeout)
	sanitizer := security.NewDescriptionSanitizer()

	slog.Info("external services configured",
		slog.String("mail_transport", cfg.MailTransport),
		slog.String("media_backend", cfg.MediaBackend),
	)

	// 5. ドメインサービスの初期化
	registrationService := registration.NewService(accountRepo, sender, clk, collector, cfg.MailFrom)
	authService := auth.NewService(accountRepo, sessions, uploader)
	userService := user.NewService(accountRepo, sessionRepo)
	catalogService := catalog.NewService(categoryRepo, productRepo)
	cartService := cart.NewService(cartRepo, orderRepo, productRepo, clk, collector)
	orderService := order.NewService(orderRepo)
	adminService := admin.NewService(
		accountRepo, categoryRepo, productRepo, orderRepo,
		sanitizer, uploader, importer, clk,
	)

	// 6. レート制限
	rateLimiter := middleware.NewRateLimiter(rateLimiterConfig(cfg))
	defer rateLimiter.Stop()

	// 7. ルーターの構築
	deps := &handler.RouterDeps{
		Logger:          slog.Default(),
		Metrics:         collector,
		MetricsGatherer: registry,
		SessionLoader:   sessions,
		SessionConfig: middleware.SessionConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		HSTS:              cfg.CookieSecure,
		TrustProxy:        cfg.TrustProxy,
		RateLimiter:       rateLimiter,

		HealthChecker: db,
		Media:         uploader,

		AuthService:    handler.NewAuthServiceAdapter(sessions, registrationService, authService),
		UserService:    handler.NewUserServiceAdapter(authService, userService),
		CatalogService: catalogService,
		CartService:    cartService,
		OrderService:   orderService,

		StaffAuthorizer: admin.NewAuthorizer(accountRepo),
		AdminService:    adminService,
	}

	router := handler.NewRouter(deps)

	// 8. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return serveUntilSignal(server, "API server")
}

// serveUntilSignal はserverを起動し、SIGINTまたはSIGTERMを受信したらグレースフルシャットダウンする。
func serveUntilSignal(server *http.Server, name string) error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	errCh := make(chan error, 1)
	go func() {
		slog.Info(name+" starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("%s listen error: %w", name, err)
	case <-stop:
	}
	slog.Info("shutting down " + name + "...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("%s shutdown failed: %w", name, err)
	}

	slog.Info(name + " stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// 期限切れ登録の削除をREAPER_INTERVAL間隔で実行し、
// SERVER_PORTで/healthと/metricsを公開する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	// 1. DB接続
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established (worker)")

	// 2. メトリクスとリーパーの初期化
	registry, collector := newMetricsRegistry()
	reaper := cleanup.NewReaperJob(db, clock.Real{}, slog.Default(), collector)

	// 3. ヘルスチェック・メトリクス用の内部サーバー
	r := chi.NewRouter()
	r.Get("/health", handler.NewHealthHandler(db))
	r.Handle("/metrics", metrics.Handler(registry))
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		reaper.Start(ctx, cfg.ReaperInterval)
	}()

	err = serveUntilSignal(server, "worker")
	cancel()
	<-done

	slog.Info("worker stopped gracefully")
	return err
}

// sweeper は1回分の期限切れ登録削除を実行するインターフェース。
type sweeper interface {
	Run(ctx context.Context) (int64, error)
}

// runReap は期限切れ登録の削除を1回実行する。
func runReap(cfg *config.Config, out io.Writer) error {
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	// 単発実行ではスクレイプされないため、メトリクスは記録しない
	job := cleanup.NewReaperJob(db, clock.Real{}, slog.Default(), metrics.Nop{})
	return reapOnce(context.Background(), job, out)
}

// reapOnce はsweeperを1回実行し、削除件数が1件以上なら結果をoutに書く。
// 削除対象がなかった場合は何も出力しない。
func reapOnce(ctx context.Context, s sweeper, out io.Writer) error {
	deleted, err := s.Run(ctx)
	if err != nil {
		return fmt.Errorf("reap failed: %w", err)
	}
	if deleted > 0 {
		fmt.Fprintf(out, "deleted %d expired unverified accounts\n", deleted)
	}
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully",
		slog.Uint64("version", uint64(version)),
	)
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
