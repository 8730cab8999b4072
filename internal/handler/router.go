package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/storefront/internal/metrics"
	"github.com/hitoshi/storefront/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	Metrics           metrics.MetricsCollector
	MetricsGatherer   prometheus.Gatherer
	SessionLoader     middleware.SessionLoader
	SessionConfig     middleware.SessionConfig
	CSRFConfig        middleware.CSRFConfig
	CORSAllowedOrigin string
	HSTS              bool
	TrustProxy        bool // X-Forwarded-For / X-Real-IPからクライアントIPを取る
	RateLimiter       *middleware.RateLimiter

	HealthChecker HealthChecker
	Media         MediaURLResolver

	AuthService    AuthServiceInterface
	UserService    UserServiceInterface
	CatalogService CatalogServiceInterface
	CartService    CartServiceInterface
	OrderService   OrderServiceInterface

	StaffAuthorizer StaffAuthorizer
	AdminService    AdminServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → SecurityHeaders → CORS → Session → CSRF
//
// /health と /metrics はセッションを発行しないようSession以降のチェーンの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if deps.TrustProxy {
		r.Use(chimw.RealIP)
	}
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewLoggingMiddleware(logger, deps.Metrics))
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.HSTS))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.AuthService, deps.SessionConfig)
	userHandler := NewUserHandler(deps.UserService, deps.Media, deps.SessionConfig)
	catalogHandler := NewCatalogHandler(deps.CatalogService, deps.Media)
	cartHandler := NewCartHandler(deps.CartService, deps.Media)
	orderHandler := NewOrderHandler(deps.OrderService)
	adminHandler := NewAdminHandler(deps.StaffAuthorizer, deps.AdminService, deps.Media)

	// --- セッション不要のルート ---
	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	if deps.MetricsGatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.MetricsGatherer))
	}

	// --- 訪問者セッションを持つルート ---
	// ミドルウェアスタック: Session → CSRF
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionLoader, deps.SessionConfig))
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))

		r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))

		r.Route("/auth", func(r chi.Router) {
			// 登録はクライアントIP単位、確認はセッション単位でレート制限する
			r.With(deps.RateLimiter.RegisterMiddleware()).Post("/register", authHandler.Register)
			r.With(deps.RateLimiter.VerifyMiddleware()).Post("/verify", authHandler.Verify)
			r.Post("/login", authHandler.Login)
			r.Post("/logout", authHandler.Logout)
			r.Get("/me", authHandler.Me)
		})

		// 商品閲覧（ログイン不要）
		r.Get("/api/home", catalogHandler.Home)
		r.Route("/api/products", func(r chi.Router) {
			r.Get("/", catalogHandler.ListProducts)
			r.Get("/{slug}", catalogHandler.GetProduct)
		})

		// --- 認証が必要なルート ---
		// ミドルウェアスタック: RequireAuth → RateLimit(General)
		r.Group(func(r chi.Router) {
			r.Use(middleware.NewRequireAuth())
			r.Use(deps.RateLimiter.GeneralMiddleware())

			r.Route("/api/profile", func(r chi.Router) {
				r.Get("/", userHandler.GetProfile)
				r.Put("/", userHandler.UpdateProfile)
			})
			r.Delete("/api/account", userHandler.Withdraw)

			r.Route("/api/cart", func(r chi.Router) {
				r.Get("/", cartHandler.View)
				r.Post("/items/{slug}", cartHandler.Add)
				r.Delete("/items/{id}", cartHandler.Remove)
			})
			r.Post("/api/checkout", cartHandler.Checkout)

			r.Route("/api/orders", func(r chi.Router) {
				r.Get("/", orderHandler.List)
				r.Get("/{id}", orderHandler.Get)
			})

			// 管理パネル（権限は各操作で確認する）
			r.Route("/api/admin", func(r chi.Router) {
				r.Get("/", adminHandler.Dashboard)

				r.Route("/categories", func(r chi.Router) {
					r.Get("/", adminHandler.ListCategories)
					r.Post("/", adminHandler.CreateCategory)
					r.Put("/{id}", adminHandler.UpdateCategory)
					r.Delete("/{id}", adminHandler.DeleteCategory)
				})

				r.Route("/products", func(r chi.Router) {
					r.Get("/", adminHandler.ListProducts)
					r.Post("/", adminHandler.CreateProduct)
					r.Put("/{id}", adminHandler.UpdateProduct)
					r.Delete("/{id}", adminHandler.DeleteProduct)
				})

				r.Route("/orders", func(r chi.Router) {
					r.Get("/", adminHandler.ListOrders)
					r.Get("/{id}", adminHandler.GetOrder)
					r.Post("/{id}/status", adminHandler.UpdateOrderStatus)
				})
			})
		})
	})

	return r
}
