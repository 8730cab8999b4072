package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/storefront/internal/metrics"
	"github.com/hitoshi/storefront/internal/middleware"
	"github.com/hitoshi/storefront/internal/model"
	"github.com/hitoshi/storefront/internal/registration"
)

// fakeSessionLoader はIDごとのログイン状態を持つ訪問者セッションの疑似実装。
type fakeSessionLoader struct {
	accounts map[string]string // セッションID → アカウントID
	created  int
}

func (f *fakeSessionLoader) LoadOrCreate(ctx context.Context, id string) (*model.Session, bool, error) {
	if accountID, ok := f.accounts[id]; ok {
		return &model.Session{ID: id, AccountID: accountID}, false, nil
	}
	f.created++
	return &model.Session{ID: "anon-session"}, true, nil
}

func (f *fakeSessionLoader) MaxAge() time.Duration { return time.Hour }

type fakeHealthChecker struct {
	err error
}

func (f fakeHealthChecker) PingContext(ctx context.Context) error { return f.err }

type routerFixture struct {
	handler  http.Handler
	sessions *fakeSessionLoader
	limiter  *middleware.RateLimiter
}

func newRouterFixture(t *testing.T, rlConfig middleware.RateLimiterConfig) *routerFixture {
	t.Helper()
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)

	sessions := &fakeSessionLoader{accounts: map[string]string{
		"customer-session": "acc-1",
		"staff-session":    "staff-1",
	}}
	limiter := middleware.NewRateLimiter(rlConfig)
	t.Cleanup(limiter.Stop)

	deps := &RouterDeps{
		Logger:            slog.New(slog.NewJSONHandler(io.Discard, nil)),
		Metrics:           collector,
		MetricsGatherer:   reg,
		SessionLoader:     sessions,
		CORSAllowedOrigin: "http://localhost:3000",
		RateLimiter:       limiter,
		HealthChecker:     fakeHealthChecker{},
		Media:             fakeMedia{},
		AuthService: &mockAuthService{
			registerFn: func(ctx context.Context, sessionID string, in registration.RegisterInput) (*registration.IssueResult, error) {
				return &registration.IssueResult{Account: testAccount(), Emailed: true}, nil
			},
		},
		UserService:     &mockUserService{},
		CatalogService:  &mockCatalogService{},
		CartService:     &mockCartService{},
		OrderService:    &mockOrderService{},
		StaffAuthorizer: &mockStaffAuthorizer{staffIDs: map[string]bool{"staff-1": true}},
		AdminService: &mockAdminService{
			dashboardFn: func(ctx context.Context) (*model.DashboardStats, error) {
				return &model.DashboardStats{}, nil
			},
		},
	}
	return &routerFixture{handler: NewRouter(deps), sessions: sessions, limiter: limiter}
}

func (f *routerFixture) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	return w
}

// withCSRF は一致するCSRFトークンのCookieとヘッダーを付与する。
func withCSRF(req *http.Request) *http.Request {
	req.AddCookie(&http.Cookie{Name: "csrf_token", Value: "token-123"})
	req.Header.Set("X-CSRF-Token", "token-123")
	return req
}

func withSessionCookie(req *http.Request, id string) *http.Request {
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: id})
	return req
}

func TestRouter_Health_DoesNotCreateSession(t *testing.T) {
	f := newRouterFixture(t, middleware.DefaultRateLimiterConfig())

	w := f.do(httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if f.sessions.created != 0 {
		t.Errorf("ヘルスチェックでセッションが %d 件作成された", f.sessions.created)
	}
}

func TestHealthHandler_DatabaseDown(t *testing.T) {
	w := httptest.NewRecorder()
	NewHealthHandler(fakeHealthChecker{err: errors.New("refused")})(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}

func TestRouter_Metrics(t *testing.T) {
	f := newRouterFixture(t, middleware.DefaultRateLimiterConfig())

	f.do(httptest.NewRequest(http.MethodGet, "/api/home", nil))
	w := f.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), "storefront_http_status_total") {
		t.Errorf("HTTPリクエスト数のメトリクスが出力されていない:\n%s", w.Body.String())
	}
}

func TestRouter_AnonymousBrowsing_IssuesCookies(t *testing.T) {
	f := newRouterFixture(t, middleware.DefaultRateLimiterConfig())

	w := f.do(httptest.NewRequest(http.MethodGet, "/api/home", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	names := map[string]bool{}
	for _, c := range w.Result().Cookies() {
		names[c.Name] = true
	}
	if !names[middleware.SessionCookieName] || !names["csrf_token"] {
		t.Errorf("cookies = %v", names)
	}
}

func TestRouter_StateChangingRequestsRequireCSRF(t *testing.T) {
	f := newRouterFixture(t, middleware.DefaultRateLimiterConfig())
	body := `{"email":"alice@example.com","username":"alice","password":"s3cret!"}`

	w := f.do(httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader(body)))
	if w.Code != http.StatusForbidden {
		t.Errorf("CSRFトークンなし: status = %d, want %d", w.Code, http.StatusForbidden)
	}

	w = f.do(withCSRF(httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader(body))))
	if w.Code != http.StatusCreated {
		t.Errorf("CSRFトークンあり: status = %d, want %d", w.Code, http.StatusCreated)
	}
}

func TestRouter_RegisterIsRateLimitedPerClient(t *testing.T) {
	cfg := middleware.DefaultRateLimiterConfig()
	cfg.RegisterBurst = 1
	f := newRouterFixture(t, cfg)

	register := func() int {
		req := withCSRF(httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader(`{}`)))
		req.RemoteAddr = "192.0.2.10:5555"
		return f.do(req).Code
	}

	if got := register(); got != http.StatusCreated {
		t.Fatalf("1回目: status = %d, want %d", got, http.StatusCreated)
	}
	if got := register(); got != http.StatusTooManyRequests {
		t.Errorf("2回目: status = %d, want %d", got, http.StatusTooManyRequests)
	}
}

func TestRouter_AuthenticatedRoutes(t *testing.T) {
	f := newRouterFixture(t, middleware.DefaultRateLimiterConfig())

	tests := []struct {
		name       string
		method     string
		target     string
		session    string
		wantStatus int
	}{
		{"未ログインのカート", http.MethodGet, "/api/cart", "", http.StatusUnauthorized},
		{"ログイン済みのカート", http.MethodGet, "/api/cart", "customer-session", http.StatusOK},
		{"ログイン済みの注文履歴", http.MethodGet, "/api/orders", "customer-session", http.StatusOK},
		{"未ログインの退会", http.MethodDelete, "/api/account", "", http.StatusUnauthorized},
		{"一般ユーザーの管理画面", http.MethodGet, "/api/admin", "customer-session", http.StatusForbidden},
		{"スタッフの管理画面", http.MethodGet, "/api/admin", "staff-session", http.StatusOK},
		{"存在しない注文", http.MethodGet, "/api/orders/nope", "customer-session", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := withCSRF(httptest.NewRequest(tt.method, tt.target, nil))
			if tt.session != "" {
				req = withSessionCookie(req, tt.session)
			}
			w := f.do(req)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestRouter_CatalogIsPublic(t *testing.T) {
	f := newRouterFixture(t, middleware.DefaultRateLimiterConfig())

	w := f.do(httptest.NewRequest(http.MethodGet, "/api/products/unknown", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
	if got := parseAPIErrorResponse(t, w).Code; got != model.ErrCodeProductNotFound {
		t.Errorf("code = %q", got)
	}
}
