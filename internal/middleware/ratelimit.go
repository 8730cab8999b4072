package middleware

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiterConfig はレート制限の設定を保持する。
type RateLimiterConfig struct {
	GeneralRate     rate.Limit    // ログイン済みAPIのアカウントごとのレート（req/sec）
	GeneralBurst    int           // ログイン済みAPIのバーストサイズ
	RegisterRate    rate.Limit    // 登録のクライアントIPごとのレート
	RegisterBurst   int           // 登録のバーストサイズ
	VerifyRate      rate.Limit    // OTP確認のセッションごとのレート
	VerifyBurst     int           // OTP確認のバーストサイズ
	CleanupInterval time.Duration // 期限切れエントリのクリーンアップ間隔
}

// DefaultRateLimiterConfig はデフォルトのレート制限設定を返す。
// API全般 120 req/min/account、登録 5 req/min/IP、OTP確認 10 req/min/session。
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		GeneralRate:     rate.Limit(120.0 / 60.0), // 2 req/sec
		GeneralBurst:    120,
		RegisterRate:    rate.Limit(5.0 / 60.0),
		RegisterBurst:   5,
		VerifyRate:      rate.Limit(10.0 / 60.0),
		VerifyBurst:     10,
		CleanupInterval: 5 * time.Minute,
	}
}

// keyedLimiter はキーごとのレートリミッターとアクセス時刻を保持する。
type keyedLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// limiterSet は1種類のレート制限についてキー別のリミッターを管理する。
type limiterSet struct {
	name  string
	rate  rate.Limit
	burst int

	mu       sync.RWMutex
	limiters map[string]*keyedLimiter
}

func newLimiterSet(name string, r rate.Limit, burst int) *limiterSet {
	return &limiterSet{
		name:     name,
		rate:     r,
		burst:    burst,
		limiters: make(map[string]*keyedLimiter),
	}
}

// get はキーのリミッターを取得または作成する。
func (s *limiterSet) get(key string) *rate.Limiter {
	s.mu.RLock()
	kl, exists := s.limiters[key]
	s.mu.RUnlock()

	if exists {
		s.mu.Lock()
		kl.lastAccess = time.Now()
		s.mu.Unlock()
		return kl.limiter
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// ダブルチェック
	if kl, exists := s.limiters[key]; exists {
		kl.lastAccess = time.Now()
		return kl.limiter
	}

	limiter := rate.NewLimiter(s.rate, s.burst)
	s.limiters[key] = &keyedLimiter{
		limiter:    limiter,
		lastAccess: time.Now(),
	}
	return limiter
}

func (s *limiterSet) count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.limiters)
}

func (s *limiterSet) evict(now time.Time, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, kl := range s.limiters {
		if now.Sub(kl.lastAccess) > ttl {
			delete(s.limiters, key)
		}
	}
}

// middleware はkeyFuncで得たキーごとにレート制限するミドルウェアを返す。
// キーが得られないリクエストはunauthorizedとして扱う。
func (s *limiterSet) middleware(keyFunc func(r *http.Request) (string, error)) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key, err := keyFunc(r)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			if !s.get(key).Allow() {
				writeRateLimitResponse(w, s.rate)
				slog.Warn("rate limit exceeded",
					slog.String("key", key),
					slog.String("limit_type", s.name),
				)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RateLimiter はレート制限を管理する。
// アカウント単位のAPI全般、クライアントIP単位の登録、セッション単位のOTP確認の3種類を提供する。
type RateLimiter struct {
	config RateLimiterConfig

	general  *limiterSet
	register *limiterSet
	verify   *limiterSet

	stopCh chan struct{}
}

// NewRateLimiter は新しいRateLimiterを生成する。
// バックグラウンドで期限切れエントリのクリーンアップを開始する。
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	rl := &RateLimiter{
		config:   config,
		general:  newLimiterSet("general", config.GeneralRate, config.GeneralBurst),
		register: newLimiterSet("register", config.RegisterRate, config.RegisterBurst),
		verify:   newLimiterSet("verify", config.VerifyRate, config.VerifyBurst),
		stopCh:   make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。
func (rl *RateLimiter) Stop() {
	close(rl.stopCh)
}

// GeneralMiddleware はログイン済みAPIのレート制限ミドルウェアを返す。
// NewRequireAuthの後に配置する。
func (rl *RateLimiter) GeneralMiddleware() func(next http.Handler) http.Handler {
	return rl.general.middleware(func(r *http.Request) (string, error) {
		return UserIDFromContext(r.Context())
	})
}

// RegisterMiddleware は登録エンドポイントのクライアントIP単位のレート制限ミドルウェアを返す。
// プロキシ配下ではRealIPミドルウェアでRemoteAddrを書き換えてから適用する。
func (rl *RateLimiter) RegisterMiddleware() func(next http.Handler) http.Handler {
	return rl.register.middleware(func(r *http.Request) (string, error) {
		return clientIP(r), nil
	})
}

// VerifyMiddleware はOTP確認エンドポイントのセッション単位のレート制限ミドルウェアを返す。
// 6桁のOTPの総当たりを抑止する。NewSessionMiddlewareの後に配置する。
func (rl *RateLimiter) VerifyMiddleware() func(next http.Handler) http.Handler {
	return rl.verify.middleware(func(r *http.Request) (string, error) {
		return SessionIDFromContext(r.Context())
	})
}

// GeneralLimiterCount は現在管理されているAPI全般リミッターのエントリ数を返す。
// テストおよびメトリクス用。
func (rl *RateLimiter) GeneralLimiterCount() int {
	return rl.general.count()
}

// RegisterLimiterCount は現在管理されている登録リミッターのエントリ数を返す。
func (rl *RateLimiter) RegisterLimiterCount() int {
	return rl.register.count()
}

// VerifyLimiterCount は現在管理されているOTP確認リミッターのエントリ数を返す。
func (rl *RateLimiter) VerifyLimiterCount() int {
	return rl.verify.count()
}

// cleanupLoop はバックグラウンドで期限切れエントリを定期的にクリーンアップする。
func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopCh:
			return
		}
	}
}

// cleanup は最終アクセス時刻がCleanupIntervalの2倍を超えたエントリを削除する。
func (rl *RateLimiter) cleanup() {
	ttl := rl.config.CleanupInterval * 2
	now := time.Now()

	rl.general.evict(now, ttl)
	rl.register.evict(now, ttl)
	rl.verify.evict(now, ttl)
}

// clientIP はRemoteAddrからポートを除いたアドレスを返す。
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// writeRateLimitResponse は1トークンが補充されるまでの推定秒数をRetry-Afterにして429を返す。
func writeRateLimitResponse(w http.ResponseWriter, r rate.Limit) {
	WriteTooManyRequests(w, int(math.Ceil(1.0/float64(r))))
}
