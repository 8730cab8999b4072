// Package cleanup は期限切れの未確認アカウントを削除するリーパーを提供する。
// 確認コードの有効期限を過ぎても有効化されなかったアカウントを1文で一括削除する。
// プロフィールはCASCADE削除、セッションのaccount_idはSET NULLで処理される。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/storefront/internal/clock"
	"github.com/hitoshi/storefront/internal/metrics"
	"github.com/hitoshi/storefront/internal/registration"
)

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

const (
	deleteExpiredAccountsQuery = `DELETE FROM accounts a
		USING profiles p
		WHERE p.account_id = a.id
		  AND a.is_active = FALSE
		  AND p.otp_issued_at < $1`

	deleteExpiredSessionsQuery = `DELETE FROM sessions WHERE expires_at < $1`
)

// ReaperJob は期限切れ登録の削除ジョブ。
// 冪等であり、有効化済みアカウントには触れない。
type ReaperJob struct {
	db      Executor
	clock   clock.Clock
	logger  *slog.Logger
	metrics metrics.MetricsCollector
}

// NewReaperJob は新しいReaperJobを生成する。
func NewReaperJob(db Executor, clk clock.Clock, logger *slog.Logger, collector metrics.MetricsCollector) *ReaperJob {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &ReaperJob{
		db:      db,
		clock:   clk,
		logger:  logger,
		metrics: collector,
	}
}

// Sweep はnow時点で確認コードの有効期限が切れている未確認アカウントを削除し、削除件数を返す。
// 発行日時がnow-OTPExpiryより前のものが対象。
func (j *ReaperJob) Sweep(ctx context.Context, now time.Time) (int64, error) {
	start := time.Now()
	cutoff := now.Add(-registration.OTPExpiry)

	result, err := j.db.ExecContext(ctx, deleteExpiredAccountsQuery, cutoff)
	if err != nil {
		j.logger.Error("期限切れアカウントの削除に失敗しました",
			slog.String("error", err.Error()),
			slog.Time("cutoff", cutoff),
		)
		return 0, fmt.Errorf("期限切れアカウントの削除に失敗: %w", err)
	}

	deletedCount, err := result.RowsAffected()
	if err != nil {
		j.logger.Error("削除件数の取得に失敗しました",
			slog.String("error", err.Error()),
		)
		return 0, fmt.Errorf("削除件数の取得に失敗: %w", err)
	}

	j.metrics.RecordReaperDeleted(deletedCount)
	j.logger.Info("期限切れアカウントの削除が完了しました",
		slog.Int64("deleted_count", deletedCount),
		slog.Time("cutoff", cutoff),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return deletedCount, nil
}

// PurgeSessions は有効期限を過ぎたセッションを削除し、削除件数を返す。
func (j *ReaperJob) PurgeSessions(ctx context.Context, now time.Time) (int64, error) {
	result, err := j.db.ExecContext(ctx, deleteExpiredSessionsQuery, now)
	if err != nil {
		return 0, fmt.Errorf("期限切れセッションの削除に失敗: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("削除件数の取得に失敗: %w", err)
	}
	j.logger.Info("期限切れセッションを削除しました", slog.Int64("deleted_count", n))
	return n, nil
}

// Run は現在時刻でSweepとPurgeSessionsを実行し、削除したアカウント数を返す。
func (j *ReaperJob) Run(ctx context.Context) (int64, error) {
	now := j.clock.Now()
	deleted, err := j.Sweep(ctx, now)
	if err != nil {
		return 0, err
	}
	if _, err := j.PurgeSessions(ctx, now); err != nil {
		return deleted, err
	}
	return deleted, nil
}

// Start はinterval間隔でRunを実行する。
// 起動直後に1回実行し、コンテキストがキャンセルされるまで継続する。
func (j *ReaperJob) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	j.logger.Info("リーパーを開始しました", slog.Duration("interval", interval))

	j.runLogged(ctx)
	for {
		select {
		case <-ctx.Done():
			j.logger.Info("リーパーを停止しました")
			return
		case <-ticker.C:
			j.runLogged(ctx)
		}
	}
}

func (j *ReaperJob) runLogged(ctx context.Context) {
	if _, err := j.Run(ctx); err != nil {
		j.logger.Error("リーパーの実行に失敗しました", slog.String("error", err.Error()))
	}
}
