// Package cleanup はバックエンドデータの自動整理ジョブを提供する。
// 期限切れセッションと、どのレシピからも参照されなくなった孤立画像を
// 日次バッチで削除する。孤立画像はレシピ削除時の画像削除失敗や、
// 2段階作成の第2段階失敗で残ったものが対象になる。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// CleanupJob は期限切れセッションと孤立画像の自動削除ジョブ。
// 日次実行のバッチジョブとして設計されており、冪等な削除処理を保証する。
type CleanupJob struct {
	db             Executor
	logger         *slog.Logger
	ImageGraceDays int // 孤立画像を削除するまでの猶予日数（デフォルト: 7）
}

// NewCleanupJob は新しいCleanupJobを生成する。
// デフォルトの猶予日数は7日。
func NewCleanupJob(db Executor, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		db:             db,
		logger:         logger,
		ImageGraceDays: 7,
	}
}

// Run は期限切れセッションと孤立画像を削除する。
// 冪等: 削除対象がない場合でもエラーにならない。
func (j *CleanupJob) Run(ctx context.Context) error {
	if err := j.deleteExpiredSessions(ctx); err != nil {
		return err
	}
	return j.deleteOrphanImages(ctx)
}

// deleteExpiredSessions はexpires_atを過ぎたセッションを削除する。
func (j *CleanupJob) deleteExpiredSessions(ctx context.Context) error {
	start := time.Now()

	query := `DELETE FROM sessions WHERE expires_at < now()`
	result, err := j.db.ExecContext(ctx, query)
	if err != nil {
		j.logger.Error("セッションクリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("セッションクリーンアップの実行に失敗: %w", err)
	}

	deletedCount, err := result.RowsAffected()
	if err != nil {
		j.logger.Error("削除件数の取得に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("削除件数の取得に失敗: %w", err)
	}

	duration := time.Since(start)
	j.logger.Info("セッションクリーンアップジョブが完了しました",
		slog.Int64("deleted_count", deletedCount),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

// deleteOrphanImages はどのレシピのimage_urlからも参照されていない画像を削除する。
// 作成直後の画像を誤って削除しないよう、猶予日数を経過したものだけを対象にする。
func (j *CleanupJob) deleteOrphanImages(ctx context.Context) error {
	start := time.Now()

	interval := fmt.Sprintf("%d days", j.ImageGraceDays)

	query := `DELETE FROM recipe_images
		WHERE created_at < now() - $1::interval
		AND NOT EXISTS (
			SELECT 1 FROM user_recipes
			WHERE position(recipe_images.key in user_recipes.image_url) > 0
		)`
	result, err := j.db.ExecContext(ctx, query, interval)
	if err != nil {
		j.logger.Error("孤立画像クリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
			slog.Int("grace_days", j.ImageGraceDays),
		)
		return fmt.Errorf("孤立画像クリーンアップの実行に失敗: %w", err)
	}

	deletedCount, err := result.RowsAffected()
	if err != nil {
		j.logger.Error("削除件数の取得に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("削除件数の取得に失敗: %w", err)
	}

	duration := time.Since(start)
	j.logger.Info("孤立画像クリーンアップジョブが完了しました",
		slog.Int64("deleted_count", deletedCount),
		slog.Int("grace_days", j.ImageGraceDays),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}
