package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/tastify/internal/model"
)

// PostgresImageRepo はPostgreSQLを使用したレシピ画像リポジトリ。
// オブジェクトストレージ相当の役割で、画像バイト列をrecipe_imagesテーブルに保持する。
type PostgresImageRepo struct {
	db *sql.DB
}

// NewPostgresImageRepo はPostgresImageRepoを生成する。
func NewPostgresImageRepo(db *sql.DB) *PostgresImageRepo {
	return &PostgresImageRepo{db: db}
}

// Save は画像オブジェクトを保存する。同一キーへの保存は上書きする。
func (r *PostgresImageRepo) Save(ctx context.Context, img *model.RecipeImage) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO recipe_images (key, user_id, data, mime, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (key) DO UPDATE SET data = EXCLUDED.data, mime = EXCLUDED.mime`,
		img.Key, img.UserID, img.Data, img.Mime, img.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save image: %w", err)
	}
	return nil
}

// FindByKey は指定キーの画像を取得する。見つからない場合はnilを返す。
func (r *PostgresImageRepo) FindByKey(ctx context.Context, key string) (*model.RecipeImage, error) {
	img := &model.RecipeImage{}
	err := r.db.QueryRowContext(ctx,
		`SELECT key, user_id, data, mime, created_at FROM recipe_images WHERE key = $1`,
		key,
	).Scan(&img.Key, &img.UserID, &img.Data, &img.Mime, &img.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find image: %w", err)
	}
	return img, nil
}

// DeleteByKey は指定キーの画像を削除する。存在しないキーはエラーにしない。
func (r *PostgresImageRepo) DeleteByKey(ctx context.Context, key string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM recipe_images WHERE key = $1`, key)
	if err != nil {
		return fmt.Errorf("failed to delete image: %w", err)
	}
	return nil
}

// compile-time interface check
var _ ImageRepository = (*PostgresImageRepo)(nil)
