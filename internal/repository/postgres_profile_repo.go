package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/hitoshi/tastify/internal/model"
)

// PostgresProfileRepo はPostgreSQLを使用したプロフィールリポジトリ。
// お気に入り配列はprofiles.favoritesカラムにJSONBとして保持する。
// 配列への書き込みはSELECT ... FOR UPDATEで行ロックを取り、
// 同一トランザクション内でpg_notifyによる変更通知を発行する。
type PostgresProfileRepo struct {
	db *sql.DB
}

// NewPostgresProfileRepo はPostgresProfileRepoを生成する。
func NewPostgresProfileRepo(db *sql.DB) *PostgresProfileRepo {
	return &PostgresProfileRepo{db: db}
}

// Create はプロフィールドキュメントを作成する。
func (r *PostgresProfileRepo) Create(ctx context.Context, profile *model.Profile) error {
	favs, err := json.Marshal(profile.Favorites)
	if err != nil {
		return fmt.Errorf("failed to marshal favorites: %w", err)
	}
	if profile.Favorites == nil {
		favs = []byte("[]")
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO profiles (user_id, name, favorites, updated_at)
		 VALUES ($1, $2, $3, $4)`,
		profile.UserID, profile.Name, favs, profile.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert profile: %w", err)
	}
	return nil
}

// FindByUserID は指定ユーザーのプロフィールを取得する。見つからない場合はnilを返す。
func (r *PostgresProfileRepo) FindByUserID(ctx context.Context, userID string) (*model.Profile, error) {
	profile := &model.Profile{}
	var favs []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, name, favorites, updated_at FROM profiles WHERE user_id = $1`,
		userID,
	).Scan(&profile.UserID, &profile.Name, &favs, &profile.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find profile: %w", err)
	}

	if err := json.Unmarshal(favs, &profile.Favorites); err != nil {
		return nil, fmt.Errorf("failed to unmarshal favorites: %w", err)
	}

	return profile, nil
}

// AppendFavorite はお気に入り配列への和集合書き込みを行う。
// 全フィールド一致の要素が既にある場合は何も変更しない。
func (r *PostgresProfileRepo) AppendFavorite(ctx context.Context, userID string, fav model.FavoriteRecipe) error {
	return r.mutateFavorites(ctx, userID, func(favs []model.FavoriteRecipe) ([]model.FavoriteRecipe, bool) {
		return unionFavorites(favs, fav)
	})
}

// RemoveFavorite は全フィールド一致の要素を配列から削除する。
func (r *PostgresProfileRepo) RemoveFavorite(ctx context.Context, userID string, fav model.FavoriteRecipe) error {
	return r.mutateFavorites(ctx, userID, func(favs []model.FavoriteRecipe) ([]model.FavoriteRecipe, bool) {
		return removeExactFavorite(favs, fav)
	})
}

// mutateFavorites は行ロック付きでお気に入り配列を読み出し、
// mutateの結果で更新して変更通知を発行する。
// mutateが変更なしを報告した場合も通知は発行する（書き込みのエコーとして購読者が観測する）。
func (r *PostgresProfileRepo) mutateFavorites(
	ctx context.Context,
	userID string,
	mutate func([]model.FavoriteRecipe) ([]model.FavoriteRecipe, bool),
) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var raw []byte
	err = tx.QueryRowContext(ctx,
		`SELECT favorites FROM profiles WHERE user_id = $1 FOR UPDATE`,
		userID,
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return fmt.Errorf("profile not found: %s", userID)
	}
	if err != nil {
		return fmt.Errorf("failed to lock profile: %w", err)
	}

	var favs []model.FavoriteRecipe
	if err := json.Unmarshal(raw, &favs); err != nil {
		return fmt.Errorf("failed to unmarshal favorites: %w", err)
	}

	next, changed := mutate(favs)
	if changed {
		encoded, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("failed to marshal favorites: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE profiles SET favorites = $1, updated_at = now() WHERE user_id = $2`,
			encoded, userID,
		)
		if err != nil {
			return fmt.Errorf("failed to update favorites: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `SELECT pg_notify($1, $2)`, TopicProfiles, userID); err != nil {
		return fmt.Errorf("failed to notify profile change: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// unionFavorites はfavを配列に加法的に追加する。順序は保持される。
// 全フィールド一致の要素が既にある場合は追加せずchanged=falseを返す。
func unionFavorites(favs []model.FavoriteRecipe, fav model.FavoriteRecipe) ([]model.FavoriteRecipe, bool) {
	for _, existing := range favs {
		if existing.Equal(fav) {
			return favs, false
		}
	}
	return append(favs, fav), true
}

// removeExactFavorite は全フィールド一致の要素を1件だけ削除する。
// 一致する要素がない場合はchanged=falseを返す。
func removeExactFavorite(favs []model.FavoriteRecipe, fav model.FavoriteRecipe) ([]model.FavoriteRecipe, bool) {
	for i, existing := range favs {
		if existing.Equal(fav) {
			next := make([]model.FavoriteRecipe, 0, len(favs)-1)
			next = append(next, favs[:i]...)
			next = append(next, favs[i+1:]...)
			return next, true
		}
	}
	return favs, false
}

// compile-time interface check
var _ ProfileRepository = (*PostgresProfileRepo)(nil)
