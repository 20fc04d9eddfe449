package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/hitoshi/tastify/internal/model"
)

// PostgresRecipeRepo はPostgreSQLを使用したユーザー投稿レシピリポジトリ。
// 書き込みはすべて同一トランザクション内でpg_notifyによる変更通知を発行する。
type PostgresRecipeRepo struct {
	db *sql.DB
}

// NewPostgresRecipeRepo はPostgresRecipeRepoを生成する。
func NewPostgresRecipeRepo(db *sql.DB) *PostgresRecipeRepo {
	return &PostgresRecipeRepo{db: db}
}

// Create はレシピを作成し、割り当てたIDを返す。
func (r *PostgresRecipeRepo) Create(ctx context.Context, recipe *model.UserRecipe) (string, error) {
	id := uuid.New().String()

	ingredients, err := json.Marshal(recipe.Ingredients)
	if err != nil {
		return "", fmt.Errorf("failed to marshal ingredients: %w", err)
	}
	if recipe.Ingredients == nil {
		ingredients = []byte("[]")
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO user_recipes
		 (id, user_id, name, description, category, cooking_time, servings,
		  ingredients, instructions, image_url, user_name, user_email, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		id, recipe.UserID, recipe.Name, recipe.Description, recipe.Category,
		recipe.CookingTime, recipe.Servings, ingredients, recipe.Instructions,
		recipe.ImageURL, recipe.UserName, recipe.UserEmail, recipe.CreatedAt, recipe.UpdatedAt,
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert recipe: %w", err)
	}

	if err := notifyRecipeChange(ctx, tx, recipe.UserID); err != nil {
		return "", err
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit transaction: %w", err)
	}

	return id, nil
}

// FindByID は指定IDのレシピを取得する。見つからない場合はnilを返す。
func (r *PostgresRecipeRepo) FindByID(ctx context.Context, id string) (*model.UserRecipe, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, name, description, category, cooking_time, servings,
		        ingredients, instructions, image_url, user_name, user_email, created_at, updated_at
		 FROM user_recipes WHERE id = $1`,
		id,
	)
	recipe, err := scanRecipe(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find recipe by ID: %w", err)
	}
	return recipe, nil
}

// Update は可変フィールドとupdated_atを上書きする。IDとuser_id、created_atは変更しない。
// recipe.UserIDが所有する行のみを対象とし、変更通知も同じユーザー宛に発行する。
func (r *PostgresRecipeRepo) Update(ctx context.Context, recipe *model.UserRecipe) error {
	ingredients, err := json.Marshal(recipe.Ingredients)
	if err != nil {
		return fmt.Errorf("failed to marshal ingredients: %w", err)
	}
	if recipe.Ingredients == nil {
		ingredients = []byte("[]")
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`UPDATE user_recipes SET
		   name = $1, description = $2, category = $3, cooking_time = $4, servings = $5,
		   ingredients = $6, instructions = $7, image_url = $8, updated_at = $9
		 WHERE id = $10 AND user_id = $11`,
		recipe.Name, recipe.Description, recipe.Category, recipe.CookingTime,
		recipe.Servings, ingredients, recipe.Instructions, recipe.ImageURL,
		recipe.UpdatedAt, recipe.ID, recipe.UserID,
	)
	if err != nil {
		return fmt.Errorf("failed to update recipe: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("recipe not found: %s", recipe.ID)
	}

	if err := notifyRecipeChange(ctx, tx, recipe.UserID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// UpdateImageURL はimage_urlフィールドのみを更新する。
func (r *PostgresRecipeRepo) UpdateImageURL(ctx context.Context, id, imageURL string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var userID string
	err = tx.QueryRowContext(ctx,
		`UPDATE user_recipes SET image_url = $1, updated_at = now() WHERE id = $2 RETURNING user_id`,
		imageURL, id,
	).Scan(&userID)
	if err == sql.ErrNoRows {
		return fmt.Errorf("recipe not found: %s", id)
	}
	if err != nil {
		return fmt.Errorf("failed to update image URL: %w", err)
	}

	if err := notifyRecipeChange(ctx, tx, userID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Delete は指定IDのレシピを削除する。userIDが所有する行のみを対象とする。
func (r *PostgresRecipeRepo) Delete(ctx context.Context, id, userID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`DELETE FROM user_recipes WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete recipe: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("recipe not found: %s", id)
	}

	if err := notifyRecipeChange(ctx, tx, userID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ListByUserID は指定ユーザーのレシピ一覧を返す。順序は保証しない。
func (r *PostgresRecipeRepo) ListByUserID(ctx context.Context, userID string) ([]model.UserRecipe, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, name, description, category, cooking_time, servings,
		        ingredients, instructions, image_url, user_name, user_email, created_at, updated_at
		 FROM user_recipes WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list recipes: %w", err)
	}
	defer rows.Close()

	var recipes []model.UserRecipe
	for rows.Next() {
		recipe, err := scanRecipe(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan recipe: %w", err)
		}
		recipes = append(recipes, *recipe)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate recipes: %w", err)
	}

	return recipes, nil
}

// scanner は*sql.Rowと*sql.Rowsの共通部分。
type scanner interface {
	Scan(dest ...any) error
}

// scanRecipe は1行をUserRecipeに読み出す。
func scanRecipe(s scanner) (*model.UserRecipe, error) {
	recipe := &model.UserRecipe{}
	var ingredients []byte
	err := s.Scan(
		&recipe.ID, &recipe.UserID, &recipe.Name, &recipe.Description,
		&recipe.Category, &recipe.CookingTime, &recipe.Servings, &ingredients,
		&recipe.Instructions, &recipe.ImageURL, &recipe.UserName, &recipe.UserEmail,
		&recipe.CreatedAt, &recipe.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(ingredients, &recipe.Ingredients); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ingredients: %w", err)
	}
	return recipe, nil
}

// notifyRecipeChange はトランザクション内でレシピ変更通知を発行する。
func notifyRecipeChange(ctx context.Context, tx *sql.Tx, userID string) error {
	if _, err := tx.ExecContext(ctx, `SELECT pg_notify($1, $2)`, TopicUserRecipes, userID); err != nil {
		return fmt.Errorf("failed to notify recipe change: %w", err)
	}
	return nil
}

// compile-time interface check
var _ RecipeRepository = (*PostgresRecipeRepo)(nil)
