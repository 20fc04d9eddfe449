// Package model はドメインモデルを定義する。
package model

import (
	"strings"
	"time"
)

// Ingredient はレシピの材料1件（名称と分量）を表す。
type Ingredient struct {
	Name    string `json:"name"`
	Measure string `json:"measure"`
}

// Recipe はレシピ検索APIから取得した閲覧用レシピを表す。
// バックエンドには永続化せず、検索・一覧・詳細表示にのみ使用する。
type Recipe struct {
	ID           string       `json:"idMeal"`
	Name         string       `json:"strMeal"`
	Thumbnail    string       `json:"strMealThumb"`
	Category     string       `json:"strCategory"`
	Area         string       `json:"strArea"`
	Instructions string       `json:"strInstructions"`
	Ingredients  []Ingredient `json:"ingredients,omitempty"`
	CookingTime  string       `json:"cookingTime,omitempty"`
	Difficulty   string       `json:"difficulty,omitempty"`
}

// FavoriteRecipe はユーザーのお気に入りとして保存するレシピの縮約形を表す。
// プロフィールドキュメントのFavorites配列に埋め込まれる。
// DateAddedは追加時に1回だけ設定され、以降変更されない。
type FavoriteRecipe struct {
	ID        string    `json:"idMeal"`
	Title     string    `json:"strMeal"`
	Thumbnail string    `json:"strMealThumb"`
	Category  string    `json:"strCategory"`
	Area      string    `json:"strArea"`
	DateAdded time.Time `json:"dateAdded"`
}

// Equal は2つのFavoriteRecipeが全フィールド一致かどうかを判定する。
// バックエンドの配列和集合書き込み（重複排除）と完全一致削除の基準になる。
func (f FavoriteRecipe) Equal(other FavoriteRecipe) bool {
	return f.ID == other.ID &&
		f.Title == other.Title &&
		f.Thumbnail == other.Thumbnail &&
		f.Category == other.Category &&
		f.Area == other.Area &&
		f.DateAdded.Equal(other.DateAdded)
}

// NewFavoriteRecipe はRecipeからお気に入り保存用の縮約形を構築する。
// CategoryとAreaが未設定の場合は空文字列のまま保存する。
func NewFavoriteRecipe(r Recipe, now time.Time) FavoriteRecipe {
	return FavoriteRecipe{
		ID:        r.ID,
		Title:     r.Name,
		Thumbnail: r.Thumbnail,
		Category:  r.Category,
		Area:      r.Area,
		DateAdded: now,
	}
}

// UserRecipe はユーザーが投稿したレシピドキュメントを表す。
// IDは作成時にバックエンドが割り当て、以降不変。
// UserIDは作成者の識別子で、以降不変。
type UserRecipe struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	Category     string    `json:"category"`
	CookingTime  string    `json:"cookingTime"`
	Servings     string    `json:"servings"`
	Ingredients  []string  `json:"ingredients"`
	Instructions string    `json:"instructions"`
	ImageURL     string    `json:"imageUrl"`
	UserID       string    `json:"userId"`
	UserName     string    `json:"userName"`
	UserEmail    string    `json:"userEmail"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// RecipeDraft はレシピ投稿フォームから渡される入力値を表す。
// ImageURIとCurrentImageURLはクライアント側の一時フィールドで、
// 永続化前にストアが取り除く。
type RecipeDraft struct {
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Category     string   `json:"category"`
	CookingTime  string   `json:"cookingTime"`
	Servings     string   `json:"servings"`
	Ingredients  []string `json:"ingredients"`
	Instructions string   `json:"instructions"`

	// ImageURI は選択された画像の取得元アドレス。未選択の場合は空。
	ImageURI string `json:"imageUri,omitempty"`
	// CurrentImageURL は編集時の既存画像アドレス。
	// ImageURIと一致する場合は「画像を変更していない」ことを意味し、再アップロードしない。
	CurrentImageURL string `json:"currentImageUrl,omitempty"`
}

// HasIngredient はDraftに空白以外の材料が1件以上あるかを返す。
// 投稿フォームのバリデーションで使用する（ストアは強制しない）。
func (d RecipeDraft) HasIngredient() bool {
	for _, ing := range d.Ingredients {
		if strings.TrimSpace(ing) != "" {
			return true
		}
	}
	return false
}
