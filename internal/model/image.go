// Package model はドメインモデルを定義する。
package model

import "time"

// RecipeImage はレシピに添付された画像オブジェクトを表す。
// キーは "{userId}/{recipeId}_{timestamp}.jpg" の形式で割り当てられる。
type RecipeImage struct {
	Key       string
	UserID    string
	Data      []byte
	Mime      string
	CreatedAt time.Time
}
