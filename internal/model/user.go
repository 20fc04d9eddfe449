// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービス利用ユーザーを表す。
type User struct {
	ID        string
	Email     string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Credential はメールアドレス＋パスワードの認証情報を表す。
// PasswordHashはbcryptハッシュのみを保持し、平文は保持しない。
type Credential struct {
	UserID       string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// Session はユーザーのログインセッションを表す。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Profile はユーザーのプロフィールドキュメントを表す。
// お気に入りレシピの配列を内包する（ユーザーごとに1ドキュメント）。
// サインアップ時に空のFavoritesで作成される。
type Profile struct {
	UserID    string
	Name      string
	Favorites []FavoriteRecipe
	UpdatedAt time.Time
}
