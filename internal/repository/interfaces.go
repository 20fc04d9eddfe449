// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/hitoshi/tastify/internal/model"
)

// 変更通知のトピック名。
// PostgreSQL実装ではNOTIFYチャネル名、ペイロードはユーザーIDになる。
const (
	TopicProfiles    = "tastify_profiles"
	TopicUserRecipes = "tastify_user_recipes"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindCredentialByEmail はメールアドレスで認証情報を検索する。
	// 見つからない場合はnilを返す。
	FindCredentialByEmail(ctx context.Context, email string) (*model.Credential, error)

	// CreateWithCredential はユーザーと認証情報を同一トランザクションで作成する。
	CreateWithCredential(ctx context.Context, user *model.User, cred *model.Credential) error
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
}

// ProfileRepository はプロフィールドキュメントの永続化インターフェース。
// お気に入り配列への書き込みはすべてユーザー単位の変更通知を発行する。
type ProfileRepository interface {
	// Create はプロフィールドキュメントを作成する。
	Create(ctx context.Context, profile *model.Profile) error

	// FindByUserID は指定ユーザーのプロフィールを取得する。見つからない場合はnilを返す。
	FindByUserID(ctx context.Context, userID string) (*model.Profile, error)

	// AppendFavorite はお気に入り配列への加法的な和集合書き込みを行う。
	// 既に全フィールド一致の要素が存在する場合は配列を変更しない（重複許容）。
	// 要素の順序は保持される。
	AppendFavorite(ctx context.Context, userID string, fav model.FavoriteRecipe) error

	// RemoveFavorite は全フィールド一致の要素を配列から削除する。
	// 一致する要素が存在しない場合は配列を変更しない。
	RemoveFavorite(ctx context.Context, userID string, fav model.FavoriteRecipe) error
}

// RecipeRepository はユーザー投稿レシピの永続化インターフェース。
// すべての書き込みはユーザー単位の変更通知を発行する。
type RecipeRepository interface {
	// Create はレシピを作成し、割り当てたIDを返す。
	// recipe.IDは無視され、バックエンドが新しいIDを割り当てる。
	Create(ctx context.Context, recipe *model.UserRecipe) (string, error)

	// FindByID は指定IDのレシピを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.UserRecipe, error)

	// Update は可変フィールド（名前、説明、分類、調理時間、人数、材料、手順、画像URL）と
	// updated_atを上書きする。IDとuser_id、created_atは変更しない。
	// 対象はrecipe.UserIDが所有するレシピに限定され、変更通知もそのユーザー宛に発行される。
	Update(ctx context.Context, recipe *model.UserRecipe) error

	// UpdateImageURL はimage_urlフィールドのみを更新する。
	// 2段階作成の第2段階（画像アップロード後のパッチ）で使用する。
	UpdateImageURL(ctx context.Context, id, imageURL string) error

	// Delete は指定IDのレシピを削除する。対象はuserIDが所有するレシピに限定される。
	Delete(ctx context.Context, id, userID string) error

	// ListByUserID は指定ユーザーのレシピ一覧を返す。順序は保証しない。
	ListByUserID(ctx context.Context, userID string) ([]model.UserRecipe, error)
}

// ImageRepository はレシピ画像オブジェクトの永続化インターフェース。
type ImageRepository interface {
	// Save は画像オブジェクトを保存する。同一キーへの保存は上書きする。
	Save(ctx context.Context, img *model.RecipeImage) error
	// FindByKey は指定キーの画像を取得する。見つからない場合はnilを返す。
	FindByKey(ctx context.Context, key string) (*model.RecipeImage, error)
	// DeleteByKey は指定キーの画像を削除する。存在しないキーはエラーにしない。
	DeleteByKey(ctx context.Context, key string) error
}

// Notifier は変更通知の購読インターフェース。
// Watchは指定トピック・キーの変更イベントチャネルと購読解除関数を返す。
// イベントはバックエンドの発行順に配信され、チャネルが詰まっている場合は
// 最新イベントのみ保持される（スナップショット再取得の契機としてのみ使うため）。
type Notifier interface {
	Watch(ctx context.Context, topic, key string) (<-chan struct{}, func(), error)
}
