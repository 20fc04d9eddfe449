// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, network, persistence, storage, validation, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// エラーカテゴリ
const (
	CategoryAuth        = "auth"
	CategoryNetwork     = "network"
	CategoryPersistence = "persistence"
	CategoryStorage     = "storage"
	CategoryValidation  = "validation"
	CategorySystem      = "system"
)

// 定義済みエラーコード
const (
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodeEmailInUse         = "EMAIL_IN_USE"
	ErrCodeNotAuthenticated   = "NOT_AUTHENTICATED"
	ErrCodeNetworkFailure     = "NETWORK_FAILURE"
	ErrCodePersistence        = "PERSISTENCE_FAILURE"
	ErrCodeStorageUpload      = "STORAGE_UPLOAD_FAILURE"
	ErrCodeStorageDelete      = "STORAGE_DELETE_FAILURE"
	ErrCodeRecipeNotFound     = "RECIPE_NOT_FOUND"
	ErrCodeInvalidRecipe      = "INVALID_RECIPE"
	ErrCodeUserNotFound       = "USER_NOT_FOUND"
)

// NewInvalidCredentialsError は認証失敗エラーを生成する。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "メールアドレスまたはパスワードが正しくありません。",
		Category: CategoryAuth,
		Action:   "入力内容を確認して再度お試しください。",
	}
}

// NewEmailInUseError はメールアドレス重複エラーを生成する。
func NewEmailInUseError(email string) *APIError {
	return &APIError{
		Code:     ErrCodeEmailInUse,
		Message:  fmt.Sprintf("このメールアドレスは既に使用されています: %s", email),
		Category: CategoryAuth,
		Action:   "別のメールアドレスを使用するか、ログインしてください。",
	}
}

// NewNotAuthenticatedError は未認証状態での操作エラーを生成する。
func NewNotAuthenticatedError() *APIError {
	return &APIError{
		Code:     ErrCodeNotAuthenticated,
		Message:  "ログインが必要な操作です。",
		Category: CategoryAuth,
		Action:   "ログインしてから再度お試しください。",
	}
}

// NewNetworkError は接続障害エラーを生成する。
func NewNetworkError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeNetworkFailure,
		Message:  fmt.Sprintf("サーバーへの接続に失敗しました: %s", reason),
		Category: CategoryNetwork,
		Action:   "接続状態を確認し、しばらく待ってから再度お試しください。",
	}
}

// NewPersistenceError はドキュメント書き込み/削除失敗エラーを生成する。
func NewPersistenceError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodePersistence,
		Message:  fmt.Sprintf("データの保存に失敗しました: %s", reason),
		Category: CategoryPersistence,
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewStorageUploadError は画像アップロード失敗エラーを生成する。
func NewStorageUploadError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeStorageUpload,
		Message:  fmt.Sprintf("画像のアップロードに失敗しました: %s", reason),
		Category: CategoryStorage,
		Action:   "画像を選び直すか、しばらく待ってから再度お試しください。",
	}
}

// NewStorageDeleteError は画像削除失敗エラーを生成する。
// 削除フローではベストエフォート扱いで、ログ記録のみに使用される。
func NewStorageDeleteError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeStorageDelete,
		Message:  fmt.Sprintf("画像の削除に失敗しました: %s", reason),
		Category: CategoryStorage,
		Action:   "対処は不要です。不要な画像は後で整理されます。",
	}
}

// NewRecipeNotFoundError はレシピ未検出エラーを生成する。
func NewRecipeNotFoundError(recipeID string) *APIError {
	return &APIError{
		Code:     ErrCodeRecipeNotFound,
		Message:  fmt.Sprintf("指定されたレシピが見つかりません: %s", recipeID),
		Category: CategoryValidation,
		Action:   "レシピIDを確認してください。",
	}
}

// NewInvalidRecipeError はレシピ入力値の検証エラーを生成する。
func NewInvalidRecipeError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRecipe,
		Message:  fmt.Sprintf("レシピの入力内容が正しくありません: %s", reason),
		Category: CategoryValidation,
		Action:   "入力内容を確認してください。材料は1件以上必要です。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: CategoryAuth,
		Action:   "ログインし直してください。",
	}
}

// categoryOf はエラーチェーンからAPIErrorのカテゴリを取り出す。
// APIErrorが含まれない場合は空文字列を返す。
func categoryOf(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Category
	}
	return ""
}

// IsAuthError はエラーが認証カテゴリかどうかを判定する。
func IsAuthError(err error) bool {
	return categoryOf(err) == CategoryAuth
}

// IsNetworkError はエラーが接続カテゴリかどうかを判定する。
func IsNetworkError(err error) bool {
	return categoryOf(err) == CategoryNetwork
}

// IsPersistenceError はエラーが永続化カテゴリかどうかを判定する。
func IsPersistenceError(err error) bool {
	return categoryOf(err) == CategoryPersistence
}

// IsStorageError はエラーが画像ストレージカテゴリかどうかを判定する。
func IsStorageError(err error) bool {
	return categoryOf(err) == CategoryStorage
}
