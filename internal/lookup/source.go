// Package lookup はレシピ検索データソースを提供する。
// 外部のレシピ検索APIクライアントと、オフライン用の組み込みソースを含む。
// どちらも読み取り専用で、バックエンドには何も永続化しない。
package lookup

import (
	"context"

	"github.com/hitoshi/tastify/internal/model"
)

// Source はレシピ検索データソースのインターフェース。
type Source interface {
	// RandomSample はランダムに選んだレシピを最大count件返す。
	RandomSample(ctx context.Context, count int) ([]model.Recipe, error)

	// ByCategory は指定カテゴリのレシピ一覧を返す。該当なしは空スライス。
	ByCategory(ctx context.Context, category string) ([]model.Recipe, error)

	// Search は名前・カテゴリ・地域の部分一致でレシピを検索する。
	// 空白のみのクエリは空スライスを返す。
	Search(ctx context.Context, query string) ([]model.Recipe, error)

	// ByID は指定IDのレシピを返す。見つからない場合はnil。
	ByID(ctx context.Context, id string) (*model.Recipe, error)

	// Categories は利用可能なカテゴリ名の一覧を返す。
	Categories(ctx context.Context) ([]string, error)
}
