package lookup

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hitoshi/tastify/internal/metrics"
	"github.com/hitoshi/tastify/internal/model"
)

// maxRandomSample はRandomSampleで1回に返す最大件数。
const maxRandomSample = 12

// Client は外部レシピ検索APIのクライアント。
// TheMealDB互換のエンドポイント群（random.php, filter.php, search.php,
// lookup.php, list.php）を呼び出す。
type Client struct {
	httpClient *http.Client
	metrics    metrics.MetricsCollector
	logger     *slog.Logger
	baseURL    string
}

// NewClient はClientの新しいインスタンスを生成する。
// baseURLはAPIのルート（例: https://www.themealdb.com/api/json/v1/1）。
func NewClient(httpClient *http.Client, baseURL string, collector metrics.MetricsCollector, logger *slog.Logger) *Client {
	return &Client{
		httpClient: httpClient,
		metrics:    collector,
		logger:     logger,
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// RandomSample はランダムなレシピを最大count件返す。
// APIのランダム取得は1件ずつ返すため、count回呼び出してIDで重複排除する。
func (c *Client) RandomSample(ctx context.Context, count int) ([]model.Recipe, error) {
	if count > maxRandomSample {
		count = maxRandomSample
	}

	seen := make(map[string]bool, count)
	out := make([]model.Recipe, 0, count)
	for i := 0; i < count; i++ {
		meals, err := c.fetchMeals(ctx, "/random.php", nil)
		if err != nil {
			return nil, err
		}
		for _, m := range meals {
			if !seen[m.ID] {
				seen[m.ID] = true
				out = append(out, m)
			}
		}
	}
	return out, nil
}

// ByCategory は指定カテゴリのレシピ一覧を返す。
func (c *Client) ByCategory(ctx context.Context, category string) ([]model.Recipe, error) {
	return c.fetchMeals(ctx, "/filter.php", url.Values{"c": {category}})
}

// Search は名前の部分一致でレシピを検索する。
// 空白のみのクエリはAPIを呼ばずに空スライスを返す。
func (c *Client) Search(ctx context.Context, query string) ([]model.Recipe, error) {
	if strings.TrimSpace(query) == "" {
		return []model.Recipe{}, nil
	}
	return c.fetchMeals(ctx, "/search.php", url.Values{"s": {query}})
}

// ByID は指定IDのレシピを返す。見つからない場合はnil。
func (c *Client) ByID(ctx context.Context, id string) (*model.Recipe, error) {
	meals, err := c.fetchMeals(ctx, "/lookup.php", url.Values{"i": {id}})
	if err != nil {
		return nil, err
	}
	if len(meals) == 0 {
		return nil, nil
	}
	return &meals[0], nil
}

// Categories は利用可能なカテゴリ名の一覧を返す。
func (c *Client) Categories(ctx context.Context) ([]string, error) {
	body, err := c.fetch(ctx, "/list.php", url.Values{"c": {"list"}})
	if err != nil {
		return nil, err
	}

	var envelope struct {
		Meals []struct {
			Category string `json:"strCategory"`
		} `json:"meals"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("カテゴリ一覧のパースに失敗しました: %w", err)
	}

	names := make([]string, 0, len(envelope.Meals))
	for _, m := range envelope.Meals {
		if m.Category != "" {
			names = append(names, m.Category)
		}
	}
	return names, nil
}

// fetchMeals はmeals封筒つきのエンドポイントを呼び出してレシピへ変換する。
// APIは該当なしをmeals: nullで表すため、nilは空スライスとして扱う。
func (c *Client) fetchMeals(ctx context.Context, path string, query url.Values) ([]model.Recipe, error) {
	body, err := c.fetch(ctx, path, query)
	if err != nil {
		return nil, err
	}

	var envelope struct {
		Meals []json.RawMessage `json:"meals"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("レシピ検索APIのレスポンスのパースに失敗しました: %w", err)
	}

	out := make([]model.Recipe, 0, len(envelope.Meals))
	for _, raw := range envelope.Meals {
		recipe, err := decodeMeal(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, recipe)
	}
	return out, nil
}

// fetch はAPIを呼び出してレスポンスボディを返す。
// ステータスコードとレイテンシをメトリクスへ記録する。
func (c *Client) fetch(ctx context.Context, path string, query url.Values) ([]byte, error) {
	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("User-Agent", "Tastify/1.0 Recipe Browser")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.RecordLookupLatency(time.Since(start))
	if err != nil {
		c.logger.Error("レシピ検索APIの呼び出しに失敗しました",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return nil, model.NewNetworkError(err.Error())
	}
	defer resp.Body.Close()

	c.metrics.RecordLookupStatus(resp.StatusCode)

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("レシピ検索APIがエラーステータスを返しました",
			slog.String("path", path),
			slog.Int("http_status", resp.StatusCode),
		)
		return nil, fmt.Errorf("レシピ検索APIがステータス %d を返しました", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}
	return body, nil
}

// decodeMeal は1件のmealオブジェクトをレシピへ変換する。
// 材料はstrIngredientN/strMeasureNの番号付きフィールドから組み立てる。
func decodeMeal(raw json.RawMessage) (model.Recipe, error) {
	var fields map[string]*string
	if err := json.Unmarshal(raw, &fields); err != nil {
		return model.Recipe{}, fmt.Errorf("レシピのパースに失敗しました: %w", err)
	}

	get := func(key string) string {
		if v := fields[key]; v != nil {
			return *v
		}
		return ""
	}

	recipe := model.Recipe{
		ID:           get("idMeal"),
		Name:         get("strMeal"),
		Thumbnail:    get("strMealThumb"),
		Category:     get("strCategory"),
		Area:         get("strArea"),
		Instructions: get("strInstructions"),
		CookingTime:  get("cookingTime"),
		Difficulty:   get("difficulty"),
	}

	for i := 1; i <= 20; i++ {
		name := strings.TrimSpace(get(fmt.Sprintf("strIngredient%d", i)))
		if name == "" {
			continue
		}
		recipe.Ingredients = append(recipe.Ingredients, model.Ingredient{
			Name:    name,
			Measure: strings.TrimSpace(get(fmt.Sprintf("strMeasure%d", i))),
		})
	}

	return recipe, nil
}

// compile-time interface check
var _ Source = (*Client)(nil)
