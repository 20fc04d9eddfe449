package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/tastify/internal/lookup"
	"github.com/hitoshi/tastify/internal/model"
)

// defaultSampleCount はランダム取得の既定件数。
const defaultSampleCount = 8

// maxSampleCount はランダム取得の上限件数。
const maxSampleCount = 12

// LookupHandler はレシピ検索APIのHTTPハンドラー。
// 認証不要の公開エンドポイントとして提供する。
type LookupHandler struct {
	source lookup.Source
}

// NewLookupHandler はLookupHandlerを生成する。
func NewLookupHandler(source lookup.Source) *LookupHandler {
	return &LookupHandler{source: source}
}

// mealsEnvelope はTheMealDB互換のレスポンス形式。
// 該当なしの場合はmealsがnullになる。
type mealsEnvelope struct {
	Meals []model.Recipe `json:"meals"`
}

func writeMeals(w http.ResponseWriter, recipes []model.Recipe) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(mealsEnvelope{Meals: recipes})
}

// Random はランダムに選んだレシピを返す。
// GET /api/lookup/random?count=N
func (h *LookupHandler) Random(w http.ResponseWriter, r *http.Request) {
	count := defaultSampleCount
	if raw := r.URL.Query().Get("count"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
				Code:     "INVALID_REQUEST",
				Message:  "countは1以上の整数で指定してください。",
				Category: model.CategoryValidation,
				Action:   "クエリパラメータを確認してください。",
			})
			return
		}
		count = n
	}
	if count > maxSampleCount {
		count = maxSampleCount
	}

	recipes, err := h.source.RandomSample(r.Context(), count)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeMeals(w, recipes)
}

// ByCategory はカテゴリに属するレシピを返す。
// GET /api/lookup/category/{name}
func (h *LookupHandler) ByCategory(w http.ResponseWriter, r *http.Request) {
	category := chi.URLParam(r, "name")

	recipes, err := h.source.ByCategory(r.Context(), category)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeMeals(w, recipes)
}

// Search は名前・カテゴリ・地域の部分一致でレシピを検索する。
// GET /api/lookup/search?q=検索語
func (h *LookupHandler) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")

	recipes, err := h.source.Search(r.Context(), query)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeMeals(w, recipes)
}

// ByID は指定IDのレシピ詳細を返す。
// 該当なしの場合はmeals:nullを返す（TheMealDB互換）。
// GET /api/lookup/recipes/{recipeID}
func (h *LookupHandler) ByID(w http.ResponseWriter, r *http.Request) {
	recipeID := chi.URLParam(r, "recipeID")

	recipe, err := h.source.ByID(r.Context(), recipeID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if recipe == nil {
		writeMeals(w, nil)
		return
	}

	writeMeals(w, []model.Recipe{*recipe})
}

// categoryEntry はカテゴリ一覧のTheMealDB互換表現。
type categoryEntry struct {
	StrCategory string `json:"strCategory"`
}

// Categories は利用可能なカテゴリ名の一覧を返す。
// GET /api/lookup/categories
func (h *LookupHandler) Categories(w http.ResponseWriter, r *http.Request) {
	names, err := h.source.Categories(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	entries := make([]categoryEntry, 0, len(names))
	for _, name := range names {
		entries = append(entries, categoryEntry{StrCategory: name})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(struct {
		Meals []categoryEntry `json:"meals"`
	}{Meals: entries})
}
