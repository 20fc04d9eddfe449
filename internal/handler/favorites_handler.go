package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/tastify/internal/middleware"
	"github.com/hitoshi/tastify/internal/model"
)

// FavoritesHandler はお気に入りレシピのHTTPハンドラー。
// セッションごとのお気に入りストアに処理を委譲する。
type FavoritesHandler struct {
	registry *StoreRegistry
}

// NewFavoritesHandler はFavoritesHandlerを生成する。
func NewFavoritesHandler(registry *StoreRegistry) *FavoritesHandler {
	return &FavoritesHandler{registry: registry}
}

// stores はリクエストのセッションに対応するStoreSetを取得する。
func (h *FavoritesHandler) stores(w http.ResponseWriter, r *http.Request) *StoreSet {
	sessionID, err := middleware.SessionIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return nil
	}

	set, err := h.registry.Get(r.Context(), sessionID)
	if err != nil {
		handleServiceError(w, err)
		return nil
	}
	return set
}

// favoritesResponse はお気に入り一覧のAPIレスポンス。
type favoritesResponse struct {
	Favorites []model.FavoriteRecipe `json:"favorites"`
	State     string                 `json:"state"`
	Loading   bool                   `json:"loading"`
}

// List はお気に入りレシピの現在のスナップショットを返す。
// GET /api/favorites
func (h *FavoritesHandler) List(w http.ResponseWriter, r *http.Request) {
	set := h.stores(w, r)
	if set == nil {
		return
	}

	favs := set.Favorites.Favorites()
	if favs == nil {
		favs = []model.FavoriteRecipe{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(favoritesResponse{
		Favorites: favs,
		State:     set.Favorites.State().String(),
		Loading:   set.Favorites.Loading(),
	})
}

// Stream はお気に入りスナップショットをSSEで配信する。
// GET /api/favorites/stream
func (h *FavoritesHandler) Stream(w http.ResponseWriter, r *http.Request) {
	set := h.stores(w, r)
	if set == nil {
		return
	}

	ch, cancel := set.Favorites.Subscribe()
	serveSnapshotStream(w, r, ch, cancel)
}

// Add はレシピをお気に入りに追加する。
// POST /api/favorites
func (h *FavoritesHandler) Add(w http.ResponseWriter, r *http.Request) {
	set := h.stores(w, r)
	if set == nil {
		return
	}

	var recipe model.Recipe
	if err := json.NewDecoder(r.Body).Decode(&recipe); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	if recipe.ID == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "レシピIDは必須です。",
			Category: model.CategoryValidation,
			Action:   "リクエスト内容を確認してください。",
		})
		return
	}

	if err := set.Favorites.AddToFavorites(r.Context(), recipe); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Remove は指定IDのお気に入りを削除する。
// DELETE /api/favorites/{recipeID}
func (h *FavoritesHandler) Remove(w http.ResponseWriter, r *http.Request) {
	set := h.stores(w, r)
	if set == nil {
		return
	}

	recipeID := chi.URLParam(r, "recipeID")

	if err := set.Favorites.RemoveFromFavorites(r.Context(), recipeID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Toggle はレシピのお気に入り状態を反転する。
// POST /api/favorites/toggle
func (h *FavoritesHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	set := h.stores(w, r)
	if set == nil {
		return
	}

	var recipe model.Recipe
	if err := json.NewDecoder(r.Body).Decode(&recipe); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	if err := set.Favorites.ToggleFavorite(r.Context(), recipe); err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{
		"isFavorite": set.Favorites.IsFavorite(recipe.ID),
	})
}

// Check は指定IDがお気に入りに含まれるかを返す。
// GET /api/favorites/{recipeID}
func (h *FavoritesHandler) Check(w http.ResponseWriter, r *http.Request) {
	set := h.stores(w, r)
	if set == nil {
		return
	}

	recipeID := chi.URLParam(r, "recipeID")

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{
		"isFavorite": set.Favorites.IsFavorite(recipeID),
	})
}
