package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/tastify/internal/middleware"
	"github.com/hitoshi/tastify/internal/model"
)

// RecipesHandler はユーザー投稿レシピのHTTPハンドラー。
// セッションごとの投稿レシピストアに処理を委譲する。
type RecipesHandler struct {
	registry *StoreRegistry
}

// NewRecipesHandler はRecipesHandlerを生成する。
func NewRecipesHandler(registry *StoreRegistry) *RecipesHandler {
	return &RecipesHandler{registry: registry}
}

func (h *RecipesHandler) stores(w http.ResponseWriter, r *http.Request) *StoreSet {
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

// recipesResponse は投稿レシピ一覧のAPIレスポンス。
type recipesResponse struct {
	Recipes []model.UserRecipe `json:"recipes"`
	Loading bool               `json:"loading"`
}

// List は投稿レシピの現在のスナップショット（作成日時の降順）を返す。
// GET /api/recipes
func (h *RecipesHandler) List(w http.ResponseWriter, r *http.Request) {
	set := h.stores(w, r)
	if set == nil {
		return
	}

	recipes := set.Recipes.Recipes()
	if recipes == nil {
		recipes = []model.UserRecipe{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(recipesResponse{
		Recipes: recipes,
		Loading: set.Recipes.Loading(),
	})
}

// Get は指定IDの投稿レシピを返す。
// GET /api/recipes/{recipeID}
func (h *RecipesHandler) Get(w http.ResponseWriter, r *http.Request) {
	set := h.stores(w, r)
	if set == nil {
		return
	}

	recipeID := chi.URLParam(r, "recipeID")

	recipe := set.Recipes.GetRecipeByID(recipeID)
	if recipe == nil {
		handleServiceError(w, model.NewRecipeNotFoundError(recipeID))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(recipe)
}

// Stream は投稿レシピスナップショットをSSEで配信する。
// GET /api/recipes/stream
func (h *RecipesHandler) Stream(w http.ResponseWriter, r *http.Request) {
	set := h.stores(w, r)
	if set == nil {
		return
	}

	ch, cancel := set.Recipes.Subscribe()
	serveSnapshotStream(w, r, ch, cancel)
}

// Create は新しいレシピを投稿する。
// 画像アップロードが失敗した場合でもドキュメントは作成済みのため、
// レスポンスにはレシピIDとエラーの両方を含める。
// POST /api/recipes
func (h *RecipesHandler) Create(w http.ResponseWriter, r *http.Request) {
	set := h.stores(w, r)
	if set == nil {
		return
	}

	var draft model.RecipeDraft
	if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	if err := validateDraft(draft); err != nil {
		handleServiceError(w, err)
		return
	}

	id, err := set.Recipes.CreateRecipe(r.Context(), draft)
	if err != nil {
		if id != "" && model.IsStorageError(err) {
			// ドキュメントは作成済み。画像なしで公開された状態を伝える。
			writePartialCreate(w, id, err)
			return
		}
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]string{"id": id})
}

// Update は既存レシピを更新する。
// PUT /api/recipes/{recipeID}
func (h *RecipesHandler) Update(w http.ResponseWriter, r *http.Request) {
	set := h.stores(w, r)
	if set == nil {
		return
	}

	recipeID := chi.URLParam(r, "recipeID")

	var draft model.RecipeDraft
	if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	if err := validateDraft(draft); err != nil {
		handleServiceError(w, err)
		return
	}

	if err := set.Recipes.UpdateRecipe(r.Context(), recipeID, draft); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Delete は投稿レシピを削除する。
// 画像アドレスはクエリパラメータimageUrlで受け取る。
// DELETE /api/recipes/{recipeID}?imageUrl=...
func (h *RecipesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	set := h.stores(w, r)
	if set == nil {
		return
	}

	recipeID := chi.URLParam(r, "recipeID")
	imageURL := r.URL.Query().Get("imageUrl")

	if err := set.Recipes.DeleteRecipe(r.Context(), recipeID, imageURL); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// validateDraft は投稿フォーム入力の必須項目を検証する。
func validateDraft(draft model.RecipeDraft) error {
	if draft.Name == "" {
		return model.NewInvalidRecipeError("レシピ名は必須です")
	}
	if !draft.HasIngredient() {
		return model.NewInvalidRecipeError("材料が指定されていません")
	}
	return nil
}

// writePartialCreate は画像アップロード失敗を伴う作成結果を書き出す。
func writePartialCreate(w http.ResponseWriter, id string, err error) {
	apiErr, ok := err.(*model.APIError)
	if !ok {
		apiErr = model.NewStorageUploadError(err.Error())
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(struct {
		ID    string    `json:"id"`
		Error errorBody `json:"error"`
	}{
		ID: id,
		Error: errorBody{
			Code:     apiErr.Code,
			Message:  apiErr.Message,
			Category: apiErr.Category,
			Action:   apiErr.Action,
		},
	})
}
