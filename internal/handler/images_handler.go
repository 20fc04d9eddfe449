package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/tastify/internal/images"
	"github.com/hitoshi/tastify/internal/model"
)

// ImagesHandler はレシピ画像配信のHTTPハンドラー。
// 画像アドレスはレシピドキュメントに埋め込まれるため認証不要で配信する。
type ImagesHandler struct {
	service *images.Service
}

// NewImagesHandler はImagesHandlerを生成する。
func NewImagesHandler(service *images.Service) *ImagesHandler {
	return &ImagesHandler{service: service}
}

// Serve は保存済みの画像バイナリを返す。
// キーにはスラッシュが含まれるためワイルドカードパラメータで受け取る。
// GET /images/{userID}/{fileName}
func (h *ImagesHandler) Serve(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "*")
	if key == "" {
		http.NotFound(w, r)
		return
	}

	img, err := h.service.Get(r.Context(), key)
	if err != nil {
		writeAPIErrorResponse(w, http.StatusInternalServerError, &model.APIError{
			Code:     "IMAGE_FETCH_FAILURE",
			Message:  "画像の取得に失敗しました。",
			Category: model.CategoryStorage,
			Action:   "しばらく待ってから再度お試しください。",
		})
		return
	}
	if img == nil {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", img.Mime)
	w.Header().Set("Content-Length", strconv.Itoa(len(img.Data)))
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.Write(img.Data)
}
