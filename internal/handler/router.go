package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/tastify/internal/images"
	"github.com/hitoshi/tastify/internal/lookup"
	"github.com/hitoshi/tastify/internal/metrics"
	"github.com/hitoshi/tastify/internal/middleware"
)

// HealthChecker はDB疎通確認のインターフェース。*sql.DBが満たす。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	HealthChecker     HealthChecker
	SessionFinder     middleware.SessionFinder
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	CSRFConfig        middleware.CSRFConfig
	Logger            *slog.Logger

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// セッションごとのストア管理
	Registry *StoreRegistry

	// レシピ検索（公開API）
	LookupSource lookup.Source

	// 画像配信
	ImageService *images.Service

	// メトリクス公開
	MetricsRegistry *prometheus.Registry
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → Logging → CORS
//	（認証ルートのみ）→ Session → CSRF → RateLimit(General)
//
// 認証ルート（/auth/*）、レシピ検索（/api/lookup/*）、画像配信（/images/*）は
// セッション不要の公開ルートとして配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	// 全ルートに効くミドルウェア
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.AuthService, deps.Registry, deps.AuthConfig)
	favHandler := NewFavoritesHandler(deps.Registry)
	recHandler := NewRecipesHandler(deps.Registry)
	lookupHandler := NewLookupHandler(deps.LookupSource)
	imagesHandler := NewImagesHandler(deps.ImageService)

	// --- 認証不要のルート ---

	// ヘルスチェック
	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		if deps.HealthChecker != nil {
			if err := deps.HealthChecker.PingContext(req.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				json.NewEncoder(w).Encode(map[string]string{"status": "unhealthy"})
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	// メトリクス公開
	if deps.MetricsRegistry != nil {
		r.Handle("/metrics", metrics.Handler(deps.MetricsRegistry))
	}

	// CSRFトークン取得
	r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))

	// 認証ルート（メールアドレス＋パスワード）
	r.Route("/auth", func(r chi.Router) {
		r.Post("/signup", authHandler.Signup)
		r.Post("/login", authHandler.Login)
		r.Post("/logout", authHandler.Logout)
		r.Get("/me", authHandler.Me)
	})

	// レシピ検索（閲覧のみのため認証不要）
	r.Route("/api/lookup", func(r chi.Router) {
		r.Get("/random", lookupHandler.Random)
		r.Get("/category/{name}", lookupHandler.ByCategory)
		r.Get("/search", lookupHandler.Search)
		r.Get("/categories", lookupHandler.Categories)
		r.Get("/recipes/{recipeID}", lookupHandler.ByID)
	})

	// 画像配信
	r.Get("/images/*", imagesHandler.Serve)

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Session → CSRF → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionFinder))
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// お気に入り管理
		r.Route("/api/favorites", func(r chi.Router) {
			r.Get("/", favHandler.List)
			r.Post("/", favHandler.Add)
			r.Get("/stream", favHandler.Stream)
			r.Post("/toggle", favHandler.Toggle)

			r.Route("/{recipeID}", func(r chi.Router) {
				r.Get("/", favHandler.Check)
				r.Delete("/", favHandler.Remove)
			})
		})

		// 投稿レシピ管理
		r.Route("/api/recipes", func(r chi.Router) {
			r.Get("/", recHandler.List)
			r.Get("/stream", recHandler.Stream)

			// POST /api/recipes - レシピ投稿（投稿専用レート制限を追加）
			r.With(deps.RateLimiter.RecipeRegistrationMiddleware()).Post("/", recHandler.Create)

			r.Route("/{recipeID}", func(r chi.Router) {
				r.Get("/", recHandler.Get)
				r.Put("/", recHandler.Update)
				r.Delete("/", recHandler.Delete)
			})
		})
	})

	return r
}
