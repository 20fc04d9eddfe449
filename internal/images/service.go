// Package images はレシピ画像の取得と保管を提供する。
// ユーザーが指定した取得元アドレスから画像を取り込み、
// オブジェクトストレージへキー付きで保存して公開アドレスを返す。
package images

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hitoshi/tastify/internal/model"
	"github.com/hitoshi/tastify/internal/repository"
	"github.com/hitoshi/tastify/internal/security"
)

// Service はレシピ画像の取り込みと削除を行う。
// 取得元はユーザー入力のため、SSRF防止付きクライアントでのみアクセスする。
type Service struct {
	repo    repository.ImageRepository
	guard   security.SSRFGuardService
	client  *http.Client
	baseURL string
	maxSize int64
	logger  *slog.Logger
}

// NewService はServiceを生成する。
// baseURLは公開アドレスの起点（例: https://api.example.com）。
func NewService(repo repository.ImageRepository, guard security.SSRFGuardService, baseURL string, fetchTimeout time.Duration, maxSize int64, logger *slog.Logger) *Service {
	return &Service{
		repo:    repo,
		guard:   guard,
		client:  guard.NewSafeClient(fetchTimeout, maxSize),
		baseURL: strings.TrimRight(baseURL, "/"),
		maxSize: maxSize,
		logger:  logger,
	}
}

// Upload はsrcURIの画像を取得してkeyで保管し、公開アドレスを返す。
// 画像以外のコンテンツとサイズ超過は拒否する。
func (s *Service) Upload(ctx context.Context, key, srcURI string) (string, error) {
	if err := s.guard.ValidateURL(srcURI); err != nil {
		return "", fmt.Errorf("unsafe image source: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srcURI, nil)
	if err != nil {
		return "", fmt.Errorf("build image fetch request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch image: unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, s.maxSize+1))
	if err != nil {
		return "", fmt.Errorf("read image body: %w", err)
	}
	if int64(len(data)) > s.maxSize {
		return "", fmt.Errorf("image exceeds size limit of %d bytes", s.maxSize)
	}

	mime := resp.Header.Get("Content-Type")
	if mime == "" || mime == "application/octet-stream" {
		mime = http.DetectContentType(data)
	}
	if !strings.HasPrefix(mime, "image/") {
		return "", fmt.Errorf("content type %s is not an image", mime)
	}

	img := &model.RecipeImage{
		Key:       key,
		UserID:    userIDFromKey(key),
		Data:      data,
		Mime:      mime,
		CreatedAt: time.Now(),
	}
	if err := s.repo.Save(ctx, img); err != nil {
		return "", fmt.Errorf("save image: %w", err)
	}

	address := s.baseURL + "/images/" + key
	s.logger.Info("レシピ画像を保管しました",
		slog.String("key", key),
		slog.String("mime", mime),
		slog.Int("bytes", len(data)),
	)
	return address, nil
}

// Remove は公開アドレスが指す画像を削除する。
// このサービスの管理外のアドレスはエラーを返す（呼び出し側がベストエフォートで握りつぶす）。
func (s *Service) Remove(ctx context.Context, address string) error {
	key, ok := strings.CutPrefix(address, s.baseURL+"/images/")
	if !ok || key == "" {
		return fmt.Errorf("address %s is outside managed storage", address)
	}
	if err := s.repo.DeleteByKey(ctx, key); err != nil {
		return fmt.Errorf("delete image: %w", err)
	}
	return nil
}

// Get は指定キーの画像を取得する。見つからない場合はnilを返す。
func (s *Service) Get(ctx context.Context, key string) (*model.RecipeImage, error) {
	return s.repo.FindByKey(ctx, key)
}

// userIDFromKey は画像キーの所有者部分を返す。
// キーは {userId}/{recipeId}_{timestamp}.jpg の形式。
func userIDFromKey(key string) string {
	userID, _, _ := strings.Cut(key, "/")
	return userID
}
