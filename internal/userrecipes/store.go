// Package userrecipes はユーザー投稿レシピの共有ストアを提供する。
// 現在のユーザーが投稿したレシピ一覧をバックエンドとライブ同期し、
// 作成・更新・削除・照会と画像ライフサイクルの操作を公開する。
package userrecipes

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/hitoshi/tastify/internal/metrics"
	"github.com/hitoshi/tastify/internal/model"
	"github.com/hitoshi/tastify/internal/repository"
)

// IdentitySource はアイデンティティの供給元。session.Storeの部分集合。
type IdentitySource interface {
	CurrentUser() *model.User
	SubscribeIdentity() (<-chan *model.User, func())
}

// ImageUploader はレシピ画像の保管インターフェース。
type ImageUploader interface {
	// Upload はsrcURIの画像を取得してkeyで保管し、公開アドレスを返す。
	Upload(ctx context.Context, key, srcURI string) (string, error)
	// Remove は公開アドレスが指す画像を削除する。
	Remove(ctx context.Context, address string) error
}

// Sanitizer は永続化前のテキスト無害化インターフェース。
type Sanitizer interface {
	Sanitize(s string) string
}

// Store はユーザーレシピストア。
// スナップショットはバックエンドのキャッシュであり、ローカルの楽観的更新は行わない。
type Store struct {
	identity  IdentitySource
	repo      repository.RecipeRepository
	uploader  ImageUploader
	sanitizer Sanitizer
	notifier  repository.Notifier
	metrics   metrics.MetricsCollector
	logger    *slog.Logger

	mu      sync.RWMutex
	userID  string
	recipes []model.UserRecipe
	// inflight は進行中の変更操作の数。操作中はLoadingがtrueになる。
	inflight int
	// epoch はアイデンティティの世代番号。古い世代の遅延反映を防ぐ。
	epoch       int
	watchCancel context.CancelFunc

	subs      map[int]chan []model.UserRecipe
	nextSubID int

	runCancel context.CancelFunc
}

// NewStore はStoreを生成し、アイデンティティの購読を開始する。
func NewStore(identity IdentitySource, repo repository.RecipeRepository, uploader ImageUploader, sanitizer Sanitizer, notifier repository.Notifier, collector metrics.MetricsCollector, logger *slog.Logger) *Store {
	s := &Store{
		identity:  identity,
		repo:      repo,
		uploader:  uploader,
		sanitizer: sanitizer,
		notifier:  notifier,
		metrics:   collector,
		logger:    logger,
		subs:      make(map[int]chan []model.UserRecipe),
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.runCancel = cancel

	events, cancelIdent := identity.SubscribeIdentity()
	go s.run(ctx, events, cancelIdent)

	return s
}

func (s *Store) run(ctx context.Context, events <-chan *model.User, cancelIdent func()) {
	defer cancelIdent()

	for {
		select {
		case <-ctx.Done():
			s.setUser(nil)
			return
		case user := <-events:
			s.setUser(user)
		}
	}
}

// setUser は購読対象のユーザーを置き換える。
// ログアウト（userがnil）ではスナップショットを空にして購読を破棄する。
func (s *Store) setUser(user *model.User) {
	s.mu.Lock()

	if s.watchCancel != nil {
		s.watchCancel()
		s.watchCancel = nil
	}

	s.epoch++
	epoch := s.epoch
	s.recipes = nil

	if user == nil {
		s.userID = ""
		s.publishLocked()
		s.mu.Unlock()
		return
	}

	s.userID = user.ID
	s.publishLocked()

	ctx, cancel := context.WithCancel(context.Background())
	s.watchCancel = cancel
	go s.watch(ctx, user.ID, epoch)

	s.mu.Unlock()
}

// watch はユーザーのレシピ一覧クエリのライブ購読ループ。
func (s *Store) watch(ctx context.Context, userID string, epoch int) {
	events, cancel, err := s.notifier.Watch(ctx, repository.TopicUserRecipes, userID)
	if err != nil {
		s.logger.Error("レシピ購読の開始に失敗しました",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return
	}
	defer cancel()

	s.reload(ctx, userID, epoch)

	for {
		select {
		case <-ctx.Done():
			return
		case <-events:
			s.reload(ctx, userID, epoch)
		}
	}
}

// reload はレシピ一覧を再取得し、作成日時の降順に並べてスナップショットを全置換する。
// 並び替えはバックエンドに依存せずストア側で行う。
func (s *Store) reload(ctx context.Context, userID string, epoch int) {
	recipes, err := s.repo.ListByUserID(ctx, userID)
	if err != nil {
		s.logger.Error("レシピスナップショットの取得に失敗しました",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return
	}

	sort.SliceStable(recipes, func(i, j int) bool {
		return recipes[i].CreatedAt.After(recipes[j].CreatedAt)
	})

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.epoch != epoch {
		return
	}

	s.recipes = recipes
	s.publishLocked()
	s.metrics.RecordSnapshotPush("user_recipes")
}

func (s *Store) publishLocked() {
	for _, ch := range s.subs {
		snapshot := make([]model.UserRecipe, len(s.recipes))
		copy(snapshot, s.recipes)
		select {
		case <-ch:
		default:
		}
		ch <- snapshot
	}
}

// Recipes は現在のスナップショットのコピーを返す。作成日時の降順。
func (s *Store) Recipes() []model.UserRecipe {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snapshot := make([]model.UserRecipe, len(s.recipes))
	copy(snapshot, s.recipes)
	return snapshot
}

// GetRecipeByID は現在のスナップショットから指定IDのレシピを返す。
// バックエンドへの問い合わせは行わない。見つからない場合はnil。
func (s *Store) GetRecipeByID(id string) *model.UserRecipe {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.recipes {
		if s.recipes[i].ID == id {
			r := s.recipes[i]
			return &r
		}
	}
	return nil
}

// Loading は変更操作が進行中かどうかを返す。
func (s *Store) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.inflight > 0
}

// CreateRecipe は2段階の書き込みでレシピを作成し、割り当てられたIDを返す。
// 第1段階で画像参照なしのドキュメントを作成し、第2段階で画像を
// {userId}/{recipeId}_{timestamp}.jpg のキーでアップロードして
// ドキュメントのimageUrlをパッチする。
// 第2段階の失敗ではドキュメントは残り（画像なしレシピ）、保管エラーを返す。
// ロールバックは行わない。
func (s *Store) CreateRecipe(ctx context.Context, draft model.RecipeDraft) (string, error) {
	user := s.identity.CurrentUser()
	if user == nil {
		return "", model.NewNotAuthenticatedError()
	}

	s.beginMutation()
	defer s.endMutation()

	draft = s.sanitizeDraft(draft)
	now := time.Now()
	recipe := &model.UserRecipe{
		Name:         draft.Name,
		Description:  draft.Description,
		Category:     draft.Category,
		CookingTime:  draft.CookingTime,
		Servings:     draft.Servings,
		Ingredients:  draft.Ingredients,
		Instructions: draft.Instructions,
		ImageURL:     "",
		UserID:       user.ID,
		UserName:     user.Name,
		UserEmail:    user.Email,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	id, err := s.repo.Create(ctx, recipe)
	if err != nil {
		s.logger.Error("レシピの作成に失敗しました",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
		s.metrics.RecordRecipeMutation("create", false)
		return "", model.NewPersistenceError("レシピの作成に失敗しました")
	}
	s.metrics.RecordRecipeMutation("create", true)

	if draft.ImageURI == "" {
		return id, nil
	}

	key := fmt.Sprintf("%s/%s_%d.jpg", user.ID, id, now.UnixNano())
	address, err := s.uploader.Upload(ctx, key, draft.ImageURI)
	if err != nil {
		// ドキュメントは画像なしのまま残る。意図した部分失敗状態。
		s.logger.Error("レシピ画像のアップロードに失敗しました",
			slog.String("user_id", user.ID),
			slog.String("recipe_id", id),
			slog.String("error", err.Error()),
		)
		s.metrics.RecordImageUpload(false)
		return id, model.NewStorageUploadError(err.Error())
	}
	s.metrics.RecordImageUpload(true)

	if err := s.repo.UpdateImageURL(ctx, id, address); err != nil {
		s.logger.Error("レシピ画像URLの反映に失敗しました",
			slog.String("recipe_id", id),
			slog.String("error", err.Error()),
		)
		s.metrics.RecordRecipeMutation("update", false)
		return id, model.NewPersistenceError("レシピ画像URLの反映に失敗しました")
	}

	return id, nil
}

// UpdateRecipe は可変フィールドをパッチし、updatedAtを更新する。
// 画像の再アップロードはImageURIがCurrentImageURLと異なる場合のみ行う
// （新しく選択されたローカル画像のアドレスは既存の保管アドレスと一致しないため）。
// 一時フィールド（ImageURI、CurrentImageURL）は永続化しない。
// 更新は現在のユーザーが所有するレシピに限定される。
func (s *Store) UpdateRecipe(ctx context.Context, id string, draft model.RecipeDraft) error {
	user := s.identity.CurrentUser()
	if user == nil {
		return model.NewNotAuthenticatedError()
	}

	s.beginMutation()
	defer s.endMutation()

	draft = s.sanitizeDraft(draft)

	imageURL := draft.CurrentImageURL
	if draft.ImageURI != "" && draft.ImageURI != draft.CurrentImageURL {
		key := fmt.Sprintf("%s/%s_%d.jpg", user.ID, id, time.Now().UnixNano())
		address, err := s.uploader.Upload(ctx, key, draft.ImageURI)
		if err != nil {
			s.logger.Error("レシピ画像のアップロードに失敗しました",
				slog.String("recipe_id", id),
				slog.String("error", err.Error()),
			)
			s.metrics.RecordImageUpload(false)
			return model.NewStorageUploadError(err.Error())
		}
		s.metrics.RecordImageUpload(true)
		imageURL = address
	}

	recipe := &model.UserRecipe{
		ID:           id,
		UserID:       user.ID,
		Name:         draft.Name,
		Description:  draft.Description,
		Category:     draft.Category,
		CookingTime:  draft.CookingTime,
		Servings:     draft.Servings,
		Ingredients:  draft.Ingredients,
		Instructions: draft.Instructions,
		ImageURL:     imageURL,
		UpdatedAt:    time.Now(),
	}

	if err := s.repo.Update(ctx, recipe); err != nil {
		s.logger.Error("レシピの更新に失敗しました",
			slog.String("recipe_id", id),
			slog.String("error", err.Error()),
		)
		s.metrics.RecordRecipeMutation("update", false)
		return model.NewPersistenceError("レシピの更新に失敗しました")
	}

	s.metrics.RecordRecipeMutation("update", true)
	return nil
}

// DeleteRecipe は画像をベストエフォートで削除した後、ドキュメントを削除する。
// 画像削除の失敗はログに残して握りつぶす（孤児画像は許容する）。
// ドキュメント削除の失敗は永続化エラーとして返す。
// 削除は現在のユーザーが所有するレシピに限定される。
func (s *Store) DeleteRecipe(ctx context.Context, id, imageURL string) error {
	user := s.identity.CurrentUser()
	if user == nil {
		return model.NewNotAuthenticatedError()
	}

	s.beginMutation()
	defer s.endMutation()

	if imageURL != "" {
		if err := s.uploader.Remove(ctx, imageURL); err != nil {
			s.logger.Warn("レシピ画像の削除に失敗しました",
				slog.String("recipe_id", id),
				slog.String("error", err.Error()),
			)
			s.metrics.RecordImageDelete(false)
		} else {
			s.metrics.RecordImageDelete(true)
		}
	}

	if err := s.repo.Delete(ctx, id, user.ID); err != nil {
		s.logger.Error("レシピの削除に失敗しました",
			slog.String("recipe_id", id),
			slog.String("error", err.Error()),
		)
		s.metrics.RecordRecipeMutation("delete", false)
		return model.NewPersistenceError("レシピの削除に失敗しました")
	}

	s.metrics.RecordRecipeMutation("delete", true)
	return nil
}

// Subscribe はスナップショット変化の購読チャネルと解除関数を返す。
// チャネルはバッファ1の最新値保持で、購読直後に現在値が1回配信される。
func (s *Store) Subscribe() (<-chan []model.UserRecipe, func()) {
	s.mu.Lock()
	s.nextSubID++
	id := s.nextSubID
	ch := make(chan []model.UserRecipe, 1)
	s.subs[id] = ch
	snapshot := make([]model.UserRecipe, len(s.recipes))
	copy(snapshot, s.recipes)
	ch <- snapshot
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
	return ch, cancel
}

// Close はアイデンティティ購読とスナップショット購読を破棄する。
func (s *Store) Close() {
	s.runCancel()
}

func (s *Store) beginMutation() {
	s.mu.Lock()
	s.inflight++
	s.mu.Unlock()
}

func (s *Store) endMutation() {
	s.mu.Lock()
	s.inflight--
	s.mu.Unlock()
}

// sanitizeDraft は永続化対象のテキストフィールドを無害化する。
func (s *Store) sanitizeDraft(draft model.RecipeDraft) model.RecipeDraft {
	draft.Name = s.sanitizer.Sanitize(draft.Name)
	draft.Description = s.sanitizer.Sanitize(draft.Description)
	draft.Category = s.sanitizer.Sanitize(draft.Category)
	draft.CookingTime = s.sanitizer.Sanitize(draft.CookingTime)
	draft.Servings = s.sanitizer.Sanitize(draft.Servings)
	draft.Instructions = s.sanitizer.Sanitize(draft.Instructions)
	sanitized := make([]string, 0, len(draft.Ingredients))
	for _, ing := range draft.Ingredients {
		sanitized = append(sanitized, s.sanitizer.Sanitize(ing))
	}
	draft.Ingredients = sanitized
	return draft
}
