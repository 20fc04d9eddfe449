// Package favorites はお気に入りレシピの共有ストアを提供する。
// 現在のユーザーのお気に入り集合をバックエンドとライブ同期し、
// 追加・削除・トグル・照会の操作を公開する。
package favorites

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/tastify/internal/metrics"
	"github.com/hitoshi/tastify/internal/model"
	"github.com/hitoshi/tastify/internal/repository"
)

// State はアイデンティティごとの購読状態。
type State int

const (
	// StateUnsubscribed はユーザー不在で購読していない状態。
	StateUnsubscribed State = iota
	// StateSubscribing はアイデンティティ確立済みで初回スナップショット待ちの状態。
	StateSubscribing
	// StateSynced はスナップショット受信済みの状態。以降のプッシュで全置換される。
	StateSynced
)

// String はログ出力用の状態名を返す。
func (s State) String() string {
	switch s {
	case StateSubscribing:
		return "subscribing"
	case StateSynced:
		return "synced"
	default:
		return "unsubscribed"
	}
}

// IdentitySource はアイデンティティの供給元。session.Storeの部分集合。
type IdentitySource interface {
	CurrentUser() *model.User
	SubscribeIdentity() (<-chan *model.User, func())
}

// Store はお気に入りストア。
// スナップショットはバックエンドのキャッシュであり、ローカルの楽観的更新は行わない。
// 変更はバックエンドへの書き込みとして発行し、購読のエコーで反映される。
type Store struct {
	identity    IdentitySource
	profileRepo repository.ProfileRepository
	notifier    repository.Notifier
	metrics     metrics.MetricsCollector
	logger      *slog.Logger

	mu        sync.RWMutex
	state     State
	userID    string
	favorites []model.FavoriteRecipe
	// inflight は進行中の変更操作の数。操作中はLoadingがtrueになる。
	// 同一レシピへの同時変更は排他しない。完了は到着順に反映される。
	inflight int
	// epoch はアイデンティティの世代番号。古い世代の遅延反映を防ぐ。
	epoch       int
	watchCancel context.CancelFunc

	subs      map[int]chan []model.FavoriteRecipe
	nextSubID int

	runCancel context.CancelFunc
}

// NewStore はStoreを生成し、アイデンティティの購読を開始する。
func NewStore(identity IdentitySource, profileRepo repository.ProfileRepository, notifier repository.Notifier, collector metrics.MetricsCollector, logger *slog.Logger) *Store {
	s := &Store{
		identity:    identity,
		profileRepo: profileRepo,
		notifier:    notifier,
		metrics:     collector,
		logger:      logger,
		state:       StateUnsubscribed,
		subs:        make(map[int]chan []model.FavoriteRecipe),
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.runCancel = cancel

	events, cancelIdent := identity.SubscribeIdentity()
	go s.run(ctx, events, cancelIdent)

	return s
}

// run はアイデンティティ変化のたびに購読を張り替えるループ。
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
	s.favorites = nil

	if user == nil {
		s.userID = ""
		s.state = StateUnsubscribed
		s.publishLocked()
		s.mu.Unlock()
		return
	}

	s.userID = user.ID
	s.state = StateSubscribing
	s.publishLocked()

	ctx, cancel := context.WithCancel(context.Background())
	s.watchCancel = cancel
	go s.watch(ctx, user.ID, epoch)

	s.mu.Unlock()
}

// watch はプロフィールドキュメントのライブ購読ループ。
func (s *Store) watch(ctx context.Context, userID string, epoch int) {
	events, cancel, err := s.notifier.Watch(ctx, repository.TopicProfiles, userID)
	if err != nil {
		s.logger.Error("お気に入り購読の開始に失敗しました",
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

// reload はプロフィールを再取得し、世代が一致する場合のみスナップショットを全置換する。
func (s *Store) reload(ctx context.Context, userID string, epoch int) {
	profile, err := s.profileRepo.FindByUserID(ctx, userID)
	if err != nil {
		s.logger.Error("お気に入りスナップショットの取得に失敗しました",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.epoch != epoch {
		return
	}

	if profile == nil {
		s.favorites = nil
	} else {
		s.favorites = profile.Favorites
	}
	s.state = StateSynced
	s.publishLocked()
	s.metrics.RecordSnapshotPush("favorites")
}

// publishLocked は現在のスナップショットのコピーを全購読者へ配信する。
// 呼び出し側がmuを保持していること。チャネルはバッファ1の最新値保持。
func (s *Store) publishLocked() {
	for _, ch := range s.subs {
		snapshot := make([]model.FavoriteRecipe, len(s.favorites))
		copy(snapshot, s.favorites)
		select {
		case <-ch:
		default:
		}
		ch <- snapshot
	}
}

// Favorites は現在のスナップショットのコピーを返す。
func (s *Store) Favorites() []model.FavoriteRecipe {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snapshot := make([]model.FavoriteRecipe, len(s.favorites))
	copy(snapshot, s.favorites)
	return snapshot
}

// State は現在の購読状態を返す。
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Loading は変更操作が進行中か、初回スナップショット待ちかどうかを返す。
func (s *Store) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.inflight > 0 || s.state == StateSubscribing
}

// IsFavorite は指定IDのレシピが現在のスナップショットに含まれるかを返す。
// バックエンドへの問い合わせは行わない。
func (s *Store) IsFavorite(recipeID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, f := range s.favorites {
		if f.ID == recipeID {
			return true
		}
	}
	return false
}

// AddToFavorites はレシピの射影をお気に入り配列へ加法的に追加する。
// 未ログインの場合は認証エラーを返す。
// 書き込みは和集合で、別デバイスの同時追加とは重複として共存する。
func (s *Store) AddToFavorites(ctx context.Context, recipe model.Recipe) error {
	user := s.identity.CurrentUser()
	if user == nil {
		return model.NewNotAuthenticatedError()
	}

	fav := model.NewFavoriteRecipe(recipe, time.Now())

	s.beginMutation()
	defer s.endMutation()

	if err := s.profileRepo.AppendFavorite(ctx, user.ID, fav); err != nil {
		s.logger.Error("お気に入りの追加に失敗しました",
			slog.String("user_id", user.ID),
			slog.String("recipe_id", recipe.ID),
			slog.String("error", err.Error()),
		)
		s.metrics.RecordFavoriteMutation("add", false)
		return model.NewPersistenceError("お気に入りの追加に失敗しました")
	}

	s.metrics.RecordFavoriteMutation("add", true)
	return nil
}

// RemoveFromFavorites はローカルスナップショットで一致する要素を特定し、
// その完全一致レコードの削除をバックエンドへ発行する。
// ローカルに一致がない場合はバックエンド呼び出しなしで正常終了する。
func (s *Store) RemoveFromFavorites(ctx context.Context, recipeID string) error {
	user := s.identity.CurrentUser()
	if user == nil {
		return model.NewNotAuthenticatedError()
	}

	s.mu.RLock()
	var target *model.FavoriteRecipe
	for i := range s.favorites {
		if s.favorites[i].ID == recipeID {
			target = &s.favorites[i]
			break
		}
	}
	var fav model.FavoriteRecipe
	if target != nil {
		fav = *target
	}
	s.mu.RUnlock()

	if target == nil {
		return nil
	}

	s.beginMutation()
	defer s.endMutation()

	if err := s.profileRepo.RemoveFavorite(ctx, user.ID, fav); err != nil {
		s.logger.Error("お気に入りの削除に失敗しました",
			slog.String("user_id", user.ID),
			slog.String("recipe_id", recipeID),
			slog.String("error", err.Error()),
		)
		s.metrics.RecordFavoriteMutation("remove", false)
		return model.NewPersistenceError("お気に入りの削除に失敗しました")
	}

	s.metrics.RecordFavoriteMutation("remove", true)
	return nil
}

// ToggleFavorite は現在のスナップショット上の有無に応じて追加または削除する。
// 2つの操作にまたがる原子性は保証しない。
func (s *Store) ToggleFavorite(ctx context.Context, recipe model.Recipe) error {
	if s.IsFavorite(recipe.ID) {
		return s.RemoveFromFavorites(ctx, recipe.ID)
	}
	return s.AddToFavorites(ctx, recipe)
}

// Subscribe はスナップショット変化の購読チャネルと解除関数を返す。
// チャネルはバッファ1の最新値保持で、購読直後に現在値が1回配信される。
func (s *Store) Subscribe() (<-chan []model.FavoriteRecipe, func()) {
	s.mu.Lock()
	s.nextSubID++
	id := s.nextSubID
	ch := make(chan []model.FavoriteRecipe, 1)
	s.subs[id] = ch
	snapshot := make([]model.FavoriteRecipe, len(s.favorites))
	copy(snapshot, s.favorites)
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
