package handler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/tastify/internal/favorites"
	"github.com/hitoshi/tastify/internal/metrics"
	"github.com/hitoshi/tastify/internal/model"
	"github.com/hitoshi/tastify/internal/repository"
	"github.com/hitoshi/tastify/internal/session"
	"github.com/hitoshi/tastify/internal/userrecipes"
)

// StoreSet は1つのクライアントセッションに対応するストアの組。
// セッションストアがアイデンティティを保持し、
// お気に入りストアと投稿レシピストアがそれに連動する。
type StoreSet struct {
	Session   *session.Store
	Favorites *favorites.Store
	Recipes   *userrecipes.Store
}

// Close は3つのストアの購読をすべて破棄する。
func (s *StoreSet) Close() {
	s.Favorites.Close()
	s.Recipes.Close()
	s.Session.Close()
}

// storeEntry はレジストリ内のエントリ。最終アクセス時刻でTTL管理する。
type storeEntry struct {
	set        *StoreSet
	lastAccess time.Time
}

// StoreRegistryDeps はStoreSetの構築に必要な依存関係。
type StoreRegistryDeps struct {
	Auth        session.AuthService
	ProfileRepo repository.ProfileRepository
	RecipeRepo  repository.RecipeRepository
	Uploader    userrecipes.ImageUploader
	Sanitizer   userrecipes.Sanitizer
	Notifier    repository.Notifier
	Metrics     metrics.MetricsCollector
	Logger      *slog.Logger
}

// StoreRegistry はセッションIDごとのStoreSetを管理する。
// 初回アクセス時に構築し、アイドル状態が続いたエントリを
// バックグラウンドで破棄する。
type StoreRegistry struct {
	deps    StoreRegistryDeps
	idleTTL time.Duration

	mu      sync.Mutex
	entries map[string]*storeEntry

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewStoreRegistry はStoreRegistryを生成し、クリーンアップループを開始する。
func NewStoreRegistry(deps StoreRegistryDeps, idleTTL time.Duration) *StoreRegistry {
	r := &StoreRegistry{
		deps:    deps,
		idleTTL: idleTTL,
		entries: make(map[string]*storeEntry),
		stopCh:  make(chan struct{}),
	}

	go r.cleanupLoop()

	return r
}

// Get はセッションに対応するStoreSetを取得または構築する。
// セッションが無効な場合は認証エラーを返す。
func (r *StoreRegistry) Get(ctx context.Context, sessionID string) (*StoreSet, error) {
	r.mu.Lock()
	if entry, ok := r.entries[sessionID]; ok {
		entry.lastAccess = time.Now()
		r.mu.Unlock()
		return entry.set, nil
	}
	r.mu.Unlock()

	set, err := r.build(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// 同時リクエストで先に構築されたエントリがあればそちらを使う
	if entry, ok := r.entries[sessionID]; ok {
		set.Close()
		entry.lastAccess = time.Now()
		return entry.set, nil
	}

	r.entries[sessionID] = &storeEntry{set: set, lastAccess: time.Now()}
	return set, nil
}

// Drop はセッションのStoreSetを破棄する。ログアウト時に呼び出す。
func (r *StoreRegistry) Drop(sessionID string) {
	r.mu.Lock()
	entry, ok := r.entries[sessionID]
	if ok {
		delete(r.entries, sessionID)
	}
	r.mu.Unlock()

	if ok {
		entry.set.Close()
	}
}

// Count は現在管理されているStoreSetのエントリ数を返す。
// テストおよびメトリクス用。
func (r *StoreRegistry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Stop はクリーンアップループを停止し、全エントリを破棄する。
// 複数回呼び出しても安全。
func (r *StoreRegistry) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })

	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]*storeEntry)
	r.mu.Unlock()

	for _, entry := range entries {
		entry.set.Close()
	}
}

// build はセッションを復元してStoreSetを構築する。
func (r *StoreRegistry) build(ctx context.Context, sessionID string) (*StoreSet, error) {
	sessStore := session.NewStore(r.deps.Auth, r.deps.ProfileRepo, r.deps.Notifier, r.deps.Logger)
	sessStore.Restore(ctx, sessionID)

	if sessStore.CurrentUser() == nil {
		sessStore.Close()
		return nil, model.NewNotAuthenticatedError()
	}

	favStore := favorites.NewStore(sessStore, r.deps.ProfileRepo, r.deps.Notifier, r.deps.Metrics, r.deps.Logger)
	recStore := userrecipes.NewStore(sessStore, r.deps.RecipeRepo, r.deps.Uploader, r.deps.Sanitizer, r.deps.Notifier, r.deps.Metrics, r.deps.Logger)

	return &StoreSet{
		Session:   sessStore,
		Favorites: favStore,
		Recipes:   recStore,
	}, nil
}

// cleanupLoop はアイドル状態のエントリを定期的に破棄する。
func (r *StoreRegistry) cleanupLoop() {
	interval := r.idleTTL / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.cleanup()
		case <-r.stopCh:
			return
		}
	}
}

// cleanup は最終アクセスからidleTTLを超えたエントリを破棄する。
func (r *StoreRegistry) cleanup() {
	now := time.Now()

	r.mu.Lock()
	var expired []*storeEntry
	for sessionID, entry := range r.entries {
		if now.Sub(entry.lastAccess) > r.idleTTL {
			expired = append(expired, entry)
			delete(r.entries, sessionID)
		}
	}
	r.mu.Unlock()

	for _, entry := range expired {
		entry.set.Close()
	}
}
