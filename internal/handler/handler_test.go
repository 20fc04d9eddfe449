package handler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/tastify/internal/favorites"
	"github.com/hitoshi/tastify/internal/metrics"
	"github.com/hitoshi/tastify/internal/model"
	"github.com/hitoshi/tastify/internal/repository"
)

// ---- テスト用フェイク ----

// fakeAuth はセッションIDからユーザーを引くだけの認証サービス。
type fakeAuth struct {
	mu       sync.Mutex
	sessions map[string]*model.User
	users    map[string]*model.User // email -> user
}

func newFakeAuth() *fakeAuth {
	return &fakeAuth{
		sessions: make(map[string]*model.User),
		users:    make(map[string]*model.User),
	}
}

// addSession はテスト用にセッションを登録する。
func (a *fakeAuth) addSession(sessionID string, user *model.User) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sessions[sessionID] = user
}

func (a *fakeAuth) Signup(ctx context.Context, email, password, displayName string) (*model.Session, *model.User, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.users[email]; ok {
		return nil, nil, model.NewEmailInUseError(email)
	}

	user := &model.User{ID: uuid.NewString(), Email: email, Name: displayName}
	a.users[email] = user

	sessionID := "sess-" + user.ID
	a.sessions[sessionID] = user

	return &model.Session{ID: sessionID, UserID: user.ID}, user, nil
}

func (a *fakeAuth) Login(ctx context.Context, email, password string) (*model.Session, *model.User, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	user, ok := a.users[email]
	if !ok {
		return nil, nil, model.NewInvalidCredentialsError()
	}

	sessionID := "sess-" + user.ID
	a.sessions[sessionID] = user

	return &model.Session{ID: sessionID, UserID: user.ID}, user, nil
}

func (a *fakeAuth) Logout(ctx context.Context, sessionID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.sessions, sessionID)
	return nil
}

func (a *fakeAuth) GetCurrentUser(ctx context.Context, sessionID string) (*model.User, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	user, ok := a.sessions[sessionID]
	if !ok {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}

// fakeProfileRepo はマップ上のプロフィール永続化。書き込みのたびに変更通知を発行する。
type fakeProfileRepo struct {
	mu       sync.Mutex
	profiles map[string]*model.Profile
	notifier *repository.LocalNotifier
}

func newFakeProfileRepo(notifier *repository.LocalNotifier) *fakeProfileRepo {
	return &fakeProfileRepo{
		profiles: make(map[string]*model.Profile),
		notifier: notifier,
	}
}

func (r *fakeProfileRepo) Create(ctx context.Context, profile *model.Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *profile
	r.profiles[profile.UserID] = &cp
	r.notifier.Publish(repository.TopicProfiles, profile.UserID)
	return nil
}

func (r *fakeProfileRepo) FindByUserID(ctx context.Context, userID string) (*model.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.profiles[userID]
	if !ok {
		return nil, nil
	}
	cp := *p
	cp.Favorites = append([]model.FavoriteRecipe(nil), p.Favorites...)
	return &cp, nil
}

func (r *fakeProfileRepo) AppendFavorite(ctx context.Context, userID string, fav model.FavoriteRecipe) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.profiles[userID]
	if !ok {
		p = &model.Profile{UserID: userID}
		r.profiles[userID] = p
	}

	for _, existing := range p.Favorites {
		if existing.Equal(fav) {
			return nil
		}
	}
	p.Favorites = append(p.Favorites, fav)
	r.notifier.Publish(repository.TopicProfiles, userID)
	return nil
}

func (r *fakeProfileRepo) RemoveFavorite(ctx context.Context, userID string, fav model.FavoriteRecipe) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.profiles[userID]
	if !ok {
		return nil
	}

	kept := p.Favorites[:0]
	for _, existing := range p.Favorites {
		if !existing.Equal(fav) {
			kept = append(kept, existing)
		}
	}
	p.Favorites = kept
	r.notifier.Publish(repository.TopicProfiles, userID)
	return nil
}

// fakeRecipeRepo はマップ上のレシピ永続化。書き込みのたびに変更通知を発行する。
type fakeRecipeRepo struct {
	mu       sync.Mutex
	recipes  map[string]model.UserRecipe
	notifier *repository.LocalNotifier
}

func newFakeRecipeRepo(notifier *repository.LocalNotifier) *fakeRecipeRepo {
	return &fakeRecipeRepo{
		recipes:  make(map[string]model.UserRecipe),
		notifier: notifier,
	}
}

func (r *fakeRecipeRepo) Create(ctx context.Context, recipe *model.UserRecipe) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := uuid.NewString()
	cp := *recipe
	cp.ID = id
	r.recipes[id] = cp
	r.notifier.Publish(repository.TopicUserRecipes, recipe.UserID)
	return id, nil
}

func (r *fakeRecipeRepo) FindByID(ctx context.Context, id string) (*model.UserRecipe, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	recipe, ok := r.recipes[id]
	if !ok {
		return nil, nil
	}
	return &recipe, nil
}

func (r *fakeRecipeRepo) Update(ctx context.Context, recipe *model.UserRecipe) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.recipes[recipe.ID]
	if !ok || existing.UserID != recipe.UserID {
		return fmt.Errorf("recipe not found: %s", recipe.ID)
	}

	existing.Name = recipe.Name
	existing.Description = recipe.Description
	existing.Category = recipe.Category
	existing.CookingTime = recipe.CookingTime
	existing.Servings = recipe.Servings
	existing.Ingredients = recipe.Ingredients
	existing.Instructions = recipe.Instructions
	existing.ImageURL = recipe.ImageURL
	existing.UpdatedAt = recipe.UpdatedAt
	r.recipes[recipe.ID] = existing

	r.notifier.Publish(repository.TopicUserRecipes, existing.UserID)
	return nil
}

func (r *fakeRecipeRepo) UpdateImageURL(ctx context.Context, id, imageURL string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	recipe, ok := r.recipes[id]
	if !ok {
		return fmt.Errorf("recipe not found: %s", id)
	}
	recipe.ImageURL = imageURL
	r.recipes[id] = recipe

	r.notifier.Publish(repository.TopicUserRecipes, recipe.UserID)
	return nil
}

func (r *fakeRecipeRepo) Delete(ctx context.Context, id, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	recipe, ok := r.recipes[id]
	if !ok || recipe.UserID != userID {
		return nil
	}
	delete(r.recipes, id)

	r.notifier.Publish(repository.TopicUserRecipes, recipe.UserID)
	return nil
}

func (r *fakeRecipeRepo) ListByUserID(ctx context.Context, userID string) ([]model.UserRecipe, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []model.UserRecipe
	for _, recipe := range r.recipes {
		if recipe.UserID == userID {
			result = append(result, recipe)
		}
	}
	return result, nil
}

// fakeUploader は画像アップロードを記録するフェイク。
type fakeUploader struct {
	mu      sync.Mutex
	uploads []string
}

func (u *fakeUploader) Upload(ctx context.Context, key, srcURI string) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.uploads = append(u.uploads, key)
	return "https://storage.example.com/" + key, nil
}

func (u *fakeUploader) Remove(ctx context.Context, address string) error {
	return nil
}

// passSanitizer は入力をそのまま返すサニタイザー。
type passSanitizer struct{}

func (passSanitizer) Sanitize(s string) string { return s }

// ---- テスト環境の組み立て ----

type testEnv struct {
	auth        *fakeAuth
	profileRepo *fakeProfileRepo
	recipeRepo  *fakeRecipeRepo
	notifier    *repository.LocalNotifier
	registry    *StoreRegistry
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	notifier := repository.NewLocalNotifier()
	auth := newFakeAuth()
	profileRepo := newFakeProfileRepo(notifier)
	recipeRepo := newFakeRecipeRepo(notifier)
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))

	registry := NewStoreRegistry(StoreRegistryDeps{
		Auth:        auth,
		ProfileRepo: profileRepo,
		RecipeRepo:  recipeRepo,
		Uploader:    &fakeUploader{},
		Sanitizer:   passSanitizer{},
		Notifier:    notifier,
		Metrics:     metrics.NewCollector(prometheus.NewRegistry()),
		Logger:      logger,
	}, time.Minute)
	t.Cleanup(registry.Stop)

	return &testEnv{
		auth:        auth,
		profileRepo: profileRepo,
		recipeRepo:  recipeRepo,
		notifier:    notifier,
		registry:    registry,
	}
}

// addUser はユーザーとプロフィール、セッションを登録してセッションIDを返す。
func (e *testEnv) addUser(t *testing.T, userID, name string) string {
	t.Helper()

	user := &model.User{ID: userID, Email: userID + "@example.com", Name: name}
	sessionID := "sess-" + userID
	e.auth.addSession(sessionID, user)

	if err := e.profileRepo.Create(context.Background(), &model.Profile{UserID: userID, Name: name}); err != nil {
		t.Fatalf("failed to create profile: %v", err)
	}
	return sessionID
}

// draftFixture はテスト用のレシピ投稿ドラフトを生成する。
func draftFixture(name string) model.RecipeDraft {
	return model.RecipeDraft{
		Name:         name,
		Description:  "テスト用レシピ",
		Category:     "和食",
		Ingredients:  []string{"材料A", "材料B"},
		Instructions: "混ぜて加熱する",
	}
}

// getSyncedSet はStoreSetを取得し、お気に入りストアの同期完了まで待機する。
func (e *testEnv) getSyncedSet(t *testing.T, sessionID string) *StoreSet {
	t.Helper()

	set, err := e.registry.Get(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("registry.Get() error = %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if set.Favorites.State() == favorites.StateSynced {
			return set
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("favorites store did not reach synced state")
	return nil
}
