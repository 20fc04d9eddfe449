package session

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/tastify/internal/model"
	"github.com/hitoshi/tastify/internal/repository"
)

type mockAuthService struct {
	signupFn         func(ctx context.Context, email, password, displayName string) (*model.Session, *model.User, error)
	loginFn          func(ctx context.Context, email, password string) (*model.Session, *model.User, error)
	logoutFn         func(ctx context.Context, sessionID string) error
	getCurrentUserFn func(ctx context.Context, sessionID string) (*model.User, error)
}

func (m *mockAuthService) Signup(ctx context.Context, email, password, displayName string) (*model.Session, *model.User, error) {
	return m.signupFn(ctx, email, password, displayName)
}

func (m *mockAuthService) Login(ctx context.Context, email, password string) (*model.Session, *model.User, error) {
	return m.loginFn(ctx, email, password)
}

func (m *mockAuthService) Logout(ctx context.Context, sessionID string) error {
	return m.logoutFn(ctx, sessionID)
}

func (m *mockAuthService) GetCurrentUser(ctx context.Context, sessionID string) (*model.User, error) {
	return m.getCurrentUserFn(ctx, sessionID)
}

type mockProfileRepo struct {
	mu             sync.Mutex
	profiles       map[string]*model.Profile
	findCalls      int
	createFn       func(ctx context.Context, profile *model.Profile) error
	appendFavFn    func(ctx context.Context, userID string, fav model.FavoriteRecipe) error
	removeFavFn    func(ctx context.Context, userID string, fav model.FavoriteRecipe) error
	findByUserIDFn func(ctx context.Context, userID string) (*model.Profile, error)
}

func (m *mockProfileRepo) Create(ctx context.Context, profile *model.Profile) error {
	return m.createFn(ctx, profile)
}

func (m *mockProfileRepo) FindByUserID(ctx context.Context, userID string) (*model.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.findCalls++
	if m.findByUserIDFn != nil {
		return m.findByUserIDFn(ctx, userID)
	}
	return m.profiles[userID], nil
}

func (m *mockProfileRepo) AppendFavorite(ctx context.Context, userID string, fav model.FavoriteRecipe) error {
	return m.appendFavFn(ctx, userID, fav)
}

func (m *mockProfileRepo) RemoveFavorite(ctx context.Context, userID string, fav model.FavoriteRecipe) error {
	return m.removeFavFn(ctx, userID, fav)
}

func (m *mockProfileRepo) setProfile(p *model.Profile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.profiles == nil {
		m.profiles = make(map[string]*model.Profile)
	}
	m.profiles[p.UserID] = p
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// waitForProfile は購読チャネルからcondを満たすスナップショットが届くまで待つ。
func waitForProfile(t *testing.T, ch <-chan *model.Profile, cond func(*model.Profile) bool) *model.Profile {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case p := <-ch:
			if cond(p) {
				return p
			}
		case <-deadline:
			t.Fatal("expected profile snapshot was not delivered")
			return nil
		}
	}
}

// TestStore_Login はログインがアイデンティティを設定し、
// プロフィールスナップショットを配信することを検証する。
func TestStore_Login(t *testing.T) {
	user := &model.User{ID: "user-1", Email: "taro@example.com", Name: "太郎"}
	auth := &mockAuthService{
		loginFn: func(ctx context.Context, email, password string) (*model.Session, *model.User, error) {
			return &model.Session{ID: "sess-1", UserID: user.ID}, user, nil
		},
	}
	repo := &mockProfileRepo{}
	repo.setProfile(&model.Profile{UserID: "user-1", Name: "太郎"})
	notifier := repository.NewLocalNotifier()

	store := NewStore(auth, repo, notifier, testLogger())
	defer store.Close()

	profiles, cancelP := store.SubscribeProfile()
	defer cancelP()

	sess, err := store.Login(context.Background(), "taro@example.com", "password1")
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	if sess.ID != "sess-1" {
		t.Errorf("session ID = %q, want %q", sess.ID, "sess-1")
	}
	if got := store.CurrentUser(); got == nil || got.ID != "user-1" {
		t.Errorf("CurrentUser = %+v, want user-1", got)
	}
	if store.Loading() {
		t.Error("Loading = true after Login, want false")
	}

	p := waitForProfile(t, profiles, func(p *model.Profile) bool { return p != nil })
	if p.UserID != "user-1" {
		t.Errorf("profile UserID = %q, want %q", p.UserID, "user-1")
	}
}

// TestStore_LoginFailure はログイン失敗時にアイデンティティが変化しないことを検証する。
func TestStore_LoginFailure(t *testing.T) {
	auth := &mockAuthService{
		loginFn: func(ctx context.Context, email, password string) (*model.Session, *model.User, error) {
			return nil, nil, model.NewInvalidCredentialsError()
		},
	}
	store := NewStore(auth, &mockProfileRepo{}, repository.NewLocalNotifier(), testLogger())
	defer store.Close()

	_, err := store.Login(context.Background(), "taro@example.com", "wrong")
	if !model.IsAuthError(err) {
		t.Errorf("Login error = %v, want auth error", err)
	}
	if store.CurrentUser() != nil {
		t.Error("CurrentUser is not nil after failed login")
	}
}

// TestStore_ProfileReloadOnNotify は変更通知のたびにスナップショットが
// 再取得・全置換されることを検証する。
func TestStore_ProfileReloadOnNotify(t *testing.T) {
	user := &model.User{ID: "user-1", Email: "taro@example.com"}
	auth := &mockAuthService{
		loginFn: func(ctx context.Context, email, password string) (*model.Session, *model.User, error) {
			return &model.Session{ID: "sess-1", UserID: user.ID}, user, nil
		},
	}
	repo := &mockProfileRepo{}
	repo.setProfile(&model.Profile{UserID: "user-1", Name: "太郎"})
	notifier := repository.NewLocalNotifier()

	store := NewStore(auth, repo, notifier, testLogger())
	defer store.Close()

	profiles, cancelP := store.SubscribeProfile()
	defer cancelP()

	if _, err := store.Login(context.Background(), "taro@example.com", "password1"); err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	waitForProfile(t, profiles, func(p *model.Profile) bool { return p != nil && p.Name == "太郎" })

	fav := model.FavoriteRecipe{ID: "52772", Title: "Teriyaki Chicken"}
	repo.setProfile(&model.Profile{UserID: "user-1", Name: "太郎", Favorites: []model.FavoriteRecipe{fav}})
	notifier.Publish(repository.TopicProfiles, "user-1")

	p := waitForProfile(t, profiles, func(p *model.Profile) bool { return p != nil && len(p.Favorites) == 1 })
	if p.Favorites[0].ID != "52772" {
		t.Errorf("favorite ID = %q, want %q", p.Favorites[0].ID, "52772")
	}
}

// TestStore_Logout はログアウトがアイデンティティとプロフィールをクリアし、
// 外部セッションを破棄することを検証する。
func TestStore_Logout(t *testing.T) {
	user := &model.User{ID: "user-1", Email: "taro@example.com"}
	var loggedOutSession string
	auth := &mockAuthService{
		loginFn: func(ctx context.Context, email, password string) (*model.Session, *model.User, error) {
			return &model.Session{ID: "sess-1", UserID: user.ID}, user, nil
		},
		logoutFn: func(ctx context.Context, sessionID string) error {
			loggedOutSession = sessionID
			return nil
		},
	}
	repo := &mockProfileRepo{}
	repo.setProfile(&model.Profile{UserID: "user-1", Name: "太郎"})

	store := NewStore(auth, repo, repository.NewLocalNotifier(), testLogger())
	defer store.Close()

	identities, cancelI := store.SubscribeIdentity()
	defer cancelI()
	<-identities // 購読直後の現在値（nil）

	if _, err := store.Login(context.Background(), "taro@example.com", "password1"); err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	if got := <-identities; got == nil || got.ID != "user-1" {
		t.Fatalf("identity after login = %+v, want user-1", got)
	}

	if err := store.Logout(context.Background()); err != nil {
		t.Fatalf("Logout returned error: %v", err)
	}
	if loggedOutSession != "sess-1" {
		t.Errorf("logged out session = %q, want %q", loggedOutSession, "sess-1")
	}
	if store.CurrentUser() != nil {
		t.Error("CurrentUser is not nil after logout")
	}
	if store.Profile() != nil {
		t.Error("Profile is not nil after logout")
	}
	if got := <-identities; got != nil {
		t.Errorf("identity after logout = %+v, want nil", got)
	}
}

// TestStore_Restore はセッションIDからの復元を検証する。
func TestStore_Restore(t *testing.T) {
	user := &model.User{ID: "user-1", Email: "taro@example.com"}
	auth := &mockAuthService{
		getCurrentUserFn: func(ctx context.Context, sessionID string) (*model.User, error) {
			if sessionID == "sess-1" {
				return user, nil
			}
			return nil, model.NewNotAuthenticatedError()
		},
	}
	repo := &mockProfileRepo{}
	repo.setProfile(&model.Profile{UserID: "user-1", Name: "太郎"})

	t.Run("有効なセッション", func(t *testing.T) {
		store := NewStore(auth, repo, repository.NewLocalNotifier(), testLogger())
		defer store.Close()

		if !store.Loading() {
			t.Error("Loading = false before restore, want true")
		}
		store.Restore(context.Background(), "sess-1")
		if store.Loading() {
			t.Error("Loading = true after restore, want false")
		}
		if got := store.CurrentUser(); got == nil || got.ID != "user-1" {
			t.Errorf("CurrentUser = %+v, want user-1", got)
		}
	})

	t.Run("空のセッションID", func(t *testing.T) {
		store := NewStore(auth, repo, repository.NewLocalNotifier(), testLogger())
		defer store.Close()

		store.Restore(context.Background(), "")
		if store.Loading() {
			t.Error("Loading = true after restore, want false")
		}
		if store.CurrentUser() != nil {
			t.Error("CurrentUser is not nil for empty session ID")
		}
	})

	t.Run("無効なセッション", func(t *testing.T) {
		store := NewStore(auth, repo, repository.NewLocalNotifier(), testLogger())
		defer store.Close()

		store.Restore(context.Background(), "sess-expired")
		if store.CurrentUser() != nil {
			t.Error("CurrentUser is not nil for invalid session")
		}
	})
}

// TestStore_SubscribeIdentityDeliversCurrentValue は購読直後に
// 現在のアイデンティティが1回配信されることを検証する。
func TestStore_SubscribeIdentityDeliversCurrentValue(t *testing.T) {
	user := &model.User{ID: "user-1", Email: "taro@example.com"}
	auth := &mockAuthService{
		loginFn: func(ctx context.Context, email, password string) (*model.Session, *model.User, error) {
			return &model.Session{ID: "sess-1", UserID: user.ID}, user, nil
		},
	}
	repo := &mockProfileRepo{}
	repo.setProfile(&model.Profile{UserID: "user-1"})

	store := NewStore(auth, repo, repository.NewLocalNotifier(), testLogger())
	defer store.Close()

	if _, err := store.Login(context.Background(), "taro@example.com", "password1"); err != nil {
		t.Fatalf("Login returned error: %v", err)
	}

	// ログイン後に購読しても現在値が即座に届く。
	identities, cancel := store.SubscribeIdentity()
	defer cancel()

	select {
	case got := <-identities:
		if got == nil || got.ID != "user-1" {
			t.Errorf("initial identity = %+v, want user-1", got)
		}
	case <-time.After(time.Second):
		t.Fatal("initial identity was not delivered")
	}
}

// TestStore_StaleSnapshotDiscarded はアイデンティティ変更後に届いた
// 古い世代のスナップショットが反映されないことを検証する。
func TestStore_StaleSnapshotDiscarded(t *testing.T) {
	user := &model.User{ID: "user-1", Email: "taro@example.com"}
	auth := &mockAuthService{
		loginFn: func(ctx context.Context, email, password string) (*model.Session, *model.User, error) {
			return &model.Session{ID: "sess-1", UserID: user.ID}, user, nil
		},
		logoutFn: func(ctx context.Context, sessionID string) error { return nil },
	}

	// 取得をログアウト完了までブロックし、遅延スナップショットを再現する。
	release := make(chan struct{})
	repo := &mockProfileRepo{
		findByUserIDFn: func(ctx context.Context, userID string) (*model.Profile, error) {
			<-release
			return &model.Profile{UserID: userID, Name: "遅延"}, nil
		},
	}

	store := NewStore(auth, repo, repository.NewLocalNotifier(), testLogger())
	defer store.Close()

	if _, err := store.Login(context.Background(), "taro@example.com", "password1"); err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	if err := store.Logout(context.Background()); err != nil {
		t.Fatalf("Logout returned error: %v", err)
	}
	close(release)

	// 遅延取得が完了しても、ログアウト後のスナップショットはnilのまま。
	time.Sleep(100 * time.Millisecond)
	if got := store.Profile(); got != nil {
		t.Errorf("Profile = %+v after logout, want nil", got)
	}
}

var _ AuthService = (*mockAuthService)(nil)
var _ repository.ProfileRepository = (*mockProfileRepo)(nil)
