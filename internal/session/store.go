// Package session は認証アイデンティティとプロフィールの共有ストアを提供する。
// ログイン中のユーザーを保持し、そのプロフィールドキュメントのライブ購読を維持する。
// アイデンティティの変化（ログアウト含む)のたびに購読は破棄・再構築される。
package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/hitoshi/tastify/internal/model"
	"github.com/hitoshi/tastify/internal/repository"
)

// AuthService は認証処理のインターフェース。auth.Serviceの部分集合。
type AuthService interface {
	Signup(ctx context.Context, email, password, displayName string) (*model.Session, *model.User, error)
	Login(ctx context.Context, email, password string) (*model.Session, *model.User, error)
	Logout(ctx context.Context, sessionID string) error
	GetCurrentUser(ctx context.Context, sessionID string) (*model.User, error)
}

// Store はセッションストア。現在のアイデンティティとそのプロフィールの
// 最新スナップショットを保持する。
// スナップショットはバックエンドのキャッシュであり、常に購読のプッシュで全置換される。
type Store struct {
	auth        AuthService
	profileRepo repository.ProfileRepository
	notifier    repository.Notifier
	logger      *slog.Logger

	mu      sync.RWMutex
	user    *model.User
	session *model.Session
	profile *model.Profile
	loading bool
	// epoch はアイデンティティの世代番号。
	// 古い世代の購読ゴルーチンによる遅延スナップショット反映を防ぐ。
	epoch int

	watchCancel context.CancelFunc

	identitySubs map[int]chan *model.User
	profileSubs  map[int]chan *model.Profile
	nextSubID    int
}

// NewStore はStoreを生成する。
// loadingは初期セッション復元（RestoreまたはLogin/Signup）が完了するまでtrue。
func NewStore(auth AuthService, profileRepo repository.ProfileRepository, notifier repository.Notifier, logger *slog.Logger) *Store {
	return &Store{
		auth:         auth,
		profileRepo:  profileRepo,
		notifier:     notifier,
		logger:       logger,
		loading:      true,
		identitySubs: make(map[int]chan *model.User),
		profileSubs:  make(map[int]chan *model.Profile),
	}
}

// Restore は既存セッションIDからアイデンティティを復元する。
// sessionIDが空または無効な場合は未ログイン状態で確定する。
// 呼び出しの完了とともにloadingはfalseになる。
func (s *Store) Restore(ctx context.Context, sessionID string) {
	defer s.setLoading(false)

	if sessionID == "" {
		s.setIdentity(nil, nil)
		return
	}

	user, err := s.auth.GetCurrentUser(ctx, sessionID)
	if err != nil {
		s.logger.Warn("セッションの復元に失敗しました",
			slog.String("error", err.Error()),
		)
		s.setIdentity(nil, nil)
		return
	}

	s.setIdentity(user, &model.Session{ID: sessionID, UserID: user.ID})
}

// Login はメールアドレスとパスワードで認証し、アイデンティティを置き換える。
func (s *Store) Login(ctx context.Context, email, password string) (*model.Session, error) {
	defer s.setLoading(false)

	sess, user, err := s.auth.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}

	s.setIdentity(user, sess)
	return sess, nil
}

// Signup は新規ユーザーを作成し、アイデンティティを置き換える。
func (s *Store) Signup(ctx context.Context, email, password, displayName string) (*model.Session, error) {
	defer s.setLoading(false)

	sess, user, err := s.auth.Signup(ctx, email, password, displayName)
	if err != nil {
		return nil, err
	}

	s.setIdentity(user, sess)
	return sess, nil
}

// Logout は外部セッションを破棄し、アイデンティティを未ログインに置き換える。
// プロフィール購読は破棄され、下流ストアはアイデンティティ変化の通知で
// 各自のスナップショットを空にする。
func (s *Store) Logout(ctx context.Context) error {
	s.mu.RLock()
	sess := s.session
	s.mu.RUnlock()

	if sess != nil {
		if err := s.auth.Logout(ctx, sess.ID); err != nil {
			s.logger.Error("ログアウト処理に失敗しました",
				slog.String("error", err.Error()),
			)
			return err
		}
	}

	s.setIdentity(nil, nil)
	return nil
}

// CurrentUser は現在のアイデンティティを返す。未ログインの場合はnil。
func (s *Store) CurrentUser() *model.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user
}

// SessionID は現在の外部セッションIDを返す。未ログインの場合は空文字列。
func (s *Store) SessionID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return ""
	}
	return s.session.ID
}

// Profile は最新のプロフィールスナップショットを返す。未受信の場合はnil。
func (s *Store) Profile() *model.Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.profile
}

// Loading は初期セッション復元が進行中かどうかを返す。
func (s *Store) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// SubscribeIdentity はアイデンティティ変化の購読チャネルと解除関数を返す。
// チャネルはバッファ1の最新値保持で、購読直後に現在値が1回配信される。
func (s *Store) SubscribeIdentity() (<-chan *model.User, func()) {
	s.mu.Lock()
	s.nextSubID++
	id := s.nextSubID
	ch := make(chan *model.User, 1)
	s.identitySubs[id] = ch
	ch <- s.user
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		delete(s.identitySubs, id)
		s.mu.Unlock()
	}
	return ch, cancel
}

// SubscribeProfile はプロフィールスナップショットの購読チャネルと解除関数を返す。
// チャネルはバッファ1の最新値保持。
func (s *Store) SubscribeProfile() (<-chan *model.Profile, func()) {
	s.mu.Lock()
	s.nextSubID++
	id := s.nextSubID
	ch := make(chan *model.Profile, 1)
	s.profileSubs[id] = ch
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		delete(s.profileSubs, id)
		s.mu.Unlock()
	}
	return ch, cancel
}

// Close はプロフィール購読を破棄する。Store自体は再利用しない。
func (s *Store) Close() {
	s.setIdentity(nil, nil)
}

// setIdentity はアイデンティティを置き換え、プロフィール購読を張り替える。
// 同一ユーザーの再ログインでも購読は破棄・再構築される。
func (s *Store) setIdentity(user *model.User, sess *model.Session) {
	s.mu.Lock()

	if s.watchCancel != nil {
		s.watchCancel()
		s.watchCancel = nil
	}

	s.user = user
	s.session = sess
	s.profile = nil
	s.epoch++
	epoch := s.epoch

	if user != nil {
		ctx, cancel := context.WithCancel(context.Background())
		s.watchCancel = cancel
		go s.watchProfile(ctx, user.ID, epoch)
	}

	for _, ch := range s.identitySubs {
		select {
		case <-ch:
		default:
		}
		ch <- user
	}
	for _, ch := range s.profileSubs {
		select {
		case <-ch:
		default:
		}
		ch <- nil
	}

	s.mu.Unlock()
}

// watchProfile はプロフィールドキュメントのライブ購読ループ。
// 初回に1回スナップショットを取得し、以降は変更通知のたびに再取得する。
func (s *Store) watchProfile(ctx context.Context, userID string, epoch int) {
	events, cancel, err := s.notifier.Watch(ctx, repository.TopicProfiles, userID)
	if err != nil {
		s.logger.Error("プロフィール購読の開始に失敗しました",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return
	}
	defer cancel()

	s.reloadProfile(ctx, userID, epoch)

	for {
		select {
		case <-ctx.Done():
			return
		case <-events:
			s.reloadProfile(ctx, userID, epoch)
		}
	}
}

// reloadProfile はプロフィールを再取得し、世代が一致する場合のみ反映・配信する。
func (s *Store) reloadProfile(ctx context.Context, userID string, epoch int) {
	profile, err := s.profileRepo.FindByUserID(ctx, userID)
	if err != nil {
		s.logger.Error("プロフィールの取得に失敗しました",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.epoch != epoch {
		// アイデンティティが既に変わっている。古い世代の結果は捨てる。
		return
	}

	s.profile = profile
	for _, ch := range s.profileSubs {
		select {
		case <-ch:
		default:
		}
		ch <- profile
	}
}

// setLoading はloadingフラグを更新する。
func (s *Store) setLoading(v bool) {
	s.mu.Lock()
	s.loading = v
	s.mu.Unlock()
}
