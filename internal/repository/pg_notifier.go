package repository

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lib/pq"
)

// PgNotifier はPostgreSQLのLISTEN/NOTIFYを使用した変更通知の実装。
// 書き込み側のリポジトリがトランザクション内で発行するpg_notifyを受信し、
// トピック・キー単位の購読者に配信する。
// 再接続時は取りこぼしの可能性があるため、全購読者を起床させる
// （購読者はイベントをスナップショット再取得の契機としてのみ使う）。
type PgNotifier struct {
	listener *pq.Listener
	logger   *slog.Logger

	mu       sync.Mutex
	watchers map[string]map[int64]*pgWatcher // topic -> watcher ID -> watcher
	listened map[string]bool                 // LISTEN済みトピック
	nextID   int64
	closed   bool

	done chan struct{}
}

// pgWatcher は1件の購読を表す。
type pgWatcher struct {
	key string
	ch  chan struct{}
}

// NewPgNotifier はPgNotifierを生成し、配信ループを開始する。
func NewPgNotifier(databaseURL string, logger *slog.Logger) *PgNotifier {
	listener := pq.NewListener(databaseURL, 10*time.Second, time.Minute,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				logger.Error("listener event error",
					slog.Int("event", int(ev)),
					slog.String("error", err.Error()),
				)
			}
		})

	n := &PgNotifier{
		listener: listener,
		logger:   logger,
		watchers: make(map[string]map[int64]*pgWatcher),
		listened: make(map[string]bool),
		done:     make(chan struct{}),
	}

	go n.dispatchLoop()

	return n
}

// Watch は指定トピック・キーの変更イベントチャネルと購読解除関数を返す。
// チャネルはバッファ1の最新値保持で、未消費イベントがある間の追加通知は畳み込まれる。
// ctxのキャンセルでも購読は解除される。
func (n *PgNotifier) Watch(ctx context.Context, topic, key string) (<-chan struct{}, func(), error) {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil, nil, fmt.Errorf("notifier is closed")
	}

	if !n.listened[topic] {
		if err := n.listener.Listen(topic); err != nil {
			n.mu.Unlock()
			return nil, nil, fmt.Errorf("failed to listen on topic %s: %w", topic, err)
		}
		n.listened[topic] = true
	}

	n.nextID++
	id := n.nextID
	w := &pgWatcher{key: key, ch: make(chan struct{}, 1)}
	if n.watchers[topic] == nil {
		n.watchers[topic] = make(map[int64]*pgWatcher)
	}
	n.watchers[topic][id] = w
	n.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.watchers[topic], id)
			n.mu.Unlock()
		})
	}

	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-n.done:
		}
	}()

	return w.ch, cancel, nil
}

// Close は配信ループを停止し、リスナー接続を閉じる。
func (n *PgNotifier) Close() error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	n.mu.Unlock()

	close(n.done)
	return n.listener.Close()
}

// dispatchLoop は受信した通知を該当する購読者へ配信する。
// 90秒間通知がない場合はPingで接続の生存確認を行う。
func (n *PgNotifier) dispatchLoop() {
	for {
		select {
		case <-n.done:
			return
		case notification := <-n.listener.Notify:
			if notification == nil {
				// 再接続発生。取りこぼしの可能性があるため全購読者を起床させる。
				n.wakeAll()
				continue
			}
			n.deliver(notification.Channel, notification.Extra)
		case <-time.After(90 * time.Second):
			go func() {
				if err := n.listener.Ping(); err != nil {
					n.logger.Error("listener ping failed", slog.String("error", err.Error()))
				}
			}()
		}
	}
}

// deliver は指定トピックの該当キー購読者へイベントを配信する。
func (n *PgNotifier) deliver(topic, key string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for _, w := range n.watchers[topic] {
		if w.key != key {
			continue
		}
		select {
		case w.ch <- struct{}{}:
		default:
			// 未消費イベントが残っている場合は畳み込む
		}
	}
}

// wakeAll は全購読者へイベントを配信する。
func (n *PgNotifier) wakeAll() {
	n.mu.Lock()
	defer n.mu.Unlock()

	for _, topicWatchers := range n.watchers {
		for _, w := range topicWatchers {
			select {
			case w.ch <- struct{}{}:
			default:
			}
		}
	}
}

// compile-time interface check
var _ Notifier = (*PgNotifier)(nil)
