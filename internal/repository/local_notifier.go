package repository

import (
	"context"
	"sync"
)

// LocalNotifier はプロセス内完結の変更通知の実装。
// 単一プロセス構成やテストで、LISTEN/NOTIFYを使わずに
// 書き込み側がPublishを直接呼び出して購読者へ配信する。
type LocalNotifier struct {
	mu       sync.Mutex
	watchers map[string]map[int64]*pgWatcher // topic -> watcher ID -> watcher
	nextID   int64
}

// NewLocalNotifier はLocalNotifierを生成する。
func NewLocalNotifier() *LocalNotifier {
	return &LocalNotifier{
		watchers: make(map[string]map[int64]*pgWatcher),
	}
}

// Watch は指定トピック・キーの変更イベントチャネルと購読解除関数を返す。
// チャネルはバッファ1の最新値保持。
func (n *LocalNotifier) Watch(ctx context.Context, topic, key string) (<-chan struct{}, func(), error) {
	n.mu.Lock()
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

	context.AfterFunc(ctx, cancel)

	return w.ch, cancel, nil
}

// Publish は指定トピック・キーの購読者へ変更イベントを配信する。
func (n *LocalNotifier) Publish(topic, key string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for _, w := range n.watchers[topic] {
		if w.key != key {
			continue
		}
		select {
		case w.ch <- struct{}{}:
		default:
		}
	}
}

// compile-time interface check
var _ Notifier = (*LocalNotifier)(nil)
