package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/tastify/internal/model"
)

// heartbeatInterval はSSE接続を維持するためのコメント送信間隔。
const heartbeatInterval = 25 * time.Second

// serveSnapshotStream はストアのスナップショットをServer-Sent Eventsで配信する。
// 購読チャネルは最新値のみを保持するため、クライアントは常に
// 現在のスナップショット全体を受信する。
func serveSnapshotStream[T any](w http.ResponseWriter, r *http.Request, ch <-chan T, cancel func()) {
	defer cancel()

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeAPIErrorResponse(w, http.StatusInternalServerError, &model.APIError{
			Code:     "STREAMING_UNSUPPORTED",
			Message:  "ストリーミング配信に対応していません。",
			Category: model.CategorySystem,
			Action:   "通常のAPIエンドポイントを使用してください。",
		})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case snap, open := <-ch:
			if !open {
				return
			}
			data, err := json.Marshal(snap)
			if err != nil {
				slog.Error("failed to marshal snapshot", slog.String("error", err.Error()))
				return
			}
			fmt.Fprintf(w, "event: snapshot\ndata: %s\n\n", data)
			flusher.Flush()
		case <-heartbeat.C:
			fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()
		}
	}
}
