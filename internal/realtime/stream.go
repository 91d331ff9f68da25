package realtime

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const heartbeatInterval = 15 * time.Second

func writeSSE(w io.Writer, msg SSEMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", msg.Event, payload)
	return err
}

// ServeHTTP streams client's messages as server-sent events until the
// request ends or the client is closed. On close, buffered messages are
// written before returning so a final event is not lost.
func (hub *SSEHub) ServeHTTP(w http.ResponseWriter, r *http.Request, client *SSEClient) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	send := func(msg SSEMessage) {
		if err := writeSSE(w, msg); err != nil {
			client.Logger.Warn("write SSE message failed", "error", err, "event", msg.Event)
		}
	}

	for {
		select {
		case <-r.Context().Done():
			client.Logger.Debug("stream request ended", "error", r.Context().Err())
			return
		case <-client.done:
			for msg := range client.Outbound {
				send(msg)
			}
			flusher.Flush()
			return
		case <-heartbeat.C:
			_, _ = io.WriteString(w, ": ping\n\n")
			flusher.Flush()
		case msg, open := <-client.Outbound:
			if !open {
				return
			}
			send(msg)
			flusher.Flush()
		}
	}
}
