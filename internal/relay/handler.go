package relay

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

const keepAliveInterval = 15 * time.Second

// SSEHandler returns an http.HandlerFunc that streams broker events as SSE.
// Clients may filter events via ?events=tabs,tab.
func SSEHandler(broker *Broker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming not supported", http.StatusInternalServerError)
			return
		}

		var filter map[string]bool
		if q := r.URL.Query().Get("events"); q != "" {
			filter = make(map[string]bool)
			for _, name := range strings.Split(q, ",") {
				if name = strings.TrimSpace(name); name != "" {
					filter[name] = true
				}
			}
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		flusher.Flush()

		id, ch := broker.Subscribe()
		defer broker.Unsubscribe(id)

		ping := time.NewTicker(keepAliveInterval)
		defer ping.Stop()

		for {
			select {
			case <-r.Context().Done():
				return
			case <-ping.C:
				fmt.Fprint(w, ": ping\n\n")
				flusher.Flush()
			case evt, ok := <-ch:
				if !ok {
					return
				}
				if filter != nil && !filter[evt.Name] {
					continue
				}
				fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Name, evt.Payload)
				flusher.Flush()
			}
		}
	}
}

// WSHandler upgrades to a WebSocket and answers one relay response per text
// message until the client disconnects.
func WSHandler(rl *Relay) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			slog.Warn("relay ws upgrade failed", "error", err)
			return
		}
		defer conn.Close()

		for {
			msg, err := wsutil.ReadClientText(conn)
			if err != nil {
				slog.Debug("relay ws closed", "remote", r.RemoteAddr, "error", err)
				return
			}
			resp := rl.HandleRaw(r.Context(), msg)
			if err := wsutil.WriteServerText(conn, resp); err != nil {
				slog.Debug("relay ws write failed", "remote", r.RemoteAddr, "error", err)
				return
			}
		}
	}
}
