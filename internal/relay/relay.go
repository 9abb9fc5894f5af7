// Package relay answers the background query channel ({"action":"queryTabs"})
// and streams reconciler changes to SSE subscribers.
package relay

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/dgnsrekt/tabaudio/internal/media"
	"github.com/google/uuid"
)

const (
	ActionQueryTabs = "queryTabs"

	errUnknownAction = "unknown action"
	errBadMessage    = "invalid message"
)

// TabLister is the directory capability the relay answers from.
type TabLister interface {
	ListAudibleTabs(ctx context.Context) ([]media.TabHandle, error)
}

// Message is a relay request.
type Message struct {
	Action    string `json:"action"`
	RequestID string `json:"requestId,omitempty"`
}

// Response answers one Message. Tabs is present on every successful query,
// empty when nothing is audible, and absent on errors.
type Response struct {
	Tabs      *[]media.TabHandle `json:"tabs,omitempty"`
	Error     string             `json:"error,omitempty"`
	RequestID string             `json:"requestId"`
}

// Relay routes relay messages to the tab directory.
type Relay struct {
	tabs TabLister
}

func New(tabs TabLister) *Relay {
	return &Relay{tabs: tabs}
}

// Handle answers one message. Requests without an id are assigned one.
func (rl *Relay) Handle(ctx context.Context, msg Message) Response {
	id := msg.RequestID
	if id == "" {
		id = uuid.NewString()
	}

	switch msg.Action {
	case ActionQueryTabs:
		tabs, err := rl.tabs.ListAudibleTabs(ctx)
		if err != nil {
			slog.Warn("relay queryTabs failed", "request_id", id, "error", err)
			return Response{Error: err.Error(), RequestID: id}
		}
		slog.Debug("relay queryTabs", "request_id", id, "tabs", len(tabs))
		if tabs == nil {
			tabs = []media.TabHandle{}
		}
		return Response{Tabs: &tabs, RequestID: id}
	default:
		slog.Debug("relay unknown action", "request_id", id, "action", msg.Action)
		return Response{Error: errUnknownAction, RequestID: id}
	}
}

// HandleRaw decodes a JSON message, answers it and encodes the response.
func (rl *Relay) HandleRaw(ctx context.Context, raw []byte) []byte {
	var msg Message
	var resp Response
	if err := json.Unmarshal(raw, &msg); err != nil {
		resp = Response{Error: errBadMessage, RequestID: uuid.NewString()}
	} else {
		resp = rl.Handle(ctx, msg)
	}
	out, err := json.Marshal(resp)
	if err != nil {
		return []byte(`{"error":"encode failed"}`)
	}
	return out
}
