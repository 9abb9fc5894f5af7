package relay

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dgnsrekt/tabaudio/internal/media"
	"github.com/dgnsrekt/tabaudio/internal/reconciler"
	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

type stubLister struct {
	tabs []media.TabHandle
	err  error
}

func (s stubLister) ListAudibleTabs(context.Context) ([]media.TabHandle, error) {
	return s.tabs, s.err
}

func TestHandleQueryTabs(t *testing.T) {
	rl := New(stubLister{tabs: []media.TabHandle{{ID: 3, Title: "Radio", URL: "https://radio.example/"}}})
	resp := rl.Handle(context.Background(), Message{Action: ActionQueryTabs, RequestID: "req-1"})
	if resp.Error != "" || resp.Tabs == nil || len(*resp.Tabs) != 1 || (*resp.Tabs)[0].ID != 3 {
		t.Fatalf("Handle() = %+v", resp)
	}
	if resp.RequestID != "req-1" {
		t.Fatalf("RequestID = %q, want echo of req-1", resp.RequestID)
	}
}

func TestHandleRawShapes(t *testing.T) {
	tests := []struct {
		name   string
		lister stubLister
		in     string
		want   map[string]bool // top-level keys expected
		errMsg string
	}{
		{"empty query keeps tabs", stubLister{}, `{"action":"queryTabs"}`, map[string]bool{"tabs": true, "requestId": true}, ""},
		{"unknown action", stubLister{}, `{"action":"play"}`, map[string]bool{"error": true, "requestId": true}, "unknown action"},
		{"malformed", stubLister{}, `not json`, map[string]bool{"error": true, "requestId": true}, "invalid message"},
		{"directory failure", stubLister{err: errors.New("DIRECTORY_UNAVAILABLE: cannot query browser tabs")}, `{"action":"queryTabs"}`, map[string]bool{"error": true, "requestId": true}, "DIRECTORY_UNAVAILABLE: cannot query browser tabs"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := New(tt.lister).HandleRaw(context.Background(), []byte(tt.in))
			var got map[string]json.RawMessage
			if err := json.Unmarshal(out, &got); err != nil {
				t.Fatalf("response is not JSON: %s", out)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("response keys = %s, want %v", out, tt.want)
			}
			for k := range tt.want {
				if _, ok := got[k]; !ok {
					t.Fatalf("response %s missing %q", out, k)
				}
			}
			if tt.errMsg != "" {
				var msg string
				_ = json.Unmarshal(got["error"], &msg)
				if msg != tt.errMsg {
					t.Fatalf("error = %q, want %q", msg, tt.errMsg)
				}
			} else if string(got["tabs"]) != "[]" {
				t.Fatalf("tabs = %s, want []", got["tabs"])
			}
		})
	}
}

func TestBrokerReplaysStickyEvents(t *testing.T) {
	b := NewBroker("tabs")
	b.Publish(Event{Name: "tabs", Payload: "[1]"})
	b.Publish(Event{Name: "tab", Payload: "{}"})
	b.Publish(Event{Name: "tabs", Payload: "[2]"})

	id, ch := b.Subscribe()
	defer b.Unsubscribe(id)
	select {
	case evt := <-ch:
		if evt.Name != "tabs" || evt.Payload != "[2]" {
			t.Fatalf("replayed %+v, want latest tabs", evt)
		}
	default:
		t.Fatal("sticky event not replayed")
	}
	select {
	case evt := <-ch:
		t.Fatalf("non-sticky event replayed: %+v", evt)
	default:
	}
	if b.ClientCount() != 1 {
		t.Fatalf("ClientCount() = %d", b.ClientCount())
	}
}

func TestFeedPublishesReconcilerChanges(t *testing.T) {
	b := NewBroker()
	id, ch := b.Subscribe()
	defer b.Unsubscribe(id)

	feed := Feed(b)
	feed(reconciler.Change{Kind: reconciler.ChangeSnapshot, Tabs: []reconciler.TabView{{TabHandle: media.TabHandle{ID: 1}, Playing: true, Volume: 1}}})
	feed(reconciler.Change{Kind: reconciler.ChangeTab, Tabs: []reconciler.TabView{{TabHandle: media.TabHandle{ID: 1}, Volume: 0.5}}})

	first := <-ch
	if first.Name != "tabs" || !strings.HasPrefix(first.Payload, "[") {
		t.Fatalf("first event = %+v", first)
	}
	second := <-ch
	var view reconciler.TabView
	if err := json.Unmarshal([]byte(second.Payload), &view); err != nil {
		t.Fatalf("tab payload: %v", err)
	}
	if second.Name != "tab" || view.ID != 1 || view.Volume != 0.5 {
		t.Fatalf("second event = %+v", second)
	}
}

func TestSSEHandlerStreamsFilteredEvents(t *testing.T) {
	b := NewBroker()
	srv := httptest.NewServer(SSEHandler(b))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"?events=tab", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}

	deadline := time.Now().Add(2 * time.Second)
	for b.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	b.Publish(Event{Name: "tabs", Payload: "[]"})
	b.Publish(Event{Name: "tab", Payload: `{"id":9}`})

	sc := bufio.NewScanner(resp.Body)
	var lines []string
	for sc.Scan() {
		line := sc.Text()
		if line == "" && len(lines) > 0 {
			break
		}
		if line != "" {
			lines = append(lines, line)
		}
	}
	if strings.Join(lines, "|") != `event: tab|data: {"id":9}` {
		t.Fatalf("stream = %q", lines)
	}
}

func TestWSHandlerAnswersEachMessage(t *testing.T) {
	rl := New(stubLister{tabs: []media.TabHandle{{ID: 1, Title: "A"}}})
	srv := httptest.NewServer(WSHandler(rl))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	conn, _, _, err := ws.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"))
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	for _, in := range []string{`{"action":"queryTabs","requestId":"a"}`, `{"action":"nope","requestId":"b"}`} {
		if err := wsutil.WriteClientText(conn, []byte(in)); err != nil {
			t.Fatalf("write: %v", err)
		}
		out, err := wsutil.ReadServerText(conn)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var resp struct {
			Tabs      []media.TabHandle `json:"tabs"`
			Error     string            `json:"error"`
			RequestID string            `json:"requestId"`
		}
		if err := json.Unmarshal(out, &resp); err != nil {
			t.Fatalf("decode %s: %v", out, err)
		}
		switch resp.RequestID {
		case "a":
			if len(resp.Tabs) != 1 || resp.Tabs[0].Title != "A" {
				t.Fatalf("queryTabs response = %s", out)
			}
		case "b":
			if resp.Error != "unknown action" {
				t.Fatalf("unknown action response = %s", out)
			}
		default:
			t.Fatalf("unexpected response %s", out)
		}
	}
}
