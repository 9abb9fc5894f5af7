package cdpcontrol

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dgnsrekt/tabaudio/internal/media"
	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// fakePage answers primitive evaluations for one target.
type fakePage struct {
	id       string
	url      string
	title    string
	audible  bool
	refuse   bool
	state    media.State
	lastExpr string
}

// fakeBrowser serves the CDP HTTP discovery endpoints and a browser-level
// WebSocket that understands attach/detach and Runtime.evaluate.
type fakeBrowser struct {
	mu    sync.Mutex
	pages map[string]*fakePage
	srv   *httptest.Server
}

func newFakeBrowser(t *testing.T, pages ...*fakePage) *fakeBrowser {
	t.Helper()
	fb := &fakeBrowser{pages: make(map[string]*fakePage)}
	for _, p := range pages {
		fb.pages[p.id] = p
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/json/version", func(w http.ResponseWriter, r *http.Request) {
		wsURL := "ws" + strings.TrimPrefix(fb.srv.URL, "http") + "/devtools/browser/fake"
		_ = json.NewEncoder(w).Encode(map[string]string{"webSocketDebuggerUrl": wsURL})
	})
	mux.HandleFunc("/json/list", func(w http.ResponseWriter, r *http.Request) {
		fb.mu.Lock()
		defer fb.mu.Unlock()
		out := []map[string]string{{"id": "devtools", "type": "page", "url": "devtools://devtools/inspector.html"}}
		for _, p := range fb.pages {
			out = append(out, map[string]string{"id": p.id, "type": "page", "url": p.url, "title": p.title, "faviconUrl": p.url + "/favicon.ico"})
		}
		out = append(out, map[string]string{"id": "sw", "type": "service_worker", "url": "https://x/sw.js"})
		_ = json.NewEncoder(w).Encode(out)
	})
	mux.HandleFunc("/devtools/browser/fake", fb.serveWS)
	fb.srv = httptest.NewServer(mux)
	t.Cleanup(fb.srv.Close)
	return fb
}

func (fb *fakeBrowser) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		return
	}
	defer conn.Close()
	for {
		data, err := wsutil.ReadClientText(conn)
		if err != nil {
			return
		}
		var req struct {
			ID        int64           `json:"id"`
			Method    string          `json:"method"`
			SessionID string          `json:"sessionId"`
			Params    json.RawMessage `json:"params"`
		}
		if json.Unmarshal(data, &req) != nil {
			continue
		}
		resp := map[string]any{"id": req.ID}
		switch req.Method {
		case "Target.attachToTarget":
			var p struct {
				TargetID string `json:"targetId"`
			}
			_ = json.Unmarshal(req.Params, &p)
			resp["result"] = map[string]string{"sessionId": "S-" + p.TargetID}
		case "Target.detachFromTarget":
			resp["result"] = map[string]any{}
		case "Runtime.evaluate":
			var p struct {
				Expression string `json:"expression"`
			}
			_ = json.Unmarshal(req.Params, &p)
			resp["sessionId"] = req.SessionID
			envelope, errMsg := fb.evaluate(strings.TrimPrefix(req.SessionID, "S-"), p.Expression)
			if errMsg != "" {
				resp["error"] = map[string]string{"message": errMsg}
			} else {
				resp["result"] = map[string]any{"result": map[string]any{"type": "string", "value": envelope}}
			}
		default:
			resp["result"] = map[string]any{}
		}
		out, _ := json.Marshal(resp)
		if err := wsutil.WriteServerText(conn, out); err != nil {
			return
		}
	}
}

func (fb *fakeBrowser) evaluate(targetID, expr string) (string, string) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	p, ok := fb.pages[targetID]
	if !ok {
		return "", "No target with given id found"
	}
	if p.refuse {
		return "", "Cannot access contents of the page"
	}
	p.lastExpr = expr
	var data any
	switch {
	case strings.Contains(expr, "audible:audible"):
		data = media.ProbeResult{Audible: p.audible, Count: 1}
	case strings.Contains(expr, "found:true"):
		data = p.state
	case strings.Contains(expr, "var playing = Boolean"):
		p.audible = !strings.HasSuffix(expr, "([true])")
		data = map[string]int{"count": 1}
	default:
		data = map[string]int{"count": 1}
	}
	b, _ := json.Marshal(map[string]any{"ok": true, "data": data})
	return string(b), ""
}

func TestClientAgainstFakeBrowser(t *testing.T) {
	dur := 200.0
	playing := &fakePage{id: "T1", url: "https://music.example.com/a", title: "A", audible: true,
		state: media.State{CurrentTime: 12.5, Duration: &dur, Volume: 0.8, Found: true}}
	silent := &fakePage{id: "T2", url: "https://docs.example.com/b", title: "B"}
	locked := &fakePage{id: "T3", url: "https://locked.example.com/", title: "C", audible: true, refuse: true}
	fb := newFakeBrowser(t, playing, silent, locked)

	c := NewClient(fb.srv.URL, nil, 2*time.Second)
	ctx := context.Background()
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })

	all, err := c.ListTabs(ctx)
	if err != nil {
		t.Fatalf("ListTabs() error = %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("ListTabs() = %d tabs, want 3 (devtools and workers skipped)", len(all))
	}

	tabs, err := c.ListAudibleTabs(ctx)
	if err != nil {
		t.Fatalf("ListAudibleTabs() error = %v", err)
	}
	if len(tabs) != 1 || tabs[0].Title != "A" {
		t.Fatalf("ListAudibleTabs() = %+v, want only tab A", tabs)
	}
	if tabs[0].Favicon != "https://music.example.com/a/favicon.ico" {
		t.Fatalf("favicon = %q", tabs[0].Favicon)
	}
	handle := tabs[0].ID

	var st media.State
	if err := c.RunInTab(ctx, handle, media.GetState(), &st); err != nil {
		t.Fatalf("RunInTab(getState) error = %v", err)
	}
	if st.CurrentTime != 12.5 || media.Seconds(st.Duration) != 200 || st.Volume != 0.8 {
		t.Fatalf("getState = %+v", st)
	}

	if err := c.RunInTab(ctx, handle, media.Toggle(true), nil); err != nil {
		t.Fatalf("RunInTab(toggle) error = %v", err)
	}
	fb.mu.Lock()
	lastExpr := playing.lastExpr
	fb.mu.Unlock()
	if !strings.HasSuffix(lastExpr, "([true])") {
		t.Fatalf("toggle args not serialized into the expression: %s", lastExpr)
	}

	tabs, err = c.ListAudibleTabs(ctx)
	if err != nil {
		t.Fatalf("ListAudibleTabs() after pause error = %v", err)
	}
	if len(tabs) != 0 {
		t.Fatalf("ListAudibleTabs() after pause = %+v, want none", tabs)
	}

	for _, info := range all {
		if info.Title != "C" {
			continue
		}
		err := c.RunInTab(ctx, info.Handle, media.SetVolume(0.5), nil)
		if !IsCode(err, CodeExecutionRefused) {
			t.Fatalf("RunInTab on refusing page error = %v, want %s", err, CodeExecutionRefused)
		}
	}
}

type recordingObserver struct {
	mu    sync.Mutex
	calls []string
}

func (o *recordingObserver) ObserveCall(_ context.Context, primitive, code string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, primitive+":"+code)
}

func TestRunInTabNotifiesObserver(t *testing.T) {
	fb := newFakeBrowser(t, &fakePage{id: "T1", url: "https://a.example.com/", title: "A", audible: true})
	c := NewClient(fb.srv.URL, nil, 2*time.Second)
	obs := &recordingObserver{}
	c.SetObserver(obs)
	ctx := context.Background()
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })

	tabs, err := c.ListTabs(ctx)
	if err != nil || len(tabs) != 1 {
		t.Fatalf("ListTabs() = %v, %v", tabs, err)
	}
	if err := c.RunInTab(ctx, tabs[0].Handle, media.Seek(3), nil); err != nil {
		t.Fatalf("RunInTab(seek) error = %v", err)
	}
	_ = c.RunInTab(ctx, 999, media.Seek(3), nil)

	obs.mu.Lock()
	defer obs.mu.Unlock()
	want := []string{"seek:", "seek:" + CodeTabNotFound}
	if strings.Join(obs.calls, ",") != strings.Join(want, ",") {
		t.Fatalf("observer calls = %v, want %v", obs.calls, want)
	}
}
