package cdpcontrol

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/chromedp/cdproto/target"
)

func TestCleanupLockedLogsDetachFailure(t *testing.T) {
	var buf bytes.Buffer
	oldLogger := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() {
		slog.SetDefault(oldLogger)
	})

	client := &Client{
		cdp: newRawCDP("http://127.0.0.1:1"),
		tabs: map[target.ID]*tabSession{
			"target-1": {
				sessionID: "session-1",
			},
		},
	}
	client.cleanupLocked()

	if !strings.Contains(buf.String(), "detach cleanup failed") {
		t.Fatalf("expected detach cleanup debug log, got %q", buf.String())
	}
	if client.cdp != nil {
		t.Fatal("cleanupLocked() left the CDP connection in place")
	}
	if len(client.tabs) != 0 {
		t.Fatalf("cleanupLocked() left %d tabs", len(client.tabs))
	}
}

func TestForgetSessionClearsMatchingSession(t *testing.T) {
	client := &Client{
		tabs: map[target.ID]*tabSession{
			"a": {sessionID: "s-a"},
			"b": {sessionID: "s-b"},
		},
	}
	client.forgetSession("s-a")

	if got := client.tabs["a"].sessionID; got != "" {
		t.Fatalf("session a = %q, want cleared", got)
	}
	if got := client.tabs["b"].sessionID; got != "s-b" {
		t.Fatalf("session b = %q, want untouched", got)
	}
}

func TestTabRegistryHandlesAreStableAndNotReused(t *testing.T) {
	r := NewTabRegistry()
	a := r.Register("A")
	b := r.Register("B")
	if again := r.Register("A"); again != a {
		t.Fatalf("Register(A) twice = %d then %d", a, again)
	}

	r.Retain(map[target.ID]struct{}{"B": {}})
	if _, ok := r.Target(a); ok {
		t.Fatal("handle for removed target still resolves")
	}
	if id, ok := r.Target(b); !ok || id != "B" {
		t.Fatalf("Target(%d) = %q, %v", b, id, ok)
	}

	c := r.Register("A")
	if c == a || c == b {
		t.Fatalf("re-registered target got reused handle %d", c)
	}
	if r.Count() != 2 {
		t.Fatalf("Count() = %d, want 2", r.Count())
	}
}
