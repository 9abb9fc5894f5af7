package cdpcontrol

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/target"
	"github.com/dgnsrekt/tabaudio/internal/media"
	"golang.org/x/sync/errgroup"
)

// transientHints are substrings in error causes that indicate a transient
// failure worth retrying (e.g. broken connection, closed session).
var transientHints = []string{
	"context canceled",
	"target closed",
	"session closed",
	"no session with given id",
	"websocket",
	"connection reset",
	"broken pipe",
	"eof",
	"connection refused",
	"connection closed",
	"not connected",
}

// restrictedSchemes are page URLs that never host controllable media.
var restrictedSchemes = []string{
	"devtools://",
	"chrome://",
	"chrome-extension://",
	"chrome-untrusted://",
	"edge://",
}

// URLFilter decides which page targets are candidates for media control.
type URLFilter interface {
	Match(url string) bool
}

// CallObserver receives one notification per page-context call. code is empty
// on success.
type CallObserver interface {
	ObserveCall(ctx context.Context, primitive string, code string, elapsed time.Duration)
}

type tabSession struct {
	info      TabInfo
	mu        sync.Mutex
	sessionID string // CDP session ID from Target.attachToTarget
}

type Client struct {
	cdpURL      string
	filter      URLFilter
	evalTimeout time.Duration
	probeLimit  int
	registry    *TabRegistry
	observer    CallObserver

	mu           sync.Mutex
	cdp          *rawCDP
	tabs         map[target.ID]*tabSession
	unsubscribes []func()

	tabLocksMu sync.Mutex
	tabLocks   map[int64]*sync.Mutex
}

type evalEnvelope struct {
	OK           bool            `json:"ok"`
	Data         json.RawMessage `json:"data,omitempty"`
	ErrorCode    string          `json:"error_code,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
}

func NewClient(cdpURL string, filter URLFilter, evalTimeout time.Duration) *Client {
	return &Client{
		cdpURL:      cdpURL,
		filter:      filter,
		evalTimeout: evalTimeout,
		probeLimit:  4,
		registry:    NewTabRegistry(),
		tabs:        make(map[target.ID]*tabSession),
		tabLocks:    make(map[int64]*sync.Mutex),
	}
}

// SetObserver installs a per-call observer. Call before the client is shared.
func (c *Client) SetObserver(o CallObserver) { c.observer = o }

// SetProbeConcurrency bounds how many tabs are probed at once while listing.
func (c *Client) SetProbeConcurrency(n int) {
	if n < 1 {
		n = 1
	}
	c.probeLimit = n
}

func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked(ctx)
}

func (c *Client) connectLocked(ctx context.Context) error {
	if c.cdpURL == "" {
		return newError(CodeCDPUnavailable, "missing CDP URL", nil)
	}

	slog.Info("cdpcontrol connect start", "cdp_url", c.cdpURL)
	c.cleanupLocked()

	c.cdp = newRawCDP(c.cdpURL)
	if err := c.cdp.connect(ctx); err != nil {
		c.cdp = nil
		return newError(CodeCDPUnavailable, "connect to CDP failed", err)
	}
	c.unsubscribes = append(c.unsubscribes,
		c.cdp.registerEventHandler("Target.detachedFromTarget", c.onDetached))

	if err := c.syncTabsLocked(ctx); err != nil {
		slog.Error("cdpcontrol initial tab sync failed", "error", err)
		c.cleanupLocked()
		return newError(CodeCDPUnavailable, "connect to CDP failed", err)
	}

	slog.Info("cdpcontrol connect ok", "cdp_url", c.cdpURL, "tabs", len(c.tabs))
	return nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleanupLocked()
	return nil
}

func (c *Client) cleanupLocked() {
	for _, unsub := range c.unsubscribes {
		unsub()
	}
	c.unsubscribes = nil

	// Detach from any active sessions without closing targets.
	if c.cdp != nil {
		for targetID, session := range c.tabs {
			if session == nil {
				continue
			}
			session.mu.Lock()
			if session.sessionID != "" {
				ctx, cancel := context.WithTimeout(context.Background(), time.Second)
				if err := c.cdp.detachFromTarget(ctx, session.sessionID); err != nil {
					slog.Debug("cdpcontrol detach cleanup failed", "target_id", targetID, "error", err)
				}
				cancel()
				session.sessionID = ""
			}
			session.mu.Unlock()
		}
		c.cdp.close()
		c.cdp = nil
	}
	c.tabs = make(map[target.ID]*tabSession)
}

// onDetached runs on the read loop, which must not block on session locks
// held by callers waiting for a response.
func (c *Client) onDetached(_ string, params json.RawMessage) {
	var evt struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.Unmarshal(params, &evt); err != nil || evt.SessionID == "" {
		return
	}
	go c.forgetSession(evt.SessionID)
}

// forgetSession drops a session the browser tore down (tab closed, crashed or
// navigated across a process boundary) so the next call re-attaches.
func (c *Client) forgetSession(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for targetID, session := range c.tabs {
		session.mu.Lock()
		if session.sessionID == sessionID {
			session.sessionID = ""
			slog.Debug("cdpcontrol session detached", "target_id", targetID, "session_id", sessionID)
		}
		session.mu.Unlock()
	}
}

// ListTabs returns every controllable page target, ordered by handle.
func (c *Client) ListTabs(ctx context.Context) ([]TabInfo, error) {
	if err := c.refreshTabs(ctx); err != nil {
		slog.Warn("cdpcontrol list tabs failed", "error", err)
		return nil, err
	}

	c.mu.Lock()
	tabs := make([]TabInfo, 0, len(c.tabs))
	for _, s := range c.tabs {
		if s != nil {
			tabs = append(tabs, s.info)
		}
	}
	c.mu.Unlock()

	sort.Slice(tabs, func(i, j int) bool {
		return tabs[i].Handle < tabs[j].Handle
	})
	return tabs, nil
}

// ListAudibleTabs returns the tabs whose page currently has a sounding media
// element. An unreachable browser is an error, never an empty result.
func (c *Client) ListAudibleTabs(ctx context.Context) ([]media.TabHandle, error) {
	tabs, err := c.ListTabs(ctx)
	if err != nil {
		return nil, newError(CodeDirectoryUnavailable, "cannot query browser tabs", err)
	}

	audible := make([]bool, len(tabs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.probeLimit)
	for i, tab := range tabs {
		g.Go(func() error {
			var probe media.ProbeResult
			if err := c.RunInTab(gctx, tab.Handle, media.Probe(), &probe); err != nil {
				slog.Debug("cdpcontrol probe skipped", "tab_id", tab.Handle, "url", tab.URL, "error", err)
				return nil
			}
			audible[i] = probe.Audible
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, newError(CodeDirectoryUnavailable, "probe tabs failed", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, newError(CodeDirectoryUnavailable, "probe tabs interrupted", err)
	}

	out := make([]media.TabHandle, 0, len(tabs))
	for i, tab := range tabs {
		if !audible[i] {
			continue
		}
		out = append(out, media.TabHandle{ID: tab.Handle, Title: tab.Title, URL: tab.URL, Favicon: tab.Favicon})
	}
	slog.Debug("cdpcontrol audible tabs", "tabs", len(tabs), "audible", len(out))
	return out, nil
}

// RunInTab executes a media primitive inside the tab's page context and decodes
// the primitive's data into out (nil for fire-and-forget calls).
func (c *Client) RunInTab(ctx context.Context, tabID int64, call media.Call, out any) error {
	start := time.Now()
	err := c.runInTab(ctx, tabID, call, out)
	if c.observer != nil {
		code := ""
		var coded *CodedError
		if errors.As(err, &coded) {
			code = coded.Code
		} else if err != nil {
			code = CodeEvalFailure
		}
		c.observer.ObserveCall(ctx, string(call.Primitive), code, time.Since(start))
	}
	return err
}

func (c *Client) runInTab(ctx context.Context, tabID int64, call media.Call, out any) error {
	js, err := jsForCall(call)
	if err != nil {
		return err
	}

	lock := c.tabLock(tabID)
	lock.Lock()
	defer lock.Unlock()

	slog.Debug("cdpcontrol run in tab", "tab_id", tabID, "primitive", call.String())
	session, err := c.resolveTab(ctx, tabID)
	if err == nil {
		err = c.evalOnSession(ctx, session, js, out)
	}
	if err == nil {
		return nil
	}
	if !c.shouldRetry(err) {
		return err
	}

	slog.Warn("cdpcontrol eval retry after transient failure", "tab_id", tabID, "error", err)
	if IsCode(err, CodeCDPUnavailable) {
		if recErr := c.reconnect(ctx); recErr != nil {
			slog.Error("cdpcontrol reconnect failed during retry", "tab_id", tabID, "error", recErr)
			return recErr
		}
	} else if syncErr := c.refreshTabs(ctx); syncErr != nil {
		slog.Warn("cdpcontrol tab refresh failed during retry", "tab_id", tabID, "error", syncErr)
	}

	session, err = c.resolveTab(ctx, tabID)
	if err != nil {
		return err
	}
	return c.evalOnSession(ctx, session, js, out)
}

func (c *Client) evalOnSession(ctx context.Context, session *tabSession, js string, out any) error {
	c.mu.Lock()
	cdp := c.cdp
	c.mu.Unlock()
	if cdp == nil {
		return newError(CodeCDPUnavailable, "CDP client not connected", nil)
	}

	evalCtx, evalCancel := context.WithTimeout(ctx, c.evalTimeout)
	defer evalCancel()

	sessionID, err := c.ensureSession(evalCtx, cdp, session)
	if err != nil {
		return err
	}

	raw, err := cdp.evaluate(evalCtx, sessionID, js)
	if err != nil {
		slog.Warn("cdpcontrol eval failed", "target_id", session.info.TargetID, "error", err)
		// Reset session so a fresh attach happens on retry.
		session.mu.Lock()
		session.sessionID = ""
		session.mu.Unlock()

		if errors.Is(err, context.DeadlineExceeded) || errors.Is(evalCtx.Err(), context.DeadlineExceeded) {
			return newError(CodeEvalTimeout, "evaluation timed out", err)
		}
		return newError(CodeExecutionRefused, "page refused evaluation", err)
	}

	var env evalEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return newError(CodeEvalFailure, "invalid evaluation envelope", err)
	}
	if !env.OK {
		code := env.ErrorCode
		if code == "" {
			code = CodeEvalFailure
		}
		return newError(code, env.ErrorMessage, nil)
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return newError(CodeEvalFailure, "invalid evaluation data", err)
	}
	return nil
}

// ensureSession returns a CDP session ID for the target, attaching if needed.
func (c *Client) ensureSession(ctx context.Context, cdp *rawCDP, session *tabSession) (string, error) {
	session.mu.Lock()
	defer session.mu.Unlock()

	if session.sessionID != "" {
		return session.sessionID, nil
	}

	sid, err := cdp.attachToTarget(ctx, target.ID(session.info.TargetID))
	if err != nil {
		return "", newError(CodeExecutionRefused, "attach to target failed", err)
	}
	session.sessionID = sid
	slog.Debug("cdpcontrol session attached", "target_id", session.info.TargetID, "session_id", sid)
	return sid, nil
}

func (c *Client) resolveTab(ctx context.Context, tabID int64) (*tabSession, error) {
	if session, ok := c.lookupTab(tabID); ok {
		return session, nil
	}
	if err := c.refreshTabs(ctx); err != nil {
		return nil, err
	}
	if session, ok := c.lookupTab(tabID); ok {
		return session, nil
	}
	return nil, newError(CodeTabNotFound, fmt.Sprintf("tab not found: %d", tabID), nil)
}

func (c *Client) lookupTab(tabID int64) (*tabSession, bool) {
	targetID, ok := c.registry.Target(tabID)
	if !ok {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	session := c.tabs[targetID]
	return session, session != nil
}

func (c *Client) refreshTabs(ctx context.Context) error {
	if err := c.ensureConnected(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	err := c.syncTabsLocked(ctx)
	c.mu.Unlock()
	if err == nil {
		return nil
	}

	return newError(CodeCDPUnavailable, "failed to list targets", err)
}

func (c *Client) reconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked(ctx)
}

func (c *Client) syncTabsLocked(ctx context.Context) error {
	if c.cdp == nil {
		return newError(CodeCDPUnavailable, "CDP client not connected", nil)
	}

	targets, err := c.cdp.listTargets(ctx)
	if err != nil {
		return err
	}

	keep := make(map[target.ID]struct{})
	expected := make(map[target.ID]TabInfo)
	for _, t := range targets {
		if t.Type != "page" || !c.controllable(t.URL) {
			continue
		}
		keep[t.ID] = struct{}{}
		expected[t.ID] = TabInfo{
			Handle:   c.registry.Register(t.ID),
			TargetID: string(t.ID),
			URL:      t.URL,
			Title:    t.Title,
			Favicon:  t.FaviconURL,
		}
	}
	c.registry.Retain(keep)

	for targetID := range c.tabs {
		if _, ok := expected[targetID]; ok {
			continue
		}
		delete(c.tabs, targetID)
	}

	for targetID, info := range expected {
		if session := c.tabs[targetID]; session != nil {
			session.info = info
			continue
		}
		c.tabs[targetID] = &tabSession{info: info}
	}

	c.tabLocksMu.Lock()
	for handle := range c.tabLocks {
		if _, ok := c.registry.Target(handle); !ok {
			delete(c.tabLocks, handle)
		}
	}
	c.tabLocksMu.Unlock()

	slog.Debug("cdpcontrol tab sync", "targets", len(targets), "tabs", len(c.tabs), "handles", c.registry.Count())
	return nil
}

func (c *Client) controllable(url string) bool {
	lower := strings.ToLower(url)
	for _, scheme := range restrictedSchemes {
		if strings.HasPrefix(lower, scheme) {
			return false
		}
	}
	return c.filter == nil || c.filter.Match(url)
}

func (c *Client) ensureConnected(ctx context.Context) error {
	c.mu.Lock()
	connected := c.cdp != nil
	c.mu.Unlock()
	if connected {
		return nil
	}
	return c.reconnect(ctx)
}

func (c *Client) tabLock(tabID int64) *sync.Mutex {
	c.tabLocksMu.Lock()
	defer c.tabLocksMu.Unlock()
	m, ok := c.tabLocks[tabID]
	if !ok {
		m = &sync.Mutex{}
		c.tabLocks[tabID] = m
	}
	return m
}

func (c *Client) shouldRetry(err error) bool {
	var coded *CodedError
	if !errors.As(err, &coded) {
		return false
	}

	switch coded.Code {
	case CodeCDPUnavailable:
		return true
	case CodeExecutionRefused:
		if coded.Cause == nil {
			return false
		}
		cause := strings.ToLower(coded.Cause.Error())
		for _, hint := range transientHints {
			if strings.Contains(cause, hint) {
				return true
			}
		}
	}
	return false
}
