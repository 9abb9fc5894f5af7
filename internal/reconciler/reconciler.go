// Package reconciler owns the per-tab playback view. It discovers audible tabs
// through a TabDirectory, drives media primitives through a PageExecutor and
// merges every confirmed result into the view as a field-scoped patch.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/dgnsrekt/tabaudio/internal/cdpcontrol"
	"github.com/dgnsrekt/tabaudio/internal/media"
	"golang.org/x/sync/errgroup"
)

// ErrClosed is returned by operations on a closed Reconciler.
var ErrClosed = errors.New("reconciler closed")

// TabDirectory lists the tabs that are currently producing sound.
type TabDirectory interface {
	ListAudibleTabs(ctx context.Context) ([]media.TabHandle, error)
}

// PageExecutor runs a media primitive inside a tab's page context and decodes
// the primitive's result into out (nil for fire-and-forget calls).
type PageExecutor interface {
	RunInTab(ctx context.Context, tabID int64, call media.Call, out any) error
}

// TabView is the locally known playback state of one tab.
type TabView struct {
	media.TabHandle
	Playing     bool     `json:"playing"`
	Volume      float64  `json:"volume"`
	CurrentTime *float64 `json:"currentTime,omitempty"`
	Duration    *float64 `json:"duration,omitempty"`
	StateKnown  bool     `json:"stateKnown"`
}

// ChangeKind tells listeners whether the whole collection or one tab changed.
type ChangeKind string

const (
	ChangeSnapshot ChangeKind = "tabs"
	ChangeTab      ChangeKind = "tab"
)

// Change is delivered to the listener after every applied merge. Rev grows
// with every change; a listener never sees a tab change older than one it has
// already seen for that tab.
type Change struct {
	Kind ChangeKind
	Rev  uint64
	Tabs []TabView
}

// record carries the view plus the sequence number of the request that last
// wrote each field group.
type record struct {
	view       TabView
	playingSeq uint64
	timeSeq    uint64
	volumeSeq  uint64
	volumeSet  uint64 // newest confirmed setVolume
}

type Reconciler struct {
	dir         TabDirectory
	exec        PageExecutor
	concurrency int

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	closed   bool
	gen      uint64
	seq      uint64
	order    []int64
	tabs     map[int64]*record
	rev      uint64
	listener func(Change)

	// notifyMu serializes listener calls; delivered and snapshotRev are guarded by it.
	notifyMu    sync.Mutex
	delivered   map[int64]uint64
	snapshotRev uint64

	hydrating sync.WaitGroup
}

// New creates a reconciler. concurrency bounds the getState fan-out issued
// after each discovery snapshot.
func New(dir TabDirectory, exec PageExecutor, concurrency int) *Reconciler {
	if concurrency < 1 {
		concurrency = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Reconciler{
		dir:         dir,
		exec:        exec,
		concurrency: concurrency,
		ctx:         ctx,
		cancel:      cancel,
		tabs:        make(map[int64]*record),
		delivered:   make(map[int64]uint64),
	}
}

// SetListener installs a change callback. It runs outside the state lock but
// calls are serialized, so fn may read the reconciler and must not mutate it.
func (r *Reconciler) SetListener(fn func(Change)) {
	r.mu.Lock()
	r.listener = fn
	r.mu.Unlock()
}

// Refresh replaces the collection with a fresh directory snapshot. Every tab
// starts as playing at full volume; getState is then issued for each tab in
// the background. On directory failure the previous view is kept.
func (r *Reconciler) Refresh(ctx context.Context) ([]TabView, error) {
	if r.isClosed() {
		return nil, ErrClosed
	}
	tabs, err := r.dir.ListAudibleTabs(ctx)
	if err != nil {
		slog.Warn("reconciler refresh failed", "error", err)
		return nil, fmt.Errorf("refresh tabs: %w", err)
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrClosed
	}
	r.gen++
	gen := r.gen
	r.order = r.order[:0]
	r.tabs = make(map[int64]*record, len(tabs))
	for _, tab := range tabs {
		if _, dup := r.tabs[tab.ID]; dup {
			continue
		}
		r.order = append(r.order, tab.ID)
		r.tabs[tab.ID] = &record{view: TabView{TabHandle: tab, Playing: true, Volume: 1.0}}
	}
	snapshot := r.snapshotLocked()
	r.rev++
	rev := r.rev
	ids := append([]int64(nil), r.order...)
	r.hydrating.Add(1)
	r.mu.Unlock()

	slog.Debug("reconciler snapshot", "tabs", len(snapshot), "generation", gen)
	r.notify(Change{Kind: ChangeSnapshot, Rev: rev, Tabs: snapshot})
	go r.hydrate(gen, ids)
	return snapshot, nil
}

// hydrate issues getState for each tab of one generation with bounded
// concurrency. Failures leave the tab in its discovered state.
func (r *Reconciler) hydrate(gen uint64, ids []int64) {
	defer r.hydrating.Done()
	g := new(errgroup.Group)
	g.SetLimit(r.concurrency)
	for _, id := range ids {
		g.Go(func() error {
			if r.ctx.Err() != nil {
				return nil
			}
			if _, err := r.readState(r.ctx, gen, id); err != nil {
				slog.Debug("reconciler hydrate failed", "tab_id", id, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// Toggle flips playback for a tab. playing changes only after the executor
// confirms the toggle.
func (r *Reconciler) Toggle(ctx context.Context, id int64) (TabView, error) {
	gen, seq, view, err := r.begin(id)
	if err != nil {
		return TabView{}, err
	}
	issued := view.Playing

	if err := r.exec.RunInTab(ctx, id, media.Toggle(issued), nil); err != nil {
		slog.Warn("reconciler toggle failed", "tab_id", id, "error", err)
		return TabView{}, fmt.Errorf("toggle tab %d: %w", id, err)
	}
	return r.apply(gen, id, func(rec *record) bool {
		if seq <= rec.playingSeq {
			return false
		}
		rec.view.Playing = !issued
		rec.playingSeq = seq
		return true
	})
}

// SetVolume applies v to every media element of the tab. The requested value
// becomes the view's volume once confirmed.
func (r *Reconciler) SetVolume(ctx context.Context, id int64, v float64) (TabView, error) {
	if math.IsNaN(v) || v < 0 || v > 1 {
		return TabView{}, cdpcontrol.NewError(cdpcontrol.CodeValidation, fmt.Sprintf("volume must be within [0, 1], got %v", v), nil)
	}
	gen, seq, _, err := r.begin(id)
	if err != nil {
		return TabView{}, err
	}

	if err := r.exec.RunInTab(ctx, id, media.SetVolume(v), nil); err != nil {
		slog.Warn("reconciler set volume failed", "tab_id", id, "volume", v, "error", err)
		return TabView{}, fmt.Errorf("set volume on tab %d: %w", id, err)
	}
	return r.apply(gen, id, func(rec *record) bool {
		if seq <= rec.volumeSet {
			return false
		}
		rec.view.Volume = v
		rec.volumeSet = seq
		// Any getState issued before this confirmation may have read the old
		// volume, so none of them may write it.
		rec.volumeSeq = r.seq
		return true
	})
}

// Seek moves the first media element's playhead, then reads state back since
// the page may clamp the requested time.
func (r *Reconciler) Seek(ctx context.Context, id int64, t float64) (TabView, error) {
	if math.IsNaN(t) || math.IsInf(t, 0) || t < 0 {
		return TabView{}, cdpcontrol.NewError(cdpcontrol.CodeValidation, fmt.Sprintf("seek time must be a non-negative number, got %v", t), nil)
	}
	gen, _, _, err := r.begin(id)
	if err != nil {
		return TabView{}, err
	}

	if err := r.exec.RunInTab(ctx, id, media.Seek(t), nil); err != nil {
		slog.Warn("reconciler seek failed", "tab_id", id, "time", t, "error", err)
		return TabView{}, fmt.Errorf("seek tab %d: %w", id, err)
	}
	return r.readState(ctx, gen, id)
}

// SyncState reads the tab's playhead, duration and volume back into the view.
func (r *Reconciler) SyncState(ctx context.Context, id int64) (TabView, error) {
	gen, _, _, err := r.begin(id)
	if err != nil {
		return TabView{}, err
	}
	return r.readState(ctx, gen, id)
}

// readState issues getState and merges time, duration and volume. It never
// writes playing.
func (r *Reconciler) readState(ctx context.Context, gen uint64, id int64) (TabView, error) {
	seq := r.nextSeq()
	var st media.State
	if err := r.exec.RunInTab(ctx, id, media.GetState(), &st); err != nil {
		return TabView{}, fmt.Errorf("read state of tab %d: %w", id, err)
	}
	return r.apply(gen, id, func(rec *record) bool {
		changed := false
		if seq > rec.timeSeq {
			ct := media.Seconds(&st.CurrentTime)
			rec.view.CurrentTime = &ct
			rec.view.Duration = finiteOrNil(st.Duration)
			rec.view.StateKnown = true
			rec.timeSeq = seq
			changed = true
		}
		if seq > rec.volumeSeq {
			rec.view.Volume = clampVolume(st.Volume)
			rec.volumeSeq = seq
			changed = true
		}
		return changed
	})
}

// Snapshot returns a copy of every view in discovery order.
func (r *Reconciler) Snapshot() []TabView {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

// Get returns a copy of one view.
func (r *Reconciler) Get(id int64) (TabView, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.tabs[id]
	if !ok {
		return TabView{}, false
	}
	return copyView(rec.view), true
}

// Wait blocks until every background getState issued by Refresh has settled.
func (r *Reconciler) Wait() {
	r.hydrating.Wait()
}

// Close cancels background work. Results that arrive afterwards are dropped.
func (r *Reconciler) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.gen++
	r.mu.Unlock()
	r.cancel()
}

// begin validates that id is held and stamps a new request.
func (r *Reconciler) begin(id int64) (gen, seq uint64, view TabView, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0, 0, TabView{}, ErrClosed
	}
	rec, ok := r.tabs[id]
	if !ok {
		return 0, 0, TabView{}, cdpcontrol.NewError(cdpcontrol.CodeTabNotFound, fmt.Sprintf("tab %d is not in the current view", id), nil)
	}
	r.seq++
	return r.gen, r.seq, rec.view, nil
}

func (r *Reconciler) nextSeq() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	return r.seq
}

// apply runs patch against the tab's record in one critical section. A result
// from an older generation is not merged: the caller gets the tab's current
// view if the new snapshot still holds it, TAB_NOT_FOUND otherwise.
func (r *Reconciler) apply(gen uint64, id int64, patch func(*record) bool) (TabView, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return TabView{}, ErrClosed
	}
	rec, ok := r.tabs[id]
	if !ok {
		r.mu.Unlock()
		slog.Debug("reconciler dropped result for departed tab", "tab_id", id, "generation", gen)
		return TabView{}, cdpcontrol.NewError(cdpcontrol.CodeTabNotFound, fmt.Sprintf("tab %d left the view", id), nil)
	}
	if gen != r.gen {
		view := copyView(rec.view)
		r.mu.Unlock()
		slog.Debug("reconciler result superseded by refresh", "tab_id", id, "generation", gen)
		return view, nil
	}
	changed := patch(rec)
	view := copyView(rec.view)
	var rev uint64
	if changed {
		r.rev++
		rev = r.rev
	}
	r.mu.Unlock()

	if changed {
		r.notify(Change{Kind: ChangeTab, Rev: rev, Tabs: []TabView{view}})
	}
	return view, nil
}

// notify delivers c unless the listener has already seen a newer change for
// the same tab, or a newer snapshot.
func (r *Reconciler) notify(c Change) {
	r.mu.Lock()
	fn := r.listener
	r.mu.Unlock()
	if fn == nil {
		return
	}

	r.notifyMu.Lock()
	defer r.notifyMu.Unlock()
	if c.Rev < r.snapshotRev {
		return
	}
	switch c.Kind {
	case ChangeSnapshot:
		r.snapshotRev = c.Rev
		clear(r.delivered)
	case ChangeTab:
		for _, v := range c.Tabs {
			if c.Rev < r.delivered[v.ID] {
				slog.Debug("reconciler skipped out-of-order change", "tab_id", v.ID, "rev", c.Rev)
				return
			}
		}
		for _, v := range c.Tabs {
			r.delivered[v.ID] = c.Rev
		}
	}
	fn(c)
}

func (r *Reconciler) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func (r *Reconciler) snapshotLocked() []TabView {
	out := make([]TabView, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, copyView(r.tabs[id].view))
	}
	return out
}

func copyView(v TabView) TabView {
	if v.CurrentTime != nil {
		ct := *v.CurrentTime
		v.CurrentTime = &ct
	}
	if v.Duration != nil {
		d := *v.Duration
		v.Duration = &d
	}
	return v
}

func finiteOrNil(v *float64) *float64 {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return nil
	}
	d := *v
	return &d
}

func clampVolume(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 1
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
