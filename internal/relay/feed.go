package relay

import (
	"log/slog"

	"github.com/dgnsrekt/tabaudio/internal/reconciler"
)

// Feed returns a reconciler listener that publishes full snapshots as "tabs"
// events and single-tab patches as "tab" events.
func Feed(b *Broker) func(reconciler.Change) {
	return func(c reconciler.Change) {
		var err error
		switch c.Kind {
		case reconciler.ChangeSnapshot:
			err = b.PublishJSON(string(c.Kind), c.Tabs)
		case reconciler.ChangeTab:
			for _, v := range c.Tabs {
				if err = b.PublishJSON(string(c.Kind), v); err != nil {
					break
				}
			}
		}
		if err != nil {
			slog.Warn("relay feed publish failed", "kind", c.Kind, "error", err)
		}
	}
}
