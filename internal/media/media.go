// Package media holds the tab and playback types shared by the CDP layer, the
// reconciler and the presentation surfaces.
package media

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// TabHandle identifies an audible browser tab.
type TabHandle struct {
	ID      int64  `json:"id"`
	Title   string `json:"title"`
	URL     string `json:"url,omitempty"`
	Favicon string `json:"favicon,omitempty"`
}

// Primitive names a page-context media function.
type Primitive string

const (
	PrimitiveToggle    Primitive = "toggle"
	PrimitiveGetState  Primitive = "getState"
	PrimitiveSeek      Primitive = "seek"
	PrimitiveSetVolume Primitive = "setVolume"
	PrimitiveProbe     Primitive = "probe"
)

// Valid reports whether p is a known primitive.
func (p Primitive) Valid() bool {
	switch p {
	case PrimitiveToggle, PrimitiveGetState, PrimitiveSeek, PrimitiveSetVolume, PrimitiveProbe:
		return true
	}
	return false
}

// Call is a primitive invocation as it crosses into the page context. Args are
// positional and must be JSON-serializable.
type Call struct {
	Primitive Primitive `json:"primitive"`
	Args      []any     `json:"args,omitempty"`
}

func (c Call) String() string {
	if len(c.Args) == 0 {
		return string(c.Primitive) + "()"
	}
	b, err := json.Marshal(c.Args)
	if err != nil {
		return string(c.Primitive) + "(?)"
	}
	return fmt.Sprintf("%s(%s)", c.Primitive, strings.TrimSuffix(strings.TrimPrefix(string(b), "["), "]"))
}

// Toggle pauses every media element when playing is true, otherwise resumes them.
func Toggle(playing bool) Call {
	return Call{Primitive: PrimitiveToggle, Args: []any{playing}}
}

// GetState reads position, duration and volume of the first media element.
func GetState() Call { return Call{Primitive: PrimitiveGetState} }

// Seek moves the first media element to t seconds.
func Seek(t float64) Call { return Call{Primitive: PrimitiveSeek, Args: []any{t}} }

// SetVolume sets the volume of every media element.
func SetVolume(v float64) Call { return Call{Primitive: PrimitiveSetVolume, Args: []any{v}} }

// Probe reports whether any media element on the page is producing sound.
func Probe() Call { return Call{Primitive: PrimitiveProbe} }

// State is the getState read-back. Duration is nil when the page reports NaN or
// Infinity (no metadata yet, live stream).
type State struct {
	CurrentTime float64  `json:"currentTime"`
	Duration    *float64 `json:"duration"`
	Volume      float64  `json:"volume"`
	Found       bool     `json:"found"`
}

// DefaultState is what getState yields on a page with no media elements.
func DefaultState() State {
	zero := 0.0
	return State{CurrentTime: 0, Duration: &zero, Volume: 1.0}
}

// ProbeResult is the probe read-back.
type ProbeResult struct {
	Audible bool `json:"audible"`
	Count   int  `json:"count"`
}

// Seconds returns a usable duration, mapping unknown values to 0.
func Seconds(d *float64) float64 {
	if d == nil || math.IsNaN(*d) || math.IsInf(*d, 0) || *d < 0 {
		return 0
	}
	return *d
}

// FormatClock renders seconds as MM:SS. Minutes are not wrapped at 60.
func FormatClock(seconds float64) string {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds < 0 {
		seconds = 0
	}
	total := int64(seconds)
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}
