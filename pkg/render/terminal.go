package render

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	// Packages
	format "github.com/mutablelogic/go-transfer/pkg/format"
	progress "github.com/mutablelogic/go-transfer/pkg/progress"
	schema "github.com/mutablelogic/go-transfer/pkg/schema"
	progressbar "github.com/schollz/progressbar/v3"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// terminal draws one progress bar per stage
type terminal struct {
	sync.Mutex
	w     io.Writer
	bar   *progressbar.ProgressBar
	stage schema.Stage
	done  bool
}

////////////////////////////////////////////////////////////////////////////////
// GLOBALS

const (
	barWidth    = 40
	barThrottle = 100 * time.Millisecond
)

////////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

// Terminal returns a renderer which draws a progress bar for each stage of
// the transfer on w, followed by a summary line when the transfer ends.
func Terminal(w io.Writer) progress.Renderer {
	return &terminal{w: w}
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

func (t *terminal) Render(v progress.View) {
	t.Lock()
	defer t.Unlock()
	if t.done {
		return
	}

	// New bar for each stage
	if t.bar == nil || v.Stage != t.stage {
		if t.bar != nil {
			t.bar.Finish()
		}
		t.stage = v.Stage
		t.bar = progressbar.NewOptions(100,
			progressbar.OptionSetWriter(t.w),
			progressbar.OptionSetDescription(describe(v)),
			progressbar.OptionSetWidth(barWidth),
			progressbar.OptionThrottle(barThrottle),
			progressbar.OptionSetPredictTime(false),
			progressbar.OptionSetRenderBlankState(true),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionOnCompletion(func() {
				fmt.Fprintln(t.w)
			}),
		)
	}

	t.bar.Describe(describe(v))
	if !v.Terminal {
		t.bar.Set(int(v.Percent))
		return
	}

	// Summary
	t.done = true
	switch {
	case v.Unverified:
		t.bar.Exit()
		fmt.Fprintln(t.w)
		fmt.Fprintf(t.w, "unverified: %s\n", v.Message)
	case v.Status == schema.StatusCompleted:
		t.bar.Finish()
		fmt.Fprintf(t.w, "completed: %s in %s", v.TransferID, format.Bytes(v.BytesTransferred))
		if v.PeakSpeed > 0 {
			fmt.Fprintf(t.w, ", peak %s", format.Speed(v.PeakSpeed))
		}
		if v.Message != "" {
			fmt.Fprintf(t.w, " (%s)", v.Message)
		}
		fmt.Fprintln(t.w)
	default:
		t.bar.Exit()
		fmt.Fprintln(t.w)
		fmt.Fprintf(t.w, "failed: %s\n", v.Message)
	}
}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

// describe returns the bar description for a view, for example
// "Uploading 42.5% 1.2 MB/s ETA 12s"
func describe(v progress.View) string {
	var parts []string
	parts = append(parts, v.Label(), format.Percent(v.Percent))
	if !v.Terminal {
		parts = append(parts, v.SpeedString(), "ETA "+v.ETAString())
	}
	if v.Stalled {
		parts = append(parts, "(stalled)")
	}
	if v.Attempt > 0 {
		parts = append(parts, fmt.Sprintf("(reconnecting, attempt %d)", v.Attempt))
	}
	return strings.Join(parts, " ")
}
