package assemble

import (
	"fmt"

	"github.com/edgefleet/rollout-agent/internal/rollout/flashio"
)

// ProgressFunc is invoked whenever the download's integer completion
// percentage advances. It is never called twice with the same value.
type ProgressFunc func(percent int)

// FlashAssembler tees a chunked artifact download into a flashio.Writer,
// reporting progress only when the floor percentage advances and
// signalling completion through Done once the final chunk is written.
type FlashAssembler struct {
	w        flashio.Writer
	total    int64
	lastPct  int
	onProg   ProgressFunc
	done     chan struct{}
	finished bool
}

// NewFlashAssembler creates an assembler that writes into w. total is the
// artifact's announced size, used only to compute progress percentage; a
// total <= 0 disables progress reporting.
func NewFlashAssembler(w flashio.Writer, total int64, onProg ProgressFunc) *FlashAssembler {
	return &FlashAssembler{
		w:       w,
		total:   total,
		lastPct: -1,
		onProg:  onProg,
		done:    make(chan struct{}),
	}
}

// Handle implements transport.ChunkHandler's signature directly so it can
// be passed straight to Session.Request. contentLength is unused here;
// the artifact's expected size comes from the deployment descriptor, not
// the download response's headers.
func (a *FlashAssembler) Handle(chunk []byte, final bool, contentLength int64) error {
	if err := a.w.Append(chunk, final); err != nil {
		return fmt.Errorf("assemble: flash write: %w", err)
	}

	if a.total > 0 && a.onProg != nil {
		pct := int(a.w.BytesWritten() * 100 / a.total)
		if pct > a.lastPct {
			a.lastPct = pct
			a.onProg(pct)
		}
	}

	if final {
		a.finished = true
		close(a.done)
	}
	return nil
}

// BytesWritten reports how much of the artifact has reached flashio so far.
func (a *FlashAssembler) BytesWritten() int64 {
	return a.w.BytesWritten()
}

// Done returns a channel closed once the final chunk has been handled,
// signalling download completion to the orchestrator.
func (a *FlashAssembler) Done() <-chan struct{} {
	return a.done
}
