package headless

import (
	"context"
	"time"

	"github.com/chromedp/chromedp"
)

// session scopes one browser process to one attempt. Close is safe to call
// more than once and releases the tab, the browser, and the allocator.
type session struct {
	ctx     context.Context
	cancels []context.CancelFunc
}

func openSession(parent context.Context, timeout time.Duration, opts []chromedp.ExecAllocatorOption) *session {
	allocCtx, allocCancel := chromedp.NewExecAllocator(parent, opts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)
	runCtx, runCancel := context.WithTimeout(tabCtx, timeout)
	return &session{
		ctx:     runCtx,
		cancels: []context.CancelFunc{runCancel, tabCancel, allocCancel},
	}
}

// Close cancels innermost first so chromedp can close the target before the
// process is killed.
func (s *session) Close() {
	for _, cancel := range s.cancels {
		cancel()
	}
}
