package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"

	cdpruntime "github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// eventPump drains target events for the lifetime of a connection. The
// chromedp listener only enqueues; the goroutine does the work, so a slow
// consumer never stalls the protocol reader.
type eventPump struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func startEventPump(tabCtx context.Context, console *consoleBuffer, logger *zap.Logger) *eventPump {
	ctx, cancel := context.WithCancel(tabCtx)
	events := make(chan any, 64)
	chromedp.ListenTarget(ctx, func(ev any) {
		switch ev.(type) {
		case *cdpruntime.EventConsoleAPICalled, *cdpruntime.EventExceptionThrown:
			select {
			case events <- ev:
			default: // drop under pressure
			}
		}
	})

	p := &eventPump{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(p.done)
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-events:
				switch e := ev.(type) {
				case *cdpruntime.EventConsoleAPICalled:
					console.add(formatConsole(e))
				case *cdpruntime.EventExceptionThrown:
					if e.ExceptionDetails != nil {
						line := "[exception] " + e.ExceptionDetails.Text
						console.add(line)
						logger.Debug("Page exception.", zap.String("detail", line))
					}
				}
			}
		}
	}()
	return p
}

func (p *eventPump) stop() {
	p.cancel()
	<-p.done
}

func formatConsole(e *cdpruntime.EventConsoleAPICalled) string {
	parts := make([]string, 0, len(e.Args))
	for _, arg := range e.Args {
		switch {
		case len(arg.Value) > 0:
			parts = append(parts, strings.Trim(string(arg.Value), `"`))
		case arg.Description != "":
			parts = append(parts, arg.Description)
		default:
			parts = append(parts, string(arg.Type))
		}
	}
	return fmt.Sprintf("[%s] %s", e.Type, strings.Join(parts, " "))
}

// consoleBuffer keeps the most recent console lines.
type consoleBuffer struct {
	mu    sync.Mutex
	lines []string
	max   int
}

func newConsoleBuffer(max int) *consoleBuffer {
	return &consoleBuffer{max: max}
}

func (b *consoleBuffer) add(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lines = append(b.lines, line)
	if over := len(b.lines) - b.max; over > 0 {
		b.lines = append(b.lines[:0:0], b.lines[over:]...)
	}
}

func (b *consoleBuffer) snapshot() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string{}, b.lines...)
}
