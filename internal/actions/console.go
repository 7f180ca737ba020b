package actions

import (
	"fmt"
	"sync"

	"github.com/chromedp/cdproto"
	"github.com/chromedp/cdproto/runtime"

	"github.com/cdpskill/cdpskill/internal/pagectl"
)

// ConsoleWatcher subscribes to Runtime.consoleAPICalled at attach time and
// buffers messages until a "console" step drains them, since CDP delivers
// console output as events rather than a request/response pair.
type ConsoleWatcher struct {
	ctl *pagectl.Controller
	ch  <-chan *cdproto.Message

	mu  sync.Mutex
	buf []ConsoleMessage

	done chan struct{}
}

// NewConsoleWatcher starts buffering console messages for ctl's session.
// Call Close when the controller is torn down.
func NewConsoleWatcher(ctl *pagectl.Controller) *ConsoleWatcher {
	w := &ConsoleWatcher{
		ctl:  ctl,
		ch:   ctl.On(cdproto.EventRuntimeConsoleAPICalled),
		done: make(chan struct{}),
	}
	go w.watch()
	return w
}

func (w *ConsoleWatcher) watch() {
	for {
		select {
		case msg, ok := <-w.ch:
			if !ok {
				return
			}
			ev, err := cdproto.UnmarshalMessage(msg)
			if err != nil {
				continue
			}
			call, ok := ev.(*runtime.EventConsoleAPICalled)
			if !ok {
				continue
			}
			w.mu.Lock()
			w.buf = append(w.buf, ConsoleMessage{Type: string(call.Type), Text: formatConsoleArgs(call.Args)})
			w.mu.Unlock()
		case <-w.done:
			return
		}
	}
}

func formatConsoleArgs(args []*runtime.RemoteObject) string {
	s := ""
	for i, a := range args {
		if i > 0 {
			s += " "
		}
		if len(a.Value) > 0 {
			s += string(a.Value)
		} else {
			s += fmt.Sprintf("%s", a.Description)
		}
	}
	return s
}

// Drain returns every message buffered since the last call and clears the
// buffer (the "console" step's result).
func (w *ConsoleWatcher) Drain() []ConsoleMessage {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := w.buf
	w.buf = nil
	if out == nil {
		return []ConsoleMessage{}
	}
	return out
}

// Close stops the watcher goroutine and unsubscribes from the session.
func (w *ConsoleWatcher) Close() {
	close(w.done)
	w.ctl.Off(cdproto.EventRuntimeConsoleAPICalled, w.ch)
}
