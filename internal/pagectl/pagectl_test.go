package pagectl

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/chromedp/cdproto"
	"github.com/chromedp/cdproto/runtime"
	"github.com/mailru/easyjson"
)

// fakeExecutor is a minimal Executor: Execute always succeeds with an empty
// result, and On/Off manage per-method subscriber channels the test feeds
// directly via publish.
type fakeExecutor struct {
	mu   sync.Mutex
	subs map[cdproto.MethodType][]chan *cdproto.Message
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{subs: make(map[cdproto.MethodType][]chan *cdproto.Message)}
}

func (f *fakeExecutor) Execute(ctx context.Context, method string, params easyjson.Marshaler, res easyjson.Unmarshaler) error {
	return nil
}

func (f *fakeExecutor) On(method cdproto.MethodType) <-chan *cdproto.Message {
	ch := make(chan *cdproto.Message, 16)
	f.mu.Lock()
	f.subs[method] = append(f.subs[method], ch)
	f.mu.Unlock()
	return ch
}

func (f *fakeExecutor) Off(method cdproto.MethodType, ch <-chan *cdproto.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	subs := f.subs[method]
	for i, c := range subs {
		if c == ch {
			f.subs[method] = append(subs[:i], subs[i+1:]...)
			close(c)
			return
		}
	}
}

func (f *fakeExecutor) publish(method cdproto.MethodType, params interface{}) {
	b, _ := json.Marshal(params)
	f.mu.Lock()
	subs := append([]chan *cdproto.Message(nil), f.subs[method]...)
	f.mu.Unlock()
	msg := &cdproto.Message{Method: method, Params: b}
	for _, ch := range subs {
		ch <- msg
	}
}

func waitUntilTrue(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition never became true")
}

func TestController_TracksMainExecutionContext(t *testing.T) {
	fe := newFakeExecutor()
	c := New(context.Background(), fe, nil)
	defer c.Close()

	fe.publish(cdproto.EventRuntimeExecutionContextCreated, &runtime.EventExecutionContextCreated{
		Context: &runtime.ExecutionContextDescription{
			ID:      7,
			Origin:  "https://example.com",
			AuxData: json.RawMessage(`{"frameId":"F1","isDefault":true}`),
		},
	})

	waitUntilTrue(t, func() bool { return c.Main().ContextID == 7 })
	if c.Main().FrameID != "F1" {
		t.Fatalf("expected frame id F1, got %q", c.Main().FrameID)
	}
}

func TestController_DestroyedContextClearsMain(t *testing.T) {
	fe := newFakeExecutor()
	c := New(context.Background(), fe, nil)
	defer c.Close()

	fe.publish(cdproto.EventRuntimeExecutionContextCreated, &runtime.EventExecutionContextCreated{
		Context: &runtime.ExecutionContextDescription{ID: 3, AuxData: json.RawMessage(`{"frameId":"F1","isDefault":true}`)},
	})
	waitUntilTrue(t, func() bool { return c.Main().ContextID == 3 })

	fe.publish(cdproto.EventRuntimeExecutionContextDestroyed, &runtime.EventExecutionContextDestroyed{ExecutionContextID: 3})
	waitUntilTrue(t, func() bool { return c.Main().ContextID == 0 })
}

func TestController_SelectedFrameOverridesMain(t *testing.T) {
	fe := newFakeExecutor()
	c := New(context.Background(), fe, nil)
	defer c.Close()

	c.SetSelected(FrameContext{ContextID: 99, FrameID: "sub"})
	if got := c.Active().ContextID; got != 99 {
		t.Fatalf("expected active context 99, got %d", got)
	}
	c.ClearSelected()
	if got := c.Active().ContextID; got != 0 {
		t.Fatalf("expected active context to fall back to zero-value main, got %d", got)
	}
}

func TestController_WaitForEventTimesOutWithContext(t *testing.T) {
	fe := newFakeExecutor()
	c := New(context.Background(), fe, nil)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	ch := make(chan *cdproto.Message)
	if err := c.waitForEvent(ctx, ch); err == nil {
		t.Fatal("expected error from cancelled context")
	}
}
