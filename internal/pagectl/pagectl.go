// Package pagectl implements the Page Controller: the mapping from "the
// page" to a specific CDP execution context, navigation, and expression
// evaluation in the page or a selected sub-frame.
package pagectl

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/chromedp/cdproto"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/runtime"

	"github.com/cdpskill/cdpskill/internal/cdperrs"
)

// Executor is the subset of session.Session the controller needs: typed
// command dispatch plus raw event subscription.
type Executor interface {
	cdp.Executor
	On(method cdproto.MethodType) <-chan *cdproto.Message
	Off(method cdproto.MethodType, ch <-chan *cdproto.Message)
}

// FrameContext identifies one execution context within the target.
type FrameContext struct {
	ContextID    runtime.ExecutionContextID
	FrameID      cdp.FrameID
	URL          string
	CrossOrigin  bool
}

// Controller owns the current FrameContext for one attached target and
// tracks every other execution context observed via Runtime events.
type Controller struct {
	sess Executor
	log  *slog.Logger

	mu       sync.RWMutex
	main     FrameContext
	byFrame  map[cdp.FrameID]FrameContext
	selected *FrameContext // nil unless a step selected a sub-frame

	inflight   int
	idleSignal chan struct{}

	stopWatch context.CancelFunc
}

// New starts watching execution-context lifecycle events on sess.
func New(ctx context.Context, sess Executor, log *slog.Logger) *Controller {
	if log == nil {
		log = slog.Default()
	}
	c := &Controller{
		sess:    sess,
		log:     log,
		byFrame: make(map[cdp.FrameID]FrameContext),
	}
	watchCtx, cancel := context.WithCancel(ctx)
	c.stopWatch = cancel
	go c.watchContexts(watchCtx)
	return c
}

// Close stops the context-tracking goroutine.
func (c *Controller) Close() { c.stopWatch() }

func (c *Controller) watchContexts(ctx context.Context) {
	created := c.sess.On(cdproto.EventRuntimeExecutionContextCreated)
	destroyed := c.sess.On(cdproto.EventRuntimeExecutionContextDestroyed)
	cleared := c.sess.On(cdproto.EventRuntimeExecutionContextsCleared)
	defer c.sess.Off(cdproto.EventRuntimeExecutionContextCreated, created)
	defer c.sess.Off(cdproto.EventRuntimeExecutionContextDestroyed, destroyed)
	defer c.sess.Off(cdproto.EventRuntimeExecutionContextsCleared, cleared)

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-created:
			if !ok {
				return
			}
			c.handleCreated(msg)
		case msg, ok := <-destroyed:
			if !ok {
				return
			}
			c.handleDestroyed(msg)
		case _, ok := <-cleared:
			if !ok {
				return
			}
			c.handleCleared()
		}
	}
}

func (c *Controller) decode(msg *cdproto.Message) interface{} {
	ev, err := cdproto.UnmarshalMessage(msg)
	if err != nil {
		c.log.Debug("pagectl: unmarshal event", "method", string(msg.Method), "error", err)
		return nil
	}
	return ev
}

func (c *Controller) handleCreated(msg *cdproto.Message) {
	ev, ok := c.decode(msg).(*runtime.EventExecutionContextCreated)
	if !ok || ev.Context == nil {
		return
	}
	var aux struct {
		FrameID   cdp.FrameID `json:"frameId"`
		IsDefault bool        `json:"isDefault"`
	}
	if len(ev.Context.AuxData) > 0 {
		if err := json.Unmarshal(ev.Context.AuxData, &aux); err != nil {
			c.log.Warn("pagectl: decode auxData", "error", err)
		}
	}
	fc := FrameContext{ContextID: ev.Context.ID, FrameID: aux.FrameID, URL: ev.Context.Origin}

	c.mu.Lock()
	defer c.mu.Unlock()
	if aux.FrameID != "" {
		c.byFrame[aux.FrameID] = fc
	}
	if aux.IsDefault || c.main.ContextID == 0 {
		c.main = fc
	}
}

func (c *Controller) handleDestroyed(msg *cdproto.Message) {
	ev, ok := c.decode(msg).(*runtime.EventExecutionContextDestroyed)
	if !ok {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for fid, fc := range c.byFrame {
		if fc.ContextID == ev.ExecutionContextID {
			delete(c.byFrame, fid)
		}
	}
	if c.main.ContextID == ev.ExecutionContextID {
		c.main = FrameContext{}
	}
}

func (c *Controller) handleCleared() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byFrame = make(map[cdp.FrameID]FrameContext)
	c.main = FrameContext{}
	c.selected = nil
}

// Main returns the current main-frame execution context.
func (c *Controller) Main() FrameContext {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.main
}

// Invalidate clears all tracked contexts, called after issuing a
// navigation so stale ids can never be reused across a reload.
func (c *Controller) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byFrame = make(map[cdp.FrameID]FrameContext)
	c.main = FrameContext{}
	c.selected = nil
}

// FrameSelector identifies a sub-frame by CSS selector, numeric index,
// name, or the literal "top" for the main frame.
type FrameSelector struct {
	Selector string
	Index    *int
	Name     string
	Top      bool
}

// SelectFrame resolves a FrameSelector to a FrameContext for subsequent
// Evaluate calls in this step. Only "top" (or an empty selector) is
// resolved here: it clears the selection and returns the main frame. A
// selector, index or name is not looked up; SelectFrame returns the frame
// already pinned with SetSelected, or an error if none is.
func (c *Controller) SelectFrame(sel FrameSelector) (FrameContext, error) {
	if sel.Top || (sel.Selector == "" && sel.Index == nil && sel.Name == "") {
		c.mu.Lock()
		c.selected = nil
		c.mu.Unlock()
		return c.Main(), nil
	}
	c.mu.RLock()
	fc := c.selected
	c.mu.RUnlock()
	if fc == nil {
		return FrameContext{}, cdperrs.New(cdperrs.KindNavigation, "frame not yet resolved; call SetSelected first")
	}
	return *fc, nil
}

// SetSelected pins the active sub-frame context, used once the resolver has
// found the right iframe's execution context id.
func (c *Controller) SetSelected(fc FrameContext) {
	c.mu.Lock()
	c.selected = &fc
	c.mu.Unlock()
}

// ClearSelected resets frame targeting to the main frame.
func (c *Controller) ClearSelected() {
	c.mu.Lock()
	c.selected = nil
	c.mu.Unlock()
}

// Active returns whichever frame context is currently targeted: the
// selected sub-frame if one was set, else the main frame.
func (c *Controller) Active() FrameContext {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.selected != nil {
		return *c.selected
	}
	return c.main
}

// On subscribes to raw CDP events of the given method on the underlying
// session, for callers (internal/actions) that need live event streams
// such as console messages rather than request/response calls.
func (c *Controller) On(method cdproto.MethodType) <-chan *cdproto.Message {
	return c.sess.On(method)
}

// Off unsubscribes a channel previously returned by On.
func (c *Controller) Off(method cdproto.MethodType, ch <-chan *cdproto.Message) {
	c.sess.Off(method, ch)
}

// ExecutorContext returns ctx carrying the underlying session as a
// cdp.Executor, for callers (internal/actions) that need to invoke
// cdproto command builders directly, e.g. the Input domain.
func (c *Controller) ExecutorContext(ctx context.Context) context.Context {
	return cdp.WithExecutor(ctx, c.sess)
}

// Evaluate runs expression in the currently active frame context.
func (c *Controller) Evaluate(ctx context.Context, expression string, returnByValue bool) (*runtime.RemoteObject, *runtime.ExceptionDetails, error) {
	ctx = cdp.WithExecutor(ctx, c.sess)
	p := runtime.Evaluate(expression)
	if returnByValue {
		p = p.WithReturnByValue(true)
	}
	fc := c.Active()
	if fc.ContextID != 0 {
		p = p.WithContextID(fc.ContextID)
	}
	p = p.WithAwaitPromise(true)
	return p.Do(ctx)
}

// CallFunctionOn invokes a function declaration against objectID in the
// active frame context.
func (c *Controller) CallFunctionOn(ctx context.Context, decl string, objectID runtime.RemoteObjectID, args []*runtime.CallArgument, returnByValue bool) (*runtime.RemoteObject, *runtime.ExceptionDetails, error) {
	ctx = cdp.WithExecutor(ctx, c.sess)
	p := runtime.CallFunctionOn(decl).WithObjectID(objectID).WithArguments(args)
	if returnByValue {
		p = p.WithReturnByValue(true)
	}
	return p.Do(ctx)
}

// ReleaseObject releases a remote object id. Every allocator of an
// objectId must call this on every exit path, per the resource model.
func (c *Controller) ReleaseObject(ctx context.Context, id runtime.RemoteObjectID) error {
	ctx = cdp.WithExecutor(ctx, c.sess)
	return runtime.ReleaseObject(id).Do(ctx)
}
