package actions

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/chromedp/cdproto"
	"github.com/chromedp/cdproto/runtime"
	"github.com/mailru/easyjson"

	"github.com/cdpskill/cdpskill/internal/pagectl"
	"github.com/cdpskill/cdpskill/internal/resolver"
)

// scriptedExecutor is a pagectl.Executor whose CDP replies are supplied by
// a per-test handler keyed on method name, letting click/fill/keyboard
// tests drive the whole call sequence without a real browser.
type scriptedExecutor struct {
	mu      sync.Mutex
	handle  func(method string, params []byte) (result []byte, err error)
	nCalls  int
	methods []string
	subs    map[cdproto.MethodType][]chan *cdproto.Message
}

func (s *scriptedExecutor) Execute(ctx context.Context, method string, params easyjson.Marshaler, res easyjson.Unmarshaler) error {
	s.mu.Lock()
	s.nCalls++
	s.methods = append(s.methods, method)
	s.mu.Unlock()

	var raw []byte
	if params != nil {
		raw, _ = easyjson.Marshal(params)
	}
	result, err := s.handle(method, raw)
	if err != nil {
		return err
	}
	if res != nil && result != nil {
		return easyjson.Unmarshal(result, res)
	}
	return nil
}

func (s *scriptedExecutor) On(method cdproto.MethodType) <-chan *cdproto.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subs == nil {
		s.subs = make(map[cdproto.MethodType][]chan *cdproto.Message)
	}
	ch := make(chan *cdproto.Message, 16)
	s.subs[method] = append(s.subs[method], ch)
	return ch
}

func (s *scriptedExecutor) Off(method cdproto.MethodType, ch <-chan *cdproto.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	subs := s.subs[method]
	for i, c := range subs {
		if c == ch {
			s.subs[method] = append(subs[:i], subs[i+1:]...)
			close(c)
			return
		}
	}
}

// publish delivers an event to every current subscriber of method, mirroring
// fakeExecutor.publish in internal/pagectl's test suite.
func (s *scriptedExecutor) publish(method cdproto.MethodType, params interface{}) {
	b, _ := json.Marshal(params)
	s.mu.Lock()
	subs := append([]chan *cdproto.Message(nil), s.subs[method]...)
	s.mu.Unlock()
	msg := &cdproto.Message{Method: method, Params: b}
	for _, ch := range subs {
		ch <- msg
	}
}

// newTestController builds a pagectl.Controller backed by a scriptedExecutor.
// No frame context is populated: until a Runtime.executionContextCreated
// event is published, Evaluate runs without a context id.
func newTestController(t *testing.T, handle func(method string, params []byte) (result []byte, err error)) (*pagectl.Controller, *scriptedExecutor) {
	t.Helper()
	se := &scriptedExecutor{handle: handle}
	ctl := pagectl.New(context.Background(), se, nil)
	t.Cleanup(ctl.Close)
	return ctl, se
}

// evaluateReturns builds the raw JSON an Execute handler returns for a
// Runtime.evaluate/Runtime.callFunctionOn call whose result is a JS value.
func evaluateReturns(value interface{}, objectID runtime.RemoteObjectID) []byte {
	v, _ := json.Marshal(value)
	obj := runtime.RemoteObject{Type: "object", ObjectID: objectID}
	if value != nil {
		obj.Value = v
	}
	b, _ := json.Marshal(struct {
		Result *runtime.RemoteObject `json:"result"`
	}{Result: &obj})
	return b
}

// quotedJSON double-encodes v the way the in-page scripts do when they
// return JSON.stringify(...) from an Evaluate call with returnByValue.
func quotedJSON(v interface{}) interface{} {
	b, _ := json.Marshal(v)
	return string(b)
}

// boundEvaluator and newTestResolver build a resolver.Resolver whose Evaluate
// calls are served by ctl itself, bound to context.Background(), mirroring
// how internal/engine's boundEvaluator binds a request-scoped context.
type boundEvaluator struct {
	ctx context.Context
	ctl *pagectl.Controller
}

func (b boundEvaluator) Evaluate(expression string, returnByValue bool) (*runtime.RemoteObject, *runtime.ExceptionDetails, error) {
	return b.ctl.Evaluate(b.ctx, expression, returnByValue)
}

func newTestResolver(ctl *pagectl.Controller) *resolver.Resolver {
	return resolver.New(boundEvaluator{ctx: context.Background(), ctl: ctl})
}

func unmarshalParams(raw []byte, v interface{}) error {
	return json.Unmarshal(raw, v)
}
