package steps

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/chromedp/cdproto"
	"github.com/mailru/easyjson"

	"github.com/cdpskill/cdpskill/internal/pagectl"
)

// scriptedExecutor is a pagectl.Executor whose CDP replies are supplied by
// a per-test handler keyed on method name.
type scriptedExecutor struct {
	mu     sync.Mutex
	handle func(method string, params []byte) (result []byte, err error)
}

func (s *scriptedExecutor) Execute(ctx context.Context, method string, params easyjson.Marshaler, res easyjson.Unmarshaler) error {
	s.mu.Lock()
	defer s.mu.Unlock()
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

func (s *scriptedExecutor) On(cdproto.MethodType) <-chan *cdproto.Message  { return make(chan *cdproto.Message) }
func (s *scriptedExecutor) Off(cdproto.MethodType, <-chan *cdproto.Message) {}

func newTestController(t *testing.T, handle func(method string, params []byte) (result []byte, err error)) *pagectl.Controller {
	t.Helper()
	se := &scriptedExecutor{handle: handle}
	ctl := pagectl.New(context.Background(), se, nil)
	t.Cleanup(ctl.Close)
	return ctl
}

func evaluateReturns(value interface{}) []byte {
	v, _ := json.Marshal(value)
	out, _ := json.Marshal(map[string]interface{}{
		"result": map[string]json.RawMessage{"type": json.RawMessage(`"object"`), "value": v},
	})
	return out
}
