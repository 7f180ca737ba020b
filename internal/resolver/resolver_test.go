package resolver

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/chromedp/cdproto/runtime"

	"github.com/cdpskill/cdpskill/internal/cdperrs"
)

type fakeEvaluator struct {
	verifyFound bool
	handleID    runtime.RemoteObjectID
	calls       []bool // returnByValue flag per call, in order
}

func (f *fakeEvaluator) Evaluate(expression string, returnByValue bool) (*runtime.RemoteObject, *runtime.ExceptionDetails, error) {
	f.calls = append(f.calls, returnByValue)
	if returnByValue {
		b, _ := json.Marshal(verifyResult{Found: f.verifyFound})
		quoted, _ := json.Marshal(string(b))
		return &runtime.RemoteObject{Value: quoted}, nil, nil
	}
	if !f.verifyFound {
		return nil, nil, nil
	}
	return &runtime.RemoteObject{ObjectID: f.handleID}, nil, nil
}

func TestResolver_ResolveSucceedsOnMatch(t *testing.T) {
	ev := &fakeEvaluator{verifyFound: true, handleID: "obj-1"}
	r := New(ev)
	h, err := r.Resolve("f0s1e1")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if h.ObjectID != "obj-1" {
		t.Fatalf("unexpected object id: %s", h.ObjectID)
	}
	if len(ev.calls) != 2 || !ev.calls[0] || ev.calls[1] {
		t.Fatalf("expected verify-then-handle call sequence, got %+v", ev.calls)
	}
}

func TestResolver_StaleWhenNotFound(t *testing.T) {
	ev := &fakeEvaluator{verifyFound: false}
	r := New(ev)
	_, err := r.Resolve("f0s1e1")
	if !cdperrs.Is(err, cdperrs.KindStale) {
		t.Fatalf("expected stale error, got %v", err)
	}
	if len(ev.calls) != 1 {
		t.Fatalf("handle pass must not run when verify fails, got %d calls", len(ev.calls))
	}
}

func TestResolver_ResolvesRefContainingQuote(t *testing.T) {
	ev := &fakeEvaluator{verifyFound: true, handleID: "obj-2"}
	r := New(ev)
	if _, err := r.Resolve(`weird"ref`); err != nil {
		t.Fatalf("Resolve with quote in ref: %v", err)
	}
	if !strings.Contains(string(mustMarshal(t, `weird"ref`)), `\"`) {
		t.Fatal("sanity check on json escaping failed")
	}
}

func mustMarshal(t *testing.T, s string) []byte {
	t.Helper()
	b, err := json.Marshal(s)
	if err != nil {
		t.Fatal(err)
	}
	return b
}
