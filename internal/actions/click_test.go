package actions

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/chromedp/cdproto"
	"github.com/chromedp/cdproto/runtime"
)

func evalExpr(params []byte) string {
	var p struct {
		Expression string `json:"expression"`
	}
	json.Unmarshal(params, &p)
	return p.Expression
}

func callFnDecl(params []byte) string {
	var p struct {
		FunctionDeclaration string `json:"functionDeclaration"`
	}
	json.Unmarshal(params, &p)
	return p.FunctionDeclaration
}

// TestClick_ResolvesScrollsAndDispatchesNativeClick exercises the happy
// path: ref resolves, no label proxy applies, the pointerdown verifier
// fires, and the click completes via the native CDP path.
func TestClick_ResolvesScrollsAndDispatchesNativeClick(t *testing.T) {
	var flagReads int
	ctl, se := newTestController(t, func(method string, params []byte) ([]byte, error) {
		switch method {
		case "Runtime.evaluate":
			expr := evalExpr(params)
			switch {
			case strings.Contains(expr, "{found:"):
				// resolver verify pass
				return evaluateReturns(quotedJSON(map[string]bool{"found": true}), ""), nil
			case strings.Contains(expr, "findOrAssign") || strings.Contains(expr, "querySelector") || strings.Contains(expr, "candidate"):
				return evaluateReturns(nil, "obj-1"), nil
			case strings.Contains(expr, "__cdpskillClickFlag"):
				flagReads++
				return evaluateReturns(true, ""), nil
			}
			return evaluateReturns(nil, "obj-1"), nil
		case "Runtime.callFunctionOn":
			decl := callFnDecl(params)
			switch {
			case strings.Contains(decl, "INPUT"):
				return evaluateReturns(nil, ""), nil // label proxy: no match
			case strings.Contains(decl, "getBoundingClientRect"):
				return evaluateReturns(quotedJSON(map[string]float64{"x": 10, "y": 20, "w": 30, "h": 10}), ""), nil
			case strings.Contains(decl, "pointerdown"):
				return evaluateReturns(true, ""), nil
			case strings.Contains(decl, "scrollIntoView"):
				return evaluateReturns(true, ""), nil
			}
			return evaluateReturns(nil, ""), nil
		case "Runtime.releaseObject", "Input.dispatchMouseEvent":
			return []byte(`{}`), nil
		}
		return []byte(`{}`), nil
	})

	res := newTestResolver(ctl)

	result, err := Click(context.Background(), ctl, res, ClickOptions{Target: Target{Ref: "f0s1e1"}})
	if err != nil {
		t.Fatalf("Click: %v", err)
	}
	if result.Method != "cdp" {
		t.Fatalf("expected cdp method, got %q", result.Method)
	}
	if flagReads == 0 {
		t.Fatal("expected click flag to be read after dispatch")
	}
	var sawMouse bool
	for _, m := range se.methods {
		if m == "Input.dispatchMouseEvent" {
			sawMouse = true
		}
	}
	if !sawMouse {
		t.Fatal("expected mouse events to be dispatched")
	}
}

// TestClick_FallsBackToJSClickWhenUnverified confirms the JS-click fallback
// fires when the pointerdown verifier never sees the native dispatch land.
func TestClick_FallsBackToJSClickWhenUnverified(t *testing.T) {
	jsClicked := false
	ctl, _ := newTestController(t, func(method string, params []byte) ([]byte, error) {
		switch method {
		case "Runtime.evaluate":
			expr := evalExpr(params)
			switch {
			case strings.Contains(expr, "{found:"):
				return evaluateReturns(quotedJSON(map[string]bool{"found": true}), ""), nil
			case strings.Contains(expr, "__cdpskillClickFlag"):
				return evaluateReturns(false, ""), nil
			}
			return evaluateReturns(nil, "obj-2"), nil
		case "Runtime.callFunctionOn":
			decl := callFnDecl(params)
			switch {
			case strings.Contains(decl, "this.click()"):
				jsClicked = true
				return evaluateReturns(true, ""), nil
			case strings.Contains(decl, "getBoundingClientRect"):
				return evaluateReturns(quotedJSON(map[string]float64{"x": 0, "y": 0, "w": 10, "h": 10}), ""), nil
			}
			return evaluateReturns(nil, ""), nil
		}
		return []byte(`{}`), nil
	})

	res := newTestResolver(ctl)
	result, err := Click(context.Background(), ctl, res, ClickOptions{Target: Target{Ref: "f0s1e2"}})
	if err != nil {
		t.Fatalf("Click: %v", err)
	}
	if !jsClicked {
		t.Fatal("expected JS click fallback to run")
	}
	if result.Method != "jsClick-auto" {
		t.Fatalf("expected jsClick-auto, got %q", result.Method)
	}
}

// TestClick_DetectsSPANavigation confirms a client-side pushState/popstate
// navigation that fires during the click is surfaced on the result, not just
// a full context-destroyed navigation (spec.md §4.5.1 step 6).
func TestClick_DetectsSPANavigation(t *testing.T) {
	const afterURL = `"https://example.com/after"`
	var mouseUps int
	ctl, se := newTestController(t, func(method string, params []byte) ([]byte, error) {
		switch method {
		case "Page.enable", "Runtime.enable", "Network.enable", "Runtime.addBinding":
			return []byte(`{}`), nil
		case "Page.addScriptToEvaluateOnNewDocument":
			return []byte(`{"identifier":"1"}`), nil
		case "Runtime.evaluate":
			expr := evalExpr(params)
			switch {
			case strings.Contains(expr, "{found:"):
				return evaluateReturns(quotedJSON(map[string]bool{"found": true}), ""), nil
			case strings.Contains(expr, "__cdpskillClickFlag"):
				return evaluateReturns(true, ""), nil
			}
			return evaluateReturns(nil, "obj-3"), nil
		case "Runtime.callFunctionOn":
			decl := callFnDecl(params)
			switch {
			case strings.Contains(decl, "INPUT"):
				return evaluateReturns(nil, ""), nil
			case strings.Contains(decl, "getBoundingClientRect"):
				return evaluateReturns(quotedJSON(map[string]float64{"x": 0, "y": 0, "w": 10, "h": 10}), ""), nil
			case strings.Contains(decl, "pointerdown"):
				return evaluateReturns(true, ""), nil
			case strings.Contains(decl, "scrollIntoView"):
				return evaluateReturns(true, ""), nil
			}
			return evaluateReturns(nil, ""), nil
		case "Input.dispatchMouseEvent":
			var p struct {
				Type string `json:"type"`
			}
			json.Unmarshal(params, &p)
			if p.Type == "mouseReleased" {
				mouseUps++
				// Simulate a history.pushState navigation firing from the
				// page's click handler, reported through the SPA binding.
				se.publish(cdproto.EventRuntimeBindingCalled, &runtime.EventBindingCalled{
					Name:    "__cdpskillNav",
					Payload: afterURL,
				})
			}
			return []byte(`{}`), nil
		case "Runtime.releaseObject":
			return []byte(`{}`), nil
		}
		return []byte(`{}`), nil
	})

	if err := ctl.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	se.publish(cdproto.EventRuntimeExecutionContextCreated, &runtime.EventExecutionContextCreated{
		Context: &runtime.ExecutionContextDescription{
			ID:      1,
			Origin:  "https://example.com/before",
			AuxData: json.RawMessage(`{"frameId":"F1","isDefault":true}`),
		},
	})
	for i := 0; i < 100 && ctl.Main().ContextID == 0; i++ {
		time.Sleep(time.Millisecond)
	}

	res := newTestResolver(ctl)
	result, err := Click(context.Background(), ctl, res, ClickOptions{Target: Target{Ref: "f0s1e1"}})
	if err != nil {
		t.Fatalf("Click: %v", err)
	}
	if mouseUps == 0 {
		t.Fatal("expected a mouseup to have been dispatched")
	}
	if !result.Navigated {
		t.Fatalf("expected SPA navigation to be detected, got %+v", result)
	}
	if result.NewURL != "https://example.com/after" {
		t.Fatalf("expected new URL to be reported, got %q", result.NewURL)
	}
}
