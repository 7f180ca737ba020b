package actions

import (
	"context"
	"strings"
	"testing"
)

func TestFill_ResolvesVerifiesEditableAndInsertsText(t *testing.T) {
	var inserted string
	var sawClear bool
	ctl, se := newTestController(t, func(method string, params []byte) ([]byte, error) {
		switch method {
		case "Runtime.evaluate":
			expr := evalExpr(params)
			if strings.Contains(expr, "{found:") {
				return evaluateReturns(quotedJSON(map[string]bool{"found": true}), ""), nil
			}
			return evaluateReturns(nil, "obj-1"), nil
		case "Runtime.callFunctionOn":
			decl := callFnDecl(params)
			switch {
			case strings.Contains(decl, "isContentEditable"):
				return evaluateReturns(true, ""), nil
			case strings.Contains(decl, "select()"):
				sawClear = true
				return evaluateReturns(true, ""), nil
			}
			return evaluateReturns(true, ""), nil
		case "Input.insertText":
			var p struct {
				Text string `json:"text"`
			}
			if err := unmarshalParams(params, &p); err == nil {
				inserted = p.Text
			}
			return []byte(`{}`), nil
		}
		return []byte(`{}`), nil
	})

	res := newTestResolver(ctl)
	err := Fill(context.Background(), ctl, res, FillOptions{
		Fields: []Field{{Target: Target{Ref: "f0s1e1"}, Value: "hello@example.com"}},
		Clear:  true,
	})
	if err != nil {
		t.Fatalf("Fill: %v", err)
	}
	if !sawClear {
		t.Fatal("expected select-all clear step to run")
	}
	if inserted != "hello@example.com" {
		t.Fatalf("expected fast-path Input.insertText with full value, got %q", inserted)
	}
	var sawKeyEvents bool
	for _, m := range se.methods {
		if m == "Input.dispatchKeyEvent" {
			sawKeyEvents = true
		}
	}
	if !sawKeyEvents {
		t.Fatal("expected Delete keypress dispatched during clear")
	}
}

func TestFill_RejectsNonEditableElement(t *testing.T) {
	ctl, _ := newTestController(t, func(method string, params []byte) ([]byte, error) {
		switch method {
		case "Runtime.evaluate":
			expr := evalExpr(params)
			if strings.Contains(expr, "{found:") {
				return evaluateReturns(quotedJSON(map[string]bool{"found": true}), ""), nil
			}
			return evaluateReturns(nil, "obj-1"), nil
		case "Runtime.callFunctionOn":
			return evaluateReturns(false, ""), nil
		}
		return []byte(`{}`), nil
	})

	res := newTestResolver(ctl)
	err := Fill(context.Background(), ctl, res, FillOptions{
		Fields: []Field{{Target: Target{Ref: "f0s1e1"}, Value: "x"}},
	})
	if err == nil {
		t.Fatal("expected error for non-editable element")
	}
}
