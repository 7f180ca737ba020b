package actions

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/runtime"

	"github.com/cdpskill/cdpskill/internal/cdperrs"
	"github.com/cdpskill/cdpskill/internal/pagectl"
	"github.com/cdpskill/cdpskill/internal/resolver"
)

// ClickOptions configures one click executor invocation (spec.md §4.5.1).
type ClickOptions struct {
	Target    Target
	X, Y      *float64
	JSClick   bool
	Force     bool
	NativeOnly bool
	WaitAfter *WaitAfterOptions
	Debug     bool
}

// WaitAfterOptions configures the post-click MutationObserver wait.
type WaitAfterOptions struct {
	StableTime time.Duration
	Timeout    time.Duration
}

// ClickResult reports what the click actually did.
type ClickResult struct {
	Method    string // "cdp", "jsClick-auto", "label-proxy"
	Navigated bool
	NewURL    string
}

const pointerVerifyInstallJS = `function() {
	window.__cdpskillClickFlag = false;
	this.addEventListener('pointerdown', () => { window.__cdpskillClickFlag = true; }, {once: true, capture: true});
	document.addEventListener('pointerdown', () => { window.__cdpskillClickFlag = true; }, {once: true, capture: true});
	return true;
}`

const labelProxyJS = `function() {
	if (this.tagName !== 'INPUT') return null;
	const t = (this.getAttribute('type') || '').toLowerCase();
	if (t !== 'checkbox' && t !== 'radio') return null;
	const r = this.getBoundingClientRect();
	if (r.width > 0 && r.height > 0) return null;
	if (this.id) {
		const l = document.querySelector('label[for="' + CSS.escape(this.id) + '"]');
		if (l) return l;
	}
	let p = this.parentElement;
	while (p) {
		if (p.tagName === 'LABEL') return p;
		p = p.parentElement;
	}
	return null;
}`

const jsClickJS = `function() { this.click(); return true; }`

// Click implements the spec.md §4.5.1 algorithm.
func Click(ctx context.Context, ctl *pagectl.Controller, res *resolver.Resolver, opts ClickOptions) (*ClickResult, error) {
	if opts.X != nil && opts.Y != nil {
		return clickAtPoint(ctx, ctl, *opts.X, *opts.Y)
	}

	preClickURL := ctl.Main().URL

	objID, err := opts.Target.Resolve(ctx, ctl, res)
	if err != nil {
		return nil, err
	}
	defer ctl.ReleaseObject(ctx, objID)

	if !opts.Force {
		if err := ScrollIntoView(ctx, ctl, objID); err != nil {
			return nil, err
		}
	}

	proxyObj, exc, err := ctl.CallFunctionOn(ctx, labelProxyJS, objID, nil, false)
	clickObjID := objID
	result := &ClickResult{Method: "cdp"}
	if err == nil && exc == nil && proxyObj != nil && proxyObj.ObjectID != "" {
		clickObjID = proxyObj.ObjectID
		result.Method = "label-proxy"
		defer ctl.ReleaseObject(ctx, clickObjID)
	}

	box, err := GetBox(ctx, ctl, clickObjID)
	if err != nil {
		return nil, err
	}

	if _, exc, err := ctl.CallFunctionOn(ctx, pointerVerifyInstallJS, clickObjID, nil, true); err != nil {
		return nil, cdperrs.Wrap(cdperrs.KindProtocol, err, "install pointerdown verifier")
	} else if exc != nil {
		return nil, cdperrs.New(cdperrs.KindElement, "install verifier exception: %s", exc.Text)
	}

	x, y := box.Center(0, 0)
	if err := dispatchClickAt(ctx, ctl, x, y); err != nil {
		if result.Method == "label-proxy" {
			// fall through to JS click below
		} else {
			return nil, err
		}
	}

	time.Sleep(50 * time.Millisecond)

	verified, verr := readClickFlag(ctx, ctl)
	if verr != nil && cdperrs.Is(verr, cdperrs.KindContextDestroyed) {
		result.Navigated = true
		return result, nil
	}

	if !verified && !opts.NativeOnly {
		if _, exc, err := ctl.CallFunctionOn(ctx, jsClickJS, objID, nil, true); err != nil {
			if cdperrs.Is(err, cdperrs.KindContextDestroyed) {
				result.Navigated = true
				return result, nil
			}
			return nil, cdperrs.Wrap(cdperrs.KindElement, err, "jsClick fallback")
		} else if exc != nil {
			return nil, cdperrs.New(cdperrs.KindElement, "jsClick exception: %s", exc.Text)
		}
		result.Method = "jsClick-auto"
	}

	nav := ctl.Main()
	if nav.URL != "" {
		result.NewURL = nav.URL
		if preClickURL != "" && nav.URL != preClickURL {
			result.Navigated = true
		}
	}

	return result, nil
}

func clickAtPoint(ctx context.Context, ctl *pagectl.Controller, x, y float64) (*ClickResult, error) {
	if err := dispatchClickAt(ctx, ctl, x, y); err != nil {
		return nil, err
	}
	return &ClickResult{Method: "cdp"}, nil
}

func dispatchClickAt(ctx context.Context, ctl *pagectl.Controller, x, y float64) error {
	cctx := ctl.ExecutorContext(ctx)
	if err := input.DispatchMouseEvent(input.MouseMoved, x, y).Do(cctx); err != nil {
		return cdperrs.Wrap(cdperrs.KindTransport, err, "mousemove")
	}
	if err := input.DispatchMouseEvent(input.MousePressed, x, y).
		WithButton(input.Left).WithClickCount(1).Do(cctx); err != nil {
		return cdperrs.Wrap(cdperrs.KindTransport, err, "mousedown")
	}
	if err := input.DispatchMouseEvent(input.MouseReleased, x, y).
		WithButton(input.Left).WithClickCount(1).Do(cctx); err != nil {
		return cdperrs.Wrap(cdperrs.KindTransport, err, "mouseup")
	}
	return nil
}

const readClickFlagJS = `!!window.__cdpskillClickFlag`

func readClickFlag(ctx context.Context, ctl *pagectl.Controller) (bool, error) {
	obj, exc, err := ctl.Evaluate(ctx, readClickFlagJS, true)
	if err != nil {
		if cdperrs.Is(err, cdperrs.KindContextDestroyed) {
			return false, err
		}
		return false, cdperrs.Wrap(cdperrs.KindProtocol, err, "read click flag")
	}
	if exc != nil {
		return false, cdperrs.New(cdperrs.KindElement, "read click flag exception: %s", exc.Text)
	}
	var v bool
	if obj != nil {
		json.Unmarshal(obj.Value, &v)
	}
	return v, nil
}

// WaitAfter installs a MutationObserver on document.body and resolves when
// either stableTime elapses with no mutation, timeout is reached, or the
// URL changes (spec.md §4.5.1 step 7).
func WaitAfter(ctx context.Context, ctl *pagectl.Controller, opts WaitAfterOptions) error {
	if opts.Timeout == 0 {
		opts.Timeout = 2 * time.Second
	}
	if opts.StableTime == 0 {
		opts.StableTime = 300 * time.Millisecond
	}
	expr := fmt.Sprintf(waitAfterJS, opts.StableTime.Milliseconds(), opts.Timeout.Milliseconds())
	obj, exc, err := ctl.Evaluate(ctx, expr, true)
	if err != nil {
		return cdperrs.Wrap(cdperrs.KindProtocol, err, "waitAfter")
	}
	if exc != nil {
		return cdperrs.New(cdperrs.KindElement, "waitAfter exception: %s", exc.Text)
	}
	_ = obj
	return nil
}

const waitAfterJS = `new Promise((resolve) => {
	const stableMs = %d;
	const timeoutMs = %d;
	const startURL = location.href;
	let timer = null;
	const done = () => {
		try { observer.disconnect(); } catch (e) {}
		clearTimeout(timer);
		clearTimeout(overall);
		clearInterval(poll);
		resolve(true);
	};
	const observer = new MutationObserver(() => {
		clearTimeout(timer);
		timer = setTimeout(done, stableMs);
	});
	observer.observe(document.body, {childList: true, subtree: true, attributes: true});
	timer = setTimeout(done, stableMs);
	const overall = setTimeout(done, timeoutMs);
	const poll = setInterval(() => { if (location.href !== startURL) { done(); } }, 50);
})`
