package pagectl

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/cdproto"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"

	"github.com/cdpskill/cdpskill/internal/cdperrs"
)

// WaitUntil names the lifecycle point a navigation waits for, as spec.md
// §4.2 enumerates.
type WaitUntil string

const (
	WaitCommit           WaitUntil = "commit"
	WaitDOMContentLoaded WaitUntil = "domcontentloaded"
	WaitLoad             WaitUntil = "load"
	WaitNetworkIdle      WaitUntil = "networkidle"
)

// networkIdleWindow is how long the in-flight request count must stay at
// zero before networkidle is considered reached.
const networkIdleWindow = 500 * time.Millisecond

// NavResult reports what a navigation actually did.
type NavResult struct {
	URL           string
	FrameID       cdp.FrameID
	SameDocument  bool // true for hash-only navigation that bypassed a real Navigate
}

// Bootstrap enables the Page/Runtime/Network domains and installs the SPA
// navigation-detection binding. Call once per attached target before any
// Goto.
func (c *Controller) Bootstrap(ctx context.Context) error {
	ctx = cdp.WithExecutor(ctx, c.sess)
	if err := page.Enable().Do(ctx); err != nil {
		return cdperrs.Wrap(cdperrs.KindProtocol, err, "Page.enable")
	}
	if err := runtime.Enable().Do(ctx); err != nil {
		return cdperrs.Wrap(cdperrs.KindProtocol, err, "Runtime.enable")
	}
	if err := network.Enable().Do(ctx); err != nil {
		return cdperrs.Wrap(cdperrs.KindProtocol, err, "Network.enable")
	}
	if err := runtime.AddBinding(spaBindingName).Do(ctx); err != nil {
		return cdperrs.Wrap(cdperrs.KindProtocol, err, "Runtime.addBinding")
	}
	if _, err := page.AddScriptToEvaluateOnNewDocument(spaPatchJS).Do(ctx); err != nil {
		return cdperrs.Wrap(cdperrs.KindProtocol, err, "Page.addScriptToEvaluateOnNewDocument")
	}
	go c.watchNetwork(ctx)
	go c.watchSPA(ctx)
	return nil
}

// AddInitScript injects expression into every future document before any
// of the page's own scripts run.
func (c *Controller) AddInitScript(ctx context.Context, expression string) (page.ScriptIdentifier, error) {
	ctx = cdp.WithExecutor(ctx, c.sess)
	id, err := page.AddScriptToEvaluateOnNewDocument(expression).Do(ctx)
	if err != nil {
		return "", cdperrs.Wrap(cdperrs.KindProtocol, err, "Page.addScriptToEvaluateOnNewDocument")
	}
	return id, nil
}

// Goto navigates the main frame to target, honoring waitUntil and a
// same-origin hash-only bypass that never calls Page.navigate at all.
func (c *Controller) Goto(ctx context.Context, target string, waitUntil WaitUntil) (NavResult, error) {
	if waitUntil == "" {
		waitUntil = WaitLoad
	}

	if same, err := c.isHashOnlyNavigation(ctx, target); err != nil {
		return NavResult{}, err
	} else if same {
		if _, _, err := c.Evaluate(ctx, fmt.Sprintf("location.href = %q", target), true); err != nil {
			return NavResult{}, cdperrs.Wrap(cdperrs.KindNavigation, err, "hash navigation")
		}
		return NavResult{URL: target, FrameID: c.Main().FrameID, SameDocument: true}, nil
	}

	execCtx := cdp.WithExecutor(ctx, c.sess)

	domLoaded := c.sess.On(cdproto.EventPageDomContentEventFired)
	loaded := c.sess.On(cdproto.EventPageLoadEventFired)
	defer c.sess.Off(cdproto.EventPageDomContentEventFired, domLoaded)
	defer c.sess.Off(cdproto.EventPageLoadEventFired, loaded)

	c.Invalidate()

	frameID, _, errText, err := page.Navigate(target).Do(execCtx)
	if err != nil {
		return NavResult{}, cdperrs.Wrap(cdperrs.KindNavigation, err, "Page.navigate %s", target)
	}
	if errText != "" {
		return NavResult{}, cdperrs.New(cdperrs.KindNavigation, "navigate %s: %s", target, errText)
	}

	switch waitUntil {
	case WaitCommit:
		// Navigate already blocked until commit; nothing further to wait for.
	case WaitDOMContentLoaded:
		if err := c.waitForEvent(ctx, domLoaded); err != nil {
			return NavResult{}, err
		}
	case WaitLoad:
		if err := c.waitForEvent(ctx, loaded); err != nil {
			return NavResult{}, err
		}
	case WaitNetworkIdle:
		if err := c.waitForEvent(ctx, loaded); err != nil {
			return NavResult{}, err
		}
		if err := c.waitNetworkIdle(ctx); err != nil {
			return NavResult{}, err
		}
	default:
		return NavResult{}, cdperrs.New(cdperrs.KindValidation, "unknown waitUntil %q", waitUntil)
	}

	return NavResult{URL: target, FrameID: frameID}, nil
}

func (c *Controller) waitForEvent(ctx context.Context, ch <-chan *cdproto.Message) error {
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return cdperrs.Wrap(cdperrs.KindNavigation, ctx.Err(), "waiting for lifecycle event")
	}
}

func (c *Controller) isHashOnlyNavigation(ctx context.Context, target string) (bool, error) {
	cur := c.Main().URL
	if cur == "" {
		loc, _, err := c.Evaluate(ctx, "location.href", true)
		if err != nil || loc == nil {
			return false, nil
		}
		var s string
		if json.Unmarshal(loc.Value, &s) == nil {
			cur = s
		}
	}
	tu, err := url.Parse(target)
	if err != nil || cur == "" {
		return false, nil
	}
	cu, err := url.Parse(cur)
	if err != nil {
		return false, nil
	}
	if tu.Scheme != cu.Scheme || tu.Host != cu.Host || tu.Path != cu.Path || tu.RawQuery != cu.RawQuery {
		return false, nil
	}
	return tu.Fragment != cu.Fragment, nil
}

// --- network idle tracking ---

type networkTracker struct {
	inflight int
}

func (c *Controller) watchNetwork(ctx context.Context) {
	sent := c.sess.On(cdproto.EventNetworkRequestWillBeSent)
	finished := c.sess.On(cdproto.EventNetworkLoadingFinished)
	failed := c.sess.On(cdproto.EventNetworkLoadingFailed)
	defer c.sess.Off(cdproto.EventNetworkRequestWillBeSent, sent)
	defer c.sess.Off(cdproto.EventNetworkLoadingFinished, finished)
	defer c.sess.Off(cdproto.EventNetworkLoadingFailed, failed)

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-sent:
			if !ok {
				return
			}
			c.mu.Lock()
			c.inflight++
			c.mu.Unlock()
			c.notifyNetwork()
		case _, ok := <-finished:
			if !ok {
				return
			}
			c.decInflight()
		case _, ok := <-failed:
			if !ok {
				return
			}
			c.decInflight()
		}
	}
}

func (c *Controller) decInflight() {
	c.mu.Lock()
	if c.inflight > 0 {
		c.inflight--
	}
	c.mu.Unlock()
	c.notifyNetwork()
}

func (c *Controller) notifyNetwork() {
	c.mu.RLock()
	ch := c.idleSignal
	c.mu.RUnlock()
	if ch != nil {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (c *Controller) waitNetworkIdle(ctx context.Context) error {
	sig := make(chan struct{}, 1)
	c.mu.Lock()
	c.idleSignal = sig
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.idleSignal = nil
		c.mu.Unlock()
	}()

	timer := time.NewTimer(networkIdleWindow)
	defer timer.Stop()
	for {
		c.mu.RLock()
		idle := c.inflight == 0
		c.mu.RUnlock()
		if idle {
			select {
			case <-timer.C:
				return nil
			case <-sig:
				timer.Reset(networkIdleWindow)
			case <-ctx.Done():
				return cdperrs.Wrap(cdperrs.KindNavigation, ctx.Err(), "waiting for networkidle")
			}
			continue
		}
		select {
		case <-sig:
		case <-ctx.Done():
			return cdperrs.Wrap(cdperrs.KindNavigation, ctx.Err(), "waiting for networkidle")
		}
	}
}

// --- SPA pushState/replaceState/popstate detection ---

const spaBindingName = "__cdpskillNav"

// spaPatchJS wraps history.pushState/replaceState and listens for popstate,
// reporting every resulting URL change through the bound function so the
// engine can recognise client-side navigations that never hit the network.
const spaPatchJS = `(() => {
	if (window.__cdpskillNavPatched) return;
	window.__cdpskillNavPatched = true;
	const report = () => { try { window.` + spaBindingName + `(location.href); } catch (e) {} };
	const wrap = (name) => {
		const orig = history[name];
		history[name] = function (...args) {
			const ret = orig.apply(this, args);
			report();
			return ret;
		};
	};
	wrap('pushState');
	wrap('replaceState');
	window.addEventListener('popstate', report);
})();`

func (c *Controller) watchSPA(ctx context.Context) {
	ch := c.sess.On(cdproto.EventRuntimeBindingCalled)
	defer c.sess.Off(cdproto.EventRuntimeBindingCalled, ch)
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			ev, ok := c.decode(msg).(*runtime.EventBindingCalled)
			if !ok || ev.Name != spaBindingName {
				continue
			}
			newURL := strings.Trim(ev.Payload, `"`)
			c.mu.Lock()
			c.main.URL = newURL
			c.mu.Unlock()
		}
	}
}
