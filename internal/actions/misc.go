package actions

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"

	"github.com/cdpskill/cdpskill/internal/cdperrs"
	"github.com/cdpskill/cdpskill/internal/discover"
	"github.com/cdpskill/cdpskill/internal/pagectl"
	"github.com/cdpskill/cdpskill/internal/resolver"
)

// Sleep blocks for d, bounded by ctx (the "sleep" step).
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait polls expression at 100ms intervals until it evaluates truthy or
// timeout elapses (the "wait" step and the readyWhen/settledWhen hooks).
func Wait(ctx context.Context, ctl *pagectl.Controller, expression string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		obj, exc, err := ctl.Evaluate(ctx, expression, true)
		if err == nil && exc == nil && obj != nil {
			var v bool
			json.Unmarshal(obj.Value, &v)
			if v {
				return nil
			}
		}
		if time.Now().After(deadline) {
			return cdperrs.New(cdperrs.KindNavigation, "timed out waiting for %q", expression)
		}
		select {
		case <-time.After(100 * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// PageFunction evaluates an agent-supplied function body with a timeout.
func PageFunction(ctx context.Context, ctl *pagectl.Controller, body string, returnByValue bool, timeout time.Duration) (*runtime.RemoteObject, error) {
	cctx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		cctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	obj, exc, err := ctl.Evaluate(cctx, body, returnByValue)
	if err != nil {
		return nil, cdperrs.Wrap(cdperrs.KindProtocol, err, "pageFunction")
	}
	if exc != nil {
		return nil, cdperrs.New(cdperrs.KindAssertion, "pageFunction exception: %s", exc.Text)
	}
	return obj, nil
}

// Poll re-evaluates expression on interval until truthy or timeout.
func Poll(ctx context.Context, ctl *pagectl.Controller, expression string, interval, timeout time.Duration) (*runtime.RemoteObject, error) {
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	deadline := time.Now().Add(timeout)
	for {
		obj, exc, err := ctl.Evaluate(ctx, expression, true)
		if err == nil && exc == nil && obj != nil {
			var v bool
			if json.Unmarshal(obj.Value, &v) == nil && v {
				return obj, nil
			}
		}
		if time.Now().After(deadline) {
			return nil, cdperrs.New(cdperrs.KindNavigation, "poll timed out on %q", expression)
		}
		select {
		case <-time.After(interval):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Scroll scrolls the page (or objID if set) by dx, dy.
func Scroll(ctx context.Context, ctl *pagectl.Controller, objID runtime.RemoteObjectID, dx, dy float64) error {
	if objID != "" {
		expr := fmt.Sprintf(`function() { this.scrollBy(%v, %v); return true; }`, dx, dy)
		_, exc, err := ctl.CallFunctionOn(ctx, expr, objID, nil, true)
		if err != nil {
			return cdperrs.Wrap(cdperrs.KindProtocol, err, "scrollBy")
		}
		if exc != nil {
			return cdperrs.New(cdperrs.KindElement, "scrollBy exception: %s", exc.Text)
		}
		return nil
	}
	expr := fmt.Sprintf("window.scrollBy(%v, %v)", dx, dy)
	_, exc, err := ctl.Evaluate(ctx, expr, true)
	if err != nil {
		return cdperrs.Wrap(cdperrs.KindProtocol, err, "window.scrollBy")
	}
	if exc != nil {
		return cdperrs.New(cdperrs.KindElement, "scrollBy exception: %s", exc.Text)
	}
	return nil
}

// Hover moves the mouse over the resolved target without clicking.
func Hover(ctx context.Context, ctl *pagectl.Controller, res *resolver.Resolver, target Target) error {
	objID, err := target.Resolve(ctx, ctl, res)
	if err != nil {
		return err
	}
	defer ctl.ReleaseObject(ctx, objID)
	if err := ScrollIntoView(ctx, ctl, objID); err != nil {
		return err
	}
	box, err := GetBox(ctx, ctl, objID)
	if err != nil {
		return err
	}
	x, y := box.Center(0, 0)
	cctx := ctl.ExecutorContext(ctx)
	if err := input.DispatchMouseEvent(input.MouseMoved, x, y).Do(cctx); err != nil {
		return cdperrs.Wrap(cdperrs.KindTransport, err, "mousemove")
	}
	return nil
}

// ConsoleMessage is one buffered console.* call, produced by ConsoleWatcher.
type ConsoleMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Cookies get/set/clear cookies for the current page via the Network domain.
func GetCookies(ctx context.Context, ctl *pagectl.Controller) ([]*network.Cookie, error) {
	cctx := ctl.ExecutorContext(ctx)
	cookies, err := network.GetCookies().Do(cctx)
	if err != nil {
		return nil, cdperrs.Wrap(cdperrs.KindProtocol, err, "Network.getCookies")
	}
	return cookies, nil
}

func SetCookies(ctx context.Context, ctl *pagectl.Controller, params []*network.CookieParam) error {
	cctx := ctl.ExecutorContext(ctx)
	if err := network.SetCookies(params).Do(cctx); err != nil {
		return cdperrs.Wrap(cdperrs.KindProtocol, err, "Network.setCookies")
	}
	return nil
}

func ClearCookies(ctx context.Context, ctl *pagectl.Controller) error {
	cctx := ctl.ExecutorContext(ctx)
	if err := network.ClearBrowserCookies().Do(cctx); err != nil {
		return cdperrs.Wrap(cdperrs.KindProtocol, err, "Network.clearBrowserCookies")
	}
	return nil
}

// SetViewport configures the emulated device viewport.
func SetViewport(ctx context.Context, ctl *pagectl.Controller, width, height int64, deviceScaleFactor float64, mobile bool) error {
	cctx := ctl.ExecutorContext(ctx)
	err := emulation.SetDeviceMetricsOverride(width, height, deviceScaleFactor, mobile).Do(cctx)
	if err != nil {
		return cdperrs.Wrap(cdperrs.KindProtocol, err, "Emulation.setDeviceMetricsOverride")
	}
	return nil
}

// SelectText focuses objID and selects its whole contents (e.g. the text of
// an input) through the element's select() method, used by the "selectText"
// step. Partial ranges are not supported.
func SelectText(ctx context.Context, ctl *pagectl.Controller, objID runtime.RemoteObjectID) error {
	_, exc, err := ctl.CallFunctionOn(ctx, selectAllJS, objID, nil, true)
	if err != nil {
		return cdperrs.Wrap(cdperrs.KindProtocol, err, "select text")
	}
	if exc != nil {
		return cdperrs.New(cdperrs.KindElement, "select text exception: %s", exc.Text)
	}
	return nil
}

const selectOptionJS = `function(value) {
	if (this.tagName.toLowerCase() !== 'select') return false;
	let matched = false;
	for (const opt of this.options) {
		if (opt.value === value || opt.textContent.trim() === value) {
			opt.selected = true;
			matched = true;
		} else {
			opt.selected = false;
		}
	}
	this.dispatchEvent(new Event('input', {bubbles: true}));
	this.dispatchEvent(new Event('change', {bubbles: true}));
	return matched;
}`

// SelectOption sets a <select>'s value by option value or visible text.
func SelectOption(ctx context.Context, ctl *pagectl.Controller, objID runtime.RemoteObjectID, value string) error {
	expr := fmt.Sprintf("(%s)", selectOptionJS)
	obj, exc, err := ctl.CallFunctionOn(ctx, expr, objID, []*runtime.CallArgument{{Value: json.RawMessage(mustJSONString(value))}}, true)
	if err != nil {
		return cdperrs.Wrap(cdperrs.KindProtocol, err, "selectOption")
	}
	if exc != nil {
		return cdperrs.New(cdperrs.KindElement, "selectOption exception: %s", exc.Text)
	}
	var matched bool
	if obj != nil {
		json.Unmarshal(obj.Value, &matched)
	}
	if !matched {
		return cdperrs.New(cdperrs.KindElement, "no option matching %q", value)
	}
	return nil
}

const submitJS = `function() {
	const form = this.form || (this.tagName.toLowerCase() === 'form' ? this : this.closest('form'));
	if (!form) return false;
	if (form.requestSubmit) form.requestSubmit(); else form.submit();
	return true;
}`

// Submit submits the form containing (or equal to) objID.
func Submit(ctx context.Context, ctl *pagectl.Controller, objID runtime.RemoteObjectID) error {
	obj, exc, err := ctl.CallFunctionOn(ctx, submitJS, objID, nil, true)
	if err != nil {
		return cdperrs.Wrap(cdperrs.KindProtocol, err, "submit")
	}
	if exc != nil {
		return cdperrs.New(cdperrs.KindElement, "submit exception: %s", exc.Text)
	}
	var ok bool
	if obj != nil {
		json.Unmarshal(obj.Value, &ok)
	}
	if !ok {
		return cdperrs.New(cdperrs.KindElement, "element has no owning form")
	}
	return nil
}

// Assert evaluates a boolean expression and fails with KindAssertion if
// false (spec.md §7: assertion failures always abort the run).
func Assert(ctx context.Context, ctl *pagectl.Controller, expression, message string) error {
	obj, exc, err := ctl.Evaluate(ctx, expression, true)
	if err != nil {
		return cdperrs.Wrap(cdperrs.KindProtocol, err, "assert")
	}
	if exc != nil {
		return cdperrs.New(cdperrs.KindAssertion, "assert exception: %s", exc.Text)
	}
	var v bool
	if obj != nil {
		json.Unmarshal(obj.Value, &v)
	}
	if !v {
		if message == "" {
			message = fmt.Sprintf("assertion failed: %s", expression)
		}
		return cdperrs.New(cdperrs.KindAssertion, "%s", message)
	}
	return nil
}

// Drag performs a drag from the source element to a target point via a
// native mousedown/mousemove/mouseup sequence (HTML5 dnd is out of scope;
// this covers pointer-based drag handles).
func Drag(ctx context.Context, ctl *pagectl.Controller, res *resolver.Resolver, from Target, toX, toY float64) error {
	objID, err := from.Resolve(ctx, ctl, res)
	if err != nil {
		return err
	}
	defer ctl.ReleaseObject(ctx, objID)
	box, err := GetBox(ctx, ctl, objID)
	if err != nil {
		return err
	}
	fx, fy := box.Center(0, 0)
	cctx := ctl.ExecutorContext(ctx)
	if err := input.DispatchMouseEvent(input.MouseMoved, fx, fy).Do(cctx); err != nil {
		return cdperrs.Wrap(cdperrs.KindTransport, err, "drag move-to-source")
	}
	if err := input.DispatchMouseEvent(input.MousePressed, fx, fy).WithButton(input.Left).WithClickCount(1).Do(cctx); err != nil {
		return cdperrs.Wrap(cdperrs.KindTransport, err, "drag mousedown")
	}
	steps := 8
	for i := 1; i <= steps; i++ {
		ix := fx + (toX-fx)*float64(i)/float64(steps)
		iy := fy + (toY-fy)*float64(i)/float64(steps)
		if err := input.DispatchMouseEvent(input.MouseMoved, ix, iy).Do(cctx); err != nil {
			return cdperrs.Wrap(cdperrs.KindTransport, err, "drag move")
		}
	}
	if err := input.DispatchMouseEvent(input.MouseReleased, toX, toY).WithButton(input.Left).WithClickCount(1).Do(cctx); err != nil {
		return cdperrs.Wrap(cdperrs.KindTransport, err, "drag mouseup")
	}
	return nil
}

// Get evaluates a property path expression and returns its JSON value.
func Get(ctx context.Context, ctl *pagectl.Controller, expression string) (json.RawMessage, error) {
	obj, exc, err := ctl.Evaluate(ctx, expression, true)
	if err != nil {
		return nil, cdperrs.Wrap(cdperrs.KindProtocol, err, "get")
	}
	if exc != nil {
		return nil, cdperrs.New(cdperrs.KindElement, "get exception: %s", exc.Text)
	}
	if obj == nil {
		return nil, nil
	}
	return obj.Value, nil
}

// GetDom returns objID's outerHTML.
func GetDom(ctx context.Context, ctl *pagectl.Controller, objID runtime.RemoteObjectID) (string, error) {
	obj, exc, err := ctl.CallFunctionOn(ctx, `function() { return this.outerHTML; }`, objID, nil, true)
	if err != nil {
		return "", cdperrs.Wrap(cdperrs.KindProtocol, err, "getDom")
	}
	if exc != nil {
		return "", cdperrs.New(cdperrs.KindElement, "getDom exception: %s", exc.Text)
	}
	var html string
	if obj != nil {
		json.Unmarshal(obj.Value, &html)
	}
	return html, nil
}

// ElementsAt returns a tag/id summary of the element stack at a viewport
// point, topmost first (hit-testing for debugging overlays).
func ElementsAt(ctx context.Context, ctl *pagectl.Controller, x, y float64) ([]string, error) {
	expr := fmt.Sprintf(`(() => {
		const els = document.elementsFromPoint(%v, %v);
		return JSON.stringify(els.map((e) => e.tagName.toLowerCase() + (e.id ? '#' + e.id : '')));
	})()`, x, y)
	obj, exc, err := ctl.Evaluate(ctx, expr, true)
	if err != nil {
		return nil, cdperrs.Wrap(cdperrs.KindProtocol, err, "elementsFromPoint")
	}
	if exc != nil {
		return nil, cdperrs.New(cdperrs.KindElement, "elementsFromPoint exception: %s", exc.Text)
	}
	var quoted string
	var out []string
	if obj != nil && json.Unmarshal(obj.Value, &quoted) == nil {
		json.Unmarshal([]byte(quoted), &out)
	}
	return out, nil
}

// Upload sets the files on an <input type=file> via DOM.setFileInputFiles,
// which requires a DOM backend node id obtained from the object id.
func Upload(ctx context.Context, ctl *pagectl.Controller, objID runtime.RemoteObjectID, paths []string) error {
	cctx := ctl.ExecutorContext(ctx)
	nodeID, err := dom.RequestNode(objID).Do(cctx)
	if err != nil {
		return cdperrs.Wrap(cdperrs.KindProtocol, err, "DOM.requestNode")
	}
	if err := dom.SetFileInputFiles(paths).WithNodeID(nodeID).Do(cctx); err != nil {
		return cdperrs.Wrap(cdperrs.KindElement, err, "DOM.setFileInputFiles")
	}
	return nil
}

// GetURL and GetTitle read page.location/document.title.
func GetURL(ctx context.Context, ctl *pagectl.Controller) (string, error) {
	obj, exc, err := ctl.Evaluate(ctx, "location.href", true)
	if err != nil {
		return "", cdperrs.Wrap(cdperrs.KindProtocol, err, "getUrl")
	}
	if exc != nil {
		return "", cdperrs.New(cdperrs.KindElement, "getUrl exception: %s", exc.Text)
	}
	var s string
	if obj != nil {
		json.Unmarshal(obj.Value, &s)
	}
	return s, nil
}

func GetTitle(ctx context.Context, ctl *pagectl.Controller) (string, error) {
	obj, exc, err := ctl.Evaluate(ctx, "document.title", true)
	if err != nil {
		return "", cdperrs.Wrap(cdperrs.KindProtocol, err, "getTitle")
	}
	if exc != nil {
		return "", cdperrs.New(cdperrs.KindElement, "getTitle exception: %s", exc.Text)
	}
	var s string
	if obj != nil {
		json.Unmarshal(obj.Value, &s)
	}
	return s, nil
}

// SiteProfile is the per-site JSON blob writeSiteProfile/readSiteProfile
// persist under the tab's temp directory, a supplemented feature letting
// an agent remember selectors/heuristics it has already learned for a
// domain across invocations.
type SiteProfile map[string]interface{}

func WriteSiteProfile(tmpDir, host string, profile SiteProfile) error {
	if tmpDir == "" {
		tmpDir = os.TempDir()
	}
	b, err := json.MarshalIndent(profile, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(tmpDir, host+".profile.json"), b, 0o644)
}

func ReadSiteProfile(tmpDir, host string) (SiteProfile, error) {
	if tmpDir == "" {
		tmpDir = os.TempDir()
	}
	b, err := os.ReadFile(filepath.Join(tmpDir, host+".profile.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return SiteProfile{}, nil
		}
		return nil, err
	}
	var p SiteProfile
	if err := json.Unmarshal(b, &p); err != nil {
		return nil, err
	}
	return p, nil
}

// Tabs wraps discover.Client/Registry for listTabs/closeTab/newTab/switchTab.
type Tabs struct {
	Client   *discover.Client
	Registry *discover.Registry
}

func (t *Tabs) List(ctx context.Context) ([]discover.TargetInfo, error) {
	return t.Client.List(ctx)
}

func (t *Tabs) New(ctx context.Context, url, alias string) (string, error) {
	info, err := t.Client.New(ctx, url)
	if err != nil {
		return "", err
	}
	return t.Registry.Set(alias, info.ID)
}

func (t *Tabs) Close(ctx context.Context, alias string) error {
	id, err := t.Registry.Resolve(alias)
	if err != nil {
		return err
	}
	if err := t.Client.Close(ctx, id); err != nil {
		return err
	}
	return t.Registry.Remove(alias)
}

func (t *Tabs) Resolve(alias string) (string, error) {
	return t.Registry.Resolve(alias)
}

// Reload reloads the current document.
func Reload(ctx context.Context, ctl *pagectl.Controller, ignoreCache bool) error {
	cctx := ctl.ExecutorContext(ctx)
	if err := page.Reload().WithIgnoreCache(ignoreCache).Do(cctx); err != nil {
		return cdperrs.Wrap(cdperrs.KindNavigation, err, "Page.reload")
	}
	ctl.Invalidate()
	return nil
}

// NavigateHistory walks the navigation history one entry back or forward.
func NavigateHistory(ctx context.Context, ctl *pagectl.Controller, delta int) error {
	cctx := ctl.ExecutorContext(ctx)
	cur, entries, err := page.GetNavigationHistory().Do(cctx)
	if err != nil {
		return cdperrs.Wrap(cdperrs.KindProtocol, err, "Page.getNavigationHistory")
	}
	idx := -1
	for i, e := range entries {
		if e.ID == cur {
			idx = i
			break
		}
	}
	target := idx + delta
	if idx < 0 || target < 0 || target >= len(entries) {
		return cdperrs.New(cdperrs.KindNavigation, "no navigation history entry at offset %d", delta)
	}
	if err := page.NavigateToHistoryEntry(entries[target].ID).Do(cctx); err != nil {
		return cdperrs.Wrap(cdperrs.KindNavigation, err, "Page.navigateToHistoryEntry")
	}
	ctl.Invalidate()
	return nil
}

// WaitForNavigation blocks until document.readyState reaches "complete" or
// timeout elapses, for callers that triggered navigation indirectly (a
// click, a form submit) rather than through Goto.
func WaitForNavigation(ctx context.Context, ctl *pagectl.Controller, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return Wait(ctx, ctl, `document.readyState === 'complete'`, timeout)
}

// CaptureScreenshotPNG captures a full-viewport screenshot as PNG bytes.
func CaptureScreenshotPNG(ctx context.Context, ctl *pagectl.Controller) ([]byte, error) {
	cctx := ctl.ExecutorContext(ctx)
	data, err := page.CaptureScreenshot().WithFormat(page.CaptureScreenshotFormatPng).Do(cctx)
	if err != nil {
		return nil, cdperrs.Wrap(cdperrs.KindProtocol, err, "Page.captureScreenshot")
	}
	return data, nil
}

// CapturePDF renders the page to PDF bytes via Page.printToPDF.
func CapturePDF(ctx context.Context, ctl *pagectl.Controller) ([]byte, error) {
	cctx := ctl.ExecutorContext(ctx)
	data, _, err := page.PrintToPDF().Do(cctx)
	if err != nil {
		return nil, cdperrs.Wrap(cdperrs.KindProtocol, err, "Page.printToPDF")
	}
	return data, nil
}

// encodeDataURL builds a base64 data URL for data of the given MIME type.
// Nothing in this module calls it at present.
func encodeDataURL(mime string, data []byte) string {
	return fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(data))
}
