package steps

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"

	"github.com/cdpskill/cdpskill/internal/actions"
	"github.com/cdpskill/cdpskill/internal/aria"
	"github.com/cdpskill/cdpskill/internal/cdperrs"
	"github.com/cdpskill/cdpskill/internal/pagectl"
	"github.com/cdpskill/cdpskill/internal/resolver"
)

// Deps bundles every collaborator a dispatched step may need. One Deps
// value is shared across all steps of a single invocation.
type Deps struct {
	Ctl      *pagectl.Controller
	Snap     *aria.Builder
	Resolver *resolver.Resolver
	Tabs        *actions.Tabs
	Console     *actions.ConsoleWatcher
	TabAlias    string
	TmpDir      string
	Host        string
	InlineLimit int
}

func fieldString(m map[string]interface{}, key string) string {
	s, _ := m[key].(string)
	return s
}

func fieldFloat(m map[string]interface{}, key string) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	}
	return 0
}

func fieldInt(m map[string]interface{}, key string) int {
	return int(fieldFloat(m, key))
}

func fieldBool(m map[string]interface{}, key string) bool {
	b, _ := m[key].(bool)
	return b
}

func fieldDuration(m map[string]interface{}, key string, def time.Duration) time.Duration {
	if v, ok := m[key]; ok {
		if f, ok := v.(float64); ok {
			return time.Duration(f) * time.Millisecond
		}
	}
	return def
}

func decodeTarget(m map[string]interface{}) actions.Target {
	t := actions.Target{
		Ref:      fieldString(m, "ref"),
		Selector: fieldString(m, "selector"),
		Text:     fieldString(m, "text"),
		Exact:    fieldBool(m, "exact"),
		Tag:      fieldString(m, "tag"),
	}
	if t.Ref == "" && t.Selector != "" && IsRef(t.Selector) {
		t.Ref = t.Selector
		t.Selector = ""
	}
	return t
}

func decodeStrings(v interface{}) []string {
	arr, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, e := range arr {
		if s, ok := e.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// dispatch executes one already-validated step and returns the raw value
// that becomes the step result's "result" field.
func dispatch(ctx context.Context, d Deps, action string, raw json.RawMessage) (interface{}, error) {
	m, err := decodeFields(raw)
	if err != nil {
		return nil, cdperrs.New(cdperrs.KindValidation, "invalid step parameters: %v", err)
	}

	switch action {
	case "goto":
		wu := pagectl.WaitUntil(fieldString(m, "waitUntil"))
		if wu == "" {
			wu = pagectl.WaitLoad
		}
		return d.Ctl.Goto(ctx, fieldString(m, "url"), wu)

	case "reload":
		return nil, actions.Reload(ctx, d.Ctl, fieldBool(m, "ignoreCache"))

	case "wait":
		return nil, actions.Wait(ctx, d.Ctl, fieldString(m, "expression"), fieldDuration(m, "timeout", 5*time.Second))

	case "sleep":
		return nil, actions.Sleep(ctx, fieldDuration(m, "ms", 0))

	case "click":
		target := decodeTarget(m)
		opts := actions.ClickOptions{Target: target, JSClick: fieldBool(m, "jsClick"), Force: fieldBool(m, "force")}
		if _, hasXY := m["x"]; hasXY {
			xf, yf := fieldFloat(m, "x"), fieldFloat(m, "y")
			opts.X, opts.Y = &xf, &yf
		}
		return actions.Click(ctx, d.Ctl, d.Resolver, opts)

	case "fill":
		var fields []actions.Field
		if fs, ok := m["fields"].([]interface{}); ok {
			for _, raw := range fs {
				fm, _ := raw.(map[string]interface{})
				fields = append(fields, actions.Field{Target: decodeTarget(fm), Value: fieldString(fm, "value")})
			}
		} else {
			fields = append(fields, actions.Field{Target: decodeTarget(m), Value: fieldString(m, "value")})
		}
		return nil, actions.Fill(ctx, d.Ctl, d.Resolver, actions.FillOptions{Fields: fields, Clear: fieldBool(m, "clear")})

	case "press":
		return nil, actions.Press(ctx, d.Ctl, actions.PressOptions{
			Key: fieldString(m, "key"), Meta: fieldBool(m, "meta"), Control: fieldBool(m, "control"),
			Shift: fieldBool(m, "shift"), Alt: fieldBool(m, "alt"), IsMacOS: fieldBool(m, "isMacOS"),
		})

	case "query", "queryAll":
		all := action == "queryAll" || fieldBool(m, "all")
		opts := actions.QueryOptions{
			Selector: fieldString(m, "selector"), Name: fieldString(m, "name"),
			NameExact: fieldBool(m, "nameExact"), NameRegex: fieldString(m, "nameRegex"),
			Level: fieldInt(m, "level"), Metadata: fieldBool(m, "metadata"), All: all,
			Roles: decodeStrings(m["roles"]),
		}
		if r := fieldString(m, "role"); r != "" {
			opts.Roles = append(opts.Roles, r)
		}
		if opts.Selector != "" {
			return actions.Query(ctx, d.Ctl, opts)
		}
		snap, err := d.Snap.Build(aria.BuildOptions{Detail: aria.DetailInteractive})
		if err != nil {
			return nil, err
		}
		return actions.QueryByRole(snap, opts)

	case "inspect":
		target := decodeTarget(m)
		objID, err := target.Resolve(ctx, d.Ctl, d.Resolver)
		if err != nil {
			return nil, err
		}
		defer d.Ctl.ReleaseObject(ctx, objID)
		box, err := actions.GetBox(ctx, d.Ctl, objID)
		if err != nil {
			return nil, err
		}
		return box, nil

	case "scroll":
		objID := runtime.RemoteObjectID("")
		if t := decodeTarget(m); t != (actions.Target{}) {
			resolved, err := t.Resolve(ctx, d.Ctl, d.Resolver)
			if err == nil {
				objID = resolved
				defer d.Ctl.ReleaseObject(ctx, objID)
			}
		}
		return nil, actions.Scroll(ctx, d.Ctl, objID, fieldFloat(m, "dx"), fieldFloat(m, "dy"))

	case "console":
		if d.Console == nil {
			return []actions.ConsoleMessage{}, nil
		}
		return d.Console.Drain(), nil

	case "pdf":
		data, err := actions.CapturePDF(ctx, d.Ctl)
		if err != nil {
			return nil, err
		}
		pageCount, preview, err := actions.PDFPreview(data)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"pdf":         fmt.Sprintf("data:application/pdf;base64,%s", base64.StdEncoding.EncodeToString(data)),
			"pageCount":   pageCount,
			"textPreview": preview,
		}, nil

	case "snapshot":
		inlineLimit := fieldInt(m, "inlineLimit")
		if inlineLimit == 0 {
			inlineLimit = d.InlineLimit
		}
		return d.Snap.Build(aria.BuildOptions{
			Detail: aria.Detail(orDefault(fieldString(m, "detail"), string(aria.DetailInteractive))),
			TabAlias: d.TabAlias, TmpDir: d.TmpDir, InlineLimit: inlineLimit,
			Explicit: true, PierceShadow: fieldBool(m, "pierceShadow"),
		})

	case "snapshotSearch":
		snap, err := d.Snap.Build(aria.BuildOptions{Detail: aria.DetailFull, TabAlias: d.TabAlias, TmpDir: d.TmpDir})
		if err != nil {
			return nil, err
		}
		q := actions.SearchQuery{Text: fieldString(m, "text"), Pattern: fieldString(m, "pattern"), Role: fieldString(m, "role"), Exact: fieldBool(m, "exact"), Limit: fieldInt(m, "limit")}
		if _, ok := m["nearX"]; ok {
			x, y := fieldFloat(m, "nearX"), fieldFloat(m, "nearY")
			q.NearX, q.NearY = &x, &y
			q.Radius = fieldFloat(m, "radius")
		}
		return actions.Search(snap, q)

	case "hover":
		return nil, actions.Hover(ctx, d.Ctl, d.Resolver, decodeTarget(m))

	case "viewport":
		return nil, actions.SetViewport(ctx, d.Ctl, int64(fieldInt(m, "width")), int64(fieldInt(m, "height")), orDefaultFloat(fieldFloat(m, "deviceScaleFactor"), 1), fieldBool(m, "mobile"))

	case "cookies":
		switch fieldString(m, "op") {
		case "get":
			return actions.GetCookies(ctx, d.Ctl)
		case "set":
			return nil, actions.SetCookies(ctx, d.Ctl, decodeCookieParams(m["cookies"]))
		case "clear":
			return nil, actions.ClearCookies(ctx, d.Ctl)
		default:
			return nil, cdperrs.New(cdperrs.KindValidation, "cookies op must be get, set, or clear")
		}

	case "back":
		return nil, actions.NavigateHistory(ctx, d.Ctl, -1)
	case "forward":
		return nil, actions.NavigateHistory(ctx, d.Ctl, 1)
	case "waitForNavigation":
		return nil, actions.WaitForNavigation(ctx, d.Ctl, fieldDuration(m, "timeout", 10*time.Second))

	case "listTabs":
		return d.Tabs.List(ctx)
	case "closeTab":
		return nil, d.Tabs.Close(ctx, fieldString(m, "tab"))
	case "newTab":
		return d.Tabs.New(ctx, fieldString(m, "url"), fieldString(m, "alias"))
	case "switchTab":
		return d.Tabs.Resolve(fieldString(m, "tab"))

	case "selectText":
		target := decodeTarget(m)
		objID, err := target.Resolve(ctx, d.Ctl, d.Resolver)
		if err != nil {
			return nil, err
		}
		defer d.Ctl.ReleaseObject(ctx, objID)
		return nil, actions.SelectText(ctx, d.Ctl, objID)

	case "selectOption":
		target := decodeTarget(m)
		objID, err := target.Resolve(ctx, d.Ctl, d.Resolver)
		if err != nil {
			return nil, err
		}
		defer d.Ctl.ReleaseObject(ctx, objID)
		return nil, actions.SelectOption(ctx, d.Ctl, objID, fieldString(m, "value"))

	case "submit":
		target := decodeTarget(m)
		objID, err := target.Resolve(ctx, d.Ctl, d.Resolver)
		if err != nil {
			return nil, err
		}
		defer d.Ctl.ReleaseObject(ctx, objID)
		return nil, actions.Submit(ctx, d.Ctl, objID)

	case "assert":
		return nil, actions.Assert(ctx, d.Ctl, fieldString(m, "expression"), fieldString(m, "message"))

	case "frame":
		fc, err := d.Ctl.SelectFrame(pagectl.FrameSelector{Selector: fieldString(m, "selector"), Name: fieldString(m, "name"), Top: fieldBool(m, "top")})
		if err != nil {
			return nil, err
		}
		d.Ctl.SetSelected(fc)
		return fc, nil

	case "drag":
		return nil, actions.Drag(ctx, d.Ctl, d.Resolver, decodeTarget(m), fieldFloat(m, "toX"), fieldFloat(m, "toY"))

	case "get":
		return actions.Get(ctx, d.Ctl, fieldString(m, "expression"))

	case "getDom":
		target := decodeTarget(m)
		objID, err := target.Resolve(ctx, d.Ctl, d.Resolver)
		if err != nil {
			return nil, err
		}
		defer d.Ctl.ReleaseObject(ctx, objID)
		return actions.GetDom(ctx, d.Ctl, objID)

	case "getBox":
		target := decodeTarget(m)
		objID, err := target.Resolve(ctx, d.Ctl, d.Resolver)
		if err != nil {
			return nil, err
		}
		defer d.Ctl.ReleaseObject(ctx, objID)
		return actions.GetBox(ctx, d.Ctl, objID)

	case "elementsAt":
		return actions.ElementsAt(ctx, d.Ctl, fieldFloat(m, "x"), fieldFloat(m, "y"))

	case "pageFunction":
		returnByValue := true
		if v, ok := m["returnByValue"].(bool); ok {
			returnByValue = v
		}
		return actions.PageFunction(ctx, d.Ctl, fieldString(m, "expression"), returnByValue, fieldDuration(m, "timeout", 5*time.Second))

	case "poll":
		return actions.Poll(ctx, d.Ctl, fieldString(m, "expression"), fieldDuration(m, "interval", 200*time.Millisecond), fieldDuration(m, "timeout", 5*time.Second))

	case "writeSiteProfile":
		profile, _ := m["profile"].(map[string]interface{})
		return nil, actions.WriteSiteProfile(d.TmpDir, d.Host, actions.SiteProfile(profile))

	case "readSiteProfile":
		return actions.ReadSiteProfile(d.TmpDir, d.Host)

	case "getUrl":
		return actions.GetURL(ctx, d.Ctl)
	case "getTitle":
		return actions.GetTitle(ctx, d.Ctl)

	case "upload":
		target := decodeTarget(m)
		objID, err := target.Resolve(ctx, d.Ctl, d.Resolver)
		if err != nil {
			return nil, err
		}
		defer d.Ctl.ReleaseObject(ctx, objID)
		return nil, actions.Upload(ctx, d.Ctl, objID, decodeStrings(m["files"]))

	default:
		return nil, cdperrs.New(cdperrs.KindValidation, "unknown step action %q", action)
	}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func orDefaultFloat(f, def float64) float64 {
	if f == 0 {
		return def
	}
	return f
}

func decodeCookieParams(v interface{}) []*network.CookieParam {
	arr, ok := v.([]interface{})
	if !ok {
		return nil
	}
	var out []*network.CookieParam
	for _, e := range arr {
		m, ok := e.(map[string]interface{})
		if !ok {
			continue
		}
		out = append(out, &network.CookieParam{
			Name:   fieldString(m, "name"),
			Value:  fieldString(m, "value"),
			Domain: fieldString(m, "domain"),
			Path:   fieldString(m, "path"),
		})
	}
	return out
}
