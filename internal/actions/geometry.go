// Package actions implements the Executors (spec.md §4.5): click, fill,
// keyboard, query/snapshotSearch, pageFunction/poll, and the supplemented
// step types the distilled spec left as simple collaborators.
package actions

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/chromedp/cdproto/runtime"

	"github.com/cdpskill/cdpskill/internal/cdperrs"
	"github.com/cdpskill/cdpskill/internal/pagectl"
	"github.com/cdpskill/cdpskill/internal/resolver"
)

// Box is a CSS pixel bounding rectangle, scroll-relative to the viewport.
type Box struct {
	X, Y, W, H float64
}

// Center returns the visible center point, clipped into the viewport.
func (b Box) Center(viewportW, viewportH float64) (x, y float64) {
	x = b.X + b.W/2
	y = b.Y + b.H/2
	if x < 0 {
		x = 0
	}
	if y < 0 {
		y = 0
	}
	if viewportW > 0 && x > viewportW {
		x = viewportW
	}
	if viewportH > 0 && y > viewportH {
		y = viewportH
	}
	return x, y
}

const boxModelJS = `function() {
	const r = this.getBoundingClientRect();
	return JSON.stringify({x: r.x, y: r.y, w: r.width, h: r.height});
}`

// GetBox retrieves an element's bounding box via Runtime.callFunctionOn,
// avoiding a dependency on DOM-domain node ids for a simple geometry read.
func GetBox(ctx context.Context, ctl *pagectl.Controller, objectID runtime.RemoteObjectID) (Box, error) {
	obj, exc, err := ctl.CallFunctionOn(ctx, boxModelJS, objectID, nil, true)
	if err != nil {
		return Box{}, cdperrs.Wrap(cdperrs.KindProtocol, err, "getBoundingClientRect")
	}
	if exc != nil {
		return Box{}, cdperrs.New(cdperrs.KindElement, "getBoundingClientRect exception: %s", exc.Text)
	}
	var quoted string
	if obj == nil || json.Unmarshal(obj.Value, &quoted) != nil {
		return Box{}, cdperrs.New(cdperrs.KindElement, "could not read bounding box")
	}
	var b Box
	if err := json.Unmarshal([]byte(quoted), &b); err != nil {
		return Box{}, cdperrs.Wrap(cdperrs.KindElement, err, "decode bounding box")
	}
	return b, nil
}

const scrollIntoViewJS = `function() {
	this.scrollIntoView({block: 'center', inline: 'center'});
	return true;
}`

// ScrollIntoView centers objectID in the viewport, whether or not it is
// already visible there.
func ScrollIntoView(ctx context.Context, ctl *pagectl.Controller, objectID runtime.RemoteObjectID) error {
	_, exc, err := ctl.CallFunctionOn(ctx, scrollIntoViewJS, objectID, nil, true)
	if err != nil {
		return cdperrs.Wrap(cdperrs.KindProtocol, err, "scrollIntoView")
	}
	if exc != nil {
		return cdperrs.New(cdperrs.KindElement, "scrollIntoView exception: %s", exc.Text)
	}
	return nil
}

// Target resolves a click/fill target description to a live object handle.
// Exactly one of Ref, Selector, Text, or X/Y (handled by the caller) should
// be set, mirroring the "one of {ref}|{selector}|{text}|{x,y}" input shapes
// spec.md §4.5.1 enumerates.
type Target struct {
	Ref      string
	Selector string
	Text     string
	Exact    bool
	Tag      string
}

var findByTextJS = `function(text, exact, tag) {
	const norm = (s) => (s || '').replace(/\s+/g, ' ').trim();
	const wantTag = (tag || '*').toLowerCase();
	const all = document.querySelectorAll(wantTag);
	const want = norm(text);
	for (const el of all) {
		const got = norm(el.textContent);
		if (exact ? got === want : got.toLowerCase().indexOf(want.toLowerCase()) !== -1) {
			return el;
		}
	}
	return null;
}`

// Resolve finds the live element an action target refers to, releasing no
// handles itself; callers own ReleaseObject on every exit path.
func (t Target) Resolve(ctx context.Context, ctl *pagectl.Controller, res *resolver.Resolver) (runtime.RemoteObjectID, error) {
	switch {
	case t.Ref != "":
		h, err := res.Resolve(t.Ref)
		if err != nil {
			return "", err
		}
		return h.ObjectID, nil
	case t.Selector != "":
		obj, exc, err := ctl.Evaluate(ctx, fmt.Sprintf("document.querySelector(%s)", mustJSONString(t.Selector)), false)
		if err != nil {
			return "", cdperrs.Wrap(cdperrs.KindProtocol, err, "querySelector")
		}
		if exc != nil {
			return "", cdperrs.New(cdperrs.KindElement, "querySelector exception: %s", exc.Text)
		}
		if obj == nil || obj.ObjectID == "" {
			return "", cdperrs.New(cdperrs.KindElement, "selector %q matched no element", t.Selector)
		}
		return obj.ObjectID, nil
	case t.Text != "":
		expr := fmt.Sprintf("(%s)(%s, %v, %s)", findByTextJS, mustJSONString(t.Text), t.Exact, mustJSONString(t.Tag))
		obj, exc, err := ctl.Evaluate(ctx, expr, false)
		if err != nil {
			return "", cdperrs.Wrap(cdperrs.KindProtocol, err, "find by text")
		}
		if exc != nil {
			return "", cdperrs.New(cdperrs.KindElement, "find by text exception: %s", exc.Text)
		}
		if obj == nil || obj.ObjectID == "" {
			return "", cdperrs.New(cdperrs.KindElement, "no element with text %q", t.Text)
		}
		return obj.ObjectID, nil
	default:
		return "", cdperrs.New(cdperrs.KindValidation, "click target must set ref, selector, text, or x/y")
	}
}

func mustJSONString(v string) string {
	b, _ := json.Marshal(v)
	return string(b)
}
