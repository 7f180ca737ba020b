package actions

import (
	"context"
	"encoding/json"
	"time"

	"github.com/chromedp/cdproto/input"

	"github.com/cdpskill/cdpskill/internal/cdperrs"
	"github.com/cdpskill/cdpskill/internal/keys"
	"github.com/cdpskill/cdpskill/internal/pagectl"
	"github.com/cdpskill/cdpskill/internal/resolver"
)

// Field is one {target, value} pair from any of fill's accepted shapes
// (spec.md §4.5.2): a single focused value, a single targeted field, or a
// batch of fields.
type Field struct {
	Target Target
	Value  string
}

// FillOptions configures one fill executor invocation.
type FillOptions struct {
	Fields    []Field
	Clear     bool
	CharDelay time.Duration
}

const editableCheckJS = `function() {
	const tag = this.tagName.toLowerCase();
	if (this.isContentEditable) return true;
	if (tag !== 'input' && tag !== 'textarea') return false;
	if (this.disabled || this.readOnly) return false;
	if (tag === 'input') {
		const t = (this.getAttribute('type') || 'text').toLowerCase();
		const editable = ['text', 'search', 'url', 'tel', 'email', 'password', 'number'];
		return editable.indexOf(t) !== -1;
	}
	return true;
}`

const selectAllJS = `function() { this.focus(); if (this.select) this.select(); return true; }`

// Fill implements spec.md §4.5.2: resolve, verify editability, clear, and
// insert each field's value.
func Fill(ctx context.Context, ctl *pagectl.Controller, res *resolver.Resolver, opts FillOptions) error {
	for _, f := range opts.Fields {
		if err := fillOne(ctx, ctl, res, f, opts); err != nil {
			return err
		}
	}
	return nil
}

func fillOne(ctx context.Context, ctl *pagectl.Controller, res *resolver.Resolver, f Field, opts FillOptions) error {
	objID, err := f.Target.Resolve(ctx, ctl, res)
	if err != nil {
		return err
	}
	defer ctl.ReleaseObject(ctx, objID)

	editable, exc, err := ctl.CallFunctionOn(ctx, editableCheckJS, objID, nil, true)
	if err != nil {
		return cdperrs.Wrap(cdperrs.KindProtocol, err, "editability check")
	}
	if exc != nil {
		return cdperrs.New(cdperrs.KindElement, "editability check exception: %s", exc.Text)
	}
	var ok bool
	if editable != nil {
		json.Unmarshal(editable.Value, &ok)
	}
	if !ok {
		return cdperrs.New(cdperrs.KindElement, "element is not editable")
	}

	if err := ScrollIntoView(ctx, ctl, objID); err != nil {
		return err
	}

	if _, exc, err := ctl.CallFunctionOn(ctx, `function() { this.focus(); return true; }`, objID, nil, true); err != nil {
		return cdperrs.Wrap(cdperrs.KindProtocol, err, "focus")
	} else if exc != nil {
		return cdperrs.New(cdperrs.KindElement, "focus exception: %s", exc.Text)
	}

	if opts.Clear {
		if _, exc, err := ctl.CallFunctionOn(ctx, selectAllJS, objID, nil, true); err != nil {
			return cdperrs.Wrap(cdperrs.KindProtocol, err, "select all")
		} else if exc != nil {
			return cdperrs.New(cdperrs.KindElement, "select all exception: %s", exc.Text)
		}
		cctx := ctl.ExecutorContext(ctx)
		if err := pressNamed(cctx, "Delete", false); err != nil {
			return err
		}
	}

	if opts.CharDelay > 0 {
		return typeCharByChar(ctx, ctl, f.Value, opts.CharDelay)
	}
	return insertText(ctx, ctl, f.Value)
}

func insertText(ctx context.Context, ctl *pagectl.Controller, text string) error {
	cctx := ctl.ExecutorContext(ctx)
	if err := input.InsertText(text).Do(cctx); err != nil {
		return cdperrs.Wrap(cdperrs.KindTransport, err, "Input.insertText")
	}
	return nil
}

func typeCharByChar(ctx context.Context, ctl *pagectl.Controller, text string, delay time.Duration) error {
	cctx := ctl.ExecutorContext(ctx)
	for _, d := range keys.Encode(text) {
		if err := dispatchKeyDef(cctx, d); err != nil {
			return err
		}
		if delay > 0 {
			time.Sleep(delay)
		}
	}
	return nil
}

func dispatchKeyDef(cctx context.Context, d keys.Def) error {
	mods := input.ModifierNone
	if d.Shift {
		mods = input.ModifierShift
	}
	down := input.DispatchKeyEvent(input.KeyRawKeyDown).
		WithKey(d.Key).WithCode(d.Code).
		WithWindowsVirtualKeyCode(d.Windows).WithNativeVirtualKeyCode(d.Native).
		WithModifiers(mods)
	if err := down.Do(cctx); err != nil {
		return cdperrs.Wrap(cdperrs.KindTransport, err, "keyDown %s", d.Key)
	}
	if d.HasChar {
		char := input.DispatchKeyEvent(input.KeyChar).WithKey(d.Key).WithText(d.Text).WithModifiers(mods)
		if err := char.Do(cctx); err != nil {
			return cdperrs.Wrap(cdperrs.KindTransport, err, "char %s", d.Key)
		}
	}
	up := input.DispatchKeyEvent(input.KeyKeyUp).WithKey(d.Key).WithCode(d.Code).
		WithWindowsVirtualKeyCode(d.Windows).WithNativeVirtualKeyCode(d.Native).WithModifiers(mods)
	if err := up.Do(cctx); err != nil {
		return cdperrs.Wrap(cdperrs.KindTransport, err, "keyUp %s", d.Key)
	}
	return nil
}
