package actions

import (
	"context"
	"runtime"
	"strings"

	"github.com/chromedp/cdproto/input"

	"github.com/cdpskill/cdpskill/internal/cdperrs"
	"github.com/cdpskill/cdpskill/internal/keys"
	"github.com/cdpskill/cdpskill/internal/pagectl"
)

// PressOptions describes one press step, which may be a single named key or
// a modifier+key combo such as "Meta+a" (spec.md §4.5.3).
type PressOptions struct {
	Key      string
	Meta     bool
	Control  bool
	Shift    bool
	Alt      bool
	IsMacOS  bool
}

// Press implements spec.md §4.5.3: rawKeyDown -> optional char -> keyUp,
// with macOS Meta+key combos mapped to editing commands instead of a
// synthesized char event.
func Press(ctx context.Context, ctl *pagectl.Controller, opts PressOptions) error {
	cctx := ctl.ExecutorContext(ctx)

	isMac := opts.IsMacOS || runtime.GOOS == "darwin"
	if opts.Meta && isMac {
		if cmd, ok := keys.MacEditingCommand(opts.Key, opts.Shift); ok {
			return dispatchCommand(cctx, opts.Key, cmd)
		}
	}

	def, ok := keys.Named[opts.Key]
	if !ok && len([]rune(opts.Key)) == 1 {
		def = keys.ForRune([]rune(opts.Key)[0])
		ok = true
	}
	if !ok {
		return cdperrs.New(cdperrs.KindValidation, "unknown key %q", opts.Key)
	}

	mods := modifierMask(opts)
	def.Shift = def.Shift || opts.Shift

	down := input.DispatchKeyEvent(input.KeyRawKeyDown).
		WithKey(def.Key).WithCode(def.Code).
		WithWindowsVirtualKeyCode(def.Windows).WithNativeVirtualKeyCode(def.Native).
		WithModifiers(mods)
	if err := down.Do(cctx); err != nil {
		return cdperrs.Wrap(cdperrs.KindTransport, err, "keyDown %s", opts.Key)
	}
	if def.HasChar && !hasAnyModifier(opts) {
		char := input.DispatchKeyEvent(input.KeyChar).WithKey(def.Key).WithText(def.Text).WithModifiers(mods)
		if err := char.Do(cctx); err != nil {
			return cdperrs.Wrap(cdperrs.KindTransport, err, "char %s", opts.Key)
		}
	}
	up := input.DispatchKeyEvent(input.KeyKeyUp).WithKey(def.Key).WithCode(def.Code).
		WithWindowsVirtualKeyCode(def.Windows).WithNativeVirtualKeyCode(def.Native).WithModifiers(mods)
	if err := up.Do(cctx); err != nil {
		return cdperrs.Wrap(cdperrs.KindTransport, err, "keyUp %s", opts.Key)
	}
	return nil
}

func dispatchCommand(cctx context.Context, key, command string) error {
	def, ok := keys.Named[capitalize(key)]
	if !ok && len([]rune(key)) == 1 {
		def = keys.ForRune([]rune(key)[0])
	}
	ev := input.DispatchKeyEvent(input.KeyRawKeyDown).
		WithKey(def.Key).WithCode(def.Code).
		WithModifiers(input.ModifierMeta).
		WithCommands([]string{command})
	if err := ev.Do(cctx); err != nil {
		return cdperrs.Wrap(cdperrs.KindTransport, err, "editing command %s", command)
	}
	up := input.DispatchKeyEvent(input.KeyKeyUp).WithKey(def.Key).WithCode(def.Code).WithModifiers(input.ModifierMeta)
	return up.Do(cctx)
}

func modifierMask(opts PressOptions) input.Modifier {
	var m input.Modifier
	if opts.Alt {
		m |= input.ModifierAlt
	}
	if opts.Control {
		m |= input.ModifierCtrl
	}
	if opts.Meta {
		m |= input.ModifierMeta
	}
	if opts.Shift {
		m |= input.ModifierShift
	}
	return m
}

func hasAnyModifier(opts PressOptions) bool {
	return opts.Alt || opts.Control || opts.Meta
}

func capitalize(s string) string {
	s = strings.ToLower(s)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// pressNamed is the internal helper fill.go uses for the post-clear
// Delete key, with no modifiers.
func pressNamed(cctx context.Context, name string, shift bool) error {
	def, ok := keys.Named[name]
	if !ok {
		return cdperrs.New(cdperrs.KindValidation, "unknown key %q", name)
	}
	var mods input.Modifier
	if shift {
		mods = input.ModifierShift
	}
	down := input.DispatchKeyEvent(input.KeyRawKeyDown).WithKey(def.Key).WithCode(def.Code).
		WithWindowsVirtualKeyCode(def.Windows).WithNativeVirtualKeyCode(def.Native).WithModifiers(mods)
	if err := down.Do(cctx); err != nil {
		return cdperrs.Wrap(cdperrs.KindTransport, err, "keyDown %s", name)
	}
	up := input.DispatchKeyEvent(input.KeyKeyUp).WithKey(def.Key).WithCode(def.Code).
		WithWindowsVirtualKeyCode(def.Windows).WithNativeVirtualKeyCode(def.Native).WithModifiers(mods)
	if err := up.Do(cctx); err != nil {
		return cdperrs.Wrap(cdperrs.KindTransport, err, "keyUp %s", name)
	}
	return nil
}
