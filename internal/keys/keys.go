// Package keys provides the small DOM key-code table the keyboard executor
// needs to synthesize Input.dispatchKeyEvent sequences. It replaces the
// teacher's generated kb package (which requires a live fetch of Chromium's
// key-code source data at generation time) with a hand-written table
// covering the named keys and printable ASCII the engine's press/fill
// executors actually use.
package keys

// Def is one key's CDP dispatch parameters: the "key" and "code" UI Events
// values plus the legacy Windows/native virtual key codes CDP still wants.
type Def struct {
	Key        string
	Code       string
	Windows    int64
	Native     int64
	Shift      bool
	HasChar    bool // whether a "char" event should follow keyDown
	Text       string
}

// Named holds every key this package resolves by its spec.md name, e.g.
// "Enter", "Tab", "ArrowDown", "Backspace".
var Named = map[string]Def{
	"Enter":      {Key: "Enter", Code: "Enter", Windows: 13, Native: 13, HasChar: true, Text: "\r"},
	"Tab":        {Key: "Tab", Code: "Tab", Windows: 9, Native: 9},
	"Escape":     {Key: "Escape", Code: "Escape", Windows: 27, Native: 27},
	"Backspace":  {Key: "Backspace", Code: "Backspace", Windows: 8, Native: 8},
	"Delete":     {Key: "Delete", Code: "Delete", Windows: 46, Native: 46},
	"ArrowUp":    {Key: "ArrowUp", Code: "ArrowUp", Windows: 38, Native: 38},
	"ArrowDown":  {Key: "ArrowDown", Code: "ArrowDown", Windows: 40, Native: 40},
	"ArrowLeft":  {Key: "ArrowLeft", Code: "ArrowLeft", Windows: 37, Native: 37},
	"ArrowRight": {Key: "ArrowRight", Code: "ArrowRight", Windows: 39, Native: 39},
	"Home":       {Key: "Home", Code: "Home", Windows: 36, Native: 36},
	"End":        {Key: "End", Code: "End", Windows: 35, Native: 35},
	"PageUp":     {Key: "PageUp", Code: "PageUp", Windows: 33, Native: 33},
	"PageDown":   {Key: "PageDown", Code: "PageDown", Windows: 34, Native: 34},
	"Space":      {Key: " ", Code: "Space", Windows: 32, Native: 32, HasChar: true, Text: " "},
	"Meta":       {Key: "Meta", Code: "MetaLeft", Windows: 91, Native: 91},
	"Control":    {Key: "Control", Code: "ControlLeft", Windows: 17, Native: 17},
	"Shift":      {Key: "Shift", Code: "ShiftLeft", Windows: 16, Native: 16},
	"Alt":        {Key: "Alt", Code: "AltLeft", Windows: 18, Native: 18},
}

// macEditingCommands maps Meta+key combos to the browser-level editing
// command CDP's Input.dispatchKeyEvent "commands" field accepts, per
// spec.md §4.5.3: command combos synthesize no char event.
var macEditingCommands = map[string]string{
	"a": "selectAll",
	"c": "copy",
	"v": "paste",
	"x": "cut",
	"z": "undo",
}

// MacEditingCommand returns the editing command for Meta+key (case
// insensitive on the letter), and whether key is an editing combo at all.
// With shift set, "undo" becomes "redo".
func MacEditingCommand(key string, shift bool) (string, bool) {
	cmd, ok := macEditingCommands[lower(key)]
	if !ok {
		return "", false
	}
	if cmd == "undo" && shift {
		return "redo", true
	}
	return cmd, true
}

func lower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

// ForRune resolves a single printable rune to a Def suitable for a
// char-by-char typing pass.
func ForRune(r rune) Def {
	s := string(r)
	upper := r >= 'A' && r <= 'Z'
	d := Def{Key: s, Code: codeForRune(r), HasChar: true, Text: s, Shift: upper || isShiftedSymbol(r)}
	d.Windows = int64(windowsVirtualKey(r))
	d.Native = d.Windows
	return d
}

func codeForRune(r rune) string {
	switch {
	case r >= 'a' && r <= 'z':
		return "Key" + string(r-32)
	case r >= 'A' && r <= 'Z':
		return "Key" + string(r)
	case r >= '0' && r <= '9':
		return "Digit" + string(r)
	default:
		return "Unidentified"
	}
}

func windowsVirtualKey(r rune) int {
	switch {
	case r >= 'a' && r <= 'z':
		return int(r) - 32
	case r >= 'A' && r <= 'Z':
		return int(r)
	case r >= '0' && r <= '9':
		return int(r)
	default:
		return int(r)
	}
}

func isShiftedSymbol(r rune) bool {
	switch r {
	case '!', '@', '#', '$', '%', '^', '&', '*', '(', ')', '_', '+', '{', '}', '|', ':', '"', '<', '>', '?', '~':
		return true
	default:
		return false
	}
}

// Encode expands a literal string into the Defs a char-by-char typing pass
// should dispatch, one per rune.
func Encode(s string) []Def {
	defs := make([]Def, 0, len(s))
	for _, r := range s {
		defs = append(defs, ForRune(r))
	}
	return defs
}
