// Package steps implements the Step Runner (spec.md §4.6): a registry of
// validators keyed by step type, a validate-before-execute pass, dispatch
// to the Executors in internal/actions, and the around-step protocol that
// attaches before/after diffs and viewport snapshots to visual steps.
package steps

import (
	"encoding/json"
	"fmt"
	"regexp"
)

// refPattern matches the wire ref format spec.md §6 defines; any click
// selector matching it is automatically treated as a ref.
var refPattern = regexp.MustCompile(`^f(\d+|\[[^\]]+\])s\d+e\d+$`)

// IsRef reports whether s looks like a ref rather than a CSS selector.
func IsRef(s string) bool { return refPattern.MatchString(s) }

// Entry is one registry row: a validator over the step's raw parameters, an
// isVisual flag controlling the around-step protocol, and the hook keys the
// step type accepts.
type Entry struct {
	Validate func(raw json.RawMessage) []string
	IsVisual bool
	Hooks    map[string]bool
}

func hooks(keys ...string) map[string]bool {
	m := make(map[string]bool, len(keys))
	for _, k := range keys {
		m[k] = true
	}
	return m
}

func decodeFields(raw json.RawMessage) (map[string]interface{}, error) {
	var m map[string]interface{}
	if len(raw) == 0 {
		return map[string]interface{}{}, nil
	}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func requireOneOf(m map[string]interface{}, keys ...string) []string {
	for _, k := range keys {
		if _, ok := m[k]; ok {
			return nil
		}
	}
	return []string{fmt.Sprintf("must set one of: %v", keys)}
}

func requireAll(m map[string]interface{}, keys ...string) []string {
	var errs []string
	for _, k := range keys {
		if _, ok := m[k]; !ok {
			errs = append(errs, fmt.Sprintf("missing required field %q", k))
		}
	}
	return errs
}

func mutuallyExclusive(m map[string]interface{}, keys ...string) []string {
	n := 0
	for _, k := range keys {
		if _, ok := m[k]; ok {
			n++
		}
	}
	if n > 1 {
		return []string{fmt.Sprintf("at most one of %v may be set", keys)}
	}
	return nil
}

func simpleValidator(fn func(m map[string]interface{}) []string) func(json.RawMessage) []string {
	return func(raw json.RawMessage) []string {
		m, err := decodeFields(raw)
		if err != nil {
			return []string{fmt.Sprintf("invalid JSON: %v", err)}
		}
		return fn(m)
	}
}

func targetValidator(m map[string]interface{}) []string {
	errs := mutuallyExclusive(m, "ref", "selector", "text")
	if _, hasX := m["x"]; hasX {
		if _, hasY := m["y"]; !hasY {
			errs = append(errs, "x requires y")
		}
		return errs
	}
	if len(requireOneOf(m, "ref", "selector", "text", "x")) > 0 {
		errs = append(errs, "target requires one of ref, selector, text, or x/y")
	}
	return errs
}

// Registry indexes every step type spec.md §6 enumerates.
var Registry = map[string]Entry{
	"goto": {
		Validate: simpleValidator(func(m map[string]interface{}) []string { return requireAll(m, "url") }),
		IsVisual: true,
		Hooks:    hooks("waitUntil"),
	},
	"reload": {Validate: simpleValidator(func(m map[string]interface{}) []string { return nil }), IsVisual: true},
	"wait": {
		Validate: simpleValidator(func(m map[string]interface{}) []string { return requireAll(m, "expression") }),
		IsVisual: false,
	},
	"sleep": {
		Validate: simpleValidator(func(m map[string]interface{}) []string { return requireAll(m, "ms") }),
		IsVisual: false,
	},
	"click":    {Validate: simpleValidator(targetValidator), IsVisual: true, Hooks: hooks("readyWhen", "settledWhen", "observe", "waitAfter")},
	"fill":     {Validate: simpleValidator(func(m map[string]interface{}) []string { return requireOneOf(m, "value", "fields") }), IsVisual: true, Hooks: hooks("readyWhen", "settledWhen", "observe")},
	"press":    {Validate: simpleValidator(func(m map[string]interface{}) []string { return requireAll(m, "key") }), IsVisual: true, Hooks: hooks("observe")},
	"query":    {Validate: simpleValidator(func(m map[string]interface{}) []string { return requireOneOf(m, "selector", "role", "roles") }), IsVisual: false},
	"queryAll": {Validate: simpleValidator(func(m map[string]interface{}) []string { return requireOneOf(m, "selector", "role", "roles") }), IsVisual: false},
	"inspect":  {Validate: simpleValidator(func(m map[string]interface{}) []string { return targetValidator(m) }), IsVisual: false},
	"scroll":   {Validate: simpleValidator(func(m map[string]interface{}) []string { return nil }), IsVisual: true, Hooks: hooks("observe")},
	"console":  {Validate: simpleValidator(func(m map[string]interface{}) []string { return nil }), IsVisual: false},
	"pdf":      {Validate: simpleValidator(func(m map[string]interface{}) []string { return nil }), IsVisual: false},
	"snapshot": {Validate: simpleValidator(func(m map[string]interface{}) []string { return nil }), IsVisual: false},
	"snapshotSearch": {
		Validate: simpleValidator(func(m map[string]interface{}) []string { return requireOneOf(m, "text", "pattern", "role") }),
		IsVisual: false,
	},
	"hover":             {Validate: simpleValidator(targetValidator), IsVisual: true, Hooks: hooks("observe")},
	"viewport":          {Validate: simpleValidator(func(m map[string]interface{}) []string { return requireAll(m, "width", "height") }), IsVisual: false},
	"cookies":           {Validate: simpleValidator(func(m map[string]interface{}) []string { return requireAll(m, "op") }), IsVisual: false},
	"back":              {Validate: simpleValidator(func(m map[string]interface{}) []string { return nil }), IsVisual: true},
	"forward":           {Validate: simpleValidator(func(m map[string]interface{}) []string { return nil }), IsVisual: true},
	"waitForNavigation": {Validate: simpleValidator(func(m map[string]interface{}) []string { return nil }), IsVisual: true},
	"listTabs":          {Validate: simpleValidator(func(m map[string]interface{}) []string { return nil }), IsVisual: false},
	"closeTab":          {Validate: simpleValidator(func(m map[string]interface{}) []string { return requireAll(m, "tab") }), IsVisual: false},
	"newTab":            {Validate: simpleValidator(func(m map[string]interface{}) []string { return nil }), IsVisual: false},
	"selectText":        {Validate: simpleValidator(targetValidator), IsVisual: true},
	"selectOption":      {Validate: simpleValidator(func(m map[string]interface{}) []string { errs := targetValidator(m); return append(errs, requireAll(m, "value")...) }), IsVisual: true},
	"submit":            {Validate: simpleValidator(targetValidator), IsVisual: true},
	"assert": {
		Validate: simpleValidator(func(m map[string]interface{}) []string { return requireAll(m, "expression") }),
		IsVisual: false,
	},
	"frame":    {Validate: simpleValidator(func(m map[string]interface{}) []string { return nil }), IsVisual: false},
	"drag":     {Validate: simpleValidator(func(m map[string]interface{}) []string { errs := targetValidator(m); return append(errs, requireAll(m, "toX", "toY")...) }), IsVisual: true},
	"get":      {Validate: simpleValidator(func(m map[string]interface{}) []string { return requireAll(m, "expression") }), IsVisual: false},
	"getDom":   {Validate: simpleValidator(targetValidator), IsVisual: false},
	"getBox":   {Validate: simpleValidator(targetValidator), IsVisual: false},
	"elementsAt": {
		Validate: simpleValidator(func(m map[string]interface{}) []string { return requireAll(m, "x", "y") }),
		IsVisual: false,
	},
	"pageFunction":     {Validate: simpleValidator(func(m map[string]interface{}) []string { return requireAll(m, "expression") }), IsVisual: false},
	"poll":             {Validate: simpleValidator(func(m map[string]interface{}) []string { return requireAll(m, "expression") }), IsVisual: false},
	"writeSiteProfile": {Validate: simpleValidator(func(m map[string]interface{}) []string { return requireAll(m, "profile") }), IsVisual: false},
	"readSiteProfile":  {Validate: simpleValidator(func(m map[string]interface{}) []string { return nil }), IsVisual: false},
	"switchTab":        {Validate: simpleValidator(func(m map[string]interface{}) []string { return requireAll(m, "tab") }), IsVisual: false},
	"getUrl":           {Validate: simpleValidator(func(m map[string]interface{}) []string { return nil }), IsVisual: false},
	"getTitle":         {Validate: simpleValidator(func(m map[string]interface{}) []string { return nil }), IsVisual: false},
	"upload":           {Validate: simpleValidator(func(m map[string]interface{}) []string { errs := targetValidator(m); return append(errs, requireAll(m, "files")...) }), IsVisual: true},
}
