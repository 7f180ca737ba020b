package actions

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/cdpskill/cdpskill/internal/aria"
	"github.com/cdpskill/cdpskill/internal/cdperrs"
	"github.com/cdpskill/cdpskill/internal/pagectl"
)

// QueryOptions is the union of the "query"/"queryAll" step's CSS and
// role-based filter shapes (spec.md §4.5.4).
type QueryOptions struct {
	Selector   string
	Roles      []string
	Name       string
	NameExact  bool
	NameRegex  string
	Level      int
	Metadata   bool
	All        bool
}

// QueryMatch is one query/queryAll result.
type QueryMatch struct {
	Ref      string                 `json:"ref,omitempty"`
	Role     string                 `json:"role,omitempty"`
	Name     string                 `json:"name,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

const querySelectorMetaJS = `function(sel, all) {
	const nodes = all ? Array.from(document.querySelectorAll(sel)) : (document.querySelector(sel) ? [document.querySelector(sel)] : []);
	return JSON.stringify(nodes.map((el) => ({
		tag: el.tagName.toLowerCase(),
		name: (el.getAttribute('aria-label') || el.textContent || '').trim().slice(0, 150),
		id: el.id || undefined,
		className: el.className || undefined,
	})));
}`

// Query resolves a CSS-selector query against the live DOM, used when the
// step supplies "selector" rather than a role-based filter.
func Query(ctx context.Context, ctl *pagectl.Controller, opts QueryOptions) ([]QueryMatch, error) {
	if opts.Selector == "" {
		return nil, cdperrs.New(cdperrs.KindValidation, "query requires a selector or role filter")
	}
	expr := fmt.Sprintf("(%s)(%s, %v)", querySelectorMetaJS, mustJSONString(opts.Selector), opts.All)
	obj, exc, err := ctl.Evaluate(ctx, expr, true)
	if err != nil {
		return nil, cdperrs.Wrap(cdperrs.KindProtocol, err, "query selector %q", opts.Selector)
	}
	if exc != nil {
		return nil, cdperrs.New(cdperrs.KindElement, "query exception: %s", exc.Text)
	}
	var quoted string
	if obj == nil || json.Unmarshal(obj.Value, &quoted) != nil {
		return nil, cdperrs.New(cdperrs.KindElement, "query: could not decode result")
	}
	var raw []struct {
		Tag       string `json:"tag"`
		Name      string `json:"name"`
		ID        string `json:"id"`
		ClassName string `json:"className"`
	}
	if err := json.Unmarshal([]byte(quoted), &raw); err != nil {
		return nil, cdperrs.Wrap(cdperrs.KindElement, err, "decode query matches")
	}
	out := make([]QueryMatch, 0, len(raw))
	for _, r := range raw {
		m := QueryMatch{Role: r.Tag, Name: r.Name}
		if opts.Metadata {
			m.Metadata = map[string]interface{}{"tag": r.Tag, "id": r.ID, "className": r.ClassName}
		}
		out = append(out, m)
	}
	return out, nil
}

// QueryByRole filters an existing aria.Snapshot by role/name/level, the
// role-based shape of the query step that works off a snapshot the engine
// already has in hand rather than re-walking the live DOM.
func QueryByRole(snap *aria.Snapshot, opts QueryOptions) ([]QueryMatch, error) {
	roleSet := make(map[string]bool, len(opts.Roles))
	for _, r := range opts.Roles {
		roleSet[r] = true
	}

	var nameRe *regexp.Regexp
	if opts.NameRegex != "" {
		re, err := regexp.Compile(opts.NameRegex)
		if err != nil {
			return nil, cdperrs.Wrap(cdperrs.KindValidation, err, "invalid nameRegex %q", opts.NameRegex)
		}
		nameRe = re
	}

	var out []QueryMatch
	for _, n := range snap.Nodes {
		if len(roleSet) > 0 && !roleSet[n.Role] {
			continue
		}
		if opts.Name != "" {
			if opts.NameExact {
				if !strings.EqualFold(strings.TrimSpace(n.Name), strings.TrimSpace(opts.Name)) {
					continue
				}
			} else if !strings.Contains(strings.ToLower(n.Name), strings.ToLower(opts.Name)) {
				continue
			}
		}
		if nameRe != nil && !nameRe.MatchString(n.Name) {
			continue
		}
		if opts.Level > 0 {
			lvl, ok := n.States["level"]
			if !ok {
				continue
			}
			lf, ok := lvl.(float64)
			if !ok || int(lf) != opts.Level {
				continue
			}
		}
		m := QueryMatch{Ref: n.Ref, Role: n.Role, Name: n.Name}
		if opts.Metadata {
			m.Metadata = map[string]interface{}{"depth": n.Depth, "visible": n.Visible, "states": n.States}
		}
		out = append(out, m)
		if !opts.All && len(out) == 1 {
			break
		}
	}
	return out, nil
}
