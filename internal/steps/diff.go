package steps

import (
	"fmt"
	"sort"

	"github.com/cdpskill/cdpskill/internal/aria"
)

// Diff is the before/after comparison attached to a visual step's result
// (spec.md §4.6 step 6), truncated to maxItems per bucket.
type Diff struct {
	Summary         string        `json:"summary"`
	Added           []string      `json:"added,omitempty"`
	Removed         []string      `json:"removed,omitempty"`
	Changed         []ChangedNode `json:"changed,omitempty"`
	VisualDiffRatio *float64      `json:"visualDiffRatio,omitempty"`
}

// ChangedNode is one ref's state transition between the before and after
// snapshot, field by field (spec.md §3 "Diff").
type ChangedNode struct {
	Ref   string      `json:"ref"`
	Field string      `json:"field"`
	From  interface{} `json:"from"`
	To    interface{} `json:"to"`
}

func nodesByRef(s *aria.Snapshot) map[string]aria.Node {
	if s == nil {
		return nil
	}
	m := make(map[string]aria.Node, len(s.Nodes))
	for _, n := range s.Nodes {
		if n.Ref == "" {
			continue
		}
		m[n.Ref] = n
	}
	return m
}

// fieldChanges reports every field that differs between a and b, as
// {field, from, to} triples, leaving Ref for the caller to fill in.
func fieldChanges(a, b aria.Node) []ChangedNode {
	var out []ChangedNode
	if a.Name != b.Name {
		out = append(out, ChangedNode{Field: "name", From: a.Name, To: b.Name})
	}
	if a.Visible != b.Visible {
		out = append(out, ChangedNode{Field: "visible", From: a.Visible, To: b.Visible})
	}
	if a.InViewport != b.InViewport {
		out = append(out, ChangedNode{Field: "inViewport", From: a.InViewport, To: b.InViewport})
	}

	keys := make(map[string]struct{}, len(a.States)+len(b.States))
	for k := range a.States {
		keys[k] = struct{}{}
	}
	for k := range b.States {
		keys[k] = struct{}{}
	}
	stateKeys := make([]string, 0, len(keys))
	for k := range keys {
		stateKeys = append(stateKeys, k)
	}
	sort.Strings(stateKeys)
	for _, k := range stateKeys {
		av, bv := a.States[k], b.States[k]
		if av != bv {
			out = append(out, ChangedNode{Field: "states." + k, From: av, To: bv})
		}
	}
	return out
}

func truncate(refs []string, maxItems int) []string {
	if maxItems <= 0 || len(refs) <= maxItems {
		return refs
	}
	return refs[:maxItems]
}

// computeDiff compares two ref-indexed node sets, reporting refs added,
// removed, or changed (with per-field transitions) between before and after.
func computeDiff(before, after *aria.Snapshot, maxItems int) Diff {
	beforeNodes := nodesByRef(before)
	afterNodes := nodesByRef(after)

	afterRefs := make([]string, 0, len(afterNodes))
	for ref := range afterNodes {
		afterRefs = append(afterRefs, ref)
	}
	sort.Strings(afterRefs)

	var added, changedRefs []string
	for _, ref := range afterRefs {
		if _, ok := beforeNodes[ref]; !ok {
			added = append(added, ref)
			continue
		}
		if len(fieldChanges(beforeNodes[ref], afterNodes[ref])) > 0 {
			changedRefs = append(changedRefs, ref)
		}
	}

	var removed []string
	for ref := range beforeNodes {
		if _, ok := afterNodes[ref]; !ok {
			removed = append(removed, ref)
		}
	}
	sort.Strings(removed)

	var changed []ChangedNode
	for _, ref := range truncate(changedRefs, maxItems) {
		for _, fc := range fieldChanges(beforeNodes[ref], afterNodes[ref]) {
			fc.Ref = ref
			changed = append(changed, fc)
		}
	}

	d := Diff{
		Added:   truncate(added, maxItems),
		Removed: truncate(removed, maxItems),
		Changed: changed,
	}
	d.Summary = summarize(len(added), len(removed), len(changedRefs))
	return d
}

func summarize(added, removed, changed int) string {
	if added == 0 && removed == 0 && changed == 0 {
		return "no change"
	}
	return fmt.Sprintf("+%d -%d ~%d", added, removed, changed)
}
