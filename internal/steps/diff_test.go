package steps

import (
	"testing"

	"github.com/cdpskill/cdpskill/internal/aria"
)

func TestComputeDiff_DetectsAddedRemovedChanged(t *testing.T) {
	before := &aria.Snapshot{Nodes: []aria.Node{
		{Ref: "r1", Name: "Submit", Visible: true},
		{Ref: "r2", Name: "Cancel", Visible: true},
	}}
	after := &aria.Snapshot{Nodes: []aria.Node{
		{Ref: "r1", Name: "Submit", Visible: false},
		{Ref: "r3", Name: "Confirmation", Visible: true},
	}}

	d := computeDiff(before, after, 50)
	if len(d.Added) != 1 || d.Added[0] != "r3" {
		t.Fatalf("expected r3 added, got %v", d.Added)
	}
	if len(d.Removed) != 1 || d.Removed[0] != "r2" {
		t.Fatalf("expected r2 removed, got %v", d.Removed)
	}
	if len(d.Changed) != 1 || d.Changed[0].Ref != "r1" || d.Changed[0].Field != "visible" {
		t.Fatalf("expected a single visible field change on r1, got %+v", d.Changed)
	}
	if d.Changed[0].From != true || d.Changed[0].To != false {
		t.Fatalf("expected visible to flip from true to false, got %+v", d.Changed[0])
	}
}

func TestComputeDiff_NoChangeSummary(t *testing.T) {
	snap := &aria.Snapshot{Nodes: []aria.Node{{Ref: "r1", Name: "Submit", Visible: true}}}
	d := computeDiff(snap, snap, 50)
	if d.Summary != "no change" {
		t.Fatalf("expected no change summary, got %q", d.Summary)
	}
}

func TestComputeDiff_TruncatesToMaxItems(t *testing.T) {
	var beforeNodes, afterNodes []aria.Node
	for i := 0; i < 10; i++ {
		beforeNodes = append(beforeNodes, aria.Node{Ref: "before" + string(rune('a'+i))})
	}
	for i := 0; i < 10; i++ {
		afterNodes = append(afterNodes, aria.Node{Ref: "after" + string(rune('a'+i))})
	}
	before := &aria.Snapshot{Nodes: beforeNodes}
	after := &aria.Snapshot{Nodes: afterNodes}

	d := computeDiff(before, after, 3)
	if len(d.Added) != 3 {
		t.Fatalf("expected added truncated to 3, got %d", len(d.Added))
	}
	if len(d.Removed) != 3 {
		t.Fatalf("expected removed truncated to 3, got %d", len(d.Removed))
	}
}
