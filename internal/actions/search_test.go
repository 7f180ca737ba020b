package actions

import (
	"testing"

	"github.com/cdpskill/cdpskill/internal/aria"
)

func TestSearch_WordBoundaryMatchIsCaseInsensitive(t *testing.T) {
	snap := sampleSnapshot()
	matches, err := Search(snap, SearchQuery{Text: "issues", Role: "link"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(matches) != 1 || matches[0].Ref != "s1e16" {
		t.Fatalf("expected single match on the Issues link, got %+v", matches)
	}
}

func TestSearch_NearFiltersOutOfRadius(t *testing.T) {
	near := func(x, y float64) *aria.Snapshot {
		return &aria.Snapshot{Nodes: []aria.Node{
			{Role: "button", Name: "A", Ref: "r1", Box: &aria.Box{X: x, Y: y, W: 10, H: 10}},
		}}
	}
	nx, ny := 0.0, 0.0
	matches, err := Search(near(500, 500), SearchQuery{Role: "button", NearX: &nx, NearY: &ny, Radius: 50})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("expected the far button to be excluded, got %+v", matches)
	}
}

func TestSearch_LimitCaps(t *testing.T) {
	var nodes []aria.Node
	for i := 0; i < 30; i++ {
		nodes = append(nodes, aria.Node{Role: "button", Name: "Item", Ref: "r"})
	}
	snap := &aria.Snapshot{Nodes: nodes}
	matches, err := Search(snap, SearchQuery{Role: "button"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(matches) != 20 {
		t.Fatalf("expected default limit of 20, got %d", len(matches))
	}
}

func TestSearch_ExactRequiresFullEquality(t *testing.T) {
	snap := sampleSnapshot()
	matches, err := Search(snap, SearchQuery{Text: "Issues", Exact: true, Role: "link"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("expected no exact match (node name is \"Issues 835\"), got %+v", matches)
	}
}
