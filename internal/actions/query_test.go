package actions

import (
	"testing"

	"github.com/cdpskill/cdpskill/internal/aria"
)

func sampleSnapshot() *aria.Snapshot {
	return &aria.Snapshot{
		Nodes: []aria.Node{
			{Role: "heading", Name: "Issues", Ref: "", Depth: 0, States: map[string]interface{}{"level": float64(1)}},
			{Role: "link", Name: "Issues 835", Ref: "s1e16", Depth: 1},
			{Role: "button", Name: "Close", Ref: "s1e17", Depth: 1, States: map[string]interface{}{"disabled": true}},
			{Role: "textbox", Name: "Search", Ref: "s1e18", Depth: 1},
		},
	}
}

func TestQueryByRole_FiltersByRoleAndName(t *testing.T) {
	matches, err := QueryByRole(sampleSnapshot(), QueryOptions{Roles: []string{"link"}, Name: "issues", All: true})
	if err != nil {
		t.Fatalf("QueryByRole: %v", err)
	}
	if len(matches) != 1 || matches[0].Ref != "s1e16" {
		t.Fatalf("expected single link match on s1e16, got %+v", matches)
	}
}

func TestQueryByRole_LevelFilterMatchesHeadingOnly(t *testing.T) {
	matches, err := QueryByRole(sampleSnapshot(), QueryOptions{Roles: []string{"heading"}, Level: 1, All: true})
	if err != nil {
		t.Fatalf("QueryByRole: %v", err)
	}
	if len(matches) != 1 || matches[0].Name != "Issues" {
		t.Fatalf("expected single heading match, got %+v", matches)
	}
}

func TestQueryByRole_NameExactRequiresFullMatch(t *testing.T) {
	matches, err := QueryByRole(sampleSnapshot(), QueryOptions{Roles: []string{"link"}, Name: "Issues", NameExact: true, All: true})
	if err != nil {
		t.Fatalf("QueryByRole: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("expected no exact match for truncated name, got %+v", matches)
	}
}

func TestQueryByRole_WithoutAllReturnsFirstOnly(t *testing.T) {
	matches, err := QueryByRole(sampleSnapshot(), QueryOptions{})
	if err != nil {
		t.Fatalf("QueryByRole: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected exactly one match when All is false, got %d", len(matches))
	}
}

func TestQueryByRole_InvalidRegexIsValidationError(t *testing.T) {
	_, err := QueryByRole(sampleSnapshot(), QueryOptions{NameRegex: "(unterminated"})
	if err == nil {
		t.Fatal("expected validation error for invalid regex")
	}
}
