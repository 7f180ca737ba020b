package steps

import (
	"encoding/json"
	"testing"
)

func TestIsRef_MatchesWireFormat(t *testing.T) {
	cases := map[string]bool{
		"f1s2e3":       true,
		"f[main]s2e3":  true,
		"s2e3":         false,
		"#login-field": false,
	}
	for s, want := range cases {
		if got := IsRef(s); got != want {
			t.Errorf("IsRef(%q) = %v, want %v", s, got, want)
		}
	}
}

func TestRegistry_GotoRequiresURL(t *testing.T) {
	errs := Registry["goto"].Validate(json.RawMessage(`{}`))
	if len(errs) == 0 {
		t.Fatal("expected goto without url to fail validation")
	}
}

func TestRegistry_ClickRejectsConflictingTargetFields(t *testing.T) {
	errs := Registry["click"].Validate(json.RawMessage(`{"ref":"f1s1e1","selector":"#btn"}`))
	if len(errs) == 0 {
		t.Fatal("expected ref+selector to be mutually exclusive")
	}
}

func TestRegistry_ClickAcceptsCoordinateTarget(t *testing.T) {
	errs := Registry["click"].Validate(json.RawMessage(`{"x":10,"y":20}`))
	if len(errs) != 0 {
		t.Fatalf("expected x/y target to validate, got %v", errs)
	}
}

func TestRegistry_FillRequiresValueOrFields(t *testing.T) {
	errs := Registry["fill"].Validate(json.RawMessage(`{"ref":"f1s1e1"}`))
	if len(errs) == 0 {
		t.Fatal("expected fill without value or fields to fail")
	}
}

func TestRegistry_VisualFlagsMatchSpec(t *testing.T) {
	visual := []string{"click", "fill", "press", "goto", "back", "forward", "drag", "upload"}
	for _, a := range visual {
		if !Registry[a].IsVisual {
			t.Errorf("expected %q to be visual", a)
		}
	}
	queryOnly := []string{"query", "queryAll", "getUrl", "getTitle", "assert", "getBox"}
	for _, a := range queryOnly {
		if Registry[a].IsVisual {
			t.Errorf("expected %q to be non-visual", a)
		}
	}
}

func TestRegistry_CoversAllEnumeratedStepTypes(t *testing.T) {
	types := []string{
		"goto", "reload", "wait", "sleep", "click", "fill", "press", "query", "queryAll",
		"inspect", "scroll", "console", "pdf", "snapshot", "snapshotSearch", "hover",
		"viewport", "cookies", "back", "forward", "waitForNavigation", "listTabs",
		"closeTab", "newTab", "selectText", "selectOption", "submit", "assert", "frame",
		"drag", "get", "getDom", "getBox", "elementsAt", "pageFunction", "poll",
		"writeSiteProfile", "readSiteProfile", "switchTab", "getUrl", "getTitle", "upload",
	}
	for _, name := range types {
		if _, ok := Registry[name]; !ok {
			t.Errorf("registry missing step type %q", name)
		}
	}
	if len(types) != 42 {
		t.Fatalf("test fixture itself drifted from the 42 enumerated step types: got %d", len(types))
	}
}
