package cmd

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
)

func TestRunOptions_CompleteReadsInputFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "invocation.json")
	body := `{"steps":[{"action":"getUrl"}]}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	o := NewRunOptions()
	o.InputPath = path
	cmd := &cobra.Command{}
	if err := o.Complete(cmd); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if len(o.req.Steps) != 1 {
		t.Fatalf("expected one parsed step, got %d", len(o.req.Steps))
	}
	if o.cfg == nil {
		t.Fatal("expected Complete to populate a default config")
	}
}

func TestRunOptions_ValidateRejectsEmptySteps(t *testing.T) {
	o := NewRunOptions()
	if err := o.Validate(); err == nil {
		t.Fatal("expected an error for an invocation with no steps")
	}
}

func TestRunOptions_ValidateAppliesFlagOverrides(t *testing.T) {
	o := NewRunOptions()
	o.Host = "example.internal"
	o.Port = 1234
	o.req.Steps = []json.RawMessage{json.RawMessage(`{"action":"getUrl"}`)}
	if err := o.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if o.req.Host != "example.internal" || o.req.Port != 1234 {
		t.Fatalf("expected flag overrides to win, got host=%q port=%d", o.req.Host, o.req.Port)
	}
}
