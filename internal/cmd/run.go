package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/cdpskill/cdpskill/internal/config"
	"github.com/cdpskill/cdpskill/internal/engine"
)

// RunOptions holds the CLI's resolved flags and loaded invocation, grouped
// Complete/Validate/Run the way the pack's cobra commands structure theirs.
type RunOptions struct {
	InputPath  string
	ConfigPath string
	Host       string
	Port       int

	cfg *config.Config
	req engine.Request
}

// NewRunOptions returns an empty RunOptions for flag binding.
func NewRunOptions() *RunOptions { return &RunOptions{} }

// Complete reads the config file (if any) and the invocation document from
// --input or stdin.
func (o *RunOptions) Complete(cmd *cobra.Command) error {
	if o.ConfigPath != "" {
		cfg, err := config.LoadFile(o.ConfigPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		o.cfg = cfg
	} else {
		o.cfg = config.Default()
	}

	var data []byte
	var err error
	if o.InputPath != "" {
		data, err = os.ReadFile(o.InputPath)
	} else {
		data, err = io.ReadAll(cmd.InOrStdin())
	}
	if err != nil {
		return fmt.Errorf("reading invocation: %w", err)
	}

	if err := json.Unmarshal(data, &o.req); err != nil {
		return fmt.Errorf("parsing invocation JSON: %w", err)
	}
	return nil
}

// Validate checks the minimal shape the CLI itself must enforce before
// handing off to the engine's own step validation.
func (o *RunOptions) Validate() error {
	if len(o.req.Steps) == 0 {
		return fmt.Errorf("invocation has no steps")
	}
	if o.Host != "" {
		o.req.Host = o.Host
	}
	if o.Port != 0 {
		o.req.Port = o.Port
	}
	return nil
}

// Run invokes the engine and writes the JSON response to stdout, setting
// the process exit code per spec.md §6: 0 on success, non-zero on
// validation or run failure.
func (o *RunOptions) Run(cmd *cobra.Command) error {
	e := engine.New(o.cfg, nil)
	resp, err := e.Invoke(cmd.Context(), o.req)
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), err)
		out, _ := json.Marshal(map[string]string{"error": err.Error()})
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return err
	}

	encoded, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding response: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(encoded))

	if len(resp.Errors) > 0 {
		return fmt.Errorf("invocation failed validation")
	}
	for _, s := range resp.Steps {
		if s.Status == "error" {
			return fmt.Errorf("step %q failed", s.Action)
		}
	}
	return nil
}
