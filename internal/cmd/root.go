// Package cmd wires the cdpskill CLI: a single command reading an
// invocation JSON document and writing its structured result.
package cmd

import (
	"github.com/spf13/cobra"
)

// NewRootCommand builds the `cdpskill` command and its flags.
func NewRootCommand() *cobra.Command {
	o := NewRunOptions()

	c := &cobra.Command{
		Use:                   "cdpskill",
		DisableFlagsInUseLine: true,
		Short:                 "Drive Chrome via CDP with a JSON step list",
		SilenceErrors:         true,
		SilenceUsage:          true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.Complete(cmd); err != nil {
				return err
			}
			if err := o.Validate(); err != nil {
				return err
			}
			return o.Run(cmd)
		},
	}

	flags := c.Flags()
	flags.StringVarP(&o.InputPath, "input", "i", "", "Path to the invocation JSON document (default: stdin)")
	flags.StringVarP(&o.ConfigPath, "config", "c", "", "Path to an optional cdpskill.yaml config file")
	flags.StringVar(&o.Host, "host", "", "Chrome debugging host override")
	flags.IntVar(&o.Port, "port", 0, "Chrome debugging port override")

	return c
}
