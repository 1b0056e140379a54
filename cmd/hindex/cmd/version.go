package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/reelpipe/hindex/pkg/version"
)

func newVersionCmd() *cobra.Command {
	var jsonOutput, short bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version and build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			switch {
			case short:
				_, err := fmt.Fprintln(out, version.Version)
				return err
			case jsonOutput:
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(version.Resolve())
			default:
				_, err := fmt.Fprintln(out, version.Resolve())
				return err
			}
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version info as JSON")
	cmd.Flags().BoolVar(&short, "short", false, "Output only the version number")

	return cmd
}
