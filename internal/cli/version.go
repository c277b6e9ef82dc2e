package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/javanstorm/vmtopo/internal/version"
)

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long:  "Print the version, commit hash, and build date of vmtopo.",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			w := a.opts.Stdout
			fmt.Fprintf(w, "vmtopo %s\n", version.Version)
			fmt.Fprintf(w, "  Commit:     %s\n", version.Commit)
			fmt.Fprintf(w, "  Build Date: %s\n", version.BuildDate)
		},
	}
}
