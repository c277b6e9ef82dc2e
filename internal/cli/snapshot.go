package cli

import (
	"github.com/spf13/cobra"
)

func newSnapshotCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "snapshot <node> <image>",
		Short: "Turn a node's disk into a new base image",
		Long: `Snapshot a node's disk, clone it to a new base image and promote the clone
so later deployments can use it as their image. Stop the node first for a
consistent image.

The steps are not undone when one fails; the error lists what was left
behind.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, n, err := a.node(args[0])
			if err != nil {
				return err
			}
			if err := a.disks.Snapshot(cmd.Context(), d, n, args[1]); err != nil {
				return err
			}
			a.printf("created image %s from %s\n", args[1], n.Name)
			return nil
		},
	}
}
