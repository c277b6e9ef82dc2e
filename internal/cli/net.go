package cli

import (
	"github.com/spf13/cobra"
)

func newNetcreateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "netcreate",
		Short: "Create the links of the recorded topology",
		Long: `Create the simulated links between the nodes of the recorded topology.
Links that already exist are kept, so netcreate can repair a partially
created fabric.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := a.deployment()
			if err != nil {
				return err
			}
			if err := a.net.Create(cmd.Context(), d); err != nil {
				return err
			}
			a.printf("created %d link(s) for %s\n", len(d.Links), d.Name)
			return nil
		},
	}
}

func newNetdestroyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "netdestroy",
		Short: "Remove the links of the recorded topology",
		Long: `Remove the simulated links between the nodes of the recorded topology.
Every link is attempted; failures are printed as warnings.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := a.deployment()
			if err != nil {
				return err
			}
			errs := a.net.Destroy(cmd.Context(), d)
			for _, err := range errs {
				a.warn(err)
			}
			if len(errs) > 0 {
				a.printf("removed links for %s with %d warning(s)\n", d.Name, len(errs))
				return nil
			}
			a.printf("removed links for %s\n", d.Name)
			return nil
		},
	}
}
