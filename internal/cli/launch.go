package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/javanstorm/vmtopo/internal/errdefs"
	"github.com/javanstorm/vmtopo/internal/vm"
	"github.com/javanstorm/vmtopo/pkg/topology"
)

func newLaunchCmd(a *app) *cobra.Command {
	var (
		backendPath string
		file        string
	)

	cmd := &cobra.Command{
		Use:   "launch",
		Short: "Deploy the topology",
		Long: `Deploy the declared topology: record it in the state directory,
create the links between nodes, clone each node's disk from its image, start
every node's backend and boot it.

The declaration is read from --file (default from config: topology.yaml)
unless the program declared its topology in Go.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			d, err := a.declared(file)
			if err != nil {
				return err
			}
			if err := d.Validate(); err != nil {
				return err
			}
			if err := a.checkNotRunning(d); err != nil {
				return err
			}
			if backendPath == "" {
				backendPath = a.cfg.BackendPath
			}

			if err := a.store.Save(d); err != nil {
				return err
			}
			if err := a.net.Create(ctx, d); err != nil {
				return fmt.Errorf("create links: %w", err)
			}
			for i := range d.Nodes {
				if err := a.disks.Provision(ctx, d, &d.Nodes[i]); err != nil {
					return fmt.Errorf("provision %s: %w", d.Nodes[i].Name, err)
				}
			}

			handles, err := a.vms.StartAll(ctx, d, backendPath)
			if err != nil {
				return err
			}
			for i, h := range handles {
				if err := a.vms.Boot(ctx, &d.Nodes[i], h); err != nil {
					return err
				}
			}

			a.printf("launched %s: %d node(s), %d link(s)\n", d.Name, len(d.Nodes), len(d.Links))
			return nil
		},
	}

	cmd.Flags().StringVar(&backendPath, "backend-path", "", "Hypervisor backend binary (default from config)")
	cmd.Flags().StringVarP(&file, "file", "f", "", "Topology declaration (default from config)")
	return cmd
}

// declared returns the topology to launch. Node ids recorded by an earlier
// launch of the same deployment are kept so node disks survive a relaunch.
func (a *app) declared(file string) (*topology.Deployment, error) {
	var d *topology.Deployment
	switch {
	case a.opts.Deployment != nil && file == "":
		d = a.opts.Deployment
		d.Normalize()
	default:
		if file == "" {
			file = a.cfg.TopologyFile
		}
		var err error
		if d, err = topology.ReadFile(file); err != nil {
			return nil, err
		}
	}

	prev, err := a.deployment()
	switch {
	case err == nil && prev.Name == d.Name:
		for i := range d.Nodes {
			if old, err := prev.Node(d.Nodes[i].Name); err == nil {
				d.Nodes[i].ID = old.ID
			}
		}
	case err != nil && !errors.Is(err, errdefs.ErrNotFound):
		a.log.WithError(err).Warn("ignoring previous deployment record")
	}
	return d, nil
}

// checkNotRunning refuses to launch over live backends.
func (a *app) checkNotRunning(d *topology.Deployment) error {
	for _, n := range d.Nodes {
		if st, _ := a.vms.Status(n.Name); st == vm.StatusRunning {
			return errdefs.Invalid("launch", d.Name, fmt.Errorf("node %s is already running; run destroy or hyperstop first", n.Name))
		}
	}
	return nil
}

func newDestroyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "destroy",
		Short: "Tear the deployment down",
		Long: `Stop every node, remove the links between them, destroy the node disks
and delete the state directory. Every step is attempted even when earlier
ones fail; failures are printed as warnings.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			d, err := a.deployment()
			if err != nil {
				return err
			}

			clean := true
			for _, r := range a.vms.StopAll(ctx, d) {
				clean = a.report(r) && clean
			}
			for _, err := range a.net.Destroy(ctx, d) {
				a.warn(err)
				clean = false
			}
			for i := range d.Nodes {
				if err := a.disks.Release(ctx, d, &d.Nodes[i]); err != nil {
					a.warn(err)
					clean = false
				}
			}
			if err := a.store.Remove(); err != nil {
				return err
			}

			if clean {
				a.printf("destroyed %s\n", d.Name)
			} else {
				a.printf("destroyed %s with warnings\n", d.Name)
			}
			return nil
		},
	}
}
