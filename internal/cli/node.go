package cli

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/javanstorm/vmtopo/internal/errdefs"
	"github.com/javanstorm/vmtopo/internal/vm"
	"github.com/javanstorm/vmtopo/pkg/hypervisor"
	"github.com/javanstorm/vmtopo/pkg/topology"
)

// nodeArg enforces "<node> or --all".
func nodeArg(args []string, all bool) (string, error) {
	switch {
	case all && len(args) > 0:
		return "", errdefs.Usage("give a vm name or --all, not both")
	case all:
		return "", nil
	case len(args) == 0:
		return "", errdefs.Usage("vm name required unless --all flag is used")
	case len(args) > 1:
		return "", errdefs.Usage("expected one vm name, got %d", len(args))
	default:
		return args[0], nil
	}
}

func newHyperstopCmd(a *app) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "hyperstop [<node> | --all]",
		Short: "Stop node backends",
		Long: `Kill the hypervisor backend of a node, or of every node with --all, and
destroy its kernel VM. Node disks and links are kept.

A name that is not in the recorded topology is still stopped when it has
handle files in the state directory.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			name, err := nodeArg(args, all)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			if all {
				d, err := a.deployment()
				if err != nil {
					return err
				}
				for _, r := range a.vms.StopAll(ctx, d) {
					a.report(r)
				}
				return nil
			}

			return a.stopOne(ctx, name)
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Stop every node")
	return cmd
}

// stopOne stops name, tolerating a name that only exists as orphaned
// handle files.
func (a *app) stopOne(ctx context.Context, name string) error {
	d, err := a.deployment()
	switch {
	case err == nil:
		if _, err := d.Node(name); err == nil {
			a.report(a.vms.Stop(ctx, name))
			return nil
		}
	case !errors.Is(err, errdefs.ErrNotFound):
		return err
	}

	names, err := a.store.Names()
	if err != nil {
		return err
	}
	if !slices.Contains(names, name) {
		return errdefs.NotFound("find node", name, nil)
	}

	a.log.WithField("node", name).Warn("node is not in the recorded topology; stopping orphaned handles")
	a.report(a.vms.Stop(ctx, name))
	return nil
}

func newHyperstartCmd(a *app) *cobra.Command {
	var (
		all         bool
		backendPath string
	)

	cmd := &cobra.Command{
		Use:   "hyperstart [<node> | --all]",
		Short: "Start node backends",
		Long: `Start the hypervisor backend of a node, or of every node with --all, and
boot it. Nodes that are already running are left alone.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			name, err := nodeArg(args, all)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			d, err := a.deployment()
			if err != nil {
				return err
			}
			if backendPath == "" {
				backendPath = a.cfg.BackendPath
			}

			nodes := d.Nodes
			if !all {
				n, err := d.Node(name)
				if err != nil {
					return err
				}
				nodes = []topology.Node{*n}
			}

			for i := range nodes {
				if err := a.startNode(ctx, d, &nodes[i], backendPath); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Start every node")
	cmd.Flags().StringVar(&backendPath, "backend-path", "", "Hypervisor backend binary (default from config)")
	return cmd
}

func (a *app) startNode(ctx context.Context, d *topology.Deployment, n *topology.Node, backendPath string) error {
	st, diags := a.vms.Status(n.Name)
	for _, err := range diags {
		a.warn(err)
	}
	if st == vm.StatusRunning {
		a.printf("%s is already running\n", n.Name)
		return nil
	}
	if st != vm.StatusStopped {
		// Leftovers from a crashed backend would otherwise collide with
		// the new handle.
		r := a.vms.Stop(ctx, n.Name)
		for _, w := range r.Warnings {
			a.warn(w)
		}
	}

	h, err := a.vms.Start(ctx, d, n, backendPath)
	if err != nil {
		return err
	}
	if err := a.vms.Boot(ctx, n, h); err != nil {
		return err
	}
	a.printf("started %s on port %d\n", n.Name, *h.Port)
	return nil
}

// client connects to a recorded node's backend.
func (a *app) client(name string) (hypervisor.Client, error) {
	port, err := a.store.ReadPort(name)
	if err != nil {
		if errors.Is(err, errdefs.ErrNotFound) {
			return nil, errdefs.NotFound("find backend", name, fmt.Errorf("%s has no control port; is it running?", name))
		}
		return nil, err
	}
	return a.opts.Client(port), nil
}

func newRebootCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reboot <node>",
		Short: "Reboot a node",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			_, n, err := a.node(args[0])
			if err != nil {
				return err
			}
			c, err := a.client(n.Name)
			if err != nil {
				return err
			}
			id, err := c.ResolveInstance(ctx, n.Name)
			if err != nil {
				return err
			}
			if err := c.RequestState(ctx, id, hypervisor.StateReboot); err != nil {
				return err
			}

			a.printf("rebooting %s\n", n.Name)
			return nil
		},
	}
}
