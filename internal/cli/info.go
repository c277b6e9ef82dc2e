package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/javanstorm/vmtopo/internal/errdefs"
	"github.com/javanstorm/vmtopo/internal/store"
	"github.com/javanstorm/vmtopo/internal/vm"
	"github.com/javanstorm/vmtopo/pkg/topology"
)

const none = "-"

func newInfoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show the deployment and its nodes",
		Long: `Print the recorded deployment with one row per node: its image, radix,
mounts, and the runtime handles found in the state directory. Handles that
disagree with each other or with the topology are reported after the table.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := a.deployment()
			if err != nil {
				return err
			}

			a.printf("name: %s\n", d.Name)

			rows := make([]nodeRow, 0, len(d.Nodes))
			for i := range d.Nodes {
				n := &d.Nodes[i]
				h, _ := a.store.Handle(n.Name)
				st, diags := a.vms.Status(n.Name)
				rows = append(rows, nodeRow{node: n, handle: h, status: st, diags: diags})
			}
			printNodes(a.opts.Stdout, rows)

			orphans, err := a.store.Orphans(d)
			if err != nil {
				a.warn(err)
			}
			for _, o := range orphans {
				a.warn(errdefs.Corrupt("check state dir", o, fmt.Errorf("handle files for undeclared node %s", o)))
			}
			for _, r := range rows {
				for _, err := range r.diags {
					a.warn(err)
				}
				switch r.status {
				case vm.StatusStale:
					a.warn(fmt.Errorf("%s: backend pid %d is not running; run hyperstop %s", r.node.Name, *r.handle.PID, r.node.Name))
				case vm.StatusPartial:
					a.warn(fmt.Errorf("%s: incomplete runtime handles; run hyperstop %s", r.node.Name, r.node.Name))
				}
			}
			return nil
		},
	}
}

type nodeRow struct {
	node   *topology.Node
	handle store.Handle
	status vm.Status
	diags  []error
}

var statusColors = map[vm.Status]tablewriter.Colors{
	vm.StatusRunning: {tablewriter.FgGreenColor},
	vm.StatusPartial: {tablewriter.FgYellowColor},
	vm.StatusStale:   {tablewriter.FgRedColor},
}

// printNodes writes one row per node. A node with several mounts gets a
// continuation row per extra mount.
func printNodes(w io.Writer, rows []nodeRow) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Name", "Image", "Radix", "Mounts", "UUID", "Port", "PID", "Status"})
	table.SetAutoWrapText(false)

	for _, r := range rows {
		n, h := r.node, r.handle

		mounts := []string{none}
		if len(n.Mounts) > 0 {
			mounts = mounts[:0]
			for _, m := range n.Mounts {
				mounts = append(mounts, m.Source+":"+m.Destination)
			}
		}

		id, port, pid := none, none, none
		if h.Instance != nil {
			id = h.Instance.String()
		}
		if h.Port != nil {
			port = strconv.Itoa(int(*h.Port))
		}
		if h.PID != nil {
			pid = strconv.Itoa(*h.PID)
		}

		row := []string{n.Name, n.Image, strconv.Itoa(n.Radix), mounts[0], id, port, pid, r.status.String()}
		if c, ok := statusColors[r.status]; ok && !color.NoColor {
			colors := make([]tablewriter.Colors, len(row))
			colors[len(row)-1] = c
			table.Rich(row, colors)
		} else {
			table.Append(row)
		}

		for _, m := range mounts[1:] {
			table.Append([]string{"", "", "", m, "", "", "", ""})
		}
	}

	table.Render()
}
