// Package cli provides the command-line interface for vmtopo.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/javanstorm/vmtopo/internal/command"
	"github.com/javanstorm/vmtopo/internal/terminal"
	"github.com/javanstorm/vmtopo/internal/vm"
	"github.com/javanstorm/vmtopo/pkg/hypervisor"
	"github.com/javanstorm/vmtopo/pkg/topology"
)

// Options supplies the collaborators of one invocation. Zero fields select
// the real implementations.
type Options struct {
	// Deployment, when set, is launched instead of the declaration file.
	Deployment *topology.Deployment

	Runner  command.Runner
	Spawner vm.Spawner
	Killer  vm.Killer
	Client  hypervisor.Factory
	Ports   vm.PortSource
	Term    terminal.RawTerminal

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

func (o *Options) defaults() {
	if o.Runner == nil {
		o.Runner = command.Exec{}
	}
	if o.Client == nil {
		o.Client = hypervisor.LocalFactory
	}
	if o.Stdin == nil {
		o.Stdin = os.Stdin
	}
	if o.Stdout == nil {
		o.Stdout = os.Stdout
	}
	if o.Stderr == nil {
		o.Stderr = os.Stderr
	}
	if o.Term == nil && o.Stdin == os.Stdin && terminal.IsTTY() {
		o.Term = terminal.Current()
	}
}

type rootFlags struct {
	verbose    int
	stateDir   string
	configPath string
}

// NewRootCommand builds the vmtopo command tree.
func NewRootCommand(opts Options) *cobra.Command {
	opts.defaults()
	a := &app{opts: opts}

	cmd := &cobra.Command{
		Use:   "vmtopo",
		Short: "vmtopo - virtual test topologies on one host",
		Long: `vmtopo deploys a set of virtual machines joined by point-to-point links
for testing network software.

Each node runs its own hypervisor backend. Everything vmtopo knows about a
running deployment lives in the state directory, so every command can be
run from a fresh shell.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Skip setup for commands that don't need it
			switch cmd.Name() {
			case "version", "help", "completion":
				return nil
			}
			return a.setup()
		},
	}

	cmd.SetIn(opts.Stdin)
	cmd.SetOut(opts.Stdout)
	cmd.SetErr(opts.Stderr)

	pf := cmd.PersistentFlags()
	pf.CountVarP(&a.flags.verbose, "verbose", "v", "Increase log verbosity (-v info, -vv debug)")
	pf.StringVar(&a.flags.stateDir, "state-dir", "", "State directory (default from config: .vmtopo)")
	pf.StringVar(&a.flags.configPath, "config", "", "Config file (default: ./config.yaml or ~/.config/vmtopo/config.yaml)")

	cmd.AddCommand(
		newLaunchCmd(a),
		newDestroyCmd(a),
		newSerialCmd(a),
		newInfoCmd(a),
		newRebootCmd(a),
		newHyperstopCmd(a),
		newHyperstartCmd(a),
		newNetcreateCmd(a),
		newNetdestroyCmd(a),
		newSnapshotCmd(a),
		newVersionCmd(a),
	)

	return cmd
}

// Execute runs the command line with the given options and reports a
// failure on stderr as "Error: <cause>".
func Execute(opts Options) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := NewRootCommand(opts)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(root.ErrOrStderr(), "Error: %v\n", err)
		return err
	}
	return nil
}

// Run is the entry point for a program that declares its topology in Go:
//
//	func main() {
//		d := topology.New("duo")
//		...
//		if err := cli.Run(d); err != nil {
//			os.Exit(1)
//		}
//	}
//
// launch deploys d; every other command works from the state directory.
func Run(d *topology.Deployment) error {
	return Execute(Options{Deployment: d})
}
