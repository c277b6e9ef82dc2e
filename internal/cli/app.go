package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"

	"github.com/javanstorm/vmtopo/internal/config"
	"github.com/javanstorm/vmtopo/internal/errdefs"
	"github.com/javanstorm/vmtopo/internal/fabric"
	"github.com/javanstorm/vmtopo/internal/logging"
	"github.com/javanstorm/vmtopo/internal/storage"
	"github.com/javanstorm/vmtopo/internal/store"
	"github.com/javanstorm/vmtopo/internal/vm"
	"github.com/javanstorm/vmtopo/pkg/topology"
)

// app is the state of one invocation, built by setup before any command
// runs.
type app struct {
	opts  Options
	flags rootFlags

	cfg   *config.Config
	log   *logrus.Logger
	store *store.Store
	vms   *vm.Manager
	disks *storage.Manager
	net   fabric.Fabric
}

func (a *app) setup() error {
	cfg, err := config.Load(a.flags.configPath)
	if err != nil {
		return err
	}
	if a.flags.stateDir != "" {
		cfg.StateDir = a.flags.stateDir
	}

	problems := cfg.Validate()
	if err := config.Fatal(problems); err != nil {
		return err
	}

	log, err := logging.New(a.opts.Stderr, a.flags.verbose, cfg.LogLevel)
	if err != nil {
		return errdefs.Usage("%v", err)
	}
	// Only warnings are left at this point.
	if msg := config.FormatValidationErrors(problems); msg != "" {
		warnColor.Fprint(a.opts.Stderr, msg)
	}
	if f := cfg.File(); f != "" {
		log.WithField("file", f).Debug("config loaded")
	}

	a.cfg = cfg
	a.log = log
	a.store = store.New(cfg.StateDir)
	a.disks = storage.New(storage.Config{
		Runner:  a.opts.Runner,
		Command: cfg.ZFSCommand,
		Root:    cfg.DatasetRoot,
		Tag:     cfg.SnapshotTag,
	})
	a.net = fabric.NewDladm(a.opts.Runner, cfg.DladmCommand, log)
	a.vms = vm.NewManager(vm.ManagerConfig{
		Store:          a.store,
		Log:            log,
		Spawner:        a.opts.Spawner,
		Killer:         a.opts.Killer,
		Runner:         a.opts.Runner,
		DestroyCommand: cfg.DestroyCommand,
		Client:         a.opts.Client,
		Volumes:        a.disks.DevicePath,
		Bootrom:        cfg.Bootrom,
		Ports:          a.opts.Ports,
		ReadyAttempts:  cfg.ReadyAttempts,
		ReadyInterval:  cfg.ReadyInterval,
	})
	return nil
}

// deployment loads the recorded topology.
func (a *app) deployment() (*topology.Deployment, error) {
	return a.store.Load()
}

// node loads the recorded topology and finds name in it.
func (a *app) node(name string) (*topology.Deployment, *topology.Node, error) {
	d, err := a.deployment()
	if err != nil {
		return nil, nil, err
	}
	n, err := d.Node(name)
	if err != nil {
		return nil, nil, err
	}
	return d, n, nil
}

func (a *app) printf(format string, args ...any) {
	fmt.Fprintf(a.opts.Stdout, format, args...)
}

var warnColor = color.New(color.FgYellow)

// warn prints a diagnostic the operator should act on.
func (a *app) warn(err error) {
	warnColor.Fprintf(a.opts.Stderr, "warning: %v\n", err)
}

// report prints the outcome of a node teardown and returns whether it was
// clean.
func (a *app) report(r vm.StopReport) bool {
	for _, w := range r.Warnings {
		a.warn(w)
	}
	if r.Clean() {
		a.printf("stopped %s\n", r.Node)
		return true
	}
	a.printf("stopped %s with %d warning(s)\n", r.Node, len(r.Warnings))
	return false
}
