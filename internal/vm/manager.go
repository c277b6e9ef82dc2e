package vm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/javanstorm/vmtopo/internal/command"
	"github.com/javanstorm/vmtopo/internal/errdefs"
	"github.com/javanstorm/vmtopo/internal/fabric"
	"github.com/javanstorm/vmtopo/internal/store"
	"github.com/javanstorm/vmtopo/pkg/hypervisor"
	"github.com/javanstorm/vmtopo/pkg/topology"
)

// Defaults.
const (
	DefaultBackend        = "propolis-server"
	DefaultBootrom        = "/var/ga/OVMF_CODE.fd"
	DefaultDestroyCommand = "bhyvectl"
	DefaultReadyAttempts  = 30
	DefaultReadyInterval  = time.Second
)

// ManagerConfig holds configuration for the VM manager.
type ManagerConfig struct {
	// Store holds the deployment's runtime handles.
	Store *store.Store

	// Log receives per-node progress and teardown warnings.
	Log logrus.FieldLogger

	// Spawner starts backends and Killer stops them. Both default to Host.
	Spawner Spawner
	Killer  Killer

	// Runner executes DestroyCommand to drop the kernel VM of a stopped
	// backend.
	Runner         command.Runner
	DestroyCommand string

	// Client connects to a backend's control port.
	Client hypervisor.Factory

	// Volumes maps a node to the block device holding its root disk.
	Volumes func(d *topology.Deployment, n *topology.Node) string

	// Bootrom is the firmware image every node boots.
	Bootrom string

	// Ports proposes control ports. Defaults to EphemeralPort.
	Ports PortSource

	// ReadyAttempts and ReadyInterval bound how long Boot waits for a
	// backend's control port.
	ReadyAttempts int
	ReadyInterval time.Duration
}

// Manager starts and stops the backend process of each node.
type Manager struct {
	cfg ManagerConfig

	mu        sync.Mutex
	allocated map[uint16]bool
}

// NewManager creates a VM manager, filling unset config with defaults.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.Log == nil {
		cfg.Log = logrus.StandardLogger()
	}
	if cfg.Spawner == nil {
		cfg.Spawner = Host{}
	}
	if cfg.Killer == nil {
		cfg.Killer = Host{}
	}
	if cfg.Runner == nil {
		cfg.Runner = command.Exec{}
	}
	if cfg.DestroyCommand == "" {
		cfg.DestroyCommand = DefaultDestroyCommand
	}
	if cfg.Client == nil {
		cfg.Client = hypervisor.LocalFactory
	}
	if cfg.Bootrom == "" {
		cfg.Bootrom = DefaultBootrom
	}
	if cfg.Ports == nil {
		cfg.Ports = EphemeralPort
	}
	if cfg.ReadyAttempts <= 0 {
		cfg.ReadyAttempts = DefaultReadyAttempts
	}
	if cfg.ReadyInterval <= 0 {
		cfg.ReadyInterval = DefaultReadyInterval
	}

	return &Manager{
		cfg:       cfg,
		allocated: make(map[uint16]bool),
	}
}

// Start launches the backend for node and records its handle. It returns
// as soon as the process exists; use Boot to wait for it.
func (m *Manager) Start(ctx context.Context, d *topology.Deployment, node *topology.Node, backend string) (store.Handle, error) {
	if backend == "" {
		backend = DefaultBackend
	}
	log := m.cfg.Log.WithField("node", node.Name)

	m.mu.Lock()
	port, err := m.allocatePort(d, node.Name)
	m.mu.Unlock()
	if err != nil {
		return store.Handle{}, errdefs.IO("start", node.Name, err)
	}
	id := uuid.New()

	vmCfg := hypervisor.VMConfig{
		CPUs:     node.Cores,
		MemoryMB: node.MemoryMB,
		Bootrom:  m.cfg.Bootrom,
		VNICs:    fabric.VNICs(d, node.Name),
	}
	if m.cfg.Volumes != nil {
		vmCfg.DiskPath = m.cfg.Volumes(d, node)
	}
	for _, mnt := range node.Mounts {
		vmCfg.Mounts = append(vmCfg.Mounts, hypervisor.Mount{Source: mnt.Source, Target: mnt.Destination})
	}

	data, err := vmCfg.MarshalTOML()
	if err != nil {
		return store.Handle{}, errdefs.Invalid("configure backend", node.Name, err)
	}
	if err := m.cfg.Store.WriteBackendConfig(node.Name, data); err != nil {
		return store.Handle{}, err
	}

	addr := net.JoinHostPort(hypervisor.LocalHost, strconv.Itoa(int(port)))
	args := []string{"run", m.cfg.Store.BackendConfigPath(node.Name), addr}
	pid, err := m.cfg.Spawner.Spawn(backend, args, m.cfg.Store.OutputPath(node.Name))
	if err != nil {
		return store.Handle{}, errdefs.Spawn("start", node.Name, err)
	}

	// The pid goes first: it is what hyperstop needs to reach the process.
	if err := m.cfg.Store.WritePID(node.Name, pid); err != nil {
		return store.Handle{}, err
	}
	if err := m.cfg.Store.WritePort(node.Name, port); err != nil {
		return store.Handle{}, err
	}
	if err := m.cfg.Store.WriteInstance(node.Name, id); err != nil {
		return store.Handle{}, err
	}

	log.WithFields(logrus.Fields{
		"port": port,
		"pid":  pid,
		"uuid": id,
	}).Info("backend started")

	return store.Handle{Port: &port, PID: &pid, Instance: &id}, nil
}

// StartAll starts every node in declaration order and stops at the first
// failure. Handles are returned in node order.
func (m *Manager) StartAll(ctx context.Context, d *topology.Deployment, backend string) ([]store.Handle, error) {
	handles := make([]store.Handle, 0, len(d.Nodes))
	for i := range d.Nodes {
		if err := ctx.Err(); err != nil {
			return handles, err
		}
		h, err := m.Start(ctx, d, &d.Nodes[i], backend)
		if err != nil {
			return handles, err
		}
		handles = append(handles, h)
	}
	return handles, nil
}

// StopReport is the outcome of tearing down one node. Warnings hold every
// step that failed; teardown carries on past each of them.
type StopReport struct {
	Node     string
	Warnings []error
}

// Clean reports whether every step succeeded.
func (r StopReport) Clean() bool {
	return len(r.Warnings) == 0
}

// Err joins the warnings, or returns nil for a clean report.
func (r StopReport) Err() error {
	return errors.Join(r.Warnings...)
}

func (r *StopReport) warn(log logrus.FieldLogger, err error) {
	log.WithError(err).Warn("teardown step failed")
	r.Warnings = append(r.Warnings, err)
}

// Stop kills the node's backend and destroys its kernel VM. Missing handle
// files are skipped, so stopping a stopped node is a clean no-op.
func (m *Manager) Stop(ctx context.Context, name string) StopReport {
	report := StopReport{Node: name}
	log := m.cfg.Log.WithField("node", name)

	pid, err := m.cfg.Store.ReadPID(name)
	switch {
	case err == nil && pid <= 0:
		// 0 and negative pids signal process groups. The file is left for
		// the operator.
		report.warn(log, errdefs.Invalid("read pid", name, fmt.Errorf("refusing to signal pid %d", pid)))
	case err == nil:
		if err := m.cfg.Killer.Kill(pid); err != nil {
			report.warn(log, fmt.Errorf("kill pid %d: %w", pid, err))
		} else {
			log.WithField("pid", pid).Info("backend killed")
		}
		if err := m.cfg.Store.ClearPID(name); err != nil {
			report.warn(log, err)
		}
	case errors.Is(err, errdefs.ErrNotFound):
	default:
		report.warn(log, err)
		if err := m.cfg.Store.ClearPID(name); err != nil {
			report.warn(log, err)
		}
	}

	id, err := m.cfg.Store.ReadInstance(name)
	keepInstance := false
	switch {
	case err == nil:
		if _, err := m.cfg.Runner.Run(ctx, m.cfg.DestroyCommand, "--destroy", "--vm="+id.String()); err != nil {
			// The uuid file is the only record of the leftover kernel VM;
			// keep it so a later stop can retry.
			report.warn(log, errdefs.Command("destroy vm", id.String(), command.Stderr(err), err))
			keepInstance = true
		} else {
			log.WithField("uuid", id).Info("vm destroyed")
		}
	case errors.Is(err, errdefs.ErrNotFound):
	default:
		report.warn(log, err)
	}

	if !keepInstance {
		if err := m.cfg.Store.ClearInstance(name); err != nil {
			report.warn(log, err)
		}
	}
	if err := m.cfg.Store.ClearPort(name); err != nil {
		report.warn(log, err)
	}
	return report
}

// StopAll stops every node in declaration order. It never aborts: each
// node gets a report even when earlier nodes warned.
func (m *Manager) StopAll(ctx context.Context, d *topology.Deployment) []StopReport {
	reports := make([]StopReport, 0, len(d.Nodes))
	for _, n := range d.Nodes {
		reports = append(reports, m.Stop(ctx, n.Name))
	}
	return reports
}

// Boot waits for a started backend to accept connections, registers the
// node's instance with it and asks it to run.
func (m *Manager) Boot(ctx context.Context, node *topology.Node, h store.Handle) error {
	if h.Port == nil || h.Instance == nil {
		return errdefs.Invalid("boot", node.Name, errors.New("backend has no port or instance id"))
	}
	log := m.cfg.Log.WithField("node", node.Name)
	client := m.cfg.Client(*h.Port)

	if err := m.waitReady(ctx, client); err != nil {
		return errdefs.Backend("wait for backend", node.Name, err)
	}
	log.Debug("backend reachable")

	spec := hypervisor.InstanceSpec{
		ID:          *h.Instance,
		Name:        node.Name,
		Description: node.Image,
		Memory:      uint64(node.MemoryMB),
		VCPUs:       uint8(node.Cores),
	}
	if err := client.EnsureInstance(ctx, spec); err != nil {
		return err
	}
	if err := client.RequestState(ctx, *h.Instance, hypervisor.StateRun); err != nil {
		return err
	}

	log.Info("node running")
	return nil
}

func (m *Manager) waitReady(ctx context.Context, c hypervisor.Client) error {
	var err error
	for attempt := 1; attempt <= m.cfg.ReadyAttempts; attempt++ {
		if err = c.Ping(ctx); err == nil {
			return nil
		}
		if attempt == m.cfg.ReadyAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.cfg.ReadyInterval):
		}
	}
	return fmt.Errorf("not ready after %d attempts: %w", m.cfg.ReadyAttempts, err)
}
