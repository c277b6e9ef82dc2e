// Package storage manages the zfs datasets backing node disks.
//
// Each node runs on a clone of its image's base snapshot:
//
//	<root>/img/<image>@<tag>  ->  <root>/topo/<deployment>/<node-id>
//
// Snapshot turns a node's clone back into a reusable image.
package storage

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/javanstorm/vmtopo/internal/command"
	"github.com/javanstorm/vmtopo/internal/errdefs"
	"github.com/javanstorm/vmtopo/pkg/topology"
)

// Defaults.
const (
	DefaultCommand = "zfs"
	DefaultRoot    = "rpool/vmtopo"
	DefaultTag     = "base"
)

// Config configures a Manager.
type Config struct {
	// Runner executes the storage command. Defaults to command.Exec.
	Runner command.Runner
	// Command is the storage tool binary.
	Command string
	// Root is the dataset all images and node volumes live under.
	Root string
	// Tag is the snapshot name used for base images.
	Tag string
}

// Manager runs storage commands.
type Manager struct {
	runner  command.Runner
	command string
	root    string
	tag     string
}

// New creates a storage manager, filling unset config with defaults.
func New(cfg Config) *Manager {
	if cfg.Runner == nil {
		cfg.Runner = command.Exec{}
	}
	if cfg.Command == "" {
		cfg.Command = DefaultCommand
	}
	if cfg.Root == "" {
		cfg.Root = DefaultRoot
	}
	if cfg.Tag == "" {
		cfg.Tag = DefaultTag
	}
	return &Manager{
		runner:  cfg.Runner,
		command: cfg.Command,
		root:    strings.TrimSuffix(cfg.Root, "/"),
		tag:     cfg.Tag,
	}
}

// Volume returns the dataset backing node.
func (m *Manager) Volume(d *topology.Deployment, node *topology.Node) string {
	return path.Join(m.root, "topo", d.Name, node.ID.String())
}

// Image returns the dataset of a named base image.
func (m *Manager) Image(name string) string {
	return path.Join(m.root, "img", name)
}

// DevicePath returns the raw block device for node's volume.
func (m *Manager) DevicePath(d *topology.Deployment, node *topology.Node) string {
	return path.Join("/dev/zvol/rdsk", m.Volume(d, node))
}

func (m *Manager) snapshotOf(dataset string) string {
	return dataset + "@" + m.tag
}

// run executes one storage step. A non-zero exit becomes a StorageCommand
// error carrying the tool's stderr.
func (m *Manager) run(ctx context.Context, subject string, args ...string) error {
	_, err := m.runner.Run(ctx, m.command, args...)
	if err == nil {
		return nil
	}
	op := m.command + " " + args[0]
	if stderr := command.Stderr(err); stderr != "" {
		return errdefs.StorageCommand(op, subject, stderr, err)
	}
	return errdefs.IO(op, subject, err)
}

func (m *Manager) exists(ctx context.Context, dataset string) bool {
	_, err := m.runner.Run(ctx, m.command, "list", "-H", "-o", "name", dataset)
	return err == nil
}

// Provision clones the node image's base snapshot into the node volume.
// An existing volume is left as is so relaunching keeps node disks.
func (m *Manager) Provision(ctx context.Context, d *topology.Deployment, node *topology.Node) error {
	vol := m.Volume(d, node)
	if m.exists(ctx, vol) {
		return nil
	}
	return m.run(ctx, vol, "clone", "-p", m.snapshotOf(m.Image(node.Image)), vol)
}

// Release destroys the node volume and its snapshots.
func (m *Manager) Release(ctx context.Context, d *topology.Deployment, node *topology.Node) error {
	vol := m.Volume(d, node)
	if !m.exists(ctx, vol) {
		return nil
	}
	return m.run(ctx, vol, "destroy", "-r", vol)
}

// ValidateImageName rejects names that would escape the image namespace.
func ValidateImageName(name string) error {
	if name == "" || strings.ContainsAny(name, "/@ \t") {
		return errdefs.Invalid("validate image name", fmt.Sprintf("%q", name), fmt.Errorf("must be non-empty and contain no '/', '@' or whitespace"))
	}
	return nil
}
