// Package store persists a deployment and its per-node runtime handles in
// the state directory.
//
// Layout:
//
//	topology.yaml   declared deployment
//	<node>.port     control port, decimal
//	<node>.uuid     hypervisor instance id, canonical text
//	<node>.pid      backend process id, decimal
//	<node>.toml     backend configuration
//	<node>.out      backend stdout and stderr
//
// Every handle file is read, written and cleared on its own. The store
// never assumes that a node with a port file also has a pid file. There is
// no locking: one lifecycle command at a time is expected to touch a
// directory.
package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/javanstorm/vmtopo/internal/errdefs"
	"github.com/javanstorm/vmtopo/pkg/topology"
)

// TopologyFile is the name of the serialized deployment.
const TopologyFile = "topology.yaml"

// Handle file extensions.
const (
	extPort     = ".port"
	extPID      = ".pid"
	extInstance = ".uuid"
)

// Store manages one state directory.
type Store struct {
	dir string
}

// New returns a store rooted at dir. The directory is created lazily.
func New(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the state directory.
func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, name)
}

// Save writes d as the declared topology, replacing any previous record.
// A deployment that fails validation is rejected before anything is
// written, so Load never rejects a record Save accepted.
func (s *Store) Save(d *topology.Deployment) error {
	if err := d.Validate(); err != nil {
		return err
	}
	data, err := yaml.Marshal(d)
	if err != nil {
		return errdefs.Invalid("marshal topology", d.Name, err)
	}
	if err := s.writeFile(TopologyFile, data); err != nil {
		return errdefs.IO("save topology", d.Name, err)
	}
	return nil
}

// Load reads the declared topology.
func (s *Store) Load() (*topology.Deployment, error) {
	data, err := os.ReadFile(s.path(TopologyFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, errdefs.NotFound("load topology", s.path(TopologyFile), nil)
	}
	if err != nil {
		return nil, errdefs.IO("load topology", s.path(TopologyFile), err)
	}

	var d topology.Deployment
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, errdefs.Corrupt("parse topology", s.path(TopologyFile), err)
	}
	if err := d.Validate(); err != nil {
		return nil, errdefs.Corrupt("parse topology", s.path(TopologyFile), err)
	}
	return &d, nil
}

// writeFile writes atomically: temp file + rename.
func (s *Store) writeFile(name string, data []byte) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	finalPath := s.path(name)
	tmpPath := finalPath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

func (s *Store) readField(node, ext string) (string, error) {
	data, err := os.ReadFile(s.path(node + ext))
	if errors.Is(err, fs.ErrNotExist) {
		return "", errdefs.NotFound("read "+strings.TrimPrefix(ext, "."), node, nil)
	}
	if err != nil {
		return "", errdefs.IO("read "+strings.TrimPrefix(ext, "."), node, err)
	}
	return strings.TrimSpace(string(data)), nil
}

func (s *Store) writeField(node, ext, value string) error {
	if err := s.writeFile(node+ext, []byte(value+"\n")); err != nil {
		return errdefs.IO("write "+strings.TrimPrefix(ext, "."), node, err)
	}
	return nil
}

func (s *Store) clearField(node, ext string) error {
	err := os.Remove(s.path(node + ext))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return errdefs.IO("clear "+strings.TrimPrefix(ext, "."), node, err)
	}
	return nil
}

// OutputPath is where the backend's stdout and stderr go.
func (s *Store) OutputPath(node string) string {
	return s.path(node + ".out")
}

// BackendConfigPath is where the backend's generated configuration lives.
func (s *Store) BackendConfigPath(node string) string {
	return s.path(node + ".toml")
}

// WriteBackendConfig stores the generated backend configuration.
func (s *Store) WriteBackendConfig(node string, data []byte) error {
	if err := s.writeFile(node+".toml", data); err != nil {
		return errdefs.IO("write backend config", node, err)
	}
	return nil
}

// Names returns every node name with at least one handle file, sorted.
func (s *Store) Names() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, errdefs.IO("list state dir", s.dir, err)
	}

	set := make(map[string]bool)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		switch ext {
		case extPort, extPID, extInstance:
			set[strings.TrimSuffix(e.Name(), ext)] = true
		}
	}

	names := make([]string, 0, len(set))
	for n := range set {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

// Orphans returns names that have handle files but are not declared in d.
func (s *Store) Orphans(d *topology.Deployment) ([]string, error) {
	names, err := s.Names()
	if err != nil {
		return nil, err
	}

	declared := make(map[string]bool, len(d.Nodes))
	for _, n := range d.Nodes {
		declared[n.Name] = true
	}

	var orphans []string
	for _, n := range names {
		if !declared[n] {
			orphans = append(orphans, n)
		}
	}
	return orphans, nil
}

// Remove deletes the whole state directory.
func (s *Store) Remove() error {
	if err := os.RemoveAll(s.dir); err != nil {
		return errdefs.IO("remove state dir", s.dir, err)
	}
	return nil
}
