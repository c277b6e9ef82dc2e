package hypervisor

import (
	"bytes"
	"fmt"

	"github.com/BurntSushi/toml"
)

// VMConfig holds the parameters a backend process boots a node with.
type VMConfig struct {
	// CPUs is the number of virtual CPUs.
	CPUs int

	// MemoryMB is the amount of memory in megabytes.
	MemoryMB int

	// Bootrom is the path to the firmware image.
	Bootrom string

	// DiskPath is the block device holding the node's root volume.
	DiskPath string

	// VNICs are host data-link names, one per guest interface, in
	// interface order.
	VNICs []string

	// Mounts maps host directories to guest mount points.
	Mounts []Mount
}

// Mount shares a host directory with the guest over 9p.
type Mount struct {
	Source string
	Target string
}

// Validate performs basic validation of the configuration.
func (c *VMConfig) Validate() error {
	if c.CPUs < 1 {
		return ErrInvalidCPUCount
	}
	if c.MemoryMB < 128 {
		return ErrInsufficientMemory
	}
	if c.Bootrom == "" {
		return ErrMissingBootrom
	}
	if c.DiskPath == "" {
		return ErrMissingDisk
	}
	return nil
}

// backendFile is the on-disk configuration format read by the backend.
type backendFile struct {
	Bootrom  string              `toml:"bootrom"`
	BlockDev map[string]blockDev `toml:"block_dev"`
	Dev      map[string]device   `toml:"dev"`
}

type blockDev struct {
	Type string `toml:"type"`
	Path string `toml:"path"`
}

type device struct {
	Driver   string `toml:"driver"`
	PCIPath  string `toml:"pci-path"`
	BlockDev string `toml:"block_dev,omitempty"`
	VNIC     string `toml:"vnic,omitempty"`
	Source   string `toml:"source,omitempty"`
	Target   string `toml:"target,omitempty"`
}

// PCI slot layout: root disk, then NICs, then 9p shares.
const (
	diskSlot  = 4
	firstNIC  = 8
	firstP9FS = 24
)

// MarshalTOML renders the configuration file handed to the backend.
func (c *VMConfig) MarshalTOML() ([]byte, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	f := backendFile{
		Bootrom:  c.Bootrom,
		BlockDev: map[string]blockDev{"root": {Type: "file", Path: c.DiskPath}},
		Dev: map[string]device{
			"block0": {Driver: "pci-virtio-block", PCIPath: pciPath(diskSlot), BlockDev: "root"},
		},
	}
	for i, vnic := range c.VNICs {
		f.Dev[fmt.Sprintf("net%d", i)] = device{Driver: "pci-virtio-viona", PCIPath: pciPath(firstNIC + i), VNIC: vnic}
	}
	for i, m := range c.Mounts {
		f.Dev[fmt.Sprintf("p9fs%d", i)] = device{Driver: "pci-virtio-9p", PCIPath: pciPath(firstP9FS + i), Source: m.Source, Target: m.Target}
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(f); err != nil {
		return nil, fmt.Errorf("encode backend config: %w", err)
	}
	return buf.Bytes(), nil
}

func pciPath(slot int) string {
	return fmt.Sprintf("0.%d.0", slot)
}
