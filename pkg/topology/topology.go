// Package topology declares the nodes and links of a virtual test topology.
//
// A Deployment is built either programmatically:
//
//	d := topology.New("duo")
//	violin := d.AddNode("violin", "helios-1.1", 2, topology.GB(2))
//	piano := d.AddNode("piano", "helios-1.1", 2, topology.GB(2))
//	d.Link(violin, piano, "")
//
// or decoded from a YAML declaration with the same field names.
package topology

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/javanstorm/vmtopo/internal/errdefs"
)

// Deployment is a declared topology. Node order is declaration order and is
// the order every multi-node operation walks.
type Deployment struct {
	Name  string `yaml:"name"`
	Nodes []Node `yaml:"nodes"`
	Links []Link `yaml:"links,omitempty"`
}

// Node is a declared virtual machine.
type Node struct {
	Name     string `yaml:"name"`
	Image    string `yaml:"image"`
	Cores    int    `yaml:"cores"`
	MemoryMB int    `yaml:"memory_mb"`
	// Radix is the number of data-plane interfaces on the node.
	Radix  int     `yaml:"radix"`
	Mounts []Mount `yaml:"mounts,omitempty"`
	// ID namespaces the node's backing volume. Assigned at declaration.
	ID uuid.UUID `yaml:"id"`
}

// Mount shares a host directory with a node.
type Mount struct {
	Source      string `yaml:"source"`
	Destination string `yaml:"destination"`
}

// Link is a point-to-point connection between two nodes. MAC optionally
// fixes the hardware address of the link's A-side interface.
type Link struct {
	A   string `yaml:"a"`
	B   string `yaml:"b"`
	MAC string `yaml:"mac,omitempty"`
}

// Interface is one end of a link as seen from a node.
type Interface struct {
	// Index is the interface ordinal on the node, in link declaration order.
	Index int
	Link  int
	Peer  string
	MAC   string
}

// GB converts gigabytes to the megabyte unit used by Node.MemoryMB.
func GB(n int) int {
	return n * 1024
}

// New creates an empty deployment.
func New(name string) *Deployment {
	return &Deployment{Name: name}
}

// AddNode declares a node and returns its name for use with Link and Mount.
func (d *Deployment) AddNode(name, image string, cores, memoryMB int) string {
	d.Nodes = append(d.Nodes, Node{
		Name:     name,
		Image:    image,
		Cores:    cores,
		MemoryMB: memoryMB,
		ID:       uuid.New(),
	})
	return name
}

// Link connects two declared nodes, growing the radix of both.
func (d *Deployment) Link(a, b, mac string) {
	d.Links = append(d.Links, Link{A: a, B: b, MAC: mac})
	for i := range d.Nodes {
		if d.Nodes[i].Name == a || d.Nodes[i].Name == b {
			d.Nodes[i].Radix++
		}
	}
}

// Mount shares source on the host at destination inside the named node.
func (d *Deployment) Mount(node, source, destination string) error {
	for i := range d.Nodes {
		if d.Nodes[i].Name == node {
			d.Nodes[i].Mounts = append(d.Nodes[i].Mounts, Mount{Source: source, Destination: destination})
			return nil
		}
	}
	return errdefs.NotFound("find node", node, nil)
}

// FindNode returns the node with the given name.
func FindNode(d *Deployment, name string) (*Node, error) {
	for i := range d.Nodes {
		if d.Nodes[i].Name == name {
			return &d.Nodes[i], nil
		}
	}
	return nil, errdefs.NotFound("find node", name, nil)
}

// Node is FindNode as a method.
func (d *Deployment) Node(name string) (*Node, error) {
	return FindNode(d, name)
}

// Names returns node names in declaration order.
func (d *Deployment) Names() []string {
	names := make([]string, 0, len(d.Nodes))
	for _, n := range d.Nodes {
		names = append(names, n.Name)
	}
	return names
}

// Interfaces returns the link endpoints terminating on the named node, in
// link declaration order.
func (d *Deployment) Interfaces(node string) []Interface {
	var ifs []Interface
	for i, l := range d.Links {
		switch node {
		case l.A:
			ifs = append(ifs, Interface{Index: len(ifs), Link: i, Peer: l.B, MAC: l.MAC})
		case l.B:
			ifs = append(ifs, Interface{Index: len(ifs), Link: i, Peer: l.A})
		}
	}
	return ifs
}

// Normalize fills in what a hand-written declaration may leave out: node
// ids and a radix large enough for the declared links.
func (d *Deployment) Normalize() {
	for i := range d.Nodes {
		n := &d.Nodes[i]
		if n.ID == uuid.Nil {
			n.ID = uuid.New()
		}
		if degree := len(d.Interfaces(n.Name)); n.Radix < degree {
			n.Radix = degree
		}
	}
}

// String implements fmt.Stringer.
func (d *Deployment) String() string {
	return fmt.Sprintf("%s (%d nodes, %d links)", d.Name, len(d.Nodes), len(d.Links))
}
