// Package fabric creates the host data links that carry a deployment's
// point-to-point links.
//
// Every node interface is a vnic over its own simnet. The two simnets of a
// link are peered with each other, so frames sent on one node's vnic arrive
// at the other's.
package fabric

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/javanstorm/vmtopo/internal/command"
	"github.com/javanstorm/vmtopo/internal/errdefs"
	"github.com/javanstorm/vmtopo/pkg/topology"
)

// DefaultCommand is the data-link administration tool.
const DefaultCommand = "dladm"

// MaxLinkName is the longest data-link name the host accepts.
const MaxLinkName = 31

// Fabric creates and removes the virtual links of a deployment.
type Fabric interface {
	// Create makes every link of d. Links that already exist are kept.
	Create(ctx context.Context, d *topology.Deployment) error

	// Destroy removes every link of d it finds and returns the failures.
	// It never stops early.
	Destroy(ctx context.Context, d *topology.Deployment) []error
}

// SimnetName is the simnet behind interface i of node.
func SimnetName(d *topology.Deployment, node string, i int) string {
	return fmt.Sprintf("%s_%s_sim%d", d.Name, node, i)
}

// VNICName is the vnic handed to the backend for interface i of node.
func VNICName(d *topology.Deployment, node string, i int) string {
	return fmt.Sprintf("%s_%s_vnic%d", d.Name, node, i)
}

// VNICs returns the vnic names of a node in interface order.
func VNICs(d *topology.Deployment, node string) []string {
	ifs := d.Interfaces(node)
	names := make([]string, 0, len(ifs))
	for _, ifc := range ifs {
		names = append(names, VNICName(d, node, ifc.Index))
	}
	return names
}

// Dladm implements Fabric with simnet and vnic data links.
type Dladm struct {
	Runner  command.Runner
	Command string
	Log     logrus.FieldLogger
}

var _ Fabric = (*Dladm)(nil)

// NewDladm returns a Dladm fabric. An empty name selects DefaultCommand.
func NewDladm(r command.Runner, name string, log logrus.FieldLogger) *Dladm {
	if name == "" {
		name = DefaultCommand
	}
	return &Dladm{Runner: r, Command: name, Log: log}
}

type endpoint struct {
	node   string
	index  int
	mac    string
	simnet string
	vnic   string
}

// endpoints lists both ends of every link, A side first.
func endpoints(d *topology.Deployment) [][2]endpoint {
	index := make(map[string]int)
	next := func(node string) int {
		i := index[node]
		index[node]++
		return i
	}

	pairs := make([][2]endpoint, 0, len(d.Links))
	for _, l := range d.Links {
		ai, bi := next(l.A), next(l.B)
		pairs = append(pairs, [2]endpoint{
			{node: l.A, index: ai, mac: l.MAC, simnet: SimnetName(d, l.A, ai), vnic: VNICName(d, l.A, ai)},
			{node: l.B, index: bi, simnet: SimnetName(d, l.B, bi), vnic: VNICName(d, l.B, bi)},
		})
	}
	return pairs
}

// CheckNames reports link names that exceed MaxLinkName.
func CheckNames(d *topology.Deployment) error {
	for _, pair := range endpoints(d) {
		for _, ep := range pair {
			for _, name := range []string{ep.simnet, ep.vnic} {
				if len(name) > MaxLinkName {
					return errdefs.Invalid("name link", name, fmt.Errorf("longer than %d characters", MaxLinkName))
				}
			}
		}
	}
	return nil
}

func (f *Dladm) run(ctx context.Context, subject string, args ...string) error {
	_, err := f.Runner.Run(ctx, f.Command, args...)
	if err == nil {
		return nil
	}
	op := f.Command + " " + args[0]
	if stderr := command.Stderr(err); stderr != "" {
		return errdefs.Command(op, subject, stderr, err)
	}
	return errdefs.IO(op, subject, err)
}

func (f *Dladm) exists(ctx context.Context, link string) bool {
	_, err := f.Runner.Run(ctx, f.Command, "show-link", "-p", "-o", "link", link)
	return err == nil
}

// Create implements Fabric.
func (f *Dladm) Create(ctx context.Context, d *topology.Deployment) error {
	if err := CheckNames(d); err != nil {
		return err
	}

	for _, pair := range endpoints(d) {
		for _, ep := range pair {
			if err := f.createEndpoint(ctx, ep); err != nil {
				return err
			}
		}
		if err := f.run(ctx, pair[0].simnet, "modify-simnet", "-p", pair[1].simnet, pair[0].simnet); err != nil {
			return err
		}
		f.Log.WithFields(logrus.Fields{
			"a": pair[0].simnet,
			"b": pair[1].simnet,
		}).Info("link created")
	}
	return nil
}

func (f *Dladm) createEndpoint(ctx context.Context, ep endpoint) error {
	log := f.Log.WithField("node", ep.node)

	if f.exists(ctx, ep.simnet) {
		log.WithField("link", ep.simnet).Debug("simnet exists")
	} else if err := f.run(ctx, ep.simnet, "create-simnet", ep.simnet); err != nil {
		return err
	}

	if f.exists(ctx, ep.vnic) {
		log.WithField("link", ep.vnic).Debug("vnic exists")
		return nil
	}
	args := []string{"create-vnic", "-l", ep.simnet}
	if ep.mac != "" {
		args = append(args, "-m", ep.mac)
	}
	args = append(args, ep.vnic)
	return f.run(ctx, ep.vnic, args...)
}

// Destroy implements Fabric.
func (f *Dladm) Destroy(ctx context.Context, d *topology.Deployment) []error {
	var errs []error
	for _, pair := range endpoints(d) {
		for _, ep := range pair {
			if f.exists(ctx, ep.vnic) {
				if err := f.run(ctx, ep.vnic, "delete-vnic", ep.vnic); err != nil {
					errs = append(errs, err)
				}
			}
			if f.exists(ctx, ep.simnet) {
				if err := f.run(ctx, ep.simnet, "delete-simnet", ep.simnet); err != nil {
					errs = append(errs, err)
				}
			}
		}
	}
	for _, err := range errs {
		f.Log.WithError(err).Warn("fabric teardown")
	}
	return errs
}
