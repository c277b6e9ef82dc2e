package topology

import (
	"errors"
	"fmt"
	"net"
	"regexp"

	"github.com/javanstorm/vmtopo/internal/errdefs"
)

// Node names become file names in the state directory and prefixes of
// fabric link names, so they are restricted to a conservative alphabet.
var nameRe = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// MinMemoryMB is the smallest memory size a node may declare.
const MinMemoryMB = 128

// Validate checks the deployment for problems that would make launch fail
// half way through. All problems are reported, joined into one Invalid error.
func (d *Deployment) Validate() error {
	var problems []error

	if !nameRe.MatchString(d.Name) {
		problems = append(problems, fmt.Errorf("deployment name %q must match %s", d.Name, nameRe))
	}

	seen := make(map[string]bool, len(d.Nodes))
	for _, n := range d.Nodes {
		if !nameRe.MatchString(n.Name) {
			problems = append(problems, fmt.Errorf("node name %q must match %s", n.Name, nameRe))
		}
		if seen[n.Name] {
			problems = append(problems, fmt.Errorf("node %q declared twice", n.Name))
		}
		seen[n.Name] = true

		if n.Image == "" {
			problems = append(problems, fmt.Errorf("node %q: image is required", n.Name))
		}
		if n.Cores < 1 {
			problems = append(problems, fmt.Errorf("node %q: cores must be at least 1", n.Name))
		}
		if n.MemoryMB < MinMemoryMB {
			problems = append(problems, fmt.Errorf("node %q: memory must be at least %dMB", n.Name, MinMemoryMB))
		}
		if degree := len(d.Interfaces(n.Name)); n.Radix < degree {
			problems = append(problems, fmt.Errorf("node %q: radix %d is smaller than its %d links", n.Name, n.Radix, degree))
		}
		for _, m := range n.Mounts {
			if m.Source == "" || m.Destination == "" {
				problems = append(problems, fmt.Errorf("node %q: mount needs both source and destination", n.Name))
			}
		}
	}

	for i, l := range d.Links {
		if !seen[l.A] {
			problems = append(problems, fmt.Errorf("link %d: unknown node %q", i, l.A))
		}
		if !seen[l.B] {
			problems = append(problems, fmt.Errorf("link %d: unknown node %q", i, l.B))
		}
		if l.A == l.B {
			problems = append(problems, fmt.Errorf("link %d: node %q linked to itself", i, l.A))
		}
		if l.MAC != "" {
			if _, err := net.ParseMAC(l.MAC); err != nil {
				problems = append(problems, fmt.Errorf("link %d: %w", i, err))
			}
		}
	}

	if len(problems) > 0 {
		return errdefs.Invalid("validate topology", d.Name, errors.Join(problems...))
	}
	return nil
}
