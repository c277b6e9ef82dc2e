package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/javanstorm/vmtopo/pkg/topology"
)

// step is one external command of the snapshot pipeline. creates names the
// artifact it leaves behind on success.
type step struct {
	name    string
	args    []string
	creates string
}

// SnapshotError reports a pipeline that stopped part way. Artifacts from the
// completed steps are not rolled back; they are listed so an operator can
// inspect or destroy them by hand.
type SnapshotError struct {
	Step      int
	Name      string
	Artifacts []string
	Err       error
}

func (e *SnapshotError) Error() string {
	msg := fmt.Sprintf("snapshot step %d (%s): %v", e.Step, e.Name, e.Err)
	if len(e.Artifacts) > 0 {
		msg += "; left in place: " + strings.Join(e.Artifacts, ", ")
	}
	return msg
}

func (e *SnapshotError) Unwrap() error { return e.Err }

// Snapshot converts node's running volume into a new base image:
//
//  1. snapshot the node volume under the base tag
//  2. clone that snapshot to <root>/img/<newImage>
//  3. promote the clone so it no longer depends on the node volume
//  4. snapshot the promoted clone under the base tag
//
// The pipeline stops at the first failing step. Completed steps are not
// undone.
func (m *Manager) Snapshot(ctx context.Context, d *topology.Deployment, node *topology.Node, newImage string) error {
	if err := ValidateImageName(newImage); err != nil {
		return err
	}

	var (
		source     = m.Volume(d, node)
		sourceSnap = m.snapshotOf(source)
		dest       = m.Image(newImage)
		destSnap   = m.snapshotOf(dest)
	)

	steps := []step{
		{name: "snapshot", args: []string{"snapshot", sourceSnap}, creates: sourceSnap},
		{name: "clone", args: []string{"clone", sourceSnap, dest}, creates: dest},
		{name: "promote", args: []string{"promote", dest}},
		{name: "snapshot", args: []string{"snapshot", destSnap}, creates: destSnap},
	}

	var artifacts []string
	for i, s := range steps {
		if err := m.run(ctx, s.args[len(s.args)-1], s.args...); err != nil {
			return &SnapshotError{Step: i + 1, Name: s.name, Artifacts: artifacts, Err: err}
		}
		if s.creates != "" {
			artifacts = append(artifacts, s.creates)
		}
	}
	return nil
}
