package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javanstorm/vmtopo/internal/command"
	"github.com/javanstorm/vmtopo/internal/errdefs"
	"github.com/javanstorm/vmtopo/pkg/topology"
)

var nodeID = uuid.MustParse("6d1f6a4e-3c3e-4b8a-9a51-2f0a8a5b7c11")

func fixture() (*topology.Deployment, *topology.Node) {
	d := topology.New("duo")
	d.AddNode("router", "helios-1.1", 2, topology.GB(2))
	d.Nodes[0].ID = nodeID
	return d, &d.Nodes[0]
}

func newManager(f *command.Fake) *Manager {
	return New(Config{Runner: f, Root: "rpool/falcon"})
}

func TestPaths(t *testing.T) {
	d, n := fixture()
	m := newManager(&command.Fake{})

	assert.Equal(t, "rpool/falcon/topo/duo/"+nodeID.String(), m.Volume(d, n))
	assert.Equal(t, "rpool/falcon/img/helios-1.1", m.Image(n.Image))
	assert.Equal(t, "/dev/zvol/rdsk/rpool/falcon/topo/duo/"+nodeID.String(), m.DevicePath(d, n))
}

func TestDefaults(t *testing.T) {
	m := New(Config{})
	assert.Equal(t, DefaultCommand, m.command)
	assert.Equal(t, DefaultRoot, m.root)
	assert.Equal(t, DefaultTag, m.tag)
	assert.IsType(t, command.Exec{}, m.runner)
}

func TestSnapshotSuccess(t *testing.T) {
	d, n := fixture()
	f := &command.Fake{}
	m := newManager(f)

	require.NoError(t, m.Snapshot(context.Background(), d, n, "router-golden"))

	vol := "rpool/falcon/topo/duo/" + nodeID.String()
	assert.Equal(t, []string{
		"zfs snapshot " + vol + "@base",
		"zfs clone " + vol + "@base rpool/falcon/img/router-golden",
		"zfs promote rpool/falcon/img/router-golden",
		"zfs snapshot rpool/falcon/img/router-golden@base",
	}, f.Calls())
}

func TestSnapshotCloneFailureStopsPipeline(t *testing.T) {
	d, n := fixture()
	f := &command.Fake{}
	f.Fail("zfs clone", "cannot create 'rpool/falcon/img/router-golden': dataset already exists")
	m := newManager(f)

	err := m.Snapshot(context.Background(), d, n, "router-golden")
	require.Error(t, err)

	calls := f.Calls()
	require.Len(t, calls, 2, "promote and final snapshot must not run")
	assert.Contains(t, calls[1], "zfs clone")

	assert.ErrorIs(t, err, errdefs.ErrStorageCommand)
	assert.Contains(t, err.Error(), "dataset already exists")

	var snapErr *SnapshotError
	require.True(t, errors.As(err, &snapErr))
	assert.Equal(t, 2, snapErr.Step)
	assert.Equal(t, "clone", snapErr.Name)
	// The step 1 snapshot is left behind, not destroyed.
	assert.Equal(t, []string{"rpool/falcon/topo/duo/" + nodeID.String() + "@base"}, snapErr.Artifacts)
	for _, c := range calls {
		assert.NotContains(t, c, "destroy")
	}
}

func TestSnapshotPromoteFailureLeavesCloneAndSnapshot(t *testing.T) {
	d, n := fixture()
	f := &command.Fake{}
	f.Fail("zfs promote", "not a cloned filesystem")
	m := newManager(f)

	err := m.Snapshot(context.Background(), d, n, "img2")

	var snapErr *SnapshotError
	require.True(t, errors.As(err, &snapErr))
	assert.Equal(t, 3, snapErr.Step)
	assert.Len(t, snapErr.Artifacts, 2)
	assert.Len(t, f.Calls(), 3)
}

func TestSnapshotFirstStepFailure(t *testing.T) {
	d, n := fixture()
	f := &command.Fake{}
	f.Fail("zfs snapshot", "dataset is busy")
	m := newManager(f)

	err := m.Snapshot(context.Background(), d, n, "img2")

	var snapErr *SnapshotError
	require.True(t, errors.As(err, &snapErr))
	assert.Equal(t, 1, snapErr.Step)
	assert.Empty(t, snapErr.Artifacts)
	assert.NotContains(t, err.Error(), "left in place")
	assert.Len(t, f.Calls(), 1)
}

func TestSnapshotRejectsBadImageName(t *testing.T) {
	d, n := fixture()
	f := &command.Fake{}
	m := newManager(f)

	for _, name := range []string{"", "a/b", "a@b", "a b"} {
		err := m.Snapshot(context.Background(), d, n, name)
		assert.ErrorIs(t, err, errdefs.ErrInvalid, name)
	}
	assert.Empty(t, f.Calls())
}

func TestProvision(t *testing.T) {
	d, n := fixture()
	vol := "rpool/falcon/topo/duo/" + nodeID.String()

	t.Run("clones when volume is missing", func(t *testing.T) {
		f := &command.Fake{}
		f.Fail("zfs list", "dataset does not exist")
		require.NoError(t, newManager(f).Provision(context.Background(), d, n))
		assert.Equal(t, []string{
			"zfs list -H -o name " + vol,
			"zfs clone -p rpool/falcon/img/helios-1.1@base " + vol,
		}, f.Calls())
	})

	t.Run("keeps existing volume", func(t *testing.T) {
		f := &command.Fake{}
		require.NoError(t, newManager(f).Provision(context.Background(), d, n))
		assert.Len(t, f.Calls(), 1)
	})

	t.Run("missing image", func(t *testing.T) {
		f := &command.Fake{}
		f.Fail("zfs list", "dataset does not exist")
		f.Fail("zfs clone", "could not find any snapshots to destroy")
		err := newManager(f).Provision(context.Background(), d, n)
		assert.ErrorIs(t, err, errdefs.ErrStorageCommand)
	})
}

func TestRelease(t *testing.T) {
	d, n := fixture()
	vol := "rpool/falcon/topo/duo/" + nodeID.String()

	f := &command.Fake{}
	require.NoError(t, newManager(f).Release(context.Background(), d, n))
	assert.Equal(t, []string{"zfs list -H -o name " + vol, "zfs destroy -r " + vol}, f.Calls())

	f = &command.Fake{}
	f.Fail("zfs list", "dataset does not exist")
	require.NoError(t, newManager(f).Release(context.Background(), d, n))
	assert.Len(t, f.Calls(), 1)
}

func TestRunWithoutStderrIsIO(t *testing.T) {
	d, n := fixture()
	f := &command.Fake{}
	f.On("zfs snapshot", nil, errors.New("exec: \"zfs\": executable file not found in $PATH"))

	err := newManager(f).Snapshot(context.Background(), d, n, "img")
	assert.ErrorIs(t, err, errdefs.ErrIO)
}
