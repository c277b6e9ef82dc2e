// Package testutil provides common test helpers for vmtopo tests.
package testutil

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/javanstorm/vmtopo/internal/store"
	"github.com/javanstorm/vmtopo/pkg/topology"
)

// Image is the base image every sample node boots.
const Image = "helios-2.0"

// Duo returns a two-node deployment joined by one link.
func Duo() *topology.Deployment {
	d := topology.New("duo")
	violin := d.AddNode("violin", Image, 2, topology.GB(2))
	piano := d.AddNode("piano", Image, 2, topology.GB(2))
	d.Link(violin, piano, "")
	return d
}

// Trio returns a router with two leaves, and a host mount on the router.
func Trio() *topology.Deployment {
	d := topology.New("trio")
	router := d.AddNode("router", Image, 2, topology.GB(2))
	a := d.AddNode("a", Image, 1, topology.GB(1))
	b := d.AddNode("b", Image, 1, topology.GB(1))
	d.Link(router, a, "a8:40:25:ff:00:01")
	d.Link(router, b, "")
	if err := d.Mount(router, "/opt/src", "/opt/src"); err != nil {
		panic(err)
	}
	return d
}

// StateDir returns a store over a fresh temporary directory. The directory
// itself is not created; the store creates it on first write.
func StateDir(t *testing.T) *store.Store {
	t.Helper()
	return store.New(filepath.Join(t.TempDir(), ".vmtopo"))
}

// Logger returns a logger that records entries instead of printing them.
func Logger(t *testing.T) (*logrus.Logger, *test.Hook) {
	t.Helper()
	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	return log, hook
}

// QuietLogger returns a logger that discards everything.
func QuietLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// WriteFile writes data under dir, creating parents, and fails the test on
// error.
func WriteFile(t *testing.T, dir, name, data string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("failed to create directory for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
	return path
}
