package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSampleDeploymentsValidate(t *testing.T) {
	for _, d := range []interface {
		Validate() error
		String() string
	}{Duo(), Trio()} {
		if err := d.Validate(); err != nil {
			t.Errorf("%s: %v", d, err)
		}
	}
}

func TestTrioShape(t *testing.T) {
	d := Trio()
	router, err := d.Node("router")
	if err != nil {
		t.Fatalf("router: %v", err)
	}
	if router.Radix != 2 {
		t.Errorf("router radix = %d, want 2", router.Radix)
	}
	if len(router.Mounts) != 1 {
		t.Errorf("router mounts = %d, want 1", len(router.Mounts))
	}
}

func TestStateDirIsLazy(t *testing.T) {
	s := StateDir(t)
	if _, err := os.Stat(s.Dir()); !os.IsNotExist(err) {
		t.Errorf("state dir %s should not exist yet", s.Dir())
	}
}

func TestLoggerRecords(t *testing.T) {
	log, hook := Logger(t)
	log.WithField("node", "violin").Debug("hello")

	if len(hook.Entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(hook.Entries))
	}
	if hook.LastEntry().Data["node"] != "violin" {
		t.Errorf("node field = %v", hook.LastEntry().Data["node"])
	}
}

func TestWriteFile(t *testing.T) {
	dir := t.TempDir()
	path := WriteFile(t, dir, "nested/topology.yaml", "name: x\n")

	if path != filepath.Join(dir, "nested", "topology.yaml") {
		t.Errorf("path = %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "name: x\n" {
		t.Errorf("content = %q", data)
	}
}
