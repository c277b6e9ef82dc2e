package vm

import (
	"testing"

	"github.com/google/uuid"

	"github.com/javanstorm/vmtopo/internal/testutil"
)

func TestStatusString(t *testing.T) {
	tests := []struct {
		name   string
		status Status
		want   string
	}{
		{"stopped", StatusStopped, "stopped"},
		{"running", StatusRunning, "running"},
		{"partial", StatusPartial, "partial"},
		{"stale", StatusStale, "stale"},
		{"unknown/invalid", Status(99), "unknown"},
		{"negative", Status(-1), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.status.String()
			if got != tt.want {
				t.Errorf("Status(%d).String() = %q, want %q", tt.status, got, tt.want)
			}
		})
	}
}

func TestStatusDrift(t *testing.T) {
	if StatusStopped.Drift() || StatusRunning.Drift() {
		t.Error("stopped and running are not drift")
	}
	if !StatusPartial.Drift() || !StatusStale.Drift() {
		t.Error("partial and stale are drift")
	}
}

func TestManagerStatus(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(t *testing.T, f *fixture)
		want      Status
		wantDiags int
	}{
		{
			name:  "no files",
			setup: func(*testing.T, *fixture) {},
			want:  StatusStopped,
		},
		{
			name: "running",
			setup: func(t *testing.T, f *fixture) {
				writeHandle(t, f, 7001, 40100)
				f.killer.alive[7001] = true
			},
			want: StatusRunning,
		},
		{
			name: "dead process",
			setup: func(t *testing.T, f *fixture) {
				writeHandle(t, f, 7002, 40101)
			},
			want: StatusStale,
		},
		{
			name: "port only",
			setup: func(t *testing.T, f *fixture) {
				if err := f.store.WritePort("violin", 40102); err != nil {
					t.Fatal(err)
				}
			},
			want: StatusPartial,
		},
		{
			name: "malformed uuid",
			setup: func(t *testing.T, f *fixture) {
				writeHandle(t, f, 7003, 40103)
				f.killer.alive[7003] = true
				testutil.WriteFile(t, f.store.Dir(), "violin.uuid", "nope\n")
			},
			want:      StatusPartial,
			wantDiags: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tt.setup(t, f)

			got, diags := f.mgr.Status("violin")
			if got != tt.want {
				t.Errorf("Status() = %s, want %s", got, tt.want)
			}
			if len(diags) != tt.wantDiags {
				t.Errorf("Status() diagnostics = %v, want %d", diags, tt.wantDiags)
			}
		})
	}
}

func writeHandle(t *testing.T, f *fixture, pid int, port uint16) {
	t.Helper()
	if err := f.store.WritePID("violin", pid); err != nil {
		t.Fatal(err)
	}
	if err := f.store.WritePort("violin", port); err != nil {
		t.Fatal(err)
	}
	if err := f.store.WriteInstance("violin", uuid.New()); err != nil {
		t.Fatal(err)
	}
}
