package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/javanstorm/vmtopo/internal/command"
	"github.com/javanstorm/vmtopo/internal/store"
	"github.com/javanstorm/vmtopo/internal/testutil"
	"github.com/javanstorm/vmtopo/pkg/hypervisor"
	"github.com/javanstorm/vmtopo/pkg/topology"
)

const duoYAML = `
name: duo
nodes:
  - name: violin
    image: helios-2.0
    cores: 2
    memory_mb: 2048
  - name: piano
    image: helios-2.0
    cores: 2
    memory_mb: 2048
links:
  - a: violin
    b: piano
`

// host stands in for the process table: spawned backends are alive until
// killed.
type host struct {
	mu      sync.Mutex
	next    int
	alive   map[int]bool
	spawned []string
}

func (h *host) Spawn(path string, args []string, output string) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.next++
	pid := 2000 + h.next
	h.alive[pid] = true
	h.spawned = append(h.spawned, path+" "+strings.Join(args, " "))
	return pid, nil
}

func (h *host) Kill(pid int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.alive, pid)
	return nil
}

func (h *host) Alive(pid int) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.alive[pid]
}

// backend serves the hypervisor API for every node on one listener.
type backend struct {
	srv *httptest.Server

	mu     sync.Mutex
	names  map[string]uuid.UUID
	states []string
	keys   []byte
}

func newBackend(t *testing.T) *backend {
	t.Helper()

	b := &backend{names: map[string]uuid.UUID{}}
	upgrader := websocket.Upgrader{}

	mux := http.NewServeMux()
	mux.HandleFunc("PUT /instances/{id}", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Properties hypervisor.InstanceSpec `json:"properties"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		b.mu.Lock()
		b.names[body.Properties.Name] = body.Properties.ID
		b.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
	})
	mux.HandleFunc("GET /instances/{name}/uuid", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		id, ok := b.names[r.PathValue("name")]
		b.mu.Unlock()
		if !ok {
			http.Error(w, "no such instance", http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(id)
	})
	mux.HandleFunc("PUT /instances/{id}/state", func(w http.ResponseWriter, r *http.Request) {
		var state string
		if err := json.NewDecoder(r.Body).Decode(&state); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		b.mu.Lock()
		b.states = append(b.states, b.nameOf(r.PathValue("id"))+" "+state)
		b.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("GET /instances/{id}/serial", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		if err := conn.WriteMessage(websocket.BinaryMessage, []byte("login: ")); err != nil {
			return
		}
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			b.mu.Lock()
			b.keys = append(b.keys, data...)
			b.mu.Unlock()
		}
	})

	b.srv = httptest.NewServer(mux)
	t.Cleanup(b.srv.Close)
	return b
}

// nameOf maps an instance id back to its node. Callers hold mu.
func (b *backend) nameOf(id string) string {
	for name, u := range b.names {
		if u.String() == id {
			return name
		}
	}
	return id
}

func (b *backend) Client(uint16) hypervisor.Client {
	return hypervisor.New(b.srv.Listener.Addr().String())
}

func (b *backend) States() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.states...)
}

func (b *backend) Keys() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.keys)
}

type safeBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (s *safeBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Write(p)
}

func (s *safeBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.String()
}

type harness struct {
	t          *testing.T
	runner     *command.Fake
	host       *host
	backend    *backend
	deployment *topology.Deployment

	mu   sync.Mutex
	port uint16
}

// newHarness runs every command in a fresh working directory with no user
// config. Links and volumes start out absent.
func newHarness(t *testing.T) *harness {
	t.Helper()

	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg"))

	h := &harness{
		t:       t,
		runner:  &command.Fake{},
		host:    &host{alive: map[int]bool{}},
		backend: newBackend(t),
		port:    30000,
	}
	h.runner.Fail("dladm show-link", "link not found")
	h.runner.Fail("zfs list", "dataset does not exist")
	return h
}

func (h *harness) ports() (uint16, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.port++
	return h.port, nil
}

func (h *harness) exec(stdin io.Reader, stdout, stderr io.Writer, args ...string) error {
	root := NewRootCommand(Options{
		Deployment: h.deployment,
		Runner:     h.runner,
		Spawner:    h.host,
		Killer:     h.host,
		Client:     h.backend.Client,
		Ports:      h.ports,
		Stdin:      stdin,
		Stdout:     stdout,
		Stderr:     stderr,
	})
	root.SetArgs(args)
	return root.ExecuteContext(context.Background())
}

func (h *harness) run(args ...string) (stdout, stderr string, err error) {
	var out, errOut safeBuffer
	err = h.exec(strings.NewReader(""), &out, &errOut, args...)
	return out.String(), errOut.String(), err
}

func (h *harness) mustRun(args ...string) string {
	h.t.Helper()
	out, errOut, err := h.run(args...)
	require.NoError(h.t, err, "vmtopo %s\nstderr: %s", strings.Join(args, " "), errOut)
	return out
}

func (h *harness) writeTopology(data string) {
	h.t.Helper()
	testutil.WriteFile(h.t, ".", "topology.yaml", data)
}

func (h *harness) recorded() *topology.Deployment {
	h.t.Helper()
	d, err := store.New(".vmtopo").Load()
	require.NoError(h.t, err)
	return d
}

func (h *harness) writeHandle(name, data string) {
	h.t.Helper()
	require.NoError(h.t, os.MkdirAll(".vmtopo", 0755))
	testutil.WriteFile(h.t, ".vmtopo", name, data)
}
