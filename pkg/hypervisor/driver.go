// Package hypervisor talks to a node's hypervisor backend over its control
// port: an HTTP API for instance management and a websocket for the serial
// console.
package hypervisor

import (
	"context"

	"github.com/google/uuid"
)

// Client is the control surface of one running backend.
type Client interface {
	// Ping reports whether the control port accepts connections.
	Ping(ctx context.Context) error

	// EnsureInstance creates the instance described by spec if the backend
	// does not already run it.
	EnsureInstance(ctx context.Context, spec InstanceSpec) error

	// ResolveInstance maps an instance name to the backend's identifier.
	ResolveInstance(ctx context.Context, name string) (uuid.UUID, error)

	// RequestState asks the backend to move an instance to a new state.
	RequestState(ctx context.Context, id uuid.UUID, state State) error

	// OpenConsole opens the instance's serial console stream.
	OpenConsole(ctx context.Context, id uuid.UUID) (Session, error)
}

// Factory returns a client for the backend listening on a local port.
type Factory func(port uint16) Client

// Session is a message-oriented duplex stream. *websocket.Conn satisfies it.
type Session interface {
	ReadMessage() (messageType int, data []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// State is a requested instance state.
type State string

const (
	StateRun    State = "Run"
	StateStop   State = "Stop"
	StateReboot State = "Reboot"
)

// InstanceSpec describes the instance a backend should host.
type InstanceSpec struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	ImageID     uuid.UUID `json:"image_id"`
	BootromID   uuid.UUID `json:"bootrom_id"`
	// Memory is in megabytes.
	Memory uint64 `json:"memory"`
	VCPUs  uint8  `json:"vcpus"`
}
