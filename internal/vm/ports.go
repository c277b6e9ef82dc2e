package vm

import (
	"fmt"
	"net"

	"github.com/javanstorm/vmtopo/pkg/hypervisor"
	"github.com/javanstorm/vmtopo/pkg/topology"
)

// maxPortAttempts bounds how many ephemeral ports are tried before giving up.
const maxPortAttempts = 64

// PortSource proposes a free local TCP port.
type PortSource func() (uint16, error)

// EphemeralPort asks the kernel for an unused port on the control address.
// The port is released before returning, so it is free only until someone
// else binds it.
func EphemeralPort() (uint16, error) {
	l, err := net.Listen("tcp", net.JoinHostPort(hypervisor.LocalHost, "0"))
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return uint16(l.Addr().(*net.TCPAddr).Port), nil
}

// reservedPorts collects the ports recorded for every node of d except
// node, plus those handed out earlier in this invocation.
func (m *Manager) reservedPorts(d *topology.Deployment, node string) map[uint16]bool {
	reserved := make(map[uint16]bool, len(d.Nodes)+len(m.allocated))
	for p := range m.allocated {
		reserved[p] = true
	}
	for _, n := range d.Nodes {
		if n.Name == node {
			continue
		}
		if p, err := m.cfg.Store.ReadPort(n.Name); err == nil {
			reserved[p] = true
		}
	}
	return reserved
}

func (m *Manager) allocatePort(d *topology.Deployment, node string) (uint16, error) {
	reserved := m.reservedPorts(d, node)

	for i := 0; i < maxPortAttempts; i++ {
		port, err := m.cfg.Ports()
		if err != nil {
			return 0, fmt.Errorf("allocate port: %w", err)
		}
		if reserved[port] {
			m.cfg.Log.WithField("node", node).WithField("port", port).Debug("port in use by another node")
			continue
		}
		m.allocated[port] = true
		return port, nil
	}
	return 0, fmt.Errorf("allocate port: no free port after %d attempts", maxPortAttempts)
}
