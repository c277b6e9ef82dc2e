package store

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"github.com/javanstorm/vmtopo/internal/errdefs"
)

// Handle is the runtime identity of a node as far as the state directory
// knows it. Each field is nil when its file is absent or unreadable.
type Handle struct {
	Port     *uint16
	PID      *int
	Instance *uuid.UUID
}

// Empty reports whether no field is present.
func (h Handle) Empty() bool {
	return h.Port == nil && h.PID == nil && h.Instance == nil
}

// Complete reports whether every field is present.
func (h Handle) Complete() bool {
	return h.Port != nil && h.PID != nil && h.Instance != nil
}

// ReadPort reads the node's control port.
func (s *Store) ReadPort(node string) (uint16, error) {
	raw, err := s.readField(node, extPort)
	if err != nil {
		return 0, err
	}
	port, err := strconv.ParseUint(raw, 10, 16)
	if err != nil {
		return 0, errdefs.Invalid("read port", node, fmt.Errorf("parse %q: %w", raw, err))
	}
	return uint16(port), nil
}

// WritePort records the node's control port.
func (s *Store) WritePort(node string, port uint16) error {
	return s.writeField(node, extPort, strconv.FormatUint(uint64(port), 10))
}

// ClearPort removes the node's port file. Absence is not an error.
func (s *Store) ClearPort(node string) error {
	return s.clearField(node, extPort)
}

// ReadPID reads the node's backend process id.
func (s *Store) ReadPID(node string) (int, error) {
	raw, err := s.readField(node, extPID)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errdefs.Invalid("read pid", node, fmt.Errorf("parse %q: %w", raw, err))
	}
	return pid, nil
}

// WritePID records the node's backend process id.
func (s *Store) WritePID(node string, pid int) error {
	return s.writeField(node, extPID, strconv.Itoa(pid))
}

// ClearPID removes the node's pid file. Absence is not an error.
func (s *Store) ClearPID(node string) error {
	return s.clearField(node, extPID)
}

// ReadInstance reads the node's hypervisor instance id.
func (s *Store) ReadInstance(node string) (uuid.UUID, error) {
	raw, err := s.readField(node, extInstance)
	if err != nil {
		return uuid.Nil, err
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, errdefs.Invalid("read uuid", node, fmt.Errorf("parse %q: %w", raw, err))
	}
	return id, nil
}

// WriteInstance records the node's hypervisor instance id.
func (s *Store) WriteInstance(node string, id uuid.UUID) error {
	return s.writeField(node, extInstance, id.String())
}

// ClearInstance removes the node's uuid file. Absence is not an error.
func (s *Store) ClearInstance(node string) error {
	return s.clearField(node, extInstance)
}

// Handle assembles whatever runtime state exists for node. Absent files
// leave their field nil silently; unreadable or malformed files leave it nil
// and are returned as diagnostics.
func (s *Store) Handle(node string) (Handle, []error) {
	var (
		h     Handle
		diags []error
	)

	if port, err := s.ReadPort(node); err == nil {
		h.Port = &port
	} else if !errors.Is(err, errdefs.ErrNotFound) {
		diags = append(diags, err)
	}

	if pid, err := s.ReadPID(node); err == nil {
		h.PID = &pid
	} else if !errors.Is(err, errdefs.ErrNotFound) {
		diags = append(diags, err)
	}

	if id, err := s.ReadInstance(node); err == nil {
		h.Instance = &id
	} else if !errors.Is(err, errdefs.ErrNotFound) {
		diags = append(diags, err)
	}

	return h, diags
}
