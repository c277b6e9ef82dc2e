package hypervisor

import (
	"errors"
	"fmt"
	"strings"
)

// Configuration errors
var (
	ErrInvalidCPUCount    = errors.New("hypervisor: CPU count must be at least 1")
	ErrInsufficientMemory = errors.New("hypervisor: memory must be at least 128MB")
	ErrMissingBootrom     = errors.New("hypervisor: bootrom path is required")
	ErrMissingDisk        = errors.New("hypervisor: root disk path is required")
)

// StatusError is an HTTP response with an unexpected status code.
type StatusError struct {
	Expected int
	Got      int
	Body     string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("unexpected HTTP response code: expected %d, received %d", e.Expected, e.Got)
	if body := strings.TrimSpace(e.Body); body != "" {
		msg += ": " + body
	}
	return msg
}
