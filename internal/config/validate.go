package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/javanstorm/vmtopo/internal/errdefs"
)

// ValidationError represents a configuration issue.
type ValidationError struct {
	Field   string
	Message string
	Fatal   bool // true = can't proceed, false = will be ignored
}

// Validate checks the configuration. Returns a list of validation
// errors/warnings.
func (c *Config) Validate() []ValidationError {
	var errs []ValidationError
	fatal := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...), Fatal: true})
	}

	for _, f := range []struct{ field, value string }{
		{"state_dir", c.StateDir},
		{"backend_path", c.BackendPath},
		{"destroy_command", c.DestroyCommand},
		{"zfs_command", c.ZFSCommand},
		{"dladm_command", c.DladmCommand},
	} {
		if f.value == "" {
			fatal(f.field, "must not be empty")
		}
	}

	switch {
	case c.DatasetRoot == "":
		fatal("dataset_root", "must not be empty")
	case strings.HasPrefix(c.DatasetRoot, "/"), strings.HasSuffix(c.DatasetRoot, "/"), strings.Contains(c.DatasetRoot, "@"):
		fatal("dataset_root", "%q is not a dataset name", c.DatasetRoot)
	}

	if c.SnapshotTag == "" || strings.ContainsAny(c.SnapshotTag, "/@ ") {
		fatal("snapshot_tag", "%q is not a snapshot name", c.SnapshotTag)
	}

	if c.ReadyAttempts < 1 {
		fatal("ready_attempts", "must be at least 1, got %d", c.ReadyAttempts)
	}
	if c.ReadyInterval <= 0 {
		fatal("ready_interval", "must be positive, got %s", c.ReadyInterval)
	}

	if c.LogLevel != "" {
		if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
			fatal("log_level", "%v", err)
		}
	}

	switch {
	case c.QuitByte < 1 || c.QuitByte > 0xff:
		fatal("quit_byte", "must be a byte value between 1 and 255, got %d", c.QuitByte)
	case c.QuitByte >= 0x20 && c.QuitByte < 0x7f:
		errs = append(errs, ValidationError{
			Field:   "quit_byte",
			Message: fmt.Sprintf("%q is a printable character and cannot be typed into the console", rune(c.QuitByte)),
		})
	}

	return errs
}

// Fatal joins the fatal entries of errs into an Invalid error, or returns
// nil when there are none.
func Fatal(errs []ValidationError) error {
	var fatal []error
	for _, e := range errs {
		if e.Fatal {
			fatal = append(fatal, fmt.Errorf("%s: %s", e.Field, e.Message))
		}
	}
	if len(fatal) == 0 {
		return nil
	}
	return errdefs.Invalid("validate config", "", errors.Join(fatal...))
}

// FormatValidationErrors returns human-readable error summary.
func FormatValidationErrors(errors []ValidationError) string {
	if len(errors) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Configuration warnings:\n")
	for _, e := range errors {
		prefix := "Warning"
		if e.Fatal {
			prefix = "Error"
		}
		fmt.Fprintf(&b, "  %s [%s]: %s\n", prefix, e.Field, e.Message)
	}
	return b.String()
}
