// Package config provides configuration management for vmtopo.
package config

import (
	"os"
	"path/filepath"
)

// Paths holds the user-level directories vmtopo looks in.
type Paths struct {
	// ConfigDir is the directory for configuration files:
	// $XDG_CONFIG_HOME/vmtopo, or ~/.config/vmtopo.
	ConfigDir string
}

// GetPaths returns the user-level paths.
func GetPaths() (*Paths, error) {
	p := &Paths{}

	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		p.ConfigDir = filepath.Join(xdgConfig, "vmtopo")
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		p.ConfigDir = filepath.Join(home, ".config", "vmtopo")
	}

	return p, nil
}
