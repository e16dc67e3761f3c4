// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build !linux

package firewall

import (
	"fmt"

	"grimm.is/ips/internal/logging"
)

// Manager is a stub for non-Linux systems: nftables is a Linux-only
// kernel facility, so there is nothing for this platform to install.
type Manager struct {
	logger *logging.Logger
}

// New returns a stub Manager whose Install always fails.
func New(logger *logging.Logger) (*Manager, error) {
	return &Manager{logger: logger}, nil
}

// Install always returns an error on non-Linux systems.
func (m *Manager) Install(queueNum uint16) error {
	return fmt.Errorf("nftables is only supported on Linux")
}

// Teardown is a no-op on non-Linux.
func (m *Manager) Teardown() error { return nil }
