// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build !linux

package netq

import (
	"fmt"

	"grimm.is/ips/internal/logging"
	"grimm.is/ips/internal/verdict"
)

// VerdictFunc decides whether a decoded packet should be accepted.
type VerdictFunc func(verdict.PacketView) bool

// Reader is a stub for non-Linux systems: NFQUEUE is a Linux-only kernel
// facility, so there is nothing for this platform to bind.
type Reader struct {
	logger *logging.Logger
}

// NewReader builds a stub Reader. Start always fails.
func NewReader(queueNum uint16, logger *logging.Logger, decide VerdictFunc) *Reader {
	return &Reader{logger: logger}
}

// Start always returns an error on non-Linux systems.
func (r *Reader) Start() error {
	return fmt.Errorf("nfqueue is only supported on Linux")
}

// Stop is a no-op on non-Linux.
func (r *Reader) Stop() {}
