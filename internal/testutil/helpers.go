// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package testutil

import (
	"os"
	"testing"
)

// RequireVM skips the test unless IPS_VM_TEST is set, so tests touching
// real kernel facilities (nftables tables, NFQUEUE sockets) only run in
// an environment where those are actually available.
func RequireVM(t *testing.T) {
	t.Helper()
	if os.Getenv("IPS_VM_TEST") == "" {
		t.Skip("skipping: requires IPS_VM_TEST environment")
	}
}
