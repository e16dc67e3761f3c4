// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build linux

// Package firewall installs and tears down the single nftables rule that
// hands IPv4 traffic to the userspace NFQUEUE: a table, a prerouting
// chain, and a queue rule. It owns no packet-matching logic of its own;
// that lives in internal/verdict.
package firewall

import (
	"github.com/google/nftables"
	"github.com/google/nftables/expr"
	"golang.org/x/sys/unix"

	"grimm.is/ips/internal/logging"
)

const (
	tableName = "ips"
	chainName = "prerouting"
)

// Conn is the subset of *nftables.Conn this package depends on. Narrowing
// to an interface lets tests inject a fake connection instead of touching
// the real kernel netlink socket.
type Conn interface {
	AddTable(t *nftables.Table) *nftables.Table
	AddChain(c *nftables.Chain) *nftables.Chain
	AddRule(r *nftables.Rule) *nftables.Rule
	DelTable(t *nftables.Table)
	Flush() error
}

// Manager installs the queue rule on its target conn and removes it on
// Teardown. The zero value is not usable; construct with New or
// NewWithConn.
type Manager struct {
	conn    Conn
	logger  *logging.Logger
	table   *nftables.Table
	applied bool
}

// New opens a connection to the kernel's nftables netlink socket and
// returns a Manager bound to it.
func New(logger *logging.Logger) (*Manager, error) {
	conn, err := nftables.New()
	if err != nil {
		return nil, err
	}
	return NewWithConn(conn, logger), nil
}

// NewWithConn builds a Manager against an already-open connection,
// letting callers (including tests) supply their own Conn implementation.
func NewWithConn(conn Conn, logger *logging.Logger) *Manager {
	if logger == nil {
		logger = logging.New(logging.DefaultConfig())
	}
	return &Manager{conn: conn, logger: logger}
}

// Install creates the ips table, its prerouting chain, and a single rule
// that queues every IPv4 packet to queueNum for userspace inspection. Calling
// Install again after a prior Install first tears down the old table.
func (m *Manager) Install(queueNum uint16) error {
	if m.applied {
		if err := m.Teardown(); err != nil {
			return err
		}
	}

	table := m.conn.AddTable(&nftables.Table{Name: tableName, Family: nftables.TableFamilyINet})

	chain := m.conn.AddChain(&nftables.Chain{
		Name:     chainName,
		Table:    table,
		Type:     nftables.ChainTypeFilter,
		Hooknum:  nftables.ChainHookPrerouting,
		Priority: nftables.ChainPriorityFilter,
	})

	m.conn.AddRule(&nftables.Rule{
		Table: table,
		Chain: chain,
		Exprs: []expr.Any{
			&expr.Meta{Key: expr.MetaKeyNFPROTO, Register: 1},
			&expr.Cmp{Op: expr.CmpOpEq, Register: 1, Data: []byte{unix.NFPROTO_IPV4}},
			&expr.Queue{Num: queueNum},
		},
	})

	if err := m.conn.Flush(); err != nil {
		return err
	}

	m.table = table
	m.applied = true
	m.logger.Info("installed nfqueue rule", "queue_num", queueNum, "table", tableName)
	return nil
}

// Teardown deletes the ips table, removing the chain and rule with it. A
// no-op if Install was never called.
func (m *Manager) Teardown() error {
	if !m.applied {
		return nil
	}
	m.conn.DelTable(m.table)
	if err := m.conn.Flush(); err != nil {
		return err
	}
	m.applied = false
	m.logger.Info("removed nfqueue rule", "table", tableName)
	return nil
}
