// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package firewall builds and applies per-network nftables rulesets.
//
// Every virtual network owns one inet table whose name is derived from the
// network id. Replacing a ruleset queues the delete of the old table and
// the full build of the new one into a single netlink batch, so the kernel
// applies it as one transaction: on failure the previous ruleset stays
// untouched, and no intermediate state is ever visible.
package firewall

import (
	stderrors "errors"
	"net"
	"sync"
	"syscall"

	"github.com/google/nftables"
	"github.com/google/nftables/expr"
	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"grimm.is/fognet/internal/errors"
	"grimm.is/fognet/internal/logging"
	"grimm.is/fognet/internal/names"
)

// Conn is the slice of *nftables.Conn the manager needs. Mutations are
// queued locally and committed by Flush as one netlink transaction.
type Conn interface {
	AddTable(t *nftables.Table) *nftables.Table
	DelTable(t *nftables.Table)
	AddChain(c *nftables.Chain) *nftables.Chain
	AddRule(r *nftables.Rule) *nftables.Rule
	ListTables() ([]*nftables.Table, error)
	Flush() error
}

// Manager applies network rulesets through a netlink rule-table connection.
type Manager struct {
	// mu serializes use of conn: the connection queues mutations and Flush
	// commits everything queued, so one network's batch must never share a
	// flush with another's.
	mu     sync.Mutex
	conn   Conn
	logger *logging.Logger
}

// NewManager creates a firewall manager over a fresh netlink connection.
func NewManager(logger *logging.Logger) (*Manager, error) {
	conn, err := nftables.New()
	if err != nil {
		return nil, errors.Wrap(err, errors.KindUnavailable, "failed to open nftables connection")
	}
	return NewManagerWithConn(conn, logger), nil
}

// NewManagerWithConn creates a firewall manager with an injected
// connection.
func NewManagerWithConn(conn Conn, logger *logging.Logger) *Manager {
	if logger == nil {
		logger = logging.New(logging.DefaultConfig())
	}
	return &Manager{conn: conn, logger: logger.WithComponent("firewall")}
}

// ApplyRuleSet replaces the network's ruleset atomically. The old table (if
// any) is deleted and the new one created in the same transaction.
func (m *Manager) ApplyRuleSet(rs *RuleSet) error {
	if err := rs.Validate(); err != nil {
		return err
	}

	tableName := names.Table(rs.NetworkID)

	// Build every expression list before queuing a single mutation. An
	// error after DelTable is queued would leave the delete of the live
	// ruleset pending on the shared connection for the next flush to commit.
	type builtRule struct {
		nat   bool
		exprs []expr.Any
	}
	built := make([]builtRule, 0, len(rs.Rules))
	for i := range rs.Rules {
		rule := &rs.Rules[i]
		exprs, err := buildExprs(rule)
		if err != nil {
			return err
		}
		built = append(built, builtRule{nat: rule.Action == ActionMasquerade, exprs: exprs})
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	existing, err := m.findTable(tableName)
	if err != nil {
		return err
	}
	if existing != nil {
		m.conn.DelTable(existing)
	}

	table := m.conn.AddTable(&nftables.Table{
		Family: nftables.TableFamilyINet,
		Name:   tableName,
	})

	forward := m.conn.AddChain(&nftables.Chain{
		Name:     "forward",
		Table:    table,
		Type:     nftables.ChainTypeFilter,
		Hooknum:  nftables.ChainHookForward,
		Priority: nftables.ChainPriorityFilter,
	})
	postrouting := m.conn.AddChain(&nftables.Chain{
		Name:     "postrouting",
		Table:    table,
		Type:     nftables.ChainTypeNAT,
		Hooknum:  nftables.ChainHookPostrouting,
		Priority: nftables.ChainPriorityNATSource,
	})

	for _, b := range built {
		chain := forward
		if b.nat {
			chain = postrouting
		}
		m.conn.AddRule(&nftables.Rule{
			Table: table,
			Chain: chain,
			Exprs: b.exprs,
		})
	}

	if err := m.conn.Flush(); err != nil {
		return classifyFlush(err, tableName)
	}

	m.logger.Debug("Ruleset applied", "table", tableName, "rules", len(rs.Rules))
	return nil
}

// RemoveRuleSet deletes the network's table. Removing a table that does not
// exist is a no-op so reconcile and compensation paths can call it blindly.
func (m *Manager) RemoveRuleSet(networkID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tableName := names.Table(networkID)
	existing, err := m.findTable(tableName)
	if err != nil {
		return err
	}
	if existing == nil {
		return nil
	}
	m.conn.DelTable(existing)
	if err := m.conn.Flush(); err != nil {
		return classifyFlush(err, tableName)
	}
	m.logger.Debug("Ruleset removed", "table", tableName)
	return nil
}

// ListManagedTables returns the names of all fognet-owned tables, used by
// reconcile to spot rulesets whose network no longer exists.
func (m *Manager) ListManagedTables() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tables, err := m.conn.ListTables()
	if err != nil {
		return nil, errors.Wrap(err, errors.KindKernelReject, "failed to list tables")
	}
	var owned []string
	for _, t := range tables {
		if t.Family == nftables.TableFamilyINet && names.OwnsTable(t.Name) {
			owned = append(owned, t.Name)
		}
	}
	return owned, nil
}

func (m *Manager) findTable(name string) (*nftables.Table, error) {
	tables, err := m.conn.ListTables()
	if err != nil {
		return nil, errors.Wrap(err, errors.KindKernelReject, "failed to list tables")
	}
	for _, t := range tables {
		if t.Name == name && t.Family == nftables.TableFamilyINet {
			return t, nil
		}
	}
	return nil, nil
}

func classifyFlush(err error, table string) error {
	kind := errors.KindKernelReject
	var errno syscall.Errno
	if stderrors.As(err, &errno) && (errno == syscall.EPERM || errno == syscall.EACCES) {
		kind = errors.KindPermissionDenied
	}
	werr := errors.Wrap(err, kind, "nftables transaction rejected")
	return errors.Attr(werr, "table", table)
}

// ifname pads an interface name to the 16-byte form meta iifname/oifname
// comparisons expect.
func ifname(s string) []byte {
	b := make([]byte, 16)
	copy(b, s)
	return b
}

// buildExprs translates one rule into an nftables expression list.
// Register 1 is reused for every match; matches run in meta-then-payload
// order, mirroring what nft itself generates.
func buildExprs(r *Rule) ([]expr.Any, error) {
	var exprs []expr.Any

	// Payload matches below are IPv4 header offsets, so gate on nfproto
	// inside the inet family.
	if r.SourceCIDR != "" || r.DestCIDR != "" {
		exprs = append(exprs,
			&expr.Meta{Key: expr.MetaKeyNFPROTO, Register: 1},
			&expr.Cmp{Op: expr.CmpOpEq, Register: 1, Data: []byte{unix.NFPROTO_IPV4}},
		)
	}

	if r.InInterface != "" {
		exprs = append(exprs,
			&expr.Meta{Key: expr.MetaKeyIIFNAME, Register: 1},
			&expr.Cmp{Op: expr.CmpOpEq, Register: 1, Data: ifname(r.InInterface)},
		)
	}
	if r.OutInterface != "" {
		exprs = append(exprs,
			&expr.Meta{Key: expr.MetaKeyOIFNAME, Register: 1},
			&expr.Cmp{Op: expr.CmpOpEq, Register: 1, Data: ifname(r.OutInterface)},
		)
	}

	if r.SourceCIDR != "" {
		match, err := cidrMatch(r.SourceCIDR, 12) // ipv4 saddr offset
		if err != nil {
			return nil, err
		}
		exprs = append(exprs, match...)
	}
	if r.DestCIDR != "" {
		match, err := cidrMatch(r.DestCIDR, 16) // ipv4 daddr offset
		if err != nil {
			return nil, err
		}
		exprs = append(exprs, match...)
	}

	switch r.Action {
	case ActionMasquerade:
		exprs = append(exprs, &expr.Masq{})
	case ActionAccept:
		exprs = append(exprs, &expr.Verdict{Kind: expr.VerdictAccept})
	case ActionDrop:
		exprs = append(exprs, &expr.Verdict{Kind: expr.VerdictDrop})
	default:
		return nil, errors.Errorf(errors.KindRuleSyntax, "unknown action %q", r.Action)
	}

	return exprs, nil
}

// cidrMatch loads 4 bytes of the IPv4 header at offset into register 1,
// masks them with the prefix, and compares against the network address.
func cidrMatch(cidr string, offset uint32) ([]expr.Any, error) {
	_, ipnet, err := net.ParseCIDR(cidr)
	if err != nil {
		return nil, errors.Wrapf(err, errors.KindRuleSyntax, "invalid CIDR %q", cidr)
	}
	ip4 := ipnet.IP.To4()
	if ip4 == nil {
		return nil, errors.Errorf(errors.KindRuleSyntax, "not an IPv4 CIDR: %q", cidr)
	}
	return []expr.Any{
		&expr.Payload{
			DestRegister: 1,
			Base:         expr.PayloadBaseNetworkHeader,
			Offset:       offset,
			Len:          4,
		},
		&expr.Bitwise{
			SourceRegister: 1,
			DestRegister:   1,
			Len:            4,
			Mask:           ipnet.Mask,
			Xor:            []byte{0, 0, 0, 0},
		},
		&expr.Cmp{Op: expr.CmpOpEq, Register: 1, Data: ip4},
	}, nil
}
