// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package firewall

import (
	"fmt"
	"sync"
	"syscall"
	"testing"

	"github.com/google/nftables"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/fognet/internal/errors"
	"grimm.is/fognet/internal/names"
)

// fakeConn queues mutations like *nftables.Conn and commits them on Flush,
// so tests can observe the transaction boundary.
type fakeConn struct {
	committed map[string]*fakeTable // table name -> state
	queue     []func()
	flushErr  error

	// batchTables records which table each queued mutation targets; Flush
	// sets mixedBatch when a single flush carries more than one table, which
	// would mean two networks' updates shared a transaction.
	batchTables []string
	mixedBatch  bool
}

type fakeTable struct {
	table  *nftables.Table
	chains []string
	rules  int
}

func newFakeConn() *fakeConn {
	return &fakeConn{committed: make(map[string]*fakeTable)}
}

func (c *fakeConn) AddTable(t *nftables.Table) *nftables.Table {
	c.batchTables = append(c.batchTables, t.Name)
	c.queue = append(c.queue, func() {
		c.committed[t.Name] = &fakeTable{table: t}
	})
	return t
}

func (c *fakeConn) DelTable(t *nftables.Table) {
	c.batchTables = append(c.batchTables, t.Name)
	c.queue = append(c.queue, func() {
		delete(c.committed, t.Name)
	})
}

func (c *fakeConn) AddChain(ch *nftables.Chain) *nftables.Chain {
	c.batchTables = append(c.batchTables, ch.Table.Name)
	c.queue = append(c.queue, func() {
		if t, ok := c.committed[ch.Table.Name]; ok {
			t.chains = append(t.chains, ch.Name)
		}
	})
	return ch
}

func (c *fakeConn) AddRule(r *nftables.Rule) *nftables.Rule {
	c.batchTables = append(c.batchTables, r.Table.Name)
	c.queue = append(c.queue, func() {
		if t, ok := c.committed[r.Table.Name]; ok {
			t.rules++
		}
	})
	return r
}

func (c *fakeConn) ListTables() ([]*nftables.Table, error) {
	var out []*nftables.Table
	for _, t := range c.committed {
		out = append(out, t.table)
	}
	return out, nil
}

func (c *fakeConn) Flush() error {
	for _, name := range c.batchTables {
		if name != c.batchTables[0] {
			c.mixedBatch = true
		}
	}
	c.batchTables = nil

	queue := c.queue
	c.queue = nil
	if c.flushErr != nil {
		// The kernel rejects the whole batch; nothing is applied.
		return c.flushErr
	}
	for _, op := range queue {
		op()
	}
	return nil
}

func TestApplyRuleSet(t *testing.T) {
	conn := newFakeConn()
	m := NewManagerWithConn(conn, nil)
	netID := uuid.New()

	rs := DefaultRuleSet(netID, "10.10.0.0/24", "eth0", []string{"10.20.0.0/24"})
	require.NoError(t, m.ApplyRuleSet(rs))

	table := conn.committed[names.Table(netID)]
	require.NotNil(t, table, "table should exist after apply")
	assert.ElementsMatch(t, []string{"forward", "postrouting"}, table.chains)
	assert.Equal(t, 2, table.rules)
}

func TestApplyRuleSetReplacesAtomically(t *testing.T) {
	conn := newFakeConn()
	m := NewManagerWithConn(conn, nil)
	netID := uuid.New()

	first := DefaultRuleSet(netID, "10.10.0.0/24", "eth0", nil)
	require.NoError(t, m.ApplyRuleSet(first))
	require.Equal(t, 1, conn.committed[names.Table(netID)].rules)

	// Second apply fails at the kernel: the previous ruleset must survive
	// untouched.
	conn.flushErr = syscall.EINVAL
	second := DefaultRuleSet(netID, "10.10.0.0/24", "eth0", []string{"10.30.0.0/24", "10.40.0.0/24"})
	err := m.ApplyRuleSet(second)
	require.Error(t, err)
	assert.Equal(t, errors.KindKernelReject, errors.GetKind(err))

	table := conn.committed[names.Table(netID)]
	require.NotNil(t, table, "previous table must remain after failed replace")
	assert.Equal(t, 1, table.rules, "previous ruleset must be intact")

	// A later successful apply swaps in the replacement.
	conn.flushErr = nil
	require.NoError(t, m.ApplyRuleSet(second))
	assert.Equal(t, 3, conn.committed[names.Table(netID)].rules)
}

func TestApplyRuleSetRejectsBadRules(t *testing.T) {
	conn := newFakeConn()
	m := NewManagerWithConn(conn, nil)

	tests := []struct {
		name string
		rs   *RuleSet
	}{
		{"no network id", &RuleSet{}},
		{"bad action", &RuleSet{NetworkID: uuid.New(), Rules: []Rule{{Action: "explode"}}}},
		{"bad cidr", &RuleSet{NetworkID: uuid.New(), Rules: []Rule{{Action: ActionDrop, SourceCIDR: "not-a-cidr"}}}},
		{"ipv6 cidr", &RuleSet{NetworkID: uuid.New(), Rules: []Rule{{Action: ActionDrop, SourceCIDR: "fd00::/64"}}}},
		{"bad interface", &RuleSet{NetworkID: uuid.New(), Rules: []Rule{{Action: ActionAccept, InInterface: "eth0; rm -rf"}}}},
		{"masquerade without source", &RuleSet{NetworkID: uuid.New(), Rules: []Rule{{Action: ActionMasquerade, OutInterface: "eth0"}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := m.ApplyRuleSet(tt.rs)
			require.Error(t, err)
			assert.Equal(t, errors.KindRuleSyntax, errors.GetKind(err))
			assert.False(t, errors.Retryable(err))
			assert.Empty(t, conn.committed, "no kernel state on validation failure")
			assert.Empty(t, conn.queue, "a rejected ruleset must queue nothing for a later flush to pick up")
		})
	}
}

func TestConcurrentAppliesStayIsolated(t *testing.T) {
	conn := newFakeConn()
	m := NewManagerWithConn(conn, nil)

	const networks = 8
	ids := make([]uuid.UUID, networks)
	for i := range ids {
		ids[i] = uuid.New()
	}

	var wg sync.WaitGroup
	errs := make([]error, networks)
	for i := 0; i < networks; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			subnet := fmt.Sprintf("10.%d.0.0/24", 10+i)
			errs[i] = m.ApplyRuleSet(DefaultRuleSet(ids[i], subnet, "eth0", nil))
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "network %d", i)
	}
	assert.False(t, conn.mixedBatch, "each flush must carry exactly one network's table")
	for _, id := range ids {
		table := conn.committed[names.Table(id)]
		require.NotNil(t, table)
		assert.Equal(t, 1, table.rules)
	}
}

func TestPermissionDeniedClassification(t *testing.T) {
	conn := newFakeConn()
	conn.flushErr = syscall.EPERM
	m := NewManagerWithConn(conn, nil)

	rs := DefaultRuleSet(uuid.New(), "10.10.0.0/24", "eth0", nil)
	err := m.ApplyRuleSet(rs)
	require.Error(t, err)
	assert.Equal(t, errors.KindPermissionDenied, errors.GetKind(err))
}

func TestRemoveRuleSet(t *testing.T) {
	conn := newFakeConn()
	m := NewManagerWithConn(conn, nil)
	netID := uuid.New()

	require.NoError(t, m.ApplyRuleSet(DefaultRuleSet(netID, "10.10.0.0/24", "eth0", nil)))
	require.NoError(t, m.RemoveRuleSet(netID))
	assert.Empty(t, conn.committed)

	// Removing again is a no-op.
	require.NoError(t, m.RemoveRuleSet(netID))
}

func TestListManagedTables(t *testing.T) {
	conn := newFakeConn()
	m := NewManagerWithConn(conn, nil)
	netID := uuid.New()

	// A foreign table must never be reported.
	conn.committed["filter"] = &fakeTable{table: &nftables.Table{Name: "filter", Family: nftables.TableFamilyINet}}

	require.NoError(t, m.ApplyRuleSet(DefaultRuleSet(netID, "10.10.0.0/24", "eth0", nil)))

	tables, err := m.ListManagedTables()
	require.NoError(t, err)
	assert.Equal(t, []string{names.Table(netID)}, tables)
}
