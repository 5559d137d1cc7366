// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package registry

import (
	"database/sql"
	stderrors "errors"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"grimm.is/fognet/internal/errors"
	"grimm.is/fognet/internal/logging"
)

const schema = `
CREATE TABLE IF NOT EXISTS networks (
	id            TEXT PRIMARY KEY,
	node_id       TEXT NOT NULL,
	name          TEXT NOT NULL,
	subnet        TEXT NOT NULL,
	gateway       TEXT NOT NULL DEFAULT '',
	dhcp_start    TEXT NOT NULL DEFAULT '',
	dhcp_end      TEXT NOT NULL DEFAULT '',
	bridge_device TEXT NOT NULL,
	state         TEXT NOT NULL,
	created_at    INTEGER NOT NULL,
	UNIQUE (node_id, name)
);
CREATE TABLE IF NOT EXISTS interfaces (
	id           TEXT PRIMARY KEY,
	node_id      TEXT NOT NULL,
	device       TEXT NOT NULL,
	peer_device  TEXT NOT NULL,
	network_id   TEXT,
	namespace_id TEXT,
	address      TEXT NOT NULL DEFAULT '',
	state        TEXT NOT NULL,
	created_at   INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS namespaces (
	id         TEXT PRIMARY KEY,
	node_id    TEXT NOT NULL,
	name       TEXT NOT NULL,
	state      TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	UNIQUE (node_id, name)
);
CREATE TABLE IF NOT EXISTS rulesets (
	network_id TEXT PRIMARY KEY,
	node_id    TEXT NOT NULL,
	rules      TEXT NOT NULL,
	applied_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS dhcp (
	network_id  TEXT PRIMARY KEY,
	node_id     TEXT NOT NULL,
	running     INTEGER NOT NULL,
	config_path TEXT NOT NULL DEFAULT ''
);
`

// Store is the sqlite-backed entity registry, scoped to one node id so a
// shared state directory never mixes hosts.
type Store struct {
	db     *sql.DB
	nodeID uuid.UUID
	logger *logging.Logger
}

// Open opens (creating if needed) the registry database at path.
func Open(path string, nodeID uuid.UUID, logger *logging.Logger) (*Store, error) {
	if logger == nil {
		logger = logging.New(logging.DefaultConfig())
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, errors.KindInternal, "failed to open registry database")
	}
	// The registry is accessed from one process; a single connection
	// sidesteps sqlite writer contention.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, errors.KindInternal, "failed to apply registry schema")
	}
	return &Store{db: db, nodeID: nodeID, logger: logger.WithComponent("registry")}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// NodeID returns the node this registry is scoped to.
func (s *Store) NodeID() uuid.UUID {
	return s.nodeID
}

func classifySQL(err error, what string) error {
	if stderrors.Is(err, sql.ErrNoRows) {
		return errors.Errorf(errors.KindNotFound, "%s not found", what)
	}
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return errors.Wrapf(err, errors.KindConflict, "%s already exists", what)
	}
	return errors.Wrapf(err, errors.KindInternal, "registry %s access failed", what)
}

// --- VirtualNetwork ---

// PutNetwork inserts or updates a network record.
func (s *Store) PutNetwork(n *VirtualNetwork) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	if n.State == "" {
		n.State = StateActive
	}
	_, err := s.db.Exec(`
		INSERT INTO networks (id, node_id, name, subnet, gateway, dhcp_start, dhcp_end, bridge_device, state, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name, subnet = excluded.subnet, gateway = excluded.gateway,
			dhcp_start = excluded.dhcp_start, dhcp_end = excluded.dhcp_end,
			bridge_device = excluded.bridge_device, state = excluded.state`,
		n.ID.String(), s.nodeID.String(), n.Name, n.Subnet, n.Gateway,
		n.DHCPStart, n.DHCPEnd, n.BridgeDevice, string(n.State), n.CreatedAt.Unix())
	if err != nil {
		return classifySQL(err, "network")
	}
	return nil
}

func (s *Store) scanNetwork(row interface{ Scan(...any) error }) (*VirtualNetwork, error) {
	var n VirtualNetwork
	var id, state string
	var createdAt int64
	err := row.Scan(&id, &n.Name, &n.Subnet, &n.Gateway, &n.DHCPStart, &n.DHCPEnd, &n.BridgeDevice, &state, &createdAt)
	if err != nil {
		return nil, err
	}
	n.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, err
	}
	n.State = State(state)
	n.CreatedAt = time.Unix(createdAt, 0)
	return &n, nil
}

const networkCols = `id, name, subnet, gateway, dhcp_start, dhcp_end, bridge_device, state, created_at`

// GetNetwork fetches a network by id.
func (s *Store) GetNetwork(id uuid.UUID) (*VirtualNetwork, error) {
	row := s.db.QueryRow(`SELECT `+networkCols+` FROM networks WHERE id = ? AND node_id = ?`,
		id.String(), s.nodeID.String())
	n, err := s.scanNetwork(row)
	if err != nil {
		return nil, classifySQL(err, "network")
	}
	return n, nil
}

// GetNetworkByName fetches a network by human name.
func (s *Store) GetNetworkByName(name string) (*VirtualNetwork, error) {
	row := s.db.QueryRow(`SELECT `+networkCols+` FROM networks WHERE name = ? AND node_id = ?`,
		name, s.nodeID.String())
	n, err := s.scanNetwork(row)
	if err != nil {
		return nil, classifySQL(err, "network")
	}
	return n, nil
}

// ListNetworks returns all networks on this node, oldest first.
func (s *Store) ListNetworks() ([]*VirtualNetwork, error) {
	rows, err := s.db.Query(`SELECT `+networkCols+` FROM networks WHERE node_id = ? ORDER BY created_at, id`,
		s.nodeID.String())
	if err != nil {
		return nil, classifySQL(err, "networks")
	}
	defer rows.Close()
	var out []*VirtualNetwork
	for rows.Next() {
		n, err := s.scanNetwork(rows)
		if err != nil {
			return nil, classifySQL(err, "network")
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// DeleteNetwork removes a network record and its ruleset/dhcp state.
func (s *Store) DeleteNetwork(id uuid.UUID) error {
	res, err := s.db.Exec(`DELETE FROM networks WHERE id = ? AND node_id = ?`, id.String(), s.nodeID.String())
	if err != nil {
		return classifySQL(err, "network")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.Errorf(errors.KindNotFound, "network %s not found", id)
	}
	_, _ = s.db.Exec(`DELETE FROM rulesets WHERE network_id = ?`, id.String())
	_, _ = s.db.Exec(`DELETE FROM dhcp WHERE network_id = ?`, id.String())
	return nil
}

// --- Interface ---

// PutInterface inserts or updates an interface record.
func (s *Store) PutInterface(i *Interface) error {
	if i.CreatedAt.IsZero() {
		i.CreatedAt = time.Now()
	}
	if i.State == "" {
		i.State = StateActive
	}
	var networkID, namespaceID any
	if i.NetworkID != nil {
		networkID = i.NetworkID.String()
	}
	if i.NamespaceID != nil {
		namespaceID = i.NamespaceID.String()
	}
	_, err := s.db.Exec(`
		INSERT INTO interfaces (id, node_id, device, peer_device, network_id, namespace_id, address, state, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			device = excluded.device, peer_device = excluded.peer_device,
			network_id = excluded.network_id, namespace_id = excluded.namespace_id,
			address = excluded.address, state = excluded.state`,
		i.ID.String(), s.nodeID.String(), i.Device, i.PeerDevice, networkID, namespaceID,
		i.Address, string(i.State), i.CreatedAt.Unix())
	if err != nil {
		return classifySQL(err, "interface")
	}
	return nil
}

func scanInterface(row interface{ Scan(...any) error }) (*Interface, error) {
	var i Interface
	var id, state string
	var networkID, namespaceID sql.NullString
	var createdAt int64
	err := row.Scan(&id, &i.Device, &i.PeerDevice, &networkID, &namespaceID, &i.Address, &state, &createdAt)
	if err != nil {
		return nil, err
	}
	i.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, err
	}
	if networkID.Valid {
		nid, err := uuid.Parse(networkID.String)
		if err != nil {
			return nil, err
		}
		i.NetworkID = &nid
	}
	if namespaceID.Valid {
		nsid, err := uuid.Parse(namespaceID.String)
		if err != nil {
			return nil, err
		}
		i.NamespaceID = &nsid
	}
	i.State = State(state)
	i.CreatedAt = time.Unix(createdAt, 0)
	return &i, nil
}

const interfaceCols = `id, device, peer_device, network_id, namespace_id, address, state, created_at`

// GetInterface fetches an interface by id.
func (s *Store) GetInterface(id uuid.UUID) (*Interface, error) {
	row := s.db.QueryRow(`SELECT `+interfaceCols+` FROM interfaces WHERE id = ? AND node_id = ?`,
		id.String(), s.nodeID.String())
	i, err := scanInterface(row)
	if err != nil {
		return nil, classifySQL(err, "interface")
	}
	return i, nil
}

func (s *Store) listInterfaces(where string, args ...any) ([]*Interface, error) {
	rows, err := s.db.Query(`SELECT `+interfaceCols+` FROM interfaces WHERE `+where+` ORDER BY created_at, id`, args...)
	if err != nil {
		return nil, classifySQL(err, "interfaces")
	}
	defer rows.Close()
	var out []*Interface
	for rows.Next() {
		i, err := scanInterface(rows)
		if err != nil {
			return nil, classifySQL(err, "interface")
		}
		out = append(out, i)
	}
	return out, rows.Err()
}

// ListInterfaces returns every interface on this node.
func (s *Store) ListInterfaces() ([]*Interface, error) {
	return s.listInterfaces(`node_id = ?`, s.nodeID.String())
}

// ListNetworkInterfaces returns the interfaces bound to one network.
func (s *Store) ListNetworkInterfaces(networkID uuid.UUID) ([]*Interface, error) {
	return s.listInterfaces(`node_id = ? AND network_id = ?`, s.nodeID.String(), networkID.String())
}

// ListNamespaceInterfaces returns the interfaces inside one namespace.
func (s *Store) ListNamespaceInterfaces(nsID uuid.UUID) ([]*Interface, error) {
	return s.listInterfaces(`node_id = ? AND namespace_id = ?`, s.nodeID.String(), nsID.String())
}

// DeleteInterface removes an interface record.
func (s *Store) DeleteInterface(id uuid.UUID) error {
	res, err := s.db.Exec(`DELETE FROM interfaces WHERE id = ? AND node_id = ?`, id.String(), s.nodeID.String())
	if err != nil {
		return classifySQL(err, "interface")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.Errorf(errors.KindNotFound, "interface %s not found", id)
	}
	return nil
}

// --- Namespace ---

// PutNamespace inserts or updates a namespace record.
func (s *Store) PutNamespace(ns *Namespace) error {
	if ns.CreatedAt.IsZero() {
		ns.CreatedAt = time.Now()
	}
	if ns.State == "" {
		ns.State = StateActive
	}
	_, err := s.db.Exec(`
		INSERT INTO namespaces (id, node_id, name, state, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET name = excluded.name, state = excluded.state`,
		ns.ID.String(), s.nodeID.String(), ns.Name, string(ns.State), ns.CreatedAt.Unix())
	if err != nil {
		return classifySQL(err, "namespace")
	}
	return nil
}

func scanNamespace(row interface{ Scan(...any) error }) (*Namespace, error) {
	var ns Namespace
	var id, state string
	var createdAt int64
	if err := row.Scan(&id, &ns.Name, &state, &createdAt); err != nil {
		return nil, err
	}
	var err error
	ns.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, err
	}
	ns.State = State(state)
	ns.CreatedAt = time.Unix(createdAt, 0)
	return &ns, nil
}

// GetNamespace fetches a namespace by id.
func (s *Store) GetNamespace(id uuid.UUID) (*Namespace, error) {
	row := s.db.QueryRow(`SELECT id, name, state, created_at FROM namespaces WHERE id = ? AND node_id = ?`,
		id.String(), s.nodeID.String())
	ns, err := scanNamespace(row)
	if err != nil {
		return nil, classifySQL(err, "namespace")
	}
	return ns, nil
}

// GetNamespaceByName fetches a namespace by its name.
func (s *Store) GetNamespaceByName(name string) (*Namespace, error) {
	row := s.db.QueryRow(`SELECT id, name, state, created_at FROM namespaces WHERE name = ? AND node_id = ?`,
		name, s.nodeID.String())
	ns, err := scanNamespace(row)
	if err != nil {
		return nil, classifySQL(err, "namespace")
	}
	return ns, nil
}

// ListNamespaces returns all namespaces on this node.
func (s *Store) ListNamespaces() ([]*Namespace, error) {
	rows, err := s.db.Query(`SELECT id, name, state, created_at FROM namespaces WHERE node_id = ? ORDER BY created_at, id`,
		s.nodeID.String())
	if err != nil {
		return nil, classifySQL(err, "namespaces")
	}
	defer rows.Close()
	var out []*Namespace
	for rows.Next() {
		ns, err := scanNamespace(rows)
		if err != nil {
			return nil, classifySQL(err, "namespace")
		}
		out = append(out, ns)
	}
	return out, rows.Err()
}

// DeleteNamespace removes a namespace record.
func (s *Store) DeleteNamespace(id uuid.UUID) error {
	res, err := s.db.Exec(`DELETE FROM namespaces WHERE id = ? AND node_id = ?`, id.String(), s.nodeID.String())
	if err != nil {
		return classifySQL(err, "namespace")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.Errorf(errors.KindNotFound, "namespace %s not found", id)
	}
	return nil
}

// --- RuleSet / DHCP state ---

// PutRuleSet records the rules applied for a network.
func (s *Store) PutRuleSet(r *RuleSetRecord) error {
	if r.AppliedAt.IsZero() {
		r.AppliedAt = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT INTO rulesets (network_id, node_id, rules, applied_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (network_id) DO UPDATE SET rules = excluded.rules, applied_at = excluded.applied_at`,
		r.NetworkID.String(), s.nodeID.String(), r.Rules, r.AppliedAt.Unix())
	if err != nil {
		return classifySQL(err, "ruleset")
	}
	return nil
}

// GetRuleSet fetches the persisted rules for a network.
func (s *Store) GetRuleSet(networkID uuid.UUID) (*RuleSetRecord, error) {
	var r RuleSetRecord
	var appliedAt int64
	row := s.db.QueryRow(`SELECT rules, applied_at FROM rulesets WHERE network_id = ? AND node_id = ?`,
		networkID.String(), s.nodeID.String())
	if err := row.Scan(&r.Rules, &appliedAt); err != nil {
		return nil, classifySQL(err, "ruleset")
	}
	r.NetworkID = networkID
	r.AppliedAt = time.Unix(appliedAt, 0)
	return &r, nil
}

// PutDHCP records the dnsmasq state for a network.
func (s *Store) PutDHCP(d *DHCPRecord) error {
	running := 0
	if d.Running {
		running = 1
	}
	_, err := s.db.Exec(`
		INSERT INTO dhcp (network_id, node_id, running, config_path) VALUES (?, ?, ?, ?)
		ON CONFLICT (network_id) DO UPDATE SET running = excluded.running, config_path = excluded.config_path`,
		d.NetworkID.String(), s.nodeID.String(), running, d.ConfigPath)
	if err != nil {
		return classifySQL(err, "dhcp state")
	}
	return nil
}

// GetDHCP fetches the dnsmasq state for a network.
func (s *Store) GetDHCP(networkID uuid.UUID) (*DHCPRecord, error) {
	var d DHCPRecord
	var running int
	row := s.db.QueryRow(`SELECT running, config_path FROM dhcp WHERE network_id = ? AND node_id = ?`,
		networkID.String(), s.nodeID.String())
	if err := row.Scan(&running, &d.ConfigPath); err != nil {
		return nil, classifySQL(err, "dhcp state")
	}
	d.NetworkID = networkID
	d.Running = running != 0
	return &d, nil
}
