// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package server

import (
	"net"
	"net/rpc"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"grimm.is/fognet/internal/dispatcher"
	"grimm.is/fognet/internal/errors"
	"grimm.is/fognet/internal/logging"
	"grimm.is/fognet/internal/names"
	"grimm.is/fognet/internal/registry"
)

// serviceName is the RPC service the client dials.
const serviceName = "Fognet"

// Server serves lifecycle RPCs on a unix socket.
type Server struct {
	dispatcher *dispatcher.Dispatcher
	logger     *logging.Logger
	version    string

	mu       sync.Mutex
	listener net.Listener
	closed   bool
}

// New creates a server around the dispatcher.
func New(d *dispatcher.Dispatcher, version string, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.New(logging.DefaultConfig())
	}
	return &Server{
		dispatcher: d,
		logger:     logger.WithComponent("server"),
		version:    version,
	}
}

// Serve listens on the unix socket and blocks handling connections until
// Stop is called. A stale socket from a previous run is removed first.
func (s *Server) Serve(socket string) error {
	if err := os.MkdirAll(filepath.Dir(socket), 0o755); err != nil {
		return errors.Wrapf(err, errors.KindInternal, "failed to create socket directory for %s", socket)
	}
	if err := os.Remove(socket); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, errors.KindInternal, "failed to remove stale socket %s", socket)
	}

	ln, err := net.Listen("unix", socket)
	if err != nil {
		return errors.Wrapf(err, errors.KindInternal, "failed to listen on %s", socket)
	}
	if err := os.Chmod(socket, 0o600); err != nil {
		ln.Close()
		return errors.Wrapf(err, errors.KindInternal, "failed to restrict socket %s", socket)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		ln.Close()
		return errors.New(errors.KindInternal, "server already stopped")
	}
	s.listener = ln
	s.mu.Unlock()

	rpcServer := rpc.NewServer()
	if err := rpcServer.RegisterName(serviceName, s); err != nil {
		return errors.Wrap(err, errors.KindInternal, "failed to register RPC service")
	}

	s.logger.Info("Control socket listening", "socket", socket)
	for {
		conn, err := ln.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return nil
			}
			s.logger.Warn("Accept failed", "error", err)
			continue
		}
		go rpcServer.ServeConn(conn)
	}
}

// Stop closes the listener; Serve returns once it notices.
func (s *Server) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.listener != nil {
		s.listener.Close()
	}
}

// Ping reports liveness.
func (s *Server) Ping(_ Empty, reply *PingReply) error {
	reply.Version = s.version
	return nil
}

// CreateNetwork creates a virtual network.
func (s *Server) CreateNetwork(args CreateNetworkArgs, reply *CreateNetworkReply) error {
	id, err := s.dispatcher.CreateNetwork(dispatcher.CreateNetworkSpec{
		Name:      args.Name,
		Subnet:    args.Subnet,
		Gateway:   args.Gateway,
		DHCPStart: args.DHCPStart,
		DHCPEnd:   args.DHCPEnd,
	})
	if err != nil {
		reply.Err = toWire(err)
		return nil
	}
	reply.ID = id.String()
	return nil
}

// DeleteNetwork tears a virtual network down.
func (s *Server) DeleteNetwork(args DeleteNetworkArgs, reply *DeleteNetworkReply) error {
	id, err := parseID(args.ID, "network id")
	if err != nil {
		reply.Err = toWire(err)
		return nil
	}
	reply.Err = toWire(s.dispatcher.DeleteNetwork(id))
	return nil
}

// AddInterface creates a veth pair on a network.
func (s *Server) AddInterface(args AddInterfaceArgs, reply *AddInterfaceReply) error {
	netID, err := parseID(args.NetworkID, "network id")
	if err != nil {
		reply.Err = toWire(err)
		return nil
	}
	id, err := s.dispatcher.AddInterface(netID, dispatcher.AddInterfaceSpec{Address: args.Address})
	if err != nil {
		reply.Err = toWire(err)
		return nil
	}
	reply.ID = id.String()
	reply.Device, _ = names.VethPair(id)
	return nil
}

// RemoveInterface deletes a detached interface.
func (s *Server) RemoveInterface(args RemoveInterfaceArgs, reply *RemoveInterfaceReply) error {
	id, err := parseID(args.ID, "interface id")
	if err != nil {
		reply.Err = toWire(err)
		return nil
	}
	reply.Err = toWire(s.dispatcher.RemoveInterface(id))
	return nil
}

// Attach moves an interface into a namespace.
func (s *Server) Attach(args AttachArgs, reply *AttachReply) error {
	id, err := parseID(args.InterfaceID, "interface id")
	if err != nil {
		reply.Err = toWire(err)
		return nil
	}
	reply.Err = toWire(s.dispatcher.AttachToNamespace(id, args.Namespace))
	return nil
}

// Detach moves an interface back to the host namespace.
func (s *Server) Detach(args DetachArgs, reply *DetachReply) error {
	id, err := parseID(args.InterfaceID, "interface id")
	if err != nil {
		reply.Err = toWire(err)
		return nil
	}
	reply.Err = toWire(s.dispatcher.DetachFromNamespace(id))
	return nil
}

// GetNetwork returns one network with its interfaces.
func (s *Server) GetNetwork(args GetNetworkArgs, reply *GetNetworkReply) error {
	id, err := parseID(args.ID, "network id")
	if err != nil {
		reply.Err = toWire(err)
		return nil
	}
	info, err := s.dispatcher.GetNetwork(id)
	if err != nil {
		reply.Err = toWire(err)
		return nil
	}
	reply.Network = toView(info)
	return nil
}

// ListNetworks returns every network on this node.
func (s *Server) ListNetworks(_ Empty, reply *ListNetworksReply) error {
	infos, err := s.dispatcher.ListNetworks()
	if err != nil {
		reply.Err = toWire(err)
		return nil
	}
	reply.Networks = make([]NetworkView, 0, len(infos))
	for _, info := range infos {
		reply.Networks = append(reply.Networks, toView(info))
	}
	return nil
}

func parseID(raw, what string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, errors.Wrapf(err, errors.KindValidation, "invalid %s %q", what, raw)
	}
	return id, nil
}

func toView(info *dispatcher.NetworkInfo) NetworkView {
	n := info.Network
	v := NetworkView{
		ID:          n.ID.String(),
		Name:        n.Name,
		Subnet:      n.Subnet,
		Gateway:     n.Gateway,
		Bridge:      n.BridgeDevice,
		State:       string(n.State),
		DHCPEnabled: n.DHCPStart != "",
	}
	if info.DHCP != nil {
		v.DHCPRunning = info.DHCP.Running
	}
	for _, iface := range info.Interfaces {
		v.Interfaces = append(v.Interfaces, toInterfaceView(iface))
	}
	return v
}

func toInterfaceView(iface *registry.Interface) InterfaceView {
	iv := InterfaceView{
		ID:         iface.ID.String(),
		Device:     iface.Device,
		PeerDevice: iface.PeerDevice,
		Address:    iface.Address,
		State:      string(iface.State),
	}
	if iface.NamespaceID != nil {
		iv.NamespaceID = iface.NamespaceID.String()
	}
	return iv
}
