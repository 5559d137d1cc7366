// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package server

import (
	"net"
	"net/rpc"
	"sync"
	"time"

	"grimm.is/fognet/internal/errors"
)

// Client talks to the fognetd control socket.
type Client struct {
	client *rpc.Client
	mu     sync.Mutex
}

// Dial connects to the control socket. A daemon that is not answering within
// the timeout is reported as unavailable.
func Dial(socket string, timeout time.Duration) (*Client, error) {
	conn, err := net.DialTimeout("unix", socket, timeout)
	if err != nil {
		werr := errors.Wrap(err, errors.KindUnavailable, "fognetd not reachable")
		return nil, errors.Attr(werr, "socket", socket)
	}
	return &Client{client: rpc.NewClient(conn)}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil {
		return nil
	}
	err := c.client.Close()
	c.client = nil
	return err
}

func (c *Client) call(method string, args, reply any) error {
	c.mu.Lock()
	client := c.client
	c.mu.Unlock()
	if client == nil {
		return errors.New(errors.KindUnavailable, "control connection closed")
	}
	if err := client.Call(serviceName+"."+method, args, reply); err != nil {
		return errors.Wrapf(err, errors.KindUnavailable, "control call %s failed", method)
	}
	return nil
}

// Ping checks daemon liveness and returns its version.
func (c *Client) Ping() (string, error) {
	var reply PingReply
	if err := c.call("Ping", &Empty{}, &reply); err != nil {
		return "", err
	}
	if err := fromWire(reply.Err); err != nil {
		return "", err
	}
	return reply.Version, nil
}

// CreateNetwork creates a virtual network and returns its id.
func (c *Client) CreateNetwork(args CreateNetworkArgs) (string, error) {
	var reply CreateNetworkReply
	if err := c.call("CreateNetwork", &args, &reply); err != nil {
		return "", err
	}
	if err := fromWire(reply.Err); err != nil {
		return "", err
	}
	return reply.ID, nil
}

// DeleteNetwork tears a virtual network down.
func (c *Client) DeleteNetwork(id string) error {
	var reply DeleteNetworkReply
	if err := c.call("DeleteNetwork", &DeleteNetworkArgs{ID: id}, &reply); err != nil {
		return err
	}
	return fromWire(reply.Err)
}

// AddInterface creates a veth pair on a network; returns the interface id
// and its workload-side device name.
func (c *Client) AddInterface(networkID, address string) (id, device string, err error) {
	var reply AddInterfaceReply
	args := &AddInterfaceArgs{NetworkID: networkID, Address: address}
	if err := c.call("AddInterface", args, &reply); err != nil {
		return "", "", err
	}
	if err := fromWire(reply.Err); err != nil {
		return "", "", err
	}
	return reply.ID, reply.Device, nil
}

// RemoveInterface deletes a detached interface.
func (c *Client) RemoveInterface(id string) error {
	var reply RemoveInterfaceReply
	if err := c.call("RemoveInterface", &RemoveInterfaceArgs{ID: id}, &reply); err != nil {
		return err
	}
	return fromWire(reply.Err)
}

// Attach moves an interface into the named namespace.
func (c *Client) Attach(interfaceID, namespace string) error {
	var reply AttachReply
	args := &AttachArgs{InterfaceID: interfaceID, Namespace: namespace}
	if err := c.call("Attach", args, &reply); err != nil {
		return err
	}
	return fromWire(reply.Err)
}

// Detach moves an interface back to the host namespace.
func (c *Client) Detach(interfaceID string) error {
	var reply DetachReply
	if err := c.call("Detach", &DetachArgs{InterfaceID: interfaceID}, &reply); err != nil {
		return err
	}
	return fromWire(reply.Err)
}

// GetNetwork returns one network with its interfaces.
func (c *Client) GetNetwork(id string) (*NetworkView, error) {
	var reply GetNetworkReply
	if err := c.call("GetNetwork", &GetNetworkArgs{ID: id}, &reply); err != nil {
		return nil, err
	}
	if err := fromWire(reply.Err); err != nil {
		return nil, err
	}
	return &reply.Network, nil
}

// ListNetworks returns every network on this node.
func (c *Client) ListNetworks() ([]NetworkView, error) {
	var reply ListNetworksReply
	if err := c.call("ListNetworks", &Empty{}, &reply); err != nil {
		return nil, err
	}
	if err := fromWire(reply.Err); err != nil {
		return nil, err
	}
	return reply.Networks, nil
}
