// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package nsmanager

import (
	"net"
	"net/rpc"
	"sync"
	"time"

	"grimm.is/fognet/internal/errors"
)

// Client talks to one namespace helper over its unix socket.
type Client struct {
	client *rpc.Client
	mu     sync.Mutex
}

// Dial connects to a helper socket. A helper that is not answering within
// the timeout is reported as unavailable, which the dispatcher treats as
// retryable.
func Dial(socket string, timeout time.Duration) (*Client, error) {
	conn, err := net.DialTimeout("unix", socket, timeout)
	if err != nil {
		werr := errors.Wrap(err, errors.KindUnavailable, "namespace helper not reachable")
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
		return errors.New(errors.KindUnavailable, "namespace helper connection closed")
	}
	if err := client.Call(method, args, reply); err != nil {
		return errors.Wrapf(err, errors.KindUnavailable, "namespace helper call %s failed", method)
	}
	return nil
}

// Ping checks helper liveness and returns its pid.
func (c *Client) Ping() (int, error) {
	var reply PingReply
	if err := c.call("NS.Ping", &Empty{}, &reply); err != nil {
		return 0, err
	}
	if err := fromWire(reply.Err); err != nil {
		return 0, err
	}
	return reply.Pid, nil
}

// ListInterfaces returns the non-loopback device names inside the namespace.
func (c *Client) ListInterfaces() ([]string, error) {
	var reply ListInterfacesReply
	if err := c.call("NS.ListInterfaces", &Empty{}, &reply); err != nil {
		return nil, err
	}
	if err := fromWire(reply.Err); err != nil {
		return nil, err
	}
	return reply.Names, nil
}

// ConfigureInterface addresses and raises a device inside the namespace and
// installs the default route when a gateway is given.
func (c *Client) ConfigureInterface(device, address, gateway string) error {
	var reply ConfigureInterfaceReply
	args := &ConfigureInterfaceArgs{Device: device, Address: address, Gateway: gateway}
	if err := c.call("NS.ConfigureInterface", args, &reply); err != nil {
		return err
	}
	return fromWire(reply.Err)
}

// MoveInterfaceOut pushes a device back to the host namespace.
func (c *Client) MoveInterfaceOut(device string) error {
	var reply MoveInterfaceOutReply
	if err := c.call("NS.MoveInterfaceOut", &MoveInterfaceOutArgs{Device: device}, &reply); err != nil {
		return err
	}
	return fromWire(reply.Err)
}
