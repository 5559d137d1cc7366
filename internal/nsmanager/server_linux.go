// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build linux

package nsmanager

import (
	"context"
	"net"
	"net/rpc"
	"os"
	"runtime"

	vnl "github.com/vishvananda/netlink"
	"github.com/vishvananda/netns"

	"grimm.is/fognet/internal/errors"
	"grimm.is/fognet/internal/logging"
)

// NS is the RPC handler the helper exposes inside its namespace.
type NS struct {
	logger *logging.Logger
}

// Ping reports liveness and the helper pid.
func (s *NS) Ping(_ *Empty, reply *PingReply) error {
	reply.Pid = os.Getpid()
	return nil
}

// ListInterfaces returns non-loopback device names inside the namespace.
func (s *NS) ListInterfaces(_ *Empty, reply *ListInterfacesReply) error {
	links, err := vnl.LinkList()
	if err != nil {
		reply.Err = toWire(errors.Wrap(err, errors.KindKernelReject, "failed to list links"))
		return nil
	}
	for _, link := range links {
		attrs := link.Attrs()
		if attrs.Name == "lo" {
			continue
		}
		reply.Names = append(reply.Names, attrs.Name)
	}
	return nil
}

// ConfigureInterface assigns the address, raises the link, and installs the
// default route when a gateway is given.
func (s *NS) ConfigureInterface(args *ConfigureInterfaceArgs, reply *ConfigureInterfaceReply) error {
	reply.Err = toWire(s.configure(args))
	return nil
}

func (s *NS) configure(args *ConfigureInterfaceArgs) error {
	link, err := vnl.LinkByName(args.Device)
	if err != nil {
		if _, ok := err.(vnl.LinkNotFoundError); ok {
			return errors.Errorf(errors.KindNotFound, "device %s not in namespace", args.Device)
		}
		return errors.Wrapf(err, errors.KindKernelReject, "failed to look up %s", args.Device)
	}

	addr, err := vnl.ParseAddr(args.Address)
	if err != nil {
		return errors.Wrapf(err, errors.KindValidation, "invalid address %q", args.Address)
	}
	if err := vnl.AddrAdd(link, addr); err != nil && !os.IsExist(err) {
		return errors.Wrapf(err, errors.KindKernelReject, "failed to assign %s to %s", args.Address, args.Device)
	}
	if err := vnl.LinkSetUp(link); err != nil {
		return errors.Wrapf(err, errors.KindKernelReject, "failed to bring up %s", args.Device)
	}

	if args.Gateway != "" {
		gw := net.ParseIP(args.Gateway)
		if gw == nil {
			return errors.Errorf(errors.KindValidation, "invalid gateway %q", args.Gateway)
		}
		route := &vnl.Route{LinkIndex: link.Attrs().Index, Gw: gw}
		if err := vnl.RouteReplace(route); err != nil {
			return errors.Wrapf(err, errors.KindKernelReject, "failed to set default route via %s", args.Gateway)
		}
	}

	s.logger.Debug("Interface configured", "device", args.Device, "address", args.Address, "gateway", args.Gateway)
	return nil
}

// MoveInterfaceOut pushes the device back into the host (pid 1) namespace.
func (s *NS) MoveInterfaceOut(args *MoveInterfaceOutArgs, reply *MoveInterfaceOutReply) error {
	link, err := vnl.LinkByName(args.Device)
	if err != nil {
		if _, ok := err.(vnl.LinkNotFoundError); ok {
			reply.Err = toWire(errors.Errorf(errors.KindNotFound, "device %s not in namespace", args.Device))
			return nil
		}
		reply.Err = toWire(errors.Wrapf(err, errors.KindKernelReject, "failed to look up %s", args.Device))
		return nil
	}
	if err := vnl.LinkSetNsPid(link, 1); err != nil {
		reply.Err = toWire(errors.Wrapf(err, errors.KindKernelReject, "failed to move %s to host namespace", args.Device))
		return nil
	}
	s.logger.Debug("Interface moved to host", "device", args.Device)
	return nil
}

// Serve joins the named namespace and answers RPC on the unix socket until
// the context is canceled. It must run on the main goroutine of the helper
// binary: setns() is thread-scoped, so the serving thread stays locked.
func Serve(ctx context.Context, nsName, socket string, logger *logging.Logger) error {
	runtime.LockOSThread()

	handle, err := netns.GetFromName(nsName)
	if err != nil {
		return errors.Wrapf(err, errors.KindNotFound, "namespace %s not found", nsName)
	}
	defer handle.Close()
	if err := netns.Set(handle); err != nil {
		return errors.Wrapf(err, errors.KindPermissionDenied, "failed to enter namespace %s", nsName)
	}

	// The socket must live on the host filesystem, which is shared with the
	// namespace: only the network stack is swapped by setns.
	_ = os.Remove(socket)
	listener, err := net.Listen("unix", socket)
	if err != nil {
		return errors.Wrap(err, errors.KindDaemonStart, "failed to listen on helper socket")
	}
	defer listener.Close()
	defer os.Remove(socket)

	srv := rpc.NewServer()
	if err := srv.RegisterName("NS", &NS{logger: logger}); err != nil {
		return errors.Wrap(err, errors.KindInternal, "failed to register RPC handler")
	}

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	logger.Info("Serving namespace", "namespace", nsName, "socket", socket)
	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, errors.KindInternal, "accept failed")
		}
		go srv.ServeConn(conn)
	}
}
