// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// fognetctl is the command-line client for the fognetd control socket.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"grimm.is/fognet/internal/install"
	"grimm.is/fognet/internal/server"
)

var version = "dev"

const usage = `Usage: fognetctl [flags] <command> [args]

Commands:
  create-network --name N --subnet CIDR [--gateway IP] [--dhcp-start IP --dhcp-end IP]
  delete-network <network-id>
  add-interface <network-id> [--address CIDR]
  remove-interface <interface-id>
  attach <interface-id> <namespace>
  detach <interface-id>
  get <network-id>
  list
  ping

Flags:
  --socket PATH   control socket (default: run dir)
`

func main() {
	socket := flag.String("socket", filepath.Join(install.GetRunDir(), "fognetd.sock"), "control socket")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if *showVersion {
		fmt.Println("fognetctl", version)
		return
	}
	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	client, err := server.Dial(*socket, 5*time.Second)
	if err != nil {
		fail(err)
	}
	defer client.Close()

	if err := dispatch(client, args[0], args[1:]); err != nil {
		fail(err)
	}
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, "fognetctl:", err)
	os.Exit(1)
}

func dispatch(client *server.Client, command string, args []string) error {
	switch command {
	case "create-network":
		return createNetwork(client, args)
	case "delete-network":
		if len(args) != 1 {
			return fmt.Errorf("delete-network takes exactly one network id")
		}
		if err := client.DeleteNetwork(args[0]); err != nil {
			return err
		}
		fmt.Println("deleted", args[0])
		return nil
	case "add-interface":
		return addInterface(client, args)
	case "remove-interface":
		if len(args) != 1 {
			return fmt.Errorf("remove-interface takes exactly one interface id")
		}
		if err := client.RemoveInterface(args[0]); err != nil {
			return err
		}
		fmt.Println("removed", args[0])
		return nil
	case "attach":
		if len(args) != 2 {
			return fmt.Errorf("attach takes an interface id and a namespace name")
		}
		if err := client.Attach(args[0], args[1]); err != nil {
			return err
		}
		fmt.Printf("attached %s to %s\n", args[0], args[1])
		return nil
	case "detach":
		if len(args) != 1 {
			return fmt.Errorf("detach takes exactly one interface id")
		}
		if err := client.Detach(args[0]); err != nil {
			return err
		}
		fmt.Println("detached", args[0])
		return nil
	case "get":
		if len(args) != 1 {
			return fmt.Errorf("get takes exactly one network id")
		}
		view, err := client.GetNetwork(args[0])
		if err != nil {
			return err
		}
		printNetwork(view)
		return nil
	case "list":
		networks, err := client.ListNetworks()
		if err != nil {
			return err
		}
		printNetworkTable(networks)
		return nil
	case "ping":
		v, err := client.Ping()
		if err != nil {
			return err
		}
		fmt.Println("fognetd", v)
		return nil
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

func createNetwork(client *server.Client, args []string) error {
	fs := flag.NewFlagSet("create-network", flag.ContinueOnError)
	name := fs.String("name", "", "network name")
	subnet := fs.String("subnet", "", "subnet CIDR")
	gateway := fs.String("gateway", "", "gateway address")
	dhcpStart := fs.String("dhcp-start", "", "first DHCP lease address")
	dhcpEnd := fs.String("dhcp-end", "", "last DHCP lease address")
	if err := fs.Parse(args); err != nil {
		return err
	}

	id, err := client.CreateNetwork(server.CreateNetworkArgs{
		Name:      *name,
		Subnet:    *subnet,
		Gateway:   *gateway,
		DHCPStart: *dhcpStart,
		DHCPEnd:   *dhcpEnd,
	})
	if err != nil {
		return err
	}
	fmt.Println(id)
	return nil
}

func addInterface(client *server.Client, args []string) error {
	fs := flag.NewFlagSet("add-interface", flag.ContinueOnError)
	address := fs.String("address", "", "interface address CIDR")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("add-interface takes exactly one network id")
	}

	id, device, err := client.AddInterface(fs.Arg(0), *address)
	if err != nil {
		return err
	}
	fmt.Println(id, device)
	return nil
}

func printNetwork(v *server.NetworkView) {
	fmt.Printf("Network:  %s (%s)\n", v.Name, v.ID)
	fmt.Printf("Subnet:   %s\n", v.Subnet)
	if v.Gateway != "" {
		fmt.Printf("Gateway:  %s\n", v.Gateway)
	}
	fmt.Printf("Bridge:   %s\n", v.Bridge)
	fmt.Printf("State:    %s\n", v.State)
	if v.DHCPEnabled {
		fmt.Printf("DHCP:     running=%v\n", v.DHCPRunning)
	}
	if len(v.Interfaces) == 0 {
		return
	}
	fmt.Println("Interfaces:")
	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "  ID\tDEVICE\tADDRESS\tNAMESPACE\tSTATE")
	for _, iface := range v.Interfaces {
		fmt.Fprintf(w, "  %s\t%s\t%s\t%s\t%s\n",
			iface.ID, iface.Device, iface.Address, iface.NamespaceID, iface.State)
	}
	w.Flush()
}

func printNetworkTable(networks []server.NetworkView) {
	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSUBNET\tBRIDGE\tIFACES\tSTATE")
	for _, n := range networks {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
			n.ID, n.Name, n.Subnet, n.Bridge, len(n.Interfaces), n.State)
	}
	w.Flush()
}
