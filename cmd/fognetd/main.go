// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// fognetd is the host-local network lifecycle daemon. It realizes virtual
// networks as bridges, veth pairs, nftables rulesets, network namespaces,
// and dnsmasq instances, and serves lifecycle RPCs on a unix socket.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"

	"grimm.is/fognet/internal/api"
	"grimm.is/fognet/internal/config"
	"grimm.is/fognet/internal/dispatcher"
	"grimm.is/fognet/internal/dnsmasq"
	"grimm.is/fognet/internal/firewall"
	"grimm.is/fognet/internal/install"
	"grimm.is/fognet/internal/logging"
	"grimm.is/fognet/internal/metrics"
	"grimm.is/fognet/internal/netlink"
	"grimm.is/fognet/internal/nsmanager"
	"grimm.is/fognet/internal/registry"
	"grimm.is/fognet/internal/server"
)

// version is overridden at build time via -ldflags.
var version = "dev"

func main() {
	configFile := flag.String("config", filepath.Join(install.GetConfigDir(), "fognet.yaml"), "configuration file")
	identityFile := flag.String("identity", filepath.Join(install.GetConfigDir(), "node.yaml"), "node identity file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("fognetd", version)
		return
	}

	if err := run(*configFile, *identityFile); err != nil {
		fmt.Fprintln(os.Stderr, "fognetd:", err)
		os.Exit(1)
	}
}

func run(configFile, identityFile string) error {
	cfg := config.Default()
	if _, err := os.Stat(configFile); err == nil {
		loaded, err := config.Load(configFile)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	logger := logging.New(logging.Config{Level: cfg.LogLevel, Output: os.Stderr})
	logging.SetDefault(logger)
	log := logger.WithComponent("fognetd")

	nodeID, err := config.LoadNodeID(identityFile)
	if err != nil {
		return err
	}
	log.Info("Starting", "version", version, "node_id", nodeID)

	for _, dir := range []string{cfg.StateDir, cfg.RunDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	store, err := registry.Open(filepath.Join(cfg.StateDir, "registry.db"), nodeID, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	driver := netlink.NewDriver()
	fw, err := firewall.NewManager(logger)
	if err != nil {
		return err
	}
	nsMgr := nsmanager.NewManager(nsmanager.NewNamespaceOps(), cfg.NamespaceManager.Binary,
		cfg.NamespaceManager.Timeout, logger)
	defer nsMgr.Shutdown()
	dhcp := dnsmasq.NewService(cfg.RunDir, cfg.TemplateDir, logger)

	// Bring the registry back in line with the kernel before serving.
	report, err := store.Reconcile(registry.Probes{
		Devices:     driver.ListManagedDevices,
		Tables:      fw.ListManagedTables,
		Namespaces:  nsMgr.ListManagedNamespaces,
		DHCPRunning: dhcp.IsRunning,
	}, logger)
	if err != nil {
		return err
	}
	logReport(log, report)

	// Networks deleted while the daemon was down may have left dnsmasq
	// instances and run-dir artifacts behind.
	networks, err := store.ListNetworks()
	if err != nil {
		return err
	}
	known := make(map[uuid.UUID]bool, len(networks))
	for _, n := range networks {
		known[n.ID] = true
	}
	swept, err := dhcp.SweepStale(func(id uuid.UUID) bool { return known[id] })
	if err != nil {
		log.Warn("Failed to sweep stale DHCP artifacts", "error", err)
	}
	for _, id := range swept {
		log.Warn("Removed DHCP artifacts of a deleted network", "network_id", id)
	}

	m := metrics.New()
	d := dispatcher.New(store, driver, fw, nsMgr, dhcp, m, cfg, logger)

	ctl := server.New(d, version, logger)
	ctlErr := make(chan error, 1)
	go func() { ctlErr <- ctl.Serve(cfg.CtlSocket) }()

	var httpSrv *http.Server
	if cfg.APIListen != "" {
		httpSrv = &http.Server{
			Addr:              cfg.APIListen,
			Handler:           api.New(d, m, version, logger).Router(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("Status API failed", "error", err)
			}
		}()
		log.Info("Status API listening", "addr", cfg.APIListen)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case s := <-sig:
		log.Info("Shutting down", "signal", s)
	case err := <-ctlErr:
		if err != nil {
			return err
		}
	}

	ctl.Stop()
	if httpSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(ctx)
	}
	return nil
}

func logReport(log *logging.Logger, report *registry.Report) {
	for _, id := range report.OrphanedNetworks {
		log.Warn("Network lost its bridge, marked orphaned", "network_id", id)
	}
	for _, id := range report.OrphanedInterfaces {
		log.Warn("Interface lost its device, marked orphaned", "interface_id", id)
	}
	for _, id := range report.OrphanedNamespaces {
		log.Warn("Namespace vanished, marked orphaned", "namespace_id", id)
	}
	for _, id := range report.DHCPStopped {
		log.Warn("DHCP daemon no longer running", "network_id", id)
	}
	for _, table := range report.MissingTables {
		log.Warn("Firewall table missing for persisted ruleset", "table", table)
	}
	for _, name := range report.StrayDevices {
		log.Warn("Unregistered managed device present", "device", name)
	}
	for _, name := range report.StrayTables {
		log.Warn("Unregistered managed nftables table present", "table", name)
	}
	for _, name := range report.StrayNamespaces {
		log.Warn("Unregistered managed namespace present", "namespace", name)
	}
}
