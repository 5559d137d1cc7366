// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package api serves the read-only HTTP status surface: network inventory,
// health, and Prometheus metrics. All mutation goes through the control
// socket; this listener never changes state.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"grimm.is/fognet/internal/dispatcher"
	"grimm.is/fognet/internal/errors"
	"grimm.is/fognet/internal/logging"
	"grimm.is/fognet/internal/metrics"
	"grimm.is/fognet/internal/registry"
)

// API holds the handlers for the status listener.
type API struct {
	dispatcher *dispatcher.Dispatcher
	metrics    *metrics.Metrics
	logger     *logging.Logger
	version    string
}

// New creates the API around the dispatcher.
func New(d *dispatcher.Dispatcher, m *metrics.Metrics, version string, logger *logging.Logger) *API {
	if logger == nil {
		logger = logging.New(logging.DefaultConfig())
	}
	return &API{
		dispatcher: d,
		metrics:    m,
		logger:     logger.WithComponent("api"),
		version:    version,
	}
}

// Router builds the route table.
func (a *API) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", a.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/v1/networks", a.handleListNetworks).Methods(http.MethodGet)
	r.HandleFunc("/v1/networks/{id}", a.handleGetNetwork).Methods(http.MethodGet)
	if a.metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(a.metrics.Registry(), promhttp.HandlerOpts{}))
	}
	return r
}

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

type interfaceResponse struct {
	ID          string `json:"id"`
	Device      string `json:"device"`
	PeerDevice  string `json:"peer_device"`
	Address     string `json:"address,omitempty"`
	NamespaceID string `json:"namespace_id,omitempty"`
	State       string `json:"state"`
}

type networkResponse struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Subnet      string              `json:"subnet"`
	Gateway     string              `json:"gateway,omitempty"`
	Bridge      string              `json:"bridge"`
	State       string              `json:"state"`
	DHCPEnabled bool                `json:"dhcp_enabled"`
	DHCPRunning bool                `json:"dhcp_running"`
	Interfaces  []interfaceResponse `json:"interfaces"`
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	a.writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Version: a.version})
}

func (a *API) handleListNetworks(w http.ResponseWriter, _ *http.Request) {
	infos, err := a.dispatcher.ListNetworks()
	if err != nil {
		a.writeError(w, err)
		return
	}
	out := make([]networkResponse, 0, len(infos))
	for _, info := range infos {
		out = append(out, toResponse(info))
	}
	a.writeJSON(w, http.StatusOK, out)
}

func (a *API) handleGetNetwork(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		a.writeError(w, errors.Wrap(err, errors.KindValidation, "invalid network id"))
		return
	}
	info, err := a.dispatcher.GetNetwork(id)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, toResponse(info))
}

func toResponse(info *dispatcher.NetworkInfo) networkResponse {
	n := info.Network
	resp := networkResponse{
		ID:          n.ID.String(),
		Name:        n.Name,
		Subnet:      n.Subnet,
		Gateway:     n.Gateway,
		Bridge:      n.BridgeDevice,
		State:       string(n.State),
		DHCPEnabled: n.DHCPStart != "",
		Interfaces:  make([]interfaceResponse, 0, len(info.Interfaces)),
	}
	if info.DHCP != nil {
		resp.DHCPRunning = info.DHCP.Running
	}
	for _, iface := range info.Interfaces {
		resp.Interfaces = append(resp.Interfaces, toInterfaceResponse(iface))
	}
	return resp
}

func toInterfaceResponse(iface *registry.Interface) interfaceResponse {
	ir := interfaceResponse{
		ID:         iface.ID.String(),
		Device:     iface.Device,
		PeerDevice: iface.PeerDevice,
		Address:    iface.Address,
		State:      string(iface.State),
	}
	if iface.NamespaceID != nil {
		ir.NamespaceID = iface.NamespaceID.String()
	}
	return ir
}

func (a *API) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.Warn("Failed to encode response", "error", err)
	}
}

func (a *API) writeError(w http.ResponseWriter, err error) {
	kind := errors.GetKind(err)
	status := http.StatusInternalServerError
	switch kind {
	case errors.KindNotFound:
		status = http.StatusNotFound
	case errors.KindValidation:
		status = http.StatusBadRequest
	case errors.KindConflict, errors.KindAlreadyExists:
		status = http.StatusConflict
	}
	a.writeJSON(w, status, errorResponse{Error: err.Error(), Kind: kind.String()})
}
