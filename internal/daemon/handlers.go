package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/ipc-subnet/subnet-agent/internal/config"
	"github.com/ipc-subnet/subnet-agent/internal/subnetid"
)

// writeHTTPError writes a bare JSON error body with an HTTP-level status
// code, used only by the auth middleware — a rejection that never reaches
// JSON-RPC dispatch has no request id to echo.
func writeHTTPError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(RPCError{Message: msg})
}

// respondResult writes a successful JSON-RPC response.
func respondResult(w http.ResponseWriter, id uint16, result any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(Response{ID: id, JSONRPC: "2.0", Result: result})
}

// respondError writes a JSON-RPC error response. Per spec.md §6 these are
// always HTTP 200 — the error lives in the envelope, not the status line.
func respondError(w http.ResponseWriter, id uint16, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(Response{ID: id, JSONRPC: "2.0", Error: &RPCError{Message: msg}})
}

// handleRequest is the single POST endpoint's handler: decode the
// envelope, dispatch on method, and write back a Response.
func (s *Server) handleRequest(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBodySize)).Decode(&req); err != nil {
		respondError(w, 0, "invalid request body")
		return
	}

	handler, ok := s.methods[req.Method]
	if !ok {
		respondError(w, req.ID, ErrMethodNotSupported.Error())
		return
	}
	r = r.WithContext(withMethodLabel(r.Context(), req.Method))

	result, err := handler(r.Context(), req.Params)
	if err != nil {
		s.log.Warn("json-rpc method failed", "method", req.Method, "error", err)
		respondError(w, req.ID, err.Error())
		return
	}
	respondResult(w, req.ID, result)
}

// handleReloadConfig implements the reload_config method: re-read the
// configuration file from disk and broadcast the new snapshot.
func (s *Server) handleReloadConfig(ctx context.Context, params json.RawMessage) (any, error) {
	snap, err := s.cfg.Reload()
	if err != nil {
		return nil, err
	}
	return ReloadConfigResult{SubnetCount: len(snap.Subnets())}, nil
}

// handleCreateSubnet implements the create_subnet method: validate the
// new subnet against the current config (parent subnet must already be
// configured, and its chain RPC's reported network name must match the
// parent's — spec.md §7's ConfigurationInvalid cases), persist it to the
// configuration file, and reload.
func (s *Server) handleCreateSubnet(ctx context.Context, params json.RawMessage) (any, error) {
	var p CreateSubnetParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid create_subnet params: %w", err)
	}
	if p.Name == "" {
		return nil, fmt.Errorf("%w: name is required", config.ErrInvalid)
	}

	id, err := subnetid.Parse(p.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid subnet id %q: %v", config.ErrInvalid, p.ID, err)
	}

	accounts := make([]subnetid.Address, len(p.Accounts))
	for i, a := range p.Accounts {
		accounts[i] = subnetid.Address(a)
	}
	sub := config.Subnet{
		ID:             id,
		Accounts:       accounts,
		JSONRPCAPIHTTP: p.JSONRPCAPIHTTP,
		AuthToken:      p.AuthToken,
	}

	if parentID, hasParent := id.Parent(); hasParent {
		snap := s.cfg.Current()
		if _, ok := snap.SubnetByID(parentID); !ok {
			return nil, fmt.Errorf("%w: parent subnet %s missing for %s", config.ErrInvalid, parentID, id)
		}
		if err := s.checkNetworkMatch(ctx, parentID, sub); err != nil {
			return nil, err
		}
	}

	if err := config.AppendSubnet(s.configPath, p.Name, sub); err != nil {
		return nil, err
	}
	if _, err := s.cfg.Reload(); err != nil {
		return nil, err
	}

	return CreateSubnetResult{ID: id.String(), Status: "created"}, nil
}

// checkNetworkMatch enforces spec.md §7's "network mismatch" case: the
// new subnet's chain RPC endpoint must report the same network name as
// its configured parent's.
func (s *Server) checkNetworkMatch(ctx context.Context, parentID subnetid.ID, sub config.Subnet) error {
	parentClient, err := s.pool.Get(parentID)
	if err != nil {
		return fmt.Errorf("resolve parent rpc for %s: %w", parentID, err)
	}
	parentNetwork, err := parentClient.StateNetworkName(ctx)
	if err != nil {
		return fmt.Errorf("read parent network name: %w", err)
	}

	newClient := s.factory(sub)
	childNetwork, err := newClient.StateNetworkName(ctx)
	if err != nil {
		return fmt.Errorf("read new subnet's network name: %w", err)
	}

	if parentNetwork != childNetwork {
		return fmt.Errorf("%w: network mismatch: parent=%s new=%s", config.ErrInvalid, parentNetwork, childNetwork)
	}
	return nil
}
