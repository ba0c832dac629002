// Package rpcpool implements a lazily populated cache of Chain RPC clients
// keyed by subnet identifier, generalizing the Rust SubnetManagerPool this
// spec was distilled from (original_source/src/server/handlers/subnet.rs)
// onto chainrpc.Client instances.
package rpcpool

import (
	"fmt"
	"sync"

	"github.com/ipc-subnet/subnet-agent/internal/chainrpc"
	"github.com/ipc-subnet/subnet-agent/internal/config"
	"github.com/ipc-subnet/subnet-agent/internal/subnetid"
)

// ClientFactory builds a chainrpc.Client for a subnet config entry. Tests
// substitute a factory that returns fake clients instead of dialing a
// real endpoint.
type ClientFactory func(sub config.Subnet) *chainrpc.Client

// Pool lazily constructs and caches chainrpc.Client instances per subnet,
// re-checking the latest config on a cache miss before giving up. Readers
// run concurrently; only a miss takes the write lock, per spec.md's
// read-write exclusion discipline.
type Pool struct {
	cfg     *config.ReloadableConfig
	factory ClientFactory

	mu      sync.RWMutex
	clients map[string]*chainrpc.Client
}

// New returns a Pool resolving subnets against cfg and building clients
// with factory.
func New(cfg *config.ReloadableConfig, factory ClientFactory) *Pool {
	return &Pool{cfg: cfg, factory: factory, clients: make(map[string]*chainrpc.Client)}
}

// Get returns the cached client for id, constructing and inserting one if
// id is present in the current config snapshot but not yet cached. It
// returns config.ErrSubnetNotFound if id is absent from the snapshot.
func (p *Pool) Get(id subnetid.ID) (*chainrpc.Client, error) {
	key := id.String()

	p.mu.RLock()
	client, ok := p.clients[key]
	p.mu.RUnlock()
	if ok {
		return client, nil
	}

	sub, ok := p.cfg.Current().SubnetByID(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", config.ErrSubnetNotFound, id)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if client, ok := p.clients[key]; ok {
		return client, nil
	}
	client = p.factory(sub)
	p.clients[key] = client
	return client, nil
}

// Invalidate drops the cached client for id, if any, so the next Get
// rebuilds it against the current config. A config reload does not call
// it: a cached client stays in use until Invalidate drops it.
func (p *Pool) Invalidate(id subnetid.ID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.clients, id.String())
}
