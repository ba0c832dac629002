// Package config loads and hot-reloads the TOML configuration document
// describing the JSON-RPC server address and the set of subnets this
// agent manages, in the style of the teacher's YAML config package
// adapted to the TOML wire format spec.md requires.
package config

import (
	"github.com/ipc-subnet/subnet-agent/internal/subnetid"
)

// CurrentConfigVersion mirrors the teacher's version-gate convention, even
// though the wire format here carries no explicit version field yet.
const CurrentConfigVersion = 1

// Server holds the JSON-RPC server's listen configuration. AuthToken, if
// set, is required as a Bearer token on every JSON-RPC request.
// IdentityKeyPath, if set, names the file the agent's libp2p identity key
// is loaded from (or generated into on first run); left empty, the agent
// runs without a stable peer identity.
type Server struct {
	JSONRPCAddress  string `toml:"json_rpc_address"`
	AuthToken       string `toml:"auth_token,omitempty"`
	IdentityKeyPath string `toml:"identity_key_path,omitempty"`
}

// Subnet is a single managed subnet entry: its identifier, the local
// validator accounts this agent submits checkpoints on behalf of, and the
// chain RPC endpoint used to reach it.
type Subnet struct {
	ID             subnetid.ID        `toml:"id"`
	Accounts       []subnetid.Address `toml:"accounts"`
	JSONRPCAPIHTTP string             `toml:"jsonrpc_api_http"`
	AuthToken      string             `toml:"auth_token,omitempty"`
}

// Config is the parsed form of the TOML configuration document: a
// `[server]` table and a `[subnets.<name>]` table per subnet.
type Config struct {
	Server  Server            `toml:"server"`
	Subnets map[string]Subnet `toml:"subnets"`
}

// Snapshot is an immutable view of Config handed to ReloadableConfig
// subscribers. It is never mutated after construction; reload installs a
// new Snapshot rather than editing an existing one.
type Snapshot struct {
	cfg Config
}

// Server returns the snapshot's server configuration.
func (s Snapshot) Server() Server { return s.cfg.Server }

// Subnets returns the snapshot's subnet entries, keyed by their TOML table
// name (not necessarily equal to Subnet.ID's path string).
func (s Snapshot) Subnets() map[string]Subnet {
	out := make(map[string]Subnet, len(s.cfg.Subnets))
	for k, v := range s.cfg.Subnets {
		out[k] = v
	}
	return out
}

// SubnetByID looks up a subnet entry by its parsed SubnetID rather than
// its TOML table name.
func (s Snapshot) SubnetByID(id subnetid.ID) (Subnet, bool) {
	for _, sub := range s.cfg.Subnets {
		if sub.ID.Equal(id) {
			return sub, true
		}
	}
	return Subnet{}, false
}

func newSnapshot(cfg Config) *Snapshot {
	return &Snapshot{cfg: cfg}
}
