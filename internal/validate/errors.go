package validate

import "errors"

var (
	// ErrInvalidSubnetTableName is returned when a `[subnets.<name>]` TOML
	// table name does not match the DNS-label format (1-63 lowercase
	// alphanumeric + hyphens).
	ErrInvalidSubnetTableName = errors.New("invalid subnet table name")

	// ErrInvalidNetworkName is returned when a network namespace does not match
	// the DNS-label format (1-63 lowercase alphanumeric + hyphens).
	ErrInvalidNetworkName = errors.New("invalid network name")

	// ErrInvalidEndpoint is returned when a chain RPC endpoint URL is
	// malformed or uses an unsupported scheme.
	ErrInvalidEndpoint = errors.New("invalid rpc endpoint")
)
