package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/ipc-subnet/subnet-agent/internal/validate"
)

// checkConfigFilePermissions warns (by erroring) if a config file is
// group/world readable. Config files carry RPC auth tokens.
func checkConfigFilePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return nil // file access errors are handled by the caller
	}
	mode := info.Mode().Perm()
	if mode&0077 != 0 {
		return fmt.Errorf("config file %s has overly permissive mode %04o; expected 0600 — fix with: chmod 600 %s", path, mode, path)
	}
	return nil
}

// Load reads and parses the TOML configuration document at path.
func Load(path string) (Config, error) {
	if _, err := os.Stat(path); err != nil {
		return Config{}, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
	}
	if err := checkConfigFilePermissions(path); err != nil {
		return Config{}, err
	}

	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks a parsed Config for internal consistency.
func Validate(cfg Config) error {
	if cfg.Server.JSONRPCAddress == "" {
		return fmt.Errorf("%w: server.json_rpc_address is required", ErrInvalid)
	}
	for name, sub := range cfg.Subnets {
		if err := validate.SubnetTableName(name); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		if sub.ID.String() == "" {
			return fmt.Errorf("%w: subnets.%s.id is required", ErrInvalid, name)
		}
		if err := validate.RPCEndpoint(sub.JSONRPCAPIHTTP); err != nil {
			return fmt.Errorf("%w: subnets.%s.jsonrpc_api_http: %v", ErrInvalid, name, err)
		}
	}
	return nil
}
