package config

import (
	"bytes"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// ErrSubnetTableExists is returned by AppendSubnet when the named subnet
// table is already present in the configuration document.
var ErrSubnetTableExists = fmt.Errorf("%w: subnet table already exists", ErrInvalid)

// AppendSubnet adds a new [subnets.<name>] table to the configuration file
// at path and rewrites it in place, preserving every other field of the
// parsed document. It re-validates the resulting document before writing,
// so a caller never persists an invalid configuration.
//
// Callers that also hold a ReloadableConfig must call its Reload method
// afterwards to observe the new subnet; AppendSubnet only touches disk.
func AppendSubnet(path, name string, sub Subnet) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	if _, exists := cfg.Subnets[name]; exists {
		return fmt.Errorf("%w: %s", ErrSubnetTableExists, name)
	}

	if cfg.Subnets == nil {
		cfg.Subnets = make(map[string]Subnet, 1)
	}
	cfg.Subnets[name] = sub
	if err := Validate(cfg); err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	info, err := os.Stat(path)
	mode := os.FileMode(0600)
	if err == nil {
		mode = info.Mode().Perm()
	}
	if err := os.WriteFile(path, buf.Bytes(), mode); err != nil {
		return fmt.Errorf("write config file %s: %w", path, err)
	}
	return nil
}
