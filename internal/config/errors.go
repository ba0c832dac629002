package config

import "errors"

var (
	// ErrConfigNotFound is returned when no config file exists at the
	// given path.
	ErrConfigNotFound = errors.New("config file not found")

	// ErrInvalid is the ConfigurationInvalid error kind: a parent subnet
	// missing for a configured child, or a network mismatch on
	// create_subnet. Fatal for the affected operation, not for the agent.
	ErrInvalid = errors.New("configuration invalid")

	// ErrSubnetNotFound is returned by the ConnectionPool when a subnet
	// id is absent from the current config snapshot.
	ErrSubnetNotFound = errors.New("subnet not found in configuration")
)
