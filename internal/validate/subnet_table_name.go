package validate

import (
	"fmt"
	"regexp"
)

// subnetTableNameRe matches DNS-label-style subnet table names: 1-63
// lowercase alphanumeric or hyphens, starting and ending with alphanumeric.
// Prevents injection via a `[subnets.<name>]` table name containing '/',
// newlines, or other special characters.
var subnetTableNameRe = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?$`)

// SubnetTableName checks that a `[subnets.<name>]` TOML table name is safe.
func SubnetTableName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: subnet table name cannot be empty", ErrInvalidSubnetTableName)
	}
	if !subnetTableNameRe.MatchString(name) {
		return fmt.Errorf("%w: %q must be 1-63 lowercase alphanumeric characters or hyphens, starting and ending with alphanumeric", ErrInvalidSubnetTableName, name)
	}
	return nil
}
