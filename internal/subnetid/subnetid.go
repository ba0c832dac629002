// Package subnetid implements the hierarchical subnet path identifier and
// the narrow address type used throughout the subnet-agent data model.
package subnetid

import (
	"fmt"
	"strings"
)

// Address stands in for the chain's native account/actor address type.
// The agent never interprets the bytes; it only carries and compares the
// string form of addresses it reads from configuration or from the chain
// RPC. The format of that string is not checked.
type Address string

// String returns the address in its wire form.
func (a Address) String() string { return string(a) }

// Root is the path of the root subnet, the empty hierarchy.
const Root = "/"

// ID is a "/"-separated path of actor addresses, rooted at "/", e.g.
// "/f01234/f05678". The root subnet itself has no parent.
type ID struct {
	path string
}

// Parse validates and constructs an ID from its string path form.
func Parse(path string) (ID, error) {
	if path == "" {
		return ID{}, fmt.Errorf("%w: empty subnet path", ErrInvalid)
	}
	if !strings.HasPrefix(path, "/") {
		return ID{}, fmt.Errorf("%w: %q must start with '/'", ErrInvalid, path)
	}
	if path != Root {
		for _, seg := range strings.Split(strings.TrimPrefix(path, "/"), "/") {
			if seg == "" {
				return ID{}, fmt.Errorf("%w: %q has an empty path segment", ErrInvalid, path)
			}
		}
	}
	return ID{path: path}, nil
}

// MustParse is Parse but panics on error; reserved for literals in tests
// and constants.
func MustParse(path string) ID {
	id, err := Parse(path)
	if err != nil {
		panic(err)
	}
	return id
}

// String returns the path form of the identifier.
func (id ID) String() string { return id.path }

// IsRoot reports whether id is the root subnet.
func (id ID) IsRoot() bool { return id.path == Root }

// Segments returns the ordered list of actor addresses in the path,
// excluding the leading root.
func (id ID) Segments() []Address {
	if id.IsRoot() {
		return nil
	}
	parts := strings.Split(strings.TrimPrefix(id.path, "/"), "/")
	segs := make([]Address, len(parts))
	for i, p := range parts {
		segs[i] = Address(p)
	}
	return segs
}

// Parent returns the parent subnet ID and true, unless id is the root,
// in which case it returns the zero ID and false.
func (id ID) Parent() (ID, bool) {
	if id.IsRoot() {
		return ID{}, false
	}
	segs := id.Segments()
	if len(segs) == 1 {
		return ID{path: Root}, true
	}
	parentPath := "/" + joinAddresses(segs[:len(segs)-1])
	return ID{path: parentPath}, true
}

// SubnetActor returns the address of the actor that anchors this subnet
// to its parent: the last path segment. Calling it on the root is invalid.
func (id ID) SubnetActor() (Address, error) {
	segs := id.Segments()
	if len(segs) == 0 {
		return "", fmt.Errorf("%w: root subnet has no subnet actor", ErrInvalid)
	}
	return segs[len(segs)-1], nil
}

// Equal reports whether two subnet IDs name the same path.
func (id ID) Equal(other ID) bool { return id.path == other.path }

func joinAddresses(segs []Address) string {
	strs := make([]string, len(segs))
	for i, s := range segs {
		strs[i] = string(s)
	}
	return strings.Join(strs, "/")
}

// MarshalText implements encoding.TextMarshaler so ID round-trips through
// JSON and TOML as its path string.
func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.path), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ID) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
