package validate

import (
	"fmt"
	"net/url"
)

// RPCEndpoint checks that a chain RPC endpoint is an absolute http(s) URL.
func RPCEndpoint(endpoint string) error {
	if endpoint == "" {
		return fmt.Errorf("%w: endpoint cannot be empty", ErrInvalidEndpoint)
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidEndpoint, endpoint, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: %q must use http or https", ErrInvalidEndpoint, endpoint)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: %q is missing a host", ErrInvalidEndpoint, endpoint)
	}
	return nil
}
