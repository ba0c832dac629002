package daemon

import "errors"

var (
	// ErrMethodNotSupported is returned for any JSON-RPC method not in the
	// server's method table, per spec.md §6: "unknown methods return an
	// error with message 'method not supported'".
	ErrMethodNotSupported = errors.New("method not supported")

	// ErrUnauthorized is returned when a request lacks valid authentication.
	ErrUnauthorized = errors.New("unauthorized")
)
