package chainrpc

import "errors"

var (
	// ErrTransport is returned when the underlying transport fails to
	// deliver a request or receive a response (network-level failure).
	ErrTransport = errors.New("chain rpc: transport failure")

	// ErrProtocol is returned when a response cannot be parsed as valid
	// JSON-RPC, or its result does not match the expected shape.
	ErrProtocol = errors.New("chain rpc: protocol failure")

	// ErrRemote is returned when the remote node itself reports an error
	// for the call (a well-formed JSON-RPC error object).
	ErrRemote = errors.New("chain rpc: remote error")
)
