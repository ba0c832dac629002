package provider

import "errors"

var (
	// ErrMalformed is returned when an envelope cannot be parsed from its
	// wire encoding, or its payload cannot be unmarshaled into a Record.
	ErrMalformed = errors.New("malformed provider record envelope")

	// ErrBadSignature is returned when an envelope's signature does not
	// verify under its embedded public key.
	ErrBadSignature = errors.New("provider record signature verification failed")

	// ErrUnknownPeer is returned when the embedded public key does not
	// derive the embedded peer ID.
	ErrUnknownPeer = errors.New("provider record peer id does not match embedded public key")
)
