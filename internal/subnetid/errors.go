package subnetid

import "errors"

// ErrInvalid is returned when a subnet path string fails validation.
var ErrInvalid = errors.New("invalid subnet id")
