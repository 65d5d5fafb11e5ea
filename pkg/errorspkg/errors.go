// Package errorspkg provides common app errors.
package errorspkg

import "errors"

// ErrInternal indicates internal server error.
//
// It is the only error text a client sees for failures it cannot act upon.
var ErrInternal = errors.New("internal")
