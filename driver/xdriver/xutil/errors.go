package xutil

import "github.com/pkg/errors"

// Returned when the connection to the x server is gone.
var ErrDisplayClosed = errors.New("display closed")
