package transport

import "errors"

var errClosed = errors.New("transport closed")
