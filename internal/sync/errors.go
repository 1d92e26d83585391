package sync

import "errors"

// ErrClosed indicates the client has been shut down.
var ErrClosed = errors.New("sync client closed")
