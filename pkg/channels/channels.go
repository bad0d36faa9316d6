// Package channels provides channel send helpers and a fan-out
// broadcaster for moving messages between goroutines without blocking
// the sender.
package channels

import (
	"errors"
)

// Sentinel errors reported by the send helpers.
var (
	ErrChannelClosed  = errors.New("channel closed")
	ErrChannelTimeout = errors.New("send timeout")
	ErrChannelFull    = errors.New("channel full")
)
