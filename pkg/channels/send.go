package channels

import "time"

// SendNonBlock attempts one send without blocking and reports
// ErrChannelFull when no buffer slot or receiver is ready. Sending on
// a closed channel reports ErrChannelClosed instead of panicking.
func SendNonBlock[T any](ch chan<- T, msg T) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = ErrChannelClosed
		}
	}()

	select {
	case ch <- msg:
		return nil
	default:
		return ErrChannelFull
	}
}

// SendWithTimeout blocks up to timeout for the send to complete and
// reports ErrChannelTimeout when it does not. Sending on a closed
// channel reports ErrChannelClosed instead of panicking.
func SendWithTimeout[T any](ch chan<- T, msg T, timeout time.Duration) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = ErrChannelClosed
		}
	}()

	select {
	case ch <- msg:
		return nil
	case <-time.After(timeout):
		return ErrChannelTimeout
	}
}
