package channels

import "time"

// ReceiveAll drains ch and returns the values received, in order.
// It returns when the channel is closed, when max values have been
// collected (0 means unlimited), or when no value arrives within
// timeout of the previous one.
func ReceiveAll[T any](ch <-chan T, timeout time.Duration, max int) []T {
	var out []T

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		if max > 0 && len(out) >= max {
			return out
		}

		select {
		case msg, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, msg)
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(timeout)
		case <-timer.C:
			return out
		}
	}
}
