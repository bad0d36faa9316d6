package channels_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tapehead/tapehead/pkg/channels"
)

func TestSendNonBlock(t *testing.T) {
	t.Run("delivers when a buffer slot is free", func(t *testing.T) {
		ch := make(chan string, 2)
		require.NoError(t, channels.SendNonBlock(ch, "started"))
		assert.Equal(t, "started", <-ch)
	})

	t.Run("full buffer reports ErrChannelFull", func(t *testing.T) {
		ch := make(chan string, 1)
		ch <- "occupied"
		err := channels.SendNonBlock(ch, "started")
		assert.ErrorIs(t, err, channels.ErrChannelFull)
	})

	t.Run("unbuffered without a receiver reports ErrChannelFull", func(t *testing.T) {
		ch := make(chan string)
		err := channels.SendNonBlock(ch, "started")
		assert.ErrorIs(t, err, channels.ErrChannelFull)
	})

	t.Run("closed channel reports ErrChannelClosed", func(t *testing.T) {
		ch := make(chan string, 2)
		ch <- "kept"
		close(ch)

		err := channels.SendNonBlock(ch, "started")
		assert.ErrorIs(t, err, channels.ErrChannelClosed)

		// The value buffered before close is untouched.
		assert.Equal(t, "kept", <-ch)
	})
}

func TestSendWithTimeout(t *testing.T) {
	t.Run("delivers when a buffer slot is free", func(t *testing.T) {
		ch := make(chan int, 1)
		require.NoError(t, channels.SendWithTimeout(ch, 7, 10*time.Millisecond))
		assert.Equal(t, 7, <-ch)
	})

	t.Run("delivers to a waiting receiver", func(t *testing.T) {
		ch := make(chan int)
		got := make(chan int, 1)
		go func() { got <- <-ch }()

		require.NoError(t, channels.SendWithTimeout(ch, 7, 100*time.Millisecond))
		assert.Equal(t, 7, <-got)
	})

	t.Run("expiry reports ErrChannelTimeout", func(t *testing.T) {
		ch := make(chan int, 1)
		ch <- 0
		err := channels.SendWithTimeout(ch, 7, time.Millisecond)
		assert.ErrorIs(t, err, channels.ErrChannelTimeout)
	})

	t.Run("closed channel reports ErrChannelClosed", func(t *testing.T) {
		ch := make(chan int)
		close(ch)
		err := channels.SendWithTimeout(ch, 7, 10*time.Millisecond)
		assert.ErrorIs(t, err, channels.ErrChannelClosed)
	})
}

func TestReceiveAll(t *testing.T) {
	t.Run("collects until the channel closes", func(t *testing.T) {
		ch := make(chan int, 4)
		ch <- 1
		ch <- 2
		ch <- 3
		close(ch)

		got := channels.ReceiveAll(ch, 10*time.Millisecond, 0)
		assert.Equal(t, []int{1, 2, 3}, got)
	})

	t.Run("stops at max values", func(t *testing.T) {
		ch := make(chan int, 4)
		ch <- 1
		ch <- 2
		ch <- 3

		got := channels.ReceiveAll(ch, 10*time.Millisecond, 2)
		assert.Equal(t, []int{1, 2}, got)
	})

	t.Run("returns after a quiet period", func(t *testing.T) {
		ch := make(chan int, 4)
		ch <- 1

		start := time.Now()
		got := channels.ReceiveAll(ch, 20*time.Millisecond, 0)
		assert.Equal(t, []int{1}, got)
		assert.Less(t, time.Since(start), time.Second)
	})

	t.Run("empty and idle yields nothing", func(t *testing.T) {
		ch := make(chan int)
		got := channels.ReceiveAll(ch, time.Millisecond, 0)
		assert.Empty(t, got)
	})
}
