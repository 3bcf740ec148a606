package rabbitmq

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang-mq-relay/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionPool(t *testing.T) {
	t.Run("Acquire blocks at capacity until a release", func(t *testing.T) {
		factory := &channelFactory{}
		pool := NewSessionPool(2, factory.open)

		a, err := pool.Acquire(context.Background())
		require.NoError(t, err)
		_, err = pool.Acquire(context.Background())
		require.NoError(t, err)

		got := make(chan *Session, 1)
		go func() {
			s, err := pool.Acquire(context.Background())
			if err == nil {
				got <- s
			}
		}()

		select {
		case <-got:
			t.Fatal("Acquire returned while the pool was exhausted")
		case <-time.After(50 * time.Millisecond):
		}

		pool.Release(a)

		select {
		case s := <-got:
			assert.Same(t, a, s)
		case <-time.After(time.Second):
			t.Fatal("Acquire did not return after a release")
		}
		assert.Equal(t, 2, factory.opened())
	})

	t.Run("Acquire honours context while waiting", func(t *testing.T) {
		factory := &channelFactory{}
		pool := NewSessionPool(1, factory.open)
		_, err := pool.Acquire(context.Background())
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err = pool.Acquire(ctx)
		assert.True(t, errors.Is(err, context.DeadlineExceeded))
	})

	t.Run("released sessions are reused", func(t *testing.T) {
		factory := &channelFactory{}
		pool := NewSessionPool(4, factory.open)

		for i := 0; i < 5; i++ {
			s, err := pool.Acquire(context.Background())
			require.NoError(t, err)
			pool.Release(s)
		}

		assert.Equal(t, 1, factory.opened())
		assert.Equal(t, PoolStats{Capacity: 4, InUse: 0, Idle: 1}, pool.Stats())
	})

	t.Run("broken sessions are closed, not cached", func(t *testing.T) {
		factory := &channelFactory{}
		pool := NewSessionPool(4, factory.open)

		s, err := pool.Acquire(context.Background())
		require.NoError(t, err)
		s.MarkBroken()
		pool.Release(s)

		assert.True(t, factory.last().IsClosed())
		assert.Equal(t, 0, pool.Stats().Idle)

		_, err = pool.Acquire(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 2, factory.opened())
	})

	t.Run("idle sessions closed by the broker are skipped", func(t *testing.T) {
		factory := &channelFactory{}
		pool := NewSessionPool(4, factory.open)

		s, err := pool.Acquire(context.Background())
		require.NoError(t, err)
		pool.Release(s)
		factory.last().Close()

		fresh, err := pool.Acquire(context.Background())
		require.NoError(t, err)
		assert.NotSame(t, s, fresh)
	})

	t.Run("double release frees one slot", func(t *testing.T) {
		factory := &channelFactory{}
		pool := NewSessionPool(2, factory.open)

		s, err := pool.Acquire(context.Background())
		require.NoError(t, err)
		_, err = pool.Acquire(context.Background())
		require.NoError(t, err)

		pool.Release(s)
		pool.Release(s)
		assert.Equal(t, 1, pool.Stats().InUse)
	})

	t.Run("open failure frees the slot", func(t *testing.T) {
		factory := &channelFactory{openErr: errors.New("channel limit")}
		pool := NewSessionPool(1, factory.open)

		_, err := pool.Acquire(context.Background())
		assert.Error(t, err)
		assert.Equal(t, 0, pool.Stats().InUse)
	})

	t.Run("Close fails waiting and later acquisitions", func(t *testing.T) {
		factory := &channelFactory{}
		pool := NewSessionPool(1, factory.open)
		held, err := pool.Acquire(context.Background())
		require.NoError(t, err)

		errc := make(chan error, 1)
		go func() {
			_, err := pool.Acquire(context.Background())
			errc <- err
		}()
		time.Sleep(20 * time.Millisecond)

		require.NoError(t, pool.Close())

		select {
		case err := <-errc:
			assert.ErrorIs(t, err, domain.ErrSessionPoolClosed)
		case <-time.After(time.Second):
			t.Fatal("waiting Acquire was not released by Close")
		}

		pool.Release(held)
		assert.True(t, factory.last().IsClosed())

		_, err = pool.Acquire(context.Background())
		assert.ErrorIs(t, err, domain.ErrSessionPoolClosed)
	})
}
