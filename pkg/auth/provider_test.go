package auth

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestTokenCache_IsExpired(t *testing.T) {
	clock := newFakeClock()

	tests := []struct {
		name      string
		expiresIn time.Duration
		never     bool
		buffer    time.Duration
		expected  bool
	}{
		{name: "inside refresh buffer", expiresIn: 30 * time.Second, buffer: 60 * time.Second, expected: true},
		{name: "outside default buffer", expiresIn: 90 * time.Second, buffer: DefaultRefreshBuffer, expected: false},
		{name: "exactly at buffer", expiresIn: 60 * time.Second, buffer: 60 * time.Second, expected: true},
		{name: "already past", expiresIn: -time.Second, buffer: 0, expected: true},
		{name: "never expires", never: true, buffer: DefaultRefreshBuffer, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTokenCache("test", nil, []Option{WithClock(clock.Now), WithRefreshBuffer(tt.buffer)})
			expiresAt := time.Time{}
			if !tt.never {
				expiresAt = clock.Now().Add(tt.expiresIn)
			}
			c.set("token", expiresAt)

			assert.Equal(t, tt.expected, c.IsExpired())
			assert.Equal(t, expiresAt, c.ExpiresAt())
		})
	}
}

func TestTokenCache_LazyRefresh(t *testing.T) {
	clock := newFakeClock()
	var calls int32

	c := newTokenCache("test", func(context.Context) (string, time.Time, error) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			return "first", clock.Now().Add(5 * time.Minute), nil
		}
		return "second", clock.Now().Add(5 * time.Minute), nil
	}, []Option{WithClock(clock.Now)})

	assert.Equal(t, int32(0), atomic.LoadInt32(&calls), "nothing fetched before first use")

	token, err := c.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "first", token)

	token, err = c.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "first", token)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	clock.Advance(4*time.Minute + 30*time.Second)

	token, err = c.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "second", token)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestTokenCache_ConcurrentCallersShareRefresh(t *testing.T) {
	var calls int32
	release := make(chan struct{})

	c := newTokenCache("test", func(context.Context) (string, time.Time, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return "shared", time.Time{}, nil
	}, nil)

	const callers = 10
	var wg sync.WaitGroup
	results := make([]string, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			token, err := c.Token(context.Background())
			assert.NoError(t, err)
			results[i] = token
		}(i)
	}

	// Give every goroutine a chance to join the in-flight refresh.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	for _, r := range results {
		assert.Equal(t, "shared", r)
	}
}

func TestTokenCache_CancelledCallerDoesNotFailSharedRefresh(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var fetchErr error

	c := newTokenCache("test", func(ctx context.Context) (string, time.Time, error) {
		close(started)
		<-release
		fetchErr = ctx.Err()
		return "shared", time.Time{}, nil
	}, nil)

	first, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := c.Token(first)
		firstErr <- err
	}()
	<-started

	second := make(chan string, 1)
	go func() {
		token, err := c.Token(context.Background())
		assert.NoError(t, err)
		second <- token
	}()

	cancel()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	close(release)
	assert.Equal(t, "shared", <-second)
	assert.NoError(t, fetchErr)

	token, err := c.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "shared", token)
}

func TestTokenCache_RefreshTimeout(t *testing.T) {
	c := newTokenCache("test", func(ctx context.Context) (string, time.Time, error) {
		<-ctx.Done()
		return "", time.Time{}, ctx.Err()
	}, []Option{WithRefreshTimeout(20 * time.Millisecond)})

	_, err := c.Token(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuthentication)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTokenCache_ErrorsAreAuthenticationErrors(t *testing.T) {
	t.Run("plain error is wrapped", func(t *testing.T) {
		cause := errors.New("boom")
		c := newTokenCache("test", func(context.Context) (string, time.Time, error) {
			return "", time.Time{}, cause
		}, nil)

		_, err := c.Token(context.Background())
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrAuthentication)
		assert.ErrorIs(t, err, cause)

		var authErr *AuthenticationError
		require.ErrorAs(t, err, &authErr)
		assert.Equal(t, "test", authErr.Provider)
	})

	t.Run("authentication error is kept", func(t *testing.T) {
		c := newTokenCache("test", func(context.Context) (string, time.Time, error) {
			return "", time.Time{}, authError("test", "bad plugin", nil)
		}, nil)

		_, err := c.Token(context.Background())
		assert.EqualError(t, err, "test: bad plugin")
	})

	t.Run("empty token is rejected", func(t *testing.T) {
		c := newTokenCache("test", func(context.Context) (string, time.Time, error) {
			return "", time.Time{}, nil
		}, nil)

		_, err := c.Token(context.Background())
		assert.ErrorIs(t, err, ErrAuthentication)
		assert.Contains(t, err.Error(), "empty token")
	})
}

func TestTokenCache_RefreshObserver(t *testing.T) {
	var observed []error
	c := newTokenCache("observed", func(context.Context) (string, time.Time, error) {
		return "t", time.Time{}, nil
	}, []Option{WithRefreshObserver(func(_ context.Context, provider string, _ time.Duration, err error) {
		assert.Equal(t, "observed", provider)
		observed = append(observed, err)
	})})

	require.NoError(t, c.Refresh(context.Background()))
	require.NoError(t, c.Refresh(context.Background()))
	assert.Equal(t, []error{nil, nil}, observed)
}

func TestStaticProvider(t *testing.T) {
	p := NewStaticProvider("abc")
	token, err := p.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc", token)
	assert.False(t, p.IsExpired())
	assert.True(t, p.ExpiresAt().IsZero())

	_, err = NewStaticProvider("").Token(context.Background())
	assert.ErrorIs(t, err, ErrAuthentication)
}

func TestNewTokenSource(t *testing.T) {
	clock := newFakeClock()
	expiry := clock.Now().Add(time.Hour)
	c := newTokenCache("test", func(context.Context) (string, time.Time, error) {
		return "tok", expiry, nil
	}, []Option{WithClock(clock.Now)})

	src := NewTokenSource(context.Background(), c)
	token, err := src.Token()
	require.NoError(t, err)
	assert.Equal(t, "tok", token.AccessToken)
	assert.Equal(t, "Bearer", token.TokenType)
	assert.Equal(t, expiry, token.Expiry)

	failing := NewTokenSource(context.Background(), NewStaticProvider(""))
	_, err = failing.Token()
	assert.ErrorIs(t, err, ErrAuthentication)
}
