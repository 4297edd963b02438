package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestRegistry(ttl time.Duration) (*SessionRegistry, *int) {
	built := 0
	r := NewSessionRegistry(func(cfg Configuration) Provider {
		built++
		return NewProvider(cfg, nil)
	}, ttl, nil)
	return r, &built
}

func TestSessionRegistry_OneProviderPerSession(t *testing.T) {
	r, built := newTestRegistry(0)
	cfg := Configuration{GrantType: GrantClientCredentials, TokenURL: "https://auth/token"}

	a := r.Provider("session-a", cfg)
	assert.Same(t, a, r.Provider("session-a", cfg))
	b := r.Provider("session-b", cfg)
	assert.NotSame(t, a, b)
	assert.Equal(t, 2, *built)
	assert.Equal(t, 2, r.Len())
}

func TestSessionRegistry_ChangedConfigurationReplacesProvider(t *testing.T) {
	r, built := newTestRegistry(0)

	first := r.Provider("s", Configuration{BearerToken: "one"})
	second := r.Provider("s", Configuration{BearerToken: "two"})

	token, _ := second.Token(context.Background())
	assert.Equal(t, "two", token)
	assert.NotEqual(t, first, second)
	assert.Equal(t, 2, *built)
	assert.Equal(t, 1, r.Len())
}

func TestSessionRegistry_NoSessionSharesByConfiguration(t *testing.T) {
	r, built := newTestRegistry(0)
	cfg := Configuration{GrantType: GrantPassword, Username: "u", Password: "p", TokenURL: "https://auth/token"}

	assert.Same(t, r.Provider("", cfg), r.Provider("", cfg))
	r.Provider("", Configuration{BearerToken: "other"})
	assert.Equal(t, 2, *built)
}

func TestSessionRegistry_SweepAndRemove(t *testing.T) {
	r, _ := newTestRegistry(time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	r.Provider("old", Configuration{})
	now = now.Add(45 * time.Second)
	r.Provider("fresh", Configuration{})
	r.Provider("gone", Configuration{})

	now = now.Add(30 * time.Second)
	assert.Equal(t, 1, r.Sweep())
	assert.Equal(t, 2, r.Len())

	r.Remove("gone")
	assert.Equal(t, 1, r.Len())
}

func TestSessionRegistry_RunStopsWithContext(t *testing.T) {
	r, _ := newTestRegistry(time.Nanosecond)
	r.Provider("s", Configuration{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx, time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool { return r.Len() == 0 }, time.Second, time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
