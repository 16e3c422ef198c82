package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *Config {
	return &Config{
		Enabled:       true,
		DefaultLimit:  600,
		DefaultWindow: time.Minute,
		EndpointConfigs: []EndpointConfig{
			{Path: "/documents/", Method: "POST", Limit: 20, Window: time.Hour, Burst: 3},
		},
	}
}

func TestAllow_BurstThenLimited(t *testing.T) {
	l := NewLimiter(testConfig())
	defer l.Stop()

	for i := 0; i < 3; i++ {
		allowed, _ := l.Allow("1.2.3.4", "/documents/abc/checks", "POST")
		require.True(t, allowed, "request %d within burst should pass", i)
	}

	allowed, info := l.Allow("1.2.3.4", "/documents/abc/checks", "POST")
	assert.False(t, allowed)
	assert.Equal(t, 20, info.Limit)
	assert.Greater(t, info.RetryAfter, time.Duration(0))
}

func TestAllow_ClientsIsolated(t *testing.T) {
	l := NewLimiter(testConfig())
	defer l.Stop()

	for i := 0; i < 3; i++ {
		l.Allow("1.1.1.1", "/documents/abc/checks", "POST")
	}
	allowed, _ := l.Allow("1.1.1.1", "/documents/abc/checks", "POST")
	assert.False(t, allowed)

	allowed, _ = l.Allow("2.2.2.2", "/documents/abc/checks", "POST")
	assert.True(t, allowed, "a fresh client has its own bucket")
}

func TestAllow_Disabled(t *testing.T) {
	l := NewLimiter(&Config{Enabled: false})
	defer l.Stop()

	for i := 0; i < 100; i++ {
		allowed, _ := l.Allow("1.2.3.4", "/documents/abc/checks", "POST")
		require.True(t, allowed)
	}
}

func TestAllow_WhitelistAndBlacklist(t *testing.T) {
	cfg := testConfig()
	cfg.Whitelist = map[string]bool{"10.0.0.1": true}
	cfg.Blacklist = map[string]bool{"6.6.6.6": true}
	l := NewLimiter(cfg)
	defer l.Stop()

	for i := 0; i < 50; i++ {
		allowed, _ := l.Allow("10.0.0.1", "/documents/abc/checks", "POST")
		require.True(t, allowed)
	}

	allowed, _ := l.Allow("6.6.6.6", "/health", "POST")
	assert.False(t, allowed)
}

func TestMatchEndpoint(t *testing.T) {
	configs := []EndpointConfig{
		{Path: "/auth/token", Method: "POST", Limit: 30, Window: time.Minute},
		{Path: "/documents/", Method: "POST", Limit: 20, Window: time.Hour},
	}

	tests := []struct {
		name      string
		path      string
		method    string
		wantLimit int
		wantNil   bool
	}{
		{name: "health unlimited", path: "/health", method: "GET", wantLimit: 0},
		{name: "exact match", path: "/auth/token", method: "POST", wantLimit: 30},
		{name: "prefix match", path: "/documents/abc/parse", method: "POST", wantLimit: 20},
		{name: "method mismatch", path: "/documents/abc/checks", method: "GET", wantNil: true},
		{name: "no match", path: "/batch-checks/abc", method: "GET", wantNil: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MatchEndpoint(tt.path, tt.method, configs)
			if tt.wantNil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.wantLimit, got.Limit)
		})
	}
}

func TestBucketRefill(t *testing.T) {
	b := newBucket(2, 100) // 100 tokens/sec, refills fast enough to observe

	allowed, _, _ := b.take()
	require.True(t, allowed)
	allowed, _, _ = b.take()
	require.True(t, allowed)
	allowed, _, _ = b.take()
	require.False(t, allowed)

	time.Sleep(50 * time.Millisecond)

	allowed, _, _ = b.take()
	assert.True(t, allowed, "bucket should refill over time")
}
