package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLimiter_FixedWindow(t *testing.T) {
	m := NewMemoryLimiter()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		res, err := m.CheckAddressLimit(ctx, "0xABC", ClassDefault, 3, 60)
		require.NoError(t, err)
		assert.True(t, res.Allowed, "request %d", i)
		assert.Equal(t, int64(i), res.CurrentCount)
	}

	res, err := m.CheckAddressLimit(ctx, "0xabc", ClassDefault, 3, 60)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, int64(60), res.RetryAfterSeconds)

	// A different class has its own counter
	res, err = m.CheckAddressLimit(ctx, "0xabc", ClassAI, 1, 60)
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	now = now.Add(61 * time.Second)
	res, err = m.CheckAddressLimit(ctx, "0xabc", ClassDefault, 3, 60)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, int64(1), res.CurrentCount)
}

func TestClassForPath(t *testing.T) {
	tests := []struct {
		path string
		want Class
	}{
		{"/api/ai/chat", ClassAI},
		{"/api/incident-reports/4/analyze", ClassAI},
		{"/api/tickets", ClassDefault},
		{"/health", ClassDefault},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassForPath(tt.path))
		})
	}
}

func TestLimits(t *testing.T) {
	l := Limits{Address: 5, AI: 2}
	assert.Equal(t, int64(5), l.LimitFor(ClassDefault))
	assert.Equal(t, int64(2), l.LimitFor(ClassAI))
	assert.Equal(t, 60, l.Window())
}
