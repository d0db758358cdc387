package app

import (
	"testing"
	"time"

	"github.com/dkeye/chat/internal/domain"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter_SlidingWindow(t *testing.T) {
	r := require.New(t)
	now := time.Unix(1000, 0)
	rl := NewRateLimiter(2, 10*time.Second)
	rl.now = func() time.Time { return now }

	r.True(rl.Allow(1))
	r.True(rl.Allow(1))
	r.False(rl.Allow(1))
	r.True(rl.Allow(2))

	now = now.Add(11 * time.Second)
	r.True(rl.Allow(1))
}

func TestRateLimiter_EvictsIdleUsers(t *testing.T) {
	r := require.New(t)
	now := time.Unix(1000, 0)
	rl := NewRateLimiter(2, 10*time.Second)
	rl.now = func() time.Time { return now }

	for uid := domain.UserID(1); uid <= 5; uid++ {
		r.True(rl.Allow(uid))
	}
	r.Len(rl.history, 5)

	now = now.Add(5 * time.Second)
	r.True(rl.Allow(1))
	r.Len(rl.history, 5)

	now = now.Add(11 * time.Second)
	r.True(rl.Allow(6))
	r.Len(rl.history, 1)
	r.Contains(rl.history, domain.UserID(6))
}
