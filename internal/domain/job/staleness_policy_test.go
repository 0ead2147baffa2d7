package job

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStalenessPolicy(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		policy, err := NewStalenessPolicy(StalenessPolicyParams{Heartbeat: 10 * time.Second})
		require.NoError(t, err)
		assert.Equal(t, 10*time.Second, policy.Heartbeat())
	})

	t.Run("invalid heartbeat", func(t *testing.T) {
		policy, err := NewStalenessPolicy(StalenessPolicyParams{})
		require.ErrorIs(t, err, ErrInvalidHeartbeat)
		assert.Nil(t, policy)
	})
}

func TestStalenessPolicy_Resolve(t *testing.T) {
	t.Run("default multiple", func(t *testing.T) {
		policy, err := NewStalenessPolicy(StalenessPolicyParams{Heartbeat: 10 * time.Second})
		require.NoError(t, err)
		d := policy.Resolve()
		assert.Equal(t, 40*time.Second, d.Threshold)
		assert.Equal(t, StalenessSourceMultiple, d.Source)
		assert.False(t, d.Clamped())
	})

	t.Run("raised to floor", func(t *testing.T) {
		policy, err := NewStalenessPolicy(StalenessPolicyParams{
			Heartbeat: 5 * time.Second,
			Multiple:  3,
			Min:       time.Minute,
		})
		require.NoError(t, err)
		d := policy.Resolve()
		assert.Equal(t, time.Minute, d.Threshold)
		assert.Equal(t, StalenessSourceMin, d.Source)
	})

	t.Run("lowered to ceiling", func(t *testing.T) {
		policy, err := NewStalenessPolicy(StalenessPolicyParams{
			Heartbeat: 30 * time.Second,
			Multiple:  10,
			Max:       2 * time.Minute,
		})
		require.NoError(t, err)
		d := policy.Resolve()
		assert.Equal(t, 2*time.Minute, d.Threshold)
		assert.True(t, d.Clamped())
	})

	t.Run("floor never below two beats", func(t *testing.T) {
		policy, err := NewStalenessPolicy(StalenessPolicyParams{
			Heartbeat: 10 * time.Second,
			Multiple:  1,
		})
		require.NoError(t, err)
		assert.Equal(t, 20*time.Second, policy.Resolve().Threshold)
	})

	t.Run("nil policy", func(t *testing.T) {
		var policy *StalenessPolicy
		assert.Zero(t, policy.Resolve().Threshold)
		assert.Zero(t, policy.Heartbeat())
	})
}

func TestStalenessPolicy_IsStale(t *testing.T) {
	policy, err := NewStalenessPolicy(StalenessPolicyParams{Heartbeat: 10 * time.Second})
	require.NoError(t, err)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	assert.False(t, policy.IsStale(now.Add(-30*time.Second), now))
	assert.False(t, policy.IsStale(now.Add(-40*time.Second), now))
	assert.True(t, policy.IsStale(now.Add(-41*time.Second), now))
}
