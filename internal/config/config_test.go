package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_RequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/promo")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8000, cfg.APIPort)
	assert.Equal(t, 5*time.Minute, cfg.CycleMinWait)
	assert.Equal(t, 12*time.Minute, cfg.CycleMaxWait)
	assert.Equal(t, 4*time.Minute, cfg.CycleDeadline)
	assert.Equal(t, 10, cfg.FanoutConc)
	assert.Equal(t, 6*time.Hour, cfg.TunerInterval)
	assert.Empty(t, cfg.AdminChatIDs)
	assert.False(t, cfg.IsProduction())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/promo")
	t.Setenv("CYCLE_MIN_WAIT_SECONDS", "60")
	t.Setenv("CYCLE_MAX_WAIT_SECONDS", "120")
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("ADMIN_CHAT_IDS", "12345, 67890")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, time.Minute, cfg.CycleMinWait)
	assert.Equal(t, 2*time.Minute, cfg.CycleMaxWait)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, []int64{12345, 67890}, cfg.AdminChatIDs)
}

func TestLoad_RejectsBadAdminIDs(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/promo")
	t.Setenv("ADMIN_CHAT_IDS", "12345,not-a-number")

	_, err := Load()
	assert.Error(t, err)
}
