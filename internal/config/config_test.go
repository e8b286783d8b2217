package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CARBONPLANE_APP_ENV", "")
	t.Setenv("CARBONPLANE_DB_DSN", "")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, defaultHTTPPort, cfg.Server.Port)
	require.Equal(t, EnvDevelopment, cfg.Server.Env)
	require.Equal(t, DefaultMonthlyAggregationCron, cfg.Scheduler.MonthlyAggregationCron)
	require.Equal(t, DefaultOverdueCheckCron, cfg.Scheduler.OverdueCheckCron)
	require.Equal(t, DefaultSummaryCreationCron, cfg.Scheduler.SummaryCreationCron)
	require.Equal(t, "UTC", cfg.Scheduler.Timezone)
}

func TestValidateRequiresDSNInProduction(t *testing.T) {
	cfg := Config{Server: ServerConfig{Port: 8090, Env: EnvProduction}}
	err := cfg.Validate()
	require.Error(t, err)
}

func TestSchedulerTimezoneFollowsIngestionTimezone(t *testing.T) {
	t.Setenv("CARBONPLANE_INGESTION_TIMEZONE", "America/New_York")
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "America/New_York", cfg.Ingestion.Timezone)
	require.Equal(t, "America/New_York", cfg.Scheduler.Timezone)
}
