package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestFromViperDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	cfg, err := fromViper(v)
	require.NoError(t, err)
	require.Equal(t, EnvDevelopment, cfg.Env)
	require.Equal(t, "v1", cfg.Audit.SigningVersion)
	require.Empty(t, cfg.Audit.LegacySecrets)
	require.Equal(t, 15*time.Minute, cfg.Security.BruteForceWindow)
	require.Equal(t, 5, cfg.Security.BruteForceThreshold)
	require.Equal(t, 3.0, cfg.Security.AnomalyMultiplier)
	require.Equal(t, 90*24*time.Hour, cfg.Security.MaxReportWindow)
	require.Equal(t, 500, cfg.Security.HistorySample)
	require.Equal(t, "0 2 * * *", cfg.Maintenance.RetentionCron)
	require.Equal(t, "/api/v1", cfg.APIPrefix)
	require.True(t, cfg.Database.AutoMigrate)
	require.False(t, cfg.Audit.LogAPIAccess)
}

func TestFromViperLegacySecrets(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("AUDIT_LEGACY_SECRETS", "v0=old, v1 = older")
	v.Set("AUDIT_SIGNING_VERSION", "v2")

	cfg, err := fromViper(v)
	require.NoError(t, err)
	require.Equal(t, map[string]string{"v0": "old", "v1": "older"}, cfg.Audit.LegacySecrets)

	v.Set("AUDIT_LEGACY_SECRETS", "broken")
	_, err = fromViper(v)
	require.Error(t, err)
}

func TestFromViperRejectsDevSecretInProduction(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("ENV", EnvProduction)

	_, err := fromViper(v)
	require.Error(t, err)

	v.Set("AUDIT_SIGNING_SECRET", "a-real-secret")
	cfg, err := fromViper(v)
	require.NoError(t, err)
	require.Equal(t, "a-real-secret", cfg.Audit.SigningSecret)
}
