package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database    DatabaseConfig
	Redis       RedisConfig
	JWT         JWTConfig
	CORS        CORSConfig
	Log         LogConfig
	Audit       AuditConfig
	Redaction   RedactionConfig
	Security    SecurityConfig
	Maintenance MaintenanceConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	AutoMigrate  bool
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// JWTConfig validates access tokens issued by the host application.
type JWTConfig struct {
	Secret   string
	Issuer   string
	Audience []string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// AuditConfig holds signing material and write-path tuning for the activity log.
type AuditConfig struct {
	SigningSecret   string
	SigningVersion  string
	LegacySecrets   map[string]string
	AnalysisWorkers int
	AnalysisBuffer  int
	AnalysisRetries int
	BatchSize       int
	HighRiskTypes   []string
	LogAPIAccess    bool
}

// RedactionConfig tunes the sensitive field masker.
type RedactionConfig struct {
	ExtraKeys []string
	KeepChars int
	MaskChar  string
}

// SecurityConfig carries the analyzer thresholds. They are tuning knobs, not contracts.
type SecurityConfig struct {
	BruteForceWindow    time.Duration
	BruteForceThreshold int
	SuspiciousScore     int
	AnomalyWindow       time.Duration
	AnomalyHistory      time.Duration
	AnomalyMultiplier   float64
	ReportCacheTTL      time.Duration
	ReportCacheEnabled  bool
	MaxReportWindow     time.Duration
	HistorySample       int
}

// MaintenanceConfig schedules background jobs using cron expressions.
type MaintenanceConfig struct {
	Enabled             bool
	RetentionCron       string
	IntegrityAuditCron  string
	BruteForceSweepCron string
	AnomalySweepCron    string
	SystemActor         string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
		AutoMigrate:  v.GetBool("DB_AUTO_MIGRATE"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:   v.GetString("JWT_SECRET"),
		Issuer:   v.GetString("JWT_ISSUER"),
		Audience: splitAndTrim(v.GetString("JWT_AUDIENCE")),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	legacy, err := parseKeyValues(v.GetString("AUDIT_LEGACY_SECRETS"))
	if err != nil {
		return nil, err
	}
	cfg.Audit = AuditConfig{
		SigningSecret:   v.GetString("AUDIT_SIGNING_SECRET"),
		SigningVersion:  v.GetString("AUDIT_SIGNING_VERSION"),
		LegacySecrets:   legacy,
		AnalysisWorkers: v.GetInt("AUDIT_ANALYSIS_WORKERS"),
		AnalysisBuffer:  v.GetInt("AUDIT_ANALYSIS_BUFFER"),
		AnalysisRetries: v.GetInt("AUDIT_ANALYSIS_RETRIES"),
		BatchSize:       v.GetInt("AUDIT_BATCH_SIZE"),
		HighRiskTypes:   splitAndTrim(v.GetString("AUDIT_HIGH_RISK_TYPES")),
		LogAPIAccess:    v.GetBool("AUDIT_LOG_API_ACCESS"),
	}

	cfg.Redaction = RedactionConfig{
		ExtraKeys: splitAndTrim(v.GetString("REDACTION_EXTRA_KEYS")),
		KeepChars: v.GetInt("REDACTION_KEEP_CHARS"),
		MaskChar:  v.GetString("REDACTION_MASK_CHAR"),
	}

	cfg.Security = SecurityConfig{
		BruteForceWindow:    parseDuration(v.GetString("SECURITY_BRUTE_FORCE_WINDOW"), 15*time.Minute),
		BruteForceThreshold: v.GetInt("SECURITY_BRUTE_FORCE_THRESHOLD"),
		SuspiciousScore:     v.GetInt("SECURITY_SUSPICIOUS_SCORE"),
		AnomalyWindow:       parseDuration(v.GetString("SECURITY_ANOMALY_WINDOW"), time.Hour),
		AnomalyHistory:      parseDuration(v.GetString("SECURITY_ANOMALY_HISTORY"), 30*24*time.Hour),
		AnomalyMultiplier:   v.GetFloat64("SECURITY_ANOMALY_MULTIPLIER"),
		ReportCacheTTL:      parseDuration(v.GetString("SECURITY_REPORT_CACHE_TTL"), 5*time.Minute),
		ReportCacheEnabled:  v.GetBool("SECURITY_REPORT_CACHE_ENABLED"),
		MaxReportWindow:     parseDuration(v.GetString("SECURITY_MAX_REPORT_WINDOW"), 90*24*time.Hour),
		HistorySample:       v.GetInt("SECURITY_HISTORY_SAMPLE"),
	}

	cfg.Maintenance = MaintenanceConfig{
		Enabled:             v.GetBool("ENABLE_MAINTENANCE"),
		RetentionCron:       v.GetString("RETENTION_CRON"),
		IntegrityAuditCron:  v.GetString("INTEGRITY_AUDIT_CRON"),
		BruteForceSweepCron: v.GetString("BRUTE_FORCE_SWEEP_CRON"),
		AnomalySweepCron:    v.GetString("ANOMALY_SWEEP_CRON"),
		SystemActor:         v.GetString("MAINTENANCE_SYSTEM_ACTOR"),
	}

	if cfg.Env == EnvProduction && cfg.Audit.SigningSecret == "dev_audit_secret" {
		return nil, errors.New("AUDIT_SIGNING_SECRET must be set in production")
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "admin_activity_log")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_AUTO_MIGRATE", true)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "")
	v.SetDefault("JWT_AUDIENCE", "")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("AUDIT_SIGNING_SECRET", "dev_audit_secret")
	v.SetDefault("AUDIT_SIGNING_VERSION", "v1")
	v.SetDefault("AUDIT_LEGACY_SECRETS", "")
	v.SetDefault("AUDIT_ANALYSIS_WORKERS", 2)
	v.SetDefault("AUDIT_ANALYSIS_BUFFER", 256)
	v.SetDefault("AUDIT_ANALYSIS_RETRIES", 2)
	v.SetDefault("AUDIT_BATCH_SIZE", 500)
	v.SetDefault("AUDIT_HIGH_RISK_TYPES", "")
	v.SetDefault("AUDIT_LOG_API_ACCESS", false)

	v.SetDefault("REDACTION_EXTRA_KEYS", "")
	v.SetDefault("REDACTION_KEEP_CHARS", 4)
	v.SetDefault("REDACTION_MASK_CHAR", "*")

	v.SetDefault("SECURITY_BRUTE_FORCE_WINDOW", "15m")
	v.SetDefault("SECURITY_BRUTE_FORCE_THRESHOLD", 5)
	v.SetDefault("SECURITY_SUSPICIOUS_SCORE", 70)
	v.SetDefault("SECURITY_ANOMALY_WINDOW", "1h")
	v.SetDefault("SECURITY_ANOMALY_HISTORY", "720h")
	v.SetDefault("SECURITY_ANOMALY_MULTIPLIER", 3.0)
	v.SetDefault("SECURITY_REPORT_CACHE_TTL", "5m")
	v.SetDefault("SECURITY_MAX_REPORT_WINDOW", "2160h")
	v.SetDefault("SECURITY_HISTORY_SAMPLE", 500)
	v.SetDefault("SECURITY_REPORT_CACHE_ENABLED", true)

	v.SetDefault("ENABLE_MAINTENANCE", false)
	v.SetDefault("RETENTION_CRON", "0 2 * * *")
	v.SetDefault("INTEGRITY_AUDIT_CRON", "30 3 * * *")
	v.SetDefault("BRUTE_FORCE_SWEEP_CRON", "*/5 * * * *")
	v.SetDefault("ANOMALY_SWEEP_CRON", "0 * * * *")
	v.SetDefault("MAINTENANCE_SYSTEM_ACTOR", "system")
}

func isMissingFile(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

// parseKeyValues reads "v0=secret,v1=other" pairs.
func parseKeyValues(raw string) (map[string]string, error) {
	result := map[string]string{}
	for _, part := range splitAndTrim(raw) {
		key, value, ok := strings.Cut(part, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" || strings.TrimSpace(value) == "" {
			return nil, errors.New("AUDIT_LEGACY_SECRETS entries must look like version=secret")
		}
		result[key] = strings.TrimSpace(value)
	}
	return result, nil
}
