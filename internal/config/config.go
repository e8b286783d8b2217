// Package config provides centralized configuration loading for the carbon
// data plane. It reads configuration from environment variables with
// sensible defaults and fails fast on misconfiguration.
//
// Environment variable naming convention:
//   - CARBONPLANE_* prefix for application-specific settings
//   - Standard names (PORT, APP_ENV) for platform conventions
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
	EnvTest        = "test"
)

const (
	defaultHTTPPort               = 8090
	defaultEnv                    = EnvDevelopment
	defaultReadTimeout            = 30 * time.Second
	defaultWriteTimeout           = 30 * time.Second
	defaultIdleTimeout            = 120 * time.Second
	defaultIngestLookbackDays     = 30
	defaultIngestScheduleInterval = 30 * time.Minute
	defaultIngestionTimezone      = "UTC"

	// DefaultMonthlyAggregationCron is the first-of-month 00:30 schedule.
	DefaultMonthlyAggregationCron = "30 0 1 * *"
	// DefaultOverdueCheckCron is the daily 09:00 schedule.
	DefaultOverdueCheckCron = "0 9 * * *"
	// DefaultSummaryCreationCron is the monthly 02:00 schedule.
	DefaultSummaryCreationCron = "0 2 1 * *"
)

const (
	envHTTPPort       = "CARBONPLANE_HTTP_PORT"
	envPortFallback   = "PORT"
	envAppEnv         = "CARBONPLANE_APP_ENV"
	envAppEnvLegacy   = "APP_ENV"
	envReadTimeout    = "CARBONPLANE_READ_TIMEOUT"
	envWriteTimeout   = "CARBONPLANE_WRITE_TIMEOUT"
	envIdleTimeout    = "CARBONPLANE_IDLE_TIMEOUT"
	envTrustedProxies = "CARBONPLANE_TRUSTED_PROXIES"

	envDBDSN             = "CARBONPLANE_DB_DSN"
	envDBMaxOpenConns    = "CARBONPLANE_DB_MAX_OPEN_CONNS"
	envDBMaxIdleConns    = "CARBONPLANE_DB_MAX_IDLE_CONNS"
	envDBConnMaxLifetime = "CARBONPLANE_DB_CONN_MAX_LIFETIME"

	envJWTSecret = "CARBONPLANE_JWT_SECRET"

	envEnableMetrics     = "CARBONPLANE_ENABLE_METRICS"
	envMetricsListenAddr = "CARBONPLANE_METRICS_ADDR"

	envIngestLookbackDays     = "CARBONPLANE_INGEST_LOOKBACK_DAYS"
	envIngestScheduleInterval = "CARBONPLANE_INGESTION_SCHEDULE_INTERVAL"
	envIngestionTimezone      = "CARBONPLANE_INGESTION_TIMEZONE"

	envAWSIngestEnabled   = "CARBONPLANE_AWS_INGEST_ENABLED"
	envAWSAccessKeyID     = "CARBONPLANE_AWS_ACCESS_KEY_ID"
	envAWSSecretAccessKey = "CARBONPLANE_AWS_SECRET_ACCESS_KEY"
	envAWSRegion          = "CARBONPLANE_AWS_REGION"
	envAWSRoleARN         = "CARBONPLANE_AWS_ROLE_ARN"
	envAWSAccountID       = "CARBONPLANE_AWS_ACCOUNT_ID"
	envAWSOrgID           = "CARBONPLANE_AWS_CLIENT_ID"

	envAzureIngestEnabled  = "CARBONPLANE_AZURE_INGEST_ENABLED"
	envAzureTenantID       = "CARBONPLANE_AZURE_TENANT_ID"
	envAzureClientID       = "CARBONPLANE_AZURE_CLIENT_ID"
	envAzureClientSecret   = "CARBONPLANE_AZURE_CLIENT_SECRET"
	envAzureSubscriptionID = "CARBONPLANE_AZURE_SUBSCRIPTION_ID"
	envAzureOrgID          = "CARBONPLANE_AZURE_CLIENT_ID_ORG"

	envGCPIngestEnabled     = "CARBONPLANE_GCP_INGEST_ENABLED"
	envGCPProjectID         = "CARBONPLANE_GCP_PROJECT_ID"
	envGCPBillingAccountID  = "CARBONPLANE_GCP_BILLING_ACCOUNT_ID"
	envGCPBigQueryDataset   = "CARBONPLANE_GCP_BIGQUERY_DATASET"
	envGCPBigQueryTable     = "CARBONPLANE_GCP_BIGQUERY_TABLE"
	envGCPServiceAccountKey = "CARBONPLANE_GCP_SERVICE_ACCOUNT_KEY"
	envGCPOrgID             = "CARBONPLANE_GCP_CLIENT_ID"

	envRedisAddr     = "CARBONPLANE_REDIS_ADDR"
	envRedisPassword = "CARBONPLANE_REDIS_PASSWORD"
	envRedisDB       = "CARBONPLANE_REDIS_DB"

	envNATSURL   = "CARBONPLANE_NATS_URL"
	envNATSTopic = "CARBONPLANE_NATS_SUBJECT_PREFIX"

	envSchedulerMonthlyCron = "CARBONPLANE_SCHEDULER_MONTHLY_CRON"
	envSchedulerOverdueCron = "CARBONPLANE_SCHEDULER_OVERDUE_CRON"
	envSchedulerSummaryCron = "CARBONPLANE_SCHEDULER_SUMMARY_CRON"
)

// Config holds all application configuration, grouped by domain.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Auth      AuthConfig
	Features  FeatureConfig
	Ingestion IngestionConfig
	Redis     RedisConfig
	NATS      NATSConfig
	Scheduler SchedulerConfig
}

type ServerConfig struct {
	Port           int
	Env            string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	TrustedProxies []string
}

type DatabaseConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type AuthConfig struct {
	JWTSecret    string
	HasJWTSecret bool
}

type FeatureConfig struct {
	EnableMetrics    bool
	MetricsListenAddr string
}

// IngestionConfig groups the ingestion pipeline's scheduling and the
// cloud-cost API-poll adapters.
type IngestionConfig struct {
	LookbackDays     int
	ScheduleInterval time.Duration
	Timezone         string

	AWS   AWSIngestionConfig
	Azure AzureIngestionConfig
	GCP   GCPIngestionConfig
}

type AWSIngestionConfig struct {
	Enabled         bool
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	RoleARN         string
	AccountID       string
	ClientID        string
}

type AzureIngestionConfig struct {
	Enabled        bool
	TenantID       string
	ClientID       string
	ClientSecret   string
	SubscriptionID string
	CarbonClientID string
}

type GCPIngestionConfig struct {
	Enabled           bool
	ProjectID         string
	BillingAccountID  string
	BigQueryDataset   string
	BigQueryTable     string
	ServiceAccountKey string
	CarbonClientID    string
}

// RedisConfig configures the node-metadata cache and the per-stream
// distributed lock.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NATSConfig configures the change-notification bus publish path.
type NATSConfig struct {
	URL           string
	SubjectPrefix string
}

// SchedulerConfig carries the three cron schedules plus the shared
// ingestion timezone; one timezone is configured and applied everywhere,
// for CSV parsing and scheduler ticks alike.
type SchedulerConfig struct {
	MonthlyAggregationCron string
	OverdueCheckCron       string
	SummaryCreationCron    string
	Timezone               string
}

func Load() (Config, error) {
	cfg := Config{
		Server:    loadServerConfig(),
		Database:  loadDatabaseConfig(),
		Auth:      loadAuthConfig(),
		Features:  loadFeatureConfig(),
		Ingestion: loadIngestionConfig(),
		Redis:     loadRedisConfig(),
		NATS:      loadNATSConfig(),
	}
	cfg.Scheduler = loadSchedulerConfig(cfg.Ingestion.Timezone)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("config: failed to load: %v", err))
	}
	return cfg
}

func loadServerConfig() ServerConfig {
	port := defaultHTTPPort
	if raw := getEnvWithFallback(envHTTPPort, envPortFallback); raw != "" {
		if p, err := strconv.Atoi(raw); err == nil && p > 0 && p < 65536 {
			port = p
		}
	}

	env := getEnvWithFallback(envAppEnv, envAppEnvLegacy)
	if env == "" {
		env = defaultEnv
	}

	return ServerConfig{
		Port:           port,
		Env:            normalizeEnv(env),
		ReadTimeout:    getDurationEnv(envReadTimeout, defaultReadTimeout),
		WriteTimeout:   getDurationEnv(envWriteTimeout, defaultWriteTimeout),
		IdleTimeout:    getDurationEnv(envIdleTimeout, defaultIdleTimeout),
		TrustedProxies: getStringSliceEnv(envTrustedProxies),
	}
}

func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		DSN:             strings.TrimSpace(os.Getenv(envDBDSN)),
		MaxOpenConns:    getIntEnv(envDBMaxOpenConns, 25),
		MaxIdleConns:    getIntEnv(envDBMaxIdleConns, 10),
		ConnMaxLifetime: getDurationEnv(envDBConnMaxLifetime, 45*time.Minute),
	}
}

func loadAuthConfig() AuthConfig {
	jwtSecret := strings.TrimSpace(os.Getenv(envJWTSecret))
	return AuthConfig{JWTSecret: jwtSecret, HasJWTSecret: jwtSecret != ""}
}

func loadFeatureConfig() FeatureConfig {
	return FeatureConfig{
		EnableMetrics:     getBoolEnv(envEnableMetrics, true),
		MetricsListenAddr: getEnvDefault(envMetricsListenAddr, ":9090"),
	}
}

func loadIngestionConfig() IngestionConfig {
	tz := strings.TrimSpace(os.Getenv(envIngestionTimezone))
	if tz == "" {
		tz = defaultIngestionTimezone
	}
	return IngestionConfig{
		LookbackDays:     getIntEnv(envIngestLookbackDays, defaultIngestLookbackDays),
		ScheduleInterval: getDurationEnv(envIngestScheduleInterval, defaultIngestScheduleInterval),
		Timezone:         tz,
		AWS: AWSIngestionConfig{
			Enabled:         getBoolEnv(envAWSIngestEnabled, false),
			AccessKeyID:     strings.TrimSpace(os.Getenv(envAWSAccessKeyID)),
			SecretAccessKey: strings.TrimSpace(os.Getenv(envAWSSecretAccessKey)),
			Region:          strings.TrimSpace(os.Getenv(envAWSRegion)),
			RoleARN:         strings.TrimSpace(os.Getenv(envAWSRoleARN)),
			AccountID:       strings.TrimSpace(os.Getenv(envAWSAccountID)),
			ClientID:        strings.TrimSpace(os.Getenv(envAWSOrgID)),
		},
		Azure: AzureIngestionConfig{
			Enabled:        getBoolEnv(envAzureIngestEnabled, false),
			TenantID:       strings.TrimSpace(os.Getenv(envAzureTenantID)),
			ClientID:       strings.TrimSpace(os.Getenv(envAzureClientID)),
			ClientSecret:   strings.TrimSpace(os.Getenv(envAzureClientSecret)),
			SubscriptionID: strings.TrimSpace(os.Getenv(envAzureSubscriptionID)),
			CarbonClientID: strings.TrimSpace(os.Getenv(envAzureOrgID)),
		},
		GCP: GCPIngestionConfig{
			Enabled:           getBoolEnv(envGCPIngestEnabled, false),
			ProjectID:         strings.TrimSpace(os.Getenv(envGCPProjectID)),
			BillingAccountID:  strings.TrimSpace(os.Getenv(envGCPBillingAccountID)),
			BigQueryDataset:   strings.TrimSpace(os.Getenv(envGCPBigQueryDataset)),
			BigQueryTable:     strings.TrimSpace(os.Getenv(envGCPBigQueryTable)),
			ServiceAccountKey: strings.TrimSpace(os.Getenv(envGCPServiceAccountKey)),
			CarbonClientID:    strings.TrimSpace(os.Getenv(envGCPOrgID)),
		},
	}
}

func loadRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:     getEnvDefault(envRedisAddr, "localhost:6379"),
		Password: strings.TrimSpace(os.Getenv(envRedisPassword)),
		DB:       getIntEnv(envRedisDB, 0),
	}
}

func loadNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           getEnvDefault(envNATSURL, "nats://localhost:4222"),
		SubjectPrefix: getEnvDefault(envNATSTopic, "carbonplane"),
	}
}

func loadSchedulerConfig(ingestionTZ string) SchedulerConfig {
	return SchedulerConfig{
		MonthlyAggregationCron: getEnvDefault(envSchedulerMonthlyCron, DefaultMonthlyAggregationCron),
		OverdueCheckCron:       getEnvDefault(envSchedulerOverdueCron, DefaultOverdueCheckCron),
		SummaryCreationCron:    getEnvDefault(envSchedulerSummaryCron, DefaultSummaryCreationCron),
		Timezone:               ingestionTZ,
	}
}

func (c Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid port: %d", c.Server.Port))
	}

	if c.IsProduction() {
		if c.Database.DSN == "" {
			errs = append(errs, errors.New("database DSN required in production"))
		}
		if !c.Auth.HasJWTSecret {
			errs = append(errs, errors.New("JWT secret required in production"))
		}
		if len(c.Auth.JWTSecret) < 32 {
			errs = append(errs, errors.New("JWT secret must be at least 32 characters"))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed: %w", errors.Join(errs...))
	}
	return nil
}

func (c Config) IsProduction() bool  { return c.Server.Env == EnvProduction }
func (c Config) IsDevelopment() bool { return c.Server.Env == EnvDevelopment }
func (c Config) IsTest() bool        { return c.Server.Env == EnvTest }

func (c Config) ServerAddress() string { return fmt.Sprintf(":%d", c.Server.Port) }

func getEnvWithFallback(keys ...string) string {
	for _, key := range keys {
		if value := strings.TrimSpace(os.Getenv(key)); value != "" {
			return value
		}
	}
	return ""
}

func getEnvDefault(key, defaultVal string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return defaultVal
}

func getIntEnv(key string, defaultVal int) int {
	if raw := strings.TrimSpace(os.Getenv(key)); raw != "" {
		if val, err := strconv.Atoi(raw); err == nil {
			return val
		}
	}
	return defaultVal
}

func getBoolEnv(key string, defaultVal bool) bool {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch raw {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	default:
		return defaultVal
	}
}

func getDurationEnv(key string, defaultVal time.Duration) time.Duration {
	if raw := strings.TrimSpace(os.Getenv(key)); raw != "" {
		if val, err := time.ParseDuration(raw); err == nil {
			return val
		}
	}
	return defaultVal
}

func getStringSliceEnv(key string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func normalizeEnv(env string) string {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "production", "prod":
		return EnvProduction
	case "staging", "stage", "preview":
		return EnvStaging
	case "test", "testing":
		return EnvTest
	default:
		return EnvDevelopment
	}
}
