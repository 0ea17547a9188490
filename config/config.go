package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"shelterstat/logger"
)

// Config holds all configuration for the application
type Config struct {
	// Stores
	DBPath    string
	AppDBPath string

	// Source System (field app Postgres)
	SourceDBHost     string
	SourceDBPort     int
	SourceDBName     string
	SourceDBUser     string
	SourceDBPassword string
	SourceDBSSLMode  string
	SourceTable      string

	// API Server
	APIPort string
	APIHost string

	Log LogConfig

	// Data Retention
	DataRetentionDays int

	// Worker Pool
	WorkerPoolSize int

	// Cache
	CacheTTLHours int

	// Queries from YAML
	Queries QueryConfig

	// Engine constants
	Engine EngineConfig `mapstructure:"engine"`

	Analysis AnalysisConfig

	// Region codes offered by the dashboard filter
	Regions []string `mapstructure:"regions"`

	// Mock data settings
	MockData MockDataConfig `mapstructure:"mock_data"`

	// Saved filter presets
	Presets *PresetManager

	// Scheduler
	Scheduler SchedulerConfig `mapstructure:"scheduler"`

	// Retention
	Retention RetentionConfig `mapstructure:"retention"`
}

// LogConfig controls the logger package.
type LogConfig struct {
	Level      string
	Directory  string
	MaxAgeDays int
	Stdout     bool
}

// RetentionConfig holds data retention settings
type RetentionConfig struct {
	DataDays    int    `mapstructure:"data_days"`
	CleanupTime string `mapstructure:"cleanup_time"` // Format: "15:04"
}

// QueryConfig holds SQL query templates
type QueryConfig struct {
	Records string `mapstructure:"records"`
}

// EngineConfig holds the aggregation constants.
type EngineConfig struct {
	ReferenceYear   int     `mapstructure:"reference_year" json:"reference_year"`
	LoadCurrentA    float64 `mapstructure:"load_current_a" json:"load_current_a"`
	DailyWindowDays int     `mapstructure:"daily_window_days" json:"daily_window_days"`
}

// AnalysisConfig holds analysis parameters
type AnalysisConfig struct {
	DefaultPageSize int `mapstructure:"default_page_size"`
	MaxPageSize     int `mapstructure:"max_page_size"`
	// MaxRecords bounds how many records one dashboard pass reads.
	MaxRecords int `mapstructure:"max_records"`
}

// MockDataConfig holds mock data generation settings
type MockDataConfig struct {
	Enabled       bool     `mapstructure:"enabled"`
	Records       int      `mapstructure:"records"`
	TimeRangeDays int      `mapstructure:"time_range_days"`
	Seed          int64    `mapstructure:"seed"`
	Technicians   []string `mapstructure:"technicians"`
	Manufacturers []string `mapstructure:"manufacturers"`
	ACModels      []string `mapstructure:"ac_models"`
}

func setDefaults() {
	viper.SetDefault("engine.reference_year", 2026)
	viper.SetDefault("engine.load_current_a", 30.0)
	viper.SetDefault("engine.daily_window_days", 14)
	viper.SetDefault("analysis.default_page_size", 50)
	viper.SetDefault("analysis.max_page_size", 500)
	viper.SetDefault("analysis.max_records", 10000)
	viper.SetDefault("scheduler.enabled", false)
	viper.SetDefault("scheduler.interval_minutes", 60)
	viper.SetDefault("retention.data_days", 730)
	viper.SetDefault("retention.cleanup_time", "03:00")
	viper.SetDefault("mock_data.records", 200)
	viper.SetDefault("mock_data.time_range_days", 120)
}

// LoadConfig loads configuration from .env and config.yaml
func LoadConfig() (*Config, error) {
	// .env file is optional
	if err := godotenv.Load(); err != nil {
		logger.Debug(".env file not found, using environment variables")
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("..")
	viper.AddConfigPath("../..") // For when running from subdirectories

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config.yaml: %w", err)
	}
	return fromViper()
}

// LoadFile reads configuration from an explicit YAML file. Environment
// variables still override infrastructure settings.
func LoadFile(path string) (*Config, error) {
	viper.SetConfigFile(path)
	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return fromViper()
}

func fromViper() (*Config, error) {
	setDefaults()

	config := &Config{
		DBPath:           getEnv("DB_PATH", "./data/records.duckdb"),
		AppDBPath:        getEnv("APP_DB_PATH", "./data/app.sqlite"),
		SourceDBHost:     getEnv("SOURCE_DB_HOST", "localhost"),
		SourceDBPort:     getEnvAsInt("SOURCE_DB_PORT", 5432),
		SourceDBName:     getEnv("SOURCE_DB_NAME", "field_app"),
		SourceDBUser:     getEnv("SOURCE_DB_USER", "etl_user"),
		SourceDBPassword: getEnv("SOURCE_DB_PASSWORD", ""),
		SourceDBSSLMode:  getEnv("SOURCE_DB_SSLMODE", "disable"),
		SourceTable:      getEnv("SOURCE_TABLE", "inspections"),
		APIPort:          getEnv("API_PORT", "8080"),
		APIHost:          getEnv("API_HOST", "0.0.0.0"),
		Log: LogConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			Directory:  getEnv("LOG_DIR", "./logs"),
			MaxAgeDays: getEnvAsInt("LOG_MAX_AGE_DAYS", 7),
			Stdout:     getEnvAsBool("LOG_STDOUT", true),
		},
		DataRetentionDays: getEnvAsInt("DATA_RETENTION_DAYS", 730),
		WorkerPoolSize:    getEnvAsInt("WORKER_POOL_SIZE", 4),
		CacheTTLHours:     getEnvAsInt("CACHE_TTL_HOURS", 24),
	}

	if err := viper.UnmarshalKey("queries", &config.Queries); err != nil {
		return nil, fmt.Errorf("failed to unmarshal queries: %w", err)
	}
	if err := viper.UnmarshalKey("mock_data", &config.MockData); err != nil {
		return nil, fmt.Errorf("failed to unmarshal mock_data config: %w", err)
	}
	if err := viper.UnmarshalKey("scheduler", &config.Scheduler); err != nil {
		return nil, fmt.Errorf("failed to unmarshal scheduler config: %w", err)
	}
	if err := viper.UnmarshalKey("retention", &config.Retention); err != nil {
		return nil, fmt.Errorf("failed to unmarshal retention config: %w", err)
	}
	// UnmarshalKey sees only the keys present in the file; the getters below
	// also see defaults.
	config.Engine = EngineConfig{
		ReferenceYear:   viper.GetInt("engine.reference_year"),
		LoadCurrentA:    viper.GetFloat64("engine.load_current_a"),
		DailyWindowDays: viper.GetInt("engine.daily_window_days"),
	}
	config.Analysis = AnalysisConfig{
		DefaultPageSize: viper.GetInt("analysis.default_page_size"),
		MaxPageSize:     viper.GetInt("analysis.max_page_size"),
		MaxRecords:      viper.GetInt("analysis.max_records"),
	}
	config.Scheduler.IntervalMinutes = viper.GetInt("scheduler.interval_minutes")
	config.Retention.DataDays = viper.GetInt("retention.data_days")
	config.Retention.CleanupTime = viper.GetString("retention.cleanup_time")
	config.MockData.Records = viper.GetInt("mock_data.records")
	config.MockData.TimeRangeDays = viper.GetInt("mock_data.time_range_days")
	config.Regions = viper.GetStringSlice("regions")
	if config.Retention.DataDays > 0 && os.Getenv("DATA_RETENTION_DAYS") == "" {
		config.DataRetentionDays = config.Retention.DataDays
	}

	config.Presets = NewPresetManager(getEnv("PRESETS_PATH", "config_presets.json"))
	if err := config.Presets.Load(); err != nil {
		logger.Warnf("Failed to load filter presets: %v", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks the values the engine and stores cannot run without.
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH is required")
	}
	if c.AppDBPath == "" {
		return fmt.Errorf("APP_DB_PATH is required")
	}
	return c.Engine.Validate()
}

// Validate checks the engine constants.
func (e EngineConfig) Validate() error {
	if e.ReferenceYear < 1990 || e.ReferenceYear > 2200 {
		return fmt.Errorf("engine.reference_year %d out of range", e.ReferenceYear)
	}
	if e.LoadCurrentA <= 0 {
		return fmt.Errorf("engine.load_current_a must be positive")
	}
	if e.DailyWindowDays <= 0 {
		return fmt.Errorf("engine.daily_window_days must be positive")
	}
	return nil
}

// SourceDSN builds the lib/pq connection string for the field app database.
func (c *Config) SourceDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.SourceDBHost, c.SourceDBPort, c.SourceDBUser, c.SourceDBPassword, c.SourceDBName, c.SourceDBSSLMode)
}

// getEnv reads an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt reads an environment variable as int or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "1", "true", "yes":
		return true
	case "0", "false", "no":
		return false
	}
	return defaultValue
}
