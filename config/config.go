package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	BrokerConfig        BrokerConfig        `json:"broker"`
	TradingConfig       TradingConfig       `json:"trading"`
	SessionConfig       SessionConfig       `json:"session"`
	ReinforcementConfig ReinforcementConfig `json:"reinforcement"`
	StrengthConfig      StrengthConfig      `json:"strength"`
	AgentConfig         AgentConfig         `json:"agents"`
	LoggingConfig       LoggingConfig       `json:"logging"`
	DatabaseConfig      DatabaseConfig      `json:"database"`
	RedisConfig         RedisConfig         `json:"redis"`
	VaultConfig         VaultConfig         `json:"vault"`
	ServerConfig        ServerConfig        `json:"server"`
}

// BrokerConfig holds broker bridge connection settings. Credentials may be
// supplied directly or fetched from Vault when VaultConfig.Enabled is set.
type BrokerConfig struct {
	BaseURL      string `json:"base_url"`
	StreamURL    string `json:"stream_url"` // websocket tick stream endpoint
	Login        string `json:"login"`
	Password     string `json:"password"`
	Server       string `json:"server"`
	SymbolSuffix string `json:"symbol_suffix"` // broker-specific symbol suffix, e.g. ".r"
	MockMode     bool   `json:"mock_mode"`     // simulated broker when the bridge is unreachable
}

// TradingConfig holds position management and cycle cadence settings.
type TradingConfig struct {
	Symbols                []string `json:"symbols"`
	Currencies             []string `json:"currencies"`
	CyclePeriodMinutes     int      `json:"cycle_period_minutes"`
	MonitoringMinutes      int      `json:"monitoring_minutes"`
	ContinuousMonitoring   bool     `json:"continuous_monitoring"`
	MaxConcurrentPositions int      `json:"max_concurrent_positions"`
	DefaultVolume          float64  `json:"default_volume"`
	DryRun                 bool     `json:"dry_run"`

	// Per-position closure rules
	ProfitTarget          float64 `json:"profit_target"`
	StopLoss              float64 `json:"stop_loss"` // negative
	MaxPositionHours      float64 `json:"max_position_hours"`
	EnableTrailingStop    bool    `json:"enable_trailing_stop"`
	TrailingStopTrigger   float64 `json:"trailing_stop_trigger"`
	TrailingStopDistance  float64 `json:"trailing_stop_distance"`
	EquityStopPercent     float64 `json:"equity_stop_percent"`  // relative drawdown threshold
	EquityStopAbsolute    float64 `json:"equity_stop_absolute"` // absolute drawdown threshold, 0 = disabled
	CycleBackoffSeconds   int     `json:"cycle_backoff_seconds"`
	SchedulerFloorSeconds int     `json:"scheduler_floor_seconds"`
}

// SessionConfig holds the active trading session window (UTC hours).
type SessionConfig struct {
	OpenHourUTC       int `json:"open_hour_utc"`
	CloseHourUTC      int `json:"close_hour_utc"`
	LiquidateMinsLeft int `json:"liquidate_mins_left"` // close everything this many minutes before session close
}

// ReinforcementConfig holds dynamic reinforcement settings.
type ReinforcementConfig struct {
	Enabled              bool    `json:"enabled"`
	CooldownMinutes      int     `json:"cooldown_minutes"`
	MaxPerCycle          int     `json:"max_per_cycle"`
	VolumeFraction       float64 `json:"volume_fraction"`        // reinforcement lots as fraction of original volume
	RapidLossPerMinute   float64 `json:"rapid_loss_per_minute"`  // P&L drop per minute flagging a rapid adverse move
	AdversePipThreshold  float64 `json:"adverse_pip_threshold"`  // pips against entry flagging compensation
	MomentumPipThreshold float64 `json:"momentum_pip_threshold"` // pips in favor flagging momentum
	SpreadSpikeRatio     float64 `json:"spread_spike_ratio"`     // spread vs baseline flagging volatility
}

// StrengthConfig tunes the UFO analytics engine.
type StrengthConfig struct {
	OscillationWindow    int     `json:"oscillation_window"`
	OscillationReversals int     `json:"oscillation_reversals"`
	OscillationAmplitude float64 `json:"oscillation_amplitude"`
	ReversalThreshold    float64 `json:"reversal_threshold"` // strict |delta| bound for exit signals
	ReversalLookback     int     `json:"reversal_lookback"`  // samples averaged from the previous snapshot
	MinExitSignals       int     `json:"min_exit_signals"`   // flagged currencies required for a mass exit
}

// AgentConfig holds LLM decision agent settings.
type AgentConfig struct {
	Enabled     bool    `json:"enabled"`
	Provider    string  `json:"provider"` // "claude", "openai", or "deepseek"
	APIKey      string  `json:"api_key"`
	Model       string  `json:"model"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
	TimeoutSecs int     `json:"timeout_secs"`
}

type LoggingConfig struct {
	Level       string `json:"level"`        // DEBUG, INFO, WARN, ERROR
	Output      string `json:"output"`       // stdout, stderr, or file path
	JSONFormat  bool   `json:"json_format"`  // Output as JSON
	IncludeFile bool   `json:"include_file"` // Include file and line number
}

// DatabaseConfig holds PostgreSQL settings for the trade archive.
type DatabaseConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
}

// RedisConfig holds Redis settings for the cooldown ledger.
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

// VaultConfig holds HashiCorp Vault configuration for broker credentials.
type VaultConfig struct {
	Enabled    bool   `json:"enabled"`
	Address    string `json:"address"`
	Token      string `json:"token"`
	MountPath  string `json:"mount_path"`
	SecretPath string `json:"secret_path"`
	TLSEnabled bool   `json:"tls_enabled"`
	CACert     string `json:"ca_cert"`
}

// ServerConfig holds the status API server configuration.
type ServerConfig struct {
	Enabled         bool   `json:"enabled"`
	Port            int    `json:"port"`
	Host            string `json:"host"`
	AllowedOrigins  string `json:"allowed_origins"`
	ReadTimeout     int    `json:"read_timeout"`     // Seconds
	WriteTimeout    int    `json:"write_timeout"`    // Seconds
	ShutdownTimeout int    `json:"shutdown_timeout"` // Seconds
}

// defaultOnConfig seeds the settings that are on unless the file or an env
// override explicitly turns them off. A bool zero value cannot carry an
// "on by default" flag through json.Unmarshal.
func defaultOnConfig() Config {
	var cfg Config
	cfg.TradingConfig.ContinuousMonitoring = true
	return cfg
}

func Load() (*Config, error) {
	cfg, err := loadFromFile("config.json")
	if err != nil {
		// If no config file, start with the on-by-default settings
		seed := defaultOnConfig()
		cfg = &seed
	}

	// Apply environment variable overrides (these take precedence)
	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	// Broker config
	cfg.BrokerConfig.BaseURL = getEnvOrDefault("BROKER_BASE_URL", cfg.BrokerConfig.BaseURL)
	cfg.BrokerConfig.StreamURL = getEnvOrDefault("BROKER_STREAM_URL", cfg.BrokerConfig.StreamURL)
	cfg.BrokerConfig.Login = getEnvOrDefault("BROKER_LOGIN", cfg.BrokerConfig.Login)
	cfg.BrokerConfig.Password = getEnvOrDefault("BROKER_PASSWORD", cfg.BrokerConfig.Password)
	cfg.BrokerConfig.Server = getEnvOrDefault("BROKER_SERVER", cfg.BrokerConfig.Server)
	cfg.BrokerConfig.MockMode = getEnvOrDefault("BROKER_MOCK_MODE", boolStr(cfg.BrokerConfig.MockMode)) == "true"

	// Trading config
	if v := os.Getenv("TRADING_SYMBOLS"); v != "" {
		cfg.TradingConfig.Symbols = splitCSV(v)
	}
	if v := os.Getenv("TRADING_CURRENCIES"); v != "" {
		cfg.TradingConfig.Currencies = splitCSV(v)
	}
	cfg.TradingConfig.DryRun = getEnvOrDefault("TRADING_DRY_RUN", boolStr(cfg.TradingConfig.DryRun)) == "true"
	cfg.TradingConfig.ContinuousMonitoring = getEnvOrDefault("TRADING_CONTINUOUS_MONITORING", boolStr(cfg.TradingConfig.ContinuousMonitoring)) == "true"
	cfg.TradingConfig.CyclePeriodMinutes = getEnvIntOrDefault("TRADING_CYCLE_MINUTES", cfg.TradingConfig.CyclePeriodMinutes)
	cfg.TradingConfig.MonitoringMinutes = getEnvIntOrDefault("TRADING_MONITORING_MINUTES", cfg.TradingConfig.MonitoringMinutes)
	cfg.TradingConfig.ProfitTarget = getEnvFloatOrDefault("TRADING_PROFIT_TARGET", cfg.TradingConfig.ProfitTarget)
	cfg.TradingConfig.StopLoss = getEnvFloatOrDefault("TRADING_STOP_LOSS", cfg.TradingConfig.StopLoss)

	// Logging config
	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", "INFO")
	cfg.LoggingConfig.Output = getEnvOrDefault("LOG_OUTPUT", "stdout")
	cfg.LoggingConfig.JSONFormat = getEnvOrDefault("LOG_JSON", "true") == "true"
	cfg.LoggingConfig.IncludeFile = getEnvOrDefault("LOG_INCLUDE_FILE", "false") == "true"

	// Agent config
	cfg.AgentConfig.Enabled = getEnvOrDefault("AGENTS_ENABLED", boolStr(cfg.AgentConfig.Enabled)) == "true"
	cfg.AgentConfig.Provider = getEnvOrDefault("AGENTS_PROVIDER", cfg.AgentConfig.Provider)
	cfg.AgentConfig.APIKey = getEnvOrDefault("AGENTS_API_KEY", cfg.AgentConfig.APIKey)
	cfg.AgentConfig.Model = getEnvOrDefault("AGENTS_MODEL", cfg.AgentConfig.Model)

	// Database config
	cfg.DatabaseConfig.Enabled = getEnvOrDefault("DB_ENABLED", boolStr(cfg.DatabaseConfig.Enabled)) == "true"
	cfg.DatabaseConfig.Host = getEnvOrDefault("DB_HOST", cfg.DatabaseConfig.Host)
	cfg.DatabaseConfig.Port = getEnvIntOrDefault("DB_PORT", cfg.DatabaseConfig.Port)
	cfg.DatabaseConfig.User = getEnvOrDefault("DB_USER", cfg.DatabaseConfig.User)
	cfg.DatabaseConfig.Password = getEnvOrDefault("DB_PASSWORD", cfg.DatabaseConfig.Password)
	cfg.DatabaseConfig.Database = getEnvOrDefault("DB_NAME", cfg.DatabaseConfig.Database)
	cfg.DatabaseConfig.SSLMode = getEnvOrDefault("DB_SSLMODE", cfg.DatabaseConfig.SSLMode)

	// Redis config
	cfg.RedisConfig.Enabled = getEnvOrDefault("REDIS_ENABLED", boolStr(cfg.RedisConfig.Enabled)) == "true"
	cfg.RedisConfig.Address = getEnvOrDefault("REDIS_ADDRESS", cfg.RedisConfig.Address)
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)

	// Vault config
	cfg.VaultConfig.Enabled = getEnvOrDefault("VAULT_ENABLED", boolStr(cfg.VaultConfig.Enabled)) == "true"
	cfg.VaultConfig.Address = getEnvOrDefault("VAULT_ADDR", cfg.VaultConfig.Address)
	cfg.VaultConfig.Token = getEnvOrDefault("VAULT_TOKEN", cfg.VaultConfig.Token)
	cfg.VaultConfig.MountPath = getEnvOrDefault("VAULT_MOUNT_PATH", cfg.VaultConfig.MountPath)
	cfg.VaultConfig.SecretPath = getEnvOrDefault("VAULT_SECRET_PATH", cfg.VaultConfig.SecretPath)

	// Server config
	cfg.ServerConfig.Enabled = getEnvOrDefault("WEB_ENABLED", boolStr(cfg.ServerConfig.Enabled)) == "true"
	cfg.ServerConfig.Port = getEnvIntOrDefault("WEB_PORT", cfg.ServerConfig.Port)
	cfg.ServerConfig.Host = getEnvOrDefault("WEB_HOST", cfg.ServerConfig.Host)
	cfg.ServerConfig.AllowedOrigins = getEnvOrDefault("SERVER_ALLOWED_ORIGINS", cfg.ServerConfig.AllowedOrigins)
}

// applyDefaults fills zero-valued settings with the documented defaults.
func applyDefaults(cfg *Config) {
	if len(cfg.TradingConfig.Symbols) == 0 {
		cfg.TradingConfig.Symbols = []string{
			"EURUSD", "GBPUSD", "USDJPY", "USDCHF", "AUDUSD", "USDCAD", "NZDUSD",
			"EURGBP", "EURJPY", "GBPJPY",
		}
	}
	if len(cfg.TradingConfig.Currencies) == 0 {
		cfg.TradingConfig.Currencies = []string{"EUR", "USD", "GBP", "JPY", "CHF", "AUD", "CAD", "NZD"}
	}
	if cfg.TradingConfig.CyclePeriodMinutes <= 0 {
		cfg.TradingConfig.CyclePeriodMinutes = 30
	}
	if cfg.TradingConfig.MonitoringMinutes <= 0 {
		cfg.TradingConfig.MonitoringMinutes = 5
	}
	if cfg.TradingConfig.MaxConcurrentPositions <= 0 {
		cfg.TradingConfig.MaxConcurrentPositions = 18
	}
	if cfg.TradingConfig.DefaultVolume <= 0 {
		cfg.TradingConfig.DefaultVolume = 0.1
	}
	if cfg.TradingConfig.ProfitTarget == 0 {
		cfg.TradingConfig.ProfitTarget = 75.0
	}
	if cfg.TradingConfig.StopLoss == 0 {
		cfg.TradingConfig.StopLoss = -50.0
	}
	if cfg.TradingConfig.MaxPositionHours <= 0 {
		cfg.TradingConfig.MaxPositionHours = 4
	}
	if cfg.TradingConfig.TrailingStopTrigger == 0 {
		cfg.TradingConfig.TrailingStopTrigger = 30.0
	}
	if cfg.TradingConfig.TrailingStopDistance == 0 {
		cfg.TradingConfig.TrailingStopDistance = 15.0
	}
	if cfg.TradingConfig.EquityStopPercent == 0 {
		cfg.TradingConfig.EquityStopPercent = 10.0
	}
	if cfg.TradingConfig.CycleBackoffSeconds <= 0 {
		cfg.TradingConfig.CycleBackoffSeconds = 60
	}
	if cfg.TradingConfig.SchedulerFloorSeconds <= 0 {
		cfg.TradingConfig.SchedulerFloorSeconds = 1
	}
	if cfg.SessionConfig.CloseHourUTC == 0 {
		cfg.SessionConfig.OpenHourUTC = 8
		cfg.SessionConfig.CloseHourUTC = 20
	}
	if cfg.SessionConfig.LiquidateMinsLeft <= 0 {
		cfg.SessionConfig.LiquidateMinsLeft = 30
	}
	if cfg.ReinforcementConfig.CooldownMinutes <= 0 {
		cfg.ReinforcementConfig.CooldownMinutes = 15
	}
	if cfg.ReinforcementConfig.MaxPerCycle <= 0 {
		cfg.ReinforcementConfig.MaxPerCycle = 3
	}
	if cfg.ReinforcementConfig.VolumeFraction <= 0 {
		cfg.ReinforcementConfig.VolumeFraction = 0.5
	}
	if cfg.ReinforcementConfig.RapidLossPerMinute <= 0 {
		cfg.ReinforcementConfig.RapidLossPerMinute = 10.0
	}
	if cfg.ReinforcementConfig.AdversePipThreshold <= 0 {
		cfg.ReinforcementConfig.AdversePipThreshold = 15.0
	}
	if cfg.ReinforcementConfig.MomentumPipThreshold <= 0 {
		cfg.ReinforcementConfig.MomentumPipThreshold = 10.0
	}
	if cfg.ReinforcementConfig.SpreadSpikeRatio <= 0 {
		cfg.ReinforcementConfig.SpreadSpikeRatio = 2.5
	}
	if cfg.StrengthConfig.OscillationWindow <= 0 {
		cfg.StrengthConfig.OscillationWindow = 20
	}
	if cfg.StrengthConfig.OscillationReversals <= 0 {
		cfg.StrengthConfig.OscillationReversals = 4
	}
	if cfg.StrengthConfig.OscillationAmplitude <= 0 {
		cfg.StrengthConfig.OscillationAmplitude = 0.5
	}
	if cfg.StrengthConfig.ReversalThreshold <= 0 {
		cfg.StrengthConfig.ReversalThreshold = 2.0
	}
	if cfg.StrengthConfig.ReversalLookback <= 0 {
		cfg.StrengthConfig.ReversalLookback = 5
	}
	if cfg.StrengthConfig.MinExitSignals <= 0 {
		cfg.StrengthConfig.MinExitSignals = 3
	}
	if cfg.AgentConfig.Provider == "" {
		cfg.AgentConfig.Provider = "claude"
	}
	if cfg.AgentConfig.MaxTokens <= 0 {
		cfg.AgentConfig.MaxTokens = 1024
	}
	if cfg.AgentConfig.Temperature == 0 {
		cfg.AgentConfig.Temperature = 0.3
	}
	if cfg.AgentConfig.TimeoutSecs <= 0 {
		cfg.AgentConfig.TimeoutSecs = 30
	}
	if cfg.DatabaseConfig.Host == "" {
		cfg.DatabaseConfig.Host = "localhost"
	}
	if cfg.DatabaseConfig.Port <= 0 {
		cfg.DatabaseConfig.Port = 5432
	}
	if cfg.DatabaseConfig.SSLMode == "" {
		cfg.DatabaseConfig.SSLMode = "disable"
	}
	if cfg.RedisConfig.Address == "" {
		cfg.RedisConfig.Address = "localhost:6379"
	}
	if cfg.RedisConfig.PoolSize <= 0 {
		cfg.RedisConfig.PoolSize = 10
	}
	if cfg.VaultConfig.Address == "" {
		cfg.VaultConfig.Address = "http://localhost:8200"
	}
	if cfg.VaultConfig.MountPath == "" {
		cfg.VaultConfig.MountPath = "secret"
	}
	if cfg.VaultConfig.SecretPath == "" {
		cfg.VaultConfig.SecretPath = "ufo-engine/broker"
	}
	if cfg.ServerConfig.Port <= 0 {
		cfg.ServerConfig.Port = 8080
	}
	if cfg.ServerConfig.Host == "" {
		cfg.ServerConfig.Host = "0.0.0.0"
	}
	if cfg.ServerConfig.AllowedOrigins == "" {
		cfg.ServerConfig.AllowedOrigins = "*"
	}
	if cfg.ServerConfig.ReadTimeout <= 0 {
		cfg.ServerConfig.ReadTimeout = 30
	}
	if cfg.ServerConfig.WriteTimeout <= 0 {
		cfg.ServerConfig.WriteTimeout = 30
	}
	if cfg.ServerConfig.ShutdownTimeout <= 0 {
		cfg.ServerConfig.ShutdownTimeout = 10
	}
}

// CyclePeriod returns the decision cycle period as a duration.
func (t TradingConfig) CyclePeriod() time.Duration {
	return time.Duration(t.CyclePeriodMinutes) * time.Minute
}

// MonitoringPeriod returns the monitoring tick period as a duration.
func (t TradingConfig) MonitoringPeriod() time.Duration {
	return time.Duration(t.MonitoringMinutes) * time.Minute
}

// MaxPositionDuration returns the time-exit threshold as a duration.
func (t TradingConfig) MaxPositionDuration() time.Duration {
	return time.Duration(t.MaxPositionHours * float64(time.Hour))
}

// Cooldown returns the reinforcement cooldown as a duration.
func (r ReinforcementConfig) Cooldown() time.Duration {
	return time.Duration(r.CooldownMinutes) * time.Minute
}

func loadFromFile(filename string) (*Config, error) {
	file, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	config := defaultOnConfig()
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return &config, nil
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func boolStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

// GenerateSampleConfig creates a sample configuration file.
func GenerateSampleConfig(filename string) error {
	seed := defaultOnConfig()
	cfg := &seed
	applyDefaults(cfg)
	cfg.BrokerConfig = BrokerConfig{
		BaseURL:   "http://localhost:8787",
		StreamURL: "ws://localhost:8787/ticks",
		Login:     "your_login_here",
		Password:  "your_password_here",
		Server:    "Demo-Server",
		MockMode:  true,
	}
	cfg.TradingConfig.DryRun = true
	cfg.LoggingConfig = LoggingConfig{
		Level:      "INFO",
		Output:     "stdout",
		JSONFormat: true,
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filename, data, 0644)
}
