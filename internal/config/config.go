package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config represents the application configuration
type Config struct {
	Server        ServerConfig        `json:"server"`
	Database      DatabaseConfig      `json:"database"`
	Market        MarketConfig        `json:"market"`
	Security      SecurityConfig      `json:"security"`
	Logging       LoggingConfig       `json:"logging"`
	Notifications NotificationsConfig `json:"notifications"`
	Audit         AuditConfig         `json:"audit"`
	Reports       ReportsConfig       `json:"reports"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	ReadTimeout     time.Duration `json:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout"`
	IdleTimeout     time.Duration `json:"idle_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
}

// DatabaseConfig represents the event journal database. An empty Driver
// disables the journal.
type DatabaseConfig struct {
	Driver         string        `json:"driver"`
	DSN            string        `json:"dsn"`
	Host           string        `json:"host"`
	Port           int           `json:"port"`
	User           string        `json:"user"`
	Password       string        `json:"password"`
	DBName         string        `json:"db_name"`
	SSLMode        string        `json:"ssl_mode"`
	MaxConnections int           `json:"max_connections"`
	MaxIdleConns   int           `json:"max_idle_conns"`
	MaxLifetime    time.Duration `json:"max_lifetime"`
}

// MarketConfig holds the identities and pricing of the settlement engine
type MarketConfig struct {
	RegistryOwner    string          `json:"registry_owner"`
	EngineAddress    string          `json:"engine_address"`
	PenaltySink      string          `json:"penalty_sink"`
	UnitPrice        decimal.Decimal `json:"unit_price"`
	CollateralMarkup decimal.Decimal `json:"collateral_markup"`
	Validators       []string        `json:"validators"`
}

// SecurityConfig
type SecurityConfig struct {
	JWTSecret string        `json:"jwt_secret"`
	TokenTTL  time.Duration `json:"token_ttl"`
}

// LoggingConfig
type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// NotificationsConfig controls event fan-out
type NotificationsConfig struct {
	WebsocketEnabled bool   `json:"websocket_enabled"`
	SNSTopicARN      string `json:"sns_topic_arn"`
	AWSRegion        string `json:"aws_region"`
}

// AuditConfig schedules the invariant sweep
type AuditConfig struct {
	Enabled  bool   `json:"enabled"`
	Schedule string `json:"schedule"`
}

// ReportsConfig controls statement archiving. An empty bucket disables it.
type ReportsConfig struct {
	ArchiveBucket string `json:"archive_bucket"`
	ArchivePrefix string `json:"archive_prefix"`
}

// Default returns the configuration used when nothing overrides it
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 5 * time.Second,
		},
		Database: DatabaseConfig{
			Host:           "localhost",
			Port:           5432,
			User:           os.Getenv("USER"),
			DBName:         "credit_market",
			SSLMode:        "disable",
			MaxConnections: 25,
			MaxIdleConns:   5,
		},
		Market: MarketConfig{
			UnitPrice:        decimal.NewFromInt(1),
			CollateralMarkup: decimal.RequireFromString("1.3"),
		},
		Security: SecurityConfig{
			TokenTTL: 24 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Notifications: NotificationsConfig{
			WebsocketEnabled: true,
		},
		Audit: AuditConfig{
			Enabled:  true,
			Schedule: "@every 5m",
		},
		Reports: ReportsConfig{
			ArchivePrefix: "statements",
		},
	}
}

// LoadConfig loads configuration from file, then .env files, then environment
// variables. A missing config or .env file is not an error. With no envFiles
// ".env" in the working directory is tried.
func LoadConfig(configPath string, envFiles ...string) (*Config, error) {
	config := Default()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		switch {
		case err == nil:
			if err := json.Unmarshal(data, config); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		case !errors.Is(err, fs.ErrNotExist):
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	if err := overrideWithEnv(config); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func overrideWithEnv(config *Config) error {
	if host := os.Getenv("SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("SERVER_PORT: %w", err)
		}
		config.Server.Port = p
	}

	if driver := os.Getenv("DATABASE_DRIVER"); driver != "" {
		config.Database.Driver = driver
	}
	if dsn := os.Getenv("DATABASE_DSN"); dsn != "" {
		config.Database.DSN = dsn
	}
	if dbHost := os.Getenv("DATABASE_HOST"); dbHost != "" {
		config.Database.Host = dbHost
	}
	if dbUser := os.Getenv("DATABASE_USER"); dbUser != "" {
		config.Database.User = dbUser
	}
	if dbPass := os.Getenv("DATABASE_PASSWORD"); dbPass != "" {
		config.Database.Password = dbPass
	}
	if dbName := os.Getenv("DATABASE_DBNAME"); dbName != "" {
		config.Database.DBName = dbName
	}

	if owner := os.Getenv("MARKET_REGISTRY_OWNER"); owner != "" {
		config.Market.RegistryOwner = owner
	}
	if addr := os.Getenv("MARKET_ENGINE_ADDRESS"); addr != "" {
		config.Market.EngineAddress = addr
	}
	if sink := os.Getenv("MARKET_PENALTY_SINK"); sink != "" {
		config.Market.PenaltySink = sink
	}
	if price := os.Getenv("MARKET_UNIT_PRICE"); price != "" {
		d, err := decimal.NewFromString(price)
		if err != nil {
			return fmt.Errorf("MARKET_UNIT_PRICE: %w", err)
		}
		config.Market.UnitPrice = d
	}
	if markup := os.Getenv("MARKET_COLLATERAL_MARKUP"); markup != "" {
		d, err := decimal.NewFromString(markup)
		if err != nil {
			return fmt.Errorf("MARKET_COLLATERAL_MARKUP: %w", err)
		}
		config.Market.CollateralMarkup = d
	}
	if validators := os.Getenv("MARKET_VALIDATORS"); validators != "" {
		config.Market.Validators = nil
		for _, v := range strings.Split(validators, ",") {
			if v = strings.TrimSpace(v); v != "" {
				config.Market.Validators = append(config.Market.Validators, v)
			}
		}
	}

	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		config.Security.JWTSecret = secret
	}
	if ttl := os.Getenv("JWT_TTL"); ttl != "" {
		d, err := time.ParseDuration(ttl)
		if err != nil {
			return fmt.Errorf("JWT_TTL: %w", err)
		}
		config.Security.TokenTTL = d
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if format := os.Getenv("LOG_FORMAT"); format != "" {
		config.Logging.Format = format
	}

	if arn := os.Getenv("SNS_TOPIC_ARN"); arn != "" {
		config.Notifications.SNSTopicARN = arn
	}
	if region := os.Getenv("AWS_REGION"); region != "" {
		config.Notifications.AWSRegion = region
	}

	if schedule := os.Getenv("AUDIT_SCHEDULE"); schedule != "" {
		config.Audit.Schedule = schedule
	}

	if bucket := os.Getenv("REPORTS_ARCHIVE_BUCKET"); bucket != "" {
		config.Reports.ArchiveBucket = bucket
	}
	if prefix := os.Getenv("REPORTS_ARCHIVE_PREFIX"); prefix != "" {
		config.Reports.ArchivePrefix = prefix
	}
	return nil
}

// Validate rejects settings the service cannot start with
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server port %d out of range", c.Server.Port))
	}
	switch c.Database.Driver {
	case "", "postgres", "sqlite3":
	default:
		errs = append(errs, fmt.Errorf("unsupported database driver %q", c.Database.Driver))
	}
	if c.Market.RegistryOwner == "" {
		errs = append(errs, errors.New("market registry owner is required"))
	}
	if c.Market.EngineAddress == "" {
		errs = append(errs, errors.New("market engine address is required"))
	}
	if !c.Market.UnitPrice.IsPositive() {
		errs = append(errs, fmt.Errorf("market unit price must be positive, got %s", c.Market.UnitPrice))
	}
	if !c.Market.CollateralMarkup.IsPositive() {
		errs = append(errs, fmt.Errorf("market collateral markup must be positive, got %s", c.Market.CollateralMarkup))
	}
	if c.Security.JWTSecret == "" {
		errs = append(errs, errors.New("jwt secret is required"))
	}
	if c.Security.TokenTTL <= 0 {
		errs = append(errs, errors.New("token ttl must be positive"))
	}
	if c.Audit.Enabled && c.Audit.Schedule == "" {
		errs = append(errs, errors.New("audit schedule is required when audit is enabled"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// GetDatabaseURL returns the database connection string
func (c *DatabaseConfig) GetDatabaseURL() string {
	if c.DSN != "" {
		return c.DSN
	}
	if c.Driver == "sqlite3" {
		return c.DBName
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode)
}

// GetServerAddr returns the server address
func (c *ServerConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
