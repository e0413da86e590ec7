package config

import (
	"log"
	"time"

	"github.com/spf13/viper"
)

// Config aggregates the per-concern settings for one service process.
type Config struct {
	Database Database
	Redis    Redis
	HTTP     HTTP
	JWT      JWT
	Bank     Bank
}

// Database holds Postgres connection settings.
type Database struct {
	Host            string
	Port            string
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Redis holds the connection settings for the event bus transport.
type Redis struct {
	Host         string
	Port         string
	Password     string
	DB           int
	StreamPrefix string
}

type HTTP struct {
	Addr string
}

type JWT struct {
	SecretKey   string
	ExpiryHours int
}

// Bank holds the ledger-wide domain settings: the account number format
// and the default credit limit applied to newly opened balances.
type Bank struct {
	Region       string
	Product      string
	CashSentinel string
	CreditLimit  int64
	Group        string
}

// Load reads .env plus environment overrides and returns the resolved config.
func Load(service string) *Config {
	viper.SetConfigFile(".env")
	viper.AutomaticEnv()
	if err := viper.ReadInConfig(); err != nil {
		log.Printf("[CONFIG] Config file not found, using defaults: %v", err)
	}

	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.name", "DATABASE_NAME")
	viper.BindEnv("database.ssl_mode", "DATABASE_SSL_MODE")

	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")
	viper.BindEnv("redis.stream_prefix", "REDIS_STREAM_PREFIX")

	viper.BindEnv("http.addr", "HTTP_ADDR")

	viper.BindEnv("jwt.secret_key", "JWT_SECRET_KEY")
	viper.BindEnv("jwt.expiry_hours", "JWT_EXPIRY_HOURS")

	viper.BindEnv("bank.region", "BANK_REGION")
	viper.BindEnv("bank.product", "BANK_PRODUCT")
	viper.BindEnv("bank.cash_sentinel", "BANK_CASH_SENTINEL")
	viper.BindEnv("bank.credit_limit", "BANK_CREDIT_LIMIT")

	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", "5432")
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.password", "password")
	viper.SetDefault("database.name", service)
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", time.Minute*5)

	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", "6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.stream_prefix", "bank:")

	viper.SetDefault("http.addr", ":8080")

	viper.SetDefault("jwt.secret_key", "development-secret")
	viper.SetDefault("jwt.expiry_hours", 24)

	viper.SetDefault("bank.region", "NL")
	viper.SetDefault("bank.product", "OPEN")
	viper.SetDefault("bank.cash_sentinel", "cash")
	// Effectively unbounded overdraft unless operations configures a floor.
	viper.SetDefault("bank.credit_limit", int64(-1_000_000_000_00))

	return &Config{
		Database: Database{
			Host:            viper.GetString("database.host"),
			Port:            viper.GetString("database.port"),
			User:            viper.GetString("database.user"),
			Password:        viper.GetString("database.password"),
			Name:            viper.GetString("database.name"),
			SSLMode:         viper.GetString("database.ssl_mode"),
			MaxOpenConns:    viper.GetInt("database.max_open_conns"),
			MaxIdleConns:    viper.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: viper.GetDuration("database.conn_max_lifetime"),
		},
		Redis: Redis{
			Host:         viper.GetString("redis.host"),
			Port:         viper.GetString("redis.port"),
			Password:     viper.GetString("redis.password"),
			DB:           viper.GetInt("redis.db"),
			StreamPrefix: viper.GetString("redis.stream_prefix"),
		},
		HTTP: HTTP{
			Addr: viper.GetString("http.addr"),
		},
		JWT: JWT{
			SecretKey:   viper.GetString("jwt.secret_key"),
			ExpiryHours: viper.GetInt("jwt.expiry_hours"),
		},
		Bank: Bank{
			Region:       viper.GetString("bank.region"),
			Product:      viper.GetString("bank.product"),
			CashSentinel: viper.GetString("bank.cash_sentinel"),
			CreditLimit:  viper.GetInt64("bank.credit_limit"),
			Group:        service,
		},
	}
}
