package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	MoMo      MoMoConfig      `mapstructure:"momo"`
	VNPay     VNPayConfig     `mapstructure:"vnpay"`
	Escrow    EscrowConfig    `mapstructure:"escrow"`
	Payout    PayoutConfig    `mapstructure:"payout"`
	Sweeper   SweeperConfig   `mapstructure:"sweeper"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug, release, test
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns the Redis address string.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// MoMoConfig holds the MoMo gateway credentials and endpoints.
type MoMoConfig struct {
	PartnerCode string `mapstructure:"partner_code"`
	AccessKey   string `mapstructure:"access_key"`
	SecretKey   string `mapstructure:"secret_key"`
	Endpoint    string `mapstructure:"endpoint"`
	RedirectURL string `mapstructure:"redirect_url"`
	IPNURL      string `mapstructure:"ipn_url"`
}

// VNPayConfig holds the VNPay gateway credentials and endpoints.
type VNPayConfig struct {
	TmnCode    string `mapstructure:"tmn_code"`
	HashSecret string `mapstructure:"hash_secret"`
	PayURL     string `mapstructure:"pay_url"`
	ReturnURL  string `mapstructure:"return_url"`
}

// EscrowConfig holds the escrow policy.
type EscrowConfig struct {
	Percent int `mapstructure:"percent"` // portion of qualifying payments held, e.g. 20
}

// PayoutConfig holds the payout batching policy.
type PayoutConfig struct {
	Period time.Duration `mapstructure:"period"`
}

// SweeperConfig controls the stale-pending transaction sweeper.
type SweeperConfig struct {
	PendingTimeout time.Duration `mapstructure:"pending_timeout"`
	Interval       time.Duration `mapstructure:"interval"`
}

type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	Expiry time.Duration `mapstructure:"expiry"`
	Issuer string        `mapstructure:"issuer"`
}

// DashboardConfig holds the operator credential for the read-only
// dashboard: a username and an Argon2id hash of the password.
type DashboardConfig struct {
	Username     string `mapstructure:"username"`
	PasswordHash string `mapstructure:"password_hash"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Pretty bool   `mapstructure:"pretty"` // human-readable output (dev only)
}

// Load reads configuration from file and environment variables.
// Environment variables override file values. Prefix: TPE_ (Tutor Payment Engine).
// Nested keys use underscore: TPE_DATABASE_HOST, TPE_VNPAY_HASH_SECRET, etc.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "tutor_payments")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("momo.partner_code", "")
	v.SetDefault("momo.access_key", "")
	v.SetDefault("momo.secret_key", "")
	v.SetDefault("momo.endpoint", "https://test-payment.momo.vn/v2/gateway/api/create")
	v.SetDefault("momo.redirect_url", "")
	v.SetDefault("momo.ipn_url", "")
	v.SetDefault("vnpay.tmn_code", "")
	v.SetDefault("vnpay.hash_secret", "")
	v.SetDefault("vnpay.pay_url", "https://sandbox.vnpayment.vn/paymentv2/vpcpay.html")
	v.SetDefault("vnpay.return_url", "")
	v.SetDefault("escrow.percent", 20)
	v.SetDefault("payout.period", "168h") // weekly
	v.SetDefault("sweeper.pending_timeout", "30m")
	v.SetDefault("sweeper.interval", "5m")
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.expiry", "24h")
	v.SetDefault("jwt.issuer", "tutor-payment-engine")
	v.SetDefault("dashboard.username", "")
	v.SetDefault("dashboard.password_hash", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	// File config
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables: TPE_DATABASE_HOST -> database.host
	v.SetEnvPrefix("TPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Config file is optional; env vars can suffice.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if cfg.Escrow.Percent < 0 || cfg.Escrow.Percent > 100 {
		return nil, fmt.Errorf("escrow.percent must be within [0,100], got %d", cfg.Escrow.Percent)
	}

	return &cfg, nil
}
