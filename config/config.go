package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Orders   OrdersConfig
	Click    ClickConfig
	Payme    PaymeConfig
}

type ServerConfig struct {
	Port         string
	Env          string
	SiteURL      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type DatabaseConfig struct {
	DSN             string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

type OrdersConfig struct {
	// StrictStatusFlow rejects status updates that are not reachable from
	// the current status. Off by default: admins may jump states.
	StrictStatusFlow bool
	Currency         string
}

type ClickConfig struct {
	MerchantID string
	ServiceID  string
	SecretKey  string
}

type PaymeConfig struct {
	MerchantID string
	SecretKey  string
	Endpoint   string
	Timeout    time.Duration
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         getenv("PORT", "8080"),
			Env:          getenv("APP_ENV", "development"),
			SiteURL:      getenv("SITE_URL", "http://localhost:8080"),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			DSN:             getenv("DATABASE_DSN", "market:market@tcp(localhost:3306)/market?charset=utf8mb4&parseTime=True&loc=Local"),
			MaxIdleConns:    10,
			MaxOpenConns:    100,
			ConnMaxLifetime: time.Hour,
		},
		Orders: OrdersConfig{
			StrictStatusFlow: getenvBool("ORDERS_STRICT_STATUS_FLOW", false),
			Currency:         getenv("ORDERS_CURRENCY", "UZS"),
		},
		Click: ClickConfig{
			MerchantID: getenv("CLICK_MERCHANT_ID", ""),
			ServiceID:  getenv("CLICK_SERVICE_ID", ""),
			SecretKey:  getenv("CLICK_SECRET_KEY", ""),
		},
		Payme: PaymeConfig{
			MerchantID: getenv("PAYME_MERCHANT_ID", ""),
			SecretKey:  getenv("PAYME_SECRET_KEY", ""),
			Endpoint:   getenv("PAYME_ENDPOINT", "https://checkout.paycom.uz/api"),
			Timeout:    10 * time.Second,
		},
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
