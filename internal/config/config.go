package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Port                  string
	DatabaseURL           string
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	ReportCacheTTLSeconds int
	// TimezoneOffsetMinutes is the pharmacy's fixed UTC offset, used when
	// resolving named report windows. Defaults to UTC+6.
	TimezoneOffsetMinutes int
	NearlyExpiryDays      int

	InvoiceDir     string
	InvoiceBaseURL string
	S3Bucket       string
	S3Region       string
	S3Prefix       string

	PharmacyName    string
	PharmacyAddress string
	PharmacyPhone   string
	PharmacyEmail   string
}

func Load() Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	ttl, err := strconv.Atoi(getEnv("REPORT_CACHE_TTL_SECONDS", "30"))
	if err != nil || ttl < 1 {
		ttl = 30
	}
	offset, err := strconv.Atoi(getEnv("TIMEZONE_OFFSET_MINUTES", "360"))
	if err != nil {
		offset = 360
	}
	nearly, err := strconv.Atoi(getEnv("NEARLY_EXPIRY_DAYS", "90"))
	if err != nil || nearly < 1 {
		nearly = 90
	}

	cfg := Config{
		Port:                  getEnv("PORT", "8080"),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		RedisAddr:             os.Getenv("REDIS_ADDR"),
		RedisPassword:         os.Getenv("REDIS_PASSWORD"),
		RedisDB:               redisDB,
		ReportCacheTTLSeconds: ttl,
		TimezoneOffsetMinutes: offset,
		NearlyExpiryDays:      nearly,
		InvoiceDir:            getEnv("INVOICE_DIR", "./invoices"),
		InvoiceBaseURL:        getEnv("INVOICE_BASE_URL", "http://127.0.0.1:8080/invoices"),
		S3Bucket:              os.Getenv("S3_BUCKET"),
		S3Region:              getEnv("S3_REGION", "ap-southeast-1"),
		S3Prefix:              getEnv("S3_PREFIX", "invoices"),
		PharmacyName:          getEnv("PHARMACY_NAME", "PharmaDesk Pharmacy"),
		PharmacyAddress:       strings.TrimSpace(os.Getenv("PHARMACY_ADDRESS")),
		PharmacyPhone:         strings.TrimSpace(os.Getenv("PHARMACY_PHONE")),
		PharmacyEmail:         strings.TrimSpace(os.Getenv("PHARMACY_EMAIL")),
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}
