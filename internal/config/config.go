package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Auth     AuthConfig
	Booking  BookingConfig
	App      AppConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type PostgresConfig struct {
	User        string
	Password    string
	Name        string
	Host        string
	Port        int
	SSLMode     string
	MaxConns    int32
	AutoMigrate bool
}

type AuthConfig struct {
	Secret   string
	Issuer   string
	TokenTTL time.Duration
}

type BookingConfig struct {
	CancellationWindow time.Duration
	// RateLimit is the number of bookings a user may attempt per minute.
	RateLimit      int
	IdempotencyTTL time.Duration
}

type AppConfig struct {
	Location *time.Location
	LogLevel slog.Level
}

func New() (*Config, error) {
	const op = "config.New"

	_ = godotenv.Load()

	serverHost := os.Getenv("SERVER_HOST")
	if serverHost == "" {
		serverHost = "localhost"
	}

	serverPort, err := envInt("SERVER_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	serverCfg := ServerConfig{
		Host: serverHost,
		Port: serverPort,
	}

	postgresHost := os.Getenv("POSTGRES_HOST")
	if postgresHost == "" {
		postgresHost = "localhost"
	}

	postgresPort, err := envInt("POSTGRES_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	postgresUser := os.Getenv("POSTGRES_USER")
	if postgresUser == "" {
		return nil, fmt.Errorf("%s: missing POSTGRES_USER", op)
	}

	postgresPassword := os.Getenv("POSTGRES_PASSWORD")
	if postgresPassword == "" {
		return nil, fmt.Errorf("%s: missing POSTGRES_PASSWORD", op)
	}

	postgresDB := os.Getenv("POSTGRES_DB")
	if postgresDB == "" {
		return nil, fmt.Errorf("%s: missing POSTGRES_DB", op)
	}

	postgresSSLMode := os.Getenv("POSTGRES_SSLMODE")
	if postgresSSLMode == "" {
		postgresSSLMode = "disable"
	}

	maxConns, err := envInt("POSTGRES_MAX_CONNS", 0)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	autoMigrate, err := envBool("POSTGRES_AUTO_MIGRATE", true)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	postgresCfg := PostgresConfig{
		User:        postgresUser,
		Password:    postgresPassword,
		Name:        postgresDB,
		Host:        postgresHost,
		Port:        postgresPort,
		SSLMode:     postgresSSLMode,
		MaxConns:    int32(maxConns),
		AutoMigrate: autoMigrate,
	}

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	redisDB, err := envInt("REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	redisCfg := RedisConfig{
		Addr:     redisAddr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       redisDB,
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		return nil, fmt.Errorf("%s: missing JWT_SECRET", op)
	}

	jwtIssuer := os.Getenv("JWT_ISSUER")
	if jwtIssuer == "" {
		jwtIssuer = "citybus"
	}

	tokenTTL, err := envDuration("JWT_TTL", 24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	authCfg := AuthConfig{
		Secret:   jwtSecret,
		Issuer:   jwtIssuer,
		TokenTTL: tokenTTL,
	}

	windowHours, err := envInt("BOOKING_CANCELLATION_WINDOW_HOURS", 24)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if windowHours < 0 {
		return nil, fmt.Errorf("%s: BOOKING_CANCELLATION_WINDOW_HOURS must not be negative", op)
	}

	rateLimit, err := envInt("BOOKING_RATE_LIMIT", 10)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if rateLimit <= 0 {
		return nil, fmt.Errorf("%s: BOOKING_RATE_LIMIT must be positive", op)
	}

	idemTTL, err := envDuration("IDEMPOTENCY_TTL", 2*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	bookingCfg := BookingConfig{
		CancellationWindow: time.Duration(windowHours) * time.Hour,
		RateLimit:          rateLimit,
		IdempotencyTTL:     idemTTL,
	}

	location := time.Local
	if tz := os.Getenv("APP_TIMEZONE"); tz != "" {
		location, err = time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("%s: invalid APP_TIMEZONE: %w", op, err)
		}
	}

	var logLevel slog.Level
	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		if err := logLevel.UnmarshalText([]byte(lvl)); err != nil {
			return nil, fmt.Errorf("%s: invalid LOG_LEVEL: %w", op, err)
		}
	}

	return &Config{
		Server:   serverCfg,
		Postgres: postgresCfg,
		Redis:    redisCfg,
		Auth:     authCfg,
		Booking:  bookingCfg,
		App: AppConfig{
			Location: location,
			LogLevel: logLevel,
		},
	}, nil
}

func envInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func envBool(key string, def bool) (bool, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}
