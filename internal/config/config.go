// Package config loads application configuration from environment variables.
package config

import (
	"log"
	"os"
	"strconv"
)

// Config holds all runtime configuration values. Each field corresponds
// to an environment variable. The token and lockout policy numbers have
// defaults matching the deployed policy (15-minute access tokens,
// 7-day refresh tokens, lockout after 10 failures for 30 minutes);
// database credentials and the JWT secret are required.
type Config struct {
	Env       string // application environment (e.g. "dev", "prod")
	Port      string // HTTP port to listen on
	DBUser    string // database username
	DBPass    string // database password (optional)
	DBHost    string // database host address
	DBPort    string // database port number
	DBName    string // database name
	JWTSecret string // secret used to sign access tokens

	AccessTTLMin       int // access token time-to-live in minutes
	RefreshTTLDays     int // refresh token time-to-live in days
	BcryptCost         int // bcrypt cost for password hashing
	LockoutMaxAttempts int // failed logins before the account locks
	LockoutDurationMin int // lock duration in minutes
}

// Load reads configuration from environment variables. Required
// variables are enforced by must() and missing values cause the program
// to exit with a fatal log message.
func Load() Config {
	return Config{
		Env:       must("APP_ENV"),
		Port:      must("APP_PORT"),
		DBUser:    must("DB_USER"),
		DBPass:    os.Getenv("DB_PASS"),
		DBHost:    must("DB_HOST"),
		DBPort:    must("DB_PORT"),
		DBName:    must("DB_NAME"),
		JWTSecret: must("JWT_SECRET"),

		AccessTTLMin:       intOr("ACCESS_TOKEN_TTL_MIN", 15),
		RefreshTTLDays:     intOr("REFRESH_TOKEN_TTL_DAYS", 7),
		BcryptCost:         intOr("BCRYPT_COST", 12),
		LockoutMaxAttempts: intOr("LOCKOUT_MAX_ATTEMPTS", 10),
		LockoutDurationMin: intOr("LOCKOUT_DURATION_MIN", 30),
	}
}

// must retrieves the value of a required environment variable. If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

// intOr retrieves an integer environment variable, falling back to the
// given default when unset. A non-numeric value is fatal.
func intOr(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Fatalf("invalid int for %s: %q", key, v)
	}
	return n
}
