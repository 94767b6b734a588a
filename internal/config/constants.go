package config

import "time"

// Database connection pool settings
const (
	DBMaxOpenConns    = 25
	DBMaxIdleConns    = 5
	DBConnMaxLifetime = 5 * time.Minute
)

// HTTP server timeouts
const (
	ServerRequestTimeout  = 60 * time.Second
	ServerReadTimeout     = 15 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Database ping timeout for health checks
const DBPingTimeout = 5 * time.Second

// Background job intervals
const (
	PresenceSweepInterval = 30 * time.Second
	// PresenceRetention is how long an offline entry is kept before the sweeper drops it.
	PresenceRetention = 24 * time.Hour
)

// Rate limiting windows
const (
	LoginRateLimitWindow   = time.Minute
	MessageRateLimitWindow = time.Minute
)

// Access code generation
const (
	AccessCodeLength       = 8
	AccessCodeMaxAttempts  = 10
	SuggestionWindow       = 5
	MaxMessageContentBytes = 4000
)
