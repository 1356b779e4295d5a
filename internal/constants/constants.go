package constants

import "time"

// Identity resolution windows. Slow mode trades throughput for staying far
// below the lookup source's rate limit.
const (
	ResolveBatchSize      = 10
	ResolveBatchDelay     = 300 * time.Millisecond
	SlowResolveBatchSize  = 1
	SlowResolveBatchDelay = 1000 * time.Millisecond

	ResolveRetries     = 2
	SlowResolveRetries = 5
	ResolveThrottle    = 300 * time.Millisecond
	ResolveJitterMax   = 150 * time.Millisecond
)

// Monthly merge secondary family resolution.
const (
	FamilyResolveConcurrency = 6
	FamilyResolveBudget      = 12 * time.Second
)

const (
	ExternalAPITimeout = 10 * time.Second
	DatabaseTimeout    = 5 * time.Second
	RequestTimeout     = 30 * time.Second
	ProcessTimeout     = 5 * time.Minute
)

const (
	DBMaxOpenConns    = 100
	DBMaxIdleConns    = 10
	DBConnMaxLifetime = 1 * time.Hour
	DBMaxIdleTime     = 10 * time.Minute
)

const (
	ShutdownTimeout = 5 * time.Second
)
