package constants

import "time"

const (
	ConsoleRequestTimeout = 60 * time.Second
	HTTPProbeTimeout      = 10 * time.Second
	DNSTimeout            = 5 * time.Second
	TCPTimeout            = 15 * time.Second

	CleanupInterval   = 5 * time.Minute
	RetryBackoff      = 30 * time.Second
	IdlePollInterval  = 15 * time.Second
	ProbeInterval     = 30 * time.Second
	SiteCacheTTL      = 30 * time.Minute
	ShutdownTimeout   = 30 * time.Second
	StoreWriteTimeout = 5 * time.Second
	StartupTimeout    = 10 * time.Second
	LogoutTimeout     = 10 * time.Second
)

const (
	DefaultConsolePort   = 3780
	DefaultProbeAttempts = 20
)
