package conf

import (
	"google.golang.org/protobuf/types/known/durationpb"
)

// Bootstrap is the root configuration of the ShipRelay service.
type Bootstrap struct {
	Server *Server
	Data   *Data
	Auth   *Auth
	Client *Client
	Engine *Engine
	Log    *Log
}

// Server holds transport server configuration.
type Server struct {
	Http *Server_HTTP
}

// Server_HTTP holds HTTP server configuration.
type Server_HTTP struct {
	Network string
	Addr    string
	Timeout *durationpb.Duration
}

// Data holds data source configuration.
type Data struct {
	Database *Data_Database
	Redis    *Data_Redis
}

// Data_Database holds MySQL configuration.
type Data_Database struct {
	Driver string
	Source string
}

// Data_Redis holds Redis configuration.
type Data_Redis struct {
	Network      string
	Addr         string
	ReadTimeout  *durationpb.Duration
	WriteTimeout *durationpb.Duration
}

// Auth holds admin authentication and credential encryption configuration.
type Auth struct {
	AdminToken string
	Encryption *Auth_Encryption
}

// Auth_Encryption holds the AES key used to encrypt stored integration
// credentials.
type Auth_Encryption struct {
	Key string
}

// Client holds the resilient integration client defaults. Per-integration
// values (requests per minute) live on the integration record itself.
type Client struct {
	// RequestTimeout bounds each transport call.
	RequestTimeout *durationpb.Duration
	// MaxRetries bounds the retry pipeline per call.
	MaxRetries int
	// BaseDelay is the exponential backoff base.
	BaseDelay *durationpb.Duration
	// BreakerThreshold is consecutive failures before a breaker opens.
	BreakerThreshold int
	// BreakerTimeout is how long an open breaker waits before a half-open probe.
	BreakerTimeout *durationpb.Duration
	// RateLimitWait is the RateLimited auto-fix cooldown when the server
	// sends no Retry-After.
	RateLimitWait *durationpb.Duration
	// ErrorCeiling disables integration sync once consecutive errors exceed it.
	ErrorCeiling int
	// ProxyURL routes outbound integration traffic through a SOCKS5 or
	// HTTP proxy when set.
	ProxyURL string
}

// Engine holds automation rule engine configuration.
type Engine struct {
	// ExclusiveTagSets are named collections of mutually exclusive tags;
	// adding one member removes any sibling already present.
	ExclusiveTagSets map[string][]string
	// RuleCacheSize bounds the parsed-rule LRU cache.
	RuleCacheSize int
}

// Log holds logging configuration.
type Log struct {
	Level      string
	Format     string
	Env        string
	OutputFile string
}
