package config

// Default size and rate limits
const (
	// DefaultHost is the loopback bind address
	DefaultHost = "127.0.0.1"

	// DefaultPort is the default HTTP port
	DefaultPort = 12097

	// MinPort and MaxPort bound the configurable port range
	MinPort = 1024
	MaxPort = 65535

	// DefaultPendingCapacity is the maximum number of outstanding host jobs
	DefaultPendingCapacity = 50

	// DefaultSessionQueueSize is the per-session outbound buffer
	DefaultSessionQueueSize = 500

	// DefaultOutputLimit caps tool output returned to clients (2 MiB)
	DefaultOutputLimit = 2 * 1024 * 1024

	// DefaultMaxBodyBytes caps inbound JSON-RPC request bodies (1 MiB)
	DefaultMaxBodyBytes = 1 << 20

	// DefaultRateLimitRPS is the sustained per-client request rate
	DefaultRateLimitRPS = 50

	// DefaultRateLimitBurst is the per-client burst allowance
	DefaultRateLimitBurst = 100

	// MinRecommendedTokenLength triggers a warning for shorter auth tokens
	MinRecommendedTokenLength = 16
)
