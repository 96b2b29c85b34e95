package httpapi

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/AltairaLabs/scenebridge-mcp/internal/config"
	orderedmap "github.com/wk8/go-ordered-map/v2"
	"golang.org/x/time/rate"
)

// clientLimiters keeps one token bucket per client. Buckets are ordered by
// last use, so idle ones are expired from the front without a full scan.
type clientLimiters struct {
	limit   rate.Limit
	burst   int
	idleTTL time.Duration

	mu      sync.Mutex
	buckets *orderedmap.OrderedMap[string, *clientBucket]
}

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// newClientLimiters returns nil when limiting is disabled; a nil value
// allows everything
func newClientLimiters(cfg config.RateLimitConfig) *clientLimiters {
	if !cfg.Enabled || cfg.RPS <= 0 {
		return nil
	}
	burst := max(cfg.Burst, 1)
	idleTTL := cfg.IdleTTL
	if idleTTL <= 0 {
		idleTTL = config.DefaultRateLimitIdleTTL
	}
	return &clientLimiters{
		limit:   rate.Limit(cfg.RPS),
		burst:   burst,
		idleTTL: idleTTL,
		buckets: orderedmap.New[string, *clientBucket](),
	}
}

func (c *clientLimiters) allow(client string, now time.Time) bool {
	if c == nil {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.expireIdle(now)
	b, err := c.buckets.GetAndMoveToBack(client)
	if err != nil {
		b = &clientBucket{limiter: rate.NewLimiter(c.limit, c.burst)}
		c.buckets.Set(client, b)
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

// expireIdle drops buckets unused for longer than idleTTL. Caller holds mu.
func (c *clientLimiters) expireIdle(now time.Time) {
	cutoff := now.Add(-c.idleTTL)
	for oldest := c.buckets.Oldest(); oldest != nil && oldest.Value.lastSeen.Before(cutoff); oldest = c.buckets.Oldest() {
		c.buckets.Delete(oldest.Key)
	}
}

func (c *clientLimiters) tracked() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buckets.Len()
}

// clientID names the caller for limiting: a digest of its bearer token when
// it sent one, otherwise its remote host.
func clientID(r *http.Request, token string) string {
	if token != "" {
		sum := sha256.Sum256([]byte(token))
		return "token:" + hex.EncodeToString(sum[:8])
	}
	remote := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(remote); err == nil {
		remote = host
	}
	if remote == "" {
		return "addr:unknown"
	}
	return "addr:" + remote
}
