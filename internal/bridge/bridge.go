// Package bridge relays line-delimited JSON-RPC between a stdio client and
// the server's /http endpoint.
package bridge

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/AltairaLabs/scenebridge-mcp/internal/config"
	"github.com/AltairaLabs/scenebridge-mcp/internal/protocol"
)

const (
	// DefaultTimeout bounds one forwarded request; tool calls can run long
	DefaultTimeout = 300 * time.Second

	userAgent     = "scenebridge-stdio-bridge/1.0"
	maxLineBytes  = 16 << 20
	initialBuffer = 64 << 10
)

// DefaultURL is the server's plain JSON-RPC endpoint on the default bind
var DefaultURL = "http://" + net.JoinHostPort(config.DefaultHost, strconv.Itoa(config.DefaultPort)) + "/http"

// Config configures a Bridge
type Config struct {
	URL     string
	Token   string
	Timeout time.Duration
	Policy  Policy
}

// DefaultConfig returns the bridge defaults
func DefaultConfig() Config {
	return Config{
		URL:     DefaultURL,
		Timeout: DefaultTimeout,
		Policy:  DefaultPolicy(),
	}
}

// Bridge forwards each stdin line as one POST over a pooled connection
type Bridge struct {
	cfg    Config
	client *http.Client
	logger *slog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// New creates a bridge
func New(cfg Config, logger *slog.Logger) (*Bridge, error) {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.Timeout < 0 {
		return nil, errors.New("timeout must not be negative")
	}
	if err := cfg.Policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid retry policy: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	transport := &http.Transport{
		DialContext:         (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:        2,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     90 * time.Second,
	}
	return &Bridge{
		cfg:    cfg,
		client: &http.Client{Transport: transport, Timeout: cfg.Timeout},
		logger: logger.With("component", "bridge"),
		sleep:  sleepContext,
	}, nil
}

// Close releases idle pooled connections
func (b *Bridge) Close() {
	b.client.CloseIdleConnections()
}

// Run relays lines from in to out until in is exhausted or ctx is done.
// Replies are written one per line; notifications produce no output.
func (b *Bridge) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, initialBuffer), maxLineBytes)
	w := bufio.NewWriter(out)

	b.logger.Debug("Bridge ready", "url", b.cfg.URL)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		reply := b.Forward(ctx, line)
		if reply == nil {
			continue
		}
		if _, err := w.Write(append(reply, '\n')); err != nil {
			return fmt.Errorf("write reply: %w", err)
		}
		if err := w.Flush(); err != nil {
			return fmt.Errorf("write reply: %w", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	return nil
}

// Forward relays one message and returns the reply line, or nil when the
// server answered 204 No Content
func (b *Bridge) Forward(ctx context.Context, line []byte) []byte {
	var probe struct {
		ID     json.RawMessage `json:"id"`
		Method string          `json:"method"`
	}
	if err := json.Unmarshal(line, &probe); err != nil {
		b.logger.Warn("Invalid JSON from client", "error", err)
		return encode(protocol.NewErrorResponse(nil, protocol.ParseError(err.Error())))
	}
	log := b.logger.With("method", probe.Method)

	var lastErr error
	for attempt := 0; ; attempt++ {
		status, body, err := b.post(ctx, line)
		if err == nil {
			return b.reply(log, probe.ID, status, body)
		}
		lastErr = err
		if !IsTransient(err) || !b.cfg.Policy.ShouldRetry(attempt) {
			break
		}
		delay := b.cfg.Policy.Delay(attempt)
		log.Debug("Connection error, retrying", "attempt", attempt+1, "delay", delay, "error", err)
		if err := b.sleep(ctx, delay); err != nil {
			lastErr = err
			break
		}
	}

	log.Error("Cannot reach server", "url", b.cfg.URL, "error", lastErr)
	return encode(protocol.NewErrorResponse(probe.ID,
		protocol.NewError(protocol.CodeInternalError, "Connection error: "+lastErr.Error())))
}

func (b *Bridge) reply(log *slog.Logger, id json.RawMessage, status int, body []byte) []byte {
	if status == http.StatusNoContent {
		return nil
	}
	if status >= http.StatusBadRequest {
		// A JSON-RPC error body is still the best answer for the client
		var compact bytes.Buffer
		if len(body) > 0 && json.Compact(&compact, body) == nil && hasErrorMember(compact.Bytes()) {
			return compact.Bytes()
		}
		log.Error("HTTP error from server", "status", status)
		return encode(protocol.NewErrorResponse(id, protocol.NewError(protocol.CodeInternalError,
			fmt.Sprintf("HTTP error: %d %s", status, http.StatusText(status)))))
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, body); err != nil {
		log.Error("Invalid JSON response from server", "error", err)
		return encode(protocol.NewErrorResponse(id,
			protocol.NewError(protocol.CodeParseError, "Invalid JSON response: "+err.Error())))
	}
	return compact.Bytes()
}

func (b *Bridge) post(ctx context.Context, body []byte) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if b.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+b.cfg.Token)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, data, nil
}

func hasErrorMember(raw []byte) bool {
	var probe struct {
		Error json.RawMessage `json:"error"`
	}
	return json.Unmarshal(raw, &probe) == nil && len(probe.Error) > 0
}

func encode(resp *protocol.Response) []byte {
	data, err := json.Marshal(resp)
	if err != nil {
		return []byte(`{"jsonrpc":"2.0","id":null,"error":{"code":-32603,"message":"Internal error: encode reply"}}`)
	}
	return data
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
