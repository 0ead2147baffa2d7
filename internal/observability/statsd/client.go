// Package statsd writes bulk job metrics as DogStatsD lines over UDP.
package statsd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
)

// DefaultPrefix namespaces every metric when Config.Prefix is empty.
const DefaultPrefix = "bulkmail"

const dialTimeout = 5 * time.Second

// Sink receives the job, batch and recovery metrics emitted by the executor,
// the job runner and the recovery daemon.
type Sink interface {
	Count(name string, value int64, tags map[string]string)
	Gauge(name string, value float64, tags map[string]string)
	Timing(name string, value time.Duration, tags map[string]string)
}

// Config describes the StatsD endpoint and the tags stamped on every line.
type Config struct {
	Address string
	Prefix  string
	Logger  *slog.Logger

	// Tags are added to every metric. A per-metric tag with the same key wins.
	// "service" defaults to the prefix.
	Tags map[string]string
}

// Client is a Sink writing to a UDP socket. Methods on a nil Client are no-ops.
// It is safe for concurrent use.
type Client struct {
	prefix string
	tags   map[string]string
	logger *slog.Logger

	mu   sync.Mutex
	conn net.Conn
}

var _ Sink = (*Client)(nil)

// NewClient dials addr. UDP dialing does not contact the server, so a missing
// collector only shows up as dropped writes.
func NewClient(cfg Config) (*Client, error) {
	address := strings.TrimSpace(cfg.Address)
	if address == "" {
		return nil, errors.New("statsd: address is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	conn, err := (&net.Dialer{}).DialContext(ctx, "udp", address)
	if err != nil {
		return nil, fmt.Errorf("statsd dial %s: %w", address, err)
	}
	return newClient(cfg, conn), nil
}

func newClient(cfg Config, conn net.Conn) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	prefix := strings.Trim(strings.TrimSpace(cfg.Prefix), ".")
	if prefix == "" {
		prefix = DefaultPrefix
	}
	tags := map[string]string{"service": prefix}
	mergeTags(tags, cfg.Tags)
	return &Client{prefix: prefix, tags: tags, logger: logger, conn: conn}
}

// Count increments a counter.
func (c *Client) Count(name string, value int64, tags map[string]string) {
	c.write(name, strconv.FormatInt(value, 10), "c", tags)
}

// Gauge sets a gauge.
func (c *Client) Gauge(name string, value float64, tags map[string]string) {
	c.write(name, strconv.FormatFloat(value, 'f', -1, 64), "g", tags)
}

// Timing records a duration in milliseconds.
func (c *Client) Timing(name string, value time.Duration, tags map[string]string) {
	ms := float64(value) / float64(time.Millisecond)
	c.write(name, strconv.FormatFloat(ms, 'f', -1, 64), "ms", tags)
}

// Close releases the socket. Later writes are dropped.
func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

func (c *Client) write(name, value, kind string, tags map[string]string) {
	if c == nil {
		return
	}
	line := c.line(name, value, kind, tags)
	if line == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return
	}
	if _, err := c.conn.Write([]byte(line)); err != nil {
		c.logger.Debug("statsd write failed", "metric", name, "error", err)
	}
}

// line renders prefix.name:value|kind|#k:v,... with tags sorted by key.
func (c *Client) line(name, value, kind string, tags map[string]string) string {
	name = metricName(name)
	if name == "" {
		return ""
	}

	merged := maps.Clone(c.tags)
	mergeTags(merged, tags)

	var b strings.Builder
	b.WriteString(c.prefix)
	b.WriteByte('.')
	b.WriteString(name)
	b.WriteByte(':')
	b.WriteString(value)
	b.WriteByte('|')
	b.WriteString(kind)
	for i, k := range slices.Sorted(maps.Keys(merged)) {
		if i == 0 {
			b.WriteString("|#")
		} else {
			b.WriteByte(',')
		}
		b.WriteString(k)
		b.WriteByte(':')
		b.WriteString(merged[k])
	}
	return b.String()
}

// metricName maps characters the line protocol reserves to underscores and
// collapses empty dot segments.
func metricName(name string) string {
	name = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '/', ':', '|', '@', '#', ',':
			return '_'
		}
		return r
	}, strings.TrimSpace(name))
	parts := strings.FieldsFunc(name, func(r rune) bool { return r == '.' })
	return strings.Join(parts, ".")
}

func mergeTags(dst, src map[string]string) {
	for k, v := range src {
		if k = strings.TrimSpace(k); k != "" {
			dst[k] = strings.TrimSpace(v)
		}
	}
}
