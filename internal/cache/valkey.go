package cache

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/miradorstack/mirador-threatsim/internal/config"
)

// ValkeyProvider implements Provider against a Valkey/Redis-compatible server.
// Every operation opens a short-lived connection, runs AUTH and SELECT when
// configured, and retries transient network failures with backoff.
type ValkeyProvider struct {
	cfg ValkeyConfig
}

// ValkeyConfig holds connection parameters.
type ValkeyConfig struct {
	Addr         string
	Username     string
	Password     string
	DB           int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	MaxRetries   int
	TLS          bool
}

// ValkeyConfigFrom maps the cache section of the run configuration.
func ValkeyConfigFrom(cfg config.CacheConfig) ValkeyConfig {
	return ValkeyConfig{
		Addr:         cfg.Addr,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		MaxRetries:   cfg.MaxRetries,
		TLS:          cfg.TLS,
	}
}

// NewValkeyProvider pings the server so bad credentials or addresses fail fast.
func NewValkeyProvider(ctx context.Context, cfg ValkeyConfig) (*ValkeyProvider, error) {
	if cfg.Addr == "" {
		return nil, errors.New("valkey addr is required")
	}
	applyDefaults(&cfg)
	p := &ValkeyProvider{cfg: cfg}

	ctx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	err := p.exec(ctx, func(c *respConn) error {
		rep, err := c.do([]byte("PING"))
		if err != nil {
			return err
		}
		if string(rep.data) != "PONG" {
			return fmt.Errorf("unexpected PING reply %q", rep.data)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("valkey ping %s: %w", cfg.Addr, err)
	}
	return p, nil
}

// Get fetches bytes by key, returning ErrCacheMiss when the key is absent.
func (p *ValkeyProvider) Get(ctx context.Context, key string) ([]byte, error) {
	var out []byte
	err := p.exec(ctx, func(c *respConn) error {
		rep, err := c.do([]byte("GET"), []byte(key))
		if err != nil {
			return err
		}
		if rep.kind != '$' {
			return fmt.Errorf("unexpected GET reply type %q", rep.kind)
		}
		if rep.null {
			return ErrCacheMiss
		}
		out = rep.data
		return nil
	})
	return out, err
}

// Set stores bytes, expiring them after ttl when ttl > 0.
func (p *ValkeyProvider) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	args := [][]byte{[]byte("SET"), []byte(key), value}
	if ttl > 0 {
		args = append(args, []byte("PX"), []byte(strconv.FormatInt(ttl.Milliseconds(), 10)))
	}
	return p.exec(ctx, func(c *respConn) error {
		rep, err := c.do(args...)
		if err != nil {
			return err
		}
		if !rep.isOK() {
			return fmt.Errorf("unexpected SET reply %q", rep.data)
		}
		return nil
	})
}

// Del removes a key.
func (p *ValkeyProvider) Del(ctx context.Context, key string) error {
	return p.exec(ctx, func(c *respConn) error {
		_, err := c.do([]byte("DEL"), []byte(key))
		return err
	})
}

// Push runs LPUSH followed by LTRIM when limit > 0. LPUSH is not idempotent,
// so it is attempted once; only the trim is retried.
func (p *ValkeyProvider) Push(ctx context.Context, key string, value []byte, limit int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := p.once(ctx, func(c *respConn) error {
		_, err := c.do([]byte("LPUSH"), []byte(key), value)
		return err
	})
	if err != nil || limit <= 0 {
		return err
	}
	return p.exec(ctx, func(c *respConn) error {
		rep, err := c.do([]byte("LTRIM"), []byte(key), []byte("0"), []byte(strconv.Itoa(limit-1)))
		if err != nil {
			return err
		}
		if !rep.isOK() {
			return fmt.Errorf("unexpected LTRIM reply %q", rep.data)
		}
		return nil
	})
}

// Range runs LRANGE from the head of the list.
func (p *ValkeyProvider) Range(ctx context.Context, key string, limit int) ([][]byte, error) {
	stop := "-1"
	if limit > 0 {
		stop = strconv.Itoa(limit - 1)
	}
	var out [][]byte
	err := p.exec(ctx, func(c *respConn) error {
		rep, err := c.do([]byte("LRANGE"), []byte(key), []byte("0"), []byte(stop))
		if err != nil {
			return err
		}
		if rep.kind != '*' {
			return fmt.Errorf("unexpected LRANGE reply type %q", rep.kind)
		}
		out = make([][]byte, 0, len(rep.items))
		for _, item := range rep.items {
			out = append(out, item.data)
		}
		return nil
	})
	return out, err
}

// Close is a no-op; connections are not pooled.
func (p *ValkeyProvider) Close() error { return nil }

func (p *ValkeyProvider) exec(ctx context.Context, fn func(*respConn) error) error {
	var lastErr error
	for attempt := 0; attempt < p.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := wait(ctx, backoff(attempt-1)); err != nil {
				return err
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = p.once(ctx, fn)
		if lastErr == nil || !retryable(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

func (p *ValkeyProvider) once(ctx context.Context, fn func(*respConn) error) error {
	c, err := p.connect(ctx)
	if err != nil {
		return err
	}
	defer c.close()
	if err := p.handshake(c); err != nil {
		return err
	}
	return fn(c)
}

func (p *ValkeyProvider) connect(ctx context.Context) (*respConn, error) {
	dialer := &net.Dialer{Timeout: p.cfg.DialTimeout}
	var (
		conn net.Conn
		err  error
	)
	if p.cfg.TLS {
		td := &tls.Dialer{NetDialer: dialer, Config: &tls.Config{MinVersion: tls.VersionTLS12, ServerName: serverName(p.cfg.Addr)}}
		conn, err = td.DialContext(ctx, "tcp", p.cfg.Addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", p.cfg.Addr)
	}
	if err != nil {
		return nil, err
	}
	return newRESPConn(conn, p.cfg.ReadTimeout, p.cfg.WriteTimeout), nil
}

func (p *ValkeyProvider) handshake(c *respConn) error {
	if p.cfg.Password != "" {
		args := [][]byte{[]byte("AUTH")}
		if p.cfg.Username != "" {
			args = append(args, []byte(p.cfg.Username))
		}
		args = append(args, []byte(p.cfg.Password))
		rep, err := c.do(args...)
		if err != nil {
			return fmt.Errorf("auth: %w", err)
		}
		if !rep.isOK() {
			return fmt.Errorf("auth: unexpected reply %q", rep.data)
		}
	}
	if p.cfg.DB > 0 {
		rep, err := c.do([]byte("SELECT"), []byte(strconv.Itoa(p.cfg.DB)))
		if err != nil {
			return fmt.Errorf("select db %d: %w", p.cfg.DB, err)
		}
		if !rep.isOK() {
			return fmt.Errorf("select db %d: unexpected reply %q", p.cfg.DB, rep.data)
		}
	}
	return nil
}

func applyDefaults(cfg *ValkeyConfig) {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 2 * time.Second
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 500 * time.Millisecond
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 500 * time.Millisecond
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 1
	}
}

func backoff(attempt int) time.Duration {
	return time.Duration(1<<attempt) * 25 * time.Millisecond
}

func wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func retryable(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func serverName(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
