package rabbitmq

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"golang-mq-relay/internal/domain"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Credentials are passed to the broker as PLAIN auth. Empty credentials
// leave authentication to the userinfo of the broker URL.
type Credentials struct {
	Username string
	Password string
}

func (c Credentials) empty() bool { return c.Username == "" && c.Password == "" }

// ConnectionManager owns one shared connection per broker URL.
type ConnectionManager struct {
	mu      sync.Mutex
	handles map[string]*Handle

	dial             dialFunc
	sessionCacheSize int
	retries          int
	retryDelay       time.Duration
	dialTimeout      time.Duration
	connectionName   string
	log              *slog.Logger
}

// ConnectionOption configures the ConnectionManager
type ConnectionOption func(*ConnectionManager)

func WithLogger(log *slog.Logger) ConnectionOption {
	return func(cm *ConnectionManager) {
		cm.log = log
	}
}

// WithSessionCacheSize bounds the sessions of every handle.
func WithSessionCacheSize(size int) ConnectionOption {
	return func(cm *ConnectionManager) {
		cm.sessionCacheSize = size
	}
}

// WithConnectRetries sets how many extra dial attempts Connect makes.
func WithConnectRetries(retries int) ConnectionOption {
	return func(cm *ConnectionManager) {
		cm.retries = retries
	}
}

// WithRetryDelay sets the base delay of the connect backoff.
func WithRetryDelay(delay time.Duration) ConnectionOption {
	return func(cm *ConnectionManager) {
		cm.retryDelay = delay
	}
}

func WithDialTimeout(timeout time.Duration) ConnectionOption {
	return func(cm *ConnectionManager) {
		cm.dialTimeout = timeout
	}
}

// WithConnectionName is shown in the broker's management UI.
func WithConnectionName(name string) ConnectionOption {
	return func(cm *ConnectionManager) {
		cm.connectionName = name
	}
}

func withDialer(dial dialFunc) ConnectionOption {
	return func(cm *ConnectionManager) {
		cm.dial = dial
	}
}

func NewConnectionManager(options ...ConnectionOption) *ConnectionManager {
	cm := &ConnectionManager{
		handles:          make(map[string]*Handle),
		dial:             dialAMQP,
		sessionCacheSize: DefaultSessionCacheSize,
		retryDelay:       time.Second,
		dialTimeout:      30 * time.Second,
		log:              slog.Default(),
	}

	for _, opt := range options {
		opt(cm)
	}

	return cm
}

// Connect returns the handle for url, dialing only when no live handle is
// cached. Dial failures come back as *domain.ConnectionError.
func (cm *ConnectionManager) Connect(ctx context.Context, url string, creds Credentials) (*Handle, error) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if h, ok := cm.handles[url]; ok {
		if !h.IsClosed() {
			return h, nil
		}
		h.Close()
		delete(cm.handles, url)
	}

	conn, attempts, err := cm.dialWithRetry(ctx, url, cm.amqpConfig(creds))
	if err != nil {
		return nil, &domain.ConnectionError{
			URL:      SanitizeURL(url),
			Attempts: attempts,
			Err:      err,
		}
	}

	h := newHandle(url, conn, cm.sessionCacheSize, cm.log)
	cm.handles[url] = h

	cm.log.Info("connected to broker",
		"url", SanitizeURL(url),
		"attempts", attempts,
		"session_cache_size", cm.sessionCacheSize,
	)
	return h, nil
}

// Close closes every cached handle.
func (cm *ConnectionManager) Close() error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	var firstErr error
	for url, h := range cm.handles {
		if err := h.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(cm.handles, url)
	}
	return firstErr
}

func (cm *ConnectionManager) amqpConfig(creds Credentials) amqp.Config {
	cfg := amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
	}
	if !creds.empty() {
		cfg.SASL = []amqp.Authentication{&amqp.PlainAuth{
			Username: creds.Username,
			Password: creds.Password,
		}}
	}
	if cm.connectionName != "" {
		cfg.Properties = amqp.NewConnectionProperties()
		cfg.Properties.SetClientConnectionName(cm.connectionName)
	}
	return cfg
}

func (cm *ConnectionManager) dialWithRetry(ctx context.Context, url string, cfg amqp.Config) (connection, int, error) {
	var lastErr error
	attempts := 0
	for attempt := 0; attempt <= cm.retries; attempt++ {
		if attempt > 0 {
			delay := cm.backoff(attempt - 1)
			cm.log.Warn("broker connect failed, retrying",
				"url", SanitizeURL(url),
				"attempt", attempt,
				"next_retry_in", delay,
				"err", lastErr,
			)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, attempts, ctx.Err()
			}
		}

		attempts++
		conn, err := cm.dialContext(ctx, url, cfg)
		if err == nil {
			return conn, attempts, nil
		}
		lastErr = err
	}
	return nil, attempts, lastErr
}

// dialContext bounds a dial by ctx and the dial timeout. A connection that
// arrives after the deadline is closed.
func (cm *ConnectionManager) dialContext(ctx context.Context, url string, cfg amqp.Config) (connection, error) {
	dialCtx, cancel := context.WithTimeout(ctx, cm.dialTimeout)
	defer cancel()

	type result struct {
		conn connection
		err  error
	}
	out := make(chan result, 1)
	go func() {
		conn, err := cm.dial(url, cfg)
		out <- result{conn: conn, err: err}
	}()

	select {
	case r := <-out:
		return r.conn, r.err
	case <-dialCtx.Done():
		go func() {
			if r := <-out; r.conn != nil {
				r.conn.Close()
			}
		}()
		return nil, dialCtx.Err()
	}
}

// backoff doubles the base delay per attempt, capped at one minute, with ±25% jitter.
func (cm *ConnectionManager) backoff(attempt int) time.Duration {
	base := cm.retryDelay
	if base <= 0 {
		base = time.Second
	}
	const maxDelay = time.Minute

	delay := base << uint(attempt)
	if delay <= 0 || delay > maxDelay {
		delay = maxDelay
	}
	jitter := time.Duration(float64(delay) * 0.25)
	if jitter <= 0 {
		return delay
	}
	return delay - jitter/2 + time.Duration(rand.Int63n(int64(jitter)))
}

// Handle is a live broker connection together with its session pool.
type Handle struct {
	url    string
	conn   connection
	pool   *SessionPool
	closed atomic.Bool
	lost   chan struct{}
	log    *slog.Logger
}

func newHandle(url string, conn connection, sessionCacheSize int, log *slog.Logger) *Handle {
	h := &Handle{
		url:  url,
		conn: conn,
		pool: NewSessionPool(sessionCacheSize, conn.Channel),
		lost: make(chan struct{}),
		log:  log,
	}

	notify := conn.NotifyClose(make(chan *amqp.Error, 1))
	go func() {
		if err, ok := <-notify; ok && err != nil {
			h.log.Error("broker connection closed", "url", SanitizeURL(url), "err", err)
		}
		h.closed.Store(true)
		close(h.lost)
	}()

	return h
}

// Acquire borrows a session, blocking while the pool is exhausted.
func (h *Handle) Acquire(ctx context.Context) (*Session, error) {
	if h.IsClosed() {
		return nil, domain.ErrNotConnected
	}
	return h.pool.Acquire(ctx)
}

// Release returns a session borrowed with Acquire.
func (h *Handle) Release(s *Session) { h.pool.Release(s) }

func (h *Handle) Stats() PoolStats { return h.pool.Stats() }

// Lost is closed once the underlying connection has gone away, whether the
// broker dropped it or Close was called.
func (h *Handle) Lost() <-chan struct{} { return h.lost }

func (h *Handle) IsClosed() bool {
	return h.closed.Load() || h.conn.IsClosed()
}

func (h *Handle) Close() error {
	h.pool.Close()
	h.closed.Store(true)
	if h.conn.IsClosed() {
		return nil
	}
	return h.conn.Close()
}
