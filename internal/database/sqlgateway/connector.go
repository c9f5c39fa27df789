package sqlgateway

import (
	"context"
	"sync"
	"time"

	"github.com/denismitr/shift/internal/logger"
	"github.com/denismitr/shift/internal/retry"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

const (
	DefaultConnectionAttempts    = 100
	DefaultConnectionTimeout     = 60 * time.Second
	DefaultConnectionAttemptStep = 2 * time.Second
)

type ConnectOptions struct {
	MaxAttempts int
	MaxTimeout  time.Duration
	RetryStep   time.Duration
}

func NewDefaultConnectOptions() *ConnectOptions {
	return &ConnectOptions{
		MaxAttempts: DefaultConnectionAttempts,
		MaxTimeout:  DefaultConnectionTimeout,
		RetryStep:   DefaultConnectionAttemptStep,
	}
}

// RetryingConnector waits for the database to become available and then
// keeps a single pinned connection, so that session level locks and
// in-memory databases survive between the ledger calls of one run
type RetryingConnector struct {
	mu      sync.Mutex
	options *ConnectOptions
	db      *sqlx.DB
	conn    *sqlx.Conn
	lg      logger.Logger
}

func MakeRetryingConnector(db *sqlx.DB, options *ConnectOptions) *RetryingConnector {
	if options == nil {
		options = NewDefaultConnectOptions()
	}

	return &RetryingConnector{db: db, options: options, lg: logger.NullLogger{}}
}

func (c *RetryingConnector) SetLogger(lg logger.Logger) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lg = lg
}

func (c *RetryingConnector) Timeout() time.Duration {
	return c.options.MaxTimeout
}

func (c *RetryingConnector) Connect(ctx context.Context) (*sqlx.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return c.conn, nil
	}

	if c.options.MaxTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.options.MaxTimeout)
		defer cancel()
	}

	b := retry.Backoff{
		Step:        c.options.RetryStep,
		MaxAttempts: c.options.MaxAttempts,
		Notify: func(attempt int, wait time.Duration, err error) {
			c.lg.Debugf("database is not available on attempt %d, retrying in %s: %v", attempt, wait, err)
		},
	}

	var conn *sqlx.Conn
	err := b.Run(ctx, func(attempt int) error {
		result, err := c.db.Connx(ctx)
		if err != nil {
			return retry.Error(errors.Wrap(err, "could not establish DB connection"))
		}

		if err := Ping(ctx, result); err != nil {
			_ = result.Close()
			return retry.Error(err)
		}

		conn = result
		return nil
	})

	if err != nil {
		return nil, err
	}

	c.conn = conn

	return conn, nil
}

func (c *RetryingConnector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}

	conn := c.conn
	c.conn = nil

	if err := conn.Close(); err != nil {
		return errors.Wrap(err, "retrying connector could not close the connection")
	}

	return nil
}
