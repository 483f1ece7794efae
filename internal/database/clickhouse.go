// Package database manages the ClickHouse connection pool and query execution.
package database

import (
	"context"
	"crypto/tls"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/cenkalti/backoff/v4"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/yourorg/ohlcv-service/internal/apperror"
	"github.com/yourorg/ohlcv-service/internal/config"
	"github.com/yourorg/ohlcv-service/internal/model"
)

// paramTimeLayout matches DateTime64(6) parameters
const paramTimeLayout = "2006-01-02 15:04:05.000000"

// Pool executes parameterized queries with bounded concurrency
type Pool struct {
	db       *sqlx.DB
	info     config.ClickHouseConfig
	sem      *semaphore.Weighted
	capacity int64
	closed   atomic.Bool

	// baseCtx is cancelled when shutdown gives up waiting for in-flight queries
	baseCtx context.Context
	cancel  context.CancelFunc

	logger *zap.Logger
}

// Open creates a pool backed by the ClickHouse database/sql driver.
// No connection is made until Connect or the first query.
func Open(chCfg config.ClickHouseConfig, poolCfg config.PoolConfig, logger *zap.Logger) *Pool {
	opts := &clickhouse.Options{
		Addr: []string{chCfg.Addr()},
		Auth: clickhouse.Auth{
			Database: chCfg.Database,
			Username: chCfg.User,
			Password: chCfg.Password,
		},
		Protocol:        clickhouse.HTTP,
		DialTimeout:     poolCfg.Timeout,
		MaxOpenConns:    poolCfg.Capacity(),
		MaxIdleConns:    poolCfg.Size,
		ConnMaxLifetime: poolCfg.Recycle,
	}
	if strings.EqualFold(chCfg.Protocol, "native") {
		opts.Protocol = clickhouse.Native
	}
	if chCfg.Secure {
		opts.TLS = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	db := sqlx.NewDb(clickhouse.OpenDB(opts), "clickhouse")
	db.SetMaxOpenConns(poolCfg.Capacity())
	db.SetMaxIdleConns(poolCfg.Size)
	db.SetConnMaxLifetime(poolCfg.Recycle)

	return NewPool(db, chCfg, poolCfg.Capacity(), logger)
}

// NewPool wraps an existing handle. capacity bounds concurrent executions.
func NewPool(db *sqlx.DB, info config.ClickHouseConfig, capacity int, logger *zap.Logger) *Pool {
	if capacity < 1 {
		capacity = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		db:       db,
		info:     info,
		sem:      semaphore.NewWeighted(int64(capacity)),
		capacity: int64(capacity),
		baseCtx:  ctx,
		cancel:   cancel,
		logger:   logger,
	}
}

// Connect verifies connectivity, retrying with exponential backoff for up to maxWait
func (p *Pool) Connect(ctx context.Context, maxWait time.Duration) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxElapsedTime = maxWait

	op := func() error {
		return p.db.PingContext(ctx)
	}
	notify := func(err error, next time.Duration) {
		p.logger.Warn("ClickHouse not reachable, retrying",
			zap.Error(err),
			zap.String("addr", p.info.Addr()),
			zap.Duration("retry_in", next))
	}

	if err := backoff.RetryNotify(op, backoff.WithContext(b, ctx), notify); err != nil {
		return apperror.NewConnection("Failed to connect to ClickHouse", p.connDetails(), err)
	}

	p.logger.Info("Connected to ClickHouse",
		zap.String("addr", p.info.Addr()),
		zap.String("database", p.info.Database))
	return nil
}

// Execute runs a query template with named parameters and returns every row.
// Failures are reported as connection, query or timeout errors.
func (p *Pool) Execute(ctx context.Context, query string, params map[string]interface{}, timeout time.Duration) ([]model.RawRow, error) {
	if p.closed.Load() {
		return nil, apperror.NewConnection("Database connection pool is closed", p.connDetails(), nil)
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(p.baseCtx, cancel)
	defer stop()

	start := time.Now()
	queryType := queryTypeOf(query)

	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, p.classifyError(err, query, timeout, time.Since(start))
	}
	defer p.sem.Release(1)

	settings := clickhouse.Settings{}
	if secs := int(math.Ceil(timeout.Seconds())); secs > 0 {
		settings["max_execution_time"] = secs
	}
	queryCtx := clickhouse.Context(ctx,
		clickhouse.WithParameters(toServerParams(params)),
		clickhouse.WithSettings(settings),
	)

	rows, err := p.db.QueryxContext(queryCtx, query)
	if err != nil {
		return nil, p.failed(queryType, err, query, timeout, start)
	}
	defer rows.Close()

	var result []model.RawRow
	for rows.Next() {
		values, err := rows.SliceScan()
		if err != nil {
			return nil, p.failed(queryType, err, query, timeout, start)
		}
		result = append(result, values)
	}
	if err := rows.Err(); err != nil {
		return nil, p.failed(queryType, err, query, timeout, start)
	}

	p.logger.Info("Database query executed",
		zap.String("query_type", queryType),
		zap.Float64("duration_ms", roundMillis(time.Since(start))),
		zap.Int("records_returned", len(result)))

	return result, nil
}

func (p *Pool) failed(queryType string, err error, query string, timeout time.Duration, start time.Time) error {
	elapsed := time.Since(start)
	p.logger.Error("Database query failed",
		zap.String("query_type", queryType),
		zap.Float64("duration_ms", roundMillis(elapsed)),
		zap.Error(err))
	return p.classifyError(err, query, timeout, elapsed)
}

// HealthCheck pings the database and reports its status
func (p *Pool) HealthCheck(ctx context.Context) model.HealthCheck {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	start := time.Now()
	if err := p.db.PingContext(ctx); err != nil {
		p.logger.Error("Health check failed", zap.Error(err))
		return model.HealthCheck{
			Status:   model.CheckDown,
			Error:    err.Error(),
			Database: p.info.Database,
		}
	}

	ms := roundMillis(time.Since(start))
	return model.HealthCheck{
		Status:         model.CheckUp,
		ResponseTimeMS: &ms,
		Database:       p.info.Database,
	}
}

// Close stops accepting queries, waits for in-flight ones until ctx is done,
// cancels whatever is still running and closes the pooled connections.
func (p *Pool) Close(ctx context.Context) error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}

	if err := p.sem.Acquire(ctx, p.capacity); err != nil {
		p.logger.Warn("Shutdown deadline reached, cancelling in-flight queries", zap.Error(err))
	}
	p.cancel()

	if err := p.db.Close(); err != nil {
		p.logger.Warn("Error closing database connection", zap.Error(err))
		return err
	}

	p.logger.Info("Database connections closed")
	return nil
}

func (p *Pool) connDetails() map[string]interface{} {
	return map[string]interface{}{
		"host":     p.info.Host,
		"port":     p.info.Port,
		"database": p.info.Database,
	}
}

// classifyError maps a driver failure onto the connection/query/timeout taxonomy
func (p *Pool) classifyError(err error, query string, timeout time.Duration, elapsed time.Duration) *apperror.Error {
	var appErr *apperror.Error
	if errors.As(err, &appErr) {
		return appErr
	}

	msg := strings.ToLower(err.Error())

	if errors.Is(err, context.DeadlineExceeded) || strings.Contains(msg, "timeout") {
		return apperror.NewTimeout(timeout, nil, err)
	}

	var exception *clickhouse.Exception
	if errors.As(err, &exception) {
		return apperror.NewQuery("Query execution failed", query, map[string]interface{}{
			"execution_time_ms": roundMillis(elapsed),
			"exception_code":    exception.Code,
		}, err)
	}

	if errors.Is(err, context.Canceled) {
		return apperror.NewConnection("Query was cancelled before completion", p.connDetails(), err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, io.EOF) ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "no such host") ||
		strings.Contains(msg, "connection reset") {
		return apperror.NewConnection("Lost connection to ClickHouse", p.connDetails(), err)
	}

	return apperror.NewQuery("Query execution failed", query, map[string]interface{}{
		"execution_time_ms": roundMillis(elapsed),
	}, err)
}

// toServerParams renders typed values in the text form ClickHouse expects
// for server-side {name:Type} parameters.
func toServerParams(params map[string]interface{}) clickhouse.Parameters {
	out := make(clickhouse.Parameters, len(params))
	for k, v := range params {
		switch val := v.(type) {
		case string:
			out[k] = val
		case time.Time:
			out[k] = val.UTC().Format(paramTimeLayout)
		case uint32:
			out[k] = strconv.FormatUint(uint64(val), 10)
		case int:
			out[k] = strconv.Itoa(val)
		case int64:
			out[k] = strconv.FormatInt(val, 10)
		case float64:
			out[k] = strconv.FormatFloat(val, 'f', -1, 64)
		default:
			out[k] = fmt.Sprint(val)
		}
	}
	return out
}

func queryTypeOf(query string) string {
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return "UNKNOWN"
	}
	return strings.ToUpper(fields[0])
}

func roundMillis(d time.Duration) float64 {
	return math.Round(float64(d)/float64(time.Millisecond)*100) / 100
}
