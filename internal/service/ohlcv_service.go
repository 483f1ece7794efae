package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/yourorg/ohlcv-service/internal/apperror"
	"github.com/yourorg/ohlcv-service/internal/model"
	"github.com/yourorg/ohlcv-service/internal/repository"
)

// QueryExecutor runs a parameterized query and returns raw rows
type QueryExecutor interface {
	Execute(ctx context.Context, query string, params map[string]interface{}, timeout time.Duration) ([]model.RawRow, error)
}

// OHLCVService handles candle retrieval
type OHLCVService struct {
	executor QueryExecutor
	builder  *repository.QueryBuilder
	timeout  time.Duration
	now      func() time.Time
	logger   *zap.Logger
}

// NewOHLCVService creates a new OHLCV service
func NewOHLCVService(
	executor QueryExecutor,
	builder *repository.QueryBuilder,
	timeout time.Duration,
	logger *zap.Logger,
) *OHLCVService {
	return &OHLCVService{
		executor: executor,
		builder:  builder,
		timeout:  timeout,
		now:      time.Now,
		logger:   logger,
	}
}

// GetRange retrieves one page of candles for a validated query.
// A missing end bound means "up to now".
func (s *OHLCVService) GetRange(ctx context.Context, spec model.QuerySpec) (*model.OHLCVResponse, error) {
	end := s.now().UTC()
	if spec.End != nil {
		end = spec.End.UTC()
	}

	query := s.builder.Range(spec, end)
	rows, elapsed, err := s.execute(ctx, query)
	if err != nil {
		s.logger.Error("Failed to get candles",
			zap.Error(err),
			zap.String("symbol", spec.Symbol))
		return nil, err
	}

	resp, err := BuildRangeResponse(rows, spec.Limit, spec.Offset, elapsed, s.now())
	if err != nil {
		s.logger.Error("Failed to map candle rows", zap.Error(err), zap.String("symbol", spec.Symbol))
		return nil, err
	}

	s.logger.Info("Retrieved candles",
		zap.String("symbol", spec.Symbol),
		zap.Int("records", resp.Metadata.TotalRecords),
		zap.Float64("query_time_ms", resp.Metadata.QueryTimeMS))

	return resp, nil
}

// GetLatest retrieves the most recent candle for a symbol
func (s *OHLCVService) GetLatest(ctx context.Context, symbol string) (*model.OHLCVResponse, error) {
	query := s.builder.Latest(symbol)
	rows, elapsed, err := s.execute(ctx, query)
	if err != nil {
		s.logger.Error("Failed to get latest candle",
			zap.Error(err),
			zap.String("symbol", symbol))
		return nil, err
	}

	resp, err := BuildLatestResponse(symbol, rows, elapsed, s.now())
	if err != nil {
		if errors.Is(err, &apperror.Error{Kind: apperror.KindNotFound}) {
			s.logger.Warn("No data found for symbol", zap.String("symbol", symbol))
		} else {
			s.logger.Error("Failed to map latest candle", zap.Error(err), zap.String("symbol", symbol))
		}
		return nil, err
	}

	s.logger.Info("Retrieved latest candle",
		zap.String("symbol", symbol),
		zap.Float64("query_time_ms", resp.Metadata.QueryTimeMS))

	return resp, nil
}

func (s *OHLCVService) execute(ctx context.Context, query repository.Query) ([]model.RawRow, time.Duration, error) {
	start := time.Now()
	rows, err := s.executor.Execute(ctx, query.Text, query.Params, s.timeout)
	elapsed := time.Since(start)
	if err != nil {
		return nil, elapsed, s.normalizeError(err, query.Text)
	}
	return rows, elapsed, nil
}

// normalizeError keeps execution failures inside the connection/query/timeout
// set. Any failure whose text mentions a timeout is reported as one.
func (s *OHLCVService) normalizeError(err error, query string) *apperror.Error {
	var appErr *apperror.Error
	if !errors.As(err, &appErr) {
		appErr = apperror.NewQuery("Query execution failed", query, nil, err)
	}

	switch appErr.Kind {
	case apperror.KindConnection, apperror.KindQuery:
		text := appErr.Message
		if appErr.Cause != nil {
			text += " " + appErr.Cause.Error()
		}
		if strings.Contains(strings.ToLower(text), "timeout") {
			return apperror.NewTimeout(s.timeout, nil, appErr.Cause)
		}
	}

	return appErr
}
