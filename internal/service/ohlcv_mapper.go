package service

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/yourorg/ohlcv-service/internal/apperror"
	"github.com/yourorg/ohlcv-service/internal/model"
	"github.com/yourorg/ohlcv-service/internal/utils"
)

// MapRows converts raw candle rows into records
func MapRows(rows []model.RawRow) ([]model.OHLCVRecord, error) {
	records := make([]model.OHLCVRecord, 0, len(rows))
	for i, row := range rows {
		record, err := mapRow(row)
		if err != nil {
			return nil, apperror.NewInternal(fmt.Errorf("row %d: %w", i, err))
		}
		records = append(records, record)
	}
	return records, nil
}

// BuildMetadata computes page metadata. A full page is taken to mean more
// rows may follow; no count query is issued.
func BuildMetadata(total, limit, offset int, elapsed time.Duration, now time.Time) model.ResponseMetadata {
	return model.ResponseMetadata{
		TotalRecords: total,
		Limit:        limit,
		Offset:       offset,
		HasMore:      total == limit,
		QueryTimeMS:  roundMS(elapsed),
		Timestamp:    now.UTC(),
	}
}

// BuildRangeResponse shapes a range query result
func BuildRangeResponse(rows []model.RawRow, limit, offset int, elapsed time.Duration, now time.Time) (*model.OHLCVResponse, error) {
	records, err := MapRows(rows)
	if err != nil {
		return nil, err
	}
	return &model.OHLCVResponse{
		Success:  true,
		Data:     records,
		Metadata: BuildMetadata(len(records), limit, offset, elapsed, now),
	}, nil
}

// BuildLatestResponse shapes a latest-candle result: the first row only,
// or DATA_NOT_FOUND when there is none.
func BuildLatestResponse(symbol string, rows []model.RawRow, elapsed time.Duration, now time.Time) (*model.OHLCVResponse, error) {
	if len(rows) == 0 {
		return nil, apperror.NewDataNotFound(symbol)
	}

	records, err := MapRows(rows[:1])
	if err != nil {
		return nil, err
	}

	meta := BuildMetadata(1, 1, 0, elapsed, now)
	meta.HasMore = false

	return &model.OHLCVResponse{
		Success:  true,
		Data:     records,
		Metadata: meta,
	}, nil
}

func mapRow(row model.RawRow) (model.OHLCVRecord, error) {
	if len(row) != model.RowColumns {
		return model.OHLCVRecord{}, fmt.Errorf("expected %d columns, got %d", model.RowColumns, len(row))
	}

	candleTime, err := toTime(row[0])
	if err != nil {
		return model.OHLCVRecord{}, fmt.Errorf("candle_time: %w", err)
	}
	symbol, err := toString(row[1])
	if err != nil {
		return model.OHLCVRecord{}, fmt.Errorf("symbol: %w", err)
	}

	var prices [5]float64
	names := [5]string{"open", "high", "low", "close", "volume"}
	for i := range prices {
		prices[i], err = toFloat64(row[i+2])
		if err != nil {
			return model.OHLCVRecord{}, fmt.Errorf("%s: %w", names[i], err)
		}
	}

	return model.OHLCVRecord{
		CandleTime: candleTime,
		Symbol:     symbol,
		Open:       prices[0],
		High:       prices[1],
		Low:        prices[2],
		Close:      prices[3],
		Volume:     prices[4],
	}, nil
}

// toFloat64 converts the numeric representations ClickHouse drivers return
func toFloat64(v interface{}) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int8:
		return float64(n), nil
	case int16:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint:
		return float64(n), nil
	case uint8:
		return float64(n), nil
	case uint16:
		return float64(n), nil
	case uint32:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case decimal.Decimal:
		return n.InexactFloat64(), nil
	case *decimal.Decimal:
		if n == nil {
			return 0, fmt.Errorf("null decimal")
		}
		return n.InexactFloat64(), nil
	case string:
		return parseNumeric(n)
	case []byte:
		return parseNumeric(string(n))
	default:
		return 0, fmt.Errorf("unsupported numeric type %T", v)
	}
}

func parseNumeric(s string) (float64, error) {
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid numeric value %q", s)
	}
	return d.InexactFloat64(), nil
}

func toTime(v interface{}) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), nil
	case *time.Time:
		if t == nil {
			return time.Time{}, fmt.Errorf("null time")
		}
		return t.UTC(), nil
	case string:
		return parseStoredTime(t)
	case []byte:
		return parseStoredTime(string(t))
	default:
		return time.Time{}, fmt.Errorf("unsupported time type %T", v)
	}
}

func parseStoredTime(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, utils.StorageLayout} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid time value %q", s)
}

func toString(v interface{}) (string, error) {
	switch s := v.(type) {
	case string:
		return s, nil
	case []byte:
		return string(s), nil
	default:
		return "", fmt.Errorf("unsupported string type %T", v)
	}
}

func roundMS(d time.Duration) float64 {
	ms := float64(d) / float64(time.Millisecond)
	return math.Round(ms*100) / 100
}
