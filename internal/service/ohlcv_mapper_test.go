package service

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/ohlcv-service/internal/apperror"
	"github.com/yourorg/ohlcv-service/internal/model"
)

var candleTime = time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)

func candleRow(t time.Time, symbol string) model.RawRow {
	return model.RawRow{t, symbol, 100.5, 101.0, 99.5, 100.75, 12.5}
}

func TestMapRows_NumericConversions(t *testing.T) {
	t.Parallel()

	price := decimal.RequireFromString("42.125")
	tests := []struct {
		name  string
		value interface{}
		want  float64
	}{
		{"float64", 1.5, 1.5},
		{"float32", float32(2.5), 2.5},
		{"int64", int64(7), 7},
		{"uint64", uint64(9), 9},
		{"uint32", uint32(3), 3},
		{"decimal", price, 42.125},
		{"decimal pointer", &price, 42.125},
		{"string", "3.25", 3.25},
		{"bytes", []byte("0.5"), 0.5},
		{"negative", -1.0, -1},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			row := model.RawRow{candleTime, "X", tt.value, tt.value, tt.value, tt.value, tt.value}
			records, err := MapRows([]model.RawRow{row})
			require.NoError(t, err)
			require.Len(t, records, 1)

			r := records[0]
			for _, got := range []float64{r.Open, r.High, r.Low, r.Close, r.Volume} {
				assert.InDelta(t, tt.want, got, 1e-9)
			}
		})
	}
}

func TestMapRows_TimeConversions(t *testing.T) {
	t.Parallel()

	inZone := candleTime.In(time.FixedZone("", 3*3600))
	for _, v := range []interface{}{candleTime, &candleTime, inZone, "2025-07-01 00:00:00", "2025-07-01T00:00:00Z", []byte("2025-07-01 00:00:00")} {
		records, err := MapRows([]model.RawRow{{v, "X", 1.0, 1.0, 1.0, 1.0, 1.0}})
		require.NoError(t, err, "%T", v)
		assert.True(t, candleTime.Equal(records[0].CandleTime))
		assert.Equal(t, time.UTC, records[0].CandleTime.Location())
	}
}

func TestMapRows_Malformed(t *testing.T) {
	t.Parallel()

	rows := [][]model.RawRow{
		{{candleTime, "X", 1.0}},
		{{"yesterday", "X", 1.0, 1.0, 1.0, 1.0, 1.0}},
		{{candleTime, 42, 1.0, 1.0, 1.0, 1.0, 1.0}},
		{{candleTime, "X", "abc", 1.0, 1.0, 1.0, 1.0}},
		{{candleTime, "X", 1.0, 1.0, 1.0, 1.0, nil}},
	}

	for _, r := range rows {
		_, err := MapRows(r)
		require.Error(t, err)

		var appErr *apperror.Error
		require.True(t, errors.As(err, &appErr))
		assert.Equal(t, apperror.KindInternal, appErr.Kind)
	}
}

func TestBuildMetadata_HasMore(t *testing.T) {
	t.Parallel()

	for limit := 1; limit <= 5; limit++ {
		for total := 0; total <= limit; total++ {
			meta := BuildMetadata(total, limit, 0, 0, candleTime)
			assert.Equal(t, total == limit, meta.HasMore, "limit=%d total=%d", limit, total)
			assert.Equal(t, total, meta.TotalRecords)
		}
	}
}

func TestBuildMetadata_RoundsQueryTime(t *testing.T) {
	t.Parallel()

	meta := BuildMetadata(0, 10, 20, 12345678*time.Nanosecond, candleTime)
	assert.Equal(t, 12.35, meta.QueryTimeMS)
	assert.Equal(t, 10, meta.Limit)
	assert.Equal(t, 20, meta.Offset)
	assert.Equal(t, candleTime, meta.Timestamp)
}

func TestBuildRangeResponse(t *testing.T) {
	t.Parallel()

	rows := []model.RawRow{
		candleRow(candleTime, "NASDAQ:AAPL"),
		candleRow(candleTime.Add(time.Hour), "NASDAQ:AAPL"),
	}

	resp, err := BuildRangeResponse(rows, 2, 4, time.Millisecond, candleTime)
	require.NoError(t, err)

	assert.True(t, resp.Success)
	require.Len(t, resp.Data, 2)
	assert.Equal(t, model.OHLCVRecord{
		CandleTime: candleTime,
		Symbol:     "NASDAQ:AAPL",
		Open:       100.5,
		High:       101.0,
		Low:        99.5,
		Close:      100.75,
		Volume:     12.5,
	}, resp.Data[0])
	assert.True(t, resp.Metadata.HasMore)
	assert.Equal(t, 4, resp.Metadata.Offset)
}

func TestBuildRangeResponse_EmptyPage(t *testing.T) {
	t.Parallel()

	resp, err := BuildRangeResponse(nil, 100, 0, 0, candleTime)
	require.NoError(t, err)

	assert.NotNil(t, resp.Data)
	assert.Empty(t, resp.Data)
	assert.False(t, resp.Metadata.HasMore)
}

func TestBuildLatestResponse(t *testing.T) {
	t.Parallel()

	t.Run("no rows", func(t *testing.T) {
		t.Parallel()

		_, err := BuildLatestResponse("NASDAQ:AAPL", nil, 0, candleTime)
		var appErr *apperror.Error
		require.True(t, errors.As(err, &appErr))
		assert.Equal(t, apperror.CodeDataNotFound, appErr.Code)
		assert.Equal(t, 404, appErr.Status)
		assert.Equal(t, "NASDAQ:AAPL", appErr.Details["symbol"])
	})

	t.Run("many rows", func(t *testing.T) {
		t.Parallel()

		rows := []model.RawRow{
			candleRow(candleTime.Add(time.Hour), "NASDAQ:AAPL"),
			candleRow(candleTime, "NASDAQ:AAPL"),
			candleRow(candleTime.Add(-time.Hour), "NASDAQ:AAPL"),
		}
		resp, err := BuildLatestResponse("NASDAQ:AAPL", rows, 0, candleTime)
		require.NoError(t, err)

		require.Len(t, resp.Data, 1)
		assert.Equal(t, candleTime.Add(time.Hour), resp.Data[0].CandleTime)
		assert.Equal(t, 1, resp.Metadata.TotalRecords)
		assert.Equal(t, 1, resp.Metadata.Limit)
		assert.Equal(t, 0, resp.Metadata.Offset)
		assert.False(t, resp.Metadata.HasMore)
	})
}
