package repository

import (
	"time"

	"github.com/yourorg/ohlcv-service/internal/model"
)

const (
	rangeQuery = `
		SELECT candle_time, symbol, open, high, low, close, volume
		FROM {table:Identifier}
		WHERE symbol = {symbol:String}
		  AND candle_time >= {start:DateTime64(6, 'UTC')}
		  AND candle_time <= {end:DateTime64(6, 'UTC')}
		ORDER BY candle_time ASC
		LIMIT {limit:UInt32}
		OFFSET {offset:UInt32}
	`

	latestQuery = `
		SELECT candle_time, symbol, open, high, low, close, volume
		FROM {table:Identifier}
		WHERE symbol = {symbol:String}
		ORDER BY candle_time DESC
		LIMIT 1
	`
)

// Query is a statement template with its named parameters. Values are bound
// server side; nothing from the request is ever written into Text.
type Query struct {
	Type   string
	Text   string
	Params map[string]interface{}
}

// QueryBuilder builds candle queries against one table
type QueryBuilder struct {
	table string
}

// NewQueryBuilder creates a builder for the given table
func NewQueryBuilder(table string) *QueryBuilder {
	return &QueryBuilder{table: table}
}

// Range builds the paginated range query. end is the resolved upper bound:
// the query's end when present, otherwise the current time.
func (b *QueryBuilder) Range(spec model.QuerySpec, end time.Time) Query {
	return Query{
		Type: "SELECT_RANGE",
		Text: rangeQuery,
		Params: map[string]interface{}{
			"table":  b.table,
			"symbol": spec.Symbol,
			"start":  spec.Start.UTC(),
			"end":    end.UTC(),
			"limit":  uint32(spec.Limit),
			"offset": uint32(spec.Offset),
		},
	}
}

// Latest builds the most-recent-candle query for a symbol
func (b *QueryBuilder) Latest(symbol string) Query {
	return Query{
		Type: "SELECT_LATEST",
		Text: latestQuery,
		Params: map[string]interface{}{
			"table":  b.table,
			"symbol": symbol,
		},
	}
}
