package model

import (
	"time"

	"github.com/yourorg/ohlcv-service/internal/utils"
)

// OHLCVRecord represents one candle returned to API clients
type OHLCVRecord struct {
	CandleTime time.Time `json:"candle_time"`
	Symbol     string    `json:"symbol"`
	Open       float64   `json:"open"`
	High       float64   `json:"high"`
	Low        float64   `json:"low"`
	Close      float64   `json:"close"`
	Volume     float64   `json:"volume"`
}

// ResponseMetadata describes the returned page
type ResponseMetadata struct {
	TotalRecords int       `json:"total_records"`
	Limit        int       `json:"limit"`
	Offset       int       `json:"offset"`
	HasMore      bool      `json:"has_more"`
	QueryTimeMS  float64   `json:"query_time_ms"`
	Timestamp    time.Time `json:"timestamp"`
}

// OHLCVResponse is the success envelope for both candle endpoints
type OHLCVResponse struct {
	Success  bool             `json:"success"`
	Data     []OHLCVRecord    `json:"data"`
	Metadata ResponseMetadata `json:"metadata"`
}

// OHLCVQuery holds the raw query string parameters of a range request.
// Optional parameters are nil when absent and point to "" when sent empty.
type OHLCVQuery struct {
	Symbol string  `form:"symbol"`
	Start  string  `form:"start"`
	End    *string `form:"end"`
	Limit  *string `form:"limit"`
	Offset *string `form:"offset"`
}

// QuerySpec is a validated range request. End is nil when the caller
// omitted it; the service substitutes the current time.
type QuerySpec struct {
	Symbol string
	Start  utils.ParsedTime
	End    *utils.ParsedTime
	Limit  int
	Offset int
}

// RawRow is one result tuple as returned by the database driver:
// candle_time, symbol, open, high, low, close, volume
type RawRow []interface{}

// RowColumns is the number of columns every candle query projects
const RowColumns = 7
