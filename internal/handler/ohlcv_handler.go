package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourorg/ohlcv-service/internal/apperror"
	"github.com/yourorg/ohlcv-service/internal/model"
	"github.com/yourorg/ohlcv-service/internal/utils"
	"github.com/yourorg/ohlcv-service/internal/validator"
)

// OHLCVService is the candle retrieval backend used by the handler
type OHLCVService interface {
	GetRange(ctx context.Context, spec model.QuerySpec) (*model.OHLCVResponse, error)
	GetLatest(ctx context.Context, symbol string) (*model.OHLCVResponse, error)
}

// OHLCVHandler handles OHLCV HTTP requests
type OHLCVHandler struct {
	ohlcvService OHLCVService
	validator    *validator.OHLCVValidator
	exposeErrors bool
	logger       *zap.Logger
}

// NewOHLCVHandler creates a new OHLCV handler. exposeErrors adds raw backend
// error text to error details and must be off in production.
func NewOHLCVHandler(
	ohlcvService OHLCVService,
	v *validator.OHLCVValidator,
	exposeErrors bool,
	logger *zap.Logger,
) *OHLCVHandler {
	return &OHLCVHandler{
		ohlcvService: ohlcvService,
		validator:    v,
		exposeErrors: exposeErrors,
		logger:       logger,
	}
}

// GetOHLCV handles retrieving a page of candles for a symbol and time range
// GET /api/v1/ohlcv
func (h *OHLCVHandler) GetOHLCV(c *gin.Context) {
	var query model.OHLCVQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		h.sendError(c, apperror.NewValidation([]apperror.FieldError{{Field: "query", Message: err.Error()}}))
		return
	}

	spec, err := h.validator.Validate(query)
	if err != nil {
		h.sendError(c, err)
		return
	}

	resp, err := h.ohlcvService.GetRange(c.Request.Context(), spec)
	if err != nil {
		h.sendError(c, err)
		return
	}

	utils.SendSuccess(c, http.StatusOK, resp)
}

// GetLatest handles retrieving the most recent candle for a symbol
// GET /api/v1/ohlcv/latest
func (h *OHLCVHandler) GetLatest(c *gin.Context) {
	symbol := c.Query("symbol")
	if err := h.validator.ValidateSymbol(symbol); err != nil {
		h.sendError(c, err)
		return
	}

	resp, err := h.ohlcvService.GetLatest(c.Request.Context(), symbol)
	if err != nil {
		h.sendError(c, err)
		return
	}

	utils.SendSuccess(c, http.StatusOK, resp)
}

func (h *OHLCVHandler) sendError(c *gin.Context, err error) {
	appErr := apperror.From(err)

	fields := []zap.Field{
		zap.String("error_code", appErr.Code),
		zap.Int("status_code", appErr.Status),
		zap.String("endpoint", c.Request.URL.Path),
		zap.String("method", c.Request.Method),
	}
	if appErr.Status >= http.StatusInternalServerError {
		h.logger.Error("API error: "+appErr.Message, append(fields, zap.Error(appErr.Cause))...)
	} else {
		h.logger.Warn("API error: "+appErr.Message, fields...)
	}

	utils.SendError(c, appErr, h.exposeErrors)
}
