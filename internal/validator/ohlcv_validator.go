package validator

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"

	playground "github.com/go-playground/validator/v10"

	"github.com/yourorg/ohlcv-service/internal/apperror"
	"github.com/yourorg/ohlcv-service/internal/model"
	"github.com/yourorg/ohlcv-service/internal/utils"
)

// MaxSymbolLength is the longest accepted symbol
const MaxSymbolLength = 50

// fieldOrder keeps aggregated errors in query-string order
var fieldOrder = map[string]int{"symbol": 0, "start": 1, "end": 2, "limit": 3, "offset": 4}

// ohlcvParams mirrors the range query after integer parsing
type ohlcvParams struct {
	Symbol string `json:"symbol" validate:"required,max=50"`
	Start  string `json:"start" validate:"required,candletime"`
	End    string `json:"end" validate:"omitempty,candletime"`
	Limit  int    `json:"limit" validate:"gte=1,lte=10000"`
	Offset int    `json:"offset" validate:"gte=0,lte=4294967295"`
}

// OHLCVValidator turns raw query parameters into a validated query spec
type OHLCVValidator struct {
	validate     *playground.Validate
	defaultLimit int
	maxLimit     int
}

// NewOHLCVValidator creates a validator. maxLimit is the configured page
// ceiling applied to requested limits before range checks.
func NewOHLCVValidator(defaultLimit, maxLimit int) *OHLCVValidator {
	v := playground.New()

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	if err := v.RegisterValidation("candletime", func(fl playground.FieldLevel) bool {
		return utils.IsValidTime(fl.Field().String())
	}); err != nil {
		panic(fmt.Sprintf("register candletime validation: %v", err))
	}
	v.RegisterStructValidation(validateTimeRange, ohlcvParams{})

	return &OHLCVValidator{
		validate:     v,
		defaultLimit: defaultLimit,
		maxLimit:     maxLimit,
	}
}

// validateTimeRange rejects an end before start. Equal bounds select a single candle.
func validateTimeRange(sl playground.StructLevel) {
	p := sl.Current().Interface().(ohlcvParams)
	if p.End == "" {
		return
	}

	start, err := utils.ParseTime(p.Start)
	if err != nil {
		return
	}
	end, err := utils.ParseTime(p.End)
	if err != nil {
		return
	}

	if utils.CompareTimes(end, start) < 0 {
		sl.ReportError(p.End, "end", "End", "timerange", "")
	}
}

// Validate checks every field and reports all failures together
func (v *OHLCVValidator) Validate(q model.OHLCVQuery) (model.QuerySpec, error) {
	var fieldErrs []apperror.FieldError

	params := ohlcvParams{
		Symbol: q.Symbol,
		Start:  q.Start,
		Limit:  v.defaultLimit,
	}

	// An empty end= is a malformed time, not an open range
	if q.End != nil {
		if *q.End == "" {
			fieldErrs = append(fieldErrs, apperror.FieldError{
				Field:           "end",
				Message:         "invalid time format",
				ExpectedFormats: utils.ExpectedTimeFormats,
			})
		}
		params.End = *q.End
	}

	if q.Limit != nil {
		limit, err := strconv.Atoi(strings.TrimSpace(*q.Limit))
		if err != nil {
			fieldErrs = append(fieldErrs, apperror.FieldError{
				Field:   "limit",
				Message: "value is not a valid integer",
				Value:   *q.Limit,
			})
		} else {
			if limit > v.maxLimit {
				limit = v.maxLimit
			}
			params.Limit = limit
		}
	}

	if q.Offset != nil {
		offset, err := strconv.Atoi(strings.TrimSpace(*q.Offset))
		if err != nil {
			fieldErrs = append(fieldErrs, apperror.FieldError{
				Field:   "offset",
				Message: "value is not a valid integer",
				Value:   *q.Offset,
			})
		} else {
			params.Offset = offset
		}
	}

	if err := v.validate.Struct(params); err != nil {
		fieldErrs = append(fieldErrs, toFieldErrors(err)...)
	}

	if len(fieldErrs) > 0 {
		sort.SliceStable(fieldErrs, func(i, j int) bool {
			return fieldOrder[fieldErrs[i].Field] < fieldOrder[fieldErrs[j].Field]
		})
		return model.QuerySpec{}, apperror.NewValidation(fieldErrs)
	}

	// Both values passed the candletime rule above.
	start, _ := utils.ParseTime(params.Start)
	spec := model.QuerySpec{
		Symbol: params.Symbol,
		Start:  start,
		Limit:  params.Limit,
		Offset: params.Offset,
	}
	if params.End != "" {
		end, _ := utils.ParseTime(params.End)
		spec.End = &end
	}

	return spec, nil
}

// ValidateSymbol checks the symbol of a latest-candle request
func (v *OHLCVValidator) ValidateSymbol(symbol string) error {
	err := v.validate.Var(symbol, fmt.Sprintf("required,max=%d", MaxSymbolLength))
	if err == nil {
		return nil
	}

	fieldErrs := toFieldErrors(err)
	for i := range fieldErrs {
		fieldErrs[i].Field = "symbol"
	}
	return apperror.NewValidation(fieldErrs)
}

func toFieldErrors(err error) []apperror.FieldError {
	validationErrs, ok := err.(playground.ValidationErrors)
	if !ok {
		return []apperror.FieldError{{Field: "request", Message: err.Error()}}
	}

	out := make([]apperror.FieldError, 0, len(validationErrs))
	for _, fe := range validationErrs {
		out = append(out, describe(fe))
	}
	return out
}

func describe(fe playground.FieldError) apperror.FieldError {
	value := fmt.Sprint(fe.Value())
	out := apperror.FieldError{Field: fe.Field(), Value: value}

	switch fe.Tag() {
	case "required":
		out.Message = "field required"
		out.Value = ""
	case "max":
		out.Message = fmt.Sprintf("must be at most %s characters", fe.Param())
	case "gte":
		out.Message = fmt.Sprintf("must be greater than or equal to %s", fe.Param())
	case "lte":
		out.Message = fmt.Sprintf("must be less than or equal to %s", fe.Param())
	case "candletime":
		out.Message = "invalid time format"
		out.ExpectedFormats = utils.ExpectedTimeFormats
	case "timerange":
		out.Message = "end time must not be before start time"
	default:
		out.Message = fmt.Sprintf("failed on the '%s' rule", fe.Tag())
	}

	return out
}
