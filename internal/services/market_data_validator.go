package services

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/irfndi/celebrum-patterns/internal/models"
	"github.com/irfndi/celebrum-patterns/internal/utils"
)

// MarketDataValidator rejects malformed candle windows before detection
type MarketDataValidator struct {
	validate *validator.Validate
	logger   *logrus.Logger
}

// NewMarketDataValidator creates a validator that reports fields by their JSON names
func NewMarketDataValidator(logger *logrus.Logger) *MarketDataValidator {
	if logger == nil {
		logger = logrus.New()
	}

	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &MarketDataValidator{validate: v, logger: logger}
}

// ValidateCandles checks every bar and the ordering of the window. An empty
// window is valid. The returned error is a *utils.DataValidationError.
func (mv *MarketDataValidator) ValidateCandles(candles []models.Candle) error {
	for i, c := range candles {
		if err := mv.validateCandle(i, c); err != nil {
			mv.logger.WithFields(logrus.Fields{
				"index": i,
				"error": err.Error(),
			}).Debug("Rejected candle window")
			return err
		}
		if i > 0 && !c.Timestamp.After(candles[i-1].Timestamp) {
			return utils.NewDataValidationErrorf("timestamp", i, "%s is not after previous bar %s",
				c.Timestamp.Format(time.RFC3339), candles[i-1].Timestamp.Format(time.RFC3339))
		}
	}
	return nil
}

func (mv *MarketDataValidator) validateCandle(i int, c models.Candle) error {
	if c.Timestamp.IsZero() {
		return utils.NewDataValidationError("timestamp", i, "is required")
	}
	values := []struct {
		field string
		value float64
	}{
		{"open", c.Open}, {"high", c.High}, {"low", c.Low}, {"close", c.Close}, {"volume", c.Volume},
	}
	for _, v := range values {
		if math.IsInf(v.value, 0) || math.IsNaN(v.value) {
			return utils.NewDataValidationError(v.field, i, "must be a finite number")
		}
	}

	if err := mv.validate.Struct(c); err != nil {
		var fieldErrors validator.ValidationErrors
		if errors.As(err, &fieldErrors) && len(fieldErrors) > 0 {
			fe := fieldErrors[0]
			return utils.NewDataValidationError(fe.Field(), i, validationMessage(fe))
		}
		return utils.NewDataValidationError("candle", i, err.Error())
	}

	if c.High < math.Max(c.Open, c.Close) {
		return utils.NewDataValidationErrorf("high", i, "%v is below the candle body", c.High)
	}
	if c.Low > math.Min(c.Open, c.Close) {
		return utils.NewDataValidationErrorf("low", i, "%v is above the candle body", c.Low)
	}
	return nil
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be greater than or equal to %s", fe.Param())
	default:
		return fmt.Sprintf("failed validation: %s", fe.Tag())
	}
}

// CandlesFromPriceData converts columnar decimal price data into validated
// candles. Volume may be shorter than the price columns; missing volume is 0.
func (mv *MarketDataValidator) CandlesFromPriceData(data *models.PriceData) ([]models.Candle, error) {
	if data == nil {
		return nil, utils.NewDataValidationError("price_data", -1, "is required")
	}

	n := data.Len()
	columns := map[string]int{
		"open":  len(data.Open),
		"high":  len(data.High),
		"low":   len(data.Low),
		"close": len(data.Close),
	}
	for _, field := range []string{"open", "high", "low", "close"} {
		if columns[field] != n {
			return nil, utils.NewDataValidationErrorf(field, -1, "has %d values for %d timestamps", columns[field], n)
		}
	}
	if len(data.Volume) > n {
		return nil, utils.NewDataValidationErrorf("volume", -1, "has %d values for %d timestamps", len(data.Volume), n)
	}

	candles := make([]models.Candle, n)
	for i := 0; i < n; i++ {
		candles[i] = models.Candle{
			Timestamp: data.Timestamps[i],
			Open:      data.Open[i].InexactFloat64(),
			High:      data.High[i].InexactFloat64(),
			Low:       data.Low[i].InexactFloat64(),
			Close:     data.Close[i].InexactFloat64(),
		}
		if i < len(data.Volume) {
			candles[i].Volume = data.Volume[i].InexactFloat64()
		}
	}

	if err := mv.ValidateCandles(candles); err != nil {
		return nil, fmt.Errorf("%s %s: %w", data.Symbol, data.Timeframe, err)
	}
	return candles, nil
}
