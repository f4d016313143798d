// Package forecast fits an ordinary least squares line to monthly sales and
// projects it forward over the following calendar months.
package forecast

import (
	"fmt"
	"time"

	"retail-bi/internal/errors"
	"retail-bi/internal/models"
)

const DefaultHorizon = 3

// Policies for a series with a single observed month.
const (
	PolicyFail = "fail"
	PolicyFlat = "flat"
)

type Options struct {
	Horizon           int
	SingleMonthPolicy string
}

func DefaultOptions() Options {
	return Options{Horizon: DefaultHorizon, SingleMonthPolicy: PolicyFail}
}

// Trend is the fitted line sales = Intercept + Slope*t where t is the 0-based
// month index.
type Trend struct {
	Intercept float64 `json:"intercept"`
	Slope     float64 `json:"slope"`
	Months    int     `json:"months"`
}

func (t Trend) At(index int) float64 {
	return t.Intercept + t.Slope*float64(index)
}

type Result struct {
	Trend  Trend                  `json:"trend"`
	Points []models.ForecastPoint `json:"points"`
}

// Fit computes the closed-form OLS line over the month index. It needs at
// least two months.
func Fit(monthly []models.MonthlyAggregate) (Trend, error) {
	n := len(monthly)
	if n < 2 {
		return Trend{}, errors.InsufficientData(fmt.Sprintf("forecast needs at least 2 months of data, got %d", n))
	}

	var tMean, yMean float64
	for i, m := range monthly {
		tMean += float64(i)
		yMean += m.TotalSales
	}
	tMean /= float64(n)
	yMean /= float64(n)

	var num, den float64
	for i, m := range monthly {
		dt := float64(i) - tMean
		num += dt * (m.TotalSales - yMean)
		den += dt * dt
	}

	slope := num / den
	return Trend{
		Intercept: yMean - slope*tMean,
		Slope:     slope,
		Months:    n,
	}, nil
}

// Project fits the monthly series and predicts the next opts.Horizon months.
// Predictions are not clamped and may be negative for a falling trend.
func Project(monthly []models.MonthlyAggregate, opts Options) (Result, error) {
	if opts.Horizon <= 0 {
		opts.Horizon = DefaultHorizon
	}
	if len(monthly) == 0 {
		return Result{}, errors.InsufficientData("forecast needs at least 1 month of data, got 0")
	}

	last, err := time.Parse(models.MonthLayout, monthly[len(monthly)-1].Month)
	if err != nil {
		return Result{}, fmt.Errorf("parse last month %q: %w", monthly[len(monthly)-1].Month, err)
	}

	var trend Trend
	if len(monthly) == 1 && opts.SingleMonthPolicy == PolicyFlat {
		trend = Trend{Intercept: monthly[0].TotalSales, Months: 1}
	} else {
		trend, err = Fit(monthly)
		if err != nil {
			return Result{}, err
		}
	}

	points := make([]models.ForecastPoint, opts.Horizon)
	for h := range opts.Horizon {
		points[h] = models.ForecastPoint{
			Month:          last.AddDate(0, h+1, 0).Format(models.MonthLayout),
			PredictedSales: trend.At(len(monthly) + h),
		}
	}

	return Result{Trend: trend, Points: points}, nil
}
