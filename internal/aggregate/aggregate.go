// Package aggregate reduces a transaction table into summary tables keyed by
// month, category, region and product.
package aggregate

import (
	"cmp"
	"slices"
	"time"

	"retail-bi/internal/models"
)

// ByMonth groups transactions by calendar month. Only months present in the
// data appear; gaps are not filled with zero rows.
func ByMonth(txs []models.Transaction) []models.MonthlyAggregate {
	groups := make(map[string]*models.MonthlyAggregate)
	orders := make(map[string]map[string]struct{})

	for _, tx := range txs {
		month := tx.MonthKey()
		if groups[month] == nil {
			groups[month] = &models.MonthlyAggregate{Month: month}
			orders[month] = make(map[string]struct{})
		}
		groups[month].TotalSales += tx.Sales
		groups[month].TotalProfit += tx.Profit
		orders[month][tx.OrderID] = struct{}{}
	}

	result := make([]models.MonthlyAggregate, 0, len(groups))
	for month, agg := range groups {
		agg.OrderCount = len(orders[month])
		result = append(result, *agg)
	}
	// YYYY-MM keys sort chronologically as strings.
	slices.SortFunc(result, func(a, b models.MonthlyAggregate) int {
		return cmp.Compare(a.Month, b.Month)
	})
	return result
}

func ByCategory(txs []models.Transaction) []models.GroupAggregate {
	return groupBy(txs, func(tx models.Transaction) string { return tx.Category })
}

func ByRegion(txs []models.Transaction) []models.GroupAggregate {
	return groupBy(txs, func(tx models.Transaction) string { return tx.Region })
}

func ByProduct(txs []models.Transaction) []models.GroupAggregate {
	return groupBy(txs, func(tx models.Transaction) string { return tx.ProductName })
}

func groupBy(txs []models.Transaction, key func(models.Transaction) string) []models.GroupAggregate {
	groups := make(map[string]*models.GroupAggregate)
	orders := make(map[string]map[string]struct{})

	for _, tx := range txs {
		k := key(tx)
		if groups[k] == nil {
			groups[k] = &models.GroupAggregate{Key: k}
			orders[k] = make(map[string]struct{})
		}
		g := groups[k]
		g.TotalSales += tx.Sales
		g.TotalProfit += tx.Profit
		g.Count++
		g.Quantity += tx.Quantity
		orders[k][tx.OrderID] = struct{}{}
	}

	result := make([]models.GroupAggregate, 0, len(groups))
	for k, g := range groups {
		g.OrderCount = len(orders[k])
		g.Margin = margin(g.TotalProfit, g.TotalSales)
		result = append(result, *g)
	}
	sortBySales(result)
	return result
}

// sortBySales orders groups by total sales descending, key ascending on ties.
func sortBySales(groups []models.GroupAggregate) {
	slices.SortFunc(groups, func(a, b models.GroupAggregate) int {
		if c := cmp.Compare(b.TotalSales, a.TotalSales); c != 0 {
			return c
		}
		return cmp.Compare(a.Key, b.Key)
	})
}

// TopByMargin returns up to n groups with the highest profit margin. Groups
// with no sales are skipped.
func TopByMargin(groups []models.GroupAggregate, n int) []models.GroupAggregate {
	result := make([]models.GroupAggregate, 0, len(groups))
	for _, g := range groups {
		if g.TotalSales != 0 {
			result = append(result, g)
		}
	}
	slices.SortFunc(result, func(a, b models.GroupAggregate) int {
		if c := cmp.Compare(b.Margin, a.Margin); c != 0 {
			return c
		}
		return cmp.Compare(a.Key, b.Key)
	})
	return Top(result, n)
}

// Top returns at most n leading elements of s. A non-positive n returns s.
func Top[T any](s []T, n int) []T {
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[:n]
}

func Summarize(txs []models.Transaction) models.Summary {
	s := models.Summary{Transactions: len(txs)}
	if len(txs) == 0 {
		return s
	}

	orders := make(map[string]struct{})
	customers := make(map[string]struct{})
	s.FirstDate, s.LastDate = txs[0].Date, txs[0].Date

	for _, tx := range txs {
		s.TotalSales += tx.Sales
		s.TotalProfit += tx.Profit
		orders[tx.OrderID] = struct{}{}
		customers[tx.CustomerID] = struct{}{}
		if tx.Date.Before(s.FirstDate) {
			s.FirstDate = tx.Date
		}
		if tx.Date.After(s.LastDate) {
			s.LastDate = tx.Date
		}
	}

	s.Orders = len(orders)
	s.Customers = len(customers)
	s.ProfitMargin = margin(s.TotalProfit, s.TotalSales)
	s.AvgOrderValue = s.TotalSales / float64(s.Orders)
	return s
}

// Seasonal averages line-item sales per calendar month across all years.
// Months without transactions are left out. It is a descriptive statistic
// only and is not used by the forecast.
func Seasonal(txs []models.Transaction) models.SeasonalProfile {
	var sums [13]float64
	var counts [13]int
	for _, tx := range txs {
		m := tx.Date.Month()
		sums[m] += tx.Sales
		counts[m]++
	}

	var profile models.SeasonalProfile
	var peak, low *models.SeasonalMonth
	for m := time.January; m <= time.December; m++ {
		if counts[m] == 0 {
			continue
		}
		profile.Months = append(profile.Months, models.SeasonalMonth{
			Month:     m,
			Name:      m.String(),
			AvgSales:  sums[m] / float64(counts[m]),
			LineItems: counts[m],
		})
	}
	for i := range profile.Months {
		sm := &profile.Months[i]
		if peak == nil || sm.AvgSales > peak.AvgSales {
			peak = sm
		}
		if low == nil || sm.AvgSales < low.AvgSales {
			low = sm
		}
	}
	if peak != nil {
		profile.Peak = peak.Name
		profile.Low = low.Name
	}
	return profile
}

func margin(profit, sales float64) float64 {
	if sales == 0 {
		return 0
	}
	return profit / sales * 100
}
