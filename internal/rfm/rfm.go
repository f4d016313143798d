// Package rfm scores customers on recency, frequency and monetary value and
// assigns each one a segment from an ordered rule table.
package rfm

import (
	"cmp"
	"fmt"
	"slices"
	"time"

	"retail-bi/internal/errors"
	"retail-bi/internal/models"
)

const DefaultScore = 3

// Rule matches a customer when every non-zero threshold is met. With FMAny
// set, the frequency and monetary thresholds are alternatives.
type Rule struct {
	Segment   models.Segment
	Recency   int
	Frequency int
	Monetary  int
	FMAny     bool
}

func (r Rule) matches(c models.CustomerRFM) bool {
	if c.RScore < r.Recency {
		return false
	}
	fOK := c.FScore >= r.Frequency
	mOK := c.MScore >= r.Monetary
	if !r.FMAny {
		return fOK && mOK
	}
	switch {
	case r.Frequency == 0 && r.Monetary == 0:
		return true
	case r.Frequency == 0:
		return mOK
	case r.Monetary == 0:
		return fOK
	default:
		return fOK || mOK
	}
}

func DefaultRules() []Rule {
	return []Rule{
		{Segment: models.SegmentChampions, Recency: 4, Frequency: 4, Monetary: 4},
		{Segment: models.SegmentLoyal, Recency: 3, Frequency: 3},
		{Segment: models.SegmentPotential, Recency: 2, Frequency: 2, Monetary: 2, FMAny: true},
	}
}

type Options struct {
	Rules        []Rule
	Fallback     models.Segment
	DefaultScore int
}

func DefaultOptions() Options {
	return Options{
		Rules:        DefaultRules(),
		Fallback:     models.SegmentAtRisk,
		DefaultScore: DefaultScore,
	}
}

type Result struct {
	Customers []models.CustomerRFM    `json:"customers"`
	Segments  []models.SegmentSummary `json:"segments"`
	Reference time.Time               `json:"reference_date"`
	// Warnings holds DEGENERATE_INPUT notices for metrics that could not be
	// ranked because every customer shared one value.
	Warnings []*errors.AppError `json:"warnings,omitempty"`
}

type customerStats struct {
	id       string
	last     time.Time
	orders   map[string]struct{}
	monetary float64
}

// Compute scores every customer in txs. The reference date is the latest
// transaction date in the data, not the wall clock.
func Compute(txs []models.Transaction, opts Options) (Result, error) {
	if len(txs) == 0 {
		return Result{}, errors.InsufficientData("rfm segmentation needs at least one transaction")
	}
	if opts.DefaultScore < 1 || opts.DefaultScore > 5 {
		opts.DefaultScore = DefaultScore
	}
	if opts.Fallback == "" {
		opts.Fallback = models.SegmentAtRisk
	}

	// Customers are kept in first-seen order; ties in ranking fall back to it.
	index := make(map[string]int)
	var stats []*customerStats
	reference := txs[0].Date

	for _, tx := range txs {
		i, ok := index[tx.CustomerID]
		if !ok {
			i = len(stats)
			index[tx.CustomerID] = i
			stats = append(stats, &customerStats{
				id:     tx.CustomerID,
				last:   tx.Date,
				orders: make(map[string]struct{}),
			})
		}
		s := stats[i]
		if tx.Date.After(s.last) {
			s.last = tx.Date
		}
		s.orders[tx.OrderID] = struct{}{}
		s.monetary += tx.Sales

		if tx.Date.After(reference) {
			reference = tx.Date
		}
	}

	n := len(stats)
	customers := make([]models.CustomerRFM, n)
	recency := make([]float64, n)
	frequency := make([]float64, n)
	monetary := make([]float64, n)

	for i, s := range stats {
		days := int(reference.Sub(s.last).Hours() / 24)
		customers[i] = models.CustomerRFM{
			CustomerID:  s.id,
			RecencyDays: days,
			Frequency:   len(s.orders),
			Monetary:    s.monetary,
		}
		// Fewer days since the last purchase is better.
		recency[i] = -float64(days)
		frequency[i] = float64(len(s.orders))
		monetary[i] = s.monetary
	}

	var warnings []*errors.AppError
	score := func(metric string, values []float64, set func(*models.CustomerRFM, int)) {
		scores, ok := quintiles(values)
		if !ok {
			warnings = append(warnings, errors.DegenerateInput(
				fmt.Sprintf("%s is identical for all %d customers, using score %d", metric, n, opts.DefaultScore)))
			for i := range customers {
				set(&customers[i], opts.DefaultScore)
			}
			return
		}
		for i := range customers {
			set(&customers[i], scores[i])
		}
	}
	score("recency", recency, func(c *models.CustomerRFM, s int) { c.RScore = s })
	score("frequency", frequency, func(c *models.CustomerRFM, s int) { c.FScore = s })
	score("monetary", monetary, func(c *models.CustomerRFM, s int) { c.MScore = s })

	for i := range customers {
		customers[i].Segment = assign(customers[i], opts.Rules, opts.Fallback)
	}

	slices.SortFunc(customers, func(a, b models.CustomerRFM) int {
		return cmp.Compare(a.CustomerID, b.CustomerID)
	})

	return Result{
		Customers: customers,
		Segments:  summarize(customers, opts),
		Reference: reference,
		Warnings:  warnings,
	}, nil
}

// quintiles maps each value to 1..5 by ascending rank: rank i of n (0-based)
// scores ceil((i+1)*5/n), so the highest rank always scores 5. Equal values
// keep their input order. It reports false when all values are equal.
func quintiles(values []float64) ([]int, bool) {
	n := len(values)
	if n == 0 || slices.Min(values) == slices.Max(values) {
		return nil, false
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		return cmp.Compare(values[a], values[b])
	})

	scores := make([]int, n)
	for rank, idx := range order {
		scores[idx] = ((rank+1)*5 + n - 1) / n
	}
	return scores, true
}

func assign(c models.CustomerRFM, rules []Rule, fallback models.Segment) models.Segment {
	for _, r := range rules {
		if r.matches(c) {
			return r.Segment
		}
	}
	return fallback
}

func summarize(customers []models.CustomerRFM, opts Options) []models.SegmentSummary {
	order := make([]models.Segment, 0, len(opts.Rules)+1)
	pos := make(map[models.Segment]int)
	for _, r := range opts.Rules {
		if _, ok := pos[r.Segment]; !ok {
			pos[r.Segment] = len(order)
			order = append(order, r.Segment)
		}
	}
	if _, ok := pos[opts.Fallback]; !ok {
		pos[opts.Fallback] = len(order)
		order = append(order, opts.Fallback)
	}

	summaries := make([]models.SegmentSummary, len(order))
	recency := make([]float64, len(order))
	frequency := make([]float64, len(order))
	for i, seg := range order {
		summaries[i].Segment = seg
	}
	for _, c := range customers {
		i := pos[c.Segment]
		summaries[i].Customers++
		summaries[i].Revenue += c.Monetary
		recency[i] += float64(c.RecencyDays)
		frequency[i] += float64(c.Frequency)
	}
	for i := range summaries {
		if k := summaries[i].Customers; k > 0 {
			summaries[i].AvgMonetary = summaries[i].Revenue / float64(k)
			summaries[i].AvgFrequency = frequency[i] / float64(k)
			summaries[i].AvgRecencyDays = recency[i] / float64(k)
		}
	}
	return summaries
}
