// Package basket finds products that are bought together in the same order.
//
// Only pairs are counted; there is no frequent itemset mining beyond size two.
// A pair is stored once with ProductA < ProductB. Confidence is measured
// against the more frequent product of the pair, which makes it the smaller
// of the two directional confidences and keeps every metric symmetric.
package basket

import (
	"cmp"
	"slices"

	"retail-bi/internal/errors"
	"retail-bi/internal/models"
)

type Result struct {
	Associations []models.ProductAssociation `json:"associations"`
	TotalOrders  int                         `json:"total_orders"`
	// ItemFrequency counts the orders containing each product.
	ItemFrequency map[string]int `json:"item_frequency"`
}

// Top returns the k strongest associations. The full table is kept.
func (r Result) Top(k int) []models.ProductAssociation {
	if k <= 0 || k >= len(r.Associations) {
		return r.Associations
	}
	return r.Associations[:k]
}

type pair struct{ a, b string }

func Analyze(txs []models.Transaction) (Result, error) {
	baskets := make(map[string]map[string]struct{})
	var orderIDs []string
	for _, tx := range txs {
		items, ok := baskets[tx.OrderID]
		if !ok {
			items = make(map[string]struct{})
			baskets[tx.OrderID] = items
			orderIDs = append(orderIDs, tx.OrderID)
		}
		items[tx.ProductName] = struct{}{}
	}

	total := len(orderIDs)
	if total == 0 {
		return Result{}, errors.InsufficientData("market basket analysis needs at least one order")
	}

	freq := make(map[string]int)
	counts := make(map[pair]int)
	for _, id := range orderIDs {
		products := make([]string, 0, len(baskets[id]))
		for p := range baskets[id] {
			products = append(products, p)
			freq[p]++
		}
		if len(products) < 2 {
			continue
		}
		slices.Sort(products)
		for i := 0; i < len(products)-1; i++ {
			for j := i + 1; j < len(products); j++ {
				counts[pair{products[i], products[j]}]++
			}
		}
	}

	n := float64(total)
	assocs := make([]models.ProductAssociation, 0, len(counts))
	for p, c := range counts {
		support := float64(c) / n
		pa := float64(freq[p.a]) / n
		pb := float64(freq[p.b]) / n
		assocs = append(assocs, models.ProductAssociation{
			ProductA:        p.a,
			ProductB:        p.b,
			CoPurchaseCount: c,
			Support:         support,
			Confidence:      float64(c) / float64(max(freq[p.a], freq[p.b])),
			Lift:            support / (pa * pb),
		})
	}
	sortAssociations(assocs)

	return Result{
		Associations:  assocs,
		TotalOrders:   total,
		ItemFrequency: freq,
	}, nil
}

func sortAssociations(assocs []models.ProductAssociation) {
	slices.SortFunc(assocs, func(x, y models.ProductAssociation) int {
		if c := cmp.Compare(y.Lift, x.Lift); c != 0 {
			return c
		}
		if c := cmp.Compare(y.CoPurchaseCount, x.CoPurchaseCount); c != 0 {
			return c
		}
		if c := cmp.Compare(x.ProductA, y.ProductA); c != 0 {
			return c
		}
		return cmp.Compare(x.ProductB, y.ProductB)
	})
}
