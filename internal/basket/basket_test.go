package basket

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"retail-bi/internal/errors"
	"retail-bi/internal/models"
)

func line(order, product string) models.Transaction {
	return models.Transaction{OrderID: order, ProductName: product, Quantity: 1}
}

func TestAnalyze_ThreeItemOrder(t *testing.T) {
	res, err := Analyze([]models.Transaction{
		line("O1", "C"), line("O1", "A"), line("O1", "B"),
	})
	require.NoError(t, err)

	require.Len(t, res.Associations, 3)
	got := map[[2]string]int{}
	for _, a := range res.Associations {
		assert.Less(t, a.ProductA, a.ProductB, "pairs are canonical")
		got[[2]string{a.ProductA, a.ProductB}] = a.CoPurchaseCount
	}
	assert.Equal(t, map[[2]string]int{{"A", "B"}: 1, {"A", "C"}: 1, {"B", "C"}: 1}, got)
}

func TestAnalyze_SingleProductOrder(t *testing.T) {
	res, err := Analyze([]models.Transaction{line("O1", "A"), line("O2", "B")})
	require.NoError(t, err)
	assert.Empty(t, res.Associations)
	assert.Equal(t, 2, res.TotalOrders)
}

func TestAnalyze_RepeatedProductNotDoubleCounted(t *testing.T) {
	res, err := Analyze([]models.Transaction{
		line("O1", "A"), line("O1", "A"), line("O1", "B"),
	})
	require.NoError(t, err)

	require.Len(t, res.Associations, 1)
	assert.Equal(t, 1, res.Associations[0].CoPurchaseCount)
	assert.Equal(t, 1, res.ItemFrequency["A"])
}

func TestAnalyze_Metrics(t *testing.T) {
	// A in 3 of 4 orders, B in 2, together in 2.
	res, err := Analyze([]models.Transaction{
		line("O1", "A"), line("O1", "B"),
		line("O2", "B"), line("O2", "A"),
		line("O3", "A"),
		line("O4", "D"),
	})
	require.NoError(t, err)
	require.Len(t, res.Associations, 1)

	a := res.Associations[0]
	assert.Equal(t, "A", a.ProductA)
	assert.Equal(t, "B", a.ProductB)
	assert.Equal(t, 2, a.CoPurchaseCount)
	assert.InDelta(t, 0.5, a.Support, 1e-12)
	// Relative to A, the more frequent product.
	assert.InDelta(t, 2.0/3.0, a.Confidence, 1e-12)
	assert.InDelta(t, 0.5/(0.75*0.5), a.Lift, 1e-12)
}

func TestAnalyze_LiftSymmetry(t *testing.T) {
	forward, err := Analyze([]models.Transaction{
		line("O1", "Zeta"), line("O1", "Alpha"), line("O2", "Alpha"),
	})
	require.NoError(t, err)
	reverse, err := Analyze([]models.Transaction{
		line("O1", "Alpha"), line("O1", "Zeta"), line("O2", "Alpha"),
	})
	require.NoError(t, err)

	require.Len(t, forward.Associations, 1)
	require.Len(t, reverse.Associations, 1)
	assert.Equal(t, forward.Associations[0], reverse.Associations[0])
}

func TestAnalyze_SortOrder(t *testing.T) {
	txs := []models.Transaction{
		// X,Y always together: lift 3.
		line("O1", "X"), line("O1", "Y"),
		// P,Q together once, P also alone: lift 1.5.
		line("O2", "P"), line("O2", "Q"),
		line("O3", "P"),
	}
	res, err := Analyze(txs)
	require.NoError(t, err)
	require.Len(t, res.Associations, 2)

	assert.Equal(t, "X", res.Associations[0].ProductA)
	assert.Equal(t, "P", res.Associations[1].ProductA)
	for i := 1; i < len(res.Associations); i++ {
		assert.GreaterOrEqual(t, res.Associations[i-1].Lift, res.Associations[i].Lift)
	}
}

func TestAnalyze_TieBreak(t *testing.T) {
	res, err := Analyze([]models.Transaction{
		line("O1", "C"), line("O1", "D"),
		line("O2", "A"), line("O2", "B"),
	})
	require.NoError(t, err)
	require.Len(t, res.Associations, 2)
	assert.Equal(t, "A", res.Associations[0].ProductA)
	assert.Equal(t, "C", res.Associations[1].ProductA)
}

func TestAnalyze_Empty(t *testing.T) {
	_, err := Analyze(nil)
	assert.True(t, errors.HasCode(err, errors.CodeInsufficientData))
}

func TestResult_Top(t *testing.T) {
	res, err := Analyze([]models.Transaction{
		line("O1", "A"), line("O1", "B"), line("O1", "C"), line("O1", "D"),
	})
	require.NoError(t, err)
	require.Len(t, res.Associations, 6)

	assert.Len(t, res.Top(2), 2)
	assert.Len(t, res.Top(0), 6)
	assert.Len(t, res.Top(100), 6)
	assert.Len(t, res.Associations, 6, "Top must not truncate the full table")
}
