package reports

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pharmaops/pharmaops/internal/inventory"
)

func row(item int64, name string, qty int64, amount string) SaleRow {
	return SaleRow{StockItemID: item, Name: name, Quantity: qty, Amount: decimal.RequireFromString(amount)}
}

func ids(items []ItemTotal) []int64 {
	out := make([]int64, len(items))
	for i, it := range items {
		out[i] = it.StockItemID
	}
	return out
}

func TestSummarizeRankings(t *testing.T) {
	rows := []SaleRow{
		row(3, "Amoxicillin", 4, "40"),
		row(1, "Paracetamol", 10, "20"),
		row(2, "Ibuprofen", 4, "12"),
		row(3, "Amoxicillin", 6, "60"),
		row(4, "Cetirizine", 1, "3"),
		row(5, "Antasida", 0, "0"),
	}
	stock := []inventory.StockLevel{{StockItemID: 1, Name: "Paracetamol", Quantity: 40}}

	s := Summarize(rows, stock, 3)

	assert.Equal(t, 6, s.SalesCount)
	assert.EqualValues(t, 25, s.TotalQuantity)
	assert.Equal(t, "135", s.TotalRevenue.String())
	assert.Equal(t, []int64{1, 2, 3, 4, 5}, ids(s.PerItem))
	assert.EqualValues(t, 10, s.PerItem[2].TotalSales)

	// 1 and 3 tie on 10, 2 trails with 4.
	assert.Equal(t, []int64{1, 3, 2}, ids(s.Top))
	// Item 5 sold nothing net and is left out of the bottom list.
	assert.Equal(t, []int64{4, 2, 1}, ids(s.Bottom))
	assert.Equal(t, stock, s.Stock)
}

func TestSummarizeEmpty(t *testing.T) {
	s := Summarize(nil, nil, 0)
	require.Equal(t, 0, s.SalesCount)
	require.True(t, s.TotalRevenue.IsZero())
	require.Empty(t, s.Top)
	require.Empty(t, s.Bottom)
	require.NotNil(t, s.Top)
}

func TestSummarizeTopNBounds(t *testing.T) {
	var rows []SaleRow
	for i := int64(1); i <= 8; i++ {
		rows = append(rows, row(i, "item", i, "1"))
	}
	s := Summarize(rows, nil, 0)
	require.Len(t, s.Top, DefaultTopN)
	require.Equal(t, []int64{8, 7, 6, 5, 4}, ids(s.Top))
	require.Equal(t, []int64{1, 2, 3, 4, 5}, ids(s.Bottom))

	s = Summarize(rows, nil, 1000)
	require.Len(t, s.Top, 8)
}
