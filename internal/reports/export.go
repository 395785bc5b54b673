package reports

import (
	"encoding/csv"
	"io"
	"strconv"
)

// WriteSummaryCSV emits totals, rankings and per-item sales as CSV sections.
func WriteSummaryCSV(w io.Writer, s Summary) error {
	writer := csv.NewWriter(w)
	records := [][]string{
		{"Metric", "Value"},
		{"Sales Count", strconv.Itoa(s.SalesCount)},
		{"Total Quantity", strconv.FormatInt(s.TotalQuantity, 10)},
		{"Total Revenue", s.TotalRevenue.StringFixed(2)},
		{},
	}
	section := func(title string, items []ItemTotal) {
		records = append(records, []string{title, "Stock Item ID", "Name", "Total Sales", "Revenue"})
		for i, it := range items {
			records = append(records, []string{
				strconv.Itoa(i + 1),
				strconv.FormatInt(it.StockItemID, 10),
				it.Name,
				strconv.FormatInt(it.TotalSales, 10),
				it.Revenue.StringFixed(2),
			})
		}
		records = append(records, []string{})
	}
	section("Top", s.Top)
	section("Bottom", s.Bottom)
	section("Per Item", s.PerItem)

	for _, record := range records {
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
