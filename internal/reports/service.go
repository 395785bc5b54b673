package reports

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/pharmaops/pharmaops/internal/credits"
	"github.com/pharmaops/pharmaops/internal/inventory"
)

// StockSource lists current stock levels.
type StockSource interface {
	StockLevels(ctx context.Context, lowOnly bool) ([]inventory.StockLevel, error)
}

// CreditSource sums the credit ledger per counterparty kind.
type CreditSource interface {
	Outstanding(ctx context.Context) (map[credits.Kind]credits.Totals, error)
}

// ExpenseSource sums operating expenses dated in [from, to).
type ExpenseSource interface {
	TotalBetween(ctx context.Context, from, to time.Time) (decimal.Decimal, error)
}

// Service coordinates report queries with the cache layer.
type Service struct {
	repo    RepositoryPort
	stock   StockSource
	credits CreditSource
	spend   ExpenseSource
	cache   *Cache
	logger  *slog.Logger
	group   singleflight.Group
	now     func() time.Time
}

// NewService wires the report sources with a Cache helper.
func NewService(repo RepositoryPort, stock StockSource, ledger CreditSource, cache *Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, stock: stock, credits: ledger, cache: cache, logger: logger, now: time.Now}
}

// WithExpenses makes Dashboard net revenue against src.
func (s *Service) WithExpenses(src ExpenseSource) *Service {
	s.spend = src
	return s
}

// SalesSummary returns the summary for rng ranked to n items. The sales part is
// cached per version; stock levels are always read live.
func (s *Service) SalesSummary(ctx context.Context, rng Range, n int) (Summary, error) {
	if err := rng.Validate(); err != nil {
		return Summary{}, err
	}
	n = normalizeTopN(n)
	summary, err := s.cachedSales(ctx, rng, n)
	if err != nil {
		return Summary{}, err
	}
	stock, err := s.stock.StockLevels(ctx, false)
	if err != nil {
		return Summary{}, err
	}
	if stock == nil {
		stock = []inventory.StockLevel{}
	}
	summary.Stock = stock
	return summary, nil
}

func (s *Service) cachedSales(ctx context.Context, rng Range, n int) (Summary, error) {
	key, err := s.cache.BuildKey(ctx, "reports", "summary", stamp(rng.From), stamp(rng.To), strconv.Itoa(n))
	if err != nil {
		return Summary{}, err
	}
	v, err, _ := s.group.Do(key, func() (any, error) {
		var summary Summary
		err := s.cache.FetchJSON(ctx, key, &summary, func(ctx context.Context) (any, error) {
			rows, err := s.repo.SaleRows(ctx, rng)
			if err != nil {
				return nil, err
			}
			built := Summarize(rows, nil, n)
			built.Range = rng
			return built, nil
		})
		return summary, err
	})
	if err != nil {
		return Summary{}, err
	}
	return v.(Summary), nil
}

// StockLevels passes current stock through.
func (s *Service) StockLevels(ctx context.Context, lowOnly bool) ([]inventory.StockLevel, error) {
	levels, err := s.stock.StockLevels(ctx, lowOnly)
	if err != nil {
		return nil, err
	}
	if levels == nil {
		levels = []inventory.StockLevel{}
	}
	return levels, nil
}

// Dashboard returns headline counters for rng.
func (s *Service) Dashboard(ctx context.Context, rng Range) (Dashboard, error) {
	if err := rng.Validate(); err != nil {
		return Dashboard{}, err
	}
	count, revenue, err := s.repo.SalesTotals(ctx, rng)
	if err != nil {
		return Dashboard{}, err
	}
	low, err := s.stock.StockLevels(ctx, true)
	if err != nil {
		return Dashboard{}, err
	}
	outstanding, err := s.credits.Outstanding(ctx)
	if err != nil {
		return Dashboard{}, err
	}
	for _, kind := range []credits.Kind{credits.KindCustomer, credits.KindSupplier} {
		if _, ok := outstanding[kind]; !ok {
			outstanding[kind] = credits.Sum(nil)
		}
	}
	spent := decimal.Zero
	if s.spend != nil {
		if spent, err = s.spend.TotalBetween(ctx, rng.From, rng.To); err != nil {
			return Dashboard{}, err
		}
	}
	return Dashboard{
		Range:         rng,
		SalesCount:    count,
		Revenue:       revenue,
		Expenses:      spent,
		NetRevenue:    revenue.Sub(spent),
		LowStockCount: len(low),
		Outstanding:   outstanding,
	}, nil
}

// Today is the UTC calendar day containing now.
func (s *Service) Today() Range {
	now := s.now().UTC()
	from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return Range{From: from, To: from.AddDate(0, 0, 1)}
}

// Warmup builds today's summary into the cache.
func (s *Service) Warmup(ctx context.Context) error {
	rng := s.Today()
	if _, err := s.cachedSales(ctx, rng, DefaultTopN); err != nil {
		return err
	}
	s.logger.Info("report cache warmed", slog.Time("from", rng.From))
	return nil
}

// Invalidate drops every cached summary.
func (s *Service) Invalidate(ctx context.Context) error {
	return s.cache.Bump(ctx)
}

func stamp(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return strconv.FormatInt(t.UTC().Unix(), 10)
}
