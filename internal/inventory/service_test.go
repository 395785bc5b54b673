package inventory

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/pharmaops/pharmaops/internal/identifier"
	"github.com/pharmaops/pharmaops/internal/shared"
)

type memoryRepo struct {
	mu        sync.Mutex
	items     map[int64]StockItem
	movements []Movement
	refs      map[int64]int
	nextID    int64
}

type memoryTx struct {
	items     map[int64]StockItem
	movements []Movement
	repo      *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{items: map[int64]StockItem{}, refs: map[int64]int{}}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx := &memoryTx{items: make(map[int64]StockItem, len(r.items)), movements: append([]Movement(nil), r.movements...), repo: r}
	for id, it := range r.items {
		tx.items[id] = it
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	r.items = tx.items
	r.movements = tx.movements
	return nil
}

func (r *memoryRepo) Get(_ context.Context, id int64) (StockItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	it, ok := r.items[id]
	if !ok {
		return StockItem{}, ErrNotFound
	}
	return it, nil
}

func (r *memoryRepo) List(_ context.Context, filters ListFilters) ([]StockItem, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []StockItem
	for id := int64(1); id <= r.nextID; id++ {
		it, ok := r.items[id]
		if !ok {
			continue
		}
		if filters.Search != "" && !strings.Contains(strings.ToLower(it.Name), strings.ToLower(filters.Search)) {
			continue
		}
		if filters.LowStockOnly && !it.LowStock() {
			continue
		}
		out = append(out, it)
	}
	return out, len(out), nil
}

func (r *memoryRepo) InvoiceExists(_ context.Context, invoice string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, it := range r.items {
		if it.InvoiceNumber == invoice {
			return true, nil
		}
	}
	return false, nil
}

func (r *memoryRepo) StockCard(_ context.Context, filter StockCardFilter) ([]Movement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Movement
	for _, m := range r.movements {
		if m.StockItemID == filter.StockItemID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *memoryRepo) StockLevels(_ context.Context, lowOnly bool) ([]StockLevel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []StockLevel
	for id := int64(1); id <= r.nextID; id++ {
		it, ok := r.items[id]
		if !ok || (lowOnly && !it.LowStock()) {
			continue
		}
		out = append(out, StockLevel{StockItemID: it.ID, Name: it.Name, Quantity: it.Quantity, ReorderLevel: it.ReorderLevel, LowStock: it.LowStock()})
	}
	return out, nil
}

func (tx *memoryTx) LockItem(_ context.Context, id int64) (StockItem, error) {
	it, ok := tx.items[id]
	if !ok {
		return StockItem{}, ErrNotFound
	}
	return it, nil
}

func (tx *memoryTx) AdjustQuantity(_ context.Context, id, delta int64) (int64, error) {
	it, ok := tx.items[id]
	if !ok || it.Quantity+delta < 0 {
		return 0, ErrInsufficientStock
	}
	it.Quantity += delta
	tx.items[id] = it
	return it.Quantity, nil
}

func (tx *memoryTx) InsertMovement(_ context.Context, m Movement) (Movement, error) {
	m.ID = int64(len(tx.movements) + 1)
	tx.movements = append(tx.movements, m)
	return m, nil
}

func (tx *memoryTx) InsertItem(_ context.Context, item StockItem) (StockItem, error) {
	for _, it := range tx.items {
		if it.InvoiceNumber == item.InvoiceNumber {
			return StockItem{}, ErrDuplicateInvoice
		}
	}
	tx.repo.nextID++
	item.ID = tx.repo.nextID
	tx.items[item.ID] = item
	return item, nil
}

func (tx *memoryTx) UpdateItem(_ context.Context, id int64, in UpdateInput) (StockItem, error) {
	it, ok := tx.items[id]
	if !ok {
		return StockItem{}, ErrNotFound
	}
	it.Name = in.Name
	it.SellPrice = in.SellPrice
	it.UnitPrice = in.UnitPrice
	it.RequiresPrescription = in.RequiresPrescription
	it.ReorderLevel = in.ReorderLevel
	tx.items[id] = it
	return it, nil
}

func (tx *memoryTx) CountReferences(_ context.Context, id int64) (int, error) {
	return tx.repo.refs[id], nil
}

func (tx *memoryTx) DeleteItem(_ context.Context, id int64) error {
	if _, ok := tx.items[id]; !ok {
		return ErrNotFound
	}
	delete(tx.items, id)
	return nil
}

func newTestService(repo *memoryRepo, opts ...identifier.Option) *Service {
	return NewService(repo, nil, nil, ServiceConfig{}, opts...)
}

func paracetamol(qty int64) CreateInput {
	return CreateInput{
		Name:      "Paracetamol 500mg",
		Quantity:  qty,
		UnitPrice: decimal.RequireFromString("1.20"),
		SellPrice: decimal.RequireFromString("2.50"),
	}
}

func TestCreateAssignsInvoiceAndOpeningMovement(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)

	item, err := svc.Create(context.Background(), paracetamol(50), 7)
	require.NoError(t, err)
	require.True(t, identifier.Valid(item.InvoiceNumber), item.InvoiceNumber)
	require.EqualValues(t, 50, item.Quantity)

	card, err := svc.StockCard(context.Background(), StockCardFilter{StockItemID: item.ID})
	require.NoError(t, err)
	require.Len(t, card, 1)
	require.Equal(t, MovementOpening, card[0].Type)
	require.EqualValues(t, 50, card[0].BalanceAfter)
}

func TestCreateRejectsInvalidInput(t *testing.T) {
	svc := newTestService(newMemoryRepo())
	ctx := context.Background()

	_, err := svc.Create(ctx, paracetamol(-1), 1)
	require.ErrorIs(t, err, shared.ErrInvalidQuantity)

	in := paracetamol(1)
	in.SellPrice = decimal.NewFromInt(-1)
	_, err = svc.Create(ctx, in, 1)
	require.ErrorIs(t, err, shared.ErrInvalidAmount)

	in = paracetamol(1)
	in.Name = "  "
	_, err = svc.Create(ctx, in, 1)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestCreateExhaustsWhenEveryInvoiceTaken(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, identifier.WithSuffix(func() int { return 1234 }))
	ctx := context.Background()

	first, err := svc.Create(ctx, paracetamol(1), 1)
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(first.InvoiceNumber, "-1234"))

	// Same suffix and a frozen clock force a collision on every attempt.
	svc = newTestService(repo,
		identifier.WithSuffix(func() int { return 1234 }),
		identifier.WithClock(func() time.Time { return mustInvoiceTime(t, first.InvoiceNumber) }))
	_, err = svc.Create(ctx, paracetamol(1), 1)
	require.ErrorIs(t, err, shared.ErrExhaustedRetries)
}

func TestRestockAndAdjust(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	item, err := svc.Create(ctx, paracetamol(10), 1)
	require.NoError(t, err)

	m, err := svc.Restock(ctx, AdjustmentInput{StockItemID: item.ID, Quantity: 15, ActorID: 1})
	require.NoError(t, err)
	require.EqualValues(t, 25, m.BalanceAfter)

	m, err = svc.Adjust(ctx, AdjustmentInput{StockItemID: item.ID, Quantity: -5, Note: "broken", ActorID: 1})
	require.NoError(t, err)
	require.EqualValues(t, 20, m.BalanceAfter)

	_, err = svc.Adjust(ctx, AdjustmentInput{StockItemID: item.ID, Quantity: -21, Note: "too much", ActorID: 1})
	require.ErrorIs(t, err, ErrInsufficientStock)

	_, err = svc.Restock(ctx, AdjustmentInput{StockItemID: item.ID, Quantity: 0})
	require.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = svc.Adjust(ctx, AdjustmentInput{StockItemID: item.ID, Quantity: 2})
	require.ErrorIs(t, err, shared.ErrValidation)

	got, err := svc.Get(ctx, item.ID)
	require.NoError(t, err)
	require.EqualValues(t, 20, got.Quantity)
}

func TestDeleteGuardsReferencedItems(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	item, err := svc.Create(ctx, paracetamol(5), 1)
	require.NoError(t, err)

	repo.refs[item.ID] = 1
	require.ErrorIs(t, svc.Delete(ctx, item.ID, 1), ErrInUse)
	require.ErrorIs(t, svc.Delete(ctx, item.ID, 1), shared.ErrConflict)

	repo.refs[item.ID] = 0
	require.NoError(t, svc.Delete(ctx, item.ID, 1))
	_, err = svc.Get(ctx, item.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestStockLevelsPassThrough(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	in := paracetamol(3)
	five := int64(5)
	in.ReorderLevel = &five
	low, err := svc.Create(ctx, in, 1)
	require.NoError(t, err)
	_, err = svc.Create(ctx, paracetamol(40), 1)
	require.NoError(t, err)

	levels, err := svc.StockLevels(ctx, false)
	require.NoError(t, err)
	require.Len(t, levels, 2)

	levels, err = svc.StockLevels(ctx, true)
	require.NoError(t, err)
	require.Len(t, levels, 1)
	require.Equal(t, low.ID, levels[0].StockItemID)
	require.True(t, levels[0].LowStock)
}

func TestDefaultReorderLevel(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil, ServiceConfig{DefaultReorderLevel: 10})
	item, err := svc.Create(context.Background(), paracetamol(8), 1)
	require.NoError(t, err)
	require.EqualValues(t, 10, item.ReorderLevel)
	require.True(t, item.LowStock())

	zero := int64(0)
	in := paracetamol(8)
	in.ReorderLevel = &zero
	item, err = svc.Create(context.Background(), in, 1)
	require.NoError(t, err)
	require.EqualValues(t, 0, item.ReorderLevel)
}

func TestApplyDelta(t *testing.T) {
	next, err := ApplyDelta(50, -10)
	require.NoError(t, err)
	require.EqualValues(t, 40, next)

	_, err = ApplyDelta(40, -45)
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
}

func mustInvoiceTime(t *testing.T, invoice string) time.Time {
	t.Helper()
	parts := strings.Split(invoice, "-")
	require.Len(t, parts, 4)
	ts, err := time.Parse("20060102150405.000", parts[1]+parts[2][:6]+"."+parts[2][6:])
	require.NoError(t, err)
	return ts
}
