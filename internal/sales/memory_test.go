package sales

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pharmaops/pharmaops/internal/inventory"
)

type memoryState struct {
	items     map[int64]inventory.StockItem
	sales     map[int64]Sale
	returns   map[int64]Return
	movements []inventory.Movement
}

func (s memoryState) clone() memoryState {
	out := memoryState{
		items:     make(map[int64]inventory.StockItem, len(s.items)),
		sales:     make(map[int64]Sale, len(s.sales)),
		returns:   make(map[int64]Return, len(s.returns)),
		movements: append([]inventory.Movement(nil), s.movements...),
	}
	for k, v := range s.items {
		out.items[k] = v
	}
	for k, v := range s.sales {
		out.sales[k] = v
	}
	for k, v := range s.returns {
		out.returns[k] = v
	}
	return out
}

type memoryRepo struct {
	mu     sync.Mutex
	state  memoryState
	nextID int64
}

type memoryTx struct {
	repo  *memoryRepo
	state memoryState
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{state: memoryState{
		items:   map[int64]inventory.StockItem{},
		sales:   map[int64]Sale{},
		returns: map[int64]Return{},
	}}
}

func (r *memoryRepo) addItem(qty int64, price string, rx bool) inventory.StockItem {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	item := inventory.StockItem{
		ID:                   r.nextID,
		Name:                 "Item",
		Quantity:             qty,
		SellPrice:            decimal.RequireFromString(price),
		RequiresPrescription: rx,
	}
	r.state.items[item.ID] = item
	return item
}

func (r *memoryRepo) quantity(id int64) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.items[id].Quantity
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx := &memoryTx{repo: r, state: r.state.clone()}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	r.state = tx.state
	return nil
}

func (r *memoryRepo) Get(_ context.Context, id int64) (Sale, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sale, ok := r.state.sales[id]
	if !ok {
		return Sale{}, ErrNotFound
	}
	sale.ReturnedQuantity = returned(r.state, id)
	return sale, nil
}

func (r *memoryRepo) List(_ context.Context, _ ListFilters) ([]Sale, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Sale
	for _, s := range r.state.sales {
		out = append(out, s)
	}
	return out, len(out), nil
}

func (r *memoryRepo) ListReturns(_ context.Context, _ ListFilters) ([]Return, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Return
	for _, ret := range r.state.returns {
		out = append(out, ret)
	}
	return out, len(out), nil
}

func returned(state memoryState, saleID int64) int64 {
	var n int64
	for _, ret := range state.returns {
		if ret.SaleID == saleID {
			n += ret.Quantity
		}
	}
	return n
}

func (tx *memoryTx) LockItem(_ context.Context, id int64) (inventory.StockItem, error) {
	item, ok := tx.state.items[id]
	if !ok {
		return inventory.StockItem{}, inventory.ErrNotFound
	}
	return item, nil
}

func (tx *memoryTx) AdjustQuantity(_ context.Context, id, delta int64) (int64, error) {
	item, ok := tx.state.items[id]
	if !ok || item.Quantity+delta < 0 {
		return 0, inventory.ErrInsufficientStock
	}
	item.Quantity += delta
	tx.state.items[id] = item
	return item.Quantity, nil
}

func (tx *memoryTx) InsertMovement(_ context.Context, m inventory.Movement) (inventory.Movement, error) {
	m.ID = int64(len(tx.state.movements) + 1)
	tx.state.movements = append(tx.state.movements, m)
	return m, nil
}

func (tx *memoryTx) LockSale(_ context.Context, id int64) (Sale, error) {
	sale, ok := tx.state.sales[id]
	if !ok {
		return Sale{}, ErrNotFound
	}
	sale.ReturnedQuantity = returned(tx.state, id)
	return sale, nil
}

func (tx *memoryTx) InsertSale(_ context.Context, sale Sale) (Sale, error) {
	tx.repo.nextID++
	sale.ID = tx.repo.nextID
	if sale.SaleDate.IsZero() {
		sale.SaleDate = time.Now().UTC()
	}
	tx.state.sales[sale.ID] = sale
	return sale, nil
}

func (tx *memoryTx) UpdateSale(_ context.Context, sale Sale) (Sale, error) {
	if _, ok := tx.state.sales[sale.ID]; !ok {
		return Sale{}, ErrNotFound
	}
	tx.state.sales[sale.ID] = sale
	return sale, nil
}

func (tx *memoryTx) DeleteSale(_ context.Context, id int64) error {
	if _, ok := tx.state.sales[id]; !ok {
		return ErrNotFound
	}
	delete(tx.state.sales, id)
	return nil
}

func (tx *memoryTx) LockReturn(_ context.Context, id int64) (Return, error) {
	ret, ok := tx.state.returns[id]
	if !ok {
		return Return{}, ErrReturnNotFound
	}
	return ret, nil
}

func (tx *memoryTx) InsertReturn(_ context.Context, ret Return) (Return, error) {
	tx.repo.nextID++
	ret.ID = tx.repo.nextID
	ret.ReturnedAt = time.Now().UTC()
	tx.state.returns[ret.ID] = ret
	return ret, nil
}

func (tx *memoryTx) DeleteReturn(_ context.Context, id int64) error {
	if _, ok := tx.state.returns[id]; !ok {
		return ErrReturnNotFound
	}
	delete(tx.state.returns, id)
	return nil
}
