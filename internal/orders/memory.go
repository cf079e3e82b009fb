package orders

import (
	"context"
	"fmt"
	"iter"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process Repository used for local runs and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	orders   map[string]Order
	byNumber map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orders:   make(map[string]Order),
		byNumber: make(map[string]string),
	}
}

func (m *MemoryStore) Get(ctx context.Context, orderID string) (Order, error) {
	if err := ctx.Err(); err != nil {
		return Order{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.orders[orderID]
	if !ok {
		return Order{}, newError(KindNotFound, "get order", "order %s does not exist", orderID)
	}
	return o.Clone(), nil
}

func (m *MemoryStore) Insert(ctx context.Context, order Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.orders[order.ID]; exists {
		return newError(KindPersistence, "insert order", "order %s already exists", order.ID)
	}
	if _, exists := m.byNumber[order.OrderNumber]; exists {
		return newError(KindPersistence, "insert order", "order number %s already allocated", order.OrderNumber)
	}
	m.orders[order.ID] = order.Clone()
	m.byNumber[order.OrderNumber] = order.ID
	return nil
}

func (m *MemoryStore) Save(ctx context.Context, order Order, expectedVersion int64) (Order, error) {
	if err := ctx.Err(); err != nil {
		return Order{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.orders[order.ID]
	if !ok {
		return Order{}, newError(KindNotFound, "save order", "order %s does not exist", order.ID)
	}
	if current.Version != expectedVersion {
		return Order{}, newError(KindStaleState, "save order",
			"order %s is at version %d, expected %d", order.ID, current.Version, expectedVersion)
	}
	saved := order.Clone()
	saved.Version = expectedVersion + 1
	m.orders[order.ID] = saved
	return saved.Clone(), nil
}

// Query yields a snapshot taken when iteration starts, oldest first.
func (m *MemoryStore) Query(ctx context.Context, scope Scope) iter.Seq2[Order, error] {
	return func(yield func(Order, error) bool) {
		if err := ctx.Err(); err != nil {
			yield(Order{}, err)
			return
		}
		m.mu.RLock()
		snapshot := make([]Order, 0, len(m.orders))
		for _, o := range m.orders {
			if scope.CustomerID != "" && o.CustomerID != scope.CustomerID {
				continue
			}
			snapshot = append(snapshot, o.Clone())
		}
		m.mu.RUnlock()

		sort.Slice(snapshot, func(i, j int) bool {
			if snapshot[i].CreatedAt.Equal(snapshot[j].CreatedAt) {
				return snapshot[i].ID < snapshot[j].ID
			}
			return snapshot[i].CreatedAt.Before(snapshot[j].CreatedAt)
		})
		for _, o := range snapshot {
			if !yield(o, nil) {
				return
			}
		}
	}
}

// MemoryNumbers allocates sequential order numbers per year in process memory.
type MemoryNumbers struct {
	mu     sync.Mutex
	prefix string
	seq    map[int]int64
}

func NewMemoryNumbers(prefix string) *MemoryNumbers {
	if prefix == "" {
		prefix = DefaultNumberPrefix
	}
	return &MemoryNumbers{prefix: prefix, seq: make(map[int]int64)}
}

func (m *MemoryNumbers) Next(_ context.Context, now time.Time) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	year := now.UTC().Year()
	m.seq[year]++
	return formatOrderNumber(m.prefix, year, m.seq[year]), nil
}

func formatOrderNumber(prefix string, year int, seq int64) string {
	return fmt.Sprintf("%s-%04d-%06d", prefix, year, seq)
}
