package repositories

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"meatshop/internal/models"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory implementation of ProductRepository,
// OrderRepository and TxManager sharing one set of rows.
type MemoryStore struct {
	mu          sync.RWMutex
	products    map[string]models.Product
	orders      map[string]models.Order
	locks       *lockTable
	lockTimeout time.Duration
}

// NewMemoryStore creates an empty store. Row locks give up after lockTimeout.
func NewMemoryStore(lockTimeout time.Duration) *MemoryStore {
	if lockTimeout <= 0 {
		lockTimeout = 5 * time.Second
	}
	return &MemoryStore{
		products:    make(map[string]models.Product),
		orders:      make(map[string]models.Order),
		locks:       newLockTable(),
		lockTimeout: lockTimeout,
	}
}

// GetAll returns all products ordered by name.
func (s *MemoryStore) GetAll(ctx context.Context) ([]models.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	productList := make([]models.Product, 0, len(s.products))
	for _, p := range s.products {
		productList = append(productList, p)
	}
	sort.Slice(productList, func(i, j int) bool { return productList[i].Name < productList[j].Name })
	return productList, nil
}

// GetByID returns a product by its ID.
func (s *MemoryStore) GetByID(ctx context.Context, id string) (*models.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, ok := s.products[id]
	if !ok {
		return nil, fmt.Errorf("product with ID %s: %w", id, ErrNotFound)
	}
	return &product, nil
}

// Create adds a new product.
func (s *MemoryStore) Create(ctx context.Context, product *models.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.ID == "" {
		product.ID = uuid.New().String()
	}
	if _, exists := s.products[product.ID]; exists {
		return fmt.Errorf("product with ID %s already exists", product.ID)
	}
	now := time.Now()
	product.CreatedAt, product.UpdatedAt = now, now
	s.products[product.ID] = *product
	return nil
}

// Orders exposes the store's order side as an OrderRepository.
func (s *MemoryStore) Orders() OrderRepository {
	return memoryOrders{s}
}

type memoryOrders struct{ s *MemoryStore }

func (r memoryOrders) GetAll(ctx context.Context, filter OrderFilter) ([]models.Order, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	orderList := make([]models.Order, 0, len(r.s.orders))
	for _, order := range r.s.orders {
		if filter.UserID != "" && order.UserID != filter.UserID {
			continue
		}
		if filter.Status != "" && order.Status != filter.Status {
			continue
		}
		orderList = append(orderList, order.Clone())
	}
	sort.Slice(orderList, func(i, j int) bool { return orderList[i].CreatedAt.After(orderList[j].CreatedAt) })
	return orderList, nil
}

func (r memoryOrders) GetByID(ctx context.Context, id string) (*models.Order, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	order, ok := r.s.orders[id]
	if !ok {
		return nil, fmt.Errorf("order with ID %s: %w", id, ErrNotFound)
	}
	clone := order.Clone()
	return &clone, nil
}

// WithinTx runs fn against staged copies of the rows it locks and publishes
// them only when fn returns nil.
func (s *MemoryStore) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	tx := &memoryTx{
		ctx:      ctx,
		store:    s,
		products: make(map[string]*models.Product),
		orders:   make(map[string]*models.Order),
	}
	defer tx.releaseAll()

	if err := fn(tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

type memoryTx struct {
	ctx            context.Context
	store          *MemoryStore
	held           []string
	productsLocked bool
	products       map[string]*models.Product
	orders         map[string]*models.Order
	dirtyProducts  map[string]struct{}
	dirtyOrders    map[string]struct{}
}

func (tx *memoryTx) lock(key string) error {
	if err := tx.store.locks.acquire(tx.ctx, key, tx.store.lockTimeout); err != nil {
		return err
	}
	tx.held = append(tx.held, key)
	return nil
}

func (tx *memoryTx) releaseAll() {
	for i := len(tx.held) - 1; i >= 0; i-- {
		tx.store.locks.release(tx.held[i])
	}
	tx.held = nil
}

func (tx *memoryTx) LockOrder(id string) (*models.Order, error) {
	if order, ok := tx.orders[id]; ok {
		return order, nil
	}
	if tx.productsLocked {
		return nil, fmt.Errorf("order %s must be locked before products", id)
	}
	if err := tx.lock("order:" + id); err != nil {
		return nil, err
	}
	tx.store.mu.RLock()
	order, ok := tx.store.orders[id]
	tx.store.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("order with ID %s: %w", id, ErrNotFound)
	}
	staged := order.Clone()
	tx.orders[id] = &staged
	return &staged, nil
}

func (tx *memoryTx) LockProducts(ids []string) (map[string]*models.Product, error) {
	if tx.productsLocked {
		return nil, fmt.Errorf("products already locked in this transaction")
	}
	tx.productsLocked = true

	for _, id := range sortedUnique(ids) {
		if err := tx.lock("product:" + id); err != nil {
			return nil, err
		}
		tx.store.mu.RLock()
		p, ok := tx.store.products[id]
		tx.store.mu.RUnlock()
		if !ok {
			return nil, fmt.Errorf("product with ID %s: %w", id, ErrNotFound)
		}
		tx.products[id] = &p
	}

	out := make(map[string]*models.Product, len(tx.products))
	for id, p := range tx.products {
		out[id] = p
	}
	return out, nil
}

func (tx *memoryTx) SaveStock(p *models.Product) error {
	if _, ok := tx.products[p.ID]; !ok {
		return fmt.Errorf("product %s is not locked by this transaction", p.ID)
	}
	staged := *tx.products[p.ID]
	staged.TotalStock = p.TotalStock
	staged.ReservedStock = p.ReservedStock
	*tx.products[p.ID] = staged
	if tx.dirtyProducts == nil {
		tx.dirtyProducts = make(map[string]struct{})
	}
	tx.dirtyProducts[p.ID] = struct{}{}
	return nil
}

func (tx *memoryTx) CreateOrder(order *models.Order) error {
	if order.ID == "" {
		order.ID = uuid.New().String()
	}
	tx.store.mu.RLock()
	_, exists := tx.store.orders[order.ID]
	tx.store.mu.RUnlock()
	if exists {
		return fmt.Errorf("order with ID %s already exists", order.ID)
	}
	for i := range order.Items {
		order.Items[i].OrderID = order.ID
		if order.Items[i].ID == "" {
			order.Items[i].ID = uuid.New().String()
		}
	}
	now := time.Now()
	order.CreatedAt, order.UpdatedAt = now, now
	staged := order.Clone()
	tx.orders[order.ID] = &staged
	tx.markOrder(order.ID)
	return nil
}

func (tx *memoryTx) SaveOrder(order *models.Order) error {
	current, ok := tx.orders[order.ID]
	if !ok {
		return fmt.Errorf("order %s is not locked by this transaction", order.ID)
	}
	staged := order.Clone()
	staged.Items = current.Items
	staged.UpdatedAt = time.Now()
	*current = staged
	order.UpdatedAt = staged.UpdatedAt
	tx.markOrder(order.ID)
	return nil
}

func (tx *memoryTx) markOrder(id string) {
	if tx.dirtyOrders == nil {
		tx.dirtyOrders = make(map[string]struct{})
	}
	tx.dirtyOrders[id] = struct{}{}
}

func (tx *memoryTx) commit() {
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()

	now := time.Now()
	for id := range tx.dirtyProducts {
		p := *tx.products[id]
		p.UpdatedAt = now
		tx.store.products[id] = p
	}
	for id := range tx.dirtyOrders {
		tx.store.orders[id] = tx.orders[id].Clone()
	}
}

func sortedUnique(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
