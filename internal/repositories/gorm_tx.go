package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"meatshop/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// pgLockNotAvailable is the SQLSTATE postgres raises when lock_timeout expires.
const pgLockNotAvailable = "55P03"

// GORMTxManager is a GORM implementation of TxManager. Row locks are taken
// with SELECT ... FOR UPDATE; on postgres the wait is bounded by lock_timeout.
// Waiting for a pooled connection is bounded by the same timeout, which is
// what limits a blocked writer on sqlite where the pool holds one connection.
type GORMTxManager struct {
	db          *gorm.DB
	lockTimeout time.Duration
}

// NewGORMTxManager creates a new instance of GORMTxManager.
func NewGORMTxManager(db *gorm.DB, lockTimeout time.Duration) *GORMTxManager {
	return &GORMTxManager{db: db, lockTimeout: lockTimeout}
}

// WithinTx runs fn inside a database transaction.
func (m *GORMTxManager) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	run := func(db *gorm.DB) error {
		return db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
			if m.db.Dialector.Name() == "postgres" && m.lockTimeout > 0 {
				stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", m.lockTimeout.Milliseconds())
				if err := db.Exec(stmt).Error; err != nil {
					return fmt.Errorf("failed to set lock timeout: %w", err)
				}
			}
			return fn(&gormTx{db: db})
		})
	}
	if m.lockTimeout <= 0 {
		return translateLockError(run(m.db))
	}

	// the deadline only covers taking a connection from the pool
	acquireCtx, cancel := context.WithTimeout(ctx, m.lockTimeout)
	defer cancel()
	acquired := false
	err := m.db.WithContext(acquireCtx).Connection(func(conn *gorm.DB) error {
		acquired = true
		return run(conn)
	})
	if err != nil && !acquired && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return fmt.Errorf("waiting for a connection: %w", ErrLockTimeout)
	}
	return translateLockError(err)
}

func translateLockError(err error) error {
	if err == nil || errors.Is(err, ErrLockTimeout) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgLockNotAvailable {
		return fmt.Errorf("%s: %w", pgErr.Message, ErrLockTimeout)
	}
	// sqlite serialises writers on the whole database
	if msg := err.Error(); strings.Contains(msg, "database is locked") || strings.Contains(msg, "database table is locked") {
		return fmt.Errorf("%s: %w", msg, ErrLockTimeout)
	}
	return err
}

type gormTx struct {
	db             *gorm.DB
	productsLocked bool
}

func (tx *gormTx) forUpdate() *gorm.DB {
	return tx.db.Clauses(clause.Locking{Strength: "UPDATE"})
}

func (tx *gormTx) LockOrder(id string) (*models.Order, error) {
	if tx.productsLocked {
		return nil, fmt.Errorf("order %s must be locked before products", id)
	}
	var order models.Order
	if err := tx.forUpdate().Preload("Items").First(&order, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("order with ID %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to lock order %s: %w", id, err)
	}
	return &order, nil
}

func (tx *gormTx) LockProducts(ids []string) (map[string]*models.Product, error) {
	if tx.productsLocked {
		return nil, fmt.Errorf("products already locked in this transaction")
	}
	tx.productsLocked = true

	out := make(map[string]*models.Product, len(ids))
	// one statement per row keeps the acquisition order explicit
	for _, id := range sortedUnique(ids) {
		var p models.Product
		if err := tx.forUpdate().First(&p, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, fmt.Errorf("product with ID %s: %w", id, ErrNotFound)
			}
			return nil, fmt.Errorf("failed to lock product %s: %w", id, err)
		}
		out[id] = &p
	}
	return out, nil
}

func (tx *gormTx) SaveStock(p *models.Product) error {
	res := tx.db.Model(&models.Product{}).Where("id = ?", p.ID).Updates(map[string]any{
		"total_stock":    p.TotalStock,
		"reserved_stock": p.ReservedStock,
		"updated_at":     time.Now(),
	})
	if res.Error != nil {
		return fmt.Errorf("failed to save stock of product %s: %w", p.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("product with ID %s: %w", p.ID, ErrNotFound)
	}
	return nil
}

func (tx *gormTx) CreateOrder(order *models.Order) error {
	if order.ID == "" {
		order.ID = uuid.New().String()
	}
	for i := range order.Items {
		order.Items[i].OrderID = order.ID
		if order.Items[i].ID == "" {
			order.Items[i].ID = uuid.New().String()
		}
	}
	if err := tx.db.Create(order).Error; err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}
	return nil
}

func (tx *gormTx) SaveOrder(order *models.Order) error {
	if err := tx.db.Omit(clause.Associations).Save(order).Error; err != nil {
		return fmt.Errorf("failed to save order %s: %w", order.ID, err)
	}
	return nil
}
