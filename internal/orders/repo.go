package orders

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/storefront-orders/pkg/db/models"
	"github.com/angelmondragon/storefront-orders/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-orders/pkg/errors"
	"github.com/angelmondragon/storefront-orders/pkg/pagination"
)

// UniqueOrderNumber is the constraint guarding order numbers.
const UniqueOrderNumber = "orders_order_number_key"

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// Create inserts the order followed by its lines. Errors are returned raw so
// callers can detect order number collisions.
func (r *repository) Create(ctx context.Context, order *models.Order) error {
	db := r.db.WithContext(ctx)
	if err := db.Create(order).Error; err != nil {
		return err
	}
	if len(order.Lines) == 0 {
		return nil
	}
	for i := range order.Lines {
		order.Lines[i].OrderID = order.ID
	}
	return db.Create(&order.Lines).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return r.findOne(ctx, r.db.WithContext(ctx).Where("id = ?", id))
}

// FindByIDForUpdate row-locks the order for the rest of the transaction.
func (r *repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return r.findOne(ctx, r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id))
}

func (r *repository) FindByNumber(ctx context.Context, number string) (*models.Order, error) {
	return r.findOne(ctx, r.db.WithContext(ctx).Where("order_number = ?", number))
}

func (r *repository) findOne(ctx context.Context, query *gorm.DB) (*models.Order, error) {
	var order models.Order
	err := query.Take(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if err := r.attachLines(ctx, []*models.Order{&order}); err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) ListByUser(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.Order, error) {
	params = params.Normalize()
	var rows []models.Order
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(params.Size).
		Offset(params.Offset()).
		Find(&rows).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	ptrs := make([]*models.Order, len(rows))
	for i := range rows {
		ptrs[i] = &rows[i]
	}
	if err := r.attachLines(ctx, ptrs); err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) CountByUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Order{}).Where("user_id = ?", userID).Count(&count).Error; err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count orders")
	}
	return count, nil
}

// ListByStatus pages orders across all customers, newest first. An empty
// status matches every order.
func (r *repository) ListByStatus(ctx context.Context, status enums.OrderStatus, params pagination.Params) ([]models.Order, error) {
	params = params.Normalize()
	var rows []models.Order
	err := byStatus(r.db.WithContext(ctx), status).
		Order("created_at DESC").
		Order("id DESC").
		Limit(params.Size).
		Offset(params.Offset()).
		Find(&rows).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders by status")
	}
	ptrs := make([]*models.Order, len(rows))
	for i := range rows {
		ptrs[i] = &rows[i]
	}
	if err := r.attachLines(ctx, ptrs); err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) CountByStatus(ctx context.Context, status enums.OrderStatus) (int64, error) {
	var count int64
	if err := byStatus(r.db.WithContext(ctx).Model(&models.Order{}), status).Count(&count).Error; err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count orders by status")
	}
	return count, nil
}

func byStatus(db *gorm.DB, status enums.OrderStatus) *gorm.DB {
	if status == "" {
		return db
	}
	return db.Where("status = ?", status)
}

// TransitionStatus moves the order to `to` only while it is in one of `from`.
// It reports false when the guard did not match.
func (r *repository) TransitionStatus(ctx context.Context, id uuid.UUID, from []enums.OrderStatus, to enums.OrderStatus) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status IN ?", id, from).
		UpdateColumns(map[string]any{"status": to, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "update order status")
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) RecordPayment(ctx context.Context, id uuid.UUID, reference string, confirmedAt time.Time) error {
	err := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", id).
		UpdateColumns(map[string]any{
			"payment_reference":    reference,
			"payment_confirmed_at": confirmedAt.UTC(),
			"updated_at":           time.Now().UTC(),
		}).Error
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record payment")
	}
	return nil
}

func (r *repository) FindDeliveredWithProduct(ctx context.Context, userID, productID uuid.UUID) ([]models.Order, error) {
	var rows []models.Order
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, enums.OrderStatusDelivered).
		Where("id IN (?)", r.db.Model(&models.OrderLine{}).Select("order_id").Where("product_id = ?", productID)).
		Order("created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find purchases")
	}
	return rows, nil
}

func (r *repository) attachLines(ctx context.Context, orders []*models.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, len(orders))
	byID := make(map[uuid.UUID]*models.Order, len(orders))
	for i, order := range orders {
		ids[i] = order.ID
		byID[order.ID] = order
		order.Lines = nil
	}
	var lines []models.OrderLine
	if err := r.db.WithContext(ctx).Where("order_id IN ?", ids).Order("product_id ASC").Find(&lines).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order lines")
	}
	for _, line := range lines {
		if order, ok := byID[line.OrderID]; ok {
			order.Lines = append(order.Lines, line)
		}
	}
	return nil
}
