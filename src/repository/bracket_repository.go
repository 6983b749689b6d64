package repository

import (
	"context"
	"errors"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"copytrader/src/database"
	"copytrader/src/model"
)

// BracketRepository handles read/write operations for bracket summaries,
// their order legs and the event audit trail. It implements bracket.Store.
type BracketRepository struct {
	db *gorm.DB
}

// NewBracketRepository creates a new repository instance using the main
// read/write database.
func NewBracketRepository() *BracketRepository {
	logger.WithField("component", "BracketRepository").
		Info("Creating new BracketRepository with MainDB")

	return &BracketRepository{db: database.MainDB}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or when using a specific session/transaction.
func (r *BracketRepository) WithDB(db *gorm.DB) *BracketRepository {
	logger.WithField("component", "BracketRepository").
		Debug("Creating BracketRepository with custom DB instance")

	return &BracketRepository{db: db}
}

// CreateBracket inserts the summary row and every order leg in a single
// transaction. If any insert fails nothing is committed.
func (r *BracketRepository) CreateBracket(
	ctx context.Context,
	bracket *model.Bracket,
	orders []*model.Order,
) error {

	logger.WithFields(map[string]interface{}{
		"repo":       "BracketRepository",
		"op":         "CreateBracket",
		"bracket_id": bracket.ID,
		"orders":     len(orders),
	}).Debug("Creating bracket order group")

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(bracket).Error; err != nil {
			return err
		}
		for _, order := range orders {
			if err := tx.Create(order).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":       "BracketRepository",
			"op":         "CreateBracket",
			"bracket_id": bracket.ID,
		}).WithError(err).Error("Failed to create bracket order group")

		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":       "BracketRepository",
		"op":         "CreateBracket",
		"bracket_id": bracket.ID,
	}).Info("Bracket order group created successfully")

	return nil
}

// UpdateOrderFields applies a partial field set to a single order row.
func (r *BracketRepository) UpdateOrderFields(
	ctx context.Context,
	orderID string,
	fields map[string]interface{},
) error {

	logger.WithFields(map[string]interface{}{
		"repo":     "BracketRepository",
		"op":       "UpdateOrderFields",
		"order_id": orderID,
	}).Debug("Updating order fields")

	err := r.db.WithContext(ctx).
		Model(&model.Order{}).
		Where("id = ?", orderID).
		Updates(fields).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":     "BracketRepository",
			"op":       "UpdateOrderFields",
			"order_id": orderID,
		}).WithError(err).Error("Failed to update order fields")

		return err
	}

	return nil
}

// UpdateBracketStatus updates only the status of the given bracket summary.
func (r *BracketRepository) UpdateBracketStatus(
	ctx context.Context,
	bracketID string,
	status string,
) error {

	logger.WithFields(map[string]interface{}{
		"repo":       "BracketRepository",
		"op":         "UpdateBracketStatus",
		"bracket_id": bracketID,
		"status":     status,
	}).Debug("Updating bracket status")

	err := r.db.WithContext(ctx).
		Model(&model.Bracket{}).
		Where("id = ?", bracketID).
		Update("status", status).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":       "BracketRepository",
			"op":         "UpdateBracketStatus",
			"bracket_id": bracketID,
			"status":     status,
		}).WithError(err).Error("Failed to update bracket status")

		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":       "BracketRepository",
		"op":         "UpdateBracketStatus",
		"bracket_id": bracketID,
		"status":     status,
	}).Info("Bracket status updated successfully")

	return nil
}

// CancelBracket marks every order row of the bracket and then the summary
// row as cancelled, atomically.
func (r *BracketRepository) CancelBracket(
	ctx context.Context,
	bracketID string,
) error {

	logger.WithFields(map[string]interface{}{
		"repo":       "BracketRepository",
		"op":         "CancelBracket",
		"bracket_id": bracketID,
	}).Debug("Cancelling bracket order group")

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.
			Model(&model.Order{}).
			Where("bracket_id = ?", bracketID).
			Updates(map[string]interface{}{
				"status":    model.OrderStatusCancelled,
				"is_active": false,
			}).Error; err != nil {
			return err
		}

		return tx.
			Model(&model.Bracket{}).
			Where("id = ?", bracketID).
			Update("status", model.BracketStatusCancelled).Error
	})
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":       "BracketRepository",
			"op":         "CancelBracket",
			"bracket_id": bracketID,
		}).WithError(err).Error("Failed to cancel bracket order group")

		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":       "BracketRepository",
		"op":         "CancelBracket",
		"bracket_id": bracketID,
	}).Info("Bracket order group cancelled successfully")

	return nil
}

// FindBracketByID fetches a single bracket summary by its primary ID.
// Returns (nil, nil) if the bracket is not found.
func (r *BracketRepository) FindBracketByID(
	ctx context.Context,
	bracketID string,
) (*model.Bracket, error) {

	logger.WithFields(map[string]interface{}{
		"repo":       "BracketRepository",
		"op":         "FindBracketByID",
		"bracket_id": bracketID,
	}).Debug("Fetching bracket by ID")

	var bracket model.Bracket

	err := r.db.WithContext(ctx).First(&bracket, "id = ?", bracketID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.WithFields(map[string]interface{}{
				"repo":       "BracketRepository",
				"op":         "FindBracketByID",
				"bracket_id": bracketID,
			}).Info("Bracket not found")

			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo":       "BracketRepository",
			"op":         "FindBracketByID",
			"bracket_id": bracketID,
		}).WithError(err).Error("Failed to fetch bracket by ID")

		return nil, err
	}

	return &bracket, nil
}

// FindBracketsByStatus returns every bracket summary whose status is in the
// given set, oldest first so reload replays creation order.
func (r *BracketRepository) FindBracketsByStatus(
	ctx context.Context,
	statuses []string,
) ([]model.Bracket, error) {

	logger.WithFields(map[string]interface{}{
		"repo":     "BracketRepository",
		"op":       "FindBracketsByStatus",
		"statuses": statuses,
	}).Debug("Fetching brackets by status")

	var brackets []model.Bracket

	err := r.db.WithContext(ctx).
		Where("status IN ?", statuses).
		Order("created_at ASC").
		Find(&brackets).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":     "BracketRepository",
			"op":       "FindBracketsByStatus",
			"statuses": statuses,
		}).WithError(err).Error("Failed to fetch brackets by status")

		return nil, err
	}

	logger.WithFields(map[string]interface{}{
		"repo":        "BracketRepository",
		"op":          "FindBracketsByStatus",
		"rows_return": len(brackets),
	}).Info("Brackets fetched by status")

	return brackets, nil
}

// FindOrdersByBracket returns all order legs belonging to a bracket, parent
// first by creation order.
func (r *BracketRepository) FindOrdersByBracket(
	ctx context.Context,
	bracketID string,
) ([]model.Order, error) {

	logger.WithFields(map[string]interface{}{
		"repo":       "BracketRepository",
		"op":         "FindOrdersByBracket",
		"bracket_id": bracketID,
	}).Debug("Fetching orders for bracket")

	var orders []model.Order

	err := r.db.WithContext(ctx).
		Where("bracket_id = ?", bracketID).
		Order("created_at ASC, id ASC").
		Find(&orders).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":       "BracketRepository",
			"op":         "FindOrdersByBracket",
			"bracket_id": bracketID,
		}).WithError(err).Error("Failed to fetch orders for bracket")

		return nil, err
	}

	return orders, nil
}

// CreateEventLog appends one audit row for a published event.
func (r *BracketRepository) CreateEventLog(
	ctx context.Context,
	entry *model.BracketEventLog,
) error {

	logger.WithFields(map[string]interface{}{
		"repo":       "BracketRepository",
		"op":         "CreateEventLog",
		"bracket_id": entry.BracketID,
		"event":      entry.EventType,
	}).Debug("Creating event audit log")

	err := r.db.WithContext(ctx).Create(entry).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":       "BracketRepository",
			"op":         "CreateEventLog",
			"bracket_id": entry.BracketID,
		}).WithError(err).Error("Failed to create event audit log")

		return err
	}

	return nil
}

// FindEventLogsByBracket returns the audit trail for one bracket, oldest
// first.
func (r *BracketRepository) FindEventLogsByBracket(
	ctx context.Context,
	bracketID string,
) ([]model.BracketEventLog, error) {

	logger.WithFields(map[string]interface{}{
		"repo":       "BracketRepository",
		"op":         "FindEventLogsByBracket",
		"bracket_id": bracketID,
	}).Debug("Fetching event logs for bracket")

	var logs []model.BracketEventLog

	err := r.db.WithContext(ctx).
		Where("bracket_id = ?", bracketID).
		Order("id ASC").
		Find(&logs).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":       "BracketRepository",
			"op":         "FindEventLogsByBracket",
			"bracket_id": bracketID,
		}).WithError(err).Error("Failed to fetch event logs")

		return nil, err
	}

	return logs, nil
}
