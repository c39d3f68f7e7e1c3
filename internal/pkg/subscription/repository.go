package subscription

import (
	"time"

	"github.com/mpellerin42/subsync/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository provides the DB operations used by the reconciler and the
// webhook controller.
type Repository interface {
	FindCustomerByStripeID(stripeID string) (*models.CustomerDetails, error)
	FindSubscriptionsByCustomer(customerDetailsID uint) ([]models.CustomerSubscription, error)
	FindItemByPriceID(stripePriceID string) (*models.SubscriptionItem, error)
	FindItemByID(id uint) (*models.SubscriptionItem, error)
	CreateSubscription(sub *models.CustomerSubscription) error
	UpdateSubscription(id uint, updates map[string]interface{}) error
	CreateEventIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error)
	MarkEventProcessed(id uint, processingError string) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a subscription repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) FindCustomerByStripeID(stripeID string) (*models.CustomerDetails, error) {
	var c models.CustomerDetails
	err := r.db.Preload("User").Where("stripe_id = ?", stripeID).First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *gormRepository) FindSubscriptionsByCustomer(customerDetailsID uint) ([]models.CustomerSubscription, error) {
	var subs []models.CustomerSubscription
	err := r.db.Where("customer_details = ?", customerDetailsID).Order("id").Find(&subs).Error
	return subs, err
}

func (r *gormRepository) FindItemByPriceID(stripePriceID string) (*models.SubscriptionItem, error) {
	var item models.SubscriptionItem
	err := r.db.Where("stripe_price_id = ?", stripePriceID).First(&item).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *gormRepository) FindItemByID(id uint) (*models.SubscriptionItem, error) {
	var item models.SubscriptionItem
	err := r.db.Where("id = ?", id).First(&item).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *gormRepository) CreateSubscription(sub *models.CustomerSubscription) error {
	return r.db.Create(sub).Error
}

func (r *gormRepository) UpdateSubscription(id uint, updates map[string]interface{}) error {
	return r.db.Model(&models.CustomerSubscription{}).Where("id = ?", id).Updates(updates).Error
}

func (r *gormRepository) CreateEventIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "event_id"}},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.WebhookEvent
	if err := r.db.Where("event_id = ?", event.EventID).First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) MarkEventProcessed(id uint, processingError string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"processed_at":     &now,
		"processing_error": processingError,
	}
	return r.db.Model(&models.WebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}
