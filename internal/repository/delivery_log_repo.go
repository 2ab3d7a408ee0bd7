package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/campuspush/fanout-engine/internal/domain"
)

// DeliveryLogRepository appends audit records of delivered batches. The
// engine never reads these back; failures are the caller's to swallow.
type DeliveryLogRepository interface {
	Append(ctx context.Context, log *domain.DeliveryLog) error
}

type GormDeliveryLogRepo struct {
	db *gorm.DB
}

func NewGormDeliveryLogRepo(db *gorm.DB) *GormDeliveryLogRepo {
	return &GormDeliveryLogRepo{db: db}
}

func (r *GormDeliveryLogRepo) Append(ctx context.Context, log *domain.DeliveryLog) error {
	model := deliveryLogModelFromDomain(log)
	if model == nil {
		return domain.ErrValidation
	}
	return r.db.WithContext(ctx).Create(model).Error
}
