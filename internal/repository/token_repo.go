package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/campuspush/fanout-engine/internal/domain"
)

// TokenRepository is the consumer-facing contract of the token registry.
// Counters are increment-only and safe under concurrent writers; eviction is
// delete-by-key and tolerates missing rows.
type TokenRepository interface {
	Upsert(ctx context.Context, token *domain.DeviceToken) error
	GetByToken(ctx context.Context, token string) (*domain.DeviceToken, error)
	ListEligible(ctx context.Context, selector domain.TargetSelector) ([]string, error)
	RecordSuccess(ctx context.Context, tokens []string) error
	RecordFailure(ctx context.Context, tokens []string) error
	Evict(ctx context.Context, token string) error
}

type GormTokenRepo struct {
	db *gorm.DB
}

func NewGormTokenRepo(db *gorm.DB) *GormTokenRepo {
	return &GormTokenRepo{db: db}
}

func (r *GormTokenRepo) Upsert(ctx context.Context, token *domain.DeviceToken) error {
	model := deviceTokenModelFromDomain(token)
	if model == nil {
		return domain.ErrValidation
	}

	// Re-registration keeps the counters and refreshes the owner.
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "token"}},
			DoUpdates: clause.AssignmentColumns([]string{"user_id", "updated_at"}),
		}).
		Create(model).Error
	if err != nil {
		return err
	}

	*token = *deviceTokenModelToDomain(model)
	return nil
}

func (r *GormTokenRepo) GetByToken(ctx context.Context, token string) (*domain.DeviceToken, error) {
	var model DeviceTokenModel
	err := r.db.WithContext(ctx).First(&model, "token = ?", token).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return deviceTokenModelToDomain(&model), nil
}

func (r *GormTokenRepo) ListEligible(ctx context.Context, selector domain.TargetSelector) ([]string, error) {
	query := r.db.WithContext(ctx).
		Model(&DeviceTokenModel{}).
		Where("user_id IS NOT NULL")

	switch selector {
	case domain.SelectorAll:
	case domain.SelectorAllowAlarm:
		// TODO: filter on a per-user alarm opt-in column once the owning
		// service stores one. Until then ALLOW_ALARM resolves like ALL.
	default:
		return nil, domain.ErrValidation
	}

	var tokens []string
	if err := query.Order("created_at").Pluck("token", &tokens).Error; err != nil {
		return nil, err
	}
	return tokens, nil
}

func (r *GormTokenRepo) RecordSuccess(ctx context.Context, tokens []string) error {
	return r.incrementCounter(ctx, tokens, "success_count")
}

func (r *GormTokenRepo) RecordFailure(ctx context.Context, tokens []string) error {
	return r.incrementCounter(ctx, tokens, "fail_count")
}

func (r *GormTokenRepo) incrementCounter(ctx context.Context, tokens []string, column string) error {
	if len(tokens) == 0 {
		return nil
	}

	return r.db.WithContext(ctx).
		Model(&DeviceTokenModel{}).
		Where("token IN ?", tokens).
		UpdateColumn(column, gorm.Expr(column+" + 1")).Error
}

func (r *GormTokenRepo) Evict(ctx context.Context, token string) error {
	// A missing row means someone evicted it first; that is not an error.
	return r.db.WithContext(ctx).
		Delete(&DeviceTokenModel{}, "token = ?", token).Error
}
