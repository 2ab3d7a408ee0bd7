package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/campuspush/fanout-engine/internal/domain"
)

var liveJobStates = []domain.JobState{domain.JobStatePending, domain.JobStateQueued}

// JobRepository persists notification jobs and arbitrates their state
// transitions. All transitions out of a live state are guarded UPDATEs, so
// the first of a concurrent cancel/claim pair wins and the loser no-ops.
type JobRepository interface {
	Create(ctx context.Context, job *domain.Job) error
	// CancelLive cancels any PENDING or QUEUED job under the key and reports
	// whether a row flipped. Used both for explicit cancellation and for
	// supersede-on-enqueue.
	CancelLive(ctx context.Context, jobKey string) (bool, error)
	GetDuePending(ctx context.Context, now time.Time, limit int) ([]domain.Job, error)
	MarkQueuedIfPending(ctx context.Context, id string) (bool, error)
	// ClaimForFiring transitions a live job to FIRED and returns it. A nil
	// job with nil error means the claim lost to a cancel or an earlier
	// firing and the caller must skip dispatch.
	ClaimForFiring(ctx context.Context, id string) (*domain.Job, error)
	LatestByKey(ctx context.Context, jobKey string) (*domain.Job, error)
}

type GormJobRepo struct {
	db *gorm.DB
}

func NewGormJobRepo(db *gorm.DB) *GormJobRepo {
	return &GormJobRepo{db: db}
}

func (r *GormJobRepo) Create(ctx context.Context, job *domain.Job) error {
	model := jobModelFromDomain(job)
	if model == nil {
		return domain.ErrValidation
	}

	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}

	*job = *jobModelToDomain(model)
	return nil
}

func (r *GormJobRepo) CancelLive(ctx context.Context, jobKey string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&NotificationJobModel{}).
		Where("job_key = ? AND state IN ?", jobKey, liveJobStates).
		Update("state", domain.JobStateCanceled)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *GormJobRepo) GetDuePending(ctx context.Context, now time.Time, limit int) ([]domain.Job, error) {
	if limit < 1 {
		limit = 1
	}

	var models []NotificationJobModel
	err := r.db.WithContext(ctx).
		Where("state = ? AND not_before <= ?", domain.JobStatePending, now).
		Order("not_before").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	jobs := make([]domain.Job, 0, len(models))
	for i := range models {
		jobs = append(jobs, *jobModelToDomain(&models[i]))
	}
	return jobs, nil
}

func (r *GormJobRepo) MarkQueuedIfPending(ctx context.Context, id string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&NotificationJobModel{}).
		Where("id = ? AND state = ?", id, domain.JobStatePending).
		Update("state", domain.JobStateQueued)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *GormJobRepo) ClaimForFiring(ctx context.Context, id string) (*domain.Job, error) {
	var claimed *domain.Job

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model NotificationJobModel
		err := tx.
			Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&model, "id = ?", id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ErrNotFound
		}
		if err != nil {
			return err
		}

		if !model.State.IsLive() {
			return nil
		}

		if err := tx.Model(&model).Update("state", domain.JobStateFired).Error; err != nil {
			return err
		}

		model.State = domain.JobStateFired
		claimed = jobModelToDomain(&model)
		return nil
	})
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return claimed, nil
}

func (r *GormJobRepo) LatestByKey(ctx context.Context, jobKey string) (*domain.Job, error) {
	var model NotificationJobModel
	err := r.db.WithContext(ctx).
		Where("job_key = ?", jobKey).
		Order("created_at DESC").
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return jobModelToDomain(&model), nil
}
