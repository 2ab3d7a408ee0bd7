package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"

	"github.com/campuspush/fanout-engine/internal/repository"
)

func Migrate(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			ID: "000001_create_device_tokens",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&repository.DeviceTokenModel{}); err != nil {
					return err
				}
				return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_device_tokens_user_id ON device_tokens (user_id) WHERE user_id IS NOT NULL`).Error
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&repository.DeviceTokenModel{})
			},
		},
		{
			ID: "000002_create_notification_jobs",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&repository.NotificationJobModel{}); err != nil {
					return err
				}
				indexes := []string{
					// One live job per key backs the supersede semantics.
					`CREATE UNIQUE INDEX IF NOT EXISTS idx_jobs_live_key ON notification_jobs (job_key) WHERE state IN ('PENDING','QUEUED')`,
					`CREATE INDEX IF NOT EXISTS idx_jobs_due_scan ON notification_jobs (not_before) WHERE state = 'PENDING'`,
					`CREATE INDEX IF NOT EXISTS idx_jobs_key_created ON notification_jobs (job_key, created_at)`,
				}
				for _, sql := range indexes {
					if err := tx.Exec(sql).Error; err != nil {
						return err
					}
				}
				return nil
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&repository.NotificationJobModel{})
			},
		},
		{
			ID: "000003_create_delivery_logs",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&repository.DeliveryLogModel{}); err != nil {
					return err
				}
				return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_delivery_logs_job_key ON delivery_logs (job_key)`).Error
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&repository.DeliveryLogModel{})
			},
		},
	})

	return m.Migrate()
}
