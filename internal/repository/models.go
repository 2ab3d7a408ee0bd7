package repository

import (
	"encoding/json"
	"time"

	"github.com/campuspush/fanout-engine/internal/domain"
)

// DeviceTokenModel is the persistence model for the device_tokens table.
// The gateway-issued token string is the primary key.
type DeviceTokenModel struct {
	Token        string  `gorm:"type:varchar(512);primaryKey"`
	UserID       *string `gorm:"type:varchar(36);index"`
	SuccessCount int64   `gorm:"not null;default:0"`
	FailCount    int64   `gorm:"not null;default:0"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (DeviceTokenModel) TableName() string {
	return "device_tokens"
}

// NotificationJobModel is the persistence model for notification_jobs.
// A partial unique index on (job_key) over live states enforces at most one
// pending job per key (see migrations).
type NotificationJobModel struct {
	ID        string                `gorm:"type:uuid;primaryKey"`
	JobKey    string                `gorm:"type:varchar(255);not null;index"`
	Title     string                `gorm:"type:varchar(255);not null"`
	Body      string                `gorm:"type:text;not null"`
	ImageURL  string                `gorm:"type:text"`
	Data      string                `gorm:"type:jsonb"`
	Selector  domain.TargetSelector `gorm:"type:varchar(20);not null"`
	NotBefore time.Time             `gorm:"type:timestamptz;not null"`
	State     domain.JobState       `gorm:"type:varchar(10);not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (NotificationJobModel) TableName() string {
	return "notification_jobs"
}

// DeliveryLogModel is the persistence model for delivery_logs.
type DeliveryLogModel struct {
	ID        string `gorm:"type:uuid;primaryKey"`
	JobKey    string `gorm:"type:varchar(255);not null;index"`
	Title     string `gorm:"type:varchar(255);not null"`
	Body      string `gorm:"type:text;not null"`
	ImageURL  string `gorm:"type:text"`
	Delivered string `gorm:"type:jsonb"`
	CreatedAt time.Time
}

func (DeliveryLogModel) TableName() string {
	return "delivery_logs"
}

func deviceTokenModelFromDomain(t *domain.DeviceToken) *DeviceTokenModel {
	if t == nil {
		return nil
	}

	return &DeviceTokenModel{
		Token:        t.Token,
		UserID:       t.UserID,
		SuccessCount: t.SuccessCount,
		FailCount:    t.FailCount,
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
	}
}

func deviceTokenModelToDomain(m *DeviceTokenModel) *domain.DeviceToken {
	if m == nil {
		return nil
	}

	return &domain.DeviceToken{
		Token:        m.Token,
		UserID:       m.UserID,
		SuccessCount: m.SuccessCount,
		FailCount:    m.FailCount,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func jobModelFromDomain(j *domain.Job) *NotificationJobModel {
	if j == nil {
		return nil
	}

	return &NotificationJobModel{
		ID:        j.ID,
		JobKey:    j.JobKey,
		Title:     j.Payload.Title,
		Body:      j.Payload.Body,
		ImageURL:  j.Payload.ImageURL,
		Data:      marshalStringMap(j.Payload.Data),
		Selector:  j.Selector,
		NotBefore: j.NotBefore,
		State:     j.State,
		CreatedAt: j.CreatedAt,
		UpdatedAt: j.UpdatedAt,
	}
}

func jobModelToDomain(m *NotificationJobModel) *domain.Job {
	if m == nil {
		return nil
	}

	return &domain.Job{
		ID:     m.ID,
		JobKey: m.JobKey,
		Payload: domain.Payload{
			Title:    m.Title,
			Body:     m.Body,
			ImageURL: m.ImageURL,
			Data:     unmarshalStringMap(m.Data),
		},
		Selector:  m.Selector,
		NotBefore: m.NotBefore,
		State:     m.State,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func deliveryLogModelFromDomain(l *domain.DeliveryLog) *DeliveryLogModel {
	if l == nil {
		return nil
	}

	return &DeliveryLogModel{
		ID:        l.ID,
		JobKey:    l.JobKey,
		Title:     l.Title,
		Body:      l.Body,
		ImageURL:  l.ImageURL,
		Delivered: marshalStringSlice(l.Delivered),
		CreatedAt: l.CreatedAt,
	}
}

func marshalStringMap(m map[string]string) string {
	if len(m) == 0 {
		return "{}"
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return "{}"
	}
	return string(raw)
}

func unmarshalStringMap(raw string) map[string]string {
	if raw == "" || raw == "{}" {
		return nil
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil
	}
	return m
}

func marshalStringSlice(values []string) string {
	if len(values) == 0 {
		return "[]"
	}
	raw, err := json.Marshal(values)
	if err != nil {
		return "[]"
	}
	return string(raw)
}
