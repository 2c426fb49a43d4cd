package repository

import (
	"context"
	"fmt"
	"time"

	"donationdesk/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type CommunicationFilter struct {
	AppealID *uuid.UUID
	Trigger  string
	Channel  string
	Status   string
	Page     int
	Limit    int
}

type CommunicationStats struct {
	Total             int64            `json:"total"`
	ByStatus          map[string]int64 `json:"by_status"`
	ByTrigger         map[string]int64 `json:"by_trigger"`
	RecipientsReached int64            `json:"recipients_reached"`
}

type CommunicationRepository interface {
	Create(ctx context.Context, c *model.Communication) error
	Update(ctx context.Context, c *model.Communication) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Communication, error)
	List(ctx context.Context, filter CommunicationFilter) ([]model.Communication, int64, error)
	ListRetryable(ctx context.Context, maxAttempts int, staleBefore time.Time, limit int) ([]model.Communication, error)
	Stats(ctx context.Context) (CommunicationStats, error)
}

type communicationRepository struct {
	db *gorm.DB
}

func NewCommunicationRepository(db *gorm.DB) CommunicationRepository {
	return &communicationRepository{db: db}
}

func (r *communicationRepository) Create(ctx context.Context, c *model.Communication) error {
	return GetDB(ctx, r.db).Create(c).Error
}

func (r *communicationRepository) Update(ctx context.Context, c *model.Communication) error {
	return GetDB(ctx, r.db).Save(c).Error
}

func (r *communicationRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Communication, error) {
	var c model.Communication
	if err := GetDB(ctx, r.db).First(&c, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

func (r *communicationRepository) List(ctx context.Context, filter CommunicationFilter) ([]model.Communication, int64, error) {
	var rows []model.Communication
	var total int64

	db := GetDB(ctx, r.db)
	if err := r.filtered(db.Model(&model.Communication{}), filter).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset, limit := page(filter.Page, filter.Limit)
	if err := r.filtered(db, filter).
		Order("created_at DESC").Offset(offset).Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

func (r *communicationRepository) filtered(q *gorm.DB, f CommunicationFilter) *gorm.DB {
	if f.AppealID != nil {
		q = q.Where("appeal_id = ?", *f.AppealID)
	}
	if f.Trigger != "" {
		q = q.Where("trigger_type = ?", f.Trigger)
	}
	if f.Channel != "" {
		q = q.Where("channel = ?", f.Channel)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	return q
}

// ListRetryable returns communications that still have attempts left, oldest first: FAILED
// rows, and PENDING rows untouched since staleBefore whose first attempt never recorded an outcome.
func (r *communicationRepository) ListRetryable(ctx context.Context, maxAttempts int, staleBefore time.Time, limit int) ([]model.Communication, error) {
	var rows []model.Communication
	if err := GetDB(ctx, r.db).
		Where("attempts < ?", maxAttempts).
		Where("status = ? OR (status = ? AND updated_at < ?)", model.CommunicationFailed, model.CommunicationPending, staleBefore).
		Order("updated_at ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load retryable communications: %w", err)
	}
	return rows, nil
}

func (r *communicationRepository) Stats(ctx context.Context) (CommunicationStats, error) {
	stats := CommunicationStats{ByStatus: map[string]int64{}, ByTrigger: map[string]int64{}}
	db := GetDB(ctx, r.db)

	var byStatus []struct {
		Status     string
		Count      int64
		Recipients int64
	}
	if err := db.Model(&model.Communication{}).
		Select("status, COUNT(*) AS count, COALESCE(SUM(recipient_count), 0) AS recipients").
		Group("status").Scan(&byStatus).Error; err != nil {
		return stats, fmt.Errorf("failed to aggregate communications: %w", err)
	}
	for _, row := range byStatus {
		stats.Total += row.Count
		stats.ByStatus[row.Status] = row.Count
		if row.Status == model.CommunicationSent {
			stats.RecipientsReached = row.Recipients
		}
	}

	var byTrigger []struct {
		TriggerType string
		Count       int64
	}
	if err := db.Model(&model.Communication{}).
		Select("trigger_type, COUNT(*) AS count").
		Group("trigger_type").Scan(&byTrigger).Error; err != nil {
		return stats, fmt.Errorf("failed to aggregate communications by trigger: %w", err)
	}
	for _, row := range byTrigger {
		stats.ByTrigger[row.TriggerType] = row.Count
	}
	return stats, nil
}
