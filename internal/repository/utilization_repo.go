package repository

import (
	"context"
	"fmt"
	"time"

	"donationdesk/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type UtilizationFilter struct {
	AppealID      *uuid.UUID
	PaymentStatus string
	From          *time.Time
	To            *time.Time
	Page          int
	Limit         int
}

type UtilizationStats struct {
	Count           int64                      `json:"count"`
	Total           decimal.Decimal            `json:"total_utilized"`
	ByPaymentStatus map[string]decimal.Decimal `json:"by_payment_status"`
}

type UtilizationRepository interface {
	Create(ctx context.Context, u *model.Utilization) error
	Update(ctx context.Context, u *model.Utilization) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Utilization, error)
	List(ctx context.Context, filter UtilizationFilter) ([]model.Utilization, int64, error)
	ListByAppeal(ctx context.Context, appealID uuid.UUID) ([]model.Utilization, error)
	Stats(ctx context.Context, appealID *uuid.UUID) (UtilizationStats, error)
}

type utilizationRepository struct {
	db *gorm.DB
}

func NewUtilizationRepository(db *gorm.DB) UtilizationRepository {
	return &utilizationRepository{db: db}
}

func (r *utilizationRepository) Create(ctx context.Context, u *model.Utilization) error {
	return GetDB(ctx, r.db).Create(u).Error
}

func (r *utilizationRepository) Update(ctx context.Context, u *model.Utilization) error {
	return GetDB(ctx, r.db).Omit("Appeal").Save(u).Error
}

func (r *utilizationRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Utilization, error) {
	var u model.Utilization
	if err := GetDB(ctx, r.db).Preload("Appeal").First(&u, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

func (r *utilizationRepository) List(ctx context.Context, filter UtilizationFilter) ([]model.Utilization, int64, error) {
	var rows []model.Utilization
	var total int64

	db := GetDB(ctx, r.db)
	if err := r.filtered(db.Model(&model.Utilization{}), filter).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset, limit := page(filter.Page, filter.Limit)
	if err := r.filtered(db.Preload("Appeal"), filter).
		Order("utilization_date DESC, created_at DESC").Offset(offset).Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

func (r *utilizationRepository) filtered(q *gorm.DB, f UtilizationFilter) *gorm.DB {
	if f.AppealID != nil {
		q = q.Where("appeal_id = ?", *f.AppealID)
	}
	if f.PaymentStatus != "" {
		q = q.Where("payment_status = ?", f.PaymentStatus)
	}
	if f.From != nil {
		q = q.Where("utilization_date >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("utilization_date <= ?", *f.To)
	}
	return q
}

func (r *utilizationRepository) ListByAppeal(ctx context.Context, appealID uuid.UUID) ([]model.Utilization, error) {
	var rows []model.Utilization
	if err := GetDB(ctx, r.db).Where("appeal_id = ?", appealID).
		Order("utilization_date ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load utilizations: %w", err)
	}
	return rows, nil
}

func (r *utilizationRepository) Stats(ctx context.Context, appealID *uuid.UUID) (UtilizationStats, error) {
	stats := UtilizationStats{Total: decimal.Zero, ByPaymentStatus: map[string]decimal.Decimal{}}

	q := GetDB(ctx, r.db).Model(&model.Utilization{})
	if appealID != nil {
		q = q.Where("appeal_id = ?", *appealID)
	}

	var rows []struct {
		PaymentStatus string
		Count         int64
		Total         decimal.Decimal
	}
	if err := q.Select("payment_status, COUNT(*) AS count, COALESCE(SUM(amount_utilized), 0) AS total").
		Group("payment_status").Scan(&rows).Error; err != nil {
		return stats, fmt.Errorf("failed to aggregate utilizations: %w", err)
	}
	for _, row := range rows {
		stats.Count += row.Count
		stats.Total = stats.Total.Add(row.Total)
		stats.ByPaymentStatus[row.PaymentStatus] = row.Total
	}
	return stats, nil
}
