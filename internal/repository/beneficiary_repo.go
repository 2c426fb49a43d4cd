package repository

import (
	"context"
	"fmt"
	"strings"

	"donationdesk/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type BeneficiaryFilter struct {
	AppealID *uuid.UUID
	Category string
	Search   string
	Page     int
	Limit    int
}

type BeneficiaryStats struct {
	Total         int64            `json:"total"`
	ByCategory    map[string]int64 `json:"by_category"`
	WithFeedback  int64            `json:"with_feedback"`
	AverageRating float64          `json:"average_rating"`
}

type BeneficiaryRepository interface {
	Create(ctx context.Context, b *model.Beneficiary) error
	Update(ctx context.Context, b *model.Beneficiary) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Beneficiary, error)
	List(ctx context.Context, filter BeneficiaryFilter) ([]model.Beneficiary, int64, error)
	Stats(ctx context.Context, appealID *uuid.UUID) (BeneficiaryStats, error)
}

type beneficiaryRepository struct {
	db *gorm.DB
}

func NewBeneficiaryRepository(db *gorm.DB) BeneficiaryRepository {
	return &beneficiaryRepository{db: db}
}

func (r *beneficiaryRepository) Create(ctx context.Context, b *model.Beneficiary) error {
	return GetDB(ctx, r.db).Create(b).Error
}

func (r *beneficiaryRepository) Update(ctx context.Context, b *model.Beneficiary) error {
	return GetDB(ctx, r.db).Omit("Appeal").Save(b).Error
}

func (r *beneficiaryRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Beneficiary, error) {
	var b model.Beneficiary
	if err := GetDB(ctx, r.db).Preload("Appeal").First(&b, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &b, nil
}

func (r *beneficiaryRepository) List(ctx context.Context, filter BeneficiaryFilter) ([]model.Beneficiary, int64, error) {
	var rows []model.Beneficiary
	var total int64

	db := GetDB(ctx, r.db)
	if err := r.filtered(db.Model(&model.Beneficiary{}), filter).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset, limit := page(filter.Page, filter.Limit)
	if err := r.filtered(db.Preload("Appeal"), filter).
		Order("created_at DESC").Offset(offset).Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

func (r *beneficiaryRepository) filtered(q *gorm.DB, f BeneficiaryFilter) *gorm.DB {
	if f.AppealID != nil {
		q = q.Where("appeal_id = ?", *f.AppealID)
	}
	if f.Category != "" {
		q = q.Where("category = ?", f.Category)
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		like := "%" + strings.ToLower(s) + "%"
		q = q.Where("(LOWER(name) LIKE ? OR LOWER(location) LIKE ?)", like, like)
	}
	return q
}

func (r *beneficiaryRepository) Stats(ctx context.Context, appealID *uuid.UUID) (BeneficiaryStats, error) {
	stats := BeneficiaryStats{ByCategory: map[string]int64{}}

	scope := func() *gorm.DB {
		q := GetDB(ctx, r.db).Model(&model.Beneficiary{})
		if appealID != nil {
			q = q.Where("appeal_id = ?", *appealID)
		}
		return q
	}

	var byCategory []struct {
		Category string
		Count    int64
	}
	if err := scope().Select("category, COUNT(*) AS count").Group("category").Scan(&byCategory).Error; err != nil {
		return stats, fmt.Errorf("failed to aggregate beneficiaries: %w", err)
	}
	for _, row := range byCategory {
		stats.Total += row.Count
		stats.ByCategory[row.Category] = row.Count
	}

	var rating struct {
		Count   int64
		Average float64
	}
	if err := scope().Select("COUNT(*) AS count, COALESCE(AVG(feedback_rating), 0) AS average").
		Where("feedback_rating > 0").Scan(&rating).Error; err != nil {
		return stats, fmt.Errorf("failed to aggregate feedback: %w", err)
	}
	stats.WithFeedback = rating.Count
	stats.AverageRating = rating.Average
	return stats, nil
}
