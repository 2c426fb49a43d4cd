package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"donationdesk/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type AssetLinkFilter struct {
	UtilizationID *uuid.UUID
	Owner         string
	Search        string
	From          *time.Time
	To            *time.Time
	Page          int
	Limit         int // negative returns every match
}

type AssetLinkStats struct {
	Total        int64            `json:"total"`
	ByOwner      map[string]int64 `json:"by_owner"`
	UniqueAssets int64            `json:"unique_assets"`
}

type AssetLinkRepository interface {
	Create(ctx context.Context, link *model.AssetLink) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.AssetLink, error)
	Exists(ctx context.Context, utilizationID uuid.UUID, registrationNumber string) (bool, error)
	List(ctx context.Context, filter AssetLinkFilter) ([]model.AssetLink, int64, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Stats(ctx context.Context) (AssetLinkStats, error)
}

type assetLinkRepository struct {
	db *gorm.DB
}

func NewAssetLinkRepository(db *gorm.DB) AssetLinkRepository {
	return &assetLinkRepository{db: db}
}

func (r *assetLinkRepository) Create(ctx context.Context, link *model.AssetLink) error {
	return GetDB(ctx, r.db).Omit("Utilization").Create(link).Error
}

func (r *assetLinkRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.AssetLink, error) {
	var link model.AssetLink
	if err := GetDB(ctx, r.db).Preload("Utilization.Appeal").First(&link, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &link, nil
}

func (r *assetLinkRepository) Exists(ctx context.Context, utilizationID uuid.UUID, registrationNumber string) (bool, error) {
	var n int64
	err := GetDB(ctx, r.db).Model(&model.AssetLink{}).
		Where("utilization_id = ? AND asset_registration_number = ?", utilizationID, registrationNumber).
		Count(&n).Error
	return n > 0, err
}

func (r *assetLinkRepository) List(ctx context.Context, filter AssetLinkFilter) ([]model.AssetLink, int64, error) {
	var rows []model.AssetLink
	var total int64

	db := GetDB(ctx, r.db)
	if err := r.filtered(db.Model(&model.AssetLink{}), filter).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	q := r.filtered(db.Preload("Utilization.Appeal"), filter).Order("created_at DESC")
	if filter.Limit >= 0 {
		offset, limit := page(filter.Page, filter.Limit)
		q = q.Offset(offset).Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

func (r *assetLinkRepository) filtered(q *gorm.DB, f AssetLinkFilter) *gorm.DB {
	if f.UtilizationID != nil {
		q = q.Where("utilization_id = ?", *f.UtilizationID)
	}
	if f.Owner != "" {
		q = q.Where("asset_owner = ?", f.Owner)
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		like := "%" + strings.ToLower(s) + "%"
		q = q.Where("(LOWER(asset_registration_number) LIKE ? OR LOWER(asset_name) LIKE ? OR utilization_id IN (?))",
			like, like, r.db.Model(&model.Utilization{}).Select("id").Where("LOWER(description) LIKE ?", like))
	}
	if f.From != nil {
		q = q.Where("created_at >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("created_at <= ?", *f.To)
	}
	return q
}

func (r *assetLinkRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res := GetDB(ctx, r.db).Delete(&model.AssetLink{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("failed to unlink asset: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *assetLinkRepository) Stats(ctx context.Context) (AssetLinkStats, error) {
	stats := AssetLinkStats{ByOwner: map[string]int64{}}
	db := GetDB(ctx, r.db)

	var byOwner []struct {
		AssetOwner string
		Count      int64
	}
	if err := db.Model(&model.AssetLink{}).Select("asset_owner, COUNT(*) AS count").
		Group("asset_owner").Scan(&byOwner).Error; err != nil {
		return stats, fmt.Errorf("failed to aggregate asset links: %w", err)
	}
	for _, row := range byOwner {
		stats.Total += row.Count
		stats.ByOwner[row.AssetOwner] = row.Count
	}

	if err := db.Model(&model.AssetLink{}).
		Distinct("asset_registration_number").Count(&stats.UniqueAssets).Error; err != nil {
		return stats, fmt.Errorf("failed to count assets: %w", err)
	}
	return stats, nil
}
