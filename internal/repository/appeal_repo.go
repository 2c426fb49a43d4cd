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

type AppealFilter struct {
	Statuses  []string
	Search    string
	CreatedBy *uuid.UUID
	From      *time.Time
	To        *time.Time
	// ByDecision orders by decided_at instead of created_at.
	ByDecision bool
	Page       int
	Limit      int
}

type AppealRepository interface {
	Create(ctx context.Context, appeal *model.Appeal) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Appeal, error)
	List(ctx context.Context, filter AppealFilter) ([]model.Appeal, int64, error)
	UpdateDraft(ctx context.Context, appeal *model.Appeal) error
	Delete(ctx context.Context, id uuid.UUID) error
	CompareAndSwapStatus(ctx context.Context, appeal *model.Appeal, expected string) error
	AddDocument(ctx context.Context, doc *model.AppealDocument) error
	CountByStatus(ctx context.Context) (map[string]int64, error)
}

type appealRepository struct {
	db *gorm.DB
}

func NewAppealRepository(db *gorm.DB) AppealRepository {
	return &appealRepository{db: db}
}

func (r *appealRepository) Create(ctx context.Context, appeal *model.Appeal) error {
	return GetDB(ctx, r.db).Create(appeal).Error
}

func (r *appealRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Appeal, error) {
	var appeal model.Appeal
	err := GetDB(ctx, r.db).
		Preload("Documents", func(db *gorm.DB) *gorm.DB { return db.Order("uploaded_at ASC") }).
		Preload("Creator").
		Preload("Decider").
		First(&appeal, "id = ?", id).Error
	if err != nil {
		return nil, translate(err)
	}
	return &appeal, nil
}

func (r *appealRepository) List(ctx context.Context, filter AppealFilter) ([]model.Appeal, int64, error) {
	var appeals []model.Appeal
	var total int64

	db := GetDB(ctx, r.db)
	if err := r.filtered(db.Model(&model.Appeal{}), filter).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	order := "created_at DESC"
	if filter.ByDecision {
		order = "decided_at DESC"
	}
	offset, limit := page(filter.Page, filter.Limit)
	if err := r.filtered(db.Preload("Creator").Preload("Decider"), filter).
		Order(order).Offset(offset).Limit(limit).
		Find(&appeals).Error; err != nil {
		return nil, 0, err
	}

	return appeals, total, nil
}

func (r *appealRepository) filtered(q *gorm.DB, f AppealFilter) *gorm.DB {
	if len(f.Statuses) > 0 {
		q = q.Where("status IN ?", f.Statuses)
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		like := "%" + strings.ToLower(s) + "%"
		q = q.Where("(LOWER(title) LIKE ? OR LOWER(description) LIKE ? OR LOWER(beneficiary_category) LIKE ?)", like, like, like)
	}
	if f.CreatedBy != nil {
		q = q.Where("created_by = ?", *f.CreatedBy)
	}
	if f.From != nil {
		q = q.Where("created_at >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("created_at <= ?", *f.To)
	}
	return q
}

// UpdateDraft writes the descriptive fields only while the stored row is still DRAFT.
func (r *appealRepository) UpdateDraft(ctx context.Context, appeal *model.Appeal) error {
	res := GetDB(ctx, r.db).Model(&model.Appeal{}).
		Where("id = ? AND status = ?", appeal.ID, model.AppealStatusDraft).
		Updates(map[string]any{
			"title":                appeal.Title,
			"description":          appeal.Description,
			"estimated_amount":     appeal.EstimatedAmount,
			"beneficiary_category": appeal.BeneficiaryCategory,
			"duration":             appeal.Duration,
			"updated_at":           appeal.UpdatedAt,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to update appeal: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrStatusConflict
	}
	return nil
}

// Delete removes a DRAFT appeal and its document rows.
func (r *appealRepository) Delete(ctx context.Context, id uuid.UUID) error {
	db := GetDB(ctx, r.db)
	res := db.Where("id = ? AND status = ?", id, model.AppealStatusDraft).Delete(&model.Appeal{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete appeal: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrStatusConflict
	}
	if err := db.Where("appeal_id = ?", id).Delete(&model.AppealDocument{}).Error; err != nil {
		return fmt.Errorf("failed to delete appeal documents: %w", err)
	}
	return nil
}

// CompareAndSwapStatus persists a transition computed by the workflow engine. The
// single UPDATE only matches while the row still has the expected status, so of two
// racing decisions exactly one affects a row; the other gets ErrStatusConflict.
func (r *appealRepository) CompareAndSwapStatus(ctx context.Context, appeal *model.Appeal, expected string) error {
	res := GetDB(ctx, r.db).Model(&model.Appeal{}).
		Where("id = ? AND status = ?", appeal.ID, expected).
		Updates(map[string]any{
			"status":           appeal.Status,
			"approved_amount":  nullable(appeal.ApprovedAmount),
			"rejection_reason": nullable(appeal.RejectionReason),
			"remarks":          appeal.Remarks,
			"conditions":       appeal.Conditions,
			"decided_by":       nullable(appeal.DecidedBy),
			"submitted_at":     nullable(appeal.SubmittedAt),
			"decided_at":       nullable(appeal.DecidedAt),
			"updated_at":       appeal.UpdatedAt,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to update appeal status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrStatusConflict
	}
	return nil
}

func (r *appealRepository) AddDocument(ctx context.Context, doc *model.AppealDocument) error {
	return GetDB(ctx, r.db).Create(doc).Error
}

func (r *appealRepository) CountByStatus(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		Status string
		Count  int64
	}
	if err := GetDB(ctx, r.db).Model(&model.Appeal{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to count appeals: %w", err)
	}

	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}
