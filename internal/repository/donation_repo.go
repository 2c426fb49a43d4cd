package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"donationdesk/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type DonationFilter struct {
	AppealID *uuid.UUID
	Status   string
	Mode     string
	Search   string
	From     *time.Time
	To       *time.Time
	Page     int
	Limit    int
}

// DonationStats groups donation totals for the stats endpoint.
type DonationStats struct {
	Count     int64                      `json:"count"`
	Confirmed decimal.Decimal            `json:"total_confirmed"`
	Pending   decimal.Decimal            `json:"total_pending"`
	ByMode    map[string]decimal.Decimal `json:"by_mode"`
	ByStatus  map[string]int64           `json:"by_status"`
}

type DonationRepository interface {
	Create(ctx context.Context, donation *model.Donation) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Donation, error)
	List(ctx context.Context, filter DonationFilter) ([]model.Donation, int64, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, expected, next, reason string) error
	UpdatePending(ctx context.Context, donation *model.Donation) error
	DonorsForAppeal(ctx context.Context, appealID uuid.UUID) ([]model.Donor, error)
	NextReceiptNo(ctx context.Context, day time.Time) (string, error)
	Stats(ctx context.Context, appealID *uuid.UUID) (DonationStats, error)
}

type donationRepository struct {
	db *gorm.DB
}

func NewDonationRepository(db *gorm.DB) DonationRepository {
	return &donationRepository{db: db}
}

func (r *donationRepository) Create(ctx context.Context, donation *model.Donation) error {
	return GetDB(ctx, r.db).Create(donation).Error
}

func (r *donationRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Donation, error) {
	var donation model.Donation
	if err := GetDB(ctx, r.db).Preload("Appeal").First(&donation, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &donation, nil
}

func (r *donationRepository) List(ctx context.Context, filter DonationFilter) ([]model.Donation, int64, error) {
	var donations []model.Donation
	var total int64

	db := GetDB(ctx, r.db)
	if err := r.filtered(db.Model(&model.Donation{}), filter).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset, limit := page(filter.Page, filter.Limit)
	if err := r.filtered(db.Preload("Appeal"), filter).
		Order("received_at DESC").Offset(offset).Limit(limit).
		Find(&donations).Error; err != nil {
		return nil, 0, err
	}
	return donations, total, nil
}

func (r *donationRepository) filtered(q *gorm.DB, f DonationFilter) *gorm.DB {
	if f.AppealID != nil {
		q = q.Where("appeal_id = ?", *f.AppealID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Mode != "" {
		q = q.Where("mode = ?", f.Mode)
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		like := "%" + strings.ToLower(s) + "%"
		q = q.Where("(LOWER(donor_name) LIKE ? OR LOWER(donor_email) LIKE ? OR LOWER(receipt_no) LIKE ?)", like, like, like)
	}
	if f.From != nil {
		q = q.Where("received_at >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("received_at <= ?", *f.To)
	}
	return q
}

// UpdateStatus moves a donation from expected to next; ErrStatusConflict when the
// row is no longer in expected.
func (r *donationRepository) UpdateStatus(ctx context.Context, id uuid.UUID, expected, next, reason string) error {
	res := GetDB(ctx, r.db).Model(&model.Donation{}).
		Where("id = ? AND status = ?", id, expected).
		Updates(map[string]any{
			"status":         next,
			"failure_reason": reason,
			"updated_at":     time.Now().UTC(),
		})
	if res.Error != nil {
		return fmt.Errorf("failed to update donation status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrStatusConflict
	}
	return nil
}

// UpdatePending rewrites the editable columns of a donation that is still PENDING;
// ErrStatusConflict once it has been confirmed or failed.
func (r *donationRepository) UpdatePending(ctx context.Context, d *model.Donation) error {
	res := GetDB(ctx, r.db).Model(&model.Donation{}).
		Where("id = ? AND status = ?", d.ID, model.DonationPending).
		Updates(map[string]any{
			"donor_name":       d.DonorName,
			"donor_email":      d.DonorEmail,
			"donor_phone":      d.DonorPhone,
			"amount":           d.Amount,
			"mode":             d.Mode,
			"cheque_number":    d.ChequeNumber,
			"cheque_date":      nullable(d.ChequeDate),
			"transaction_ref":  d.TransactionRef,
			"receiving_entity": d.ReceivingEntity,
			"received_at":      d.ReceivedAt,
			"updated_at":       time.Now().UTC(),
		})
	if res.Error != nil {
		return fmt.Errorf("failed to update donation: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrStatusConflict
	}
	return nil
}

// DonorsForAppeal returns one contact per donor of the appeal, skipping failed
// donations. Donors are keyed by email, then phone, then name.
func (r *donationRepository) DonorsForAppeal(ctx context.Context, appealID uuid.UUID) ([]model.Donor, error) {
	var rows []model.Donation
	if err := GetDB(ctx, r.db).
		Select("donor_name", "donor_email", "donor_phone").
		Where("appeal_id = ? AND status <> ?", appealID, model.DonationFailed).
		Order("received_at ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load donors: %w", err)
	}

	seen := make(map[string]struct{}, len(rows))
	donors := make([]model.Donor, 0, len(rows))
	for _, d := range rows {
		key := donorKey(d)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		donors = append(donors, model.Donor{Name: d.DonorName, Email: d.DonorEmail, Phone: d.DonorPhone})
	}
	return donors, nil
}

func donorKey(d model.Donation) string {
	switch {
	case d.DonorEmail != "":
		return "e:" + strings.ToLower(strings.TrimSpace(d.DonorEmail))
	case d.DonorPhone != "":
		return "p:" + strings.TrimSpace(d.DonorPhone)
	default:
		return "n:" + strings.ToLower(strings.TrimSpace(d.DonorName))
	}
}

// NextReceiptNo returns RCPT-YYYYMMDD-NNNNN for day. Call it inside the transaction
// that creates the donation; on postgres the sequence is serialized with an advisory lock.
func (r *donationRepository) NextReceiptNo(ctx context.Context, day time.Time) (string, error) {
	prefix := "RCPT-" + day.Format("20060102") + "-"
	db := GetDB(ctx, r.db)

	if db.Dialector.Name() == "postgres" {
		if err := db.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", prefix).Error; err != nil {
			return "", fmt.Errorf("failed to lock receipt sequence: %w", err)
		}
	}

	var count int64
	if err := db.Model(&model.Donation{}).Where("receipt_no LIKE ?", prefix+"%").Count(&count).Error; err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%05d", prefix, count+1), nil
}

func (r *donationRepository) Stats(ctx context.Context, appealID *uuid.UUID) (DonationStats, error) {
	stats := DonationStats{
		Confirmed: decimal.Zero,
		Pending:   decimal.Zero,
		ByMode:    map[string]decimal.Decimal{},
		ByStatus:  map[string]int64{},
	}

	scope := func() *gorm.DB {
		q := GetDB(ctx, r.db).Model(&model.Donation{})
		if appealID != nil {
			q = q.Where("appeal_id = ?", *appealID)
		}
		return q
	}

	var byStatus []struct {
		Status string
		Count  int64
		Total  decimal.Decimal
	}
	if err := scope().Select("status, COUNT(*) AS count, COALESCE(SUM(amount), 0) AS total").
		Group("status").Scan(&byStatus).Error; err != nil {
		return stats, fmt.Errorf("failed to aggregate donations: %w", err)
	}
	for _, row := range byStatus {
		stats.Count += row.Count
		stats.ByStatus[row.Status] = row.Count
		switch row.Status {
		case model.DonationConfirmed:
			stats.Confirmed = row.Total
		case model.DonationPending:
			stats.Pending = row.Total
		}
	}

	var byMode []struct {
		Mode  string
		Total decimal.Decimal
	}
	if err := scope().Select("mode, COALESCE(SUM(amount), 0) AS total").
		Where("status = ?", model.DonationConfirmed).
		Group("mode").Scan(&byMode).Error; err != nil {
		return stats, fmt.Errorf("failed to aggregate donations by mode: %w", err)
	}
	for _, row := range byMode {
		stats.ByMode[row.Mode] = row.Total
	}
	return stats, nil
}
