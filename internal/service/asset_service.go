package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"donationdesk/internal/model"
	"donationdesk/internal/repository"
	"donationdesk/internal/workflow"

	"github.com/shopspring/decimal"
)

var assetOwners = []string{model.AssetOwnerITC, model.AssetOwnerMission}

type LinkAssetRequest struct {
	UtilizationID           string `json:"utilization_id"`
	AssetRegistrationNumber string `json:"asset_registration_number"`
	AssetName               string `json:"asset_name"`
	AssetOwner              string `json:"asset_owner"`
	Notes                   string `json:"notes"`
}

type AssetLinkQuery struct {
	UtilizationID string
	Owner         string
	Search        string
	Page          int
	Limit         int
}

type AssetLinkResponse struct {
	ID                      string          `json:"id"`
	AssetRegistrationNumber string          `json:"asset_registration_number"`
	AssetName               string          `json:"asset_name"`
	AssetOwner              string          `json:"asset_owner"`
	Notes                   string          `json:"notes,omitempty"`
	UtilizationID           string          `json:"utilization_id"`
	UtilizationDescription  string          `json:"utilization_description,omitempty"`
	AmountUtilized          decimal.Decimal `json:"amount_utilized" swaggertype:"number"`
	AppealID                string          `json:"appeal_id,omitempty"`
	AppealTitle             string          `json:"appeal_title,omitempty"`
	LinkedBy                string          `json:"linked_by"`
	LinkedAt                string          `json:"linked_at"`
}

type AssetService interface {
	Link(ctx context.Context, actor workflow.Actor, req LinkAssetRequest) (*AssetLinkResponse, error)
	Unlink(ctx context.Context, actor workflow.Actor, id string) error
	Get(ctx context.Context, id string) (*AssetLinkResponse, error)
	List(ctx context.Context, query AssetLinkQuery) ([]AssetLinkResponse, int64, error)
	Stats(ctx context.Context) (*repository.AssetLinkStats, error)
	Report(ctx context.Context, rng model.ReportRange) ([]model.AssetReportRow, error)
}

type assetService struct {
	links        repository.AssetLinkRepository
	utilizations repository.UtilizationRepository
	audits       repository.AuditRepository
	txManager    repository.TransactionManager
}

func NewAssetService(
	links repository.AssetLinkRepository,
	utilizations repository.UtilizationRepository,
	audits repository.AuditRepository,
	txManager repository.TransactionManager,
) AssetService {
	return &assetService{
		links:        links,
		utilizations: utilizations,
		audits:       audits,
		txManager:    txManager,
	}
}

// Link references an externally registered asset from a utilization. The same asset may
// back several utilizations but is linked to each one at most once.
func (s *assetService) Link(ctx context.Context, actor workflow.Actor, req LinkAssetRequest) (*AssetLinkResponse, error) {
	v := &workflow.ValidationError{}
	utilizationID, err := parseID("utilization_id", req.UtilizationID)
	if err != nil {
		v.Add("utilization_id", "must be a valid id")
	}
	regNo := strings.ToUpper(strings.TrimSpace(req.AssetRegistrationNumber))
	if regNo == "" {
		v.Add("asset_registration_number", "is required")
	}
	if strings.TrimSpace(req.AssetName) == "" {
		v.Add("asset_name", "is required")
	}
	owner := strings.ToLower(strings.TrimSpace(req.AssetOwner))
	if !slices.Contains(assetOwners, owner) {
		v.Add("asset_owner", "must be one of "+strings.Join(assetOwners, ", "))
	}
	if err := v.OrNil(); err != nil {
		return nil, err
	}

	u, err := s.utilizations.FindByID(ctx, utilizationID)
	if err != nil {
		if errors.Is(err, workflow.ErrNotFound) {
			return nil, workflow.NewValidationError("utilization_id", "utilization does not exist")
		}
		return nil, err
	}

	link := model.AssetLink{
		UtilizationID:           u.ID,
		AssetRegistrationNumber: regNo,
		AssetName:               strings.TrimSpace(req.AssetName),
		AssetOwner:              owner,
		Notes:                   strings.TrimSpace(req.Notes),
		LinkedBy:                actor.ID,
	}
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		exists, err := s.links.Exists(txCtx, u.ID, regNo)
		if err != nil {
			return fmt.Errorf("failed to check asset link: %w", err)
		}
		if exists {
			return workflow.NewValidationError("asset_registration_number", "asset is already linked to this utilization")
		}
		if err := s.links.Create(txCtx, &link); err != nil {
			return fmt.Errorf("failed to link asset: %w", err)
		}
		return s.audits.Log(txCtx, auditEntry(actor, model.ActionLinkAsset, link.ID.String(), link.AssetName, map[string]any{
			"asset_registration_number": regNo,
			"utilization_id":            u.ID.String(),
			"appeal_id":                 u.AppealID.String(),
		}))
	})
	if err != nil {
		return nil, err
	}

	return s.Get(ctx, link.ID.String())
}

func (s *assetService) Unlink(ctx context.Context, actor workflow.Actor, id string) error {
	linkID, err := parseID("id", id)
	if err != nil {
		return err
	}
	link, err := s.links.FindByID(ctx, linkID)
	if err != nil {
		return err
	}

	return s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.links.Delete(txCtx, linkID); err != nil {
			return err
		}
		return s.audits.Log(txCtx, auditEntry(actor, model.ActionUnlinkAsset, link.ID.String(), link.AssetName, map[string]any{
			"asset_registration_number": link.AssetRegistrationNumber,
			"utilization_id":            link.UtilizationID.String(),
		}))
	})
}

func (s *assetService) Get(ctx context.Context, id string) (*AssetLinkResponse, error) {
	linkID, err := parseID("id", id)
	if err != nil {
		return nil, err
	}
	link, err := s.links.FindByID(ctx, linkID)
	if err != nil {
		return nil, err
	}
	res := toAssetLinkResponse(*link)
	return &res, nil
}

func (s *assetService) List(ctx context.Context, query AssetLinkQuery) ([]AssetLinkResponse, int64, error) {
	utilizationID, err := parseOptionalID("utilization_id", query.UtilizationID)
	if err != nil {
		return nil, 0, err
	}

	rows, total, err := s.links.List(ctx, repository.AssetLinkFilter{
		UtilizationID: utilizationID,
		Owner:         strings.ToLower(strings.TrimSpace(query.Owner)),
		Search:        query.Search,
		Page:          query.Page,
		Limit:         query.Limit,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list asset links: %w", err)
	}

	res := make([]AssetLinkResponse, 0, len(rows))
	for _, link := range rows {
		res = append(res, toAssetLinkResponse(link))
	}
	return res, total, nil
}

func (s *assetService) Stats(ctx context.Context) (*repository.AssetLinkStats, error) {
	stats, err := s.links.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

// Report lists every asset linked inside rng with the spending and appeal behind it.
func (s *assetService) Report(ctx context.Context, rng model.ReportRange) ([]model.AssetReportRow, error) {
	filter := repository.AssetLinkFilter{Limit: -1}
	if !rng.From.IsZero() {
		filter.From = &rng.From
	}
	if !rng.To.IsZero() {
		filter.To = &rng.To
	}
	links, _, err := s.links.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("asset report: %w", err)
	}

	rows := make([]model.AssetReportRow, 0, len(links))
	for _, link := range links {
		row := model.AssetReportRow{
			LinkID:                  link.ID.String(),
			AssetRegistrationNumber: link.AssetRegistrationNumber,
			AssetName:               link.AssetName,
			AssetOwner:              link.AssetOwner,
			UtilizationID:           link.UtilizationID.String(),
			AmountUtilized:          decimal.Zero,
			LinkedAt:                link.CreatedAt,
		}
		if u := link.Utilization; u != nil {
			row.UtilizationDescription = u.Description
			row.AmountUtilized = u.AmountUtilized
			row.AppealID = u.AppealID.String()
			if u.Appeal != nil {
				row.AppealTitle = u.Appeal.Title
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func toAssetLinkResponse(link model.AssetLink) AssetLinkResponse {
	res := AssetLinkResponse{
		ID:                      link.ID.String(),
		AssetRegistrationNumber: link.AssetRegistrationNumber,
		AssetName:               link.AssetName,
		AssetOwner:              link.AssetOwner,
		Notes:                   link.Notes,
		UtilizationID:           link.UtilizationID.String(),
		AmountUtilized:          decimal.Zero,
		LinkedBy:                link.LinkedBy.String(),
		LinkedAt:                link.CreatedAt.Format(timeLayout),
	}
	if u := link.Utilization; u != nil {
		res.UtilizationDescription = u.Description
		res.AmountUtilized = u.AmountUtilized
		res.AppealID = u.AppealID.String()
		if u.Appeal != nil {
			res.AppealTitle = u.Appeal.Title
		}
	}
	return res
}
