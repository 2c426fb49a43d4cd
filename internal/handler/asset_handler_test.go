package handler

import (
	"encoding/json"
	"net/http"
	"testing"

	"donationdesk/internal/model"
	"donationdesk/internal/repository"
	"donationdesk/internal/service"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// spentAppeal approves an appeal for 100000 and records one utilization against it.
func (e *apiEnv) spentAppeal(t *testing.T, creator string) (appealID, utilizationID string) {
	t.Helper()
	approver := e.token(t, model.RoleMissionAuthority)
	appealID = e.submittedAppeal(t, creator)
	w, env := e.do(t, http.MethodPost, "/api/approvals/"+appealID+"/approve", approver, map[string]any{"approved_amount": 100000})
	require.Equal(t, http.StatusOK, w.Code, env.Error)

	w, env = e.do(t, http.MethodPost, "/api/utilizations", creator, map[string]any{
		"appeal_id":       appealID,
		"description":     "School books",
		"amount_utilized": 40000,
	})
	require.Equal(t, http.StatusCreated, w.Code, env.Error)
	var result service.UtilizationResult
	require.NoError(t, json.Unmarshal(env.Data, &result))
	return appealID, result.Utilization.ID
}

func TestAssetRoutes(t *testing.T) {
	e := newAPI(t)
	creator := e.token(t, model.RoleITCAdmin)
	viewer := e.token(t, model.RoleViewer)
	_, utilizationID := e.spentAppeal(t, creator)

	body := map[string]any{
		"utilization_id":            utilizationID,
		"asset_registration_number": "ITC-EDU-2024-001",
		"asset_name":                "Educational books package",
		"asset_owner":               "itc",
	}
	w, _ := e.do(t, http.MethodPost, "/api/assets/link", viewer, body)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, env := e.do(t, http.MethodPost, "/api/assets/link", creator, body)
	require.Equal(t, http.StatusCreated, w.Code, env.Error)
	var link service.AssetLinkResponse
	require.NoError(t, json.Unmarshal(env.Data, &link))
	assert.Equal(t, "School books", link.UtilizationDescription)

	w, env = e.do(t, http.MethodPost, "/api/assets/link", creator, body)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, env.Error, "already linked")

	w, env = e.do(t, http.MethodGet, "/api/assets?search=books", viewer, nil)
	require.Equal(t, http.StatusOK, w.Code, env.Error)
	var list []service.AssetLinkResponse
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Len(t, list, 1)
	assert.Equal(t, link.ID, list[0].ID)

	w, env = e.do(t, http.MethodGet, "/api/assets/stats", viewer, nil)
	require.Equal(t, http.StatusOK, w.Code, env.Error)
	var stats repository.AssetLinkStats
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	assert.EqualValues(t, 1, stats.ByOwner[model.AssetOwnerITC])

	w, env = e.do(t, http.MethodGet, "/api/reports/asset-utilization", viewer, nil)
	require.Equal(t, http.StatusOK, w.Code, env.Error)
	var rows []model.AssetReportRow
	require.NoError(t, json.Unmarshal(env.Data, &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "ITC-EDU-2024-001", rows[0].AssetRegistrationNumber)

	w, _ = e.do(t, http.MethodDelete, "/api/assets/"+link.ID, viewer, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w, env = e.do(t, http.MethodDelete, "/api/assets/"+link.ID, creator, nil)
	require.Equal(t, http.StatusOK, w.Code, env.Error)
	w, _ = e.do(t, http.MethodGet, "/api/assets/"+link.ID, viewer, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w, _ = e.do(t, http.MethodGet, "/api/assets/"+uuid.NewString(), viewer, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRecordEditRoutes(t *testing.T) {
	e := newAPI(t)
	creator := e.token(t, model.RoleITCAdmin)
	viewer := e.token(t, model.RoleViewer)
	appealID, utilizationID := e.spentAppeal(t, creator)

	w, env := e.do(t, http.MethodPost, "/api/donations", creator, map[string]any{
		"appeal_id":  appealID,
		"donor_name": "Asha",
		"amount":     1000,
		"mode":       model.DonationModeCash,
	})
	require.Equal(t, http.StatusCreated, w.Code, env.Error)
	var donation service.DonationResponse
	require.NoError(t, json.Unmarshal(env.Data, &donation))

	edit := map[string]any{"donor_name": "Asha Rao", "amount": 1200, "mode": model.DonationModeCash}
	w, _ = e.do(t, http.MethodPut, "/api/donations/"+donation.ID, viewer, edit)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, env = e.do(t, http.MethodPut, "/api/donations/"+donation.ID, creator, edit)
	require.Equal(t, http.StatusOK, w.Code, env.Error)
	require.NoError(t, json.Unmarshal(env.Data, &donation))
	assert.Equal(t, "Asha Rao", donation.DonorName)
	assert.Equal(t, "1200", donation.Amount.String())

	w, env = e.do(t, http.MethodPost, "/api/donations/"+donation.ID+"/confirm", creator, nil)
	require.Equal(t, http.StatusOK, w.Code, env.Error)
	w, env = e.do(t, http.MethodPut, "/api/donations/"+donation.ID, creator, edit)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, env.Error, "CONFIRMED")

	w, env = e.do(t, http.MethodPut, "/api/utilizations/"+utilizationID, creator, map[string]any{
		"description":     "School books and uniforms",
		"amount_utilized": 60000,
	})
	require.Equal(t, http.StatusOK, w.Code, env.Error)
	assert.Empty(t, env.Warnings)

	w, env = e.do(t, http.MethodPut, "/api/utilizations/"+utilizationID, creator, map[string]any{
		"description":     "School books and uniforms",
		"amount_utilized": 130000,
	})
	require.Equal(t, http.StatusOK, w.Code, env.Error)
	assert.Equal(t, []string{overUtilizedWarning}, env.Warnings)
	var result service.UtilizationResult
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Equal(t, "-30000", result.Balance.Raw.String())

	w, _ = e.do(t, http.MethodPut, "/api/utilizations/"+uuid.NewString(), creator, map[string]any{
		"description":     "x",
		"amount_utilized": 1,
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDashboardRoutes(t *testing.T) {
	e := newAPI(t)
	creator := e.token(t, model.RoleITCAdmin)
	viewer := e.token(t, model.RoleViewer)
	e.spentAppeal(t, creator)
	e.submittedAppeal(t, creator)

	w, env := e.do(t, http.MethodGet, "/api/dashboard/appeal-status", viewer, nil)
	require.Equal(t, http.StatusOK, w.Code, env.Error)
	var counts []model.StatusCount
	require.NoError(t, json.Unmarshal(env.Data, &counts))
	byStatus := map[string]int64{}
	for _, c := range counts {
		byStatus[c.Status] = c.Count
	}
	assert.Equal(t, map[string]int64{"DRAFT": 0, "SUBMITTED": 1, "APPROVED": 1, "REJECTED": 0}, byStatus)

	w, env = e.do(t, http.MethodGet, "/api/dashboard/donation-trend?period=3months", viewer, nil)
	require.Equal(t, http.StatusOK, w.Code, env.Error)
	var points []model.TrendPoint
	require.NoError(t, json.Unmarshal(env.Data, &points))
	require.Len(t, points, 3)
	assert.Equal(t, "40000", points[2].Utilized.String())

	w, _ = e.do(t, http.MethodGet, "/api/dashboard/donation-trend?period=forever", viewer, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, env = e.do(t, http.MethodGet, "/api/dashboard/recent-activity?limit=2", viewer, nil)
	require.Equal(t, http.StatusOK, w.Code, env.Error)
	var activity []model.Activity
	require.NoError(t, json.Unmarshal(env.Data, &activity))
	assert.Len(t, activity, 2)

	w, _ = e.do(t, http.MethodGet, "/api/dashboard/recent-activity?limit=lots", viewer, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, env = e.do(t, http.MethodGet, "/api/dashboard/pending-approvals", viewer, nil)
	require.Equal(t, http.StatusOK, w.Code, env.Error)
	var pending []service.AppealResponse
	require.NoError(t, json.Unmarshal(env.Data, &pending))
	assert.Len(t, pending, 1)

	w, _ = e.do(t, http.MethodGet, "/api/dashboard/stats", viewer, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = e.do(t, http.MethodGet, "/api/dashboard/stats", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	for _, path := range []string{"/api/reports/donation-utilization", "/api/reports/beneficiary-impact"} {
		w, env = e.do(t, http.MethodGet, path+"?from=2020-01-01", viewer, nil)
		assert.Equal(t, http.StatusOK, w.Code, path+" "+env.Error)
	}
}
