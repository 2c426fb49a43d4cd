package handler

import (
	"donationdesk/internal/service"

	"github.com/gin-gonic/gin"
)

// Services bundles everything the HTTP layer calls.
type Services struct {
	Appeals        service.AppealService
	Donations      service.DonationService
	Utilizations   service.UtilizationService
	Beneficiaries  service.BeneficiaryService
	Assets         service.AssetService
	Communications service.CommunicationService
	Reports        service.ReportService
	Users          service.UserService
	Audits         service.AuditService
}

// Register mounts every API route on api.
func Register(api *gin.RouterGroup, svc Services, access Access) {
	NewUserHandler(svc.Users, access).RegisterRoutes(api)
	NewAppealHandler(svc.Appeals, svc.Utilizations, access).RegisterRoutes(api)
	NewDonationHandler(svc.Donations, access).RegisterRoutes(api)
	NewUtilizationHandler(svc.Utilizations, access).RegisterRoutes(api)
	NewBeneficiaryHandler(svc.Beneficiaries, access).RegisterRoutes(api)
	NewCommunicationHandler(svc.Communications, access).RegisterRoutes(api)
	NewAssetHandler(svc.Assets, access).RegisterRoutes(api)
	NewReportHandler(svc.Reports, svc.Assets, access).RegisterRoutes(api)
	NewDashboardHandler(svc.Reports, svc.Appeals, access).RegisterRoutes(api)
	NewAuditHandler(svc.Audits, access).RegisterRoutes(api)
}
