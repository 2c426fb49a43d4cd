package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"donationdesk/internal/model"
	"donationdesk/internal/notify"
	"donationdesk/internal/repository"
	"donationdesk/internal/workflow"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// recordingPublisher keeps every event and fails while err is set.
type recordingPublisher struct {
	mu     sync.Mutex
	events []notify.Event
	err    error
	// hook runs before each publish; a non-nil result fails it.
	hook func(ctx context.Context) error
}

func (p *recordingPublisher) Publish(ctx context.Context, e notify.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.hook != nil {
		if err := p.hook(ctx); err != nil {
			return err
		}
	}
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) setErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

func (p *recordingPublisher) setHook(fn func(ctx context.Context) error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hook = fn
}

func (p *recordingPublisher) Events() []notify.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]notify.Event(nil), p.events...)
}

type env struct {
	db        *gorm.DB
	publisher *recordingPublisher
	feed      *recordingPublisher

	appeals      AppealService
	comms        CommunicationService
	donations    DonationService
	utilizations UtilizationService
	people       BeneficiaryService
	users        UserService
	audits       AuditService
	assets       AssetService
	reports      ReportService

	creator  workflow.Actor
	approver workflow.Actor
	viewer   workflow.Actor
}

func newEnv(t *testing.T) *env {
	t.Helper()

	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(
		&model.User{},
		&model.Appeal{},
		&model.AppealDocument{},
		&model.Donation{},
		&model.Utilization{},
		&model.Beneficiary{},
		&model.AssetLink{},
		&model.Communication{},
		&model.AuditLog{},
	))

	tm := repository.NewTransactionManager(db)
	appealRepo := repository.NewAppealRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	donationRepo := repository.NewDonationRepository(db)
	utilRepo := repository.NewUtilizationRepository(db)
	peopleRepo := repository.NewBeneficiaryRepository(db)
	commRepo := repository.NewCommunicationRepository(db)
	userRepo := repository.NewUserRepository(db)

	e := &env{db: db, publisher: &recordingPublisher{}, feed: &recordingPublisher{}}
	e.comms = NewCommunicationService(commRepo, donationRepo, appealRepo, auditRepo, tm, e.publisher, e.feed, 3)
	e.appeals = NewAppealService(workflow.NewEngine(workflow.DefaultPolicy()), appealRepo, auditRepo, tm, e.comms, e.feed)
	e.donations = NewDonationService(donationRepo, appealRepo, auditRepo, tm)
	e.utilizations = NewUtilizationService(utilRepo, appealRepo, auditRepo, tm)
	e.people = NewBeneficiaryService(peopleRepo, appealRepo, auditRepo, tm)
	e.users = NewUserService(userRepo, auditRepo, tm, []byte("test-secret"), time.Hour)
	e.audits = NewAuditService(auditRepo)
	e.assets = NewAssetService(repository.NewAssetLinkRepository(db), utilRepo, auditRepo, tm)
	e.reports = NewReportService(repository.NewReportRepository(db), appealRepo, peopleRepo, auditRepo)

	e.creator = e.seedUser(t, model.RoleITCAdmin)
	e.approver = e.seedUser(t, model.RoleMissionAuthority)
	e.viewer = e.seedUser(t, model.RoleViewer)
	return e
}

func (e *env) seedUser(t *testing.T, role string) workflow.Actor {
	t.Helper()
	u := model.User{Name: "User " + role, Email: uuid.NewString() + "@example.org", Password: "x", Role: role}
	require.NoError(t, e.db.Create(&u).Error)
	return workflow.Actor{ID: u.ID, Role: u.Role}
}

func appealRequest() AppealRequest {
	return AppealRequest{
		Title:               "School Renovation",
		Description:         "Roof and classrooms",
		EstimatedAmount:     decimal.NewFromInt(500000),
		BeneficiaryCategory: "education",
		Duration:            "6 months",
		Documents:           []DocumentRequest{{FileName: "quote.pdf", ContentType: "application/pdf", SizeBytes: 2048}},
	}
}

// submitted creates an appeal as the creator and submits it.
func (e *env) submitted(t *testing.T) *AppealResponse {
	t.Helper()
	ctx := context.Background()
	created, err := e.appeals.Create(ctx, e.creator, appealRequest())
	require.NoError(t, err)
	res, err := e.appeals.Submit(ctx, e.creator, created.ID)
	require.NoError(t, err)
	return res
}

// approved takes an appeal all the way to APPROVED for amount.
func (e *env) approved(t *testing.T, amount int64) *AppealResponse {
	t.Helper()
	appeal := e.submitted(t)
	res, err := e.appeals.Approve(context.Background(), e.approver, appeal.ID, ApproveRequest{ApprovedAmount: decimal.NewFromInt(amount)})
	require.NoError(t, err)
	return &res.Appeal
}

func (e *env) pledge(t *testing.T, appealID, name, email string, amount int64) *DonationResponse {
	t.Helper()
	d, err := e.donations.Record(context.Background(), e.creator, RecordDonationRequest{
		AppealID:   appealID,
		DonorName:  name,
		DonorEmail: email,
		Amount:     decimal.NewFromInt(amount),
		Mode:       model.DonationModeUPI,
	})
	require.NoError(t, err)
	return d
}

func mustUUID(s string) uuid.UUID {
	return uuid.MustParse(s)
}
