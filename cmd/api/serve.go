package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	_ "donationdesk/api/swagger" // swagger docs
	"donationdesk/internal/config"
	"donationdesk/internal/database"
	"donationdesk/internal/handler"
	"donationdesk/internal/middleware"
	"donationdesk/internal/notify"
	"donationdesk/internal/repository"
	"donationdesk/internal/scheduler"
	"donationdesk/internal/service"
	"donationdesk/internal/websocket"
	"donationdesk/internal/workflow"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"gorm.io/gorm"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := bootstrap()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, log)
		},
	}
}

func migrateUp(cfg *config.Config) error {
	return database.Migrate(cfg.DSN())
}

// app is the wired dependency graph (Repository -> Service -> Handler).
type app struct {
	db        *gorm.DB
	hub       *websocket.Hub
	services  handler.Services
	broker    *notify.RabbitPublisher
	scheduler *scheduler.Scheduler
}

func newApp(cfg *config.Config, log *slog.Logger) (*app, error) {
	db, err := database.NewConnection(cfg.DSN(), cfg.DBAutoMigrate)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	log.Info("connected to PostgreSQL")

	a := &app{db: db, hub: websocket.NewHub()}

	// Donor notifications go to the broker; the live feed also reaches admin UIs.
	var donors notify.Publisher = notify.LogPublisher{Logger: log}
	feed := notify.Multi{notify.HubPublisher{Hub: a.hub}}
	if cfg.RabbitMQURL != "" {
		a.broker, err = notify.NewRabbitPublisher(cfg.RabbitMQURL, cfg.NotificationExchange)
		if err != nil {
			return nil, err
		}
		donors = a.broker
		feed = append(feed, a.broker)
		log.Info("publishing donor notifications to RabbitMQ", "exchange", cfg.NotificationExchange)
	}

	txManager := repository.NewTransactionManager(db)
	userRepo := repository.NewUserRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	appealRepo := repository.NewAppealRepository(db)
	donationRepo := repository.NewDonationRepository(db)
	utilizationRepo := repository.NewUtilizationRepository(db)
	beneficiaryRepo := repository.NewBeneficiaryRepository(db)
	assetRepo := repository.NewAssetLinkRepository(db)
	communicationRepo := repository.NewCommunicationRepository(db)
	reportRepo := repository.NewReportRepository(db)

	comms := service.NewCommunicationService(communicationRepo, donationRepo, appealRepo, auditRepo, txManager, donors, feed, cfg.NotificationMaxAttempts)
	a.services = handler.Services{
		Appeals:        service.NewAppealService(workflow.NewEngine(cfg.Policy()), appealRepo, auditRepo, txManager, comms, feed),
		Donations:      service.NewDonationService(donationRepo, appealRepo, auditRepo, txManager),
		Utilizations:   service.NewUtilizationService(utilizationRepo, appealRepo, auditRepo, txManager),
		Beneficiaries:  service.NewBeneficiaryService(beneficiaryRepo, appealRepo, auditRepo, txManager),
		Assets:         service.NewAssetService(assetRepo, utilizationRepo, auditRepo, txManager),
		Communications: comms,
		Reports:        service.NewReportService(reportRepo, appealRepo, beneficiaryRepo, auditRepo),
		Users:          service.NewUserService(userRepo, auditRepo, txManager, cfg.JWTSigningKey(), cfg.JWTTTL),
		Audits:         service.NewAuditService(auditRepo),
	}
	a.scheduler = scheduler.New(comms, log, cfg.RetrySchedule())
	return a, nil
}

func (a *app) close() {
	if a.broker != nil {
		a.broker.Close()
	}
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func (a *app) router(cfg *config.Config, log *slog.Logger) *gin.Engine {
	if cfg.IsRelease() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger(log))

	// CORS configuration
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.AllowedOrigins()
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	router.Use(cors.New(corsConfig))

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	router.GET("/health", func(c *gin.Context) {
		sqlDB, err := a.db.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "DOWN", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "OK", "ws_clients": a.hub.Clients()})
	})

	router.GET("/ws", websocket.Handler(a.hub, cfg.JWTSigningKey(), cfg.WebsocketRoles()))

	access := handler.Access{
		Auth:    middleware.NewAuth(cfg.JWTSigningKey(), cfg.JWTTTL, cfg.IsRelease()).WithRoleLookup(a.services.Users.CurrentRole),
		Writers: cfg.Creators(),
		Admins:  cfg.Admins(),
	}
	handler.Register(router.Group("/api"), a.services, access)
	return router
}

func serve(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	a, err := newApp(cfg, log)
	if err != nil {
		return err
	}
	defer a.close()

	go a.hub.Run(ctx)

	if err := a.scheduler.Start(); err != nil {
		return err
	}
	defer func() { <-a.scheduler.Stop().Done() }()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           a.router(cfg, log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
