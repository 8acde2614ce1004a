package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"
	"gorm.io/gorm"

	"github.com/customeros/domainstack/config"
	"github.com/customeros/domainstack/internal/database"
	"github.com/customeros/domainstack/internal/logger"
	"github.com/customeros/domainstack/internal/repository"
	"github.com/customeros/domainstack/internal/utils"
	"github.com/customeros/domainstack/server"
	"github.com/customeros/domainstack/services"
)

func main() {
	app := &cli.App{
		Name:  "domainstack",
		Usage: "Sending-domain provisioning and DNS propagation monitoring",
		Commands: []*cli.Command{
			{
				Name:   "migrate",
				Usage:  "Run database migrations",
				Action: migrate,
			},
			{
				Name:   "server",
				Usage:  "Start the API server and scheduler",
				Action: serve,
			},
			{
				Name:  "tick",
				Usage: "Tick polling sessions once and exit",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "session",
						Usage: "tick only this polling session",
					},
					&cli.BoolFlag{
						Name:  "all",
						Usage: "also run nameserver verification, deferred DMARC and mail directory checks",
					},
				},
				Action: tick,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func setup() (*config.Config, logger.Logger, *gorm.DB, error) {
	cfg, err := config.InitConfig()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("config initialization failed: %w", err)
	}

	appLogger := logger.NewAppLogger(cfg.Logger)
	appLogger.InitLogger()

	db, err := database.NewConnection(cfg.DatabaseConfig)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("database initialization failed: %w", err)
	}
	return cfg, appLogger, db, nil
}

func migrate(c *cli.Context) error {
	cfg, appLogger, db, err := setup()
	if err != nil {
		return err
	}
	if err := repository.MigrateDB(cfg.DatabaseConfig, db); err != nil {
		return fmt.Errorf("database migration failed: %w", err)
	}
	appLogger.Info("Database migration completed successfully")
	return nil
}

func serve(c *cli.Context) error {
	cfg, appLogger, db, err := setup()
	if err != nil {
		return err
	}
	appLogger.Info("Domainstack starting up...")

	srv, err := server.NewServer(c.Context, cfg, appLogger, db)
	if err != nil {
		return fmt.Errorf("server setup failed: %w", err)
	}
	if err := srv.Run(); err != nil {
		return fmt.Errorf("server startup failed: %w", err)
	}

	appLogger.Info("Shutdown complete")
	return nil
}

func tick(c *cli.Context) error {
	cfg, appLogger, db, err := setup()
	if err != nil {
		return err
	}

	ctx := utils.SetAppSourceInContext(c.Context, "domainstack-cli")
	svcs, err := services.InitServices(ctx, cfg, appLogger, repository.InitRepositories(db))
	if err != nil {
		return err
	}
	defer svcs.Close()

	if id := c.String("session"); id != "" {
		session, err := svcs.PropagationService.Tick(ctx, id)
		if err != nil {
			return err
		}
		appLogger.Infof("Session %s: status=%s progress=%d%%", session.ID, session.Status, session.Progress)
		return nil
	}

	ticked, err := svcs.PropagationService.TickActive(ctx)
	if err != nil {
		return err
	}
	appLogger.Infof("Ticked %d polling sessions", ticked)

	if c.Bool("all") {
		return runMaintenance(ctx, appLogger, svcs)
	}
	return nil
}

func runMaintenance(ctx context.Context, appLogger logger.Logger, svcs *services.Services) error {
	verified, err := svcs.NameserverService.VerifyPending(ctx)
	if err != nil {
		return err
	}
	appLogger.Infof("Verified nameservers for %d domains", verified)

	created, err := svcs.DNSRecordService.CreateDeferredDMARC(ctx)
	if err != nil {
		return err
	}
	appLogger.Infof("Created DMARC records for %d domains", created)

	mailVerified, err := svcs.ProvisioningService.CheckPendingMailDirectory(ctx)
	if err != nil {
		return err
	}
	appLogger.Infof("Mail directory verified %d domains", mailVerified)
	return nil
}
