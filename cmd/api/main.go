package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/helpdesk-sla/internal/api/http"
	"github.com/spec-kit/helpdesk-sla/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk-sla/internal/auth"
	"github.com/spec-kit/helpdesk-sla/internal/config"
	"github.com/spec-kit/helpdesk-sla/internal/events"
	"github.com/spec-kit/helpdesk-sla/internal/locking"
	"github.com/spec-kit/helpdesk-sla/internal/observability"
	"github.com/spec-kit/helpdesk-sla/internal/persistence"
	"github.com/spec-kit/helpdesk-sla/internal/repository"
	"github.com/spec-kit/helpdesk-sla/internal/service"
	"github.com/spec-kit/helpdesk-sla/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	pool := pg.PoolHandle()
	ticketRepo := repository.NewTicketRepository(pool)
	policyRepo := repository.NewPolicyRepository(pool)
	auditRepo := repository.NewAuditLogRepository(pool)
	historyRepo := repository.NewStatusHistoryRepository(pool)
	agentRepo := repository.NewAgentRepository(pool)

	locker := locking.NewRedisTicketLocker(
		redis.Client,
		logger,
		time.Duration(cfg.Scanner.TicketLockTTLSeconds)*time.Second,
		cfg.Scanner.TicketLockRetries,
		time.Duration(cfg.Scanner.TicketLockRetryDelayMsec)*time.Millisecond,
	)

	dispatcher := events.NewInMemoryDispatcher()
	metrics := observability.NewMetrics()

	notificationService := service.NewNotificationService(dispatcher, logger, cfg.Notification)
	worker.StartNotificationWorker(notificationService)

	slaService := service.NewSLAService(service.SLADependencies{
		TicketRepo: ticketRepo,
		PolicyRepo: policyRepo,
		AuditRepo:  auditRepo,
		Locker:     locker,
		Dispatcher: dispatcher,
		Logger:     logger,
	})
	escalationService := service.NewEscalationService(service.EscalationDependencies{
		PolicyRepo: policyRepo,
		AuditRepo:  auditRepo,
		SLAService: slaService,
		Notifier:   notificationService,
		Dispatcher: dispatcher,
		Logger:     logger,
	})
	scannerService := service.NewScannerService(service.ScannerDependencies{
		TicketRepo:   ticketRepo,
		AuditRepo:    auditRepo,
		Escalation:   escalationService,
		Notifier:     notificationService,
		Locker:       locker,
		Dispatcher:   dispatcher,
		Metrics:      metrics,
		Logger:       logger,
		ThresholdPct: cfg.Scanner.ApproachingThresholdPct,
		Workers:      cfg.Scanner.WorkerCount,
	})
	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo:  ticketRepo,
		PolicyRepo:  policyRepo,
		AuditRepo:   auditRepo,
		HistoryRepo: historyRepo,
		SLAService:  slaService,
		Locker:      locker,
		Dispatcher:  dispatcher,
		Logger:      logger,
	})
	timelineService := service.NewTimelineService(ticketRepo, auditRepo, historyRepo, logger)
	policyService := service.NewPolicyService(policyRepo, logger)
	authService := service.NewAuthService(*cfg, agentRepo)

	authMiddleware := auth.NewAuthMiddleware(authService.TokenManager(), agentRepo)

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Tickets:        handlers.NewTicketsHandler(ticketService, timelineService),
		SLA:            handlers.NewSLAHandler(slaService, scannerService),
		Policies:       handlers.NewPoliciesHandler(policyService),
		Agents:         handlers.NewAgentsHandler(authService),
		AuthMiddleware: authMiddleware,
	})

	var breachScanner *worker.BreachScanner
	if cfg.Scanner.Enabled {
		breachScanner = worker.NewBreachScanner(scannerService, cfg.Scanner.Interval(), logger)
		breachScanner.Start(ctx)
	}

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	cancel()
	if breachScanner != nil {
		breachScanner.Wait()
	}
	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
