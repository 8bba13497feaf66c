package sweeperapp

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/Ozonelabrada/resqhub-sub003/internal/config"
	tginfra "github.com/Ozonelabrada/resqhub-sub003/internal/infra/telegram"
	"github.com/Ozonelabrada/resqhub-sub003/internal/jobs/expirer"
	pgrepo "github.com/Ozonelabrada/resqhub-sub003/internal/repo/postgres"
	expirationsvc "github.com/Ozonelabrada/resqhub-sub003/internal/services/expiration"
	lifecyclesvc "github.com/Ozonelabrada/resqhub-sub003/internal/services/lifecycle"
	"github.com/Ozonelabrada/resqhub-sub003/internal/services/notify"
	rejectionssvc "github.com/Ozonelabrada/resqhub-sub003/internal/services/rejections"
)

// App is the standalone sweeper process. It shares no state with the API
// server: several instances may run side by side because expiry transitions
// are conditional updates.
type App struct {
	cfg      config.Config
	logger   *zap.Logger
	postgres *pgxpool.Pool
	job      *expirer.Job
}

func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is nil")
	}

	pool, err := pgrepo.NewPool(ctx, cfg.Postgres.DSN)
	if err != nil {
		return nil, fmt.Errorf("init postgres for sweeper: %w", err)
	}

	matchRepo := pgrepo.NewMatchRepo(pool)
	reportRepo := pgrepo.NewReportRepo(pool)
	rejectionRepo := pgrepo.NewRejectionRepo(pool)
	flagRepo := pgrepo.NewFlagRepo(pool)

	rejectionsService := rejectionssvc.NewService(rejectionssvc.Dependencies{
		Rejections: rejectionRepo,
		Flags:      flagRepo,
		Logger:     logger,
	}, rejectionssvc.Config{
		Threshold:          cfg.Match.FlagThreshold,
		Window:             cfg.Match.FlagWindow,
		RecentReasonsLimit: cfg.Match.RecentReasonsLimit,
	})

	lifecycleService := lifecyclesvc.NewService(lifecyclesvc.Dependencies{
		MatchStore:  matchRepo,
		ReportStore: reportRepo,
		Rejections:  rejectionsService,
		Logger:      logger,
	}, lifecyclesvc.Config{AutoConfirm: cfg.Match.AutoConfirm})

	notifier := buildNotifier(cfg, logger)
	lifecycleService.AttachNotifier(notifier)
	rejectionsService.AttachNotifier(notifier)

	expirationService := expirationsvc.NewService(expirationsvc.Dependencies{
		Store:     matchRepo,
		Lifecycle: lifecycleService,
		Logger:    logger,
	}, expirationsvc.Config{
		Window:     cfg.Match.HandoverWindow,
		SweepBatch: cfg.Match.SweepBatch,
	})

	return &App{
		cfg:      cfg,
		logger:   logger,
		postgres: pool,
		job:      expirer.New(expirationService, cfg.Match.SweepInterval, logger),
	}, nil
}

func buildNotifier(cfg config.Config, logger *zap.Logger) notify.Notifier {
	if strings.TrimSpace(cfg.Telegram.Token) != "" && cfg.Telegram.ChatID != 0 {
		notifier, err := tginfra.NewNotifier(cfg.Telegram.Token, cfg.Telegram.ChatID)
		if err != nil {
			logger.Warn("telegram notifier init failed, falling back to log notifier", zap.Error(err))
		} else {
			return notifier
		}
	}
	return notify.NewLogNotifier(logger)
}

func (a *App) Run(ctx context.Context) error {
	a.logger.Info("sweeper started",
		zap.Duration("interval", a.cfg.Match.SweepInterval),
		zap.Duration("window", a.cfg.Match.HandoverWindow),
	)
	err := a.job.Loop(ctx)
	a.logger.Info("sweeper stopped")
	return err
}

func (a *App) Close() {
	if a.postgres != nil {
		a.postgres.Close()
	}
}
