package apiapp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Ozonelabrada/resqhub-sub003/internal/config"
	tginfra "github.com/Ozonelabrada/resqhub-sub003/internal/infra/telegram"
	"github.com/Ozonelabrada/resqhub-sub003/internal/jobs/expirer"
	pgrepo "github.com/Ozonelabrada/resqhub-sub003/internal/repo/postgres"
	redrepo "github.com/Ozonelabrada/resqhub-sub003/internal/repo/redis"
	authsvc "github.com/Ozonelabrada/resqhub-sub003/internal/services/auth"
	expirationsvc "github.com/Ozonelabrada/resqhub-sub003/internal/services/expiration"
	handoversvc "github.com/Ozonelabrada/resqhub-sub003/internal/services/handover"
	lifecyclesvc "github.com/Ozonelabrada/resqhub-sub003/internal/services/lifecycle"
	"github.com/Ozonelabrada/resqhub-sub003/internal/services/notify"
	rejectionssvc "github.com/Ozonelabrada/resqhub-sub003/internal/services/rejections"
	verificationsvc "github.com/Ozonelabrada/resqhub-sub003/internal/services/verification"
)

type App struct {
	cfg        config.Config
	logger     *zap.Logger
	server     *http.Server
	postgres   *pgxpool.Pool
	redis      *goredis.Client
	httpRouter http.Handler
	sweeper    *expirer.Job
}

func New(ctx context.Context, cfg config.Config, log *zap.Logger) (*App, error) {
	if log == nil {
		return nil, fmt.Errorf("logger is nil")
	}

	r := chi.NewRouter()
	ApplyMiddlewares(r, log)

	var pool *pgxpool.Pool
	if p, err := pgrepo.NewPool(ctx, cfg.Postgres.DSN); err != nil {
		log.Warn("postgres init failed, continuing in degraded mode", zap.Error(err))
	} else {
		pool = p
	}

	redisClient := redrepo.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)

	matchRepo := pgrepo.NewMatchRepo(pool)
	reportRepo := pgrepo.NewReportRepo(pool)
	rejectionRepo := pgrepo.NewRejectionRepo(pool)
	flagRepo := pgrepo.NewFlagRepo(pool)
	userRepo := pgrepo.NewUserRepo(pool)
	questionRepo := pgrepo.NewQuestionRepo(pool)
	flagMarkerRepo := redrepo.NewFlagMarkerRepo(redisClient)
	issuedQuestionRepo := redrepo.NewIssuedQuestionRepo(redisClient)

	jwtManager := authsvc.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.JWTAccessTTL)

	rejectionsService := rejectionssvc.NewService(rejectionssvc.Dependencies{
		Rejections: rejectionRepo,
		Flags:      flagRepo,
		Marker:     flagMarkerRepo,
		Users:      userRepo,
		Logger:     log,
	}, rejectionssvc.Config{
		Threshold:          cfg.Match.FlagThreshold,
		Window:             cfg.Match.FlagWindow,
		RecentReasonsLimit: cfg.Match.RecentReasonsLimit,
	})

	lifecycleService := lifecyclesvc.NewService(lifecyclesvc.Dependencies{
		MatchStore:  matchRepo,
		ReportStore: reportRepo,
		Rejections:  rejectionsService,
		Logger:      log,
	}, lifecyclesvc.Config{AutoConfirm: cfg.Match.AutoConfirm})

	notifier := buildNotifier(cfg, log)
	lifecycleService.AttachNotifier(notifier)
	rejectionsService.AttachNotifier(notifier)

	expirationService := expirationsvc.NewService(expirationsvc.Dependencies{
		Store:     matchRepo,
		Lifecycle: lifecycleService,
		Logger:    log,
	}, expirationsvc.Config{
		Window:     cfg.Match.HandoverWindow,
		SweepBatch: cfg.Match.SweepBatch,
	})

	handoverService := handoversvc.NewService(handoversvc.Dependencies{
		Lifecycle: lifecycleService,
		Logger:    log,
	})

	verificationService := verificationsvc.NewService(verificationsvc.Dependencies{
		Questions: questionRepo,
		Issued:    issuedQuestionRepo,
		Lifecycle: lifecycleService,
		Logger:    log,
	}, verificationsvc.Config{
		MaxAttempts: cfg.Match.VerificationAttempts,
		IssuedTTL:   cfg.Match.HandoverWindow,
	})

	RegisterRoutes(r, Dependencies{
		LifecycleService:    lifecycleService,
		ExpirationService:   expirationService,
		HandoverService:     handoverService,
		VerificationService: verificationService,
		RejectionsService:   rejectionsService,
		JWTManager:          jwtManager,
		Logger:              log,
		Config:              cfg,
	})

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      r,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	return &App{
		cfg:        cfg,
		logger:     log,
		server:     server,
		postgres:   pool,
		redis:      redisClient,
		httpRouter: r,
		sweeper:    expirer.New(expirationService, cfg.Match.SweepInterval, log),
	}, nil
}

func buildNotifier(cfg config.Config, log *zap.Logger) notify.Notifier {
	if strings.TrimSpace(cfg.Telegram.Token) != "" && cfg.Telegram.ChatID != 0 {
		notifier, err := tginfra.NewNotifier(cfg.Telegram.Token, cfg.Telegram.ChatID)
		if err != nil {
			log.Warn("telegram notifier init failed, falling back to log notifier", zap.Error(err))
		} else {
			return notifier
		}
	}
	return notify.NewLogNotifier(log)
}

func (a *App) Run() error {
	a.logger.Info("api server started", zap.String("addr", a.cfg.HTTP.Addr))
	err := a.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// RunSweeper drives the in-process expiration sweep so matches expire even
// when no dedicated sweeper deployment exists. The conditional transitions
// keep it safe to run next to cmd/sweeper.
func (a *App) RunSweeper(ctx context.Context) error {
	return a.sweeper.Loop(ctx)
}

func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error

	if err := a.server.Shutdown(ctx); err != nil {
		shutdownErr = err
	}
	if a.postgres != nil {
		a.postgres.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil && shutdownErr == nil {
			shutdownErr = err
		}
	}

	return shutdownErr
}

func (a *App) Handler() http.Handler {
	return a.httpRouter
}
