package main

import (
	"context"
	"time"

	"github.com/dailydues/backend/internal/config"
	"github.com/dailydues/backend/internal/handlers"
	"github.com/dailydues/backend/internal/middleware"
	"github.com/dailydues/backend/internal/models"
	"github.com/dailydues/backend/internal/services"
	"github.com/dailydues/backend/internal/utils"
	"github.com/dailydues/backend/pkg/logger"
)

// appServices holds all initialized services and handlers needed by the application.
type appServices struct {
	cancel      context.CancelFunc
	taskQueue   services.TaskQueue
	worker      *services.Worker
	digest      *services.LeaderboardDigestService
	limiter     *middleware.RateLimiter
	voteLimiter *middleware.RateLimiter

	authHandler        *handlers.AuthHandler
	dailyLogHandler    *handlers.DailyLogHandler
	leaderboardHandler *handlers.LeaderboardHandler
	challengeHandler   *handlers.ChallengeHandler
	commitmentHandler  *handlers.CommitmentHandler
	holidayHandler     *handlers.HolidayHandler
	realmHandler       *handlers.RealmHandler
	userHandler        *handlers.UserHandler
	systemLogHandler   *handlers.SystemLogHandler
	healthHandler      *handlers.HealthHandler
	sseHandler         *handlers.SSEHandler
}

// bootstrap initializes all application dependencies: database, services, schedulers.
func bootstrap(cfg *config.Config) *appServices {
	utils.SetJWTSecret(cfg.JWT.Secret)

	// Initialize database
	if err := models.InitDB(&cfg.Database); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	// Auto migrate database
	if err := models.AutoMigrate(); err != nil {
		logger.Fatalf("Failed to migrate database: %v", err)
	}

	// Seed default data
	if err := models.SeedDefaultData(); err != nil {
		logger.Warn().Err(err).Msg("Failed to seed default data")
	}

	db := models.GetDB()
	services.InitSystemLogger(db)

	clock, err := services.NewClock(cfg.App.Timezone)
	if err != nil {
		logger.Fatalf("Invalid timezone %q: %v", cfg.App.Timezone, err)
	}

	national := services.NewNationalCalendar()
	holidayService := services.NewHolidayService(db, clock, national)

	// Task queue (Redis if enabled, otherwise synchronous delivery)
	taskQueue := services.NewTaskQueue(&cfg.Redis)
	notificationService := services.NewNotificationService(cfg.Notification, taskQueue)
	if syncQueue, ok := taskQueue.(*services.SyncQueue); ok {
		syncQueue.SetProcessor(notificationService.Deliver)
	}

	var worker *services.Worker
	if taskQueue.IsAsync() {
		worker = services.NewWorker(&cfg.Redis)
		if worker != nil {
			worker.SetProcessor(notificationService.Deliver)
			if err := worker.Start(); err != nil {
				logger.Error().Err(err).Msg("Failed to start notification worker")
				worker = nil
			}
		}
	}

	hub := services.NewSSEHub()

	dailyLogService := services.NewDailyLogService(db, clock, holidayService, notificationService, hub).
		WithMilestones(cfg.App.StreakMilestones)
	challengeService := services.NewChallengeService(db, clock, hub)
	leaderboardService := services.NewLeaderboardService(db, clock, holidayService)
	coachService := services.NewCoachService(cfg.Coach)
	digestService := services.NewLeaderboardDigestService(db, clock, leaderboardService, coachService, notificationService, cfg.Digest)
	if err := digestService.StartScheduler(); err != nil {
		logger.Warn().Err(err).Msg("Failed to start leaderboard digest scheduler")
	}

	commitmentService := services.NewCommitmentService(db)
	realmService := services.NewRealmService(db, national, notificationService)
	userService := services.NewUserService(db)
	systemLogService := services.NewSystemLogService(db)

	authService := services.NewAuthService(db, cfg.JWT, services.NewLDAPDirectory(cfg.LDAP))
	if err := authService.CreateAdminIfNotExists(cfg.App.AdminUsername, cfg.App.AdminPassword); err != nil {
		logger.Warn().Err(err).Msg("Failed to create admin user")
	}

	ctx, cancel := context.WithCancel(context.Background())
	go systemLogService.RunLogCleanup(ctx, cfg.Log.RetentionDays)

	limiter := middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	voteLimiter := middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	go limiter.RunCleanup(ctx, 10*time.Minute, time.Hour)
	go voteLimiter.RunCleanup(ctx, 10*time.Minute, time.Hour)

	return &appServices{
		cancel:      cancel,
		taskQueue:   taskQueue,
		worker:      worker,
		digest:      digestService,
		limiter:     limiter,
		voteLimiter: voteLimiter,

		authHandler:        handlers.NewAuthHandler(authService),
		dailyLogHandler:    handlers.NewDailyLogHandler(dailyLogService),
		leaderboardHandler: handlers.NewLeaderboardHandler(leaderboardService, digestService),
		challengeHandler:   handlers.NewChallengeHandler(challengeService),
		commitmentHandler:  handlers.NewCommitmentHandler(commitmentService),
		holidayHandler:     handlers.NewHolidayHandler(holidayService, national),
		realmHandler:       handlers.NewRealmHandler(realmService),
		userHandler:        handlers.NewUserHandler(userService),
		systemLogHandler:   handlers.NewSystemLogHandler(systemLogService),
		healthHandler:      handlers.NewHealthHandler(db, taskQueue, hub),
		sseHandler:         handlers.NewSSEHandler(hub),
	}
}

// shutdown gracefully stops all services.
func (s *appServices) shutdown() {
	s.cancel()
	s.digest.StopScheduler()
	logger.Info().Msg("All schedulers stopped")

	if s.worker != nil {
		s.worker.Stop()
	}
	if s.taskQueue != nil {
		if err := s.taskQueue.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close task queue")
		}
	}
}
