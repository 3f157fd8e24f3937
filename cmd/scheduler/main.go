package main

import (
	"context"

	bookingsrepo "classguard/internal/bookings/repository"
	"classguard/internal/jobs"
	"classguard/internal/jobs/handler"
	"classguard/internal/notifications/dispatcher"
	"classguard/internal/notifications/sink"
	"classguard/internal/orchestrator"
	schedulesrepo "classguard/internal/schedules/repository"
	"classguard/internal/schedules/service"
	"classguard/pkg/app"
	"classguard/pkg/config"
	"classguard/pkg/lock"
)

const ServiceName = "class-scheduler"

func main() {
	cfg := config.Load(ServiceName)
	cfg.SetMongo()
	cfg.SetRedis()

	cfg.Log.Info("Starting class scheduler")

	notificationSink, err := sink.New(cfg)
	if err != nil {
		cfg.Log.Fatal("Failed to initialize notification sink", "error", err)
	}
	runner := initJobs(cfg, dispatcher.NewFromConfig(notificationSink, cfg))

	var opts []orchestrator.Option
	if cfg.Client.Redis != nil {
		opts = append(opts, orchestrator.WithLocker(lock.NewRedisLocker(cfg.Client.Redis, cfg.Log), cfg.JobLockTTL))
	}
	orch := orchestrator.New(cfg.Log, opts...)
	if err := jobs.Register(orch, runner); err != nil {
		cfg.Log.Fatal("Failed to register jobs", "error", err)
	}

	serverApp := app.NewApplication(cfg)
	serverApp.SetApp(
		handler.NewHealthHandler(cfg.Client.Mongo.Client, orch, cfg.Log),
		handler.NewJobsHandler(orch, runner, cfg.Log),
	)
	serverApp.OnShutdown(func(ctx context.Context) {
		if err := orch.Shutdown(ctx); err != nil {
			cfg.Log.Warn("Orchestrator did not stop cleanly", "error", err)
		}
	})
	serverApp.OnShutdown(func(ctx context.Context) {
		if err := notificationSink.Close(); err != nil {
			cfg.Log.Warn("Failed to close notification sink", "error", err)
		}
	})
	serverApp.OnShutdown(func(ctx context.Context) {
		cfg.GracefulShutdown()
	})
	serverApp.Run()
}

func initJobs(cfg *config.Config, notifier service.Notifier) *jobs.Runner {
	scheduleRepo := schedulesrepo.NewMongoScheduleRepository(cfg)
	bookingRepo := bookingsrepo.NewMongoBookingRepository(cfg)

	runner := jobs.NewRunner(cfg,
		service.NewCancellationService(scheduleRepo, bookingRepo, notifier, cfg),
		service.NewWarningService(scheduleRepo, notifier, cfg),
	)

	cfg.Log.Info("Class scheduler initialized", "database", cfg.MongoDatabaseName, "mode", cfg.SchedulerMode)
	return runner
}
