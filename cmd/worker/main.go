package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/campaign-pilot/internal/analysis"
	"github.com/ignite/campaign-pilot/internal/calendar"
	"github.com/ignite/campaign-pilot/internal/config"
	"github.com/ignite/campaign-pilot/internal/jobqueue"
	"github.com/ignite/campaign-pilot/internal/llm"
	"github.com/ignite/campaign-pilot/internal/metrics"
	"github.com/ignite/campaign-pilot/internal/notifier"
	"github.com/ignite/campaign-pilot/internal/ongage"
	"github.com/ignite/campaign-pilot/internal/orchestrator"
	"github.com/ignite/campaign-pilot/internal/pkg/distlock"
	"github.com/ignite/campaign-pilot/internal/repository/postgres"
	"github.com/ignite/campaign-pilot/internal/slack"
	"github.com/ignite/campaign-pilot/internal/verification"
)

func main() {
	configPath := "config.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := postgres.Open(cfg.Database.URL, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := db.PingContext(pingCtx); err != nil {
		cancel()
		log.Fatalf("Failed to ping database: %v", err)
	}
	cancel()
	log.Println("Connected to database")

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	store := postgres.NewStore(db)
	platform := ongage.NewClient(cfg.Ongage)
	chat := slack.NewClient(cfg.Slack)

	var model llm.Client
	if cfg.Bedrock.Enabled {
		model, err = llm.NewBedrockClient(context.Background(), cfg.Bedrock)
		if err != nil {
			log.Fatalf("Failed to init Bedrock client: %v", err)
		}
	} else {
		log.Println("Model analysis disabled; rule-based heuristics only")
	}

	pipeline := analysis.NewPipeline(model, cfg.Scheduler.AgentTimeout())
	verifier := verification.NewVerifier(platform, store, pipeline)
	collector := metrics.NewCollector(platform, store, pipeline)
	notif := notifier.NewNotifier(store, chat, cfg.Slack.Channel, verifier, collector)

	lease := time.Duration(cfg.Scheduler.LeaseSeconds) * time.Second
	locks := func(key string, ttl time.Duration) distlock.DistLock {
		return distlock.NewLock(rdb, db, key, ttl)
	}
	orch := orchestrator.New(store, notif, platform, locks, cfg.Scheduler.StageTimeout(), lease)

	offsets := calendar.DefaultOffsets().OverrideMinutes(
		cfg.Scheduler.PreLaunchOffsetMins,
		cfg.Scheduler.PreFlightOffsetMins,
		cfg.Scheduler.LaunchWarnOffsetMins,
		cfg.Scheduler.WrapUpOffsetMins,
	)
	queue := jobqueue.NewQueue(rdb, offsets, lease)
	orch.SetWrapUpScheduler(queue, offsets.WrapUp)

	handler := func(ctx context.Context, job *jobqueue.Job) error {
		_, err := orch.Run(ctx, job.Stage, job.ScheduleID)
		if err != nil {
			if orchestrator.IsFatal(err) {
				return jobqueue.Permanent(err)
			}
			return err
		}
		return nil
	}

	pool := jobqueue.NewWorkerPool(queue, handler, cfg.Scheduler.Workers)
	if err := pool.Start(); err != nil {
		log.Fatalf("Failed to start worker pool: %v", err)
	}

	window := time.Duration(cfg.Scheduler.SafetyNetWindowMins) * time.Minute
	net := jobqueue.NewSafetyNet(store, queue, offsets, window)
	if err := net.Start(); err != nil {
		log.Fatalf("Failed to start safety net: %v", err)
	}

	log.Printf("Worker running (%d workers, lease %v, safety window %v)",
		cfg.Scheduler.Workers, lease, window)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down...")
	net.Stop()
	pool.Stop()
	log.Println("Worker stopped")
}
