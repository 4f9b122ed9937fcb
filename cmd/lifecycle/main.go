// Command lifecycle is the operator CLI for the campaign lifecycle engine.
// It talks to the same Postgres and Redis backends as the server, so stage
// commands run synchronously in the operator's terminal.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/campaign-pilot/internal/analysis"
	"github.com/ignite/campaign-pilot/internal/batch"
	"github.com/ignite/campaign-pilot/internal/calendar"
	"github.com/ignite/campaign-pilot/internal/config"
	"github.com/ignite/campaign-pilot/internal/domain"
	"github.com/ignite/campaign-pilot/internal/jobqueue"
	"github.com/ignite/campaign-pilot/internal/llm"
	"github.com/ignite/campaign-pilot/internal/metrics"
	"github.com/ignite/campaign-pilot/internal/notifier"
	"github.com/ignite/campaign-pilot/internal/ongage"
	"github.com/ignite/campaign-pilot/internal/orchestrator"
	"github.com/ignite/campaign-pilot/internal/pkg/distlock"
	"github.com/ignite/campaign-pilot/internal/repository/postgres"
	"github.com/ignite/campaign-pilot/internal/service/campaign"
	"github.com/ignite/campaign-pilot/internal/slack"
	"github.com/ignite/campaign-pilot/internal/verification"
)

const usage = `Usage: lifecycle [-config path] <command> [args]

Commands:
  create      -name N -prefix P -subject S -sender-name SN -sender-email SE
              -recipients COUNT -lists id1,id2,id3 [-draft ID] [-start DATE]
  status      -name N
  jobs        -schedule ID
  dead        list dead-lettered jobs
  preflight   -schedule ID
  launch      -schedule ID [-skip-preflight]
  wrapup      -schedule ID
  cancel      -schedule ID [-reason TEXT]
  reschedule  -schedule ID -at RFC3339

Exit codes: 0 success, 1 bad input, 2 downstream failure.
`

type app struct {
	queue *jobqueue.Queue
	svc   *campaign.Service
	orch  *orchestrator.Orchestrator
}

func main() {
	log.SetFlags(0)

	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(1)
	}
	cmd, args := flag.Arg(0), flag.Args()[1:]

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		fatalInput("load config: %v", err)
	}

	a, cleanup, err := wire(cfg)
	if err != nil {
		fatalDownstream("%v", err)
	}
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Scheduler.StageTimeout()+30*time.Second)
	defer cancel()

	switch cmd {
	case "create":
		a.create(ctx, args)
	case "status":
		a.status(ctx, args)
	case "jobs":
		a.jobs(ctx, args)
	case "dead":
		a.deadLetters(ctx)
	case "preflight":
		a.runStage(ctx, args, domain.StagePreFlight)
	case "launch":
		a.launch(ctx, args)
	case "wrapup":
		a.runStage(ctx, args, domain.StageWrapUp)
	case "cancel":
		a.cancel(ctx, args)
	case "reschedule":
		a.reschedule(ctx, args)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		os.Exit(1)
	}
}

func wire(cfg *config.Config) (*app, func(), error) {
	db, err := postgres.Open(cfg.Database.URL, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	cleanup := func() {
		rdb.Close()
		db.Close()
	}

	store := postgres.NewStore(db)
	platform := ongage.NewClient(cfg.Ongage)
	chat := slack.NewClient(cfg.Slack)

	var model llm.Client
	if cfg.Bedrock.Enabled {
		model, err = llm.NewBedrockClient(context.Background(), cfg.Bedrock)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("init Bedrock client: %w", err)
		}
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
	svc := campaign.NewService(store, queue, nil)

	return &app{queue: queue, svc: svc, orch: orch}, cleanup, nil
}

func (a *app) create(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("create", flag.ExitOnError)
	name := fs.String("name", "", "campaign name")
	prefix := fs.String("prefix", "", "list name prefix")
	subject := fs.String("subject", "", "email subject")
	senderName := fs.String("sender-name", "", "sender display name")
	senderEmail := fs.String("sender-email", "", "sender email address")
	recipients := fs.Int64("recipients", 0, "total recipient count")
	lists := fs.String("lists", "", "comma-separated platform list ids, one per round")
	draft := fs.String("draft", "", "platform draft id (optional)")
	start := fs.String("start", "", "earliest launch day, RFC 3339 or YYYY-MM-DD (optional)")
	fs.Parse(args)

	ids := strings.Split(*lists, ",")
	if len(ids) != batch.Rounds {
		fatalInput("-lists must name exactly %d list ids", batch.Rounds)
	}

	in := campaign.CreateInput{
		CampaignName:    *name,
		ListIDPrefix:    *prefix,
		Subject:         *subject,
		SenderName:      *senderName,
		SenderEmail:     *senderEmail,
		TotalRecipients: *recipients,
	}
	copy(in.ExternalListIDs[:], ids)
	if *draft != "" {
		in.ExternalDraftID = draft
	}
	if *start != "" {
		t, err := parseDate(*start)
		if err != nil {
			fatalInput("-start: %v", err)
		}
		in.StartDate = &t
	}

	schedules, err := a.svc.Create(ctx, in)
	if err != nil {
		exitServiceError(err)
	}
	for _, sched := range schedules {
		fmt.Printf("round %d  %s  %s recipients %s (%d)\n",
			sched.RoundNumber, sched.ID,
			sched.ScheduledDate.Format(time.RFC3339),
			sched.RecipientRange, sched.RecipientCount)
	}
}

func (a *app) status(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	name := fs.String("name", "", "campaign name")
	fs.Parse(args)
	if *name == "" {
		fatalInput("-name is required")
	}

	rounds, err := a.svc.Status(ctx, *name)
	if err != nil {
		exitServiceError(err)
	}
	printJSON(rounds)
}

func (a *app) jobs(ctx context.Context, args []string) {
	id := scheduleArg("jobs", args)
	jobs, err := a.svc.JobStatus(ctx, id)
	if err != nil {
		exitServiceError(err)
	}
	printJSON(jobs)
}

func (a *app) deadLetters(ctx context.Context) {
	jobs, err := a.queue.DeadLetters(ctx, 100)
	if err != nil {
		exitServiceError(err)
	}
	if len(jobs) == 0 {
		fmt.Println("no dead-lettered jobs")
		return
	}
	printJSON(jobs)
}

func (a *app) runStage(ctx context.Context, args []string, stage domain.Stage) {
	id := scheduleArg(string(stage), args)
	res, err := a.orch.Run(ctx, stage, id)
	if err != nil {
		exitServiceError(err)
	}
	printJSON(res)
}

func (a *app) launch(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("launch", flag.ExitOnError)
	id := fs.String("schedule", "", "schedule id")
	skip := fs.Bool("skip-preflight", false, "launch without a prior READY verdict")
	fs.Parse(args)
	if *id == "" {
		fatalInput("-schedule is required")
	}

	res, err := a.orch.Launch(ctx, *id, *skip)
	if err != nil {
		exitServiceError(err)
	}
	printJSON(res)
}

func (a *app) cancel(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("cancel", flag.ExitOnError)
	id := fs.String("schedule", "", "schedule id")
	reason := fs.String("reason", "operator cancel", "reason recorded in the log")
	fs.Parse(args)
	if *id == "" {
		fatalInput("-schedule is required")
	}

	if err := a.svc.Cancel(ctx, *id, *reason); err != nil {
		exitServiceError(err)
	}
	fmt.Println("cancelled")
}

func (a *app) reschedule(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("reschedule", flag.ExitOnError)
	id := fs.String("schedule", "", "schedule id")
	at := fs.String("at", "", "new launch instant, RFC 3339 (must be Tue/Thu 09:15 UTC)")
	fs.Parse(args)
	if *id == "" || *at == "" {
		fatalInput("-schedule and -at are required")
	}
	launchAt, err := time.Parse(time.RFC3339, *at)
	if err != nil {
		fatalInput("-at: %v", err)
	}

	sched, err := a.svc.Reschedule(ctx, *id, launchAt)
	if err != nil {
		exitServiceError(err)
	}
	fmt.Printf("rescheduled round %d to %s\n", sched.RoundNumber, sched.ScheduledDate.Format(time.RFC3339))
}

func scheduleArg(cmd string, args []string) string {
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	id := fs.String("schedule", "", "schedule id")
	fs.Parse(args)
	if *id == "" {
		fatalInput("-schedule is required")
	}
	return *id
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	return time.Parse("2006-01-02", s)
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fatalDownstream("encode output: %v", err)
	}
}

func exitServiceError(err error) {
	switch {
	case isInputError(err):
		fatalInput("%v", err)
	default:
		fatalDownstream("%v", err)
	}
}

func isInputError(err error) bool {
	for _, target := range []error{
		campaign.ErrInvalidInput,
		campaign.ErrNotCancellable,
		campaign.ErrNotReschedulable,
		domain.ErrScheduleNotFound,
		domain.ErrDuplicateSchedule,
		domain.ErrInvalidTransition,
		domain.ErrScheduleTerminal,
		orchestrator.ErrStageNotApplicable,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func fatalInput(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func fatalDownstream(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(2)
}
