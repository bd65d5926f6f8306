package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/aurum-erp/aurum/cmd/aurumctl/cli"
	"github.com/aurum-erp/aurum/internal/app"
	"github.com/aurum-erp/aurum/internal/platform/db"
	"github.com/aurum-erp/aurum/internal/rbac"
	"github.com/aurum-erp/aurum/internal/shared"
)

const usage = `usage: aurumctl <command> [flags]

commands:
  seed-roles                      create missing built-in roles
  audit-rules  [--json] [--rules file.yaml]
                                  report row rules that drifted
  repair-rules [--json] [--rules file.yaml] [--dry-run]
                                  rewrite drifted row rules
  jobs trigger <task> [arg]       enqueue payment:confirm or maintenance:idempotency_cleanup
  jobs stats [queue]              print queue counters
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		_, _ = fmt.Fprint(stderr, usage)
		return 2
	}
	cfg, err := app.LoadConfig()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "load config: %v\n", err)
		return 1
	}
	logger := app.NewLogger(cfg)

	switch args[0] {
	case "seed-roles":
		pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: 2})
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "connect postgres: %v\n", err)
			return 1
		}
		defer pool.Close()
		repo := rbac.NewRepository(pool)
		service := rbac.NewService(repo, rbac.NewResolver(repo, logger), shared.NewActivityLogger(pool), logger)
		return cli.SeedRolesCommand(ctx, service, stdout, stderr)

	case "audit-rules", "repair-rules":
		fs := flag.NewFlagSet(args[0], flag.ContinueOnError)
		fs.SetOutput(stderr)
		jsonOut := fs.Bool("json", false, "print JSON")
		rulesPath := fs.String("rules", "", "YAML file of rule overrides")
		dryRun := fs.Bool("dry-run", false, "report without writing")
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}
		overrides, err := cli.LoadRuleOverrides(*rulesPath)
		if err != nil {
			_, _ = fmt.Fprintln(stderr, err)
			return 1
		}
		pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: 2})
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "connect postgres: %v\n", err)
			return 1
		}
		defer pool.Close()
		rules := cli.NewRulesCLI(cli.NewPGRuleStore(pool))
		opts := cli.RulesOptions{Overrides: overrides, JSONOutput: *jsonOut, DryRun: *dryRun, Stdout: stdout, Stderr: stderr}
		if args[0] == "audit-rules" {
			return rules.AuditCommand(ctx, opts)
		}
		return rules.RepairCommand(ctx, opts)

	case "jobs":
		return runJobs(ctx, cfg, args[1:], stdout, stderr, logger)

	default:
		_, _ = fmt.Fprint(stderr, usage)
		return 2
	}
}

func runJobs(ctx context.Context, cfg *app.Config, args []string, stdout, stderr io.Writer, logger *slog.Logger) int {
	if len(args) == 0 {
		_, _ = fmt.Fprint(stderr, usage)
		return 2
	}
	jobsCLI := cli.NewJobsCLI(asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	defer func() {
		if err := jobsCLI.Close(); err != nil {
			logger.Warn("jobs cli close", slog.Any("error", err))
		}
	}()

	switch args[0] {
	case "trigger":
		if len(args) < 2 {
			_, _ = fmt.Fprint(stderr, usage)
			return 2
		}
		var arg string
		if len(args) > 2 {
			arg = args[2]
		}
		info, err := jobsCLI.Trigger(ctx, args[1], arg)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "jobs trigger: %v\n", err)
			return 1
		}
		_, _ = fmt.Fprintf(stdout, "enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
		return 0
	case "stats":
		var queue string
		if len(args) > 1 {
			queue = args[1]
		}
		stats, err := jobsCLI.InspectQueue(queue)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "jobs stats: %v\n", err)
			return 1
		}
		_, _ = fmt.Fprintf(stdout, "%s pending=%d active=%d scheduled=%d retry=%d archived=%d\n",
			stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry, stats.Archived)
		return 0
	default:
		_, _ = fmt.Fprint(stderr, usage)
		return 2
	}
}
