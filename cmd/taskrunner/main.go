package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/itsneelabh/taskforge/autonomy"
	"github.com/itsneelabh/taskforge/core"
	cli "github.com/urfave/cli/v3"
)

func main() {
	app := &cli.Command{
		Name:        "taskrunner",
		Usage:       "Filesystem-driven multi-agent task orchestration runtime",
		Description: "Watches an Inbox directory, routes, plans, and dispatches task files through their lifecycle.",
		Commands: []*cli.Command{
			runCmd(),
			docsCmd(),
			approvalsCmd(),
			autonomyCmd(),
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func rootFlag() cli.Flag {
	return &cli.StringFlag{Name: "root", Value: ".", Usage: "filesystem root all stage directories resolve against"}
}

func configFromCmd(cmd *cli.Command) (*core.Config, error) {
	return core.NewConfig(core.WithRoot(cmd.String("root")))
}

// runCmd starts the long-running pipeline: inbox watcher, scheduler
// tick, and approval reconciliation, each guarded so one failing loop
// never takes the process down.
func runCmd() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Run the long-running orchestration process",
		Flags: []cli.Flag{
			rootFlag(),
			&cli.DurationFlag{Name: "reconcile-interval", Value: 10 * time.Second, Usage: "how often to scan Needs_Approval for decisions"},
			&cli.DurationFlag{Name: "heartbeat-interval", Value: 15 * time.Second, Usage: "how often to sweep agent heartbeats for misses"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := configFromCmd(cmd)
			if err != nil {
				return err
			}
			app, err := buildApp(cfg)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
			defer stop()

			var wg sync.WaitGroup
			logger := cfg.Logger()

			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := app.auditWriter.Run(ctx); err != nil && ctx.Err() == nil {
					logger.Error("audit writer exited", map[string]interface{}{"error": err.Error()})
				}
			}()

			wg.Add(1)
			go func() {
				defer wg.Done()
				err := app.resilienceCtl.RunGuarded(ctx, "inbox-pipeline", app.runInboxLoop)
				if err != nil && ctx.Err() == nil {
					logger.Error("inbox pipeline exited", map[string]interface{}{"error": err.Error()})
				}
			}()

			wg.Add(1)
			go func() {
				defer wg.Done()
				err := app.resilienceCtl.RunGuarded(ctx, "scheduler", app.scheduler.Run)
				if err != nil && ctx.Err() == nil {
					logger.Error("scheduler exited", map[string]interface{}{"error": err.Error()})
				}
			}()

			wg.Add(1)
			go func() {
				defer wg.Done()
				app.runApprovalReconciliationLoop(ctx, cmd.Duration("reconcile-interval"))
			}()

			wg.Add(1)
			go func() {
				defer wg.Done()
				app.runHeartbeatSweepLoop(ctx, cmd.Duration("heartbeat-interval"))
			}()

			logger.Info("taskrunner started", map[string]interface{}{"root": cfg.Root})
			<-ctx.Done()
			logger.Info("taskrunner shutting down", nil)
			wg.Wait()
			return nil
		},
	}
}

// runApprovalReconciliationLoop ticks reconcileApprovals until ctx is
// cancelled.
func (app *App) runApprovalReconciliationLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	app.reconcileApprovals(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			app.reconcileApprovals(ctx)
		}
	}
}

// runHeartbeatSweepLoop ticks HeartbeatMonitor.Sweep so a dispatched
// skill that stops beating (stuck handler, crashed goroutine) is
// detected within one tick, per spec §4.7 invariant #9. The Agent
// Health Record snapshot is persisted after every sweep and once more
// on shutdown so a restart resumes with each agent's last-known status
// instead of "unknown".
func (app *App) runHeartbeatSweepLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	heartbeat := app.resilienceCtl.Heartbeat()
	logger := app.cfg.Logger()
	saveState := func() {
		if err := heartbeat.Save(app.resilienceStatePath); err != nil {
			logger.Warn("failed to persist agent health state", map[string]interface{}{"error": err.Error()})
		}
	}
	defer saveState()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			heartbeat.Sweep(time.Now().UTC())
			saveState()
		}
	}
}

// docsCmd renders the architecture/lessons/briefing docs once and exits.
func docsCmd() *cli.Command {
	return &cli.Command{
		Name:  "docs",
		Usage: "Generate architecture, lessons, and daily briefing docs from audit/memory state",
		Flags: []cli.Flag{rootFlag()},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := configFromCmd(cmd)
			if err != nil {
				return err
			}
			app, err := buildApp(cfg)
			if err != nil {
				return err
			}
			now := time.Now().UTC()

			archPath, err := app.docs.GenerateArchitecture(now, 7)
			if err != nil {
				return err
			}
			fmt.Println("wrote", archPath)

			lessonsPath, err := app.docs.GenerateLessons(now, 30)
			if err != nil {
				return err
			}
			fmt.Println("wrote", lessonsPath)

			briefingPath, err := app.docs.GenerateDailyBriefing(now, app.memory, app.approvalDir)
			if err != nil {
				return err
			}
			fmt.Println("wrote", briefingPath)
			return nil
		},
	}
}

// autonomyCmd runs a single multi-step Plan (spec §4.6) to completion,
// a blocked state, or exhaustion of its checkpoint's resumable steps,
// outside the per-task single-skill Dispatch path — for goals that
// genuinely need a dependency graph of actions (some of which may call
// out to MCP-registered services via the "mcp_call" action) rather
// than one skill invocation.
func autonomyCmd() *cli.Command {
	return &cli.Command{
		Name:  "autonomy",
		Usage: "Run a multi-step autonomy plan from a JSON file to completion or a blocked state",
		Flags: []cli.Flag{
			rootFlag(),
			&cli.StringFlag{Name: "plan", Required: true, Usage: "path to a JSON-encoded autonomy.Plan"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := configFromCmd(cmd)
			if err != nil {
				return err
			}
			app, err := buildApp(cfg)
			if err != nil {
				return err
			}

			data, err := os.ReadFile(cmd.String("plan"))
			if err != nil {
				return fmt.Errorf("taskrunner: read plan file: %w", err)
			}
			var plan autonomy.Plan
			if err := json.Unmarshal(data, &plan); err != nil {
				return fmt.Errorf("taskrunner: decode plan file: %w", err)
			}

			cp, err := app.loop.Run(ctx, plan)
			if err != nil {
				return err
			}
			fmt.Printf("goal %q finished with status %s (%d iterations, %d retries)\n",
				plan.Goal, cp.Status, cp.Metrics.Iterations, cp.Metrics.Retries)
			return nil
		},
	}
}

// approvalsCmd reconciles Needs_Approval once and exits.
func approvalsCmd() *cli.Command {
	return &cli.Command{
		Name:  "approvals",
		Usage: "Scan Needs_Approval once, admitting or rejecting resolved tasks",
		Flags: []cli.Flag{rootFlag()},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := configFromCmd(cmd)
			if err != nil {
				return err
			}
			app, err := buildApp(cfg)
			if err != nil {
				return err
			}
			app.reconcileApprovals(ctx)
			return nil
		},
	}
}
