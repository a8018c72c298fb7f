// Package main implements the taskrunner process entrypoint: it wires
// every package in this module into the long-running pipeline the
// spec's process interface describes (watch Inbox, route, plan,
// dispatch, reconcile approvals, tick the scheduler, write docs) and
// exposes a small urfave/cli/v3 surface over it, grounded on the
// teacher's cmd/orc/main.go command layout.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/itsneelabh/taskforge/approval"
	"github.com/itsneelabh/taskforge/audit"
	"github.com/itsneelabh/taskforge/autonomy"
	"github.com/itsneelabh/taskforge/core"
	"github.com/itsneelabh/taskforge/docs"
	"github.com/itsneelabh/taskforge/manager"
	"github.com/itsneelabh/taskforge/mcp"
	"github.com/itsneelabh/taskforge/memory"
	"github.com/itsneelabh/taskforge/planner"
	"github.com/itsneelabh/taskforge/resilience"
	"github.com/itsneelabh/taskforge/router"
	"github.com/itsneelabh/taskforge/scheduler"
	"github.com/itsneelabh/taskforge/skills"
	"github.com/itsneelabh/taskforge/store"
)

// App holds every wired component for one taskrunner process. Built
// once at startup, never rebuilt, and shared read-only across the
// pipeline's goroutines (each component already guards its own
// mutable state).
type App struct {
	cfg *core.Config

	auditWriter *audit.Writer
	memory      *memory.Store

	router      *router.Router
	planner     *planner.Planner
	skillReg    *skills.Registry
	approvalCtl *approval.Controller
	manager     *manager.Manager

	resilienceCtl       *resilience.Controller
	resilienceStatePath string
	mcpRouter           *mcp.Router
	scheduler           *scheduler.Scheduler

	actions     *autonomy.ActionRegistry
	checkpoints *autonomy.CheckpointStore
	loop        *autonomy.Loop

	docs *docs.Generator

	inbox *store.InboxWatcher

	domainRoot  string
	inboxDir    string
	approvalDir string
	doneDir     string
}

// buildApp constructs every package's root object from cfg. It is the
// only place in this repo that imports every package at once — every
// other file depends on abstractions (interfaces, function values)
// each package already declares for this purpose.
func buildApp(cfg *core.Config) (*App, error) {
	logger := cfg.Logger()

	dirs := []string{
		cfg.Dir("Inbox"),
		cfg.Dir("Domains", "Personal", "notes"),
		cfg.Dir("Domains", "Personal", "learning"),
		cfg.Dir("Domains", "Personal", "reminders"),
		cfg.Dir("Domains", "Personal", "health"),
		cfg.Dir("Domains", "Business", "accounting"),
		cfg.Dir("Domains", "Business", "marketing"),
		cfg.Dir("Domains", "Business", "reporting"),
		cfg.Dir("Domains", "Business", "projects"),
		cfg.Dir("Needs_Approval"),
		cfg.Dir("Done"),
		cfg.Dir("Audit"),
		cfg.Dir("Memory"),
		cfg.Dir("Checkpoints"),
		cfg.Dir("FailureQueue"),
		cfg.Dir("Resilience"),
		cfg.Dir("Docs"),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("taskrunner: prepare directory %q: %w", d, err)
		}
	}

	auditRoot := cfg.Dir("Audit")
	auditWriter := audit.NewWriter(auditRoot, audit.WithLogger(logger))

	memStore, err := memory.NewStore(cfg.Dir("Memory"), memory.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("taskrunner: build memory store: %w", err)
	}

	rtr := router.New(router.DefaultConfig(), router.WithLogger(logger), router.WithAudit(router.AuditFunc(auditWriter.Record)))
	pln := planner.New(planner.WithLogger(logger))

	skillReg := skills.NewRegistry()
	registerSkills(skillReg)

	approvalDir := cfg.Dir("Needs_Approval")
	approvalCtl := approval.New(
		approval.WithLogger(logger),
		approval.WithApprovalLog(cfg.Dir("Needs_Approval", "approval_log.md")),
	)

	heartbeat := resilience.NewHeartbeatMonitor(func(agentID string) {
		logger.Warn("agent heartbeat missed", map[string]interface{}{"agent_id": agentID})
	})
	// Every dispatchable skill is a heartbeat-tracked agent, per spec
	// §4.7's agent health record: Register declares it "unknown" up
	// front, and the Manager's HeartbeatFunc beats it each time its
	// handler is invoked (see manager.WithHeartbeat below); a task
	// diverted to approval does not beat.
	for _, id := range skillReg.IDs() {
		heartbeat.Register(id, core.AgentPriorityNormal)
	}
	resilienceStatePath := cfg.Dir("Resilience", "system_state.json")
	if err := heartbeat.Load(resilienceStatePath); err != nil {
		logger.Warn("failed to load persisted agent health state", map[string]interface{}{"error": err.Error()})
	}
	fallbacks := resilience.NewFallbackRegistry()
	failureQueue := resilience.NewFailureQueue(cfg.Dir("FailureQueue"), 3)
	resilienceCtl := resilience.New(heartbeat, fallbacks,
		resilience.WithLogger(logger),
		resilience.WithFailureQueue(failureQueue),
	)

	retryDecider := newResilienceRetryDecider(resilience.DefaultRetryPolicy(core.AgentPriorityNormal))

	mgr := manager.New(skillReg, approvalCtl,
		manager.WithLogger(logger),
		manager.WithAudit(manager.AuditFunc(auditWriter.Record)),
		manager.WithMemory(manager.MemoryFunc(memStore.Record)),
		manager.WithRetryDecider(retryDecider),
		manager.WithHeartbeat(manager.HeartbeatFunc(heartbeat.Beat)),
	)

	mcpRegistry := mcp.NewRegistry()
	mcpRouter := mcp.New(mcpRegistry, mcp.WithLogger(logger), mcp.WithAudit(mcp.AuditFunc(auditWriter.Record)))

	schedulePath := cfg.Dir("schedule.yaml")
	if err := ensureScheduleFile(schedulePath); err != nil {
		return nil, fmt.Errorf("taskrunner: prepare schedule file: %w", err)
	}
	sched, err := scheduler.New(schedulePath,
		scheduler.WithLogger(logger),
		scheduler.WithAudit(scheduler.AuditFunc(auditWriter.Record)),
		scheduler.WithTickInterval(cfg.SchedulerTick),
	)
	if err != nil {
		return nil, fmt.Errorf("taskrunner: build scheduler: %w", err)
	}

	actions := autonomy.NewActionRegistry()
	actions.RegisterSkills(skillReg)
	actions.Register("mcp_call", mcpCallAction(mcpRouter))

	checkpoints := autonomy.NewCheckpointStore(cfg.Dir("Checkpoints"))
	loop := autonomy.New(checkpoints, actions,
		autonomy.WithLogger(logger),
		autonomy.WithAudit(autonomy.AuditFunc(auditWriter.Record)),
	)

	docsGen := docs.New(auditRoot, cfg.Dir("Docs"))

	inboxDir := cfg.Dir("Inbox")
	inbox, err := store.NewInboxWatcher(inboxDir, cfg.PollInterval)
	if err != nil {
		return nil, fmt.Errorf("taskrunner: build inbox watcher: %w", err)
	}

	registerScheduledActions(sched, docsGen, memStore, approvalDir)

	return &App{
		cfg:                 cfg,
		auditWriter:         auditWriter,
		memory:              memStore,
		router:              rtr,
		planner:             pln,
		skillReg:            skillReg,
		approvalCtl:         approvalCtl,
		manager:             mgr,
		resilienceCtl:       resilienceCtl,
		resilienceStatePath: resilienceStatePath,
		mcpRouter:           mcpRouter,
		scheduler:           sched,
		actions:             actions,
		checkpoints:         checkpoints,
		loop:                loop,
		docs:                docsGen,
		inbox:               inbox,
		domainRoot:          cfg.Dir("Domains"),
		inboxDir:            inboxDir,
		approvalDir:         approvalDir,
		doneDir:             cfg.Dir("Done"),
	}, nil
}

// ensureScheduleFile writes an empty schedule document if path does not
// exist yet, since scheduler.New's LoadFile errors on a missing file
// rather than creating one.
func ensureScheduleFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}
	return os.WriteFile(path, []byte("schedules: []\n"), 0o644)
}

// mcpCallAction adapts mcp.Router.Route into an autonomy action named
// "mcp_call", so a Plan step can reach an external service the same
// way the spec's integration layer does. A step using this action
// encodes "service/action" in its Condition field, following the same
// small-DSL convention the built-in actions use; the variable bag is
// forwarded as the call payload.
func mcpCallAction(router *mcp.Router) autonomy.ActionHandler {
	return func(ctx context.Context, in autonomy.ActionInput) (autonomy.ActionOutput, error) {
		service, action, ok := strings.Cut(in.Step.Condition, "/")
		if !ok {
			return autonomy.ActionOutput{}, fmt.Errorf("autonomy: mcp_call step %q needs \"service/action\" in its condition", in.Step.ID)
		}
		result, err := router.Route(ctx, service, action, in.Variables)
		if err != nil {
			return autonomy.ActionOutput{Error: err.Error()}, nil
		}
		return autonomy.ActionOutput{Outputs: map[string]string{"result": fmt.Sprintf("%v", result)}}, nil
	}
}

// registerScheduledActions wires the scheduler's declarative action
// names to concrete handlers: periodic documentation generation is the
// only scheduled action this process declares out of the box.
func registerScheduledActions(sched *scheduler.Scheduler, docsGen *docs.Generator, memStore *memory.Store, approvalDir string) {
	sched.RegisterAction("generate_architecture_doc", func(ctx context.Context, _ scheduler.Entry) error {
		_, err := docsGen.GenerateArchitecture(time.Now().UTC(), 7)
		return err
	})
	sched.RegisterAction("generate_lessons_doc", func(ctx context.Context, _ scheduler.Entry) error {
		_, err := docsGen.GenerateLessons(time.Now().UTC(), 30)
		return err
	})
	sched.RegisterAction("generate_daily_briefing", func(ctx context.Context, _ scheduler.Entry) error {
		_, err := docsGen.GenerateDailyBriefing(time.Now().UTC(), memStore, approvalDir)
		return err
	})
}
