package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/itsneelabh/taskforge/approval"
	"github.com/itsneelabh/taskforge/store"
)

// runInboxLoop drains the Inbox on every watcher signal and on every
// poll-interval tick (the watcher is a latency optimization; the
// directory listing is the source of truth), classifying, planning,
// and dispatching each file it finds.
func (app *App) runInboxLoop(ctx context.Context) error {
	app.inbox.Start(ctx)

	drain := func() {
		paths, err := store.ListPending(app.inboxDir)
		if err != nil {
			app.cfg.Logger().ErrorWithContext(ctx, "failed to list inbox", map[string]interface{}{"error": err.Error()})
			return
		}
		for _, path := range paths {
			if err := app.processInboxTask(ctx, path); err != nil {
				app.cfg.Logger().ErrorWithContext(ctx, "failed to process inbox task", map[string]interface{}{
					"task": path, "error": err.Error(),
				})
			}
		}
	}

	ticker := time.NewTicker(app.cfg.PollInterval)
	defer ticker.Stop()

	drain()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-app.inbox.Signal():
			drain()
		case <-ticker.C:
			drain()
		}
	}
}

// processInboxTask runs one file through classify → plan → dispatch.
// It returns the first error; runInboxLoop's drain logs it and goes on
// with the next file, so a single bad file does not stop the loop.
func (app *App) processInboxTask(ctx context.Context, path string) error {
	t, err := store.Read(path)
	if err != nil {
		return err
	}

	if _, err := app.router.Route(ctx, t, app.domainRoot); err != nil {
		return err
	}
	if _, err := app.planner.Plan(t); err != nil {
		return err
	}
	return app.manager.Dispatch(ctx, t, app.approvalDir)
}

// reconcileApprovals scans Needs_Approval once for artifacts with a
// recorded or timed-out decision and admits or rejects the companion
// task accordingly.
func (app *App) reconcileApprovals(ctx context.Context) {
	entries, err := os.ReadDir(app.approvalDir)
	if err != nil {
		app.cfg.Logger().ErrorWithContext(ctx, "failed to list approval directory", map[string]interface{}{"error": err.Error()})
		return
	}

	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), "approval_") {
			continue
		}
		artifactPath := filepath.Join(app.approvalDir, e.Name())
		artifact, err := store.Read(artifactPath)
		if err != nil {
			app.cfg.Logger().ErrorWithContext(ctx, "failed to read approval artifact", map[string]interface{}{"artifact": e.Name(), "error": err.Error()})
			continue
		}

		result := approval.Resolve(artifact)
		if result.Decision == approval.DecisionPending || result.Decision == approval.DecisionNeedsInfo {
			continue
		}

		originalName := artifact.Header.GetDefault("original_task", "")
		if originalName == "" {
			app.cfg.Logger().WarnWithContext(ctx, "approval artifact missing original_task header", map[string]interface{}{"artifact": e.Name()})
			continue
		}
		taskPath := filepath.Join(app.approvalDir, originalName)
		task, err := store.Read(taskPath)
		if err != nil {
			app.cfg.Logger().ErrorWithContext(ctx, "failed to read companion task for approval artifact", map[string]interface{}{"artifact": e.Name(), "error": err.Error()})
			continue
		}

		switch result.Decision {
		case approval.DecisionApproved:
			domainCategory := task.Header.GetDefault("domain", "")
			category := task.Header.GetDefault("domain_category", "")
			domainDir := filepath.Join(app.domainRoot, domainCategory, category)
			if err := app.approvalCtl.Admit(ctx, task, artifact, result.Detail, domainDir, app.doneDir); err != nil {
				app.cfg.Logger().ErrorWithContext(ctx, "failed to admit approved task", map[string]interface{}{"task": originalName, "error": err.Error()})
				continue
			}
			if err := app.manager.Dispatch(ctx, task, app.approvalDir); err != nil {
				app.cfg.Logger().ErrorWithContext(ctx, "failed to dispatch re-admitted task", map[string]interface{}{"task": originalName, "error": err.Error()})
			}
		case approval.DecisionRejected:
			if err := app.approvalCtl.Reject(ctx, task, artifact, result.Detail, app.doneDir); err != nil {
				app.cfg.Logger().ErrorWithContext(ctx, "failed to reject task", map[string]interface{}{"task": originalName, "error": err.Error()})
			}
		}
	}
}
