// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/maflow/orchestrator/pkg/dashboard"
	"github.com/maflow/orchestrator/pkg/gitrepo"
	"github.com/maflow/orchestrator/pkg/persona"
	"github.com/maflow/orchestrator/pkg/telemetry"
	"github.com/maflow/orchestrator/pkg/transport"
	"github.com/maflow/orchestrator/pkg/workflow"
	"github.com/maflow/orchestrator/pkg/workflow/expression"
	"github.com/maflow/orchestrator/pkg/workflow/subworkflow"
)

const (
	defaultMaxReviewRetries  = 3
	defaultBacklogMilestone  = "backlog"
	defaultTaskFlowPath      = "task-flow.yaml"
	defaultReviewFailurePath = "review-failure-handling.yaml"
)

// Config bundles everything the coordinator needs: the dashboard and git
// clients, the persona dispatcher and its transport, the step registry
// the task-flow workflow runs against, and the sub-workflow loader the
// review loop uses to invoke review-failure-handling.yaml directly.
type Config struct {
	Dashboard  dashboard.Client
	Git        gitrepo.WorkingCopy
	Dispatcher *persona.Dispatcher
	Transport  transport.Transport
	Registry   *workflow.Registry
	Loader     *subworkflow.Loader

	// WorkflowsDir is the directory task-flow.yaml and
	// review-failure-handling.yaml are loaded from.
	WorkflowsDir string

	ProjectID  string
	BaseBranch string

	// BacklogMilestoneSlug names the milestone urgent follow-ups with no
	// parent milestone are routed to. Defaults to "backlog".
	BacklogMilestoneSlug string

	// Personas lists every persona name the abort-cleanup pipeline should
	// purge in-flight requests for. PersonaGroups optionally overrides the
	// consumer group(s) to ack against for a given persona; a persona
	// absent from the map is assumed to have a single group named after
	// itself.
	Personas      []string
	PersonaGroups map[string][]string

	// MaxIterations bounds how many tasks a single Run call processes.
	// Zero means run until SelectTask finds nothing left.
	MaxIterations int

	// MaxReviewRetries bounds how many times a single review stage may
	// loop back to itself after invoking review-failure-handling.yaml
	// before the coordinator aborts the task. Defaults to 3.
	MaxReviewRetries int

	Logger *slog.Logger
}

func (c *Config) applyDefaults() {
	if c.BacklogMilestoneSlug == "" {
		c.BacklogMilestoneSlug = defaultBacklogMilestone
	}
	if c.MaxReviewRetries <= 0 {
		c.MaxReviewRetries = defaultMaxReviewRetries
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Coordinator runs the IDLE -> SELECTING -> PREPARING_BRANCH -> RUNNING ->
// ADVANCING/ABORTED -> DONE loop over a project's dashboard tasks.
type Coordinator struct {
	cfg   Config
	state State
}

// New builds a Coordinator from cfg, filling unset bounds with defaults.
func New(cfg Config) *Coordinator {
	cfg.applyDefaults()
	return &Coordinator{cfg: cfg, state: StateIdle}
}

// State returns the coordinator's current position in its run loop.
func (c *Coordinator) State() State {
	return c.state
}

// reviewStageSpec pairs a review stage name with the persona it is dispatched
// to. The spec names only the four stage identifiers explicitly; the
// persona names themselves are this coordinator's own convention.
type reviewStageSpec struct {
	Name    string
	Persona string
}

var reviewStages = []reviewStageSpec{
	{Name: "qa", Persona: "qa-reviewer"},
	{Name: "code_review", Persona: "code-reviewer"},
	{Name: "security_review", Persona: "security-reviewer"},
	{Name: "devops_review", Persona: "devops-reviewer"},
}

// Run drives the coordinator's full task loop until SelectTask finds no
// more eligible tasks, a MaxIterations cap is reached, or ctx is
// cancelled. It does not return an error for a single task's abort: an
// abort is recorded against that task and the loop advances to the next
// one. Run only returns an error for failures that prevent the loop
// itself from continuing (dashboard unreachable, branch preparation
// failing outright).
func (c *Coordinator) Run(ctx context.Context) error {
	for iteration := 0; c.cfg.MaxIterations <= 0 || iteration < c.cfg.MaxIterations; iteration++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		c.state = StateSelecting
		task, allTasks, milestones, backlogMilestoneID, ok, err := c.selectNext(ctx)
		if err != nil {
			return fmt.Errorf("select next task: %w", err)
		}
		if !ok {
			c.state = StateDone
			return nil
		}

		c.state = StatePreparingBranch
		branch, err := c.prepareBranch(ctx, *task, milestones)
		if err != nil {
			return fmt.Errorf("prepare branch for task %s: %w", task.ID, err)
		}

		c.state = StateRunning
		locked, err := c.markInProgress(ctx, *task)
		if err != nil {
			return fmt.Errorf("mark task %s in_progress: %w", task.ID, err)
		}
		task = locked

		runID := fmt.Sprintf("wf-%s", task.ID)
		wctx := workflow.NewContext(runID, c.cfg.ProjectID, c.cfg.Git.Root(), branch, c.cfg.Transport)
		wctx.Set("task", taskPayload(*task))
		wctx.Set("parent_milestone_id", task.MilestoneID)
		wctx.Set("backlog_milestone_id", backlogMilestoneID)
		// task-flow.yaml's own bulk_task_creation step (for a synthesized
		// test-harness follow-up) needs the same duplicate-detection input
		// the review-failure child workflow gets.
		wctx.Set("existing_tasks", existingTasksPayload(allTasks, milestones, task.ID))

		runCtx, span := telemetry.StartWorkflowRun(ctx, runID, task.Title)
		runStarted := time.Now()

		aborted := c.runTaskFlow(runCtx, wctx)
		if !aborted {
			aborted = c.runReviewLoop(runCtx, wctx, task, allTasks, milestones, backlogMilestoneID)
		}

		if aborted {
			c.state = StateAborted
			span.SetAttributes(map[string]any{"trace_id": span.TraceID()})
			span.End()
			telemetry.RecordRunComplete("aborted", time.Since(runStarted).Seconds())
			c.handleAbort(ctx, wctx)
			continue
		}

		span.SetOK()
		span.End()
		telemetry.RecordRunComplete("done", time.Since(runStarted).Seconds())

		if err := c.markDone(ctx, task); err != nil {
			c.cfg.Logger.Error("failed to mark task done", "task_id", task.ID, "error", err)
		}
		c.state = StateAdvancing
	}
	return nil
}

// selectNext fetches the project's tasks (of every status) and
// milestones, resolves the backlog milestone id, and picks the next task
// to work, per SelectTask's precedence. The full, unfiltered task list is
// also returned so the review loop can seed review-failure-handling.yaml's
// existing_tasks input for duplicate detection against tasks already on
// the dashboard, not just ones created earlier in the same run.
func (c *Coordinator) selectNext(ctx context.Context) (*dashboard.Task, []dashboard.Task, []dashboard.Milestone, string, bool, error) {
	tasks, err := c.cfg.Dashboard.ListTasks(ctx, c.cfg.ProjectID)
	if err != nil {
		return nil, nil, nil, "", false, err
	}
	milestones, err := c.cfg.Dashboard.ListMilestones(ctx, c.cfg.ProjectID)
	if err != nil {
		return nil, nil, nil, "", false, err
	}

	task, ok := SelectTask(tasks)
	if !ok {
		return nil, tasks, milestones, "", false, nil
	}

	backlogID := resolveMilestoneBySlug(milestones, c.cfg.BacklogMilestoneSlug)
	return task, tasks, milestones, backlogID, true, nil
}

func resolveMilestoneBySlug(milestones []dashboard.Milestone, slug string) string {
	for _, m := range milestones {
		if m.Slug == slug {
			return m.ID
		}
	}
	return ""
}

// prepareBranch resolves the branch name per SelectBranch's precedence,
// creates it from the configured base branch if needed, checks it out,
// and pushes it so the coordinator's own state and the remote agree
// before any persona work happens against it.
func (c *Coordinator) prepareBranch(ctx context.Context, task dashboard.Task, milestones []dashboard.Milestone) (string, error) {
	milestoneSlug := ""
	for _, m := range milestones {
		if m.ID == task.MilestoneID {
			milestoneSlug = m.Slug
			break
		}
	}

	taskSlug := Slugify(task.Title)
	projectSlug := Slugify(c.cfg.ProjectID)
	branch := SelectBranch("", taskSlug, milestoneSlug, projectSlug)

	if err := c.cfg.Git.CreateBranch(ctx, branch, c.cfg.BaseBranch); err != nil {
		return "", err
	}
	if err := c.cfg.Git.Checkout(ctx, branch); err != nil {
		return "", err
	}
	_ = c.cfg.Git.Push(ctx, branch)
	return branch, nil
}

func (c *Coordinator) markInProgress(ctx context.Context, task dashboard.Task) (*dashboard.Task, error) {
	status := TaskStatusInProgress
	patch := dashboard.TaskPatch{Status: &status, LockVersion: task.LockVersion}
	return c.cfg.Dashboard.PatchTask(ctx, c.cfg.ProjectID, task.ID, patch)
}

func (c *Coordinator) markDone(ctx context.Context, task *dashboard.Task) error {
	status := TaskStatusDone
	patch := dashboard.TaskPatch{Status: &status, LockVersion: task.LockVersion}
	updated, err := c.cfg.Dashboard.PatchTask(ctx, c.cfg.ProjectID, task.ID, patch)
	if err != nil {
		return err
	}
	*task = *updated
	return nil
}

// runTaskFlow runs the context/plan/implement/test-discovery workflow
// (task-flow.yaml) against wctx. Returns whether the run aborted.
func (c *Coordinator) runTaskFlow(ctx context.Context, wctx *workflow.Context) bool {
	def, err := c.cfg.Loader.Load(c.cfg.WorkflowsDir, defaultTaskFlowPath, nil)
	if err != nil {
		wctx.Abort("task-flow", fmt.Sprintf("failed to load task-flow workflow: %s", err))
		return true
	}

	engine := &workflow.Engine{Registry: c.cfg.Registry, Evaluator: expression.New()}
	_ = engine.Run(ctx, def, wctx)
	return wctx.Aborted()
}

// taskPayload renders a dashboard.Task into the untyped map persona
// requests and workflow templates reference as "${task.*}".
func taskPayload(t dashboard.Task) map[string]interface{} {
	return map[string]interface{}{
		"id":             t.ID,
		"external_id":    t.ExternalID,
		"title":          t.Title,
		"description":    t.Description,
		"status":         t.Status,
		"priority_score": t.PriorityScore,
		"milestone_id":   t.MilestoneID,
		"assignee":       t.Assignee,
		"labels":         t.Labels,
	}
}
