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

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/maflow/orchestrator/internal/log"
	"github.com/maflow/orchestrator/pkg/coordinator"
	"github.com/maflow/orchestrator/pkg/dashboard"
	"github.com/maflow/orchestrator/pkg/gitrepo"
	"github.com/maflow/orchestrator/pkg/httpclient"
	"github.com/maflow/orchestrator/pkg/persona"
	"github.com/maflow/orchestrator/pkg/security"
	"github.com/maflow/orchestrator/pkg/steps"
	"github.com/maflow/orchestrator/pkg/transport"
	"github.com/maflow/orchestrator/pkg/workflow"
	"github.com/maflow/orchestrator/pkg/workflow/subworkflow"
)

var (
	version = "dev"
	commit  = "unknown"
)

var (
	drain     bool
	drainOnly bool
	nuke      bool

	workflowsDir string
	cloneDir     string
)

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newRootCommand builds the single-command CLI surface:
// coordinator [--drain|--drain-only|--nuke] <project_id> [repo_url] [base_branch].
func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "coordinator <project_id> [repo_url] [base_branch]",
		Short:   "Runs the multi-persona task coordinator against a dashboard project",
		Version: fmt.Sprintf("%s (%s)", version, commit),
		Args:    cobra.RangeArgs(1, 3),
		RunE:    runCoordinator,
	}

	cmd.Flags().BoolVar(&drain, "drain", false, "process every currently-eligible task once, then exit instead of polling forever")
	cmd.Flags().BoolVar(&drainOnly, "drain-only", false, "exit without selecting or running any task, leaving in-flight persona requests untouched")
	cmd.Flags().BoolVar(&nuke, "nuke", false, "unconditionally delete every persona request/event stream entry and exit, regardless of workflow id")
	cmd.MarkFlagsMutuallyExclusive("drain", "drain-only", "nuke")

	cmd.Flags().StringVar(&workflowsDir, "workflows-dir", "workflows", "directory task-flow.yaml and review-failure-handling.yaml are loaded from")
	cmd.Flags().StringVar(&cloneDir, "clone-dir", "", "local working copy path; defaults to a temp directory named after the project id")

	return cmd
}

func runCoordinator(cmd *cobra.Command, args []string) error {
	logger := log.New(log.FromEnv())
	slog.SetDefault(logger)

	projectID := args[0]
	repoURL := envOr("COORDINATOR_REPO_URL", "")
	baseBranch := envOr("COORDINATOR_BASE_BRANCH", "main")
	if len(args) > 1 {
		repoURL = args[1]
	}
	if len(args) > 2 {
		baseBranch = args[2]
	}

	dir := cloneDir
	if dir == "" {
		dir = envOr("COORDINATOR_CLONE_DIR", fmt.Sprintf("/tmp/coordinator-%s", projectID))
	}

	dashClient, err := dashboard.NewHTTPClient(dashboardConfig())
	if err != nil {
		return fmt.Errorf("build dashboard client: %w", err)
	}

	tr, err := buildTransport()
	if err != nil {
		return fmt.Errorf("build transport: %w", err)
	}

	infoReqClient, err := httpclient.New(httpclient.InfoRequestConfig())
	if err != nil {
		return fmt.Errorf("build info-request http client: %w", err)
	}

	dispatcher := persona.NewDispatcher(tr, persona.DefaultConfig(), security.DefaultHTTPSecurityConfig(), infoReqClient)

	if err := ensureClone(context.Background(), dir, repoURL, baseBranch); err != nil {
		return fmt.Errorf("prepare working copy: %w", err)
	}
	gitWC := gitrepo.NewExecWorkingCopy(dir, "origin")

	reg := workflow.NewRegistry()
	steps.Register(reg, steps.Deps{Dispatcher: dispatcher, Dashboard: dashClient, Git: gitWC})
	loader := subworkflow.NewLoader()
	subworkflow.Register(reg, loader, workflowsDir)

	personas := []string{
		"implementation-planner", "engineer", "qa-reviewer",
		"code-reviewer", "security-reviewer", "devops-reviewer", "project-manager",
	}

	cfg := coordinator.Config{
		Dashboard:    dashClient,
		Git:          gitWC,
		Dispatcher:   dispatcher,
		Transport:    tr,
		Registry:     reg,
		Loader:       loader,
		WorkflowsDir: workflowsDir,
		ProjectID:    projectID,
		BaseBranch:   baseBranch,
		Personas:     personas,
		Logger:       logger,
	}
	co := coordinator.New(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal, cancelling run")
		cancel()
	}()

	dispatcherDone := make(chan error, 1)
	go func() { dispatcherDone <- dispatcher.Run(ctx) }()

	switch {
	case nuke:
		err = co.PurgeAllStreams(ctx)
	case drainOnly:
		// Exit without selecting or running any new task; an operator
		// uses this to stop a coordinator instance cleanly without
		// touching in-flight persona traffic.
		err = nil
	case drain:
		// Process whatever task backlog exists right now and exit; Run
		// already returns once SelectTask finds nothing left.
		err = co.Run(ctx)
	default:
		err = runContinuously(ctx, co, logger)
	}

	cancel()
	<-dispatcherDone

	if err != nil {
		logger.Error("coordinator exited with error", "error", err)
		return err
	}
	return nil
}

// runContinuously repeats co.Run until ctx is cancelled, pausing briefly
// between passes that found no eligible task so an idle project does not
// spin the dashboard with empty polls.
func runContinuously(ctx context.Context, co *coordinator.Coordinator, logger *slog.Logger) error {
	const idlePoll = 10 * time.Second
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		if err := co.Run(ctx); err != nil {
			return err
		}
		logger.Debug("backlog drained, polling again", "poll_interval", idlePoll)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(idlePoll):
		}
	}
}

func dashboardConfig() dashboard.Config {
	cfg := dashboard.DefaultConfig(envOr("DASHBOARD_BASE_URL", "http://localhost:8080"))
	cfg.APIKey = envOr("DASHBOARD_API_KEY", "")
	return cfg
}

func buildTransport() (transport.Transport, error) {
	addr := envOr("REDIS_ADDR", "")
	if addr == "" {
		return transport.NewMemory(), nil
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{addr},
		Password: envOr("REDIS_PASSWORD", ""),
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis at %s: %w", addr, err)
	}
	return transport.NewRedis(client), nil
}

// ensureClone clones repoURL into dir at baseBranch if dir is not already
// a git working copy; a pre-existing dir is left as-is (the coordinator
// assumes whatever is already checked out there is the right remote).
func ensureClone(ctx context.Context, dir, repoURL, baseBranch string) error {
	if repoURL == "" {
		return nil
	}
	if _, err := os.Stat(dir + "/.git"); err == nil {
		return nil
	}
	cmd := exec.CommandContext(ctx, "git", "clone", "--branch", baseBranch, repoURL, dir)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
