package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/sprawl-py/sprawl/internal/fetcher"
	"github.com/sprawl-py/sprawl/internal/graph"
	"github.com/sprawl-py/sprawl/internal/orchestrator"
	"github.com/sprawl-py/sprawl/internal/store"
)

func newInstallCmd() *cobra.Command {
	var (
		flags projectFlags
		jobs  int
	)

	cmd := &cobra.Command{
		Use:   "install",
		Short: "Resolve the project's lockfile and install its wheels into the store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInstall(cmd.Context(), flags, jobs)
		},
	}

	cmd.Flags().StringVar(&flags.projectDir, "project", "", "project root override (default: working directory)")
	cmd.Flags().StringVar(&flags.pythonVersion, "python-version", "", "interpreter version, e.g. 3.11 (conflicts with +M.m and SPRAWL_PYTHON_VERSION)")
	cmd.Flags().StringSliceVar(&flags.extras, "extras", nil, "project extras to activate")
	cmd.Flags().BoolVar(&flags.noDev, "no-dev", false, "exclude dev-dependencies")
	cmd.Flags().IntVar(&jobs, "jobs", 0, "max concurrent fetch/install workers (default: 8)")

	return cmd
}

func runInstall(ctx context.Context, flags projectFlags, jobs int) error {
	start := time.Now()
	logger := newLogger(false)

	rt, err := loadRuntime(ctx, flags, nil, logger)
	if err != nil {
		return err
	}

	set, err := graph.Evaluate(rt.project, rt.lockfile, flags.extras, flags.noDev, rt.env)
	if err != nil {
		return fmt.Errorf("evaluating dependency graph: %w", err)
	}

	fmt.Printf("Resolved %d packages\n", len(set.Specs))

	httpClient := &http.Client{Timeout: 60 * time.Second}

	fetchDir, err := os.MkdirTemp("", "sprawl-fetch-*")
	if err != nil {
		return fmt.Errorf("creating fetch staging directory: %w", err)
	}
	defer func() { _ = os.RemoveAll(fetchDir) }()

	fetchSvc := fetcher.New(fetchDir, fetcher.WithHTTPClient(httpClient))

	orchOpts := []orchestrator.Option{orchestrator.WithLogger(logger)}
	if jobs > 0 {
		orchOpts = append(orchOpts, orchestrator.WithMaxWorkers(jobs))
	}

	orch := orchestrator.New(rt.store, fetchSvc, orchOpts...)

	installed, err := orch.Run(ctx, set, rt.hostTags, orchestrator.PythonVersion{Major: rt.pyVersion.Major, Minor: rt.pyVersion.Minor})
	if err != nil {
		return fmt.Errorf("installing packages: %w", err)
	}

	printInstalled(installed)
	fmt.Printf("\nDone in %.1fs\n", time.Since(start).Seconds())

	return nil
}

func printInstalled(installed []store.Installed) {
	for _, pkg := range installed {
		fmt.Printf("  + %s %s (%s)\n", pkg.Name, pkg.UniqueVersion, pkg.Tag)
	}
}
