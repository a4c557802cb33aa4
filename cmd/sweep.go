package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"wakeproxy/manager"
)

func newSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one idle sweep and exit",
		Long: `Evaluates every route once, exactly as the idle monitor does, stops
the backends idle past idleThreshold and prints what was decided.`,
		Args: cobra.NoArgs,
		RunE: runSweep,
	}
}

func runSweep(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	app, err := newApplication(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}
	defer app.close()

	if err := app.containers.CheckPrerequisites(); err != nil {
		return err
	}
	app.tracker.Load()

	results := app.monitor.Sweep(cmd.Context())
	printSweepResults(cmd, results)

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("failed to stop %d route(s)", failed)
	}
	return nil
}

func printSweepResults(cmd *cobra.Command, results []manager.SweepResult) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ROUTE\tIDLE\tSOURCE\tACTION")
	for _, r := range results {
		action := "kept"
		switch {
		case r.Skipped:
			action = "skipped (waking)"
		case r.Err != nil:
			action = "stop failed: " + r.Err.Error()
		case r.Stopped:
			action = "stopped"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.Route, r.IdleFor.Truncate(time.Second), r.Source, action)
	}
	_ = w.Flush()
}
