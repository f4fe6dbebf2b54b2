package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/scanweave/scanweave/internal/logging"
	"github.com/scanweave/scanweave/internal/scheduler"
)

var watchFlags = struct {
	every    time.Duration
	schedule string
	mode     string
	ports    string
}{}

var watchCmd = &cobra.Command{
	Use:   "watch [targets...]",
	Short: "Re-scan targets on a schedule",
	Long: `Watch runs the same scan repeatedly on an interval or cron schedule,
persisting every sweep to the result database so changes over time can be
reviewed with "scanweave results". Runs until interrupted.`,
	Example: `  scanweave watch --every 10m 192.168.1.0/24
  scanweave watch --schedule "0 2 * * *" --mode version 10.0.0.5`,
	Args: cobra.MinimumNArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().DurationVar(&watchFlags.every, "every", 0, "re-scan interval (e.g. 10m, 1h)")
	watchCmd.Flags().StringVar(&watchFlags.schedule, "schedule", "", "cron expression (overrides --every)")
	watchCmd.Flags().StringVarP(&watchFlags.mode, "mode", "m", "", "scan mode")
	watchCmd.Flags().StringVarP(&watchFlags.ports, "ports", "p", "", "ports to scan")

	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	spec := watchFlags.schedule
	if spec == "" {
		if watchFlags.every <= 0 {
			return fmt.Errorf("either --every or --schedule is required")
		}
		spec = fmt.Sprintf("@every %s", watchFlags.every)
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if watchFlags.mode != "" {
		cfg.Scanning.DefaultMode = watchFlags.mode
	}
	if watchFlags.ports != "" {
		cfg.Scanning.DefaultPorts = watchFlags.ports
	}
	// Watch mode is pointless without persistence.
	cfg.Store.Persist = true

	opts, err := buildScanOptions(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	memory, db, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	sweep := func(sweepCtx context.Context) {
		jobs, invalid, err := buildJobs(sweepCtx, cfg, opts, args)
		if err != nil {
			logging.Error("Sweep skipped, no valid targets", "error", err)
			return
		}
		for _, verr := range invalid {
			logging.Warn("Skipping target", "error", verr)
		}

		memory.Clear()
		failed := executeJobs(sweepCtx, cfg, opts, jobs, memory, db)

		logging.Info("Sweep completed",
			"hosts", len(jobs),
			"failed", failed,
			"results", memory.Len())
	}

	sched := scheduler.New(ctx)
	if err := sched.Add(spec, "watch", sweep); err != nil {
		return err
	}

	fmt.Printf("Watching %d target(s) on schedule %q. Press Ctrl-C to stop.\n", len(args), spec)

	// First sweep immediately, then on schedule.
	sweep(ctx)
	sched.Start()

	<-ctx.Done()
	sched.Stop()

	fmt.Println("Watch stopped.")
	return nil
}
