package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/scanweave/scanweave/internal/config"
	"github.com/scanweave/scanweave/internal/discovery"
	scanerrors "github.com/scanweave/scanweave/internal/errors"
	"github.com/scanweave/scanweave/internal/logging"
	"github.com/scanweave/scanweave/internal/scanning"
	"github.com/scanweave/scanweave/internal/store"
	"github.com/scanweave/scanweave/internal/target"
	"github.com/scanweave/scanweave/internal/workers"
)

var scanFlags = struct {
	mode     string
	ports    string
	workers  int
	timeout  time.Duration
	retries  int
	liveOnly bool
	output   string
	format   string
	persist  bool
}{}

var scanCmd = &cobra.Command{
	Use:   "scan [targets...]",
	Short: "Scan one or more targets",
	Long: `Scan validates each target (IP address, CIDR range, or hostname),
expands ranges into individual hosts, and runs the scan engine against them
concurrently. Results are printed as a table and can be exported to a file.

Exit status is non-zero if any host failed permanently.`,
	Example: `  scanweave scan 192.168.1.10
  scanweave scan --mode version --ports 22,80,443 10.0.0.0/24
  scanweave scan --live-only --output results.txt scanme.nmap.org`,
	Args: cobra.MinimumNArgs(1),
	RunE: runScan,
}

func init() {
	scanCmd.Flags().StringVarP(&scanFlags.mode, "mode", "m", "",
		fmt.Sprintf("scan mode (%s)", modeList()))
	scanCmd.Flags().StringVarP(&scanFlags.ports, "ports", "p", "",
		"ports to scan (e.g. 22,80,443 or 1-1024)")
	scanCmd.Flags().IntVarP(&scanFlags.workers, "workers", "w", 0,
		"worker pool size (default from config)")
	scanCmd.Flags().DurationVarP(&scanFlags.timeout, "timeout", "t", 0,
		"per-host scan timeout (default from config)")
	scanCmd.Flags().IntVar(&scanFlags.retries, "retries", -1,
		"max retries per host on transient failure (default from config)")
	scanCmd.Flags().BoolVar(&scanFlags.liveOnly, "live-only", false,
		"ping sweep first and only scan hosts that respond")
	scanCmd.Flags().StringVarP(&scanFlags.output, "output", "o", "",
		"export results to file (\"auto\" picks a timestamped name)")
	scanCmd.Flags().StringVar(&scanFlags.format, "format", "text",
		"export format (text, xml)")
	scanCmd.Flags().BoolVar(&scanFlags.persist, "persist", false,
		"also save results to the result database")

	rootCmd.AddCommand(scanCmd)
}

func modeList() string {
	modes := scanning.Modes()
	names := make([]string, 0, len(modes))
	for _, m := range modes {
		names = append(names, m.String())
	}
	return strings.Join(names, ", ")
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	applyScanFlags(cfg)

	opts, err := buildScanOptions(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	jobs, invalid, err := buildJobs(ctx, cfg, opts, args)
	if err != nil {
		return err
	}
	for _, msg := range invalid {
		fmt.Fprintf(os.Stderr, "Skipping target: %v\n", msg)
	}
	if len(jobs) == 0 {
		return fmt.Errorf("no scannable hosts after validation")
	}

	if scanFlags.liveOnly {
		jobs, err = filterLiveJobs(ctx, cfg, jobs)
		if err != nil {
			return err
		}
		if len(jobs) == 0 {
			fmt.Println("No hosts responded to the discovery sweep.")
			return nil
		}
	}

	memory, db, err := openStores(cfg)
	if err != nil {
		return err
	}
	if db != nil {
		defer func() { _ = db.Close() }()
	}

	failed := executeJobs(ctx, cfg, opts, jobs, memory, db)

	results := memory.All()
	printResults(results)

	if scanFlags.output != "" {
		if err := exportResults(results); err != nil {
			return err
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d hosts failed permanently", failed, len(jobs))
	}
	return nil
}

// applyScanFlags overlays command-line flags onto the loaded configuration.
func applyScanFlags(cfg *config.Config) {
	if scanFlags.mode != "" {
		cfg.Scanning.DefaultMode = scanFlags.mode
	}
	if scanFlags.ports != "" {
		cfg.Scanning.DefaultPorts = scanFlags.ports
	}
	if scanFlags.workers > 0 {
		cfg.Scanning.WorkerPoolSize = scanFlags.workers
	}
	if scanFlags.timeout > 0 {
		cfg.Scanning.JobTimeout = scanFlags.timeout
	}
	if scanFlags.retries >= 0 {
		cfg.Scanning.Retry.MaxRetries = scanFlags.retries
	}
	if scanFlags.persist {
		cfg.Store.Persist = true
	}
}

func buildScanOptions(cfg *config.Config) (scanning.Options, error) {
	mode, err := scanning.ParseMode(cfg.Scanning.DefaultMode)
	if err != nil {
		return scanning.Options{}, err
	}

	opts := scanning.Options{
		Mode:      mode,
		Ports:     cfg.Scanning.DefaultPorts,
		ExtraArgs: cfg.Engine.ExtraArgs,
	}
	if err := opts.Validate(); err != nil {
		return scanning.Options{}, err
	}
	return opts, nil
}

// buildJobs validates every target spec and fans valid ones out into
// per-host jobs. Invalid specs are collected rather than aborting the run.
func buildJobs(
	ctx context.Context,
	cfg *config.Config,
	opts scanning.Options,
	specs []string,
) (jobs []*scanning.Job, invalid []error, err error) {
	topts := target.DefaultOptions()
	topts.MaxCIDRHosts = cfg.Scanning.MaxCIDRHosts
	topts.ReverseDNS = cfg.Scanning.ReverseDNS

	seen := make(map[string]bool)
	for _, spec := range specs {
		t, verr := target.Validate(ctx, spec, topts)
		if verr != nil {
			invalid = append(invalid, verr)
			continue
		}
		for _, job := range scanning.JobsForTarget(t, opts, cfg.Scanning.JobTimeout, cfg.Scanning.Retry.MaxRetries) {
			if seen[job.Host] {
				continue
			}
			seen[job.Host] = true
			jobs = append(jobs, job)
		}
	}

	if len(jobs) == 0 && len(invalid) > 0 {
		return nil, invalid, fmt.Errorf("no valid targets: %v", invalid[0])
	}
	return jobs, invalid, nil
}

// filterLiveJobs keeps only jobs whose host answered a ping sweep.
func filterLiveJobs(ctx context.Context, cfg *config.Config, jobs []*scanning.Job) ([]*scanning.Job, error) {
	hosts := make([]string, 0, len(jobs))
	for _, job := range jobs {
		hosts = append(hosts, job.Host)
	}

	live, err := discovery.LiveHosts(ctx, hosts, cfg.Scanning.JobTimeout)
	if err != nil {
		return nil, fmt.Errorf("host discovery failed: %w", err)
	}

	alive := make(map[string]bool, len(live))
	for _, h := range live {
		alive[h] = true
	}

	filtered := jobs[:0]
	for _, job := range jobs {
		if alive[job.Host] {
			filtered = append(filtered, job)
		}
	}
	return filtered, nil
}

func openStores(cfg *config.Config) (*store.MemoryStore, *store.DB, error) {
	memory := store.NewMemory()
	if !cfg.Store.Persist {
		return memory, nil, nil
	}

	db, err := store.Open(cfg.Store.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open result database: %w", err)
	}
	return memory, db, nil
}

// executeJobs runs the orchestrator over the job set, committing successes
// and reporting failures. It returns the number of permanently failed hosts.
func executeJobs(
	ctx context.Context,
	cfg *config.Config,
	opts scanning.Options,
	jobs []*scanning.Job,
	memory *store.MemoryStore,
	db *store.DB,
) int {
	runner := scanning.NewExecRunner(cfg.Engine.BinaryPath)
	poolCfg := workers.Config{
		Size:              cfg.Scanning.WorkerPoolSize,
		QueueSize:         cfg.Scanning.QueueSize,
		RetryDelay:        cfg.Scanning.Retry.RetryDelay,
		BackoffMultiplier: cfg.Scanning.Retry.BackoffMultiplier,
		RateLimit:         cfg.Scanning.RateLimit,
	}

	logging.Info("Starting scan",
		"hosts", len(jobs),
		"mode", opts.Mode.String(),
		"workers", poolCfg.Size)

	failed := 0
	for outcome := range workers.Run(ctx, runner, poolCfg, jobs) {
		switch outcome.Status {
		case scanning.StatusSuccess:
			memory.Commit(outcome.Result)
			if db != nil {
				if err := db.SaveResult(context.Background(), outcome.Mode.String(), outcome.Result); err != nil {
					fmt.Fprintf(os.Stderr, "Warning: failed to persist result for %s: %v\n", outcome.Host, err)
				}
			}
		case scanning.StatusCanceled:
			// Counted separately so an interrupted run is not reported
			// as host failures.
		default:
			failed++
			fmt.Fprintf(os.Stderr, "Scan failed: %s: %v (attempts: %d)\n",
				outcome.Host, outcome.Err, outcome.Attempts)
			if scanerrors.IsCode(outcome.Err, scanerrors.CodePermission) {
				fmt.Fprintln(os.Stderr, "Hint: this scan mode may require elevated privileges.")
			}
		}
	}
	return failed
}

// printResults renders committed results as a table, hosts sorted by address.
func printResults(results []scanning.ScanResult) {
	if len(results) == 0 {
		fmt.Println("No results.")
		return
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Host < results[j].Host
	})

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Host", "State", "Port", "Protocol", "Port State", "Service", "Version")

	for i := range results {
		r := &results[i]
		name := r.Host
		if r.Hostname != "" && r.Hostname != r.Host {
			name = fmt.Sprintf("%s (%s)", r.Hostname, r.Host)
		}
		state := r.State
		if r.Partial {
			state += " (partial)"
		}

		if len(r.Ports) == 0 {
			_ = table.Append([]string{name, state, "-", "-", "-", "-", "-"})
			continue
		}
		for _, p := range r.Ports {
			version := strings.TrimSpace(fmt.Sprintf("%s %s", p.Product, p.Version))
			_ = table.Append([]string{
				name, state,
				fmt.Sprintf("%d", p.Number), p.Protocol, p.State,
				p.Service, version,
			})
		}
	}

	_ = table.Render()
}

func exportResults(results []scanning.ScanResult) error {
	path := scanFlags.output
	switch scanFlags.format {
	case "text":
		if path == "auto" {
			path = store.TimestampedFilename("scanweave_results", "txt")
		}
		if err := store.ExportText(path, results); err != nil {
			return err
		}
	case "xml":
		if path == "auto" {
			path = store.TimestampedFilename("scanweave_results", "xml")
		}
		if err := store.ExportXML(path, results); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown export format %q (want text or xml)", scanFlags.format)
	}

	fmt.Printf("Results exported to %s\n", path)
	return nil
}
