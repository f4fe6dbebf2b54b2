package scanning

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"os/exec"
	"strings"
	"syscall"
	"time"

	scanerrors "github.com/scanweave/scanweave/internal/errors"
	"github.com/scanweave/scanweave/internal/logging"
	"github.com/scanweave/scanweave/internal/metrics"
)

const (
	// waitDelay bounds how long Wait blocks on a killed child's pipes.
	waitDelay = 5 * time.Second
)

// Runner executes one scan job and classifies the result.
type Runner interface {
	Execute(ctx context.Context, job *Job) Outcome
}

// ExecRunner invokes the external scan engine as a subprocess per job,
// capturing stdout, stderr, and the exit code, and enforcing the job's
// wall-clock timeout. The child runs in its own process group so a kill
// reaches engine helpers too.
type ExecRunner struct {
	// BinaryPath is the engine binary; resolved via PATH when relative
	BinaryPath string
	// ExtraArgs are appended to every invocation
	ExtraArgs []string
}

// NewExecRunner creates a runner for the given engine binary.
func NewExecRunner(binaryPath string, extraArgs ...string) *ExecRunner {
	if binaryPath == "" {
		binaryPath = "nmap"
	}
	return &ExecRunner{BinaryPath: binaryPath, ExtraArgs: extraArgs}
}

// Execute runs the engine for one job and returns a classified outcome.
func (r *ExecRunner) Execute(ctx context.Context, job *Job) Outcome {
	start := time.Now()
	defer func() {
		metrics.GetGlobalMetrics().RecordJobDuration(job.Options.Mode.String(), time.Since(start))
	}()

	runCtx := ctx
	var cancel context.CancelFunc
	if job.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, job.Timeout)
		defer cancel()
	}

	opts := job.Options
	opts.ExtraArgs = append(append([]string{}, r.ExtraArgs...), opts.ExtraArgs...)
	args := opts.Args(job.Host)

	logging.Debug("Launching scan engine",
		"job_id", job.ID.String(),
		"target", job.Host,
		"binary", r.BinaryPath,
		"args", strings.Join(args, " "))

	cmd := exec.CommandContext(runCtx, r.BinaryPath, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		// Negative pid signals the whole process group.
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = waitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	elapsed := time.Since(start)

	// Caller cancellation beats every other classification.
	if ctx.Err() != nil && !errors.Is(ctx.Err(), context.DeadlineExceeded) {
		outcome := CanceledOutcome(job)
		outcome.Duration = elapsed
		return outcome
	}

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return TransientOutcome(job, scanerrors.ErrScanTimeout(job.Host), elapsed)
	}

	if runErr != nil {
		return r.classifyRunError(job, runErr, stderr.String(), stdout.String(), elapsed)
	}

	result, err := ParseRun(stdout.Bytes())
	if err != nil {
		metrics.GetGlobalMetrics().IncrementParseErrors()
		logging.ErrorScan("Engine output could not be parsed", job.Host, err,
			"job_id", job.ID.String())
		return FatalOutcome(job, err, elapsed)
	}

	if result.Host == "" {
		result.Host = job.Host
	}
	if result.Hostname == "" {
		result.Hostname = job.Hostname
	}
	if result.ScannedAt.IsZero() {
		result.ScannedAt = start
	}

	return SuccessOutcome(job, result, elapsed)
}

// classifyRunError maps a subprocess failure onto the transient/fatal
// taxonomy. The engine does not document per-exit-code semantics, so
// classification keys on recognizable diagnostics; anything unrecognized
// is fatal rather than burning retry budget on deterministic failures.
func (r *ExecRunner) classifyRunError(job *Job, runErr error, stderrText, stdoutText string, elapsed time.Duration) Outcome {
	var execErr *exec.Error
	var pathErr *fs.PathError
	if errors.As(runErr, &execErr) || errors.As(runErr, &pathErr) {
		return FatalOutcome(job, scanerrors.WrapScanErrorWithTarget(scanerrors.CodeInvocation,
			"scan engine could not be started", job.Host, runErr), elapsed)
	}

	diag := strings.ToLower(stderrText + "\n" + stdoutText)

	switch {
	case containsAny(diag,
		"host seems down",
		"resource temporarily unavailable",
		"network is unreachable",
		"no route to host",
		"connection timed out",
		"giving up on port because retransmission cap hit"):
		return TransientOutcome(job, scanerrors.WrapScanErrorWithTarget(scanerrors.CodeHostUnreachable,
			"engine reported a transient condition", job.Host, runErr), elapsed)

	case containsAny(diag,
		"requires root privileges",
		"permission denied",
		"operation not permitted"):
		return FatalOutcome(job, scanerrors.WrapScanErrorWithTarget(scanerrors.CodePermission,
			"engine lacks required privileges", job.Host, runErr), elapsed)

	case containsAny(diag,
		"unrecognized option",
		"invalid argument",
		"failed to resolve"):
		return FatalOutcome(job, scanerrors.WrapScanErrorWithTarget(scanerrors.CodeInvocation,
			"engine rejected the invocation", job.Host, runErr), elapsed)
	}

	return FatalOutcome(job, scanerrors.WrapScanErrorWithTarget(scanerrors.CodeScanFailed,
		"engine exited with an error", job.Host, runErr), elapsed)
}

func containsAny(s string, substrings ...string) bool {
	for _, sub := range substrings {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
