package scanning

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	scanerrors "github.com/scanweave/scanweave/internal/errors"
)

// writeEngine drops a fake scan engine script into a temp dir.
func writeEngine(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake engine scripts need a POSIX shell")
	}

	path := filepath.Join(t.TempDir(), "fake-engine")
	script := "#!/bin/sh\n" + body
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func newTestJob(timeout time.Duration, maxRetries int) *Job {
	return NewJob("192.0.2.10", Options{Mode: ModeVersion, Ports: "22"}, timeout, maxRetries)
}

func TestExecRunnerSuccess(t *testing.T) {
	engine := writeEngine(t, `echo '`+sampleRun+`'
`)
	runner := NewExecRunner(engine)
	job := newTestJob(10*time.Second, 0)

	outcome := runner.Execute(context.Background(), job)

	require.Equal(t, StatusSuccess, outcome.Status, "unexpected outcome: %v", outcome.Err)
	require.NotNil(t, outcome.Result)
	assert.Equal(t, "192.0.2.10", outcome.Result.Host)
	assert.Equal(t, "up", outcome.Result.State)
	assert.Len(t, outcome.Result.Ports, 3)
	assert.Equal(t, job.ID, outcome.JobID)
	assert.Positive(t, outcome.Duration)
}

func TestExecRunnerFillsHostFromJob(t *testing.T) {
	// Engine output with no host block at all: target did not respond.
	engine := writeEngine(t, `echo '<nmaprun scanner="nmap"></nmaprun>'
`)
	runner := NewExecRunner(engine)
	job := newTestJob(10*time.Second, 0)
	job.Hostname = "web.example.org"

	outcome := runner.Execute(context.Background(), job)

	require.Equal(t, StatusSuccess, outcome.Status)
	assert.Equal(t, "192.0.2.10", outcome.Result.Host)
	assert.Equal(t, "web.example.org", outcome.Result.Hostname)
	assert.Equal(t, "down", outcome.Result.State)
	assert.False(t, outcome.Result.ScannedAt.IsZero(), "runner stamps unstamped output")
}

func TestExecRunnerClassification(t *testing.T) {
	tests := []struct {
		name       string
		script     string
		wantStatus OutcomeStatus
		wantCode   scanerrors.ErrorCode
	}{
		{
			name:       "host seems down is transient",
			script:     "echo 'Note: Host seems down.' >&2\nexit 1\n",
			wantStatus: StatusTransient,
			wantCode:   scanerrors.CodeHostUnreachable,
		},
		{
			name:       "network unreachable is transient",
			script:     "echo 'sendto: Network is unreachable' >&2\nexit 1\n",
			wantStatus: StatusTransient,
			wantCode:   scanerrors.CodeHostUnreachable,
		},
		{
			name:       "missing privileges is fatal",
			script:     "echo 'You requested a scan type which requires root privileges.' >&2\nexit 1\n",
			wantStatus: StatusFatal,
			wantCode:   scanerrors.CodePermission,
		},
		{
			name:       "rejected invocation is fatal",
			script:     "echo 'Unrecognized option: --bogus' >&2\nexit 1\n",
			wantStatus: StatusFatal,
			wantCode:   scanerrors.CodeInvocation,
		},
		{
			name:       "unknown nonzero exit is fatal",
			script:     "echo 'something exploded' >&2\nexit 3\n",
			wantStatus: StatusFatal,
			wantCode:   scanerrors.CodeScanFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := writeEngine(t, tt.script)
			runner := NewExecRunner(engine)
			job := newTestJob(10*time.Second, 0)

			outcome := runner.Execute(context.Background(), job)

			assert.Equal(t, tt.wantStatus, outcome.Status)
			assert.True(t, scanerrors.IsCode(outcome.Err, tt.wantCode),
				"want code %s, got %v", tt.wantCode, outcome.Err)
			assert.Nil(t, outcome.Result)
		})
	}
}

func TestExecRunnerMissingBinaryIsFatal(t *testing.T) {
	runner := NewExecRunner(filepath.Join(t.TempDir(), "no-such-engine"))
	job := newTestJob(10*time.Second, 0)

	outcome := runner.Execute(context.Background(), job)

	assert.Equal(t, StatusFatal, outcome.Status)
	assert.True(t, scanerrors.IsCode(outcome.Err, scanerrors.CodeInvocation))
}

func TestExecRunnerTimeoutIsTransient(t *testing.T) {
	engine := writeEngine(t, "sleep 30\n")
	runner := NewExecRunner(engine)
	job := newTestJob(200*time.Millisecond, 0)

	start := time.Now()
	outcome := runner.Execute(context.Background(), job)

	assert.Equal(t, StatusTransient, outcome.Status)
	assert.True(t, scanerrors.IsCode(outcome.Err, scanerrors.CodeTimeout))
	assert.Less(t, time.Since(start), 10*time.Second, "timeout should kill the engine promptly")
}

func TestExecRunnerCancellation(t *testing.T) {
	engine := writeEngine(t, "sleep 30\n")
	runner := NewExecRunner(engine)
	job := newTestJob(time.Minute, 0)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	outcome := runner.Execute(ctx, job)

	assert.Equal(t, StatusCanceled, outcome.Status)
	assert.True(t, scanerrors.IsCode(outcome.Err, scanerrors.CodeCanceled))
	assert.Less(t, time.Since(start), 10*time.Second, "cancel should kill the engine promptly")
}

func TestExecRunnerParseFailureIsFatal(t *testing.T) {
	engine := writeEngine(t, "echo 'plain text, no structure here'\n")
	runner := NewExecRunner(engine)
	job := newTestJob(10*time.Second, 0)

	outcome := runner.Execute(context.Background(), job)

	assert.Equal(t, StatusFatal, outcome.Status)
	assert.True(t, scanerrors.IsCode(outcome.Err, scanerrors.CodeParse))
}

func TestExecRunnerAppliesExtraArgs(t *testing.T) {
	// The fake engine echoes its arguments back where the host would be.
	engine := writeEngine(t, `echo "<nmaprun args=\"$*\"></nmaprun>"
`)
	runner := NewExecRunner(engine, "-T4")
	job := newTestJob(10*time.Second, 0)

	outcome := runner.Execute(context.Background(), job)
	require.Equal(t, StatusSuccess, outcome.Status)
}
