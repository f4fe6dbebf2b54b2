// Package scanning provides the core scan execution types for scanweave:
// scan modes and options, immutable job descriptors, the process runner that
// drives the external engine, and the engine output parser.
package scanning

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	scanerrors "github.com/scanweave/scanweave/internal/errors"
	"github.com/scanweave/scanweave/internal/target"
)

const (
	// Port validation constants.
	expectedPortRangeParts = 2
	maxPortNumber          = 65535
)

// Mode is a named scan configuration of the external engine.
type Mode string

const (
	// ModePing performs host discovery only.
	ModePing Mode = "ping"
	// ModeVersion probes open ports for service versions.
	ModeVersion Mode = "version"
	// ModeOS attempts OS fingerprinting.
	ModeOS Mode = "os"
	// ModeSYN performs a half-open SYN scan.
	ModeSYN Mode = "syn"
	// ModeDefault combines version detection with default scripts.
	ModeDefault Mode = "default"
)

// modeArgs maps each mode to the engine argument fragment it composes.
var modeArgs = map[Mode][]string{
	ModePing:    {"-sn"},
	ModeVersion: {"-sV"},
	ModeOS:      {"-O"},
	ModeSYN:     {"-sS"},
	ModeDefault: {"-sV", "-sC"},
}

// ParseMode converts a string into a Mode.
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := modeArgs[m]; !ok {
		return "", scanerrors.NewConfigFieldError(scanerrors.CodeValidation,
			"unknown scan mode", "mode", s)
	}
	return m, nil
}

// Args returns the engine argument fragment for the mode.
func (m Mode) Args() []string {
	args := modeArgs[m]
	out := make([]string, len(args))
	copy(out, args)
	return out
}

// String returns the mode name.
func (m Mode) String() string {
	return string(m)
}

// Modes lists all supported scan modes.
func Modes() []Mode {
	return []Mode{ModePing, ModeVersion, ModeOS, ModeSYN, ModeDefault}
}

// Options is the composed option set passed to the engine for one job.
type Options struct {
	// Mode selects the engine behavior
	Mode Mode
	// Ports is the port specification (e.g. "80,443" or "1-1000");
	// empty lets the engine use its default port set
	Ports string
	// ExtraArgs are appended verbatim to the invocation
	ExtraArgs []string
}

// Validate checks the option set.
func (o *Options) Validate() error {
	if _, err := ParseMode(string(o.Mode)); err != nil {
		return err
	}
	if o.Ports != "" {
		if err := validatePorts(o.Ports); err != nil {
			return err
		}
	}
	return nil
}

// Args composes the full engine argument list for one host. Structured
// output is always requested on stdout.
func (o *Options) Args(host string) []string {
	args := o.Mode.Args()
	if o.Ports != "" && o.Mode != ModePing {
		args = append(args, "-p", o.Ports)
	}
	args = append(args, o.ExtraArgs...)
	args = append(args, "-oX", "-", host)
	return args
}

// validatePorts validates a port specification.
func validatePorts(ports string) error {
	parts := strings.Split(ports, ",")
	for _, part := range parts {
		if err := validatePortPart(strings.TrimSpace(part)); err != nil {
			return err
		}
	}
	return nil
}

// validatePortPart validates a single port or port range.
func validatePortPart(part string) error {
	if strings.Contains(part, "-") {
		return validatePortRange(part)
	}
	return validateSinglePort(part)
}

// validatePortRange validates a port range (e.g. "80-100").
func validatePortRange(part string) error {
	rangeParts := strings.Split(part, "-")
	if len(rangeParts) != expectedPortRangeParts {
		return portError(fmt.Sprintf("invalid port range format: %s", part))
	}

	start, err := strconv.Atoi(strings.TrimSpace(rangeParts[0]))
	if err != nil {
		return portError(fmt.Sprintf("invalid start port: %s", rangeParts[0]))
	}
	end, err := strconv.Atoi(strings.TrimSpace(rangeParts[1]))
	if err != nil {
		return portError(fmt.Sprintf("invalid end port: %s", rangeParts[1]))
	}

	if start < 1 || start > maxPortNumber || end < 1 || end > maxPortNumber {
		return portError(fmt.Sprintf("port range out of bounds: %s", part))
	}
	if start > end {
		return portError("start port must not exceed end port")
	}
	return nil
}

// validateSinglePort validates a single port.
func validateSinglePort(part string) error {
	port, err := strconv.Atoi(part)
	if err != nil {
		return portError(fmt.Sprintf("invalid port: %s", part))
	}
	if port < 1 || port > maxPortNumber {
		return portError(fmt.Sprintf("port out of range: %d", port))
	}
	return nil
}

func portError(msg string) error {
	return scanerrors.NewConfigFieldError(scanerrors.CodeValidation, msg, "ports", nil)
}

// Job is one immutable unit of work: a single concrete address paired with
// a composed option set, a timeout, and a retry budget. A job never changes
// after dispatch; retry accounting lives in the orchestrator.
type Job struct {
	// ID uniquely identifies the job
	ID uuid.UUID
	// Host is the concrete address to scan
	Host string
	// Hostname is the name associated with the host, when known
	Hostname string
	// Options is the composed engine option set
	Options Options
	// Timeout is the per-attempt wall-clock limit
	Timeout time.Duration
	// MaxRetries is the number of retries allowed after the first attempt
	MaxRetries int
}

// NewJob creates a job for a single concrete address.
func NewJob(host string, opts Options, timeout time.Duration, maxRetries int) *Job {
	return &Job{
		ID:         uuid.New(),
		Host:       host,
		Options:    opts,
		Timeout:    timeout,
		MaxRetries: maxRetries,
	}
}

// JobsForTarget fans a validated target out into one job per concrete
// address.
func JobsForTarget(t target.Target, opts Options, timeout time.Duration, maxRetries int) []*Job {
	jobs := make([]*Job, 0, len(t.Hosts))
	for _, host := range t.Hosts {
		job := NewJob(host, opts, timeout, maxRetries)
		job.Hostname = t.Hostname
		jobs = append(jobs, job)
	}
	return jobs
}

// OutcomeStatus classifies the terminal state of a job attempt.
type OutcomeStatus string

const (
	// StatusSuccess carries a parsed scan result.
	StatusSuccess OutcomeStatus = "success"
	// StatusTransient marks a failure worth retrying.
	StatusTransient OutcomeStatus = "transient"
	// StatusFatal marks a failure retrying cannot fix.
	StatusFatal OutcomeStatus = "fatal"
	// StatusCanceled marks a job drained without execution.
	StatusCanceled OutcomeStatus = "canceled"
)

// Outcome is the result of executing a job. The orchestrator retries
// transient outcomes and reports everything else as terminal.
type Outcome struct {
	// JobID identifies the originating job
	JobID uuid.UUID
	// Host is the job's target address
	Host string
	// Mode is the scan mode the job ran with
	Mode Mode
	// Status classifies the outcome
	Status OutcomeStatus
	// Result holds the parsed scan result on success
	Result *ScanResult
	// Err describes the failure for non-success outcomes
	Err error
	// Attempts is the number of invocation attempts made
	Attempts int
	// Duration is the wall-clock time of the final attempt
	Duration time.Duration
}

// SuccessOutcome builds a success outcome for a job.
func SuccessOutcome(job *Job, result *ScanResult, d time.Duration) Outcome {
	return Outcome{
		JobID:    job.ID,
		Host:     job.Host,
		Mode:     job.Options.Mode,
		Status:   StatusSuccess,
		Result:   result,
		Attempts: 1,
		Duration: d,
	}
}

// TransientOutcome builds a retryable failure outcome for a job.
func TransientOutcome(job *Job, err error, d time.Duration) Outcome {
	return Outcome{
		JobID:    job.ID,
		Host:     job.Host,
		Mode:     job.Options.Mode,
		Status:   StatusTransient,
		Err:      err,
		Attempts: 1,
		Duration: d,
	}
}

// FatalOutcome builds a non-retryable failure outcome for a job.
func FatalOutcome(job *Job, err error, d time.Duration) Outcome {
	return Outcome{
		JobID:    job.ID,
		Host:     job.Host,
		Mode:     job.Options.Mode,
		Status:   StatusFatal,
		Err:      err,
		Attempts: 1,
		Duration: d,
	}
}

// CanceledOutcome builds a drained-without-execution outcome for a job.
func CanceledOutcome(job *Job) Outcome {
	return Outcome{
		JobID:  job.ID,
		Host:   job.Host,
		Mode:   job.Options.Mode,
		Status: StatusCanceled,
		Err:    scanerrors.NewScanErrorWithTarget(scanerrors.CodeCanceled, "scan canceled", job.Host),
	}
}

// ScanResult is the parsed findings for one host.
type ScanResult struct {
	// Host is the scanned address
	Host string
	// Hostname is the reported name, when the engine learned one
	Hostname string
	// State is the overall host state: "up", "down", or "unknown"
	State string
	// Partial flags results whose expected blocks were incomplete
	Partial bool
	// Ports holds the per-port findings across protocols
	Ports []Port
	// ScannedAt records when the result was produced
	ScannedAt time.Time
}

// Port is the scan finding for a single port.
type Port struct {
	// Number is the port number (1-65535)
	Number uint16
	// Protocol is the transport protocol ("tcp" or "udp")
	Protocol string
	// State indicates "open", "closed", or "filtered"
	State string
	// Service is the detected service name, if any
	Service string
	// Version is the detected service version, if available
	Version string
	// Product is additional product information, if available
	Product string
}

// PortsByProtocol groups the port findings by transport protocol.
func (r *ScanResult) PortsByProtocol() map[string][]Port {
	out := make(map[string][]Port)
	for _, p := range r.Ports {
		out[p.Protocol] = append(out[p.Protocol], p)
	}
	return out
}
