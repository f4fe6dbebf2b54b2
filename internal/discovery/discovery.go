// Package discovery pre-filters scan targets with an nmap ping sweep so
// that port scans only run against hosts that answered.
package discovery

import (
	"context"
	"time"

	"github.com/Ullaakut/nmap/v3"

	scanerrors "github.com/scanweave/scanweave/internal/errors"
	"github.com/scanweave/scanweave/internal/logging"
)

const defaultSweepTimeout = 2 * time.Minute

// buildOptions constructs nmap options for a host-discovery sweep.
func buildOptions(hosts []string, timeout time.Duration) []nmap.Option {
	options := []nmap.Option{
		nmap.WithTargets(hosts...),
		nmap.WithPingScan(),
	}

	if timeout <= 30*time.Second {
		options = append(options, nmap.WithTimingTemplate(nmap.TimingAggressive))
	} else {
		options = append(options, nmap.WithTimingTemplate(nmap.TimingNormal))
	}

	return options
}

// LiveHosts runs a ping sweep over hosts and returns the subset that
// responded, in the order the sweep reported them. An empty input returns
// an empty slice without launching anything.
func LiveHosts(ctx context.Context, hosts []string, timeout time.Duration) ([]string, error) {
	if len(hosts) == 0 {
		return nil, nil
	}
	if timeout <= 0 {
		timeout = defaultSweepTimeout
	}

	sweepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	scanner, err := nmap.NewScanner(sweepCtx, buildOptions(hosts, timeout)...)
	if err != nil {
		return nil, scanerrors.WrapScanError(scanerrors.CodeInvocation,
			"failed to create discovery scanner", err)
	}

	result, warnings, err := scanner.Run()
	if err != nil {
		if ctx.Err() != nil {
			return nil, scanerrors.WrapScanError(scanerrors.CodeCanceled,
				"host discovery canceled", ctx.Err())
		}
		return nil, scanerrors.WrapScanError(scanerrors.CodeScanFailed,
			"host discovery failed", err)
	}

	if warnings != nil && len(*warnings) > 0 {
		logging.Warn("Host discovery completed with warnings", "warnings", *warnings)
	}

	live := make([]string, 0, len(result.Hosts))
	for i := range result.Hosts {
		host := &result.Hosts[i]
		if len(host.Addresses) == 0 || host.Status.State != "up" {
			continue
		}
		live = append(live, host.Addresses[0].Addr)
	}

	logging.Info("Host discovery completed",
		"candidates", len(hosts),
		"live", len(live))

	return live, nil
}
