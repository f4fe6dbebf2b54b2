package cli

import (
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/scanweave/scanweave/internal/store"
)

var resultsFlags = struct {
	host      string
	state     string
	protocol  string
	port      uint16
	portState string
	output    string
	format    string
}{}

var resultsCmd = &cobra.Command{
	Use:   "results",
	Short: "Browse persisted scan results",
	Long: `Results queries the result database written by scans run with
--persist. Filters narrow the output to matching hosts.`,
	Example: `  scanweave results
  scanweave results --host 192.168.1.10
  scanweave results --state up --port 22`,
	RunE: runResults,
}

func init() {
	resultsCmd.Flags().StringVar(&resultsFlags.host, "host", "", "filter by host address")
	resultsCmd.Flags().StringVar(&resultsFlags.state, "state", "", "filter by host state (up, down, unknown)")
	resultsCmd.Flags().StringVar(&resultsFlags.protocol, "protocol", "", "filter to hosts with ports on this protocol")
	resultsCmd.Flags().Uint16Var(&resultsFlags.port, "port", 0, "filter to hosts with this port scanned")
	resultsCmd.Flags().StringVar(&resultsFlags.portState, "port-state", "", "filter to hosts with a port in this state (open, closed, filtered)")
	resultsCmd.Flags().StringVarP(&resultsFlags.output, "output", "o", "", "export results to file instead of printing")
	resultsCmd.Flags().StringVar(&resultsFlags.format, "format", "text", "export format (text, xml)")

	rootCmd.AddCommand(resultsCmd)
}

func runResults(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	db, err := store.Open(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("failed to open result database: %w", err)
	}
	defer func() { _ = db.Close() }()

	filter := store.Filter{
		Host:      resultsFlags.host,
		State:     resultsFlags.state,
		Protocol:  resultsFlags.protocol,
		Port:      resultsFlags.port,
		PortState: resultsFlags.portState,
	}

	results, err := db.LoadResults(cmd.Context(), filter)
	if err != nil {
		return fmt.Errorf("failed to query results: %w", err)
	}

	if resultsFlags.output != "" {
		switch resultsFlags.format {
		case "text":
			if err := store.ExportText(resultsFlags.output, results); err != nil {
				return err
			}
		case "xml":
			if err := store.ExportXML(resultsFlags.output, results); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unknown export format %q (want text or xml)", resultsFlags.format)
		}
		fmt.Printf("Results exported to %s\n", resultsFlags.output)
		return nil
	}

	if len(results) == 0 {
		fmt.Println("No results match.")
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Scanned At", "Host", "State", "Open Ports")

	for i := range results {
		r := &results[i]
		open := 0
		for _, p := range r.Ports {
			if p.State == "open" {
				open++
			}
		}
		name := r.Host
		if r.Hostname != "" && r.Hostname != r.Host {
			name = fmt.Sprintf("%s (%s)", r.Hostname, r.Host)
		}
		_ = table.Append([]string{
			r.ScannedAt.Format("2006-01-02 15:04:05"),
			name,
			r.State,
			fmt.Sprintf("%d", open),
		})
	}

	_ = table.Render()
	return nil
}
