package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/openfroyo/condaenv/pkg/stores"
)

func newHistoryCommand() *cobra.Command {
	var (
		ledgerPath string
		filter     stores.RunFilter
		failedOnly bool
		runID      string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded runs",
		Long: `Show runs recorded in the ledger, newest first.

With --run, show one run together with every command it executed.`,
		Example: `  # Last 20 runs
  condaenv history --ledger /var/lib/condaenv/ledger.db --limit 20

  # Failed runs of one environment as JSON
  condaenv history --name data --failed --json

  # Commands of one run
  condaenv history --run 5f0c...`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			if ledgerPath == "" {
				settings, err := loadSettings()
				if err != nil {
					return err
				}
				ledgerPath = settings.Ledger.Path
			}
			if ledgerPath == "" {
				return usageError(fmt.Errorf("no ledger configured; use --ledger or set [ledger] path in the settings"))
			}
			if _, err := os.Stat(ledgerPath); err != nil {
				return usageError(fmt.Errorf("ledger %s: %w", ledgerPath, err))
			}

			ledger, err := openLedger(ctx, ledgerPath)
			if err != nil {
				return err
			}
			defer ledger.Close()

			out := cmd.OutOrStdout()

			if runID != "" {
				run, err := ledger.GetRun(ctx, runID)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(out, run)
				}
				return writeRunDetail(out, run)
			}

			if failedOnly {
				filter.Failed = &failedOnly
			}
			runs, err := ledger.ListRuns(ctx, filter)
			if err != nil {
				return err
			}
			if jsonOutput {
				if runs == nil {
					runs = []*stores.Run{}
				}
				return writeJSON(out, runs)
			}
			return writeRunTable(out, runs)
		},
	}

	cmd.Flags().StringVar(&ledgerPath, "ledger", "", "SQLite ledger (default from settings)")
	cmd.Flags().IntVar(&filter.Limit, "limit", 50, "maximum number of runs")
	cmd.Flags().StringVarP(&filter.Name, "name", "n", "", "only runs for this environment name")
	cmd.Flags().StringVarP(&filter.Prefix, "prefix", "p", "", "only runs for this prefix")
	cmd.Flags().BoolVar(&failedOnly, "failed", false, "only failed runs")
	cmd.Flags().StringVar(&runID, "run", "", "show one run with its commands")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	return cmd
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeRunTable(w io.Writer, runs []*stores.Run) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tRUN\tENVIRONMENT\tSTEP\tOUTCOME\tDURATION")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.StartedAt.Local().Format(time.DateTime),
			shortID(r.ID),
			environmentLabel(r),
			stepLabel(r),
			outcomeLabel(r),
			r.Duration().Round(time.Millisecond),
		)
	}
	return tw.Flush()
}

func writeRunDetail(w io.Writer, run *stores.Run) error {
	fmt.Fprintf(w, "Run:         %s\n", run.ID)
	fmt.Fprintf(w, "Environment: %s\n", environmentLabel(run))
	fmt.Fprintf(w, "Step:        %s\n", stepLabel(run))
	fmt.Fprintf(w, "Outcome:     %s\n", outcomeLabel(run))
	if run.ResolvedPrefix != "" {
		fmt.Fprintf(w, "Prefix:      %s\n", run.ResolvedPrefix)
	}
	if run.Msg != "" {
		fmt.Fprintf(w, "Message:     %s\n", run.Msg)
	}
	fmt.Fprintf(w, "Started:     %s (%s)\n", run.StartedAt.Local().Format(time.RFC3339), run.Duration().Round(time.Millisecond))

	if len(run.Commands) == 0 {
		return nil
	}
	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tEXIT\tDURATION\tCOMMAND")
	for _, c := range run.Commands {
		exit := fmt.Sprintf("%d", c.ReturnCode)
		if c.LaunchError != "" {
			exit = "launch"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", c.Seq, exit, c.Duration, strings.Join(c.Argv, " "))
	}
	return tw.Flush()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func environmentLabel(r *stores.Run) string {
	switch {
	case r.Name != "":
		return r.Name
	case r.Prefix != "":
		return r.Prefix
	default:
		return "(active)"
	}
}

func stepLabel(r *stores.Run) string {
	if r.CheckOnly && r.SpecPresent {
		return r.Step + " (check)"
	}
	return r.Step
}

func outcomeLabel(r *stores.Run) string {
	switch {
	case r.Failed && r.ErrorClass != "":
		return "failed (" + r.ErrorClass + ")"
	case r.Failed:
		return "failed"
	case r.Changed:
		return "changed"
	default:
		return "ok"
	}
}
