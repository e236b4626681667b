package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/keyword-discovery/internal/discovery"
	"github.com/sells-group/keyword-discovery/internal/exports"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect saved discovery runs",
	Long:  "Commands for listing saved runs and viewing the keywords kept from them.",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		client, _ := cmd.Flags().GetString("client")
		limit, _ := cmd.Flags().GetInt("limit")

		runs, err := st.ListRuns(ctx, client, limit)
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(os.Stdout, runs)
		return nil
	},
}

// -- runs show --

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show a saved run and its keywords",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}

		opts, err := listOptsFromFlags(cmd)
		if err != nil {
			return err
		}
		kws, err := st.ListKeywords(ctx, run.ID, opts)
		if err != nil {
			return eris.Wrap(err, "runs show")
		}

		format, _ := cmd.Flags().GetString("format")
		switch format {
		case "json":
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(struct {
				Run      *discovery.RunRecord  `json:"run"`
				Keywords []discovery.Candidate `json:"keywords"`
			}{run, kws})
		case "csv":
			return exports.WriteCSV(os.Stdout, kws)
		default:
			formatRun(os.Stdout, run, kws)
			return nil
		}
	},
}

func listOptsFromFlags(cmd *cobra.Command) (discovery.ListOpts, error) {
	var opts discovery.ListOpts

	category, _ := cmd.Flags().GetString("category")
	if category != "" {
		opts.Category = discovery.Category(category)
		if !validCategory(opts.Category) {
			return opts, eris.Errorf("unknown category %q", category)
		}
	}
	if cmd.Flags().Changed("min-score") {
		minScore, _ := cmd.Flags().GetFloat64("min-score")
		opts.MinScore = &minScore
	}
	opts.Limit, _ = cmd.Flags().GetInt("limit")
	return opts, nil
}

func validCategory(c discovery.Category) bool {
	for _, known := range discovery.Categories {
		if c == known {
			return true
		}
	}
	return false
}

// formatRunsList writes a table of runs to out.
func formatRunsList(out io.Writer, runs []discovery.RunRecord) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tCLIENT\tKEYWORDS\tSAVED\tQUICK_WINS\tFAILURES\tCOMPLETED\tDURATION")
	_, _ = fmt.Fprintln(w, "--\t------\t--------\t-----\t----------\t--------\t---------\t--------")

	for _, r := range runs {
		dur := r.CompletedAt.Sub(r.StartedAt).Round(time.Second).String()

		client := r.ClientID
		if len(client) > 30 {
			client = client[:27] + "..."
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\t%s\t%s\n",
			truncateID(r.ID),
			client,
			r.Stats.Total,
			r.Saved,
			r.Stats.QuickWins,
			r.Failures,
			r.CompletedAt.Format("2006-01-02 15:04"),
			dur,
		)
	}
	_ = w.Flush()
}

// formatRun writes a run header followed by its saved keywords.
func formatRun(out io.Writer, run *discovery.RunRecord, kws []discovery.Candidate) {
	_, _ = fmt.Fprintf(out, "Run:       %s\n", run.ID)
	_, _ = fmt.Fprintf(out, "Client:    %s\n", run.ClientID)
	_, _ = fmt.Fprintf(out, "Completed: %s\n", run.CompletedAt.Format("2006-01-02 15:04"))
	_, _ = fmt.Fprintf(out, "Seeds:     %d  Competitors: %d\n", len(run.Request.Seeds), len(run.Request.Competitors))
	_, _ = fmt.Fprintf(out, "Keywords:  %d found, %d saved, %d branded removed\n\n", run.Stats.Total, run.Saved, run.Stats.BrandedRemoved)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "KEYWORD\tSCORE\tCATEGORY\tOPPORTUNITY\tVOLUME\tPOS")
	for _, c := range kws {
		pos := "-"
		if c.HasClientRanking {
			pos = fmt.Sprintf("%.1f", c.Position)
		}
		_, _ = fmt.Fprintf(w, "%s\t%.2f\t%s\t%s\t%d\t%s\n",
			c.Keyword, c.PriorityScore, c.Category, c.OpportunityType, c.SearchVolume, pos)
	}
	_ = w.Flush()
}

func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func init() {
	runsListCmd.Flags().String("client", "", "client ID")
	runsListCmd.Flags().Int("limit", 20, "max number of runs to display")
	_ = runsListCmd.MarkFlagRequired("client")

	runsShowCmd.Flags().String("category", "", "only keywords in this priority category")
	runsShowCmd.Flags().Float64("min-score", 0, "only keywords scoring at least this")
	runsShowCmd.Flags().Int("limit", 0, "max keywords to display (0 for the store default)")
	runsShowCmd.Flags().String("format", "table", "output format: table, json or csv")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	rootCmd.AddCommand(runsCmd)
}
