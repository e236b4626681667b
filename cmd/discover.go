package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/keyword-discovery/internal/discovery"
	"github.com/sells-group/keyword-discovery/internal/exports"
)

const dateLayout = "2006-01-02"

// discoverOptions mirrors the discover command's flags.
type discoverOptions struct {
	RequestFile string
	ClientID    string
	Seeds       []string
	Competitors []string
	Brand       []string
	BrandRegex  []string
	Property    string
	Start       string
	End         string
	RowLimit    int
	NoStore     bool

	Format   string
	Out      string
	Top      int
	Save     bool
	Selected []string
}

var discoverOpts discoverOptions

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Discover and rank keyword opportunities for a client",
	Example: `  keyword-cli discover --client acme-hvac --seed "furnace repair" --competitor rival.com --brand acme
  keyword-cli discover --request request.yaml --format json
  keyword-cli discover --request request.yaml --out keywords.xlsx --save --select "furnace repair"`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		req, err := buildRequest(discoverOpts, cfg.SearchConsole.PropertyID, cfg.Exports.PerformanceFile != "")
		if err != nil {
			return err
		}

		env, err := initDiscovery(ctx, discoverOpts.Save || !discoverOpts.NoStore, nil)
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Pipeline.Run(ctx, req)
		if err != nil {
			return eris.Wrap(err, "discover")
		}

		if discoverOpts.Out != "" {
			if err := exports.WriteXLSX(discoverOpts.Out, res); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "Wrote %d keywords to %s\n", len(res.Candidates), discoverOpts.Out)
		}

		if err := writeResult(os.Stdout, res, discoverOpts.Format, discoverOpts.Top); err != nil {
			return err
		}

		if discoverOpts.Save {
			saved, err := discovery.Save(ctx, env.Store, req, res, discoverOpts.Selected)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "Saved run %s with %d keywords\n", saved.RunID, saved.Saved)
			for _, kw := range saved.Unknown {
				fmt.Fprintf(os.Stderr, "  not in result: %s\n", kw)
			}
		}
		return nil
	},
}

// buildRequest assembles a request from an optional YAML file plus flags.
// List flags append to the file's lists; scalar flags override it. A
// performance query is added when a property is known or a performance
// export is configured.
func buildRequest(o discoverOptions, defaultProperty string, hasPerformanceFile bool) (discovery.Request, error) {
	var req discovery.Request
	if o.RequestFile != "" {
		r, err := loadRequestFile(o.RequestFile)
		if err != nil {
			return req, err
		}
		req = r
	}

	if o.ClientID != "" {
		req.ClientID = o.ClientID
	}
	if o.NoStore {
		req.SkipStoreTerms = true
	}
	req.Seeds = append(req.Seeds, o.Seeds...)
	req.Competitors = append(req.Competitors, o.Competitors...)
	for _, t := range o.Brand {
		req.BrandTerms = append(req.BrandTerms, discovery.BrandTerm{Term: t})
	}
	for _, t := range o.BrandRegex {
		req.BrandTerms = append(req.BrandTerms, discovery.BrandTerm{Term: t, IsRegex: true})
	}

	property := o.Property
	if property == "" && req.Performance != nil {
		property = req.Performance.PropertyID
	}
	if property == "" {
		property = defaultProperty
	}
	if req.Performance == nil && (property != "" || hasPerformanceFile) {
		req.Performance = &discovery.PerformanceQuery{}
	}
	if req.Performance != nil {
		req.Performance.PropertyID = property
		if o.RowLimit > 0 {
			req.Performance.Limit = o.RowLimit
		}
		if err := parseDate(o.Start, &req.Performance.StartDate); err != nil {
			return req, eris.Wrap(err, "--start")
		}
		if err := parseDate(o.End, &req.Performance.EndDate); err != nil {
			return req, eris.Wrap(err, "--end")
		}
		if !req.Performance.StartDate.IsZero() && !req.Performance.EndDate.IsZero() &&
			req.Performance.EndDate.Before(req.Performance.StartDate) {
			return req, eris.New("performance window ends before it starts")
		}
	}

	if req.ClientID == "" {
		return req, eris.New("--client is required (or client_id in the request file)")
	}
	return req, nil
}

func parseDate(s string, dst *time.Time) error {
	if s == "" {
		return nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return eris.Wrapf(err, "parse date %q (want YYYY-MM-DD)", s)
	}
	*dst = t
	return nil
}

// loadRequestFile reads a discovery request from YAML.
func loadRequestFile(path string) (discovery.Request, error) {
	var req discovery.Request
	data, err := os.ReadFile(path)
	if err != nil {
		return req, eris.Wrap(err, "read request file")
	}
	if err := yaml.Unmarshal(data, &req); err != nil {
		return req, eris.Wrapf(err, "parse request file %s", path)
	}
	return req, nil
}

// writeResult renders res in the requested format.
func writeResult(w io.Writer, res *discovery.Result, format string, top int) error {
	switch format {
	case "", "table":
		formatResultTable(w, res, top)
		return nil
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return eris.Wrap(enc.Encode(res), "encode result")
	case "csv":
		return exports.WriteCSV(w, res.Candidates)
	default:
		return eris.Errorf("unknown format %q (want table, json or csv)", format)
	}
}

// formatResultTable prints the top ranked candidates and the run summary.
// top <= 0 prints every candidate.
func formatResultTable(w io.Writer, res *discovery.Result, top int) {
	p := message.NewPrinter(language.English)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tKEYWORD\tSCORE\tCATEGORY\tVOLUME\tCOMP\tINTENT\tPOS\tSOURCE")
	for i, c := range res.Candidates {
		if top > 0 && i >= top {
			break
		}
		pos := "-"
		if c.HasClientRanking {
			pos = fmt.Sprintf("%.1f", c.Position)
		}
		intent := string(c.Intent)
		if intent == "" {
			intent = "-"
		}
		fmt.Fprintf(tw, "%d\t%s\t%.2f\t%s\t%s\t%s\t%s\t%s\t%s\n",
			i+1, c.Keyword, c.PriorityScore, c.Category,
			p.Sprintf("%d", c.SearchVolume), c.Competition, intent, pos, c.Source)
	}
	tw.Flush() //nolint:errcheck

	s := res.Stats
	fmt.Fprintln(w)
	p.Fprintf(w, "Run %s: %d keywords, %d branded removed, %d quick wins\n",
		res.RunID, s.Total, s.BrandedRemoved, s.QuickWins)
	p.Fprintf(w, "Intent: %d commercial, %d informational\n", s.CommercialIntent, s.InformationalIntent)
	for _, cat := range discovery.Categories {
		p.Fprintf(w, "  %-16s %d\n", cat, s.ByCategory[cat])
	}
	if top > 0 && len(res.Candidates) > top {
		p.Fprintf(w, "(%d more not shown; use --format csv or --out for the full list)\n", len(res.Candidates)-top)
	}
	if len(res.Failures) > 0 {
		fmt.Fprintf(w, "\n%d source failures:\n", len(res.Failures))
		for _, f := range res.Failures {
			fmt.Fprintf(w, "  [%s] %s\n", f.Phase, f.Message)
		}
	}
}

func init() {
	f := discoverCmd.Flags()
	f.StringVar(&discoverOpts.RequestFile, "request", "", "YAML request file")
	f.StringVar(&discoverOpts.ClientID, "client", "", "client identifier")
	f.StringArrayVar(&discoverOpts.Seeds, "seed", nil, "seed keyword (repeatable)")
	f.StringSliceVar(&discoverOpts.Competitors, "competitor", nil, "competitor domain (repeatable)")
	f.StringArrayVar(&discoverOpts.Brand, "brand", nil, "brand term, matched case-insensitively (repeatable)")
	f.StringArrayVar(&discoverOpts.BrandRegex, "brand-regex", nil, "brand pattern as a regular expression (repeatable)")
	f.StringVar(&discoverOpts.Property, "property", "", "Search Console property (default from config)")
	f.StringVar(&discoverOpts.Start, "start", "", "performance window start, YYYY-MM-DD")
	f.StringVar(&discoverOpts.End, "end", "", "performance window end, YYYY-MM-DD")
	f.IntVar(&discoverOpts.RowLimit, "rows", 0, "performance row limit (default from config)")
	f.BoolVar(&discoverOpts.NoStore, "no-store", false, "skip stored brand terms and do not open the store")
	f.StringVar(&discoverOpts.Format, "format", "table", "output format: table, json or csv")
	f.StringVar(&discoverOpts.Out, "out", "", "also write an XLSX workbook to this path")
	f.IntVar(&discoverOpts.Top, "top", 50, "rows to print in table format (0 for all)")
	f.BoolVar(&discoverOpts.Save, "save", false, "persist the run and selected keywords")
	f.StringArrayVar(&discoverOpts.Selected, "select", nil, "keyword to keep when saving (repeatable; default all)")
	rootCmd.AddCommand(discoverCmd)
}
