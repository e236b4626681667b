package main

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/keyword-discovery/internal/discovery"
)

var brandCmd = &cobra.Command{
	Use:   "brand",
	Short: "Manage client brand terms",
	Long:  "Brand terms are removed from every discovery run for the client, in addition to any terms passed with the request.",
}

var brandAddCmd = &cobra.Command{
	Use:   "add <client-id> <term>...",
	Short: "Register brand terms for a client",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		isRegex, _ := cmd.Flags().GetBool("regex")

		terms, err := parseBrandTerms(args[1:], isRegex)
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		for _, t := range terms {
			if err := st.AddTerm(ctx, args[0], t); err != nil {
				return eris.Wrapf(err, "brand add %q", t.Term)
			}
		}
		fmt.Fprintf(os.Stderr, "Added %d brand terms for %s\n", len(terms), args[0])
		return nil
	},
}

var brandListCmd = &cobra.Command{
	Use:   "list <client-id>",
	Short: "List a client's brand terms",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		terms, err := st.Terms(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "brand list")
		}
		if len(terms) == 0 {
			fmt.Fprintln(os.Stderr, "No brand terms.")
			return nil
		}
		formatBrandTerms(os.Stdout, terms)
		return nil
	},
}

var brandRemoveCmd = &cobra.Command{
	Use:   "remove <client-id> <term>",
	Short: "Remove a client's brand term",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.RemoveTerm(ctx, args[0], args[1]); err != nil {
			return eris.Wrap(err, "brand remove")
		}
		return nil
	},
}

// parseBrandTerms builds brand terms from arguments, rejecting patterns that
// do not compile.
func parseBrandTerms(args []string, isRegex bool) ([]discovery.BrandTerm, error) {
	terms := make([]discovery.BrandTerm, 0, len(args))
	for _, a := range args {
		if a == "" {
			return nil, eris.New("brand term must not be empty")
		}
		if isRegex {
			if _, err := regexp.Compile("(?i)" + a); err != nil {
				return nil, eris.Wrapf(err, "invalid brand pattern %q", a)
			}
		}
		terms = append(terms, discovery.BrandTerm{Term: a, IsRegex: isRegex})
	}
	return terms, nil
}

func formatBrandTerms(out io.Writer, terms []discovery.BrandTerm) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "TERM\tKIND")
	for _, t := range terms {
		kind := "text"
		if t.IsRegex {
			kind = "regex"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\n", t.Term, kind)
	}
	_ = w.Flush()
}

func init() {
	brandAddCmd.Flags().Bool("regex", false, "treat terms as regular expressions")

	brandCmd.AddCommand(brandAddCmd)
	brandCmd.AddCommand(brandListCmd)
	brandCmd.AddCommand(brandRemoveCmd)
	rootCmd.AddCommand(brandCmd)
}
