package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dshills/lorekeeper/internal/app"
	"github.com/dshills/lorekeeper/pkg/types"
)

var (
	indexCorpora []string
	indexJSON    bool
)

var errIndexFailed = errors.New("one or more corpora failed to index")

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Incrementally index the configured corpora in dependency order",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		corpora, err := parseCorpusFlags(indexCorpora)
		if err != nil {
			return err
		}

		a, err := openApp()
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		reports, failed, err := a.Index(cmd.Context(), corpora...)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if indexJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			if err := enc.Encode(reports); err != nil {
				return err
			}
		} else {
			printRunReports(out, reports)
		}
		if failed {
			return errIndexFailed
		}
		return nil
	},
}

func init() {
	indexCmd.Flags().StringSliceVar(&indexCorpora, "corpus", nil, "Corpus to index (repeatable: code, gamedata, client, docs)")
	indexCmd.Flags().BoolVar(&indexJSON, "json", false, "Output as JSON")
}

func printRunReports(w io.Writer, reports []app.RunReport) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CORPUS\tSTATUS\tADDED\tCHANGED\tDELETED\tEMBEDDED\tEDGES\tERRORS\tDURATION")
	for _, r := range reports {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t%d\t%d\t%dms\n",
			r.Corpus, r.Status, r.FilesAdded, r.FilesChanged, r.FilesDeleted,
			r.NodesEmbedded, r.EdgesWritten, r.ParseErrors, r.DurationMS)
	}
	_ = tw.Flush()
	for _, r := range reports {
		if r.Error != "" {
			fmt.Fprintf(w, "%s: %s\n", r.Corpus, r.Error)
		}
	}
}

func parseCorpusFlags(names []string) ([]types.Corpus, error) {
	out := make([]types.Corpus, 0, len(names))
	for _, n := range names {
		c, err := types.ParseCorpus(n)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}
