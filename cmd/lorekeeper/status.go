package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dshills/lorekeeper/internal/app"
	"github.com/dshills/lorekeeper/pkg/types"
)

var (
	statusCorpus string
	statusJSON   bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show per-corpus node, edge and dangling-edge counts and the last run",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var corpus types.Corpus
		if statusCorpus != "" {
			c, err := types.ParseCorpus(statusCorpus)
			if err != nil {
				return err
			}
			corpus = c
		}

		a, err := openApp()
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		statuses, err := a.Status(cmd.Context(), corpus)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if statusJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(statuses)
		}
		fmt.Fprintf(out, "embedder: %s (%s, %d dims)\n\n", a.Embedder.Provider(), a.Embedder.Model(), a.Embedder.Dimension())
		printStatus(out, statuses)
		return nil
	},
}

func init() {
	statusCmd.Flags().StringVar(&statusCorpus, "corpus", "", "Show one corpus")
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Output as JSON")
}

func printStatus(w io.Writer, statuses []app.StatusReport) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CORPUS\tCONFIGURED\tFILES\tNODES\tEMBEDDED\tEDGES\tDANGLING\tERRORS\tINDEX\tLAST RUN")
	for _, st := range statuses {
		index := "-"
		if st.VectorIndex != nil {
			index = fmt.Sprintf("%d@%dd", st.VectorIndex.Count, st.VectorIndex.Dimension)
		}
		lastRun := "-"
		if st.LastRun != nil {
			lastRun = st.LastRun.Status
		}
		if st.Indexing {
			lastRun = "indexing"
		}
		fmt.Fprintf(tw, "%s\t%t\t%d\t%d\t%d\t%d\t%d\t%d\t%s\t%s\n",
			st.Corpus, st.Configured, st.TrackedFiles, st.Nodes, st.EmbeddedNodes,
			st.Edges, st.DanglingEdges, st.IndexErrors, index, lastRun)
	}
	_ = tw.Flush()
}
