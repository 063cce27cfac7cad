package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/lorekeeper/internal/searcher"
	"github.com/dshills/lorekeeper/pkg/types"
)

var (
	searchCorpora []string
	searchMode    string
	searchLimit   int
	searchJSON    bool
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the indexed corpora",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		corpora, err := parseCorpusFlags(searchCorpora)
		if err != nil {
			return err
		}
		mode, err := searcher.ParseMode(searchMode)
		if err != nil {
			return err
		}

		a, err := openApp()
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		resp, err := a.Searcher.Search(cmd.Context(), searcher.SearchRequest{
			Text:    strings.Join(args, " "),
			Corpora: corpora,
			Mode:    mode,
			Limit:   searchLimit,
		})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if searchJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(resp)
		}
		printSearch(out, resp)
		return nil
	},
}

func init() {
	searchCmd.Flags().StringSliceVar(&searchCorpora, "corpus", nil, "Restrict to corpus (repeatable)")
	searchCmd.Flags().StringVar(&searchMode, "mode", string(searcher.ModeAuto), "auto, semantic or structural")
	searchCmd.Flags().IntVar(&searchLimit, "limit", 0, "Maximum results (default from config)")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "Output as JSON")
}

func printSearch(w io.Writer, resp *searcher.SearchResponse) {
	fmt.Fprintf(w, "route: %s", resp.Route)
	if resp.Intent != "" {
		fmt.Fprintf(w, "  intent: %s  anchor: %q", resp.Intent, resp.Anchor)
	}
	if resp.Fallback {
		fmt.Fprint(w, "  (fallback)")
	}
	if resp.Degraded {
		fmt.Fprint(w, "  (degraded)")
	}
	fmt.Fprintf(w, "  %d results in %s\n\n", len(resp.Results), resp.Duration.Round(time.Microsecond))

	for _, r := range resp.Results {
		fmt.Fprintf(w, "%2d. %s  [%s/%s]  %.4f %s\n", r.Rank, r.DisplayName, r.Corpus, kind(r), r.Score, r.Source)
		fmt.Fprintf(w, "    %s\n", r.NodeID)
		if len(r.Path) > 0 {
			fmt.Fprintf(w, "    via %s\n", joinPath(r.Path))
		}
		if r.Snippet != "" {
			fmt.Fprintf(w, "    %s\n", r.Snippet)
		}
	}
}

func kind(r types.RankedResult) string {
	if r.DataType != "" {
		return r.DataType
	}
	return r.NodeType
}

func joinPath(path []types.EdgeType) string {
	parts := make([]string, len(path))
	for i, e := range path {
		parts[i] = string(e)
	}
	return strings.Join(parts, " -> ")
}
