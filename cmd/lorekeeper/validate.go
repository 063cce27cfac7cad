package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the config, corpus roots and embedding provider",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "config: ok\n")
		fmt.Fprintf(out, "database: %s\n", a.Config.DBPath)
		fmt.Fprintf(out, "vector indexes: %s\n", a.Config.IndexDir)

		var problems int
		for _, corpus := range a.Config.CorpusNames() {
			src := a.Config.Corpora[corpus]
			if _, err := os.Stat(src.Root); err != nil {
				fmt.Fprintf(out, "corpus %s: %v\n", corpus, err)
				problems++
				continue
			}
			fmt.Fprintf(out, "corpus %s: %s (%s)\n", corpus, src.Root, kindOrDefault(src.Kind))
		}

		if err := a.Embedder.Validate(cmd.Context()); err != nil {
			fmt.Fprintf(out, "embedder %s: %v\n", a.Embedder.ProviderID(), err)
			problems++
		} else {
			fmt.Fprintf(out, "embedder %s: ok (%d dims)\n", a.Embedder.ProviderID(), a.Embedder.Dimension())
		}

		if problems > 0 {
			return fmt.Errorf("%d problem(s) found", problems)
		}
		return nil
	},
}

func kindOrDefault(kind string) string {
	if kind == "" {
		return "files"
	}
	return kind
}
