package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/dshills/lorekeeper/internal/api"
	"github.com/dshills/lorekeeper/internal/mcp"
)

var httpAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the MCP tools on stdio",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		server := mcp.NewServer(a)
		errChan := make(chan error, 1)
		go func() {
			a.Logger.Info("mcp.start", "server", mcp.ServerName, "version", version)
			errChan <- server.Serve(ctx)
		}()

		select {
		case <-ctx.Done():
			a.Logger.Info("mcp.shutdown")
			return nil
		case err := <-errChan:
			return err
		}
	},
}

var httpCmd = &cobra.Command{
	Use:   "http",
	Short: "Serve the query API over HTTP",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		addr := a.Config.HTTPAddr
		if cmd.Flags().Changed("addr") {
			addr = httpAddr
		}
		return api.New(a).ListenAndServe(cmd.Context(), addr)
	},
}

func init() {
	httpCmd.Flags().StringVar(&httpAddr, "addr", ":8080", "Listen address (default from config)")
}
